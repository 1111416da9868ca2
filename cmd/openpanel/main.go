// openpanel sends events to an OpenPanel endpoint from the command line.
//
// Usage:
//
//	openpanel [flags] track <name> [key=value ...]
//	openpanel [flags] identify <profileId> [key=value ...]
//	openpanel [flags] alias <profileId> <alias>
//	openpanel [flags] increment <profileId> <property> [value]
//	openpanel [flags] decrement <profileId> <property> [value]
//	openpanel [flags] dead-letters list
//	openpanel [flags] dead-letters replay
//
// Options come from -config (YAML or JSON), then OPENPANEL_* environment
// variables and -env-file, which win over the file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/openpanel-dev/openpanel-go/pkg/openpanel"
	"github.com/openpanel-dev/openpanel-go/pkg/openpanel/config"
	"github.com/openpanel-dev/openpanel-go/pkg/openpanel/deadletter"
	"github.com/openpanel-dev/openpanel-go/pkg/openpanel/event"
	"github.com/openpanel-dev/openpanel-go/pkg/openpanel/value"
)

const envPrefix = "OPENPANEL"

var errUsage = errors.New("usage: openpanel [flags] <track|identify|alias|increment|decrement|dead-letters> [args]")

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "openpanel: %v\n", err)
		os.Exit(1)
	}
}

type cliFlags struct {
	configFile  string
	envFile     string
	deadLetters string
	profileID   string
	timeout     time.Duration
	verbose     bool
}

func run(args []string, stdout, stderr io.Writer) error {
	var f cliFlags
	fs := flag.NewFlagSet("openpanel", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.configFile, "config", "", "path to a YAML or JSON config file")
	fs.StringVar(&f.envFile, "env-file", "", "path to a .env file with OPENPANEL_* variables")
	fs.StringVar(&f.deadLetters, "dead-letters", "", "SQLite file for failed deliveries (overrides dead_letter_db)")
	fs.StringVar(&f.profileID, "profile", "", "profile id to identify before sending")
	fs.DurationVar(&f.timeout, "timeout", 30*time.Second, "how long to wait for delivery on exit")
	fs.BoolVar(&f.verbose, "v", false, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return errUsage
	}

	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if f.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	dbPath := f.deadLetters
	if dbPath == "" {
		dbPath = cfg.String("dead_letter_db", "")
	}
	var store deadletter.Store
	if dbPath != "" {
		sqlStore, err := deadletter.NewSQLiteStore(dbPath)
		if err != nil {
			return fmt.Errorf("open dead letters: %w", err)
		}
		defer sqlStore.Close()
		store = sqlStore
	}

	cmd, cmdArgs := rest[0], rest[1:]
	if cmd == "dead-letters" {
		if store == nil {
			return errors.New("dead-letters needs -dead-letters or dead_letter_db")
		}
		if len(cmdArgs) == 1 && cmdArgs[0] == "list" {
			return listDeadLetters(store, stdout)
		}
		if len(cmdArgs) != 1 || cmdArgs[0] != "replay" {
			return errUsage
		}
	}

	opts, err := openpanel.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	opts.Logger = logger
	opts.DeadLetters = store

	var failures atomic.Int32
	opts.OnError = func(e event.Event, err error) {
		failures.Add(1)
		fmt.Fprintf(stderr, "delivery of %s failed: %v\n", e.Kind(), err)
	}

	client, err := openpanel.New(opts)
	if err != nil {
		return err
	}

	if f.profileID != "" {
		client.Identify(event.IdentifyPayload{ProfileID: f.profileID})
	}
	client.Ready()

	cmdErr := runCommand(client, store, cmd, cmdArgs)

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	if err := client.Close(ctx); err != nil {
		return fmt.Errorf("close: %w", err)
	}

	if cmdErr != nil {
		return cmdErr
	}
	if n := failures.Load(); n > 0 {
		return fmt.Errorf("%d deliveries failed", n)
	}
	return nil
}

// loadConfig reads the config file, then overlays the environment.
func loadConfig(f cliFlags) (config.Config, error) {
	cfg := config.New(nil)
	if f.configFile != "" {
		fileCfg, err := config.FromFile(f.configFile)
		if err != nil {
			return config.Config{}, err
		}
		cfg = fileCfg
	}

	var envFiles []string
	if f.envFile != "" {
		envFiles = append(envFiles, f.envFile)
	}
	envCfg, err := config.FromEnv(envPrefix, envFiles...)
	if err != nil {
		return config.Config{}, err
	}
	return cfg.Merge(envCfg), nil
}

func runCommand(client *openpanel.Client, store deadletter.Store, cmd string, args []string) error {
	switch cmd {
	case "track":
		if len(args) < 1 {
			return errUsage
		}
		props, err := parseProperties(args[1:])
		if err != nil {
			return err
		}
		client.Track(args[0], props)

	case "identify":
		if len(args) < 1 {
			return errUsage
		}
		payload, err := identifyPayload(args[0], args[1:])
		if err != nil {
			return err
		}
		client.Identify(payload)

	case "alias":
		if len(args) != 2 {
			return errUsage
		}
		client.Alias(event.AliasPayload{ProfileID: args[0], Alias: args[1]})

	case "increment", "decrement":
		if len(args) < 2 || len(args) > 3 {
			return errUsage
		}
		var step *int
		if len(args) == 3 {
			n, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("%s value: %w", cmd, err)
			}
			step = &n
		}
		if cmd == "increment" {
			client.Increment(event.IncrementPayload{ProfileID: args[0], Property: args[1], Value: step})
		} else {
			client.Decrement(event.DecrementPayload{ProfileID: args[0], Property: args[1], Value: step})
		}

	case "dead-letters":
		return replayDeadLetters(client, store)

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

// parseProperties turns key=value pairs into properties. Values that parse
// as JSON keep their type; anything else is a string.
func parseProperties(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	props := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		k, raw, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("property %q: want key=value", pair)
		}
		if v, err := value.Parse([]byte(raw)); err == nil {
			props[k] = v
		} else {
			props[k] = raw
		}
	}
	return props, nil
}

// identifyPayload maps firstName, lastName, email, and avatar pairs to
// traits as plain strings. Other pairs become properties.
func identifyPayload(profileID string, pairs []string) (event.IdentifyPayload, error) {
	payload := event.IdentifyPayload{ProfileID: profileID}
	traits := map[string]*string{
		"firstName": &payload.FirstName,
		"lastName":  &payload.LastName,
		"email":     &payload.Email,
		"avatar":    &payload.Avatar,
	}

	var rest []string
	for _, pair := range pairs {
		k, raw, _ := strings.Cut(pair, "=")
		if field, ok := traits[k]; ok {
			*field = raw
			continue
		}
		rest = append(rest, pair)
	}

	props, err := parseProperties(rest)
	if err != nil {
		return payload, err
	}
	payload.Properties, err = value.PropertiesFromMap(props)
	return payload, err
}

func listDeadLetters(store deadletter.Store, w io.Writer) error {
	records, err := store.List(0)
	if err != nil {
		return err
	}
	for _, rec := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			rec.ID, rec.EventType, rec.FailedAt.Format(time.RFC3339), rec.Attempts, rec.Error)
	}
	return nil
}

// replayDeadLetters resubmits every stored record. A record is removed only
// once the client accepts it; deliveries that fail again are stored under a
// new id.
func replayDeadLetters(client *openpanel.Client, store deadletter.Store) error {
	records, err := store.List(0)
	if err != nil {
		return err
	}
	for _, rec := range records {
		e, err := event.Unmarshal(rec.Payload)
		if err != nil {
			return fmt.Errorf("record %s: %w", rec.ID, err)
		}
		if err := client.Submit(e); err != nil {
			return fmt.Errorf("record %s: %w", rec.ID, err)
		}
		if err := store.Delete(rec.ID); err != nil {
			return fmt.Errorf("record %s: %w", rec.ID, err)
		}
	}
	return nil
}
