package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpanel-dev/openpanel-go/pkg/openpanel"
	"github.com/openpanel-dev/openpanel-go/pkg/openpanel/collector"
	"github.com/openpanel-dev/openpanel-go/pkg/openpanel/deadletter"
	"github.com/openpanel-dev/openpanel-go/pkg/openpanel/dispatch"
	"github.com/openpanel-dev/openpanel-go/pkg/openpanel/event"
)

// setupEndpoint starts a collector and points the OPENPANEL_* environment
// at it.
func setupEndpoint(t *testing.T) *collector.Handler {
	t.Helper()
	h := collector.NewHandler(collector.NewStore(), nil)
	srv := httptest.NewServer(collector.NewRouter(h))
	t.Cleanup(srv.Close)

	t.Setenv("OPENPANEL_CLIENT_ID", "cli-test")
	t.Setenv("OPENPANEL_API_URL", srv.URL)
	t.Setenv("OPENPANEL_MAX_RETRIES", "0")
	return h
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func TestRun_Track(t *testing.T) {
	h := setupEndpoint(t)

	_, _, err := runCLI(t, "-profile", "u1", "track", "signup", "plan=pro", "seats=3", "trial=true")
	require.NoError(t, err)

	events := h.Store().ByType("track")
	require.Len(t, events, 1)
	assert.JSONEq(t,
		`{"name":"signup","profileId":"u1","properties":{"plan":"pro","seats":3,"trial":true}}`,
		string(events[0].Payload))
	assert.Equal(t, "cli-test", events[0].Headers["openpanel-client-id"])
}

func TestRun_Identify(t *testing.T) {
	h := setupEndpoint(t)

	_, _, err := runCLI(t, "identify", "u1", "email=ada@example.com", "firstName=Ada", "plan=pro")
	require.NoError(t, err)

	events := h.Store().ByType("identify")
	require.Len(t, events, 1)
	assert.JSONEq(t,
		`{"profileId":"u1","firstName":"Ada","email":"ada@example.com","properties":{"plan":"pro"}}`,
		string(events[0].Payload))
}

func TestRun_ProfileCommands(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantType string
		want     string
	}{
		{
			name:     "alias",
			args:     []string{"alias", "u1", "anon-1"},
			wantType: "alias",
			want:     `{"profileId":"u1","alias":"anon-1"}`,
		},
		{
			name:     "increment with default step",
			args:     []string{"increment", "u1", "visits"},
			wantType: "increment",
			want:     `{"profileId":"u1","property":"visits"}`,
		},
		{
			name:     "decrement with value",
			args:     []string{"decrement", "u1", "credits", "4"},
			wantType: "decrement",
			want:     `{"profileId":"u1","property":"credits","value":4}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := setupEndpoint(t)

			_, _, err := runCLI(t, tt.args...)
			require.NoError(t, err)

			events := h.Store().All()
			require.Len(t, events, 1)
			assert.Equal(t, tt.wantType, events[0].Type)
			assert.JSONEq(t, tt.want, string(events[0].Payload))
		})
	}
}

func TestRun_UsageErrors(t *testing.T) {
	setupEndpoint(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "no command", args: nil},
		{name: "unknown command", args: []string{"launch"}},
		{name: "track without name", args: []string{"track"}},
		{name: "bad property", args: []string{"track", "x", "novalue"}},
		{name: "alias arity", args: []string{"alias", "u1"}},
		{name: "bad increment value", args: []string{"increment", "u1", "visits", "many"}},
		{name: "dead letters without store", args: []string{"dead-letters", "list"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runCLI(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestRun_MissingClientID(t *testing.T) {
	t.Setenv("OPENPANEL_CLIENT_ID", "")

	_, _, err := runCLI(t, "track", "x")
	assert.Error(t, err)
}

func TestRun_ConfigFileAndEnvFile(t *testing.T) {
	h := collector.NewHandler(collector.NewStore(), nil)
	srv := httptest.NewServer(collector.NewRouter(h))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "openpanel.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("client_id: from-file\napi_url: "+srv.URL+"\n"), 0o644))
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("OPENPANEL_CLIENT_ID=from-env-file\n"), 0o644))

	_, _, err := runCLI(t, "-config", cfgPath, "-env-file", envPath, "track", "x")
	require.NoError(t, err)

	events := h.Store().All()
	require.Len(t, events, 1)
	assert.Equal(t, "from-env-file", events[0].Headers["openpanel-client-id"])
}

func TestRun_DeadLetters(t *testing.T) {
	h := setupEndpoint(t)
	dbPath := filepath.Join(t.TempDir(), "dead.db")

	h.Faults().Set(collector.Fault{StatusCode: http.StatusServiceUnavailable, Count: 1})
	_, stderr, err := runCLI(t, "-dead-letters", dbPath, "track", "lost")
	require.Error(t, err)
	assert.Contains(t, stderr, "delivery of track failed")
	assert.Zero(t, h.Store().Len())

	stdout, _, err := runCLI(t, "-dead-letters", dbPath, "dead-letters", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "\ttrack\t")
	assert.Contains(t, stdout, "HTTP 503")

	_, _, err = runCLI(t, "-dead-letters", dbPath, "dead-letters", "replay")
	require.NoError(t, err)

	events := h.Store().ByType("track")
	require.Len(t, events, 1)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, "lost", payload["name"])

	store, err := deadletter.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()
	n, err := store.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReplayDeadLetters_KeepsRejectedRecords(t *testing.T) {
	store := deadletter.NewMemoryStore(0)
	payload, err := event.Marshal(event.NewTrack(event.TrackPayload{Name: "lost"}))
	require.NoError(t, err)
	require.NoError(t, store.Save(deadletter.NewRecord("rec-1", "track", payload, assert.AnError, 1)))

	client, err := openpanel.New(openpanel.Options{ClientID: "cli-test", APIURL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	require.NoError(t, client.Close(context.Background()))

	err = replayDeadLetters(client, store)
	assert.ErrorIs(t, err, dispatch.ErrPipelineClosed)

	rec, err := store.Load("rec-1")
	require.NoError(t, err)
	assert.Equal(t, "track", rec.EventType)
}
