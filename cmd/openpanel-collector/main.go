// openpanel-collector is a local stand-in for the OpenPanel collection
// endpoint. It records every event posted to /track and exposes admin
// endpoints for inspecting events and injecting failures.
//
// Point a client at it with api_url: http://localhost:3333.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openpanel-dev/openpanel-go/pkg/openpanel/collector"
)

func main() {
	addr := flag.String("addr", ":3333", "HTTP listen address")
	verbose := flag.Bool("verbose", false, "log every received event")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := collector.NewHandler(collector.NewStore(), logger)
	if err := serve(ctx, *addr, collector.NewRouter(h), logger); err != nil {
		fmt.Fprintf(os.Stderr, "openpanel-collector: %v\n", err)
		os.Exit(1)
	}
}

// serve runs the server until ctx ends, then shuts it down gracefully.
func serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting collector", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down collector")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
