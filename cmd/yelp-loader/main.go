// Command yelp-loader searches the Yelp directory and appends the results
// to PostgreSQL.
//
// Usage:
//
//	yelp-loader run -term restaurant -location flushing [-strict]
//	yelp-loader lookup -id <business-id>
//	yelp-loader migrate up|down|version
//	yelp-loader serve
//
// Configuration is read from config.yaml, .env and YELP_LOADER_* variables;
// the API key from YELP_API_KEY.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/yelp-loader/internal/config"
	"github.com/Sternrassler/yelp-loader/internal/migrations"
	"github.com/Sternrassler/yelp-loader/pkg/logging"
	"github.com/Sternrassler/yelp-loader/pkg/metrics"
)

const (
	exitOK      = 0
	exitError   = 1
	exitUsage   = 2
	exitPartial = 3
)

const usage = `usage: yelp-loader [-config file] <command> [flags]

commands:
  run      -term T -location L [-strict]   collect, flatten and load one search
  lookup   -id ID                          print one business as JSON
  migrate  up|down|version                 manage the database schema
  serve                                    run the HTTP API
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("yelp-loader", flag.ContinueOnError)
	global.SetOutput(stderr)
	configFile := global.String("config", "", "path to a config file")
	global.Usage = func() { fmt.Fprint(stderr, usage) }

	if err := global.Parse(args); err != nil {
		return exitUsage
	}
	if global.NArg() == 0 {
		fmt.Fprint(stderr, usage)
		return exitUsage
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return exitError
	}

	command, rest := global.Arg(0), global.Args()[1:]
	if err := cfg.Validate(command != "migrate"); err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}

	logging.Setup(cfg.Log.LoggingConfig())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "run":
		return runCommand(ctx, cfg, rest, stdout, stderr)
	case "lookup":
		return lookupCommand(ctx, cfg, rest, stdout, stderr)
	case "migrate":
		return migrateCommand(cfg, rest, stdout, stderr)
	case "serve":
		return serveCommand(ctx, cfg)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", command, usage)
		return exitUsage
	}
}

func runCommand(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	term := fs.String("term", "", "search term (e.g. restaurant)")
	location := fs.String("location", "", "search location (e.g. flushing)")
	strict := fs.Bool("strict", false, "exit non-zero when pagination stopped early")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *location == "" {
		fmt.Fprintln(stderr, "run: -location is required")
		return exitUsage
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize")
		return exitError
	}
	defer a.Close()

	rec, runErr := a.pipeline.Run(ctx, *term, *location)

	if cfg.Metrics.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		grouping := map[string]string{"location": *location}
		if *term != "" {
			grouping["term"] = *term
		}
		if err := metrics.Push(pushCtx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job, grouping); err != nil {
			log.Warn().Err(err).Msg("Failed to push metrics")
		}
		cancel()
	}

	if rec != nil {
		if err := writeJSON(stdout, rec); err != nil {
			fmt.Fprintf(stderr, "run: write record: %v\n", err)
			return exitError
		}
	}

	if runErr != nil {
		return exitError
	}
	if *strict && !rec.Complete {
		fmt.Fprintf(stderr, "run: collection incomplete (%s)\n", rec.StopReason)
		return exitPartial
	}
	return exitOK
}

func lookupCommand(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("lookup", flag.ContinueOnError)
	fs.SetOutput(stderr)
	id := fs.String("id", "", "business id or alias")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *id == "" {
		fmt.Fprintln(stderr, "lookup: -id is required")
		return exitUsage
	}

	c, err := newClient(cfg, nil)
	if err != nil {
		fmt.Fprintf(stderr, "lookup: %v\n", err)
		return exitError
	}

	b, err := c.Business(ctx, *id)
	if err != nil {
		fmt.Fprintf(stderr, "lookup: %v\n", err)
		return exitError
	}

	if err := writeJSON(stdout, b); err != nil {
		fmt.Fprintf(stderr, "lookup: write business: %v\n", err)
		return exitError
	}
	return exitOK
}

// writeJSON writes v to w as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func migrateCommand(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "migrate: expected one of up, down, version")
		return exitUsage
	}

	mg, err := migrations.New(cfg.Database.DSN())
	if err != nil {
		fmt.Fprintf(stderr, "migrate: %v\n", err)
		return exitError
	}
	defer mg.Close()

	switch args[0] {
	case "up":
		applied, err := mg.Up()
		if err != nil {
			fmt.Fprintf(stderr, "migrate: %v\n", err)
			return exitError
		}
		if applied {
			fmt.Fprintln(stdout, "migrations applied")
		} else {
			fmt.Fprintln(stdout, "database is up to date")
		}
	case "down":
		if err := mg.Down(); err != nil {
			fmt.Fprintf(stderr, "migrate: %v\n", err)
			return exitError
		}
		fmt.Fprintln(stdout, "migrations rolled back")
	case "version":
		version, dirty, err := mg.Version()
		if err != nil {
			fmt.Fprintf(stderr, "migrate: %v\n", err)
			return exitError
		}
		fmt.Fprintf(stdout, "version %d (dirty: %v)\n", version, dirty)
	default:
		fmt.Fprintf(stderr, "migrate: unknown action %q (use: up, down, version)\n", args[0])
		return exitUsage
	}
	return exitOK
}

func serveCommand(ctx context.Context, cfg *config.Config) int {
	a, err := newApp(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize")
		return exitError
	}
	defer a.Close()

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      newServer(a.pipeline, a.history(), a.quota, a.ping).Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("Starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Server failed")
			return exitError
		}
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Shutdown failed")
			return exitError
		}
	}
	return exitOK
}
