package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"eventsync/calendar/google"
	"eventsync/internal"
	"eventsync/internal/config"
	"eventsync/internal/pipeline"
	"eventsync/internal/source"
	"eventsync/internal/source/eventbrite"
	"eventsync/internal/source/meetup"
	"eventsync/internal/source/nycsystems"
	"eventsync/internal/source/partiful"
	"eventsync/internal/sqlite"
	"eventsync/pkg/log"
)

var SyncCommand = _syncCommand{
	Name:        "sync",
	Description: "Fetch events from all sources and reconcile the calendars",
}

type _syncCommand struct {
	Name        string
	Description string
}

func (s _syncCommand) Run(ctx context.Context, dbFilename, configFile string, verbose bool, args []string) error {
	var only Strings

	fs := flag.NewFlagSet(s.Name, flag.ExitOnError)
	fs.Usage = func() {
		w := flag.CommandLine.Output()
		fmt.Fprintf(w, "Usage of %s %s:\n", os.Args[0], fs.Name())
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Options:\n")
		fs.PrintDefaults()
	}
	fs.Var(&only, "source", "fetch only this source, may be repeated (e.g. -source meetup -source partiful)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if len(only) > 0 {
		enabled := make(map[string]bool, len(only))
		for _, name := range only {
			if !cfg.SourceEnabled(internal.SourceName(name)) {
				return fmt.Errorf("source %q is unknown or disabled", name)
			}
			enabled[name] = true
		}
		cfg.Sources.Enabled = enabled
	}
	if verbose {
		cfg.Logger.Level = "debug"
	}
	logger := log.Init(log.ZapConfig{
		Level:    cfg.Logger.Level,
		Mode:     cfg.Logger.Mode,
		Encoding: cfg.Logger.Encoding,
	})

	db, err := sql.Open(sqlite.DriverName, dbFilename)
	if err != nil {
		return err
	}
	defer db.Close()
	storage := sqlite.NewStorage(db)

	client, err := newGoogleClient(ctx, cfg, storage, logger)
	if err != nil {
		return err
	}

	registry := newRegistry(cfg, logger)
	runner := pipeline.New(logger, registry, client, cfg)

	summary, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	if err := storage.SaveRun(ctx, summary); err != nil {
		logger.Warnf(ctx, "saving run history: %v", err)
	}

	fmt.Fprintln(flag.CommandLine.Output(), summary)
	return nil
}

func newGoogleClient(ctx context.Context, cfg *config.Config, storage *sqlite.Storage, logger log.Logger) (*google.Client, error) {
	credJSON, err := os.ReadFile(cfg.Google.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("reading google credentials: %w", err)
	}

	client, err := google.NewClient(credJSON, logger)
	if err != nil {
		return nil, fmt.Errorf("creating google client: %w", err)
	}
	client.Horizon = cfg.Horizon()

	acc, err := storage.Account(ctx, googleProvider)
	if errors.Is(err, sqlite.ErrNoAccount) {
		return nil, fmt.Errorf("no google account configured, run %q first", os.Args[0]+" configure")
	}
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx, acc.Auth); err != nil {
		return nil, fmt.Errorf("google: connecting as %s: %w", acc.Name, err)
	}
	return client, nil
}

func newRegistry(cfg *config.Config, logger log.Logger) *source.Registry {
	httpClient := &http.Client{Timeout: 30 * time.Second}

	registry := source.NewRegistry()
	registry.Register(nycsystems.New(httpClient, logger))
	registry.Register(eventbrite.New(httpClient, logger, cfg.Sources.Eventbrite.OrganizerIDs))
	registry.Register(meetup.New(httpClient, logger, cfg.Sources.Meetup.Groups))
	registry.Register(partiful.New(httpClient, logger,
		cfg.Sources.Partiful.APIKey, cfg.Sources.Partiful.RefreshToken, cfg.Sources.Partiful.UseICS))
	return registry
}
