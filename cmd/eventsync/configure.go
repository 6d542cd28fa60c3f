package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"

	"eventsync/calendar/google"
	"eventsync/internal"
	"eventsync/internal/config"
	"eventsync/internal/sqlite"
	"eventsync/pkg/log"
)

const googleProvider = "google"

var ConfigureCommand = _configureCommand{
	Name:        "configure",
	Description: "Authorize access to the google calendar account",
}

type _configureCommand struct {
	Name        string
	Description string
}

func (s _configureCommand) Run(ctx context.Context, dbFilename, configFile string, verbose bool, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
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

	credJSON, err := os.ReadFile(cfg.Google.CredentialsFile)
	if err != nil {
		return fmt.Errorf("reading google credentials: %w", err)
	}
	client, err := google.NewClient(credJSON, logger)
	if err != nil {
		return fmt.Errorf("creating google client: %w", err)
	}

	w := flag.CommandLine.Output()

	authToken, err := client.Login(ctx, func(authURL string) {
		fmt.Fprintf(w, "Go to the following link in your browser\n%s\n", authURL)
	})
	if err != nil {
		return fmt.Errorf("google: logging in: %w", err)
	}
	userEmail, err := client.Email(ctx, authToken)
	if err != nil {
		return fmt.Errorf("google: getting email: %w", err)
	}

	acc := internal.Account{
		Platform: googleProvider,
		Name:     userEmail,
		Auth: func() string {
			v, _ := json.Marshal(authToken)
			return string(v)
		}(),
	}
	fmt.Fprintf(w, "Saving account %q for %q provider...\n", acc.Name, acc.Platform)
	if err := storage.AddAccount(ctx, &acc); err != nil {
		return fmt.Errorf("saving account: %w", err)
	}

	fmt.Fprintf(w, "Done. Events will be written to %q and %q.\n",
		cfg.Calendars.Confirmed, cfg.Calendars.Possible)
	return nil
}
