package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"eventsync/internal/sqlite"
)

var HistoryCommand = _historyCommand{
	Name:        "history",
	Description: "Show recent runs",
}

type _historyCommand struct {
	Name        string
	Description string
}

func (s _historyCommand) Run(ctx context.Context, dbFilename, configFile string, verbose bool, args []string) error {
	var limit int

	fs := flag.NewFlagSet(s.Name, flag.ExitOnError)
	fs.Usage = func() {
		w := flag.CommandLine.Output()
		fmt.Fprintf(w, "Usage of %s %s:\n", os.Args[0], fs.Name())
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Options:\n")
		fs.PrintDefaults()
	}
	fs.IntVar(&limit, "limit", 10, "number of runs to show")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := sql.Open(sqlite.DriverName, dbFilename)
	if err != nil {
		return err
	}
	defer db.Close()
	storage := sqlite.NewStorage(db)

	runs, err := storage.RecentRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(flag.CommandLine.Output(), "No runs recorded yet")
		return nil
	}

	w := tabwriter.NewWriter(flag.CommandLine.Output(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tTOOK\tSUMMARY")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\n",
			run.StartedAt.Local().Format(time.DateTime),
			run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond),
			run)
	}
	return w.Flush()
}
