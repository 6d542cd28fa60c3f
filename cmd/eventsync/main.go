package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
)

var opts struct {
	DBFilename string
	ConfigFile string
	Verbose    bool
}

func init() {
	flag.StringVar(&opts.DBFilename, "db", "eventsync.db", "sqlite database file")
	flag.StringVar(&opts.ConfigFile, "config", "", "yaml config file (optional, env vars override)")
	flag.BoolVar(&opts.Verbose, "verbose", false, "enable debug logging")
}

func main() {
	flag.Usage = usage
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt)
		<-ch
		cancel()
	}()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	var err error
	switch args[0] {
	case SyncCommand.Name:
		err = SyncCommand.Run(ctx, opts.DBFilename, opts.ConfigFile, opts.Verbose, args[1:])
	case ConfigureCommand.Name:
		err = ConfigureCommand.Run(ctx, opts.DBFilename, opts.ConfigFile, opts.Verbose, args[1:])
	case HistoryCommand.Name:
		err = HistoryCommand.Run(ctx, opts.DBFilename, opts.ConfigFile, opts.Verbose, args[1:])
	default:
		fmt.Fprintf(flag.CommandLine.Output(), "unknown command %q\n\n", args[0])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func usage() {
	w := flag.CommandLine.Output()
	fmt.Fprintf(w, "Usage: %s [options] <command>\n", os.Args[0])
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintf(w, "  %-12s %s\n", SyncCommand.Name, SyncCommand.Description)
	fmt.Fprintf(w, "  %-12s %s\n", ConfigureCommand.Name, ConfigureCommand.Description)
	fmt.Fprintf(w, "  %-12s %s\n", HistoryCommand.Name, HistoryCommand.Description)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	flag.PrintDefaults()
}
