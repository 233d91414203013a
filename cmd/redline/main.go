// Package main is the entry point for the redline change tracker.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/reviewkit/redline/internal/app"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	opts, format, outPath := parseFlags()

	args := flag.Args()
	if len(args) != 2 {
		fmt.Fprintf(os.Stderr, "Error: expected two file arguments, got %d\n\n", len(args))
		flag.Usage()
		return 1
	}

	original, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: reading original: %v\n", err)
		return 1
	}
	target, err := os.ReadFile(args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: reading target: %v\n", err)
		return 1
	}

	application, err := app.New(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}
	defer application.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := application.Process(ctx, string(original), string(target))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	out := os.Stdout
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: creating output file: %v\n", err)
			return 1
		}
		defer f.Close()
		out = f
	}

	if err := application.Export(report, format, out); err != nil {
		fmt.Fprintf(os.Stderr, "Error: exporting: %v\n", err)
		return 1
	}

	fmt.Fprintf(os.Stderr, "session %s: %d operations, %d changes, %d clusters\n",
		report.SessionID, report.Operations, report.Changes, report.Clusters)
	return 0
}

func parseFlags() (app.Options, string, string) {
	var opts app.Options
	var format string
	var outPath string
	var showVersion bool
	var showHelp bool

	flag.StringVar(&opts.ConfigPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.ConfigPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&opts.Granularity, "granularity", "", "Diff granularity: character or word (overrides config)")
	flag.StringVar(&opts.Granularity, "g", "", "Diff granularity (shorthand)")
	flag.StringVar(&opts.Producer, "producer", "redline", "Producer identifier recorded on changes")
	flag.StringVar(&format, "format", "json", "Export format: json, csv, or markdown")
	flag.StringVar(&format, "f", "json", "Export format (shorthand)")
	flag.StringVar(&outPath, "out", "", "Write export to file instead of stdout")
	flag.StringVar(&outPath, "o", "", "Write export to file (shorthand)")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Redline - tracked-changes engine\n\n")
		fmt.Fprintf(os.Stderr, "Usage: redline [options] <original> <target>\n\n")
		fmt.Fprintf(os.Stderr, "Computes the difference between two texts and records it as\n")
		fmt.Fprintf(os.Stderr, "reviewable tracked changes, then exports the session.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  redline draft.txt edited.txt              Export changes as JSON\n")
		fmt.Fprintf(os.Stderr, "  redline -f markdown draft.txt edited.txt  Human-readable summary\n")
		fmt.Fprintf(os.Stderr, "  redline -g character -o out.csv a.txt b.txt\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("Redline %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	switch format {
	case "json", "csv", "markdown", "md":
		// Valid
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid format %q (must be json, csv, or markdown)\n", format)
		os.Exit(1)
	}

	return opts, format, outPath
}
