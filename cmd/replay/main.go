package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/okian/geoasistencia/internal/replay"
)

const defaultReplayTimeout = time.Minute

func main() {
	var (
		verbose  = flag.Bool("verbose", false, "Print the per-step trace and debug logs")
		jsonLogs = flag.Bool("json-logs", false, "Emit logs as JSON")
		help     = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help || flag.NArg() == 0 {
		replay.ShowHelp(os.Stdout)
		if !*help {
			os.Exit(2)
		}
		return
	}

	if err := replay.SetupLogging(*verbose, *jsonLogs); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to setup logging:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultReplayTimeout)
	defer cancel()

	if failed := replay.RunFiles(ctx, os.Stdout, flag.Args(), *verbose); failed > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d scripts failed\n", failed, flag.NArg())
		cancel()
		os.Exit(1)
	}
}
