package replay

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/okian/geoasistencia/pkg/logger"
)

// SetupLogging configures the process logger for the replay tool.
func SetupLogging(verbose, jsonLogs bool) error {
	format := logger.FormatText
	if jsonLogs {
		format = logger.FormatJSON
	}
	if err := logger.Configure(format, os.Stderr); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	level := "warn"
	if verbose {
		level = "debug"
	}
	return logger.SetLevelString(level)
}

// ShowHelp prints usage information for the replay tool.
func ShowHelp(w io.Writer) {
	_, _ = io.WriteString(w, `Geoasistencia Session Replay
============================

Replays scripted location tracks through the attendance session engine on a
virtual clock and checks the marks it would save.

Usage:
  replay [options] script.yaml [script.yaml ...]

Options:
  -verbose
        Print the per-step trace and debug logs
  -json-logs
        Emit logs as JSON
  -help
        Show this help message

Script format:
  name: walk-out
  site: {id: "7", name: Matriz, lat: -2.2038, lng: -79.8819, radius_m: 50}
  cooldown_ms: 4000
  latency_ms: 200
  history:
    - {type: ENTRADA, site_id: "7"}
  steps:
    - {at_ms: 0, fix: {north_m: 0, acc_m: 5}}
    - {at_ms: 1000, fix: {north_m: 120, acc_m: 5}}
    - {at_ms: 2000, lost: timeout}
    - {at_ms: 3000, mark: ENTRADA}
    - {at_ms: 3500, fail_submit: transport}
    - {at_ms: 4000, select_site: "9"}
  expect:
    marks: [{type: SALIDA, auto: true}]
    final_state: CLOSED

The exit status is 1 when any script fails its expectations.
`)
}

// RunFiles replays every script in paths, prints a summary per script to w,
// and returns how many failed.
func RunFiles(ctx context.Context, w io.Writer, paths []string, verbose bool) int {
	failed := 0
	for _, path := range paths {
		s, err := Load(path)
		if err != nil {
			fmt.Fprintf(w, "!! %v\n", err)
			failed++
			continue
		}
		r, err := Run(ctx, s)
		if err != nil {
			fmt.Fprintf(w, "!! %s: %v\n", path, err)
			failed++
			continue
		}
		Print(w, r, verbose)
		if err := Verify(r, s.Expect); err != nil {
			fmt.Fprintf(w, "   FAIL %v\n", err)
			failed++
			continue
		}
		fmt.Fprintf(w, "   ok\n")
	}
	return failed
}
