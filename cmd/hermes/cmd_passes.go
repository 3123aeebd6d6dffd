package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/utat-ss/hermes/internal/config"
	"github.com/utat-ss/hermes/internal/passes"
	"github.com/utat-ss/hermes/internal/scan"
	"github.com/utat-ss/hermes/internal/tle"
)

var windowsCmd = &cobra.Command{
	Use:   "windows <scenario.yaml>",
	Short: "Find ground station access windows for a scenario",
	Long: "Find every access window of the scenario's spacecraft over each station and mask. " +
		"The initial condition is the scenario's own tle or state unless --tle is given.",
	Args: cobra.ExactArgs(1),
	RunE: runWindows,
}

var (
	windowsTLEPath  string
	windowsNorad    int
	windowsFormat   string
	windowsOutput   string
	windowsWorkers  int
	windowsNodeStep time.Duration
)

func init() {
	windowsCmd.Flags().StringVar(&windowsTLEPath, "tle", "", "element file overriding the scenario's initial condition")
	windowsCmd.Flags().IntVar(&windowsNorad, "norad", 0, "catalog number to pick from --tle")
	windowsCmd.Flags().StringVar(&windowsFormat, "format", "json", "output format (json, csv)")
	windowsCmd.Flags().StringVarP(&windowsOutput, "output", "o", "", "output file (default stdout)")
	windowsCmd.Flags().IntVar(&windowsWorkers, "workers", 0, "parallel scans (default one per CPU)")
	windowsCmd.Flags().DurationVar(&windowsNodeStep, "node-step", time.Minute, "interpolation node spacing for numerical propagation")
	rootCmd.AddCommand(windowsCmd)
}

func runWindows(cmd *cobra.Command, args []string) error {
	if windowsFormat != "json" && windowsFormat != "csv" {
		return fmt.Errorf("unknown --format %q", windowsFormat)
	}
	sc, err := config.Load(args[0])
	if err != nil {
		return err
	}
	var es *tle.ElementSet
	if windowsTLEPath != "" {
		if es, err = loadElements(windowsTLEPath, windowsNorad); err != nil {
			return err
		}
	}

	start := time.Now()
	windows, err := scan.Windows(cmd.Context(), sc, es, scan.Env{
		NodeStep: windowsNodeStep,
		Workers:  windowsWorkers,
	})
	if err != nil {
		return err
	}
	logger.Info("window scan complete",
		"scenario", args[0],
		"stations", len(sc.Stations),
		"windows", len(windows),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return withOutput(windowsOutput, func(w io.Writer) error {
		if windowsFormat == "csv" {
			return writeWindowsCSV(w, windows)
		}
		if windows == nil {
			windows = []passes.Window{}
		}
		return writeJSON(w, map[string]any{"count": len(windows), "windows": windows})
	})
}

// withOutput runs write against path, or stdout when path is empty.
func withOutput(path string, write func(io.Writer) error) error {
	if path == "" {
		return write(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var windowsHeader = []string{
	"station", "mask", "start", "end", "peak", "duration_s",
	"peak_elevation_deg", "start_azimuth_deg", "peak_azimuth_deg", "end_azimuth_deg",
	"partial_start", "partial_end",
}

func writeWindowsCSV(w io.Writer, windows []passes.Window) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(windowsHeader); err != nil {
		return err
	}
	f := func(v float64, prec int) string { return strconv.FormatFloat(v, 'f', prec, 64) }
	for _, win := range windows {
		row := []string{
			win.Station,
			win.Mask,
			win.Start.Time().Format(time.RFC3339Nano),
			win.End.Time().Format(time.RFC3339Nano),
			win.Peak.Time().Format(time.RFC3339Nano),
			f(win.DurationSeconds, 3),
			f(win.PeakElevation, 3),
			f(win.StartAzimuth, 3),
			f(win.PeakAzimuth, 3),
			f(win.EndAzimuth, 3),
			strconv.FormatBool(win.PartialStart),
			strconv.FormatBool(win.PartialEnd),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
