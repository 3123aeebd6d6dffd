package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/utat-ss/hermes/internal/propagation"
	"github.com/utat-ss/hermes/internal/scan"
	"github.com/utat-ss/hermes/internal/transform"
)

var ephemerisCmd = &cobra.Command{
	Use:   "ephemeris",
	Short: "Tabulate propagated states from an element file",
	Args:  cobra.NoArgs,
	RunE:  runEphemeris,
}

var (
	ephTLEPath  string
	ephNorad    int
	ephStart    string
	ephDuration time.Duration
	ephStep     time.Duration
	ephModel    string
	ephJ2       bool
	ephDrag     bool
	ephFrame    string
	ephFormat   string
	ephOutput   string
	ephMax      int
)

func init() {
	f := ephemerisCmd.Flags()
	f.StringVar(&ephTLEPath, "tle", "", "element file (required)")
	f.IntVar(&ephNorad, "norad", 0, "catalog number to pick from --tle")
	f.StringVar(&ephStart, "start", "", "first epoch, RFC 3339 (default the element epoch)")
	f.DurationVar(&ephDuration, "duration", 90*time.Minute, "span to tabulate")
	f.DurationVar(&ephStep, "step", time.Minute, "spacing between states")
	f.StringVar(&ephModel, "model", "sgp4", "propagation model (kepler, sgp4, numerical)")
	f.BoolVar(&ephJ2, "j2", false, "add J2 to the kepler and numerical models")
	f.BoolVar(&ephDrag, "drag", false, "apply the element set's mean motion derivatives to the kepler model")
	f.StringVar(&ephFrame, "frame", "inertial", "output frame (inertial, earth-fixed)")
	f.StringVar(&ephFormat, "format", "csv", "output format (json, csv)")
	f.StringVarP(&ephOutput, "output", "o", "", "output file (default stdout)")
	f.IntVar(&ephMax, "max-points", 1000000, "refuse to tabulate more states than this")
	ephemerisCmd.MarkFlagRequired("tle")
	rootCmd.AddCommand(ephemerisCmd)
}

func runEphemeris(cmd *cobra.Command, args []string) error {
	if ephFormat != "json" && ephFormat != "csv" {
		return fmt.Errorf("unknown --format %q", ephFormat)
	}
	model, err := propagation.ParseModel(ephModel)
	if err != nil {
		return err
	}
	frame, err := transform.ParseFrame(ephFrame)
	if err != nil {
		return err
	}
	if frame == transform.FrameTopocentric {
		return fmt.Errorf("--frame topocentric is not supported here; use the windows command")
	}
	es, err := loadElements(ephTLEPath, ephNorad)
	if err != nil {
		return err
	}

	start, err := transform.Convert(es.Epoch, transform.ScaleUTC)
	if err != nil {
		return err
	}
	if ephStart != "" {
		t, err := time.Parse(time.RFC3339Nano, ephStart)
		if err != nil {
			return fmt.Errorf("invalid --start: %w", err)
		}
		start = transform.NewEpoch(t.UTC())
	}
	epochs, err := scan.Epochs(start, start.AddDuration(ephDuration), ephStep, ephMax)
	if err != nil {
		return err
	}

	req := propagation.Request{
		Elements:      es,
		Model:         model,
		Perturbations: propagation.Perturbations{J2: ephJ2, Drag: ephDrag},
	}
	states, err := scan.Ephemeris(cmd.Context(), req, epochs, frame, nil, nil)
	if err != nil {
		return err
	}
	logger.Info("ephemeris complete", "norad_id", es.CatalogNumber, "model", model.String(), "states", len(states))

	return withOutput(ephOutput, func(w io.Writer) error {
		if ephFormat == "json" {
			return writeJSON(w, map[string]any{"count": len(states), "states": states})
		}
		return writeStatesCSV(w, states)
	})
}

func writeStatesCSV(w io.Writer, states []propagation.StateVector) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"epoch", "frame", "x_km", "y_km", "z_km", "vx_kms", "vy_kms", "vz_kms"}); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
	for _, sv := range states {
		row := []string{
			sv.Epoch.Time().Format(time.RFC3339Nano),
			sv.Frame.String(),
			f(sv.Position.X), f(sv.Position.Y), f(sv.Position.Z),
			f(sv.Velocity.X), f(sv.Velocity.Y), f(sv.Velocity.Z),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
