package main

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/utat-ss/hermes/internal/config"
	"github.com/utat-ss/hermes/internal/propagation"
	"github.com/utat-ss/hermes/internal/tle"
	"github.com/utat-ss/hermes/internal/transform"
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert between element sets, state vectors and time scales",
}

var convertToStateCmd = &cobra.Command{
	Use:   "to-state",
	Short: "Propagate an element set to one epoch and print the state",
	Args:  cobra.NoArgs,
	RunE:  runConvertToState,
}

var convertToTLECmd = &cobra.Command{
	Use:   "to-tle <state.yaml>",
	Short: "Fit an element record to a state vector file",
	Long: "Fit an element record to the osculating elements of a state. The file holds " +
		"a state block and optionally a state_timestamp block, as in a scenario. With --at " +
		"the state is first propagated to that epoch.",
	Args: cobra.ExactArgs(1),
	RunE: runConvertToTLE,
}

var convertTimeCmd = &cobra.Command{
	Use:   "time <DDD:HH:MM:SS.sss>",
	Short: "Read a day-of-year timestamp and print it in every time scale",
	Args:  cobra.ExactArgs(1),
	RunE:  runConvertTime,
}

var (
	convTLEPath string
	convNorad   int
	convAt      string
	convModel   string
	convFrame   string
	convName    string
	convYear    int
	convScale   string
	convFitAt   string
	convFitMode string
	convFitJ2   bool
)

func init() {
	f := convertToStateCmd.Flags()
	f.StringVar(&convTLEPath, "tle", "", "element file (required)")
	f.IntVar(&convNorad, "norad", 0, "catalog number to pick from --tle")
	f.StringVar(&convAt, "at", "", "target epoch, RFC 3339 (default the element epoch)")
	f.StringVar(&convModel, "model", "sgp4", "propagation model (kepler, sgp4, numerical)")
	f.StringVar(&convFrame, "frame", "inertial", "output frame (inertial, earth-fixed)")
	convertToStateCmd.MarkFlagRequired("tle")

	convertToTLECmd.Flags().IntVar(&convNorad, "norad", 0, "catalog number of the new record")
	convertToTLECmd.Flags().StringVar(&convName, "name", "", "name line of the new record")
	convertToTLECmd.Flags().StringVar(&convFitAt, "at", "", "propagate the state to this epoch first, RFC 3339")
	convertToTLECmd.Flags().StringVar(&convFitMode, "model", "numerical", "propagation model for --at (kepler, sgp4, numerical)")
	convertToTLECmd.Flags().BoolVar(&convFitJ2, "j2", false, "include J2 in numerical propagation for --at")

	convertTimeCmd.Flags().IntVar(&convYear, "year", time.Now().UTC().Year(), "year of the timestamp")
	convertTimeCmd.Flags().StringVar(&convScale, "scale", "utc", "scale the timestamp is read in (utc, tai, tt)")

	convertCmd.AddCommand(convertToStateCmd, convertToTLECmd, convertTimeCmd)
	rootCmd.AddCommand(convertCmd)
}

func runConvertToState(cmd *cobra.Command, args []string) error {
	model, err := propagation.ParseModel(convModel)
	if err != nil {
		return err
	}
	frame, err := transform.ParseFrame(convFrame)
	if err != nil {
		return err
	}
	es, err := loadElements(convTLEPath, convNorad)
	if err != nil {
		return err
	}
	at := es.Epoch
	if convAt != "" {
		t, err := time.Parse(time.RFC3339Nano, convAt)
		if err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
		at = transform.NewEpoch(t.UTC())
	}

	p, err := propagation.New(propagation.Request{Elements: es, Model: model}, nil)
	if err != nil {
		return err
	}
	sv, err := p.Propagate(at)
	if err != nil {
		return err
	}
	out, err := sv.In(frame, nil)
	if err != nil {
		return err
	}
	inv, err := propagation.Invariants(sv)
	if err != nil {
		return err
	}
	return writeJSON(os.Stdout, map[string]any{
		"state": config.State{
			Epoch:       out.Epoch.Time().Format(time.RFC3339Nano),
			Frame:       out.Frame.String(),
			PositionKm:  [3]float64{out.Position.X, out.Position.Y, out.Position.Z},
			VelocityKmS: [3]float64{out.Velocity.X, out.Velocity.Y, out.Velocity.Z},
		},
		"invariants": inv,
	})
}

// stateFile is the layout read by to-tle.
type stateFile struct {
	State          *config.State     `yaml:"state"`
	StateTimestamp *config.DayOfYear `yaml:"state_timestamp"`
}

func runConvertToTLE(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read state file: %w", err)
	}
	var sf stateFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sf); err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	if sf.State == nil {
		return fmt.Errorf("%s: no state block", args[0])
	}
	sv, err := (&config.Scenario{State: sf.State, StateTimestamp: sf.StateTimestamp}).StateVector()
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	model, err := propagation.ParseModel(convFitMode)
	if err != nil {
		return err
	}
	template := tle.Template(convNorad)
	template.Name = convName
	es, err := fitElements(*sv, convFitAt, model, propagation.Perturbations{J2: convFitJ2}, template)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, tle.Serialize(es))
	return nil
}

// fitElements fits a record to sv, or to sv propagated to at when at is
// not empty.
func fitElements(sv propagation.StateVector, at string, model propagation.Model,
	pert propagation.Perturbations, template tle.ElementSet) (tle.ElementSet, error) {
	if at != "" {
		t, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return tle.ElementSet{}, fmt.Errorf("invalid --at: %w", err)
		}
		p, err := propagation.New(propagation.Request{State: &sv, Model: model, Perturbations: pert}, nil)
		if err != nil {
			return tle.ElementSet{}, err
		}
		if sv, err = p.Propagate(transform.NewEpoch(t.UTC())); err != nil {
			return tle.ElementSet{}, err
		}
	}
	return tle.FromState(sv, template)
}

func runConvertTime(cmd *cobra.Command, args []string) error {
	scale, err := transform.ParseScale(convScale)
	if err != nil {
		return err
	}
	e, err := transform.ParseDayOfYear(args[0], convYear)
	if err != nil {
		return err
	}
	e = transform.EpochFromSeconds(e.Seconds(), scale)

	out := make(map[string]string, 3)
	for _, s := range []transform.Scale{transform.ScaleUTC, transform.ScaleTAI, transform.ScaleTT} {
		c, err := transform.Convert(e, s)
		if err != nil {
			return err
		}
		out[s.String()] = c.String()
	}
	jd, err := transform.Convert(e, transform.ScaleTT)
	if err != nil {
		return err
	}
	return writeJSON(os.Stdout, map[string]any{"epochs": out, "julian_date_tt": jd.JulianDate()})
}
