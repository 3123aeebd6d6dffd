package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/utat-ss/hermes/internal/tle"
)

var (
	logLevel string
	logger   *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "hermes",
	Short: "Ground station access windows and orbit propagation",
	Long: "hermes propagates spacecraft orbits from element sets or state vectors and " +
		"finds the windows in which ground stations can see them.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var level slog.Level
		if err := level.UnmarshalText([]byte(logLevel)); err != nil {
			return fmt.Errorf("invalid --log-level %q", logLevel)
		}
		// Command output goes to stdout, so logs go to stderr.
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadElements reads an element file and picks one set: the one numbered
// norad, or the only set when norad is zero.
func loadElements(path string, norad int) (*tle.ElementSet, error) {
	c, err := tle.LoadCatalog(path, logger)
	if err != nil {
		return nil, err
	}
	if norad > 0 {
		es, ok := c.Lookup(norad)
		if !ok {
			return nil, fmt.Errorf("%s: no element set for catalog number %d", path, norad)
		}
		return &es, nil
	}
	if len(c.Sets) > 1 {
		return nil, fmt.Errorf("%s holds %d element sets; pick one with --norad", path, len(c.Sets))
	}
	return &c.Sets[0], nil
}
