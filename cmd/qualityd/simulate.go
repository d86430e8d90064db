package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"telemed/internal/infrastructure/simulation"
	"telemed/pkg/utils"
	"telemed/pkg/validation"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSimulateCmd() *cobra.Command {
	var (
		scenarioName string
		scenarioFile string
		duration     time.Duration
		jsonOutput   bool
		verbose      bool
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay a network scenario through the scorer and adaptation engine",
		Long: `Plays a scripted network scenario on a virtual clock, polling once per
adaptive interval, and prints every assessment and adaptation. Built-in
scenarios: ` + fmt.Sprint(simulation.BuiltinNames()),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			engine, err := engineConfig(cfg)
			if err != nil {
				return err
			}

			if err := validation.ValidateScenarioName(scenarioName); err != nil {
				return err
			}
			if scenarioFile == "" {
				scenarioFile = cfg.Simulation.ScenarioFile
			}
			loaded, err := loadScenarios(scenarioFile)
			if err != nil {
				return err
			}
			scenario, err := simulation.Resolve(scenarioName, loaded)
			if err != nil {
				return err
			}

			log := zap.NewNop().Sugar()
			if verbose {
				zapLogger, err := newLogger(cfg)
				if err != nil {
					return err
				}
				defer zapLogger.Sync()
				log = zapLogger.Sugar()
			}

			result, err := simulation.Run(context.Background(), scenario, simulation.Options{
				Interval:        cfg.Quality.AdaptiveInterval,
				Engine:          engine,
				BandwidthFactor: cfg.Quality.BandwidthFactor,
				Logger:          log,
			}, duration)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			return printResult(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&scenarioName, "scenario", "degrading", "scenario to play")
	cmd.Flags().StringVar(&scenarioFile, "file", "", "YAML file with extra scenarios (defaults to simulation.scenario_file)")
	cmd.Flags().DurationVar(&duration, "duration", 0, "how long to play (0 plays the scenario once)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the result as JSON")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "log engine decisions")
	return cmd
}

func printResult(out io.Writer, result *simulation.Result) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ELAPSED\tSCORE\tQUALITY\tRTT\tLOSS%\tBANDWIDTH\tLEVEL\tADAPTED")
	for _, step := range result.Steps {
		if !step.Connected {
			fmt.Fprintf(w, "%s\t-\tdisconnected\t-\t-\t-\t%s\t\n", step.Elapsed, step.Level)
			continue
		}
		a := step.Assessment
		adapted := ""
		if step.Adapted {
			adapted = "*"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%.0f\t%.2f\t%s\t%s\t%s\n",
			step.Elapsed, a.Score, a.Level, a.RTT, a.PacketLoss, utils.FormatBitrate(a.Bandwidth), step.Level, adapted)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\nscenario %s: %d steps, %d applier changes, final level %s\n",
		result.Scenario, len(result.Steps), result.Changes, result.Final.Level)
	for _, entry := range result.History {
		fmt.Fprintf(out, "  %s -> %s (score %d): %s\n", entry.From, entry.To, entry.Score, entry.Reason)
	}
	return nil
}
