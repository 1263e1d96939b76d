// Package main implements the racer CLI that flies the gate race sequencer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gate-race/gate_race"
)

var (
	configPath string
	logLevel   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "racer",
	Short: "Autonomous gate race sequencer",
	Long: `racer decides which flight primitive the vehicle flies each control tick:
take-off and approach, one pass per gate, the secondary pattern, then landing.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to YAML config.")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (debug, info, warn, error).")

	runCmd.Flags().String("live-addr", "", "Override live UDP listen addr (host:port).")
	runCmd.Flags().String("output-addr", "", "Override output UDP addr (host:port).")

	rootCmd.AddCommand(runCmd, checkCmd, replayCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the live UDP control loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if v, _ := cmd.Flags().GetString("live-addr"); v != "" {
			cfg.Live.UDPAddr = v
		}
		if v, _ := cmd.Flags().GetString("output-addr"); v != "" {
			cfg.Output.UDPAddr = v
		}

		logger, err := gate_race.NewLogger(cfg.Log)
		if err != nil {
			return err
		}
		defer func() {
			_ = logger.Sync()
		}()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Info("starting",
			zap.String("live", cfg.Live.UDPAddr),
			zap.String("output", cfg.Output.UDPAddr),
			zap.Float64("hz", cfg.Hz),
			zap.Int("primary_gates", cfg.Sequencer.PrimaryGates),
			zap.Int("secondary_gates", cfg.Sequencer.SecondaryGates))
		return gate_race.RunLive(ctx, cfg, logger)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the config and print the gate table",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		gates, err := cfg.GateTable()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "primary gates: %d, secondary gates: %d, skip approach: %t\n",
			cfg.Sequencer.PrimaryGates, cfg.Sequencer.SecondaryGates, cfg.Sequencer.SkipApproach)
		fmt.Fprintf(out, "%4s %10s %10s %10s %7s %8s\n", "gate", "heading", "after", "height", "zigzag", "leg")
		for i, g := range gates.Records() {
			fmt.Fprintf(out, "%4d %9.1f° %9.2fm %9.2fm %7t %7.2fm\n",
				i, cfg.Gates[i].HeadingDeg, g.DistanceAfterGate, g.HeightAfterGate, g.ZigzagEnabled, g.ZigzagLegDistance)
		}
		return nil
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay FILE",
	Short: "Feed recorded perception ticks through the sequencer offline",
	Long: `Replay reads one tick per line in the live packet format with a leading timestamp:

  t,mode,detected,ready,turning,lateral,vertical,longitudinal,altitude_achieved

and prints the phase, lower state and primitive chosen for every tick.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := gate_race.NewLogger(cfg.Log)
		if err != nil {
			return err
		}
		defer func() {
			_ = logger.Sync()
		}()

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		sum, err := gate_race.Replay(f, cmd.OutOrStdout(), cfg, logger)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d ticks, final phase %s/%s\n", sum.Ticks, sum.Final.Phase, sum.Final.Lower)
		return nil
	},
}

func loadConfig() (gate_race.AppConfig, error) {
	cfg, err := gate_race.LoadConfig(configPath)
	if err != nil {
		return cfg, fmt.Errorf("load config %q: %w", configPath, err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
		if err := cfg.Validate(); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}
