package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/enftaurus/vidyamitra/pkg/color"
	"github.com/enftaurus/vidyamitra/pkg/config"
	"github.com/enftaurus/vidyamitra/pkg/logging"
)

var (
	jsonOutput bool
	noColor    bool
	configPath string
	logLevel   string

	// cfg is loaded once per invocation by the root pre-run hook.
	cfg = config.Default()

	rootCmd = &cobra.Command{
		Use:   "vidyamitra",
		Short: "Vidyamitra - interview session integrity and round progression",
		Long: `Vidyamitra gates the four interview rounds (coding, technical, manager, hr)
and watches live round sessions for integrity violations: tab switching and
the absence of exactly one visible face.

Run "vidyamitra serve" to host the round-flow backend and the session bridge,
or use the status, reset, start and complete commands against a running
backend.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
}

func setup(cmd *cobra.Command, args []string) error {
	color.Init(noColor)

	loaded, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg = loaded

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	logger := logging.NewLogger(logging.ParseLevel(level))
	logger.SetOutput(os.Stderr)
	logging.SetGlobal(logger)
	return nil
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmtErr("%v", err)
		os.Exit(1)
	}
}

// outputJSON prints v as JSON if --json flag is set, otherwise does nothing.
func outputJSON(v any) error {
	if !jsonOutput {
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
