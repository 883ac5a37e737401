package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/enftaurus/vidyamitra/pkg/config"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config <command>",
	Short: "Manage vidyamitra configuration",
	Long: `Manage the vidyamitra configuration file (default vidyamitra.yaml).

Configuration sections:
  proctoring  - warning budget, face thresholds, sampling interval, termination policy
  backend     - round-flow backend used by the CLI and the session ledger
  detector    - face-detection endpoint
  store       - round-flow storage driver (memory, redis)
  server      - listen address and allowed bridge origins
  logging     - log level
  metrics     - Prometheus metrics
  webhooks    - warning and termination notifications

Available commands:
  show        - Show the effective configuration
  init        - Write the default configuration to --config`,
	DisableFlagsInUseLine: true,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  "Show the configuration loaded from --config, with defaults filled in.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if jsonOutput {
			return outputJSON(cfg)
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		fmt.Printf("# vidyamitra configuration (%s)\n", configPath)
		fmt.Print(string(data))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration",
	Long: `Write the default configuration to --config.

Refuses to overwrite an existing file unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil && !configInitForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
		}
		if err := config.Save(configPath, config.Default()); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		if jsonOutput {
			return outputJSON(map[string]string{"path": configPath})
		}
		fmt.Printf("Wrote default configuration to %s\n", configPath)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configShowCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}
