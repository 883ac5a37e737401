package cli

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/enftaurus/vidyamitra/internal/detector"
	"github.com/enftaurus/vidyamitra/internal/doctor"
	"github.com/enftaurus/vidyamitra/internal/flowclient"
	"github.com/enftaurus/vidyamitra/internal/flowstore"
)

var doctorOffline bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check deployment health",
	Long: `Check deployment health.

Validates the configuration and probes the round-flow backend, the face
detector and (with the redis driver) the store. Use --offline to skip the
network probes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var targets doctor.Targets
		if !doctorOffline {
			targets.Backend = flowclient.New(cfg.Backend.BaseURL, "", cfg.Backend.Timeout)
			targets.Detector = detector.New(cfg.Detector.URL, cfg.Detector.Timeout)
			if cfg.Store.Driver == "redis" {
				client := redis.NewClient(&redis.Options{Addr: cfg.Store.RedisAddr, DB: cfg.Store.RedisDB})
				defer client.Close()
				targets.Store = flowstore.NewRedisStore(client, cfg.Store.TTL)
			}
		}

		result, err := doctor.NewDoctor(cfg, targets).Check(cmdContext(cmd))
		if err != nil {
			return fmt.Errorf("doctor: %w", err)
		}

		if jsonOutput {
			if err := outputJSON(result); err != nil {
				return err
			}
		} else if len(result.Findings) == 0 {
			fmt.Println("Deployment is healthy.")
		} else {
			fmt.Printf("Findings (%d):\n", len(result.Findings))
			for _, f := range result.Findings {
				fmt.Printf("  [%s] %s: %s\n", f.Severity, f.Category, f.Description)
			}
		}

		if !result.Healthy {
			return fmt.Errorf("deployment is unhealthy")
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorOffline, "offline", false, "skip network probes")
	rootCmd.AddCommand(doctorCmd)
}
