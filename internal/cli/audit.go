package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/enftaurus/vidyamitra/internal/audit"
)

var auditCmd = &cobra.Command{
	Use:   "audit <command>",
	Short: "Inspect the integrity event trail",
	Long: `Inspect the hash-chained trail of warnings, terminations and flow resets
written by "vidyamitra serve" when audit.path is set.`,
	DisableFlagsInUseLine: true,
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that no audit record was modified or removed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Audit.Path == "" {
			return fmt.Errorf("audit.path is not configured")
		}
		n, err := audit.NewFileAppender(cfg.Audit.Path).Verify()
		if jsonOutput {
			out := map[string]any{"path": cfg.Audit.Path, "records": n, "intact": err == nil}
			if err != nil {
				out["error"] = err.Error()
			}
			if jerr := outputJSON(out); jerr != nil {
				return jerr
			}
		}
		if err != nil {
			return fmt.Errorf("verify %s: %w", cfg.Audit.Path, err)
		}
		if !jsonOutput {
			fmt.Printf("%d records intact in %s\n", n, cfg.Audit.Path)
		}
		return nil
	},
}

func init() {
	auditCmd.AddCommand(auditVerifyCmd)
	rootCmd.AddCommand(auditCmd)
}
