package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/enftaurus/vidyamitra/pkg/model"
)

var flowUser string

type flowOutput struct {
	Status    model.StatusMap `json:"status"`
	Next      model.RoundKey  `json:"next_allowed_round,omitempty"`
	Closed    bool            `json:"cycle_closed,omitempty"`
	FlowReset bool            `json:"flow_reset,omitempty"`
}

func report(st model.StatusMap, flowReset bool) error {
	out := flowOutput{Status: st, FlowReset: flowReset, Closed: model.AllCompleted(st)}
	if !out.Closed {
		out.Next = model.NextAllowedRound(st)
	}
	if jsonOutput {
		return outputJSON(out)
	}
	if flowReset {
		fmt.Println("Interview cycle closed. All rounds were reset.")
	}
	printStatus(st)
	return nil
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a user's round progression",
	Long: `Show the status of each interview round for --user and which round may
be started next.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := flowClient(flowUser)
		if err != nil {
			return err
		}
		st, err := c.Status(cmdContext(cmd))
		if err != nil {
			return fmt.Errorf("status: %w", err)
		}
		return report(st, false)
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset every round for a user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := flowClient(flowUser)
		if err != nil {
			return err
		}
		st, err := c.Reset(cmdContext(cmd))
		if err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		return report(st, false)
	},
}

var startCmd = &cobra.Command{
	Use:               "start <round>",
	Short:             "Start a round for a user",
	Long:              "Mark <round> in progress. The backend refuses rounds whose predecessors are not completed.",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeRound,
	RunE: func(cmd *cobra.Command, args []string) error {
		round, err := model.ParseRoundKey(args[0])
		if err != nil {
			return err
		}
		c, err := flowClient(flowUser)
		if err != nil {
			return err
		}
		st, err := c.Start(cmdContext(cmd), round)
		if err != nil {
			return fmt.Errorf("start %s: %w", round, err)
		}
		return report(st, false)
	},
}

var completeCmd = &cobra.Command{
	Use:               "complete <round>",
	Short:             "Complete a started round for a user",
	Long:              "Mark <round> completed. Completing hr closes the cycle and resets every round.",
	Args:              cobra.ExactArgs(1),
	ValidArgsFunction: completeRound,
	RunE: func(cmd *cobra.Command, args []string) error {
		round, err := model.ParseRoundKey(args[0])
		if err != nil {
			return err
		}
		c, err := flowClient(flowUser)
		if err != nil {
			return err
		}
		upd, err := c.Complete(cmdContext(cmd), round)
		if err != nil {
			return fmt.Errorf("complete %s: %w", round, err)
		}
		return report(upd.Status, upd.FlowReset)
	},
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func init() {
	for _, c := range []*cobra.Command{statusCmd, resetCmd, startCmd, completeCmd} {
		c.Flags().StringVarP(&flowUser, "user", "u", "", "user id sent as the user_id cookie")
		rootCmd.AddCommand(c)
	}
}
