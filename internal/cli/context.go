package cli

import (
	"fmt"
	"os"

	"github.com/enftaurus/vidyamitra/internal/flowclient"
	"github.com/enftaurus/vidyamitra/pkg/color"
	"github.com/enftaurus/vidyamitra/pkg/model"
)

// flowClient returns a backend client acting as userID.
func flowClient(userID string) (*flowclient.Client, error) {
	if userID == "" {
		return nil, fmt.Errorf("--user is required")
	}
	return flowclient.New(cfg.Backend.BaseURL, userID, cfg.Backend.Timeout), nil
}

// printStatus renders a status map with the gating decision for each round.
func printStatus(st model.StatusMap) {
	next := model.NextAllowedRound(st)
	fmt.Println(color.Header("Round       Status        Access"))
	for _, r := range model.RoundOrder {
		marker := " "
		if r == next && !model.AllCompleted(st) {
			marker = color.Info(">")
		}
		fmt.Printf("%s %-10s %-22s %s\n", marker, r.Title(), color.Status(st.Get(r)), color.Locked(model.IsLocked(st, r)))
	}
	if model.AllCompleted(st) {
		fmt.Println(color.Success("Interview cycle complete."))
	} else {
		fmt.Printf("Next allowed round: %s\n", color.Info(next.Title()))
	}
}

func fmtErr(format string, args ...any) {
	prefix := "vidyamitra: "
	if color.Enabled() {
		prefix = color.Error("vidyamitra:") + " "
	}
	fmt.Fprintf(os.Stderr, prefix+format+"\n", args...)
}
