package flowstore

import (
	"context"
	"fmt"

	"github.com/enftaurus/vidyamitra/internal/ledger"
	"github.com/enftaurus/vidyamitra/pkg/model"
)

// userSource lets an in-process ledger use the service directly.
type userSource struct {
	svc    *Service
	userID string
}

// Source returns a ledger.Source bound to userID.
func (s *Service) Source(userID string) ledger.Source {
	return &userSource{svc: s, userID: userID}
}

func (u *userSource) Status(ctx context.Context) (model.StatusMap, error) {
	return u.svc.Status(ctx, u.userID)
}

func (u *userSource) Mark(ctx context.Context, round model.RoundKey, status model.RoundStatus) (ledger.Update, error) {
	switch status {
	case model.StatusInProgress:
		st, err := u.svc.Start(ctx, u.userID, round)
		return ledger.Update{Status: st}, err
	case model.StatusCompleted:
		res, err := u.svc.Complete(ctx, u.userID, round)
		return ledger.Update{Status: res.Status, FlowReset: res.FlowReset}, err
	default:
		return ledger.Update{}, fmt.Errorf("mark %s: cannot set status %q", round, status)
	}
}

func (u *userSource) Reset(ctx context.Context) (model.StatusMap, error) {
	return u.svc.Reset(ctx, u.userID)
}
