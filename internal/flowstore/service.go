package flowstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/enftaurus/vidyamitra/pkg/errclass"
	"github.com/enftaurus/vidyamitra/pkg/logging"
	"github.com/enftaurus/vidyamitra/pkg/model"
)

// Result is the outcome of a completion.
type Result struct {
	Status model.StatusMap `json:"status"`
	// FlowReset is true when completing the final round closed the cycle and
	// cleared every round.
	FlowReset bool `json:"flow_reset,omitempty"`
}

// Service applies the gating rules on top of a Store. Writes for the same
// user are serialized so read-modify-write cycles do not interleave.
type Service struct {
	store Store
	log   *logging.Logger

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	onReset func(userID, reason string)
}

// Reset reasons passed to the reset hook.
const (
	ReasonRequested   = "reset requested"
	ReasonCycleClosed = "interview cycle closed"
)

// OnReset registers fn to run after every successful reset, including the
// one that closes a cycle. It must be set before the service is shared.
func (s *Service) OnReset(fn func(userID, reason string)) {
	s.onReset = fn
}

func (s *Service) resetDone(userID, reason string) {
	if s.onReset != nil {
		s.onReset(userID, reason)
	}
}

// NewService wraps store.
func NewService(store Store, log *logging.Logger) *Service {
	if log == nil {
		log = logging.Global()
	}
	return &Service{
		store: store,
		log:   log.WithFields(map[string]any{"component": "flow"}),
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *Service) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// Status returns the user's current status.
func (s *Service) Status(ctx context.Context, userID string) (model.StatusMap, error) {
	st, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("read round flow: %w", errclass.ErrStatusUnavailable.WithMessage(err.Error()))
	}
	return st, nil
}

// Reset clears every round for the user.
func (s *Service) Reset(ctx context.Context, userID string) (model.StatusMap, error) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	st := model.DefaultStatus()
	if err := s.store.Save(ctx, userID, st); err != nil {
		return nil, fmt.Errorf("reset round flow: %w", errclass.ErrResetFailed.WithMessage(err.Error()))
	}
	s.log.Info("round flow reset", map[string]any{"user_id": userID})
	s.resetDone(userID, ReasonRequested)
	return st, nil
}

// Start marks round in progress. Every earlier round must be completed and
// the round itself must not be.
func (s *Service) Start(ctx context.Context, userID string, round model.RoundKey) (model.StatusMap, error) {
	if !round.Valid() {
		return nil, errclass.ErrRoundInvalid.WithMessage("Invalid round")
	}
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	st, err := s.Status(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, required := range round.Before() {
		if st.Get(required) != model.StatusCompleted {
			return nil, errclass.ErrRoundLocked.WithMessagef("Complete %s round first.", required)
		}
	}
	if st.Get(round) == model.StatusCompleted {
		return nil, errclass.ErrRoundCompleted.WithMessagef("%s round already completed.", round.Title())
	}

	st[round] = model.StatusInProgress
	if err := s.save(ctx, userID, st); err != nil {
		return nil, err
	}
	return st, nil
}

// EnsureAnswerAllowed fails unless round has been started.
func (s *Service) EnsureAnswerAllowed(ctx context.Context, userID string, round model.RoundKey) (model.StatusMap, error) {
	if !round.Valid() {
		return nil, errclass.ErrRoundInvalid.WithMessage("Invalid round")
	}
	st, err := s.Status(ctx, userID)
	if err != nil {
		return nil, err
	}
	switch st.Get(round) {
	case model.StatusInProgress, model.StatusCompleted:
		return st, nil
	default:
		return nil, errclass.ErrRoundNotStarted.WithMessagef("Start %s round first.", round)
	}
}

// Complete marks a started round completed. Completing the final round
// closes the cycle: every round is reset and FlowReset is reported.
func (s *Service) Complete(ctx context.Context, userID string, round model.RoundKey) (Result, error) {
	if !round.Valid() {
		return Result{}, errclass.ErrRoundInvalid.WithMessage("Invalid round")
	}
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	// Checked under the lock so a concurrent Reset cannot slip in between.
	st, err := s.EnsureAnswerAllowed(ctx, userID, round)
	if err != nil {
		return Result{}, err
	}

	last := model.RoundOrder[len(model.RoundOrder)-1]
	if round == last {
		st = model.DefaultStatus()
		if err := s.save(ctx, userID, st); err != nil {
			return Result{}, err
		}
		s.log.Info("interview cycle closed", map[string]any{"user_id": userID})
		s.resetDone(userID, ReasonCycleClosed)
		return Result{Status: st, FlowReset: true}, nil
	}

	st[round] = model.StatusCompleted
	if err := s.save(ctx, userID, st); err != nil {
		return Result{}, err
	}
	return Result{Status: st}, nil
}

func (s *Service) save(ctx context.Context, userID string, st model.StatusMap) error {
	if err := s.store.Save(ctx, userID, st); err != nil {
		return fmt.Errorf("save round flow: %w", errclass.ErrStatusUnavailable.WithMessage(err.Error()))
	}
	return nil
}
