package ledger

import (
	"context"
	"sync"

	"github.com/enftaurus/vidyamitra/pkg/model"
)

// MemorySource keeps one user's status in process. It accepts every write,
// including a redo of a completed round.
type MemorySource struct {
	mu     sync.Mutex
	status model.StatusMap
	// ResetOnFinal closes the cycle when the last round completes, the way
	// the backend does.
	ResetOnFinal bool
}

// NewMemorySource returns a source with every round not_started.
func NewMemorySource() *MemorySource {
	return &MemorySource{status: model.DefaultStatus()}
}

func (m *MemorySource) Status(ctx context.Context) (model.StatusMap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status.Normalize(), nil
}

func (m *MemorySource) Mark(ctx context.Context, round model.RoundKey, status model.RoundStatus) (Update, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == nil {
		m.status = model.DefaultStatus()
	}
	m.status[round] = status
	if m.ResetOnFinal && round == model.RoundHR && status == model.StatusCompleted {
		m.status = model.DefaultStatus()
		return Update{Status: m.status.Clone(), FlowReset: true}, nil
	}
	return Update{Status: m.status.Clone()}, nil
}

func (m *MemorySource) Reset(ctx context.Context) (model.StatusMap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = model.DefaultStatus()
	return m.status.Clone(), nil
}

// Set replaces the stored status.
func (m *MemorySource) Set(status model.StatusMap) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status.Normalize()
}
