package session

import (
	"errors"

	"github.com/enftaurus/vidyamitra/pkg/model"
)

// Cause names what triggered a warning or a termination.
type Cause string

const (
	CauseTabSwitch Cause = "tab_switch"
	CausePresence  Cause = "presence"
)

// RedirectHub is the navigation target after a termination.
const RedirectHub = "hub"

// Warning is a non-terminal violation surfaced to the user.
type Warning struct {
	Cause   Cause  `json:"cause"`
	Count   int    `json:"count"`
	Max     int    `json:"max"`
	Message string `json:"message"`
}

// Termination is emitted exactly once per terminated session.
type Termination struct {
	Cause    Cause  `json:"cause"`
	Message  string `json:"message"`
	Redirect string `json:"redirect"`
	// ActionErr is the best-effort ledger action's failure, if any.
	ActionErr error `json:"-"`
}

// Listener receives everything a round view needs to render. Callbacks run
// on the goroutine that caused them and must not block for long.
type Listener interface {
	OnStateChange(State)
	OnWarning(Warning)
	OnTerminated(Termination)
	OnBlocked(next model.RoundKey, err error)
	OnNotice(err error)
}

// ListenerFuncs adapts optional functions to a Listener.
type ListenerFuncs struct {
	StateChange func(State)
	Warning     func(Warning)
	Terminated  func(Termination)
	Blocked     func(next model.RoundKey, err error)
	Notice      func(err error)
}

func (f ListenerFuncs) OnStateChange(s State) {
	if f.StateChange != nil {
		f.StateChange(s)
	}
}

func (f ListenerFuncs) OnWarning(w Warning) {
	if f.Warning != nil {
		f.Warning(w)
	}
}

func (f ListenerFuncs) OnTerminated(t Termination) {
	if f.Terminated != nil {
		f.Terminated(t)
	}
}

func (f ListenerFuncs) OnBlocked(next model.RoundKey, err error) {
	if f.Blocked != nil {
		f.Blocked(next, err)
	}
}

func (f ListenerFuncs) OnNotice(err error) {
	if f.Notice != nil {
		f.Notice(err)
	}
}

// Notifier forwards session events to external systems. *webhook.Client
// satisfies it.
type Notifier interface {
	SendSessionWarned(sessionID, userID, round, cause string, count int, message string) error
	SendSessionTerminated(sessionID, userID, round, cause, message string, resetErr error) error
}

// Notifiers fans events out to every notifier and joins their errors.
type Notifiers []Notifier

func (ns Notifiers) SendSessionWarned(sessionID, userID, round, cause string, count int, message string) error {
	var errs []error
	for _, n := range ns {
		errs = append(errs, n.SendSessionWarned(sessionID, userID, round, cause, count, message))
	}
	return errors.Join(errs...)
}

func (ns Notifiers) SendSessionTerminated(sessionID, userID, round, cause, message string, resetErr error) error {
	var errs []error
	for _, n := range ns {
		errs = append(errs, n.SendSessionTerminated(sessionID, userID, round, cause, message, resetErr))
	}
	return errors.Join(errs...)
}
