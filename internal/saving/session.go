package saving

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/dmitrijs2005/gophvault/internal/progress"
)

// State is the lifecycle state of a save session.
type State int

const (
	StateSaving State = iota
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateSaving:
		return "saving"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends a session.
func (s State) Terminal() bool { return s != StateSaving }

// Session is one run of a database save.
type Session struct {
	target   models.URLReference
	progress *progress.ProgressEx
	done     chan struct{}

	// deliver serializes event delivery for this session.
	deliver    sync.Mutex
	terminated bool

	mu    sync.Mutex
	state State
	err   *common.PersistenceError
}

func newSession(target models.URLReference) *Session {
	return &Session{
		target:   target,
		progress: progress.New(),
		done:     make(chan struct{}),
	}
}

// Target returns the database being saved.
func (s *Session) Target() models.URLReference { return s.target }

// Progress returns the session's progress object. Observers may read it and
// call Cancel on it.
func (s *Session) Progress() *progress.ProgressEx { return s.progress }

// Cancel requests cooperative cancellation of the save.
func (s *Session) Cancel() { s.progress.Cancel() }

// Done is closed once the terminal event has been delivered and the target
// is idle again.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Wait blocks until the session ends or ctx is done. It returns
// progress.ErrCancelled for a cancelled save and the *PersistenceError for a
// failed one.
func (s *Session) Wait(ctx context.Context) (State, error) {
	select {
	case <-s.done:
	case <-ctx.Done():
		return s.State(), ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateCancelled:
		return s.state, progress.ErrCancelled
	case StateFailed:
		return s.state, s.err
	default:
		return s.state, nil
	}
}
