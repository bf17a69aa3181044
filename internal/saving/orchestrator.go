// Package saving coordinates database saves. An Orchestrator allows at most
// one save per database at a time and broadcasts the lifecycle of every save
// to its observers.
package saving

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/dmitrijs2005/gophvault/internal/progress"
)

// ErrClosed is returned by StartSaving after Close.
var ErrClosed = errors.New("save orchestrator is closed")

const savingErrorMessage = "Cannot save database"

// Target is a database that can be saved.
//
// Save writes the database and reports progress into p. It must poll
// p.CheckCancelled (or ctx) between units of work and return
// progress.ErrCancelled once cancellation is observed.
type Target interface {
	Ref() models.URLReference
	Save(ctx context.Context, p *progress.ProgressEx) error
}

// Orchestrator serializes saves per target and fans out lifecycle events.
// Create one per process and share it.
type Orchestrator struct {
	logger logging.Logger

	mu        sync.Mutex
	observers []Observer
	sessions  map[string]*Session
	closed    bool
	wg        sync.WaitGroup
}

// NewOrchestrator returns an idle orchestrator.
func NewOrchestrator(logger logging.Logger) *Orchestrator {
	return &Orchestrator{
		logger:   logger.With("module", "saving"),
		sessions: make(map[string]*Session),
	}
}

// AddObserver subscribes o. Adding an already subscribed observer is a no-op.
func (o *Orchestrator) AddObserver(obs Observer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, x := range o.observers {
		if x == obs {
			return
		}
	}
	o.observers = append(o.observers, obs)
}

// RemoveObserver unsubscribes o. Removing an absent observer is a no-op.
// It is safe to call from inside an observer callback.
func (o *Orchestrator) RemoveObserver(obs Observer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, x := range o.observers {
		if x == obs {
			o.observers = append(o.observers[:i:i], o.observers[i+1:]...)
			return
		}
	}
}

func (o *Orchestrator) snapshotObservers() []Observer {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Observer, len(o.observers))
	copy(out, o.observers)
	return out
}

// IsSaving reports whether a save of ref is in flight.
func (o *Orchestrator) IsSaving(ref models.URLReference) bool {
	_, ok := o.Session(ref)
	return ok
}

// Session returns the in-flight session for ref, if any.
func (o *Orchestrator) Session(ref models.URLReference) (*Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[ref.Location]
	return s, ok
}

// StartSaving begins saving target in the background.
//
// WillSaveDatabase is delivered before StartSaving returns. If a save of the
// same target is already running the call fails with
// common.ErrConcurrentSaveRejected and the running save is not affected.
//
// The save runs detached from ctx cancellation; use Session.Cancel to stop
// it. Values carried by ctx are preserved.
func (o *Orchestrator) StartSaving(ctx context.Context, target Target) (*Session, error) {
	ref := target.Ref()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}
	if _, busy := o.sessions[ref.Location]; busy {
		o.mu.Unlock()
		o.logger.Warn(ctx, "save rejected, another save is in progress", "target", ref.Location)
		return nil, common.ErrConcurrentSaveRejected
	}
	s := newSession(ref)
	o.sessions[ref.Location] = s
	o.wg.Add(1)
	o.mu.Unlock()

	sctx, cancel := context.WithCancel(logging.ContextWith(context.WithoutCancel(ctx), "save_target", ref.Location))
	s.progress.OnCancel(cancel)
	s.progress.OnChange(func(p progress.Snapshot) { o.deliverProgress(s, p) })

	o.logger.Info(ctx, "save started", "target", ref.Location)

	s.deliver.Lock()
	for _, obs := range o.snapshotObservers() {
		obs.WillSaveDatabase(ref)
	}
	s.deliver.Unlock()

	go func() {
		defer o.wg.Done()
		defer cancel()
		err := runSave(sctx, target, s.progress)
		o.finish(sctx, s, err)
	}()

	return s, nil
}

func runSave(ctx context.Context, target Target, p *progress.ProgressEx) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("save panicked: %v", r)
		}
	}()
	return target.Save(ctx, p)
}

func (o *Orchestrator) deliverProgress(s *Session, p progress.Snapshot) {
	s.deliver.Lock()
	defer s.deliver.Unlock()
	if s.terminated {
		return
	}
	for _, obs := range o.snapshotObservers() {
		obs.ProgressDidChange(s.target, p)
	}
}

func (o *Orchestrator) finish(ctx context.Context, s *Session, err error) {
	ref := s.target

	var (
		state State
		perr  *common.PersistenceError
	)
	switch {
	case err == nil:
		state = StateCompleted
	case errors.Is(err, progress.ErrCancelled), errors.Is(err, context.Canceled):
		state = StateCancelled
	default:
		state = StateFailed
		perr = common.NewPersistenceError(savingErrorMessage, err)
	}

	s.deliver.Lock()
	s.terminated = true
	s.mu.Lock()
	s.state, s.err = state, perr
	s.mu.Unlock()

	for _, obs := range o.snapshotObservers() {
		switch state {
		case StateCompleted:
			obs.DidSaveDatabase(ref)
		case StateCancelled:
			obs.DatabaseSaveCancelled(ref)
		case StateFailed:
			obs.SavingError(ref, perr)
		}
	}
	s.deliver.Unlock()

	switch state {
	case StateCompleted:
		o.logger.Info(ctx, "save finished")
	case StateCancelled:
		o.logger.Info(ctx, "save cancelled")
	default:
		o.logger.Error(ctx, "save failed", "err", err)
	}

	o.mu.Lock()
	delete(o.sessions, ref.Location)
	o.mu.Unlock()
	close(s.done)
}

// CloseDatabase closes the database at ref. It waits for a running save of
// ref, then notifies CloseObservers around closeFn.
func (o *Orchestrator) CloseDatabase(ctx context.Context, ref models.URLReference, closeFn func(context.Context) error) error {
	if s, ok := o.Session(ref); ok {
		select {
		case <-s.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	observers := o.snapshotObservers()
	for _, obs := range observers {
		if co, ok := obs.(CloseObserver); ok {
			co.WillCloseDatabase(ref)
		}
	}

	if closeFn != nil {
		if err := closeFn(ctx); err != nil {
			o.logger.Error(ctx, "close database failed", "target", ref.Location, "err", err)
			return err
		}
	}

	for _, obs := range o.snapshotObservers() {
		if co, ok := obs.(CloseObserver); ok {
			co.DidCloseDatabase(ref)
		}
	}
	o.logger.Info(ctx, "database closed", "target", ref.Location)
	return nil
}

// Close rejects new saves and waits for running ones to finish or for ctx
// to expire.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
