// Package progress provides ProgressEx, the cancellable progress object shared
// between a running save and the parties watching it.
package progress

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
)

// ErrCancelled is returned by operations that stopped because cancellation
// was requested through a ProgressEx.
var ErrCancelled = errors.New("operation cancelled")

// Snapshot is a point-in-time copy of a ProgressEx.
type Snapshot struct {
	Fraction  float64
	Status    string
	Cancelled bool
}

// ProgressEx tracks the completion of one operation. The operation writes
// the fraction; observers read it and may request cancellation. All methods
// are safe for concurrent use.
type ProgressEx struct {
	fraction  atomic.Uint64
	cancelled atomic.Bool

	mu       sync.Mutex
	status   string
	onChange func(Snapshot)
	onCancel func()
}

// New returns a ProgressEx at zero.
func New() *ProgressEx {
	return &ProgressEx{}
}

// Fraction returns the completed share in [0,1].
func (p *ProgressEx) Fraction() float64 {
	return math.Float64frombits(p.fraction.Load())
}

// Status returns the last status text.
func (p *ProgressEx) Status() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Snapshot returns the current state.
func (p *ProgressEx) Snapshot() Snapshot {
	return Snapshot{Fraction: p.Fraction(), Status: p.Status(), Cancelled: p.IsCancelled()}
}

// SetFraction stores f clamped to [0,1] and notifies the change handler.
func (p *ProgressEx) SetFraction(f float64) {
	p.set(f, nil)
}

// Update stores both fraction and status text.
func (p *ProgressEx) Update(f float64, status string) {
	p.set(f, &status)
}

// Step sets the fraction to done/total. A zero total counts as complete.
func (p *ProgressEx) Step(done, total int, status string) {
	if total <= 0 {
		p.Update(1, status)
		return
	}
	p.Update(float64(done)/float64(total), status)
}

func (p *ProgressEx) set(f float64, status *string) {
	switch {
	case math.IsNaN(f) || f < 0:
		f = 0
	case f > 1:
		f = 1
	}
	p.fraction.Store(math.Float64bits(f))

	p.mu.Lock()
	if status != nil {
		p.status = *status
	}
	fn := p.onChange
	p.mu.Unlock()

	if fn != nil {
		fn(p.Snapshot())
	}
}

// Cancel requests cooperative cancellation. It may be called any number of
// times from any goroutine; only the first call has an effect.
func (p *ProgressEx) Cancel() {
	if !p.cancelled.CompareAndSwap(false, true) {
		return
	}
	p.mu.Lock()
	fn := p.onCancel
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// IsCancelled reports whether cancellation was requested.
func (p *ProgressEx) IsCancelled() bool {
	return p.cancelled.Load()
}

// CheckCancelled returns ErrCancelled once cancellation was requested.
// Long-running operations call it between units of work.
func (p *ProgressEx) CheckCancelled() error {
	if p.IsCancelled() {
		return ErrCancelled
	}
	return nil
}

// OnChange installs the handler called after every fraction update.
func (p *ProgressEx) OnChange(fn func(Snapshot)) {
	p.mu.Lock()
	p.onChange = fn
	p.mu.Unlock()
}

// OnCancel installs the handler called once when Cancel is first requested.
// If cancellation already happened, fn runs immediately.
func (p *ProgressEx) OnCancel(fn func()) {
	p.mu.Lock()
	p.onCancel = fn
	p.mu.Unlock()
	if fn != nil && p.IsCancelled() {
		fn()
	}
}
