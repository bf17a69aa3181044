// Package notify broadcasts entry change notifications to any number of
// independent listeners.
package notify

import (
	"sync"
	"time"
)

// Reason tells listeners what kind of change happened.
type Reason string

const (
	ReasonAttachmentAdded   Reason = "attachment_added"
	ReasonAttachmentRenamed Reason = "attachment_renamed"
	ReasonAttachmentRemoved Reason = "attachment_removed"
	ReasonEntryCreated      Reason = "entry_created"
	ReasonEntrySaved        Reason = "entry_saved"
)

// EntryChange identifies an entry that was modified.
type EntryChange struct {
	EntryID string
	Reason  Reason
	At      time.Time
}

// Listener handles one change.
type Listener func(EntryChange)

// EntryChanges is a fan-out of EntryChange values. The zero value is ready
// to use.
type EntryChanges struct {
	mu        sync.Mutex
	nextID    uint64
	listeners map[uint64]Listener
	order     []uint64
}

// NewEntryChanges returns an empty broadcaster.
func NewEntryChanges() *EntryChanges {
	return &EntryChanges{}
}

// Subscribe registers fn and returns a function that removes it. Calling the
// returned function more than once is harmless.
func (n *EntryChanges) Subscribe(fn Listener) (unsubscribe func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.listeners == nil {
		n.listeners = make(map[uint64]Listener)
	}
	n.nextID++
	id := n.nextID
	n.listeners[id] = fn
	n.order = append(n.order, id)

	var once sync.Once
	return func() {
		once.Do(func() { n.remove(id) })
	}
}

func (n *EntryChanges) remove(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.listeners, id)
	for i, x := range n.order {
		if x == id {
			n.order = append(n.order[:i:i], n.order[i+1:]...)
			break
		}
	}
}

// Post delivers c to every current listener in subscription order. Listeners
// may subscribe or unsubscribe from inside their callback.
func (n *EntryChanges) Post(c EntryChange) {
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}

	n.mu.Lock()
	snapshot := make([]Listener, 0, len(n.order))
	for _, id := range n.order {
		snapshot = append(snapshot, n.listeners[id])
	}
	n.mu.Unlock()

	for _, fn := range snapshot {
		fn(c)
	}
}

// Len returns the number of listeners.
func (n *EntryChanges) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.order)
}
