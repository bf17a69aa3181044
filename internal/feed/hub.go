package feed

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/dmitrijs2005/gophvault/internal/notify"
	"github.com/dmitrijs2005/gophvault/internal/progress"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// Hub turns save lifecycle and entry change notifications into Events and
// fans them out to subscribers without blocking the publisher.
//
// Progress events are dropped for a subscriber that falls behind; part of
// each queue is kept free for the other kinds. When any other event does
// not fit, the subscriber is disconnected, so a client never sees a save
// start without also seeing how it ended.
//
// Hub implements saving.Observer and saving.CloseObserver.
type Hub struct {
	logger  logging.Logger
	buffer  int
	reserve int
	now     func() time.Time

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscriber
}

type subscriber struct {
	ch   chan Event
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

func NewHub(buffer int, logger logging.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	reserve := max(buffer/4, 1)
	if buffer == 1 {
		reserve = 0
	}
	return &Hub{
		logger:  logger.With("module", "feed"),
		buffer:  buffer,
		reserve: reserve,
		now:     time.Now,
		subs:    make(map[uint64]*subscriber),
	}
}

// Subscribe returns a channel of events and a function that closes it. The
// channel is also closed when the hub disconnects a slow subscriber.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, h.buffer)}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = s
	h.mu.Unlock()

	return s.ch, func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
		s.close()
	}
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publish delivers e to every subscriber without blocking.
func (h *Hub) Publish(e Event) {
	if e.At.IsZero() {
		e.At = h.now()
	}
	ctx := context.Background()

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.subs {
		if e.Kind == KindProgress && len(s.ch) >= cap(s.ch)-h.reserve {
			h.logger.Debug(ctx, "subscriber is slow, progress dropped", "subscriber", id)
			continue
		}
		select {
		case s.ch <- e:
		default:
			h.logger.Warn(ctx, "subscriber is too slow, disconnecting", "subscriber", id, "kind", e.Kind)
			delete(h.subs, id)
			s.close()
		}
	}
}

// Follow publishes every entry change posted to changes until the returned
// function is called.
func (h *Hub) Follow(changes *notify.EntryChanges) (unsubscribe func()) {
	return changes.Subscribe(func(c notify.EntryChange) {
		h.Publish(Event{Kind: KindEntryChanged, EntryID: c.EntryID, Reason: string(c.Reason), At: c.At})
	})
}

func (h *Hub) WillSaveDatabase(ref models.URLReference) {
	h.Publish(Event{Kind: KindWillSave, Target: ref.Location})
}

func (h *Hub) ProgressDidChange(ref models.URLReference, p progress.Snapshot) {
	h.Publish(Event{Kind: KindProgress, Target: ref.Location, Fraction: p.Fraction, Status: p.Status})
}

func (h *Hub) DidSaveDatabase(ref models.URLReference) {
	h.Publish(Event{Kind: KindDidSave, Target: ref.Location})
}

func (h *Hub) DatabaseSaveCancelled(ref models.URLReference) {
	h.Publish(Event{Kind: KindCancelled, Target: ref.Location})
}

func (h *Hub) SavingError(ref models.URLReference, err *common.PersistenceError) {
	e := Event{Kind: KindSavingError, Target: ref.Location}
	if err != nil {
		e.Message = err.Error()
	}
	h.Publish(e)
}

func (h *Hub) WillCloseDatabase(ref models.URLReference) {
	h.Publish(Event{Kind: KindWillClose, Target: ref.Location})
}

func (h *Hub) DidCloseDatabase(ref models.URLReference) {
	h.Publish(Event{Kind: KindDidClose, Target: ref.Location})
}
