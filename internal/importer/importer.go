// Package importer adds external files to entries as attachments and
// starts saving the database.
package importer

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/dmitrijs2005/gophvault/internal/notify"
	"github.com/dmitrijs2005/gophvault/internal/saving"
)

// ConfirmFunc asks whether the existing attachment may be replaced.
type ConfirmFunc func(ctx context.Context, existingName string) (bool, error)

// Outcome is what an import did to the entry.
type Outcome int

const (
	ResultAdded Outcome = iota
	ResultDeclined
)

func (o Outcome) String() string {
	if o == ResultDeclined {
		return "declined"
	}
	return "added"
}

// Result describes a finished import.
type Result struct {
	Outcome Outcome
	Name    string
	Index   int
	// Session is the save started for the import; nil when declined.
	Session *saving.Session
}

// Database is what the importer needs from the vault.
type Database interface {
	saving.Target
	View(id string, fn func(*models.Entry) error) error
	MakeAttachment(name string, data []byte) (*models.Attachment, error)
	AddAttachment(id string, att *models.Attachment, allowReplace bool) (int, error)
	Changes() *notify.EntryChanges
}

// Saver starts saves and manages observers.
type Saver interface {
	AddObserver(o saving.Observer)
	RemoveObserver(o saving.Observer)
	StartSaving(ctx context.Context, target saving.Target) (*saving.Session, error)
}

type Importer struct {
	db       Database
	saver    Saver
	acquirer Acquirer
	logger   logging.Logger
}

func New(db Database, saver Saver, acquirer Acquirer, logger logging.Logger) *Importer {
	return &Importer{
		db:       db,
		saver:    saver,
		acquirer: acquirer,
		logger:   logger.With("module", "importer"),
	}
}

// Import reads locator and adds it to the entry. See ImportBytes.
func (im *Importer) Import(ctx context.Context, entryID, locator string, confirm ConfirmFunc) (Result, error) {
	im.logger.Debug(ctx, "loading file", "locator", locator)
	data, err := im.acquirer.Acquire(ctx, locator)
	if err != nil {
		im.logger.Error(ctx, "failed to load file", "locator", locator, "err", err)
		return Result{}, &common.AcquisitionError{Locator: locator, Err: err}
	}
	return im.ImportBytes(ctx, entryID, NameFromLocator(locator), data, confirm)
}

// ImportBytes adds data as attachment name to the entry and starts a save.
//
// When the database holds one attachment per entry and the entry already
// has one, confirm decides whether it is replaced; a nil confirm declines.
// A declined import leaves the entry untouched.
//
// If the save cannot be started the attachment stays added and the error
// is returned together with the result.
func (im *Importer) ImportBytes(ctx context.Context, entryID, name string, data []byte, confirm ConfirmFunc) (Result, error) {
	var (
		needsConfirm bool
		existing     string
	)
	err := im.db.View(entryID, func(e *models.Entry) error {
		if _, err := models.NormalizeName(name); err != nil {
			return err
		}
		needsConfirm = e.NeedsReplaceConfirmation()
		if needsConfirm {
			existing = e.Attachments.Names()[0]
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if needsConfirm {
		ok := false
		if confirm != nil {
			if ok, err = confirm(ctx, existing); err != nil {
				return Result{}, err
			}
		}
		if !ok {
			im.logger.Info(ctx, "replacement declined", "entry", entryID, "existing", existing)
			return Result{Outcome: ResultDeclined, Name: name}, nil
		}
	}

	att, err := im.db.MakeAttachment(name, data)
	if err != nil {
		return Result{}, err
	}
	idx, err := im.db.AddAttachment(entryID, att, needsConfirm)
	if err != nil {
		return Result{}, err
	}
	res := Result{Outcome: ResultAdded, Name: att.Name, Index: idx}
	im.logger.Info(ctx, "attachment added", "entry", entryID, "name", att.Name, "index", idx)

	w := &saveWatcher{im: im, entryID: entryID, ref: im.db.Ref()}
	im.saver.AddObserver(w)
	w.begin()
	s, err := im.saver.StartSaving(ctx, im.db)
	if err != nil {
		w.abort()
		return res, err
	}
	w.started()
	res.Session = s
	return res, nil
}

// saveWatcher follows the one save started by an import and unsubscribes
// itself when that save ends.
type saveWatcher struct {
	saving.NopObserver

	im      *Importer
	entryID string
	ref     models.URLReference

	mu       sync.Mutex
	starting bool
	armed    bool
	finished bool
}

func (w *saveWatcher) begin() {
	w.mu.Lock()
	w.starting = true
	w.mu.Unlock()
}

func (w *saveWatcher) started() {
	w.mu.Lock()
	w.starting = false
	w.mu.Unlock()
}

func (w *saveWatcher) abort() {
	w.mu.Lock()
	w.starting, w.armed, w.finished = false, false, true
	w.mu.Unlock()
	w.im.saver.RemoveObserver(w)
}

func (w *saveWatcher) WillSaveDatabase(ref models.URLReference) {
	if ref != w.ref {
		return
	}
	w.mu.Lock()
	if w.starting && !w.finished {
		w.armed = true
	}
	w.mu.Unlock()
}

// claim returns true exactly once, for the terminal event of the watched save.
func (w *saveWatcher) claim(ref models.URLReference) bool {
	if ref != w.ref {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.armed || w.finished {
		return false
	}
	w.finished = true
	return true
}

func (w *saveWatcher) DidSaveDatabase(ref models.URLReference) {
	if !w.claim(ref) {
		return
	}
	w.im.saver.RemoveObserver(w)
	w.im.db.Changes().Post(notify.EntryChange{EntryID: w.entryID, Reason: notify.ReasonEntrySaved})
}

func (w *saveWatcher) DatabaseSaveCancelled(ref models.URLReference) {
	if !w.claim(ref) {
		return
	}
	w.im.saver.RemoveObserver(w)
	w.im.logger.Info(context.Background(), "import save cancelled", "entry", w.entryID)
}

func (w *saveWatcher) SavingError(ref models.URLReference, err *common.PersistenceError) {
	if !w.claim(ref) {
		return
	}
	w.im.saver.RemoveObserver(w)
	w.im.logger.Error(context.Background(), "import save failed", "entry", w.entryID, "err", err)
}
