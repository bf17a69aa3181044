// Package vault is the database engine behind gophvault. A Database owns
// the decrypted entries of one vault file while it is unlocked, applies
// attachment mutations and writes dirty entries back on Save.
//
// Database implements saving.Target; start saves through a
// saving.Orchestrator instead of calling Save directly.
package vault

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/backup"
	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/compressx"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/dbx"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/dmitrijs2005/gophvault/internal/notify"
	"github.com/dmitrijs2005/gophvault/internal/repositories/entries"
	"github.com/dmitrijs2005/gophvault/internal/repositories/history"
	"github.com/dmitrijs2005/gophvault/internal/repositories/metadata"
	"github.com/dmitrijs2005/gophvault/internal/storage"
)

// Backuper takes a copy of the database before it is written.
type Backuper interface {
	Take(ctx context.Context, src backup.Source) (string, error)
}

// Options tune a Database.
type Options struct {
	// HistoryLimit caps snapshots per entry; zero keeps all of them.
	HistoryLimit int
	// CompressAttachments makes MakeAttachment gzip new payloads.
	CompressAttachments bool
	// Backup, when set, runs before each save.
	Backup Backuper
	// Changes receives entry change notifications. A private broadcaster
	// is used when nil.
	Changes *notify.EntryChanges
}

// Summary describes an entry for listings.
type Summary struct {
	ID          string
	Title       string
	Attachments int
	History     int
	Modified    time.Time
	Dirty       bool
}

// Database is an open vault.
type Database struct {
	store   *storage.DB
	logger  logging.Logger
	opts    Options
	changes *notify.EntryChanges

	mu      sync.Mutex
	key     []byte
	format  models.Format
	entries map[string]*models.Entry
	// deleted holds removed entries until the next save.
	deleted map[string]uint64
}

// Open opens the vault database without unlocking it.
func Open(ctx context.Context, driver, dsn string, opts Options, logger logging.Logger) (*Database, error) {
	st, err := storage.Open(ctx, driver, dsn)
	if err != nil {
		return nil, err
	}
	return New(st, opts, logger), nil
}

// New wraps an already opened store.
func New(st *storage.DB, opts Options, logger logging.Logger) *Database {
	changes := opts.Changes
	if changes == nil {
		changes = notify.NewEntryChanges()
	}
	return &Database{
		store:   st,
		logger:  logger.With("module", "vault"),
		opts:    opts,
		changes: changes,
	}
}

// Ref names the database for the save orchestrator.
func (d *Database) Ref() models.URLReference {
	return models.URLReference{Location: d.store.Location}
}

// Changes returns the entry change broadcaster.
func (d *Database) Changes() *notify.EntryChanges { return d.changes }

// Format returns the layout of the unlocked vault.
func (d *Database) Format() models.Format {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.format
}

func (d *Database) metadataRepo(db dbx.DBTX) metadata.Repository {
	return metadata.NewSQLRepository(db, d.store.Dialect)
}

func (d *Database) entriesRepo(db dbx.DBTX) entries.Repository {
	return entries.NewSQLRepository(db, d.store.Dialect)
}

func (d *Database) historyRepo(db dbx.DBTX) history.Repository {
	return history.NewSQLRepository(db, d.store.Dialect)
}

// IsInitialized reports whether Create has been run on this database.
func (d *Database) IsInitialized(ctx context.Context) (bool, error) {
	salt, err := d.metadataRepo(d.store.Conn).Get(ctx, keySalt)
	if err != nil {
		return false, err
	}
	return salt != nil, nil
}

// Create initializes an empty vault protected by password and leaves it
// unlocked.
func (d *Database) Create(ctx context.Context, password []byte, format models.Format) error {
	ok, err := d.IsInitialized(ctx)
	if err != nil {
		return err
	}
	if ok {
		return ErrAlreadyInitialized
	}

	salt := common.GenerateRandByteArray(32)
	key := cryptox.DeriveMasterKey(password, salt)
	verifier := cryptox.MakeVerifier(key)

	err = dbx.WithTx(ctx, d.store.Conn, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := d.metadataRepo(tx)
		if err := repo.Set(ctx, keySalt, salt); err != nil {
			return err
		}
		if err := repo.Set(ctx, keyVerifier, verifier); err != nil {
			return err
		}
		return repo.Set(ctx, keyFormat, []byte(format))
	})
	if err != nil {
		return fmt.Errorf("create vault: %w", err)
	}

	d.mu.Lock()
	d.key = key
	d.format = format
	d.entries = make(map[string]*models.Entry)
	d.deleted = make(map[string]uint64)
	d.mu.Unlock()

	d.logger.Info(ctx, "vault created", "target", d.store.Location, "format", format)
	return nil
}

// Unlock derives the master key from password, checks it against the
// stored verifier and loads every entry with its history.
func (d *Database) Unlock(ctx context.Context, password []byte) error {
	meta, err := d.metadataRepo(d.store.Conn).GetMany(ctx, keySalt, keyVerifier, keyFormat)
	if err != nil {
		return err
	}
	salt, verifier := meta[keySalt], meta[keyVerifier]
	if salt == nil {
		return common.ErrNotInitialized
	}
	format, err := models.ParseFormat(string(meta[keyFormat]))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptMetadata, err)
	}

	key := cryptox.DeriveMasterKey(password, salt)
	if subtle.ConstantTimeCompare(verifier, cryptox.MakeVerifier(key)) == 0 {
		d.logger.Warn(ctx, "unlock rejected", "target", d.store.Location)
		return common.ErrUnauthorized
	}

	loaded, err := d.load(ctx, key, format)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.key = key
	d.format = format
	d.entries = loaded
	d.deleted = make(map[string]uint64)
	d.mu.Unlock()

	d.logger.Info(ctx, "vault unlocked", "target", d.store.Location, "entries", len(loaded))
	return nil
}

func (d *Database) load(ctx context.Context, key []byte, format models.Format) (map[string]*models.Entry, error) {
	rows, err := d.entriesRepo(d.store.Conn).GetAll(ctx)
	if err != nil {
		return nil, err
	}
	hrepo := d.historyRepo(d.store.Conn)

	out := make(map[string]*models.Entry, len(rows))
	for _, row := range rows {
		var p models.Payload
		if err := cryptox.Open(row.Details, row.NonceDetails, key, []byte(row.ID), &p); err != nil {
			return nil, fmt.Errorf("entry %s: %w", row.ID, err)
		}
		e := models.FromPayload(row.ID, p, format, d.opts.HistoryLimit)

		hrows, err := hrepo.ListByEntry(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		snaps := make([]models.Snapshot, 0, len(hrows))
		for _, h := range hrows {
			var s models.Snapshot
			if err := cryptox.Open(h.Payload, h.Nonce, key, historyAAD(row.ID), &s); err != nil {
				return nil, fmt.Errorf("history %s/%d: %w", row.ID, h.Seq, err)
			}
			snaps = append(snaps, s)
		}
		e.SetHistory(snaps)
		e.MarkSaved(e.Revision())
		out[row.ID] = e
	}
	return out, nil
}

// Lock forgets the master key and every decrypted entry. Unsaved changes
// are lost; close the database through the orchestrator to wait for a
// running save first.
func (d *Database) Lock() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.key != nil {
		common.WipeByteArray(d.key)
	}
	d.key = nil
	d.entries = nil
	d.deleted = nil
}

// IsLocked reports whether the vault needs Unlock.
func (d *Database) IsLocked() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.key == nil
}

// IsDirty reports unsaved changes.
func (d *Database) IsDirty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.deleted) > 0 {
		return true
	}
	for _, e := range d.entries {
		if e.IsDirty() {
			return true
		}
	}
	return false
}

// Close locks the vault and closes the underlying store.
func (d *Database) Close(context.Context) error {
	d.Lock()
	return d.store.Close()
}

// Backup writes a consistent copy of the database file to dst.
func (d *Database) Backup(ctx context.Context, dst string) error {
	return d.store.Backup(ctx, dst)
}

// List returns entry summaries sorted by title, then ID.
func (d *Database) List() ([]Summary, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.key == nil {
		return nil, common.ErrVaultLocked
	}

	out := make([]Summary, 0, len(d.entries))
	for _, e := range d.entries {
		out = append(out, Summary{
			ID:          e.ID,
			Title:       e.Title,
			Attachments: e.Attachments.Count(),
			History:     e.HistoryLen(),
			Modified:    e.Modified,
			Dirty:       e.IsDirty(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := strings.ToLower(out[i].Title), strings.ToLower(out[j].Title)
		if ti != tj {
			return ti < tj
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// NewEntry adds an empty entry and returns its ID.
func (d *Database) NewEntry(title string) (string, error) {
	d.mu.Lock()
	if d.key == nil {
		d.mu.Unlock()
		return "", common.ErrVaultLocked
	}
	e := models.NewEntry(title, d.format)
	e.HistoryLimit = d.opts.HistoryLimit
	d.entries[e.ID] = e
	d.mu.Unlock()

	d.changes.Post(notify.EntryChange{EntryID: e.ID, Reason: notify.ReasonEntryCreated})
	return e.ID, nil
}

// DeleteEntry removes an entry; the row is marked deleted on the next save.
func (d *Database) DeleteEntry(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.key == nil {
		return common.ErrVaultLocked
	}
	e, ok := d.entries[id]
	if !ok {
		return common.ErrorNotFound
	}
	delete(d.entries, id)
	d.deleted[id] = e.Revision()
	return nil
}

// View runs fn with the entry while holding the database lock. fn must not
// keep the pointer, mutate the entry or call back into the Database.
func (d *Database) View(id string, fn func(e *models.Entry) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, err := d.lookup(id)
	if err != nil {
		return err
	}
	return fn(e)
}

// Edit runs fn with the entry while holding the database lock. fn may
// mutate the entry but must not call back into the Database.
func (d *Database) Edit(id string, fn func(e *models.Entry) error) error {
	return d.View(id, fn)
}

func (d *Database) lookup(id string) (*models.Entry, error) {
	if d.key == nil {
		return nil, common.ErrVaultLocked
	}
	e, ok := d.entries[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return e, nil
}

// MakeAttachment builds an attachment the way this database stores them,
// compressing data when attachment compression is enabled.
func (d *Database) MakeAttachment(name string, data []byte) (*models.Attachment, error) {
	if !d.opts.CompressAttachments {
		return models.NewAttachment(name, data, false)
	}
	packed, err := compressx.Gzip(data)
	if err != nil {
		return nil, err
	}
	return models.NewAttachment(name, packed, true)
}

// AddAttachment adds att to the entry and announces the change. See
// models.Entry.AddAttachment for the replace rules.
func (d *Database) AddAttachment(id string, att *models.Attachment, allowReplace bool) (int, error) {
	var idx int
	err := d.Edit(id, func(e *models.Entry) error {
		var err error
		idx, err = e.AddAttachment(att, allowReplace)
		return err
	})
	if err != nil {
		return 0, err
	}
	d.changes.Post(notify.EntryChange{EntryID: id, Reason: notify.ReasonAttachmentAdded})
	return idx, nil
}

// RenameAttachment renames the attachment at index and announces the change.
func (d *Database) RenameAttachment(id string, index int, name string) error {
	err := d.Edit(id, func(e *models.Entry) error {
		return e.RenameAttachment(index, name)
	})
	if err != nil {
		return err
	}
	d.changes.Post(notify.EntryChange{EntryID: id, Reason: notify.ReasonAttachmentRenamed})
	return nil
}

// RemoveAttachment removes the attachment at index and announces the change.
func (d *Database) RemoveAttachment(id string, index int) error {
	err := d.Edit(id, func(e *models.Entry) error {
		return e.RemoveAttachment(index)
	})
	if err != nil {
		return err
	}
	d.changes.Post(notify.EntryChange{EntryID: id, Reason: notify.ReasonAttachmentRemoved})
	return nil
}

// Attachment returns a copy of one attachment.
func (d *Database) Attachment(id string, index int) (models.Attachment, error) {
	var att models.Attachment
	err := d.View(id, func(e *models.Entry) error {
		var err error
		att, err = e.Attachments.Get(index)
		return err
	})
	return att, err
}

// HistoryItem returns a read-only copy of snapshot i of the entry.
func (d *Database) HistoryItem(id string, i int) (*models.Entry, error) {
	var item *models.Entry
	err := d.View(id, func(e *models.Entry) error {
		var err error
		item, err = e.HistoryItem(i)
		return err
	})
	return item, err
}

func historyAAD(entryID string) []byte {
	return []byte("history:" + entryID)
}
