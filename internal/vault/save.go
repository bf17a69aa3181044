package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/dbx"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/dmitrijs2005/gophvault/internal/progress"
	"github.com/dmitrijs2005/gophvault/internal/storage"
)

// pendingEntry is a copy of a dirty entry taken under the database lock.
type pendingEntry struct {
	id      string
	rev     uint64
	payload models.Payload
	history []models.Snapshot
}

type pendingWork struct {
	key     []byte
	entries []pendingEntry
	deleted map[string]uint64
}

func (w *pendingWork) units() int {
	return len(w.entries) + len(w.deleted)
}

// Save writes all dirty entries and deletions in one transaction. A backup
// is taken first when Options.Backup is set. Cancellation is checked between
// entries and rolls the transaction back.
//
// Failures are returned as *common.PersistenceError; cancellation as
// progress.ErrCancelled.
func (d *Database) Save(ctx context.Context, p *progress.ProgressEx) error {
	work, err := d.collect()
	if err != nil {
		return common.NewPersistenceError("Cannot save database", err)
	}

	p.Update(0, "preparing")
	if err := p.CheckCancelled(); err != nil {
		return err
	}

	if d.opts.Backup != nil {
		p.Update(0, "backing up")
		path, err := d.opts.Backup.Take(ctx, d)
		switch {
		case errors.Is(err, storage.ErrBackupUnsupported):
			d.logger.Debug(ctx, "backup skipped", "target", d.store.Location)
		case err != nil:
			return common.NewPersistenceError("Cannot back up database", err)
		default:
			d.logger.Debug(ctx, "backup taken", "path", path)
		}
	}

	total := work.units()
	err = dbx.WithTx(ctx, d.store.Conn, nil, func(ctx context.Context, tx dbx.DBTX) error {
		erepo := d.entriesRepo(tx)
		hrepo := d.historyRepo(tx)
		done := 0

		for _, pe := range work.entries {
			if err := checkCancelled(ctx, p); err != nil {
				return err
			}
			if err := writeEntry(ctx, erepo, hrepo, work.key, pe); err != nil {
				return err
			}
			done++
			p.Step(done, total, "writing entries")
		}

		for id := range work.deleted {
			if err := checkCancelled(ctx, p); err != nil {
				return err
			}
			if err := erepo.DeleteByID(ctx, id); err != nil && !errors.Is(err, common.ErrorNotFound) {
				return err
			}
			done++
			p.Step(done, total, "removing entries")
		}
		return checkCancelled(ctx, p)
	})
	if err != nil {
		if errors.Is(err, progress.ErrCancelled) || errors.Is(err, context.Canceled) {
			d.logger.Info(ctx, "save rolled back", "target", d.store.Location)
			return progress.ErrCancelled
		}
		return common.NewPersistenceError("Cannot write entries", err)
	}

	d.commit(work)
	p.Update(1, "saved")
	d.logger.Info(ctx, "vault saved", "target", d.store.Location, "entries", len(work.entries), "deleted", len(work.deleted))
	return nil
}

func checkCancelled(ctx context.Context, p *progress.ProgressEx) error {
	if err := p.CheckCancelled(); err != nil {
		return err
	}
	return ctx.Err()
}

func (d *Database) collect() (*pendingWork, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.key == nil {
		return nil, common.ErrVaultLocked
	}

	key := make([]byte, len(d.key))
	copy(key, d.key)

	w := &pendingWork{key: key, deleted: make(map[string]uint64, len(d.deleted))}
	for id, e := range d.entries {
		if !e.IsDirty() {
			continue
		}
		e.TrimHistory()
		w.entries = append(w.entries, pendingEntry{
			id:      id,
			rev:     e.Revision(),
			payload: e.Payload(),
			history: e.History(),
		})
	}
	for id, rev := range d.deleted {
		w.deleted[id] = rev
	}
	return w, nil
}

func writeEntry(ctx context.Context, erepo entryWriter, hrepo historyWriter, key []byte, pe pendingEntry) error {
	ov := models.Overview{Title: pe.payload.Title, Attachments: len(pe.payload.Attachments)}
	ovCT, ovNonce, err := cryptox.Seal(ov, key, []byte(pe.id))
	if err != nil {
		return fmt.Errorf("encrypt overview %s: %w", pe.id, err)
	}
	detCT, detNonce, err := cryptox.Seal(pe.payload, key, []byte(pe.id))
	if err != nil {
		return fmt.Errorf("encrypt entry %s: %w", pe.id, err)
	}

	rec := &models.Record{
		ID:            pe.id,
		Overview:      ovCT,
		NonceOverview: ovNonce,
		Details:       detCT,
		NonceDetails:  detNonce,
		UpdatedAt:     pe.payload.Modified,
	}
	if err := erepo.Upsert(ctx, rec); err != nil {
		return err
	}

	items := make([]models.HistoryRecord, 0, len(pe.history))
	for i, s := range pe.history {
		ct, nonce, err := cryptox.Seal(s, key, historyAAD(pe.id))
		if err != nil {
			return fmt.Errorf("encrypt history %s/%d: %w", pe.id, i, err)
		}
		items = append(items, models.HistoryRecord{
			EntryID: pe.id,
			Seq:     i,
			Payload: ct,
			Nonce:   nonce,
			TakenAt: s.TakenAt,
		})
	}
	return hrepo.Replace(ctx, pe.id, items)
}

type entryWriter interface {
	Upsert(ctx context.Context, rec *models.Record) error
}

type historyWriter interface {
	Replace(ctx context.Context, entryID string, items []models.HistoryRecord) error
}

// commit marks the written revisions as saved. Entries changed while the
// save was running stay dirty.
func (d *Database) commit(w *pendingWork) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.key == nil {
		return
	}
	for _, pe := range w.entries {
		if e, ok := d.entries[pe.id]; ok {
			e.MarkSaved(pe.rev)
		}
	}
	for id := range w.deleted {
		delete(d.deleted, id)
	}
}
