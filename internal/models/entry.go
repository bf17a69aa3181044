package models

import (
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/google/uuid"
)

// now is a test seam for the entry clock.
var now = time.Now

// Entry is a titled vault record owning an attachment store and a history of
// its previous states.
//
// Every change to the store is preceded by a history snapshot and followed
// by a timestamp update, so no attachment change exists without a backup and
// a fresh modification time.
type Entry struct {
	ID          string
	Title       string
	Attachments AttachmentStore
	Modified    time.Time

	// Format is the layout of the owning database.
	Format Format
	// HistoryLimit caps the number of kept snapshots; zero keeps all of them.
	HistoryLimit int
	// IsHistory marks a read-only view of a past state.
	IsHistory bool

	history  []Snapshot
	rev      uint64
	savedRev uint64
}

// Snapshot is an immutable copy of an entry's earlier state.
type Snapshot struct {
	Title       string        `cbor:"1,keyasint"`
	Attachments []*Attachment `cbor:"2,keyasint"`
	Modified    time.Time     `cbor:"3,keyasint"`
	TakenAt     time.Time     `cbor:"4,keyasint"`
}

// Payload is the serialized form of an entry's current state.
type Payload struct {
	Title       string        `cbor:"1,keyasint"`
	Attachments []*Attachment `cbor:"2,keyasint"`
	Modified    time.Time     `cbor:"3,keyasint"`
}

// NewEntry creates an empty entry with a fresh identifier.
func NewEntry(title string, format Format) *Entry {
	return &Entry{
		ID:       uuid.NewString(),
		Title:    title,
		Modified: now().UTC(),
		Format:   format,
		rev:      1,
	}
}

// FromPayload rebuilds a stored entry.
func FromPayload(id string, p Payload, format Format, historyLimit int) *Entry {
	e := &Entry{
		ID:           id,
		Title:        p.Title,
		Modified:     p.Modified,
		Format:       format,
		HistoryLimit: historyLimit,
	}
	for _, a := range p.Attachments {
		e.Attachments.append(a)
	}
	return e
}

// Payload returns a deep copy of the entry's current state for storage.
func (e *Entry) Payload() Payload {
	st := e.Attachments.clone()
	return Payload{Title: e.Title, Attachments: st.items, Modified: e.Modified}
}

// NeedsReplaceConfirmation reports whether adding an attachment would drop
// the existing one because the format allows only one.
func (e *Entry) NeedsReplaceConfirmation() bool {
	return !e.Format.SupportsMultipleAttachments() && e.Attachments.Count() > 0
}

// AddAttachment appends att and returns its slot index. When the format
// allows a single attachment and one is present, allowReplace must be true;
// the existing attachment is then dropped.
func (e *Entry) AddAttachment(att *Attachment, allowReplace bool) (int, error) {
	if err := e.checkEditable(); err != nil {
		return 0, err
	}
	name, err := NormalizeName(att.Name)
	if err != nil {
		return 0, err
	}
	if e.NeedsReplaceConfirmation() && !allowReplace {
		return 0, common.ErrReplaceNotConfirmed
	}

	e.BackupState()
	if !e.Format.SupportsMultipleAttachments() {
		e.Attachments.removeAll()
	}
	att.Name = name
	idx := e.Attachments.append(att)
	e.Touch()
	return idx, nil
}

// RenameAttachment changes the name of the attachment at index. A snapshot
// is taken first, same as for add and remove.
func (e *Entry) RenameAttachment(index int, newName string) error {
	if err := e.checkEditable(); err != nil {
		return err
	}
	if err := e.Attachments.checkIndex(index); err != nil {
		return err
	}
	name, err := NormalizeName(newName)
	if err != nil {
		return err
	}

	e.BackupState()
	e.Attachments.items[index].Name = name
	e.Touch()
	return nil
}

// RemoveAttachment deletes the attachment at index.
func (e *Entry) RemoveAttachment(index int) error {
	if err := e.checkEditable(); err != nil {
		return err
	}
	if err := e.Attachments.checkIndex(index); err != nil {
		return err
	}

	e.BackupState()
	e.Attachments.removeAt(index)
	e.Touch()
	return nil
}

// SetTitle renames the entry itself.
func (e *Entry) SetTitle(title string) error {
	if err := e.checkEditable(); err != nil {
		return err
	}
	e.BackupState()
	e.Title = title
	e.Touch()
	return nil
}

// BackupState pushes a snapshot of the current state onto the history.
// History only grows here; see TrimHistory.
func (e *Entry) BackupState() {
	st := e.Attachments.clone()
	e.history = append(e.history, Snapshot{
		Title:       e.Title,
		Attachments: st.items,
		Modified:    e.Modified,
		TakenAt:     now().UTC(),
	})
	e.rev++
}

// TrimHistory drops the oldest snapshots beyond HistoryLimit and returns how
// many were removed. The vault runs it as maintenance when saving.
func (e *Entry) TrimHistory() int {
	extra := len(e.history) - e.HistoryLimit
	if e.HistoryLimit <= 0 || extra <= 0 {
		return 0
	}
	e.history = append([]Snapshot(nil), e.history[extra:]...)
	return extra
}

// Touch refreshes the modification time. The new value is never earlier
// than the previous one.
func (e *Entry) Touch() {
	t := now().UTC()
	if t.Before(e.Modified) {
		t = e.Modified
	}
	e.Modified = t
	e.rev++
}

// History returns the snapshots, oldest first.
func (e *Entry) History() []Snapshot {
	out := make([]Snapshot, len(e.history))
	copy(out, e.history)
	return out
}

// HistoryLen returns the number of snapshots.
func (e *Entry) HistoryLen() int { return len(e.history) }

// SetHistory replaces the history, used when loading an entry.
func (e *Entry) SetHistory(h []Snapshot) {
	e.history = append([]Snapshot(nil), h...)
}

// HistoryItem returns a read-only entry built from snapshot i.
func (e *Entry) HistoryItem(i int) (*Entry, error) {
	if i < 0 || i >= len(e.history) {
		return nil, common.ErrIndexOutOfRange
	}
	s := e.history[i]
	item := &Entry{
		ID:        e.ID,
		Title:     s.Title,
		Modified:  s.Modified,
		Format:    e.Format,
		IsHistory: true,
	}
	for _, a := range s.Attachments {
		item.Attachments.append(a.Clone())
	}
	return item, nil
}

// IsDirty reports unsaved changes.
func (e *Entry) IsDirty() bool { return e.rev != e.savedRev }

// Revision changes on every mutation.
func (e *Entry) Revision() uint64 { return e.rev }

// MarkSaved records that revision rev has been persisted. Changes made after
// rev was taken keep the entry dirty.
func (e *Entry) MarkSaved(rev uint64) {
	if rev > e.savedRev {
		e.savedRev = rev
	}
}

func (e *Entry) checkEditable() error {
	if e.IsHistory {
		return common.ErrReadOnlyEntry
	}
	return nil
}
