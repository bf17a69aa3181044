package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/config"
	"github.com/dmitrijs2005/gophvault/internal/features"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/dmitrijs2005/gophvault/internal/progress"
	"github.com/dmitrijs2005/gophvault/internal/saving"
	"github.com/dmitrijs2005/gophvault/internal/secrets"
	"github.com/dmitrijs2005/gophvault/internal/storage"
	"github.com/dmitrijs2005/gophvault/internal/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSecrets struct {
	m map[string][]byte
}

func (s *memSecrets) Save(loc string, pw []byte) error {
	s.m[loc] = append([]byte(nil), pw...)
	return nil
}

func (s *memSecrets) Load(loc string) ([]byte, error) {
	pw, ok := s.m[loc]
	if !ok {
		return nil, secrets.ErrNotFound
	}
	return append([]byte(nil), pw...), nil
}

func (s *memSecrets) Forget(loc string) error {
	delete(s.m, loc)
	return nil
}

type harness struct {
	app *App
	db  *vault.Database
	buf *bytes.Buffer
}

func (h *harness) output() string {
	h.app.out.mu.Lock()
	defer h.app.out.mu.Unlock()
	return h.buf.String()
}

func (h *harness) wait(t *testing.T) {
	t.Helper()
	s := h.app.currentSession()
	require.NotNil(t, s)
	state, err := s.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, saving.StateCompleted, state)
}

func stubPassword(t *testing.T, pw string) {
	t.Helper()
	old := readPassword
	t.Cleanup(func() { readPassword = old })
	readPassword = func(int) ([]byte, error) { return []byte(pw), nil }
}

type setup struct {
	format  string
	input   string
	status  features.PremiumStatus
	secrets PasswordStore
}

func newHarness(t *testing.T, s setup) *harness {
	t.Helper()
	ctx := context.Background()

	if s.format == "" {
		s.format = string(models.FormatExtended)
	}
	cfg := &config.Config{
		Format:      s.format,
		TempDir:     t.TempDir(),
		LockTimeout: time.Minute,
		UseKeyring:  s.secrets != nil,
	}

	db, err := vault.Open(ctx, storage.DriverSQLite, filepath.Join(t.TempDir(), "v.db"), vault.Options{}, logging.Nop())
	require.NoError(t, err)
	saver := saving.NewOrchestrator(logging.Nop())
	t.Cleanup(func() {
		_ = saver.Close(context.Background())
		_ = db.Close(context.Background())
	})

	buf := &bytes.Buffer{}
	app := NewApp(Options{
		Config:  cfg,
		Vault:   db,
		Saver:   saver,
		Gate:    features.NewStaticGate(s.status),
		Secrets: s.secrets,
		In:      strings.NewReader(s.input),
		Out:     buf,
		Logger:  logging.Nop(),
	})
	saver.AddObserver(app.printer)
	return &harness{app: app, db: db, buf: buf}
}

func (h *harness) onlyEntry(t *testing.T) string {
	t.Helper()
	list, err := h.db.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	return list[0].ID
}

func TestApp_AttachExportFlow(t *testing.T) {
	stubPassword(t, "pw")
	h := newHarness(t, setup{status: features.StatusSubscribed})
	ctx := context.Background()

	require.NoError(t, h.app.Init(ctx, nil))
	require.NoError(t, h.app.New(ctx, []string{"Tax", "papers"}))
	h.wait(t)
	id := h.onlyEntry(t)

	src := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("line one\n"), 0o600))

	require.NoError(t, h.app.Attach(ctx, []string{id[:6], src}))
	h.wait(t)
	assert.False(t, h.db.IsDirty())

	require.NoError(t, h.app.Files(ctx, []string{id[:6]}))
	require.NoError(t, h.app.Entries(ctx, nil))
	require.NoError(t, h.app.Export(ctx, []string{id[:6], "1"}))

	dst := t.TempDir()
	require.NoError(t, h.app.SaveAs(ctx, []string{id[:6], "1", dst}))
	data, err := os.ReadFile(filepath.Join(dst, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "line one\n", string(data))

	require.NoError(t, h.app.History(ctx, []string{id[:6]}))
	require.NoError(t, h.app.History(ctx, []string{id[:6], "1"}))

	out := h.output()
	assert.Contains(t, out, "Vault created (extended format).")
	assert.Contains(t, out, `Attached "notes.txt" as #1.`)
	assert.Contains(t, out, "Tax papers")
	assert.Contains(t, out, "----- notes.txt -----\nline one\n----- end -----")
	assert.Contains(t, out, "Saved.")
	assert.Contains(t, out, "No attachments.", "snapshot 1 predates the attachment")

	entries, err := os.ReadDir(filepath.Join(h.app.cfg.TempDir, "export"))
	require.NoError(t, err)
	assert.Empty(t, entries, "exported temp files are removed")
}

func TestApp_ExportMenuWithoutPreview(t *testing.T) {
	stubPassword(t, "pw")
	keep := t.TempDir()
	h := newHarness(t, setup{status: features.StatusFreeHeavyUse, input: keep + "\n"})
	ctx := context.Background()

	require.NoError(t, h.app.Init(ctx, nil))
	id, err := h.db.NewEntry("e")
	require.NoError(t, err)
	att, err := h.db.MakeAttachment("scan.bin", []byte{0, 1, 2})
	require.NoError(t, err)
	_, err = h.db.AddAttachment(id, att, false)
	require.NoError(t, err)

	require.NoError(t, h.app.Export(ctx, []string{id, "1"}))

	data, err := os.ReadFile(filepath.Join(keep, "scan.bin"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2}, data)
	assert.Contains(t, h.output(), "Exported to ")
}

func TestApp_BinaryPreviewFallsBackToMenu(t *testing.T) {
	stubPassword(t, "pw")
	h := newHarness(t, setup{status: features.StatusSubscribed, input: "\n"})
	ctx := context.Background()

	require.NoError(t, h.app.Init(ctx, nil))
	id, err := h.db.NewEntry("e")
	require.NoError(t, err)
	att, err := h.db.MakeAttachment("scan.bin", []byte{0, 1, 2})
	require.NoError(t, err)
	_, err = h.db.AddAttachment(id, att, false)
	require.NoError(t, err)

	require.NoError(t, h.app.Export(ctx, []string{id, "1"}))
	out := h.output()
	assert.NotContains(t, out, "----- scan.bin -----")
	assert.Contains(t, out, "Exported to ")
}

func TestApp_ClassicReplaceDeclined(t *testing.T) {
	stubPassword(t, "pw")
	h := newHarness(t, setup{format: "classic", input: "n\n"})
	ctx := context.Background()

	require.NoError(t, h.app.Init(ctx, nil))
	require.NoError(t, h.app.New(ctx, []string{"e"}))
	h.wait(t)
	id := h.onlyEntry(t)

	dir := t.TempDir()
	first := filepath.Join(dir, "first.txt")
	second := filepath.Join(dir, "second.txt")
	require.NoError(t, os.WriteFile(first, []byte("1"), 0o600))
	require.NoError(t, os.WriteFile(second, []byte("2"), 0o600))

	require.NoError(t, h.app.Attach(ctx, []string{id, first}))
	h.wait(t)
	require.NoError(t, h.app.Attach(ctx, []string{id, second}))

	assert.Contains(t, h.output(), `Replace existing attachment "first.txt"? [y/N]`)
	assert.Contains(t, h.output(), "Kept the existing attachment.")

	att, err := h.db.Attachment(id, 0)
	require.NoError(t, err)
	assert.Equal(t, "first.txt", att.Name)
}

func TestApp_RenameRemoveDelete(t *testing.T) {
	stubPassword(t, "pw")
	h := newHarness(t, setup{})
	ctx := context.Background()

	require.NoError(t, h.app.Init(ctx, nil))
	id, err := h.db.NewEntry("e")
	require.NoError(t, err)
	att, err := h.db.MakeAttachment("a.txt", []byte("a"))
	require.NoError(t, err)
	_, err = h.db.AddAttachment(id, att, false)
	require.NoError(t, err)

	require.NoError(t, h.app.Rename(ctx, []string{id, "1", "b", "c.txt"}))
	h.wait(t)
	got, err := h.db.Attachment(id, 0)
	require.NoError(t, err)
	assert.Equal(t, "b c.txt", got.Name)

	err = h.app.Remove(ctx, []string{id, "2"})
	assert.ErrorIs(t, err, common.ErrIndexOutOfRange)
	require.NoError(t, h.app.Remove(ctx, []string{id, "1"}))
	h.wait(t)

	require.NoError(t, h.app.Delete(ctx, []string{id}))
	h.wait(t)
	list, err := h.db.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestApp_ArgumentErrors(t *testing.T) {
	stubPassword(t, "pw")
	h := newHarness(t, setup{})
	ctx := context.Background()
	require.NoError(t, h.app.Init(ctx, nil))

	assert.ErrorIs(t, h.app.New(ctx, nil), errUsage)
	assert.ErrorIs(t, h.app.Files(ctx, nil), errUsage)
	assert.ErrorIs(t, h.app.Files(ctx, []string{"zzz"}), errNoSuchEntry)
	assert.ErrorIs(t, h.app.Rename(ctx, []string{"x"}), errUsage)

	_, err := h.db.NewEntry("a")
	require.NoError(t, err)
	_, err = h.db.NewEntry("b")
	require.NoError(t, err)
	assert.ErrorIs(t, h.app.Files(ctx, []string{""}), errAmbiguousEntry)

	list, err := h.db.List()
	require.NoError(t, err)
	assert.Error(t, h.app.Remove(ctx, []string{list[0].ID, "0"}))
}

func TestApp_InitRejectsMismatchedPasswords(t *testing.T) {
	old := readPassword
	t.Cleanup(func() { readPassword = old })
	answers := []string{"one", "two"}
	readPassword = func(int) ([]byte, error) {
		pw := answers[0]
		answers = answers[1:]
		return []byte(pw), nil
	}

	h := newHarness(t, setup{})
	assert.ErrorIs(t, h.app.Init(context.Background(), nil), errPasswordsDiffer)
	assert.True(t, h.db.IsLocked())
}

func TestApp_UnlockLock(t *testing.T) {
	stubPassword(t, "pw")
	h := newHarness(t, setup{})
	ctx := context.Background()

	require.NoError(t, h.app.Init(ctx, nil))
	_, err := h.db.NewEntry("unsaved")
	require.NoError(t, err)

	require.NoError(t, h.app.Lock(ctx, nil))
	assert.False(t, h.db.IsLocked(), "unsaved changes keep the vault open")
	assert.Contains(t, h.output(), "There are unsaved changes.")

	require.NoError(t, h.app.Lock(ctx, []string{"-f"}))
	assert.True(t, h.db.IsLocked())

	stubPassword(t, "wrong")
	err = h.app.Unlock(ctx, nil)
	assert.ErrorIs(t, err, common.ErrUnauthorized)
	assert.Equal(t, "Wrong password", userMessage(err))

	stubPassword(t, "pw")
	require.NoError(t, h.app.Unlock(ctx, nil))
	assert.False(t, h.db.IsLocked())
}

func TestApp_UnlockFromKeyring(t *testing.T) {
	store := &memSecrets{m: map[string][]byte{}}
	stubPassword(t, "pw")
	h := newHarness(t, setup{secrets: store})
	ctx := context.Background()

	require.NoError(t, h.app.Init(ctx, nil))
	assert.Equal(t, []byte("pw"), store.m[h.db.Ref().Location])
	require.NoError(t, h.app.Lock(ctx, nil))

	old := readPassword
	readPassword = func(int) ([]byte, error) { return nil, errors.New("no terminal") }
	t.Cleanup(func() { readPassword = old })

	require.NoError(t, h.app.Unlock(ctx, nil))
	assert.Contains(t, h.output(), "Unlocked with the stored password.")

	require.NoError(t, h.app.Lock(ctx, nil))
	store.m[h.db.Ref().Location] = []byte("stale")
	assert.Error(t, h.app.Unlock(ctx, nil))
	_, ok := store.m[h.db.Ref().Location]
	assert.False(t, ok, "a rejected stored password is forgotten")
}

func TestApp_RunSession(t *testing.T) {
	stubPassword(t, "pw")
	h := newHarness(t, setup{status: features.StatusFreeLightUse, input: "init\nnew Inbox\nstatus\nsave\nexit\n"})

	h.app.Run(context.Background())

	out := h.output()
	assert.Contains(t, out, "Welcome to gophvault")
	assert.Contains(t, out, "The vault is empty. Run 'init' to create it.")
	assert.Contains(t, out, "License:  freeLightUse")
	assert.Contains(t, out, "Bye!")

	list, err := h.db.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Inbox", list[0].Title)
}

func TestApp_SaveAndCancel(t *testing.T) {
	stubPassword(t, "pw")
	h := newHarness(t, setup{})
	ctx := context.Background()

	assert.ErrorIs(t, h.app.Save(ctx, nil), common.ErrVaultLocked)
	require.NoError(t, h.app.Cancel(ctx, nil))
	assert.Contains(t, h.output(), "No save in progress.")

	require.NoError(t, h.app.Init(ctx, nil))
	require.NoError(t, h.app.Save(ctx, nil))
	h.wait(t)
}

func TestLockIfIdle(t *testing.T) {
	stubPassword(t, "pw")
	h := newHarness(t, setup{})
	ctx := context.Background()
	require.NoError(t, h.app.Init(ctx, nil))

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	old := now
	now = func() time.Time { return clock }
	t.Cleanup(func() { now = old })

	h.app.touch()
	clock = base.Add(30 * time.Second)
	assert.False(t, h.app.lockIfIdle(ctx, time.Minute))

	_, err := h.db.NewEntry("dirty")
	require.NoError(t, err)
	clock = base.Add(2 * time.Minute)
	assert.False(t, h.app.lockIfIdle(ctx, time.Minute), "unsaved changes keep the vault open")

	require.NoError(t, h.app.Save(ctx, nil))
	h.wait(t)
	assert.False(t, h.app.lockIfIdle(ctx, 0))
	assert.True(t, h.app.lockIfIdle(ctx, time.Minute))
	assert.True(t, h.db.IsLocked())
	assert.False(t, h.app.lockIfIdle(ctx, time.Minute))
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	ref := models.URLReference{Location: "v.db"}
	p := &progressPrinter{out: &console{w: &buf}, ref: ref}

	p.WillSaveDatabase(ref)
	p.ProgressDidChange(ref, progress.Snapshot{Fraction: 0.1, Status: "writing entries"})
	p.ProgressDidChange(ref, progress.Snapshot{Fraction: 0.5, Status: "writing entries"})
	p.ProgressDidChange(ref, progress.Snapshot{Fraction: 0.6, Status: "writing entries"})
	p.ProgressDidChange(ref, progress.Snapshot{Fraction: 1, Status: "saved"})
	p.DidSaveDatabase(ref)
	p.DidSaveDatabase(models.URLReference{Location: "other.db"})
	p.DatabaseSaveCancelled(ref)
	p.SavingError(ref, common.NewPersistenceError("Cannot save database", errors.New("disk full")))

	assert.Equal(t, "\nSaving...\n"+
		"Saving... 50% (writing entries)\n"+
		"Saved.\n"+
		"Save cancelled. Changes are kept in memory.\n"+
		"Save failed: Cannot save database: disk full\n", buf.String())
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{common.ErrVaultLocked, "The vault is locked, run 'unlock'"},
		{common.ErrConcurrentSaveRejected, "A save is already running, try again when it finishes"},
		{common.NewPersistenceError("Cannot save database", nil), "Cannot save database"},
		{&common.AcquisitionError{Locator: "/x", Err: os.ErrNotExist}, "Cannot read /x: file does not exist"},
		{&common.CompressionError{Err: errors.New("bad")}, "The attachment is damaged and cannot be unpacked"},
		{vault.ErrAlreadyInitialized, "The vault already exists"},
		{errors.New("other"), "other"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, userMessage(tt.err))
		})
	}
}

func TestApp_FilesReturnsPromptly(t *testing.T) {
	stubPassword(t, "pw")
	h := newHarness(t, setup{})
	ctx := context.Background()

	require.NoError(t, h.app.Init(ctx, nil))
	id, err := h.db.NewEntry("Passport")
	require.NoError(t, err)
	att, err := h.db.MakeAttachment("scan.png", []byte{1, 2, 3})
	require.NoError(t, err)
	_, err = h.db.AddAttachment(id, att, false)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- h.app.Files(ctx, []string{id}) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("files did not return")
	}

	out := h.output()
	assert.Contains(t, out, "Passport (extended)")
	assert.Contains(t, out, "scan.png")
}

func TestApp_ExportMenuInputEnded(t *testing.T) {
	stubPassword(t, "pw")
	h := newHarness(t, setup{status: features.StatusFreeHeavyUse})
	ctx := context.Background()

	require.NoError(t, h.app.Init(ctx, nil))
	id, err := h.db.NewEntry("e")
	require.NoError(t, err)
	att, err := h.db.MakeAttachment("scan.bin", []byte{0, 1, 2})
	require.NoError(t, err)
	_, err = h.db.AddAttachment(id, att, false)
	require.NoError(t, err)

	err = h.app.Export(ctx, []string{id, "1"})
	var eerr *common.ExportError
	require.ErrorAs(t, err, &eerr)
	assert.ErrorIs(t, err, io.EOF)
}

// heldSave occupies the orchestrator slot of a vault until released.
type heldSave struct {
	ref     models.URLReference
	release chan struct{}
}

func (s *heldSave) Ref() models.URLReference { return s.ref }

func (s *heldSave) Save(ctx context.Context, _ *progress.ProgressEx) error {
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestApp_ChangeWaitsForRunningSave(t *testing.T) {
	stubPassword(t, "pw")
	h := newHarness(t, setup{})
	ctx := context.Background()
	require.NoError(t, h.app.Init(ctx, nil))

	held := &heldSave{ref: h.db.Ref(), release: make(chan struct{})}
	_, err := h.app.saver.StartSaving(ctx, held)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- h.app.New(ctx, []string{"Bills"}) }()

	select {
	case err := <-done:
		t.Fatalf("new returned while another save was running: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	close(held.release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("new did not return after the running save finished")
	}
	h.wait(t)
	assert.False(t, h.db.IsDirty())
}

type closeRecorder struct {
	saving.NopObserver
	events []string
}

func (r *closeRecorder) WillCloseDatabase(ref models.URLReference) {
	r.events = append(r.events, "will_close "+ref.Location)
}

func (r *closeRecorder) DidCloseDatabase(ref models.URLReference) {
	r.events = append(r.events, "did_close "+ref.Location)
}

func TestLockIfIdle_NotifiesCloseObserversAndWaitsForCommand(t *testing.T) {
	stubPassword(t, "pw")
	h := newHarness(t, setup{})
	ctx := context.Background()
	require.NoError(t, h.app.Init(ctx, nil))

	rec := &closeRecorder{}
	h.app.saver.AddObserver(rec)

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	old := now
	now = func() time.Time { return clock }
	t.Cleanup(func() { now = old })

	h.app.beginCommand()
	clock = base.Add(10 * time.Minute)
	assert.False(t, h.app.lockIfIdle(ctx, time.Minute), "a running command keeps the vault open")
	assert.False(t, h.db.IsLocked())
	h.app.endCommand()

	clock = base.Add(12 * time.Minute)
	require.True(t, h.app.lockIfIdle(ctx, time.Minute))
	assert.True(t, h.db.IsLocked())

	loc := h.db.Ref().Location
	assert.Equal(t, []string{"will_close " + loc, "did_close " + loc}, rec.events)
	assert.Contains(t, h.output(), "Vault locked after inactivity.")
}
