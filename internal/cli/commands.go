package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/features"
	"github.com/dmitrijs2005/gophvault/internal/importer"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/dmitrijs2005/gophvault/internal/secrets"
	"github.com/dustin/go-humanize"
)

// getSimpleText and getPassword are indirections used in tests.
var (
	getSimpleText = GetSimpleText
	getPassword   = GetPassword
)

// Init creates the vault. The optional argument selects the format.
func (a *App) Init(ctx context.Context, args []string) error {
	format, err := models.ParseFormat(a.cfg.Format)
	if len(args) > 0 {
		format, err = models.ParseFormat(args[0])
	}
	if err != nil {
		return err
	}

	pw, err := getPassword("New master password", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)
	again, err := getPassword("Repeat master password", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(again)
	if !bytes.Equal(pw, again) {
		return errPasswordsDiffer
	}

	if err := a.db.Create(ctx, pw, format); err != nil {
		return err
	}
	a.remember(ctx, pw)
	a.out.Printf("Vault created (%s format).\n", format)
	return nil
}

// Unlock opens the vault with the remembered password or asks for it.
func (a *App) Unlock(ctx context.Context, _ []string) error {
	if a.isUnlocked() {
		a.out.Println("Already unlocked.")
		return nil
	}
	loc := a.db.Ref().Location

	if a.secrets != nil {
		pw, err := a.secrets.Load(loc)
		switch {
		case err == nil:
			err = a.db.Unlock(ctx, pw)
			common.WipeByteArray(pw)
			if err == nil {
				a.out.Println("Unlocked with the stored password.")
				return nil
			}
			if !errors.Is(err, common.ErrUnauthorized) {
				return err
			}
			a.logger.Warn(ctx, "stored password rejected, forgetting it")
			_ = a.secrets.Forget(loc)
		case !errors.Is(err, secrets.ErrNotFound):
			a.logger.Warn(ctx, "keyring unavailable", "err", err)
		}
	}

	pw, err := getPassword("Master password", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	if err := a.db.Unlock(ctx, pw); err != nil {
		return err
	}
	a.remember(ctx, pw)
	a.out.Println("Unlocked.")
	return nil
}

func (a *App) remember(ctx context.Context, pw []byte) {
	if a.secrets == nil {
		return
	}
	if err := a.secrets.Save(a.db.Ref().Location, pw); err != nil {
		a.logger.Warn(ctx, "cannot store password in keyring", "err", err)
	}
}

// Lock forgets the decrypted vault. Unsaved changes block it unless -f is
// given.
func (a *App) Lock(ctx context.Context, args []string) error {
	if !a.isUnlocked() {
		return nil
	}
	force := len(args) > 0 && args[0] == "-f"
	if a.db.IsDirty() && !force {
		a.out.Println("There are unsaved changes. Run 'save' first or 'lock -f' to drop them.")
		return nil
	}
	err := a.saver.CloseDatabase(ctx, a.db.Ref(), func(context.Context) error {
		a.db.Lock()
		return nil
	})
	if err != nil {
		return err
	}
	a.out.Println("Locked.")
	return nil
}

// Entries lists all entries.
func (a *App) Entries(_ context.Context, _ []string) error {
	list, err := a.db.List()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		a.out.Println("No entries. Create one with 'new <title>'.")
		return nil
	}
	for _, s := range list {
		mark := ""
		if s.Dirty {
			mark = " *"
		}
		a.out.Printf("%-8s  %-30s  %2d file(s)  %s%s\n",
			shortID(s.ID), s.Title, s.Attachments, humanize.Time(s.Modified), mark)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// resolveEntry finds the entry whose ID is ref or starts with ref.
func (a *App) resolveEntry(ref string) (string, error) {
	list, err := a.db.List()
	if err != nil {
		return "", err
	}
	var match []string
	for _, s := range list {
		if s.ID == ref {
			return s.ID, nil
		}
		if strings.HasPrefix(s.ID, ref) {
			match = append(match, s.ID)
		}
	}
	switch len(match) {
	case 0:
		return "", errNoSuchEntry
	case 1:
		return match[0], nil
	default:
		return "", errAmbiguousEntry
	}
}

// New creates an entry titled with the joined arguments.
func (a *App) New(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	id, err := a.db.NewEntry(strings.Join(args, " "))
	if err != nil {
		return err
	}
	a.out.Printf("Created entry %s.\n", shortID(id))
	return a.startSave(ctx)
}

// Delete removes an entry.
func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	id, err := a.resolveEntry(args[0])
	if err != nil {
		return err
	}
	if err := a.db.DeleteEntry(id); err != nil {
		return err
	}
	a.out.Printf("Deleted entry %s.\n", shortID(id))
	return a.startSave(ctx)
}

func (a *App) printAttachments(e *models.Entry) {
	if e.Attachments.Count() == 0 {
		a.out.Println("No attachments.")
		return
	}
	for i := 0; i < e.Attachments.Count(); i++ {
		att, err := e.Attachments.Get(i)
		if err != nil {
			continue
		}
		packed := ""
		if att.IsCompressed {
			packed = " gz"
		}
		a.out.Printf("%3d  %-30s  %9s%s  %s\n",
			i+1, att.Name, humanize.Bytes(uint64(att.Size())), packed, cryptox.ShortDigest(att.Data))
	}
}

// Files lists the attachments of an entry.
func (a *App) Files(_ context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	id, err := a.resolveEntry(args[0])
	if err != nil {
		return err
	}
	return a.db.View(id, func(e *models.Entry) error {
		a.out.Printf("%s (%s)\n", e.Title, e.Format)
		a.printAttachments(e)
		return nil
	})
}

// Attach imports a file or URL into an entry.
func (a *App) Attach(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	id, err := a.resolveEntry(args[0])
	if err != nil {
		return err
	}
	locator := strings.Join(args[1:], " ")

	if err := a.waitForSave(ctx); err != nil {
		return err
	}
	confirm := func(_ context.Context, existing string) (bool, error) {
		return Confirm(a.reader, "Replace existing attachment \""+existing+"\"?", a.out)
	}

	res, err := a.importer.Import(ctx, id, locator, confirm)
	if res.Session != nil {
		a.setSession(res.Session)
	}
	if err != nil {
		return err
	}
	if res.Outcome == importer.ResultDeclined {
		a.out.Println("Kept the existing attachment.")
		return nil
	}
	a.out.Printf("Attached %q as #%d.\n", res.Name, res.Index+1)
	return nil
}

func (a *App) entryAndIndex(args []string, n int) (string, int, error) {
	if len(args) < n {
		return "", 0, errUsage
	}
	id, err := a.resolveEntry(args[0])
	if err != nil {
		return "", 0, err
	}
	idx, err := parseNumber(args[1])
	if err != nil {
		return "", 0, err
	}
	return id, idx, nil
}

// Rename renames one attachment.
func (a *App) Rename(ctx context.Context, args []string) error {
	id, idx, err := a.entryAndIndex(args, 3)
	if err != nil {
		return err
	}
	if err := a.db.RenameAttachment(id, idx, strings.Join(args[2:], " ")); err != nil {
		return err
	}
	a.out.Println("Renamed.")
	return a.startSave(ctx)
}

// Remove deletes one attachment.
func (a *App) Remove(ctx context.Context, args []string) error {
	id, idx, err := a.entryAndIndex(args, 2)
	if err != nil {
		return err
	}
	if err := a.db.RemoveAttachment(id, idx); err != nil {
		return err
	}
	a.out.Println("Removed.")
	return a.startSave(ctx)
}

// Export hands one attachment to the presenter. The temporary file is
// removed when the command ends.
func (a *App) Export(ctx context.Context, args []string) error {
	id, idx, err := a.entryAndIndex(args, 2)
	if err != nil {
		return err
	}
	att, err := a.db.Attachment(id, idx)
	if err != nil {
		return err
	}
	f, err := a.exporter.Export(ctx, att)
	if err != nil {
		return err
	}
	return f.Close()
}

// SaveAs stores a copy of one attachment in a directory.
func (a *App) SaveAs(ctx context.Context, args []string) error {
	id, idx, err := a.entryAndIndex(args, 3)
	if err != nil {
		return err
	}
	att, err := a.db.Attachment(id, idx)
	if err != nil {
		return err
	}
	path, err := a.exporter.ExportTo(ctx, att, strings.Join(args[2:], " "))
	if err != nil {
		return err
	}
	a.out.Printf("Saved to %s.\n", path)
	return nil
}

// History lists the snapshots of an entry, or the files of snapshot n.
func (a *App) History(_ context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errUsage
	}
	id, err := a.resolveEntry(args[0])
	if err != nil {
		return err
	}

	if len(args) == 2 {
		n, err := parseNumber(args[1])
		if err != nil {
			return err
		}
		item, err := a.db.HistoryItem(id, n)
		if err != nil {
			return err
		}
		a.out.Printf("%s, as of %s (read-only)\n", item.Title, humanize.Time(item.Modified))
		a.printAttachments(item)
		return nil
	}

	return a.db.View(id, func(e *models.Entry) error {
		h := e.History()
		if len(h) == 0 {
			a.out.Println("No history.")
			return nil
		}
		for i, s := range h {
			a.out.Printf("%3d  %-30s  %2d file(s)  taken %s\n",
				i+1, s.Title, len(s.Attachments), humanize.Time(s.TakenAt))
		}
		return nil
	})
}

// Status prints the vault and license state.
func (a *App) Status(_ context.Context, _ []string) error {
	ref := a.db.Ref()
	status := a.gate.Status()

	a.out.Printf("Vault:    %s\n", ref.Location)
	if a.isUnlocked() {
		a.out.Printf("State:    unlocked, %s format\n", a.db.Format())
		if a.db.IsDirty() {
			a.out.Println("Changes:  not saved")
		}
	} else {
		a.out.Println("State:    locked")
	}
	if s, ok := a.saver.Session(ref); ok {
		a.out.Printf("Saving:   %.0f%% %s\n", s.Progress().Fraction()*100, s.Progress().Status())
	}
	a.out.Printf("License:  %s\n", status)
	a.out.Printf("Preview:  %t\n", status.IsAvailable(features.FeatureCanPreviewAttachments))
	a.out.Printf("Auto-lock after %s of inactivity\n", status.LockTimeout(a.cfg.LockTimeout))
	return nil
}

// Save starts saving the vault.
func (a *App) Save(ctx context.Context, _ []string) error {
	if !a.isUnlocked() {
		return common.ErrVaultLocked
	}
	return a.startSave(ctx)
}

// Cancel stops the running save.
func (a *App) Cancel(_ context.Context, _ []string) error {
	s, ok := a.saver.Session(a.db.Ref())
	if !ok {
		a.out.Println("No save in progress.")
		return nil
	}
	s.Cancel()
	return nil
}
