package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/dmitrijs2005/gophvault/internal/exporter"
	"github.com/dmitrijs2005/gophvault/internal/filex"
)

// previewLimit is the largest file shown inline.
const previewLimit = 64 << 10

// presenter shows exported attachments in the terminal. Text files are
// previewed inline; everything else gets the options menu.
type presenter struct {
	a *App
}

func (p *presenter) Present(ctx context.Context, f *filex.ScopedFile, mode exporter.Mode) error {
	if mode == exporter.PresentPreview {
		return p.preview(f)
	}
	return p.menu(f)
}

func previewable(data []byte) bool {
	return len(data) <= previewLimit && utf8.Valid(data) && !bytes.ContainsRune(data, 0)
}

func (p *presenter) preview(f *filex.ScopedFile) error {
	data, err := os.ReadFile(f.Path())
	if err != nil {
		return err
	}
	if !previewable(data) {
		return exporter.ErrPreviewUnavailable
	}

	out := p.a.out
	out.Printf("----- %s -----\n", filepath.Base(f.Path()))
	out.Printf("%s", data)
	if len(data) > 0 && data[len(data)-1] != '\n' {
		out.Println()
	}
	out.Println("----- end -----")
	return nil
}

func (p *presenter) menu(f *filex.ScopedFile) error {
	out := p.a.out
	out.Printf("Exported to %s (removed when the command ends).\n", f.Path())

	dir, err := getSimpleText(p.a.reader, "Save a copy to directory (empty to skip)", out)
	if err != nil {
		return err
	}
	if dir == "" {
		return nil
	}
	path, err := f.Keep(dir)
	if err != nil {
		return err
	}
	out.Printf("Saved to %s.\n", path)
	return nil
}
