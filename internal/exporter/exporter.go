// Package exporter writes attachments to private temporary files and hands
// them to a presenter.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/compressx"
	"github.com/dmitrijs2005/gophvault/internal/features"
	"github.com/dmitrijs2005/gophvault/internal/filex"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/models"
)

// Mode selects how the presenter shows an exported file.
type Mode int

const (
	PresentPreview Mode = iota
	PresentOptionsMenu
)

func (m Mode) String() string {
	if m == PresentPreview {
		return "preview"
	}
	return "menu"
}

// ErrPreviewUnavailable is returned by a Presenter that cannot preview the
// file. The exporter then falls back to the options menu.
var ErrPreviewUnavailable = errors.New("preview is not available")

// Presenter shows an exported file to the user.
type Presenter interface {
	Present(ctx context.Context, file *filex.ScopedFile, mode Mode) error
}

const exportSubDir = "export"

type Exporter struct {
	presenter Presenter
	gate      features.Gate
	baseDir   string
	logger    logging.Logger

	dirOnce sync.Once
	dir     string
	dirErr  error
}

// New returns an exporter that keeps its temporary files in a private
// subdirectory of baseDir.
func New(presenter Presenter, gate features.Gate, baseDir string, logger logging.Logger) *Exporter {
	return &Exporter{
		presenter: presenter,
		gate:      gate,
		baseDir:   baseDir,
		logger:    logger.With("module", "exporter"),
	}
}

func (x *Exporter) workDir() (string, error) {
	x.dirOnce.Do(func() {
		x.dir, x.dirErr = filex.EnsureSubDir(x.baseDir, exportSubDir)
	})
	return x.dir, x.dirErr
}

// Materialize writes the plain contents of att to a temporary file. The
// caller owns the returned file and must Close it.
func (x *Exporter) Materialize(ctx context.Context, att models.Attachment) (*filex.ScopedFile, error) {
	name, err := SafeFileName(att.Name)
	if err != nil {
		x.logger.Warn(ctx, "cannot derive file name", "name", att.Name)
		return nil, err
	}

	data := att.Data
	if att.IsCompressed {
		if data, err = compressx.Gunzip(att.Data); err != nil {
			x.logger.Error(ctx, "failed to decompress attachment", "name", att.Name, "err", err)
			return nil, err
		}
	}

	dir, err := x.workDir()
	if err != nil {
		return nil, &common.ExportError{Err: err}
	}
	f, err := filex.NewScopedFile(dir, name, data)
	if err != nil {
		x.logger.Error(ctx, "failed to write attachment", "name", att.Name, "err", err)
		return nil, &common.ExportError{Err: err}
	}
	return f, nil
}

// Export materializes att and presents it. A preview is requested when the
// gate allows it; if the presenter cannot preview, the options menu is shown
// instead. On failure the temporary file is removed.
func (x *Exporter) Export(ctx context.Context, att models.Attachment) (*filex.ScopedFile, error) {
	f, err := x.Materialize(ctx, att)
	if err != nil {
		return nil, err
	}

	mode := PresentOptionsMenu
	if x.gate != nil && x.gate.IsAvailable(features.FeatureCanPreviewAttachments) {
		mode = PresentPreview
		x.logger.Info(ctx, "will present attachment", "name", att.Name)
	} else {
		x.logger.Debug(ctx, "will export attachment", "name", att.Name)
	}

	err = x.presenter.Present(ctx, f, mode)
	if mode == PresentPreview && errors.Is(err, ErrPreviewUnavailable) {
		x.logger.Debug(ctx, "preview not available, showing menu", "name", att.Name)
		err = x.presenter.Present(ctx, f, PresentOptionsMenu)
	}
	if err != nil {
		_ = f.Close()
		x.logger.Error(ctx, "failed to present attachment", "name", att.Name, "err", err)
		return nil, &common.ExportError{Err: fmt.Errorf("present %s: %w", f.Path(), err)}
	}
	return f, nil
}

// ExportTo saves a permanent copy of att into dir and returns its path.
func (x *Exporter) ExportTo(ctx context.Context, att models.Attachment, dir string) (string, error) {
	f, err := x.Materialize(ctx, att)
	if err != nil {
		return "", err
	}
	defer f.Close()

	path, err := f.Keep(dir)
	if err != nil {
		x.logger.Error(ctx, "failed to save attachment", "name", att.Name, "dir", dir, "err", err)
		return "", &common.ExportError{Err: err}
	}
	x.logger.Info(ctx, "attachment saved", "name", att.Name, "path", path)
	return path, nil
}
