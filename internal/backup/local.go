// Package backup keeps copies of vault databases: timestamped local copies
// taken before every save and an optional S3 mirror refreshed after every
// successful save.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/filex"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/models"
)

const (
	backupExt    = ".bak"
	stampLayout  = "20060102T150405.000000000Z"
	backupSubDir = "backups"
)

// Source is a database that can write a consistent copy of itself.
type Source interface {
	Ref() models.URLReference
	Backup(ctx context.Context, dst string) error
}

// Local writes backups into a directory and keeps the newest Keep of them
// per database. Keep <= 0 keeps everything.
type Local struct {
	dir    string
	keep   int
	logger logging.Logger
	now    func() time.Time
}

// NewLocal returns a Local rooted at dir. An empty dir means "./backups".
func NewLocal(dir string, keep int, logger logging.Logger) *Local {
	return &Local{
		dir:    dir,
		keep:   keep,
		logger: logger.With("module", "backup"),
		now:    time.Now,
	}
}

// Take writes a copy of src and prunes old copies. It returns the new path.
func (l *Local) Take(ctx context.Context, src Source) (string, error) {
	dir, err := l.ensureDir()
	if err != nil {
		return "", err
	}

	prefix := baseName(src.Ref())
	path := filepath.Join(dir, prefix+"-"+l.now().UTC().Format(stampLayout)+backupExt)
	if err := src.Backup(ctx, path); err != nil {
		return "", fmt.Errorf("backup %s: %w", src.Ref(), err)
	}
	l.logger.Debug(ctx, "backup written", "path", path)

	if err := l.prune(ctx, dir, prefix); err != nil {
		l.logger.Warn(ctx, "backup pruning failed", "err", err)
	}
	return path, nil
}

// List returns the backups of ref, oldest first.
func (l *Local) List(ref models.URLReference) ([]string, error) {
	dir := l.dir
	if dir == "" {
		dir = backupSubDir
	}
	return listBackups(dir, baseName(ref))
}

func (l *Local) ensureDir() (string, error) {
	if l.dir == "" {
		return filex.EnsureSubDir("", backupSubDir)
	}
	if err := os.MkdirAll(l.dir, 0o700); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", l.dir, err)
	}
	return l.dir, nil
}

func (l *Local) prune(ctx context.Context, dir, prefix string) error {
	if l.keep <= 0 {
		return nil
	}
	files, err := listBackups(dir, prefix)
	if err != nil {
		return err
	}
	for len(files) > l.keep {
		if err := os.Remove(files[0]); err != nil && !os.IsNotExist(err) {
			return err
		}
		l.logger.Debug(ctx, "backup pruned", "path", files[0])
		files = files[1:]
	}
	return nil
}

func listBackups(dir, prefix string) ([]string, error) {
	des, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []string
	for _, de := range des {
		name := de.Name()
		if de.IsDir() || !strings.HasPrefix(name, prefix+"-") || !strings.HasSuffix(name, backupExt) {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	// the timestamp layout sorts lexically
	sort.Strings(out)
	return out, nil
}

func baseName(ref models.URLReference) string {
	name := filepath.Base(ref.Location)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "vault"
	}
	return name
}
