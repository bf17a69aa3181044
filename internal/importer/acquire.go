package importer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/gophvault/internal/netx"
)

var (
	ErrTooLarge    = errors.New("file exceeds the import size limit")
	ErrIsDirectory = errors.New("locator names a directory")
)

// userHomeDir is a seam for tests.
var userHomeDir = os.UserHomeDir

// Acquirer fetches the bytes named by a locator.
type Acquirer interface {
	Acquire(ctx context.Context, locator string) ([]byte, error)
}

// FileAcquirer reads local files and http(s) URLs. A leading "~" in a
// path is expanded to the home directory. MaxSize > 0 bounds the size.
type FileAcquirer struct {
	MaxSize int64
	Client  *http.Client
}

func (a *FileAcquirer) Acquire(ctx context.Context, locator string) ([]byte, error) {
	if isURL(locator) {
		data, err := netx.Download(ctx, a.Client, locator, a.MaxSize)
		if errors.Is(err, netx.ErrTooLarge) {
			return nil, ErrTooLarge
		}
		return data, err
	}

	p, err := expandHome(locator)
	if err != nil {
		return nil, err
	}

	fi, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, ErrIsDirectory
	}
	if a.MaxSize > 0 && fi.Size() > a.MaxSize {
		return nil, ErrTooLarge
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

func isURL(locator string) bool {
	l := strings.ToLower(locator)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := userHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", p, err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

// NameFromLocator returns the attachment name for a locator: the last path
// element, percent-decoded for URLs.
func NameFromLocator(locator string) string {
	if isURL(locator) {
		if u, err := url.Parse(locator); err == nil {
			name := path.Base(u.Path)
			if name == "/" || name == "." {
				return u.Hostname()
			}
			return name
		}
	}
	return filepath.Base(strings.TrimRight(locator, `/\`))
}
