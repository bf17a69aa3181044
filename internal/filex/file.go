// Package filex contains small filesystem helpers: private working
// directories and self-removing temporary files.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// EnsureSubDir creates base/name (base defaults to the working directory)
// with owner-only permissions and returns its absolute path.
func EnsureSubDir(base, name string) (string, error) {
	if base == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getwd: %w", err)
		}
		base = cwd
	}

	dir := filepath.Join(base, name)

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	return dir, nil
}

// ScopedFile owns a file on disk and removes it on Close.
type ScopedFile struct {
	path string
	dir  string
	once sync.Once
	err  error
}

// NewScopedFile writes data to a file called name with mode 0600. The file
// lives in its own new subdirectory of dir, so files created with the same
// name never share a path. On failure nothing is left behind.
func NewScopedFile(dir, name string, data []byte) (*ScopedFile, error) {
	sub, err := os.MkdirTemp(dir, "x-*")
	if err != nil {
		return nil, fmt.Errorf("mkdir in %s: %w", dir, err)
	}
	sf := &ScopedFile{path: filepath.Join(sub, name), dir: sub}

	if err := os.WriteFile(sf.path, data, 0o600); err != nil {
		_ = sf.Close()
		return nil, fmt.Errorf("write %s: %w", sf.path, err)
	}
	return sf, nil
}

// Path returns the file location.
func (f *ScopedFile) Path() string { return f.path }

// Close removes the file and its directory. Calling Close more than once
// returns the result of the first call.
func (f *ScopedFile) Close() error {
	f.once.Do(func() {
		f.err = os.RemoveAll(f.dir)
	})
	return f.err
}

// Keep copies the file into dir under its own name and returns the new
// path. The scoped file itself is left in place.
func (f *ScopedFile) Keep(dir string) (string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(dir, filepath.Base(f.path))
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return "", fmt.Errorf("write %s: %w", dst, err)
	}
	return dst, nil
}
