package exporter

import (
	"net/url"
	"strings"
	"unicode"

	"github.com/dmitrijs2005/gophvault/internal/common"
)

// SafeFileName turns an attachment name into a file name that stays inside
// the export directory. Percent escapes are decoded, only the last path
// component is kept and control characters are dropped. Names that reduce
// to nothing, "." or ".." are rejected with common.ErrInvalidName.
func SafeFileName(name string) (string, error) {
	s := name
	if dec, err := url.PathUnescape(s); err == nil {
		s = dec
	}

	s = strings.ReplaceAll(s, `\`, "/")
	s = strings.TrimRight(s, "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}

	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == ':' {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)

	switch s {
	case "", ".", "..":
		return "", common.ErrInvalidName
	}
	return s, nil
}
