package models

import "fmt"

// Format identifies the database layout. It decides whether entries may
// hold more than one attachment.
type Format string

const (
	// FormatClassic allows at most one attachment per entry.
	FormatClassic Format = "classic"
	// FormatExtended allows any number of attachments per entry.
	FormatExtended Format = "extended"
)

// SupportsMultipleAttachments reports whether entries of this format may hold
// several attachments.
func (f Format) SupportsMultipleAttachments() bool {
	return f == FormatExtended
}

func (f Format) String() string { return string(f) }

// ParseFormat converts a configuration value into a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatClassic, FormatExtended:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown database format %q", s)
	}
}

// URLReference identifies where a database is persisted. Two references
// with the same Location point at the same database.
type URLReference struct {
	Location string
}

func (r URLReference) String() string { return r.Location }
