package models

import (
	"strings"

	"github.com/dmitrijs2005/gophvault/internal/common"
)

// Attachment is a named binary payload embedded in an entry.
type Attachment struct {
	Name         string `cbor:"1,keyasint"`
	Data         []byte `cbor:"2,keyasint"`
	IsCompressed bool   `cbor:"3,keyasint"`
}

// NewAttachment validates name and returns an attachment holding data.
func NewAttachment(name string, data []byte, compressed bool) (*Attachment, error) {
	n, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	return &Attachment{Name: n, Data: data, IsCompressed: compressed}, nil
}

// NormalizeName trims surrounding white space and rejects empty names.
func NormalizeName(name string) (string, error) {
	n := strings.TrimSpace(name)
	if n == "" {
		return "", common.ErrInvalidName
	}
	return n, nil
}

// Clone returns a deep copy of a.
func (a *Attachment) Clone() *Attachment {
	data := make([]byte, len(a.Data))
	copy(data, a.Data)
	return &Attachment{Name: a.Name, Data: data, IsCompressed: a.IsCompressed}
}

// Size is the stored payload length, compressed or not.
func (a *Attachment) Size() int { return len(a.Data) }

// AttachmentStore is the ordered attachment collection of one entry. Slot
// index is the attachment identity, so order is significant.
type AttachmentStore struct {
	items []*Attachment
}

// Count returns the number of attachments.
func (s *AttachmentStore) Count() int { return len(s.items) }

// Get returns a copy of the attachment at index.
func (s *AttachmentStore) Get(index int) (Attachment, error) {
	if index < 0 || index >= len(s.items) {
		return Attachment{}, common.ErrIndexOutOfRange
	}
	return *s.items[index].Clone(), nil
}

// Names lists attachment names in slot order.
func (s *AttachmentStore) Names() []string {
	names := make([]string, len(s.items))
	for i, a := range s.items {
		names[i] = a.Name
	}
	return names
}

func (s *AttachmentStore) clone() AttachmentStore {
	items := make([]*Attachment, len(s.items))
	for i, a := range s.items {
		items[i] = a.Clone()
	}
	return AttachmentStore{items: items}
}

func (s *AttachmentStore) checkIndex(index int) error {
	if index < 0 || index >= len(s.items) {
		return common.ErrIndexOutOfRange
	}
	return nil
}

func (s *AttachmentStore) removeAll() { s.items = nil }

func (s *AttachmentStore) append(a *Attachment) int {
	s.items = append(s.items, a)
	return len(s.items) - 1
}

func (s *AttachmentStore) removeAt(index int) {
	s.items = append(s.items[:index], s.items[index+1:]...)
}
