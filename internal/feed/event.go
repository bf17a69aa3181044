package feed

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// Kind tells what an Event reports.
type Kind string

const (
	KindWillSave     Kind = "will_save"
	KindProgress     Kind = "progress"
	KindDidSave      Kind = "did_save"
	KindCancelled    Kind = "cancelled"
	KindSavingError  Kind = "saving_error"
	KindWillClose    Kind = "will_close"
	KindDidClose     Kind = "did_close"
	KindEntryChanged Kind = "entry_changed"
)

// Event is one item of the feed. Fields not used by a kind are empty.
type Event struct {
	Kind     Kind
	Target   string
	Fraction float64
	Status   string
	Message  string
	EntryID  string
	Reason   string
	At       time.Time
}

func (e Event) toStruct() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"kind":     string(e.Kind),
		"target":   e.Target,
		"fraction": e.Fraction,
		"status":   e.Status,
		"message":  e.Message,
		"entry_id": e.EntryID,
		"reason":   e.Reason,
		"at":       e.At.UTC().Format(time.RFC3339Nano),
	})
}

func eventFromStruct(s *structpb.Struct) (Event, error) {
	f := s.GetFields()
	str := func(k string) string { return f[k].GetStringValue() }

	e := Event{
		Kind:     Kind(str("kind")),
		Target:   str("target"),
		Fraction: f["fraction"].GetNumberValue(),
		Status:   str("status"),
		Message:  str("message"),
		EntryID:  str("entry_id"),
		Reason:   str("reason"),
	}
	if e.Kind == "" {
		return Event{}, fmt.Errorf("feed event without kind")
	}
	if at := str("at"); at != "" {
		t, err := time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return Event{}, fmt.Errorf("feed event time: %w", err)
		}
		e.At = t
	}
	return e, nil
}
