package models

import (
	"math/rand"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t *testing.T, start time.Time, step time.Duration) {
	t.Helper()
	orig := now
	cur := start
	now = func() time.Time {
		cur = cur.Add(step)
		return cur
	}
	t.Cleanup(func() { now = orig })
}

func mustAttachment(t *testing.T, name, data string) *Attachment {
	t.Helper()
	a, err := NewAttachment(name, []byte(data), false)
	require.NoError(t, err)
	return a
}

func TestAddAttachment_SingleAttachmentScenario(t *testing.T) {
	e := NewEntry("bank", FormatClassic)

	idx, err := e.AddAttachment(mustAttachment(t, "a.txt", "hi"), false)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 1, e.Attachments.Count())

	before := e.HistoryLen()
	_, err = e.AddAttachment(mustAttachment(t, "b.txt", "yo"), false)
	require.ErrorIs(t, err, common.ErrReplaceNotConfirmed)
	assert.Equal(t, []string{"a.txt"}, e.Attachments.Names())
	assert.Equal(t, before, e.HistoryLen())

	idx, err = e.AddAttachment(mustAttachment(t, "b.txt", "yo"), true)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, []string{"b.txt"}, e.Attachments.Names())
	assert.Equal(t, before+1, e.HistoryLen())

	prev := e.History()[before]
	require.Len(t, prev.Attachments, 1)
	assert.Equal(t, "a.txt", prev.Attachments[0].Name)
}

func TestSingleAttachmentStore_NeverExceedsOne(t *testing.T) {
	e := NewEntry("x", FormatClassic)
	r := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		if r.Intn(3) == 0 && e.Attachments.Count() > 0 {
			require.NoError(t, e.RemoveAttachment(0))
		} else {
			_, err := e.AddAttachment(mustAttachment(t, "f.bin", "data"), r.Intn(2) == 0)
			if err != nil {
				require.ErrorIs(t, err, common.ErrReplaceNotConfirmed)
			}
		}
		require.LessOrEqual(t, e.Attachments.Count(), 1)
	}
}

func TestMultipleAttachments_KeepInsertionOrder(t *testing.T) {
	e := NewEntry("x", FormatExtended)
	for _, n := range []string{"one", "two", "three"} {
		_, err := e.AddAttachment(mustAttachment(t, n, n), false)
		require.NoError(t, err)
	}
	assert.False(t, e.NeedsReplaceConfirmation())
	assert.Equal(t, []string{"one", "two", "three"}, e.Attachments.Names())

	require.NoError(t, e.RemoveAttachment(1))
	assert.Equal(t, []string{"one", "three"}, e.Attachments.Names())
}

func TestMutations_PushHistoryAndAdvanceTimestamp(t *testing.T) {
	fixedClock(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Second)
	e := NewEntry("x", FormatExtended)

	steps := []func() error{
		func() error { _, err := e.AddAttachment(mustAttachment(t, "a", "1"), false); return err },
		func() error { _, err := e.AddAttachment(mustAttachment(t, "b", "2"), false); return err },
		func() error { return e.RemoveAttachment(0) },
		func() error { return e.RenameAttachment(0, "c") },
	}

	for i, step := range steps {
		hist, mod := e.HistoryLen(), e.Modified
		require.NoError(t, step(), "step %d", i)
		assert.Equal(t, hist+1, e.HistoryLen(), "step %d", i)
		assert.False(t, e.Modified.Before(mod), "step %d", i)
	}
}

func TestTouch_IsMonotonic(t *testing.T) {
	orig := now
	t.Cleanup(func() { now = orig })

	e := NewEntry("x", FormatExtended)
	later := e.Modified.Add(time.Hour)
	e.Modified = later

	now = func() time.Time { return later.Add(-time.Minute) }
	e.Touch()
	assert.Equal(t, later, e.Modified)
}

func TestRenameAttachment_Errors(t *testing.T) {
	e := NewEntry("x", FormatExtended)
	_, err := e.AddAttachment(mustAttachment(t, "a.txt", "hi"), false)
	require.NoError(t, err)
	hist := e.HistoryLen()

	require.ErrorIs(t, e.RenameAttachment(0, ""), common.ErrInvalidName)
	require.ErrorIs(t, e.RenameAttachment(0, "   "), common.ErrInvalidName)
	require.ErrorIs(t, e.RenameAttachment(3, "b"), common.ErrIndexOutOfRange)
	require.ErrorIs(t, e.RenameAttachment(-1, "b"), common.ErrIndexOutOfRange)

	assert.Equal(t, []string{"a.txt"}, e.Attachments.Names())
	assert.Equal(t, hist, e.HistoryLen())

	require.NoError(t, e.RenameAttachment(0, "  b.txt "))
	assert.Equal(t, []string{"b.txt"}, e.Attachments.Names())
}

func TestRemoveAttachment_OutOfRange(t *testing.T) {
	e := NewEntry("x", FormatExtended)
	require.ErrorIs(t, e.RemoveAttachment(0), common.ErrIndexOutOfRange)
	assert.Equal(t, 0, e.HistoryLen())
}

func TestAddAttachment_InvalidName(t *testing.T) {
	e := NewEntry("x", FormatExtended)
	_, err := e.AddAttachment(&Attachment{Name: " \t", Data: []byte("x")}, false)
	require.ErrorIs(t, err, common.ErrInvalidName)
	assert.Equal(t, 0, e.Attachments.Count())

	_, err = NewAttachment("", nil, false)
	require.ErrorIs(t, err, common.ErrInvalidName)
}

func TestGet_ReturnsCopy(t *testing.T) {
	e := NewEntry("x", FormatExtended)
	_, err := e.AddAttachment(mustAttachment(t, "a", "payload"), false)
	require.NoError(t, err)

	view, err := e.Attachments.Get(0)
	require.NoError(t, err)
	view.Data[0] = 'X'
	view.Name = "changed"

	again, err := e.Attachments.Get(0)
	require.NoError(t, err)
	assert.Equal(t, "a", again.Name)
	assert.Equal(t, []byte("payload"), again.Data)

	_, err = e.Attachments.Get(1)
	require.ErrorIs(t, err, common.ErrIndexOutOfRange)
}

func TestHistoryItem_IsReadOnly(t *testing.T) {
	e := NewEntry("x", FormatExtended)
	_, err := e.AddAttachment(mustAttachment(t, "a", "1"), false)
	require.NoError(t, err)
	_, err = e.AddAttachment(mustAttachment(t, "b", "2"), false)
	require.NoError(t, err)

	item, err := e.HistoryItem(1)
	require.NoError(t, err)
	assert.True(t, item.IsHistory)
	assert.Equal(t, []string{"a"}, item.Attachments.Names())

	_, err = item.AddAttachment(mustAttachment(t, "c", "3"), false)
	require.ErrorIs(t, err, common.ErrReadOnlyEntry)
	require.ErrorIs(t, item.RemoveAttachment(0), common.ErrReadOnlyEntry)
	require.ErrorIs(t, item.RenameAttachment(0, "z"), common.ErrReadOnlyEntry)

	_, err = e.HistoryItem(5)
	require.ErrorIs(t, err, common.ErrIndexOutOfRange)
}

func TestHistory_GrowsByOnePerMutationPastLimit(t *testing.T) {
	e := NewEntry("x", FormatExtended)
	e.HistoryLimit = 2

	for i, n := range []string{"a", "b", "c", "d"} {
		before := e.HistoryLen()
		_, err := e.AddAttachment(mustAttachment(t, n, n), false)
		require.NoError(t, err)
		assert.Equal(t, before+1, e.HistoryLen(), "add #%d", i+1)
	}
	before := e.HistoryLen()
	require.NoError(t, e.RemoveAttachment(0))
	assert.Equal(t, before+1, e.HistoryLen())
}

func TestTrimHistory_DropsOldest(t *testing.T) {
	e := NewEntry("x", FormatExtended)
	for _, n := range []string{"a", "b", "c", "d"} {
		_, err := e.AddAttachment(mustAttachment(t, n, n), false)
		require.NoError(t, err)
	}

	assert.Zero(t, e.TrimHistory(), "no limit keeps everything")
	require.Equal(t, 4, e.HistoryLen())

	e.HistoryLimit = 2
	rev := e.Revision()
	assert.Equal(t, 2, e.TrimHistory())
	assert.Equal(t, rev, e.Revision())

	h := e.History()
	require.Len(t, h, 2)
	assert.Len(t, h[0].Attachments, 2)
	assert.Len(t, h[1].Attachments, 3)
	assert.Zero(t, e.TrimHistory())
}

func TestSnapshot_IsIsolatedFromLaterChanges(t *testing.T) {
	e := NewEntry("x", FormatExtended)
	_, err := e.AddAttachment(mustAttachment(t, "a", "1"), false)
	require.NoError(t, err)
	require.NoError(t, e.RenameAttachment(0, "b"))

	h := e.History()
	require.Len(t, h, 2)
	assert.Equal(t, "a", h[1].Attachments[0].Name)
}

func TestRevisionTracking(t *testing.T) {
	e := NewEntry("x", FormatExtended)
	require.True(t, e.IsDirty())

	rev := e.Revision()
	e.MarkSaved(rev)
	require.False(t, e.IsDirty())

	saving := e.Revision()
	_, err := e.AddAttachment(mustAttachment(t, "a", "1"), false)
	require.NoError(t, err)
	e.MarkSaved(saving)
	assert.True(t, e.IsDirty())
}

func TestPayloadRoundTrip(t *testing.T) {
	e := NewEntry("title", FormatExtended)
	_, err := e.AddAttachment(mustAttachment(t, "a", "1"), false)
	require.NoError(t, err)

	p := e.Payload()
	back := FromPayload(e.ID, p, FormatExtended, 5)
	assert.Equal(t, e.Title, back.Title)
	assert.Equal(t, e.Modified, back.Modified)
	assert.Equal(t, []string{"a"}, back.Attachments.Names())
	assert.False(t, back.IsDirty())

	p.Attachments[0].Name = "mutated"
	assert.Equal(t, []string{"a"}, e.Attachments.Names())
}
