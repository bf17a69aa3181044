package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeExec struct {
	unlocked bool
	running  bool
	begun    int
	errs     []error

	calls []string
	args  [][]string
}

func (f *fakeExec) isUnlocked() bool     { return f.unlocked }
func (f *fakeExec) beginCommand() {
	f.begun++
	f.running = true
}
func (f *fakeExec) endCommand() { f.running = false }
func (f *fakeExec) printError(err error) { f.errs = append(f.errs, err) }

func (f *fakeExec) record(name string, args []string) error {
	if !f.running {
		return errors.New(name + " ran outside a command")
	}
	f.calls = append(f.calls, name)
	f.args = append(f.args, args)
	if name == "save" {
		return errors.New("save failed")
	}
	return nil
}

func (f *fakeExec) Init(_ context.Context, a []string) error    { return f.record("init", a) }
func (f *fakeExec) Unlock(_ context.Context, a []string) error {
	f.unlocked = true
	return f.record("unlock", a)
}
func (f *fakeExec) Lock(_ context.Context, a []string) error {
	f.unlocked = false
	return f.record("lock", a)
}
func (f *fakeExec) Entries(_ context.Context, a []string) error { return f.record("entries", a) }
func (f *fakeExec) New(_ context.Context, a []string) error     { return f.record("new", a) }
func (f *fakeExec) Delete(_ context.Context, a []string) error  { return f.record("delete", a) }
func (f *fakeExec) Files(_ context.Context, a []string) error   { return f.record("files", a) }
func (f *fakeExec) Attach(_ context.Context, a []string) error  { return f.record("attach", a) }
func (f *fakeExec) Rename(_ context.Context, a []string) error  { return f.record("rename", a) }
func (f *fakeExec) Remove(_ context.Context, a []string) error  { return f.record("remove", a) }
func (f *fakeExec) Export(_ context.Context, a []string) error  { return f.record("export", a) }
func (f *fakeExec) SaveAs(_ context.Context, a []string) error  { return f.record("saveas", a) }
func (f *fakeExec) History(_ context.Context, a []string) error { return f.record("history", a) }
func (f *fakeExec) Status(_ context.Context, a []string) error  { return f.record("status", a) }
func (f *fakeExec) Save(_ context.Context, a []string) error    { return f.record("save", a) }
func (f *fakeExec) Cancel(_ context.Context, a []string) error  { return f.record("cancel", a) }

func TestRunREPL_DispatchesCommands(t *testing.T) {
	input := strings.Join([]string{
		"help",
		"unlock",
		"help",
		"",
		"new Bank statements",
		"attach 1a2b /tmp/x.pdf",
		"l",
		"rename 1a2b 1 y.pdf",
		"save",
		"foobar",
		"exit",
		"status",
	}, "\n")

	var buf bytes.Buffer
	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "" }, rdr(input), &console{w: &buf})

	assert.Equal(t, []string{"unlock", "new", "attach", "entries", "rename", "save"}, exec.calls)
	assert.Equal(t, []string{"Bank", "statements"}, exec.args[1])
	assert.Equal(t, []string{"1a2b", "1", "y.pdf"}, exec.args[4])
	assert.Equal(t, 10, exec.begun)
	assert.False(t, exec.running)
	assert.Len(t, exec.errs, 1)

	out := buf.String()
	assert.Contains(t, out, helpLocked)
	assert.Contains(t, out, helpUnlocked)
	assert.Contains(t, out, "Unknown command: foobar")
	assert.Contains(t, out, "Bye!")
}

func TestRunREPL_StopsAtEOF(t *testing.T) {
	var buf bytes.Buffer
	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "(locked)" }, rdr("status"), &console{w: &buf})

	assert.Equal(t, []string{"status"}, exec.calls)
	assert.Contains(t, buf.String(), "gv (locked)> ")
}

func TestRunREPL_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	exec := &fakeExec{}
	runREPL(ctx, exec, func() string { return "" }, rdr("status\n"), &console{w: &buf})
	assert.Empty(t, exec.calls)
}
