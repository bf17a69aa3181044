package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
)

// execIface is the command surface the REPL dispatches to. App satisfies
// it; tests can provide a stub.
type execIface interface {
	isUnlocked() bool
	beginCommand()
	endCommand()
	printError(err error)

	Init(ctx context.Context, args []string) error
	Unlock(ctx context.Context, args []string) error
	Lock(ctx context.Context, args []string) error
	Entries(ctx context.Context, args []string) error
	New(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	Files(ctx context.Context, args []string) error
	Attach(ctx context.Context, args []string) error
	Rename(ctx context.Context, args []string) error
	Remove(ctx context.Context, args []string) error
	Export(ctx context.Context, args []string) error
	SaveAs(ctx context.Context, args []string) error
	History(ctx context.Context, args []string) error
	Status(ctx context.Context, args []string) error
	Save(ctx context.Context, args []string) error
	Cancel(ctx context.Context, args []string) error
}

const (
	helpLocked   = "Available commands: init [classic|extended], unlock, status, exit"
	helpUnlocked = `Available commands:
  entries                        list entries
  new <title>                    create an entry
  delete <entry>                 delete an entry
  files <entry>                  list attachments
  attach <entry> <path|url>      add a file
  rename <entry> <n> <name>      rename attachment n
  remove <entry> <n>             remove attachment n
  export <entry> <n>             open attachment n
  saveas <entry> <n> <dir>       save a copy of attachment n
  history <entry> [n]            list snapshots or show snapshot n
  save, cancel, status, lock, exit
<entry> is an ID prefix; <n> counts from 1.`
)

// runREPL reads commands line by line and dispatches them to a until the
// input ends, ctx is done or the user types exit or quit. Command errors are
// printed and do not stop the loop.
func runREPL(ctx context.Context, a execIface, statusFn func() string, in *bufio.Reader, out *console) {
	for {
		if ctx.Err() != nil {
			return
		}
		out.Printf("gv %s> ", statusFn())
		line, err := in.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			out.Println()
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		a.beginCommand()
		quit, cmdErr := dispatch(ctx, a, out, parts[0], parts[1:])
		a.endCommand()

		if cmdErr != nil {
			a.printError(cmdErr)
		}
		if quit {
			return
		}
	}
}

// dispatch runs one command. quit is set for exit and quit.
func dispatch(ctx context.Context, a execIface, out *console, cmd string, args []string) (quit bool, err error) {
	switch cmd {
	case "help":
		if a.isUnlocked() {
			out.Println(helpUnlocked)
		} else {
			out.Println(helpLocked)
		}
	case "init":
		err = a.Init(ctx, args)
	case "unlock":
		err = a.Unlock(ctx, args)
	case "lock":
		err = a.Lock(ctx, args)
	case "l", "entries":
		err = a.Entries(ctx, args)
	case "new":
		err = a.New(ctx, args)
	case "delete":
		err = a.Delete(ctx, args)
	case "files":
		err = a.Files(ctx, args)
	case "attach":
		err = a.Attach(ctx, args)
	case "rename":
		err = a.Rename(ctx, args)
	case "remove":
		err = a.Remove(ctx, args)
	case "export":
		err = a.Export(ctx, args)
	case "saveas":
		err = a.SaveAs(ctx, args)
	case "history":
		err = a.History(ctx, args)
	case "status":
		err = a.Status(ctx, args)
	case "save":
		err = a.Save(ctx, args)
	case "cancel":
		err = a.Cancel(ctx, args)
	case "exit", "quit":
		out.Println("Bye!")
		return true, nil
	default:
		out.Println("Unknown command:", cmd)
	}
	return false, err
}
