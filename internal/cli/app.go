package cli

import (
	"bufio"
	"context"
	"io"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/config"
	"github.com/dmitrijs2005/gophvault/internal/exporter"
	"github.com/dmitrijs2005/gophvault/internal/features"
	"github.com/dmitrijs2005/gophvault/internal/importer"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/saving"
	"github.com/dmitrijs2005/gophvault/internal/vault"
)

// PasswordStore remembers master passwords between runs.
type PasswordStore interface {
	Save(location string, password []byte) error
	Load(location string) ([]byte, error)
	Forget(location string) error
}

// Options are the collaborators of an App.
type Options struct {
	Config *config.Config
	Vault  *vault.Database
	Saver  *saving.Orchestrator
	Gate   *features.LicenseGate
	// Secrets is used when Config.UseKeyring is set; nil disables it.
	Secrets PasswordStore
	In      io.Reader
	Out     io.Writer
	Logger  logging.Logger
}

type App struct {
	cfg      *config.Config
	db       *vault.Database
	saver    *saving.Orchestrator
	gate     *features.LicenseGate
	secrets  PasswordStore
	importer *importer.Importer
	exporter *exporter.Exporter
	printer  *progressPrinter
	reader   *bufio.Reader
	out      *console
	logger   logging.Logger

	// cmdMu is held while a command runs; auto-lock never runs alongside.
	cmdMu sync.Mutex

	mu         sync.Mutex
	lastActive time.Time
	session    *saving.Session
}

func NewApp(o Options) *App {
	a := &App{
		cfg:    o.Config,
		db:     o.Vault,
		saver:  o.Saver,
		gate:   o.Gate,
		reader: bufio.NewReader(o.In),
		out:    &console{w: o.Out},
		logger: o.Logger.With("module", "cli"),
	}
	if o.Config.UseKeyring {
		a.secrets = o.Secrets
	}

	acq := &importer.FileAcquirer{MaxSize: o.Config.MaxImportSize}
	a.importer = importer.New(o.Vault, o.Saver, acq, o.Logger)
	a.exporter = exporter.New(&presenter{a: a}, o.Gate, o.Config.TempDir, o.Logger)
	a.printer = &progressPrinter{out: a.out, ref: o.Vault.Ref()}
	a.lastActive = now()
	return a
}

func (a *App) isUnlocked() bool {
	return !a.db.IsLocked()
}

func (a *App) getStatus() string {
	switch {
	case a.db.IsLocked():
		return "(locked)"
	case a.saver.IsSaving(a.db.Ref()):
		return "(saving)"
	case a.db.IsDirty():
		return "(modified)"
	default:
		return ""
	}
}

// Run starts the REPL and blocks until the user exits, the input ends or
// ctx is done. A save still in flight is waited for before returning.
func (a *App) Run(ctx context.Context) {
	a.saver.AddObserver(a.printer)
	defer a.saver.RemoveObserver(a.printer)

	a.out.Println("Welcome to gophvault (type 'help' for commands)")

	if ok, err := a.db.IsInitialized(ctx); err != nil {
		a.printError(err)
	} else if !ok {
		a.out.Println("The vault is empty. Run 'init' to create it.")
	} else if err := a.Unlock(ctx, nil); err != nil {
		a.printError(err)
	}

	timeout := a.gate.Status().LockTimeout(a.cfg.LockTimeout)
	lockCtx, stopLock := context.WithCancel(ctx)
	defer stopLock()
	go a.startAutoLock(lockCtx, timeout)

	runREPL(ctx, a, a.getStatus, a.reader, a.out)

	if s := a.currentSession(); s != nil {
		if _, err := s.Wait(ctx); err != nil {
			a.logger.Warn(ctx, "exit before save finished", "err", err)
		}
	}
}

func (a *App) currentSession() *saving.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

func (a *App) setSession(s *saving.Session) {
	a.mu.Lock()
	a.session = s
	a.mu.Unlock()
}

// waitForSave blocks until a running save of the vault ends, so the next
// change does not collide with it.
func (a *App) waitForSave(ctx context.Context) error {
	s, ok := a.saver.Session(a.db.Ref())
	if !ok {
		return nil
	}
	select {
	case <-s.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// startSave starts saving the vault in the background once the previous
// save is over.
func (a *App) startSave(ctx context.Context) error {
	if err := a.waitForSave(ctx); err != nil {
		return err
	}
	s, err := a.saver.StartSaving(ctx, a.db)
	if err != nil {
		return err
	}
	a.setSession(s)
	return nil
}
