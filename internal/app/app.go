// Package app initializes and runs gophvault. It opens the vault, wires the
// save orchestrator to its observers (console, S3 mirror, event feed),
// handles graceful shutdown and starts the interactive shell.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/backup"
	"github.com/dmitrijs2005/gophvault/internal/cli"
	"github.com/dmitrijs2005/gophvault/internal/config"
	"github.com/dmitrijs2005/gophvault/internal/features"
	"github.com/dmitrijs2005/gophvault/internal/feed"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/notify"
	"github.com/dmitrijs2005/gophvault/internal/saving"
	"github.com/dmitrijs2005/gophvault/internal/secrets"
	"github.com/dmitrijs2005/gophvault/internal/vault"
)

const shutdownTimeout = 30 * time.Second

// newS3Client is a test seam.
var newS3Client = func(ctx context.Context, c backup.S3Config) (backup.ObjectPutter, error) {
	return backup.NewS3Client(ctx, c)
}

type App struct {
	config   *config.Config
	logger   logging.Logger
	logClose io.Closer

	db     *vault.Database
	saver  *saving.Orchestrator
	gate   *features.LicenseGate
	mirror *backup.S3Mirror
	feed   *feed.Server
	shell  *cli.App

	unfollow func()
}

// NewApp builds every component from c. The shell reads commands from in
// and writes to out.
func NewApp(ctx context.Context, c *config.Config, in io.Reader, out io.Writer) (*App, error) {
	logger, logClose, err := logging.New(logging.Options{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		File:       c.LogFile,
		MaxSizeMB:  c.LogMaxSizeMB,
		MaxBackups: c.LogMaxBackups,
		MaxAgeDays: c.LogMaxAgeDays,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	app := &App{config: c, logger: logger, logClose: logClose, unfollow: func() {}}
	if err := app.init(ctx, in, out); err != nil {
		_ = logClose.Close()
		return nil, err
	}
	return app, nil
}

func (app *App) init(ctx context.Context, in io.Reader, out io.Writer) error {
	c := app.config

	gate, err := features.NewLicenseGate(c.LicenseToken, []byte(c.LicenseSecret))
	if err != nil {
		return err
	}
	app.gate = gate
	app.logger.Info(ctx, "license checked", "status", gate.Status())

	changes := notify.NewEntryChanges()
	driver, dsn := c.Target()
	db, err := vault.Open(ctx, driver, dsn, vault.Options{
		HistoryLimit:        c.HistoryLimit,
		CompressAttachments: c.CompressAttachments,
		Backup:              backup.NewLocal(c.BackupDir, c.BackupKeep, app.logger),
		Changes:             changes,
	}, app.logger)
	if err != nil {
		return fmt.Errorf("db init error: %w", err)
	}
	app.db = db
	app.saver = saving.NewOrchestrator(app.logger)

	if err := app.initMirror(ctx); err != nil {
		_ = db.Close(ctx)
		return err
	}

	if c.FeedAddr != "" {
		hub := feed.NewHub(0, app.logger)
		app.saver.AddObserver(hub)
		app.unfollow = hub.Follow(changes)
		app.feed = feed.NewServer(c.FeedAddr, hub, []byte(c.FeedSecret), app.logger)
	}

	var store cli.PasswordStore
	if c.UseKeyring {
		store = secrets.NewStore("")
	}

	app.shell = cli.NewApp(cli.Options{
		Config:  c,
		Vault:   db,
		Saver:   app.saver,
		Gate:    gate,
		Secrets: store,
		In:      in,
		Out:     out,
		Logger:  app.logger,
	})
	return nil
}

func (app *App) initMirror(ctx context.Context) error {
	c := app.config
	if !c.MirrorEnabled() {
		return nil
	}
	if !app.gate.IsAvailable(features.FeatureCanMirrorBackups) {
		app.logger.Warn(ctx, "s3 mirror needs a subscription, skipping", "status", app.gate.Status())
		return nil
	}

	s3cfg := backup.S3Config{
		Region:    c.S3Region,
		AccessKey: c.S3AccessKey,
		SecretKey: c.S3SecretKey,
		Endpoint:  c.S3Endpoint,
		Bucket:    c.S3Bucket,
		Prefix:    c.S3Prefix,
	}
	client, err := newS3Client(ctx, s3cfg)
	if err != nil {
		return fmt.Errorf("s3 init error: %w", err)
	}
	app.mirror = backup.NewS3Mirror(client, s3cfg, app.db, c.TempDir, app.logger)
	app.saver.AddObserver(app.mirror)
	return nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) func() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		if _, ok := <-sigs; ok {
			cancelFunc()
		}
	}()
	return func() {
		signal.Stop(sigs)
		close(sigs)
	}
}

func (app *App) startFeedServer(ctx context.Context) {
	if err := app.feed.Run(ctx); err != nil {
		app.logger.Error(ctx, "event feed stopped", "err", err)
	}
}

// Run starts the shell and blocks until it exits or a termination signal
// arrives, then shuts everything down.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "vault", app.db.Ref().Location)

	stopSignals := app.initSignalHandler(cancelFunc)
	defer stopSignals()

	var wg sync.WaitGroup

	if app.feed != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startFeedServer(ctx)
		}()
	}

	shellDone := make(chan struct{})
	go func() {
		defer close(shellDone)
		app.shell.Run(ctx)
	}()

	// The shell may be blocked reading input, so a signal does not wait for it.
	select {
	case <-shellDone:
	case <-ctx.Done():
	}
	cancelFunc()
	wg.Wait()

	app.shutdown()
}

func (app *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.saver.CloseDatabase(ctx, app.db.Ref(), app.db.Close); err != nil {
		app.logger.Error(ctx, "close vault", "err", err)
	}
	if err := app.saver.Close(ctx); err != nil {
		app.logger.Error(ctx, "close save orchestrator", "err", err)
	}
	if app.mirror != nil {
		app.mirror.Wait()
	}
	app.unfollow()

	app.logger.Info(ctx, "Stopped")
	_ = app.logClose.Close()
}
