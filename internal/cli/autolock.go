package cli

import (
	"context"
	"time"
)

// now is a test seam.
var now = time.Now

const autoLockTick = time.Second

func (a *App) touch() {
	a.mu.Lock()
	a.lastActive = now()
	a.mu.Unlock()
}

// beginCommand marks a command as running. Auto-lock waits until the
// matching endCommand.
func (a *App) beginCommand() {
	a.cmdMu.Lock()
	a.touch()
}

func (a *App) endCommand() {
	a.touch()
	a.cmdMu.Unlock()
}

// lockIfIdle locks the vault when nothing happened for timeout. A vault with
// unsaved changes, a running save or a running command stays open. Close
// observers are notified as for the lock command.
func (a *App) lockIfIdle(ctx context.Context, timeout time.Duration) bool {
	if timeout <= 0 || !a.isUnlocked() {
		return false
	}
	if !a.cmdMu.TryLock() {
		return false
	}
	defer a.cmdMu.Unlock()

	a.mu.Lock()
	idle := now().Sub(a.lastActive)
	a.mu.Unlock()
	if idle < timeout {
		return false
	}
	if a.db.IsDirty() || a.saver.IsSaving(a.db.Ref()) {
		return false
	}

	err := a.saver.CloseDatabase(ctx, a.db.Ref(), func(context.Context) error {
		a.db.Lock()
		return nil
	})
	if err != nil {
		a.logger.Warn(ctx, "auto-lock failed", "err", err)
		return false
	}
	a.logger.Info(ctx, "vault locked after inactivity", "idle", idle.Round(time.Second))
	a.out.Println("\nVault locked after inactivity.")
	return true
}

func (a *App) startAutoLock(ctx context.Context, timeout time.Duration) {
	if timeout <= 0 {
		return
	}
	ticker := time.NewTicker(autoLockTick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.lockIfIdle(ctx, timeout)
		case <-ctx.Done():
			return
		}
	}
}
