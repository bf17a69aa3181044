package saving

import (
	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/dmitrijs2005/gophvault/internal/progress"
)

// Observer receives save lifecycle events. For every session an observer
// sees WillSaveDatabase, any number of ProgressDidChange calls, and exactly
// one of DidSaveDatabase, DatabaseSaveCancelled or SavingError, provided it
// stays subscribed.
//
// Observers are compared by value, so implementations should be pointers.
// The orchestrator never unsubscribes an observer on its own; one-shot
// observers call RemoveObserver from their terminal callback.
type Observer interface {
	WillSaveDatabase(ref models.URLReference)
	ProgressDidChange(ref models.URLReference, p progress.Snapshot)
	DidSaveDatabase(ref models.URLReference)
	DatabaseSaveCancelled(ref models.URLReference)
	SavingError(ref models.URLReference, err *common.PersistenceError)
}

// CloseObserver is implemented by observers that also want to know when a
// database is being closed.
type CloseObserver interface {
	WillCloseDatabase(ref models.URLReference)
	DidCloseDatabase(ref models.URLReference)
}

// NopObserver implements Observer with no-op methods. Embed it to handle
// only the events you need.
type NopObserver struct{}

func (NopObserver) WillSaveDatabase(models.URLReference) {}
func (NopObserver) ProgressDidChange(models.URLReference, progress.Snapshot) {}
func (NopObserver) DidSaveDatabase(models.URLReference) {}
func (NopObserver) DatabaseSaveCancelled(models.URLReference) {}
func (NopObserver) SavingError(models.URLReference, *common.PersistenceError) {}
