package cli

import (
	"sync"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/dmitrijs2005/gophvault/internal/progress"
)

// progressPrinter reports saves of one vault on the console. Progress is
// printed in steps of 25%.
type progressPrinter struct {
	out *console
	ref models.URLReference

	mu   sync.Mutex
	step int
}

func (p *progressPrinter) WillSaveDatabase(ref models.URLReference) {
	if ref != p.ref {
		return
	}
	p.mu.Lock()
	p.step = 0
	p.mu.Unlock()
	p.out.Println("\nSaving...")
}

func (p *progressPrinter) ProgressDidChange(ref models.URLReference, s progress.Snapshot) {
	if ref != p.ref {
		return
	}
	step := int(s.Fraction * 4)
	p.mu.Lock()
	show := step > p.step && step < 4
	if show {
		p.step = step
	}
	p.mu.Unlock()
	if show {
		p.out.Printf("Saving... %d%% (%s)\n", step*25, s.Status)
	}
}

func (p *progressPrinter) DidSaveDatabase(ref models.URLReference) {
	if ref == p.ref {
		p.out.Println("Saved.")
	}
}

func (p *progressPrinter) DatabaseSaveCancelled(ref models.URLReference) {
	if ref == p.ref {
		p.out.Println("Save cancelled. Changes are kept in memory.")
	}
}

func (p *progressPrinter) SavingError(ref models.URLReference, err *common.PersistenceError) {
	if ref == p.ref {
		p.out.Println("Save failed:", userMessage(err))
	}
}
