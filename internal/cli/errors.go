package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/importer"
	"github.com/dmitrijs2005/gophvault/internal/vault"
)

var (
	errUsage           = errors.New("wrong arguments, see 'help'")
	errNoSuchEntry     = errors.New("no entry matches")
	errAmbiguousEntry  = errors.New("several entries match, type more of the ID")
	errPasswordsDiffer = errors.New("passwords do not match")
)

// userMessage turns err into a short message for the terminal.
func userMessage(err error) string {
	var (
		perr *common.PersistenceError
		aerr *common.AcquisitionError
		cerr *common.CompressionError
		eerr *common.ExportError
	)
	switch {
	case errors.As(err, &perr):
		if perr.Reason != nil {
			return fmt.Sprintf("%s: %v", perr.Message, perr.Reason)
		}
		return perr.Message
	case errors.As(err, &aerr):
		switch {
		case errors.Is(err, importer.ErrTooLarge):
			return fmt.Sprintf("Cannot read %s: the file is too large", aerr.Locator)
		case errors.Is(err, importer.ErrIsDirectory):
			return fmt.Sprintf("Cannot read %s: it is a directory", aerr.Locator)
		}
		return fmt.Sprintf("Cannot read %s: %v", aerr.Locator, aerr.Err)
	case errors.As(err, &cerr):
		return "The attachment is damaged and cannot be unpacked"
	case errors.As(err, &eerr):
		return fmt.Sprintf("Export failed: %v", eerr.Err)
	case errors.Is(err, common.ErrUnauthorized):
		return "Wrong password"
	case errors.Is(err, common.ErrVaultLocked):
		return "The vault is locked, run 'unlock'"
	case errors.Is(err, common.ErrNotInitialized):
		return "The vault is not initialized, run 'init'"
	case errors.Is(err, vault.ErrAlreadyInitialized):
		return "The vault already exists"
	case errors.Is(err, common.ErrConcurrentSaveRejected):
		return "A save is already running, try again when it finishes"
	case errors.Is(err, common.ErrInvalidName):
		return "Invalid attachment name"
	case errors.Is(err, common.ErrIndexOutOfRange):
		return "No attachment with that number"
	case errors.Is(err, common.ErrReadOnlyEntry):
		return "History snapshots cannot be changed"
	case errors.Is(err, common.ErrorNotFound):
		return "Entry not found"
	default:
		return err.Error()
	}
}

func (a *App) printError(err error) {
	a.out.Println("Error:", userMessage(err))
}

// parseNumber converts a 1-based number typed by the user into an index.
func parseNumber(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%q is not a positive number", s)
	}
	return n - 1, nil
}
