package ledger

import (
	"errors"
)

// ErrNotFound is returned when a referenced account, transaction, checkpoint
// or recurring record does not exist. Reconciliation treats it as a silent
// no-op; user-initiated operations surface it to the caller.
var ErrNotFound = errors.New("ledger: not found")

// ErrConflict is returned when a write's precondition no longer holds at
// commit time (e.g. a transaction was linked by a concurrent pass between
// the scan and the write). The operation fails cleanly; the caller may retry
// with a fresh read.
var ErrConflict = errors.New("ledger: concurrent mutation conflict")
