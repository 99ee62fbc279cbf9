package engine

import "errors"

// Precondition failures are surfaced to the caller as-is and the command
// is a no-op; ErrStoreWrite wraps transient backend failures the caller
// may retry.
var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionUnavailable = errors.New("session unavailable")
	ErrInvalidTurn        = errors.New("not your turn")
	ErrRoundNotReady      = errors.New("round not ready")
	ErrInvalidSelection   = errors.New("invalid selection")
	ErrAlreadyResolved    = errors.New("pitch already resolved")
	ErrNotAParticipant    = errors.New("not a participant")
	ErrStoreWrite         = errors.New("store write failed")
)
