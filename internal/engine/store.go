package engine

import "context"

// Store is the shared persistent record for sessions and rounds. All
// mutating operations are conditional: the write carries its expected
// prior state as a filter and a lost race surfaces as a precondition
// error, never as a silent overwrite. Implementations publish the full
// new row on the change feed after every successful mutation.
//
// The Store is the only component that transitions session status or
// advances the round counter; AdvanceRound increments current_round by
// exactly 1 and clears both ready flags in the same write.
type Store interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	FindSessionByJoinCode(ctx context.Context, code string) (*Session, error)

	// ClaimGuestSeat sets guest_id and moves waiting -> in_progress,
	// filtered on "still waiting and seat empty". The loser of a join
	// race gets ErrSessionUnavailable.
	ClaimGuestSeat(ctx context.Context, sessionID, guestID string) (*Session, error)
	// ReleaseGuestSeat clears the guest's seat and ready flag and
	// returns the session to waiting.
	ReleaseGuestSeat(ctx context.Context, sessionID, guestID string) (*Session, error)
	// CompleteSession moves any non-terminal session to completed.
	// Completing an already-completed session is a no-op.
	CompleteSession(ctx context.Context, sessionID string) (*Session, error)
	// SetReadyFlag marks one side ready. Re-marking an already-ready
	// side is a no-op, not an error.
	SetReadyFlag(ctx context.Context, sessionID string, host bool) (*Session, error)
	// AdvanceRound increments current_round from the expected value and
	// resets both ready flags atomically with the increment.
	AdvanceRound(ctx context.Context, sessionID string, fromRound int) (*Session, error)

	// InsertRound creates the round row whole. At most one unresolved
	// round may exist per session; a second insert loses with
	// ErrInvalidTurn.
	InsertRound(ctx context.Context, round *Round) error
	// LatestRound returns the session's current round, or nil when no
	// round has been started.
	LatestRound(ctx context.Context, sessionID string) (*Round, error)
	// SetRoundWords writes both words together, filtered on "role set,
	// words unset, unresolved".
	SetRoundWords(ctx context.Context, roundID, word1ID, word2ID string) (*Round, error)
	// ResolveRound records the verdict, filtered on "words set, not yet
	// resolved". A second resolution loses with ErrAlreadyResolved.
	ResolveRound(ctx context.Context, roundID string, accepted bool) (*Round, error)

	AppendMessage(ctx context.Context, message *ChatMessage) error
	ListMessages(ctx context.Context, sessionID string) ([]ChatMessage, error)

	AppendEvent(ctx context.Context, sessionID, eventType string, payload map[string]any) error
	ListEvents(ctx context.Context, sessionID string) ([]EventRecord, error)

	GetRole(ctx context.Context, id string) (*Role, error)
	GetWords(ctx context.Context, ids []string) ([]Word, error)
}

// Oracle samples the immutable role/word catalogs. The engine treats it
// as an opaque source of n distinct rows.
type Oracle interface {
	RandomRoles(ctx context.Context, n int) ([]Role, error)
	RandomWords(ctx context.Context, n int) ([]Word, error)
}
