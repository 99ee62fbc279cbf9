package engine

// Merge rules for inbound change-feed events. Every event carries the
// whole row, so merging is a question of which copy of the row is newer,
// not of replaying operations. The rules below are deliberately
// insensitive to arrival order: applying any multiset of events in any
// order converges on the same view, and applying an event twice is a
// no-op the second time.

// sessionSupersedes reports whether the incoming session row should
// replace the local one. Ordering is by the row's own causal markers
// (terminal status first, then the round counter, then the store's
// write timestamp), never by arrival order.
func sessionSupersedes(incoming, local *Session) bool {
	if incoming == nil {
		return false
	}
	if local == nil {
		return true
	}
	if local.Status == StatusCompleted {
		// Terminal: only the identical terminal row may re-apply.
		return incoming.Status == StatusCompleted
	}
	if incoming.Status == StatusCompleted {
		return true
	}
	if incoming.CurrentRound != local.CurrentRound {
		return incoming.CurrentRound > local.CurrentRound
	}
	return !incoming.UpdatedAt.Before(local.UpdatedAt)
}

// roundProgress ranks how far through the handshake a round row is.
// Fields only ever accrue (role at insert, then the word pair, then the
// verdict), so progress is monotonic per row and a stale echo can never
// un-set a later field.
func roundProgress(round *Round) int {
	if round == nil {
		return -1
	}
	progress := 0
	if round.SelectedRoleID != nil {
		progress = 1
	}
	if round.HasWords() {
		progress = 2
	}
	if round.Resolved() {
		progress = 3
	}
	return progress
}

// roundSupersedes compares two copies of the same round row.
func roundSupersedes(incoming, local *Round) bool {
	if incoming == nil {
		return false
	}
	if local == nil {
		return true
	}
	if incoming.ID != local.ID {
		return false
	}
	incomingProgress, localProgress := roundProgress(incoming), roundProgress(local)
	if incomingProgress != localProgress {
		return incomingProgress > localProgress
	}
	return !incoming.UpdatedAt.Before(local.UpdatedAt)
}

// currentRoundOf picks the active round from the reconciled set: the
// latest insert wins, ties broken by id so both participants agree.
func currentRoundOf(rounds map[string]*Round) *Round {
	var current *Round
	for _, round := range rounds {
		if current == nil {
			current = round
			continue
		}
		if round.CreatedAt.After(current.CreatedAt) {
			current = round
			continue
		}
		if round.CreatedAt.Equal(current.CreatedAt) && round.ID > current.ID {
			current = round
		}
	}
	return current
}
