package engine

// Turn derivation is pure and recomputed from the session row on every
// call; caching a role across a round boundary is how stale-role bugs
// happen after a reconnect.
//
// Canonical parity rule: for round n, the host is the Customer iff n is
// odd. The host created the session and rounds start at 1, so the host
// judges the first pitch.

func CustomerID(session *Session) (string, bool) {
	if session == nil || session.GuestID == nil {
		return "", false
	}
	if session.CurrentRound%2 == 1 {
		return session.HostID, true
	}
	return *session.GuestID, true
}

func SellerID(session *Session) (string, bool) {
	if session == nil || session.GuestID == nil {
		return "", false
	}
	if session.CurrentRound%2 == 1 {
		return *session.GuestID, true
	}
	return session.HostID, true
}

func IsCustomer(session *Session, userID string) bool {
	customerID, ok := CustomerID(session)
	return ok && customerID == userID
}

func IsSeller(session *Session, userID string) bool {
	sellerID, ok := SellerID(session)
	return ok && sellerID == userID
}

func IsParticipant(session *Session, userID string) bool {
	if session == nil || userID == "" {
		return false
	}
	if session.HostID == userID {
		return true
	}
	return session.GuestID != nil && *session.GuestID == userID
}
