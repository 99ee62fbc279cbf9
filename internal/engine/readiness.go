package engine

// Gate is the both-sides-ready barrier for the current round. Round
// content (the chosen role name, the product words, chat, the verdict
// controls) is revealed to neither participant until both flags are set,
// so a round is never half exposed. Flags are cleared atomically with
// the round increment in Store.AdvanceRound.
type Gate struct {
	session *Session
}

func NewGate(session *Session) Gate {
	return Gate{session: session}
}

func (g Gate) BothReady() bool {
	return g.session != nil && g.session.HostReady && g.session.GuestReady
}

func (g Gate) Ready(userID string) bool {
	if g.session == nil {
		return false
	}
	if g.session.HostID == userID {
		return g.session.HostReady
	}
	if g.session.GuestID != nil && *g.session.GuestID == userID {
		return g.session.GuestReady
	}
	return false
}

// Revealed reports whether round content may be shown: the session must
// be live and both sides ready.
func (g Gate) Revealed() bool {
	return g.session != nil && g.session.Status == StatusInProgress && g.BothReady()
}
