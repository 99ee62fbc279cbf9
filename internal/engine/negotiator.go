package engine

import (
	"context"
	"errors"
)

// Negotiator drives the per-round handshake: the customer picks a buyer
// persona, the seller builds the product, the customer judges the
// pitch. Each step re-validates against a fresh session row and then
// issues a conditional write, so two racing clients cannot both win a
// step: the loser's filter matches zero rows.
type Negotiator struct {
	store  Store
	oracle Oracle
}

func NewNegotiator(store Store, oracle Oracle) *Negotiator {
	return &Negotiator{store: store, oracle: oracle}
}

// SelectRole starts the round: only the current customer may call it,
// and only while no unresolved round exists. The round row is inserted
// whole, with the real seller recorded at insert time.
func (n *Negotiator) SelectRole(ctx context.Context, session *Session, userID, roleID string) (*Round, error) {
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if !IsParticipant(session, userID) {
		return nil, ErrNotAParticipant
	}
	if session.Status != StatusInProgress {
		return nil, ErrRoundNotReady
	}
	if !IsCustomer(session, userID) {
		return nil, ErrInvalidTurn
	}
	latest, err := n.store.LatestRound(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if latest != nil && !latest.Resolved() {
		return nil, ErrInvalidTurn
	}
	if _, err := n.store.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	sellerID, ok := SellerID(session)
	if !ok {
		return nil, ErrRoundNotReady
	}
	round := &Round{
		SessionID:      session.ID,
		CustomerID:     userID,
		SellerID:       sellerID,
		SelectedRoleID: &roleID,
	}
	if err := n.store.InsertRound(ctx, round); err != nil {
		return nil, err
	}
	n.audit(ctx, session.ID, "role_selected", map[string]any{
		"round_id": round.ID,
		"role_id":  roleID,
		"user_id":  userID,
	})
	return round, nil
}

// SelectWords records the seller's product: exactly two distinct
// catalog words, written together, and only once the customer's role
// pick is observed on the active round.
func (n *Negotiator) SelectWords(ctx context.Context, session *Session, userID string, wordIDs []string) (*Round, error) {
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if !IsParticipant(session, userID) {
		return nil, ErrNotAParticipant
	}
	if session.Status != StatusInProgress {
		return nil, ErrRoundNotReady
	}
	if !IsSeller(session, userID) {
		return nil, ErrInvalidTurn
	}
	if len(wordIDs) != 2 || wordIDs[0] == wordIDs[1] {
		return nil, ErrInvalidSelection
	}
	if _, err := n.store.GetWords(ctx, wordIDs); err != nil {
		return nil, err
	}
	latest, err := n.store.LatestRound(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if latest == nil || latest.Resolved() || latest.SelectedRoleID == nil {
		return nil, ErrRoundNotReady
	}
	if latest.HasWords() {
		return nil, ErrInvalidTurn
	}
	round, err := n.store.SetRoundWords(ctx, latest.ID, wordIDs[0], wordIDs[1])
	if err != nil {
		return nil, err
	}
	n.audit(ctx, session.ID, "words_selected", map[string]any{
		"round_id": round.ID,
		"word_ids": wordIDs,
		"user_id":  userID,
	})
	return round, nil
}

// ResolvePitch records the customer's verdict and advances the session
// to the next round, clearing both ready flags with the increment. The
// verdict is written at most once per round.
func (n *Negotiator) ResolvePitch(ctx context.Context, session *Session, userID string, accepted bool) (*Round, *Session, error) {
	if session == nil {
		return nil, nil, ErrSessionNotFound
	}
	if !IsParticipant(session, userID) {
		return nil, nil, ErrNotAParticipant
	}
	if session.Status != StatusInProgress {
		return nil, nil, ErrRoundNotReady
	}
	if !IsCustomer(session, userID) {
		return nil, nil, ErrInvalidTurn
	}
	if !NewGate(session).Revealed() {
		return nil, nil, ErrRoundNotReady
	}
	latest, err := n.store.LatestRound(ctx, session.ID)
	if err != nil {
		return nil, nil, err
	}
	if latest == nil {
		return nil, nil, ErrRoundNotReady
	}
	if latest.Resolved() {
		return nil, nil, ErrAlreadyResolved
	}
	if !latest.HasWords() {
		return nil, nil, ErrRoundNotReady
	}
	round, err := n.store.ResolveRound(ctx, latest.ID, accepted)
	if err != nil {
		return nil, nil, err
	}
	n.audit(ctx, session.ID, "pitch_resolved", map[string]any{
		"round_id": round.ID,
		"accepted": accepted,
		"user_id":  userID,
	})
	advanced, err := n.store.AdvanceRound(ctx, session.ID, session.CurrentRound)
	if errors.Is(err, ErrSessionUnavailable) {
		// Another writer moved the counter between our read and the
		// conditional advance; the verdict stood, so take their word
		// for the session row.
		advanced, err = n.store.GetSession(ctx, session.ID)
	}
	if err != nil {
		return round, nil, err
	}
	n.audit(ctx, session.ID, "round_advanced", map[string]any{
		"current_round": advanced.CurrentRound,
	})
	return round, advanced, nil
}

// RoleOffer and WordOffer sample the catalogs for the side currently
// choosing. The oracle is an opaque random source; offers are not
// persisted and a re-fetch may differ.
func (n *Negotiator) RoleOffer(ctx context.Context, size int) ([]Role, error) {
	return n.oracle.RandomRoles(ctx, size)
}

func (n *Negotiator) WordOffer(ctx context.Context, size int) ([]Word, error) {
	return n.oracle.RandomWords(ctx, size)
}

// Audit rows are best effort; the handshake does not depend on them.
func (n *Negotiator) audit(ctx context.Context, sessionID, eventType string, payload map[string]any) {
	_ = n.store.AppendEvent(ctx, sessionID, eventType, payload)
}
