package engine

import (
	"context"
	"sort"
)

type snapshotInput struct {
	session   *Session
	rounds    map[string]*Round
	chat      map[string]ChatMessage
	roleNames map[string]string
	wordTexts map[string]string
	roleOffer []Role
	wordOffer []Word
	userID    string
}

// deriveSnapshot turns reconciled state into the participant view.
// Shared by the coordinator and the request/response snapshot path so
// the reveal gating cannot drift between the two.
func deriveSnapshot(in snapshotInput) Snapshot {
	snapshot := Snapshot{
		Session: in.session.Clone(),
	}
	if in.session == nil {
		return snapshot
	}
	gate := NewGate(in.session)
	latest := currentRoundOf(in.rounds)
	var open *Round
	if latest != nil && !latest.Resolved() {
		open = latest
	}
	snapshot.Round = latest.Clone()
	snapshot.IsCustomer = IsCustomer(in.session, in.userID)
	snapshot.BothReady = gate.BothReady()
	snapshot.Revealed = gate.Revealed()
	snapshot.RoleSelected = open != nil
	snapshot.WordsSelected = open.HasWords()
	if in.session.Status == StatusInProgress {
		if snapshot.IsCustomer {
			snapshot.IsMyTurn = open == nil || (open.HasWords() && snapshot.Revealed)
			snapshot.RoleOffer = append([]Role(nil), in.roleOffer...)
		} else if IsSeller(in.session, in.userID) {
			snapshot.IsMyTurn = open != nil && !open.HasWords()
			snapshot.WordOffer = append([]Word(nil), in.wordOffer...)
		}
	}
	if snapshot.Revealed && open != nil {
		if open.SelectedRoleID != nil {
			snapshot.CustomerRoleName = in.roleNames[*open.SelectedRoleID]
		}
		if open.HasWords() {
			snapshot.Product = []string{in.wordTexts[*open.Word1ID], in.wordTexts[*open.Word2ID]}
		}
	}
	if snapshot.Revealed {
		snapshot.Chat = make([]ChatMessage, 0, len(in.chat))
		for _, message := range in.chat {
			snapshot.Chat = append(snapshot.Chat, message)
		}
		sort.Slice(snapshot.Chat, func(i, j int) bool {
			if !snapshot.Chat[i].CreatedAt.Equal(snapshot.Chat[j].CreatedAt) {
				return snapshot.Chat[i].CreatedAt.Before(snapshot.Chat[j].CreatedAt)
			}
			return snapshot.Chat[i].ID < snapshot.Chat[j].ID
		})
	}
	return snapshot
}

// SnapshotFor derives a participant's view straight from the store,
// for request/response callers that hold no coordinator. Offers are
// not included; they have their own endpoint.
func (e *Engine) SnapshotFor(ctx context.Context, sessionID, userID string) (Snapshot, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	if !IsParticipant(session, userID) {
		return Snapshot{}, ErrNotAParticipant
	}
	latest, err := e.store.LatestRound(ctx, sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	in := snapshotInput{
		session:   session,
		rounds:    make(map[string]*Round),
		chat:      make(map[string]ChatMessage),
		roleNames: make(map[string]string),
		wordTexts: make(map[string]string),
		userID:    userID,
	}
	if latest != nil {
		in.rounds[latest.ID] = latest
		if latest.SelectedRoleID != nil {
			if role, err := e.store.GetRole(ctx, *latest.SelectedRoleID); err == nil {
				in.roleNames[role.ID] = role.Name
			}
		}
		if latest.HasWords() {
			if words, err := e.store.GetWords(ctx, []string{*latest.Word1ID, *latest.Word2ID}); err == nil {
				for _, word := range words {
					in.wordTexts[word.ID] = word.Word
				}
			}
		}
	}
	if NewGate(session).Revealed() {
		messages, err := e.store.ListMessages(ctx, sessionID)
		if err != nil {
			return Snapshot{}, err
		}
		for _, message := range messages {
			in.chat[message.ID] = message
		}
	}
	return deriveSnapshot(in), nil
}
