package engine

import (
	"context"
	"crypto/rand"
	"errors"
	"log"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/aysenurcaglar/snake-oil-game/internal/feed"
)

const maxChatLength = 280

// Engine wires the store, the change feed and the oracle into the
// command set the presentation layer drives. One Engine serves the
// whole process; per-session state lives in Coordinators created by
// Enter.
type Engine struct {
	store      Store
	oracle     Oracle
	feed       feed.Feed
	clock      clockwork.Clock
	negotiator *Negotiator
	roleSample int
	wordSample int
}

type Options struct {
	RoleSampleSize int
	WordSampleSize int
	Clock          clockwork.Clock
}

func New(store Store, oracle Oracle, transport feed.Feed, opts Options) *Engine {
	if opts.RoleSampleSize <= 0 {
		opts.RoleSampleSize = 2
	}
	if opts.WordSampleSize <= 0 {
		opts.WordSampleSize = 6
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Engine{
		store:      store,
		oracle:     oracle,
		feed:       transport,
		clock:      opts.Clock,
		negotiator: NewNegotiator(store, oracle),
		roleSample: opts.RoleSampleSize,
		wordSample: opts.WordSampleSize,
	}
}

func newJoinCode() string {
	const alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "AAAAAA"
	}
	for i := range buf {
		buf[i] = alphabet[int(buf[i])%len(alphabet)]
	}
	return string(buf)
}

func (e *Engine) CreateSession(ctx context.Context, hostID string) (*Session, error) {
	if hostID == "" {
		return nil, ErrNotAParticipant
	}
	session := &Session{
		HostID:   hostID,
		JoinCode: newJoinCode(),
	}
	if err := e.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	e.audit(ctx, session.ID, "session_created", map[string]any{
		"host_id":   hostID,
		"join_code": session.JoinCode,
	})
	log.Printf("session created session_id=%s join_code=%s host_id=%s", session.ID, session.JoinCode, hostID)
	return session, nil
}

// ResolveSession looks a session up by id, falling back to join code.
func (e *Engine) ResolveSession(ctx context.Context, idOrCode string) (*Session, error) {
	session, err := e.store.GetSession(ctx, idOrCode)
	if errors.Is(err, ErrSessionNotFound) {
		return e.store.FindSessionByJoinCode(ctx, idOrCode)
	}
	return session, err
}

// JoinSession claims the guest seat. Under a join race the conditional
// seat claim admits exactly one guest; the loser gets
// ErrSessionUnavailable.
func (e *Engine) JoinSession(ctx context.Context, idOrCode, guestID string) (*Session, error) {
	if guestID == "" {
		return nil, ErrNotAParticipant
	}
	session, err := e.ResolveSession(ctx, idOrCode)
	if err != nil {
		return nil, err
	}
	if session.HostID == guestID {
		return nil, ErrSessionUnavailable
	}
	joined, err := e.store.ClaimGuestSeat(ctx, session.ID, guestID)
	if err != nil {
		return nil, err
	}
	e.audit(ctx, joined.ID, "guest_joined", map[string]any{"guest_id": guestID})
	log.Printf("guest joined session_id=%s guest_id=%s", joined.ID, guestID)
	return joined, nil
}

// Leave ends the caller's participation. The host leaving completes the
// session (terminal); the guest leaving returns it to waiting so a new
// guest can join.
func (e *Engine) Leave(ctx context.Context, sessionID, userID string) (*Session, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	switch {
	case session.HostID == userID:
		completed, err := e.store.CompleteSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		e.audit(ctx, sessionID, "session_completed", map[string]any{"reason": "host_left"})
		log.Printf("session completed session_id=%s reason=host_left", sessionID)
		return completed, nil
	case session.GuestID != nil && *session.GuestID == userID:
		released, err := e.store.ReleaseGuestSeat(ctx, sessionID, userID)
		if err != nil {
			return nil, err
		}
		e.audit(ctx, sessionID, "guest_left", map[string]any{"guest_id": userID})
		log.Printf("guest left session_id=%s guest_id=%s", sessionID, userID)
		return released, nil
	default:
		return nil, ErrNotAParticipant
	}
}

// MarkReady sets the caller's ready flag. Idempotent: re-marking an
// already-ready side succeeds without a write.
func (e *Engine) MarkReady(ctx context.Context, sessionID, userID string) (*Session, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !IsParticipant(session, userID) {
		return nil, ErrNotAParticipant
	}
	marked, err := e.store.SetReadyFlag(ctx, sessionID, session.HostID == userID)
	if err != nil {
		return nil, err
	}
	e.audit(ctx, sessionID, "ready_marked", map[string]any{"user_id": userID})
	return marked, nil
}

func (e *Engine) SelectRole(ctx context.Context, sessionID, userID, roleID string) (*Round, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return e.negotiator.SelectRole(ctx, session, userID, roleID)
}

func (e *Engine) SelectWords(ctx context.Context, sessionID, userID string, wordIDs []string) (*Round, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return e.negotiator.SelectWords(ctx, session, userID, wordIDs)
}

func (e *Engine) ResolvePitch(ctx context.Context, sessionID, userID string, accepted bool) (*Round, *Session, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	return e.negotiator.ResolvePitch(ctx, session, userID, accepted)
}

func (e *Engine) SendChat(ctx context.Context, sessionID, userID, content string) (*ChatMessage, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !IsParticipant(session, userID) {
		return nil, ErrNotAParticipant
	}
	content = strings.TrimSpace(content)
	if content == "" || len(content) > maxChatLength {
		return nil, ErrInvalidSelection
	}
	message := &ChatMessage{
		SessionID: sessionID,
		UserID:    userID,
		Content:   content,
	}
	if err := e.store.AppendMessage(ctx, message); err != nil {
		return nil, err
	}
	return message, nil
}

// Offer returns the caller's current catalog sample: buyer personas for
// the customer, product words for the seller.
func (e *Engine) Offer(ctx context.Context, sessionID, userID string) ([]Role, []Word, error) {
	session, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if !IsParticipant(session, userID) {
		return nil, nil, ErrNotAParticipant
	}
	if session.Status != StatusInProgress {
		return nil, nil, ErrRoundNotReady
	}
	if IsCustomer(session, userID) {
		roles, err := e.negotiator.RoleOffer(ctx, e.roleSample)
		return roles, nil, err
	}
	words, err := e.negotiator.WordOffer(ctx, e.wordSample)
	return nil, words, err
}

func (e *Engine) Store() Store {
	return e.store
}

func (e *Engine) audit(ctx context.Context, sessionID, eventType string, payload map[string]any) {
	_ = e.store.AppendEvent(ctx, sessionID, eventType, payload)
}
