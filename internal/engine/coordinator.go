package engine

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/aysenurcaglar/snake-oil-game/internal/feed"
)

// Coordinator is one participant's live view of one session. It is
// constructed at session enter, fetches a snapshot, subscribes to the
// change feed, and from then on reconciles every inbound event into its
// local state, including the echoes of its own writes. Reconciliation
// is idempotent and order-insensitive; see reconcile.go. Close tears
// the subscription down; events arriving after Close are ignored.
type Coordinator struct {
	mu        sync.Mutex
	eng       *Engine
	sessionID string
	userID    string
	onChange  func()

	session    *Session
	rounds     map[string]*Round
	chat       map[string]ChatMessage
	roleNames  map[string]string
	wordTexts  map[string]string
	roleOffer  []Role
	wordOffer  []Word
	offerRound int

	sub    feed.Subscription
	closed bool
}

// Snapshot is the read-only state exposed to the presentation layer.
// Round content (the buyer persona's name, the product words, chat) is
// populated only once both sides are ready, so neither participant
// ever sees a half-exposed round.
type Snapshot struct {
	Session          *Session
	Round            *Round
	IsCustomer       bool
	IsMyTurn         bool
	BothReady        bool
	Revealed         bool
	RoleSelected     bool
	WordsSelected    bool
	CustomerRoleName string
	Product          []string
	Chat             []ChatMessage
	RoleOffer        []Role
	WordOffer        []Word
}

// Enter builds the coordinator for one participant: snapshot fetch,
// then subscribe. onChange fires after every reconciled change and
// drives the presentation layer's re-render.
func (e *Engine) Enter(ctx context.Context, idOrCode, userID string, onChange func()) (*Coordinator, error) {
	session, err := e.ResolveSession(ctx, idOrCode)
	if err != nil {
		return nil, err
	}
	if !IsParticipant(session, userID) {
		return nil, ErrNotAParticipant
	}
	c := &Coordinator{
		eng:       e,
		sessionID: session.ID,
		userID:    userID,
		onChange:  onChange,
		rounds:    make(map[string]*Round),
		chat:      make(map[string]ChatMessage),
		roleNames: make(map[string]string),
		wordTexts: make(map[string]string),
	}
	if err := c.refetch(ctx); err != nil {
		return nil, err
	}
	sub, err := e.feed.Subscribe(session.ID, c.handleEvent, c.Resync)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()
	return c, nil
}

// refetch pulls a fresh session+round+chat snapshot from the store and
// merges it through the same rules as feed events, so it is safe to run
// concurrently with streaming delivery.
func (c *Coordinator) refetch(ctx context.Context) error {
	session, err := c.eng.store.GetSession(ctx, c.sessionID)
	if err != nil {
		return err
	}
	latest, err := c.eng.store.LatestRound(ctx, c.sessionID)
	if err != nil {
		return err
	}
	messages, err := c.eng.store.ListMessages(ctx, c.sessionID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.mergeSessionLocked(session)
	if latest != nil {
		c.mergeRoundLocked(ctx, latest)
	}
	for _, message := range messages {
		c.chat[message.ID] = message
	}
	c.ensureOffersLocked(ctx)
	c.mu.Unlock()
	return nil
}

// Resync closes the missed-event window after a feed reconnect: events
// dropped during the gap are not replayed, so the snapshot is re-read
// before streaming resumes.
func (c *Coordinator) Resync() {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}
	if err := c.refetch(context.Background()); err != nil {
		log.Printf("resync failed session_id=%s user_id=%s error=%v", c.sessionID, c.userID, err)
		return
	}
	c.notify()
}

func (c *Coordinator) handleEvent(event feed.Event) {
	if event.SessionID != c.sessionID {
		return
	}
	ctx := context.Background()
	changed := false
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	switch event.Table {
	case feed.TableSessions:
		var session Session
		if err := json.Unmarshal(event.New, &session); err != nil {
			log.Printf("session event malformed session_id=%s error=%v", c.sessionID, err)
			break
		}
		changed = c.mergeSessionLocked(&session)
	case feed.TableRounds:
		var round Round
		if err := json.Unmarshal(event.New, &round); err != nil {
			log.Printf("round event malformed session_id=%s error=%v", c.sessionID, err)
			break
		}
		changed = c.mergeRoundLocked(ctx, &round)
	case feed.TableMessages:
		var message ChatMessage
		if err := json.Unmarshal(event.New, &message); err != nil {
			log.Printf("chat event malformed session_id=%s error=%v", c.sessionID, err)
			break
		}
		if _, seen := c.chat[message.ID]; !seen {
			c.chat[message.ID] = message
			changed = true
		}
	default:
		log.Printf("feed event for unknown table session_id=%s table=%s", c.sessionID, event.Table)
	}
	if changed {
		c.ensureOffersLocked(ctx)
	}
	c.mu.Unlock()
	if changed {
		c.notify()
	}
}

func (c *Coordinator) mergeSessionLocked(session *Session) bool {
	if !sessionSupersedes(session, c.session) {
		return false
	}
	c.session = session.Clone()
	return true
}

func (c *Coordinator) mergeRoundLocked(ctx context.Context, round *Round) bool {
	existing := c.rounds[round.ID]
	if existing != nil && !roundSupersedes(round, existing) {
		return false
	}
	c.rounds[round.ID] = round.Clone()
	c.cacheNamesLocked(ctx, round)
	return true
}

// cacheNamesLocked resolves catalog names referenced by a round so the
// snapshot can label them without a read on every render.
func (c *Coordinator) cacheNamesLocked(ctx context.Context, round *Round) {
	if round.SelectedRoleID != nil {
		if _, ok := c.roleNames[*round.SelectedRoleID]; !ok {
			if role, err := c.eng.store.GetRole(ctx, *round.SelectedRoleID); err == nil {
				c.roleNames[role.ID] = role.Name
			}
		}
	}
	if round.HasWords() {
		missing := make([]string, 0, 2)
		for _, id := range []string{*round.Word1ID, *round.Word2ID} {
			if _, ok := c.wordTexts[id]; !ok {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			if words, err := c.eng.store.GetWords(ctx, missing); err == nil {
				for _, word := range words {
					c.wordTexts[word.ID] = word.Word
				}
			}
		}
	}
}

// ensureOffersLocked keeps one catalog sample per side per round.
// Offers reset when the round counter moves; turn derivation is
// recomputed here rather than cached, so a reconnect cannot leave a
// stale role behind.
func (c *Coordinator) ensureOffersLocked(ctx context.Context) {
	if c.session == nil || c.session.Status != StatusInProgress {
		return
	}
	if c.offerRound != c.session.CurrentRound {
		c.roleOffer = nil
		c.wordOffer = nil
		c.offerRound = c.session.CurrentRound
	}
	if IsCustomer(c.session, c.userID) && c.roleOffer == nil {
		roles, err := c.eng.negotiator.RoleOffer(ctx, c.eng.roleSample)
		if err != nil {
			log.Printf("role offer failed session_id=%s error=%v", c.sessionID, err)
			return
		}
		c.roleOffer = roles
		for _, role := range roles {
			c.roleNames[role.ID] = role.Name
		}
	}
	if IsSeller(c.session, c.userID) && c.wordOffer == nil {
		words, err := c.eng.negotiator.WordOffer(ctx, c.eng.wordSample)
		if err != nil {
			log.Printf("word offer failed session_id=%s error=%v", c.sessionID, err)
			return
		}
		c.wordOffer = words
		for _, word := range words {
			c.wordTexts[word.ID] = word.Word
		}
	}
}

func (c *Coordinator) notify() {
	if c.onChange != nil {
		c.onChange()
	}
}

// apply merges the rows returned by the coordinator's own writes. The
// feed will echo the same rows later; the merge rules make the echo a
// no-op.
func (c *Coordinator) apply(session *Session, round *Round) {
	ctx := context.Background()
	changed := false
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if session != nil {
		changed = c.mergeSessionLocked(session) || changed
	}
	if round != nil {
		changed = c.mergeRoundLocked(ctx, round) || changed
	}
	if changed {
		c.ensureOffersLocked(ctx)
	}
	c.mu.Unlock()
	if changed {
		c.notify()
	}
}

func (c *Coordinator) openRoundLocked() *Round {
	round := currentRoundOf(c.rounds)
	if round == nil || round.Resolved() {
		return nil
	}
	return round
}

// State derives the observable snapshot from reconciled state. All
// turn/role math is recomputed from the session row on every call.
func (c *Coordinator) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return deriveSnapshot(snapshotInput{
		session:   c.session,
		rounds:    c.rounds,
		chat:      c.chat,
		roleNames: c.roleNames,
		wordTexts: c.wordTexts,
		roleOffer: c.roleOffer,
		wordOffer: c.wordOffer,
		userID:    c.userID,
	})
}

// Commands. Each validates against the reconciled local view first,
// then issues the store write; the store's conditional filter is the
// authority under races.

func (c *Coordinator) MarkReady(ctx context.Context) error {
	session, err := c.eng.MarkReady(ctx, c.sessionID, c.userID)
	if err != nil {
		return err
	}
	c.apply(session, nil)
	return nil
}

func (c *Coordinator) SelectRole(ctx context.Context, roleID string) error {
	c.mu.Lock()
	localTurn := IsCustomer(c.session, c.userID)
	c.mu.Unlock()
	if !localTurn {
		return ErrInvalidTurn
	}
	round, err := c.eng.SelectRole(ctx, c.sessionID, c.userID, roleID)
	if err != nil {
		return err
	}
	c.apply(nil, round)
	return nil
}

func (c *Coordinator) SelectWords(ctx context.Context, wordIDs []string) error {
	c.mu.Lock()
	// The seller is blocked until the customer's role pick has been
	// observed through the feed.
	observedRole := c.openRoundLocked() != nil
	c.mu.Unlock()
	if !observedRole {
		return ErrRoundNotReady
	}
	round, err := c.eng.SelectWords(ctx, c.sessionID, c.userID, wordIDs)
	if err != nil {
		return err
	}
	c.apply(nil, round)
	return nil
}

func (c *Coordinator) ResolvePitch(ctx context.Context, accepted bool) error {
	c.mu.Lock()
	revealed := NewGate(c.session).Revealed()
	c.mu.Unlock()
	if !revealed {
		return ErrRoundNotReady
	}
	round, session, err := c.eng.ResolvePitch(ctx, c.sessionID, c.userID, accepted)
	if err != nil {
		return err
	}
	c.apply(session, round)
	return nil
}

func (c *Coordinator) SendChat(ctx context.Context, content string) error {
	message, err := c.eng.SendChat(ctx, c.sessionID, c.userID, content)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if !c.closed {
		if _, seen := c.chat[message.ID]; !seen {
			c.chat[message.ID] = *message
		}
	}
	c.mu.Unlock()
	c.notify()
	return nil
}

// Leave issues the leave command and tears the coordinator down. The
// session row outcome (completed vs back to waiting) reaches the other
// participant through their own subscription.
func (c *Coordinator) Leave(ctx context.Context) error {
	session, err := c.eng.Leave(ctx, c.sessionID, c.userID)
	if err != nil {
		return err
	}
	c.apply(session, nil)
	c.Close()
	return nil
}

// Close cancels the subscription. In-flight writes already issued are
// left to complete; their feed echoes are ignored once closed.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	sub := c.sub
	c.mu.Unlock()
	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			log.Printf("unsubscribe failed session_id=%s user_id=%s error=%v", c.sessionID, c.userID, err)
		}
	}
}

func (c *Coordinator) SessionID() string {
	return c.sessionID
}

func (c *Coordinator) UserID() string {
	return c.userID
}
