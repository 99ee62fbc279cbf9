package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/aysenurcaglar/snake-oil-game/internal/feed"
)

// MemoryStore implements Store and Oracle over process memory. It is
// the backend when no DATABASE_URL is configured and the fixture for
// engine tests; the conditional-write semantics match the SQL store
// exactly, including which precondition error a lost race surfaces.
type MemoryStore struct {
	mu       sync.Mutex
	feed     feed.Feed
	clock    clockwork.Clock
	sessions map[string]*Session
	rounds   map[string]*Round
	messages map[string][]ChatMessage
	events   map[string][]EventRecord
	roles    []Role
	words    []Word
}

func NewMemoryStore(bus feed.Feed, clock clockwork.Clock) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	store := &MemoryStore{
		feed:     bus,
		clock:    clock,
		sessions: make(map[string]*Session),
		rounds:   make(map[string]*Round),
		messages: make(map[string][]ChatMessage),
		events:   make(map[string][]EventRecord),
	}
	for _, name := range DefaultRoleNames() {
		store.roles = append(store.roles, Role{ID: uuid.NewString(), Name: name})
	}
	for _, word := range DefaultWordList() {
		store.words = append(store.words, Word{ID: uuid.NewString(), Word: word})
	}
	return store
}

func (m *MemoryStore) publish(sessionID, table, op string, row any) {
	if m.feed == nil {
		return
	}
	data, err := json.Marshal(row)
	if err != nil {
		log.Printf("feed publish marshal failed session_id=%s table=%s error=%v", sessionID, table, err)
		return
	}
	if err := m.feed.Publish(feed.Event{SessionID: sessionID, Table: table, Op: op, New: data}); err != nil {
		log.Printf("feed publish failed session_id=%s table=%s error=%v", sessionID, table, err)
	}
}

func (m *MemoryStore) CreateSession(ctx context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := m.clock.Now().UTC()
	session.Status = StatusWaiting
	session.CurrentRound = 1
	session.CreatedAt = now
	session.UpdatedAt = now
	m.sessions[session.ID] = session.Clone()
	m.publish(session.ID, feed.TableSessions, feed.OpInsert, session)
	return nil
}

func (m *MemoryStore) GetSession(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session.Clone(), nil
}

func (m *MemoryStore) FindSessionByJoinCode(ctx context.Context, code string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, session := range m.sessions {
		if session.JoinCode == code {
			return session.Clone(), nil
		}
	}
	return nil, ErrSessionNotFound
}

func (m *MemoryStore) ClaimGuestSeat(ctx context.Context, sessionID, guestID string) (*Session, error) {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	if session.Status != StatusWaiting || session.GuestID != nil {
		m.mu.Unlock()
		return nil, ErrSessionUnavailable
	}
	session.GuestID = &guestID
	session.Status = StatusInProgress
	session.UpdatedAt = m.clock.Now().UTC()
	clone := session.Clone()
	m.mu.Unlock()
	m.publish(sessionID, feed.TableSessions, feed.OpUpdate, clone)
	return clone, nil
}

func (m *MemoryStore) ReleaseGuestSeat(ctx context.Context, sessionID, guestID string) (*Session, error) {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	if session.Status == StatusCompleted {
		m.mu.Unlock()
		return nil, ErrSessionUnavailable
	}
	if session.GuestID == nil || *session.GuestID != guestID {
		m.mu.Unlock()
		return nil, ErrNotAParticipant
	}
	session.GuestID = nil
	session.GuestReady = false
	session.Status = StatusWaiting
	session.UpdatedAt = m.clock.Now().UTC()
	clone := session.Clone()
	m.mu.Unlock()
	m.publish(sessionID, feed.TableSessions, feed.OpUpdate, clone)
	return clone, nil
}

func (m *MemoryStore) CompleteSession(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	if session.Status == StatusCompleted {
		clone := session.Clone()
		m.mu.Unlock()
		return clone, nil
	}
	session.Status = StatusCompleted
	session.UpdatedAt = m.clock.Now().UTC()
	clone := session.Clone()
	m.mu.Unlock()
	m.publish(sessionID, feed.TableSessions, feed.OpUpdate, clone)
	return clone, nil
}

func (m *MemoryStore) SetReadyFlag(ctx context.Context, sessionID string, host bool) (*Session, error) {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	if session.Status != StatusInProgress {
		m.mu.Unlock()
		return nil, ErrRoundNotReady
	}
	already := (host && session.HostReady) || (!host && session.GuestReady)
	if already {
		clone := session.Clone()
		m.mu.Unlock()
		return clone, nil
	}
	if host {
		session.HostReady = true
	} else {
		session.GuestReady = true
	}
	session.UpdatedAt = m.clock.Now().UTC()
	clone := session.Clone()
	m.mu.Unlock()
	m.publish(sessionID, feed.TableSessions, feed.OpUpdate, clone)
	return clone, nil
}

func (m *MemoryStore) AdvanceRound(ctx context.Context, sessionID string, fromRound int) (*Session, error) {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	if session.Status != StatusInProgress || session.CurrentRound != fromRound {
		m.mu.Unlock()
		return nil, ErrSessionUnavailable
	}
	session.CurrentRound = fromRound + 1
	session.HostReady = false
	session.GuestReady = false
	session.UpdatedAt = m.clock.Now().UTC()
	clone := session.Clone()
	m.mu.Unlock()
	m.publish(sessionID, feed.TableSessions, feed.OpUpdate, clone)
	return clone, nil
}

func (m *MemoryStore) InsertRound(ctx context.Context, round *Round) error {
	m.mu.Lock()
	if _, ok := m.sessions[round.SessionID]; !ok {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	for _, existing := range m.rounds {
		if existing.SessionID == round.SessionID && !existing.Resolved() {
			m.mu.Unlock()
			return ErrInvalidTurn
		}
	}
	if round.ID == "" {
		round.ID = uuid.NewString()
	}
	now := m.clock.Now().UTC()
	round.CreatedAt = now
	round.UpdatedAt = now
	m.rounds[round.ID] = round.Clone()
	clone := round.Clone()
	m.mu.Unlock()
	m.publish(round.SessionID, feed.TableRounds, feed.OpInsert, clone)
	return nil
}

func (m *MemoryStore) LatestRound(ctx context.Context, sessionID string) (*Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matching := make(map[string]*Round)
	for id, round := range m.rounds {
		if round.SessionID == sessionID {
			matching[id] = round
		}
	}
	return currentRoundOf(matching).Clone(), nil
}

func (m *MemoryStore) SetRoundWords(ctx context.Context, roundID, word1ID, word2ID string) (*Round, error) {
	m.mu.Lock()
	round, ok := m.rounds[roundID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrRoundNotReady
	}
	if round.Resolved() {
		m.mu.Unlock()
		return nil, ErrAlreadyResolved
	}
	if round.SelectedRoleID == nil || round.HasWords() {
		m.mu.Unlock()
		return nil, ErrRoundNotReady
	}
	round.Word1ID = &word1ID
	round.Word2ID = &word2ID
	round.UpdatedAt = m.clock.Now().UTC()
	clone := round.Clone()
	m.mu.Unlock()
	m.publish(clone.SessionID, feed.TableRounds, feed.OpUpdate, clone)
	return clone, nil
}

func (m *MemoryStore) ResolveRound(ctx context.Context, roundID string, accepted bool) (*Round, error) {
	m.mu.Lock()
	round, ok := m.rounds[roundID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrRoundNotReady
	}
	if round.Resolved() {
		m.mu.Unlock()
		return nil, ErrAlreadyResolved
	}
	if !round.HasWords() {
		m.mu.Unlock()
		return nil, ErrRoundNotReady
	}
	round.Accepted = &accepted
	round.UpdatedAt = m.clock.Now().UTC()
	clone := round.Clone()
	m.mu.Unlock()
	m.publish(clone.SessionID, feed.TableRounds, feed.OpUpdate, clone)
	return clone, nil
}

func (m *MemoryStore) AppendMessage(ctx context.Context, message *ChatMessage) error {
	m.mu.Lock()
	session, ok := m.sessions[message.SessionID]
	if !ok {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	if session.Status == StatusCompleted {
		m.mu.Unlock()
		return ErrSessionUnavailable
	}
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	message.CreatedAt = m.clock.Now().UTC()
	m.messages[message.SessionID] = append(m.messages[message.SessionID], *message)
	clone := *message
	m.mu.Unlock()
	m.publish(clone.SessionID, feed.TableMessages, feed.OpInsert, clone)
	return nil
}

func (m *MemoryStore) ListMessages(ctx context.Context, sessionID string) ([]ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	messages := make([]ChatMessage, len(m.messages[sessionID]))
	copy(messages, m.messages[sessionID])
	sort.Slice(messages, func(i, j int) bool {
		if !messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].CreatedAt.Before(messages[j].CreatedAt)
		}
		return messages[i].ID < messages[j].ID
	})
	return messages, nil
}

func (m *MemoryStore) AppendEvent(ctx context.Context, sessionID, eventType string, payload map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[sessionID] = append(m.events[sessionID], EventRecord{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Type:      eventType,
		Payload:   payload,
		CreatedAt: m.clock.Now().UTC(),
	})
	return nil
}

func (m *MemoryStore) ListEvents(ctx context.Context, sessionID string) ([]EventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := make([]EventRecord, len(m.events[sessionID]))
	copy(events, m.events[sessionID])
	return events, nil
}

func (m *MemoryStore) GetRole(ctx context.Context, id string) (*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, role := range m.roles {
		if role.ID == id {
			found := role
			return &found, nil
		}
	}
	return nil, ErrInvalidSelection
}

func (m *MemoryStore) GetWords(ctx context.Context, ids []string) ([]Word, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	words := make([]Word, 0, len(ids))
	for _, id := range ids {
		found := false
		for _, word := range m.words {
			if word.ID == id {
				words = append(words, word)
				found = true
				break
			}
		}
		if !found {
			return nil, ErrInvalidSelection
		}
	}
	return words, nil
}

func (m *MemoryStore) RandomRoles(ctx context.Context, n int) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > len(m.roles) {
		return nil, fmt.Errorf("role catalog has %d entries, need %d", len(m.roles), n)
	}
	sample := make([]Role, len(m.roles))
	copy(sample, m.roles)
	rand.Shuffle(len(sample), func(i, j int) {
		sample[i], sample[j] = sample[j], sample[i]
	})
	return sample[:n], nil
}

func (m *MemoryStore) RandomWords(ctx context.Context, n int) ([]Word, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > len(m.words) {
		return nil, fmt.Errorf("word catalog has %d entries, need %d", len(m.words), n)
	}
	sample := make([]Word, len(m.words))
	copy(sample, m.words)
	rand.Shuffle(len(sample), func(i, j int) {
		sample[i], sample[j] = sample[j], sample[i]
	})
	return sample[:n], nil
}
