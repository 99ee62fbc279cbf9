// Package feed carries row-change notifications between the participants
// of a game session. Every event is a full replacement of the row it
// describes, so consumers can merge duplicates and out-of-order
// deliveries safely.
package feed

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
)

const (
	TableSessions = "game_sessions"
	TableRounds   = "rounds"
	TableMessages = "game_messages"
)

const (
	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
)

// Event is one change notification. New holds the entire row after the
// write, never a delta.
type Event struct {
	SessionID string          `json:"session_id"`
	Table     string          `json:"table"`
	Op        string          `json:"op"`
	New       json.RawMessage `json:"new"`
}

type Handler func(Event)

type Subscription interface {
	Unsubscribe() error
}

// Feed is the pub/sub transport contract. Delivery is at-least-once and
// unordered across tables. The resync callback fires after a transport
// reconnect, before streaming resumes; events missed during the gap are
// not replayed, so subscribers must re-fetch their snapshot there.
type Feed interface {
	Publish(event Event) error
	Subscribe(sessionID string, handler Handler, resync func()) (Subscription, error)
}

// Bus is the in-process Feed used when no NATS server is configured and
// by tests. Each subscriber drains its own buffered channel; a
// subscriber that falls behind has events dropped, which the snapshot
// re-fetch path tolerates.
type Bus struct {
	mu     sync.Mutex
	buffer int
	subs   map[string]map[*busSub]struct{}
}

type busSub struct {
	bus       *Bus
	sessionID string
	events    chan Event
	done      chan struct{}
	once      sync.Once
}

func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 32
	}
	return &Bus{
		buffer: buffer,
		subs:   make(map[string]map[*busSub]struct{}),
	}
}

func (b *Bus) Publish(event Event) error {
	if event.SessionID == "" {
		return errors.New("event has no session id")
	}
	b.mu.Lock()
	subs := make([]*busSub, 0, len(b.subs[event.SessionID]))
	for sub := range b.subs[event.SessionID] {
		subs = append(subs, sub)
	}
	b.mu.Unlock()
	for _, sub := range subs {
		select {
		case sub.events <- event:
		default:
			log.Printf("feed subscriber lagging session_id=%s table=%s dropped=1", event.SessionID, event.Table)
		}
	}
	return nil
}

func (b *Bus) Subscribe(sessionID string, handler Handler, resync func()) (Subscription, error) {
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}
	if handler == nil {
		return nil, errors.New("handler is required")
	}
	sub := &busSub{
		bus:       b,
		sessionID: sessionID,
		events:    make(chan Event, b.buffer),
		done:      make(chan struct{}),
	}
	b.mu.Lock()
	group := b.subs[sessionID]
	if group == nil {
		group = make(map[*busSub]struct{})
		b.subs[sessionID] = group
	}
	group[sub] = struct{}{}
	b.mu.Unlock()
	go func() {
		for {
			select {
			case event := <-sub.events:
				handler(event)
			case <-sub.done:
				return
			}
		}
	}()
	return sub, nil
}

func (s *busSub) Unsubscribe() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		if group := s.bus.subs[s.sessionID]; group != nil {
			delete(group, s)
			if len(group) == 0 {
				delete(s.bus.subs, s.sessionID)
			}
		}
		s.bus.mu.Unlock()
		close(s.done)
	})
	return nil
}
