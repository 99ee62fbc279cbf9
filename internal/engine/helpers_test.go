package engine

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/aysenurcaglar/snake-oil-game/internal/feed"
)

func newTestEngine(t *testing.T) (*Engine, *MemoryStore, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	bus := feed.NewBus(32)
	store := NewMemoryStore(bus, clock)
	eng := New(store, store, bus, Options{Clock: clock})
	return eng, store, clock
}

// startSession creates a session, joins the guest and returns the
// session in its in_progress state. Round 1, host is the customer.
func startSession(t *testing.T, eng *Engine) *Session {
	t.Helper()
	ctx := context.Background()
	created, err := eng.CreateSession(ctx, "host")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	session, err := eng.JoinSession(ctx, created.ID, "guest")
	if err != nil {
		t.Fatalf("join session: %v", err)
	}
	return session
}

// runHandshake walks one full round up to just before the verdict:
// customer role pick, seller words, both ready.
func runHandshake(t *testing.T, eng *Engine, session *Session) *Round {
	t.Helper()
	ctx := context.Background()
	customerID, _ := CustomerID(session)
	sellerID, _ := SellerID(session)

	roles, _, err := eng.Offer(ctx, session.ID, customerID)
	if err != nil {
		t.Fatalf("role offer: %v", err)
	}
	round, err := eng.SelectRole(ctx, session.ID, customerID, roles[0].ID)
	if err != nil {
		t.Fatalf("select role: %v", err)
	}

	_, words, err := eng.Offer(ctx, session.ID, sellerID)
	if err != nil {
		t.Fatalf("word offer: %v", err)
	}
	round, err = eng.SelectWords(ctx, session.ID, sellerID, []string{words[0].ID, words[1].ID})
	if err != nil {
		t.Fatalf("select words: %v", err)
	}

	if _, err := eng.MarkReady(ctx, session.ID, session.HostID); err != nil {
		t.Fatalf("host ready: %v", err)
	}
	if _, err := eng.MarkReady(ctx, session.ID, *session.GuestID); err != nil {
		t.Fatalf("guest ready: %v", err)
	}
	return round
}

func waitFor(t *testing.T, description string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", description)
}

func strptr(value string) *string {
	return &value
}

func boolptr(value bool) *bool {
	return &value
}
