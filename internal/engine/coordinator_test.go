package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/aysenurcaglar/snake-oil-game/internal/feed"
)

func enter(t *testing.T, eng *Engine, sessionID, userID string) *Coordinator {
	t.Helper()
	coord, err := eng.Enter(context.Background(), sessionID, userID, nil)
	if err != nil {
		t.Fatalf("enter %s: %v", userID, err)
	}
	t.Cleanup(coord.Close)
	return coord
}

func TestCoordinatorsConvergeOnHappyPath(t *testing.T) {
	eng, _, clock := newTestEngine(t)
	ctx := context.Background()
	session := startSession(t, eng)

	host := enter(t, eng, session.ID, "host")
	guest := enter(t, eng, session.ID, "guest")

	// Round 1: host judges, so the host holds a role offer and the
	// guest a word offer.
	waitFor(t, "host role offer", func() bool {
		snap := host.State()
		return snap.IsCustomer && len(snap.RoleOffer) == 2
	})
	waitFor(t, "guest word offer", func() bool {
		snap := guest.State()
		return !snap.IsCustomer && len(snap.WordOffer) == 6
	})

	roleID := host.State().RoleOffer[0].ID
	if err := host.SelectRole(ctx, roleID); err != nil {
		t.Fatalf("host role pick: %v", err)
	}
	waitFor(t, "guest observing role pick", func() bool {
		return guest.State().RoleSelected
	})

	wordOffer := guest.State().WordOffer
	if err := guest.SelectWords(ctx, []string{wordOffer[0].ID, wordOffer[1].ID}); err != nil {
		t.Fatalf("guest words: %v", err)
	}
	waitFor(t, "host observing words", func() bool {
		snap := host.State()
		return snap.WordsSelected && !snap.Revealed
	})
	if host.State().CustomerRoleName != "" || len(host.State().Product) != 0 {
		t.Fatal("round content leaked before both sides were ready")
	}

	clock.Advance(time.Second)
	if err := host.MarkReady(ctx); err != nil {
		t.Fatalf("host ready: %v", err)
	}
	if err := guest.MarkReady(ctx); err != nil {
		t.Fatalf("guest ready: %v", err)
	}
	waitFor(t, "both sides revealed", func() bool {
		return host.State().Revealed && guest.State().Revealed
	})
	if host.State().CustomerRoleName == "" || len(guest.State().Product) != 2 {
		t.Fatalf("expected revealed content on both sides: host=%+v guest=%+v",
			host.State(), guest.State())
	}
	waitFor(t, "customer turn to judge", func() bool {
		return host.State().IsMyTurn
	})

	if err := guest.SendChat(ctx, "two words, zero refunds"); err != nil {
		t.Fatalf("chat: %v", err)
	}
	waitFor(t, "chat visible to both", func() bool {
		return len(host.State().Chat) == 1 && len(guest.State().Chat) == 1
	})

	clock.Advance(time.Second)
	if err := host.ResolvePitch(ctx, true); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	waitFor(t, "round advance on both sides", func() bool {
		hostSnap, guestSnap := host.State(), guest.State()
		return hostSnap.Session.CurrentRound == 2 && guestSnap.Session.CurrentRound == 2 &&
			!hostSnap.Session.HostReady && !guestSnap.Session.GuestReady
	})

	// Roles flipped: the guest judges round 2.
	waitFor(t, "roles flipped", func() bool {
		return guest.State().IsCustomer && !host.State().IsCustomer
	})
	waitFor(t, "fresh offers for round 2", func() bool {
		return len(guest.State().RoleOffer) == 2 && len(host.State().WordOffer) == 6
	})
}

func TestCoordinatorMergesDuplicatesAndReplays(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	session := startSession(t, eng)
	host := enter(t, eng, session.ID, "host")

	stale := host.State().Session.Clone()
	fresh := stale.Clone()
	fresh.CurrentRound = 5
	fresh.HostReady = false
	fresh.GuestReady = false
	fresh.UpdatedAt = stale.UpdatedAt.Add(time.Minute)

	deliver := func(session *Session) {
		data, err := json.Marshal(session)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		host.handleEvent(feed.Event{
			SessionID: session.ID,
			Table:     feed.TableSessions,
			Op:        feed.OpUpdate,
			New:       data,
		})
	}

	// Fresh row, then a duplicate of it, then a stale replay. The view
	// must settle on the fresh row no matter the order.
	deliver(fresh)
	deliver(fresh)
	deliver(stale)
	if got := host.State().Session.CurrentRound; got != 5 {
		t.Fatalf("expected round 5 after replays, got %d", got)
	}

	// Events for other sessions are ignored entirely.
	other := fresh.Clone()
	other.ID = "other-session"
	other.CurrentRound = 9
	deliver(other)
	if got := host.State().Session.CurrentRound; got != 5 {
		t.Fatalf("foreign session event leaked in, round=%d", got)
	}
}

func TestCoordinatorCloseIgnoresLateEvents(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()
	session := startSession(t, eng)

	host := enter(t, eng, session.ID, "host")
	host.Close()

	if _, err := eng.MarkReady(ctx, session.ID, "guest"); err != nil {
		t.Fatalf("guest ready: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if host.State().Session.GuestReady {
		t.Fatal("closed coordinator must not apply late events")
	}
}

func TestCoordinatorChangeNotifications(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()
	session := startSession(t, eng)

	var mu sync.Mutex
	notified := 0
	coord, err := eng.Enter(ctx, session.ID, "host", func() {
		mu.Lock()
		notified++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("enter: %v", err)
	}
	t.Cleanup(coord.Close)

	if _, err := eng.MarkReady(ctx, session.ID, "guest"); err != nil {
		t.Fatalf("guest ready: %v", err)
	}
	waitFor(t, "change notification", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return notified > 0
	})
	waitFor(t, "guest flag observed", func() bool {
		return coord.State().Session.GuestReady
	})
}

func TestJoinRaceAdmitsExactlyOneGuest(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()
	created, err := eng.CreateSession(ctx, "host")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	results := make(chan error, 2)
	for _, guest := range []string{"guest-a", "guest-b"} {
		go func(id string) {
			_, err := eng.JoinSession(ctx, created.ID, id)
			results <- err
		}(guest)
	}
	var wins, losses int
	for i := 0; i < 2; i++ {
		err := <-results
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrSessionUnavailable):
			losses++
		default:
			t.Fatalf("unexpected join error: %v", err)
		}
	}
	if wins != 1 || losses != 1 {
		t.Fatalf("expected one winner and one loser, got wins=%d losses=%d", wins, losses)
	}
}

// newStaleEngine builds an engine whose store publishes nothing, so a
// coordinator's subscription never sees mutations and only Resync can
// close the gap. This stands in for a feed outage.
func newStaleEngine(t *testing.T) (*Engine, *feed.Bus) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	bus := feed.NewBus(32)
	store := NewMemoryStore(nil, clock)
	return New(store, store, bus, Options{Clock: clock}), bus
}

func TestCoordinatorResyncClosesMissedEventWindow(t *testing.T) {
	eng, _ := newStaleEngine(t)
	ctx := context.Background()
	session := startSession(t, eng)
	host := enter(t, eng, session.ID, "host")

	if _, err := eng.MarkReady(ctx, session.ID, "guest"); err != nil {
		t.Fatalf("guest ready: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if host.State().Session.GuestReady {
		t.Fatal("precondition failed: event should have been missed")
	}

	host.Resync()
	if !host.State().Session.GuestReady {
		t.Fatal("resync must recover the missed update")
	}
}

func TestCoordinatorSellerBlockedUntilRoleObserved(t *testing.T) {
	eng, _ := newStaleEngine(t)
	ctx := context.Background()
	session := startSession(t, eng)
	guest := enter(t, eng, session.ID, "guest")

	words := guest.State().WordOffer
	if len(words) != 6 {
		t.Fatalf("expected a word offer, got %d", len(words))
	}
	if err := guest.SelectWords(ctx, []string{words[0].ID, words[1].ID}); !errors.Is(err, ErrRoundNotReady) {
		t.Fatalf("expected ErrRoundNotReady before the role pick is observed, got %v", err)
	}

	roles, _, err := eng.Offer(ctx, session.ID, "host")
	if err != nil {
		t.Fatalf("role offer: %v", err)
	}
	if _, err := eng.SelectRole(ctx, session.ID, "host", roles[0].ID); err != nil {
		t.Fatalf("role pick: %v", err)
	}

	// The pick happened but the event never arrived; only after a
	// resync does the seller's command pass its local gate.
	guest.Resync()
	if err := guest.SelectWords(ctx, []string{words[0].ID, words[1].ID}); err != nil {
		t.Fatalf("words after resync: %v", err)
	}
}

func TestCoordinatorGuestLeaveReopensSeat(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	ctx := context.Background()
	session := startSession(t, eng)

	host := enter(t, eng, session.ID, "host")
	guest := enter(t, eng, session.ID, "guest")

	if err := guest.Leave(ctx); err != nil {
		t.Fatalf("guest leave: %v", err)
	}
	waitFor(t, "host observing reopened seat", func() bool {
		snap := host.State()
		return snap.Session.Status == StatusWaiting && snap.Session.GuestID == nil
	})

	// A replacement guest can join and play.
	if _, err := eng.JoinSession(ctx, session.ID, "guest-2"); err != nil {
		t.Fatalf("replacement join: %v", err)
	}
	waitFor(t, "host observing replacement", func() bool {
		snap := host.State()
		return snap.Session.Status == StatusInProgress &&
			snap.Session.GuestID != nil && *snap.Session.GuestID == "guest-2"
	})
}
