package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func newTestStore(t *testing.T) (*MemoryStore, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	return NewMemoryStore(nil, clock), clock
}

func createWaitingSession(t *testing.T, store *MemoryStore) *Session {
	t.Helper()
	session := &Session{JoinCode: "CODE42", HostID: "host"}
	if err := store.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return session
}

func TestClaimGuestSeatSingleWinner(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	session := createWaitingSession(t, store)

	claimed, err := store.ClaimGuestSeat(ctx, session.ID, "guest-a")
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if claimed.Status != StatusInProgress || claimed.GuestID == nil || *claimed.GuestID != "guest-a" {
		t.Fatalf("unexpected session after claim: %+v", claimed)
	}

	if _, err := store.ClaimGuestSeat(ctx, session.ID, "guest-b"); !errors.Is(err, ErrSessionUnavailable) {
		t.Fatalf("expected ErrSessionUnavailable for the losing guest, got %v", err)
	}
}

func TestReleaseGuestSeatReturnsToWaiting(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	session := createWaitingSession(t, store)
	if _, err := store.ClaimGuestSeat(ctx, session.ID, "guest"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := store.SetReadyFlag(ctx, session.ID, false); err != nil {
		t.Fatalf("guest ready: %v", err)
	}

	released, err := store.ReleaseGuestSeat(ctx, session.ID, "guest")
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released.Status != StatusWaiting || released.GuestID != nil || released.GuestReady {
		t.Fatalf("expected empty waiting seat, got %+v", released)
	}

	if _, err := store.ReleaseGuestSeat(ctx, session.ID, "guest"); !errors.Is(err, ErrNotAParticipant) {
		t.Fatalf("expected ErrNotAParticipant after seat cleared, got %v", err)
	}
}

func TestCompleteSessionIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	session := createWaitingSession(t, store)

	first, err := store.CompleteSession(ctx, session.ID)
	if err != nil || first.Status != StatusCompleted {
		t.Fatalf("complete: session=%+v err=%v", first, err)
	}
	second, err := store.CompleteSession(ctx, session.ID)
	if err != nil || second.Status != StatusCompleted {
		t.Fatalf("repeat complete must be a no-op: session=%+v err=%v", second, err)
	}
}

func TestSetReadyFlagRequiresLiveSession(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	session := createWaitingSession(t, store)

	if _, err := store.SetReadyFlag(ctx, session.ID, true); !errors.Is(err, ErrRoundNotReady) {
		t.Fatalf("expected ErrRoundNotReady while waiting, got %v", err)
	}

	if _, err := store.ClaimGuestSeat(ctx, session.ID, "guest"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	marked, err := store.SetReadyFlag(ctx, session.ID, true)
	if err != nil || !marked.HostReady {
		t.Fatalf("host ready: session=%+v err=%v", marked, err)
	}
	again, err := store.SetReadyFlag(ctx, session.ID, true)
	if err != nil || !again.HostReady {
		t.Fatalf("repeated ready must be a no-op: session=%+v err=%v", again, err)
	}
}

func TestAdvanceRoundConditional(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()
	session := createWaitingSession(t, store)
	if _, err := store.ClaimGuestSeat(ctx, session.ID, "guest"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := store.SetReadyFlag(ctx, session.ID, true); err != nil {
		t.Fatalf("host ready: %v", err)
	}
	if _, err := store.SetReadyFlag(ctx, session.ID, false); err != nil {
		t.Fatalf("guest ready: %v", err)
	}

	clock.Advance(time.Second)
	advanced, err := store.AdvanceRound(ctx, session.ID, 1)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if advanced.CurrentRound != 2 {
		t.Fatalf("expected round 2, got %d", advanced.CurrentRound)
	}
	if advanced.HostReady || advanced.GuestReady {
		t.Fatal("ready flags must reset atomically with the increment")
	}

	// A second advance from the same expected counter loses.
	if _, err := store.AdvanceRound(ctx, session.ID, 1); !errors.Is(err, ErrSessionUnavailable) {
		t.Fatalf("expected ErrSessionUnavailable for stale counter, got %v", err)
	}
}

func TestInsertRoundSingleOpenRow(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	session := createWaitingSession(t, store)
	if _, err := store.ClaimGuestSeat(ctx, session.ID, "guest"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	roles, err := store.RandomRoles(ctx, 1)
	if err != nil {
		t.Fatalf("roles: %v", err)
	}

	round := &Round{SessionID: session.ID, CustomerID: "host", SellerID: "guest", SelectedRoleID: &roles[0].ID}
	if err := store.InsertRound(ctx, round); err != nil {
		t.Fatalf("insert: %v", err)
	}
	dup := &Round{SessionID: session.ID, CustomerID: "host", SellerID: "guest", SelectedRoleID: &roles[0].ID}
	if err := store.InsertRound(ctx, dup); !errors.Is(err, ErrInvalidTurn) {
		t.Fatalf("expected ErrInvalidTurn for a second open round, got %v", err)
	}

	if _, err := store.ResolveRound(ctx, round.ID, true); !errors.Is(err, ErrRoundNotReady) {
		t.Fatalf("expected ErrRoundNotReady before words, got %v", err)
	}
}

func TestRoundFieldProgressGuards(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()
	session := createWaitingSession(t, store)
	if _, err := store.ClaimGuestSeat(ctx, session.ID, "guest"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	roles, _ := store.RandomRoles(ctx, 1)
	words, _ := store.RandomWords(ctx, 2)

	round := &Round{SessionID: session.ID, CustomerID: "host", SellerID: "guest", SelectedRoleID: &roles[0].ID}
	if err := store.InsertRound(ctx, round); err != nil {
		t.Fatalf("insert: %v", err)
	}

	clock.Advance(time.Second)
	withWords, err := store.SetRoundWords(ctx, round.ID, words[0].ID, words[1].ID)
	if err != nil {
		t.Fatalf("set words: %v", err)
	}
	if !withWords.HasWords() {
		t.Fatalf("expected both words set, got %+v", withWords)
	}
	if _, err := store.SetRoundWords(ctx, round.ID, words[0].ID, words[1].ID); !errors.Is(err, ErrRoundNotReady) {
		t.Fatalf("expected ErrRoundNotReady re-setting words, got %v", err)
	}

	resolved, err := store.ResolveRound(ctx, round.ID, false)
	if err != nil || !resolved.Resolved() || *resolved.Accepted {
		t.Fatalf("resolve: round=%+v err=%v", resolved, err)
	}
	if _, err := store.ResolveRound(ctx, round.ID, true); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}
	if _, err := store.SetRoundWords(ctx, round.ID, words[0].ID, words[1].ID); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved setting words after verdict, got %v", err)
	}
}

func TestAppendMessageRejectsCompletedSession(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	session := createWaitingSession(t, store)
	if _, err := store.CompleteSession(ctx, session.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	err := store.AppendMessage(ctx, &ChatMessage{SessionID: session.ID, UserID: "host", Content: "hello"})
	if !errors.Is(err, ErrSessionUnavailable) {
		t.Fatalf("expected ErrSessionUnavailable, got %v", err)
	}
}

func TestOracleSamplesAreDistinct(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	roles, err := store.RandomRoles(ctx, 2)
	if err != nil || len(roles) != 2 {
		t.Fatalf("roles: %v (%d)", err, len(roles))
	}
	if roles[0].ID == roles[1].ID {
		t.Fatal("expected distinct roles")
	}

	words, err := store.RandomWords(ctx, 6)
	if err != nil || len(words) != 6 {
		t.Fatalf("words: %v (%d)", err, len(words))
	}
	seen := make(map[string]bool, len(words))
	for _, word := range words {
		if seen[word.ID] {
			t.Fatalf("duplicate word %s in sample", word.ID)
		}
		seen[word.ID] = true
	}

	if _, err := store.RandomRoles(ctx, 10000); err == nil {
		t.Fatal("expected error when the catalog is too small")
	}
}
