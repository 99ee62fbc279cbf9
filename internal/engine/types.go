// Package engine is the session and round synchronization core of the
// game: the session lifecycle state machine, the per-round negotiation
// handshake, the readiness gate, and the change-feed reconciliation that
// keeps both participants' view of a session convergent.
package engine

import "time"

const (
	StatusWaiting    = "waiting"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Session is one two-player game. GuestID is nil exactly while the
// session is waiting; completed is terminal.
type Session struct {
	ID           string    `json:"id"`
	JoinCode     string    `json:"join_code"`
	HostID       string    `json:"host_id"`
	GuestID      *string   `json:"guest_id"`
	Status       string    `json:"status"`
	CurrentRound int       `json:"current_round"`
	HostReady    bool      `json:"host_ready"`
	GuestReady   bool      `json:"guest_ready"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	clone := *s
	if s.GuestID != nil {
		guestID := *s.GuestID
		clone.GuestID = &guestID
	}
	return &clone
}

// Round is one negotiation cycle. Rows are inserted whole when the
// customer picks a role and only ever gain fields after that: first the
// word pair (together), then the verdict. The current round of a session
// is its latest row; superseded rows are kept, never deleted.
type Round struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	CustomerID     string    `json:"customer_id"`
	SellerID       string    `json:"seller_id"`
	SelectedRoleID *string   `json:"selected_role_id"`
	Word1ID        *string   `json:"word1_id"`
	Word2ID        *string   `json:"word2_id"`
	Accepted       *bool     `json:"accepted"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (r *Round) Clone() *Round {
	if r == nil {
		return nil
	}
	clone := *r
	clone.SelectedRoleID = cloneString(r.SelectedRoleID)
	clone.Word1ID = cloneString(r.Word1ID)
	clone.Word2ID = cloneString(r.Word2ID)
	if r.Accepted != nil {
		accepted := *r.Accepted
		clone.Accepted = &accepted
	}
	return &clone
}

func (r *Round) HasWords() bool {
	return r != nil && r.Word1ID != nil && r.Word2ID != nil
}

func (r *Round) Resolved() bool {
	return r != nil && r.Accepted != nil
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

type ChatMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Role and Word are immutable catalog entries sampled by the oracle.
type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Word struct {
	ID   string `json:"id"`
	Word string `json:"word"`
}

// EventRecord is one audit-log row written alongside a lifecycle
// mutation.
type EventRecord struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}
