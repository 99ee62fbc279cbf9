package db

import (
	"time"

	"gorm.io/datatypes"
)

type GameSession struct {
	ID           string    `gorm:"primaryKey;size:36"`
	JoinCode     string    `gorm:"size:12;uniqueIndex;not null"`
	HostID       string    `gorm:"size:36;not null"`
	GuestID      *string   `gorm:"size:36;index"`
	Status       string    `gorm:"size:32;not null"`
	CurrentRound int       `gorm:"not null;default:1"`
	HostReady    bool      `gorm:"not null;default:false"`
	GuestReady   bool      `gorm:"not null;default:false"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
	Rounds       []Round       `gorm:"foreignKey:SessionID"`
	Messages     []GameMessage `gorm:"foreignKey:SessionID"`
	Events       []GameEvent   `gorm:"foreignKey:SessionID"`
}

// Round rows are insert-then-fill: the word pair and the verdict are
// added by conditional updates, never rewritten. The partial unique
// index on (session_id) WHERE accepted IS NULL is created in Migrate;
// it is what makes the one-open-round rule hold under concurrent
// inserts.
type Round struct {
	ID             string    `gorm:"primaryKey;size:36"`
	SessionID      string    `gorm:"size:36;index;not null"`
	CustomerID     string    `gorm:"size:36;not null"`
	SellerID       string    `gorm:"size:36;not null"`
	SelectedRoleID *string   `gorm:"size:36"`
	Word1ID        *string   `gorm:"size:36"`
	Word2ID        *string   `gorm:"size:36"`
	Accepted       *bool
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

type Role struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Name      string    `gorm:"size:64;uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

type Word struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Word      string    `gorm:"size:64;uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

type GameMessage struct {
	ID        string    `gorm:"primaryKey;size:36"`
	SessionID string    `gorm:"size:36;index;not null"`
	UserID    string    `gorm:"size:36;not null"`
	Content   string    `gorm:"size:280;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

type GameEvent struct {
	ID        string         `gorm:"primaryKey;size:36"`
	SessionID string         `gorm:"size:36;index;not null"`
	Type      string         `gorm:"size:64;not null"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt time.Time      `gorm:"not null"`
}
