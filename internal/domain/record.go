package domain

import "time"

// Record is a bookmark owned by a single principal.
//
// The identity of a Record is known before the durable store confirms it:
// IDs are generated by the client that creates the record.
type Record struct {
	// ─────────────────────────────
	// Identity (immutable)
	// ─────────────────────────────

	// ID is the globally unique, client-generated identifier.
	ID string `json:"id" validate:"required"`

	// OwnerID is the principal that created the record.
	OwnerID string `json:"owner_id" validate:"required"`

	// ─────────────────────────────
	// Display
	// ─────────────────────────────

	// Title is the display string. Never empty.
	Title string `json:"title" validate:"required"`

	// URL is the bookmarked location.
	// Example: https://go.dev/doc/effective_go
	URL string `json:"url" validate:"required,url"`

	// ─────────────────────────────
	// Ordering
	// ─────────────────────────────

	// CreatedAt is stamped at creation and is the view's sort key.
	CreatedAt time.Time `json:"created_at"`
}

// Status tracks whether the durable store has accepted a record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
)

// Entry is a Record as held in the view.
type Entry struct {
	Record
	Status Status `json:"status"`
}

// ViewChange is published after every mutation of the view.
type ViewChange struct {
	Generation uint64 `json:"generation"`
	Reason     string `json:"reason"`
	Size       int    `json:"size"`
}
