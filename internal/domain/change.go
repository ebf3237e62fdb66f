package domain

import "time"

// ChangeKind is the kind of a change-stream event.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "INSERT"
	ChangeUpdate ChangeKind = "UPDATE"
	ChangeDelete ChangeKind = "DELETE"

	// ChangeAny matches every kind in a Filter.
	ChangeAny ChangeKind = "*"
)

// Change is one notification from the change-data-capture stream.
// Record is set for inserts and updates; ID is always set.
type Change struct {
	Kind       ChangeKind `json:"type"`
	ID         string     `json:"id"`
	Record     *Record    `json:"record,omitempty"`
	CommitTime time.Time  `json:"commit_time"`
}

// Inserted builds an INSERT change for r.
func Inserted(r Record) Change {
	return Change{Kind: ChangeInsert, ID: r.ID, Record: &r}
}

// Updated builds an UPDATE change for r.
func Updated(r Record) Change {
	return Change{Kind: ChangeUpdate, ID: r.ID, Record: &r}
}

// Deleted builds a DELETE change for id.
func Deleted(id string) Change {
	return Change{Kind: ChangeDelete, ID: id}
}

// Filter scopes a change-stream subscription.
type Filter struct {
	EventKind ChangeKind // ChangeAny or a single kind
	Schema    string     // ex: "public"
	Table     string     // ex: "bookmarks"
	OwnerID   string     // optional, empty = every owner
}

// Matches reports whether c passes the event-kind and owner scope of f.
// Delete notifications carry no record, so the owner scope cannot reject them.
func (f Filter) Matches(c Change) bool {
	if f.EventKind != "" && f.EventKind != ChangeAny && f.EventKind != c.Kind {
		return false
	}
	if f.OwnerID != "" && c.Record != nil && c.Record.OwnerID != f.OwnerID {
		return false
	}
	return true
}

// ChangeStream is a live subscription to the change feed.
type ChangeStream interface {
	// Changes yields events until the stream is closed.
	Changes() <-chan Change
	Close() error
}
