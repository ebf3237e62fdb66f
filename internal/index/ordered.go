package index

import (
	"slices"
	"sort"

	"github.com/MrSnakeDoc/marks/internal/domain"
)

// item is an entry plus its insertion sequence, the tie-breaker for equal
// creation times.
type item struct {
	entry domain.Entry
	seq   uint64
}

// before reports whether a sorts ahead of b: newest first, then oldest insertion.
func before(a, b item) bool {
	if !a.entry.CreatedAt.Equal(b.entry.CreatedAt) {
		return a.entry.CreatedAt.After(b.entry.CreatedAt)
	}
	return a.seq < b.seq
}

// Ordered keeps entries sorted by CreatedAt descending, ties in insertion
// order, with O(1) membership by ID.
//
// Ordered is not safe for concurrent use; its owner serializes access.
type Ordered struct {
	items []item
	byID  map[string]item
	seq   uint64
}

// NewOrdered creates an empty index.
func NewOrdered() *Ordered {
	return &Ordered{byID: make(map[string]item)}
}

// Reset replaces the content with entries. Later duplicates of an ID are ignored.
func (o *Ordered) Reset(entries []domain.Entry) {
	o.items = make([]item, 0, len(entries))
	o.byID = make(map[string]item, len(entries))
	for _, e := range entries {
		if _, dup := o.byID[e.ID]; dup {
			continue
		}
		o.seq++
		it := item{entry: e, seq: o.seq}
		o.items = append(o.items, it)
		o.byID[e.ID] = it
	}
	slices.SortStableFunc(o.items, func(a, b item) int {
		switch {
		case before(a, b):
			return -1
		case before(b, a):
			return 1
		default:
			return 0
		}
	})
}

// Has reports whether id is present.
func (o *Ordered) Has(id string) bool {
	_, ok := o.byID[id]
	return ok
}

// Get returns the entry for id.
func (o *Ordered) Get(id string) (domain.Entry, bool) {
	it, ok := o.byID[id]
	return it.entry, ok
}

// Insert places e at its sort position. It returns false, leaving the index
// untouched, when e.ID is already present.
func (o *Ordered) Insert(e domain.Entry) bool {
	if o.Has(e.ID) {
		return false
	}
	o.seq++
	o.place(item{entry: e, seq: o.seq})
	return true
}

// Replace swaps the entry with the same ID, keeping its position unless the
// creation time changed. It returns false when the ID is absent.
func (o *Ordered) Replace(e domain.Entry) bool {
	old, ok := o.byID[e.ID]
	if !ok {
		return false
	}
	next := item{entry: e, seq: old.seq}
	if old.entry.CreatedAt.Equal(e.CreatedAt) {
		o.items[o.position(old)] = next
		o.byID[e.ID] = next
		return true
	}
	o.cut(old)
	o.place(next)
	return true
}

// SetStatus updates the status of id in place.
func (o *Ordered) SetStatus(id string, s domain.Status) bool {
	it, ok := o.byID[id]
	if !ok {
		return false
	}
	it.entry.Status = s
	o.items[o.position(it)] = it
	o.byID[id] = it
	return true
}

// Remove deletes id and returns the removed entry.
func (o *Ordered) Remove(id string) (domain.Entry, bool) {
	it, ok := o.byID[id]
	if !ok {
		return domain.Entry{}, false
	}
	o.cut(it)
	return it.entry, true
}

// Len returns the number of entries.
func (o *Ordered) Len() int {
	return len(o.items)
}

// Entries returns a copy of the entries in view order.
func (o *Ordered) Entries() []domain.Entry {
	out := make([]domain.Entry, len(o.items))
	for i, it := range o.items {
		out[i] = it.entry
	}
	return out
}

// position finds it in items by binary search on the sort key.
func (o *Ordered) position(it item) int {
	return sort.Search(len(o.items), func(i int) bool {
		return !before(o.items[i], it)
	})
}

func (o *Ordered) place(it item) {
	i := o.position(it)
	o.items = slices.Insert(o.items, i, it)
	o.byID[it.entry.ID] = it
}

func (o *Ordered) cut(it item) {
	i := o.position(it)
	o.items = slices.Delete(o.items, i, i+1)
	delete(o.byID, it.entry.ID)
}
