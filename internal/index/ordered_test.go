package index

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/marks/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func entry(id string, offset time.Duration) domain.Entry {
	return domain.Entry{
		Record: domain.Record{ID: id, Title: id, URL: "https://" + id + ".test", OwnerID: "alice", CreatedAt: t0.Add(offset)},
		Status: domain.StatusConfirmed,
	}
}

func ids(o *Ordered) []string {
	var out []string
	for _, e := range o.Entries() {
		out = append(out, e.ID)
	}
	return out
}

func TestNewOrdered(t *testing.T) {
	o := NewOrdered()
	require.NotNil(t, o)
	assert.Equal(t, 0, o.Len())
	assert.Empty(t, o.Entries())
}

func TestInsertKeepsNewestFirst(t *testing.T) {
	o := NewOrdered()
	o.Insert(entry("b", time.Minute))
	o.Insert(entry("a", 2*time.Minute))
	o.Insert(entry("c", 0))
	o.Insert(entry("mid", 90*time.Second))

	assert.Equal(t, []string{"a", "mid", "b", "c"}, ids(o))
}

func TestInsertDuplicateIsRejected(t *testing.T) {
	o := NewOrdered()
	require.True(t, o.Insert(entry("a", 0)))

	dup := entry("a", time.Hour)
	dup.Title = "other"
	assert.False(t, o.Insert(dup))

	got, ok := o.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", got.Title)
	assert.Equal(t, 1, o.Len())
}

func TestTiesKeepInsertionOrder(t *testing.T) {
	o := NewOrdered()
	o.Insert(entry("first", 0))
	o.Insert(entry("second", 0))
	o.Insert(entry("newer", time.Second))
	o.Insert(entry("third", 0))

	assert.Equal(t, []string{"newer", "first", "second", "third"}, ids(o))
}

func TestReplaceInPlace(t *testing.T) {
	o := NewOrdered()
	o.Insert(entry("a", 2*time.Minute))
	o.Insert(entry("b", time.Minute))
	o.Insert(entry("c", 0))

	updated := entry("b", time.Minute)
	updated.Title = "renamed"
	require.True(t, o.Replace(updated))

	assert.Equal(t, []string{"a", "b", "c"}, ids(o))
	got, _ := o.Get("b")
	assert.Equal(t, "renamed", got.Title)
}

func TestReplaceResortsOnCreatedAtChange(t *testing.T) {
	o := NewOrdered()
	o.Insert(entry("a", 2*time.Minute))
	o.Insert(entry("b", time.Minute))
	o.Insert(entry("c", 0))

	require.True(t, o.Replace(entry("c", time.Hour)))
	assert.Equal(t, []string{"c", "a", "b"}, ids(o))

	assert.False(t, o.Replace(entry("missing", 0)))
}

func TestRemove(t *testing.T) {
	o := NewOrdered()
	o.Insert(entry("a", time.Minute))
	o.Insert(entry("b", 0))

	removed, ok := o.Remove("a")
	require.True(t, ok)
	assert.Equal(t, "a", removed.ID)
	assert.Equal(t, []string{"b"}, ids(o))
	assert.False(t, o.Has("a"))

	_, ok = o.Remove("a")
	assert.False(t, ok)
}

func TestRemoveAmongTies(t *testing.T) {
	o := NewOrdered()
	for _, id := range []string{"x", "y", "z"} {
		o.Insert(entry(id, 0))
	}

	_, ok := o.Remove("y")
	require.True(t, ok)
	assert.Equal(t, []string{"x", "z"}, ids(o))
}

func TestSetStatus(t *testing.T) {
	o := NewOrdered()
	e := entry("a", 0)
	e.Status = domain.StatusPending
	o.Insert(e)

	require.True(t, o.SetStatus("a", domain.StatusConfirmed))
	got, _ := o.Get("a")
	assert.Equal(t, domain.StatusConfirmed, got.Status)
	assert.Equal(t, domain.StatusConfirmed, o.Entries()[0].Status)

	assert.False(t, o.SetStatus("missing", domain.StatusConfirmed))
}

func TestResetSortsAndDedups(t *testing.T) {
	o := NewOrdered()
	o.Insert(entry("old", 0))

	o.Reset([]domain.Entry{
		entry("b", time.Minute),
		entry("a", 2*time.Minute),
		entry("b", 5*time.Minute),
		entry("c", 0),
	})

	assert.Equal(t, []string{"a", "b", "c"}, ids(o))
	assert.False(t, o.Has("old"))
}

func TestEntriesReturnsCopy(t *testing.T) {
	o := NewOrdered()
	o.Insert(entry("a", 0))

	snapshot := o.Entries()
	snapshot[0].Title = "mutated"

	got, _ := o.Get("a")
	assert.Equal(t, "a", got.Title)
}
