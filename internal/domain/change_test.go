package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterMatches(t *testing.T) {
	mine := Record{ID: "a", OwnerID: "alice"}
	theirs := Record{ID: "b", OwnerID: "bob"}

	tests := []struct {
		name   string
		filter Filter
		change Change
		want   bool
	}{
		{"any kind", Filter{EventKind: ChangeAny}, Inserted(mine), true},
		{"empty kind behaves like any", Filter{}, Updated(mine), true},
		{"kind mismatch", Filter{EventKind: ChangeDelete}, Inserted(mine), false},
		{"kind match", Filter{EventKind: ChangeDelete}, Deleted("a"), true},
		{"owner match", Filter{OwnerID: "alice"}, Inserted(mine), true},
		{"owner mismatch", Filter{OwnerID: "alice"}, Inserted(theirs), false},
		{"delete has no owner", Filter{OwnerID: "alice"}, Deleted("b"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(tt.change))
		})
	}
}

func TestPrincipal(t *testing.T) {
	assert.False(t, Anonymous().Known())
	assert.False(t, Authenticated("").Known())
	assert.True(t, Authenticated("alice").Known())
	assert.Equal(t, "alice", Authenticated("alice").ID)
}
