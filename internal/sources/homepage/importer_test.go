package homepage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/MrSnakeDoc/marks/internal/logger"
	"github.com/MrSnakeDoc/marks/internal/mutation"
)

type fakeTarget struct {
	mu      sync.Mutex
	view    []domain.Entry
	created []string
	reject  map[string]bool
	err     error
}

func (f *fakeTarget) Snapshot() []domain.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Entry(nil), f.view...)
}

func (f *fakeTarget) RequestCreate(ctx context.Context, title, url string) (domain.Record, *mutation.Receipt, error) {
	if f.err != nil {
		return domain.Record{}, nil, f.err
	}
	if !strings.HasPrefix(url, "http") {
		return domain.Record{}, nil, fmt.Errorf("%w: url:url", domain.ErrInvalidRecord)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	r := domain.Record{ID: fmt.Sprint(len(f.created)), Title: title, URL: url, OwnerID: "alice"}
	f.created = append(f.created, url)
	f.view = append(f.view, domain.Entry{Record: r, Status: domain.StatusPending})

	receipt := mutation.NewReceipt(r.ID)
	go func() {
		if f.reject[url] {
			receipt.Resolve(errors.New("quota exceeded"))
			return
		}
		receipt.Resolve(nil)
	}()
	return r, receipt, nil
}

func TestImportSkipsKnownURLs(t *testing.T) {
	target := &fakeTarget{
		view: []domain.Entry{{Record: domain.Record{ID: "x", URL: "https://github.com/"}}},
	}
	im := NewImporter(target, logger.NewNop())

	report, err := im.Import(context.Background(), []Draft{
		{Title: "GH", URL: "https://github.com/"},
		{Title: "Go", URL: "https://go.dev/"},
		{Title: "Go again", URL: "https://go.dev/"},
	})
	require.NoError(t, err)

	assert.Equal(t, Report{Created: 1, Skipped: 2}, report)
	assert.Equal(t, []string{"https://go.dev/"}, target.created)
}

func TestImportCountsRejectedAndInvalid(t *testing.T) {
	target := &fakeTarget{reject: map[string]bool{"https://b.test": true}}
	im := NewImporter(target, logger.NewNop())

	report, err := im.Import(context.Background(), []Draft{
		{Title: "A", URL: "https://a.test"},
		{Title: "B", URL: "https://b.test"},
		{Title: "C", URL: "not a url"},
	})
	require.NoError(t, err)

	assert.Equal(t, Report{Created: 1, Invalid: 1, Rejected: 1}, report)
}

func TestImportStopsWhenUnauthenticated(t *testing.T) {
	target := &fakeTarget{err: domain.ErrUnauthenticated}
	im := NewImporter(target, logger.NewNop())

	_, err := im.Import(context.Background(), []Draft{{Title: "A", URL: "https://a.test"}})
	require.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestImportFile(t *testing.T) {
	target := &fakeTarget{}
	im := NewImporter(target, logger.NewNop())

	report, err := im.ImportFile(context.Background(), writeBookmarks(t, bookmarksYAML))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Created)
	assert.ElementsMatch(t, []string{"https://github.com/", "https://go.dev/doc/"}, target.created)
}
