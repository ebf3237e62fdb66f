package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/marks/internal/bus"
	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/MrSnakeDoc/marks/internal/httpserver/deps"
	"github.com/MrSnakeDoc/marks/internal/logger"
	"github.com/MrSnakeDoc/marks/internal/mutation"
)

type fakeView struct {
	mu         sync.Mutex
	principal  domain.Principal
	entries    []domain.Entry
	generation uint64
	createErr  error
	persistErr error
	switchErr  error
}

func (v *fakeView) Snapshot() []domain.Entry {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]domain.Entry(nil), v.entries...)
}

func (v *fakeView) Get(id string) (domain.Entry, bool) {
	for _, e := range v.Snapshot() {
		if e.ID == id {
			return e, true
		}
	}
	return domain.Entry{}, false
}

func (v *fakeView) Len() int { return len(v.Snapshot()) }

func (v *fakeView) Principal() domain.Principal {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.principal
}

func (v *fakeView) Generation() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.generation
}

func (v *fakeView) Tombstones() int { return 0 }

func (v *fakeView) RequestCreate(_ context.Context, title, url string) (domain.Record, *mutation.Receipt, error) {
	if !v.Principal().Known() {
		return domain.Record{}, nil, domain.ErrUnauthenticated
	}
	if v.createErr != nil {
		return domain.Record{}, nil, v.createErr
	}
	r := domain.Record{ID: "new", OwnerID: v.Principal().ID, Title: title, URL: url, CreatedAt: time.Now()}
	v.mu.Lock()
	v.entries = append([]domain.Entry{{Record: r, Status: domain.StatusPending}}, v.entries...)
	v.mu.Unlock()

	receipt := mutation.NewReceipt(r.ID)
	receipt.Resolve(v.persistErr)
	return r, receipt, nil
}

func (v *fakeView) RequestDelete(_ context.Context, id string) (*mutation.Receipt, error) {
	if !v.Principal().Known() {
		return nil, domain.ErrUnauthenticated
	}
	receipt := mutation.NewReceipt(id)
	receipt.Resolve(v.persistErr)
	return receipt, nil
}

func (v *fakeView) RequestRename(_ context.Context, id, title string) (domain.Record, error) {
	e, ok := v.Get(id)
	if !ok {
		return domain.Record{}, domain.ErrNotFound
	}
	e.Title = title
	return e.Record, nil
}

func (v *fakeView) SwitchPrincipal(_ context.Context, p domain.Principal) error {
	if v.switchErr != nil {
		return v.switchErr
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.principal = p
	v.generation++
	return nil
}

func (v *fakeView) SignOut(ctx context.Context) error {
	return v.SwitchPrincipal(ctx, domain.Anonymous())
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func newTestRouter(t *testing.T, v *fakeView, mutate ...func(*deps.Deps)) (http.Handler, deps.Deps) {
	t.Helper()
	log := logger.NewNop()
	d := deps.Deps{
		Logger:        log,
		StartTime:     time.Now(),
		Version:       "test",
		View:          v,
		Bus:           bus.New(log),
		Store:         fakePinger{},
		ResyncTrigger: make(chan struct{}, 1),
		RateBurst:     100,
		RatePerMin:    600,
		Heartbeat:     time.Hour,
	}
	for _, fn := range mutate {
		fn(&d)
	}
	return NewRouter(log, d), d
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func signedIn() *fakeView {
	return &fakeView{principal: domain.Authenticated("alice"), generation: 1}
}

func TestHealthz(t *testing.T) {
	h, _ := newTestRouter(t, &fakeView{})

	rr := do(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestReadyz(t *testing.T) {
	h, _ := newTestRouter(t, &fakeView{})
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/readyz", "").Code)

	down, _ := newTestRouter(t, &fakeView{}, func(d *deps.Deps) {
		d.Store = fakePinger{err: errors.New("connection refused")}
	})
	rr := do(t, down, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "connection refused")
}

func TestReadyzRespectsCIDRAllowList(t *testing.T) {
	h, _ := newTestRouter(t, &fakeView{}, func(d *deps.Deps) {
		d.AllowedCIDRS = []string{"10.0.0.0/8"}
	})

	// httptest requests come from 192.0.2.1.
	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodGet, "/readyz", "").Code)
}

func TestSessionChangesRespectAccessRules(t *testing.T) {
	v := signedIn()
	h, _ := newTestRouter(t, v, func(d *deps.Deps) {
		d.AllowedCIDRS = []string{"10.0.0.0/8"}
	})

	rr := do(t, h, http.MethodPut, "/api/session", `{"principal_id":"victim"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodDelete, "/api/session", "").Code)
	assert.Equal(t, "alice", v.Principal().ID)

	// Reading the session stays open.
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/session", "").Code)

	hosts, _ := newTestRouter(t, v, func(d *deps.Deps) {
		d.AllowedHosts = []string{"admin.example.com"}
	})
	rr = do(t, hosts, http.MethodPut, "/api/session", `{"principal_id":"victim"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, "alice", v.Principal().ID)
}

func TestListBookmarks(t *testing.T) {
	v := signedIn()
	v.entries = []domain.Entry{
		{Record: domain.Record{ID: "b", OwnerID: "alice", Title: "B", URL: "https://b.test"}, Status: domain.StatusConfirmed},
		{Record: domain.Record{ID: "a", OwnerID: "alice", Title: "A", URL: "https://a.test"}, Status: domain.StatusPending},
	}
	h, _ := newTestRouter(t, v)

	rr := do(t, h, http.MethodGet, "/api/bookmarks", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Principal  domain.Principal `json:"principal"`
		Generation uint64           `json:"generation"`
		Entries    []domain.Entry   `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "alice", body.Principal.ID)
	require.Len(t, body.Entries, 2)
	assert.Equal(t, "b", body.Entries[0].ID)
	assert.Equal(t, domain.StatusPending, body.Entries[1].Status)
}

func TestListBookmarksWithQuery(t *testing.T) {
	v := signedIn()
	v.entries = []domain.Entry{
		{Record: domain.Record{ID: "a", OwnerID: "alice", Title: "Django", URL: "https://djangoproject.com"}},
		{Record: domain.Record{ID: "b", OwnerID: "alice", Title: "Rust", URL: "https://rust-lang.org"}},
		{Record: domain.Record{ID: "c", OwnerID: "alice", Title: "Go", URL: "https://go.dev"}},
	}
	h, _ := newTestRouter(t, v)

	rr := do(t, h, http.MethodGet, "/api/bookmarks?q=go", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Entries []domain.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Entries, 2)
	assert.Equal(t, "c", body.Entries[0].ID)
	assert.Equal(t, "a", body.Entries[1].ID)
}

func TestCreateBookmark(t *testing.T) {
	t.Run("accepted while pending", func(t *testing.T) {
		h, _ := newTestRouter(t, signedIn())
		rr := do(t, h, http.MethodPost, "/api/bookmarks", `{"title":"Go","url":"https://go.dev"}`)
		assert.Equal(t, http.StatusAccepted, rr.Code)
		assert.Contains(t, rr.Body.String(), `"status":"pending"`)
	})

	t.Run("wait for confirmation", func(t *testing.T) {
		h, _ := newTestRouter(t, signedIn())
		rr := do(t, h, http.MethodPost, "/api/bookmarks?wait=true", `{"title":"Go","url":"https://go.dev"}`)
		assert.Equal(t, http.StatusCreated, rr.Code)
		assert.Contains(t, rr.Body.String(), `"status":"confirmed"`)
	})

	t.Run("wait for rejection", func(t *testing.T) {
		v := signedIn()
		v.persistErr = errors.New("store down")
		h, _ := newTestRouter(t, v)
		rr := do(t, h, http.MethodPost, "/api/bookmarks?wait=1", `{"title":"Go","url":"https://go.dev"}`)
		assert.Equal(t, http.StatusBadGateway, rr.Code)
	})

	t.Run("anonymous", func(t *testing.T) {
		h, _ := newTestRouter(t, &fakeView{})
		rr := do(t, h, http.MethodPost, "/api/bookmarks", `{"title":"Go","url":"https://go.dev"}`)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("invalid record", func(t *testing.T) {
		v := signedIn()
		v.createErr = domain.ErrInvalidRecord
		h, _ := newTestRouter(t, v)
		rr := do(t, h, http.MethodPost, "/api/bookmarks", `{"title":"","url":"nope"}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("unknown field", func(t *testing.T) {
		h, _ := newTestRouter(t, signedIn())
		rr := do(t, h, http.MethodPost, "/api/bookmarks", `{"title":"Go","href":"https://go.dev"}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestDeleteBookmark(t *testing.T) {
	h, _ := newTestRouter(t, signedIn())
	assert.Equal(t, http.StatusAccepted, do(t, h, http.MethodDelete, "/api/bookmarks/a", "").Code)
	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodDelete, "/api/bookmarks/a?wait=true", "").Code)

	v := signedIn()
	v.persistErr = domain.ErrForbidden
	h, _ = newTestRouter(t, v)
	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodDelete, "/api/bookmarks/a?wait=true", "").Code)
}

func TestRenameBookmark(t *testing.T) {
	v := signedIn()
	v.entries = []domain.Entry{{Record: domain.Record{ID: "a", OwnerID: "alice", Title: "old", URL: "https://a.test"}}}
	h, _ := newTestRouter(t, v)

	rr := do(t, h, http.MethodPatch, "/api/bookmarks/a", `{"title":"new"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"title":"new"`)

	rr = do(t, h, http.MethodPatch, "/api/bookmarks/missing", `{"title":"new"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSession(t *testing.T) {
	v := &fakeView{}
	h, _ := newTestRouter(t, v)

	rr := do(t, h, http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"authenticated":false`)

	rr = do(t, h, http.MethodPut, "/api/session", `{"principal_id":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPut, "/api/session", `{"principal_id":"alice"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"principal_id":"alice"`)
	assert.Equal(t, "alice", v.Principal().ID)

	rr = do(t, h, http.MethodDelete, "/api/session", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.False(t, v.Principal().Known())

	v.switchErr = errors.New("subscribe failed")
	rr = do(t, h, http.MethodPut, "/api/session", `{"principal_id":"bob"}`)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestResyncTrigger(t *testing.T) {
	h, d := newTestRouter(t, signedIn())

	assert.Equal(t, http.StatusAccepted, do(t, h, http.MethodPost, "/api/resync", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodPost, "/api/resync", "").Code)

	<-d.ResyncTrigger
	assert.Equal(t, http.StatusAccepted, do(t, h, http.MethodPost, "/api/resync", "").Code)
}

func TestInfra(t *testing.T) {
	h, _ := newTestRouter(t, signedIn(), func(d *deps.Deps) {
		d.Store = fakePinger{err: errors.New("down")}
	})

	rr := do(t, h, http.MethodGet, "/api/infra", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		SyncMode   string                    `json:"sync_mode"`
		Components map[string]map[string]any `json:"components"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "offline", body.SyncMode)
	assert.Equal(t, false, body.Components["redis"]["ok"])
	assert.Equal(t, "subscribed", body.Components["view"]["mode"])
}

func TestRateLimit(t *testing.T) {
	h, _ := newTestRouter(t, signedIn(), func(d *deps.Deps) {
		d.RateBurst = 2
		d.RatePerMin = 1
	})

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)

	rr := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
}

func TestEventsStreamsViewChanges(t *testing.T) {
	v := signedIn()
	done := make(chan struct{})
	h, d := newTestRouter(t, v, func(d *deps.Deps) { d.Done = done })

	srv := httptest.NewServer(h)
	defer srv.Close()
	defer close(done)

	resp, err := http.Get(srv.URL + "/api/bookmarks/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan string, 8)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			if name, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
				events <- name
			}
		}
	}()

	next := func() string {
		select {
		case e := <-events:
			return e
		case <-time.After(2 * time.Second):
			t.Fatal("no event received")
			return ""
		}
	}

	assert.Equal(t, "view", next())

	require.Eventually(t, func() bool {
		return d.Bus.Subscribers(bus.TopicViewChanged) == 1
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, d.Bus.Publish(bus.TopicViewChanged, domain.ViewChange{Generation: 1, Reason: "remote_insert"}))
	assert.Equal(t, "view", next())
}
