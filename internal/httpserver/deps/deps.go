package deps

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/marks/internal/bus"
	"github.com/MrSnakeDoc/marks/internal/domain"
	"github.com/MrSnakeDoc/marks/internal/logger"
	"github.com/MrSnakeDoc/marks/internal/mutation"
)

// View is what the handlers need from the reconciliation engine.
type View interface {
	Snapshot() []domain.Entry
	Get(id string) (domain.Entry, bool)
	Len() int
	Principal() domain.Principal
	Generation() uint64
	Tombstones() int

	RequestCreate(ctx context.Context, title, url string) (domain.Record, *mutation.Receipt, error)
	RequestDelete(ctx context.Context, id string) (*mutation.Receipt, error)
	RequestRename(ctx context.Context, id, title string) (domain.Record, error)
	SwitchPrincipal(ctx context.Context, p domain.Principal) error
	SignOut(ctx context.Context) error
}

// Pinger checks a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Logger        logger.Logger
	StartTime     time.Time
	Version       string
	Commit        string
	BuildDate     string
	GoVersion     string
	TimeNow       func() time.Time // for testing, defaults to time.Now
	AllowedHosts  []string         // Host headers allowed to access the admin endpoints
	AllowedCIDRS  []string         // IPs allowed to access readyz/infra/resync
	TrustProxy    bool             // true if running behind a trusted reverse proxy (e.g., cloudflared)
	CORSOrigins   []string         // origins allowed by CORS
	RateBurst     int              // per-IP burst
	RatePerMin    int              // per-IP sustained rate
	View          View             // the bookmark view
	Bus           *bus.Bus         // local bus, for view change notifications
	Store         Pinger           // durable store, for readiness
	ResyncTrigger chan struct{}    // Channel to trigger a manual resync
	Heartbeat     time.Duration    // SSE keepalive period (default: 30s)
	Done          <-chan struct{}  // closed when the server shuts down
}
