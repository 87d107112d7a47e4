package deps

import (
	"net/http"
	"time"

	"github.com/trafficdeck/trafficdeck/internal/editor"
	"github.com/trafficdeck/trafficdeck/internal/logger"
	"github.com/trafficdeck/trafficdeck/internal/registry"
	"github.com/trafficdeck/trafficdeck/internal/stream"
)

type Deps struct {
	Logger         logger.Logger
	StartTime      time.Time
	Version        string
	Commit         string
	BuildDate      string
	GoVersion      string
	Registry       *registry.Registry // canonical service state, read-only from here
	Stream         *stream.Manager    // realtime channel, for connectivity status
	Editor         *editor.Editor     // traffic editing sessions
	RefreshTrigger chan struct{}      // channel to trigger a manual snapshot fetch
	MetricsHandler http.Handler       // prometheus scrape endpoint
}
