// Package version holds build metadata, overridden at link time via
// -ldflags "-X github.com/trafficdeck/trafficdeck/internal/version.Version=...".
package version

import (
	"runtime"
	"time"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = time.Now().Format(time.RFC3339)
	GoVersion = runtime.Version()
)
