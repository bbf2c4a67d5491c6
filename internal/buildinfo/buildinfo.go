// Package buildinfo carries the build identity the status endpoint reports.
package buildinfo

import "time"

// Stamped through -ldflags by the release build; empty on a plain go build.
var (
	BuildTime  string
	CommitTime string
	CommitHash string
)

// StartTime marks when this process came up, so operators can tell a restart
// from a redeploy.
var StartTime = time.Now().UTC().Format(time.RFC3339)
