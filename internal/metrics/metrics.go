// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Chat proxy metrics
	IncChatProcessed(status string) // status: "success", "rejected", "upstream_error"
	ObserveUpstreamDuration(duration time.Duration)

	// Key lifecycle metrics
	IncKeyIssued()
	IncKeyRegenerated()
	IncKeyQuotaHit()

	// Ad reward metrics
	IncAdRewardClaimed(status string) // status: "success", "duplicate"
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
