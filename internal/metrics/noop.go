package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncChatProcessed is a no-op.
func (n *NoopRecorder) IncChatProcessed(status string) {}

// ObserveUpstreamDuration is a no-op.
func (n *NoopRecorder) ObserveUpstreamDuration(duration time.Duration) {}

// IncKeyIssued is a no-op.
func (n *NoopRecorder) IncKeyIssued() {}

// IncKeyRegenerated is a no-op.
func (n *NoopRecorder) IncKeyRegenerated() {}

// IncKeyQuotaHit is a no-op.
func (n *NoopRecorder) IncKeyQuotaHit() {}

// IncAdRewardClaimed is a no-op.
func (n *NoopRecorder) IncAdRewardClaimed(status string) {}
