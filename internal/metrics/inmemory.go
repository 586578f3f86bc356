package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	ChatProcessed           map[string]uint64
	UpstreamDurationCount   uint64
	UpstreamDurationTotalNs int64
	KeysIssued              uint64
	KeysRegenerated         uint64
	KeyQuotaHits            uint64
	AdRewardsClaimed        map[string]uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	mu                      sync.Mutex
	chatProcessed           map[string]uint64
	adRewardsClaimed        map[string]uint64
	upstreamDurationCount   uint64
	upstreamDurationTotalNs int64
	keysIssued              uint64
	keysRegenerated         uint64
	keyQuotaHits            uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		chatProcessed:    make(map[string]uint64),
		adRewardsClaimed: make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	chat := make(map[string]uint64, len(m.chatProcessed))
	for k, v := range m.chatProcessed {
		chat[k] = v
	}
	ads := make(map[string]uint64, len(m.adRewardsClaimed))
	for k, v := range m.adRewardsClaimed {
		ads[k] = v
	}

	return Snapshot{
		ChatProcessed:           chat,
		UpstreamDurationCount:   atomic.LoadUint64(&m.upstreamDurationCount),
		UpstreamDurationTotalNs: atomic.LoadInt64(&m.upstreamDurationTotalNs),
		KeysIssued:              atomic.LoadUint64(&m.keysIssued),
		KeysRegenerated:         atomic.LoadUint64(&m.keysRegenerated),
		KeyQuotaHits:            atomic.LoadUint64(&m.keyQuotaHits),
		AdRewardsClaimed:        ads,
	}
}

// IncChatProcessed increments the chat counter for a status.
func (m *InMemoryRecorder) IncChatProcessed(status string) {
	m.mu.Lock()
	m.chatProcessed[status]++
	m.mu.Unlock()
}

// ObserveUpstreamDuration records one upstream call duration.
func (m *InMemoryRecorder) ObserveUpstreamDuration(duration time.Duration) {
	atomic.AddUint64(&m.upstreamDurationCount, 1)
	atomic.AddInt64(&m.upstreamDurationTotalNs, duration.Nanoseconds())
}

// IncKeyIssued increments the key issued counter.
func (m *InMemoryRecorder) IncKeyIssued() {
	atomic.AddUint64(&m.keysIssued, 1)
}

// IncKeyRegenerated increments the key regenerated counter.
func (m *InMemoryRecorder) IncKeyRegenerated() {
	atomic.AddUint64(&m.keysRegenerated, 1)
}

// IncKeyQuotaHit increments the quota rejection counter.
func (m *InMemoryRecorder) IncKeyQuotaHit() {
	atomic.AddUint64(&m.keyQuotaHits, 1)
}

// IncAdRewardClaimed increments the ad reward counter for a status.
func (m *InMemoryRecorder) IncAdRewardClaimed(status string) {
	m.mu.Lock()
	m.adRewardsClaimed[status]++
	m.mu.Unlock()
}
