package bridge

import (
	"time"

	"verisurebridge/internal/verisure"
)

// Status captures the outcome of the most recent reconciliation for
// observability
type Status struct {
	LastPoll        time.Time   `json:"lastPoll"`
	LastSuccess     time.Time   `json:"lastSuccess"`
	LastError       string      `json:"lastError,omitempty"`
	LastErrorTime   time.Time   `json:"lastErrorTime"`
	LastResult      *SyncResult `json:"lastResult,omitempty"`
	PollingInterval string      `json:"pollingInterval"`
	SmartPlugs      int         `json:"smartPlugs"`
	ClimateSensors  int         `json:"climateSensors"`
}

// Status returns a copy of the current status
func (b *Bridge) Status() Status {
	b.statusMu.RLock()
	defer b.statusMu.RUnlock()
	return b.status
}

func (b *Bridge) recordSuccess(overview *verisure.Overview, result *SyncResult) {
	now := b.clock.Now()

	b.statusMu.Lock()
	b.status.LastSuccess = now
	b.status.LastError = ""
	b.status.LastResult = result
	b.status.SmartPlugs = len(overview.SmartPlugs)
	b.status.ClimateSensors = len(overview.ClimateValues)
	b.statusMu.Unlock()

	b.metrics.observePoll(overview, b.registry.List(), now)
}

func (b *Bridge) recordFailure(err error) {
	b.statusMu.Lock()
	b.status.LastError = err.Error()
	b.status.LastErrorTime = b.clock.Now()
	b.statusMu.Unlock()

	b.metrics.observePollError()
}
