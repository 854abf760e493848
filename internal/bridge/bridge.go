// Package bridge mirrors the devices of a Verisure installation into the host
// registry and forwards smart plug commands back to Verisure.
package bridge

import (
	"context"
	"sync"
	"time"

	"verisurebridge/internal/clock"
	"verisurebridge/internal/host"
	"verisurebridge/internal/verisure"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// DefaultPollingInterval is used when no polling interval is configured
const DefaultPollingInterval = 240 * time.Second

// Options configures a Bridge
type Options struct {
	Username        string
	Password        string
	PollingInterval time.Duration
}

// Bridge implements host.Plugin. Scheduler state (lastPoll, nextUnit) is only
// touched from host callbacks; status is guarded for concurrent readers.
type Bridge struct {
	opts     Options
	opener   verisure.Opener
	registry host.Registry
	clock    clock.Clock
	logger   *zap.Logger
	metrics  *Metrics

	lastPoll time.Time
	nextUnit int

	statusMu sync.RWMutex
	status   Status
}

// New creates a new Bridge
func New(opts Options, opener verisure.Opener, registry host.Registry, clk clock.Clock, logger *zap.Logger) *Bridge {
	if opts.PollingInterval <= 0 {
		opts.PollingInterval = DefaultPollingInterval
	}

	return &Bridge{
		opts:     opts,
		opener:   opener,
		registry: registry,
		clock:    clk,
		logger:   logger.Named("bridge"),
		metrics:  NewMetrics(),
		lastPoll: clk.Now(),
		nextUnit: 1,
		status: Status{
			PollingInterval: opts.PollingInterval.String(),
		},
	}
}

// Name implements host.Plugin
func (b *Bridge) Name() string {
	return "verisure"
}

// Collectors returns the Prometheus collectors exposed by the bridge
func (b *Bridge) Collectors() []prometheus.Collector {
	return []prometheus.Collector{b.metrics}
}

// OnStart seeds the handle counter from the registry and runs the first
// reconciliation.
func (b *Bridge) OnStart(ctx context.Context) error {
	b.logger.Info("Starting Verisure bridge",
		zap.String("username", b.opts.Username),
		zap.Duration("polling_interval", b.opts.PollingInterval))

	for _, device := range b.registry.List() {
		if device.Unit >= b.nextUnit {
			b.nextUnit = device.Unit + 1
		}
	}

	b.markPolled(b.clock.Now())
	_, err := b.Reconcile(ctx)
	return err
}

// OnHeartbeat reconciles once the polling interval has elapsed since the
// last poll. The poll time is updated whether or not reconciliation succeeds.
func (b *Bridge) OnHeartbeat(ctx context.Context) {
	elapsed := b.clock.Since(b.lastPoll)
	if elapsed <= b.opts.PollingInterval {
		return
	}

	b.logger.Debug("Polling interval elapsed", zap.Duration("elapsed", elapsed))

	// Errors are logged and recorded by Reconcile
	_, _ = b.Reconcile(ctx)
	b.markPolled(b.clock.Now())
}

func (b *Bridge) markPolled(now time.Time) {
	b.lastPoll = now

	b.statusMu.Lock()
	b.status.LastPoll = now
	b.statusMu.Unlock()
}
