package testutil

import (
	"context"
	"net/http/httptest"
	"time"

	"verisurebridge/internal/api"
	"verisurebridge/internal/bridge"
	"verisurebridge/internal/clock"
	"verisurebridge/internal/host"
	"verisurebridge/internal/verisure"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Credentials accepted by the mock server started by NewTestEnv
const (
	TestUsername = "user@example.com"
	TestPassword = "secret"
)

// TestEnv runs the complete bridge (HTTP client, reconciler, host loop and
// API) against a MockVerisureServer. The bridge clock is a MockClock so
// tests decide when a poll is due; the host heartbeat ticks quickly.
//
// Example usage:
//
//	env := testutil.NewTestEnv(testutil.Options{})
//	defer env.Cleanup()
//
//	env.Server.SetSmartPlug("PLUG1", "Kitchen", true)
//	env.Start()
//	env.TriggerPoll()
type TestEnv struct {
	Server   *MockVerisureServer
	Registry *host.MemoryRegistry
	Bridge   *bridge.Bridge
	Host     *host.Host
	Clock    *clock.MockClock
	API      *httptest.Server
	Logger   *zap.Logger

	options Options
	cancel  context.CancelFunc
	done    chan struct{}
	apiSrv  *api.Server
}

// Options tunes NewTestEnv
type Options struct {
	// Password sent by the bridge; defaults to TestPassword
	Password string
	// PollingInterval defaults to bridge.DefaultPollingInterval
	PollingInterval time.Duration
	// Heartbeat defaults to 10ms
	Heartbeat time.Duration
}

// NewTestEnv builds the environment without starting the host loop, so
// tests can seed the mock server first
func NewTestEnv(opts Options) *TestEnv {
	if opts.Password == "" {
		opts.Password = TestPassword
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 10 * time.Millisecond
	}

	logger := zap.NewNop()
	server := NewMockVerisureServer(TestUsername, TestPassword)
	registry := host.NewMemoryRegistry()
	clk := clock.NewMockClock(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))

	client := verisure.NewClient(server.URL(), 2*time.Second, logger)
	b := bridge.New(bridge.Options{
		Username:        TestUsername,
		Password:        opts.Password,
		PollingInterval: opts.PollingInterval,
	}, client, registry, clk, logger)
	h := host.New(b, opts.Heartbeat, logger)

	metrics := prometheus.NewRegistry()
	metrics.MustRegister(b.Collectors()...)
	apiSrv := api.NewServer(registry, h, b, metrics, logger, 0)

	return &TestEnv{
		Server:   server,
		Registry: registry,
		Bridge:   b,
		Host:     h,
		Clock:    clk,
		API:      httptest.NewServer(apiSrv.Handler()),
		Logger:   logger,
		options:  opts,
		done:     make(chan struct{}),
		apiSrv:   apiSrv,
	}
}

// Start runs the host loop in the background. OnStart performs the first poll
// before any heartbeat or command is handled.
func (e *TestEnv) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	go func() {
		defer close(e.done)
		e.Host.Run(ctx)
	}()
}

// TriggerPoll advances the bridge clock past the polling interval so the
// next heartbeat reconciles
func (e *TestEnv) TriggerPoll() {
	interval := e.options.PollingInterval
	if interval <= 0 {
		interval = bridge.DefaultPollingInterval
	}
	e.Clock.Advance(interval + time.Second)
}

// Cleanup stops the host loop and every server
func (e *TestEnv) Cleanup() {
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
	e.API.Close()
	_ = e.apiSrv.Stop()
	e.Server.Close()
}
