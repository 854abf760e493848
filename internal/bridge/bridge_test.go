package bridge

import (
	"context"
	"errors"
	"testing"
	"time"

	"verisurebridge/internal/clock"
	"verisurebridge/internal/host"
	"verisurebridge/internal/verisure"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_DefaultPollingInterval(t *testing.T) {
	b := New(Options{}, verisure.NewMockClient(), host.NewMemoryRegistry(), clock.NewMockClock(testStart), zap.NewNop())
	assert.Equal(t, DefaultPollingInterval, b.opts.PollingInterval)
	assert.Equal(t, "4m0s", b.Status().PollingInterval)
	assert.Equal(t, "verisure", b.Name())
}

func TestOnStart_SeedsNextUnitFromRegistry(t *testing.T) {
	b, mock, registry, _ := newTestBridge(t)

	require.NoError(t, registry.Create(host.Device{Unit: 7, Name: SmartPlugName, Label: "OLD", Kind: host.KindSwitch}))
	mock.SetOverview(snapshot("NEW"))

	require.NoError(t, b.OnStart(context.Background()))

	units := unitsByLabel(registry)
	assert.Equal(t, map[string]int{"NEW": 8}, units)
}

func TestOnStart_KeepsKnownDevices(t *testing.T) {
	b, mock, registry, _ := newTestBridge(t)

	require.NoError(t, registry.Create(host.Device{Unit: 3, Name: SmartPlugName, Label: "A", Kind: host.KindSwitch}))
	mock.SetOverview(snapshot("A", "B"))

	require.NoError(t, b.OnStart(context.Background()))
	assert.Equal(t, map[string]int{"A": 3, "B": 4}, unitsByLabel(registry))
}

func TestOnStart_ReturnsRemoteError(t *testing.T) {
	b, mock, _, clk := newTestBridge(t)
	mock.SetOpenError(&verisure.Error{Op: "login", Message: "connection refused"})

	err := b.OnStart(context.Background())
	require.Error(t, err)
	assert.Equal(t, clk.Now(), b.Status().LastPoll)
}

func TestOnHeartbeat_Gating(t *testing.T) {
	b, mock, _, clk := newTestBridge(t)
	ctx := context.Background()
	mock.SetOverview(snapshot("A"))

	require.NoError(t, b.OnStart(ctx))
	require.Equal(t, 1, mock.CountCalls(verisure.OpOverview))

	steps := []struct {
		name      string
		advance   time.Duration
		wantPolls int
	}{
		{name: "heartbeat shortly after start", advance: 10 * time.Second, wantPolls: 1},
		{name: "exactly at the interval", advance: 230 * time.Second, wantPolls: 1},
		{name: "just past the interval", advance: time.Second, wantPolls: 2},
		{name: "next heartbeat", advance: 10 * time.Second, wantPolls: 2},
		{name: "repeated heartbeat without time passing", advance: 0, wantPolls: 2},
		{name: "second interval elapsed", advance: 231 * time.Second, wantPolls: 3},
	}

	for _, step := range steps {
		clk.Advance(step.advance)
		b.OnHeartbeat(ctx)
		assert.Equal(t, step.wantPolls, mock.CountCalls(verisure.OpOverview), step.name)
	}
}

func TestOnHeartbeat_FailedPollStillResetsTimer(t *testing.T) {
	b, mock, _, clk := newTestBridge(t)
	ctx := context.Background()

	require.NoError(t, b.OnStart(ctx))
	mock.SetOverviewError(errors.New("network unreachable"))

	clk.Advance(241 * time.Second)
	b.OnHeartbeat(ctx)
	assert.Equal(t, 2, mock.CountCalls(verisure.OpOverview))
	assert.Equal(t, clk.Now(), b.Status().LastPoll)
	assert.Contains(t, b.Status().LastError, "network unreachable")

	// Failure does not cause a retry before the interval elapses again
	clk.Advance(30 * time.Second)
	b.OnHeartbeat(ctx)
	assert.Equal(t, 2, mock.CountCalls(verisure.OpOverview))
}

func TestOnHeartbeat_CustomInterval(t *testing.T) {
	mock := verisure.NewMockClient()
	clk := clock.NewMockClock(testStart)
	b := New(Options{PollingInterval: 30 * time.Second}, mock, host.NewMemoryRegistry(), clk, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, b.OnStart(ctx))

	clk.Advance(31 * time.Second)
	b.OnHeartbeat(ctx)
	assert.Equal(t, 2, mock.CountCalls(verisure.OpOverview))
}

func TestMetrics_AfterPoll(t *testing.T) {
	b, mock, _, _ := newTestBridge(t)
	mock.SetOverview(&verisure.Overview{
		SmartPlugs:    []verisure.SmartPlug{plug("A", true)},
		ClimateValues: []verisure.ClimateValue{climate("B", 21.5, humidity(40)), climate("C", 5, nil)},
	})

	_, err := b.Reconcile(context.Background())
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	registry.MustRegister(b.Collectors()...)

	families, err := registry.Gather()
	require.NoError(t, err)

	counts := make(map[string]int)
	values := make(map[string]float64)
	for _, family := range families {
		counts[family.GetName()] = len(family.GetMetric())
		for _, metric := range family.GetMetric() {
			if metric.GetGauge() != nil {
				values[family.GetName()] += metric.GetGauge().GetValue()
			}
		}
	}

	assert.Equal(t, 1, counts["verisure_smartplug_on_bool"])
	assert.Equal(t, 2, counts["verisure_climate_temperature_celsius"])
	assert.Equal(t, 1, counts["verisure_climate_humidity_percent"])
	assert.Equal(t, 3, counts["verisure_bridge_devices"], "one series per device kind")
	assert.Equal(t, float64(1), values["verisure_bridge_poll_success"])
	assert.Equal(t, float64(3), values["verisure_bridge_devices"])
	assert.Equal(t, float64(testStart.Unix()), values["verisure_bridge_last_success_timestamp_seconds"])
}
