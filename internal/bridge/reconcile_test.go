package bridge

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"verisurebridge/internal/clock"
	"verisurebridge/internal/host"
	"verisurebridge/internal/verisure"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testUsername = "user@example.com"
	testPassword = "secret"
)

var testStart = time.Date(2026, 3, 19, 12, 0, 0, 0, time.UTC)

func newTestBridge(t *testing.T) (*Bridge, *verisure.MockClient, *host.MemoryRegistry, *clock.MockClock) {
	t.Helper()

	mock := verisure.NewMockClient()
	mock.SetCredentials(testUsername, testPassword)
	registry := host.NewMemoryRegistry()
	clk := clock.NewMockClock(testStart)

	b := New(Options{Username: testUsername, Password: testPassword}, mock, registry, clk, zap.NewNop())
	return b, mock, registry, clk
}

func humidity(v float64) *float64 {
	return &v
}

func plug(label string, on bool) verisure.SmartPlug {
	state := verisure.PlugStateOff
	if on {
		state = verisure.PlugStateOn
	}
	return verisure.SmartPlug{DeviceLabel: label, Area: "Area " + label, CurrentState: state}
}

func climate(label string, temperature float64, hum *float64) verisure.ClimateValue {
	return verisure.ClimateValue{DeviceLabel: label, DeviceArea: "Area " + label, Temperature: temperature, Humidity: hum}
}

// snapshot builds an overview where every label is a smart plug that is off
func snapshot(labels ...string) *verisure.Overview {
	overview := &verisure.Overview{}
	for _, label := range labels {
		overview.SmartPlugs = append(overview.SmartPlugs, plug(label, false))
	}
	return overview
}

func labels(registry host.Registry) []string {
	out := make([]string, 0)
	for _, device := range registry.List() {
		out = append(out, device.Label)
	}
	sort.Strings(out)
	return out
}

func unitsByLabel(registry host.Registry) map[string]int {
	out := make(map[string]int)
	for _, device := range registry.List() {
		out[device.Label] = device.Unit
	}
	return out
}

func TestReconcile_CreatesDevices(t *testing.T) {
	b, mock, registry, _ := newTestBridge(t)
	mock.SetOverview(&verisure.Overview{
		SmartPlugs: []verisure.SmartPlug{
			plug("PLUG1", true),
			plug("PLUG2", false),
		},
		ClimateValues: []verisure.ClimateValue{
			climate("CLIM1", 21.456, humidity(47.8)),
			climate("CLIM2", 8.1, nil),
		},
		DoorWindow: verisure.DoorWindow{
			DoorWindowDevices: []verisure.DoorWindowDevice{{DeviceLabel: "DOOR1", Area: "Hall", State: "OPEN"}},
		},
	})

	result, err := b.Reconcile(context.Background())
	require.NoError(t, err)

	want := []host.Device{
		{Unit: 1, Name: SmartPlugName, Label: "PLUG1", Kind: host.KindSwitch, NValue: 1, SValue: "On"},
		{Unit: 2, Name: SmartPlugName, Label: "PLUG2", Kind: host.KindSwitch, NValue: 0, SValue: "Off"},
		{Unit: 3, Name: ClimateSensorName, Label: "CLIM1", Kind: host.KindTempHum, NValue: 0, SValue: "21.5 C;47;1"},
		{Unit: 4, Name: ClimateSensorName, Label: "CLIM2", Kind: host.KindTemperature, NValue: 0, SValue: "8.1 C"},
	}
	if diff := cmp.Diff(want, registry.List(), cmpopts.IgnoreFields(host.Device{}, "LastUpdate")); diff != "" {
		t.Errorf("registry mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, []string{"PLUG1", "PLUG2", "CLIM1", "CLIM2"}, result.Created)
	assert.Equal(t, []string{"PLUG1", "PLUG2", "CLIM1", "CLIM2"}, result.Updated)
	assert.Empty(t, result.Removed)

	// One scoped session per reconciliation
	assert.Equal(t, 1, mock.CountCalls(verisure.OpOpen))
	assert.Equal(t, 1, mock.CountCalls(verisure.OpOverview))
	assert.Equal(t, 1, mock.CountCalls(verisure.OpClose))
	assert.Equal(t, 0, mock.OpenSessions())
}

func TestReconcile_Convergence(t *testing.T) {
	b, mock, registry, _ := newTestBridge(t)

	snapshots := []struct {
		name   string
		labels []string
	}{
		{name: "initial", labels: []string{"A", "B", "C"}},
		{name: "one removed", labels: []string{"A", "C"}},
		{name: "one added one removed", labels: []string{"C", "D"}},
		{name: "empty", labels: []string{}},
		{name: "repopulated", labels: []string{"A", "B", "E"}},
	}

	for _, s := range snapshots {
		mock.SetOverview(snapshot(s.labels...))

		_, err := b.Reconcile(context.Background())
		require.NoError(t, err, s.name)

		want := append([]string{}, s.labels...)
		sort.Strings(want)
		assert.Equal(t, want, labels(registry), s.name)
	}
}

func TestReconcile_HandleStabilityAndMonotonicity(t *testing.T) {
	b, mock, registry, _ := newTestBridge(t)
	ctx := context.Background()

	mock.SetOverview(snapshot("A", "B"))
	_, err := b.Reconcile(ctx)
	require.NoError(t, err)
	first := unitsByLabel(registry)
	assert.Equal(t, map[string]int{"A": 1, "B": 2}, first)

	mock.SetOverview(snapshot("B", "C"))
	result, err := b.Reconcile(ctx)
	require.NoError(t, err)
	second := unitsByLabel(registry)

	assert.Equal(t, first["B"], second["B"], "label present in both snapshots keeps its unit")
	assert.Equal(t, 3, second["C"])
	assert.Equal(t, []string{"C"}, result.Created)
	assert.Equal(t, []string{"A"}, result.Removed)

	// A comes back after deletion and must not reuse unit 1
	mock.SetOverview(snapshot("A", "B", "C"))
	_, err = b.Reconcile(ctx)
	require.NoError(t, err)
	third := unitsByLabel(registry)

	assert.Equal(t, 4, third["A"])
	assert.Equal(t, second["B"], third["B"])
	assert.Equal(t, second["C"], third["C"])
}

func TestReconcile_Idempotent(t *testing.T) {
	b, mock, registry, _ := newTestBridge(t)
	ctx := context.Background()

	mock.SetOverview(&verisure.Overview{
		SmartPlugs:    []verisure.SmartPlug{plug("A", true)},
		ClimateValues: []verisure.ClimateValue{climate("B", 19.95, humidity(52.2))},
	})

	_, err := b.Reconcile(ctx)
	require.NoError(t, err)
	before := registry.List()

	result, err := b.Reconcile(ctx)
	require.NoError(t, err)

	assert.Empty(t, result.Created)
	assert.Empty(t, result.Removed)
	assert.Equal(t, []string{"A", "B"}, result.Updated)

	if diff := cmp.Diff(before, registry.List(), cmpopts.IgnoreFields(host.Device{}, "LastUpdate")); diff != "" {
		t.Errorf("registry changed on identical snapshot (-before +after):\n%s", diff)
	}
}

func TestReconcile_UpdatesValues(t *testing.T) {
	b, mock, registry, _ := newTestBridge(t)
	ctx := context.Background()

	mock.SetOverview(&verisure.Overview{
		SmartPlugs:    []verisure.SmartPlug{plug("A", false)},
		ClimateValues: []verisure.ClimateValue{climate("B", 20.0, nil)},
	})
	_, err := b.Reconcile(ctx)
	require.NoError(t, err)

	mock.SetOverview(&verisure.Overview{
		SmartPlugs:    []verisure.SmartPlug{plug("A", true)},
		ClimateValues: []verisure.ClimateValue{climate("B", 22.04, nil)},
	})
	_, err = b.Reconcile(ctx)
	require.NoError(t, err)

	plugDevice, ok := registry.Get(1)
	require.True(t, ok)
	assert.Equal(t, 1, plugDevice.NValue)
	assert.Equal(t, "On", plugDevice.SValue)

	climateDevice, ok := registry.Get(2)
	require.True(t, ok)
	assert.Equal(t, "22.0 C", climateDevice.SValue)
}

func TestClimateValue(t *testing.T) {
	tests := []struct {
		name        string
		temperature float64
		humidity    *float64
		wantValue   string
		wantKind    host.Kind
	}{
		{
			name:        "temperature only",
			temperature: 21.456,
			wantValue:   "21.5 C",
			wantKind:    host.KindTemperature,
		},
		{
			name:        "temperature and humidity",
			temperature: 21.456,
			humidity:    humidity(47.8),
			wantValue:   "21.5 C;47;1",
			wantKind:    host.KindTempHum,
		},
		{
			name:        "humidity truncated not rounded",
			temperature: 18,
			humidity:    humidity(99.99),
			wantValue:   "18.0 C;99;1",
			wantKind:    host.KindTempHum,
		},
		{
			name:        "below zero",
			temperature: -3.04,
			humidity:    humidity(0),
			wantValue:   "-3.0 C;0;1",
			wantKind:    host.KindTempHum,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := climate("X", tt.temperature, tt.humidity)
			assert.Equal(t, tt.wantValue, climateValue(c))
			assert.Equal(t, tt.wantKind, climateKind(c))
		})
	}
}

func TestReconcile_FetchFailureLeavesRegistryUntouched(t *testing.T) {
	b, mock, registry, _ := newTestBridge(t)
	ctx := context.Background()

	mock.SetOverview(snapshot("A", "B"))
	_, err := b.Reconcile(ctx)
	require.NoError(t, err)
	before := registry.List()

	// An empty overview would delete everything if it were applied
	mock.SetOverview(snapshot())
	mock.SetOverviewError(&verisure.Error{Op: "overview", StatusCode: 503, Message: "Service unavailable"})

	result, err := b.Reconcile(ctx)
	require.Error(t, err)
	assert.Nil(t, result)

	var apiErr *verisure.Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 503, apiErr.StatusCode)

	assert.Equal(t, before, registry.List())
	assert.Equal(t, 0, mock.OpenSessions(), "session must be closed after a failed fetch")

	status := b.Status()
	assert.Contains(t, status.LastError, "Service unavailable")

	// The next successful poll converges again
	mock.SetOverviewError(nil)
	_, err = b.Reconcile(ctx)
	require.NoError(t, err)
	assert.Empty(t, registry.List())
	assert.Empty(t, b.Status().LastError)
}

func TestReconcile_AuthenticationFailure(t *testing.T) {
	mock := verisure.NewMockClient()
	mock.SetCredentials(testUsername, testPassword)
	mock.SetOverview(snapshot("A"))
	registry := host.NewMemoryRegistry()

	b := New(Options{Username: testUsername, Password: "wrong"}, mock, registry, clock.NewMockClock(testStart), zap.NewNop())

	_, err := b.Reconcile(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, verisure.ErrAuthentication))
	assert.Empty(t, registry.List())
	assert.Equal(t, 0, mock.CountCalls(verisure.OpOverview))
}

// failingRegistry fails Create for one label
type failingRegistry struct {
	*host.MemoryRegistry
	failLabel string
}

func (r *failingRegistry) Create(device host.Device) error {
	if device.Label == r.failLabel {
		return errors.New("registry full")
	}
	return r.MemoryRegistry.Create(device)
}

func TestReconcile_PartialFailureSelfHeals(t *testing.T) {
	mock := verisure.NewMockClient()
	registry := &failingRegistry{MemoryRegistry: host.NewMemoryRegistry(), failLabel: "B"}
	b := New(Options{Username: testUsername, Password: testPassword}, mock, registry, clock.NewMockClock(testStart), zap.NewNop())
	ctx := context.Background()

	mock.SetOverview(snapshot("A", "B", "C"))

	result, err := b.Reconcile(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registry full")
	assert.Equal(t, []string{"A"}, result.Created)

	// Work done before the failure is kept
	assert.Equal(t, []string{"A"}, labels(registry))

	registry.failLabel = ""
	_, err = b.Reconcile(ctx)
	require.NoError(t, err)

	units := unitsByLabel(registry)
	assert.Equal(t, []string{"A", "B", "C"}, labels(registry))
	assert.Equal(t, 1, units["A"])
	// Unit 2 was consumed by the failed create and is not handed out again
	assert.Equal(t, 3, units["B"])
	assert.Equal(t, 4, units["C"])
}

func TestReconcile_DuplicateLabelAcrossCategories(t *testing.T) {
	b, mock, registry, _ := newTestBridge(t)

	mock.SetOverview(&verisure.Overview{
		SmartPlugs:    []verisure.SmartPlug{plug("SAME", true)},
		ClimateValues: []verisure.ClimateValue{climate("SAME", 20, nil)},
	})

	result, err := b.Reconcile(context.Background())
	require.NoError(t, err)

	// Only one device exists for the label
	assert.Len(t, registry.List(), 1)
	assert.Equal(t, []string{"SAME"}, result.Created)
}
