package bridge

import (
	"time"

	"verisurebridge/internal/host"
	"verisurebridge/internal/verisure"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects poll, command and device metrics for the bridge
type Metrics struct {
	polls       *prometheus.CounterVec
	commands    *prometheus.CounterVec
	success     prometheus.Gauge
	lastSuccess prometheus.Gauge
	devices     *prometheus.GaugeVec
	temperature *prometheus.GaugeVec
	humidity    *prometheus.GaugeVec
	plugOn      *prometheus.GaugeVec
}

// NewMetrics creates the bridge metrics
func NewMetrics() *Metrics {
	labels := []string{"device_label", "area"}
	return &Metrics{
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verisure_bridge_polls_total",
			Help: "Overview polls by result",
		}, []string{"result"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verisure_bridge_commands_total",
			Help: "Smart plug commands by result",
		}, []string{"result"}),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "verisure_bridge_poll_success",
			Help: "Last poll success (1=ok, 0=error)",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "verisure_bridge_last_success_timestamp_seconds",
			Help: "Last successful poll timestamp (epoch seconds)",
		}),
		devices: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "verisure_bridge_devices",
			Help: "Devices in the host registry by kind",
		}, []string{"kind"}),
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "verisure_climate_temperature_celsius",
			Help: "Temperature reported by each climate sensor",
		}, labels),
		humidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "verisure_climate_humidity_percent",
			Help: "Humidity reported by each climate sensor",
		}, labels),
		plugOn: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "verisure_smartplug_on_bool",
			Help: "Smart plug state (1=on, 0=off)",
		}, labels),
	}
}

func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.polls.Describe(ch)
	m.commands.Describe(ch)
	m.success.Describe(ch)
	m.lastSuccess.Describe(ch)
	m.devices.Describe(ch)
	m.temperature.Describe(ch)
	m.humidity.Describe(ch)
	m.plugOn.Describe(ch)
}

func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.polls.Collect(ch)
	m.commands.Collect(ch)
	m.success.Collect(ch)
	m.lastSuccess.Collect(ch)
	m.devices.Collect(ch)
	m.temperature.Collect(ch)
	m.humidity.Collect(ch)
	m.plugOn.Collect(ch)
}

// observePoll replaces the per-device gauges with the latest overview
func (m *Metrics) observePoll(overview *verisure.Overview, devices []host.Device, now time.Time) {
	m.polls.WithLabelValues("success").Inc()
	m.success.Set(1)
	m.lastSuccess.Set(float64(now.Unix()))

	m.temperature.Reset()
	m.humidity.Reset()
	m.plugOn.Reset()

	for _, plug := range overview.SmartPlugs {
		m.plugOn.WithLabelValues(plug.DeviceLabel, plug.Area).Set(boolToFloat(plug.IsOn()))
	}

	for _, climate := range overview.ClimateValues {
		m.temperature.WithLabelValues(climate.DeviceLabel, climate.DeviceArea).Set(climate.Temperature)
		if climate.HasHumidity() {
			m.humidity.WithLabelValues(climate.DeviceLabel, climate.DeviceArea).Set(*climate.Humidity)
		}
	}

	m.devices.Reset()
	counts := make(map[host.Kind]int)
	for _, device := range devices {
		counts[device.Kind]++
	}
	for kind, count := range counts {
		m.devices.WithLabelValues(string(kind)).Set(float64(count))
	}
}

func (m *Metrics) observePollError() {
	m.polls.WithLabelValues("error").Inc()
	m.success.Set(0)
}

func (m *Metrics) observeCommand(ok bool) {
	result := "success"
	if !ok {
		result = "error"
	}
	m.commands.WithLabelValues(result).Inc()
}

func boolToFloat(value bool) float64 {
	if value {
		return 1
	}
	return 0
}
