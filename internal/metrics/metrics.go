package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	StepsN            = "cracfuzzy_station_steps_total"
	StepsH            = "The total number of simulated minutes stepped by the live station"
	TemperatureN      = "cracfuzzy_station_temperature_celsius"
	TemperatureH      = "The current internal temperature of the simulated room"
	ExternalN         = "cracfuzzy_station_external_temperature_celsius"
	ExternalH         = "The current external temperature fed to the controller"
	LoadN             = "cracfuzzy_station_load_percent"
	LoadH             = "The current thermal load fed to the controller"
	ControlN          = "cracfuzzy_station_control_percent"
	ControlH          = "The current smoothed CRAC power output"
	NoRuleFiredN      = "cracfuzzy_station_no_rule_fired_total"
	NoRuleFiredH      = "The total number of steps where no fuzzy rule fired and the output was held"
	AlertsN           = "cracfuzzy_station_alerts_total"
	AlertsH           = "The total number of times the temperature crossed the alert threshold"
	TelemetryDroppedN = "cracfuzzy_telemetry_dropped_total"
	TelemetryDroppedH = "The total number of samples dropped because the telemetry queue was full"
	TelemetryFailedN  = "cracfuzzy_telemetry_failed_total"
	TelemetryFailedH  = "The total number of samples the telemetry sink failed to publish"
)

// Station holds the collectors updated by the live station and the telemetry forwarder.
type Station struct {
	Steps               prometheus.Counter
	Temperature         prometheus.Gauge
	ExternalTemperature prometheus.Gauge
	Load                prometheus.Gauge
	Control             prometheus.Gauge
	NoRuleFired         prometheus.Counter
	Alerts              prometheus.Counter
	TelemetryDropped    prometheus.Counter
	TelemetryFailed     prometheus.Counter
}

// NewStation registers the collectors on reg.
func NewStation(reg prometheus.Registerer) *Station {
	f := promauto.With(reg)
	return &Station{
		Steps: f.NewCounter(prometheus.CounterOpts{
			Name: StepsN,
			Help: StepsH,
		}),
		Temperature: f.NewGauge(prometheus.GaugeOpts{
			Name: TemperatureN,
			Help: TemperatureH,
		}),
		ExternalTemperature: f.NewGauge(prometheus.GaugeOpts{
			Name: ExternalN,
			Help: ExternalH,
		}),
		Load: f.NewGauge(prometheus.GaugeOpts{
			Name: LoadN,
			Help: LoadH,
		}),
		Control: f.NewGauge(prometheus.GaugeOpts{
			Name: ControlN,
			Help: ControlH,
		}),
		NoRuleFired: f.NewCounter(prometheus.CounterOpts{
			Name: NoRuleFiredN,
			Help: NoRuleFiredH,
		}),
		Alerts: f.NewCounter(prometheus.CounterOpts{
			Name: AlertsN,
			Help: AlertsH,
		}),
		TelemetryDropped: f.NewCounter(prometheus.CounterOpts{
			Name: TelemetryDroppedN,
			Help: TelemetryDroppedH,
		}),
		TelemetryFailed: f.NewCounter(prometheus.CounterOpts{
			Name: TelemetryFailedN,
			Help: TelemetryFailedH,
		}),
	}
}
