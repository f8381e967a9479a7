package app

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	httpctrl "github.com/Agrid-Dev/cracfuzzy/internal/controllers/http"
	modbusctrl "github.com/Agrid-Dev/cracfuzzy/internal/controllers/modbus"
	mqttctrl "github.com/Agrid-Dev/cracfuzzy/internal/controllers/mqtt"
	"github.com/Agrid-Dev/cracfuzzy/internal/crac"
	"github.com/Agrid-Dev/cracfuzzy/internal/device"
	"github.com/Agrid-Dev/cracfuzzy/internal/metrics"
	"github.com/Agrid-Dev/cracfuzzy/internal/plant"
	"github.com/Agrid-Dev/cracfuzzy/internal/rulebase"
	"github.com/Agrid-Dev/cracfuzzy/internal/station"
	"github.com/Agrid-Dev/cracfuzzy/internal/telemetry"
)

// NewController builds the fuzzy controller from the configured rule base and the
// plant model from the configured coefficients.
func NewController(cfg Config) (*crac.Controller, *plant.Model, error) {
	def, err := rulebase.LoadOrDefault(cfg.RuleBase.File)
	if err != nil {
		return nil, nil, err
	}
	rb, err := def.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("build rule base: %w", err)
	}
	ctrl, err := crac.New(rb)
	if err != nil {
		return nil, nil, err
	}
	model, err := plant.NewModel(cfg.PlantParams())
	if err != nil {
		return nil, nil, fmt.Errorf("plant: %w", err)
	}
	return ctrl, model, nil
}

// Runtime is a fully wired device ready to Run, with the registry behind /metrics.
type Runtime struct {
	Device    *device.Device
	Registry  *prometheus.Registry
	Forwarder *telemetry.Forwarder

	sink telemetry.Sink
}

// Build wires the station, its telemetry and every enabled controller.
func Build(cfg Config, log *zap.Logger) (*Runtime, error) {
	if log == nil {
		log = zap.NewNop()
	}
	ctrl, model, err := NewController(cfg)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.NewStation(reg)

	rt := &Runtime{Registry: reg}
	opts := []station.Option{station.WithMetrics(m)}

	if cfg.Kafka.Enabled {
		sink, err := telemetry.NewKafkaSink(telemetry.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			BatchTimeout: cfg.Kafka.FlushInterval,
		})
		if err != nil {
			return nil, err
		}
		fwd, err := telemetry.NewForwarder(sink, telemetry.ForwarderConfig{
			DeviceID:      cfg.DeviceID,
			BufferSize:    cfg.Kafka.BufferSize,
			BatchSize:     cfg.Kafka.BatchSize,
			FlushInterval: cfg.Kafka.FlushInterval,
		},
			telemetry.WithLogger(log.Named("telemetry")),
			telemetry.WithCounters(m.TelemetryDropped, m.TelemetryFailed),
		)
		if err != nil {
			_ = sink.Close()
			return nil, err
		}
		rt.sink = sink
		rt.Forwarder = fwd
		opts = append(opts, station.WithObserver(fwd))
	}

	st, err := station.New(ctrl, model, cfg.StationParams(), opts...)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	dev := device.New(cfg.DeviceID, st, log)
	rt.Device = dev

	if rt.Forwarder != nil {
		dev.Attach("telemetry", rt.Forwarder)
	}
	if c := cfg.Controllers.HTTP; c.Enabled {
		dev.Attach("http", httpctrl.New(st, c.Addr, cfg.DeviceID, reg, log.Named("http")))
	}
	if c := cfg.Controllers.MQTT; c.Enabled {
		mc, err := mqttctrl.New(st, mqttctrl.Config{
			DeviceID:        cfg.DeviceID,
			BrokerURL:       c.BrokerURL,
			ClientID:        c.ClientID,
			BaseTopic:       c.BaseTopic,
			QoS:             c.QoS,
			RetainSnapshot:  c.RetainSnapshot,
			PublishInterval: c.PublishInterval,
			Username:        c.Username,
			Password:        c.Password,
		}, log.Named("mqtt"))
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		dev.Attach("mqtt", mc)
	}
	if c := cfg.Controllers.MODBUS; c.Enabled {
		mb, err := modbusctrl.New(st, modbusctrl.Config{
			DeviceID: cfg.DeviceID,
			Addr:     c.Addr,
			UnitID:   c.UnitID,
		}, log.Named("modbus"))
		if err != nil {
			_ = rt.Close()
			return nil, err
		}
		dev.Attach("modbus", mb)
	}
	return rt, nil
}

// Close releases the telemetry sink, if any.
func (rt *Runtime) Close() error {
	if rt.sink == nil {
		return nil
	}
	return rt.sink.Close()
}
