package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/Agrid-Dev/cracfuzzy/internal/plant"
	"github.com/Agrid-Dev/cracfuzzy/internal/simulation"
	"github.com/Agrid-Dev/cracfuzzy/internal/station"
)

const EnvPrefix = "CRACFUZZY_"

type Config struct {
	DeviceID    string            `koanf:"device_id"`
	Log         LogConfig         `koanf:"log"`
	Controllers ControllersConfig `koanf:"controllers"`
	Station     StationConfig     `koanf:"station"`
	Simulation  SimulationConfig  `koanf:"simulation"`
	Plant       PlantConfig       `koanf:"plant"`
	RuleBase    RuleBaseConfig    `koanf:"rulebase"`
	Kafka       KafkaConfig       `koanf:"kafka"`
}

type ControllersConfig struct {
	HTTP   HTTPConfig   `koanf:"http"`
	MQTT   MQTTConfig   `koanf:"mqtt"`
	MODBUS ModbusConfig `koanf:"modbus"`
}

type LogConfig struct {
	Verbose    bool   `koanf:"verbose"`
	File       string `koanf:"file"` // optional rotating log file, tee'd with the console
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
}

type HTTPConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

type MQTTConfig struct {
	Enabled         bool          `koanf:"enabled"`
	BrokerURL       string        `koanf:"broker_url"`
	ClientID        string        `koanf:"client_id"`
	BaseTopic       string        `koanf:"base_topic"`
	QoS             byte          `koanf:"qos"`
	RetainSnapshot  bool          `koanf:"retain_snapshot"`
	PublishInterval time.Duration `koanf:"publish_interval"`
	Username        string        `koanf:"username"`
	Password        string        `koanf:"password"`
}

type ModbusConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
	UnitID  byte   `koanf:"unit_id"`
}

type StationConfig struct {
	Setpoint           float64       `koanf:"setpoint"`
	SetpointMin        float64       `koanf:"setpoint_min"`
	SetpointMax        float64       `koanf:"setpoint_max"`
	InitialTemperature float64       `koanf:"initial_temperature"`
	InitialOutput      float64       `koanf:"initial_output"`
	StepInterval       time.Duration `koanf:"step_interval"` // wall time per simulated minute
	AlertAbove         float64       `koanf:"alert_above"`
	ComfortMin         float64       `koanf:"comfort_min"`
	ComfortMax         float64       `koanf:"comfort_max"`
}

type SimulationConfig struct {
	Steps             int               `koanf:"steps"`
	DerivativeScale   float64           `koanf:"derivative_scale"`
	ExternalMean      float64           `koanf:"external_mean"`
	ExternalAmplitude float64           `koanf:"external_amplitude"`
	ExternalPhaseHour float64           `koanf:"external_phase_hour"`
	BaseLoad          float64           `koanf:"base_load"`
	LoadBands         []simulation.Band `koanf:"load_bands"`
}

type PlantConfig struct {
	Retention    float64 `koanf:"retention"`
	ControlGain  float64 `koanf:"control_gain"`
	LoadGain     float64 `koanf:"load_gain"`
	ExternalGain float64 `koanf:"external_gain"`
	Offset       float64 `koanf:"offset"`
}

type RuleBaseConfig struct {
	File string `koanf:"file"` // .toml/.yaml rule base; empty uses the built-in one
}

type KafkaConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Brokers       []string      `koanf:"brokers"`
	Topic         string        `koanf:"topic"`
	BufferSize    int           `koanf:"buffer_size"`
	BatchSize     int           `koanf:"batch_size"`
	FlushInterval time.Duration `koanf:"flush_interval"`
}

func DefaultConfig() Config {
	pp := plant.DefaultParams()
	limits := simulation.DefaultLimits()
	sp := station.DefaultParams()
	return Config{
		DeviceID: "default",
		Log: LogConfig{
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Controllers: ControllersConfig{
			HTTP: HTTPConfig{Enabled: true, Addr: ":8080"},
			MQTT: MQTTConfig{
				BrokerURL:       "tcp://localhost:1883",
				PublishInterval: time.Second,
			},
			MODBUS: ModbusConfig{Addr: "127.0.0.1:1502", UnitID: 1},
		},
		Station: StationConfig{
			Setpoint:           sp.Setpoint,
			SetpointMin:        sp.SetpointMin,
			SetpointMax:        sp.SetpointMax,
			InitialTemperature: sp.InitialTemperature,
			InitialOutput:      sp.InitialOutput,
			StepInterval:       time.Second,
			AlertAbove:         limits.AlertAbove,
			ComfortMin:         limits.ComfortMin,
			ComfortMax:         limits.ComfortMax,
		},
		Simulation: SimulationConfig{
			Steps:             simulation.MinutesPerDay,
			DerivativeScale:   simulation.DefaultDerivativeScale,
			ExternalMean:      22,
			ExternalAmplitude: 6,
			ExternalPhaseHour: 15,
			BaseLoad:          simulation.DefaultBaseLoad,
			LoadBands:         simulation.DefaultLoadBands(),
		},
		Plant: PlantConfig{
			Retention:    pp.Retention,
			ControlGain:  pp.ControlGain,
			LoadGain:     pp.LoadGain,
			ExternalGain: pp.ExternalGain,
			Offset:       pp.Offset,
		},
		Kafka: KafkaConfig{
			Topic:         "cracfuzzy.samples",
			BufferSize:    4096,
			BatchSize:     100,
			FlushInterval: time.Second,
		},
	}
}

// LoadConfig layers defaults, the optional file and CRACFUZZY_* environment
// variables, in that order. A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	return loadConfig(path, os.Environ)
}

func loadConfig(path string, environ func() []string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			parser, err := parserFor(path)
			if err != nil {
				return Config{}, err
			}
			if err := k.Load(file.Provider(path), parser); err != nil {
				return Config{}, fmt.Errorf("load config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: envTransform,
		EnvironFunc:   environ,
	}), nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config extension %q", ext)
	}
}

func envTransform(k, v string) (string, any) {
	key := envKeyTransform(strings.TrimPrefix(k, EnvPrefix))
	if key == "kafka.brokers" {
		var brokers []string
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		return key, brokers
	}
	return key, v
}

var sections = map[string]bool{
	"log":        true,
	"station":    true,
	"simulation": true,
	"plant":      true,
	"rulebase":   true,
	"kafka":      true,
}

// envKeyTransform maps an environment key (prefix removed) to a koanf path:
// CONTROLLERS_HTTP_ADDR -> controllers.http.addr, STATION_STEP_INTERVAL ->
// station.step_interval. Unknown keys are only lowercased.
func envKeyTransform(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	if k == "" {
		return ""
	}

	if rest, ok := strings.CutPrefix(k, "controllers_"); ok {
		ctrl, field, ok := strings.Cut(rest, "_")
		if !ok {
			return k
		}
		return "controllers." + ctrl + "." + field
	}

	section, field, ok := strings.Cut(k, "_")
	if ok && sections[section] {
		return section + "." + field
	}
	return k
}

func (c Config) Validate() error {
	if c.DeviceID == "" {
		return errors.New("config: device_id is required")
	}
	if c.Station.StepInterval <= 0 {
		return fmt.Errorf("config: station.step_interval must be > 0, got %v", c.Station.StepInterval)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return errors.New("config: kafka.brokers is required when kafka is enabled")
	}
	if !c.Controllers.HTTP.Enabled && !c.Controllers.MQTT.Enabled && !c.Controllers.MODBUS.Enabled {
		return errors.New("config: at least one controller must be enabled")
	}
	return nil
}

func (c Config) PlantParams() plant.Params {
	return plant.Params{
		Retention:    c.Plant.Retention,
		ControlGain:  c.Plant.ControlGain,
		LoadGain:     c.Plant.LoadGain,
		ExternalGain: c.Plant.ExternalGain,
		Offset:       c.Plant.Offset,
	}
}

func (c Config) Limits() simulation.Limits {
	return simulation.Limits{
		AlertAbove: c.Station.AlertAbove,
		ComfortMin: c.Station.ComfortMin,
		ComfortMax: c.Station.ComfortMax,
	}
}

func (c Config) ExternalProfile() simulation.Profile {
	return simulation.Sinusoid(c.Simulation.ExternalMean, c.Simulation.ExternalAmplitude, c.Simulation.ExternalPhaseHour)
}

func (c Config) LoadProfile() simulation.Profile {
	return simulation.Schedule(c.Simulation.BaseLoad, c.Simulation.LoadBands...)
}

func (c Config) StationParams() station.Params {
	return station.Params{
		Setpoint:           c.Station.Setpoint,
		SetpointMin:        c.Station.SetpointMin,
		SetpointMax:        c.Station.SetpointMax,
		InitialTemperature: c.Station.InitialTemperature,
		InitialOutput:      c.Station.InitialOutput,
		DerivativeScale:    c.Simulation.DerivativeScale,
		External:           c.ExternalProfile(),
		Load:               c.LoadProfile(),
		Limits:             c.Limits(),
	}
}

// SimulationRun returns the batch run configuration for the given setpoint.
func (c Config) SimulationRun(setpoint float64) simulation.Config {
	return simulation.Config{
		Setpoint:           setpoint,
		Steps:              c.Simulation.Steps,
		InitialTemperature: c.Station.InitialTemperature,
		InitialOutput:      c.Station.InitialOutput,
		DerivativeScale:    c.Simulation.DerivativeScale,
		External:           c.ExternalProfile(),
		Load:               c.LoadProfile(),
	}
}
