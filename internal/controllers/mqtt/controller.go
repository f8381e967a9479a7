package mqttctrl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/Agrid-Dev/cracfuzzy/internal/ports"
	"github.com/Agrid-Dev/cracfuzzy/internal/station"
)

type Config struct {
	// Identity
	DeviceID string

	// MQTT connection
	BrokerURL string
	ClientID  string

	// Topics
	BaseTopic string

	// Behavior
	QoS             byte
	RetainSnapshot  bool
	PublishInterval time.Duration

	Username string
	Password string
}

type Controller struct {
	svc ports.StationService
	cfg Config
	log *zap.Logger

	client mqtt.Client

	last      station.Snapshot
	published bool
}

func New(svc ports.StationService, cfg Config, log *zap.Logger) (*Controller, error) {
	// ---- defaults ----

	if cfg.BrokerURL == "" {
		cfg.BrokerURL = "tcp://localhost:1883"
	}

	if cfg.DeviceID == "" {
		return nil, errors.New("mqtt: DeviceID is required")
	}
	if cfg.BaseTopic == "" {
		cfg.BaseTopic = "cracfuzzy/" + cfg.DeviceID
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "cracfuzzy-" + cfg.DeviceID
	}
	if cfg.PublishInterval <= 0 {
		cfg.PublishInterval = 1 * time.Second
	}
	if cfg.QoS > 1 {
		return nil, errors.New("mqtt: QoS must be 0 or 1")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		svc: svc,
		cfg: cfg,
		log: log.With(zap.String("base_topic", cfg.BaseTopic)),
	}, nil
}

func (c *Controller) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(c.cfg.BrokerURL).
		SetClientID(c.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second)

	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}

	// Subscribe when connected/reconnected.
	opts.OnConnect = func(cl mqtt.Client) {
		topic := c.topic("set/+")
		token := cl.Subscribe(topic, c.cfg.QoS, c.onMessage)
		token.Wait()
		if err := token.Error(); err != nil {
			c.log.Error("mqtt subscribe failed", zap.String("topic", topic), zap.Error(err))
			return
		}
		c.log.Info("mqtt subscribed", zap.String("topic", topic))
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		c.log.Warn("mqtt connection lost", zap.Error(err))
	}

	c.client = mqtt.NewClient(opts)
	tok := c.client.Connect()
	tok.Wait()
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	ticker := time.NewTicker(c.cfg.PublishInterval)
	defer ticker.Stop()

	// publish immediately once
	c.tick()

	for {
		select {
		case <-ctx.Done():
			c.client.Disconnect(250)
			return ctx.Err()

		case <-ticker.C:
			c.tick()
		}
	}
}

// tick publishes the snapshot and telemetry when the station state changed, and
// an alert message when the alert flag rises.
func (c *Controller) tick() {
	cur := c.svc.Get()
	if c.published && cur == c.last {
		return
	}
	raised := cur.Alert && (!c.published || !c.last.Alert)

	c.publishSnapshot(cur)
	c.publishScalar("temperature", cur.Temperature)
	c.publishScalar("load", cur.Load)
	c.publishScalar("crac_power", cur.Control)
	if raised {
		c.publishAlert(cur)
	}
	c.last = cur
	c.published = true
}

func (c *Controller) publishSnapshot(s station.Snapshot) {
	dto := snapshotDTO{
		Running:             s.Running,
		Setpoint:            s.Setpoint,
		SetpointMin:         s.SetpointMin,
		SetpointMax:         s.SetpointMax,
		Minute:              s.Minute,
		Temperature:         s.Temperature,
		ExternalTemperature: s.ExternalTemperature,
		Load:                s.Load,
		Raw:                 s.Raw,
		Control:             s.Control,
		NoRuleFired:         s.NoRuleFired,
		Alert:               s.Alert,
		Comfortable:         s.Comfortable,
	}
	b, _ := json.Marshal(dto)
	c.publish("snapshot", c.cfg.RetainSnapshot, b)
}

func (c *Controller) publishScalar(suffix string, v float64) {
	c.publish(suffix, false, []byte(strconv.FormatFloat(v, 'f', 2, 64)))
}

func (c *Controller) publishAlert(s station.Snapshot) {
	b, _ := json.Marshal(alertDTO{
		DeviceID:    c.cfg.DeviceID,
		Temperature: s.Temperature,
		Minute:      s.Minute,
		Message:     fmt.Sprintf("temperature %.2f °C above alert threshold", s.Temperature),
	})
	c.publish("alert", false, b)
	c.log.Warn("temperature alert", zap.Float64("temperature", s.Temperature), zap.Int("minute", s.Minute))
}

func (c *Controller) publish(suffix string, retain bool, payload []byte) {
	tok := c.client.Publish(c.topic(suffix), c.cfg.QoS, retain, payload)
	if tok.WaitTimeout(5*time.Second) && tok.Error() != nil {
		c.log.Debug("mqtt publish failed", zap.String("topic", c.topic(suffix)), zap.Error(tok.Error()))
	}
}

type snapshotDTO struct {
	Running             bool    `json:"running"`
	Setpoint            float64 `json:"setpoint"`
	SetpointMin         float64 `json:"setpoint_min"`
	SetpointMax         float64 `json:"setpoint_max"`
	Minute              int     `json:"minute"`
	Temperature         float64 `json:"temperature"`
	ExternalTemperature float64 `json:"external_temperature"`
	Load                float64 `json:"load"`
	Raw                 float64 `json:"raw_output"`
	Control             float64 `json:"crac_power"`
	NoRuleFired         bool    `json:"no_rule_fired"`
	Alert               bool    `json:"alert"`
	Comfortable         bool    `json:"comfortable"`
}

type alertDTO struct {
	DeviceID    string  `json:"device_id"`
	Temperature float64 `json:"temperature"`
	Minute      int     `json:"minute"`
	Message     string  `json:"message"`
}

// Command payload format: {"value": ...}
type valueReq[T any] struct {
	Value *T `json:"value"`
}

func (c *Controller) onMessage(_ mqtt.Client, msg mqtt.Message) {
	// topic format: <base>/set/<field>
	t := msg.Topic()
	prefix := strings.TrimRight(c.cfg.BaseTopic, "/") + "/set/"
	if !strings.HasPrefix(t, prefix) {
		return
	}
	field := strings.TrimPrefix(t, prefix)

	payload := msg.Payload()

	switch field {
	case "running":
		v, err := decodeValueStrict[bool](payload)
		if err != nil {
			c.rejected(field, err)
			return
		}
		c.svc.SetRunning(v)

	case "setpoint":
		v, err := decodeValueStrict[float64](payload)
		if err != nil {
			c.rejected(field, err)
			return
		}
		if err := c.svc.SetSetpoint(v); err != nil {
			c.rejected(field, err)
		}

	default:
		c.log.Debug("mqtt unknown command", zap.String("field", field))
	}
}

func (c *Controller) rejected(field string, err error) {
	c.log.Warn("mqtt command rejected", zap.String("field", field), zap.Error(err))
}

func (c *Controller) topic(suffix string) string {
	return strings.TrimRight(c.cfg.BaseTopic, "/") + "/" + suffix
}

func decodeValueStrict[T any](b []byte) (T, error) {
	var zero T
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var req valueReq[T]
	if err := dec.Decode(&req); err != nil {
		return zero, err
	}
	if req.Value == nil {
		return zero, errors.New("missing field 'value'")
	}
	return *req.Value, nil
}
