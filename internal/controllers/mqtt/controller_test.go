package mqttctrl

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Agrid-Dev/cracfuzzy/internal/station"
	"github.com/Agrid-Dev/cracfuzzy/internal/testutil"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type fakeToken struct {
	err error
}

func (t fakeToken) Done() <-chan struct{} {
	done := make(chan struct{})
	close(done)
	return done
}

func (t fakeToken) Wait() bool                       { return true }
func (t fakeToken) WaitTimeout(_ time.Duration) bool { return true }
func (t fakeToken) Error() error                     { return t.err }

type publishCall struct {
	topic   string
	qos     byte
	retain  bool
	payload []byte
}

type fakeClient struct {
	publishes  []publishCall
	publishErr error
}

func (c *fakeClient) IsConnected() bool      { return true }
func (c *fakeClient) IsConnectionOpen() bool { return true }
func (c *fakeClient) Connect() mqtt.Token    { return fakeToken{} }
func (c *fakeClient) Disconnect(_ uint)      {}
func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	var b []byte
	switch v := payload.(type) {
	case []byte:
		b = append([]byte(nil), v...)
	case string:
		b = []byte(v)
	default:
		tmp, _ := json.Marshal(v)
		b = tmp
	}
	c.publishes = append(c.publishes, publishCall{
		topic: topic, qos: qos, retain: retained, payload: b,
	})
	return fakeToken{err: c.publishErr}
}
func (c *fakeClient) Subscribe(_ string, _ byte, _ mqtt.MessageHandler) mqtt.Token {
	return fakeToken{}
}
func (c *fakeClient) SubscribeMultiple(_ map[string]byte, _ mqtt.MessageHandler) mqtt.Token {
	return fakeToken{}
}
func (c *fakeClient) Unsubscribe(_ ...string) mqtt.Token       { return fakeToken{} }
func (c *fakeClient) AddRoute(_ string, _ mqtt.MessageHandler) {}
func (c *fakeClient) OptionsReader() mqtt.ClientOptionsReader  { return mqtt.ClientOptionsReader{} }

func (c *fakeClient) topics() []string {
	out := make([]string, len(c.publishes))
	for i, p := range c.publishes {
		out[i] = p.topic
	}
	return out
}

// ---- tests ----
func newTestController(t *testing.T, cfg Config) (*Controller, *testutil.FakeCoolingService, *fakeClient, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	svc := testutil.NewFakeCoolingService()
	if cfg.DeviceID == "" {
		cfg.DeviceID = "room101"
	}
	c, err := New(svc, cfg, zap.New(core))
	if err != nil {
		t.Fatal(err)
	}
	fc := &fakeClient{}
	c.client = fc
	return c, svc, fc, logs
}

func TestNewDefaults(t *testing.T) {
	c, err := New(testutil.NewFakeCoolingService(), Config{DeviceID: "room101"}, nil)
	if err != nil {
		t.Fatal(err)
	}

	if c.cfg.BrokerURL != "tcp://localhost:1883" {
		t.Fatalf("expected default BrokerURL, got %q", c.cfg.BrokerURL)
	}
	if c.cfg.BaseTopic != "cracfuzzy/room101" {
		t.Fatalf("expected default BaseTopic, got %q", c.cfg.BaseTopic)
	}
	if c.cfg.ClientID != "cracfuzzy-room101" {
		t.Fatalf("expected default ClientID, got %q", c.cfg.ClientID)
	}
	if c.cfg.PublishInterval != 1*time.Second {
		t.Fatalf("expected default PublishInterval, got %v", c.cfg.PublishInterval)
	}
}

func TestNewValidation(t *testing.T) {
	svc := testutil.NewFakeCoolingService()

	if _, err := New(svc, Config{}, nil); err == nil {
		t.Fatal("expected error when DeviceID missing")
	}

	if _, err := New(svc, Config{DeviceID: "x", QoS: 2}, nil); err == nil {
		t.Fatal("expected error when QoS > 1")
	}
}

func TestTopicJoin(t *testing.T) {
	c, _, _, _ := newTestController(t, Config{BaseTopic: "cracfuzzy/room101/"})
	if got := c.topic("snapshot"); got != "cracfuzzy/room101/snapshot" {
		t.Fatalf("expected topic without double slashes, got %q", got)
	}
}

func TestDecodeValueStrict(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		v, err := decodeValueStrict[float64]([]byte(`{"value": 12.5}`))
		if err != nil {
			t.Fatal(err)
		}
		if v != 12.5 {
			t.Fatalf("expected 12.5, got %v", v)
		}
	})

	t.Run("missing value", func(t *testing.T) {
		_, err := decodeValueStrict[bool]([]byte(`{}`))
		if err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		_, err := decodeValueStrict[float64]([]byte(`{"value":21,"extra":1}`))
		if err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := decodeValueStrict[bool]([]byte(`{"value":`))
		if err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestOnMessage_IgnoresWrongPrefix(t *testing.T) {
	c, svc, _, _ := newTestController(t, Config{})

	c.onMessage(nil, fakeMessage{
		topic:   "otherprefix/set/running",
		payload: []byte(`{"value":false}`),
	})

	if svc.SetRunningCalled {
		t.Fatal("expected SetRunning not called")
	}
}

func TestOnMessage_Running(t *testing.T) {
	c, svc, _, _ := newTestController(t, Config{})

	c.onMessage(nil, fakeMessage{
		topic:   "cracfuzzy/room101/set/running",
		payload: []byte(`{"value":false}`),
	})

	if !svc.SetRunningCalled || svc.SetRunningArg != false {
		t.Fatalf("expected SetRunning(false), got called=%v arg=%v", svc.SetRunningCalled, svc.SetRunningArg)
	}
}

func TestOnMessage_Setpoint(t *testing.T) {
	c, svc, _, _ := newTestController(t, Config{})

	c.onMessage(nil, fakeMessage{
		topic:   "cracfuzzy/room101/set/setpoint",
		payload: []byte(`{"value":23.5}`),
	})

	if !svc.SetSetpointCalled || svc.SetSetpointArg != 23.5 {
		t.Fatalf("expected SetSetpoint(23.5), got called=%v arg=%v", svc.SetSetpointCalled, svc.SetSetpointArg)
	}
}

func TestOnMessage_InvalidPayload_DoesNotCallService(t *testing.T) {
	c, svc, _, logs := newTestController(t, Config{})

	c.onMessage(nil, fakeMessage{
		topic:   "cracfuzzy/room101/set/setpoint",
		payload: []byte(`{"value":"warm"}`),
	})

	if svc.SetSetpointCalled {
		t.Fatal("expected SetSetpoint not called")
	}
	if n := logs.FilterMessage("mqtt command rejected").Len(); n != 1 {
		t.Fatalf("expected 1 rejection log, got %d", n)
	}
}

func TestOnMessage_ServiceError_IsLogged(t *testing.T) {
	c, svc, _, logs := newTestController(t, Config{})
	svc.SetSetpointErr = station.ErrSetpointOutOfRange

	c.onMessage(nil, fakeMessage{
		topic:   "cracfuzzy/room101/set/setpoint",
		payload: []byte(`{"value":40}`),
	})

	if !svc.SetSetpointCalled {
		t.Fatal("expected SetSetpoint called")
	}
	entries := logs.FilterMessage("mqtt command rejected").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 rejection log, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["field"]; got != "setpoint" {
		t.Fatalf("expected field=setpoint, got %v", got)
	}
}

func TestOnMessage_UnknownField(t *testing.T) {
	c, svc, _, _ := newTestController(t, Config{})

	c.onMessage(nil, fakeMessage{
		topic:   "cracfuzzy/room101/set/mode",
		payload: []byte(`{"value":"cool"}`),
	})

	if svc.SetSetpointCalled || svc.SetRunningCalled {
		t.Fatal("unknown command must not reach the service")
	}
}

func TestTick_PublishesSnapshotAndTelemetry(t *testing.T) {
	c, _, fc, _ := newTestController(t, Config{QoS: 1, RetainSnapshot: true})

	c.tick()

	want := []string{
		"cracfuzzy/room101/snapshot",
		"cracfuzzy/room101/temperature",
		"cracfuzzy/room101/load",
		"cracfuzzy/room101/crac_power",
	}
	got := fc.topics()
	if len(got) != len(want) {
		t.Fatalf("expected topics %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("publish %d: expected %q, got %q", i, want[i], got[i])
		}
	}

	snap := fc.publishes[0]
	if snap.qos != 1 || snap.retain != true {
		t.Fatalf("expected qos=1 retain=true, got qos=%d retain=%v", snap.qos, snap.retain)
	}
	var dto map[string]any
	if err := json.Unmarshal(snap.payload, &dto); err != nil {
		t.Fatalf("invalid published json: %v payload=%s", err, string(snap.payload))
	}
	if dto["crac_power"] != 64.5 || dto["temperature"] != 23.5 {
		t.Fatalf("unexpected snapshot payload %v", dto)
	}
	if fc.publishes[3].retain {
		t.Fatal("telemetry must not be retained")
	}
	if string(fc.publishes[3].payload) != "64.50" {
		t.Fatalf("expected crac_power payload 64.50, got %s", fc.publishes[3].payload)
	}
}

func TestTick_OnlyPublishesOnChange(t *testing.T) {
	c, svc, fc, _ := newTestController(t, Config{})

	c.tick()
	c.tick()
	if len(fc.publishes) != 4 {
		t.Fatalf("expected 4 publishes for an unchanged snapshot, got %d", len(fc.publishes))
	}

	s := svc.Get()
	s.Temperature = 24
	svc.Set(s)
	c.tick()
	if len(fc.publishes) != 8 {
		t.Fatalf("expected 8 publishes after a change, got %d", len(fc.publishes))
	}
}

func TestTick_AlertOnRisingEdge(t *testing.T) {
	c, svc, fc, logs := newTestController(t, Config{})
	c.tick()

	countAlerts := func() int {
		n := 0
		for _, topic := range fc.topics() {
			if topic == "cracfuzzy/room101/alert" {
				n++
			}
		}
		return n
	}

	s := svc.Get()
	s.Temperature, s.Alert = 29.2, true
	svc.Set(s)
	c.tick()
	if countAlerts() != 1 {
		t.Fatalf("expected 1 alert, got %d", countAlerts())
	}

	// Still hot: the flag did not rise again.
	s.Temperature = 29.4
	svc.Set(s)
	c.tick()
	if countAlerts() != 1 {
		t.Fatalf("expected alert only on rising edge, got %d", countAlerts())
	}

	s.Temperature, s.Alert = 27, false
	svc.Set(s)
	c.tick()
	s.Temperature, s.Alert = 28.5, true
	svc.Set(s)
	c.tick()
	if countAlerts() != 2 {
		t.Fatalf("expected a second alert after recovery, got %d", countAlerts())
	}
	if n := logs.FilterMessage("temperature alert").Len(); n != 2 {
		t.Fatalf("expected 2 alert logs, got %d", n)
	}
}

func TestPublish_ErrorIsLogged(t *testing.T) {
	c, _, fc, logs := newTestController(t, Config{})
	fc.publishErr = errors.New("broker gone")

	c.tick()

	if n := logs.FilterMessage("mqtt publish failed").Len(); n != 4 {
		t.Fatalf("expected 4 publish failure logs, got %d", n)
	}
}
