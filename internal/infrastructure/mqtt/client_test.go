package mqtt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "graylogic-relay-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// disconnectedClient returns a client that never connected.
func disconnectedClient(t *testing.T) *Client {
	t.Helper()
	c := newClient(testConfig())
	c.client = pahomqtt.NewClient(buildClientOptions(testConfig()))
	return c
}

type mockLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *mockLogger) Info(string, ...any) {}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func TestTopics(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"Telemetry", topics.Telemetry("sigfox", "2C30EB"), "graylogic/telemetry/sigfox/2C30EB"},
		{"AllTelemetry", topics.AllTelemetry(), "graylogic/telemetry/+/+"},
		{"RelayStatus", topics.RelayStatus("relay-01"), "graylogic/system/relay/relay-01/status"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		topic   string
		want    bool
	}{
		{"graylogic/telemetry/+/+", "graylogic/telemetry/sigfox/2C30EB", true},
		{"graylogic/telemetry/+/+", "graylogic/telemetry/sigfox", false},
		{"graylogic/telemetry/+/+", "graylogic/telemetry/sigfox/2C30EB/raw", false},
		{"graylogic/#", "graylogic/telemetry/sigfox/2C30EB", true},
		{"graylogic/telemetry/sigfox/2C30EB", "graylogic/telemetry/sigfox/2C30EB", true},
		{"graylogic/telemetry/lora/+", "graylogic/telemetry/sigfox/2C30EB", false},
		{"graylogic/#/x", "graylogic/a/x", false},
	}
	for _, tt := range tests {
		if got := Match(tt.pattern, tt.topic); got != tt.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tt.pattern, tt.topic, got, tt.want)
		}
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "relay", Password: "secret"}

	opts := buildClientOptions(cfg)
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want [tcp://127.0.0.1:1883]", opts.Servers)
	}
	if opts.ClientID != "graylogic-relay-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "relay" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect || !opts.CleanSession {
		t.Errorf("AutoReconnect = %v, CleanSession = %v; want both true", opts.AutoReconnect, opts.CleanSession)
	}
	cfg.Broker.TLS = true
	opts = buildClientOptions(cfg)
	if opts.Servers[0].Scheme != "ssl" {
		t.Errorf("scheme = %q, want ssl", opts.Servers[0].Scheme)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLSConfig not set with minimum version")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := pahomqtt.NewClientOptions()
	configureLWT(opts, "relay-01")

	if !opts.WillEnabled || !opts.WillRetained {
		t.Fatalf("WillEnabled = %v, WillRetained = %v; want both true", opts.WillEnabled, opts.WillRetained)
	}
	if opts.WillTopic != "graylogic/system/relay/relay-01/status" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}

	var payload statusPayload
	if err := json.Unmarshal(opts.WillPayload, &payload); err != nil {
		t.Fatalf("will payload not JSON: %v", err)
	}
	if payload.Status != statusOffline || payload.Reason != reasonUnexpected || payload.ClientID != "relay-01" {
		t.Errorf("will payload = %+v", payload)
	}
	if _, err := time.Parse(time.RFC3339, payload.Timestamp); err != nil {
		t.Errorf("timestamp %q not RFC3339: %v", payload.Timestamp, err)
	}
}

func TestBuildStatusPayload_OmitsEmptyReason(t *testing.T) {
	var payload map[string]any
	if err := json.Unmarshal(buildStatusPayload("relay-01", statusOnline, ""), &payload); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if _, ok := payload["reason"]; ok {
		t.Errorf("online payload has reason: %v", payload)
	}
	if payload["status"] != statusOnline {
		t.Errorf("status = %v, want online", payload["status"])
	}
}

func TestPublish_Validation(t *testing.T) {
	c := disconnectedClient(t)

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", []byte("{}"), 1, ErrInvalidTopic},
		{"invalid qos", "graylogic/x", []byte("{}"), 3, ErrInvalidQoS},
		{"oversized payload", "graylogic/x", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"disconnected", "graylogic/x", []byte("{}"), 1, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := disconnectedClient(t)
	noop := func(string, []byte) error { return nil }

	tests := []struct {
		name    string
		topic   string
		qos     byte
		handler MessageHandler
		want    error
	}{
		{"empty topic", "", 1, noop, ErrInvalidTopic},
		{"invalid qos", "graylogic/#", 5, noop, ErrInvalidQoS},
		{"nil handler", "graylogic/#", 1, nil, ErrSubscribeFailed},
		{"disconnected", "graylogic/#", 1, noop, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Subscribe(tt.topic, tt.qos, tt.handler); !errors.Is(err, tt.want) {
				t.Errorf("Subscribe() error = %v, want %v", err, tt.want)
			}
		})
	}
	if c.SubscriptionCount() != 0 || c.HasSubscription("graylogic/#") {
		t.Error("rejected subscription was tracked")
	}

	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(\"\") error = %v, want ErrInvalidTopic", err)
	}
	if err := c.Unsubscribe("graylogic/#"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() error = %v, want ErrNotConnected", err)
	}
}

func TestHealthCheck(t *testing.T) {
	c := disconnectedClient(t)

	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() cancelled error = %v, want context.Canceled", err)
	}
}

func TestCloseNil(t *testing.T) {
	var c Client
	if err := c.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true on zero client")
	}
}

func TestDispatch(t *testing.T) {
	c := disconnectedClient(t)
	logger := &mockLogger{}
	c.SetLogger(logger)

	var got []string
	c.dispatch(func(topic string, payload []byte) error {
		got = append(got, topic+"="+string(payload))
		return nil
	}, "graylogic/telemetry/sigfox/2C30EB", []byte(`{"tmp":21}`))
	if len(got) != 1 || got[0] != `graylogic/telemetry/sigfox/2C30EB={"tmp":21}` {
		t.Errorf("handler received %v", got)
	}

	c.dispatch(func(string, []byte) error { return fmt.Errorf("bad message") }, "t", nil)
	c.dispatch(func(string, []byte) error { panic("boom") }, "t", nil)

	if len(logger.warns) != 1 {
		t.Errorf("warnings = %v, want one for the handler error", logger.warns)
	}
	if len(logger.errors) != 1 {
		t.Errorf("errors = %v, want one for the recovered panic", logger.errors)
	}
}

func TestDispatch_NoLogger(t *testing.T) {
	c := disconnectedClient(t)
	// Must not panic without a logger.
	c.dispatch(func(string, []byte) error { panic("boom") }, "t", nil)
	c.dispatch(func(string, []byte) error { return errors.New("x") }, "t", nil)
}

func TestHandleDisconnect(t *testing.T) {
	c := disconnectedClient(t)
	c.connected = true

	var gotErr error
	c.SetOnDisconnect(func(err error) { gotErr = err })

	lost := errors.New("connection reset")
	c.handleDisconnect(lost)

	if c.connected {
		t.Error("connected still true after handleDisconnect()")
	}
	if !errors.Is(gotErr, lost) {
		t.Errorf("onDisconnect error = %v, want %v", gotErr, lost)
	}
}

// TestPublishSubscribeRoundtrip needs a broker at 127.0.0.1:1883.
func TestPublishSubscribeRoundtrip(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION") == "" {
		t.Skip("set RUN_INTEGRATION to run against a local broker")
	}

	client, err := Connect(testConfig())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	received := make(chan []byte, 1)
	topic := Topics{}.Telemetry("test", "2C30EB")
	err = client.Subscribe(Topics{}.AllTelemetry(), 1, func(got string, payload []byte) error {
		if got == topic {
			received <- payload
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !client.HasSubscription(Topics{}.AllTelemetry()) {
		t.Error("subscription not tracked")
	}

	if err := client.Publish(topic, []byte(`{"tmp":21.5}`), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case payload := <-received:
		if string(payload) != `{"tmp":21.5}` {
			t.Errorf("payload = %s", payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("message not received")
	}

	if err := client.Unsubscribe(Topics{}.AllTelemetry()); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if client.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", client.SubscriptionCount())
	}
}
