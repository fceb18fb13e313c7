//go:build integration

package mqtt

import (
	"context"
	"errors"
	"net"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mkarlberg/studiotether/internal/infrastructure/config"
)

// Broker-backed tests for the client. They need a live broker; a stock
// mosquitto on 127.0.0.1:1883 works, or point STUDIOTETHER_TEST_BROKER
// at another host:port:
//
//	STUDIOTETHER_TEST_BROKER=10.0.0.5:1883 go test -tags=integration ./internal/infrastructure/mqtt/
//
// Delivery assertions poll rather than sleep-and-hope, but broker timing
// still makes these unsuitable for the default test run.

// testBroker resolves the broker address under test.
func testBroker(t *testing.T) (host string, port int) {
	t.Helper()

	addr := os.Getenv("STUDIOTETHER_TEST_BROKER")
	if addr == "" {
		return "127.0.0.1", 1883
	}
	h, p, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("STUDIOTETHER_TEST_BROKER %q: %v", addr, err)
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		t.Fatalf("STUDIOTETHER_TEST_BROKER port %q: %v", p, err)
	}
	return h, n
}

// dial connects a client with its own ID and ties its lifetime to the
// test. Each test gets distinct IDs so the broker never kicks one test's
// session to seat another's.
func dial(t *testing.T, id string) *Client {
	t.Helper()

	host, port := testBroker(t)
	client, err := Connect(config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     host,
			Port:     port,
			ClientID: "studiotether-it-" + id,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// settle gives the broker a moment to register a fresh subscription
// before anything publishes at it.
func settle() { time.Sleep(150 * time.Millisecond) }

// waitFor polls cond until it holds or the deadline passes.
func waitFor(d time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestIntegration_ConnectAndHealth(t *testing.T) {
	client := dial(t, "health")

	if !client.IsConnected() {
		t.Fatal("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(cancelled); err == nil {
		t.Error("HealthCheck() with cancelled context should fail")
	}
}

// TestIntegration_ConnectRefused verifies a dead broker surfaces as
// ErrConnectionFailed. With connect-retry enabled the token never
// errors, so this takes the full connect timeout to come back.
func TestIntegration_ConnectRefused(t *testing.T) {
	host, _ := testBroker(t)

	_, err := Connect(config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     host,
			Port:     19999, // nothing listens here
			ClientID: "studiotether-it-refused",
		},
		QoS: 1,
	})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestIntegration_CloseIsIdempotent(t *testing.T) {
	client := dial(t, "close")

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() after Close() error = %v, want ErrNotConnected", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

// TestIntegration_PublishPayloadShapes pushes the payload extremes the
// daemon produces: empty heartbeats up to thumbnail-sized event bodies.
func TestIntegration_PublishPayloadShapes(t *testing.T) {
	client := dial(t, "shapes")

	bulk := make([]byte, 64*1024)
	for i := range bulk {
		bulk[i] = byte(i)
	}

	tests := []struct {
		name    string
		topic   string
		payload []byte
	}{
		{"connection event", Topics{}.ConnectionEvent(), []byte(`{"state":"connected"}`)},
		{"capture event", Topics{}.CaptureEvent(), []byte(`{"capture_id":"DSC_0001"}`)},
		{"empty", Topics{}.Event("heartbeat"), nil},
		{"thumbnail sized", Topics{}.Event("bulk"), bulk},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := client.Publish(tt.topic, tt.payload, 1, false); err != nil {
				t.Errorf("Publish(%s) error = %v", tt.topic, err)
			}
		})
	}
}

func TestIntegration_RoundtripQoS1(t *testing.T) {
	pub := dial(t, "rt-pub")
	sub := dial(t, "rt-sub")

	topic := Topics{}.Command("navigate")
	want := `{"direction":"latest"}`

	delivered := make(chan string, 4)
	err := sub.Subscribe(topic, 1, func(_ string, payload []byte) error {
		delivered <- string(payload)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	settle()

	if err := pub.Publish(topic, []byte(want), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case got := <-delivered:
		if got != want {
			t.Errorf("payload = %q, want %q", got, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no delivery within 5s")
	}
}

// TestIntegration_EventFanOut verifies one event/+ subscription sees
// every event category, which is what external dashboards rely on.
func TestIntegration_EventFanOut(t *testing.T) {
	pub := dial(t, "fan-pub")
	sub := dial(t, "fan-sub")

	var mu sync.Mutex
	seen := make(map[string]bool)

	err := sub.Subscribe(Topics{}.AllEvents(), 1, func(topic string, _ []byte) error {
		mu.Lock()
		seen[topic] = true
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	settle()

	topics := []string{
		Topics{}.ConnectionEvent(),
		Topics{}.CaptureEvent(),
		Topics{}.Event("preview"),
	}
	for _, topic := range topics {
		if err := pub.Publish(topic, []byte(`{"seq":1}`), 1, false); err != nil {
			t.Fatalf("Publish(%s) error = %v", topic, err)
		}
	}

	waitFor(5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == len(topics)
	})

	mu.Lock()
	defer mu.Unlock()
	for _, topic := range topics {
		if !seen[topic] {
			t.Errorf("no delivery on %s", topic)
		}
	}
}

// TestIntegration_CommandFanIn verifies the cmd/# wildcard receives every
// command topic, the shape the daemon relies on for remote control.
func TestIntegration_CommandFanIn(t *testing.T) {
	pub := dial(t, "cmd-pub")
	sub := dial(t, "cmd-sub")

	var mu sync.Mutex
	got := make(map[string]string)

	err := sub.Subscribe(Topics{}.AllCommands(), 1, func(topic string, payload []byte) error {
		mu.Lock()
		got[topic] = string(payload)
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	settle()

	commands := map[string]string{
		Topics{}.Command("navigate"): `{"direction":"next"}`,
		Topics{}.Command("rotation"): `{"degrees":90}`,
		Topics{}.Command("interval"): `{"ms":250}`,
	}
	for topic, payload := range commands {
		if err := pub.Publish(topic, []byte(payload), 1, false); err != nil {
			t.Fatalf("Publish(%s) error = %v", topic, err)
		}
	}

	waitFor(5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == len(commands)
	})

	mu.Lock()
	defer mu.Unlock()
	for topic, payload := range commands {
		if got[topic] != payload {
			t.Errorf("got[%s] = %q, want %q", topic, got[topic], payload)
		}
	}
}

// TestIntegration_ReplayBookkeeping exercises the subscription table the
// client replays after a reconnect. Forcing an actual broker outage needs
// external control, so this covers the bookkeeping half of the contract.
func TestIntegration_ReplayBookkeeping(t *testing.T) {
	client := dial(t, "bookkeeping")

	handler := func(string, []byte) error { return nil }
	topics := []string{
		Topics{}.AllCommands(),
		Topics{}.AllEvents(),
		Topics{}.SystemStatus(),
	}
	for _, topic := range topics {
		if err := client.Subscribe(topic, 1, handler); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}
	if got := client.SubscriptionCount(); got != len(topics) {
		t.Fatalf("SubscriptionCount() = %d, want %d", got, len(topics))
	}

	if err := client.Unsubscribe(topics[0]); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if got := client.SubscriptionCount(); got != len(topics)-1 {
		t.Errorf("SubscriptionCount() = %d, want %d", got, len(topics)-1)
	}
}

// TestIntegration_HandlerFailureContained verifies a panicking or erroring
// handler does not wedge delivery: the messages after it still arrive.
func TestIntegration_HandlerFailureContained(t *testing.T) {
	client := dial(t, "contained")

	topic := Topics{}.Command("navigate")
	var calls atomic.Int32

	err := client.Subscribe(topic, 1, func(string, []byte) error {
		switch calls.Add(1) {
		case 1:
			panic("wedged handler")
		case 2:
			return errors.New("still unhappy")
		default:
			return nil
		}
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	settle()

	for range 3 {
		if err := client.Publish(topic, []byte(`{"direction":"next"}`), 1, false); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}

	if !waitFor(5*time.Second, func() bool { return calls.Load() >= 3 }) {
		t.Fatalf("deliveries after failures = %d, want 3", calls.Load())
	}
}
