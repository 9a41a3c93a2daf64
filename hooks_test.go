package webui

import (
	"sync"
	"testing"
	"time"
)

type recordingMetrics struct {
	mu         sync.Mutex
	opened     []string
	closed     []string
	events     []string
	broadcasts []string
}

func (m *recordingMetrics) ConnectionOpened(connID string) {
	m.mu.Lock()

	defer m.mu.Unlock()

	m.opened = append(m.opened, connID)
}

func (m *recordingMetrics) ConnectionClosed(connID string, duration time.Duration) {
	m.mu.Lock()

	defer m.mu.Unlock()

	m.closed = append(m.closed, connID)
}

func (m *recordingMetrics) EventReceived(connID string, name string, size int) {
	m.mu.Lock()

	defer m.mu.Unlock()

	m.events = append(m.events, name)
}

func (m *recordingMetrics) CommandSent(connID string, size int) {}

func (m *recordingMetrics) CommandBroadcast(op string, recipients int) {
	m.mu.Lock()

	defer m.mu.Unlock()

	m.broadcasts = append(m.broadcasts, op)
}

func (m *recordingMetrics) HandlerDuration(handler string, duration time.Duration) {}

func (m *recordingMetrics) Error(component string, err error) {}

func (m *recordingMetrics) snapshot() (opened, closed, events, broadcasts int) {
	m.mu.Lock()

	defer m.mu.Unlock()

	return len(m.opened), len(m.closed), len(m.events), len(m.broadcasts)
}

func TestHooksMetrics(t *testing.T) {
	metrics := &recordingMetrics{}

	srv, ts := newTestApp(t, &Config{Hooks: &Hooks{Metrics: metrics}})

	client := dialBridge(t, ts)

	waitForConnections(t, srv.UI(), 1)

	if err := srv.UI().ElSetText([]string{"#x"}, "hi"); err != nil {
		t.Fatalf("broadcast failed: %v", err)
	}
	readCommand(t, client)

	client.Close()

	waitForConnections(t, srv.UI(), 0)

	deadline := time.Now().Add(2 * time.Second)

	for {
		opened, closed, _, broadcasts := metrics.snapshot()

		if opened == 1 && closed == 1 && broadcasts == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("metrics incomplete: opened=%d closed=%d broadcasts=%d", opened, closed, broadcasts)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHooksLifecycleCallbacks(t *testing.T) {
	t.Run("OnConnect rejection drops the connection", func(t *testing.T) {
		hooks := &Hooks{
			OnConnect: func(conn *Conn) error {
				return internal("test", "not welcome")
			},
		}
		srv, ts := newTestApp(t, &Config{Hooks: hooks})

		client := dialBridge(t, ts)

		_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))

		if _, _, err := client.ReadMessage(); err == nil {
			t.Error("expected the rejected connection to be closed")
		}
		if srv.UI().ConnectionCount() != 0 {
			t.Error("rejected connection must not be registered")
		}
	})

	t.Run("OnDisconnect fires after removal", func(t *testing.T) {
		disconnected := make(chan string, 1)

		hooks := &Hooks{
			OnDisconnect: func(conn *Conn) {
				disconnected <- conn.ID
			},
		}
		srv, ts := newTestApp(t, &Config{Hooks: hooks})

		client := dialBridge(t, ts)

		waitForConnections(t, srv.UI(), 1)

		client.Close()

		select {
		case id := <-disconnected:
			if id == "" {
				t.Error("expected a connection id")
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for OnDisconnect")
		}
	})
}

func TestNilHooksAreSafe(t *testing.T) {
	var h *Hooks

	h.metrics().ConnectionOpened("x")

	h.metrics().Error("x", nil)

	if (&Hooks{}).metrics() != noop {
		t.Error("expected the noop collector for empty hooks")
	}
}
