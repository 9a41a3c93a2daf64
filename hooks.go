// This file defines lifecycle and metrics hooks. Implementations can forward
// the collected metrics to monitoring systems like Prometheus or StatsD.
package webui

import (
	"time"
)

// MetricsCollector defines the interface for collecting operational metrics.
type MetricsCollector interface {
	// ConnectionOpened is called when a new WebSocket connection is established.
	ConnectionOpened(connID string)

	// ConnectionClosed is called when a connection closes, with its lifetime.
	ConnectionClosed(connID string, duration time.Duration)

	// EventReceived tracks inbound client events.
	EventReceived(connID string, name string, size int)

	// CommandSent tracks one frame delivered to one connection.
	CommandSent(connID string, size int)

	// CommandBroadcast tracks broadcast operations with the recipient count
	// at snapshot time.
	CommandBroadcast(op string, recipients int)

	// HandlerDuration tracks the execution time of user handlers.
	HandlerDuration(handler string, duration time.Duration)

	// Error tracks errors occurring in different components.
	Error(component string, err error)
}

// Hooks carries optional lifecycle callbacks and the metrics collector.
type Hooks struct {
	Metrics MetricsCollector

	// OnConnect runs before a new connection is registered. Returning an
	// error rejects the connection.
	OnConnect func(conn *Conn) error

	// OnDisconnect runs after a connection has been removed.
	OnDisconnect func(conn *Conn)
}

func (h *Hooks) metrics() MetricsCollector {
	if h == nil || h.Metrics == nil {
		return noop
	}
	return h.Metrics
}

type noopMetrics struct{}

var noop = &noopMetrics{}

func (n *noopMetrics) ConnectionOpened(connID string) {}

func (n *noopMetrics) ConnectionClosed(connID string, duration time.Duration) {}

func (n *noopMetrics) EventReceived(connID string, name string, size int) {}

func (n *noopMetrics) CommandSent(connID string, size int) {}

func (n *noopMetrics) CommandBroadcast(op string, recipients int) {}

func (n *noopMetrics) HandlerDuration(handler string, duration time.Duration) {}

func (n *noopMetrics) Error(component string, err error) {}

// NoopMetrics returns a collector that discards all metrics.
func NoopMetrics() MetricsCollector {
	return noop
}
