package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Stats is the ingestion health surface exposed to external collaborators.
type Stats struct {
	MessageCount         int64         `json:"message_count"`
	LastMessageTime      time.Time     `json:"last_message_time"`
	TimeSinceLastMessage time.Duration `json:"time_since_last_message"`
	IsConnected          bool          `json:"is_connected"`
}

// Monitor tracks feed liveness. A fixed tick checks how long the connection
// has been silent while nominally connected and forces a reconnect past the
// timeout; a feed that is up but mute is as stale as one that is down.
type Monitor struct {
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	mu          sync.Mutex
	count       int64
	lastMessage time.Time
	connected   bool
}

// NewMonitor creates a liveness monitor.
func NewMonitor(interval, timeout time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		interval: interval,
		timeout:  timeout,
		logger:   logger.With(slog.String("component", "feed_monitor")),
	}
}

// Record notes a received message.
func (m *Monitor) Record() {
	m.mu.Lock()
	m.count++
	m.lastMessage = time.Now()
	m.mu.Unlock()
}

// SetConnected flags the nominal connection state.
func (m *Monitor) SetConnected(connected bool) {
	m.mu.Lock()
	m.connected = connected
	if connected {
		// A fresh connection starts its silence window now.
		m.lastMessage = time.Now()
	}
	m.mu.Unlock()
}

// Stats returns the current health counters.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	var since time.Duration
	if !m.lastMessage.IsZero() {
		since = time.Since(m.lastMessage)
	}
	return Stats{
		MessageCount:         m.count,
		LastMessageTime:      m.lastMessage,
		TimeSinceLastMessage: since,
		IsConnected:          m.connected,
	}
}

// Run ticks until the context is cancelled, invoking force whenever the feed
// has been silent past the timeout while nominally connected.
func (m *Monitor) Run(ctx context.Context, force func()) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if m.stale() {
				m.logger.Warn("feed silent past liveness timeout, forcing reconnect",
					slog.Duration("timeout", m.timeout),
				)
				force()
			}
		}
	}
}

func (m *Monitor) stale() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected && !m.lastMessage.IsZero() && time.Since(m.lastMessage) > m.timeout
}
