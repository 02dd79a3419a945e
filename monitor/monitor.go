package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/alex/sdcp_monitor/metrics"
	"github.com/alex/sdcp_monitor/notify"
	"github.com/alex/sdcp_monitor/sdcp"
)

// Monitor owns the status channel of one printer. It connects, requests a
// status report, records every inbound snapshot, and reconnects with
// backoff for as long as its context lives. Monitors never share state;
// one failing printer cannot affect another's.
type Monitor struct {
	log      zerolog.Logger
	dev      sdcp.Device
	url      string
	registry *Registry
	sink     notify.Sink
	metrics  *metrics.Metrics
	backoff  Backoff
	dialer   *websocket.Dialer
}

// Options tunes a Monitor beyond its defaults.
type Options struct {
	// StatusPort overrides the protocol's websocket port. 0 keeps the default.
	StatusPort int
	// Backoff is the reconnect policy. Nil selects DefaultBackoff.
	Backoff Backoff
}

// New creates a monitor for one device. The registry entry for the device
// must exist; the monitor is its only writer.
func New(log zerolog.Logger, dev sdcp.Device, reg *Registry, sink notify.Sink, m *metrics.Metrics, opts Options) *Monitor {
	b := opts.Backoff
	if b == nil {
		b = DefaultBackoff()
	}
	return &Monitor{
		log:      log.With().Str("device_id", dev.ID).Str("device", dev.Name).Logger(),
		dev:      dev,
		url:      dev.StatusURL(opts.StatusPort),
		registry: reg,
		sink:     sink,
		metrics:  m,
		backoff:  b,
		dialer:   websocket.DefaultDialer,
	}
}

// Run drives the connect/stream/reconnect loop until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	attempt := 0
	for {
		connected, err := m.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			attempt = 0
		}
		attempt++
		m.metrics.ObserveReconnect(m.dev.ID)

		delay := m.backoff.Delay(attempt)
		m.log.Warn().Err(err).Dur("retry_in", delay).Msg("status channel lost, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// session runs one connection from dial to loss. connected reports whether
// the dial succeeded, so the caller can reset its backoff.
func (m *Monitor) session(ctx context.Context) (connected bool, err error) {
	conn, resp, err := m.dialer.DialContext(ctx, m.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial %s: %w", m.url, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	start := time.Now()
	defer func() {
		conn.Close()
		m.metrics.ObserveConnectionDuration(time.Since(start))
	}()

	// Cancellation unblocks the read by closing the connection.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	req, err := sdcp.EncodeStatusRequest(m.dev.ID, m.dev.MainboardID)
	if err != nil {
		return true, err
	}
	if err := conn.WriteMessage(websocket.TextMessage, req); err != nil {
		return true, fmt.Errorf("status request: %w", err)
	}
	m.log.Info().Str("url", m.url).Msg("status channel connected")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		m.handleMessage(data)
	}
}

// handleMessage decodes one inbound message, records the snapshot, and
// dispatches any resulting notification. Malformed messages are dropped
// without tearing the connection down.
func (m *Monitor) handleMessage(data []byte) {
	m.metrics.ObserveMessage(m.dev.ID)

	env, err := sdcp.DecodeEnvelope(data)
	if err != nil {
		m.metrics.ObserveDecodeError(m.dev.ID)
		m.log.Warn().Err(err).Msg("dropping message")
		return
	}
	snap, err := env.Snapshot()
	if err != nil {
		m.metrics.ObserveDecodeError(m.dev.ID)
		m.log.Warn().Err(err).Msg("dropping status")
		return
	}
	if snap == nil {
		// Acknowledgement or other non-status traffic.
		return
	}

	prev, cur, err := m.registry.RecordSnapshot(m.dev.ID, *snap)
	if err != nil {
		m.log.Error().Err(err).Msg("recording snapshot")
		return
	}
	if n := Evaluate(m.dev, prev, cur); n != nil {
		m.metrics.ObserveNotification(n.Severity.String())
		m.sink.Publish(*n)
	}
}

// RunAll supervises one goroutine per monitor and blocks until every one
// has returned after ctx cancellation.
func RunAll(ctx context.Context, monitors []*Monitor) {
	var wg sync.WaitGroup
	for _, m := range monitors {
		wg.Add(1)
		go func(m *Monitor) {
			defer wg.Done()
			m.Run(ctx)
		}(m)
	}
	wg.Wait()
}
