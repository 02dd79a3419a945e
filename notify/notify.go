// Package notify carries status-change notifications from the per-device
// monitors to whatever renders or forwards them.
package notify

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/alex/sdcp_monitor/sdcp"
)

// Severity classifies how a notification should be rendered.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityInfo
	SeverityAlertRed
	SeverityAlertGreen
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "none"
	case SeverityInfo:
		return "info"
	case SeverityAlertRed:
		return "alert-red"
	case SeverityAlertGreen:
		return "alert-green"
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// Notification is one meaningful status change for one device. Produced by
// the diff engine, consumed once, not retained.
type Notification struct {
	DeviceID string
	Device   sdcp.Device
	Severity Severity
	// Attention requests an audible cue on top of the severity rendering,
	// e.g. when a print just entered the paused/stopped band.
	Attention bool
	// Label is the combined status display, e.g. "Print:PRINTING".
	Label string
	// Detail is either a job percentage ("50 %") or a bed temperature
	// reading ("bed 38°C"), never both.
	Detail string
	Time   time.Time
}

// Sink consumes notifications. Implementations must not block the calling
// monitor for long; wrap slow sinks in an AsyncSink.
type Sink interface {
	Publish(n Notification)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(n Notification)

// Publish calls f.
func (f SinkFunc) Publish(n Notification) { f(n) }

// ANSI escapes used by the console sink.
const (
	ansiReset       = "\033[0m"
	ansiYellow      = "\033[93m"
	ansiInvertRed   = "\033[41m\033[37m"
	ansiInvertGreen = "\033[42m\033[37m"
	bell            = "\a"
)

// ConsoleSink renders notifications as aligned, colour-coded console lines:
// paused/stopped in inverted red, completion in inverted green, active
// printing in yellow, with a terminal bell on attention cues.
type ConsoleSink struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsoleSink creates a console sink writing to out.
func NewConsoleSink(out io.Writer) *ConsoleSink {
	return &ConsoleSink{out: out}
}

// Publish writes one status line.
func (c *ConsoleSink) Publish(n Notification) {
	prefix := ""
	if n.Attention {
		prefix = bell
	}
	switch n.Severity {
	case SeverityAlertRed:
		prefix += ansiInvertRed
	case SeverityAlertGreen:
		prefix += ansiInvertGreen
	case SeverityInfo:
		prefix += ansiYellow
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "%s%-24s @ %-16s %-20s %s%s\n",
		prefix, n.Device.Name, n.Device.MainboardIP, n.Label, n.Detail, ansiReset)
}

// AsyncSink decouples notification producers from a possibly slow sink via
// a buffered channel. When the buffer is full the notification is dropped
// with a warning rather than blocking a monitor.
type AsyncSink struct {
	log  zerolog.Logger
	next Sink
	ch   chan Notification
	done chan struct{}
}

// NewAsyncSink starts the delivery goroutine. buffer <= 0 selects a
// reasonable default.
func NewAsyncSink(log zerolog.Logger, next Sink, buffer int) *AsyncSink {
	if buffer <= 0 {
		buffer = 64
	}
	s := &AsyncSink{
		log:  log,
		next: next,
		ch:   make(chan Notification, buffer),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for n := range s.ch {
		s.next.Publish(n)
	}
}

// Publish hands the notification to the delivery goroutine without blocking.
func (s *AsyncSink) Publish(n Notification) {
	select {
	case s.ch <- n:
	default:
		s.log.Warn().
			Str("device_id", n.DeviceID).
			Str("severity", n.Severity.String()).
			Msg("notification buffer full, dropping")
	}
}

// Close drains buffered notifications and stops the delivery goroutine.
func (s *AsyncSink) Close() {
	close(s.ch)
	<-s.done
}
