package notify

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alex/sdcp_monitor/sdcp"
)

func testNotification(sev Severity, attention bool) Notification {
	return Notification{
		DeviceID: "dev-1",
		Device: sdcp.Device{
			ID:          "dev-1",
			Name:        "Centauri",
			MainboardIP: "192.168.1.50",
		},
		Severity:  sev,
		Attention: attention,
		Label:     "Print:PAUSED",
		Detail:    "50 %",
		Time:      time.Now(),
	}
}

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "none", SeverityNone.String())
	assert.Equal(t, "info", SeverityInfo.String())
	assert.Equal(t, "alert-red", SeverityAlertRed.String())
	assert.Equal(t, "alert-green", SeverityAlertGreen.String())
}

func TestConsoleSink(t *testing.T) {
	t.Run("red alert with bell", func(t *testing.T) {
		var buf bytes.Buffer
		NewConsoleSink(&buf).Publish(testNotification(SeverityAlertRed, true))

		out := buf.String()
		assert.True(t, strings.HasPrefix(out, bell), "attention rings the bell")
		assert.Contains(t, out, ansiInvertRed)
		assert.Contains(t, out, "Centauri")
		assert.Contains(t, out, "192.168.1.50")
		assert.Contains(t, out, "Print:PAUSED")
		assert.Contains(t, out, "50 %")
		assert.True(t, strings.HasSuffix(out, ansiReset+"\n"))
	})

	t.Run("info without bell", func(t *testing.T) {
		var buf bytes.Buffer
		NewConsoleSink(&buf).Publish(testNotification(SeverityInfo, false))

		out := buf.String()
		assert.NotContains(t, out, bell)
		assert.Contains(t, out, ansiYellow)
	})

	t.Run("default severity has no colour", func(t *testing.T) {
		var buf bytes.Buffer
		NewConsoleSink(&buf).Publish(testNotification(SeverityNone, false))

		out := buf.String()
		assert.NotContains(t, out, ansiYellow)
		assert.NotContains(t, out, ansiInvertRed)
		assert.NotContains(t, out, ansiInvertGreen)
	})
}

func TestAsyncSink_delivers(t *testing.T) {
	var mu sync.Mutex
	var got []Notification
	s := NewAsyncSink(zerolog.Nop(), SinkFunc(func(n Notification) {
		mu.Lock()
		got = append(got, n)
		mu.Unlock()
	}), 8)

	for i := 0; i < 5; i++ {
		s.Publish(testNotification(SeverityInfo, false))
	}
	s.Close() // drains before returning

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, got, 5)
}

func TestAsyncSink_neverBlocksProducer(t *testing.T) {
	release := make(chan struct{})
	s := NewAsyncSink(zerolog.Nop(), SinkFunc(func(Notification) {
		<-release
	}), 2)

	// Far more than the buffer can hold while delivery is stuck.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			s.Publish(testNotification(SeverityInfo, false))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow sink")
	}

	close(release)
	s.Close()
}

func TestAsyncSink_defaultBuffer(t *testing.T) {
	s := NewAsyncSink(zerolog.Nop(), SinkFunc(func(Notification) {}), 0)
	require.NotNil(t, s)
	s.Publish(testNotification(SeverityNone, false))
	s.Close()
}
