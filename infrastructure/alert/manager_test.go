package alert

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestManager(interval time.Duration, channels ...Channel) (*Manager, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)}
	mgr := NewManager(channels, interval)
	mgr.throttle.now = clock.now
	return mgr, clock
}

func TestSendAlert(t *testing.T) {
	mock := NewMockChannel("mock")
	mgr, clock := newTestManager(5*time.Minute, mock)

	err := mgr.SendAlert(Alert{
		Level:   LevelInfo,
		Message: "test message",
		Fields:  map[string]interface{}{"key": "value"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, mock.Count())

	got := mock.GetAlerts()[0]
	assert.Equal(t, LevelInfo, got.Level)
	assert.Equal(t, "value", got.Fields["key"])
	assert.Equal(t, clock.t, got.Timestamp)
	assert.Equal(t, []string{"mock"}, mgr.GetChannels())
}

func TestSendLevels(t *testing.T) {
	mock := NewMockChannel("mock")
	mgr, _ := newTestManager(time.Minute, mock)

	require.NoError(t, mgr.SendWarning("SPC", "corrective order", nil))
	require.NoError(t, mgr.SendCritical("SPC", "engine halted", nil))
	require.NoError(t, mgr.Send(LevelError, "", "gateway down", nil))

	assert.Equal(t, 1, mock.CountLevel(LevelWarning))
	assert.Equal(t, 1, mock.CountLevel(LevelCritical))
	assert.Equal(t, 1, mock.CountLevel(LevelError))
	assert.Equal(t, "SPC", mock.GetAlerts()[0].Spread)
}

func TestThrottling(t *testing.T) {
	mock := NewMockChannel("mock")
	mgr, clock := newTestManager(100*time.Millisecond, mock)

	require.NoError(t, mgr.SendWarning("SPC", "test", nil))
	require.NoError(t, mgr.SendWarning("SPC", "test", nil))
	assert.Equal(t, 1, mock.Count(), "same key inside interval is dropped")

	// 不同价差或不同级别不受影响
	require.NoError(t, mgr.SendWarning("OTHER", "test", nil))
	require.NoError(t, mgr.SendCritical("SPC", "test", nil))
	assert.Equal(t, 3, mock.Count())

	clock.advance(150 * time.Millisecond)
	require.NoError(t, mgr.SendWarning("SPC", "test", nil))
	assert.Equal(t, 4, mock.Count())

	require.NoError(t, mgr.SendWarning("SPC", "test", nil))
	mgr.ResetThrottle()
	require.NoError(t, mgr.SendWarning("SPC", "test", nil))
	assert.Equal(t, 5, mock.Count())
}

func TestChannelFailures(t *testing.T) {
	bad := NewMockChannel("bad")
	bad.SetShouldError(true)
	mgr, _ := newTestManager(time.Minute, bad)
	assert.Error(t, mgr.Send(LevelInfo, "", "all fail", nil))

	good := NewMockChannel("good")
	mgr.AddChannel(good)
	assert.NoError(t, mgr.Send(LevelInfo, "", "partial", nil))
	assert.Equal(t, 1, good.Count())

	mgr.RemoveChannel("bad")
	assert.Equal(t, []string{"good"}, mgr.GetChannels())
}

func TestThrottlerReset(t *testing.T) {
	throttle := NewThrottler(5 * time.Minute)
	assert.True(t, throttle.Allow("key1"))
	assert.False(t, throttle.Allow("key1"))
	assert.True(t, throttle.Allow("key2"))

	throttle.Reset("key1")
	assert.True(t, throttle.Allow("key1"))

	throttle.Clear()
	assert.True(t, throttle.Allow("key2"))
}

func TestLogChannel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ch := NewLogChannel("log", zap.New(core))

	require.NoError(t, ch.Send(Alert{Level: LevelWarning, Spread: "SPC", Message: "corrective", Fields: map[string]interface{}{"volume": 2.0}}))
	require.NoError(t, ch.Send(Alert{Level: LevelCritical, Message: "halted"}))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "SPC", entries[0].ContextMap()["spread"])
	assert.Equal(t, 2.0, entries[0].ContextMap()["volume"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "log", ch.Name())
}

func TestConsoleChannel(t *testing.T) {
	var buf bytes.Buffer
	ch := NewConsoleChannel("console", &buf)
	ts := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

	require.NoError(t, ch.Send(Alert{Level: LevelError, Spread: "SPC", Message: "boom", Timestamp: ts, Fields: map[string]interface{}{"b": 2, "a": 1}}))
	out := buf.String()
	assert.Contains(t, out, "[ERROR]")
	assert.Contains(t, out, "2024-01-02 09:30:00 <SPC> - boom | a=1 b=2")
}
