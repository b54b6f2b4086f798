package gpio

import (
	"testing"
	"time"

	"github.com/abdoElHodaky/cremer-line-core/internal/monitoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLink() *Link {
	return New(Config{
		Address:           "unused:0",
		HeartbeatTimeout:  time.Second,
		WatchdogInterval:  time.Second,
		ReconnectMinDelay: time.Millisecond,
		ReconnectMaxDelay: time.Millisecond,
	}, zap.NewNop(), monitoring.New())
}

// TestApplySnapshot_SeedsWithoutEmitting confirms the initial snapshot
// only seeds pin state and never calls a registered handler (spec §4.7).
func TestApplySnapshot_SeedsWithoutEmitting(t *testing.T) {
	l := newTestLink()
	var calls int
	l.OnChange(func(pin, previous, current int) { calls++ })

	l.applySnapshot([]PinUpdate{{Pin: 5, Value: 1}, {Pin: 6, Value: 0}})

	v, ok := l.PinValue(5)
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Zero(t, calls)
}

// TestApplyUpdate_FirstMessageAfterReconnectSeedsOnly confirms that the
// first update after an uninitialized link seeds the cache without
// firing a change (spec §4.7's "no prior snapshot" case).
func TestApplyUpdate_FirstMessageAfterReconnectSeedsOnly(t *testing.T) {
	l := newTestLink()
	var calls int
	l.OnChange(func(pin, previous, current int) { calls++ })

	l.applyUpdate(PinUpdate{Pin: 5, Value: 1})

	v, ok := l.PinValue(5)
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Zero(t, calls)
}

// TestApplyUpdate_EmitsOnChange confirms a genuine value transition after
// initialization invokes registered handlers exactly once with the
// previous and current values.
func TestApplyUpdate_EmitsOnChange(t *testing.T) {
	l := newTestLink()
	l.applySnapshot([]PinUpdate{{Pin: 5, Value: 1}})

	var gotPin, gotPrev, gotCurrent int
	var calls int
	l.OnChange(func(pin, previous, current int) {
		calls++
		gotPin, gotPrev, gotCurrent = pin, previous, current
	})

	l.applyUpdate(PinUpdate{Pin: 5, Value: 0})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 5, gotPin)
	assert.Equal(t, 1, gotPrev)
	assert.Equal(t, 0, gotCurrent)
}

// TestApplyUpdate_NoChangeDoesNotEmit confirms repeating the same value
// does not fire a spurious change.
func TestApplyUpdate_NoChangeDoesNotEmit(t *testing.T) {
	l := newTestLink()
	l.applySnapshot([]PinUpdate{{Pin: 5, Value: 1}})

	var calls int
	l.OnChange(func(pin, previous, current int) { calls++ })

	l.applyUpdate(PinUpdate{Pin: 5, Value: 1})
	assert.Zero(t, calls)
}

func TestPinValue_UnknownPin(t *testing.T) {
	l := newTestLink()
	_, ok := l.PinValue(99)
	assert.False(t, ok)
}

func TestStatus_ReflectsReconnectsAndDisconnectedState(t *testing.T) {
	l := newTestLink()
	status := l.Status()
	assert.False(t, status.Connected)
	assert.Zero(t, status.Reconnects)
}
