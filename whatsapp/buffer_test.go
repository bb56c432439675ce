package whatsapp

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fireRecorder struct {
	mu    sync.Mutex
	calls []struct{ sender, text string }
}

func (f *fireRecorder) fire(sender, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, struct{ sender, text string }{sender, text})
}

func (f *fireRecorder) snapshot() []struct{ sender, text string } {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]struct{ sender, text string }(nil), f.calls...)
}

func TestBufferCoalescesBurstIntoOneTurn(t *testing.T) {
	rec := &fireRecorder{}
	buf := NewBuffer(60*time.Millisecond, rec.fire, nil)
	defer buf.Stop()

	buf.Append("5511999", "A")
	buf.Append("5511999", "B")

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	calls := rec.snapshot()
	require.Equal(t, "5511999", calls[0].sender)
	require.Equal(t, "AB", calls[0].text)
	require.Zero(t, buf.Len("5511999"))
}

func TestBufferAppendResetsWindow(t *testing.T) {
	rec := &fireRecorder{}
	buf := NewBuffer(80*time.Millisecond, rec.fire, nil)
	defer buf.Stop()

	buf.Append("5511999", "first")
	time.Sleep(50 * time.Millisecond)
	buf.Append("5511999", " second")

	// The original window has elapsed, but the append rescheduled it.
	time.Sleep(50 * time.Millisecond)
	require.Empty(t, rec.snapshot())

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, "first second", rec.snapshot()[0].text)
}

func TestBufferKeepsSendersIndependent(t *testing.T) {
	rec := &fireRecorder{}
	buf := NewBuffer(40*time.Millisecond, rec.fire, nil)
	defer buf.Stop()

	buf.Append("alice", "hello")
	buf.Append("bob", "oi")

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 2
	}, time.Second, 5*time.Millisecond)

	seen := map[string]string{}
	for _, call := range rec.snapshot() {
		seen[call.sender] = call.text
	}
	require.Equal(t, map[string]string{"alice": "hello", "bob": "oi"}, seen)
}

func TestBufferConcurrentAppendsLoseNothing(t *testing.T) {
	rec := &fireRecorder{}
	buf := NewBuffer(50*time.Millisecond, rec.fire, nil)
	defer buf.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf.Append("5511999", "x")
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
	require.Len(t, rec.snapshot()[0].text, 20)
}

func TestFlushFiresImmediately(t *testing.T) {
	rec := &fireRecorder{}
	buf := NewBuffer(time.Hour, rec.fire, nil)
	defer buf.Stop()

	buf.Append("5511999", "urgent")
	buf.Flush("5511999")

	calls := rec.snapshot()
	require.Len(t, calls, 1)
	require.Equal(t, "urgent", calls[0].text)

	// Flushing an empty sender is a no-op.
	buf.Flush("nobody")
	require.Len(t, rec.snapshot(), 1)
}

func TestStaleTimerFireKeepsLaterWindowIntact(t *testing.T) {
	rec := &fireRecorder{}
	buf := NewBuffer(time.Hour, rec.fire, nil)
	defer buf.Stop()

	// Two appends; the first timer may already be past Stop and blocked on
	// the lock when the second lands. Its fire carries generation 1.
	buf.Append("5511999", "A")
	buf.Append("5511999", "B")

	buf.flush("5511999", 1)
	require.Empty(t, rec.snapshot())
	require.Equal(t, 2, buf.Len("5511999"))

	// The current generation still flushes normally.
	buf.flush("5511999", 2)
	calls := rec.snapshot()
	require.Len(t, calls, 1)
	require.Equal(t, "AB", calls[0].text)
	require.Zero(t, buf.Len("5511999"))
}

func TestStopDropsPendingWithoutFiring(t *testing.T) {
	rec := &fireRecorder{}
	buf := NewBuffer(30*time.Millisecond, rec.fire, nil)

	buf.Append("5511999", "bye")
	buf.Stop()

	time.Sleep(60 * time.Millisecond)
	require.Empty(t, rec.snapshot())
}
