package whatsapp

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultDebounceWindow is how long the buffer waits for a follow-up message
// before treating the accumulated burst as one turn.
const DefaultDebounceWindow = 120 * time.Second

// Buffer coalesces rapid-fire inbound messages per sender. Every append
// resets the sender's timer; when the window elapses with no new message,
// the concatenated buffer is handed to the fire callback exactly once and
// the sender's state is cleared. Append-and-reschedule is atomic per sender,
// so two nearly simultaneous webhook deliveries never drop each other's
// message.
type Buffer struct {
	mu      sync.Mutex
	window  time.Duration
	pending map[string]*senderState
	fire    func(sender, combined string)
	logger  *zap.Logger
}

// gen increments on every append. The firing timer carries the generation it
// was scheduled for; a fire whose generation is stale lost to a newer append
// (its Stop came too late) and must not flush, or the new message's window
// would be cut short.
type senderState struct {
	messages []string
	timer    *time.Timer
	gen      uint64
}

func NewBuffer(window time.Duration, fire func(sender, combined string), logger *zap.Logger) *Buffer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Buffer{
		window:  window,
		pending: make(map[string]*senderState),
		fire:    fire,
		logger:  logger,
	}
}

// Append records one inbound message for sender and restarts the debounce
// timer.
func (b *Buffer) Append(sender, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	state, ok := b.pending[sender]
	if !ok {
		state = &senderState{}
		b.pending[sender] = state
	}

	state.messages = append(state.messages, text)
	state.gen++
	gen := state.gen
	if state.timer != nil {
		state.timer.Stop()
	}
	state.timer = time.AfterFunc(b.window, func() {
		b.flush(sender, gen)
	})

	b.logger.Debug("message buffered",
		zap.String("sender", sender),
		zap.Int("buffered", len(state.messages)))
}

// Flush fires the sender's buffer immediately, if any. Used on shutdown so
// buffered turns are not silently lost.
func (b *Buffer) Flush(sender string) {
	b.mu.Lock()
	state, ok := b.pending[sender]
	var gen uint64
	if ok {
		gen = state.gen
		if state.timer != nil {
			state.timer.Stop()
		}
	}
	b.mu.Unlock()

	if ok {
		b.flush(sender, gen)
	}
}

// Len reports how many messages are currently buffered for sender.
func (b *Buffer) Len(sender string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if state, ok := b.pending[sender]; ok {
		return len(state.messages)
	}
	return 0
}

// Stop cancels all timers without firing. Buffered content is dropped.
func (b *Buffer) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sender, state := range b.pending {
		if state.timer != nil {
			state.timer.Stop()
		}
		delete(b.pending, sender)
	}
}

func (b *Buffer) flush(sender string, gen uint64) {
	b.mu.Lock()
	state, ok := b.pending[sender]
	if !ok || state.gen != gen || len(state.messages) == 0 {
		b.mu.Unlock()
		return
	}
	combined := strings.Join(state.messages, "")
	delete(b.pending, sender)
	b.mu.Unlock()

	if b.fire != nil {
		b.fire(sender, combined)
	}
}
