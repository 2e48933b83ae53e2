package app

import (
	"sync"
	"time"

	"channel_sync_service/internal/channel/domain"
)

// TypingIndicator local typing state for one user in one channel.
//
//	IDLE --Keypress--> TYPING (StartTyping once per burst)
//	TYPING --Keypress--> TYPING (timer re-armed)
//	TYPING --timer--> IDLE (StopTyping)
//	TYPING --Send--> IDLE (timer cancelled, StopTyping emitted synchronously)
//
// A timer that fires after Send or after being re-armed carries an old
// generation and emits nothing.
type TypingIndicator struct {
	mu        sync.Mutex
	clock     Clock
	debounce  time.Duration
	channelID string
	user      domain.UserRecord
	emit      func(domain.TypingIndicatorEvent)

	typing bool
	timer  Timer
	gen    uint64
}

// NewTypingIndicator emit is called with the indicator lock held and must not call back into it
func NewTypingIndicator(clock Clock, debounce time.Duration, channelID string, user domain.UserRecord, emit func(domain.TypingIndicatorEvent)) *TypingIndicator {
	return &TypingIndicator{
		clock:     clock,
		debounce:  debounce,
		channelID: channelID,
		user:      user,
		emit:      emit,
	}
}

// Typing current state
func (t *TypingIndicator) Typing() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.typing
}

// Keypress start a burst or extend it
func (t *TypingIndicator) Keypress() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.typing {
		t.typing = true
		t.emit(t.event(domain.StartTyping))
	}
	t.arm()
}

// Send the message send wins over the pending stop timer
func (t *TypingIndicator) Send() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cancel()
	if t.typing {
		t.typing = false
		t.emit(t.event(domain.StopTyping))
	}
}

// Close cancel without emitting (channel torn down)
func (t *TypingIndicator) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancel()
	t.typing = false
}

// arm (re)start the inactivity timer; caller holds mu
func (t *TypingIndicator) arm() {
	t.cancel()
	gen := t.gen
	t.timer = t.clock.AfterFunc(t.debounce, func() { t.fire(gen) })
}

// cancel stop the pending timer; caller holds mu
func (t *TypingIndicator) cancel() {
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// fire inactivity elapsed
func (t *TypingIndicator) fire(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if gen != t.gen || !t.typing {
		return
	}
	t.timer = nil
	t.typing = false
	t.emit(t.event(domain.StopTyping))
}

func (t *TypingIndicator) event(typ domain.TypingType) domain.TypingIndicatorEvent {
	return domain.TypingIndicatorEvent{Type: typ, ActiveChannelID: t.channelID, User: t.user}
}
