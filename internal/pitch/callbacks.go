package pitch

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Callbacks is one subscriber's set of event handlers. Any field may be
// nil. Handlers run synchronously on the session's frame goroutine, so
// they must return quickly; a slow handler delays detection.
type Callbacks struct {
	OnPitch   func(PitchSample)
	OnNoteOn  func(NoteEvent)
	OnNoteOff func(NoteEvent)
	OnStatus  func(Status)
}

// Subscription identifies an attached Callbacks set for later removal.
type Subscription struct {
	id string
}

// callbackBus fans events out to subscribers in registration order. A
// panicking subscriber is logged and skipped; it never takes down the
// frame goroutine or starves other subscribers.
type callbackBus struct {
	mu     sync.RWMutex
	order  []string
	subs   map[string]Callbacks
	logger *slog.Logger
}

func newCallbackBus(logger *slog.Logger) *callbackBus {
	return &callbackBus{
		subs:   make(map[string]Callbacks),
		logger: logger,
	}
}

func (b *callbackBus) Attach(cb Callbacks) Subscription {
	id := uuid.NewString()
	b.mu.Lock()
	b.subs[id] = cb
	b.order = append(b.order, id)
	b.mu.Unlock()
	return Subscription{id: id}
}

func (b *callbackBus) Detach(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	for i, id := range b.order {
		if id == sub.id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

func (b *callbackBus) Clear() {
	b.mu.Lock()
	b.subs = make(map[string]Callbacks)
	b.order = nil
	b.mu.Unlock()
}

// snapshot copies the subscriber list so publishing never holds the lock
// across user code.
func (b *callbackBus) snapshot() []Callbacks {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Callbacks, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.subs[id])
	}
	return out
}

func (b *callbackBus) publishPitch(s PitchSample) {
	for _, cb := range b.snapshot() {
		if cb.OnPitch != nil {
			b.invoke("pitch", func() { cb.OnPitch(s) })
		}
	}
}

func (b *callbackBus) publishNote(ev NoteEvent) {
	for _, cb := range b.snapshot() {
		fn := cb.OnNoteOff
		kind := "note_off"
		if ev.On {
			fn = cb.OnNoteOn
			kind = "note_on"
		}
		if fn != nil {
			b.invoke(kind, func() { fn(ev) })
		}
	}
}

func (b *callbackBus) publishStatus(st Status) {
	for _, cb := range b.snapshot() {
		if cb.OnStatus != nil {
			b.invoke("status", func() { cb.OnStatus(st) })
		}
	}
}

func (b *callbackBus) invoke(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("callback panicked",
				"event", kind,
				"panic", r)
		}
	}()
	fn()
}
