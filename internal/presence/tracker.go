package presence

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/linguachat/lingua/internal/bus"
	"github.com/linguachat/lingua/internal/status"
	"github.com/linguachat/lingua/internal/wire"
)

// DefaultTTL is how long a typing signal stays live without a refresh.
const DefaultTTL = 5 * time.Second

// Signal is the derived typing state emitted to UI subscribers.
type Signal struct {
	ConversationID string
	UserID         string
	IsTyping       bool
}

type key struct {
	conversationID string
	userID         string
}

type entry struct {
	timer     *time.Timer
	expiresAt time.Time
}

// Tracker maintains at most one live typing entry per (conversation, user)
// pair, expiring each entry after a TTL unless refreshed by another
// typing_start. Derived signals are published as "presence.typing" events.
type Tracker struct {
	mu      sync.Mutex
	bus     *bus.Bus
	logger  *zap.Logger
	ttl     time.Duration
	entries map[key]*entry
	unsubs  []func()
}

// NewTracker creates a tracker with the default TTL.
func NewTracker(b *bus.Bus, logger *zap.Logger) *Tracker {
	return &Tracker{
		bus:     b,
		logger:  logger,
		ttl:     DefaultTTL,
		entries: make(map[key]*entry),
	}
}

// Start subscribes to typing events and connection teardown.
func (t *Tracker) Start() {
	t.unsubs = append(t.unsubs,
		t.bus.Subscribe(bus.KindTypingStart, t.handleTyping),
		t.bus.Subscribe(bus.KindTypingStop, t.handleTyping),
		t.bus.Subscribe(bus.KindConnStateChanged, t.handleConnState),
	)
}

// Stop unsubscribes and purges all entries.
func (t *Tracker) Stop() {
	for _, unsub := range t.unsubs {
		unsub()
	}
	t.unsubs = nil
	t.Reset()
}

func (t *Tracker) handleTyping(evt bus.Event) {
	typing, ok := evt.Payload.(*wire.TypingEvent)
	if !ok {
		return
	}
	if evt.Kind == bus.KindTypingStart {
		t.markTyping(typing.ConversationID, typing.UserID)
	} else {
		t.clearTyping(typing.ConversationID, typing.UserID)
	}
}

func (t *Tracker) handleConnState(evt bus.Event) {
	change, ok := evt.Payload.(status.StateChange)
	if !ok {
		return
	}
	// Typing entries must not outlive the connection.
	if change.To == status.Idle {
		t.Reset()
	}
}

func (t *Tracker) markTyping(conversationID, userID string) {
	k := key{conversationID, userID}
	now := time.Now()

	t.mu.Lock()
	if e, ok := t.entries[k]; ok {
		// Refresh: re-arm the timer, no duplicate signal.
		e.timer.Stop()
		e.timer = time.AfterFunc(t.ttl, func() { t.expire(k) })
		e.expiresAt = now.Add(t.ttl)
		t.mu.Unlock()
		return
	}
	t.entries[k] = &entry{
		timer:     time.AfterFunc(t.ttl, func() { t.expire(k) }),
		expiresAt: now.Add(t.ttl),
	}
	t.mu.Unlock()

	t.emit(conversationID, userID, true)
}

func (t *Tracker) clearTyping(conversationID, userID string) {
	k := key{conversationID, userID}

	t.mu.Lock()
	e, ok := t.entries[k]
	if ok {
		e.timer.Stop()
		delete(t.entries, k)
	}
	t.mu.Unlock()

	if ok {
		t.emit(conversationID, userID, false)
	}
}

func (t *Tracker) expire(k key) {
	t.mu.Lock()
	e, ok := t.entries[k]
	// A refresh between the timer firing and this lock means the entry is
	// still live; only remove it once its deadline has truly passed.
	if ok && time.Now().Before(e.expiresAt) {
		t.mu.Unlock()
		return
	}
	if ok {
		delete(t.entries, k)
	}
	t.mu.Unlock()

	if ok {
		t.emit(k.conversationID, k.userID, false)
	}
}

func (t *Tracker) emit(conversationID, userID string, isTyping bool) {
	t.bus.Publish(bus.Event{
		Kind:      bus.KindPresenceTyping,
		Timestamp: time.Now(),
		Payload: Signal{
			ConversationID: conversationID,
			UserID:         userID,
			IsTyping:       isTyping,
		},
	})
}

// Typing returns the user ids currently typing in a conversation.
func (t *Tracker) Typing(conversationID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var users []string
	for k := range t.entries {
		if k.conversationID == conversationID {
			users = append(users, k.userID)
		}
	}
	return users
}

// IsTyping reports whether a specific user is typing in a conversation.
func (t *Tracker) IsTyping(conversationID, userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[key{conversationID, userID}]
	return ok
}

// PurgeConversation drops all entries and timers for a closed conversation.
func (t *Tracker) PurgeConversation(conversationID string) {
	t.mu.Lock()
	for k, e := range t.entries {
		if k.conversationID == conversationID {
			e.timer.Stop()
			delete(t.entries, k)
		}
	}
	t.mu.Unlock()
}

// Reset drops all entries and timers without emitting signals.
func (t *Tracker) Reset() {
	t.mu.Lock()
	for k, e := range t.entries {
		e.timer.Stop()
		delete(t.entries, k)
	}
	t.mu.Unlock()
}
