package presence

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/linguachat/lingua/internal/bus"
	"github.com/linguachat/lingua/internal/status"
	"github.com/linguachat/lingua/internal/wire"
)

func testTracker(t *testing.T, ttl time.Duration) (*Tracker, *bus.Bus) {
	t.Helper()
	b := bus.New()
	logger, _ := zap.NewDevelopment()
	tr := NewTracker(b, logger)
	tr.ttl = ttl
	tr.Start()
	t.Cleanup(tr.Stop)
	return tr, b
}

// signalRecorder collects presence.typing signals thread-safely, since
// expiry signals are emitted from timer goroutines.
type signalRecorder struct {
	mu      sync.Mutex
	signals []Signal
}

func (r *signalRecorder) record(evt bus.Event) {
	sig, ok := evt.Payload.(Signal)
	if !ok {
		return
	}
	r.mu.Lock()
	r.signals = append(r.signals, sig)
	r.mu.Unlock()
}

func (r *signalRecorder) all() []Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Signal(nil), r.signals...)
}

func typingStart(b *bus.Bus, conv, user string) {
	b.Publish(bus.Event{
		Kind:    bus.KindTypingStart,
		Payload: &wire.TypingEvent{ConversationID: conv, UserID: user},
	})
}

func typingStop(b *bus.Bus, conv, user string) {
	b.Publish(bus.Event{
		Kind:    bus.KindTypingStop,
		Payload: &wire.TypingEvent{ConversationID: conv, UserID: user},
	})
}

func TestTypingStartEmitsSignal(t *testing.T) {
	tr, b := testTracker(t, time.Minute)
	rec := &signalRecorder{}
	defer b.Subscribe("presence.", rec.record)()

	typingStart(b, "c1", "u1")

	if !tr.IsTyping("c1", "u1") {
		t.Error("IsTyping = false, want true")
	}
	got := rec.all()
	if len(got) != 1 {
		t.Fatalf("got %d signals, want 1", len(got))
	}
	if !got[0].IsTyping || got[0].UserID != "u1" {
		t.Errorf("signal = %+v", got[0])
	}
}

func TestRepeatedStartNoDuplicateSignal(t *testing.T) {
	tr, b := testTracker(t, time.Minute)
	rec := &signalRecorder{}
	defer b.Subscribe("presence.", rec.record)()

	typingStart(b, "c1", "u1")
	typingStart(b, "c1", "u1")

	if got := rec.all(); len(got) != 1 {
		t.Errorf("got %d signals, want 1 (refresh must not re-emit)", len(got))
	}
	if users := tr.Typing("c1"); len(users) != 1 {
		t.Errorf("typing users = %v, want exactly one entry per pair", users)
	}
}

func TestTypingStopEmitsFalse(t *testing.T) {
	tr, b := testTracker(t, time.Minute)
	rec := &signalRecorder{}
	defer b.Subscribe("presence.", rec.record)()

	typingStart(b, "c1", "u1")
	typingStop(b, "c1", "u1")

	if tr.IsTyping("c1", "u1") {
		t.Error("IsTyping = true after stop, want false")
	}
	got := rec.all()
	if len(got) != 2 {
		t.Fatalf("got %d signals, want 2", len(got))
	}
	if got[1].IsTyping {
		t.Error("second signal IsTyping = true, want false")
	}
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	_, b := testTracker(t, time.Minute)
	rec := &signalRecorder{}
	defer b.Subscribe("presence.", rec.record)()

	typingStop(b, "c1", "u1")

	if got := rec.all(); len(got) != 0 {
		t.Errorf("got %d signals, want 0", len(got))
	}
}

func TestExpiry(t *testing.T) {
	tr, b := testTracker(t, 50*time.Millisecond)
	rec := &signalRecorder{}
	defer b.Subscribe("presence.", rec.record)()

	typingStart(b, "c1", "u1")

	deadline := time.Now().Add(2 * time.Second)
	for tr.IsTyping("c1", "u1") {
		if time.Now().After(deadline) {
			t.Fatal("entry did not expire")
		}
		time.Sleep(10 * time.Millisecond)
	}

	got := rec.all()
	if len(got) != 2 {
		t.Fatalf("got %d signals, want 2 (start + expiry)", len(got))
	}
	if got[1].IsTyping {
		t.Error("expiry signal IsTyping = true, want false")
	}
}

// TestRefreshExtendsDeadline verifies that a second typing_start re-arms the
// timer: after a refresh at 60% of the TTL, the entry is still live past the
// original deadline.
func TestRefreshExtendsDeadline(t *testing.T) {
	tr, b := testTracker(t, 200*time.Millisecond)

	typingStart(b, "c1", "u1")
	time.Sleep(120 * time.Millisecond)
	typingStart(b, "c1", "u1") // refresh

	// Past the original deadline, within the refreshed one.
	time.Sleep(120 * time.Millisecond)
	if !tr.IsTyping("c1", "u1") {
		t.Error("entry expired despite refresh")
	}

	// Well past the refreshed deadline.
	deadline := time.Now().Add(2 * time.Second)
	for tr.IsTyping("c1", "u1") {
		if time.Now().After(deadline) {
			t.Fatal("entry never expired after refresh")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPurgeConversation(t *testing.T) {
	tr, b := testTracker(t, time.Minute)

	typingStart(b, "c1", "u1")
	typingStart(b, "c1", "u2")
	typingStart(b, "c2", "u1")

	tr.PurgeConversation("c1")

	if users := tr.Typing("c1"); len(users) != 0 {
		t.Errorf("c1 typing users = %v, want none after purge", users)
	}
	if users := tr.Typing("c2"); len(users) != 1 {
		t.Errorf("c2 typing users = %v, want 1", users)
	}
}

func TestConnectionTeardownPurgesAll(t *testing.T) {
	tr, b := testTracker(t, time.Minute)

	typingStart(b, "c1", "u1")
	typingStart(b, "c2", "u2")

	b.Publish(bus.Event{
		Kind:    bus.KindConnStateChanged,
		Payload: status.StateChange{From: status.Connected, To: status.Idle},
	})

	if tr.IsTyping("c1", "u1") || tr.IsTyping("c2", "u2") {
		t.Error("entries survived connection teardown")
	}
}
