package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/linguachat/lingua/internal/bus"
	"github.com/linguachat/lingua/internal/conn"
	"github.com/linguachat/lingua/internal/creds"
	"github.com/linguachat/lingua/internal/lock"
	"github.com/linguachat/lingua/internal/notify"
	"github.com/linguachat/lingua/internal/outbound"
	"github.com/linguachat/lingua/internal/presence"
	"github.com/linguachat/lingua/internal/status"
	"github.com/linguachat/lingua/internal/store"
	intsync "github.com/linguachat/lingua/internal/sync"
	"github.com/linguachat/lingua/internal/translate"
	"github.com/linguachat/lingua/internal/wire"
)

// loopConn is an in-memory relay: inbound envelopes are injected on a
// channel and every written command is acknowledged with success.
type loopConn struct {
	incoming  chan *wire.Envelope
	closed    chan struct{}
	closeOnce sync.Once
}

func newLoopConn() *loopConn {
	return &loopConn{
		incoming: make(chan *wire.Envelope, 16),
		closed:   make(chan struct{}),
	}
}

func (c *loopConn) ReadEnvelope(ctx context.Context) (*wire.Envelope, error) {
	select {
	case env := <-c.incoming:
		return env, nil
	case <-c.closed:
		return nil, errors.New("connection closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *loopConn) WriteEnvelope(_ context.Context, e *wire.Envelope) error {
	if e.Type == wire.TypeCommand && e.ID != "" {
		payload, _ := json.Marshal(wire.Ack{Success: true})
		c.incoming <- &wire.Envelope{Type: wire.TypeAck, ID: e.ID, Payload: payload}
	}
	return nil
}

func (c *loopConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

type loopDialer struct {
	mu   sync.Mutex
	conn *loopConn
}

func (d *loopDialer) Dial(_ context.Context, _ string, _ creds.Pair) (wire.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conn = newLoopConn()
	return d.conn, nil
}

func (d *loopDialer) current() *loopConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// TestDaemonLifecycle wires the full component graph by hand, drives a
// message through connection -> bus -> store, round-trips a send, and
// tears everything down.
func TestDaemonLifecycle(t *testing.T) {
	tmpDir := t.TempDir()

	lk, err := lock.Acquire(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lk.Release() }()

	db, err := store.Open(filepath.Join(tmpDir, "lingua.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	logger, _ := zap.NewDevelopment()
	b := bus.New()
	machine := status.NewMachine(b)
	notifier := notify.New(b, logger)
	dialer := &loopDialer{}
	acc := creds.Static{Pair: creds.Pair{PrimaryToken: "tok"}}

	manager := conn.NewManager(dialer, "wss://relay.test/v1", acc, machine, b, notifier, logger)
	channel := outbound.NewChannel(manager, notifier, logger)
	manager.SetAckResolver(channel)

	engine := intsync.NewEngine(db, b, logger)
	tracker := presence.NewTracker(b, logger)
	translator := translate.NewStubTranslator(&translate.StubTranslatorConfig{DetectedLanguage: "es"})
	tm := translate.NewMachine(translator, db, b, notifier, logger)

	engine.Start()
	tracker.Start()
	tm.Start()
	defer func() {
		tm.Stop()
		tracker.Stop()
		engine.Stop()
	}()

	manager.SetIdentity("test")
	waitFor(t, "connected", func() bool { return machine.Current() == status.Connected })

	// Inbound message lands in the store via the sync engine.
	payload, _ := json.Marshal(wire.MessageEvent{
		ConversationID: "c1",
		MessageID:      "m1",
		SenderID:       "u2",
		Body:           "hola mundo",
		TimestampMs:    time.Now().UnixMilli(),
	})
	dialer.current().incoming <- &wire.Envelope{
		Type:    wire.TypeEvent,
		Topic:   wire.TopicMessageNew,
		Payload: payload,
	}
	waitFor(t, "message persisted", func() bool {
		n, err := db.MessageCount()
		return err == nil && n == 1
	})

	// Outbound send is acknowledged by the loopback relay.
	if ok := channel.Send(context.Background(), "c1", "hello back", "en"); !ok {
		t.Error("Send() = false, want true")
	}

	// Typing event surfaces through the presence tracker.
	typing, _ := json.Marshal(wire.TypingEvent{ConversationID: "c1", UserID: "u2"})
	dialer.current().incoming <- &wire.Envelope{
		Type:    wire.TypeEvent,
		Topic:   wire.TopicTypingStart,
		Payload: typing,
	}
	waitFor(t, "typing presence", func() bool { return tracker.IsTyping("c1", "u2") })

	// On-demand translation via the stub backend.
	if detected, ok := tm.Request(context.Background(), "m1", "hola mundo", "en", false, translate.SourceAuto); !ok || detected != "es" {
		t.Errorf("Request() = (%q, %v), want (es, true)", detected, ok)
	}

	manager.Teardown()
	if machine.Current() != status.Idle {
		t.Errorf("state = %s, want IDLE after teardown", machine.Current())
	}
	if tracker.IsTyping("c1", "u2") {
		t.Error("typing presence survived teardown")
	}
}
