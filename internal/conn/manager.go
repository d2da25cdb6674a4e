package conn

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/linguachat/lingua/internal/bus"
	"github.com/linguachat/lingua/internal/creds"
	"github.com/linguachat/lingua/internal/notify"
	"github.com/linguachat/lingua/internal/status"
	"github.com/linguachat/lingua/internal/wire"
)

const (
	// DefaultBackoffBase is the base delay for reconnect backoff; the
	// delay for attempt n is base << n.
	DefaultBackoffBase = time.Second

	// MaxReconnectAttempts bounds automatic reconnection. After the
	// budget is spent only an explicit Reconnect resumes.
	MaxReconnectAttempts = 5

	// DefaultPollInterval spaces the credential polling attempts made
	// after SetIdentity finds no usable tokens.
	DefaultPollInterval = time.Second

	// CredentialPollAttempts bounds credential polling.
	CredentialPollAttempts = 10

	dialTimeout = 15 * time.Second
)

// AckResolver receives command acknowledgements read off the wire and a
// reset signal when the connection is torn down.
type AckResolver interface {
	Resolve(correlationID string, ack wire.Ack)
	Reset()
}

// Manager owns the process's single relay connection: it dials, runs the
// read loop, drives the connection state machine, and schedules bounded
// reconnection with exponential backoff.
type Manager struct {
	dialer   wire.Dialer
	url      string
	creds    creds.Accessor
	machine  *status.Machine
	bus      *bus.Bus
	notifier notify.Notifier
	logger   *zap.Logger

	backoffBase  time.Duration
	pollInterval time.Duration

	mu             sync.Mutex
	identity       string
	conn           wire.Conn
	resolver       AckResolver
	attempt        int
	generation     int
	readCancel     context.CancelFunc
	reconnectTimer *time.Timer
}

// NewManager creates a connection manager. The ack resolver is wired
// afterwards via SetAckResolver because the outbound channel needs the
// manager as its transport.
func NewManager(dialer wire.Dialer, url string, c creds.Accessor, machine *status.Machine, b *bus.Bus, notifier notify.Notifier, logger *zap.Logger) *Manager {
	return &Manager{
		dialer:       dialer,
		url:          url,
		creds:        c,
		machine:      machine,
		bus:          b,
		notifier:     notifier,
		logger:       logger,
		backoffBase:  DefaultBackoffBase,
		pollInterval: DefaultPollInterval,
	}
}

// SetAckResolver wires the consumer of command acknowledgements.
func (m *Manager) SetAckResolver(r AckResolver) {
	m.mu.Lock()
	m.resolver = r
	m.mu.Unlock()
}

// State returns the current connection state.
func (m *Manager) State() status.State {
	return m.machine.Current()
}

// Write sends an envelope on the active connection.
func (m *Manager) Write(ctx context.Context, env *wire.Envelope) error {
	m.mu.Lock()
	c := m.conn
	m.mu.Unlock()
	if c == nil {
		return errors.New("no active connection")
	}
	return c.WriteEnvelope(ctx, env)
}

// SetIdentity records who this client is and starts connecting. When
// credentials are not available yet (an external login flow may still be
// writing them) the manager polls a bounded number of times before
// giving up with a logged error.
func (m *Manager) SetIdentity(id string) {
	m.mu.Lock()
	m.identity = id
	m.mu.Unlock()

	if m.creds.Credentials().Ready() {
		m.Connect()
		return
	}
	m.logger.Info("credentials not ready, polling", zap.String("identity", id))
	go m.pollCredentials()
}

func (m *Manager) pollCredentials() {
	for i := 0; i < CredentialPollAttempts; i++ {
		time.Sleep(m.pollInterval)
		if m.creds.Credentials().Ready() {
			m.Connect()
			return
		}
	}
	m.logger.Error("credentials never became available",
		zap.Int("attempts", CredentialPollAttempts))
}

// Connect establishes the relay connection. It is a logged no-op while
// already connecting or connected, and fails fast without identity or
// credentials. A transport failure moves to disconnected and schedules a
// backoff reconnect; an auth rejection does not.
func (m *Manager) Connect() {
	m.mu.Lock()
	st := m.machine.Current()
	if st == status.Connecting || st == status.Connected {
		m.mu.Unlock()
		m.logger.Debug("connect ignored", zap.String("state", string(st)))
		return
	}
	if m.identity == "" {
		m.mu.Unlock()
		m.logger.Warn("connect ignored: no identity set")
		return
	}
	pair := m.creds.Credentials()
	if !pair.Ready() {
		m.mu.Unlock()
		m.logger.Warn("connect ignored: no credentials")
		return
	}
	if err := m.machine.Transition(status.Connecting); err != nil {
		m.mu.Unlock()
		m.logger.Error("cannot start connecting", zap.Error(err))
		return
	}
	m.mu.Unlock()

	m.logger.Info("connecting to relay", zap.String("url", m.url))
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	c, err := m.dialer.Dial(ctx, m.url, pair)
	cancel()
	if err != nil {
		m.logger.Error("dial failed", zap.Error(err))
		if terr := m.machine.Transition(status.Disconnected); terr != nil {
			m.logger.Error("state transition failed", zap.Error(terr))
		}
		if errors.Is(err, wire.ErrAuthRejected) {
			m.notifier.Notify(notify.LevelError, "Authentication failed, please log in again")
			return
		}
		m.scheduleReconnect()
		return
	}

	readCtx, readCancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.conn = c
	m.attempt = 0
	m.generation++
	gen := m.generation
	m.readCancel = readCancel
	m.mu.Unlock()

	if err := m.machine.Transition(status.Connected); err != nil {
		m.logger.Error("state transition failed", zap.Error(err))
	}
	m.logger.Info("connected to relay")
	go m.readLoop(readCtx, c, gen)
}

// Reconnect tears down any existing connection, resets the backoff
// budget, and connects again. This is the only way to resume after the
// automatic reconnect budget is exhausted.
func (m *Manager) Reconnect() {
	c, resolver := m.detach()
	m.mu.Lock()
	m.attempt = 0
	m.mu.Unlock()
	if c != nil {
		_ = c.Close()
	}
	if resolver != nil {
		resolver.Reset()
	}

	switch m.machine.Current() {
	case status.Connecting, status.Connected, status.Reconnecting:
		if err := m.machine.Transition(status.Disconnected); err != nil {
			m.logger.Error("state transition failed", zap.Error(err))
		}
	}
	m.Connect()
}

// Teardown closes the connection and cascades the shutdown: outstanding
// mutations fail, the state machine returns to idle (which clears typing
// presence), and finally all bus subscriptions are dropped.
func (m *Manager) Teardown() {
	c, resolver := m.detach()
	if c != nil {
		_ = c.Close()
	}
	if resolver != nil {
		resolver.Reset()
	}

	if m.machine.Current() != status.Idle {
		if err := m.machine.Transition(status.Idle); err != nil {
			m.logger.Error("state transition failed", zap.Error(err))
		}
	}
	m.bus.Reset()
	m.logger.Info("connection torn down")
}

// detach removes the current connection without closing it, invalidating
// any running read loop.
func (m *Manager) detach() (wire.Conn, AckResolver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
	if m.readCancel != nil {
		m.readCancel()
		m.readCancel = nil
	}
	c := m.conn
	m.conn = nil
	m.generation++
	return c, m.resolver
}

func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	if m.attempt >= MaxReconnectAttempts {
		m.mu.Unlock()
		m.logger.Error("reconnect budget exhausted", zap.Int("attempts", MaxReconnectAttempts))
		m.notifier.Notify(notify.LevelError, "Connection lost, reconnect manually to continue")
		return
	}
	delay := m.backoffBase << m.attempt
	m.attempt++
	attempt := m.attempt
	m.mu.Unlock()

	if err := m.machine.Transition(status.Reconnecting); err != nil {
		m.logger.Error("state transition failed", zap.Error(err))
		return
	}
	m.logger.Info("scheduling reconnect",
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay))

	m.mu.Lock()
	m.reconnectTimer = time.AfterFunc(delay, m.Connect)
	m.mu.Unlock()
}

func (m *Manager) readLoop(ctx context.Context, c wire.Conn, gen int) {
	for {
		env, err := c.ReadEnvelope(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.handleReadFailure(c, gen, err)
			return
		}
		m.dispatch(env)
	}
}

func (m *Manager) handleReadFailure(c wire.Conn, gen int, err error) {
	m.mu.Lock()
	if gen != m.generation {
		// A newer connection replaced this one; nothing to do.
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.generation++
	resolver := m.resolver
	m.mu.Unlock()

	_ = c.Close()
	m.logger.Warn("connection lost", zap.Error(err))
	if resolver != nil {
		resolver.Reset()
	}
	if terr := m.machine.Transition(status.Disconnected); terr != nil {
		m.logger.Error("state transition failed", zap.Error(terr))
	}
	if errors.Is(err, wire.ErrAuthRejected) {
		m.notifier.Notify(notify.LevelError, "Authentication failed, please log in again")
		return
	}
	m.scheduleReconnect()
}

func (m *Manager) dispatch(env *wire.Envelope) {
	switch env.Type {
	case wire.TypeAck:
		var ack wire.Ack
		if err := env.DecodePayload(&ack); err != nil {
			m.logger.Warn("malformed ack", zap.Error(err), zap.String("id", env.ID))
			return
		}
		m.mu.Lock()
		resolver := m.resolver
		m.mu.Unlock()
		if resolver != nil {
			resolver.Resolve(env.ID, ack)
		}
	case wire.TypeEvent:
		payload := payloadFor(env.Topic)
		if payload == nil {
			m.logger.Debug("unknown event topic", zap.String("topic", env.Topic))
			return
		}
		if err := env.DecodePayload(payload); err != nil {
			m.logger.Warn("malformed event", zap.Error(err), zap.String("topic", env.Topic))
			return
		}
		m.bus.Publish(bus.Event{
			Kind:      "event." + env.Topic,
			Timestamp: time.Now(),
			Payload:   payload,
		})
	default:
		m.logger.Debug("unknown frame type", zap.String("type", env.Type))
	}
}

// payloadFor returns a fresh payload struct for a relay event topic, or
// nil for topics this client does not consume.
func payloadFor(topic string) any {
	switch topic {
	case wire.TopicMessageNew, wire.TopicMessageEdited:
		return &wire.MessageEvent{}
	case wire.TopicMessageDeleted:
		return &wire.MessageDeletedEvent{}
	case wire.TopicTypingStart, wire.TopicTypingStop:
		return &wire.TypingEvent{}
	case wire.TopicPresenceChanged:
		return &wire.PresenceEvent{}
	case wire.TopicTranslationReceived:
		return &wire.TranslationEvent{}
	case wire.TopicConversationStats:
		return &wire.StatsEvent{}
	}
	return nil
}
