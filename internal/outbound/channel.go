package outbound

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/linguachat/lingua/internal/notify"
	"github.com/linguachat/lingua/internal/status"
	"github.com/linguachat/lingua/internal/wire"
)

// Defaults for acknowledgement waiting and typing-signal coalescing.
const (
	DefaultAckTimeout   = 10 * time.Second
	DefaultTypingWindow = 3 * time.Second
)

// Transport is the slice of the connection manager the channel needs:
// current state and the ability to write command frames.
type Transport interface {
	State() status.State
	Write(ctx context.Context, env *wire.Envelope) error
}

// Channel turns local intents (send, edit, delete, typing signals) into
// request/acknowledgement exchanges with bounded waiting. Mutations are
// never retried by the channel; retry is a caller decision.
type Channel struct {
	transport Transport
	notifier  notify.Notifier
	logger    *zap.Logger

	ackTimeout   time.Duration
	typingWindow time.Duration

	mu         sync.Mutex
	pending    map[string]chan wire.Ack
	lastTyping map[string]time.Time
}

// NewChannel creates an outbound mutation channel.
func NewChannel(transport Transport, notifier notify.Notifier, logger *zap.Logger) *Channel {
	return &Channel{
		transport:    transport,
		notifier:     notifier,
		logger:       logger,
		ackTimeout:   DefaultAckTimeout,
		typingWindow: DefaultTypingWindow,
		pending:      make(map[string]chan wire.Ack),
		lastTyping:   make(map[string]time.Time),
	}
}

// Send transmits a new message and waits for the relay's acknowledgement.
// Returns false without touching the transport when not connected.
func (c *Channel) Send(ctx context.Context, conversationID, content, sourceLang string) bool {
	id := uuid.New().String()
	env, err := wire.NewCommand(id, wire.CommandSend, wire.SendCommand{
		ConversationID: conversationID,
		ClientMsgID:    id,
		Body:           content,
		SourceLanguage: sourceLang,
	})
	if err != nil {
		c.logger.Error("failed to encode send command", zap.Error(err))
		return false
	}
	return c.roundTrip(ctx, id, env)
}

// Edit transmits a message edit and waits for the acknowledgement.
func (c *Channel) Edit(ctx context.Context, conversationID, messageID, content string) bool {
	id := uuid.New().String()
	env, err := wire.NewCommand(id, wire.CommandEdit, wire.EditCommand{
		ConversationID: conversationID,
		MessageID:      messageID,
		Body:           content,
	})
	if err != nil {
		c.logger.Error("failed to encode edit command", zap.Error(err))
		return false
	}
	return c.roundTrip(ctx, id, env)
}

// Delete transmits a message deletion and waits for the acknowledgement.
func (c *Channel) Delete(ctx context.Context, conversationID, messageID string) bool {
	id := uuid.New().String()
	env, err := wire.NewCommand(id, wire.CommandDelete, wire.DeleteCommand{
		ConversationID: conversationID,
		MessageID:      messageID,
	})
	if err != nil {
		c.logger.Error("failed to encode delete command", zap.Error(err))
		return false
	}
	return c.roundTrip(ctx, id, env)
}

// TypingStart signals active composition. Fire-and-forget: no ack is
// tracked. Consecutive starts for the same conversation within the
// coalescing window are suppressed.
func (c *Channel) TypingStart(ctx context.Context, conversationID string) {
	c.mu.Lock()
	if last, ok := c.lastTyping[conversationID]; ok && time.Since(last) < c.typingWindow {
		c.mu.Unlock()
		return
	}
	c.lastTyping[conversationID] = time.Now()
	c.mu.Unlock()

	c.fireAndForget(ctx, wire.CommandTypingStart, conversationID)
}

// TypingStop signals end of composition. Fire-and-forget.
func (c *Channel) TypingStop(ctx context.Context, conversationID string) {
	c.mu.Lock()
	delete(c.lastTyping, conversationID)
	c.mu.Unlock()

	c.fireAndForget(ctx, wire.CommandTypingStop, conversationID)
}

// Resolve delivers an acknowledgement to the mutation waiting on the
// correlation id. Called by the connection read loop. Unknown ids are
// ignored; the waiter may already have timed out.
func (c *Channel) Resolve(correlationID string, ack wire.Ack) {
	c.mu.Lock()
	ch, ok := c.pending[correlationID]
	if ok {
		delete(c.pending, correlationID)
	}
	c.mu.Unlock()

	if ok {
		ch <- ack
	}
}

// Reset fails all outstanding mutations. Called on connection teardown.
func (c *Channel) Reset() {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan wire.Ack)
	c.lastTyping = make(map[string]time.Time)
	c.mu.Unlock()

	for _, ch := range pending {
		ch <- wire.Ack{Success: false, Error: "connection closed"}
	}
}

func (c *Channel) roundTrip(ctx context.Context, id string, env *wire.Envelope) bool {
	if c.transport.State() != status.Connected {
		c.logger.Debug("mutation dropped: not connected", zap.String("kind", env.Kind))
		return false
	}

	ackCh := make(chan wire.Ack, 1)
	c.mu.Lock()
	c.pending[id] = ackCh
	c.mu.Unlock()

	if err := c.transport.Write(ctx, env); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		c.logger.Error("failed to write command", zap.Error(err), zap.String("kind", env.Kind))
		c.notifier.Notify(notify.LevelError, "Could not reach the server, message not sent")
		return false
	}

	select {
	case ack := <-ackCh:
		if !ack.Success {
			msg := ack.Error
			if msg == "" {
				msg = "The server rejected the request"
			}
			c.notifier.Notify(notify.LevelError, msg)
			return false
		}
		return true
	case <-time.After(c.ackTimeout):
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		c.logger.Warn("mutation timed out", zap.String("correlation_id", id), zap.String("kind", env.Kind))
		c.notifier.Notify(notify.LevelWarn, "The server did not respond in time")
		return false
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return false
	}
}

func (c *Channel) fireAndForget(ctx context.Context, kind, conversationID string) {
	if c.transport.State() != status.Connected {
		return
	}
	env, err := wire.NewCommand(uuid.New().String(), kind, wire.TypingCommand{
		ConversationID: conversationID,
	})
	if err != nil {
		c.logger.Error("failed to encode typing command", zap.Error(err))
		return
	}
	if err := c.transport.Write(ctx, env); err != nil {
		// Typing signals are best-effort; a miss is invisible to the user.
		c.logger.Debug("failed to write typing signal", zap.Error(err))
	}
}
