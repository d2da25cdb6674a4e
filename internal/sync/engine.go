package sync

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/linguachat/lingua/internal/bus"
	"github.com/linguachat/lingua/internal/store"
	"github.com/linguachat/lingua/internal/wire"
)

// Engine handles idempotent ingestion of inbound relay events into the
// store. It subscribes to "event." kinds on the bus; the application's
// canonical message list lives in the store, not in the core components.
type Engine struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	unsub  func()
}

// NewEngine creates a new sync engine.
func NewEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{
		db:     db,
		bus:    b,
		logger: logger,
	}
}

// Start subscribes to inbound relay events on the bus.
func (e *Engine) Start() {
	e.unsub = e.bus.Subscribe("event.", e.handleEvent)
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.unsub != nil {
		e.unsub()
		e.unsub = nil
	}
}

func (e *Engine) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.KindMessageNew, bus.KindMessageEdited:
		msg, ok := evt.Payload.(*wire.MessageEvent)
		if !ok {
			return
		}
		if err := e.ingestMessage(msg, evt.Kind == bus.KindMessageEdited); err != nil {
			e.logger.Error("failed to ingest message", zap.Error(err), zap.String("msg_id", msg.MessageID))
		}
	case bus.KindMessageDeleted:
		del, ok := evt.Payload.(*wire.MessageDeletedEvent)
		if !ok {
			return
		}
		if err := e.db.DeleteMessage(del.ConversationID, del.MessageID); err != nil {
			e.logger.Error("failed to delete message", zap.Error(err), zap.String("msg_id", del.MessageID))
			return
		}
		e.bus.Publish(bus.Event{
			Kind:      bus.KindMessageRemoved,
			Timestamp: time.Now(),
			Payload: map[string]string{
				"conversation_id": del.ConversationID,
				"msg_id":          del.MessageID,
			},
		})
	case bus.KindConversationStats:
		stats, ok := evt.Payload.(*wire.StatsEvent)
		if !ok {
			return
		}
		if err := e.db.SetConversationStats(stats.ConversationID, stats.UnreadCount, stats.LastMessageAt); err != nil {
			e.logger.Error("failed to apply conversation stats", zap.Error(err), zap.String("conversation_id", stats.ConversationID))
			return
		}
		e.bus.Publish(bus.Event{
			Kind:      bus.KindStatsUpdated,
			Timestamp: time.Now(),
			Payload:   map[string]string{"conversation_id": stats.ConversationID},
		})
	}
}

func (e *Engine) ingestMessage(msg *wire.MessageEvent, edit bool) error {
	if edit {
		if err := e.db.EditMessageBody(msg.ConversationID, msg.MessageID, msg.Body); err != nil {
			return fmt.Errorf("edit message: %w", err)
		}
	} else {
		if err := e.db.UpsertConversation(&store.Conversation{
			ID:                 msg.ConversationID,
			LastMessageAt:      msg.TimestampMs,
			LastMessagePreview: truncate(msg.Body, 100),
		}); err != nil {
			return fmt.Errorf("upsert conversation: %w", err)
		}
		if err := e.db.UpsertMessage(&store.Message{
			ConversationID: msg.ConversationID,
			MsgID:          msg.MessageID,
			SenderID:       msg.SenderID,
			SenderName:     msg.SenderName,
			Body:           msg.Body,
			SourceLanguage: msg.SourceLanguage,
			Status:         "received",
			Timestamp:      msg.TimestampMs,
		}); err != nil {
			return fmt.Errorf("upsert message: %w", err)
		}
	}

	e.bus.Publish(bus.Event{
		Kind:      bus.KindMessageUpserted,
		Timestamp: time.Now(),
		Payload: map[string]string{
			"conversation_id": msg.ConversationID,
			"msg_id":          msg.MessageID,
		},
	})

	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
