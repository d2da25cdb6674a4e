package bus

import "time"

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Inbound event kinds, published by the connection read loop. The suffix
// after "event." matches the relay's topic name.
const (
	KindMessageNew          = "event.message_new"
	KindMessageEdited       = "event.message_edited"
	KindMessageDeleted      = "event.message_deleted"
	KindTranslationReceived = "event.translation_received"
	KindTypingStart         = "event.typing_start"
	KindTypingStop          = "event.typing_stop"
	KindPresenceChanged     = "event.presence_changed"
	KindConversationStats   = "event.conversation_stats"
)

// Derived and lifecycle event kinds published by core components.
const (
	KindConnStateChanged = "conn.state_changed"
	KindPresenceTyping   = "presence.typing"
	KindNotice           = "ui.notice"
	KindMessageUpserted  = "store.message_upserted"
	KindMessageRemoved   = "store.message_removed"
	KindStatsUpdated     = "store.stats_updated"
	KindTranslationReady = "translation.ready"
	KindTranslationError = "translation.failed"
)
