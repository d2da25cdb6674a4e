package wire

import (
	"encoding/json"
	"fmt"
)

// Frame types exchanged with the relay.
const (
	TypeEvent   = "event"
	TypeCommand = "command"
	TypeAck     = "ack"
)

// Event topics delivered by the relay.
const (
	TopicMessageNew          = "message_new"
	TopicMessageEdited       = "message_edited"
	TopicMessageDeleted      = "message_deleted"
	TopicTranslationReceived = "translation_received"
	TopicTypingStart         = "typing_start"
	TopicTypingStop          = "typing_stop"
	TopicPresenceChanged     = "presence_changed"
	TopicConversationStats   = "conversation_stats"
)

// Command kinds issued by the client.
const (
	CommandSend        = "send_message"
	CommandEdit        = "edit_message"
	CommandDelete      = "delete_message"
	CommandTypingStart = "typing_start"
	CommandTypingStop  = "typing_stop"
)

// Envelope is the single frame shape on the wire. Events carry a Topic,
// commands carry a Kind, acks carry the ID of the command they answer.
type Envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Topic   string          `json:"topic,omitempty"`
	Kind    string          `json:"kind,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MessageEvent is the payload for message_new and message_edited topics.
type MessageEvent struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	SenderID       string `json:"sender_id"`
	SenderName     string `json:"sender_name,omitempty"`
	Body           string `json:"body"`
	SourceLanguage string `json:"source_language,omitempty"`
	TimestampMs    int64  `json:"timestamp_ms"`
}

// MessageDeletedEvent is the payload for the message_deleted topic.
type MessageDeletedEvent struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

// TypingEvent is the payload for typing_start and typing_stop topics.
type TypingEvent struct {
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
}

// PresenceEvent is the payload for the presence_changed topic.
type PresenceEvent struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}

// TranslationEvent is the payload for the translation_received topic,
// a server-pushed translation for a message.
type TranslationEvent struct {
	MessageID        string  `json:"message_id"`
	TargetLanguage   string  `json:"target_language"`
	TranslatedText   string  `json:"translated_text"`
	DetectedLanguage string  `json:"detected_language,omitempty"`
	Confidence       float64 `json:"confidence,omitempty"`
}

// StatsEvent is the payload for the conversation_stats topic.
type StatsEvent struct {
	ConversationID string `json:"conversation_id"`
	UnreadCount    int    `json:"unread_count"`
	LastMessageAt  int64  `json:"last_message_at"`
}

// SendCommand is the payload for send_message.
type SendCommand struct {
	ConversationID string `json:"conversation_id"`
	ClientMsgID    string `json:"client_msg_id"`
	Body           string `json:"body"`
	SourceLanguage string `json:"source_language,omitempty"`
}

// EditCommand is the payload for edit_message.
type EditCommand struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Body           string `json:"body"`
}

// DeleteCommand is the payload for delete_message.
type DeleteCommand struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
}

// TypingCommand is the payload for typing_start and typing_stop commands.
type TypingCommand struct {
	ConversationID string `json:"conversation_id"`
}

// Ack is the payload of an ack frame answering a command.
type Ack struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// NewCommand builds a command envelope with the given correlation id.
func NewCommand(id, kind string, payload any) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return &Envelope{
		Type:    TypeCommand,
		ID:      id,
		Kind:    kind,
		Payload: raw,
	}, nil
}

// DecodePayload unmarshals the envelope payload into v.
func (e *Envelope) DecodePayload(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Topic, err)
	}
	return nil
}
