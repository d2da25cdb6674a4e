package store

// Conversation represents a synced conversation.
type Conversation struct {
	ID                 string
	Title              string
	IsGroup            bool
	UnreadCount        int
	LastMessageAt      int64
	LastMessagePreview string
}

// Message represents a synced message.
type Message struct {
	ID             int64
	ConversationID string
	MsgID          string
	SenderID       string
	SenderName     string
	Body           string
	SourceLanguage string
	FromMe         bool
	Status         string // sending, sent, received, failed, deleted
	Timestamp      int64
}

// Translation is a persisted completed translation for one message into
// one target language.
type Translation struct {
	MessageID        string
	TargetLanguage   string
	Content          string
	DetectedLanguage string
	Confidence       float64
}
