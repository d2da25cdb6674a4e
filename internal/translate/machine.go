package translate

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/linguachat/lingua/internal/bus"
	"github.com/linguachat/lingua/internal/notify"
	"github.com/linguachat/lingua/internal/store"
	"github.com/linguachat/lingua/internal/wire"
)

// RecordStatus is the lifecycle state of one (message, target language) key.
type RecordStatus string

const (
	StatusPending     RecordStatus = "pending"
	StatusTranslating RecordStatus = "translating"
	StatusCompleted   RecordStatus = "completed"
	StatusFailed      RecordStatus = "failed"
)

// Record is the cached translation state for one message into one language.
type Record struct {
	MessageID        string
	TargetLanguage   string
	Status           RecordStatus
	Content          string
	DetectedLanguage string
	Confidence       float64
	FromCache        bool
}

type recordKey struct {
	messageID      string
	targetLanguage string
}

// Machine owns per-message, per-language translation state: request
// lifecycle, completed-content cache, and the original/translated display
// toggle. Completed translations are persisted to the store so they survive
// restarts; persisted rows are surfaced with FromCache set.
type Machine struct {
	mu         sync.Mutex
	translator Translator
	db         *store.DB
	bus        *bus.Bus
	notifier   notify.Notifier
	logger     *zap.Logger

	records map[recordKey]*Record
	// showingOriginal per message, defaulting to true on first sight.
	showingOriginal map[string]bool
	unsub           func()
}

// NewMachine creates a translation state machine. db may be nil, in which
// case completed translations are not persisted across restarts.
func NewMachine(translator Translator, db *store.DB, b *bus.Bus, notifier notify.Notifier, logger *zap.Logger) *Machine {
	return &Machine{
		translator:      translator,
		db:              db,
		bus:             b,
		notifier:        notifier,
		logger:          logger,
		records:         make(map[recordKey]*Record),
		showingOriginal: make(map[string]bool),
	}
}

// Start subscribes to server-pushed translations.
func (m *Machine) Start() {
	m.unsub = m.bus.Subscribe(bus.KindTranslationReceived, m.handlePush)
}

// Stop unsubscribes from the bus.
func (m *Machine) Stop() {
	if m.unsub != nil {
		m.unsub()
		m.unsub = nil
	}
}

// Request drives the translation lifecycle for one message and target
// language. A completed, non-forced key issues no network call and instead
// toggles the message's display between original and translated content.
// Returns the detected source language (when sourceLang was auto) and
// whether the request ended in a usable translation. Failures are reported
// through the notifier, never as errors.
func (m *Machine) Request(ctx context.Context, messageID, originalContent, targetLang string, force bool, sourceLang string) (string, bool) {
	key := recordKey{messageID, targetLang}

	m.mu.Lock()
	rec := m.lookupLocked(key)
	if rec != nil && rec.Status == StatusCompleted && !force {
		m.showingOriginal[messageID] = !m.showingOriginalLocked(messageID)
		m.mu.Unlock()
		return "", true
	}
	if rec != nil && rec.Status == StatusTranslating {
		// Already in flight; don't issue a duplicate network call.
		m.mu.Unlock()
		return "", true
	}
	if rec == nil {
		rec = &Record{MessageID: messageID, TargetLanguage: targetLang, Status: StatusPending}
		m.records[key] = rec
		m.touchDisplayLocked(messageID)
	}
	rec.Status = StatusTranslating
	m.mu.Unlock()

	if sourceLang == "" {
		sourceLang = SourceAuto
	}

	result, err := m.translator.Translate(ctx, originalContent, sourceLang, targetLang)
	if err != nil {
		m.mu.Lock()
		// Preserve prior content, if any, for display fallback.
		rec.Status = StatusFailed
		m.mu.Unlock()
		m.notifier.Notify(notify.LevelError, failureMessage(err))
		m.logger.Warn("translation failed",
			zap.String("message_id", messageID),
			zap.String("target_language", targetLang),
			zap.Error(err))
		m.publishFailed(messageID, targetLang)
		return "", false
	}

	sanitized := Sanitize(result.TranslatedText)

	m.mu.Lock()
	rec.Status = StatusCompleted
	rec.Content = sanitized
	rec.DetectedLanguage = result.DetectedLanguage
	rec.Confidence = result.Confidence
	rec.FromCache = false
	// Switch display to the translated content.
	m.showingOriginal[messageID] = false
	m.mu.Unlock()

	m.persist(rec)
	m.publishReady(rec)

	if sourceLang == SourceAuto {
		return result.DetectedLanguage, true
	}
	return "", true
}

// handlePush merges a server-pushed translation the same way a successful
// direct request would.
func (m *Machine) handlePush(evt bus.Event) {
	push, ok := evt.Payload.(*wire.TranslationEvent)
	if !ok {
		return
	}
	key := recordKey{push.MessageID, push.TargetLanguage}
	sanitized := Sanitize(push.TranslatedText)

	m.mu.Lock()
	rec := m.records[key]
	if rec == nil {
		rec = &Record{MessageID: push.MessageID, TargetLanguage: push.TargetLanguage}
		m.records[key] = rec
		m.touchDisplayLocked(push.MessageID)
	}
	rec.Status = StatusCompleted
	rec.Content = sanitized
	rec.DetectedLanguage = push.DetectedLanguage
	rec.Confidence = push.Confidence
	rec.FromCache = false
	m.showingOriginal[push.MessageID] = false
	m.mu.Unlock()

	m.persist(rec)
	m.publishReady(rec)
}

// Record returns a copy of the current record for a key, loading a
// persisted translation into the cache on first access.
func (m *Machine) Record(messageID, targetLang string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.lookupLocked(recordKey{messageID, targetLang})
	if rec == nil {
		return Record{}, false
	}
	return *rec, true
}

// Translations returns all known records for a message.
func (m *Machine) Translations(messageID string) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []Record
	for k, rec := range m.records {
		if k.messageID == messageID {
			list = append(list, *rec)
		}
	}
	return list
}

// ShowingOriginal reports the display toggle for a message. Messages with
// no translation history default to showing the original.
func (m *Machine) ShowingOriginal(messageID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.showingOriginalLocked(messageID)
}

// DisplayContent returns the text the UI should render for a message,
// honoring the display toggle and falling back to the original content when
// the sanitized translation is too short to be meaningful.
func (m *Machine) DisplayContent(messageID, originalContent, targetLang string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.showingOriginalLocked(messageID) {
		return originalContent
	}
	rec := m.lookupLocked(recordKey{messageID, targetLang})
	if rec == nil || rec.Status != StatusCompleted || !Displayable(rec.Content) {
		return originalContent
	}
	return rec.Content
}

// Reset drops all in-memory records and display state.
func (m *Machine) Reset() {
	m.mu.Lock()
	m.records = make(map[recordKey]*Record)
	m.showingOriginal = make(map[string]bool)
	m.mu.Unlock()
}

// lookupLocked returns the in-memory record for a key, falling back to the
// persisted translation table. Caller holds m.mu.
func (m *Machine) lookupLocked(key recordKey) *Record {
	if rec, ok := m.records[key]; ok {
		return rec
	}
	if m.db == nil {
		return nil
	}
	stored, err := m.db.GetTranslation(key.messageID, key.targetLanguage)
	if err != nil || stored == nil {
		return nil
	}
	rec := &Record{
		MessageID:        stored.MessageID,
		TargetLanguage:   stored.TargetLanguage,
		Status:           StatusCompleted,
		Content:          stored.Content,
		DetectedLanguage: stored.DetectedLanguage,
		Confidence:       stored.Confidence,
		FromCache:        true,
	}
	m.records[key] = rec
	m.touchDisplayLocked(key.messageID)
	return rec
}

func (m *Machine) showingOriginalLocked(messageID string) bool {
	if v, ok := m.showingOriginal[messageID]; ok {
		return v
	}
	return true
}

func (m *Machine) touchDisplayLocked(messageID string) {
	if _, ok := m.showingOriginal[messageID]; !ok {
		m.showingOriginal[messageID] = true
	}
}

func (m *Machine) persist(rec *Record) {
	if m.db == nil {
		return
	}
	if err := m.db.UpsertTranslation(&store.Translation{
		MessageID:        rec.MessageID,
		TargetLanguage:   rec.TargetLanguage,
		Content:          rec.Content,
		DetectedLanguage: rec.DetectedLanguage,
		Confidence:       rec.Confidence,
	}); err != nil {
		m.logger.Error("failed to persist translation", zap.Error(err), zap.String("message_id", rec.MessageID))
	}
}

func (m *Machine) publishReady(rec *Record) {
	m.bus.Publish(bus.Event{
		Kind:      bus.KindTranslationReady,
		Timestamp: time.Now(),
		Payload:   *rec,
	})
}

func (m *Machine) publishFailed(messageID, targetLang string) {
	m.bus.Publish(bus.Event{
		Kind:      bus.KindTranslationError,
		Timestamp: time.Now(),
		Payload: map[string]string{
			"message_id":      messageID,
			"target_language": targetLang,
		},
	})
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedLanguage):
		return "This language is not supported for translation"
	case errors.Is(err, ErrModelUnavailable):
		return "The translation model is unavailable, try again later"
	case errors.Is(err, context.DeadlineExceeded) || isNetworkError(err):
		return "Network error while translating, check your connection"
	default:
		return "Translation failed"
	}
}

func isNetworkError(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr)
}
