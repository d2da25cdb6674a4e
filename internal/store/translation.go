package store

import (
	"database/sql"
	"time"
)

// UpsertTranslation stores a completed translation, replacing any prior
// content for the same (message, target language) pair.
func (db *DB) UpsertTranslation(t *Translation) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO translations (message_id, target_language, content, detected_language, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id, target_language) DO UPDATE SET
			content = excluded.content,
			detected_language = excluded.detected_language,
			confidence = excluded.confidence,
			created_at = excluded.created_at`,
		t.MessageID, t.TargetLanguage, t.Content, t.DetectedLanguage, t.Confidence, now)
	return err
}

// GetTranslation returns the stored translation for a key, or nil if absent.
func (db *DB) GetTranslation(messageID, targetLanguage string) (*Translation, error) {
	var t Translation
	err := db.QueryRow(`
		SELECT message_id, target_language, content, detected_language, confidence
		FROM translations WHERE message_id = ? AND target_language = ?`,
		messageID, targetLanguage).
		Scan(&t.MessageID, &t.TargetLanguage, &t.Content, &t.DetectedLanguage, &t.Confidence)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTranslations returns all stored translations for a message.
func (db *DB) ListTranslations(messageID string) ([]Translation, error) {
	rows, err := db.Query(`
		SELECT message_id, target_language, content, detected_language, confidence
		FROM translations WHERE message_id = ? ORDER BY target_language`, messageID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var list []Translation
	for rows.Next() {
		var t Translation
		if err := rows.Scan(&t.MessageID, &t.TargetLanguage, &t.Content, &t.DetectedLanguage, &t.Confidence); err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}
