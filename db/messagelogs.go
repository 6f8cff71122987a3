// ABOUTME: Message log conversation buckets: one row per participant pair per day
// ABOUTME: EntryCount mirrors the transcript length held by the CRM record
package db

import (
	"database/sql"
	"time"

	"github.com/QV-Systems/rc-unified-crm-extension/models"
	"github.com/google/uuid"
)

func CreateMessageLog(db *sql.DB, record *models.MessageLogRecord) error {
	record.ID = uuid.New()
	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now
	if record.EntryCount == 0 {
		record.EntryCount = 1
	}

	_, err := db.Exec(`
		INSERT INTO message_logs (id, user_id, platform, conversation_key, bucket_date, third_party_log_id, entry_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, record.ID.String(), record.UserID, string(record.Platform), record.ConversationKey,
		record.BucketDate, record.ThirdPartyLogID, record.EntryCount, record.CreatedAt, record.UpdatedAt)

	return err
}

// FindMessageLog looks up the bucket for a participant pair on a calendar
// day. Nil with no error means no bucket exists yet.
func FindMessageLog(db *sql.DB, userID string, platform models.Platform, conversationKey, bucketDate string) (*models.MessageLogRecord, error) {
	record := &models.MessageLogRecord{}
	var id, platformStr string

	err := db.QueryRow(`
		SELECT id, user_id, platform, conversation_key, bucket_date, third_party_log_id, entry_count, created_at, updated_at
		FROM message_logs
		WHERE user_id = ? AND platform = ? AND conversation_key = ? AND bucket_date = ?
	`, userID, string(platform), conversationKey, bucketDate).Scan(
		&id,
		&record.UserID,
		&platformStr,
		&record.ConversationKey,
		&record.BucketDate,
		&record.ThirdPartyLogID,
		&record.EntryCount,
		&record.CreatedAt,
		&record.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	record.ID = parsed
	record.Platform = models.Platform(platformStr)
	return record, nil
}

// IncrementMessageLogCount bumps the transcript counter after an append.
func IncrementMessageLogCount(db *sql.DB, id uuid.UUID) error {
	_, err := db.Exec(`
		UPDATE message_logs SET entry_count = entry_count + 1, updated_at = ? WHERE id = ?
	`, time.Now(), id.String())
	return err
}
