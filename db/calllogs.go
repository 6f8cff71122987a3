// ABOUTME: Call log bookkeeping rows keyed by telephony session id
// ABOUTME: The unique key is what makes call logging replay-safe
package db

import (
	"database/sql"
	"time"

	"github.com/QV-Systems/rc-unified-crm-extension/models"
)

func CreateCallLog(db *sql.DB, record *models.CallLogRecord) error {
	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now

	_, err := db.Exec(`
		INSERT INTO call_logs (internal_log_id, user_id, platform, third_party_log_id, contact_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, record.InternalLogID, record.UserID, string(record.Platform), record.ThirdPartyLogID,
		record.ContactID, record.CreatedAt, record.UpdatedAt)

	return err
}

// GetCallLog returns nil with no error when the session was never logged.
func GetCallLog(db *sql.DB, internalLogID string, platform models.Platform) (*models.CallLogRecord, error) {
	record := &models.CallLogRecord{}
	var contactID sql.NullString
	var platformStr string

	err := db.QueryRow(`
		SELECT internal_log_id, user_id, platform, third_party_log_id, contact_id, created_at, updated_at
		FROM call_logs WHERE internal_log_id = ? AND platform = ?
	`, internalLogID, string(platform)).Scan(
		&record.InternalLogID,
		&record.UserID,
		&platformStr,
		&record.ThirdPartyLogID,
		&contactID,
		&record.CreatedAt,
		&record.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	record.Platform = models.Platform(platformStr)
	record.ContactID = contactID.String
	return record, nil
}

func TouchCallLog(db *sql.DB, internalLogID string, platform models.Platform) error {
	_, err := db.Exec(`
		UPDATE call_logs SET updated_at = ? WHERE internal_log_id = ? AND platform = ?
	`, time.Now(), internalLogID, string(platform))
	return err
}
