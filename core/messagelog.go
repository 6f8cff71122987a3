// ABOUTME: Message logging with day bucketing: one CRM record per pair per day
// ABOUTME: The first message creates the record; later ones append to its transcript
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/QV-Systems/rc-unified-crm-extension/adapters"
	"github.com/QV-Systems/rc-unified-crm-extension/db"
	"github.com/QV-Systems/rc-unified-crm-extension/models"
)

// conversationKey identifies a participant pair regardless of direction.
func conversationKey(from, to string) string {
	if to < from {
		from, to = to, from
	}
	return from + "|" + to
}

// bucketDate is the calendar day of the message in the user's timezone,
// expressed with the stored offset in minutes.
func bucketDate(at time.Time, tzOffsetMinutes int) string {
	return at.UTC().Add(time.Duration(tzOffsetMinutes) * time.Minute).Format("2006-01-02")
}

// LogMessage records one SMS. Messages between the same two numbers on the
// same day share a CRM record; everything else starts a new one.
func (e *Engine) LogMessage(ctx context.Context, adapter adapters.Adapter, session models.SessionContext, tzOffsetMinutes int, contact models.ContactCandidate, message models.MessageEvent) (*models.MessageLogRecord, error) {
	key := conversationKey(message.From, message.To)
	bucket := bucketDate(message.Time, tzOffsetMinutes)

	unlock := e.locks.Lock("msg:" + string(session.Platform) + ":" + key + ":" + bucket)
	defer unlock()

	existing, err := db.FindMessageLog(e.DB, session.UserID, session.Platform, key, bucket)
	if err != nil {
		return nil, fmt.Errorf("looking up message bucket: %w", err)
	}

	if existing == nil {
		thirdPartyID, err := adapter.CreateMessageLog(ctx, session, contact, message, "")
		if err != nil {
			return nil, err
		}
		record := &models.MessageLogRecord{
			UserID:          session.UserID,
			Platform:        session.Platform,
			ConversationKey: key,
			BucketDate:      bucket,
			ThirdPartyLogID: thirdPartyID,
			EntryCount:      1,
		}
		if err := db.CreateMessageLog(e.DB, record); err != nil {
			return nil, fmt.Errorf("storing message bucket: %w", err)
		}
		return record, nil
	}

	if err := adapter.UpdateMessageLog(ctx, session, contact, *existing, message); err != nil {
		return nil, err
	}
	if err := db.IncrementMessageLogCount(e.DB, existing.ID); err != nil {
		return nil, fmt.Errorf("bumping message count: %w", err)
	}
	existing.EntryCount++
	return existing, nil
}

// LogMessages records a batch in order. A mid-batch failure returns the
// error with the earlier messages already logged.
func (e *Engine) LogMessages(ctx context.Context, adapter adapters.Adapter, session models.SessionContext, tzOffsetMinutes int, contact models.ContactCandidate, messages []models.MessageEvent) ([]*models.MessageLogRecord, error) {
	var records []*models.MessageLogRecord
	for _, message := range messages {
		record, err := e.LogMessage(ctx, adapter, session, tzOffsetMinutes, contact, message)
		if err != nil {
			return records, err
		}
		records = append(records, record)
	}
	return records, nil
}
