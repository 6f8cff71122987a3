package db

import (
	"testing"

	"github.com/QV-Systems/rc-unified-crm-extension/models"
)

func TestCallLogRoundTrip(t *testing.T) {
	db := testDB(t)

	record := &models.CallLogRecord{
		InternalLogID:   "sess-1",
		UserID:          "rc-100",
		Platform:        models.PlatformClio,
		ThirdPartyLogID: "987",
		ContactID:       "42",
	}
	if err := CreateCallLog(db, record); err != nil {
		t.Fatalf("CreateCallLog failed: %v", err)
	}

	got, err := GetCallLog(db, "sess-1", models.PlatformClio)
	if err != nil {
		t.Fatalf("GetCallLog failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected record, got nil")
	}
	if got.ThirdPartyLogID != "987" || got.ContactID != "42" {
		t.Errorf("record not round-tripped: %+v", got)
	}
}

func TestCallLogMissing(t *testing.T) {
	db := testDB(t)

	got, err := GetCallLog(db, "never-logged", models.PlatformClio)
	if err != nil {
		t.Fatalf("GetCallLog failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for unknown session, got %+v", got)
	}
}

func TestCallLogDuplicateSessionRejected(t *testing.T) {
	db := testDB(t)

	record := &models.CallLogRecord{
		InternalLogID:   "sess-1",
		UserID:          "rc-100",
		Platform:        models.PlatformClio,
		ThirdPartyLogID: "987",
	}
	if err := CreateCallLog(db, record); err != nil {
		t.Fatalf("CreateCallLog failed: %v", err)
	}

	dup := &models.CallLogRecord{
		InternalLogID:   "sess-1",
		UserID:          "rc-100",
		Platform:        models.PlatformClio,
		ThirdPartyLogID: "999",
	}
	if err := CreateCallLog(db, dup); err == nil {
		t.Error("expected unique constraint violation for duplicate session id")
	}

	// Same session id on another platform is a different log.
	other := &models.CallLogRecord{
		InternalLogID:   "sess-1",
		UserID:          "rc-100",
		Platform:        models.PlatformPipedrive,
		ThirdPartyLogID: "12",
	}
	if err := CreateCallLog(db, other); err != nil {
		t.Errorf("cross-platform insert failed: %v", err)
	}
}

func TestMessageLogBucketLifecycle(t *testing.T) {
	db := testDB(t)

	record := &models.MessageLogRecord{
		UserID:          "rc-100",
		Platform:        models.PlatformInsightly,
		ConversationKey: "+441111111111|+442222222222",
		BucketDate:      "2024-03-15",
		ThirdPartyLogID: "555",
	}
	if err := CreateMessageLog(db, record); err != nil {
		t.Fatalf("CreateMessageLog failed: %v", err)
	}
	if record.EntryCount != 1 {
		t.Errorf("new bucket entry count = %d", record.EntryCount)
	}

	found, err := FindMessageLog(db, "rc-100", models.PlatformInsightly, record.ConversationKey, "2024-03-15")
	if err != nil {
		t.Fatalf("FindMessageLog failed: %v", err)
	}
	if found == nil {
		t.Fatal("expected bucket, got nil")
	}
	if found.ID != record.ID {
		t.Errorf("bucket id mismatch: %s vs %s", found.ID, record.ID)
	}

	if err := IncrementMessageLogCount(db, record.ID); err != nil {
		t.Fatalf("IncrementMessageLogCount failed: %v", err)
	}
	found, err = FindMessageLog(db, "rc-100", models.PlatformInsightly, record.ConversationKey, "2024-03-15")
	if err != nil {
		t.Fatalf("FindMessageLog after increment failed: %v", err)
	}
	if found.EntryCount != 2 {
		t.Errorf("entry count = %d, want 2", found.EntryCount)
	}

	// A different day is a different bucket.
	other, err := FindMessageLog(db, "rc-100", models.PlatformInsightly, record.ConversationKey, "2024-03-16")
	if err != nil {
		t.Fatalf("FindMessageLog other day failed: %v", err)
	}
	if other != nil {
		t.Errorf("expected nil for other day, got %+v", other)
	}
}
