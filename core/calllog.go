// ABOUTME: Call log lifecycle: exactly-once create keyed by telephony session id
// ABOUTME: Replayed create requests return the already-stored third-party id
package core

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/QV-Systems/rc-unified-crm-extension/adapters"
	"github.com/QV-Systems/rc-unified-crm-extension/crmerr"
	"github.com/QV-Systems/rc-unified-crm-extension/db"
	"github.com/QV-Systems/rc-unified-crm-extension/models"
)

// Engine owns the correlation store and the per-record locks. One instance
// serves all platforms.
type Engine struct {
	DB    *sql.DB
	locks *keyedMutex
}

func NewEngine(database *sql.DB) *Engine {
	return &Engine{DB: database, locks: newKeyedMutex()}
}

// LogCall creates the CRM record for a finished call. Calling it again with
// the same session id is a no-op returning the stored record, so client
// retries never produce duplicates.
func (e *Engine) LogCall(ctx context.Context, adapter adapters.Adapter, session models.SessionContext, contact models.ContactCandidate, call models.CallEvent, note string) (*models.CallLogRecord, bool, error) {
	unlock := e.locks.Lock("call:" + string(session.Platform) + ":" + call.ID)
	defer unlock()

	existing, err := db.GetCallLog(e.DB, call.ID, session.Platform)
	if err != nil {
		return nil, false, fmt.Errorf("looking up call log: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	thirdPartyID, err := adapter.CreateCallLog(ctx, session, contact, call, note)
	if err != nil {
		return nil, false, err
	}

	record := &models.CallLogRecord{
		InternalLogID:   call.ID,
		UserID:          session.UserID,
		Platform:        session.Platform,
		ThirdPartyLogID: thirdPartyID,
		ContactID:       contact.ID,
	}
	if err := db.CreateCallLog(e.DB, record); err != nil {
		return nil, false, fmt.Errorf("storing call log: %w", err)
	}
	return record, true, nil
}

// UpdateCall patches the CRM record for an already-logged call and returns
// the body as written. The keyed lock serializes concurrent patches to the
// same record.
func (e *Engine) UpdateCall(ctx context.Context, adapter adapters.Adapter, session models.SessionContext, internalLogID string, patch adapters.CallLogPatch) (string, error) {
	record, err := db.GetCallLog(e.DB, internalLogID, session.Platform)
	if err != nil {
		return "", fmt.Errorf("looking up call log: %w", err)
	}
	if record == nil {
		return "", crmerr.NotFound("call was never logged")
	}

	unlock := e.locks.Lock("record:" + string(session.Platform) + ":" + record.ThirdPartyLogID)
	defer unlock()

	body, err := adapter.UpdateCallLog(ctx, session, *record, patch)
	if err != nil {
		return "", err
	}
	if err := db.TouchCallLog(e.DB, internalLogID, session.Platform); err != nil {
		return "", fmt.Errorf("touching call log: %w", err)
	}
	return body, nil
}

// GetCall fetches the logged call back from the CRM, decoded into subject
// and user note.
func (e *Engine) GetCall(ctx context.Context, adapter adapters.Adapter, session models.SessionContext, internalLogID string) (*adapters.CallLogDetails, error) {
	record, err := db.GetCallLog(e.DB, internalLogID, session.Platform)
	if err != nil {
		return nil, fmt.Errorf("looking up call log: %w", err)
	}
	if record == nil {
		return nil, crmerr.NotFound("call was never logged")
	}
	return adapter.GetCallLog(ctx, session, record.ThirdPartyLogID)
}
