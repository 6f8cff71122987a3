// ABOUTME: Platform adapter contract shared by all CRM integrations
// ABOUTME: Defines the capability set plus the per-candidate search fan-out helper
package adapters

import (
	"context"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/QV-Systems/rc-unified-crm-extension/crmerr"
	"github.com/QV-Systems/rc-unified-crm-extension/models"
)

// CallLogPatch carries the fields updateCallLog may change. Empty strings
// leave the corresponding field untouched.
type CallLogPatch struct {
	Subject       string
	Note          string
	RecordingLink string
}

// CallLogDetails is the normalized read-back of a third-party call record.
type CallLogDetails struct {
	Subject     string `json:"subject"`
	Note        string `json:"note"`
	ContactName string `json:"contactName"`
}

// Adapter is the one stable interface a CRM integration implements.
// Adapters are stateless; every call receives the session context by
// value and confines its side effects to outbound requests against its
// own platform.
type Adapter interface {
	// AuthType declares the credential shape the platform uses.
	AuthType() models.AuthType

	// UserInfo identifies the connected CRM user. extra carries
	// platform-specific login fields (username, password, apiUrl).
	UserInfo(ctx context.Context, session models.SessionContext, extra map[string]string) (*models.UserInfo, error)

	// FindContact queries every candidate format for the number and
	// returns the unioned, unresolved result set. Zero matches is an
	// empty list, not an error.
	FindContact(ctx context.Context, session models.SessionContext, phoneNumber, overridingFormat string, isExtension bool) ([]models.ContactCandidate, error)

	// CreateContact adds a new contact for the number.
	CreateContact(ctx context.Context, session models.SessionContext, phoneNumber, name, contactType string) (*models.ContactCandidate, error)

	// CreateCallLog writes a new third-party call record and returns its id.
	CreateCallLog(ctx context.Context, session models.SessionContext, contact models.ContactCandidate, call models.CallEvent, note string) (string, error)

	// UpdateCallLog patches an existing record and returns the body it wrote.
	UpdateCallLog(ctx context.Context, session models.SessionContext, existing models.CallLogRecord, patch CallLogPatch) (string, error)

	// GetCallLog reads a record back into normalized fields.
	GetCallLog(ctx context.Context, session models.SessionContext, thirdPartyLogID string) (*CallLogDetails, error)

	// CreateMessageLog starts a new conversation bucket with one entry.
	CreateMessageLog(ctx context.Context, session models.SessionContext, contact models.ContactCandidate, message models.MessageEvent, recordingLink string) (string, error)

	// UpdateMessageLog prepends one entry to an existing bucket.
	UpdateMessageLog(ctx context.Context, session models.SessionContext, contact models.ContactCandidate, existing models.MessageLogRecord, message models.MessageEvent) error

	// Unauthorize revokes the token where the platform supports
	// revocation; otherwise a no-op. Local credential deletion is the
	// caller's job.
	Unauthorize(ctx context.Context, session models.SessionContext) error
}

// searchFunc is one platform's raw contact search for a single
// already-formatted query string.
type searchFunc func(ctx context.Context, number string) ([]models.ContactCandidate, error)

// unionSearch runs the raw search once per candidate format and unions
// every non-empty result set. A number may be stored in more than one
// format at once, so no format short-circuits the rest. A rejected
// credential aborts the whole search; other per-format failures are
// logged and skipped as long as at least one format answered, and
// surface to the caller when every format failed.
func unionSearch(ctx context.Context, numbers []string, search searchFunc) ([]models.ContactCandidate, error) {
	var (
		mu       sync.Mutex
		found    []models.ContactCandidate
		failures int
		lastErr  error
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, number := range numbers {
		g.Go(func() error {
			results, err := search(gctx, number)
			if err != nil {
				if crmerr.KindOf(err) == crmerr.KindAuth {
					return err
				}
				log.Printf("contact search for %q failed: %v", number, err)
				mu.Lock()
				failures++
				lastErr = err
				mu.Unlock()
				return nil
			}
			mu.Lock()
			found = append(found, results...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if failures == len(numbers) && lastErr != nil {
		return nil, lastErr
	}
	return found, nil
}
