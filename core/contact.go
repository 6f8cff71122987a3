// ABOUTME: Contact resolution policy on top of adapter search results
// ABOUTME: Dedupes by contact id, then classifies 0/1/many into a match status
package core

import (
	"context"

	"github.com/QV-Systems/rc-unified-crm-extension/adapters"
	"github.com/QV-Systems/rc-unified-crm-extension/models"
)

type MatchStatus string

const (
	MatchNone      MatchStatus = "no_match"
	MatchOne       MatchStatus = "matched"
	MatchAmbiguous MatchStatus = "ambiguous"
)

// Resolution is the outcome of resolving a phone number against the CRM.
// Candidates is always the full deduped union, so the ambiguous case can be
// shown to the user for a manual pick.
type Resolution struct {
	Status     MatchStatus               `json:"status"`
	Contact    *models.ContactCandidate  `json:"contact,omitempty"`
	Candidates []models.ContactCandidate `json:"candidates"`
}

// ResolveContact searches the platform for every candidate format of the
// number and classifies the union. The same contact surfacing under two
// formats counts once.
func ResolveContact(ctx context.Context, adapter adapters.Adapter, session models.SessionContext, phoneNumber, overridingFormat string, isExtension bool) (*Resolution, error) {
	found, err := adapter.FindContact(ctx, session, phoneNumber, overridingFormat, isExtension)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(found))
	var unique []models.ContactCandidate
	for _, c := range found {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		unique = append(unique, c)
	}

	resolution := &Resolution{Candidates: unique}
	switch len(unique) {
	case 0:
		resolution.Status = MatchNone
	case 1:
		resolution.Status = MatchOne
		resolution.Contact = &unique[0]
	default:
		resolution.Status = MatchAmbiguous
	}
	return resolution, nil
}

// CreateContact makes a new CRM contact for an unmatched number.
func CreateContact(ctx context.Context, adapter adapters.Adapter, session models.SessionContext, phoneNumber, name, contactType string) (*models.ContactCandidate, error) {
	return adapter.CreateContact(ctx, session, phoneNumber, name, contactType)
}
