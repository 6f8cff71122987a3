// ABOUTME: Insightly adapter: contact search by phone field and Event-based logs over v3.1
// ABOUTME: API-key platform authenticated with HTTP Basic, key as username
package adapters

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/QV-Systems/rc-unified-crm-extension/logbody"
	"github.com/QV-Systems/rc-unified-crm-extension/models"
	"github.com/QV-Systems/rc-unified-crm-extension/phone"
)

type insightlyAdapter struct {
	rc     *restClient
	scheme string
}

func newInsightly() *insightlyAdapter {
	return &insightlyAdapter{rc: newRESTClient(), scheme: "https"}
}

func (a *insightlyAdapter) baseURL(session models.SessionContext) string {
	return a.scheme + "://" + session.Hostname + "/v3.1"
}

func (a *insightlyAdapter) authHeader(session models.SessionContext) map[string]string {
	key := base64.StdEncoding.EncodeToString([]byte(session.AccessToken + ":"))
	return map[string]string{"Authorization": "Basic " + key}
}

func (a *insightlyAdapter) AuthType() models.AuthType {
	return models.AuthTypeAPIKey
}

func (a *insightlyAdapter) UserInfo(ctx context.Context, session models.SessionContext, _ map[string]string) (*models.UserInfo, error) {
	var resp struct {
		UserID     int64  `json:"USER_ID"`
		FirstName  string `json:"FIRST_NAME"`
		LastName   string `json:"LAST_NAME"`
		TimezoneID string `json:"TIMEZONE_ID"`
	}
	u := a.baseURL(session) + "/Users/Me"
	if err := a.rc.doJSON(ctx, http.MethodGet, u, a.authHeader(session), nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching insightly user: %w", err)
	}
	return &models.UserInfo{
		ID:                     strconv.FormatInt(resp.UserID, 10),
		Name:                   strings.TrimSpace(resp.FirstName + " " + resp.LastName),
		TimezoneName:           resp.TimezoneID,
		TimezoneOffset:         0,
		PlatformAdditionalInfo: map[string]any{},
	}, nil
}

type insightlyContact struct {
	ContactID        int64  `json:"CONTACT_ID"`
	FirstName        string `json:"FIRST_NAME"`
	LastName         string `json:"LAST_NAME"`
	Title            string `json:"TITLE"`
	OrganisationName string `json:"ORGANISATION_NAME"`
}

func (a *insightlyAdapter) FindContact(ctx context.Context, session models.SessionContext, phoneNumber, overridingFormat string, isExtension bool) ([]models.ContactCandidate, error) {
	numbers := phone.Candidates(phoneNumber, overridingFormat, isExtension)
	return unionSearch(ctx, numbers, func(ctx context.Context, number string) ([]models.ContactCandidate, error) {
		return a.searchContact(ctx, session, number)
	})
}

func (a *insightlyAdapter) searchContact(ctx context.Context, session models.SessionContext, number string) ([]models.ContactCandidate, error) {
	var resp []insightlyContact
	u := fmt.Sprintf("%s/Contacts/Search?field_name=PHONE&field_value=%s&top=20",
		a.baseURL(session), url.QueryEscape(number))
	if err := a.rc.doJSON(ctx, http.MethodGet, u, a.authHeader(session), nil, &resp); err != nil {
		return nil, err
	}

	var out []models.ContactCandidate
	for _, c := range resp {
		links, err := a.linksFor(ctx, session, c.ContactID)
		if err != nil {
			return nil, err
		}
		info := map[string]any{}
		if len(links) > 0 {
			info["links"] = links
		}
		out = append(out, models.ContactCandidate{
			ID:             strconv.FormatInt(c.ContactID, 10),
			Name:           strings.TrimSpace(c.FirstName + " " + c.LastName),
			Title:          c.Title,
			Company:        c.OrganisationName,
			Phone:          number,
			AdditionalInfo: info,
		})
	}
	return out, nil
}

// linksFor fetches linked records (organisations, opportunities, projects)
// that the client offers as logging targets alongside the contact.
func (a *insightlyAdapter) linksFor(ctx context.Context, session models.SessionContext, contactID int64) ([]map[string]any, error) {
	var resp []struct {
		LinkID     int64  `json:"LINK_ID"`
		ObjectName string `json:"LINK_OBJECT_NAME"`
		ObjectID   int64  `json:"LINK_OBJECT_ID"`
	}
	u := fmt.Sprintf("%s/Contacts/%d/Links", a.baseURL(session), contactID)
	if err := a.rc.doJSON(ctx, http.MethodGet, u, a.authHeader(session), nil, &resp); err != nil {
		return nil, err
	}

	var links []map[string]any
	for _, l := range resp {
		links = append(links, map[string]any{
			"id":    l.ObjectID,
			"label": l.ObjectName,
		})
	}
	return links, nil
}

func (a *insightlyAdapter) CreateContact(ctx context.Context, session models.SessionContext, phoneNumber, name, _ string) (*models.ContactCandidate, error) {
	first, last, _ := strings.Cut(name, " ")
	payload := map[string]any{
		"FIRST_NAME": first,
		"LAST_NAME":  last,
		"PHONE":      phoneNumber,
	}
	var resp insightlyContact
	u := a.baseURL(session) + "/Contacts"
	if err := a.rc.doJSON(ctx, http.MethodPost, u, a.authHeader(session), payload, &resp); err != nil {
		return nil, fmt.Errorf("creating insightly contact: %w", err)
	}
	return &models.ContactCandidate{
		ID:    strconv.FormatInt(resp.ContactID, 10),
		Name:  strings.TrimSpace(resp.FirstName + " " + resp.LastName),
		Phone: phoneNumber,
	}, nil
}

type insightlyEvent struct {
	EventID      int64  `json:"EVENT_ID"`
	Title        string `json:"TITLE"`
	Details      string `json:"DETAILS"`
	StartDateUTC string `json:"START_DATE_UTC"`
	EndDateUTC   string `json:"END_DATE_UTC"`
}

// insightlyTimestamp is the v3.1 date wire format.
const insightlyTimestamp = "2006-01-02 15:04:05"

func (a *insightlyAdapter) CreateCallLog(ctx context.Context, session models.SessionContext, contact models.ContactCandidate, call models.CallEvent, note string) (string, error) {
	subject := call.CustomSubject
	if subject == "" {
		subject = fmt.Sprintf("[Call] %s call with %s", call.Direction, contact.Name)
	}

	start := call.StartTime.UTC()
	end := start.Add(time.Duration(call.DurationSeconds) * time.Second)
	payload := map[string]any{
		"TITLE":          subject,
		"DETAILS":        logbody.BuildCallBody(contact.Phone, call.Result, note, call.RecordingLink),
		"START_DATE_UTC": start.Format(insightlyTimestamp),
		"END_DATE_UTC":   end.Format(insightlyTimestamp),
	}

	var resp insightlyEvent
	u := a.baseURL(session) + "/Events"
	if err := a.rc.doJSON(ctx, http.MethodPost, u, a.authHeader(session), payload, &resp); err != nil {
		return "", fmt.Errorf("creating insightly event: %w", err)
	}
	if err := a.linkEventContact(ctx, session, resp.EventID, contact.ID); err != nil {
		return "", err
	}
	return strconv.FormatInt(resp.EventID, 10), nil
}

// linkEventContact attaches the contact to a freshly created event so the
// call shows up on the contact's activity timeline.
func (a *insightlyAdapter) linkEventContact(ctx context.Context, session models.SessionContext, eventID int64, contactID string) error {
	id, err := strconv.ParseInt(contactID, 10, 64)
	if err != nil {
		return nil
	}
	payload := map[string]any{
		"LINK_OBJECT_NAME": "Contact",
		"LINK_OBJECT_ID":   id,
	}
	u := fmt.Sprintf("%s/Events/%d/Links", a.baseURL(session), eventID)
	if err := a.rc.doJSON(ctx, http.MethodPost, u, a.authHeader(session), payload, nil); err != nil {
		return fmt.Errorf("linking insightly event %d to contact %s: %w", eventID, contactID, err)
	}
	return nil
}

// eventContactName resolves the event's linked contact back to a display
// name. Events with no contact link yield an empty name.
func (a *insightlyAdapter) eventContactName(ctx context.Context, session models.SessionContext, logID string) (string, error) {
	var links []struct {
		ObjectName string `json:"LINK_OBJECT_NAME"`
		ObjectID   int64  `json:"LINK_OBJECT_ID"`
	}
	u := fmt.Sprintf("%s/Events/%s/Links", a.baseURL(session), logID)
	if err := a.rc.doJSON(ctx, http.MethodGet, u, a.authHeader(session), nil, &links); err != nil {
		return "", fmt.Errorf("fetching insightly event links: %w", err)
	}
	for _, l := range links {
		if l.ObjectName != "Contact" {
			continue
		}
		var c insightlyContact
		cu := fmt.Sprintf("%s/Contacts/%d", a.baseURL(session), l.ObjectID)
		if err := a.rc.doJSON(ctx, http.MethodGet, cu, a.authHeader(session), nil, &c); err != nil {
			return "", fmt.Errorf("fetching insightly contact %d: %w", l.ObjectID, err)
		}
		return strings.TrimSpace(c.FirstName + " " + c.LastName), nil
	}
	return "", nil
}

func (a *insightlyAdapter) getEvent(ctx context.Context, session models.SessionContext, logID string) (*insightlyEvent, error) {
	var resp insightlyEvent
	u := fmt.Sprintf("%s/Events/%s", a.baseURL(session), logID)
	if err := a.rc.doJSON(ctx, http.MethodGet, u, a.authHeader(session), nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching insightly event %s: %w", logID, err)
	}
	return &resp, nil
}

func (a *insightlyAdapter) putEvent(ctx context.Context, session models.SessionContext, event *insightlyEvent) error {
	u := a.baseURL(session) + "/Events"
	if err := a.rc.doJSON(ctx, http.MethodPut, u, a.authHeader(session), event, nil); err != nil {
		return fmt.Errorf("updating insightly event %d: %w", event.EventID, err)
	}
	return nil
}

func (a *insightlyAdapter) UpdateCallLog(ctx context.Context, session models.SessionContext, existing models.CallLogRecord, patch CallLogPatch) (string, error) {
	event, err := a.getEvent(ctx, session, existing.ThirdPartyLogID)
	if err != nil {
		return "", err
	}

	if patch.RecordingLink != "" {
		link := patch.RecordingLink
		if decoded, err := url.QueryUnescape(link); err == nil {
			link = decoded
		}
		event.Details = logbody.InsertRecordingLink(event.Details, link)
	} else {
		updated, err := logbody.ReplaceCallNote(event.Details, patch.Note)
		if err != nil {
			return "", err
		}
		event.Details = updated
		if patch.Subject != "" {
			event.Title = patch.Subject
		}
	}

	if err := a.putEvent(ctx, session, event); err != nil {
		return "", err
	}
	return event.Details, nil
}

func (a *insightlyAdapter) GetCallLog(ctx context.Context, session models.SessionContext, thirdPartyLogID string) (*CallLogDetails, error) {
	event, err := a.getEvent(ctx, session, thirdPartyLogID)
	if err != nil {
		return nil, err
	}
	note, err := logbody.ParseCallNote(event.Details)
	if err != nil {
		return nil, err
	}
	contactName, err := a.eventContactName(ctx, session, thirdPartyLogID)
	if err != nil {
		return nil, err
	}
	return &CallLogDetails{Subject: event.Title, Note: note, ContactName: contactName}, nil
}

func (a *insightlyAdapter) CreateMessageLog(ctx context.Context, session models.SessionContext, contact models.ContactCandidate, message models.MessageEvent, _ string) (string, error) {
	entry := logbody.FormatMessageEntry(messageSenderLabel(message, contact, "Me"), message.Time, message.Text)
	body := logbody.BuildConversationBody(
		message.Time.Format("Monday, January 02, 2006"),
		[]string{contact.Name},
		entry,
	)

	at := message.Time.UTC().Format(insightlyTimestamp)
	payload := map[string]any{
		"TITLE":          fmt.Sprintf("SMS conversation with %s - %s", contact.Name, message.Time.Format("06/01/02")),
		"DETAILS":        body,
		"START_DATE_UTC": at,
		"END_DATE_UTC":   at,
	}

	var resp insightlyEvent
	u := a.baseURL(session) + "/Events"
	if err := a.rc.doJSON(ctx, http.MethodPost, u, a.authHeader(session), payload, &resp); err != nil {
		return "", fmt.Errorf("creating insightly message event: %w", err)
	}
	if err := a.linkEventContact(ctx, session, resp.EventID, contact.ID); err != nil {
		return "", err
	}
	return strconv.FormatInt(resp.EventID, 10), nil
}

func (a *insightlyAdapter) UpdateMessageLog(ctx context.Context, session models.SessionContext, contact models.ContactCandidate, existing models.MessageLogRecord, message models.MessageEvent) error {
	event, err := a.getEvent(ctx, session, existing.ThirdPartyLogID)
	if err != nil {
		return err
	}

	entry := logbody.FormatMessageEntry(messageSenderLabel(message, contact, "Me"), message.Time, message.Text)
	updated, err := logbody.AppendConversationEntry(event.Details, entry)
	if err != nil {
		return err
	}
	event.Details = updated
	return a.putEvent(ctx, session, event)
}

// Unauthorize is a no-op; an API key is simply deleted locally.
func (a *insightlyAdapter) Unauthorize(_ context.Context, _ models.SessionContext) error {
	return nil
}
