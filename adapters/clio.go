// ABOUTME: Clio adapter: contacts, PhoneCommunication logs and time entries over the v4 API
// ABOUTME: OAuth platform with remote token revocation via /oauth/deauthorize
package adapters

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/QV-Systems/rc-unified-crm-extension/logbody"
	"github.com/QV-Systems/rc-unified-crm-extension/models"
	"github.com/QV-Systems/rc-unified-crm-extension/phone"
)

type clioAdapter struct {
	rc     *restClient
	scheme string
}

func newClio() *clioAdapter {
	return &clioAdapter{rc: newRESTClient(), scheme: "https"}
}

func (a *clioAdapter) baseURL(session models.SessionContext) string {
	return a.scheme + "://" + session.Hostname
}

func (a *clioAdapter) authHeader(session models.SessionContext) map[string]string {
	return map[string]string{"Authorization": "Bearer " + session.AccessToken}
}

func (a *clioAdapter) AuthType() models.AuthType {
	return models.AuthTypeOAuth
}

type clioEnvelope[T any] struct {
	Data T `json:"data"`
}

type clioUser struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	TimeZone string `json:"time_zone"`
}

func (a *clioAdapter) UserInfo(ctx context.Context, session models.SessionContext, _ map[string]string) (*models.UserInfo, error) {
	var resp clioEnvelope[clioUser]
	u := a.baseURL(session) + "/api/v4/users/who_am_i.json?fields=id,name,time_zone"
	if err := a.rc.doJSON(ctx, http.MethodGet, u, a.authHeader(session), nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching clio user: %w", err)
	}
	return &models.UserInfo{
		ID:                     strconv.FormatInt(resp.Data.ID, 10),
		Name:                   resp.Data.Name,
		TimezoneName:           resp.Data.TimeZone,
		TimezoneOffset:         0,
		PlatformAdditionalInfo: map[string]any{},
	}, nil
}

type clioPerson struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Title   string `json:"title"`
	Company *struct {
		Name string `json:"name"`
	} `json:"company"`
}

type clioMatter struct {
	ID            int64  `json:"id"`
	DisplayNumber string `json:"display_number"`
}

func (a *clioAdapter) FindContact(ctx context.Context, session models.SessionContext, phoneNumber, overridingFormat string, isExtension bool) ([]models.ContactCandidate, error) {
	numbers := phone.Candidates(phoneNumber, overridingFormat, isExtension)
	return unionSearch(ctx, numbers, func(ctx context.Context, number string) ([]models.ContactCandidate, error) {
		return a.searchPerson(ctx, session, number)
	})
}

func (a *clioAdapter) searchPerson(ctx context.Context, session models.SessionContext, number string) ([]models.ContactCandidate, error) {
	var resp clioEnvelope[[]clioPerson]
	u := fmt.Sprintf("%s/api/v4/contacts.json?type=Person&query=%s&fields=id,name,title,company",
		a.baseURL(session), url.QueryEscape(number))
	if err := a.rc.doJSON(ctx, http.MethodGet, u, a.authHeader(session), nil, &resp); err != nil {
		return nil, err
	}

	var out []models.ContactCandidate
	for _, person := range resp.Data {
		matters, err := a.mattersFor(ctx, session, person.ID)
		if err != nil {
			return nil, err
		}
		info := map[string]any{"logTimeEntry": true}
		if len(matters) > 0 {
			info["matters"] = matters
		}
		company := ""
		if person.Company != nil {
			company = person.Company.Name
		}
		out = append(out, models.ContactCandidate{
			ID:             strconv.FormatInt(person.ID, 10),
			Name:           person.Name,
			Title:          person.Title,
			Company:        company,
			Phone:          number,
			AdditionalInfo: info,
		})
	}
	return out, nil
}

// mattersFor unions the matters a contact owns with the matters it is
// related to; both surface as pickable options in the client.
func (a *clioAdapter) mattersFor(ctx context.Context, session models.SessionContext, contactID int64) ([]map[string]any, error) {
	var owned clioEnvelope[[]clioMatter]
	u := fmt.Sprintf("%s/api/v4/matters.json?client_id=%d", a.baseURL(session), contactID)
	if err := a.rc.doJSON(ctx, http.MethodGet, u, a.authHeader(session), nil, &owned); err != nil {
		return nil, err
	}

	var related clioEnvelope[[]struct {
		Matter clioMatter `json:"matter"`
	}]
	u = fmt.Sprintf("%s/api/v4/relationships.json?contact_id=%d&fields=matter", a.baseURL(session), contactID)
	if err := a.rc.doJSON(ctx, http.MethodGet, u, a.authHeader(session), nil, &related); err != nil {
		return nil, err
	}

	var matters []map[string]any
	for _, m := range owned.Data {
		matters = append(matters, map[string]any{"const": m.ID, "title": m.DisplayNumber})
	}
	for _, r := range related.Data {
		matters = append(matters, map[string]any{"const": r.Matter.ID, "title": r.Matter.DisplayNumber})
	}
	return matters, nil
}

func (a *clioAdapter) CreateContact(ctx context.Context, session models.SessionContext, phoneNumber, name, _ string) (*models.ContactCandidate, error) {
	payload := map[string]any{
		"data": map[string]any{
			"name": name,
			"type": "Person",
			"phone_numbers": []map[string]any{
				{"name": "Work", "number": phoneNumber, "default_number": true},
			},
		},
	}
	var resp clioEnvelope[clioPerson]
	u := a.baseURL(session) + "/api/v4/contacts.json"
	if err := a.rc.doJSON(ctx, http.MethodPost, u, a.authHeader(session), payload, &resp); err != nil {
		return nil, fmt.Errorf("creating clio contact: %w", err)
	}
	return &models.ContactCandidate{
		ID:    strconv.FormatInt(resp.Data.ID, 10),
		Name:  resp.Data.Name,
		Phone: phoneNumber,
	}, nil
}

type clioParty struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

func (a *clioAdapter) CreateCallLog(ctx context.Context, session models.SessionContext, contact models.ContactCandidate, call models.CallEvent, note string) (string, error) {
	sender := clioParty{ID: session.UserID, Type: "User"}
	receiver := clioParty{ID: contact.ID, Type: "Contact"}
	if call.Direction != models.DirectionOutbound {
		sender, receiver = clioParty{ID: contact.ID, Type: "Contact"}, clioParty{ID: session.UserID, Type: "User"}
	}

	subject := call.CustomSubject
	if subject == "" {
		preposition := "from"
		if call.Direction == models.DirectionOutbound {
			preposition = "to"
		}
		subject = fmt.Sprintf("[Call] %s Call %s %s [%s]", call.Direction, preposition, contact.Name, contact.Phone)
	}

	data := map[string]any{
		"subject":     subject,
		"body":        logbody.BuildCallBody(contact.Phone, call.Result, note, call.RecordingLink),
		"type":        "PhoneCommunication",
		"received_at": call.StartTime.UTC().Format("2006-01-02T15:04:05Z07:00"),
		"senders":     []clioParty{sender},
		"receivers":   []clioParty{receiver},
		"notification_event_subscribers": []map[string]any{
			{"user_id": session.UserID},
		},
	}
	if matter, ok := call.AdditionalSubmission["matters"]; ok {
		data["matter"] = map[string]any{"id": matter}
	}

	var resp clioEnvelope[struct {
		ID int64 `json:"id"`
	}]
	u := a.baseURL(session) + "/api/v4/communications.json"
	if err := a.rc.doJSON(ctx, http.MethodPost, u, a.authHeader(session), map[string]any{"data": data}, &resp); err != nil {
		return "", fmt.Errorf("creating clio call log: %w", err)
	}
	communicationID := strconv.FormatInt(resp.Data.ID, 10)

	if shouldLogTimeEntry(call.AdditionalSubmission) {
		if err := a.createTimeEntry(ctx, session, communicationID, call); err != nil {
			return "", err
		}
	}
	return communicationID, nil
}

func shouldLogTimeEntry(submission map[string]any) bool {
	v, ok := submission["logTimeEntry"].(bool)
	return !ok || v
}

func (a *clioAdapter) createTimeEntry(ctx context.Context, session models.SessionContext, communicationID string, call models.CallEvent) error {
	payload := map[string]any{
		"data": map[string]any{
			"communication": map[string]any{"id": communicationID},
			"quantity":      call.DurationSeconds,
			"date":          call.StartTime.UTC().Format("2006-01-02T15:04:05Z07:00"),
			"type":          "TimeEntry",
		},
	}
	u := a.baseURL(session) + "/api/v4/activities.json"
	if err := a.rc.doJSON(ctx, http.MethodPost, u, a.authHeader(session), payload, nil); err != nil {
		return fmt.Errorf("creating clio time entry: %w", err)
	}
	return nil
}

func (a *clioAdapter) fetchBody(ctx context.Context, session models.SessionContext, logID string) (string, error) {
	var resp clioEnvelope[struct {
		Body string `json:"body"`
	}]
	u := fmt.Sprintf("%s/api/v4/communications/%s.json?fields=body", a.baseURL(session), logID)
	if err := a.rc.doJSON(ctx, http.MethodGet, u, a.authHeader(session), nil, &resp); err != nil {
		return "", fmt.Errorf("fetching clio communication %s: %w", logID, err)
	}
	return resp.Data.Body, nil
}

func (a *clioAdapter) patchCommunication(ctx context.Context, session models.SessionContext, logID string, data map[string]any) error {
	u := fmt.Sprintf("%s/api/v4/communications/%s.json", a.baseURL(session), logID)
	if err := a.rc.doJSON(ctx, http.MethodPatch, u, a.authHeader(session), map[string]any{"data": data}, nil); err != nil {
		return fmt.Errorf("patching clio communication %s: %w", logID, err)
	}
	return nil
}

func (a *clioAdapter) UpdateCallLog(ctx context.Context, session models.SessionContext, existing models.CallLogRecord, patch CallLogPatch) (string, error) {
	logID := clioLogID(existing.ThirdPartyLogID)
	body, err := a.fetchBody(ctx, session, logID)
	if err != nil {
		return "", err
	}

	if patch.RecordingLink != "" {
		link := patch.RecordingLink
		if decoded, err := url.QueryUnescape(link); err == nil {
			link = decoded
		}
		updated := logbody.InsertRecordingLink(body, link)
		if err := a.patchCommunication(ctx, session, logID, map[string]any{"body": updated}); err != nil {
			return "", err
		}
		return updated, nil
	}

	updated, err := logbody.ReplaceCallNote(body, patch.Note)
	if err != nil {
		return "", err
	}
	data := map[string]any{"body": updated}
	if patch.Subject != "" {
		data["subject"] = patch.Subject
	}
	if err := a.patchCommunication(ctx, session, logID, data); err != nil {
		return "", err
	}
	return updated, nil
}

func (a *clioAdapter) GetCallLog(ctx context.Context, session models.SessionContext, thirdPartyLogID string) (*CallLogDetails, error) {
	logID := clioLogID(thirdPartyLogID)
	var resp clioEnvelope[struct {
		Subject   string      `json:"subject"`
		Body      string      `json:"body"`
		Senders   []clioParty `json:"senders"`
		Receivers []clioParty `json:"receivers"`
	}]
	u := fmt.Sprintf("%s/api/v4/communications/%s.json?fields=subject,body,senders,receivers", a.baseURL(session), logID)
	if err := a.rc.doJSON(ctx, http.MethodGet, u, a.authHeader(session), nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching clio communication %s: %w", logID, err)
	}

	note, err := logbody.ParseCallNote(resp.Data.Body)
	if err != nil {
		return nil, err
	}

	contactName := ""
	if contactID := contactParty(resp.Data.Senders, resp.Data.Receivers); contactID != "" {
		var contact clioEnvelope[struct {
			Name string `json:"name"`
		}]
		u := fmt.Sprintf("%s/api/v4/contacts/%s.json?fields=name", a.baseURL(session), contactID)
		if err := a.rc.doJSON(ctx, http.MethodGet, u, a.authHeader(session), nil, &contact); err != nil {
			return nil, fmt.Errorf("fetching clio contact %s: %w", contactID, err)
		}
		contactName = contact.Data.Name
	}

	return &CallLogDetails{
		Subject:     resp.Data.Subject,
		Note:        note,
		ContactName: contactName,
	}, nil
}

// contactParty picks whichever side of the communication is the contact.
func contactParty(senders, receivers []clioParty) string {
	if len(senders) > 0 && senders[0].Type != "User" {
		return senders[0].ID
	}
	if len(receivers) > 0 {
		return receivers[0].ID
	}
	return ""
}

func (a *clioAdapter) CreateMessageLog(ctx context.Context, session models.SessionContext, contact models.ContactCandidate, message models.MessageEvent, _ string) (string, error) {
	userName, err := a.userName(ctx, session)
	if err != nil {
		return "", err
	}

	entry := logbody.FormatMessageEntry(messageSenderLabel(message, contact, userName), message.Time, message.Text)
	body := logbody.BuildConversationBody(
		message.Time.Format("Monday, January 02, 2006"),
		[]string{userName, contact.Name},
		entry,
	)

	data := map[string]any{
		"subject":     fmt.Sprintf("SMS conversation with %s - %s", contact.Name, message.Time.Format("06/01/02")),
		"body":        body,
		"type":        "PhoneCommunication",
		"received_at": message.Time.UTC().Format("2006-01-02T15:04:05Z07:00"),
		"senders":     []clioParty{{ID: contact.ID, Type: "Contact"}},
		"receivers":   []clioParty{{ID: session.UserID, Type: "User"}},
		"notification_event_subscribers": []map[string]any{
			{"user_id": session.UserID},
		},
	}
	if matter, ok := message.AdditionalSubmission["matters"]; ok {
		data["matter"] = map[string]any{"id": matter}
	}

	var resp clioEnvelope[struct {
		ID int64 `json:"id"`
	}]
	u := a.baseURL(session) + "/api/v4/communications.json"
	if err := a.rc.doJSON(ctx, http.MethodPost, u, a.authHeader(session), map[string]any{"data": data}, &resp); err != nil {
		return "", fmt.Errorf("creating clio message log: %w", err)
	}
	return strconv.FormatInt(resp.Data.ID, 10), nil
}

func (a *clioAdapter) UpdateMessageLog(ctx context.Context, session models.SessionContext, contact models.ContactCandidate, existing models.MessageLogRecord, message models.MessageEvent) error {
	logID := clioLogID(existing.ThirdPartyLogID)
	body, err := a.fetchBody(ctx, session, logID)
	if err != nil {
		return err
	}
	userName, err := a.userName(ctx, session)
	if err != nil {
		return err
	}

	entry := logbody.FormatMessageEntry(messageSenderLabel(message, contact, userName), message.Time, message.Text)
	updated, err := logbody.AppendConversationEntry(body, entry)
	if err != nil {
		return err
	}
	return a.patchCommunication(ctx, session, logID, map[string]any{"body": updated})
}

func (a *clioAdapter) userName(ctx context.Context, session models.SessionContext) (string, error) {
	var resp clioEnvelope[struct {
		Name string `json:"name"`
	}]
	u := a.baseURL(session) + "/api/v4/users/who_am_i.json?fields=name"
	if err := a.rc.doJSON(ctx, http.MethodGet, u, a.authHeader(session), nil, &resp); err != nil {
		return "", fmt.Errorf("fetching clio user name: %w", err)
	}
	return resp.Data.Name, nil
}

func messageSenderLabel(message models.MessageEvent, contact models.ContactCandidate, userName string) string {
	if message.Direction == models.DirectionInbound {
		return fmt.Sprintf("%s (%s)", contact.Name, contact.Phone)
	}
	return userName
}

func (a *clioAdapter) Unauthorize(ctx context.Context, session models.SessionContext) error {
	form := url.Values{"token": {session.AccessToken}}
	u := a.baseURL(session) + "/oauth/deauthorize"
	if err := a.rc.doForm(ctx, http.MethodPost, u, a.authHeader(session), form, nil); err != nil {
		return fmt.Errorf("revoking clio token: %w", err)
	}
	return nil
}

// Clio log ids occasionally carry a ".suffix" qualifier appended by the
// client; the API wants the bare id.
func clioLogID(thirdPartyLogID string) string {
	for i := 0; i < len(thirdPartyLogID); i++ {
		if thirdPartyLogID[i] == '.' {
			return thirdPartyLogID[:i]
		}
	}
	return thirdPartyLogID
}
