// ABOUTME: Pipedrive adapter: person search and call/SMS activities over the v1 API
// ABOUTME: OAuth platform; the activity note field carries the free-text body grammar
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

type pipedriveAdapter struct {
	rc     *restClient
	scheme string
}

func newPipedrive() *pipedriveAdapter {
	return &pipedriveAdapter{rc: newRESTClient(), scheme: "https"}
}

func (a *pipedriveAdapter) baseURL(session models.SessionContext) string {
	return a.scheme + "://" + session.Hostname
}

func (a *pipedriveAdapter) authHeader(session models.SessionContext) map[string]string {
	return map[string]string{"Authorization": "Bearer " + session.AccessToken}
}

func (a *pipedriveAdapter) AuthType() models.AuthType {
	return models.AuthTypeOAuth
}

func (a *pipedriveAdapter) UserInfo(ctx context.Context, session models.SessionContext, _ map[string]string) (*models.UserInfo, error) {
	var resp struct {
		Data struct {
			ID             int64  `json:"id"`
			Name           string `json:"name"`
			TimezoneName   string `json:"timezone_name"`
			TimezoneOffset string `json:"timezone_offset"`
		} `json:"data"`
	}
	u := a.baseURL(session) + "/v1/users/me"
	if err := a.rc.doJSON(ctx, http.MethodGet, u, a.authHeader(session), nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching pipedrive user: %w", err)
	}

	offset := 0
	if resp.Data.TimezoneOffset != "" {
		// Wire format is "+01:00"; minutes are enough for bucketing.
		var h, m int
		if _, err := fmt.Sscanf(resp.Data.TimezoneOffset, "%3d:%2d", &h, &m); err == nil {
			offset = h * 60
			if h < 0 {
				offset -= m
			} else {
				offset += m
			}
		}
	}

	return &models.UserInfo{
		ID:                     strconv.FormatInt(resp.Data.ID, 10),
		Name:                   resp.Data.Name,
		TimezoneName:           resp.Data.TimezoneName,
		TimezoneOffset:         offset,
		PlatformAdditionalInfo: map[string]any{},
	}, nil
}

type pipedrivePerson struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Organization *struct {
		Name string `json:"name"`
	} `json:"organization"`
}

func (a *pipedriveAdapter) FindContact(ctx context.Context, session models.SessionContext, phoneNumber, overridingFormat string, isExtension bool) ([]models.ContactCandidate, error) {
	numbers := phone.Candidates(phoneNumber, overridingFormat, isExtension)
	return unionSearch(ctx, numbers, func(ctx context.Context, number string) ([]models.ContactCandidate, error) {
		return a.searchPerson(ctx, session, number)
	})
}

func (a *pipedriveAdapter) searchPerson(ctx context.Context, session models.SessionContext, number string) ([]models.ContactCandidate, error) {
	var resp struct {
		Data struct {
			Items []struct {
				Item pipedrivePerson `json:"item"`
			} `json:"items"`
		} `json:"data"`
	}
	u := fmt.Sprintf("%s/v1/persons/search?term=%s&fields=phone", a.baseURL(session), url.QueryEscape(number))
	if err := a.rc.doJSON(ctx, http.MethodGet, u, a.authHeader(session), nil, &resp); err != nil {
		return nil, err
	}

	var out []models.ContactCandidate
	for _, item := range resp.Data.Items {
		company := ""
		if item.Item.Organization != nil {
			company = item.Item.Organization.Name
		}
		out = append(out, models.ContactCandidate{
			ID:      strconv.FormatInt(item.Item.ID, 10),
			Name:    item.Item.Name,
			Company: company,
			Phone:   number,
		})
	}
	return out, nil
}

func (a *pipedriveAdapter) CreateContact(ctx context.Context, session models.SessionContext, phoneNumber, name, _ string) (*models.ContactCandidate, error) {
	payload := map[string]any{
		"name": name,
		"phone": []map[string]any{
			{"value": phoneNumber, "primary": true, "label": "work"},
		},
	}
	var resp struct {
		Data pipedrivePerson `json:"data"`
	}
	u := a.baseURL(session) + "/v1/persons"
	if err := a.rc.doJSON(ctx, http.MethodPost, u, a.authHeader(session), payload, &resp); err != nil {
		return nil, fmt.Errorf("creating pipedrive person: %w", err)
	}
	return &models.ContactCandidate{
		ID:    strconv.FormatInt(resp.Data.ID, 10),
		Name:  resp.Data.Name,
		Phone: phoneNumber,
	}, nil
}

type pipedriveActivity struct {
	ID         int64  `json:"id"`
	Subject    string `json:"subject"`
	Note       string `json:"note"`
	PersonName string `json:"person_name"`
}

func (a *pipedriveAdapter) CreateCallLog(ctx context.Context, session models.SessionContext, contact models.ContactCandidate, call models.CallEvent, note string) (string, error) {
	subject := call.CustomSubject
	if subject == "" {
		subject = fmt.Sprintf("%s call with %s", call.Direction, contact.Name)
	}

	personID, _ := strconv.ParseInt(contact.ID, 10, 64)
	payload := map[string]any{
		"subject":   subject,
		"type":      "call",
		"done":      true,
		"note":      logbody.BuildCallBody(contact.Phone, call.Result, note, call.RecordingLink),
		"due_date":  call.StartTime.UTC().Format("2006-01-02"),
		"due_time":  call.StartTime.UTC().Format("15:04"),
		"duration":  fmt.Sprintf("%02d:%02d", call.DurationSeconds/3600, (call.DurationSeconds%3600)/60),
		"person_id": personID,
	}

	var resp struct {
		Data pipedriveActivity `json:"data"`
	}
	u := a.baseURL(session) + "/v1/activities"
	if err := a.rc.doJSON(ctx, http.MethodPost, u, a.authHeader(session), payload, &resp); err != nil {
		return "", fmt.Errorf("creating pipedrive activity: %w", err)
	}
	return strconv.FormatInt(resp.Data.ID, 10), nil
}

func (a *pipedriveAdapter) getActivity(ctx context.Context, session models.SessionContext, logID string) (*pipedriveActivity, error) {
	var resp struct {
		Data pipedriveActivity `json:"data"`
	}
	u := fmt.Sprintf("%s/v1/activities/%s", a.baseURL(session), logID)
	if err := a.rc.doJSON(ctx, http.MethodGet, u, a.authHeader(session), nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching pipedrive activity %s: %w", logID, err)
	}
	return &resp.Data, nil
}

func (a *pipedriveAdapter) putActivity(ctx context.Context, session models.SessionContext, logID string, payload map[string]any) error {
	u := fmt.Sprintf("%s/v1/activities/%s", a.baseURL(session), logID)
	if err := a.rc.doJSON(ctx, http.MethodPut, u, a.authHeader(session), payload, nil); err != nil {
		return fmt.Errorf("updating pipedrive activity %s: %w", logID, err)
	}
	return nil
}

func (a *pipedriveAdapter) UpdateCallLog(ctx context.Context, session models.SessionContext, existing models.CallLogRecord, patch CallLogPatch) (string, error) {
	activity, err := a.getActivity(ctx, session, existing.ThirdPartyLogID)
	if err != nil {
		return "", err
	}

	if patch.RecordingLink != "" {
		link := patch.RecordingLink
		if decoded, err := url.QueryUnescape(link); err == nil {
			link = decoded
		}
		updated := logbody.InsertRecordingLink(activity.Note, link)
		if err := a.putActivity(ctx, session, existing.ThirdPartyLogID, map[string]any{"note": updated}); err != nil {
			return "", err
		}
		return updated, nil
	}

	updated, err := logbody.ReplaceCallNote(activity.Note, patch.Note)
	if err != nil {
		return "", err
	}
	payload := map[string]any{"note": updated}
	if patch.Subject != "" {
		payload["subject"] = patch.Subject
	}
	if err := a.putActivity(ctx, session, existing.ThirdPartyLogID, payload); err != nil {
		return "", err
	}
	return updated, nil
}

func (a *pipedriveAdapter) GetCallLog(ctx context.Context, session models.SessionContext, thirdPartyLogID string) (*CallLogDetails, error) {
	activity, err := a.getActivity(ctx, session, thirdPartyLogID)
	if err != nil {
		return nil, err
	}
	note, err := logbody.ParseCallNote(activity.Note)
	if err != nil {
		return nil, err
	}
	return &CallLogDetails{
		Subject:     activity.Subject,
		Note:        note,
		ContactName: activity.PersonName,
	}, nil
}

func (a *pipedriveAdapter) CreateMessageLog(ctx context.Context, session models.SessionContext, contact models.ContactCandidate, message models.MessageEvent, _ string) (string, error) {
	entry := logbody.FormatMessageEntry(messageSenderLabel(message, contact, "Me"), message.Time, message.Text)
	body := logbody.BuildConversationBody(
		message.Time.Format("Monday, January 02, 2006"),
		[]string{contact.Name},
		entry,
	)

	personID, _ := strconv.ParseInt(contact.ID, 10, 64)
	payload := map[string]any{
		"subject":   fmt.Sprintf("SMS conversation with %s - %s", contact.Name, message.Time.Format("06/01/02")),
		"type":      "sms",
		"done":      true,
		"note":      body,
		"due_date":  message.Time.UTC().Format("2006-01-02"),
		"due_time":  message.Time.UTC().Format("15:04"),
		"person_id": personID,
	}

	var resp struct {
		Data pipedriveActivity `json:"data"`
	}
	u := a.baseURL(session) + "/v1/activities"
	if err := a.rc.doJSON(ctx, http.MethodPost, u, a.authHeader(session), payload, &resp); err != nil {
		return "", fmt.Errorf("creating pipedrive message activity: %w", err)
	}
	return strconv.FormatInt(resp.Data.ID, 10), nil
}

func (a *pipedriveAdapter) UpdateMessageLog(ctx context.Context, session models.SessionContext, contact models.ContactCandidate, existing models.MessageLogRecord, message models.MessageEvent) error {
	activity, err := a.getActivity(ctx, session, existing.ThirdPartyLogID)
	if err != nil {
		return err
	}

	entry := logbody.FormatMessageEntry(messageSenderLabel(message, contact, "Me"), message.Time, message.Text)
	updated, err := logbody.AppendConversationEntry(activity.Note, entry)
	if err != nil {
		return err
	}
	return a.putActivity(ctx, session, existing.ThirdPartyLogID, map[string]any{"note": updated})
}

// Unauthorize is a no-op: Pipedrive exposes no token revocation endpoint,
// so logging out just deletes the stored credential.
func (a *pipedriveAdapter) Unauthorize(_ context.Context, _ models.SessionContext) error {
	return nil
}
