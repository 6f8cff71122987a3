// ABOUTME: QV Accelerate adapter over the quotevine v2/ringcentral v1 APIs
// ABOUTME: API-key platform; call comments carry "subject: X. note: Y" pairs
package adapters

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/QV-Systems/rc-unified-crm-extension/crmerr"
	"github.com/QV-Systems/rc-unified-crm-extension/logbody"
	"github.com/QV-Systems/rc-unified-crm-extension/models"
	"github.com/QV-Systems/rc-unified-crm-extension/phone"
)

type accelerateAdapter struct {
	rc     *restClient
	scheme string
}

func newAccelerate() *accelerateAdapter {
	return &accelerateAdapter{rc: newRESTClient(), scheme: "https"}
}

func (a *accelerateAdapter) baseURL(hostname string) string {
	return a.scheme + "://" + hostname
}

func (a *accelerateAdapter) apiKeyHeader(session models.SessionContext) map[string]string {
	return map[string]string{"api-key": session.AccessToken}
}

func (a *accelerateAdapter) AuthType() models.AuthType {
	return models.AuthTypeAPIKey
}

// accelerateTimestamp is the call_date wire format.
const accelerateTimestamp = "2006-01-02 15:04:05"

// encodeComment packs subject and note into the single comments field.
func encodeComment(subject, note string) string {
	return fmt.Sprintf("subject: %s. note: %s", subject, note)
}

// parseComment recovers subject and note from a comments field written by
// encodeComment.
func parseComment(comment string) (subject, note string, err error) {
	rest, ok := strings.CutPrefix(comment, "subject: ")
	if !ok {
		return "", "", crmerr.Parse("accelerate comment has no subject segment")
	}
	subject, note, ok = strings.Cut(rest, ". note: ")
	if !ok {
		return "", "", crmerr.Parse("accelerate comment has no note segment")
	}
	return subject, note, nil
}

type accelerateAuthResponse struct {
	ClientID int64 `json:"clientid"`
	User     struct {
		UserID      int64  `json:"userid"`
		DisplayName string `json:"display_name"`
	} `json:"user"`
}

type accelerateSystemUser struct {
	CompanyName   string `json:"companyName"`
	CompanyDomain string `json:"companyDomain"`
}

func (a *accelerateAdapter) UserInfo(ctx context.Context, session models.SessionContext, extra map[string]string) (*models.UserInfo, error) {
	apiURL := extra["apiUrl"]
	if apiURL == "" {
		apiURL = session.Hostname
	}

	payload := map[string]string{
		"email_address": extra["username"],
		"password":      extra["password"],
	}
	var auth accelerateAuthResponse
	u := a.baseURL(apiURL) + "/qvine/quotevine/api/v2/system_user/authenticate"
	if err := a.rc.doJSON(ctx, http.MethodPost, u, a.apiKeyHeader(session), payload, &auth); err != nil {
		return nil, fmt.Errorf("authenticating accelerate user: %w", err)
	}

	userID := strconv.FormatInt(auth.User.UserID, 10)
	var sys accelerateSystemUser
	u = fmt.Sprintf("%s/qvine/quotevine/ringcentral/v1/system-users/%s/", a.baseURL(apiURL), userID)
	if err := a.rc.doJSON(ctx, http.MethodGet, u, a.apiKeyHeader(session), nil, &sys); err != nil {
		return nil, fmt.Errorf("fetching accelerate system user: %w", err)
	}

	return &models.UserInfo{
		ID:             userID,
		Name:           auth.User.DisplayName,
		TimezoneName:   "GMT",
		TimezoneOffset: 0,
		PlatformAdditionalInfo: map[string]any{
			"companyId":     auth.ClientID,
			"companyName":   sys.CompanyName,
			"companyDomain": sys.CompanyDomain,
		},
	}, nil
}

type accelerateContact struct {
	RelationshipID int64  `json:"relationship_id"`
	DisplayName    string `json:"display_name"`
	MobileNumber   string `json:"mobile_number"`
	DateOfBirth    string `json:"date_of_birth"`
	Source         string `json:"source"`
	TitleID        int64  `json:"title_id"`
}

func (a *accelerateAdapter) FindContact(ctx context.Context, session models.SessionContext, phoneNumber, _ string, isExtension bool) ([]models.ContactCandidate, error) {
	cleaned := strings.ReplaceAll(phoneNumber, " ", "")

	var numbers []string
	if isExtension {
		numbers = phone.Candidates(cleaned, "", true)
	} else {
		numbers = []string{ensurePlus(cleaned)}
	}

	return unionSearch(ctx, numbers, func(ctx context.Context, number string) ([]models.ContactCandidate, error) {
		return a.searchContact(ctx, session, number)
	})
}

func ensurePlus(number string) string {
	if strings.HasPrefix(number, "+") {
		return number
	}
	return "+" + number
}

func (a *accelerateAdapter) searchContact(ctx context.Context, session models.SessionContext, number string) ([]models.ContactCandidate, error) {
	var resp struct {
		Items []accelerateContact `json:"items"`
	}
	u := fmt.Sprintf("%s/qvine/quotevine/ringcentral/v1/find-contact/%s/",
		a.baseURL(session.Hostname), url.PathEscape(number))
	if err := a.rc.doJSON(ctx, http.MethodGet, u, a.apiKeyHeader(session), nil, &resp); err != nil {
		return nil, err
	}

	var out []models.ContactCandidate
	for _, item := range resp.Items {
		info := map[string]any{
			"mobileNumber":  item.MobileNumber,
			"date_of_birth": item.DateOfBirth,
			"source":        item.Source,
		}
		if item.TitleID != 0 {
			info["title_id"] = item.TitleID
		}
		out = append(out, models.ContactCandidate{
			ID:             strconv.FormatInt(item.RelationshipID, 10),
			Name:           item.DisplayName,
			Phone:          number,
			AdditionalInfo: info,
		})
	}
	return out, nil
}

func (a *accelerateAdapter) CreateContact(ctx context.Context, session models.SessionContext, phoneNumber, name, contactType string) (*models.ContactCandidate, error) {
	payload := map[string]any{
		"display_name": name,
		"type":         contactType,
		"phone_number": phoneNumber,
	}
	var resp struct {
		RelationshipID int64  `json:"relationship_id"`
		DisplayName    string `json:"display_name"`
	}
	u := a.baseURL(session.Hostname) + "/qvine/quotevine/ringcentral/v1/contacts/"
	if err := a.rc.doJSON(ctx, http.MethodPost, u, a.apiKeyHeader(session), payload, &resp); err != nil {
		return nil, fmt.Errorf("creating accelerate contact: %w", err)
	}
	return &models.ContactCandidate{
		ID:    strconv.FormatInt(resp.RelationshipID, 10),
		Name:  resp.DisplayName,
		Phone: phoneNumber,
	}, nil
}

type accelerateCall struct {
	TelephoneCallID   int64  `json:"telephone_call_id"`
	CallDate          string `json:"call_date"`
	Direction         string `json:"direction"`
	InternalFlag      string `json:"internal_flag"`
	Comments          string `json:"comments"`
	ExternalReference string `json:"external_reference"`
	RelationshipID    int64  `json:"relationship_id"`
}

func directionFlag(direction string) string {
	if direction == models.DirectionOutbound {
		return "O"
	}
	return "I"
}

func (a *accelerateAdapter) CreateCallLog(ctx context.Context, session models.SessionContext, contact models.ContactCandidate, call models.CallEvent, note string) (string, error) {
	payload := map[string]any{
		"call_date":             call.StartTime.Format(accelerateTimestamp),
		"direction":             directionFlag(call.Direction),
		"source_number":         call.From,
		"destination_number":    call.To,
		"internal_flag":         "N",
		"comments":              encodeComment(call.CustomSubject, note),
		"call_duration_seconds": call.DurationSeconds,
		"external_reference":    call.ID,
		"user_id":               session.UserID,
	}
	if id, err := strconv.ParseInt(contact.ID, 10, 64); err == nil {
		payload["relationship_id"] = id
	}
	if call.RecordingLink != "" {
		payload["recording_url"] = call.RecordingLink
	}

	var resp accelerateCall
	u := a.baseURL(session.Hostname) + "/qvine/quotevine/api/v2/telephone_calls/"
	if err := a.rc.doJSON(ctx, http.MethodPost, u, a.apiKeyHeader(session), payload, &resp); err != nil {
		return "", fmt.Errorf("creating accelerate call: %w", err)
	}
	return strconv.FormatInt(resp.TelephoneCallID, 10), nil
}

func (a *accelerateAdapter) getCall(ctx context.Context, session models.SessionContext, logID string) (*accelerateCall, error) {
	var resp accelerateCall
	u := fmt.Sprintf("%s/qvine/quotevine/api/v2/telephone_calls/%s/", a.baseURL(session.Hostname), logID)
	if err := a.rc.doJSON(ctx, http.MethodGet, u, a.apiKeyHeader(session), nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching accelerate call %s: %w", logID, err)
	}
	return &resp, nil
}

func (a *accelerateAdapter) putCall(ctx context.Context, session models.SessionContext, logID string, payload map[string]any) error {
	u := fmt.Sprintf("%s/qvine/quotevine/api/v2/telephone_calls/%s/", a.baseURL(session.Hostname), logID)
	if err := a.rc.doJSON(ctx, http.MethodPut, u, a.apiKeyHeader(session), payload, nil); err != nil {
		return fmt.Errorf("updating accelerate call %s: %w", logID, err)
	}
	return nil
}

func (a *accelerateAdapter) UpdateCallLog(ctx context.Context, session models.SessionContext, existing models.CallLogRecord, patch CallLogPatch) (string, error) {
	current, err := a.getCall(ctx, session, existing.ThirdPartyLogID)
	if err != nil {
		return "", err
	}

	subject, note := patch.Subject, patch.Note
	if subject == "" || patch.Note == "" {
		// A partial patch keeps the other half of the stored pair.
		oldSubject, oldNote, err := parseComment(current.Comments)
		if err != nil {
			return "", err
		}
		if subject == "" {
			subject = oldSubject
		}
		if note == "" {
			note = oldNote
		}
	}

	comment := encodeComment(subject, note)
	payload := map[string]any{
		"direction":          current.Direction,
		"internal_flag":      current.InternalFlag,
		"comments":           comment,
		"external_reference": current.ExternalReference,
		"call_date":          current.CallDate,
	}
	if current.RelationshipID != 0 {
		payload["relationship_id"] = current.RelationshipID
	}
	if patch.RecordingLink != "" {
		payload["recording_url"] = patch.RecordingLink
	}
	if err := a.putCall(ctx, session, existing.ThirdPartyLogID, payload); err != nil {
		return "", err
	}
	return comment, nil
}

func (a *accelerateAdapter) GetCallLog(ctx context.Context, session models.SessionContext, thirdPartyLogID string) (*CallLogDetails, error) {
	call, err := a.getCall(ctx, session, thirdPartyLogID)
	if err != nil {
		return nil, err
	}
	subject, note, err := parseComment(call.Comments)
	if err != nil {
		return nil, err
	}

	var contactName string
	if call.RelationshipID != 0 {
		contact, err := a.getContact(ctx, session, call.RelationshipID)
		if err != nil {
			return nil, err
		}
		contactName = contact.DisplayName
	}
	return &CallLogDetails{Subject: subject, Note: note, ContactName: contactName}, nil
}

func (a *accelerateAdapter) getContact(ctx context.Context, session models.SessionContext, relationshipID int64) (*accelerateContact, error) {
	var resp accelerateContact
	u := fmt.Sprintf("%s/qvine/quotevine/ringcentral/v1/contacts/%d/", a.baseURL(session.Hostname), relationshipID)
	if err := a.rc.doJSON(ctx, http.MethodGet, u, a.apiKeyHeader(session), nil, &resp); err != nil {
		return nil, fmt.Errorf("fetching accelerate contact %d: %w", relationshipID, err)
	}
	return &resp, nil
}

// Accelerate has no dedicated SMS resource; conversation buckets ride on
// telephone_calls with the transcript grammar in the comments field.
func (a *accelerateAdapter) CreateMessageLog(ctx context.Context, session models.SessionContext, contact models.ContactCandidate, message models.MessageEvent, recordingLink string) (string, error) {
	entry := logbody.FormatMessageEntry(messageSenderLabel(message, contact, "Me"), message.Time, message.Text)
	body := logbody.BuildConversationBody(
		message.Time.Format("Monday, January 02, 2006"),
		[]string{contact.Name},
		entry,
	)

	payload := map[string]any{
		"call_date":             message.Time.Format(accelerateTimestamp),
		"direction":             directionFlag(message.Direction),
		"source_number":         message.From,
		"destination_number":    message.To,
		"internal_flag":         "N",
		"comments":              body,
		"call_duration_seconds": 0,
		"external_reference":    message.ID,
		"user_id":               session.UserID,
	}
	if id, err := strconv.ParseInt(contact.ID, 10, 64); err == nil {
		payload["relationship_id"] = id
	}
	if recordingLink != "" {
		payload["recording_url"] = recordingLink
	}

	var resp accelerateCall
	u := a.baseURL(session.Hostname) + "/qvine/quotevine/api/v2/telephone_calls/"
	if err := a.rc.doJSON(ctx, http.MethodPost, u, a.apiKeyHeader(session), payload, &resp); err != nil {
		return "", fmt.Errorf("creating accelerate message log: %w", err)
	}
	return strconv.FormatInt(resp.TelephoneCallID, 10), nil
}

func (a *accelerateAdapter) UpdateMessageLog(ctx context.Context, session models.SessionContext, contact models.ContactCandidate, existing models.MessageLogRecord, message models.MessageEvent) error {
	current, err := a.getCall(ctx, session, existing.ThirdPartyLogID)
	if err != nil {
		return err
	}

	entry := logbody.FormatMessageEntry(messageSenderLabel(message, contact, "Me"), message.Time, message.Text)
	updated, err := logbody.AppendConversationEntry(current.Comments, entry)
	if err != nil {
		return err
	}

	payload := map[string]any{
		"direction":          current.Direction,
		"internal_flag":      current.InternalFlag,
		"comments":           updated,
		"external_reference": current.ExternalReference,
		"call_date":          current.CallDate,
	}
	if current.RelationshipID != 0 {
		payload["relationship_id"] = current.RelationshipID
	}
	return a.putCall(ctx, session, existing.ThirdPartyLogID, payload)
}

// Unauthorize is a no-op: the platform has no revocation endpoint, so the
// caller just deletes the stored key.
func (a *accelerateAdapter) Unauthorize(_ context.Context, _ models.SessionContext) error {
	return nil
}
