package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/QV-Systems/rc-unified-crm-extension/crmerr"
	"github.com/QV-Systems/rc-unified-crm-extension/logbody"
	"github.com/QV-Systems/rc-unified-crm-extension/models"
)

func testClio(serverURL string) (*clioAdapter, models.SessionContext) {
	adapter := &clioAdapter{rc: newRESTClient(), scheme: "http"}
	session := models.SessionContext{
		UserID:      "99",
		Platform:    models.PlatformClio,
		Hostname:    strings.TrimPrefix(serverURL, "http://"),
		AuthType:    models.AuthTypeOAuth,
		AccessToken: "test-token",
	}
	return adapter, session
}

func TestClioFindContactUnionsFormats(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Error("missing or invalid auth header")
		}
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/v4/contacts.json"):
			query := r.URL.Query().Get("query")
			switch query {
			case "07911123456":
				json.NewEncoder(w).Encode(map[string]any{
					"data": []map[string]any{
						{"id": 1, "name": "Alice Local", "title": "Director"},
					},
				})
			case "+447911123456":
				json.NewEncoder(w).Encode(map[string]any{
					"data": []map[string]any{
						{"id": 2, "name": "Alice Intl", "company": map[string]any{"name": "Acme"}},
					},
				})
			default:
				json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
			}
		case strings.HasPrefix(r.URL.Path, "/api/v4/matters.json"):
			json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{
					{"id": 77, "display_number": "M-0077"},
				},
			})
		case strings.HasPrefix(r.URL.Path, "/api/v4/relationships.json"):
			json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	adapter, session := testClio(server.URL)
	found, err := adapter.FindContact(context.Background(), session, "+447911123456", "0*,+44*", false)
	if err != nil {
		t.Fatalf("FindContact failed: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected union of both formats, got %d candidates", len(found))
	}

	byID := map[string]models.ContactCandidate{}
	for _, c := range found {
		byID[c.ID] = c
	}
	if byID["1"].Name != "Alice Local" || byID["2"].Name != "Alice Intl" {
		t.Errorf("unexpected candidates: %+v", found)
	}
	if byID["2"].Company != "Acme" {
		t.Errorf("company not carried through: %+v", byID["2"])
	}
	matters, ok := byID["1"].AdditionalInfo["matters"].([]map[string]any)
	if !ok || len(matters) != 1 {
		t.Errorf("matters not attached: %+v", byID["1"].AdditionalInfo)
	}
}

func TestClioFindContactRejectedCredential(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_token"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	adapter, session := testClio(server.URL)
	found, err := adapter.FindContact(context.Background(), session, "+447911123456", "", false)
	if crmerr.KindOf(err) != crmerr.KindAuth {
		t.Fatalf("expected KindAuth, got err=%v", err)
	}
	if found != nil {
		t.Errorf("no candidates may be returned alongside an auth failure: %+v", found)
	}
}

func TestClioFindContactAllFormatsFailing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	adapter, session := testClio(server.URL)
	_, err := adapter.FindContact(context.Background(), session, "+447911123456", "0*,+44*", false)
	if crmerr.KindOf(err) != crmerr.KindThirdPartyAPI {
		t.Fatalf("expected KindThirdPartyAPI when every format fails, got %v", err)
	}
}

func TestClioFindContactToleratesOneFailingFormat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/v4/contacts.json"):
			if r.URL.Query().Get("query") == "07911123456" {
				http.Error(w, "transient", http.StatusServiceUnavailable)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{
					{"id": 3, "name": "Alice Intl"},
				},
			})
		default:
			json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
		}
	}))
	defer server.Close()

	adapter, session := testClio(server.URL)
	found, err := adapter.FindContact(context.Background(), session, "+447911123456", "0*,+44*", false)
	if err != nil {
		t.Fatalf("one answered format must carry the search: %v", err)
	}
	if len(found) != 1 || found[0].ID != "3" {
		t.Errorf("unexpected candidates: %+v", found)
	}
}

func TestClioCreateCallLogBody(t *testing.T) {
	var gotBody string
	var timeEntries int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v4/communications.json":
			var payload struct {
				Data struct {
					Subject string `json:"subject"`
					Body    string `json:"body"`
					Type    string `json:"type"`
				} `json:"data"`
			}
			json.NewDecoder(r.Body).Decode(&payload)
			gotBody = payload.Data.Body
			if payload.Data.Type != "PhoneCommunication" {
				t.Errorf("type = %q", payload.Data.Type)
			}
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": 555}})
		case "/api/v4/activities.json":
			timeEntries++
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": 1}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	adapter, session := testClio(server.URL)
	contact := models.ContactCandidate{ID: "1", Name: "Alice", Phone: "+447911123456"}
	call := models.CallEvent{
		ID:              "sess-1",
		Direction:       models.DirectionOutbound,
		StartTime:       time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC),
		DurationSeconds: 120,
		Result:          "Call connected",
	}

	logID, err := adapter.CreateCallLog(context.Background(), session, contact, call, "called back")
	if err != nil {
		t.Fatalf("CreateCallLog failed: %v", err)
	}
	if logID != "555" {
		t.Errorf("logID = %q, want 555", logID)
	}
	if !strings.Contains(gotBody, "Note: called back") {
		t.Errorf("body missing note: %q", gotBody)
	}
	if !strings.HasSuffix(gotBody, logbody.Sentinel) {
		t.Errorf("body missing sentinel: %q", gotBody)
	}
	if timeEntries != 1 {
		t.Errorf("expected one time entry, got %d", timeEntries)
	}
}

func TestClioUpdateCallLogRecordingLink(t *testing.T) {
	stored := logbody.BuildCallBody("+447911123456", "Call connected", "called back", "")
	var patched string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"body": stored}})
		case http.MethodPatch:
			var payload struct {
				Data struct {
					Body string `json:"body"`
				} `json:"data"`
			}
			json.NewDecoder(r.Body).Decode(&payload)
			patched = payload.Data.Body
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": 555}})
		}
	}))
	defer server.Close()

	adapter, session := testClio(server.URL)
	existing := models.CallLogRecord{ThirdPartyLogID: "555.0"}

	updated, err := adapter.UpdateCallLog(context.Background(), session, existing, CallLogPatch{RecordingLink: "https://rec/1"})
	if err != nil {
		t.Fatalf("UpdateCallLog failed: %v", err)
	}
	if updated != patched {
		t.Error("returned body must equal written body")
	}

	noteIdx := strings.Index(patched, "Note: called back")
	linkIdx := strings.Index(patched, "\n[Call recording link]https://rec/1")
	if noteIdx < 0 || linkIdx < 0 || noteIdx > linkIdx {
		t.Errorf("note and link out of order: %q", patched)
	}
	if !strings.HasSuffix(patched, logbody.Sentinel) {
		t.Error("sentinel must stay last")
	}
}

func TestClioUpdateCallLogUnparseableBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch {
			t.Error("must not write a body it cannot parse")
		}
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"body": "foreign body"}})
	}))
	defer server.Close()

	adapter, session := testClio(server.URL)
	existing := models.CallLogRecord{ThirdPartyLogID: "555"}

	_, err := adapter.UpdateCallLog(context.Background(), session, existing, CallLogPatch{Note: "new note"})
	if crmerr.KindOf(err) != crmerr.KindParse {
		t.Errorf("kind = %v, want KindParse", crmerr.KindOf(err))
	}
}

func TestClioMessageLogLifecycle(t *testing.T) {
	var stored string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/api/v4/users/who_am_i.json"):
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"name": "Agent Smith"}})
		case r.URL.Path == "/api/v4/communications.json" && r.Method == http.MethodPost:
			var payload struct {
				Data struct {
					Body string `json:"body"`
				} `json:"data"`
			}
			json.NewDecoder(r.Body).Decode(&payload)
			stored = payload.Data.Body
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": 800}})
		case strings.HasPrefix(r.URL.Path, "/api/v4/communications/800.json") && r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"body": stored}})
		case strings.HasPrefix(r.URL.Path, "/api/v4/communications/800.json") && r.Method == http.MethodPatch:
			var payload struct {
				Data struct {
					Body string `json:"body"`
				} `json:"data"`
			}
			json.NewDecoder(r.Body).Decode(&payload)
			stored = payload.Data.Body
			json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": 800}})
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	adapter, session := testClio(server.URL)
	contact := models.ContactCandidate{ID: "1", Name: "Alice", Phone: "+447911123456"}
	at := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)

	first := models.MessageEvent{ID: "m1", Direction: models.DirectionInbound, Time: at, Text: "hello"}
	logID, err := adapter.CreateMessageLog(context.Background(), session, contact, first, "")
	if err != nil {
		t.Fatalf("CreateMessageLog failed: %v", err)
	}
	if logID != "800" {
		t.Errorf("logID = %q", logID)
	}
	if !strings.Contains(stored, "Conversation(1 messages)") {
		t.Errorf("new bucket header wrong: %q", stored)
	}

	second := models.MessageEvent{ID: "m2", Direction: models.DirectionOutbound, Time: at.Add(time.Minute), Text: "hi alice"}
	existing := models.MessageLogRecord{ThirdPartyLogID: "800", EntryCount: 1}
	if err := adapter.UpdateMessageLog(context.Background(), session, contact, existing, second); err != nil {
		t.Fatalf("UpdateMessageLog failed: %v", err)
	}
	if !strings.Contains(stored, "Conversation(2 messages)") {
		t.Errorf("header must transition to 2 messages: %q", stored)
	}
	if !strings.Contains(stored, "hi alice") || !strings.Contains(stored, "hello") {
		t.Errorf("transcript entries missing: %q", stored)
	}
}

func TestClioUnauthorizeRevokesToken(t *testing.T) {
	var revoked bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/deauthorize" && r.Method == http.MethodPost {
			r.ParseForm()
			if r.PostForm.Get("token") == "test-token" {
				revoked = true
			}
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	adapter, session := testClio(server.URL)
	if err := adapter.Unauthorize(context.Background(), session); err != nil {
		t.Fatalf("Unauthorize failed: %v", err)
	}
	if !revoked {
		t.Error("expected revocation call with the access token")
	}
}
