// ABOUTME: HTTP front door for the client extension
// ABOUTME: Thin JSON layer: decode token, load user, dispatch to core, map error kinds to status codes
package web

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"

	"github.com/QV-Systems/rc-unified-crm-extension/adapters"
	"github.com/QV-Systems/rc-unified-crm-extension/auth"
	"github.com/QV-Systems/rc-unified-crm-extension/core"
	"github.com/QV-Systems/rc-unified-crm-extension/crmerr"
	"github.com/QV-Systems/rc-unified-crm-extension/db"
	"github.com/QV-Systems/rc-unified-crm-extension/models"
)

type Server struct {
	db     *sql.DB
	engine *core.Engine
}

func NewServer(database *sql.DB) *Server {
	return &Server{
		db:     database,
		engine: core.NewEngine(database),
	}
}

// Handler builds the route table. Split from Start so tests can drive it
// through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /oauth-callback", s.handleOAuthCallback)
	mux.HandleFunc("POST /apiKeyLogin", s.handleAPIKeyLogin)
	mux.HandleFunc("POST /unAuthorize", s.handleUnAuthorize)

	mux.HandleFunc("GET /contact", s.handleFindContact)
	mux.HandleFunc("POST /contact", s.handleCreateContact)

	mux.HandleFunc("GET /callLog", s.handleGetCallLog)
	mux.HandleFunc("POST /callLog", s.handleCreateCallLog)
	mux.HandleFunc("PATCH /callLog", s.handleUpdateCallLog)

	mux.HandleFunc("POST /messageLog", s.handleCreateMessageLog)

	return mux
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	log.Printf("Starting server at http://localhost%s", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func writeJSON(w http.ResponseWriter, status int, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Error writing response: %v", err)
	}
}

// writeError maps the error's kind to a status code and the client toast
// shape: a message plus how long to show it.
func writeError(w http.ResponseWriter, err error) {
	log.Printf("request failed: %v", err)
	writeJSON(w, crmerr.HTTPStatus(err), map[string]any{
		"successful": false,
		"message":    err.Error(),
		"ttl":        crmerr.TTLOf(err),
	})
}

// writeBadRequest is for malformed requests: missing token, undecodable
// body. Always 400, regardless of error kind.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"successful": false,
		"message":    message,
	})
}

// requireUser resolves the jwtToken query parameter into the stored user,
// refreshing OAuth tokens when needed, and picks the platform adapter.
func (s *Server) requireUser(r *http.Request) (*models.User, adapters.Adapter, models.SessionContext, error) {
	tokenString := r.URL.Query().Get("jwtToken")
	if tokenString == "" {
		return nil, nil, models.SessionContext{}, fmt.Errorf("missing jwtToken")
	}
	claims, err := auth.DecodeToken(tokenString)
	if err != nil {
		return nil, nil, models.SessionContext{}, err
	}

	user, err := db.GetUser(s.db, claims.UserID, models.Platform(claims.Platform))
	if err != nil {
		return nil, nil, models.SessionContext{}, fmt.Errorf("loading user: %w", err)
	}
	if user == nil {
		return nil, nil, models.SessionContext{}, crmerr.Auth("user is not connected to this platform")
	}

	adapter, err := adapters.ForPlatform(user.Platform)
	if err != nil {
		return nil, nil, models.SessionContext{}, err
	}
	if err := auth.EnsureFresh(r.Context(), s.db, user); err != nil {
		return nil, nil, models.SessionContext{}, err
	}

	return user, adapter, models.SessionFromUser(user), nil
}

// handleOAuthCallback finishes the OAuth connect flow: exchange the code,
// identify the CRM user, store the credential row, hand back a signed token.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	platform := models.Platform(q.Get("platform"))
	hostname := q.Get("hostname")
	code := q.Get("code")
	if code == "" {
		// The client may pass the whole provider redirect instead.
		if callbackURI := q.Get("callbackUri"); callbackURI != "" {
			if parsed, err := url.Parse(callbackURI); err == nil {
				code = parsed.Query().Get("code")
			}
		}
	}
	if platform == "" || code == "" {
		writeBadRequest(w, "platform and code are required")
		return
	}

	adapter, err := adapters.ForPlatform(platform)
	if err != nil {
		writeError(w, err)
		return
	}

	token, err := auth.ExchangeCode(r.Context(), platform, code)
	if err != nil {
		writeError(w, err)
		return
	}

	session := models.SessionContext{
		Platform:    platform,
		Hostname:    hostname,
		AuthType:    models.AuthTypeOAuth,
		AccessToken: token.AccessToken,
	}
	info, err := adapter.UserInfo(r.Context(), session, nil)
	if err != nil {
		writeError(w, err)
		return
	}

	expiry := token.Expiry
	user := &models.User{
		ID:             info.ID,
		Name:           info.Name,
		Platform:       platform,
		Hostname:       hostname,
		AuthType:       models.AuthTypeOAuth,
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
		TokenExpiry:    &expiry,
		TimezoneOffset: info.TimezoneOffset,
		RCUserNumber:   q.Get("rcUserNumber"),
	}
	if err := db.SaveUser(s.db, user); err != nil {
		writeError(w, fmt.Errorf("saving user: %w", err))
		return
	}

	jwtToken, err := auth.GenerateToken(user.ID, platform)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"successful": true,
		"jwtToken":   jwtToken,
		"name":       user.Name,
	})
}

// handleAPIKeyLogin connects an API-key platform. additionalInfo carries
// platform-specific login fields such as username and password.
func (s *Server) handleAPIKeyLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Platform       models.Platform   `json:"platform"`
		Hostname       string            `json:"hostname"`
		APIKey         string            `json:"apiKey"`
		RCUserNumber   string            `json:"rcUserNumber"`
		AdditionalInfo map[string]string `json:"additionalInfo"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if body.Platform == "" || body.APIKey == "" {
		writeBadRequest(w, "platform and apiKey are required")
		return
	}

	adapter, err := adapters.ForPlatform(body.Platform)
	if err != nil {
		writeError(w, err)
		return
	}
	if adapter.AuthType() != models.AuthTypeAPIKey {
		writeBadRequest(w, fmt.Sprintf("platform %s uses OAuth, not an API key", body.Platform))
		return
	}

	session := models.SessionContext{
		Platform:    body.Platform,
		Hostname:    body.Hostname,
		AuthType:    models.AuthTypeAPIKey,
		AccessToken: body.APIKey,
	}
	info, err := adapter.UserInfo(r.Context(), session, body.AdditionalInfo)
	if err != nil {
		writeError(w, err)
		return
	}

	user := &models.User{
		ID:             info.ID,
		Name:           info.Name,
		Platform:       body.Platform,
		Hostname:       body.Hostname,
		AuthType:       models.AuthTypeAPIKey,
		AccessToken:    body.APIKey,
		TimezoneOffset: info.TimezoneOffset,
		RCUserNumber:   body.RCUserNumber,
	}
	if err := db.SaveUser(s.db, user); err != nil {
		writeError(w, fmt.Errorf("saving user: %w", err))
		return
	}

	jwtToken, err := auth.GenerateToken(user.ID, body.Platform)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"successful": true,
		"jwtToken":   jwtToken,
		"name":       user.Name,
	})
}

// handleUnAuthorize revokes the platform token where supported and always
// deletes the stored credential row.
func (s *Server) handleUnAuthorize(w http.ResponseWriter, r *http.Request) {
	user, adapter, session, err := s.requireUser(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if err := adapter.Unauthorize(r.Context(), session); err != nil {
		// Revocation failure must not strand the user logged in.
		log.Printf("platform deauthorize failed for %s/%s: %v", user.Platform, user.ID, err)
	}
	if err := db.DeleteUser(s.db, user.ID, user.Platform); err != nil {
		writeError(w, fmt.Errorf("deleting user: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"successful": true})
}

func (s *Server) handleFindContact(w http.ResponseWriter, r *http.Request) {
	_, adapter, session, err := s.requireUser(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	q := r.URL.Query()
	phoneNumber := q.Get("phoneNumber")
	if phoneNumber == "" {
		writeBadRequest(w, "phoneNumber is required")
		return
	}

	resolution, err := core.ResolveContact(r.Context(), adapter, session,
		phoneNumber, q.Get("overridingFormat"), q.Get("isExtension") == "true")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"successful": true,
		"resolution": resolution,
	})
}

func (s *Server) handleCreateContact(w http.ResponseWriter, r *http.Request) {
	_, adapter, session, err := s.requireUser(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var body struct {
		PhoneNumber string `json:"phoneNumber"`
		NewName     string `json:"newContactName"`
		NewType     string `json:"newContactType"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if body.PhoneNumber == "" || body.NewName == "" {
		writeBadRequest(w, "phoneNumber and newContactName are required")
		return
	}

	contact, err := core.CreateContact(r.Context(), adapter, session, body.PhoneNumber, body.NewName, body.NewType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"successful": true,
		"contact":    contact,
	})
}

func (s *Server) handleCreateCallLog(w http.ResponseWriter, r *http.Request) {
	_, adapter, session, err := s.requireUser(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var body struct {
		Contact models.ContactCandidate `json:"contact"`
		Call    models.CallEvent        `json:"call"`
		Note    string                  `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if body.Call.ID == "" {
		writeBadRequest(w, "call.id is required")
		return
	}

	record, created, err := s.engine.LogCall(r.Context(), adapter, session, body.Contact, body.Call, body.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"successful": true,
		"logId":      record.ThirdPartyLogID,
		"created":    created,
	})
}

func (s *Server) handleUpdateCallLog(w http.ResponseWriter, r *http.Request) {
	_, adapter, session, err := s.requireUser(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var body struct {
		SessionID     string `json:"sessionId"`
		Subject       string `json:"subject"`
		Note          string `json:"note"`
		RecordingLink string `json:"recordingLink"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if body.SessionID == "" {
		writeBadRequest(w, "sessionId is required")
		return
	}

	updatedBody, err := s.engine.UpdateCall(r.Context(), adapter, session, body.SessionID, adapters.CallLogPatch{
		Subject:       body.Subject,
		Note:          body.Note,
		RecordingLink: body.RecordingLink,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"successful":  true,
		"updatedNote": updatedBody,
	})
}

func (s *Server) handleGetCallLog(w http.ResponseWriter, r *http.Request) {
	_, adapter, session, err := s.requireUser(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeBadRequest(w, "sessionId is required")
		return
	}

	details, err := s.engine.GetCall(r.Context(), adapter, session, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"successful": true,
		"logs":       details,
	})
}

func (s *Server) handleCreateMessageLog(w http.ResponseWriter, r *http.Request) {
	user, adapter, session, err := s.requireUser(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	var body struct {
		Contact  models.ContactCandidate `json:"contact"`
		Messages []models.MessageEvent   `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if len(body.Messages) == 0 {
		writeBadRequest(w, "messages are required")
		return
	}

	records, err := s.engine.LogMessages(r.Context(), adapter, session, user.TimezoneOffset, body.Contact, body.Messages)
	if err != nil {
		writeError(w, err)
		return
	}

	logIDs := make([]string, 0, len(records))
	for _, record := range records {
		logIDs = append(logIDs, record.ThirdPartyLogID)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"successful": true,
		"logIds":     logIDs,
	})
}
