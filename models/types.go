// ABOUTME: Data models for the unified CRM telephony core
// ABOUTME: Defines SessionContext, ContactCandidate, call/message events and log records
package models

import (
	"time"

	"github.com/google/uuid"
)

// Platform identifies a supported CRM. The set is closed; the adapter
// registry rejects anything else.
type Platform string

const (
	PlatformPipedrive  Platform = "pipedrive"
	PlatformInsightly  Platform = "insightly"
	PlatformClio       Platform = "clio"
	PlatformAccelerate Platform = "accelerate"
)

// AuthType is the credential shape an adapter declares.
type AuthType string

const (
	AuthTypeOAuth  AuthType = "oauth"
	AuthTypeAPIKey AuthType = "apiKey"
)

// Call and message direction, as reported by the telephony client.
const (
	DirectionInbound  = "Inbound"
	DirectionOutbound = "Outbound"
)

// User is one row of the credential store. AccessToken holds the API key
// for apiKey platforms.
type User struct {
	ID             string     `json:"id"`
	Name           string     `json:"name,omitempty"`
	Platform       Platform   `json:"platform"`
	Hostname       string     `json:"hostname"`
	AuthType       AuthType   `json:"auth_type"`
	AccessToken    string     `json:"-"`
	RefreshToken   string     `json:"-"`
	TokenExpiry    *time.Time `json:"token_expiry,omitempty"`
	TimezoneOffset int        `json:"timezone_offset"`
	RCUserNumber   string     `json:"rc_user_number,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// SessionContext is the per-request credential bundle passed by value into
// every adapter call. It is built from a User row and discarded with the
// request; nothing in the core persists it.
type SessionContext struct {
	UserID       string
	Platform     Platform
	Hostname     string
	AuthType     AuthType
	AccessToken  string
	RefreshToken string
}

// SessionFromUser builds the per-request context from a credential row.
func SessionFromUser(u *User) SessionContext {
	return SessionContext{
		UserID:       u.ID,
		Platform:     u.Platform,
		Hostname:     u.Hostname,
		AuthType:     u.AuthType,
		AccessToken:  u.AccessToken,
		RefreshToken: u.RefreshToken,
	}
}

// ContactCandidate is a CRM record returned as a possible match for a
// queried phone number. AdditionalInfo is adapter-specific (matters, deal
// links) and opaque to the core beyond pass-through.
type ContactCandidate struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Title          string         `json:"title,omitempty"`
	Company        string         `json:"company,omitempty"`
	Phone          string         `json:"phone"`
	AdditionalInfo map[string]any `json:"additionalInfo,omitempty"`
}

// UserInfo is the adapter-reported identity of the connected CRM user.
type UserInfo struct {
	ID                     string         `json:"id"`
	Name                   string         `json:"name"`
	TimezoneName           string         `json:"timezoneName"`
	TimezoneOffset         int            `json:"timezoneOffset"`
	PlatformAdditionalInfo map[string]any `json:"platformAdditionalInfo,omitempty"`
}

// CallEvent is one telephony call as reported by the client. ID is the
// telephony session id and doubles as the internal log id.
type CallEvent struct {
	ID                   string         `json:"id"`
	Direction            string         `json:"direction"`
	From                 string         `json:"from"`
	To                   string         `json:"to"`
	StartTime            time.Time      `json:"startTime"`
	DurationSeconds      int            `json:"duration"`
	CustomSubject        string         `json:"customSubject,omitempty"`
	Result               string         `json:"result,omitempty"`
	RecordingLink        string         `json:"recordingLink,omitempty"`
	AdditionalSubmission map[string]any `json:"additionalSubmission,omitempty"`
}

// MessageEvent is one SMS as reported by the client.
type MessageEvent struct {
	ID                   string         `json:"id"`
	Direction            string         `json:"direction"`
	From                 string         `json:"from"`
	To                   string         `json:"to"`
	Time                 time.Time      `json:"creationTime"`
	Text                 string         `json:"subject"`
	AdditionalSubmission map[string]any `json:"additionalSubmission,omitempty"`
}

// CallLogRecord correlates one telephony call with exactly one third-party
// record. ThirdPartyLogID is assigned at creation and never changes.
type CallLogRecord struct {
	InternalLogID   string    `json:"internal_log_id"`
	UserID          string    `json:"user_id"`
	Platform        Platform  `json:"platform"`
	ThirdPartyLogID string    `json:"third_party_log_id"`
	ContactID       string    `json:"contact_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// MessageLogRecord is one conversation bucket: all messages between the
// same two participants on the same calendar day share it. EntryCount
// always equals the number of transcript lines encoded in the third-party
// body.
type MessageLogRecord struct {
	ID              uuid.UUID `json:"id"`
	UserID          string    `json:"user_id"`
	Platform        Platform  `json:"platform"`
	ConversationKey string    `json:"conversation_key"`
	BucketDate      string    `json:"bucket_date"`
	ThirdPartyLogID string    `json:"third_party_log_id"`
	EntryCount      int       `json:"entry_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
