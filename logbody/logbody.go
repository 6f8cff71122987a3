// ABOUTME: Encode/decode pair for structured fields carried in CRM free-text bodies
// ABOUTME: Implements the Note/recording-link grammar and the day-bucketed conversation transcript
package logbody

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/QV-Systems/rc-unified-crm-extension/crmerr"
)

// Sentinel is appended to every body the core writes. Parsing scans up to
// it to delimit core-owned content from platform or user content.
const Sentinel = "\n\n--- Created via RingCentral CRM Extension"

const (
	notePrefix          = "Note: "
	recordingLinkMarker = "\n[Call recording link]"
	transcriptBegin     = "BEGIN\n------------\n"
	transcriptDivider   = "------------\n"
	transcriptEnd       = "END"
)

var conversationCountRe = regexp.MustCompile(`Conversation\((\d+) messages\)`)

// sanitize strips the sentinel from user-supplied text so a note can never
// forge the body delimiter.
func sanitize(text string) string {
	return strings.ReplaceAll(text, Sentinel, "")
}

// BuildCallBody encodes a call's structured fields into the free-text
// grammar. The recording link segment is omitted when the link is empty.
func BuildCallBody(contactNumber, callResult, note, recordingLink string) string {
	var b strings.Builder
	b.WriteString("\nContact Number: ")
	b.WriteString(contactNumber)
	b.WriteString("\nCall Result: ")
	b.WriteString(callResult)
	b.WriteString("\n")
	b.WriteString(notePrefix)
	b.WriteString(sanitize(note))
	if recordingLink != "" {
		b.WriteString(recordingLinkMarker)
		b.WriteString(recordingLink)
	}
	b.WriteString(Sentinel)
	return b.String()
}

// ParseCallNote recovers the note from a body produced by BuildCallBody.
// The note sits between "Note: " and either the recording link marker or
// the sentinel, whichever comes first.
func ParseCallNote(body string) (string, error) {
	start := strings.Index(body, notePrefix)
	if start < 0 {
		return "", crmerr.Parse("call log body has no note segment")
	}
	rest := body[start+len(notePrefix):]

	if end := strings.Index(rest, recordingLinkMarker); end >= 0 {
		return rest[:end], nil
	}
	if end := strings.Index(rest, Sentinel); end >= 0 {
		return rest[:end], nil
	}
	return "", crmerr.Parse("call log body has no terminating marker")
}

// ReplaceCallNote swaps the note segment for newNote, leaving the rest of
// the body untouched. The body must parse first; nothing is written over
// an unrecognized body.
func ReplaceCallNote(body, newNote string) (string, error) {
	oldNote, err := ParseCallNote(body)
	if err != nil {
		return "", err
	}
	return strings.Replace(body, notePrefix+oldNote, notePrefix+sanitize(newNote), 1), nil
}

// InsertRecordingLink adds the recording link segment ahead of the
// sentinel, keeping the sentinel last. Bodies without a sentinel get the
// segment appended.
func InsertRecordingLink(body, link string) string {
	segment := recordingLinkMarker + link
	if strings.Contains(body, Sentinel) {
		return strings.Replace(body, Sentinel, segment+Sentinel, 1)
	}
	return body + segment
}

// FormatMessageEntry renders one transcript line pair: sender label and
// local time, then the message text.
func FormatMessageEntry(senderLabel string, at time.Time, text string) string {
	return fmt.Sprintf("%s %s\n%s\n", senderLabel, at.Format("03:04 PM"), sanitize(text))
}

// BuildConversationBody encodes a fresh single-message conversation
// bucket: summary header, participants, the Conversation(1 messages)
// counter and a BEGIN/END transcript block.
func BuildConversationBody(date string, participants []string, entry string) string {
	var b strings.Builder
	b.WriteString("\nConversation summary\n")
	b.WriteString(date)
	b.WriteString("\nParticipants\n")
	for _, p := range participants {
		b.WriteString("    ")
		b.WriteString(p)
		b.WriteString("\n")
	}
	b.WriteString("\nConversation(1 messages)\n")
	b.WriteString(transcriptBegin)
	b.WriteString(entry)
	b.WriteString(transcriptDivider)
	b.WriteString(transcriptEnd)
	b.WriteString(Sentinel)
	return b.String()
}

// ConversationCount extracts N from the "Conversation(N messages)" header.
func ConversationCount(body string) (int, error) {
	m := conversationCountRe.FindStringSubmatch(body)
	if m == nil {
		return 0, crmerr.Parse("conversation body has no message counter")
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, crmerr.Parse("conversation counter is not a number").Wrap(err)
	}
	return n, nil
}

// AppendConversationEntry inserts a transcript entry immediately after the
// BEGIN marker (newest first) and increments the message counter by one.
// The body must carry both the marker and the counter or nothing changes.
func AppendConversationEntry(body, entry string) (string, error) {
	count, err := ConversationCount(body)
	if err != nil {
		return "", err
	}
	idx := strings.Index(body, transcriptBegin)
	if idx < 0 {
		return "", crmerr.Parse("conversation body has no transcript block")
	}

	insertAt := idx + len(transcriptBegin)
	updated := body[:insertAt] + entry + "\n" + body[insertAt:]
	counter := conversationCountRe.FindString(updated)
	updated = strings.Replace(updated, counter, fmt.Sprintf("Conversation(%d messages)", count+1), 1)
	return updated, nil
}
