// ABOUTME: Phone number normalizer producing platform-specific query candidates
// ABOUTME: Expands wildcard templates over significant digits and extension variants
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Candidates turns a raw dialed/received number into the ordered,
// de-duplicated list of strings to query against a CRM.
//
// With no overriding format the raw number is returned with its first
// space replaced by a leading "+". With a format (comma-separated
// templates, "*" per significant digit) each template yields one
// candidate; templates needing more digits than available are skipped,
// and digits left over after the last wildcard are appended. Extension
// lookups skip template expansion and add a local-dialing variant for
// numbers starting with "44".
func Candidates(raw, overridingFormat string, isExtension bool) []string {
	if isExtension {
		return extensionCandidates(raw)
	}

	normalized := strings.Replace(raw, " ", "+", 1)
	if overridingFormat == "" {
		return []string{normalized}
	}

	parsed, err := phonenumbers.Parse(normalized, "")
	if err != nil || !phonenumbers.IsValidNumber(parsed) {
		return nil
	}
	digits := phonenumbers.GetNationalSignificantNumber(parsed)

	var out []string
	for _, template := range strings.Split(overridingFormat, ",") {
		template = strings.TrimSpace(template)
		if template == "" {
			continue
		}
		candidate, ok := fillTemplate(template, digits)
		if ok {
			out = append(out, candidate)
		}
	}
	return dedupe(out)
}

// fillTemplate substitutes wildcards left-to-right with significant
// digits. Leftover digits are appended so a bare prefix template like
// "0*" still captures the full local number. A template with more
// wildcards than digits is unsatisfiable.
func fillTemplate(template, digits string) (string, bool) {
	if strings.Count(template, "*") > len(digits) {
		return "", false
	}

	var b strings.Builder
	next := 0
	for _, ch := range template {
		if ch == '*' {
			b.WriteByte(digits[next])
			next++
		} else {
			b.WriteRune(ch)
		}
	}
	if next < len(digits) {
		b.WriteString(digits[next:])
	}
	return b.String(), true
}

// extensionCandidates queries the number as-is, plus a variant with the
// leading "44" country segment replaced by "0" to cover contacts stored
// in local-dialing form.
func extensionCandidates(raw string) []string {
	number := strings.ReplaceAll(raw, " ", "")
	out := []string{number}
	if strings.HasPrefix(number, "44") {
		out = append(out, "0"+number[2:])
	}
	return dedupe(out)
}

func dedupe(candidates []string) []string {
	seen := make(map[string]bool, len(candidates))
	var out []string
	for _, c := range candidates {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
