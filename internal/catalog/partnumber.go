package catalog

import (
	"regexp"
	"strings"
)

// partNumberPattern matches catalog part numbers embedded in free text:
// an alphanumeric code with an internal dash and an optional revision
// suffix, e.g. "763A00-11330C00/A". The code must mix letters and digits
// so that plain words with dashes ("on-off") do not match.
var partNumberPattern = regexp.MustCompile(`\b[0-9A-Za-z]{5,}-[0-9A-Za-z]{5,}(?:/[0-9A-Za-z]{1,3})?\b`)

// Normalize canonicalizes a part number for lookup: trims surrounding
// whitespace, uppercases, and strips internal whitespace variants so that
// "763a00 - 11330c00/a" and "763A00-11330C00/A" resolve identically.
func Normalize(partNumber string) string {
	s := strings.TrimSpace(partNumber)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == ' ' || r == '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}

// FindPartNumber scans a message for the first token that looks like a
// catalog part number and returns it normalized. The boolean reports
// whether anything matched.
func FindPartNumber(message string) (string, bool) {
	for _, candidate := range partNumberPattern.FindAllString(message, -1) {
		if looksLikeCode(candidate) {
			return Normalize(candidate), true
		}
	}
	return "", false
}

// looksLikeCode reports whether every dash-separated segment of s contains
// a digit, filtering out dash-joined words ("on-off", "IP67-rated") and
// leaving real codes ("763A00-11330C00") in.
func looksLikeCode(s string) bool {
	// Revision suffix ("/A") is exempt from the digit requirement.
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	for _, seg := range strings.Split(s, "-") {
		if !strings.ContainsAny(seg, "0123456789") {
			return false
		}
	}
	return true
}
