package fastpath

import (
	"regexp"
	"strings"
)

var (
	hex32Re    = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)
	dashedRe   = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	anyUUIDRe  = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}|[0-9a-fA-F]{32}`)
)

// NormalizeID accepts a 32-hex-char or canonical 8-4-4-4-12 dashed UUID
// and returns its lowercase dashed form. Anything else is rejected with
// ok=false.
func NormalizeID(raw string) (id string, ok bool) {
	s := strings.TrimSpace(raw)
	lower := strings.ToLower(s)

	switch {
	case hex32Re.MatchString(s):
		return dashify(lower), true
	case dashedRe.MatchString(s):
		return lower, true
	default:
		return "", false
	}
}

func dashify(hex32 string) string {
	return hex32[0:8] + "-" + hex32[8:12] + "-" + hex32[12:16] + "-" + hex32[16:20] + "-" + hex32[20:32]
}

// StripDashes removes dashes, used for building Notion page URLs.
func StripDashes(id string) string {
	return strings.ReplaceAll(id, "-", "")
}

// ExtractUUID returns the first 32-hex or 8-4-4-4-12 UUID-shaped substring
// found in s, or s unchanged if none is found.
func ExtractUUID(s string) string {
	if m := anyUUIDRe.FindString(s); m != "" {
		return m
	}
	return s
}

// sqlEscapeLiteral is a defense-in-depth guard for SQL string
// interpolation: the ID must already have passed NormalizeID, but we
// additionally double any single quote before it ever reaches a literal.
func sqlEscapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
