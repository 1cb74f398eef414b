package store

import "strings"

var unsafeSegmentChars = []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}

// sanitizeID turns an opaque, client-chosen context id into a single
// safe filename segment: unsafe path characters become underscores,
// and any ".." becomes an underscore too. Empty or otherwise
// unusable ids collapse to the literal "empty_segment".
//
// Collisions between distinct ids that sanitize to the same segment
// are a known hazard (see the design notes); callers that need strict
// uniqueness should hash the raw id themselves before calling in.
func sanitizeID(id string) string {
	if id == "" {
		return "empty_segment"
	}
	s := id
	for _, ch := range unsafeSegmentChars {
		s = strings.ReplaceAll(s, ch, "_")
	}
	s = strings.ReplaceAll(s, "..", "_")
	if s == "" {
		return "empty_segment"
	}
	return s
}
