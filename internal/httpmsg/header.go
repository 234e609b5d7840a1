package httpmsg

import "strings"

// Header is a case-insensitive multi-map of HTTP header fields. Keys are
// stored lowercased internally; duplicate values for the same header are
// combined with ", " at insertion time, matching RFC 7230 §3.2.2.
type Header map[string]string

// Set stores value under the lowercased key, combining with any existing
// value per RFC 7230's list-header rule.
func (h Header) Set(key, value string) {
	lk := strings.ToLower(key)
	if existing, ok := h[lk]; ok {
		h[lk] = existing + ", " + value
	} else {
		h[lk] = value
	}
}

// Get performs a case-insensitive lookup. Looking up "Content-Type" and
// "content-type" on the same Header always yields the same result.
func (h Header) Get(key string) string {
	return h[strings.ToLower(key)]
}

// Has reports whether key is present, case-insensitively.
func (h Header) Has(key string) bool {
	_, ok := h[strings.ToLower(key)]
	return ok
}

// isTokenChar reports whether b is legal in an RFC 7230 "token" (used for
// header field names): visible ASCII minus the defined separators.
func isTokenChar(b byte) bool {
	switch b {
	case '(', ')', '<', '>', '@', ',', ';', ':', '\\', '"', '/', '[', ']', '?', '=', '{', '}', ' ', '\t':
		return false
	}
	return b > 0x20 && b < 0x7f
}

// validHeaderName reports whether name is a legal RFC 7230 token and
// therefore safe to use as a header field name.
func validHeaderName(name string) bool {
	if len(name) == 0 {
		return false
	}
	for i := 0; i < len(name); i++ {
		if !isTokenChar(name[i]) {
			return false
		}
	}
	return true
}

// validHeaderValue rejects CR, LF, and C0 control characters other than
// HTAB; SPACE is allowed anywhere in the value.
func validHeaderValue(value string) bool {
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c == '\r' || c == '\n' {
			return false
		}
		if c < 0x20 && c != '\t' {
			return false
		}
	}
	return true
}

// CanonicalHeaderName renders name in Dash-Title casing: uppercase the
// first letter of the string and the letter following every '-', lowercase
// everything else. Mirrors the shape of net/http's CanonicalMIMEHeaderKey
// without importing net/http.
func CanonicalHeaderName(name string) string {
	out := make([]byte, len(name))
	upperNext := true
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case upperNext && c >= 'a' && c <= 'z':
			out[i] = c - ('a' - 'A')
		case !upperNext && c >= 'A' && c <= 'Z':
			out[i] = c + ('a' - 'A')
		default:
			out[i] = c
		}
		upperNext = c == '-'
	}
	return string(out)
}

// trimOWS trims leading/trailing HTAB and SPACE, the "optional whitespace"
// RFC 7230 allows around header field values.
func trimOWS(s string) string {
	return strings.Trim(s, " \t")
}
