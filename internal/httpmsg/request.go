package httpmsg

// MaxBodySize is the hard cap on a parsed request body, per spec.
const MaxBodySize = 10 * 1024 * 1024 // 10 MiB

// Request is the parsed form of one HTTP/1.1 message. Field names mirror
// the teacher's core/http/request.go, generalized to a header map instead
// of a fixed set of predefined fields since this codec must accept and
// preserve arbitrary headers for middleware and handlers to inspect.
type Request struct {
	Method      Method
	Path        string // raw path as received, never percent-decoded
	Version     string
	Headers     Header
	QueryParams map[string]string
	Body        []byte
	Valid       bool
}

// Get performs a case-insensitive header lookup. R.Get(N) == R.Get(strings.ToLower(N))
// for any header name N, per the Testable Properties section.
func (r *Request) Get(name string) string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers.Get(name)
}

// KeepAlive reports whether the connection should remain open after this
// request's response is written, per HTTP/1.1's default-keep-alive rule.
func (r *Request) KeepAlive() bool {
	conn := r.Get("Connection")
	switch {
	case containsToken(conn, "close"):
		return false
	case containsToken(conn, "keep-alive"):
		return true
	default:
		return r.Version == "HTTP/1.1"
	}
}

func containsToken(header, token string) bool {
	start := 0
	for start <= len(header) {
		end := start
		for end < len(header) && header[end] != ',' {
			end++
		}
		if eqFoldTrim(header[start:end], token) {
			return true
		}
		start = end + 1
	}
	return false
}

func eqFoldTrim(s, token string) bool {
	s = trimOWS(s)
	if len(s) != len(token) {
		return false
	}
	for i := 0; i < len(s); i++ {
		a, b := s[i], token[i]
		if a >= 'A' && a <= 'Z' {
			a += 'a' - 'A'
		}
		if b >= 'A' && b <= 'Z' {
			b += 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}
