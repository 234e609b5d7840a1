package httpmsg

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
)

// ErrKind tags why Parse could not produce a Request, mirroring the
// tagged-result redesign Design Notes calls for in place of the original's
// exception-based error flow.
type ErrKind int

const (
	NeedMore ErrKind = iota
	Malformed
	TooLarge
	InvalidVersion
)

// ParseError is the error type Parse returns; Kind drives the HTTP status
// the Connection maps it to (see §7's error taxonomy table).
type ParseError struct {
	Kind ErrKind
	Msg  string
}

func (e *ParseError) Error() string { return e.Msg }

func newErr(kind ErrKind, msg string) error {
	return &ParseError{Kind: kind, Msg: msg}
}

// KindOf extracts the ErrKind from err, defaulting to Malformed for any
// non-ParseError (should not happen for errors this package returns).
func KindOf(err error) ErrKind {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return Malformed
}

var errNeedMoreHeaders = newErr(NeedMore, "header terminator not found")

// Parse consumes data (the bytes read so far for one message) and returns
// either a fully parsed Request or a tagged ParseError. It never panics and
// never mutates data's backing array.
func Parse(data []byte) (*Request, int, error) {
	headerEnd, termLen := findHeaderTerminator(data)
	if headerEnd < 0 {
		if len(data) > MaxBodySize {
			return nil, 0, newErr(TooLarge, "headers exceed cap before terminator found")
		}
		return nil, 0, errNeedMoreHeaders
	}

	// With no header lines, the request line's own line ending is the first
	// half of the header terminator, so lineEnd may lie just past headerEnd.
	lineEnd := bytes.IndexByte(data, '\n')
	if lineEnd < 0 || lineEnd >= headerEnd+termLen {
		return nil, 0, newErr(Malformed, "missing request line terminator")
	}
	line := data[:lineEnd]
	line = bytes.TrimSuffix(line, []byte("\r"))

	req, err := parseRequestLine(line)
	if err != nil {
		return nil, 0, err
	}

	if lineEnd+1 < headerEnd {
		parseHeaderLines(req, data[lineEnd+1:headerEnd])
	}

	bodyStart := headerEnd + termLen
	rest := data[bodyStart:]

	if chunked := req.Get("Transfer-Encoding"); containsToken(chunked, "chunked") {
		body, consumed, err := decodeChunked(rest)
		if err != nil {
			return nil, 0, err
		}
		if len(body) > MaxBodySize {
			return nil, 0, newErr(TooLarge, "chunked body exceeds cap")
		}
		req.Body = body
		return req, bodyStart + consumed, nil
	}

	if cl := req.Get("Content-Length"); cl != "" {
		n, err := strconv.Atoi(strings.TrimSpace(cl))
		if err != nil || n < 0 {
			return nil, 0, newErr(Malformed, "invalid Content-Length")
		}
		if n > MaxBodySize {
			return nil, 0, newErr(TooLarge, "Content-Length exceeds cap")
		}
		if len(rest) < n {
			return nil, 0, newErr(NeedMore, "body incomplete")
		}
		req.Body = append([]byte(nil), rest[:n]...)
		return req, bodyStart + n, nil
	}

	return req, bodyStart, nil
}

// findHeaderTerminator returns the index where the header block ends and
// the length of the terminator sequence found ("\r\n\r\n" preferred,
// "\n\n" tolerated), or (-1, 0) if neither is present yet.
func findHeaderTerminator(data []byte) (int, int) {
	if i := bytes.Index(data, []byte("\r\n\r\n")); i >= 0 {
		return i, 4
	}
	if i := bytes.Index(data, []byte("\n\n")); i >= 0 {
		return i, 2
	}
	return -1, 0
}

func parseRequestLine(line []byte) (*Request, error) {
	parts := bytes.SplitN(line, []byte(" "), 3)
	if len(parts) != 3 {
		return nil, newErr(Malformed, "malformed request line")
	}

	version := string(parts[2])
	if version != "HTTP/1.0" && version != "HTTP/1.1" {
		return nil, newErr(InvalidVersion, "unsupported HTTP version: "+version)
	}

	target := string(parts[1])
	path := target
	query := map[string]string{}
	if idx := strings.IndexByte(target, '?'); idx >= 0 {
		path = target[:idx]
		parseQueryString(target[idx+1:], query)
	}

	method := parseMethod(string(parts[0]))
	req := &Request{
		Method:      method,
		Path:        path,
		Version:     version,
		Headers:     Header{},
		QueryParams: query,
	}
	req.Valid = method != MethodUnknown && path != "" && req.Version != ""
	return req, nil
}

func parseQueryString(raw string, out map[string]string) {
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		if idx := strings.IndexByte(pair, '='); idx >= 0 {
			out[pair[:idx]] = pair[idx+1:]
		} else {
			out[pair] = ""
		}
	}
}

// parseHeaderLines parses each CRLF- or LF-separated header line, dropping
// (not failing on) any line whose name or value is invalid, per §3's
// invariant: "A request whose parse encounters any invalid name/value
// drops that header silently but still yields a valid request".
func parseHeaderLines(req *Request, block []byte) {
	for _, rawLine := range bytes.Split(block, []byte("\n")) {
		line := bytes.TrimSuffix(rawLine, []byte("\r"))
		if len(line) == 0 {
			continue
		}
		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			continue
		}
		name := string(bytes.Trim(line[:colon], " \t"))
		value := string(bytes.Trim(line[colon+1:], " \t"))
		if !validHeaderName(name) || !validHeaderValue(value) {
			continue
		}
		req.Headers.Set(name, value)
	}
}

// IsComplete reports whether data contains a fully framed request: the
// header terminator plus either the chunked terminator or enough body
// bytes for the declared Content-Length. The Connection calls this after
// every read to decide whether to stop reading and dispatch.
func IsComplete(data []byte) bool {
	headerEnd, termLen := findHeaderTerminator(data)
	if headerEnd < 0 {
		return false
	}

	lineEnd := bytes.IndexByte(data, '\n')
	if lineEnd < 0 {
		return false
	}
	line := bytes.TrimSuffix(data[:lineEnd], []byte("\r"))
	req, err := parseRequestLine(line)
	if err != nil {
		// A malformed request line is "complete" in the sense that no
		// amount of further reading will fix it; the caller re-parses
		// and gets the same Malformed error.
		return true
	}
	if lineEnd+1 < headerEnd {
		parseHeaderLines(req, data[lineEnd+1:headerEnd])
	}

	bodyStart := headerEnd + termLen
	rest := data[bodyStart:]

	if te := req.Get("Transfer-Encoding"); containsToken(te, "chunked") {
		// The common case is a terminator preceded by some data chunk's
		// trailing CRLF, matched by the Contains/HasSuffix pair below. A
		// chunked body that is nothing but the zero-length terminator chunk
		// has no such preceding CRLF to anchor on, so it needs its own
		// prefix check against rest.
		return bytes.Contains(rest, []byte("\r\n0\r\n\r\n")) ||
			bytes.HasSuffix(rest, []byte("\n0\n\n")) ||
			bytes.HasPrefix(rest, []byte("0\r\n\r\n")) ||
			bytes.HasPrefix(rest, []byte("0\n\n"))
	}

	if cl := req.Get("Content-Length"); cl != "" {
		n, err := strconv.Atoi(strings.TrimSpace(cl))
		if err != nil || n < 0 {
			return true
		}
		return len(rest) >= n
	}

	return true
}
