package httpmsg

import (
	"strconv"
	"strings"
	"time"
)

// BodyStream is a restartable byte source, used for file responses so the
// Connection can stream a response body without loading the whole file
// into memory. Open must return a stream ready to read from byte 0; the
// Connection consumes it once and closes it.
type BodyStream interface {
	Open() (ReadCloser, int64, error) // returns a reader, its length, and any error
}

// ReadCloser is the minimal interface a BodyStream's Open must satisfy;
// kept local (instead of importing io) so httpmsg has no dependency past
// the standard strings/strconv/time it already needs.
type ReadCloser interface {
	Read(p []byte) (int, error)
	Close() error
}

// Response is constructed by handlers and by the static-file path. Headers
// use canonical Dash-Title casing only at serialization time; callers may
// set them in any casing.
type Response struct {
	Status     int
	Headers    map[string]string
	Body       []byte
	BodyStream BodyStream // optional; when set, Body is ignored by the Connection
}

// NewResponse builds a Response with the default headers the teacher's
// codec sets on construction: Server, Date, and a zero Content-Length
// that SetBody/SetBodyStream then correct.
func NewResponse(status int) *Response {
	r := &Response{
		Status: status,
		Headers: map[string]string{
			"Server":         "wireserv/1.0",
			"Date":           time.Now().UTC().Format(time.RFC1123),
			"Content-Length": "0",
		},
	}
	return r
}

// SetHeader stores a response header; casing is normalized at
// serialization time, so callers may pass any casing.
func (r *Response) SetHeader(key, value string) {
	r.Headers[key] = value
}

// Get performs a case-insensitive lookup among headers set so far.
func (r *Response) Get(key string) (string, bool) {
	lk := strings.ToLower(key)
	for k, v := range r.Headers {
		if strings.ToLower(k) == lk {
			return v, true
		}
	}
	return "", false
}

// SetBody sets the response body and updates Content-Length to match, per
// §3's "on set_body Content-Length is updated" invariant.
func (r *Response) SetBody(body []byte) {
	r.Body = body
	r.BodyStream = nil
	r.Headers["Content-Length"] = strconv.Itoa(len(body))
}

// SetBodyStream installs a streamed body of the given length, clearing any
// inline Body.
func (r *Response) SetBodyStream(stream BodyStream, length int64) {
	r.Body = nil
	r.BodyStream = stream
	r.Headers["Content-Length"] = strconv.FormatInt(length, 10)
}

// SerializeHeaders renders the status line and headers (not the body) in
// canonical Dash-Title casing followed by the blank line that terminates
// the header block, exactly as §4.1 describes.
func (r *Response) SerializeHeaders() []byte {
	var b strings.Builder
	b.WriteString("HTTP/1.1 ")
	b.WriteString(strconv.Itoa(r.Status))
	b.WriteByte(' ')
	b.WriteString(StatusText(r.Status))
	b.WriteString("\r\n")

	for k, v := range r.Headers {
		b.WriteString(CanonicalHeaderName(k))
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	return []byte(b.String())
}

// Serialize renders the full response — headers plus inline body — as one
// contiguous buffer. Used for every response that does not carry a
// BodyStream; those are streamed separately by the Connection.
func (r *Response) Serialize() []byte {
	head := r.SerializeHeaders()
	out := make([]byte, 0, len(head)+len(r.Body))
	out = append(out, head...)
	out = append(out, r.Body...)
	return out
}
