package httpmsg

import (
	"bytes"
	"strconv"
)

// decodeChunked decodes a chunked-transfer body starting at the beginning
// of data. It returns the assembled body, the number of bytes of data
// consumed through (and including) the terminating "0\r\n\r\n", or a
// NeedMore error if the terminator has not arrived yet. Trailer headers
// after the zero chunk are consumed but never exposed to handlers, per
// the Non-goals section.
func decodeChunked(data []byte) ([]byte, int, error) {
	var body []byte
	pos := 0

	for {
		lineEnd := bytes.IndexByte(data[pos:], '\n')
		if lineEnd < 0 {
			return nil, 0, newErr(NeedMore, "chunk size line incomplete")
		}
		lineEnd += pos

		sizeLine := bytes.TrimSuffix(data[pos:lineEnd], []byte("\r"))
		if idx := bytes.IndexByte(sizeLine, ';'); idx >= 0 {
			sizeLine = sizeLine[:idx] // chunk extensions are ignored
		}
		size, err := strconv.ParseInt(string(bytes.TrimSpace(sizeLine)), 16, 64)
		if err != nil || size < 0 {
			return nil, 0, newErr(Malformed, "invalid chunk size")
		}

		chunkStart := lineEnd + 1
		if size == 0 {
			// Terminal chunk: consume any trailer header lines (discarded)
			// through the blank line that ends the trailer section, not
			// just the first CRLF, which would land mid-trailer when more
			// than one trailer header is present.
			trailerPos := chunkStart
			for {
				trailerLineEnd := bytes.IndexByte(data[trailerPos:], '\n')
				if trailerLineEnd < 0 {
					return nil, 0, newErr(NeedMore, "chunked terminator incomplete")
				}
				trailerLineEnd += trailerPos
				line := bytes.TrimSuffix(data[trailerPos:trailerLineEnd], []byte("\r"))
				trailerPos = trailerLineEnd + 1
				if len(line) == 0 {
					return body, trailerPos, nil
				}
			}
		}

		chunkEnd := chunkStart + int(size)
		if chunkEnd+2 > len(data) {
			return nil, 0, newErr(NeedMore, "chunk data incomplete")
		}
		if data[chunkEnd] != '\r' || data[chunkEnd+1] != '\n' {
			return nil, 0, newErr(Malformed, "chunk not terminated by CRLF")
		}

		body = append(body, data[chunkStart:chunkEnd]...)
		pos = chunkEnd + 2
	}
}
