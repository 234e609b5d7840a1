package httpmsg

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ComputeETag hashes path, size, and modTimeTicks together with xxhash —
// a real, fast, non-cryptographic hash, exactly as §4.4 asks for — and
// renders the digest as lowercase hex, quoted as a strong ETag.
func ComputeETag(path string, size int64, modTimeTicks int64) string {
	var b strings.Builder
	b.WriteString(path)
	b.WriteByte(0)
	b.WriteString(strconv.FormatInt(size, 10))
	b.WriteByte(0)
	b.WriteString(strconv.FormatInt(modTimeTicks, 10))

	sum := xxhash.Sum64String(b.String())
	return `"` + strconv.FormatUint(sum, 16) + `"`
}

// ETagMatches implements the If-None-Match matching rules from §4.4:
// "*" matches anything; each comma-separated candidate is trimmed, has
// any leading "W/" stripped, and compared by quoted string equality.
// Strong/weak symmetry and the wildcard property from §8 both hold:
// stripping W/ on both sides before comparing makes matches("X","W/X"),
// matches("W/X","X"), and matches("W/X","W/X") all true.
func ETagMatches(header, etag string) bool {
	header = strings.TrimSpace(header)
	if header == "*" {
		return true
	}
	target := stripWeak(strings.TrimSpace(etag))
	for _, candidate := range strings.Split(header, ",") {
		if stripWeak(strings.TrimSpace(candidate)) == target {
			return true
		}
	}
	return false
}

func stripWeak(s string) string {
	if strings.HasPrefix(s, "W/") {
		return s[2:]
	}
	return s
}
