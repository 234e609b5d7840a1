package ratelimit

import (
	"strings"

	"github.com/wireserv/wireserv/internal/httpmsg"
)

// ByIP extracts X-Forwarded-For's first hop, falling back to X-Real-IP and
// finally the connection's peer address, matching
// RateLimitKeyExtractors::by_ip_address.
func ByIP(req *httpmsg.Request, peerAddr string) string {
	if fwd := req.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		if ip := strings.TrimSpace(fwd); ip != "" {
			return ip
		}
	}
	if real := strings.TrimSpace(req.Get("X-Real-IP")); real != "" {
		return real
	}
	return stripPort(peerAddr)
}

// ByAPIKey extracts the X-API-Key header, falling back to an api_key query
// parameter, and finally to ByIP, matching
// RateLimitKeyExtractors::by_api_key.
func ByAPIKey(req *httpmsg.Request, peerAddr string) string {
	if key := req.Get("X-API-Key"); key != "" {
		return "key:" + key
	}
	if req.QueryParams != nil {
		if key := req.QueryParams["api_key"]; key != "" {
			return "key:" + key
		}
	}
	return ByIP(req, peerAddr)
}

// ByEndpoint extracts the request path, matching
// RateLimitKeyExtractors::by_endpoint. Combine with another extractor via
// CombineKeys to get a per-client-per-endpoint bucket.
func ByEndpoint(req *httpmsg.Request, peerAddr string) string {
	return "path:" + req.Path
}

// ByUser keys on the raw Bearer token from the Authorization header (the
// token is not decoded), falling back to ByIP, matching
// RateLimitKeyExtractors::by_user_id.
func ByUser(req *httpmsg.Request, peerAddr string) string {
	auth := req.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		token := strings.TrimSpace(auth[len(prefix):])
		if token != "" {
			return "user:" + token
		}
	}
	return ByIP(req, peerAddr)
}

// ByIPAndUserAgent combines the peer IP and User-Agent header into one key,
// matching RateLimitKeyExtractors::by_ip_and_user_agent — useful for
// distinguishing clients behind a shared NAT gateway.
func ByIPAndUserAgent(req *httpmsg.Request, peerAddr string) string {
	return ByIP(req, peerAddr) + "|" + req.Get("User-Agent")
}

// CombineKeys builds a KeyFunc that joins the results of several
// extractors with "|", e.g. CombineKeys(ByIP, ByEndpoint) for a
// per-client-per-route bucket.
func CombineKeys(fns ...KeyFunc) KeyFunc {
	return func(req *httpmsg.Request, peerAddr string) string {
		parts := make([]string, len(fns))
		for i, fn := range fns {
			parts[i] = fn(req, peerAddr)
		}
		return strings.Join(parts, "|")
	}
}

func stripPort(addr string) string {
	if i := strings.LastIndexByte(addr, ':'); i >= 0 && !strings.Contains(addr[i+1:], ":") {
		return addr[:i]
	}
	return addr
}
