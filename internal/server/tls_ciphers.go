package server

import (
	"crypto/tls"
	"crypto/x509"
	"os"
)

func loadCAPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, os.ErrInvalid
	}
	return pool, nil
}

var cipherSuiteNames = map[string]uint16{
	"TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256": tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256":   tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	"TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384": tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	"TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384":   tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	"TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305":  tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	"TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305":    tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
	"TLS_AES_128_GCM_SHA256":                  tls.TLS_AES_128_GCM_SHA256,
	"TLS_AES_256_GCM_SHA384":                  tls.TLS_AES_256_GCM_SHA384,
	"TLS_CHACHA20_POLY1305_SHA256":             tls.TLS_CHACHA20_POLY1305_SHA256,
}

// resolveCipherSuites maps configured cipher suite names to their
// crypto/tls constants, skipping (not failing on) any name it doesn't
// recognize. ok is false if names is empty, letting the caller leave
// tls.Config.CipherSuites at its (TLS 1.3-aware) default.
func resolveCipherSuites(names []string) ([]uint16, bool) {
	if len(names) == 0 {
		return nil, false
	}
	suites := make([]uint16, 0, len(names))
	for _, name := range names {
		if id, ok := cipherSuiteNames[name]; ok {
			suites = append(suites, id)
		}
	}
	if len(suites) == 0 {
		return nil, false
	}
	return suites, true
}
