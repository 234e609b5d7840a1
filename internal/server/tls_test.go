package server

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeSelfSignedCert generates a throwaway ECDSA self-signed certificate
// and key, writing both as PEM files under dir, for exercising Build
// without depending on any fixture checked into the repository.
func writeSelfSignedCert(t *testing.T, dir string) (certPath, keyPath string) {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("CreateCertificate failed: %v", err)
	}

	certPath = filepath.Join(dir, "cert.pem")
	keyPath = filepath.Join(dir, "key.pem")

	certOut, err := os.Create(certPath)
	if err != nil {
		t.Fatalf("creating cert file: %v", err)
	}
	defer certOut.Close()
	if err := pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: der}); err != nil {
		t.Fatalf("encoding cert PEM: %v", err)
	}

	keyBytes, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		t.Fatalf("marshaling private key: %v", err)
	}
	keyOut, err := os.Create(keyPath)
	if err != nil {
		t.Fatalf("creating key file: %v", err)
	}
	defer keyOut.Close()
	if err := pem.Encode(keyOut, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes}); err != nil {
		t.Fatalf("encoding key PEM: %v", err)
	}
	return certPath, keyPath
}

func TestBuildSucceedsWithoutClientVerification(t *testing.T) {
	dir := t.TempDir()
	cert, key := writeSelfSignedCert(t, dir)

	tc, err := Build(TLSConfig{CertFile: cert, KeyFile: key})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if len(tc.Certificates) != 1 {
		t.Errorf("Certificates = %d, want 1", len(tc.Certificates))
	}
}

func TestBuildVerifyClientWithoutCAFileIsAnError(t *testing.T) {
	dir := t.TempDir()
	cert, key := writeSelfSignedCert(t, dir)

	_, err := Build(TLSConfig{CertFile: cert, KeyFile: key, VerifyClient: true})
	if err == nil {
		t.Error("expected an error when ssl_verify_client is set without ssl_ca_file")
	}
}

func TestBuildWithCipherSuites(t *testing.T) {
	dir := t.TempDir()
	cert, key := writeSelfSignedCert(t, dir)

	tc, err := Build(TLSConfig{
		CertFile:     cert,
		KeyFile:      key,
		CipherSuites: []string{"TLS_AES_128_GCM_SHA256", "not_a_real_suite"},
	})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if len(tc.CipherSuites) != 1 {
		t.Errorf("CipherSuites = %v, want exactly the one recognized suite", tc.CipherSuites)
	}
}

func TestBuildMissingCertFileIsAnError(t *testing.T) {
	_, err := Build(TLSConfig{CertFile: "/no/such/cert.pem", KeyFile: "/no/such/key.pem"})
	if err == nil {
		t.Error("expected an error for a missing certificate file")
	}
}

func TestResolveCipherSuitesEmptyInputLeavesDefault(t *testing.T) {
	_, ok := resolveCipherSuites(nil)
	if ok {
		t.Error("resolveCipherSuites(nil) should report ok=false")
	}
}
