package server

import (
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestSetupTLSSelfSigned(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")
	res, err := SetupTLS(TLSConf{Enabled: true, CertDir: dir})
	if err != nil {
		t.Fatalf("SetupTLS: %v", err)
	}
	if res.AutocertMgr != nil {
		t.Error("self-signed setup returned an autocert manager")
	}
	if len(res.Config.Certificates) != 1 {
		t.Fatalf("got %d certificates", len(res.Config.Certificates))
	}
	first, err := os.ReadFile(filepath.Join(dir, "self-signed.crt"))
	if err != nil {
		t.Fatal(err)
	}

	// A second call reuses the pair on disk.
	if _, err := SetupTLS(TLSConf{Enabled: true, CertDir: dir}); err != nil {
		t.Fatalf("SetupTLS again: %v", err)
	}
	second, _ := os.ReadFile(filepath.Join(dir, "self-signed.crt"))
	if string(first) != string(second) {
		t.Error("self-signed certificate was regenerated")
	}
}

func TestSetupTLSCertFiles(t *testing.T) {
	certPEM, keyPEM, err := generateSelfSigned()
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	certFile := filepath.Join(dir, "web.crt")
	keyFile := filepath.Join(dir, "web.key")
	os.WriteFile(certFile, certPEM, 0644)
	os.WriteFile(keyFile, keyPEM, 0600)

	res, err := SetupTLS(TLSConf{CertFile: certFile, KeyFile: keyFile})
	if err != nil {
		t.Fatalf("SetupTLS: %v", err)
	}
	if len(res.Config.Certificates) != 1 {
		t.Fatalf("got %d certificates", len(res.Config.Certificates))
	}

	if _, err := SetupTLS(TLSConf{CertFile: filepath.Join(dir, "missing.crt"), KeyFile: keyFile}); err == nil {
		t.Error("SetupTLS accepted a missing certificate")
	}
}

func TestWebServerTLS(t *testing.T) {
	res, err := SetupTLS(TLSConf{CertDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	ws := NewWebServer(newTestServer(t), WebConfig{TLS: res.Config})

	ts := httptest.NewUnstartedServer(ws.Handler())
	ts.TLS = res.Config
	ts.StartTLS()
	defer ts.Close()

	leaf, err := x509.ParseCertificate(res.Config.Certificates[0].Certificate[0])
	if err != nil {
		t.Fatal(err)
	}
	pool := x509.NewCertPool()
	pool.AddCert(leaf)
	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig: &tls.Config{RootCAs: pool, ServerName: "localhost"},
	}}

	resp, err := client.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health over TLS: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}
