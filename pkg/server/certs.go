package server

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/acme/autocert"
)

// TLSConf selects how the web server gets its certificate. Browsers served
// over https only open wss:// sockets, so web clients need one of these.
type TLSConf struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	Domain   string `yaml:"domain" toml:"domain"` // Let's Encrypt when set
	CertFile string `yaml:"cert_file" toml:"cert_file"`
	KeyFile  string `yaml:"key_file" toml:"key_file"`
	CertDir  string `yaml:"cert_dir" toml:"cert_dir"` // autocert cache and self-signed pair
}

// TLSResult holds the TLS config and optional autocert manager.
type TLSResult struct {
	Config      *tls.Config
	AutocertMgr *autocert.Manager // non-nil when using Let's Encrypt
}

// SetupTLS returns a TLS config using, in order of preference, Let's Encrypt
// for tc.Domain, the configured cert/key pair, or a self-signed certificate
// kept in tc.CertDir.
func SetupTLS(tc TLSConf) (*TLSResult, error) {
	if tc.Domain != "" {
		cacheDir := filepath.Join(tc.CertDir, "autocert-cache")
		if err := os.MkdirAll(cacheDir, 0700); err != nil {
			return nil, fmt.Errorf("tls: create autocert cache: %w", err)
		}
		log.Info().Str("domain", tc.Domain).Msg("tls: using Let's Encrypt")
		m := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(tc.Domain),
			Cache:      autocert.DirCache(cacheDir),
		}
		return &TLSResult{Config: m.TLSConfig(), AutocertMgr: m}, nil
	}

	if tc.CertFile != "" && tc.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(tc.CertFile, tc.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("tls: load %s: %w", tc.CertFile, err)
		}
		log.Info().Str("cert", tc.CertFile).Msg("tls: using configured certificate")
		return &TLSResult{Config: &tls.Config{Certificates: []tls.Certificate{cert}}}, nil
	}

	cert, err := selfSigned(tc.CertDir)
	if err != nil {
		return nil, err
	}
	return &TLSResult{Config: &tls.Config{Certificates: []tls.Certificate{cert}}}, nil
}

// selfSigned loads the self-signed pair from dir, creating it on first use.
func selfSigned(dir string) (tls.Certificate, error) {
	certPath := filepath.Join(dir, "self-signed.crt")
	keyPath := filepath.Join(dir, "self-signed.key")

	if cert, err := tls.LoadX509KeyPair(certPath, keyPath); err == nil {
		log.Debug().Str("dir", dir).Msg("tls: loaded self-signed certificate")
		return cert, nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return tls.Certificate{}, fmt.Errorf("tls: create cert dir: %w", err)
	}
	certPEM, keyPEM, err := generateSelfSigned()
	if err != nil {
		return tls.Certificate{}, err
	}
	if err := os.WriteFile(certPath, certPEM, 0644); err != nil {
		return tls.Certificate{}, fmt.Errorf("tls: write cert: %w", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0600); err != nil {
		return tls.Certificate{}, fmt.Errorf("tls: write key: %w", err)
	}
	log.Warn().Str("dir", dir).Msg("tls: generated self-signed certificate; browsers will warn until it is trusted")
	return tls.X509KeyPair(certPEM, keyPEM)
}

// generateSelfSigned returns a PEM cert and key for localhost valid for a year.
func generateSelfSigned() (certPEM, keyPEM []byte, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("tls: generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("tls: generate serial: %w", err)
	}

	now := time.Now()
	tmpl := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"GemsCraft"}, CommonName: "localhost"},
		NotBefore:             now,
		NotAfter:              now.Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1"), net.IPv6loopback},
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, nil, fmt.Errorf("tls: create certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("tls: marshal key: %w", err)
	}
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM, nil
}
