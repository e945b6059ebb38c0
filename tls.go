package telegraph

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"
)

// ALPN is the protocol name negotiated by the QUIC and TLS transports.
const ALPN = "telegraph/1"

// selfSignedValidity bounds how long a transport can stay up on one
// generated certificate.
const selfSignedValidity = 30 * 24 * time.Hour

// newSelfSignedCertificate creates a throwaway certificate naming peerID.
// Each transport gets its own key; peers never verify it.
func newSelfSignedCertificate(peerID string) (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to generate key for %s: %w", peerID, err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, err
	}

	now := time.Now()
	tpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: peerID, Organization: []string{"telegraph"}},
		DNSNames:              []string{peerID},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(selfSignedValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tpl, tpl, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to create certificate for %s: %w", peerID, err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}, nil
}

// ServerTLSConfig returns the TLS configuration peerID uses to accept other
// peers. If certFile is empty a self-signed certificate is generated.
func ServerTLSConfig(peerID, certFile, keyFile string) (*tls.Config, error) {
	cfg := &tls.Config{NextProtos: []string{ALPN}}

	if certFile != "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	} else {
		cert, err := newSelfSignedCertificate(peerID)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	configureTLS(cfg)
	return cfg, nil
}

// ClientTLSConfig returns the TLS configuration used to dial peers. Peers
// are not authenticated: any certificate is accepted.
func ClientTLSConfig() *tls.Config {
	cfg := &tls.Config{
		NextProtos:         []string{ALPN},
		InsecureSkipVerify: true,
	}
	configureTLS(cfg)
	return cfg
}

func configureTLS(cfg *tls.Config) {
	// QUIC requires TLS 1.3
	cfg.MinVersion = tls.VersionTLS13
	cfg.CurvePreferences = []tls.CurveID{tls.X25519, tls.CurveP256, tls.CurveP384}
}
