package tls12

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Per-connection options. The zero value is usable: no SNI (any leaf
// matches), no ALPN, no deadline, strict chain verification.
type Config struct {
	// Hostname the server's leaf certificate must authenticate. Also sent in
	// the server_name extension when nonempty.
	SNI string

	// Application protocols offered in preference order.
	ALPN []string

	// How long the full handshake may take before the connection is aborted
	// with an internal_error alert. Zero disables the deadline.
	HandshakeTimeout time.Duration

	// Accept a leaf certificate that signed itself and chains to nothing.
	AcceptSelfSigned bool

	// Kept for configuration compatibility; this engine refuses
	// renegotiation regardless.
	EnableRenegotiation bool

	// DER certificate chain sent in our Certificate message if the server
	// asks for client authentication. Leaf first. ClientKey is held with it
	// but the engine sends no CertificateVerify, so the key is never used
	// to sign.
	ClientChain [][]byte
	ClientKey   *rsa.PrivateKey

	// Defaults to a no-op logger.
	Logger *zap.Logger
}

func (cfg *Config) logger() *zap.Logger {
	if cfg.Logger == nil {
		return zap.NewNop()
	}
	return cfg.Logger
}

// What the engine requires of its surroundings. Production code uses
// SystemEnvironment; tests substitute deterministic fakes.
type Environment interface {
	// Fills out with cryptographically strong random bytes.
	RandomBytes(out []byte) error

	Now() time.Time

	// The roots that certificate chains must terminate at. Read-only after
	// initialization.
	TrustAnchors() []*x509.Certificate
}

// Environment backed by the process CSPRNG and wall clock.
type SystemEnvironment struct {
	Anchors []*x509.Certificate
}

var _ Environment = (*SystemEnvironment)(nil)

func (e *SystemEnvironment) RandomBytes(out []byte) error {
	if _, err := rand.Read(out); err != nil {
		return errors.Wrap(err, "system CSPRNG failed")
	}
	return nil
}

func (e *SystemEnvironment) Now() time.Time {
	return time.Now()
}

func (e *SystemEnvironment) TrustAnchors() []*x509.Certificate {
	return e.Anchors
}

// Adapts an Environment to io.Reader for crypto APIs that take an entropy
// source.
type environmentReader struct {
	env Environment
}

func (r environmentReader) Read(p []byte) (int, error) {
	if err := r.env.RandomBytes(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// The events the engine reports to its embedder.
type Observer interface {
	// Fired once, when the server's Finished has been verified.
	ReadyToWrite(c *Conn)

	// Fired when the server asks for client authentication. The embedder may
	// install Config.ClientChain and Config.ClientKey before returning.
	CertificateRequested(c *Conn)

	// Fired for every inbound alert.
	AlertReceived(c *Conn, level AlertLevel, desc AlertDescription)
}

// Observer that ignores every event.
type NopObserver struct{}

var _ Observer = (*NopObserver)(nil)

func (NopObserver) ReadyToWrite(*Conn)                                 {}
func (NopObserver) CertificateRequested(*Conn)                         {}
func (NopObserver) AlertReceived(*Conn, AlertLevel, AlertDescription) {}
