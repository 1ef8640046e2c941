package tls12

import (
	"crypto/x509"
	"time"

	"github.com/mel2oo/go-tls12/memview"
	"github.com/mel2oo/go-tls12/optionals"
	"github.com/mel2oo/go-tls12/sets"
)

// Where the connection is in its lifecycle. The status only ever moves
// forward: Disconnected → Negotiating → KeyExchange → Established. The lone
// backward edge, Established → Renegotiating, is never taken because this
// engine answers renegotiation as a no-op.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusNegotiating
	StatusKeyExchange
	StatusEstablished
	StatusRenegotiating
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusNegotiating:
		return "negotiating"
	case StatusKeyExchange:
		return "key-exchange"
	case StatusEstablished:
		return "established"
	case StatusRenegotiating:
		return "renegotiating"
	default:
		return "unknown"
	}
}

// Whether the server asked for client authentication, and how far we got
// answering it.
type ClientVerification int

const (
	VerificationNotRequested ClientVerification = iota
	VerificationNeeded
	VerificationSent
)

// Holds key material that must not outlive the connection. Wipe overwrites
// the storage; it is called from Conn.Close and from every fatal-fault path.
type secretBuffer []byte

func (s secretBuffer) Wipe() {
	for i := range s {
		s[i] = 0
	}
}

// The single mutable aggregate the state machine owns. One context per
// connection; never shared.
type connectionContext struct {
	status ConnectionStatus

	// Only TLS 1.2 is ever accepted here.
	version Version

	// nil until the ServerHello commits to a suite; never changes afterwards.
	suite *suiteInfo

	localRandom  [randomLength_bytes]byte
	remoteRandom [randomLength_bytes]byte

	// Up to 32 bytes of opaque server-chosen state; may be empty.
	sessionID []byte

	// The name the presented leaf certificate must authenticate. Empty means
	// "match any leaf".
	sniHostname string

	// Protocol tokens we offered, in preference order, and the one the
	// server picked.
	offeredALPN    []string
	negotiatedALPN optionals.Optional[string]

	// Nonempty server_name echo, if the server sent one.
	echoedServerName optionals.Optional[string]

	// The server's signature_algorithms selection, recorded but not
	// enforced.
	signatureAlgorithms []uint16

	// Certificates as received, with the chosen valid leaf swapped into
	// position 0 after validation.
	certificates []*x509.Certificate

	premaster secretBuffer
	master    secretBuffer
	keys      *keyMaterial

	handshakeHash transcript

	// Message types already processed this handshake. A second sighting of
	// any member is an ordering violation. HelloRequest is never inserted.
	seen sets.Set[HandshakeType]

	clientVerified ClientVerification

	cipherActiveLocal  bool
	cipherActiveRemote bool

	// Sticky fatal fault. Once set, no further handshake bytes are consumed.
	criticalError error

	// Partial incoming handshake message awaiting completion.
	cachedHandshake memview.MemView

	// The handshake must reach Established before this instant; zero means
	// no deadline.
	deadline time.Time
}

func newConnectionContext(sni string, alpn []string) connectionContext {
	return connectionContext{
		status:        StatusDisconnected,
		version:       VersionTLS12,
		sniHostname:   sni,
		offeredALPN:   alpn,
		handshakeHash: newTranscript(),
		seen:          sets.NewSet[HandshakeType](),
	}
}

// Overwrites all secret material. Idempotent.
func (ctx *connectionContext) destroySecrets() {
	ctx.premaster.Wipe()
	ctx.master.Wipe()
	ctx.keys.wipe()
}
