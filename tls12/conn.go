package tls12

import (
	"bytes"
	"crypto/x509"

	"go.uber.org/zap"

	"github.com/mel2oo/go-tls12/gid"
	"github.com/mel2oo/go-tls12/ja3"
	"github.com/mel2oo/go-tls12/memview"
	"github.com/mel2oo/go-tls12/optionals"
	"github.com/mel2oo/go-tls12/slices"
)

// A TLS 1.2 client connection. The engine is driven, not self-scheduling:
// the embedding transport calls Feed with bytes as the socket becomes
// readable and drains TakeOutbound as it becomes writable. One goroutine
// owns a Conn at a time; there is no internal locking.
type Conn struct {
	cfg *Config
	env Environment
	obs Observer
	log *zap.Logger
	id  gid.ConnectionID

	ctx connectionContext

	// Active record protection, per direction. nil until ChangeCipherSpec in
	// that direction.
	in  *cipherState
	out *cipherState

	// Raw transport bytes not yet parsed into records.
	recvBuf memview.MemView

	// Decrypted inbound application data awaiting the embedder.
	appIn bytes.Buffer

	// Assembled outbound records awaiting the transport.
	pendingOut []byte

	started bool
	closed  bool
}

func NewConn(cfg *Config, env Environment, obs Observer) *Conn {
	if cfg == nil {
		cfg = &Config{}
	}
	if obs == nil {
		obs = NopObserver{}
	}
	id := gid.NewConnectionID()
	return &Conn{
		cfg: cfg,
		env: env,
		obs: obs,
		log: cfg.logger().With(zap.String("conn", id.String())),
		id:  id,
		ctx: newConnectionContext(cfg.SNI, cfg.ALPN),
	}
}

func (c *Conn) ID() gid.ConnectionID {
	return c.id
}

func (c *Conn) Status() ConnectionStatus {
	return c.ctx.status
}

// The negotiated cipher suite, or SuiteInvalid before the ServerHello.
func (c *Conn) CipherSuite() CipherSuite {
	if c.ctx.suite == nil {
		return SuiteInvalid
	}
	return c.ctx.suite.id
}

func (c *Conn) NegotiatedALPN() optionals.Optional[string] {
	return c.ctx.negotiatedALPN
}

// The server's nonempty server_name echo, if it sent one.
func (c *Conn) EchoedServerName() optionals.Optional[string] {
	return c.ctx.echoedServerName
}

func (c *Conn) SessionID() []byte {
	return c.ctx.sessionID
}

// The server's certificates as received, with the validated leaf in
// position 0.
func (c *Conn) PeerCertificates() []*x509.Certificate {
	return c.ctx.certificates
}

// The sticky fatal fault, if any.
func (c *Conn) CriticalError() error {
	return c.ctx.criticalError
}

// Begins the handshake: emits the ClientHello and arms the handshake
// deadline. Must be called exactly once, before the first Feed.
func (c *Conn) Start() error {
	if c.started {
		return fatalf(KindInternalError, "connection already started")
	}
	c.started = true

	if c.cfg.HandshakeTimeout > 0 {
		c.ctx.deadline = c.env.Now().Add(c.cfg.HandshakeTimeout)
	}

	hello, err := c.buildClientHello()
	if err != nil {
		return c.fail(fatalf(KindInternalError, "could not build client hello: %v", err))
	}

	c.log.Debug("starting handshake",
		zap.String("sni", c.ctx.sniHostname),
		zap.Strings("alpn", c.ctx.offeredALPN),
		zap.String("ja3", ja3.Hash(c.offerFingerprint())))

	c.ctx.handshakeHash.Absorb(hello)
	return c.writeRecord(ContentHandshake, hello)
}

// The shape of the ClientHello we offer, for fingerprint diagnostics.
func (c *Conn) offerFingerprint() ja3.ClientHello {
	extensions := []uint16{}
	if c.ctx.sniHostname != "" {
		extensions = append(extensions, uint16(serverNameExtensionID))
	}
	extensions = append(extensions, uint16(signatureAlgorithmsExtensionID))
	if len(c.ctx.offeredALPN) > 0 {
		extensions = append(extensions, uint16(alpnExtensionID))
	}
	return ja3.ClientHello{
		Version: uint16(VersionTLS12),
		CipherSuites: slices.Map(offeredSuites, func(s CipherSuite) uint16 {
			return uint16(s)
		}),
		Extensions: extensions,
	}
}

// Returns the assembled outbound records accumulated since the last call and
// clears the queue.
func (c *Conn) TakeOutbound() []byte {
	out := c.pendingOut
	c.pendingOut = nil
	return out
}

// Sends application data. Only legal once the handshake is Established.
func (c *Conn) Write(data []byte) error {
	if c.ctx.criticalError != nil {
		return c.ctx.criticalError
	}
	if c.closed {
		return fatalf(KindInternalError, "connection is closed")
	}
	if c.ctx.status != StatusEstablished {
		return fatalf(KindUnexpectedMessage, "cannot write application data in status %s", c.ctx.status)
	}

	for len(data) > 0 {
		n := len(data)
		if n > 16384 {
			n = 16384
		}
		if err := c.writeRecord(ContentApplicationData, data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

// Drains decrypted inbound application data.
func (c *Conn) ReadApplicationData() []byte {
	if c.appIn.Len() == 0 {
		return nil
	}
	out := make([]byte, c.appIn.Len())
	c.appIn.Read(out)
	return out
}

// Closes the connection, emitting close_notify if the connection is still
// healthy. All secret material is overwritten.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.ctx.criticalError == nil {
		c.sendAlert(AlertLevelWarning, AlertCloseNotify)
	}
	c.ctx.destroySecrets()
	return nil
}

// Frames (and, once the local cipher spec is active, protects) one outbound
// record.
func (c *Conn) writeRecord(ct ContentType, payload []byte) error {
	if c.out != nil {
		sealed, err := c.out.seal(ct, payload)
		if err != nil {
			return fatalf(KindInternalError, "could not protect record: %v", err)
		}
		payload = sealed
	}
	c.pendingOut = append(c.pendingOut, recordBytes(ct, payload)...)
	return nil
}

// Raises a fatal fault: sends the mapped critical alert, poisons the
// context, and wipes secrets. Returns the fault for the caller to
// propagate. No further input is processed after this.
func (c *Conn) fail(perr error) error {
	if c.ctx.criticalError != nil {
		return c.ctx.criticalError
	}
	if kind := KindOf(perr); kind != 0 {
		c.sendAlert(AlertLevelCritical, kind.Alert())
	}
	c.log.Warn("connection poisoned", zap.Error(perr))
	c.ctx.criticalError = perr
	c.ctx.destroySecrets()
	return perr
}
