package tls12

import (
	"encoding/binary"
	"io"

	"github.com/mel2oo/go-tls12/memview"
	"github.com/mel2oo/go-tls12/optionals"

	"go.uber.org/zap"
)

// Assembles the ClientHello handshake message. The local random is a 4-byte
// big-endian timestamp followed by 28 bytes from the CSPRNG.
func (c *Conn) buildClientHello() ([]byte, error) {
	binary.BigEndian.PutUint32(c.ctx.localRandom[:4], uint32(c.env.Now().Unix()))
	if err := c.env.RandomBytes(c.ctx.localRandom[4:]); err != nil {
		return nil, err
	}

	b := newBuilder()
	b.addUint16(uint16(VersionTLS12))
	b.addBytes(c.ctx.localRandom[:])
	b.addVector(1, nil) // no session to resume

	suites := newBuilder()
	for _, s := range offeredSuites {
		suites.addUint16(uint16(s))
	}
	suiteBytes, err := suites.bytes()
	if err != nil {
		return nil, err
	}
	b.addVector(2, suiteBytes)

	b.addVector(1, []byte{0}) // null compression only

	extensions := newBuilder()
	if c.ctx.sniHostname != "" {
		name := newBuilder()
		nameEntry := newBuilder()
		nameEntry.addUint8(0) // host_name
		nameEntry.addVector(2, []byte(c.ctx.sniHostname))
		entryBytes, err := nameEntry.bytes()
		if err != nil {
			return nil, err
		}
		name.addVector(2, entryBytes)
		nameBytes, err := name.bytes()
		if err != nil {
			return nil, err
		}
		extensions.addUint16(uint16(serverNameExtensionID))
		extensions.addVector(2, nameBytes)
	}
	{
		algs := newBuilder()
		for _, a := range offeredSignatureAlgorithms {
			algs.addUint16(a)
		}
		algBytes, err := algs.bytes()
		if err != nil {
			return nil, err
		}
		wrapped := newBuilder()
		wrapped.addVector(2, algBytes)
		wrappedBytes, err := wrapped.bytes()
		if err != nil {
			return nil, err
		}
		extensions.addUint16(uint16(signatureAlgorithmsExtensionID))
		extensions.addVector(2, wrappedBytes)
	}
	if len(c.ctx.offeredALPN) > 0 {
		protos := newBuilder()
		for _, p := range c.ctx.offeredALPN {
			protos.addVector(1, []byte(p))
		}
		protoBytes, err := protos.bytes()
		if err != nil {
			return nil, err
		}
		wrapped := newBuilder()
		wrapped.addVector(2, protoBytes)
		wrappedBytes, err := wrapped.bytes()
		if err != nil {
			return nil, err
		}
		extensions.addUint16(uint16(alpnExtensionID))
		extensions.addVector(2, wrappedBytes)
	}

	extensionBytes, err := extensions.bytes()
	if err != nil {
		return nil, err
	}
	if len(extensionBytes) > 0 {
		b.addVector(2, extensionBytes)
	}

	body, err := b.bytes()
	if err != nil {
		return nil, err
	}
	return handshakeMessage(TypeClientHello, body), nil
}

// Parses a complete ServerHello body. Field order is fixed: version, random,
// session id, cipher suite, compression, then the optional extensions
// vector. The caller has already verified the 24-bit message length against
// the buffered payload, so any overrun in here means the server's length
// fields disagree with each other.
func (c *Conn) handleServerHello(body []byte) error {
	mv := memview.New(body)
	r := mv.CreateReader()

	version, err := r.ReadUint16()
	if err != nil {
		return fatalf(KindBrokenPacket, "server hello truncated before version")
	}
	if Version(version) != VersionTLS12 {
		return fatalf(KindNotSafe, "server selected %s", Version(version))
	}
	c.ctx.version = Version(version)

	if err := r.ReadFull(c.ctx.remoteRandom[:]); err != nil {
		return fatalf(KindBrokenPacket, "server hello truncated inside random")
	}

	sessionLen, err := r.ReadByte()
	if err != nil {
		return fatalf(KindBrokenPacket, "server hello truncated before session id")
	}
	if sessionLen > sessionIDMaxLength_bytes {
		return fatalf(KindBrokenPacket, "session id of %d bytes", sessionLen)
	}
	if sessionLen > 0 {
		c.ctx.sessionID = make([]byte, sessionLen)
		if err := r.ReadFull(c.ctx.sessionID); err != nil {
			return fatalf(KindBrokenPacket, "server hello truncated inside session id")
		}
	} else {
		c.ctx.sessionID = nil
	}

	suiteValue, err := r.ReadUint16()
	if err != nil {
		return fatalf(KindBrokenPacket, "server hello truncated before cipher suite")
	}
	suite, supported := supportedSuites[CipherSuite(suiteValue)]
	if !supported {
		return fatalf(KindNoCommonCipher, "server selected cipher suite 0x%04x", suiteValue)
	}
	c.ctx.suite = suite

	compression, err := r.ReadByte()
	if err != nil {
		return fatalf(KindBrokenPacket, "server hello truncated before compression")
	}
	if compression != 0 {
		return fatalf(KindCompressionNotSupported, "server asked for compression method %d", compression)
	}

	if r.Remaining() > 0 {
		if err := c.parseHelloExtensions(r); err != nil {
			return err
		}
	}

	if c.ctx.status != StatusRenegotiating {
		c.ctx.status = StatusNegotiating
	}

	c.log.Debug("server hello accepted",
		zap.String("suite", suite.name),
		zap.Int("session_id_bytes", len(c.ctx.sessionID)),
		zap.String("alpn", c.ctx.negotiatedALPN.GetOrDefault("")))
	return nil
}

func (c *Conn) parseHelloExtensions(r *memview.MemViewReader) error {
	totalLen, extReader, err := r.ReadUint16AndTruncate()
	if err != nil {
		return fatalf(KindBrokenPacket, "extensions vector overruns server hello")
	}
	if int64(totalLen) != r.Remaining() {
		return fatalf(KindBrokenPacket, "extensions vector disagrees with server hello length")
	}

	for extReader.Remaining() > 0 {
		if extReader.Remaining() < 4 {
			return fatalf(KindBrokenPacket, "dangling extension header")
		}

		extType, err := extReader.ReadUint16()
		if err != nil {
			return fatalf(KindBrokenPacket, "dangling extension header")
		}
		extLen, fieldReader, err := extReader.ReadUint16AndTruncate()
		if err != nil {
			return fatalf(KindBrokenPacket, "extension %d overruns the extensions vector", extType)
		}
		if _, err := extReader.Seek(int64(extLen), io.SeekCurrent); err != nil {
			return fatalf(KindBrokenPacket, "extension %d overruns the extensions vector", extType)
		}

		switch ExtensionID(extType) {
		case serverNameExtensionID:
			if extLen == 0 {
				// Common empty echo; nothing to record.
				continue
			}
			if err := c.parseServerNameEcho(fieldReader); err != nil {
				return err
			}

		case alpnExtensionID:
			if err := c.parseALPNSelection(fieldReader); err != nil {
				return err
			}

		case signatureAlgorithmsExtensionID:
			if err := c.parseSignatureAlgorithms(fieldReader); err != nil {
				return err
			}

		default:
			// Unknown extensions are skipped using their declared length.
			c.log.Debug("skipping extension", zap.Uint16("type", extType), zap.Uint16("bytes", extLen))
		}
	}
	return nil
}

func (c *Conn) parseServerNameEcho(r *memview.MemViewReader) error {
	_, listReader, err := r.ReadUint16AndTruncate()
	if err != nil {
		return fatalf(KindBrokenPacket, "malformed server_name extension")
	}
	nameType, err := listReader.ReadByte()
	if err != nil || nameType != 0 {
		return fatalf(KindBrokenPacket, "malformed server_name extension")
	}
	name, err := listReader.ReadString_uint16()
	if err != nil {
		return fatalf(KindBrokenPacket, "malformed server_name extension")
	}
	if name != "" {
		c.ctx.echoedServerName = optionals.Some(name)
	}
	return nil
}

// The server must select exactly one protocol; the first entry is the
// negotiated ALPN iff it appears in our offer.
func (c *Conn) parseALPNSelection(r *memview.MemViewReader) error {
	_, listReader, err := r.ReadUint16AndTruncate()
	if err != nil {
		return fatalf(KindBrokenPacket, "malformed ALPN extension")
	}

	token, err := listReader.ReadString_byte()
	if err != nil {
		return fatalf(KindBrokenPacket, "malformed ALPN extension")
	}
	for _, offered := range c.ctx.offeredALPN {
		if offered == token {
			c.ctx.negotiatedALPN = optionals.Some(token)
			c.log.Debug("negotiated ALPN", zap.String("protocol", token))
			break
		}
	}
	return nil
}

// Recorded; not enforced.
func (c *Conn) parseSignatureAlgorithms(r *memview.MemViewReader) error {
	_, listReader, err := r.ReadUint16AndTruncate()
	if err != nil {
		return fatalf(KindBrokenPacket, "malformed signature_algorithms extension")
	}
	for listReader.Remaining() >= 2 {
		alg, err := listReader.ReadUint16()
		if err != nil {
			return fatalf(KindBrokenPacket, "malformed signature_algorithms extension")
		}
		c.ctx.signatureAlgorithms = append(c.ctx.signatureAlgorithms, alg)
	}
	return nil
}
