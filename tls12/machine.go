package tls12

import (
	"crypto/subtle"
	"time"

	"go.uber.org/zap"
)

// Consumes a contiguous handshake payload: zero or more complete handshake
// messages, possibly followed by the prefix of another. Returns how many
// bytes were consumed. ErrNeedMoreData asks the record layer to re-deliver
// once more bytes arrive; a *ProtocolError poisons the connection.
func (c *Conn) processHandshakePayload(payload []byte) (int, error) {
	if c.ctx.status == StatusEstablished {
		// Renegotiation attempt. We answer it as a no-op: the whole payload
		// is swallowed, nothing is hashed, and the connection stays
		// Established.
		c.log.Debug("renegotiation attempt ignored", zap.Int("bytes", len(payload)))
		return len(payload), nil
	}

	consumed := 0
	for len(payload)-consumed >= handshakeHeaderLength_bytes && c.ctx.criticalError == nil {
		rest := payload[consumed:]
		msgType := HandshakeType(rest[0])
		bodyLen := int(rest[1])<<16 | int(rest[2])<<8 | int(rest[3])
		if len(rest) < handshakeHeaderLength_bytes+bodyLen {
			return consumed, ErrNeedMoreData
		}

		raw := rest[:handshakeHeaderLength_bytes+bodyLen]
		body := raw[handshakeHeaderLength_bytes:]

		if msgType == TypeHelloRequest {
			// Treated as "no renegotiation": never hashed, never counted.
			c.log.Debug("hello request ignored")
			consumed += len(raw)
			continue
		}

		if c.ctx.seen.Contains(msgType) {
			return consumed, fatalf(KindUnexpectedMessage, "duplicate %s message", msgType)
		}
		c.ctx.seen.Insert(msgType)

		c.log.Debug("handshake message",
			zap.String("type", msgType.String()),
			zap.Int("bytes", bodyLen),
			zap.String("status", c.ctx.status.String()))

		herr := c.dispatchHandshake(msgType, body)
		sendFlight := herr == nil && msgType == TypeServerHelloDone

		// The transcript carries every handshake byte in wire order, our own
		// outbound flight included, so the inbound message is absorbed
		// before any response to it is built.
		c.ctx.handshakeHash.Absorb(raw)

		if herr != nil {
			return consumed, herr
		}
		consumed += len(raw)

		if sendFlight {
			if err := c.sendClientFlight(); err != nil {
				return consumed, err
			}
		}
		if c.ctx.status == StatusEstablished {
			// Anything buffered past the server Finished belongs to the
			// established connection, not the handshake.
			break
		}
	}
	return consumed, nil
}

func (c *Conn) dispatchHandshake(msgType HandshakeType, body []byte) error {
	switch msgType {
	case TypeClientHello, TypeClientKeyExchange:
		// Client-emitted messages arriving at a client.
		return fatalf(KindUnexpectedMessage, "%s sent by the server", msgType)

	case TypeHelloVerifyRequest:
		// DTLS only.
		return fatalf(KindUnexpectedMessage, "hello verify request on a stream connection")

	case TypeServerHello:
		if c.ctx.status != StatusDisconnected && c.ctx.status != StatusRenegotiating {
			return fatalf(KindUnexpectedMessage, "server hello in status %s", c.ctx.status)
		}
		return c.handleServerHello(body)

	case TypeCertificate:
		if c.ctx.status != StatusNegotiating {
			return fatalf(KindUnexpectedMessage, "certificate in status %s", c.ctx.status)
		}
		return c.handleCertificate(body)

	case TypeServerKeyExchange:
		// The RSA-key-exchange suites in scope never use this message.
		return fatalf(KindUnexpectedMessage, "server key exchange with an RSA key exchange suite")

	case TypeCertificateRequest:
		if c.ctx.status != StatusNegotiating {
			return fatalf(KindUnexpectedMessage, "certificate request in status %s", c.ctx.status)
		}
		c.ctx.clientVerified = VerificationNeeded
		c.obs.CertificateRequested(c)
		return nil

	case TypeServerHelloDone:
		if c.ctx.status != StatusNegotiating {
			return fatalf(KindUnexpectedMessage, "server hello done in status %s", c.ctx.status)
		}
		if len(body) != 0 {
			return fatalf(KindBrokenPacket, "server hello done carries %d bytes", len(body))
		}
		if len(c.ctx.certificates) == 0 {
			return fatalf(KindUnexpectedMessage, "server hello done before a certificate")
		}
		c.ctx.status = StatusKeyExchange
		return nil

	case TypeCertificateVerify:
		if c.ctx.status != StatusKeyExchange {
			return fatalf(KindUnexpectedMessage, "certificate verify in status %s", c.ctx.status)
		}
		return c.handleCertificateVerify(body)

	case TypeFinished:
		if c.ctx.status != StatusKeyExchange {
			return fatalf(KindUnexpectedMessage, "finished in status %s", c.ctx.status)
		}
		return c.handleFinished(body)

	default:
		return fatalf(KindNotUnderstood, "handshake message type %d", msgType)
	}
}

// Verifies the server's Finished against the transcript up to this point
// (our own Finished included, the server's excluded) and establishes the
// connection.
func (c *Conn) handleFinished(body []byte) error {
	if len(body) != verifyDataLength_bytes {
		return fatalf(KindBrokenPacket, "finished verify data of %d bytes", len(body))
	}
	if !c.ctx.cipherActiveRemote {
		return fatalf(KindUnexpectedMessage, "finished before change_cipher_spec")
	}

	expected := finishedVerify(c.ctx.master, labelServerFinished, c.ctx.handshakeHash.Snapshot())
	if subtle.ConstantTimeCompare(body, expected) != 1 {
		return fatalf(KindNotVerified, "finished verify data does not match the transcript")
	}

	c.ctx.status = StatusEstablished
	c.ctx.seen.Clear()
	c.ctx.deadline = time.Time{}
	c.ctx.cachedHandshake.Clear()

	c.log.Debug("handshake established",
		zap.String("suite", c.ctx.suite.name),
		zap.String("alpn", c.ctx.negotiatedALPN.GetOrDefault("")))
	c.obs.ReadyToWrite(c)
	return nil
}

// Emits the post-ServerHelloDone flight as one atomic sequence: optional
// Certificate, ClientKeyExchange, ChangeCipherSpec, Finished. The local
// cipher spec flips between the last two, so Finished is the first record
// protected under the new keys.
func (c *Conn) sendClientFlight() error {
	if c.ctx.clientVerified == VerificationNeeded {
		msg, err := buildCertificateMessage(c.cfg.ClientChain)
		if err != nil {
			return fatalf(KindInternalError, "could not build client certificate: %v", err)
		}
		c.ctx.handshakeHash.Absorb(msg)
		if err := c.writeRecord(ContentHandshake, msg); err != nil {
			return err
		}
		c.ctx.clientVerified = VerificationSent
	}

	if err := c.buildPremaster(); err != nil {
		return err
	}
	kx, err := c.buildClientKeyExchange()
	if err != nil {
		return err
	}
	c.ctx.handshakeHash.Absorb(kx)
	if err := c.writeRecord(ContentHandshake, kx); err != nil {
		return err
	}

	c.deriveSessionKeys()

	if err := c.writeRecord(ContentChangeCipherSpec, []byte{1}); err != nil {
		return err
	}
	out, err := newCipherState(c.ctx.suite, c.ctx.keys.clientMAC, c.ctx.keys.clientKey, c.ctx.keys.clientIV, c.env)
	if err != nil {
		return fatalf(KindInternalError, "%v", err)
	}
	c.out = out
	c.ctx.cipherActiveLocal = true

	fin := c.buildFinished()
	c.ctx.handshakeHash.Absorb(fin)
	if err := c.writeRecord(ContentHandshake, fin); err != nil {
		return err
	}

	c.log.Debug("client flight sent", zap.Bool("client_certificate", c.ctx.clientVerified == VerificationSent))
	return nil
}
