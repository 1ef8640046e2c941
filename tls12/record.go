package tls12

import (
	"go.uber.org/zap"

	"github.com/mel2oo/go-tls12/memview"
)

// Feeds raw transport bytes into the connection. Complete records are
// stripped of their headers, deprotected when a remote cipher spec is
// active, and dispatched; a trailing partial record stays buffered for the
// next call. Returns the sticky fault if the connection is poisoned.
func (c *Conn) Feed(data []byte) error {
	if c.ctx.criticalError != nil {
		return c.ctx.criticalError
	}
	if c.closed {
		return nil
	}

	if !c.ctx.deadline.IsZero() && c.ctx.status != StatusEstablished && c.env.Now().After(c.ctx.deadline) {
		return c.fail(fatalf(KindInternalError, "handshake deadline exceeded"))
	}

	// The caller may reuse its buffer after Feed returns.
	owned := make([]byte, len(data))
	copy(owned, data)
	c.recvBuf.Append(memview.New(owned))

	for c.ctx.criticalError == nil && !c.closed {
		if c.recvBuf.Len() < recordHeaderLength_bytes {
			return nil
		}

		ct := ContentType(c.recvBuf.GetByte(0))
		version := Version(c.recvBuf.GetUint16(1))
		length := int64(c.recvBuf.GetUint16(3))

		if version != VersionTLS12 {
			return c.fail(fatalf(KindNotSafe, "record version %s", version))
		}
		if length > maxRecordPayloadLength_bytes {
			return c.fail(fatalf(KindBrokenPacket, "record of %d bytes exceeds the protocol maximum", length))
		}
		if c.recvBuf.Len() < recordHeaderLength_bytes+length {
			return nil
		}

		payload := c.recvBuf.SubView(recordHeaderLength_bytes, recordHeaderLength_bytes+length).Bytes()
		c.recvBuf = c.recvBuf.SubView(recordHeaderLength_bytes+length, c.recvBuf.Len())

		if c.in != nil && ct != ContentChangeCipherSpec {
			plaintext, err := c.in.open(ct, payload)
			if err != nil {
				return c.fail(err)
			}
			payload = plaintext
		}

		if err := c.dispatchRecord(ct, payload); err != nil {
			return err
		}
	}

	return c.ctx.criticalError
}

func (c *Conn) dispatchRecord(ct ContentType, payload []byte) error {
	switch ct {
	case ContentHandshake:
		return c.feedHandshake(payload)

	case ContentChangeCipherSpec:
		return c.handleChangeCipherSpec(payload)

	case ContentAlert:
		return c.handleAlertRecord(payload)

	case ContentApplicationData:
		if c.ctx.status != StatusEstablished {
			return c.fail(fatalf(KindUnexpectedMessage, "application data before the handshake completed"))
		}
		c.appIn.Write(payload)
		return nil

	default:
		return c.fail(fatalf(KindNotUnderstood, "record content type %d", ct))
	}
}

// Appends a handshake record payload to the reassembly buffer and drives the
// state machine until it drains or asks for more bytes.
func (c *Conn) feedHandshake(payload []byte) error {
	c.ctx.cachedHandshake.Append(memview.New(payload))

	buf := c.ctx.cachedHandshake.Bytes()
	consumed, err := c.processHandshakePayload(buf)
	if consumed > 0 {
		c.ctx.cachedHandshake = c.ctx.cachedHandshake.SubView(int64(consumed), c.ctx.cachedHandshake.Len())
	}
	if err == ErrNeedMoreData {
		c.log.Debug("handshake message incomplete, awaiting more bytes",
			zap.Int64("buffered", c.ctx.cachedHandshake.Len()))
		return nil
	}
	if err != nil {
		return c.fail(err)
	}
	return nil
}

func (c *Conn) handleChangeCipherSpec(payload []byte) error {
	if len(payload) != 1 || payload[0] != 1 {
		return c.fail(fatalf(KindBrokenPacket, "malformed change_cipher_spec"))
	}
	if c.ctx.cipherActiveRemote {
		return c.fail(fatalf(KindUnexpectedMessage, "duplicate change_cipher_spec"))
	}
	if c.ctx.keys == nil {
		return c.fail(fatalf(KindUnexpectedMessage, "change_cipher_spec before key exchange"))
	}

	in, err := newCipherState(c.ctx.suite, c.ctx.keys.serverMAC, c.ctx.keys.serverKey, c.ctx.keys.serverIV, c.env)
	if err != nil {
		return c.fail(fatalf(KindInternalError, "%v", err))
	}
	c.in = in
	c.ctx.cipherActiveRemote = true
	c.log.Debug("remote cipher spec active", zap.String("suite", c.ctx.suite.name))
	return nil
}
