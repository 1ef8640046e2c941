package tls12

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// An append-only builder for handshake bodies and record payloads. The first
// framing fault is sticky; bytes() surfaces it once at the end so call sites
// don't check every append.
type builder struct {
	buf []byte
	err error
}

func newBuilder() *builder {
	return &builder{}
}

func (b *builder) addUint8(v uint8) {
	b.buf = append(b.buf, v)
}

func (b *builder) addUint16(v uint16) {
	b.buf = binary.BigEndian.AppendUint16(b.buf, v)
}

func (b *builder) addUint24(v uint32) {
	if v >= 1<<24 {
		if b.err == nil {
			b.err = errors.Errorf("value %d does not fit in 24 bits", v)
		}
		return
	}
	b.buf = append(b.buf, byte(v>>16), byte(v>>8), byte(v))
}

func (b *builder) addUint64(v uint64) {
	b.buf = binary.BigEndian.AppendUint64(b.buf, v)
}

func (b *builder) addBytes(p []byte) {
	b.buf = append(b.buf, p...)
}

// Appends p preceded by a length prefix of the given width (1, 2 or 3
// bytes).
func (b *builder) addVector(prefixLen int, p []byte) {
	switch prefixLen {
	case 1:
		if len(p) > 0xff {
			if b.err == nil {
				b.err = errors.Errorf("vector of %d bytes does not fit a 1-byte prefix", len(p))
			}
			return
		}
		b.addUint8(uint8(len(p)))
	case 2:
		if len(p) > 0xffff {
			if b.err == nil {
				b.err = errors.Errorf("vector of %d bytes does not fit a 2-byte prefix", len(p))
			}
			return
		}
		b.addUint16(uint16(len(p)))
	case 3:
		b.addUint24(uint32(len(p)))
	default:
		if b.err == nil {
			b.err = errors.Errorf("unsupported vector prefix width %d", prefixLen)
		}
		return
	}
	b.addBytes(p)
}

func (b *builder) bytes() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.buf, nil
}

// Frames a handshake body with its type byte and 24-bit length.
func handshakeMessage(t HandshakeType, body []byte) []byte {
	msg := make([]byte, 0, handshakeHeaderLength_bytes+len(body))
	msg = append(msg, byte(t))
	msg = append(msg, byte(len(body)>>16), byte(len(body)>>8), byte(len(body)))
	return append(msg, body...)
}

// Frames a record payload with the 5-byte record header.
func recordBytes(ct ContentType, payload []byte) []byte {
	rec := make([]byte, 0, recordHeaderLength_bytes+len(payload))
	rec = append(rec, byte(ct))
	rec = binary.BigEndian.AppendUint16(rec, uint16(VersionTLS12))
	rec = binary.BigEndian.AppendUint16(rec, uint16(len(payload)))
	return append(rec, payload...)
}
