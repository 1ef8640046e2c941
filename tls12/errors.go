package tls12

import (
	"fmt"

	"github.com/pkg/errors"
)

// Signals that the engine cannot make progress until the transport delivers
// more bytes. It is not a fault: the partial input stays buffered and the
// caller simply feeds the connection again later.
var ErrNeedMoreData = errors.New("tls12: need more data")

// The taxonomy of fatal protocol faults. Every kind maps to exactly one
// outbound critical alert.
type ErrorKind int

const (
	// Length fields disagree with each other or with the surrounding frame.
	KindBrokenPacket ErrorKind = iota + 1

	// The peer negotiated a protocol version other than TLS 1.2.
	KindNotSafe

	// The server selected a cipher suite outside the supported set.
	KindNoCommonCipher

	// The server asked for record compression.
	KindCompressionNotSupported

	// A handshake message arrived in a state where it is not legal, or
	// arrived twice.
	KindUnexpectedMessage

	// The certificate message was malformed, or no presented leaf matched
	// the expected hostname.
	KindBadCertificate

	// A certificate was well-formed but not usable with the negotiated
	// suite.
	KindUnsupportedCertificate

	// A certificate in the chosen chain was outside its validity period.
	KindCertificateExpired

	// The chosen leaf could not be chained to a trust anchor.
	KindCertificateUnknown

	// A record MAC or a Finished verify_data did not match.
	KindNotVerified

	// The peer attempted renegotiation.
	KindNoRenegotiation

	// A protected record could not be decrypted.
	KindDecryptionFailed

	// A handshake message type this engine does not know.
	KindNotUnderstood

	// A fault internal to the engine or its environment, including the
	// handshake deadline expiring.
	KindInternalError
)

func (k ErrorKind) String() string {
	switch k {
	case KindBrokenPacket:
		return "broken packet"
	case KindNotSafe:
		return "not safe"
	case KindNoCommonCipher:
		return "no common cipher"
	case KindCompressionNotSupported:
		return "compression not supported"
	case KindUnexpectedMessage:
		return "unexpected message"
	case KindBadCertificate:
		return "bad certificate"
	case KindUnsupportedCertificate:
		return "unsupported certificate"
	case KindCertificateExpired:
		return "certificate expired"
	case KindCertificateUnknown:
		return "certificate unknown"
	case KindNotVerified:
		return "not verified"
	case KindNoRenegotiation:
		return "no renegotiation"
	case KindDecryptionFailed:
		return "decryption failed"
	case KindNotUnderstood:
		return "not understood"
	case KindInternalError:
		return "internal error"
	default:
		return "unknown"
	}
}

// The critical alert sent to the peer when a fault of this kind poisons the
// connection.
func (k ErrorKind) Alert() AlertDescription {
	switch k {
	case KindBrokenPacket:
		return AlertDecodeError
	case KindNotSafe, KindNoCommonCipher:
		return AlertInsufficientSecurity
	case KindCompressionNotSupported:
		return AlertDecompressionFailure
	case KindUnexpectedMessage:
		return AlertUnexpectedMessage
	case KindBadCertificate:
		return AlertBadCertificate
	case KindUnsupportedCertificate:
		return AlertUnsupportedCertificate
	case KindCertificateExpired:
		return AlertCertificateExpired
	case KindCertificateUnknown:
		return AlertCertificateUnknown
	case KindNotVerified:
		return AlertBadRecordMAC
	case KindNoRenegotiation:
		return AlertNoRenegotiation
	case KindDecryptionFailed:
		return AlertDecryptionFailed
	default:
		return AlertInternalError
	}
}

// A fatal protocol fault. Once one is raised the connection sends the mapped
// critical alert and refuses all further input.
type ProtocolError struct {
	Kind   ErrorKind
	Reason string
}

var _ error = (*ProtocolError)(nil)

func (e *ProtocolError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("tls12: %s", e.Kind)
	}
	return fmt.Sprintf("tls12: %s: %s", e.Kind, e.Reason)
}

func fatalf(kind ErrorKind, format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{
		Kind:   kind,
		Reason: fmt.Sprintf(format, args...),
	}
}

// Extracts the fault kind from an error returned by the engine. Returns zero
// if err is not a protocol fault.
func KindOf(err error) ErrorKind {
	var perr *ProtocolError
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return 0
}
