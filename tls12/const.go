package tls12

// Record-layer content types (RFC 5246 §6.2.1).
type ContentType uint8

const (
	ContentChangeCipherSpec ContentType = 20
	ContentAlert            ContentType = 21
	ContentHandshake        ContentType = 22
	ContentApplicationData  ContentType = 23
)

func (t ContentType) String() string {
	switch t {
	case ContentChangeCipherSpec:
		return "change_cipher_spec"
	case ContentAlert:
		return "alert"
	case ContentHandshake:
		return "handshake"
	case ContentApplicationData:
		return "application_data"
	default:
		return "unknown"
	}
}

// Protocol versions as they appear on the wire. This engine negotiates
// TLS 1.2 and nothing else.
type Version uint16

const (
	VersionSSL30 Version = 0x0300
	VersionTLS10 Version = 0x0301
	VersionTLS11 Version = 0x0302
	VersionTLS12 Version = 0x0303
)

func (v Version) String() string {
	switch v {
	case VersionSSL30:
		return "SSLv3"
	case VersionTLS10:
		return "TLSv1.0"
	case VersionTLS11:
		return "TLSv1.1"
	case VersionTLS12:
		return "TLSv1.2"
	default:
		return "unknown"
	}
}

// Handshake message types (RFC 5246 §7.4).
type HandshakeType uint8

const (
	TypeHelloRequest       HandshakeType = 0
	TypeClientHello        HandshakeType = 1
	TypeServerHello        HandshakeType = 2
	TypeHelloVerifyRequest HandshakeType = 3
	TypeCertificate        HandshakeType = 11
	TypeServerKeyExchange  HandshakeType = 12
	TypeCertificateRequest HandshakeType = 13
	TypeServerHelloDone    HandshakeType = 14
	TypeCertificateVerify  HandshakeType = 15
	TypeClientKeyExchange  HandshakeType = 16
	TypeFinished           HandshakeType = 20
)

func (t HandshakeType) String() string {
	switch t {
	case TypeHelloRequest:
		return "hello_request"
	case TypeClientHello:
		return "client_hello"
	case TypeServerHello:
		return "server_hello"
	case TypeHelloVerifyRequest:
		return "hello_verify_request"
	case TypeCertificate:
		return "certificate"
	case TypeServerKeyExchange:
		return "server_key_exchange"
	case TypeCertificateRequest:
		return "certificate_request"
	case TypeServerHelloDone:
		return "server_hello_done"
	case TypeCertificateVerify:
		return "certificate_verify"
	case TypeClientKeyExchange:
		return "client_key_exchange"
	case TypeFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Handshake extension numbers recognized by this engine. Anything else is
// skipped using its declared length.
type ExtensionID uint16

const (
	serverNameExtensionID          ExtensionID = 0x0000
	signatureAlgorithmsExtensionID ExtensionID = 0x000d
	alpnExtensionID                ExtensionID = 0x0010
)

const (
	// type(1) + version(2) + length(2)
	recordHeaderLength_bytes = 5

	// type(1) + length(3)
	handshakeHeaderLength_bytes = 4

	serverVersionLength_bytes           = 2
	serverRandomLength_bytes            = 32
	sessionIDMaxLength_bytes            = 32
	serverCiphersuiteLength_bytes       = 2
	serverCompressionMethodLength_bytes = 1

	// The largest record fragment a conforming peer may send (RFC 5246
	// §6.2.1), plus slack for the protection overhead of the suites in scope.
	maxRecordPayloadLength_bytes = 16384 + 2048

	masterSecretLength_bytes    = 48
	premasterSecretLength_bytes = 48
	verifyDataLength_bytes      = 12
	randomLength_bytes          = 32
)

// Cipher suites. Only RSA-key-exchange suites are in scope; anything else in
// a ServerHello is answered with an insufficient_security alert.
type CipherSuite uint16

const (
	SuiteInvalid                     CipherSuite = 0x0000
	TLS_RSA_WITH_AES_128_CBC_SHA     CipherSuite = 0x002f
	TLS_RSA_WITH_AES_256_CBC_SHA     CipherSuite = 0x0035
	TLS_RSA_WITH_AES_128_CBC_SHA256  CipherSuite = 0x003c
	TLS_RSA_WITH_AES_256_CBC_SHA256  CipherSuite = 0x003d
	TLS_RSA_WITH_AES_128_GCM_SHA256  CipherSuite = 0x009c
	TLS_RSA_WITH_AES_256_GCM_SHA384  CipherSuite = 0x009d
)

// Static parameters of a supported suite: how the key block is partitioned
// and how records are protected.
type suiteInfo struct {
	id   CipherSuite
	name string

	// Length of each MAC key. Zero for AEAD suites.
	macLen int

	// Length of each symmetric cipher key.
	keyLen int

	// CBC suites: length of each (unused, TLS 1.2 uses explicit IVs) key-block
	// IV slot. GCM suites: length of each fixed IV ("salt") slot.
	ivLen int

	aead bool
}

var supportedSuites = map[CipherSuite]*suiteInfo{
	TLS_RSA_WITH_AES_128_CBC_SHA: {
		id: TLS_RSA_WITH_AES_128_CBC_SHA, name: "TLS_RSA_WITH_AES_128_CBC_SHA",
		macLen: 20, keyLen: 16, ivLen: 16,
	},
	TLS_RSA_WITH_AES_256_CBC_SHA: {
		id: TLS_RSA_WITH_AES_256_CBC_SHA, name: "TLS_RSA_WITH_AES_256_CBC_SHA",
		macLen: 20, keyLen: 32, ivLen: 16,
	},
	TLS_RSA_WITH_AES_128_CBC_SHA256: {
		id: TLS_RSA_WITH_AES_128_CBC_SHA256, name: "TLS_RSA_WITH_AES_128_CBC_SHA256",
		macLen: 32, keyLen: 16, ivLen: 16,
	},
	TLS_RSA_WITH_AES_256_CBC_SHA256: {
		id: TLS_RSA_WITH_AES_256_CBC_SHA256, name: "TLS_RSA_WITH_AES_256_CBC_SHA256",
		macLen: 32, keyLen: 32, ivLen: 16,
	},
	TLS_RSA_WITH_AES_128_GCM_SHA256: {
		id: TLS_RSA_WITH_AES_128_GCM_SHA256, name: "TLS_RSA_WITH_AES_128_GCM_SHA256",
		macLen: 0, keyLen: 16, ivLen: 4, aead: true,
	},
	TLS_RSA_WITH_AES_256_GCM_SHA384: {
		id: TLS_RSA_WITH_AES_256_GCM_SHA384, name: "TLS_RSA_WITH_AES_256_GCM_SHA384",
		macLen: 0, keyLen: 32, ivLen: 4, aead: true,
	},
}

// The suites offered in our ClientHello, strongest first.
var offeredSuites = []CipherSuite{
	TLS_RSA_WITH_AES_256_GCM_SHA384,
	TLS_RSA_WITH_AES_128_GCM_SHA256,
	TLS_RSA_WITH_AES_256_CBC_SHA256,
	TLS_RSA_WITH_AES_128_CBC_SHA256,
	TLS_RSA_WITH_AES_256_CBC_SHA,
	TLS_RSA_WITH_AES_128_CBC_SHA,
}

func (s CipherSuite) String() string {
	if info, exists := supportedSuites[s]; exists {
		return info.name
	}
	return "unsupported"
}

// Alert levels and descriptions (RFC 5246 §7.2).
type AlertLevel uint8

const (
	AlertLevelWarning  AlertLevel = 1
	AlertLevelCritical AlertLevel = 2
)

func (l AlertLevel) String() string {
	switch l {
	case AlertLevelWarning:
		return "warning"
	case AlertLevelCritical:
		return "critical"
	default:
		return "unknown"
	}
}

type AlertDescription uint8

const (
	AlertCloseNotify            AlertDescription = 0
	AlertUnexpectedMessage      AlertDescription = 10
	AlertBadRecordMAC           AlertDescription = 20
	AlertDecryptionFailed       AlertDescription = 21
	AlertDecompressionFailure   AlertDescription = 30
	AlertHandshakeFailure       AlertDescription = 40
	AlertNoCertificate          AlertDescription = 41
	AlertBadCertificate         AlertDescription = 42
	AlertUnsupportedCertificate AlertDescription = 43
	AlertCertificateExpired     AlertDescription = 45
	AlertCertificateUnknown     AlertDescription = 46
	AlertIllegalParameter       AlertDescription = 47
	AlertDecodeError            AlertDescription = 50
	AlertInsufficientSecurity   AlertDescription = 71
	AlertInternalError          AlertDescription = 80
	AlertNoRenegotiation        AlertDescription = 100
)

func (d AlertDescription) String() string {
	switch d {
	case AlertCloseNotify:
		return "close_notify"
	case AlertUnexpectedMessage:
		return "unexpected_message"
	case AlertBadRecordMAC:
		return "bad_record_mac"
	case AlertDecryptionFailed:
		return "decryption_failed"
	case AlertDecompressionFailure:
		return "decompression_failure"
	case AlertHandshakeFailure:
		return "handshake_failure"
	case AlertNoCertificate:
		return "no_certificate"
	case AlertBadCertificate:
		return "bad_certificate"
	case AlertUnsupportedCertificate:
		return "unsupported_certificate"
	case AlertCertificateExpired:
		return "certificate_expired"
	case AlertCertificateUnknown:
		return "certificate_unknown"
	case AlertIllegalParameter:
		return "illegal_parameter"
	case AlertDecodeError:
		return "decode_error"
	case AlertInsufficientSecurity:
		return "insufficient_security"
	case AlertInternalError:
		return "internal_error"
	case AlertNoRenegotiation:
		return "no_renegotiation"
	default:
		return "unknown"
	}
}

// Signature algorithms offered in our ClientHello's signature_algorithms
// extension. The server's selection is recorded but not enforced.
var offeredSignatureAlgorithms = []uint16{
	0x0401, // rsa_pkcs1_sha256
	0x0501, // rsa_pkcs1_sha384
	0x0601, // rsa_pkcs1_sha512
	0x0201, // rsa_pkcs1_sha1
}
