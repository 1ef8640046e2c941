package tls12

import (
	"crypto"
	"crypto/rsa"
	"crypto/x509"

	"github.com/mel2oo/go-tls12/memview"
)

// Draws the 48-byte premaster secret: two bytes of the offered protocol
// version followed by CSPRNG output. No byte may be zero; each zero is
// redrawn individually.
func (c *Conn) buildPremaster() error {
	premaster := make(secretBuffer, premasterSecretLength_bytes)
	if err := c.env.RandomBytes(premaster); err != nil {
		return fatalf(KindInternalError, "could not draw premaster secret: %v", err)
	}

	var single [1]byte
	for i := range premaster {
		for premaster[i] == 0 {
			if err := c.env.RandomBytes(single[:]); err != nil {
				return fatalf(KindInternalError, "could not redraw premaster byte: %v", err)
			}
			premaster[i] = single[0]
		}
	}

	premaster[0] = byte(uint16(VersionTLS12) >> 8)
	premaster[1] = byte(uint16(VersionTLS12) & 0xff)

	c.ctx.premaster = premaster
	return nil
}

// Encrypts the premaster to the validated leaf's RSA key and frames the
// ClientKeyExchange: 24-bit body length, 16-bit ciphertext length,
// ciphertext.
func (c *Conn) buildClientKeyExchange() ([]byte, error) {
	leaf := c.ctx.certificates[0]
	pub, isRSA := leaf.PublicKey.(*rsa.PublicKey)
	if !isRSA {
		return nil, fatalf(KindUnsupportedCertificate, "leaf public key is not RSA")
	}

	ciphertext, err := rsa.EncryptPKCS1v15(environmentReader{c.env}, pub, c.ctx.premaster)
	if err != nil {
		return nil, fatalf(KindInternalError, "could not encrypt premaster secret: %v", err)
	}

	b := newBuilder()
	b.addVector(2, ciphertext)
	body, err := b.bytes()
	if err != nil {
		return nil, fatalf(KindInternalError, "%v", err)
	}
	return handshakeMessage(TypeClientKeyExchange, body), nil
}

// Derives the master secret and the key block from the premaster and both
// randoms.
func (c *Conn) deriveSessionKeys() {
	c.ctx.master = deriveMasterSecret(c.ctx.premaster, c.ctx.localRandom[:], c.ctx.remoteRandom[:])
	c.ctx.keys = deriveKeyBlock(c.ctx.master, c.ctx.localRandom[:], c.ctx.remoteRandom[:], c.ctx.suite)
}

// Frames our Certificate message: the configured chain, or an empty list
// when we have nothing to present.
func buildCertificateMessage(chain [][]byte) ([]byte, error) {
	entries := newBuilder()
	for _, der := range chain {
		entries.addVector(3, der)
	}
	entryBytes, err := entries.bytes()
	if err != nil {
		return nil, err
	}

	b := newBuilder()
	b.addVector(3, entryBytes)
	body, err := b.bytes()
	if err != nil {
		return nil, err
	}
	return handshakeMessage(TypeCertificate, body), nil
}

// Frames our Finished: 12 bytes of verify data over the transcript up to
// but excluding this very message.
func (c *Conn) buildFinished() []byte {
	verifyData := finishedVerify(c.ctx.master, labelClientFinished, c.ctx.handshakeHash.Snapshot())
	return handshakeMessage(TypeFinished, verifyData)
}

// Checks a CertificateVerify signature over the transcript with the
// client's public key.
func (c *Conn) handleCertificateVerify(body []byte) error {
	if len(c.cfg.ClientChain) == 0 {
		return fatalf(KindUnexpectedMessage, "certificate verify without a client certificate")
	}
	clientCert, err := x509.ParseCertificate(c.cfg.ClientChain[0])
	if err != nil {
		return fatalf(KindInternalError, "could not parse the configured client certificate: %v", err)
	}
	pub, isRSA := clientCert.PublicKey.(*rsa.PublicKey)
	if !isRSA {
		return fatalf(KindUnsupportedCertificate, "client public key is not RSA")
	}

	mv := memview.New(body)
	r := mv.CreateReader()
	if _, err := r.ReadUint16(); err != nil { // signature and hash algorithm
		return fatalf(KindBrokenPacket, "certificate verify truncated before algorithm")
	}
	sigLen, sigReader, err := r.ReadUint16AndTruncate()
	if err != nil || int64(sigLen) != r.Remaining() {
		return fatalf(KindBrokenPacket, "certificate verify signature length disagrees with the message")
	}
	signature := make([]byte, sigLen)
	if err := sigReader.ReadFull(signature); err != nil {
		return fatalf(KindBrokenPacket, "certificate verify truncated inside signature")
	}

	digest := c.ctx.handshakeHash.Snapshot()
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest, signature); err != nil {
		return fatalf(KindNotVerified, "certificate verify signature does not verify")
	}
	return nil
}
