package tls12

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"hash"

	"github.com/pkg/errors"
)

// Record protection for one direction of a connection. Created when
// ChangeCipherSpec activates the pending cipher state in that direction; the
// sequence number starts at zero and increments after every protected
// record.
type cipherState struct {
	suite *suiteInfo
	env   Environment

	// CBC suites only.
	block cipher.Block
	mac   func() hash.Hash
	macKey []byte

	// GCM suites only. fixedIV is the 4-byte key-block salt.
	aead    cipher.AEAD
	fixedIV []byte

	seq uint64
}

const (
	gcmExplicitNonceLength_bytes = 8
	gcmTagLength_bytes           = 16
)

func newCipherState(suite *suiteInfo, macKey, key, iv []byte, env Environment) (*cipherState, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "could not initialize record cipher")
	}

	cs := &cipherState{suite: suite, env: env}
	if suite.aead {
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, errors.Wrap(err, "could not initialize AEAD")
		}
		cs.aead = aead
		cs.fixedIV = iv
		return cs, nil
	}

	cs.block = block
	cs.macKey = macKey
	switch suite.macLen {
	case sha1.Size:
		cs.mac = sha1.New
	case sha256.Size:
		cs.mac = sha256.New
	default:
		return nil, errors.Errorf("no MAC for key length %d", suite.macLen)
	}
	return cs, nil
}

// MAC input per RFC 5246 §6.2.3.1: seq_num || type || version || length ||
// fragment.
func (cs *cipherState) computeMAC(ct ContentType, payload []byte) []byte {
	h := hmac.New(cs.mac, cs.macKey)
	var pre [recordHeaderLength_bytes + 8]byte
	binary.BigEndian.PutUint64(pre[:8], cs.seq)
	pre[8] = byte(ct)
	binary.BigEndian.PutUint16(pre[9:11], uint16(VersionTLS12))
	binary.BigEndian.PutUint16(pre[11:13], uint16(len(payload)))
	h.Write(pre[:])
	h.Write(payload)
	return h.Sum(nil)
}

// The additional data bound into an AEAD record: seq_num || type || version
// || plaintext length.
func (cs *cipherState) additionalData(ct ContentType, plaintextLen int) []byte {
	ad := make([]byte, recordHeaderLength_bytes+8)
	binary.BigEndian.PutUint64(ad[:8], cs.seq)
	ad[8] = byte(ct)
	binary.BigEndian.PutUint16(ad[9:11], uint16(VersionTLS12))
	binary.BigEndian.PutUint16(ad[11:13], uint16(plaintextLen))
	return ad
}

// Protects an outbound record payload. The sequence number advances on
// success.
func (cs *cipherState) seal(ct ContentType, payload []byte) ([]byte, error) {
	if cs.suite.aead {
		nonce := make([]byte, 0, len(cs.fixedIV)+gcmExplicitNonceLength_bytes)
		nonce = append(nonce, cs.fixedIV...)
		nonce = binary.BigEndian.AppendUint64(nonce, cs.seq)

		out := make([]byte, 0, gcmExplicitNonceLength_bytes+len(payload)+gcmTagLength_bytes)
		out = append(out, nonce[len(cs.fixedIV):]...)
		out = cs.aead.Seal(out, nonce, payload, cs.additionalData(ct, len(payload)))
		cs.seq++
		return out, nil
	}

	mac := cs.computeMAC(ct, payload)

	blockSize := cs.block.BlockSize()
	iv := make([]byte, blockSize)
	if err := cs.env.RandomBytes(iv); err != nil {
		return nil, errors.Wrap(err, "could not draw record IV")
	}

	plen := len(payload) + len(mac)
	padLen := blockSize - plen%blockSize
	buf := make([]byte, plen+padLen)
	copy(buf, payload)
	copy(buf[len(payload):], mac)
	for i := plen; i < len(buf); i++ {
		buf[i] = byte(padLen - 1)
	}

	cipher.NewCBCEncrypter(cs.block, iv).CryptBlocks(buf, buf)
	cs.seq++
	return append(iv, buf...), nil
}

// Deprotects an inbound record payload. The sequence number advances only on
// success; a failed record poisons the connection anyway.
func (cs *cipherState) open(ct ContentType, payload []byte) ([]byte, error) {
	if cs.suite.aead {
		overhead := gcmExplicitNonceLength_bytes + gcmTagLength_bytes
		if len(payload) < overhead {
			return nil, fatalf(KindBrokenPacket, "AEAD record of %d bytes is shorter than its overhead", len(payload))
		}

		nonce := make([]byte, 0, len(cs.fixedIV)+gcmExplicitNonceLength_bytes)
		nonce = append(nonce, cs.fixedIV...)
		nonce = append(nonce, payload[:gcmExplicitNonceLength_bytes]...)

		plaintextLen := len(payload) - overhead
		plaintext, err := cs.aead.Open(nil, nonce, payload[gcmExplicitNonceLength_bytes:], cs.additionalData(ct, plaintextLen))
		if err != nil {
			return nil, fatalf(KindNotVerified, "record failed authentication")
		}
		cs.seq++
		return plaintext, nil
	}

	blockSize := cs.block.BlockSize()
	if len(payload) < 2*blockSize || len(payload)%blockSize != 0 {
		return nil, fatalf(KindDecryptionFailed, "CBC record of %d bytes is not a block multiple", len(payload))
	}

	iv := payload[:blockSize]
	buf := make([]byte, len(payload)-blockSize)
	cipher.NewCBCDecrypter(cs.block, iv).CryptBlocks(buf, payload[blockSize:])

	padLen := int(buf[len(buf)-1]) + 1
	if padLen > len(buf)-cs.suite.macLen {
		return nil, fatalf(KindNotVerified, "record failed authentication")
	}
	for _, b := range buf[len(buf)-padLen:] {
		if int(b) != padLen-1 {
			return nil, fatalf(KindNotVerified, "record failed authentication")
		}
	}
	buf = buf[:len(buf)-padLen]

	plaintext := buf[:len(buf)-cs.suite.macLen]
	gotMAC := buf[len(plaintext):]
	wantMAC := cs.computeMAC(ct, plaintext)
	if subtle.ConstantTimeCompare(gotMAC, wantMAC) != 1 {
		return nil, fatalf(KindNotVerified, "record failed authentication")
	}

	cs.seq++
	return plaintext, nil
}
