package tls12

import (
	"crypto/sha256"
	"hash"
)

// A running hash over every handshake message seen or sent, header bytes
// included, in exact wire order. HelloRequest is never absorbed. The
// handshake hash function is _always_ SHA-256.
type transcript struct {
	h hash.Hash
}

func newTranscript() transcript {
	return transcript{h: sha256.New()}
}

func (t *transcript) Absorb(b []byte) {
	t.h.Write(b)
}

// Returns the digest at the current point of the transcript without
// finalizing; the transcript may keep absorbing afterwards.
func (t *transcript) Snapshot() []byte {
	return t.h.Sum(nil)
}
