package tls12

import (
	"crypto/hmac"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Independent rendering of P_SHA256, expanded one HMAC block at a time, to
// cross-check the streaming implementation.
func referencePSHA256(secret, seed []byte, outLen int) []byte {
	mac := func(data ...[]byte) []byte {
		h := hmac.New(sha256.New, secret)
		for _, d := range data {
			h.Write(d)
		}
		return h.Sum(nil)
	}

	var out []byte
	a := seed
	for len(out) < outLen {
		a = mac(a)
		out = append(out, mac(a, seed)...)
	}
	return out[:outLen]
}

func TestPRFMatchesReference(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	label := "test label"
	seed := []byte("deterministic seed bytes")

	for _, outLen := range []int{1, 12, 31, 32, 33, 48, 100, 140} {
		labelAndSeed := append([]byte(label), seed...)
		expected := referencePSHA256(secret, labelAndSeed, outLen)
		assert.Equal(t, expected, prf(secret, label, seed, outLen), "output length %d", outLen)
	}
}

func TestPRFIsDeterministic(t *testing.T) {
	secret := make([]byte, 48)
	seed := make([]byte, 64)
	assert.Equal(t,
		prf(secret, labelMasterSecret, seed, 48),
		prf(secret, labelMasterSecret, seed, 48))
}

func TestPRFLabelSeparation(t *testing.T) {
	secret := []byte("secret")
	seed := []byte("seed")
	assert.NotEqual(t,
		prf(secret, labelClientFinished, seed, 12),
		prf(secret, labelServerFinished, seed, 12))
}

func TestMasterSecretLength(t *testing.T) {
	premaster := make([]byte, premasterSecretLength_bytes)
	clientRandom := make([]byte, randomLength_bytes)
	serverRandom := make([]byte, randomLength_bytes)

	master := deriveMasterSecret(premaster, clientRandom, serverRandom)
	assert.Len(t, []byte(master), masterSecretLength_bytes)
}

// Swapping the randoms must change the derivation: the master secret seeds
// client_random || server_random, the key block the reverse.
func TestDerivationSeedOrder(t *testing.T) {
	premaster := []byte("premaster premaster premaster premaster premaster")
	a := make([]byte, randomLength_bytes)
	b := make([]byte, randomLength_bytes)
	for i := range b {
		b[i] = 0xff
	}

	assert.NotEqual(t,
		[]byte(deriveMasterSecret(premaster, a, b)),
		[]byte(deriveMasterSecret(premaster, b, a)))
}

func TestKeyBlockPartitioning(t *testing.T) {
	master := make([]byte, masterSecretLength_bytes)
	clientRandom := make([]byte, randomLength_bytes)
	serverRandom := make([]byte, randomLength_bytes)

	cases := []struct {
		suite  CipherSuite
		macLen int
		keyLen int
		ivLen  int
	}{
		{TLS_RSA_WITH_AES_128_CBC_SHA, 20, 16, 16},
		{TLS_RSA_WITH_AES_256_CBC_SHA, 20, 32, 16},
		{TLS_RSA_WITH_AES_128_CBC_SHA256, 32, 16, 16},
		{TLS_RSA_WITH_AES_256_CBC_SHA256, 32, 32, 16},
		{TLS_RSA_WITH_AES_128_GCM_SHA256, 0, 16, 4},
		{TLS_RSA_WITH_AES_256_GCM_SHA384, 0, 32, 4},
	}

	for _, tc := range cases {
		t.Run(tc.suite.String(), func(t *testing.T) {
			km := deriveKeyBlock(master, clientRandom, serverRandom, supportedSuites[tc.suite])
			assert.Len(t, km.clientMAC, tc.macLen)
			assert.Len(t, km.serverMAC, tc.macLen)
			assert.Len(t, km.clientKey, tc.keyLen)
			assert.Len(t, km.serverKey, tc.keyLen)
			assert.Len(t, km.clientIV, tc.ivLen)
			assert.Len(t, km.serverIV, tc.ivLen)

			// The slices are consecutive cuts of one PRF stream.
			raw := prf(master, labelKeyExpansion,
				append(append([]byte{}, serverRandom...), clientRandom...),
				2*tc.macLen+2*tc.keyLen+2*tc.ivLen)
			flat := append(append(append(append(append(append([]byte{},
				km.clientMAC...), km.serverMAC...), km.clientKey...), km.serverKey...), km.clientIV...), km.serverIV...)
			assert.Equal(t, raw, flat)
		})
	}
}

func TestFinishedVerifyLength(t *testing.T) {
	master := make([]byte, masterSecretLength_bytes)
	digest := make([]byte, sha256.Size)
	vd := finishedVerify(master, labelClientFinished, digest)
	require.Len(t, vd, verifyDataLength_bytes)
}

func TestKeyMaterialWipe(t *testing.T) {
	master := make([]byte, masterSecretLength_bytes)
	km := deriveKeyBlock(master, make([]byte, 32), make([]byte, 32), supportedSuites[TLS_RSA_WITH_AES_128_CBC_SHA256])

	raw := km.raw
	km.wipe()
	for _, b := range raw {
		require.Zero(t, b)
	}
	assert.Nil(t, km.clientKey)
}
