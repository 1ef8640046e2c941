package tls12

import (
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mel2oo/go-tls12/memview"
)

// Parses the Certificate handshake body: a 24-bit-prefixed list of
// 24-bit-prefixed DER blobs. Any length prefix inconsistent with the
// surrounding frame rejects the whole message.
func (c *Conn) handleCertificate(body []byte) error {
	mv := memview.New(body)
	r := mv.CreateReader()

	listLen, listReader, err := r.ReadUint24AndTruncate()
	if err != nil {
		return fatalf(KindBadCertificate, "certificate list overruns the message")
	}
	if int64(listLen) != mv.Len()-3 {
		return fatalf(KindBadCertificate, "certificate list length disagrees with the message length")
	}

	var certs []*x509.Certificate
	for listReader.Remaining() > 0 {
		certLen, err := listReader.ReadUint24()
		if err != nil {
			return fatalf(KindBadCertificate, "dangling certificate length")
		}
		if int64(certLen) > listReader.Remaining() {
			return fatalf(KindBadCertificate, "certificate entry overruns the list")
		}

		der := make([]byte, certLen)
		if err := listReader.ReadFull(der); err != nil {
			return fatalf(KindBadCertificate, "certificate entry overruns the list")
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return fatalf(KindBadCertificate, "could not parse certificate: %v", err)
		}
		certs = append(certs, cert)
	}

	if len(certs) == 0 {
		return fatalf(KindBadCertificate, "server presented no certificates")
	}
	c.ctx.certificates = certs

	if err := c.validateChain(); err != nil {
		return err
	}

	leaf := c.ctx.certificates[0]
	c.log.Debug("certificate chain validated",
		zap.String("subject", leaf.Subject.CommonName),
		zap.Strings("sans", leaf.DNSNames),
		zap.Int("chain_length", len(certs)))
	return nil
}

// Selects a leaf matching the expected hostname, walks issuer→subject
// toward a trust anchor verifying each signature and validity period, and
// swaps the chosen leaf into position 0. An empty hostname matches any
// leaf.
func (c *Conn) validateChain() error {
	var candidates []int
	for i, cert := range c.ctx.certificates {
		if leafMatches(cert, c.ctx.sniHostname) {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return fatalf(KindBadCertificate, "no presented certificate matches %q", c.ctx.sniHostname)
	}

	now := c.env.Now()
	anchors := c.env.TrustAnchors()

	var lastErr error
	for _, leafIdx := range candidates {
		if err := c.verifyChainFrom(leafIdx, now, anchors); err != nil {
			lastErr = err
			continue
		}
		if leafIdx != 0 {
			c.ctx.certificates[0], c.ctx.certificates[leafIdx] = c.ctx.certificates[leafIdx], c.ctx.certificates[0]
		}
		return nil
	}
	return lastErr
}

func (c *Conn) verifyChainFrom(leafIdx int, now time.Time, anchors []*x509.Certificate) error {
	certs := c.ctx.certificates

	// The suites in scope encrypt the premaster to the leaf's RSA key.
	if _, isRSA := certs[leafIdx].PublicKey.(*rsa.PublicKey); !isRSA {
		return fatalf(KindUnsupportedCertificate, "leaf public key is not RSA")
	}

	cur := certs[leafIdx]
	for depth := 0; depth <= len(certs); depth++ {
		if now.Before(cur.NotBefore) || now.After(cur.NotAfter) {
			return fatalf(KindCertificateExpired, "certificate %q outside its validity period", cur.Subject.CommonName)
		}

		// Terminate at a trust anchor.
		for _, anchor := range anchors {
			if bytes.Equal(cur.Raw, anchor.Raw) {
				return nil
			}
			if bytes.Equal(cur.RawIssuer, anchor.RawSubject) && cur.CheckSignatureFrom(anchor) == nil {
				return nil
			}
		}

		if bytes.Equal(cur.RawIssuer, cur.RawSubject) {
			if c.cfg.AcceptSelfSigned && cur.CheckSignature(cur.SignatureAlgorithm, cur.RawTBSCertificate, cur.Signature) == nil {
				return nil
			}
			return fatalf(KindCertificateUnknown, "self-signed certificate %q is not trusted", cur.Subject.CommonName)
		}

		// Find the issuer among the presented certificates.
		var issuer *x509.Certificate
		for _, cand := range certs {
			if cand == cur {
				continue
			}
			if bytes.Equal(cur.RawIssuer, cand.RawSubject) {
				issuer = cand
				break
			}
		}
		if issuer == nil {
			return fatalf(KindCertificateUnknown, "issuer of %q is not presented and not a trust anchor", cur.Subject.CommonName)
		}
		if err := cur.CheckSignatureFrom(issuer); err != nil {
			return fatalf(KindCertificateUnknown, "signature on %q does not verify: %v", cur.Subject.CommonName, err)
		}
		cur = issuer
	}

	return fatalf(KindCertificateUnknown, "certificate chain does not terminate")
}

// Whether the certificate authenticates the given hostname through its
// subject common name or any SAN. An empty hostname matches any leaf.
func leafMatches(cert *x509.Certificate, hostname string) bool {
	if hostname == "" {
		return true
	}
	if matchHostname(cert.Subject.CommonName, hostname) {
		return true
	}
	for _, san := range cert.DNSNames {
		if matchHostname(san, hostname) {
			return true
		}
	}
	return false
}

// Case-insensitive hostname match. A leading "*." wildcard matches exactly
// one label.
func matchHostname(pattern, host string) bool {
	pattern = strings.ToLower(strings.TrimSuffix(pattern, "."))
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if pattern == "" || host == "" {
		return false
	}

	patternLabels := strings.Split(pattern, ".")
	hostLabels := strings.Split(host, ".")
	if len(patternLabels) != len(hostLabels) {
		return false
	}

	for i, label := range patternLabels {
		if i == 0 && label == "*" {
			if hostLabels[0] == "" {
				return false
			}
			continue
		}
		if label != hostLabels[i] {
			return false
		}
	}
	return true
}
