package ja3

// https://github.com/salesforce/ja3

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
)

const (
	dashByte  = byte(45)
	commaByte = byte(44)
)

// The shape of a ClientHello offer, reduced to the fields the JA3
// fingerprint is computed over.
type ClientHello struct {
	Version         uint16
	CipherSuites    []uint16
	Extensions      []uint16
	SupportedCurves []uint16
	PointFormats    []uint8
}

// Fingerprint returns the JA3 string of the client hello:
// SSLVersion,Cipher,SSLExtension,EllipticCurve,EllipticCurvePointFormat
func Fingerprint(hello ClientHello) string {
	byteString := make([]byte, 0)

	// Version
	byteString = strconv.AppendUint(byteString, uint64(hello.Version), 10)
	byteString = append(byteString, commaByte)

	byteString = appendList16(byteString, hello.CipherSuites)
	byteString = append(byteString, commaByte)

	byteString = appendList16(byteString, hello.Extensions)
	byteString = append(byteString, commaByte)

	byteString = appendList16(byteString, hello.SupportedCurves)
	byteString = append(byteString, commaByte)

	for i, v := range hello.PointFormats {
		if i > 0 {
			byteString = append(byteString, dashByte)
		}
		byteString = strconv.AppendUint(byteString, uint64(v), 10)
	}

	return string(byteString)
}

// Hash returns the JA3 fingerprint hash of the client hello.
func Hash(hello ClientHello) string {
	sum := md5.Sum([]byte(Fingerprint(hello)))
	return hex.EncodeToString(sum[:])
}

func appendList16(byteString []byte, vals []uint16) []byte {
	for i, v := range vals {
		if i > 0 {
			byteString = append(byteString, dashByte)
		}
		byteString = strconv.AppendUint(byteString, uint64(v), 10)
	}
	return byteString
}
