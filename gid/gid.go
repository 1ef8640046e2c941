package gid

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	connectionIDTag = "tls"
)

var baseBigInt = big.NewInt(62)

// Uniquely identifies one TLS connection for the lifetime of the process. We
// use a UUID instead of a hash of the endpoint tuple because IPs and ports
// may be reused, particularly in test setups.
type ConnectionID uuid.UUID

func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.New())
}

func (id ConnectionID) GetUUID() uuid.UUID {
	return uuid.UUID(id)
}

func (id ConnectionID) String() string {
	return fmt.Sprintf("%s_%s", connectionIDTag, encodeUUID(id.GetUUID()))
}

// Parses the string form produced by String.
func ParseConnectionID(s string) (ConnectionID, error) {
	prefix := connectionIDTag + "_"
	if !strings.HasPrefix(s, prefix) {
		return ConnectionID{}, errors.Errorf("%q is not a connection ID", s)
	}
	u, err := decodeUUID(strings.TrimPrefix(s, prefix))
	if err != nil {
		return ConnectionID{}, errors.Wrap(err, "could not decode connection ID")
	}
	return ConnectionID(u), nil
}

func encodeUUID(u uuid.UUID) string {
	uuidBs := [16]byte(u)
	n := big.NewInt(0)
	n.SetBytes(uuidBs[:])

	destBs := make([]byte, 0, 22)
	for n.Cmp(big.NewInt(0)) > 0 {
		r := big.NewInt(0)
		r.Mod(n, baseBigInt)
		n = n.Div(n, baseBigInt)
		destBs = append([]byte{alphabet[r.Int64()]}, destBs...)
	}

	// Always return a 22-character encoding, which is the maximum length of an
	// encoded UUID. Pad the front with 0s if necessary.
	return fmt.Sprintf("%022s", string(destBs))
}

func decodeUUID(s string) (uuid.UUID, error) {
	var bigI big.Int
	for _, c := range []byte(s) {
		i := strings.IndexByte(alphabet, c)
		if i < 0 {
			return uuid.Nil, fmt.Errorf("unexpected character %c in base62 literal", c)
		}
		bigI.Mul(&bigI, baseBigInt)
		bigI.Add(&bigI, big.NewInt(int64(i)))
	}

	uuidBytes := bigI.Bytes()
	if len(uuidBytes) > 16 {
		return uuid.Nil, errors.Errorf("cannot have more than 16 bytes of UUID")
	} else if len(uuidBytes) < 16 {
		// Make sure we always pass 16 bytes to uuid.FromBytes, or else it will
		// fail. The zero padding goes to the most significant position.
		tmp := make([]byte, 16)
		startOffset := 16 - len(uuidBytes)
		copy(tmp[startOffset:], uuidBytes)
		uuidBytes = tmp
	}

	return uuid.FromBytes(uuidBytes)
}
