package gid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionIDRoundTrip(t *testing.T) {
	id := NewConnectionID()
	s := id.String()
	assert.True(t, strings.HasPrefix(s, "tls_"))
	assert.Len(t, s, len("tls_")+22)

	parsed, err := ParseConnectionID(s)
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestParseRejectsForeignIDs(t *testing.T) {
	_, err := ParseConnectionID("http_0000000000000000000000")
	assert.Error(t, err)

	_, err = ParseConnectionID("tls_!!!")
	assert.Error(t, err)
}
