package capture

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mel2oo/go-tls12/tls12"
)

type pcapBuilder struct {
	t   *testing.T
	buf bytes.Buffer
	w   *pcapgo.Writer

	clientSeq uint32
	serverSeq uint32
	when      time.Time
}

func newPcapBuilder(t *testing.T) *pcapBuilder {
	b := &pcapBuilder{t: t, clientSeq: 1000, serverSeq: 2000, when: time.Unix(1685620800, 0)}
	b.w = pcapgo.NewWriter(&b.buf)
	require.NoError(t, b.w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	return b
}

func (b *pcapBuilder) addSegment(fromServer bool, payload []byte) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 1},
		DstMAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, 2},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		SrcIP:    net.IP{10, 0, 0, 1},
		DstIP:    net.IP{10, 0, 0, 2},
	}
	tcp := &layers.TCP{
		SrcPort: 50000,
		DstPort: 443,
		ACK:     true,
		PSH:     true,
		Window:  65535,
	}
	if fromServer {
		ip.SrcIP, ip.DstIP = ip.DstIP, ip.SrcIP
		tcp.SrcPort, tcp.DstPort = tcp.DstPort, tcp.SrcPort
		tcp.Seq = b.serverSeq
		b.serverSeq += uint32(len(payload))
	} else {
		tcp.Seq = b.clientSeq
		b.clientSeq += uint32(len(payload))
	}
	require.NoError(b.t, tcp.SetNetworkLayerForChecksum(ip))

	sbuf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(b.t, gopacket.SerializeLayers(sbuf, opts, eth, ip, tcp, gopacket.Payload(payload)))

	data := sbuf.Bytes()
	b.when = b.when.Add(time.Millisecond)
	require.NoError(b.t, b.w.WritePacket(gopacket.CaptureInfo{
		Timestamp:      b.when,
		CaptureLength:  len(data),
		Length:         len(data),
	}, data))
}

// Frames a record by hand: type, version, length, payload.
func record(ct byte, payload []byte) []byte {
	rec := []byte{ct, 0x03, 0x03, byte(len(payload) >> 8), byte(len(payload))}
	return append(rec, payload...)
}

func serverHelloRecord() []byte {
	body := []byte{0x03, 0x03}
	body = append(body, make([]byte, 32)...) // server random
	body = append(body, 0x00)                // empty session id
	body = append(body, 0x00, 0x3c)          // TLS_RSA_WITH_AES_128_CBC_SHA256
	body = append(body, 0x00)                // null compression

	msg := []byte{0x02, 0x00, 0x00, byte(len(body))}
	msg = append(msg, body...)
	return record(0x16, msg)
}

func TestInspect(t *testing.T) {
	// A genuine ClientHello produced by the engine.
	conn := tls12.NewConn(&tls12.Config{
		SNI:  "example.test",
		ALPN: []string{"h2"},
	}, &tls12.SystemEnvironment{}, nil)
	require.NoError(t, conn.Start())
	clientHello := conn.TakeOutbound()

	b := newPcapBuilder(t)
	b.addSegment(false, clientHello)
	b.addSegment(true, serverHelloRecord())
	b.addSegment(true, record(0x14, []byte{1}))                            // change_cipher_spec
	b.addSegment(true, record(0x16, []byte{0xde, 0xad, 0xbe, 0xef, 0x99})) // protected finished

	summary, err := Inspect(&b.buf)
	require.NoError(t, err)

	assert.Equal(t, "example.test", summary.SNIHostname.GetOrDefault(""))
	assert.Equal(t, []string{"h2"}, summary.OfferedALPN)
	assert.Contains(t, summary.OfferedSuites, tls12.TLS_RSA_WITH_AES_128_CBC_SHA256)

	selected, ok := summary.SelectedSuite.Get()
	require.True(t, ok)
	assert.Equal(t, tls12.TLS_RSA_WITH_AES_128_CBC_SHA256, selected)
	assert.Zero(t, summary.SessionIDLen)

	require.Len(t, summary.Records, 4)
	assert.Equal(t, []tls12.HandshakeType{tls12.TypeClientHello}, summary.Records[0].HandshakeTypes)
	assert.False(t, summary.Records[0].FromServer)
	assert.Equal(t, []tls12.HandshakeType{tls12.TypeServerHello}, summary.Records[1].HandshakeTypes)
	assert.True(t, summary.Records[1].FromServer)
	assert.Equal(t, tls12.ContentChangeCipherSpec, summary.Records[2].Type)
	assert.True(t, summary.Records[3].Protected)
	assert.Empty(t, summary.Records[3].HandshakeTypes)
}

func TestInspectEmptyCapture(t *testing.T) {
	b := newPcapBuilder(t)
	summary, err := Inspect(&b.buf)
	require.NoError(t, err)
	assert.Empty(t, summary.Records)
}
