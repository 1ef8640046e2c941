// Package capture inspects recorded TLS handshakes. It follows the first
// TCP stream of a pcap capture, splits both directions into TLS records,
// and reports the plaintext portion of the handshake exchange. Records
// after a ChangeCipherSpec are reported by type and length only.
//
// This is a debugging aid for the handshake engine, not part of the engine
// itself.
package capture

import (
	"io"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/pkg/errors"

	"github.com/mel2oo/go-tls12/gid"
	"github.com/mel2oo/go-tls12/memview"
	"github.com/mel2oo/go-tls12/optionals"
	"github.com/mel2oo/go-tls12/tls12"
)

// One TLS record observed on the wire.
type RecordSummary struct {
	FromServer bool
	Type       tls12.ContentType
	Length     int

	// Filled for plaintext handshake records.
	HandshakeTypes []tls12.HandshakeType

	// Whether the record was sent after a ChangeCipherSpec in its direction.
	Protected bool
}

// What could be learned about a captured handshake without any keys.
type HandshakeSummary struct {
	ConnectionID gid.ConnectionID

	Records []RecordSummary

	// From the ClientHello, if observed.
	SNIHostname   optionals.Optional[string]
	OfferedALPN   []string
	OfferedSuites []tls12.CipherSuite

	// From the ServerHello, if observed.
	SelectedSuite optionals.Optional[tls12.CipherSuite]
	SessionIDLen  int
}

// Inspect reads a pcap stream and summarizes the first TCP conversation as
// a TLS handshake. Packets are assumed to be captured in order; this is a
// diagnostics tool, not a reassembler.
func Inspect(r io.Reader) (*HandshakeSummary, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "could not open capture")
	}

	var clientFlow, serverFlow string
	var clientData, serverData memview.MemView

	for {
		data, _, err := pr.ReadPacketData()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.Wrap(err, "could not read packet")
		}

		packet := gopacket.NewPacket(data, pr.LinkType(), gopacket.Default)
		transport := packet.TransportLayer()
		tcp, isTCP := transport.(*layers.TCP)
		if !isTCP || len(tcp.LayerPayload()) == 0 {
			continue
		}

		network := packet.NetworkLayer()
		if network == nil {
			continue
		}
		flow := network.NetworkFlow().String() + "|" + tcp.TransportFlow().String()

		// The first endpoint to speak is taken to be the client. Packets of
		// any other conversation are ignored.
		if clientFlow == "" {
			clientFlow = flow
			serverFlow = network.NetworkFlow().Reverse().String() + "|" + tcp.TransportFlow().Reverse().String()
		}
		if flow != clientFlow && flow != serverFlow {
			continue
		}

		payload := make([]byte, len(tcp.LayerPayload()))
		copy(payload, tcp.LayerPayload())
		if flow == clientFlow {
			clientData.Append(memview.New(payload))
		} else {
			serverData.Append(memview.New(payload))
		}
	}

	summary := &HandshakeSummary{ConnectionID: gid.NewConnectionID()}
	if err := summary.addDirection(clientData, false); err != nil {
		return nil, err
	}
	if err := summary.addDirection(serverData, true); err != nil {
		return nil, err
	}
	return summary, nil
}

func (s *HandshakeSummary) addDirection(data memview.MemView, fromServer bool) error {
	const recordHeaderLen = 5

	protected := false
	var offset int64
	for data.Len()-offset >= recordHeaderLen {
		ct := tls12.ContentType(data.GetByte(offset))
		length := int64(data.GetUint16(offset + 3))
		if data.Len()-offset-recordHeaderLen < length {
			break // trailing partial record
		}

		payload := data.SubView(offset+recordHeaderLen, offset+recordHeaderLen+length)
		offset += recordHeaderLen + length

		rec := RecordSummary{
			FromServer: fromServer,
			Type:       ct,
			Length:     int(length),
			Protected:  protected && ct != tls12.ContentChangeCipherSpec,
		}

		if ct == tls12.ContentChangeCipherSpec {
			protected = true
		}

		if ct == tls12.ContentHandshake && !rec.Protected {
			rec.HandshakeTypes = handshakeTypes(payload)
			s.noteHandshakeMessages(payload, fromServer)
		}

		s.Records = append(s.Records, rec)
	}
	return nil
}

// Lists the handshake message types inside a plaintext handshake record.
func handshakeTypes(payload memview.MemView) []tls12.HandshakeType {
	var types []tls12.HandshakeType
	var offset int64
	for payload.Len()-offset >= 4 {
		t := tls12.HandshakeType(payload.GetByte(offset))
		bodyLen := int64(payload.GetUint24(offset + 1))
		types = append(types, t)
		offset += 4 + bodyLen
	}
	return types
}

func (s *HandshakeSummary) noteHandshakeMessages(payload memview.MemView, fromServer bool) {
	var offset int64
	for payload.Len()-offset >= 4 {
		t := tls12.HandshakeType(payload.GetByte(offset))
		bodyLen := int64(payload.GetUint24(offset + 1))
		if payload.Len()-offset-4 < bodyLen {
			return
		}
		body := payload.SubView(offset+4, offset+4+bodyLen)
		offset += 4 + bodyLen

		switch {
		case t == tls12.TypeClientHello && !fromServer:
			s.noteClientHello(body)
		case t == tls12.TypeServerHello && fromServer:
			s.noteServerHello(body)
		}
	}
}

func (s *HandshakeSummary) noteClientHello(body memview.MemView) {
	r := body.CreateReader()

	// Seek past version and random, then the variable-length session id.
	if _, err := r.Seek(2+32, io.SeekCurrent); err != nil {
		return
	}
	if err := r.ReadByteAndSeek(); err != nil {
		return
	}

	// Offered cipher suites.
	suitesLen, suitesReader, err := r.ReadUint16AndTruncate()
	if err != nil {
		return
	}
	for i := 0; i < int(suitesLen)/2; i++ {
		v, err := suitesReader.ReadUint16()
		if err != nil {
			return
		}
		s.OfferedSuites = append(s.OfferedSuites, tls12.CipherSuite(v))
	}
	if _, err := r.Seek(int64(suitesLen), io.SeekCurrent); err != nil {
		return
	}

	// Compression methods.
	if err := r.ReadByteAndSeek(); err != nil {
		return
	}

	_, extReader, err := r.ReadUint16AndTruncate()
	if err != nil {
		return
	}
	for {
		extType, err := extReader.ReadUint16()
		if err == io.EOF {
			return
		} else if err != nil {
			return
		}
		extLen, fieldReader, err := extReader.ReadUint16AndTruncate()
		if err != nil {
			return
		}
		if _, err := extReader.Seek(int64(extLen), io.SeekCurrent); err != nil {
			return
		}

		switch extType {
		case 0x0000: // server_name
			if name, err := parseSNI(fieldReader); err == nil {
				s.SNIHostname = optionals.Some(name)
			}
		case 0x0010: // ALPN
			s.OfferedALPN = parseALPNList(fieldReader)
		}
	}
}

func (s *HandshakeSummary) noteServerHello(body memview.MemView) {
	r := body.CreateReader()
	if _, err := r.Seek(2+32, io.SeekCurrent); err != nil {
		return
	}
	sessionLen, err := r.ReadByte()
	if err != nil {
		return
	}
	s.SessionIDLen = int(sessionLen)
	if _, err := r.Seek(int64(sessionLen), io.SeekCurrent); err != nil {
		return
	}
	suite, err := r.ReadUint16()
	if err != nil {
		return
	}
	s.SelectedSuite = optionals.Some(tls12.CipherSuite(suite))
}

// Extracts the DNS hostname from a server_name extension body.
func parseSNI(r *memview.MemViewReader) (string, error) {
	for {
		entryLen, entryReader, err := r.ReadUint16AndTruncate()
		if err == io.EOF {
			break
		} else if err != nil {
			return "", err
		}
		if _, err := r.Seek(int64(entryLen), io.SeekCurrent); err != nil {
			return "", err
		}

		entryType, err := entryReader.ReadByte()
		if err != nil {
			return "", err
		}
		if entryType == 0 { // DNS hostname
			return entryReader.ReadString_uint16()
		}
	}
	return "", errors.New("no DNS hostname found in SNI extension")
}

// Extracts the protocol tokens from an ALPN extension body.
func parseALPNList(r *memview.MemViewReader) []string {
	result := []string{}

	_, listReader, err := r.ReadUint16AndTruncate()
	if err != nil {
		return result
	}
	for {
		protocol, err := listReader.ReadString_byte()
		if err != nil {
			return result
		}
		result = append(result, protocol)
	}
}
