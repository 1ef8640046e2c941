// tlsping drives the handshake engine from the command line: `dial`
// performs a live TLS 1.2 handshake against a server and reports the
// negotiated parameters; `tap` summarizes a recorded handshake from a pcap
// file.
package main

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mel2oo/go-tls12/capture"
	"github.com/mel2oo/go-tls12/slices"
	"github.com/mel2oo/go-tls12/tls12"
)

var (
	flagVerbose  bool
	flagSNI      string
	flagALPN     []string
	flagCAFile   string
	flagInsecure bool
	flagTimeout  time.Duration
)

func main() {
	root := &cobra.Command{
		Use:           "tlsping",
		Short:         "TLS 1.2 client handshake tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log handshake progress")

	dialCmd := &cobra.Command{
		Use:   "dial host:port",
		Short: "Perform a TLS 1.2 handshake against a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runDial(args[0])
		},
	}
	dialCmd.Flags().StringVar(&flagSNI, "sni", "", "hostname to verify (defaults to the dialed host)")
	dialCmd.Flags().StringSliceVar(&flagALPN, "alpn", nil, "application protocols to offer, in preference order")
	dialCmd.Flags().StringVar(&flagCAFile, "ca", "", "PEM file with trust anchors")
	dialCmd.Flags().BoolVar(&flagInsecure, "insecure", false, "accept self-signed certificates")
	dialCmd.Flags().DurationVar(&flagTimeout, "timeout", 10*time.Second, "handshake deadline")
	root.AddCommand(dialCmd)

	tapCmd := &cobra.Command{
		Use:   "tap capture.pcap",
		Short: "Summarize a recorded TLS handshake",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runTap(args[0])
		},
	}
	root.AddCommand(tapCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tlsping:", err)
		os.Exit(1)
	}
}

func newLogger() *zap.Logger {
	if !flagVerbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

type printingObserver struct{}

func (printingObserver) ReadyToWrite(*tls12.Conn)         {}
func (printingObserver) CertificateRequested(*tls12.Conn) {}
func (printingObserver) AlertReceived(_ *tls12.Conn, level tls12.AlertLevel, desc tls12.AlertDescription) {
	fmt.Printf("alert: %s %s\n", level, desc)
}

func runDial(address string) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return errors.Wrapf(err, "bad address %q", address)
	}
	sni := flagSNI
	if sni == "" {
		sni = host
	}

	anchors, err := loadAnchors(flagCAFile)
	if err != nil {
		return err
	}

	socket, err := net.DialTimeout("tcp", address, flagTimeout)
	if err != nil {
		return errors.Wrap(err, "could not connect")
	}
	defer socket.Close()

	cfg := &tls12.Config{
		SNI:              sni,
		ALPN:             flagALPN,
		HandshakeTimeout: flagTimeout,
		AcceptSelfSigned: flagInsecure,
		Logger:           newLogger(),
	}
	conn := tls12.NewConn(cfg, &tls12.SystemEnvironment{Anchors: anchors}, printingObserver{})

	if err := conn.Start(); err != nil {
		return err
	}

	buf := make([]byte, 16*1024)
	for conn.Status() != tls12.StatusEstablished {
		if out := conn.TakeOutbound(); len(out) > 0 {
			if _, err := socket.Write(out); err != nil {
				return errors.Wrap(err, "transport write failed")
			}
		}
		if conn.CriticalError() != nil {
			return conn.CriticalError()
		}

		socket.SetReadDeadline(time.Now().Add(flagTimeout))
		n, err := socket.Read(buf)
		if err != nil {
			return errors.Wrap(err, "transport read failed")
		}
		if err := conn.Feed(buf[:n]); err != nil {
			if out := conn.TakeOutbound(); len(out) > 0 {
				socket.Write(out) // deliver the closing alert
			}
			return err
		}
	}

	// Flush our final flight if the server's Finished raced ahead of it.
	if out := conn.TakeOutbound(); len(out) > 0 {
		if _, err := socket.Write(out); err != nil {
			return errors.Wrap(err, "transport write failed")
		}
	}

	fmt.Printf("connection:   %s\n", conn.ID())
	fmt.Printf("status:       %s\n", conn.Status())
	fmt.Printf("cipher suite: %s\n", conn.CipherSuite())
	fmt.Printf("alpn:         %s\n", conn.NegotiatedALPN().GetOrDefault("(none)"))
	if leaf := conn.PeerCertificates(); len(leaf) > 0 {
		fmt.Printf("leaf subject: %s\n", leaf[0].Subject.CommonName)
	}

	return conn.Close()
}

func loadAnchors(path string) ([]*x509.Certificate, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not read trust anchors")
	}

	var anchors []*x509.Certificate
	for {
		var block *pem.Block
		block, raw = pem.Decode(raw)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, errors.Wrap(err, "bad certificate in trust anchor file")
		}
		anchors = append(anchors, cert)
	}
	if len(anchors) == 0 {
		return nil, errors.Errorf("no certificates in %q", path)
	}
	return anchors, nil
}

func runTap(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "could not open capture")
	}
	defer f.Close()

	summary, err := capture.Inspect(f)
	if err != nil {
		return err
	}

	fmt.Printf("connection: %s\n", summary.ConnectionID)
	if sni, ok := summary.SNIHostname.Get(); ok {
		fmt.Printf("sni:        %s\n", sni)
	}
	if len(summary.OfferedALPN) > 0 {
		fmt.Printf("alpn offer: %v\n", summary.OfferedALPN)
	}
	if len(summary.OfferedSuites) > 0 {
		fmt.Printf("offered:    %v\n", slices.Map(summary.OfferedSuites, func(s tls12.CipherSuite) string {
			return fmt.Sprintf("0x%04x", uint16(s))
		}))
	}
	if suite, ok := summary.SelectedSuite.Get(); ok {
		fmt.Printf("selected:   %s (0x%04x)\n", suite, uint16(suite))
	}

	for _, rec := range summary.Records {
		dir := "client>"
		if rec.FromServer {
			dir = "server>"
		}
		detail := ""
		if len(rec.HandshakeTypes) > 0 {
			detail = fmt.Sprintf(" %v", rec.HandshakeTypes)
		}
		if rec.Protected {
			detail = " (protected)"
		}
		fmt.Printf("%s %-20s %5d bytes%s\n", dir, rec.Type, rec.Length, detail)
	}
	return nil
}
