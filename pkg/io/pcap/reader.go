// Package pcap replays sensor lines captured from the network. Frames that
// a bridge forwarded over UDP or TCP are pulled out of the packet payloads.
package pcap

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/jonboulle/clockwork"

	pio "github.com/hed1ad/pulseguard/pkg/io"
)

// Reader replays a pcap capture as a line source.
type Reader struct {
	file      io.Closer
	handle    *pcapgo.Reader
	extractor *LineExtractor
	realtime  bool
	clock     clockwork.Clock
}

// Option configures a Reader.
type Option func(*Reader)

// WithPort keeps only payloads sent from or to port.
func WithPort(port uint16) Option {
	return func(r *Reader) {
		r.extractor.port = port
	}
}

// WithRealtime replays packets with their captured spacing, so the
// session timers see the captured pacing.
func WithRealtime(on bool) Option {
	return func(r *Reader) {
		r.realtime = on
	}
}

// WithClock sets the clock used for realtime pacing.
func WithClock(c clockwork.Clock) Option {
	return func(r *Reader) {
		r.clock = c
	}
}

// NewFileReader opens a capture file in the classic pcap format.
func NewFileReader(filename string, opts ...Option) (*Reader, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f, opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.file = f
	return r, nil
}

// NewReader reads a capture from src.
func NewReader(src io.Reader, opts ...Option) (*Reader, error) {
	handle, err := pcapgo.NewReader(src)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		handle:    handle,
		extractor: NewLineExtractor(0),
		clock:     clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Stream returns the extracted lines in capture order.
func (r *Reader) Stream(ctx context.Context) (<-chan string, error) {
	if r.handle == nil {
		return nil, errors.New("reader not initialized")
	}

	out := make(chan string, 1000)
	packetSource := gopacket.NewPacketSource(r.handle, r.handle.LinkType())

	go func() {
		defer close(out)
		var last time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case packet, ok := <-packetSource.Packets():
				if !ok {
					return
				}
				if r.realtime {
					ts := packet.Metadata().Timestamp
					if !last.IsZero() && ts.After(last) {
						select {
						case <-r.clock.After(ts.Sub(last)):
						case <-ctx.Done():
							return
						}
					}
					last = ts
				}
				for _, line := range r.extractor.Extract(packet) {
					select {
					case out <- line:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return out, nil
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// LineExtractor pulls newline-terminated text out of transport payloads.
// TCP payloads are reassembled per flow until a newline arrives; each UDP
// datagram is treated as complete. Lines longer than pio.MaxLineLength are
// dropped, and a flow never buffers more than that while waiting for a
// newline.
type LineExtractor struct {
	port     uint16
	partial  map[string][]byte
	overflow map[string]bool
}

// NewLineExtractor creates an extractor. A zero port accepts any port.
func NewLineExtractor(port uint16) *LineExtractor {
	return &LineExtractor{
		port:     port,
		partial:  make(map[string][]byte),
		overflow: make(map[string]bool),
	}
}

// Extract returns the complete lines carried by packet.
func (e *LineExtractor) Extract(packet gopacket.Packet) []string {
	app := packet.ApplicationLayer()
	if app == nil || len(app.Payload()) == 0 {
		return nil
	}

	var (
		src, dst uint16
		stream   bool
	)
	if tcpLayer := packet.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		tcp := tcpLayer.(*layers.TCP)
		src, dst, stream = uint16(tcp.SrcPort), uint16(tcp.DstPort), true
	} else if udpLayer := packet.Layer(layers.LayerTypeUDP); udpLayer != nil {
		udp := udpLayer.(*layers.UDP)
		src, dst = uint16(udp.SrcPort), uint16(udp.DstPort)
	} else {
		return nil
	}
	if e.port != 0 && src != e.port && dst != e.port {
		return nil
	}

	data := app.Payload()
	var key string
	if stream {
		key = flowKey(packet)
		data = append(e.partial[key], data...)
	}

	var lines []string
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		if stream && e.overflow[key] {
			delete(e.overflow, key)
		} else {
			lines = appendLine(lines, data[:i])
		}
		data = data[i+1:]
	}

	if stream {
		switch {
		case len(data) > pio.MaxLineLength:
			delete(e.partial, key)
			e.overflow[key] = true
		case len(data) > 0:
			e.partial[key] = append([]byte(nil), data...)
		default:
			delete(e.partial, key)
		}
	} else {
		lines = appendLine(lines, data)
	}
	return lines
}

func appendLine(lines []string, b []byte) []string {
	if len(b) > pio.MaxLineLength {
		return lines
	}
	text := strings.TrimSpace(strings.ToValidUTF8(string(b), ""))
	if text == "" {
		return lines
	}
	return append(lines, text)
}

func flowKey(packet gopacket.Packet) string {
	var key string
	if net := packet.NetworkLayer(); net != nil {
		key = net.NetworkFlow().String()
	}
	if tr := packet.TransportLayer(); tr != nil {
		key += "/" + tr.TransportFlow().String()
	}
	return key
}
