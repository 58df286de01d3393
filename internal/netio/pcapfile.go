package netio

import (
	"fmt"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/tturner/vts/internal/vtserrors"
)

// FileSink records raw frames to a pcap file for offline inspection. It has
// no bearing on Port's send/recv path; wire it in alongside a Port when a
// run needs a capture artifact.
type FileSink struct {
	file   *os.File
	writer *pcapgo.Writer
}

// NewFileSink creates path and writes the pcap file header for Ethernet links.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create pcap file %s: %w", path, vtserrors.ErrIO)
	}
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65535, layers.LinkTypeEthernet); err != nil {
		f.Close()
		return nil, fmt.Errorf("write pcap header for %s: %w", path, vtserrors.ErrIO)
	}
	return &FileSink{file: f, writer: w}, nil
}

// Write appends one frame with the given capture timestamp.
func (s *FileSink) Write(frame []byte, ts time.Time) error {
	ci := gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: len(frame),
		Length:        len(frame),
	}
	if err := s.writer.WritePacket(ci, frame); err != nil {
		return fmt.Errorf("write pcap packet: %w", vtserrors.ErrIO)
	}
	return nil
}

// Close flushes and closes the underlying file.
func (s *FileSink) Close() error {
	return s.file.Close()
}
