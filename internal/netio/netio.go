// Package netio is the raw Ethernet frame I/O port: bind an interface, send
// and receive whole frames, and enumerate interfaces. It carries no protocol
// knowledge beyond an EtherType allow-list filter for SV and GOOSE.
package netio

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"github.com/tturner/vts/internal/iec61850"
	"github.com/tturner/vts/internal/netdetect"
	"github.com/tturner/vts/internal/vtserrors"
)

// recvPoll bounds every blocking Recv call so a cooperative stop request is
// observed within 100ms, per the core's suspension-point discipline.
const recvPoll = 100 * time.Millisecond

// Port is a bound raw-frame endpoint on one interface.
type Port struct {
	handle   *pcap.Handle
	packets  chan []byte
	localMac iec61850.Mac
	ifName   string
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// svGooseFilter admits only SV and GOOSE EtherTypes, optionally VLAN-tagged.
const svGooseFilter = "ether proto 0x88ba or ether proto 0x88b8 or (vlan and (ether proto 0x88ba or ether proto 0x88b8))"

// Bind opens iface for raw frame I/O, filtered to SV and GOOSE EtherTypes.
func Bind(iface string) (*Port, error) {
	handle, err := pcap.OpenLive(iface, 65535, true, pcap.BlockForever)
	if err != nil {
		return nil, fmt.Errorf("open live capture on %s: %w", iface, vtserrors.ErrIO)
	}
	if err := handle.SetBPFFilter(svGooseFilter); err != nil {
		handle.Close()
		return nil, fmt.Errorf("set bpf filter on %s: %w", iface, vtserrors.ErrIO)
	}

	mac, err := localMacFor(iface)
	if err != nil {
		handle.Close()
		return nil, err
	}

	p := &Port{
		handle:   handle,
		packets:  make(chan []byte, 256),
		localMac: mac,
		ifName:   iface,
		stopChan: make(chan struct{}),
	}

	p.wg.Add(1)
	go p.pump()

	return p, nil
}

func localMacFor(iface string) (iec61850.Mac, error) {
	ni, err := net.InterfaceByName(iface)
	if err != nil {
		return iec61850.Mac{}, fmt.Errorf("lookup interface %s: %w", iface, vtserrors.ErrIO)
	}
	var m iec61850.Mac
	copy(m[:], ni.HardwareAddr)
	return m, nil
}

// pump drains the pcap packet source into the buffered packets channel until
// the port is closed, mirroring the teacher's capture-loop goroutine.
func (p *Port) pump() {
	defer p.wg.Done()
	source := gopacket.NewPacketSource(p.handle, p.handle.LinkType())
	for {
		select {
		case <-p.stopChan:
			return
		case packet, ok := <-source.Packets():
			if !ok {
				return
			}
			if packet == nil {
				continue
			}
			select {
			case p.packets <- packet.Data():
			case <-p.stopChan:
				return
			}
		}
	}
}

// Send transmits one complete Ethernet frame.
func (p *Port) Send(frame []byte) error {
	if err := p.handle.WritePacketData(frame); err != nil {
		return fmt.Errorf("send on %s: %w", p.ifName, vtserrors.ErrIO)
	}
	return nil
}

// Recv blocks for at most recvPoll waiting for the next frame. Callers loop
// on vtserrors.ErrTimeout to keep suspension-point latency bounded.
func (p *Port) Recv() ([]byte, error) {
	select {
	case frame, ok := <-p.packets:
		if !ok {
			return nil, fmt.Errorf("recv on closed port %s: %w", p.ifName, vtserrors.ErrNotRunning)
		}
		return frame, nil
	case <-p.stopChan:
		return nil, fmt.Errorf("recv interrupted on %s: %w", p.ifName, vtserrors.ErrNotRunning)
	case <-time.After(recvPoll):
		return nil, fmt.Errorf("recv timed out on %s: %w", p.ifName, vtserrors.ErrTimeout)
	}
}

// LocalMac returns the bound interface's hardware address.
func (p *Port) LocalMac() iec61850.Mac { return p.localMac }

// Close stops the pump goroutine and releases the pcap handle. Idempotent.
func (p *Port) Close() error {
	p.stopOnce.Do(func() {
		close(p.stopChan)
		p.wg.Wait()
		p.handle.Close()
	})
	return nil
}

// Interfaces lists interfaces suitable for binding.
func Interfaces() ([]netdetect.InterfaceInfo, error) {
	return netdetect.ListInterfaces()
}
