// Package sink forwards channel changes to the external control surface.
// Every send leaves the process as an OSC datagram: OSC-mode channels go
// straight to their configured target, MIDI-mode channels are bridged as
// /midi/cc messages to a local OSC-to-MIDI bridge that owns the actual MIDI
// device.
package sink

import (
	"net"

	"github.com/pkg/errors"
	"github.com/scgolang/osc"
)

// Transport is the wire capability the dispatcher depends on: attempt to
// send one encoded message to a destination and report the outcome. The
// production implementation wraps a UDP OSC connection; tests substitute
// their own.
type Transport interface {
	Send(addr net.Addr, m osc.Message) error
	Close() error
}

type udpTransport struct {
	conn *osc.UDPConn
}

// NewUDPTransport opens an OSC connection on an ephemeral local port that
// can send to any destination address.
func NewUDPTransport() (Transport, error) {
	laddr, err := net.ResolveUDPAddr("udp", "0.0.0.0:0")
	if err != nil {
		return nil, errors.Wrap(err, "resolving local address")
	}
	conn, err := osc.ListenUDP("udp", laddr)
	if err != nil {
		return nil, errors.Wrap(err, "opening OSC connection")
	}
	return &udpTransport{conn: conn}, nil
}

func (t *udpTransport) Send(addr net.Addr, m osc.Message) error {
	return t.conn.SendTo(addr, m)
}

func (t *udpTransport) Close() error {
	return t.conn.Close()
}
