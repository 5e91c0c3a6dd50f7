// Package transport sends and receives mDNS datagrams.
//
// The responder only depends on the Transport interface; UDPTransport is the
// production implementation and MockTransport the test double.
package transport

import (
	"context"
	"net"

	"github.com/joshuafuller/linkbeacon/internal/protocol"
)

// Transport abstracts network operations for sending and receiving mDNS
// packets.
type Transport interface {
	// Send transmits a packet to dest. Multicast destinations go out on every
	// joined interface.
	//
	// Returns a NetworkError on transmission failure.
	Send(ctx context.Context, packet []byte, dest net.Addr) error

	// Receive waits for an incoming packet, respecting context cancellation.
	//
	// interfaceIndex is the OS index of the receiving interface, or 0 when
	// the platform does not report it.
	Receive(ctx context.Context) (packet []byte, srcAddr net.Addr, interfaceIndex int, err error)

	// Close releases network resources and unblocks pending Receive calls.
	Close() error
}

// Destinations returns the addresses every response is sent to: the IPv4
// group, the IPv4 limited broadcast for networks that drop multicast and,
// when ipv6 is set, the IPv6 group. All use the mDNS port.
func Destinations(ipv6 bool, port int) []net.Addr {
	dests := []net.Addr{
		&net.UDPAddr{IP: protocol.MulticastGroupIPv4, Port: port},
		&net.UDPAddr{IP: protocol.BroadcastIPv4, Port: port},
	}
	if ipv6 {
		dests = append(dests, &net.UDPAddr{IP: protocol.MulticastGroupIPv6, Port: port})
	}
	return dests
}
