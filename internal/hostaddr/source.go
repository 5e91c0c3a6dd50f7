// Package hostaddr resolves the addresses the responder advertises for each
// logical interface.
package hostaddr

import (
	"net"

	"github.com/joshuafuller/linkbeacon/internal/records"
)

// IPv6Address is a configured IPv6 address and whether duplicate address
// detection is still running on it.
type IPv6Address struct {
	IP        net.IP
	Tentative bool
}

// Source returns the current addresses of a logical interface. Both methods
// are called with the responder lock held and must not block.
type Source interface {
	IPv4(iface records.Interface) net.IP
	IPv6(iface records.Interface) []IPv6Address
}

// UsableIPv4 reports whether ip may be advertised in an A record.
func UsableIPv4(ip net.IP) bool {
	v4 := ip.To4()
	return v4 != nil && !v4.Equal(net.IPv4zero) && !v4.Equal(net.IPv4bcast)
}

// UsableIPv6 filters addrs down to at most max addresses that are neither
// tentative nor link-local.
func UsableIPv6(addrs []IPv6Address, max int) []net.IP {
	var out []net.IP
	for _, a := range addrs {
		if len(out) >= max {
			break
		}
		if a.Tentative || a.IP.To4() != nil || a.IP.To16() == nil {
			continue
		}
		if a.IP.IsLinkLocalUnicast() || a.IP.IsUnspecified() {
			continue
		}
		out = append(out, a.IP.To16())
	}
	return out
}
