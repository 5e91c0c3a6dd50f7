package hostaddr

import (
	"net"
	"sync"

	"github.com/joshuafuller/linkbeacon/internal/records"
)

// Static is a Source whose addresses are set by the caller. It suits
// devices whose network stack pushes address changes, and tests.
type Static struct {
	mu   sync.RWMutex
	ipv4 map[records.Interface]net.IP
	ipv6 map[records.Interface][]IPv6Address
}

// NewStatic returns an empty Static source.
func NewStatic() *Static {
	return &Static{
		ipv4: make(map[records.Interface]net.IP),
		ipv6: make(map[records.Interface][]IPv6Address),
	}
}

// SetIPv4 sets the IPv4 address of iface. A nil ip clears it.
func (s *Static) SetIPv4(iface records.Interface, ip net.IP) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ipv4[iface] = ip
}

// SetIPv6 replaces the IPv6 addresses of iface.
func (s *Static) SetIPv6(iface records.Interface, addrs ...IPv6Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ipv6[iface] = addrs
}

func (s *Static) IPv4(iface records.Interface) net.IP {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ipv4[iface]
}

func (s *Static) IPv6(iface records.Interface) []IPv6Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]IPv6Address(nil), s.ipv6[iface]...)
}
