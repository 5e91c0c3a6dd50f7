package hostaddr

import (
	"net"

	log "github.com/sirupsen/logrus"

	"github.com/joshuafuller/linkbeacon/internal/records"
)

// System reads addresses from the operating system's interfaces.
//
// The net package does not expose the IPv6 tentative flag, so every address
// it returns is reported as settled.
type System struct {
	log   *log.Entry
	names map[records.Interface]string
}

// NewSystem maps logical interfaces to OS interface names, e.g.
// {Station: "wlan0", SoftAP: "ap0"}.
func NewSystem(log *log.Entry, names map[records.Interface]string) *System {
	return &System{log: log, names: names}
}

func (s *System) addrs(iface records.Interface) []net.Addr {
	name, ok := s.names[iface]
	if !ok || name == "" {
		return nil
	}
	ifi, err := net.InterfaceByName(name)
	if err != nil {
		s.log.WithError(err).WithField("interface", name).Debug("interface lookup failed")
		return nil
	}
	if ifi.Flags&net.FlagUp == 0 {
		return nil
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		s.log.WithError(err).WithField("interface", name).Debug("address lookup failed")
		return nil
	}
	return addrs
}

func (s *System) IPv4(iface records.Interface) net.IP {
	for _, addr := range s.addrs(iface) {
		if ipnet, ok := addr.(*net.IPNet); ok {
			if v4 := ipnet.IP.To4(); v4 != nil {
				return v4
			}
		}
	}
	return nil
}

func (s *System) IPv6(iface records.Interface) []IPv6Address {
	var out []IPv6Address
	for _, addr := range s.addrs(iface) {
		if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() == nil {
			out = append(out, IPv6Address{IP: ipnet.IP})
		}
	}
	return out
}
