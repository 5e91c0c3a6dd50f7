package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/joshuafuller/linkbeacon/internal/errors"
	"github.com/joshuafuller/linkbeacon/internal/protocol"
)

// Config selects the sockets a UDPTransport opens.
type Config struct {
	// Interfaces are the OS interface names to join the groups on. Empty
	// selects every up, multicast-capable interface.
	Interfaces []string
	// IPv6 additionally opens [::]:5353 and joins ff02::fb.
	IPv6 bool
	// Port defaults to 5353.
	Port int
}

type inbound struct {
	data    []byte
	src     net.Addr
	ifIndex int
}

// UDPTransport is the mDNS socket pair: 0.0.0.0:5353 joined to 224.0.0.251
// and, optionally, [::]:5353 joined to ff02::fb. Both sockets set
// SO_REUSEADDR/SO_REUSEPORT so the responder can coexist with the OS
// resolver, and report the receiving interface through control messages.
type UDPTransport struct {
	log    *log.Entry
	port   int
	ifaces []net.Interface

	conn4 net.PacketConn
	pc4   *ipv4.PacketConn
	conn6 net.PacketConn
	pc6   *ipv6.PacketConn

	packets   chan inbound
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup
}

var _ Transport = (*UDPTransport)(nil)

// NewUDPTransport opens and configures the sockets described by cfg.
func NewUDPTransport(ctx context.Context, log *log.Entry, cfg Config) (*UDPTransport, error) {
	if cfg.Port == 0 {
		cfg.Port = protocol.Port
	}

	ifaces, err := multicastInterfaces(cfg.Interfaces)
	if err != nil {
		return nil, err
	}

	t := &UDPTransport{
		log:     log,
		port:    cfg.Port,
		ifaces:  ifaces,
		packets: make(chan inbound, 32),
		done:    make(chan struct{}),
	}

	if err := t.openIPv4(ctx); err != nil {
		return nil, err
	}
	if cfg.IPv6 {
		if err := t.openIPv6(ctx); err != nil {
			_ = t.conn4.Close()
			return nil, err
		}
	}

	t.wg.Add(1)
	go t.readLoop(func(buf []byte) (int, int, net.Addr, error) {
		n, cm, src, err := t.pc4.ReadFrom(buf)
		idx := 0
		if cm != nil {
			idx = cm.IfIndex
		}
		return n, idx, src, err
	})
	if t.pc6 != nil {
		t.wg.Add(1)
		go t.readLoop(func(buf []byte) (int, int, net.Addr, error) {
			n, cm, src, err := t.pc6.ReadFrom(buf)
			idx := 0
			if cm != nil {
				idx = cm.IfIndex
			}
			return n, idx, src, err
		})
	}
	return t, nil
}

func listenConfig() net.ListenConfig {
	return net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var serr error
			if err := c.Control(func(fd uintptr) {
				serr = setSocketOptions(fd)
			}); err != nil {
				return err
			}
			return serr
		},
	}
}

func (t *UDPTransport) openIPv4(ctx context.Context) error {
	lc := listenConfig()
	conn, err := lc.ListenPacket(ctx, "udp4", net.JoinHostPort("0.0.0.0", strconv.Itoa(t.port)))
	if err != nil {
		return &errors.NetworkError{
			Operation: "create socket",
			Err:       err,
			Details:   fmt.Sprintf("failed to bind udp4 port %d", t.port),
		}
	}

	pc := ipv4.NewPacketConn(conn)
	group := &net.UDPAddr{IP: protocol.MulticastGroupIPv4}

	joined := 0
	for i := range t.ifaces {
		if err := pc.JoinGroup(&t.ifaces[i], group); err != nil {
			t.log.WithError(err).WithField("interface", t.ifaces[i].Name).Debug("cannot join IPv4 group")
			continue
		}
		joined++
	}
	if joined == 0 {
		_ = conn.Close()
		return &errors.NetworkError{
			Operation: "join group",
			Err:       fmt.Errorf("no interface joined %s", protocol.MulticastAddrIPv4),
		}
	}

	// Control messages are best effort: without them interface index is 0.
	if err := pc.SetControlMessage(ipv4.FlagInterface, true); err != nil {
		t.log.WithError(err).Debug("interface control messages unavailable")
	}
	// RFC 6762 §11: packets are sent with IP TTL 255.
	_ = pc.SetMulticastTTL(255)
	_ = pc.SetMulticastLoopback(true)

	t.conn4, t.pc4 = conn, pc
	return nil
}

func (t *UDPTransport) openIPv6(ctx context.Context) error {
	lc := listenConfig()
	conn, err := lc.ListenPacket(ctx, "udp6", net.JoinHostPort("::", strconv.Itoa(t.port)))
	if err != nil {
		return &errors.NetworkError{
			Operation: "create socket",
			Err:       err,
			Details:   fmt.Sprintf("failed to bind udp6 port %d", t.port),
		}
	}

	pc := ipv6.NewPacketConn(conn)
	group := &net.UDPAddr{IP: protocol.MulticastGroupIPv6}

	joined := 0
	for i := range t.ifaces {
		if err := pc.JoinGroup(&t.ifaces[i], group); err != nil {
			t.log.WithError(err).WithField("interface", t.ifaces[i].Name).Debug("cannot join IPv6 group")
			continue
		}
		joined++
	}
	if joined == 0 {
		_ = conn.Close()
		return &errors.NetworkError{
			Operation: "join group",
			Err:       fmt.Errorf("no interface joined %s", protocol.MulticastAddrIPv6),
		}
	}

	if err := pc.SetControlMessage(ipv6.FlagInterface, true); err != nil {
		t.log.WithError(err).Debug("interface control messages unavailable")
	}
	_ = pc.SetMulticastHopLimit(255)
	_ = pc.SetMulticastLoopback(true)

	t.conn6, t.pc6 = conn, pc
	return nil
}

func multicastInterfaces(names []string) ([]net.Interface, error) {
	if len(names) > 0 {
		out := make([]net.Interface, 0, len(names))
		for _, name := range names {
			ifi, err := net.InterfaceByName(name)
			if err != nil {
				return nil, &errors.NetworkError{Operation: "lookup interface", Err: err, Details: name}
			}
			out = append(out, *ifi)
		}
		return out, nil
	}

	all, err := net.Interfaces()
	if err != nil {
		return nil, &errors.NetworkError{Operation: "list interfaces", Err: err}
	}
	var out []net.Interface
	for _, ifi := range all {
		if ifi.Flags&net.FlagUp != 0 && ifi.Flags&net.FlagMulticast != 0 {
			out = append(out, ifi)
		}
	}
	if len(out) == 0 {
		return nil, &errors.NetworkError{
			Operation: "list interfaces",
			Err:       fmt.Errorf("no multicast-capable interface is up"),
		}
	}
	return out, nil
}

// Read errors other than a close are retried after an exponential delay,
// reset by the next successful read.
const (
	readRetryInitial = 20 * time.Millisecond
	readRetryMax     = 2 * time.Second
)

func newReadBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = readRetryInitial
	b.MaxInterval = readRetryMax
	b.MaxElapsedTime = 0
	return b
}

func (t *UDPTransport) readLoop(read func([]byte) (int, int, net.Addr, error)) {
	defer t.wg.Done()

	retry := newReadBackOff()
	for {
		bufPtr := GetBuffer()
		n, idx, src, err := read(*bufPtr)
		if err != nil {
			PutBuffer(bufPtr)
			select {
			case <-t.done:
				return
			default:
			}
			wait := retry.NextBackOff()
			t.log.WithError(err).Debugf("receive failed, retrying in %s", wait)
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-t.done:
				timer.Stop()
				return
			}
			continue
		}
		retry.Reset()

		// Pool owns the buffer, the receiver owns the copy.
		data := make([]byte, n)
		copy(data, (*bufPtr)[:n])
		PutBuffer(bufPtr)

		select {
		case t.packets <- inbound{data: data, src: src, ifIndex: idx}:
		case <-t.done:
			return
		}
	}
}

// Send transmits packet to dest. Multicast goes out once per joined
// interface; a failure on one interface does not stop the others.
func (t *UDPTransport) Send(ctx context.Context, packet []byte, dest net.Addr) error {
	if err := ctx.Err(); err != nil {
		return &errors.NetworkError{Operation: "send", Err: err, Details: "context canceled before send"}
	}
	select {
	case <-t.done:
		return &errors.NetworkError{Operation: "send", Err: errors.ErrClosed}
	default:
	}

	addr, ok := dest.(*net.UDPAddr)
	if !ok {
		return &errors.NetworkError{Operation: "send", Err: fmt.Errorf("unsupported address %T", dest)}
	}

	var err error
	switch {
	case addr.IP.To4() != nil && addr.IP.IsMulticast():
		for i := range t.ifaces {
			_, werr := t.pc4.WriteTo(packet, &ipv4.ControlMessage{IfIndex: t.ifaces[i].Index}, addr)
			err = multierr.Append(err, wrapSend(werr, addr, t.ifaces[i].Name))
		}
	case addr.IP.To4() != nil:
		_, werr := t.pc4.WriteTo(packet, nil, addr)
		err = wrapSend(werr, addr, "")
	case t.pc6 == nil:
		return &errors.NetworkError{Operation: "send", Err: fmt.Errorf("IPv6 disabled"), Details: addr.String()}
	case addr.IP.IsMulticast():
		for i := range t.ifaces {
			_, werr := t.pc6.WriteTo(packet, &ipv6.ControlMessage{IfIndex: t.ifaces[i].Index}, addr)
			err = multierr.Append(err, wrapSend(werr, addr, t.ifaces[i].Name))
		}
	default:
		_, werr := t.pc6.WriteTo(packet, nil, addr)
		err = wrapSend(werr, addr, "")
	}
	return err
}

func wrapSend(err error, dest net.Addr, iface string) error {
	if err == nil {
		return nil
	}
	details := dest.String()
	if iface != "" {
		details += " via " + iface
	}
	return &errors.NetworkError{Operation: "send", Err: err, Details: details}
}

// Receive returns the next datagram from either socket.
func (t *UDPTransport) Receive(ctx context.Context) ([]byte, net.Addr, int, error) {
	select {
	case p := <-t.packets:
		return p.data, p.src, p.ifIndex, nil
	case <-t.done:
		return nil, nil, 0, &errors.NetworkError{Operation: "receive", Err: errors.ErrClosed}
	case <-ctx.Done():
		return nil, nil, 0, &errors.NetworkError{Operation: "receive", Err: ctx.Err()}
	}
}

// Close closes both sockets and waits for the readers to exit.
func (t *UDPTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.done)
		var err error
		if t.conn4 != nil {
			err = multierr.Append(err, t.conn4.Close())
		}
		if t.conn6 != nil {
			err = multierr.Append(err, t.conn6.Close())
		}
		t.wg.Wait()
		if err != nil {
			t.closeErr = &errors.NetworkError{Operation: "close socket", Err: err}
		}
	})
	return t.closeErr
}
