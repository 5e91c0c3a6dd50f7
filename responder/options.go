package responder

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"

	"github.com/joshuafuller/linkbeacon/internal/hostaddr"
	"github.com/joshuafuller/linkbeacon/internal/linkstate"
	"github.com/joshuafuller/linkbeacon/internal/metrics"
	"github.com/joshuafuller/linkbeacon/internal/records"
	"github.com/joshuafuller/linkbeacon/internal/transport"
)

// Option is a functional option for configuring a Responder.
//
// Options are applied by New before any socket is opened or goroutine is
// started, so an Option returning an error leaves nothing to clean up.
//
// Example:
//
//	resp, err := responder.New(ctx,
//	    responder.WithInterfaceNames(map[records.Interface]string{
//	        records.Station: "wlan0",
//	    }),
//	    responder.WithIPv6(true),
//	)
type Option func(*Responder) error

// WithTransport replaces the UDP multicast transport.
//
// The Responder takes ownership of t and closes it in Close. Tests pass a
// transport.MockTransport here to capture every datagram the responder emits.
func WithTransport(t transport.Transport) Option {
	return func(r *Responder) error {
		if t == nil {
			return fmt.Errorf("transport must not be nil")
		}
		r.transport = t
		return nil
	}
}

// WithAddressSource replaces the source of per-interface host addresses used
// for A and AAAA records.
//
// RFC 6762 §6.2: a responder answers for a host name with the addresses of
// the interface the record is published on. The default source reads them
// from the OS interfaces given to WithInterfaceNames.
func WithAddressSource(s hostaddr.Source) Option {
	return func(r *Responder) error {
		if s == nil {
			return fmt.Errorf("address source must not be nil")
		}
		r.addrs = s
		return nil
	}
}

// WithInterfaceNames maps the logical interfaces to OS interface names, e.g.
// {Station: "wlan0", SoftAP: "ap0"}.
//
// The default transport joins the multicast groups on exactly these
// interfaces and the default address source reads their addresses. Without
// this option the transport joins every multicast-capable interface, and no
// record has an address until WithAddressSource provides one.
func WithInterfaceNames(names map[records.Interface]string) Option {
	return func(r *Responder) error {
		r.ifaceNames = names
		return nil
	}
}

// WithLogger sets the logger. Defaults to the standard logrus logger.
func WithLogger(entry *log.Entry) Option {
	return func(r *Responder) error {
		r.log = entry
		return nil
	}
}

// WithClock replaces the wall clock that drives the housekeeping tick and
// the announcement pacer. Tests pass clock.NewMock().
func WithClock(c clock.Clock) Option {
	return func(r *Responder) error {
		r.clock = c
		return nil
	}
}

// WithMetrics records responder activity in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Responder) error {
		r.metrics = m
		return nil
	}
}

// WithCapacity sets the number of record slots. Add fails with
// errors.ErrResourceExhausted once every slot is in use.
func WithCapacity(n int) Option {
	return func(r *Responder) error {
		if n <= 0 {
			return fmt.Errorf("capacity must be positive, got %d", n)
		}
		r.capacity = n
		return nil
	}
}

// WithIPv6 enables AAAA records and the ff02::fb destination.
func WithIPv6(enabled bool) Option {
	return func(r *Responder) error {
		r.ipv6 = enabled
		return nil
	}
}

// WithMaxIPv6Addresses bounds the AAAA records published per interface.
// The default is 3. Use WithIPv6(false) to publish none.
func WithMaxIPv6Addresses(n int) Option {
	return func(r *Responder) error {
		if n < 1 {
			return fmt.Errorf("max IPv6 addresses must be at least 1, got %d", n)
		}
		r.maxIPv6 = n
		return nil
	}
}

// WithMaxMessageSize bounds every datagram the responder builds. A response
// that does not fit is dropped.
func WithMaxMessageSize(n int) Option {
	return func(r *Responder) error {
		r.maxMessageSize = n
		return nil
	}
}

// WithLinkEvents subscribes the responder to link state changes. The
// responder stops reading when events is closed.
func WithLinkEvents(events <-chan linkstate.Event) Option {
	return func(r *Responder) error {
		r.events = events
		return nil
	}
}

// WithTickInterval sets the housekeeping period. Each tick runs one
// scheduler pass.
func WithTickInterval(d time.Duration) Option {
	return func(r *Responder) error {
		if d <= 0 {
			return fmt.Errorf("tick interval must be positive, got %s", d)
		}
		r.tickInterval = d
		return nil
	}
}

// WithPaceInterval sets the spacing of repeated announcements and goodbyes.
func WithPaceInterval(d time.Duration) Option {
	return func(r *Responder) error {
		if d <= 0 {
			return fmt.Errorf("pace interval must be positive, got %s", d)
		}
		r.paceInterval = d
		return nil
	}
}
