package linkstate

import (
	"context"
	"net"
	"time"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"

	"github.com/joshuafuller/linkbeacon/internal/records"
)

// DefaultPollInterval is how often the Watcher samples interface state.
const DefaultPollInterval = 2 * time.Second

// ProbeFunc reports whether an OS interface is up with an IPv4 address.
type ProbeFunc func(name string) bool

// Watcher turns OS interface state into up/down events by polling.
type Watcher struct {
	log      *log.Entry
	clock    clock.Clock
	interval time.Duration
	names    map[records.Interface]string
	probe    ProbeFunc
	events   chan Event
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithClock replaces the wall clock, for tests.
func WithClock(c clock.Clock) WatcherOption {
	return func(w *Watcher) { w.clock = c }
}

// WithPollInterval sets the sampling period.
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithProbe replaces the interface probe, for tests.
func WithProbe(p ProbeFunc) WatcherOption {
	return func(w *Watcher) { w.probe = p }
}

// NewWatcher watches the OS interfaces named in names.
func NewWatcher(log *log.Entry, names map[records.Interface]string, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		log:      log,
		clock:    clock.New(),
		interval: DefaultPollInterval,
		names:    names,
		probe:    interfaceReady,
		events:   make(chan Event, 8),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Events returns the channel events are delivered on. It is closed when Run
// returns.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Run polls until ctx is done. The first sample reports the initial state of
// each interface that is up; interfaces that start down produce no event.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)

	up := make(map[records.Interface]bool, len(w.names))
	ticker := w.clock.Ticker(w.interval)
	defer ticker.Stop()

	for {
		for _, iface := range records.Interfaces {
			name, ok := w.names[iface]
			if !ok || name == "" {
				continue
			}
			now := w.probe(name)
			if now == up[iface] {
				continue
			}
			up[iface] = now

			ev := transition(iface, now)
			w.log.WithField("interface", name).Infof("link %s", ev)
			select {
			case w.events <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func transition(iface records.Interface, up bool) Event {
	switch {
	case iface == records.SoftAP && up:
		return APUp
	case iface == records.SoftAP:
		return APDown
	case up:
		return StationUp
	default:
		return StationDown
	}
}

func interfaceReady(name string) bool {
	ifi, err := net.InterfaceByName(name)
	if err != nil || ifi.Flags&net.FlagUp == 0 {
		return false
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		return false
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil {
			return true
		}
	}
	return false
}
