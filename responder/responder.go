// Package responder implements an mDNS/DNS-SD responder that publishes a
// bounded set of services per logical network interface per RFC 6762.
//
// ## WHY THIS PACKAGE EXISTS
//
// A device with a station link and a soft-AP link needs to advertise its
// services (a web UI, a configuration endpoint) on whichever link is up, stop
// advertising them when a link drops, and flush them from peer caches before
// it powers off. This package ties the record table, the announcement
// scheduler and the query processor to a transport and to link events.
//
// ## PRIMARY TECHNICAL AUTHORITY
//
// - RFC 6762 §6: responding to PTR, A and AAAA questions
// - RFC 6762 §8.3: repeated unsolicited announcements
// - RFC 6762 §10.1: goodbye packets (TTL=0)
// - RFC 6762 §10.2: the cache-flush bit on unique records
// - RFC 6763 §9: service type enumeration (_services._dns-sd._udp.local.)
// - RFC 6763 §12: additional records (TXT, SRV, A, AAAA) sent with a PTR
//
// ## DESIGN
//
// One mutex serializes every table access: API calls, the receive loop and
// the scheduler. Responses are built under the mutex and sent after it is
// released, so a slow transport never blocks API callers.
//
// A record moves through these states:
//
//	Removed → Update (Add) → Normal (after 5 announcements)
//	Normal/Update → Suspend (link down) → Update (link up)
//	any active state → Remove (willRemove) → Removed (after 5 goodbyes)
//
// Announcements and goodbyes are paced: while any record has a countdown
// running a pacer goroutine wakes the scheduler every pace interval. The
// pacer exits when nothing is pending and is restarted by the next mutation.
// A housekeeping tick also wakes the scheduler once per second.
//
// ## KEY CONCEPTS
//
// - Interface: the logical link (Station or SoftAP) a record is published
//   on. The same service may be published on both, as two records.
//
// - Suspend: withdrawing a record with goodbyes while keeping its slot and
//   strings, so Resume can republish it unchanged.
//
// - Power-off: a PowerOff link event marks every record for removal and
//   sends the first goodbye synchronously, before the process exits.
//
// ## EXAMPLE USAGE
//
//	ctx := context.Background()
//	resp, err := responder.New(ctx,
//	    responder.WithInterfaceNames(map[records.Interface]string{records.Station: "wlan0"}),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer resp.Close()
//
//	err = resp.Add(records.Service{
//	    Hostname:     "dev.local.",
//	    ServiceName:  "_http._tcp.local.",
//	    InstanceName: "My Device._http._tcp.local.",
//	    TXT:          "path=/",
//	    Interface:    records.Station,
//	    Port:         80,
//	})
//
//	// Link went down: stop answering, send goodbyes.
//	resp.HandleEvent(linkstate.StationDown)
package responder

import (
	"context"
	goerrors "errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"

	"github.com/joshuafuller/linkbeacon/internal/errors"
	"github.com/joshuafuller/linkbeacon/internal/hostaddr"
	"github.com/joshuafuller/linkbeacon/internal/linkstate"
	"github.com/joshuafuller/linkbeacon/internal/message"
	"github.com/joshuafuller/linkbeacon/internal/metrics"
	"github.com/joshuafuller/linkbeacon/internal/protocol"
	"github.com/joshuafuller/linkbeacon/internal/records"
	"github.com/joshuafuller/linkbeacon/internal/responder"
	"github.com/joshuafuller/linkbeacon/internal/state"
	"github.com/joshuafuller/linkbeacon/internal/transport"
)

// DefaultTickInterval is the housekeeping period.
const DefaultTickInterval = time.Second

type inboundPacket struct {
	data    []byte
	src     net.Addr
	ifIndex int
}

// Responder publishes service records and answers mDNS queries for them.
//
// RFC 6762 §6: Responding
//
// A Responder owns:
//   - a fixed-capacity record table
//   - the query processor and response builder
//   - the transport, closed by Close
//   - three goroutines: the main loop, the receiver and (while announcements
//     are in flight) the pacer
//
// All methods are safe for concurrent use.
type Responder struct {
	mu        sync.Mutex
	table     *records.Table
	builder   *responder.ResponseBuilder
	processor *responder.Processor
	pacer     *state.Pacer
	closed    bool

	transport    transport.Transport
	addrs        hostaddr.Source
	destinations []net.Addr
	clock        clock.Clock
	log          *log.Entry
	metrics      *metrics.Metrics
	events       <-chan linkstate.Event
	ifaceNames   map[records.Interface]string

	capacity       int
	ipv6           bool
	maxIPv6        int
	maxMessageSize int
	tickInterval   time.Duration
	paceInterval   time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wake    chan struct{}
	packets chan inboundPacket
	wg      sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// New creates a Responder and starts its background goroutines.
//
// Unless WithTransport is given, New opens the UDP multicast sockets on port
// 5353, joining 224.0.0.251 (and ff02::fb with WithIPv6) on the interfaces
// from WithInterfaceNames.
//
// Cancelling ctx stops the background goroutines; Close must still be called
// to release the transport.
//
// Example:
//
//	resp, err := responder.New(ctx, responder.WithCapacity(4))
//	if err != nil {
//	    return err
//	}
//	defer resp.Close()
func New(ctx context.Context, opts ...Option) (*Responder, error) {
	r := &Responder{
		capacity:     records.DefaultCapacity,
		tickInterval: DefaultTickInterval,
		paceInterval: state.DefaultPaceInterval,
		wake:         make(chan struct{}, 1),
		packets:      make(chan inboundPacket, 16),
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if r.log == nil {
		r.log = log.NewEntry(log.StandardLogger())
	}
	r.log = r.log.WithField("component", "responder")
	if r.clock == nil {
		r.clock = clock.New()
	}
	if r.addrs == nil {
		r.addrs = hostaddr.NewSystem(r.log, r.ifaceNames)
	}
	if r.transport == nil {
		t, err := transport.NewUDPTransport(ctx, r.log, transport.Config{
			Interfaces: osInterfaces(r.ifaceNames),
			IPv6:       r.ipv6,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create transport: %w", err)
		}
		r.transport = t
	}

	r.destinations = transport.Destinations(r.ipv6, protocol.Port)
	r.table = records.NewTable(r.capacity)
	r.builder = responder.NewResponseBuilder(r.addrs, responder.BuilderConfig{
		IPv6:             r.ipv6,
		MaxIPv6Addresses: r.maxIPv6,
		MaxMessageSize:   r.maxMessageSize,
	})
	r.processor = responder.NewProcessor(r.log, r.table, r.builder)
	r.pacer = state.NewPacer(&r.mu, r.clock, r.paceInterval, r.table.Pending, r.signal)

	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(2)
	go r.receive()
	go r.run()

	return r, nil
}

func osInterfaces(names map[records.Interface]string) []string {
	var out []string
	for _, iface := range records.Interfaces {
		if name := names[iface]; name != "" {
			out = append(out, name)
		}
	}
	return out
}

// signal raises the wake signal without blocking. Pending wakes coalesce.
func (r *Responder) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Responder) run() {
	defer r.wg.Done()

	ticker := r.clock.Ticker(r.tickInterval)
	defer ticker.Stop()

	events := r.events
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.wake:
			r.advance()
		case <-ticker.C:
			r.advance()
		case p := <-r.packets:
			r.handlePacket(p)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			r.HandleEvent(ev)
		}
	}
}

func (r *Responder) receive() {
	defer r.wg.Done()

	for {
		data, src, ifIndex, err := r.transport.Receive(r.ctx)
		if err != nil {
			if r.ctx.Err() != nil || goerrors.Is(err, errors.ErrClosed) {
				return
			}
			r.log.WithError(err).Debug("receive failed")
			continue
		}

		select {
		case r.packets <- inboundPacket{data: data, src: src, ifIndex: ifIndex}:
		case <-r.ctx.Done():
			return
		}
	}
}

// handlePacket answers every question in a query. Decoding stops at the
// first malformed question; responses already built for earlier questions
// are still sent.
func (r *Responder) handlePacket(p inboundPacket) {
	r.metrics.Received()

	it, err := message.NewIterator(p.data)
	if err != nil {
		r.metrics.DecodeError()
		r.log.WithError(err).WithField("source", p.src).Debug("dropping malformed packet")
		return
	}
	hdr := it.Header()
	if hdr.IsResponse() {
		return
	}

	var out [][]byte
	collect := func(pkt []byte) { out = append(out, pkt) }

	r.mu.Lock()
	for {
		q, err := it.NextQuestion()
		if err != nil {
			if !goerrors.Is(err, io.EOF) {
				r.metrics.DecodeError()
				r.log.WithError(err).WithField("source", p.src).Debug("dropping rest of malformed query")
			}
			break
		}
		if n := r.processor.Process(hdr.ID, q, collect); n > 0 {
			r.metrics.Answered(q.Type.String())
			r.log.WithField("question", q.Name).WithField("type", q.Type).Tracef("answered with %d message(s)", n)
		}
	}
	r.mu.Unlock()

	r.send(out)
}

// outbox collects the messages emitted by one scheduler pass.
type outbox struct {
	r    *Responder
	msgs [][]byte
}

func (o *outbox) Announce(rec *records.ServiceRecord) {
	o.r.metrics.Announced()
	o.add(rec, rec.TTL)
}

func (o *outbox) Goodbye(rec *records.ServiceRecord) {
	o.r.metrics.SaidGoodbye()
	o.add(rec, 0)
}

func (o *outbox) add(rec *records.ServiceRecord, ttl uint32) {
	msgs, err := o.r.builder.Announcement(rec, ttl)
	if err != nil {
		o.r.log.WithError(err).WithField("service", rec.ServiceName).Warn("dropping announcement")
		return
	}
	o.msgs = append(o.msgs, msgs...)
}

// advanceLocked runs one scheduler pass. The caller holds r.mu.
func (r *Responder) advanceLocked() [][]byte {
	ob := &outbox{r: r}
	if state.Advance(r.table, ob) {
		r.pacer.Kick(r.ctx)
	}
	r.metrics.ObserveTable(r.table.Counts())
	return ob.msgs
}

func (r *Responder) advance() {
	r.mu.Lock()
	msgs := r.advanceLocked()
	r.mu.Unlock()

	r.send(msgs)
}

// send multicasts every message to every destination.
func (r *Responder) send(msgs [][]byte) {
	for _, msg := range msgs {
		for _, dest := range r.destinations {
			err := r.transport.Send(r.ctx, msg, dest)
			r.metrics.Sent(err)
			if err != nil {
				r.log.WithError(err).WithField("destination", dest).Warn("send failed")
			}
		}
	}
}

// scheduled is called after a mutation affected records. The caller holds
// r.mu.
func (r *Responder) scheduled() {
	r.signal()
	r.pacer.Kick(r.ctx)
}

// Close stops the background goroutines and closes the transport. Records
// are not withdrawn: send a PowerOff event and give the goodbyes time to go
// out first. Close is idempotent.
func (r *Responder) Close() error {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.cancel()
		r.mu.Unlock()

		r.closeErr = r.transport.Close()
		r.wg.Wait()
		r.pacer.Wait()
	})
	return r.closeErr
}
