package querier

import (
	"context"
	goerrors "errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/miekg/dns"
	log "github.com/sirupsen/logrus"

	"github.com/joshuafuller/linkbeacon/internal/errors"
	"github.com/joshuafuller/linkbeacon/internal/message"
	"github.com/joshuafuller/linkbeacon/internal/protocol"
	"github.com/joshuafuller/linkbeacon/internal/transport"
)

// DefaultTimeout is how long Query collects responses.
const DefaultTimeout = time.Second

// Querier sends one-shot mDNS queries and collects the responses that
// arrive within a timeout (RFC 6762 §5.1).
//
// A Querier is safe for concurrent use, but concurrent queries share one
// socket: each sees the responses to the others and keeps only the records
// answering its own question.
type Querier struct {
	transport transport.Transport
	log       *log.Entry
	timeout   time.Duration
	ipv6      bool
	ifaces    []string

	closeOnce sync.Once
	closeErr  error
}

// Option configures a Querier.
type Option func(*Querier) error

// WithTimeout sets how long each Query waits for responses.
func WithTimeout(d time.Duration) Option {
	return func(q *Querier) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", d)
		}
		q.timeout = d
		return nil
	}
}

// WithTransport replaces the UDP transport. The Querier closes it in Close.
func WithTransport(t transport.Transport) Option {
	return func(q *Querier) error {
		if t == nil {
			return fmt.Errorf("transport must not be nil")
		}
		q.transport = t
		return nil
	}
}

// WithInterfaces restricts the default transport to the named interfaces.
func WithInterfaces(names ...string) Option {
	return func(q *Querier) error {
		q.ifaces = names
		return nil
	}
}

// WithIPv6 also queries ff02::fb.
func WithIPv6(enabled bool) Option {
	return func(q *Querier) error {
		q.ipv6 = enabled
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(entry *log.Entry) Option {
	return func(q *Querier) error {
		q.log = entry
		return nil
	}
}

// New creates a Querier. Without WithTransport it binds port 5353 alongside
// any local responder.
func New(opts ...Option) (*Querier, error) {
	q := &Querier{timeout: DefaultTimeout}
	for _, opt := range opts {
		if err := opt(q); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	if q.log == nil {
		q.log = log.NewEntry(log.StandardLogger())
	}
	q.log = q.log.WithField("component", "querier")

	if q.transport == nil {
		t, err := transport.NewUDPTransport(context.Background(), q.log, transport.Config{
			Interfaces: q.ifaces,
			IPv6:       q.ipv6,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create transport: %w", err)
		}
		q.transport = t
	}
	return q, nil
}

// Query multicasts a question for name and returns every matching record
// received before the timeout or ctx expires. An empty Response is not an
// error: mDNS has no negative answers.
//
// Example:
//
//	resp, err := q.Query(ctx, "_services._dns-sd._udp.local", querier.RecordTypePTR)
//	for _, rr := range resp.Records {
//	    fmt.Println(rr.AsPTR())
//	}
func (q *Querier) Query(ctx context.Context, name string, rtype RecordType) (*Response, error) {
	if message.CanonicalName(name) == "" {
		return nil, &errors.ValidationError{Field: "name", Value: name, Message: "must not be empty"}
	}
	b := message.NewBuilder(0, 0, 0)
	if err := b.AddQuestion(message.DomainName(name), protocol.RecordType(rtype), protocol.ClassIN); err != nil {
		return nil, err
	}
	packet, err := b.Bytes()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	var sendErr error
	sent := 0
	for _, dest := range transport.Destinations(q.ipv6, protocol.Port) {
		if udp, ok := dest.(*net.UDPAddr); ok && !udp.IP.IsMulticast() {
			continue
		}
		if err := q.transport.Send(ctx, packet, dest); err != nil {
			sendErr = err
			continue
		}
		sent++
	}
	if sent == 0 {
		return nil, sendErr
	}

	return q.collect(ctx, name, rtype)
}

func (q *Querier) collect(ctx context.Context, name string, rtype RecordType) (*Response, error) {
	resp := &Response{}
	seen := make(map[string]bool)

	for {
		packet, src, _, err := q.transport.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return resp, nil
			}
			if goerrors.Is(err, errors.ErrClosed) {
				return resp, err
			}
			q.log.WithError(err).Debug("receive failed")
			continue
		}

		msg := new(dns.Msg)
		if err := msg.Unpack(packet); err != nil {
			q.log.WithError(err).WithField("source", src).Debug("ignoring malformed packet")
			continue
		}
		if !msg.Response || !answers(msg, name, rtype) {
			continue
		}

		for _, rr := range append(msg.Answer, msg.Extra...) {
			key := rr.String()
			if seen[key] {
				continue
			}
			rec, ok := fromRR(rr)
			if !ok {
				continue
			}
			seen[key] = true
			resp.Records = append(resp.Records, rec)
		}
	}
}

// answers reports whether msg holds a record for the question. Unsolicited
// announcements for other names are multicast to everyone and are skipped.
func answers(msg *dns.Msg, name string, rtype RecordType) bool {
	for _, rr := range msg.Answer {
		hdr := rr.Header()
		if !message.EqualNames(hdr.Name, name) {
			continue
		}
		if rtype == RecordTypeANY || RecordType(hdr.Rrtype) == rtype {
			return true
		}
	}
	return false
}

// Close releases the transport.
func (q *Querier) Close() error {
	q.closeOnce.Do(func() {
		q.closeErr = q.transport.Close()
	})
	return q.closeErr
}
