package responder

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/joshuafuller/linkbeacon/internal/message"
	"github.com/joshuafuller/linkbeacon/internal/protocol"
	"github.com/joshuafuller/linkbeacon/internal/records"
)

const classANY uint16 = 255

// Processor answers questions from the record table. mDNS has no negative
// answers: anything we are not authoritative for is silently ignored.
type Processor struct {
	log     *log.Entry
	table   *records.Table
	builder *ResponseBuilder
}

// NewProcessor creates a processor over table.
func NewProcessor(log *log.Entry, table *records.Table, builder *ResponseBuilder) *Processor {
	return &Processor{log: log, table: table, builder: builder}
}

// Process answers q, calling respond once per response message, and
// returns the number of responses. The caller holds the table lock.
func (p *Processor) Process(id uint16, q message.Question, respond func([]byte)) int {
	if class := q.QClass(); class != protocol.ClassIN && class != classANY {
		return 0
	}

	switch q.Type {
	case protocol.RecordTypePTR:
		return p.answerPointer(id, q, respond)

	case protocol.RecordTypeANY:
		if n := p.answerPointer(id, q, respond); n > 0 {
			return n
		}
		return p.answerHost(id, q, protocol.RecordTypeA, respond)

	case protocol.RecordTypeA, protocol.RecordTypeAAAA:
		return p.answerHost(id, q, q.Type, respond)
	}
	return 0
}

func (p *Processor) answerPointer(id uint16, q message.Question, respond func([]byte)) int {
	if message.EqualNames(q.Name, protocol.ServicesMetaQuery) {
		var recs []*records.ServiceRecord
		p.advertised(func(rec *records.ServiceRecord) {
			recs = append(recs, rec)
		})
		pkt, err := p.builder.ServiceEnumeration(id, recs)
		return p.deliver(q, respond, pkt, err)
	}

	n := 0
	p.advertised(func(rec *records.ServiceRecord) {
		if message.EqualNames(q.Name, rec.ServiceName) {
			pkt, err := p.builder.ServiceRecords(id, rec, rec.TTL)
			n += p.deliver(q, respond, pkt, err)
		}
	})
	return n
}

// answerHost answers an address question once per (host, interface).
// Advertised records answer with their TTL. A host whose records are all
// suspended or being removed still answers, with TTL 0, so caches drop the
// stale address.
func (p *Processor) answerHost(id uint16, q message.Question, rrtype protocol.RecordType, respond func([]byte)) int {
	type key struct {
		host  string
		iface records.Interface
	}
	seen := make(map[key]bool)

	n := 0
	answer := func(rec *records.ServiceRecord, ttl uint32) {
		if !message.EqualNames(q.Name, rec.Hostname) {
			return
		}
		k := key{strings.ToLower(message.CanonicalName(rec.Hostname)), rec.Interface}
		if seen[k] {
			return
		}
		seen[k] = true
		pkt, err := p.builder.HostAddresses(id, rec.Hostname, rec.Interface, rrtype, ttl)
		n += p.deliver(q, respond, pkt, err)
	}

	p.advertised(func(rec *records.ServiceRecord) { answer(rec, rec.TTL) })
	for i := 0; i < p.table.Len(); i++ {
		if rec := p.table.At(i); rec.State != records.StateRemoved && !rec.State.Advertised() {
			answer(rec, 0)
		}
	}
	return n
}

func (p *Processor) advertised(fn func(*records.ServiceRecord)) {
	for i := 0; i < p.table.Len(); i++ {
		if rec := p.table.At(i); rec.State.Advertised() {
			fn(rec)
		}
	}
}

// deliver hands a built response to respond, dropping it when building
// failed.
func (p *Processor) deliver(q message.Question, respond func([]byte), pkt []byte, err error) int {
	if err != nil {
		p.log.WithError(err).WithField("question", q.Name).Warn("dropping response")
		return 0
	}
	if pkt == nil {
		return 0
	}
	respond(pkt)
	return 1
}
