// Package responder turns table records into mDNS responses and answers
// questions against the record table.
package responder

import (
	"fmt"

	"github.com/joshuafuller/linkbeacon/internal/hostaddr"
	"github.com/joshuafuller/linkbeacon/internal/message"
	"github.com/joshuafuller/linkbeacon/internal/protocol"
	"github.com/joshuafuller/linkbeacon/internal/records"
)

// DefaultMaxIPv6Addresses bounds the AAAA records per interface.
const DefaultMaxIPv6Addresses = 3

// BuilderConfig tunes a ResponseBuilder.
type BuilderConfig struct {
	IPv6             bool // emit AAAA records
	MaxIPv6Addresses int  // zero selects DefaultMaxIPv6Addresses
	MaxMessageSize   int
}

// ResponseBuilder assembles the record sets of RFC 6763 §12 for table
// records, using the host's current addresses.
type ResponseBuilder struct {
	addrs   hostaddr.Source
	ipv6    bool
	maxIPv6 int
	maxSize int
}

// NewResponseBuilder creates a builder reading addresses from addrs.
func NewResponseBuilder(addrs hostaddr.Source, cfg BuilderConfig) *ResponseBuilder {
	if cfg.MaxIPv6Addresses <= 0 {
		cfg.MaxIPv6Addresses = DefaultMaxIPv6Addresses
	}
	return &ResponseBuilder{
		addrs:   addrs,
		ipv6:    cfg.IPv6,
		maxIPv6: cfg.MaxIPv6Addresses,
		maxSize: cfg.MaxMessageSize,
	}
}

func (rb *ResponseBuilder) newMessage(id uint16) *message.Builder {
	return message.NewBuilder(id, protocol.ResponseFlags, rb.maxSize)
}

var servicesMeta = message.DomainName(protocol.ServicesMetaQuery)

// ServiceEnumeration answers the DNS-SD meta query (RFC 6763 §9) with one
// PTR per record. It returns nil when recs is empty.
func (rb *ResponseBuilder) ServiceEnumeration(id uint16, recs []*records.ServiceRecord) ([]byte, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	b := rb.newMessage(id)
	for _, rec := range recs {
		if _, err := b.AddRecord(servicesMeta, protocol.ClassIN, protocol.RecordTypePTR,
			protocol.TTLServicesMeta, message.DomainName(rec.ServiceName)); err != nil {
			return nil, fmt.Errorf("enumerate %s: %w", rec.ServiceName, err)
		}
	}
	return b.Bytes()
}

// ServiceRecords builds PTR, TXT, SRV and the address records of rec at
// ttl. It returns nil when the host has no usable address for the record's
// interface, so a service is never advertised without a way to reach it.
func (rb *ResponseBuilder) ServiceRecords(id uint16, rec *records.ServiceRecord, ttl uint32) ([]byte, error) {
	service := message.DomainName(rec.ServiceName)
	instance := message.ServiceInstance(rec.InstanceName, rec.ServiceName)
	host := message.DomainName(rec.Hostname)
	flush := protocol.ClassIN | protocol.ClassCacheFlush

	b := rb.newMessage(id)
	if _, err := b.AddRecord(service, protocol.ClassIN, protocol.RecordTypePTR, ttl, instance); err != nil {
		return nil, fmt.Errorf("PTR %s: %w", rec.ServiceName, err)
	}
	if _, err := b.AddRecord(instance, flush, protocol.RecordTypeTXT, ttl, rec.TXT); err != nil {
		return nil, fmt.Errorf("TXT %s: %w", rec.InstanceName, err)
	}
	if _, err := b.AddRecord(instance, flush, protocol.RecordTypeSRV, ttl,
		message.SRV{Port: rec.Port, Target: host}); err != nil {
		return nil, fmt.Errorf("SRV %s: %w", rec.InstanceName, err)
	}

	n, err := rb.addAddresses(b, host, rec.Interface, ttl, true, rb.ipv6)
	if err != nil || n == 0 {
		return nil, err
	}
	return b.Bytes()
}

// HostAddresses answers an address query for hostname on iface. rrtype is
// RecordTypeA or RecordTypeAAAA. It returns nil when there is nothing to
// send.
func (rb *ResponseBuilder) HostAddresses(id uint16, hostname string, iface records.Interface, rrtype protocol.RecordType, ttl uint32) ([]byte, error) {
	wantA := rrtype == protocol.RecordTypeA
	wantAAAA := rrtype == protocol.RecordTypeAAAA && rb.ipv6

	b := rb.newMessage(id)
	n, err := rb.addAddresses(b, message.DomainName(hostname), iface, ttl, wantA, wantAAAA)
	if err != nil || n == 0 {
		return nil, err
	}
	return b.Bytes()
}

// Announcement returns the unsolicited messages for rec: a meta PTR for
// advertised records, then the full record set at ttl. A ttl of 0 makes it
// a goodbye.
func (rb *ResponseBuilder) Announcement(rec *records.ServiceRecord, ttl uint32) ([][]byte, error) {
	var out [][]byte
	if rec.State.Advertised() {
		meta, err := rb.ServiceEnumeration(0, []*records.ServiceRecord{rec})
		if err != nil {
			return nil, err
		}
		out = append(out, meta)
	}

	set, err := rb.ServiceRecords(0, rec, ttl)
	if err != nil {
		return out, err
	}
	if set != nil {
		out = append(out, set)
	}
	return out, nil
}

func (rb *ResponseBuilder) addAddresses(b *message.Builder, host message.Name, iface records.Interface, ttl uint32, a, aaaa bool) (int, error) {
	flush := protocol.ClassIN | protocol.ClassCacheFlush
	n := 0

	if a {
		if ip := rb.addrs.IPv4(iface); hostaddr.UsableIPv4(ip) {
			if _, err := b.AddRecord(host, flush, protocol.RecordTypeA, ttl, ip.To4()); err != nil {
				return 0, fmt.Errorf("A %s: %w", host, err)
			}
			n++
		}
	}
	if aaaa {
		for _, ip := range hostaddr.UsableIPv6(rb.addrs.IPv6(iface), rb.maxIPv6) {
			if _, err := b.AddRecord(host, flush, protocol.RecordTypeAAAA, ttl, ip); err != nil {
				return 0, fmt.Errorf("AAAA %s: %w", host, err)
			}
			n++
		}
	}
	return n, nil
}
