package querier

import (
	"net"

	"github.com/miekg/dns"

	"github.com/joshuafuller/linkbeacon/internal/protocol"
)

// RecordType represents a DNS record type for querying per RFC 1035.
//
// RFC 1035 §3.2.2: TYPE Values
// RFC 6762 §5: mDNS Query Types
//
// Each type serves a specific purpose in DNS-SD service discovery:
//
//   - A and AAAA records: resolve hostnames to addresses
//   - PTR records: enumerate service types and instances
//   - SRV records: get service location (hostname and port)
//   - TXT records: retrieve service metadata
//   - ANY: whatever the responder chooses to answer
//
// Example:
//
//	// Query for IPv4 address
//	response, _ := q.Query(ctx, "printer.local", querier.RecordTypeA)
//
//	// Discover HTTP services
//	response, _ = q.Query(ctx, "_http._tcp.local", querier.RecordTypePTR)
type RecordType uint16

const (
	// RecordTypeA queries for IPv4 address records (type 1).
	RecordTypeA RecordType = RecordType(protocol.RecordTypeA)

	// RecordTypePTR queries for pointer records (type 12).
	//
	// Example: Query("_services._dns-sd._udp.local", RecordTypePTR) → "_http._tcp.local."
	RecordTypePTR RecordType = RecordType(protocol.RecordTypePTR)

	// RecordTypeTXT queries for text records (type 16).
	RecordTypeTXT RecordType = RecordType(protocol.RecordTypeTXT)

	// RecordTypeAAAA queries for IPv6 address records (type 28).
	RecordTypeAAAA RecordType = RecordType(protocol.RecordTypeAAAA)

	// RecordTypeSRV queries for service records (type 33).
	RecordTypeSRV RecordType = RecordType(protocol.RecordTypeSRV)

	// RecordTypeANY asks for every record of a name (type 255).
	RecordTypeANY RecordType = RecordType(protocol.RecordTypeANY)
)

// String returns the record type name (e.g., "A", "PTR").
func (r RecordType) String() string {
	return protocol.RecordType(r).String()
}

// ParseRecordType is the inverse of String. It returns false for unsupported
// types.
func ParseRecordType(s string) (RecordType, bool) {
	for _, t := range []RecordType{RecordTypeA, RecordTypePTR, RecordTypeTXT, RecordTypeAAAA, RecordTypeSRV, RecordTypeANY} {
		if t.String() == s {
			return t, true
		}
	}
	return 0, false
}

// Response contains all resource records received for a query.
//
// Multiple responders may send identical records, and one responder sends
// its records to several destinations; duplicates are dropped. Answer and
// additional sections are both collected, since an mDNS responder may place
// the SRV, TXT and address records of a PTR answer in either.
type Response struct {
	Records []ResourceRecord
}

// ResourceRecord is one DNS resource record.
type ResourceRecord struct {
	// Data contains the type-specific parsed data:
	//   - A and AAAA records: net.IP
	//   - PTR record: string (target domain name)
	//   - SRV record: SRVData
	//   - TXT record: []string
	//
	// Use AsA(), AsAAAA(), AsPTR(), AsSRV(), or AsTXT() for type-safe access.
	Data interface{}

	// Name is the owner name, with a trailing dot.
	Name string

	// TTL is the time-to-live in seconds. TTL=0 is a goodbye (RFC 6762 §10.1).
	TTL uint32

	Type RecordType

	// Class is the DNS class with the cache-flush bit (RFC 6762 §10.2)
	// removed.
	Class uint16

	// CacheFlush reports the top bit of the wire class.
	CacheFlush bool
}

// SRVData is the RDATA of an SRV record (RFC 2782).
type SRVData struct {
	Target   string
	Priority uint16
	Weight   uint16
	Port     uint16
}

// AsA returns the IPv4 address of an A record, or nil.
func (r *ResourceRecord) AsA() net.IP {
	if r.Type != RecordTypeA {
		return nil
	}
	ip, _ := r.Data.(net.IP)
	return ip
}

// AsAAAA returns the IPv6 address of an AAAA record, or nil.
func (r *ResourceRecord) AsAAAA() net.IP {
	if r.Type != RecordTypeAAAA {
		return nil
	}
	ip, _ := r.Data.(net.IP)
	return ip
}

// AsPTR returns the target of a PTR record, or "".
func (r *ResourceRecord) AsPTR() string {
	if r.Type != RecordTypePTR {
		return ""
	}
	target, _ := r.Data.(string)
	return target
}

// AsSRV returns the data of an SRV record, or nil.
func (r *ResourceRecord) AsSRV() *SRVData {
	if r.Type != RecordTypeSRV {
		return nil
	}
	srv, ok := r.Data.(SRVData)
	if !ok {
		return nil
	}
	return &srv
}

// AsTXT returns the strings of a TXT record, or nil.
func (r *ResourceRecord) AsTXT() []string {
	if r.Type != RecordTypeTXT {
		return nil
	}
	txt, _ := r.Data.([]string)
	return txt
}

// fromRR converts a parsed record. Unsupported types report false.
func fromRR(rr dns.RR) (ResourceRecord, bool) {
	hdr := rr.Header()
	rec := ResourceRecord{
		Name:       hdr.Name,
		TTL:        hdr.Ttl,
		Type:       RecordType(hdr.Rrtype),
		Class:      hdr.Class &^ protocol.ClassCacheFlush,
		CacheFlush: hdr.Class&protocol.ClassCacheFlush != 0,
	}

	switch v := rr.(type) {
	case *dns.A:
		rec.Data = v.A
	case *dns.AAAA:
		rec.Data = v.AAAA
	case *dns.PTR:
		rec.Data = v.Ptr
	case *dns.TXT:
		rec.Data = v.Txt
	case *dns.SRV:
		rec.Data = SRVData{Target: v.Target, Priority: v.Priority, Weight: v.Weight, Port: v.Port}
	default:
		return ResourceRecord{}, false
	}
	return rec, true
}
