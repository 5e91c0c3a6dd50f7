package message

import (
	"encoding/binary"
	"fmt"
	"net"
	"strings"

	"github.com/joshuafuller/linkbeacon/internal/errors"
	"github.com/joshuafuller/linkbeacon/internal/protocol"
)

// Name is a domain name queued for writing into a message. A DNS-SD service
// instance keeps its instance part as one opaque label, so dots and spaces in
// a friendly name survive the trip (RFC 6763 §4.3).
type Name struct {
	instance string
	domain   string
}

// DomainName returns a plain dotted name.
func DomainName(s string) Name {
	return Name{domain: CanonicalName(s)}
}

// ServiceInstance splits a full instance name such as
// "My Device._http._tcp.local." at the service name. When fullName does not
// end with serviceName it is treated as a plain dotted name.
func ServiceInstance(fullName, serviceName string) Name {
	full := CanonicalName(fullName)
	svc := CanonicalName(serviceName)
	if svc != "" && len(full) > len(svc)+1 &&
		strings.EqualFold(full[len(full)-len(svc):], svc) && full[len(full)-len(svc)-1] == '.' {
		return Name{instance: full[:len(full)-len(svc)-1], domain: full[len(full)-len(svc):]}
	}
	return DomainName(full)
}

// String returns the dotted form with a trailing dot.
func (n Name) String() string {
	if n.instance == "" {
		return n.domain + "."
	}
	return n.instance + "." + n.domain + "."
}

// SRV is the RDATA of an SRV record (RFC 2782).
type SRV struct {
	Priority uint16
	Weight   uint16
	Port     uint16
	Target   Name
}

// Builder assembles a response in a buffer of fixed capacity.
//
// The first plain name written at offset 12 becomes the compression anchor:
// later names equal to it, or ending in it, are written as a 0xC00C pointer
// (RFC 1035 §4.1.4). A record that would not fit is rolled back and the call
// fails with errors.ErrMessageTooLarge; the builder stays usable.
type Builder struct {
	buf    []byte
	max    int
	header Header
	anchor string
}

// NewBuilder starts a message with the given ID and flags. maxSize <= 0
// selects protocol.MaxMessageSize.
func NewBuilder(id, flags uint16, maxSize int) *Builder {
	if maxSize <= 0 {
		maxSize = protocol.MaxMessageSize
	}
	return &Builder{
		buf:    make([]byte, protocol.HeaderSize, min(maxSize, protocol.MaxMessageSize)+protocol.HeaderSize),
		max:    maxSize,
		header: Header{ID: id, Flags: flags},
	}
}

// Answers returns the number of records written so far.
func (b *Builder) Answers() int {
	return int(b.header.ANCount)
}

// Len returns the current message size.
func (b *Builder) Len() int {
	return len(b.buf)
}

// AddQuestion appends a question entry.
func (b *Builder) AddQuestion(name Name, rrtype protocol.RecordType, class uint16) error {
	start, anchor := len(b.buf), b.anchor
	if err := b.writeName(name); err != nil {
		b.rollback(start, anchor)
		return err
	}
	b.buf = binary.BigEndian.AppendUint16(b.buf, uint16(rrtype))
	b.buf = binary.BigEndian.AppendUint16(b.buf, class)
	if len(b.buf) > b.max {
		b.rollback(start, anchor)
		return fmt.Errorf("question %s: %w", name, errors.ErrMessageTooLarge)
	}
	b.header.QDCount++
	return nil
}

// AddRecord appends an answer and returns the number of bytes written.
//
// rdata must match rrtype: net.IP for A and AAAA, Name for PTR, string (in
// the dotted form of EncodeTXT) for TXT and SRV for SRV. The RDLENGTH field
// is written as a placeholder and patched once the RDATA is in place.
func (b *Builder) AddRecord(name Name, class uint16, rrtype protocol.RecordType, ttl uint32, rdata interface{}) (int, error) {
	start, anchor := len(b.buf), b.anchor

	n, err := b.addRecord(name, class, rrtype, ttl, rdata)
	if err != nil {
		b.rollback(start, anchor)
		return 0, err
	}
	if len(b.buf) > b.max {
		b.rollback(start, anchor)
		return 0, fmt.Errorf("%s record for %s: %w", rrtype, name, errors.ErrMessageTooLarge)
	}
	b.header.ANCount++
	return n, nil
}

func (b *Builder) addRecord(name Name, class uint16, rrtype protocol.RecordType, ttl uint32, rdata interface{}) (int, error) {
	start := len(b.buf)
	if err := b.writeName(name); err != nil {
		return 0, err
	}

	b.buf = binary.BigEndian.AppendUint16(b.buf, uint16(rrtype))
	b.buf = binary.BigEndian.AppendUint16(b.buf, class)
	b.buf = binary.BigEndian.AppendUint32(b.buf, ttl)
	rdlength := len(b.buf)
	b.buf = append(b.buf, 0, 0)
	rdstart := len(b.buf)

	switch rrtype {
	case protocol.RecordTypeA:
		ip, ok := rdata.(net.IP)
		if !ok || ip.To4() == nil {
			return 0, rdataError(rrtype, rdata)
		}
		b.buf = append(b.buf, ip.To4()...)

	case protocol.RecordTypeAAAA:
		ip, ok := rdata.(net.IP)
		if !ok || len(ip) != net.IPv6len || ip.To4() != nil {
			return 0, rdataError(rrtype, rdata)
		}
		b.buf = append(b.buf, ip...)

	case protocol.RecordTypePTR:
		target, ok := rdata.(Name)
		if !ok {
			return 0, rdataError(rrtype, rdata)
		}
		if err := b.writeName(target); err != nil {
			return 0, err
		}

	case protocol.RecordTypeTXT:
		txt, ok := rdata.(string)
		if !ok {
			return 0, rdataError(rrtype, rdata)
		}
		enc, err := EncodeTXT(txt)
		if err != nil {
			return 0, err
		}
		b.buf = append(b.buf, enc...)

	case protocol.RecordTypeSRV:
		srv, ok := rdata.(SRV)
		if !ok {
			return 0, rdataError(rrtype, rdata)
		}
		b.buf = binary.BigEndian.AppendUint16(b.buf, srv.Priority)
		b.buf = binary.BigEndian.AppendUint16(b.buf, srv.Weight)
		b.buf = binary.BigEndian.AppendUint16(b.buf, srv.Port)
		if err := b.writeName(srv.Target); err != nil {
			return 0, err
		}

	default:
		return 0, &errors.ValidationError{Field: "type", Value: rrtype, Message: "unsupported record type"}
	}

	binary.BigEndian.PutUint16(b.buf[rdlength:], uint16(len(b.buf)-rdstart))
	return len(b.buf) - start, nil
}

// Bytes finalizes the header counts and returns the message.
func (b *Builder) Bytes() ([]byte, error) {
	if len(b.buf) > b.max {
		return nil, errors.ErrMessageTooLarge
	}
	EncodeHeader(b.buf, b.header)
	return b.buf, nil
}

func (b *Builder) rollback(length int, anchor string) {
	b.buf = b.buf[:length]
	b.anchor = anchor
}

func (b *Builder) writeName(n Name) error {
	labels, err := splitName(n.domain)
	if err != nil {
		return err
	}

	total := labels
	if n.instance != "" {
		if err := validateInstance(n.instance); err != nil {
			return err
		}
		total = append([]string{n.instance}, labels...)
	}
	if encodedLength(total) > protocol.MaxNameLength {
		return &errors.ValidationError{
			Field:   "name",
			Value:   n.String(),
			Message: "name exceeds maximum 255 bytes per RFC 1035 §3.1",
		}
	}

	if n.instance != "" {
		b.buf = append(b.buf, byte(len(n.instance)))
		b.buf = append(b.buf, n.instance...)
	}

	switch {
	case b.anchor == "" && n.instance == "" && n.domain != "" && len(b.buf) == protocol.AnchorOffset:
		b.anchor = n.domain
		b.buf = appendLabels(b.buf, labels, true)

	case b.anchor != "" && n.domain == b.anchor:
		b.buf = appendPointer(b.buf)

	case b.anchor != "" && strings.HasSuffix(n.domain, "."+b.anchor):
		prefix := labels[:len(labels)-strings.Count(b.anchor, ".")-1]
		b.buf = appendLabels(b.buf, prefix, false)
		b.buf = appendPointer(b.buf)

	default:
		b.buf = appendLabels(b.buf, labels, true)
	}
	return nil
}

func appendPointer(buf []byte) []byte {
	return append(buf, protocol.CompressionMask|byte(protocol.AnchorOffset>>8), byte(protocol.AnchorOffset&0xFF))
}

func rdataError(rrtype protocol.RecordType, rdata interface{}) error {
	return &errors.ValidationError{
		Field:   rrtype.String() + " rdata",
		Value:   rdata,
		Message: fmt.Sprintf("unexpected %T", rdata),
	}
}
