// Package protocol holds the mDNS and DNS-SD wire constants shared by the
// codec, the responder and the transport.
//
// References: RFC 1035 (DNS), RFC 6762 (Multicast DNS), RFC 6763 (DNS-SD).
package protocol

import (
	"fmt"
	"net"
)

// Port is the mDNS UDP port (RFC 6762 §3).
const Port = 5353

// Destination addresses.
const (
	MulticastAddrIPv4 = "224.0.0.251"
	MulticastAddrIPv6 = "ff02::fb"

	// BroadcastAddrIPv4 duplicates every response for networks where
	// multicast forwarding is broken.
	BroadcastAddrIPv4 = "255.255.255.255"
)

// Multicast and broadcast groups as parsed addresses.
var (
	MulticastGroupIPv4 = net.ParseIP(MulticastAddrIPv4).To4()
	MulticastGroupIPv6 = net.ParseIP(MulticastAddrIPv6)
	BroadcastIPv4      = net.IPv4bcast.To4()
)

// RecordType is a DNS resource record type.
type RecordType uint16

// Record types used by the responder.
const (
	RecordTypeA    RecordType = 1
	RecordTypePTR  RecordType = 12
	RecordTypeTXT  RecordType = 16
	RecordTypeAAAA RecordType = 28
	RecordTypeSRV  RecordType = 33
	RecordTypeANY  RecordType = 255
)

// String returns the mnemonic for the type.
func (t RecordType) String() string {
	switch t {
	case RecordTypeA:
		return "A"
	case RecordTypePTR:
		return "PTR"
	case RecordTypeTXT:
		return "TXT"
	case RecordTypeAAAA:
		return "AAAA"
	case RecordTypeSRV:
		return "SRV"
	case RecordTypeANY:
		return "ANY"
	default:
		return fmt.Sprintf("TYPE%d", uint16(t))
	}
}

// Classes.
const (
	ClassIN uint16 = 1

	// ClassCacheFlush is the top bit of the class field in answers
	// (RFC 6762 §10.2). In questions the same bit requests a unicast reply
	// (RFC 6762 §5.4).
	ClassCacheFlush uint16 = 0x8000
	ClassMask       uint16 = 0x7FFF
)

// Header flags.
const (
	FlagResponse      uint16 = 0x8000
	FlagAuthoritative uint16 = 0x0400

	// ResponseFlags marks an authoritative answer, the only kind of
	// message the responder emits.
	ResponseFlags = FlagResponse | FlagAuthoritative
)

// Wire format limits (RFC 1035 §3.1, §4.1.4).
const (
	HeaderSize          = 12
	MaxLabelLength      = 63
	MaxNameLength       = 255
	MaxTXTStringLength  = 255
	MaxCompressionJumps = 8

	// CompressionMask marks a label length byte as a pointer.
	CompressionMask byte = 0xC0

	// AnchorOffset is the first byte after the header. The first name of a
	// message always lands here, so later names can point back at it.
	AnchorOffset = HeaderSize
)

// Message sizes.
const (
	// MaxMessageSize fits an unfragmented datagram on a 1500-byte IPv4 MTU.
	MaxMessageSize = 1472

	// ReceiveBufferSize is the largest mDNS packet we accept (RFC 6762 §17).
	ReceiveBufferSize = 9000
)

// DNS-SD service enumeration (RFC 6763 §9).
const (
	ServicesMetaQuery = "_services._dns-sd._udp.local."

	// TTLServicesMeta is used for every meta PTR answer.
	TTLServicesMeta uint32 = 1500
)

// Default TTLs (RFC 6762 §10).
const (
	TTLService uint32 = 120
)

// AnnounceCount is how many times a changed record is announced, and how
// many goodbyes a withdrawn one sends, before the scheduler goes quiet.
const AnnounceCount = 5
