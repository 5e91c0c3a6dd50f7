package message

import (
	goerrors "errors"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuafuller/linkbeacon/internal/errors"
	"github.com/joshuafuller/linkbeacon/internal/protocol"
)

func unpack(t *testing.T, pkt []byte) *dns.Msg {
	t.Helper()
	msg := new(dns.Msg)
	require.NoError(t, msg.Unpack(pkt))
	return msg
}

func TestEncodeHeader(t *testing.T) {
	buf := make([]byte, protocol.HeaderSize)
	EncodeHeader(buf, Header{ID: 0x1234, Flags: protocol.ResponseFlags, QDCount: 1, ANCount: 4, NSCount: 0})

	assert.Equal(t, []byte{0x12, 0x34, 0x84, 0x00, 0, 1, 0, 4, 0, 0, 0, 0}, buf)

	h, err := ParseHeader(buf)
	require.NoError(t, err)
	assert.True(t, h.IsResponse())
	assert.Equal(t, uint16(4), h.ANCount)
}

func TestParseHeader_Short(t *testing.T) {
	_, err := ParseHeader([]byte{0, 1, 2})
	var wireErr *errors.WireFormatError
	require.True(t, goerrors.As(err, &wireErr))
}

// RFC 6763 §4.1: PTR service -> instance, instance written as one label
// followed by a pointer to the service name at offset 12.
func TestBuilder_ServiceBundleCompression(t *testing.T) {
	service := DomainName("_http._tcp.local.")
	instance := ServiceInstance("My Device._http._tcp.local.", "_http._tcp.local.")

	b := NewBuilder(7, protocol.ResponseFlags, 0)

	n, err := b.AddRecord(service, protocol.ClassIN, protocol.RecordTypePTR, 120, instance)
	require.NoError(t, err)
	// name(18) + fixed(10) + rdata: label(10) + pointer(2)
	assert.Equal(t, 18+10+12, n)

	_, err = b.AddRecord(instance, protocol.ClassIN|protocol.ClassCacheFlush, protocol.RecordTypeTXT, 120, "a=1.b=2")
	require.NoError(t, err)
	_, err = b.AddRecord(instance, protocol.ClassIN|protocol.ClassCacheFlush, protocol.RecordTypeSRV, 120,
		SRV{Port: 80, Target: DomainName("dev.local.")})
	require.NoError(t, err)
	_, err = b.AddRecord(DomainName("dev.local."), protocol.ClassIN|protocol.ClassCacheFlush, protocol.RecordTypeA, 120,
		net.IPv4(192, 168, 1, 20))
	require.NoError(t, err)

	pkt, err := b.Bytes()
	require.NoError(t, err)

	// rdata of the PTR ends in the anchor pointer
	ptrEnd := protocol.HeaderSize + n
	assert.Equal(t, []byte{0xC0, 0x0C}, pkt[ptrEnd-2:ptrEnd])

	msg := unpack(t, pkt)
	assert.True(t, msg.Response)
	assert.True(t, msg.Authoritative)
	assert.Equal(t, uint16(7), msg.Id)
	require.Len(t, msg.Answer, 4)

	ptr := msg.Answer[0].(*dns.PTR)
	assert.Equal(t, "_http._tcp.local.", ptr.Hdr.Name)
	assert.Equal(t, `My\ Device._http._tcp.local.`, ptr.Ptr)

	txt := msg.Answer[1].(*dns.TXT)
	assert.Equal(t, []string{"a=1", "b=2", ""}, txt.Txt)
	assert.Equal(t, protocol.ClassIN|protocol.ClassCacheFlush, txt.Hdr.Class)

	srv := msg.Answer[2].(*dns.SRV)
	assert.Equal(t, uint16(80), srv.Port)
	assert.Equal(t, "dev.local.", srv.Target)

	a := msg.Answer[3].(*dns.A)
	assert.Equal(t, "192.168.1.20", a.A.String())
}

func TestBuilder_SuffixCompression(t *testing.T) {
	b := NewBuilder(0, protocol.ResponseFlags, 0)
	_, err := b.AddRecord(DomainName("_http._tcp.local"), protocol.ClassIN, protocol.RecordTypePTR, 120,
		DomainName("printer._http._tcp.local"))
	require.NoError(t, err)

	pkt, err := b.Bytes()
	require.NoError(t, err)
	// 7 "printer" + pointer
	assert.Equal(t, []byte{7, 'p', 'r', 'i', 'n', 't', 'e', 'r', 0xC0, 0x0C}, pkt[len(pkt)-10:])

	name, _, err := ParseName(pkt, len(pkt)-10)
	require.NoError(t, err)
	assert.Equal(t, "printer._http._tcp.local", name)
}

func TestBuilder_AAAA(t *testing.T) {
	b := NewBuilder(0, protocol.ResponseFlags, 0)
	_, err := b.AddRecord(DomainName("dev.local"), protocol.ClassIN, protocol.RecordTypeAAAA, 120, net.ParseIP("2001:db8::1"))
	require.NoError(t, err)

	_, err = b.AddRecord(DomainName("dev.local"), protocol.ClassIN, protocol.RecordTypeAAAA, 120, net.IPv4(10, 0, 0, 1))
	var valErr *errors.ValidationError
	require.True(t, goerrors.As(err, &valErr))
	assert.Equal(t, 1, b.Answers())

	pkt, err := b.Bytes()
	require.NoError(t, err)
	msg := unpack(t, pkt)
	require.Len(t, msg.Answer, 1)
	assert.Equal(t, "2001:db8::1", msg.Answer[0].(*dns.AAAA).AAAA.String())
}

func TestBuilder_RdataMismatch(t *testing.T) {
	b := NewBuilder(0, protocol.ResponseFlags, 0)
	_, err := b.AddRecord(DomainName("dev.local"), protocol.ClassIN, protocol.RecordTypePTR, 120, "not a name")
	var valErr *errors.ValidationError
	require.True(t, goerrors.As(err, &valErr))

	_, err = b.AddRecord(DomainName("dev.local"), protocol.ClassIN, protocol.RecordType(99), 120, nil)
	require.True(t, goerrors.As(err, &valErr))

	// failed records leave no trace
	assert.Equal(t, protocol.HeaderSize, b.Len())
	assert.Equal(t, 0, b.Answers())
}

func TestBuilder_MessageTooLarge(t *testing.T) {
	b := NewBuilder(0, protocol.ResponseFlags, 40)

	_, err := b.AddRecord(DomainName("dev.local"), protocol.ClassIN, protocol.RecordTypeA, 120, net.IPv4(10, 0, 0, 1))
	require.NoError(t, err)
	size := b.Len()

	_, err = b.AddRecord(DomainName("dev.local"), protocol.ClassIN, protocol.RecordTypeA, 120, net.IPv4(10, 0, 0, 2))
	require.ErrorIs(t, err, errors.ErrMessageTooLarge)
	assert.Equal(t, size, b.Len(), "rolled back")
	assert.Equal(t, 1, b.Answers())

	pkt, err := b.Bytes()
	require.NoError(t, err)
	require.Len(t, unpack(t, pkt).Answer, 1)
}

func TestBuilder_InvalidNames(t *testing.T) {
	b := NewBuilder(0, protocol.ResponseFlags, 0)

	_, err := b.AddRecord(DomainName(strings.Repeat("a", 64)+".local"), protocol.ClassIN, protocol.RecordTypeA, 1, net.IPv4(1, 2, 3, 4))
	require.Error(t, err)

	long := ServiceInstance(strings.Repeat("x", 64)+"._http._tcp.local", "_http._tcp.local")
	_, err = b.AddRecord(DomainName("_http._tcp.local"), protocol.ClassIN, protocol.RecordTypePTR, 1, long)
	require.Error(t, err)

	assert.Equal(t, 0, b.Answers())
}

func TestServiceInstance(t *testing.T) {
	n := ServiceInstance("Kitchen v1.2._ipp._tcp.local.", "_ipp._tcp.local.")
	assert.Equal(t, "Kitchen v1.2._ipp._tcp.local.", n.String())
	assert.Equal(t, "Kitchen v1.2", n.instance)

	// not under the service: plain name
	n = ServiceInstance("dev.local.", "_ipp._tcp.local.")
	assert.Equal(t, "", n.instance)
	assert.Equal(t, "dev.local", n.domain)
}

func TestEncodeTXT(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []byte
	}{
		{name: "empty", in: "", want: []byte{0}},
		{name: "two strings", in: "a=1.b=2", want: []byte{3, 'a', '=', '1', 3, 'b', '=', '2', 0}},
		{name: "escaped dot", in: "x/.y", want: []byte{3, 'x', '.', 'y', 0}},
		{name: "escaped slash", in: "p=//", want: []byte{3, 'p', '=', '/', 0}},
		{name: "trailing dot", in: "k=v.", want: []byte{3, 'k', '=', 'v', 0}},
		{name: "empty middle", in: "a..b", want: []byte{1, 'a', 0, 1, 'b', 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeTXT(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := EncodeTXT(strings.Repeat("z", 256))
	var valErr *errors.ValidationError
	require.True(t, goerrors.As(err, &valErr))

	_, err = EncodeTXT(strings.Repeat("z", 255))
	require.NoError(t, err)
}

func TestEscapeTXT(t *testing.T) {
	s := EscapeTXT("path=/index.html", "v=1")
	assert.Equal(t, "path=//index/.html.v=1", s)

	enc, err := EncodeTXT(s)
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte{16}, "path=/index.html"...), 3, 'v', '=', '1', 0), enc)
}

func TestIterator_Questions(t *testing.T) {
	q := new(dns.Msg)
	q.Id = 42
	q.Question = []dns.Question{
		{Name: "_services._dns-sd._udp.local.", Qtype: dns.TypePTR, Qclass: dns.ClassINET},
		{Name: "dev.local.", Qtype: dns.TypeA, Qclass: dns.ClassINET | 0x8000},
	}
	pkt, err := q.Pack()
	require.NoError(t, err)

	it, err := NewIterator(pkt)
	require.NoError(t, err)
	assert.Equal(t, uint16(42), it.Header().ID)
	assert.False(t, it.Header().IsResponse())

	first, err := it.NextQuestion()
	require.NoError(t, err)
	assert.Equal(t, "_services._dns-sd._udp.local", first.Name)
	assert.Equal(t, protocol.RecordTypePTR, first.Type)
	assert.False(t, first.UnicastResponse())

	second, err := it.NextQuestion()
	require.NoError(t, err)
	assert.Equal(t, "dev.local", second.Name)
	assert.True(t, second.UnicastResponse())
	assert.Equal(t, protocol.ClassIN, second.QClass())

	_, err = it.NextQuestion()
	assert.ErrorIs(t, err, io.EOF)
}

func TestIterator_Malformed(t *testing.T) {
	tests := []struct {
		name string
		pkt  []byte
	}{
		{
			name: "truncated type/class",
			pkt:  []byte{0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 3, 'd', 'e', 'v', 0, 0, 1},
		},
		{
			name: "qdcount larger than packet",
			pkt:  []byte{0, 0, 0, 0, 0, 5, 0, 0, 0, 0, 0, 0},
		},
		{
			name: "forward pointer",
			pkt:  []byte{0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0xC0, 0x20, 0, 1, 0, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it, err := NewIterator(tt.pkt)
			require.NoError(t, err)

			_, err = it.NextQuestion()
			var wireErr *errors.WireFormatError
			require.True(t, goerrors.As(err, &wireErr), "got %v", err)

			// exhausted after an error
			_, err = it.NextQuestion()
			assert.ErrorIs(t, err, io.EOF)
		})
	}
}

// A chain of backward pointers longer than the jump limit is rejected even
// though no single pointer loops.
func TestParseName_JumpLimit(t *testing.T) {
	data := []byte{1, 'a', 0}
	for i := 0; i <= protocol.MaxCompressionJumps; i++ {
		prev := len(data) - 2
		if i == 0 {
			prev = 0
		}
		data = append(data, 0xC0, byte(prev))
	}

	_, _, err := ParseName(data, len(data)-2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compression pointers")

	// within the limit the same chain resolves
	name, next, err := ParseName(data, 3+2*(protocol.MaxCompressionJumps-1))
	require.NoError(t, err)
	assert.Equal(t, "a", name)
	assert.Equal(t, 3+2*protocol.MaxCompressionJumps, next)
}

func TestParseEncodeName_CompressedRoundtrip(t *testing.T) {
	names := []string{
		"_http._tcp.local.",
		"My Device._http._tcp.local.",
		"dev.local.",
		strings.Repeat("b", 63) + ".local.",
	}

	for _, full := range names {
		t.Run(full, func(t *testing.T) {
			b := NewBuilder(0, protocol.ResponseFlags, 0)
			_, err := b.AddRecord(DomainName("_http._tcp.local."), protocol.ClassIN, protocol.RecordTypePTR, 1,
				ServiceInstance(full, "_http._tcp.local."))
			require.NoError(t, err)
			pkt, err := b.Bytes()
			require.NoError(t, err)

			// PTR rdata starts after the owner name (18) and the fixed fields (10)
			got, _, err := ParseName(pkt, protocol.HeaderSize+18+10)
			require.NoError(t, err)
			assert.True(t, EqualNames(full, got), "%q != %q", full, got)
		})
	}
}
