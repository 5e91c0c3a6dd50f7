package message

import (
	"encoding/binary"
	"io"

	"github.com/joshuafuller/linkbeacon/internal/errors"
	"github.com/joshuafuller/linkbeacon/internal/protocol"
)

// Question is a decoded question section entry.
type Question struct {
	Name  string
	Type  protocol.RecordType
	Class uint16 // raw, including the unicast-response bit
}

// QClass returns the class with the unicast-response bit cleared.
func (q Question) QClass() uint16 {
	return q.Class & protocol.ClassMask
}

// UnicastResponse reports the QU bit (RFC 6762 §5.4).
func (q Question) UnicastResponse() bool {
	return q.Class&protocol.ClassCacheFlush != 0
}

// Iterator walks the question section of a received packet.
type Iterator struct {
	data      []byte
	header    Header
	offset    int
	remaining int
}

// NewIterator parses the header of packet and positions the iterator on the
// first question.
func NewIterator(packet []byte) (*Iterator, error) {
	h, err := ParseHeader(packet)
	if err != nil {
		return nil, err
	}
	return &Iterator{
		data:      packet,
		header:    h,
		offset:    protocol.HeaderSize,
		remaining: int(h.QDCount),
	}, nil
}

// Header returns the packet header.
func (it *Iterator) Header() Header {
	return it.header
}

// NextQuestion decodes the next question. It returns io.EOF once every
// question announced by QDCOUNT has been read. After any other error the
// iterator is exhausted and the rest of the packet must be discarded.
func (it *Iterator) NextQuestion() (Question, error) {
	if it.remaining <= 0 {
		return Question{}, io.EOF
	}

	name, next, err := ParseName(it.data, it.offset)
	if err != nil {
		it.remaining = 0
		return Question{}, err
	}
	if next+4 > len(it.data) {
		it.remaining = 0
		return Question{}, &errors.WireFormatError{
			Operation: "parse question",
			Offset:    next,
			Message:   "truncated question type/class",
		}
	}

	q := Question{
		Name:  name,
		Type:  protocol.RecordType(binary.BigEndian.Uint16(it.data[next:])),
		Class: binary.BigEndian.Uint16(it.data[next+2:]),
	}
	it.offset = next + 4
	it.remaining--
	return q, nil
}
