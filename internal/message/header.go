package message

import (
	"encoding/binary"

	"github.com/joshuafuller/linkbeacon/internal/errors"
	"github.com/joshuafuller/linkbeacon/internal/protocol"
)

// Header is the fixed 12-byte DNS message header (RFC 1035 §4.1.1).
type Header struct {
	ID      uint16
	Flags   uint16
	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

// IsResponse reports whether the QR bit is set.
func (h Header) IsResponse() bool {
	return h.Flags&protocol.FlagResponse != 0
}

// EncodeHeader writes h into the first 12 bytes of dst.
func EncodeHeader(dst []byte, h Header) {
	_ = dst[protocol.HeaderSize-1]
	binary.BigEndian.PutUint16(dst[0:], h.ID)
	binary.BigEndian.PutUint16(dst[2:], h.Flags)
	binary.BigEndian.PutUint16(dst[4:], h.QDCount)
	binary.BigEndian.PutUint16(dst[6:], h.ANCount)
	binary.BigEndian.PutUint16(dst[8:], h.NSCount)
	binary.BigEndian.PutUint16(dst[10:], h.ARCount)
}

// ParseHeader decodes the header at the start of data.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < protocol.HeaderSize {
		return Header{}, &errors.WireFormatError{
			Operation: "parse header",
			Offset:    0,
			Message:   "message shorter than 12 byte header",
		}
	}
	return Header{
		ID:      binary.BigEndian.Uint16(data[0:]),
		Flags:   binary.BigEndian.Uint16(data[2:]),
		QDCount: binary.BigEndian.Uint16(data[4:]),
		ANCount: binary.BigEndian.Uint16(data[6:]),
		NSCount: binary.BigEndian.Uint16(data[8:]),
		ARCount: binary.BigEndian.Uint16(data[10:]),
	}, nil
}
