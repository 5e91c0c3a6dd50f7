package message

import (
	"fmt"
	"strings"

	"github.com/joshuafuller/linkbeacon/internal/errors"
	"github.com/joshuafuller/linkbeacon/internal/protocol"
)

// ParseName decodes a possibly compressed domain name starting at offset.
//
// It returns the dotted name without a trailing dot and the offset of the
// first byte after the name in its original position (after the first
// compression pointer, if any).
//
// RFC 1035 §4.1.4: a length byte with the top two bits set is a pointer to
// an earlier position in the message. Decoding is bounded: every read is
// checked against the packet end, pointers must point strictly backwards,
// and at most protocol.MaxCompressionJumps pointers are followed.
func ParseName(data []byte, offset int) (string, int, error) {
	if offset < 0 || offset >= len(data) {
		return "", 0, &errors.WireFormatError{
			Operation: "parse name",
			Offset:    offset,
			Message:   "offset out of bounds",
		}
	}

	var (
		labels  []string
		pos     = offset
		next    = -1 // offset after the name in its original location
		jumps   int
		encoded = 1 // terminating zero byte
	)

	for {
		if pos >= len(data) {
			return "", 0, &errors.WireFormatError{
				Operation: "parse name",
				Offset:    pos,
				Message:   "truncated label",
			}
		}

		length := data[pos]

		switch length & protocol.CompressionMask {
		case protocol.CompressionMask:
			if pos+1 >= len(data) {
				return "", 0, &errors.WireFormatError{
					Operation: "parse name",
					Offset:    pos,
					Message:   "truncated compression pointer",
				}
			}
			target := int(length&^protocol.CompressionMask)<<8 | int(data[pos+1])
			if target >= pos {
				return "", 0, &errors.WireFormatError{
					Operation: "parse name",
					Offset:    pos,
					Message:   fmt.Sprintf("invalid compression pointer to offset %d", target),
				}
			}
			jumps++
			if jumps > protocol.MaxCompressionJumps {
				return "", 0, &errors.WireFormatError{
					Operation: "parse name",
					Offset:    pos,
					Message:   fmt.Sprintf("more than %d compression pointers", protocol.MaxCompressionJumps),
				}
			}
			if next < 0 {
				next = pos + 2
			}
			pos = target
			continue

		case 0x40, 0x80:
			// Reserved label types (RFC 6891 §5) read as oversized lengths.
			return "", 0, &errors.WireFormatError{
				Operation: "parse name",
				Offset:    pos,
				Message:   fmt.Sprintf("label length %d exceeds maximum 63 bytes per RFC 1035 §3.1", length),
			}
		}

		if length == 0 {
			pos++
			break
		}

		end := pos + 1 + int(length)
		if end > len(data) {
			return "", 0, &errors.WireFormatError{
				Operation: "parse name",
				Offset:    pos,
				Message:   "truncated label",
			}
		}

		encoded += 1 + int(length)
		if encoded > protocol.MaxNameLength {
			return "", 0, &errors.WireFormatError{
				Operation: "parse name",
				Offset:    pos,
				Message:   "name exceeds maximum 255 bytes per RFC 1035 §3.1",
			}
		}

		labels = append(labels, string(data[pos+1:end]))
		pos = end
	}

	if next < 0 {
		next = pos
	}
	return strings.Join(labels, "."), next, nil
}

// EncodeName encodes a dotted domain name into uncompressed wire format.
// A single trailing dot is accepted and ignored; the empty name and "." both
// encode as the root.
func EncodeName(name string) ([]byte, error) {
	labels, err := splitName(name)
	if err != nil {
		return nil, err
	}
	return appendLabels(make([]byte, 0, len(name)+2), labels, true), nil
}

// EncodeServiceInstanceName encodes "<instance>.<serviceType>" where the
// instance part is a single label that may hold spaces, dots and UTF-8
// (RFC 6763 §4.3).
func EncodeServiceInstanceName(instance, serviceType string) ([]byte, error) {
	if err := validateInstance(instance); err != nil {
		return nil, err
	}
	labels, err := splitName(serviceType)
	if err != nil {
		return nil, err
	}
	if encodedLength(append([]string{instance}, labels...)) > protocol.MaxNameLength {
		return nil, &errors.ValidationError{
			Field:   "name",
			Value:   instance + "." + serviceType,
			Message: "name exceeds maximum 255 bytes per RFC 1035 §3.1",
		}
	}

	buf := make([]byte, 0, len(instance)+len(serviceType)+3)
	buf = append(buf, byte(len(instance)))
	buf = append(buf, instance...)
	return appendLabels(buf, labels, true), nil
}

// CanonicalName strips a single trailing dot.
func CanonicalName(name string) string {
	return strings.TrimSuffix(name, ".")
}

// EqualNames compares two domain names case-insensitively, ignoring a
// trailing dot (RFC 1035 §2.3.3).
func EqualNames(a, b string) bool {
	return strings.EqualFold(CanonicalName(a), CanonicalName(b))
}

func splitName(name string) ([]string, error) {
	name = CanonicalName(name)
	if name == "" {
		return nil, nil
	}

	labels := strings.Split(name, ".")
	for _, label := range labels {
		if label == "" {
			return nil, &errors.ValidationError{
				Field:   "name",
				Value:   name,
				Message: "empty label",
			}
		}
		if len(label) > protocol.MaxLabelLength {
			return nil, &errors.ValidationError{
				Field:   "name",
				Value:   name,
				Message: fmt.Sprintf("label %q exceeds maximum length 63 bytes per RFC 1035 §3.1", label),
			}
		}
	}

	if encodedLength(labels) > protocol.MaxNameLength {
		return nil, &errors.ValidationError{
			Field:   "name",
			Value:   name,
			Message: "name exceeds maximum 255 bytes per RFC 1035 §3.1",
		}
	}
	return labels, nil
}

func validateInstance(instance string) error {
	if instance == "" {
		return &errors.ValidationError{Field: "instance", Value: instance, Message: "empty label"}
	}
	if len(instance) > protocol.MaxLabelLength {
		return &errors.ValidationError{
			Field:   "instance",
			Value:   instance,
			Message: "exceeds maximum length 63 bytes per RFC 1035 §3.1",
		}
	}
	return nil
}

func encodedLength(labels []string) int {
	n := 1
	for _, l := range labels {
		n += 1 + len(l)
	}
	return n
}

func appendLabels(buf []byte, labels []string, terminate bool) []byte {
	for _, l := range labels {
		buf = append(buf, byte(len(l)))
		buf = append(buf, l...)
	}
	if terminate {
		buf = append(buf, 0)
	}
	return buf
}
