package message

import (
	"github.com/joshuafuller/linkbeacon/internal/errors"
	"github.com/joshuafuller/linkbeacon/internal/protocol"
)

// EncodeTXT encodes a TXT record given in dotted form.
//
// Each '.' ends a character-string and '/' escapes the byte that follows
// it, so "path=/./x.v=1" holds the two strings "path=.x" and "v=1". The
// encoding is terminated by a zero byte, which is an empty string on the
// wire; the empty TXT therefore encodes as the single byte 0x00 required
// by RFC 6763 §6.1.
func EncodeTXT(txt string) ([]byte, error) {
	buf := make([]byte, 0, len(txt)+2)
	cur := make([]byte, 0, len(txt))

	flush := func() error {
		if len(cur) > protocol.MaxTXTStringLength {
			return &errors.ValidationError{
				Field:   "txt",
				Value:   string(cur),
				Message: "string exceeds maximum 255 bytes per RFC 6763 §6.1",
			}
		}
		buf = append(buf, byte(len(cur)))
		buf = append(buf, cur...)
		cur = cur[:0]
		return nil
	}

	for i := 0; i < len(txt); i++ {
		switch c := txt[i]; c {
		case '/':
			if i+1 < len(txt) {
				i++
				cur = append(cur, txt[i])
			}
		case '.':
			if err := flush(); err != nil {
				return nil, err
			}
		default:
			cur = append(cur, c)
		}
	}
	if len(cur) > 0 {
		if err := flush(); err != nil {
			return nil, err
		}
	}
	return append(buf, 0), nil
}

// EscapeTXT turns key=value pairs into the dotted form accepted by
// EncodeTXT.
func EscapeTXT(pairs ...string) string {
	var out []byte
	for i, p := range pairs {
		if i > 0 {
			out = append(out, '.')
		}
		for j := 0; j < len(p); j++ {
			if p[j] == '.' || p[j] == '/' {
				out = append(out, '/')
			}
			out = append(out, p[j])
		}
	}
	return string(out)
}
