package classfile

import (
	"fmt"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// decodeModifiedUtf8 decodes the modified UTF-8 used by CONSTANT_Utf8
// entries (JVMS 4.4.7): NUL is encoded as C0 80 and supplementary
// characters as two 3-byte surrogates.
//
// Lead bytes 0x00 and 0xF0-0xFF decode to U+FFFD / NUL here and are left
// for ValidateConstantPool to reject, since they are a verification
// matter rather than a layout one.
func decodeModifiedUtf8(b []byte) (string, error) {
	var sb strings.Builder
	sb.Grow(len(b))

	var pending rune = -1 // high surrogate waiting for its pair
	flush := func() {
		if pending >= 0 {
			sb.WriteRune(utf8.RuneError)
			pending = -1
		}
	}

	for i := 0; i < len(b); {
		x := b[i]
		var r rune
		switch {
		case x < 0x80:
			r = rune(x)
			i++
		case x >= 0xF0:
			r = utf8.RuneError
			i++
		case x&0xE0 == 0xC0:
			if i+1 >= len(b) || b[i+1]&0xC0 != 0x80 {
				return "", fmt.Errorf("%w: bad 2-byte sequence at byte %d", ErrBadUtf8, i)
			}
			r = rune(x&0x1F)<<6 | rune(b[i+1]&0x3F)
			i += 2
		case x&0xF0 == 0xE0:
			if i+2 >= len(b) || b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 {
				return "", fmt.Errorf("%w: bad 3-byte sequence at byte %d", ErrBadUtf8, i)
			}
			r = rune(x&0x0F)<<12 | rune(b[i+1]&0x3F)<<6 | rune(b[i+2]&0x3F)
			i += 3
		default:
			return "", fmt.Errorf("%w: unexpected continuation byte 0x%02X at byte %d", ErrBadUtf8, x, i)
		}

		switch {
		case utf16.IsSurrogate(r) && r < 0xDC00:
			flush()
			pending = r
		case utf16.IsSurrogate(r):
			if pending >= 0 {
				sb.WriteRune(utf16.DecodeRune(pending, r))
				pending = -1
			} else {
				sb.WriteRune(utf8.RuneError)
			}
		default:
			flush()
			sb.WriteRune(r)
		}
	}
	flush()
	return sb.String(), nil
}

// encodeModifiedUtf8 is the inverse of decodeModifiedUtf8 for strings
// that contain no U+FFFD produced by decoding.
func encodeModifiedUtf8(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		switch {
		case r == 0:
			out = append(out, 0xC0, 0x80)
		case r < 0x80:
			out = append(out, byte(r))
		case r < 0x800:
			out = append(out, 0xC0|byte(r>>6), 0x80|byte(r&0x3F))
		case r < 0x10000:
			out = append(out, 0xE0|byte(r>>12), 0x80|byte(r>>6&0x3F), 0x80|byte(r&0x3F))
		default:
			hi, lo := utf16.EncodeRune(r)
			for _, c := range []rune{hi, lo} {
				out = append(out, 0xE0|byte(c>>12), 0x80|byte(c>>6&0x3F), 0x80|byte(c&0x3F))
			}
		}
	}
	return out
}
