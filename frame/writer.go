package frame

import (
	"bytes"
	"strconv"
	"strings"
)

var modernEscaper = strings.NewReplacer(
	// Backslash first, so already-escaped sequences are not double-escaped.
	"\\", "\\\\",
	"\r", "\\r",
	"\n", "\\n",
	":", "\\c",
)

// escapeHeader applies the mode-specific header escaping. STOMP 1.0 only
// knows about '\n'; 1.1+ escapes backslash, CR, LF and the colon.
func escapeHeader(s string, legacy bool) string {
	if legacy {
		return strings.ReplaceAll(s, "\n", "\\n")
	}

	return modernEscaper.Replace(s)
}

// unescapeHeader is the inverse of escapeHeader.
func unescapeHeader(s string, legacy bool) string {
	if legacy {
		return strings.ReplaceAll(s, "\\n", "\n")
	}

	if !strings.ContainsRune(s, '\\') {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]

		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}

		switch s[i+1] {
		case '\\':
			b.WriteByte('\\')
			i++
		case 'r':
			b.WriteByte('\r')
			i++
		case 'n':
			b.WriteByte('\n')
			i++
		case 'c':
			b.WriteByte(':')
			i++
		default:
			b.WriteByte(c)
		}
	}

	return b.String()
}

// Bytes serialises the frame to its wire form: command, headers, a blank
// line, the body and a terminating NUL.
//
// A content-length header is emitted when the body contains a NUL byte or
// ExpectLengthHeader is set; otherwise it is omitted so brokers can detect
// the end of the frame themselves. Any caller-supplied content-length is
// discarded in favour of the computed value.
func (f *Frame) Bytes() []byte {
	if f.IsHeartbeat() {
		return []byte{'\n'}
	}

	var buf bytes.Buffer

	buf.WriteString(f.Command)
	buf.WriteByte('\n')

	if f.Headers != nil {
		f.Headers.Each(func(name, value string) {
			if strings.EqualFold(name, HdrContentLength) {
				return
			}

			buf.WriteString(escapeHeader(name, f.Legacy))
			buf.WriteByte(':')
			buf.WriteString(escapeHeader(value, f.Legacy))
			buf.WriteByte('\n')
		})
	}

	if f.ExpectLengthHeader || bytes.IndexByte(f.Body, 0) >= 0 {
		buf.WriteString(HdrContentLength)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(len(f.Body)))
		buf.WriteByte('\n')
	}

	buf.WriteByte('\n')
	buf.Write(f.Body)
	buf.WriteByte(0)

	return buf.Bytes()
}
