package frame

import (
	"bytes"
	"strconv"
	"strings"
)

// Parser is an incremental STOMP frame decoder. Feed it arbitrary chunks of
// bytes with AddData and pull decoded frames with NextFrame. Partial frames
// are kept buffered until the missing bytes arrive; trailing bytes after a
// complete frame are preserved for the next call.
//
// A Parser is not safe for concurrent use.
type Parser struct {
	buf    []byte
	offset int
	legacy bool

	onHeartbeat func()
}

func NewParser() *Parser {
	return &Parser{}
}

// SetLegacy switches header unescaping between STOMP 1.0 and 1.1+ rules.
// In legacy mode content-length headers are ignored and bodies always end
// at the first NUL byte.
func (p *Parser) SetLegacy(legacy bool) {
	p.legacy = legacy
}

func (p *Parser) Legacy() bool {
	return p.legacy
}

// OnHeartbeat installs a hook invoked once for every server heartbeat byte
// consumed from the stream.
func (p *Parser) OnHeartbeat(fn func()) {
	p.onHeartbeat = fn
}

// AddData appends a chunk of bytes from the wire.
func (p *Parser) AddData(data []byte) {
	p.buf = append(p.buf, data...)
}

// BufferEmpty returns true iff no unparsed bytes remain.
func (p *Parser) BufferEmpty() bool {
	return p.offset >= len(p.buf)
}

// NextFrame returns the next complete frame, or nil if the buffered bytes
// do not yet form one.
func (p *Parser) NextFrame() *Frame {
	p.skipHeartbeats()

	pos := p.offset

	command, pos, ok := p.line(pos)
	if !ok {
		return nil
	}

	headers := NewHeaders()

	for {
		var line string
		line, pos, ok = p.line(pos)
		if !ok {
			return nil
		}

		if line == "" {
			break
		}

		name, value := splitHeaderLine(line, p.legacy)
		// STOMP 1.2: only the first occurrence of a repeated header counts.
		headers.SetIfAbsent(name, value)
	}

	var (
		body      []byte
		hasLength bool
	)

	if raw, found := headers.Get(HdrContentLength); found && !p.legacy {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			hasLength = true

			// The declared body plus its trailing NUL.
			if len(p.buf)-pos < n+1 {
				return nil
			}

			body = copyBytes(p.buf[pos : pos+n])
			pos += n + 1
		}
	}

	if !hasLength {
		idx := bytes.IndexByte(p.buf[pos:], 0)
		if idx < 0 {
			return nil
		}

		body = copyBytes(p.buf[pos : pos+idx])
		pos += idx + 1
	}

	p.offset = pos
	p.compact()

	return &Frame{
		Command:            command,
		Headers:            headers,
		Body:               body,
		Legacy:             p.legacy,
		ExpectLengthHeader: hasLength,
	}
}

// skipHeartbeats consumes any '\n' (or '\r\n') bytes sitting before the
// next command. Each one is a server heartbeat, observed but never
// surfaced as a frame.
func (p *Parser) skipHeartbeats() {
	for p.offset < len(p.buf) {
		switch {
		case p.buf[p.offset] == '\n':
			p.offset++

		case p.buf[p.offset] == '\r' && p.offset+1 < len(p.buf) && p.buf[p.offset+1] == '\n':
			p.offset += 2

		default:
			p.compact()
			return
		}

		if p.onHeartbeat != nil {
			p.onHeartbeat()
		}
	}

	p.compact()
}

// line returns the bytes between pos and the next '\n' (exclusive, with an
// optional '\r' stripped) and the position just past the '\n'.
func (p *Parser) line(pos int) (string, int, bool) {
	idx := bytes.IndexByte(p.buf[pos:], '\n')
	if idx < 0 {
		return "", pos, false
	}

	line := p.buf[pos : pos+idx]
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}

	return string(line), pos + idx + 1, true
}

// compact drops consumed bytes so the buffer does not grow without bound
// on long-lived connections.
func (p *Parser) compact() {
	if p.offset == 0 {
		return
	}

	if p.offset >= len(p.buf) {
		p.buf = p.buf[:0]
	} else {
		p.buf = append(p.buf[:0], p.buf[p.offset:]...)
	}

	p.offset = 0
}

// splitHeaderLine splits a raw header line at the first colon and
// unescapes both sides. Any further colons belong to the value.
func splitHeaderLine(line string, legacy bool) (string, string) {
	if idx := strings.IndexByte(line, ':'); idx >= 0 {
		return unescapeHeader(line[:idx], legacy), unescapeHeader(line[idx+1:], legacy)
	}

	return unescapeHeader(line, legacy), ""
}

func copyBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}

	out := make([]byte, len(b))
	copy(out, b)
	return out
}
