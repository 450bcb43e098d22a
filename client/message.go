package client

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/luma/stampede/frame"
)

const (
	// TransformationJMSMapJSON marks a frame whose body is a JSON-encoded
	// map, the way ActiveMQ serialises JMS MapMessages.
	TransformationJMSMapJSON = "jms-map-json"

	hdrTransformation = "transformation"
)

// Message wraps a received frame with the transformations the session
// understands.
type Message struct {
	*frame.Frame
}

func asMessage(f *frame.Frame) *Message {
	if f == nil {
		return nil
	}

	return &Message{Frame: f}
}

// IsMapMessage reports whether the frame declares a jms-map-json body.
// The header value is matched case-insensitively.
func (m *Message) IsMapMessage() bool {
	v, ok := m.Header(hdrTransformation)
	return ok && strings.EqualFold(v, TransformationJMSMapJSON)
}

// Map decodes the jms-map-json body into a map. The raw body stays
// available on the frame.
func (m *Message) Map() (map[string]interface{}, error) {
	if !m.IsMapMessage() {
		return nil, ErrNotMapMessage
	}

	if !gjson.ValidBytes(m.Body) {
		return nil, fmt.Errorf("stampede: jms-map-json body is not valid JSON")
	}

	result := gjson.ParseBytes(m.Body)

	values, ok := result.Value().(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("stampede: jms-map-json body is not a JSON object")
	}

	return values, nil
}

// NewMapSendFrame builds a SEND frame whose body is the JSON encoding of
// values, tagged with the jms-map-json transformation header.
func NewMapSendFrame(destination string, values map[string]interface{}) (*frame.Frame, error) {
	body := []byte("{}")

	var err error

	for k, v := range values {
		body, err = sjson.SetBytes(body, escapeJSONPath(k), v)
		if err != nil {
			return nil, fmt.Errorf("stampede: failed to encode map key %q: %w", k, err)
		}
	}

	f := frame.New(frame.CmdSend)
	f.SetHeader(frame.HdrDestination, destination)
	f.SetHeader(hdrTransformation, TransformationJMSMapJSON)
	f.SetHeader(frame.HdrContentType, "application/json")
	f.Body = body

	return f, nil
}

// escapeJSONPath keeps map keys literal: sjson treats '.' and wildcards as
// path syntax unless escaped.
func escapeJSONPath(key string) string {
	var b strings.Builder

	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\':
			b.WriteByte('\\')
		}

		b.WriteRune(r)
	}

	return b.String()
}
