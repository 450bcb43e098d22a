package protocol

import (
	"fmt"
	"strings"
)

// Version is a STOMP protocol version. The constants are ordered, so
// versions can be compared directly.
type Version int

const (
	V10 Version = iota
	V11
	V12
)

func (v Version) String() string {
	switch v {
	case V10:
		return "1.0"
	case V11:
		return "1.1"
	case V12:
		return "1.2"
	default:
		return fmt.Sprintf("unknown(%d)", int(v))
	}
}

// AtLeast returns true if v is min or newer.
func (v Version) AtLeast(min Version) bool {
	return v >= min
}

// ParseVersion parses the value of a CONNECTED version header.
func ParseVersion(s string) (Version, error) {
	switch strings.TrimSpace(s) {
	case "1.0":
		return V10, nil
	case "1.1":
		return V11, nil
	case "1.2":
		return V12, nil
	default:
		return V10, fmt.Errorf("stampede: unsupported STOMP version %q", s)
	}
}

// AllVersions lists every version this library speaks, oldest first. It is
// the default accept-version set for CONNECT.
func AllVersions() []Version {
	return []Version{V10, V11, V12}
}

func joinVersions(versions []Version) string {
	parts := make([]string, 0, len(versions))
	for _, v := range versions {
		parts = append(parts, v.String())
	}

	return strings.Join(parts, ",")
}

// HeartBeat is the heart-beat tuple exchanged during CONNECT, in
// milliseconds. Send is the smallest interval this side can emit at,
// Receive the smallest interval it wants from the peer. Zero disables a
// direction.
type HeartBeat struct {
	Send    int
	Receive int
}

func (h HeartBeat) String() string {
	return fmt.Sprintf("%d,%d", h.Send, h.Receive)
}

// AckMode is a STOMP subscription acknowledgement mode.
type AckMode string

const (
	AckAuto             AckMode = "auto"
	AckClient           AckMode = "client"
	AckClientIndividual AckMode = "client-individual"
)

// ValidFor reports whether the ack mode is legal at the given version.
// client-individual only exists from STOMP 1.1 onwards.
func (a AckMode) ValidFor(v Version) bool {
	switch a {
	case AckAuto, AckClient:
		return true
	case AckClientIndividual:
		return v.AtLeast(V11)
	default:
		return false
	}
}
