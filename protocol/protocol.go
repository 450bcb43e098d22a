package protocol

import (
	"fmt"
	"strings"

	"github.com/luma/stampede/frame"
)

// ConnectOptions carries everything the CONNECT frame needs.
type ConnectOptions struct {
	Login     string
	Passcode  string
	Host      string
	Versions  []Version
	HeartBeat HeartBeat

	// UseStomp sends the 1.1+ STOMP verb instead of CONNECT. Only valid
	// when no 1.0-only broker is expected to answer.
	UseStomp bool
}

// SubscribeOptions describes a SUBSCRIBE frame. Headers may carry
// broker-specific extension headers; dialects validate the ones they know.
type SubscribeOptions struct {
	Destination string

	// ID is the session-local subscription id. It may be empty at STOMP
	// 1.0, where the destination alone identifies the subscription.
	ID string

	Ack      AckMode
	Selector string
	Durable  bool
	Headers  *frame.Headers
}

// Protocol constructs outbound verb frames for one broker dialect at one
// negotiated version. Implementations are stateless beyond their
// configuration; they never touch the wire.
type Protocol interface {
	Version() Version
	ClientID() string

	Connect(o ConnectOptions) *frame.Frame
	Subscribe(o SubscribeOptions) (*frame.Frame, error)
	Unsubscribe(destination, id string, durable bool) *frame.Frame
	Ack(msg *frame.Frame, transaction string) *frame.Frame
	Nack(msg *frame.Frame, transaction string, requeue *bool) (*frame.Frame, error)
	Begin(transaction string) *frame.Frame
	Commit(transaction string) *frame.Frame
	Abort(transaction string) *frame.Frame
	Disconnect() *frame.Frame
}

// DialectOptions is the per-broker tuning surface.
type DialectOptions struct {
	// PrefetchSize is ActiveMQ's activemq.prefetchSize (>= 1).
	PrefetchSize int

	// PrefetchCount is RabbitMQ's prefetch-count (>= 1).
	PrefetchCount int
}

// ForServer picks the dialect matching a CONNECTED server header. Unknown
// servers get the generic dialect.
func ForServer(server string, version Version, clientID string, o DialectOptions) Protocol {
	s := strings.ToLower(server)

	switch {
	case strings.Contains(s, "activemq"):
		return NewActiveMQ(version, clientID, o)
	case strings.Contains(s, "rabbitmq"):
		return NewRabbitMQ(version, clientID, o)
	case strings.Contains(s, "apollo"):
		return NewApollo(version, clientID)
	default:
		return NewGeneric(version, clientID)
	}
}

// Generic implements the verb rules common to every broker. Dialects embed
// it and override the frames they decorate.
type Generic struct {
	version  Version
	clientID string
}

func NewGeneric(version Version, clientID string) *Generic {
	return &Generic{version: version, clientID: clientID}
}

func (g *Generic) Version() Version {
	return g.version
}

func (g *Generic) ClientID() string {
	return g.clientID
}

// Connect builds the CONNECT frame. CONNECT always uses legacy framing:
// the 1.1+ escaping rules only apply once a version has been negotiated.
func (g *Generic) Connect(o ConnectOptions) *frame.Frame {
	command := frame.CmdConnect
	if o.UseStomp {
		command = frame.CmdStomp
	}

	f := frame.New(command)
	f.Legacy = true

	if o.Login != "" || o.Passcode != "" {
		f.SetHeader("login", o.Login)
		f.SetHeader("passcode", o.Passcode)
	}

	if g.clientID != "" {
		f.SetHeader("client-id", g.clientID)
	}

	versions := o.Versions
	if len(versions) == 0 {
		versions = AllVersions()
	}

	f.SetHeader("accept-version", joinVersions(versions))

	if o.Host != "" {
		f.SetHeader("host", o.Host)
	}

	f.SetHeader(frame.HdrHeartBeat, o.HeartBeat.String())

	return f
}

func (g *Generic) Subscribe(o SubscribeOptions) (*frame.Frame, error) {
	ack := o.Ack
	if ack == "" {
		ack = AckAuto
	}

	if !ack.ValidFor(g.version) {
		return nil, fmt.Errorf("stampede: subscribe to %q with ack %q at %s: %w",
			o.Destination, ack, g.version, ErrInvalidAckMode)
	}

	f := frame.New(frame.CmdSubscribe)
	f.SetHeader(frame.HdrDestination, o.Destination)
	f.SetHeader(frame.HdrAck, string(ack))

	if o.ID != "" {
		f.SetHeader(frame.HdrID, o.ID)
	}

	if o.Selector != "" {
		f.SetHeader("selector", o.Selector)
	}

	f.Headers.Merge(o.Headers)

	return f, nil
}

func (g *Generic) Unsubscribe(destination, id string, durable bool) *frame.Frame {
	f := frame.New(frame.CmdUnsubscribe)
	f.SetHeader(frame.HdrDestination, destination)

	if id != "" {
		f.SetHeader(frame.HdrID, id)
	}

	return f
}

// Ack builds an ACK for a received MESSAGE frame. The identifying headers
// changed with every protocol revision:
//
//   1.0  message-id
//   1.1  message-id + subscription
//   1.2  id (taken from the message's ack header, falling back to its
//        message-id)
func (g *Generic) Ack(msg *frame.Frame, transaction string) *frame.Frame {
	f := frame.New(frame.CmdAck)

	switch {
	case g.version.AtLeast(V12):
		f.SetHeader(frame.HdrID, ackID(msg))

	case g.version.AtLeast(V11):
		f.SetHeader(frame.HdrMessageID, headerOrEmpty(msg, frame.HdrMessageID))
		f.SetHeader(frame.HdrSubscription, headerOrEmpty(msg, frame.HdrSubscription))

	default:
		f.SetHeader(frame.HdrMessageID, headerOrEmpty(msg, frame.HdrMessageID))
	}

	if transaction != "" {
		f.SetHeader(frame.HdrTransaction, transaction)
	}

	return f
}

// Nack is the negative counterpart of Ack. It does not exist at STOMP 1.0,
// and the generic dialect has no way to express requeueing.
func (g *Generic) Nack(msg *frame.Frame, transaction string, requeue *bool) (*frame.Frame, error) {
	if !g.version.AtLeast(V11) {
		return nil, fmt.Errorf("stampede: nack at %s: %w", g.version, ErrNackNotSupported)
	}

	if requeue != nil {
		return nil, fmt.Errorf("stampede: nack: %w", ErrRequeueNotSupported)
	}

	f := frame.New(frame.CmdNack)

	if g.version.AtLeast(V12) {
		f.SetHeader(frame.HdrID, headerOrEmpty(msg, frame.HdrMessageID))
	} else {
		f.SetHeader(frame.HdrMessageID, headerOrEmpty(msg, frame.HdrMessageID))
		f.SetHeader(frame.HdrSubscription, headerOrEmpty(msg, frame.HdrSubscription))
	}

	if transaction != "" {
		f.SetHeader(frame.HdrTransaction, transaction)
	}

	return f, nil
}

func (g *Generic) Begin(transaction string) *frame.Frame {
	return transactionFrame(frame.CmdBegin, transaction)
}

func (g *Generic) Commit(transaction string) *frame.Frame {
	return transactionFrame(frame.CmdCommit, transaction)
}

func (g *Generic) Abort(transaction string) *frame.Frame {
	return transactionFrame(frame.CmdAbort, transaction)
}

func (g *Generic) Disconnect() *frame.Frame {
	f := frame.New(frame.CmdDisconnect)

	if g.clientID != "" {
		f.SetHeader("client-id", g.clientID)
	}

	return f
}

func transactionFrame(command, transaction string) *frame.Frame {
	f := frame.New(command)
	f.SetHeader(frame.HdrTransaction, transaction)
	return f
}

// ackID resolves the 1.2 ack identifier: the broker-assigned ack header
// when present, otherwise the message id.
func ackID(msg *frame.Frame) string {
	if id, ok := msg.Header(frame.HdrAck); ok && id != "" {
		return id
	}

	return headerOrEmpty(msg, frame.HdrMessageID)
}

func headerOrEmpty(f *frame.Frame, name string) string {
	v, _ := f.Header(name)
	return v
}

var _ Protocol = (*Generic)(nil)
