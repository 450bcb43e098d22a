package client

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/luma/stampede/frame"
	"github.com/luma/stampede/internal/meta"
	"github.com/luma/stampede/protocol"
	"github.com/luma/stampede/transport"
)

// DefaultReceiptWait bounds a single synchronous send.
const DefaultReceiptWait = 2 * time.Second

// Options configures a Client.
type Options struct {
	// URI is the broker URI, single or failover form. Ignored when
	// Connection is set.
	URI string

	Login    string
	Passcode string

	// ClientID names this client to the broker. It becomes the client-id
	// header and ActiveMQ's durable subscription name.
	ClientID string

	// Host is the vhost for the CONNECT frame. Defaults to the host of
	// the endpoint that accepted the connection.
	Host string

	// Versions to offer in accept-version. Defaults to 1.0, 1.1 and 1.2.
	Versions []protocol.Version

	// HeartBeat is the client side of the heart-beat negotiation.
	HeartBeat protocol.HeartBeat

	// UseStompVerb opens the session with the 1.1+ STOMP verb instead of
	// CONNECT. Leave it off unless every broker in the failover list
	// speaks 1.1 or newer.
	UseStompVerb bool

	// Async disables the default receipt-synchronous sends.
	Async bool

	// ReceiptWait bounds a synchronous send's wait for its RECEIPT.
	ReceiptWait time.Duration

	// ConnectTimeout bounds waiting for the CONNECTED frame. Socket
	// establishment is bounded by Transport.ConnectTimeout.
	ConnectTimeout time.Duration

	// Dialect tunes the broker dialect picked at CONNECTED time.
	Dialect protocol.DialectOptions

	// Transport configures the underlying connection. Its URI is filled
	// from URI when empty.
	Transport transport.Options

	// Connection overrides the connection entirely. Used by tests and by
	// callers that need to pre-wire observers.
	Connection *transport.Connection

	Log *zap.Logger
}

// Client is a STOMP session: it brings the connection up through
// CONNECT/CONNECTED, matches receipts on synchronous sends, buffers
// out-of-order frames and tears the session down again.
//
// A Client runs on a single cooperating flow of control. Concurrent
// callers must serialise externally.
type Client struct {
	opts Options

	conn  *transport.Connection
	proto protocol.Protocol

	sessionID string
	server    string
	version   protocol.Version
	heartbeat protocol.HeartBeat

	// unprocessed holds frames read while waiting for a receipt. They are
	// replayed FIFO before anything new comes off the wire.
	unprocessed []*frame.Frame

	connected bool

	log *zap.Logger
}

func New(o Options) (*Client, error) {
	if o.Log == nil {
		o.Log = zap.NewNop()
	}

	if o.ReceiptWait <= 0 {
		o.ReceiptWait = DefaultReceiptWait
	}

	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = transport.DefaultConnectTimeout
	}

	conn := o.Connection
	if conn == nil {
		topts := o.Transport
		if topts.URI == "" {
			topts.URI = o.URI
		}
		if topts.Log == nil {
			topts.Log = o.Log
		}

		var err error
		conn, err = transport.NewConnection(topts)
		if err != nil {
			return nil, err
		}
	}

	return &Client{
		opts: o,
		conn: conn,
		log:  o.Log.Named("client"),
	}, nil
}

// Connect opens the transport, sends CONNECT and waits for CONNECTED. On
// success the negotiated version selects the parser mode and the broker
// dialect.
func (c *Client) Connect() error {
	if c.connected {
		return nil
	}

	// Until a version is negotiated the stream uses 1.0 framing.
	c.conn.Parser().SetLegacy(true)

	if err := c.conn.Connect(); err != nil {
		return err
	}

	host := c.opts.Host
	if host == "" && c.conn.Active() != nil {
		host = c.conn.Active().Host
	}

	connect := protocol.NewGeneric(protocol.V10, c.opts.ClientID).Connect(protocol.ConnectOptions{
		Login:     c.opts.Login,
		Passcode:  c.opts.Passcode,
		Host:      host,
		Versions:  c.opts.Versions,
		HeartBeat: c.opts.HeartBeat,
		UseStomp:  c.opts.UseStompVerb,
	})

	if err := c.conn.WriteFrame(connect); err != nil {
		_ = c.conn.Disconnect()
		return err
	}

	deadline := time.Now().Add(c.opts.ConnectTimeout)

	for time.Now().Before(deadline) {
		f, err := c.conn.ReadFrame()
		if err != nil {
			_ = c.conn.Disconnect()
			return err
		}

		if f == nil {
			continue
		}

		if f.Command != frame.CmdConnected {
			_ = c.conn.Disconnect()
			return &UnexpectedResponseError{Expected: frame.CmdConnected, Frame: f}
		}

		return c.completeHandshake(f)
	}

	_ = c.conn.Disconnect()

	return ErrConnectNotAcknowledged
}

func (c *Client) completeHandshake(connected *frame.Frame) error {
	version := protocol.V10

	if raw, ok := connected.Header(frame.HdrVersion); ok {
		parsed, err := protocol.ParseVersion(raw)
		if err != nil {
			_ = c.conn.Disconnect()
			return err
		}

		version = parsed
	}

	if version.AtLeast(protocol.V11) {
		c.conn.Parser().SetLegacy(false)
	}

	c.sessionID, _ = connected.Header(frame.HdrSession)
	c.server, _ = connected.Header(frame.HdrServer)
	c.version = version

	serverBeat, _ := connected.Header(frame.HdrHeartBeat)
	c.heartbeat = negotiateHeartBeat(c.opts.HeartBeat, serverBeat)

	c.proto = protocol.ForServer(c.server, version, c.opts.ClientID, c.opts.Dialect)
	c.connected = true

	c.log.Info("STOMP session established",
		zap.String("session", c.sessionID),
		zap.Stringer("version", version),
		zap.String("server", c.server),
		zap.Stringer("library", meta.GetInfo()))

	return nil
}

// negotiateHeartBeat resolves the effective intervals: each direction is
// active only when both sides want it, at the larger of the two values.
func negotiateHeartBeat(client protocol.HeartBeat, serverHeader string) protocol.HeartBeat {
	var serverSend, serverReceive int

	if parts := strings.SplitN(serverHeader, ",", 2); len(parts) == 2 {
		serverSend, _ = strconv.Atoi(strings.TrimSpace(parts[0]))
		serverReceive, _ = strconv.Atoi(strings.TrimSpace(parts[1]))
	}

	var out protocol.HeartBeat

	if client.Send > 0 && serverReceive > 0 {
		out.Send = maxInt(client.Send, serverReceive)
	}

	if client.Receive > 0 && serverSend > 0 {
		out.Receive = maxInt(client.Receive, serverSend)
	}

	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}

	return b
}

func (c *Client) Connected() bool {
	return c.connected && c.conn.Connected()
}

func (c *Client) SessionID() string {
	return c.sessionID
}

func (c *Client) Server() string {
	return c.server
}

func (c *Client) Version() protocol.Version {
	return c.version
}

// NegotiatedHeartBeat returns the effective heart-beat intervals in
// milliseconds. Feed these to transport.NewHeartbeatEmitter and
// transport.NewServerAliveObserver if heartbeating is wanted.
func (c *Client) NegotiatedHeartBeat() protocol.HeartBeat {
	return c.heartbeat
}

// Protocol returns the dialect selected at CONNECTED time, or nil before
// the session is up.
func (c *Client) Protocol() protocol.Protocol {
	return c.proto
}

func (c *Client) Connection() *transport.Connection {
	return c.conn
}

// Sync reports whether sends default to receipt-synchronous.
func (c *Client) Sync() bool {
	return !c.opts.Async
}

// Send writes a SEND frame using the session's default synchronicity.
func (c *Client) Send(destination string, body []byte, headers *frame.Headers) error {
	f := frame.New(frame.CmdSend)
	f.Headers.Merge(headers)
	f.SetHeader(frame.HdrDestination, destination)
	f.Body = body

	return c.SendFrame(f, c.Sync())
}

// SendFrame writes a frame. When sync is true a fresh receipt header is
// injected (replacing any the caller set) and the call blocks until the
// matching RECEIPT arrives or the receipt wait elapses. Frames read in the
// meantime are buffered for later ReadFrame calls.
func (c *Client) SendFrame(f *frame.Frame, sync bool) error {
	if !c.Connected() {
		return transport.ErrNotConnected
	}

	if !sync {
		return c.conn.WriteFrame(f)
	}

	receiptID := uuid.NewString()
	f.SetHeader(frame.HdrReceipt, receiptID)

	if err := c.conn.WriteFrame(f); err != nil {
		return err
	}

	return c.waitForReceipt(receiptID)
}

func (c *Client) waitForReceipt(receiptID string) error {
	deadline := time.Now().Add(c.opts.ReceiptWait)

	for {
		f, err := c.conn.ReadFrame()
		if err != nil {
			return err
		}

		if f != nil {
			if f.Command == frame.CmdReceipt {
				id, _ := f.Header(frame.HdrReceiptID)
				if id == receiptID {
					return nil
				}

				return &UnexpectedResponseError{Expected: "RECEIPT " + receiptID, Frame: f}
			}

			c.unprocessed = append(c.unprocessed, f)
		}

		if !time.Now().Before(deadline) {
			return &MissingReceiptError{ReceiptID: receiptID, Wait: c.opts.ReceiptWait}
		}
	}
}

// Ack acknowledges a received MESSAGE frame, optionally inside a
// transaction. ACK and NACK never wait for receipts.
func (c *Client) Ack(msg *frame.Frame, transaction string) error {
	if !c.Connected() {
		return transport.ErrNotConnected
	}

	return c.conn.WriteFrame(c.proto.Ack(msg, transaction))
}

// Nack rejects a received MESSAGE frame. requeue is only honoured by
// dialects that support it; others reject a non-nil value.
func (c *Client) Nack(msg *frame.Frame, transaction string, requeue *bool) error {
	if !c.Connected() {
		return transport.ErrNotConnected
	}

	f, err := c.proto.Nack(msg, transaction, requeue)
	if err != nil {
		return err
	}

	return c.conn.WriteFrame(f)
}

// ReadFrame returns the next frame: buffered out-of-order frames first
// (FIFO), then whatever the connection produces. A nil frame with a nil
// error means the read timed out without data.
func (c *Client) ReadFrame() (*frame.Frame, error) {
	if len(c.unprocessed) > 0 {
		f := c.unprocessed[0]
		c.unprocessed = c.unprocessed[1:]
		return f, nil
	}

	if !c.Connected() {
		return nil, transport.ErrNotConnected
	}

	return c.conn.ReadFrame()
}

// ReadMessage is ReadFrame wrapped in the transformation-aware Message.
func (c *Client) ReadMessage() (*Message, error) {
	f, err := c.ReadFrame()
	if err != nil || f == nil {
		return nil, err
	}

	return asMessage(f), nil
}

// ReadBuffered returns the next frame available without touching the
// socket: the unprocessed queue first, then frames parseable from
// already-buffered bytes. Nil when both are empty.
func (c *Client) ReadBuffered() *frame.Frame {
	if len(c.unprocessed) > 0 {
		f := c.unprocessed[0]
		c.unprocessed = c.unprocessed[1:]
		return f
	}

	return c.conn.NextBufferedFrame()
}

// FlushBufferedFrames returns every frame available without new reads.
func (c *Client) FlushBufferedFrames() []*frame.Frame {
	out := c.unprocessed
	c.unprocessed = nil

	return append(out, c.conn.FlushBufferedFrames()...)
}

// HasBufferedFrames reports whether ReadBuffered would yield anything.
func (c *Client) HasBufferedFrames() bool {
	return len(c.unprocessed) > 0 || !c.conn.BufferEmpty()
}

// Disconnect sends DISCONNECT (best effort, errors suppressed) and closes
// the transport. The session and its buffers are cleared.
func (c *Client) Disconnect() error {
	if c.Connected() {
		if err := c.conn.WriteFrame(c.proto.Disconnect()); err != nil {
			c.log.Debug("Failed to send DISCONNECT", zap.Error(err))
		}
	}

	c.connected = false
	c.unprocessed = nil
	c.sessionID = ""
	c.proto = nil

	return c.conn.Disconnect()
}
