package transport

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/stampede/frame"
)

const (
	DefaultConnectTimeout = 3 * time.Second
	DefaultReadTimeout    = 1 * time.Second
	DefaultWriteTimeout   = 3 * time.Second
	DefaultAliveTimeout   = 250 * time.Millisecond

	DefaultMaxReadBytes  = 8192
	DefaultMaxWriteBytes = 8192

	// Sleep between partial writes while the socket refuses more bytes.
	partialWriteSleep = 2500 * time.Microsecond

	// Sleep after a zero-byte read on a likely half-closed peer.
	emptyReadSleep = 5 * time.Millisecond
)

// Options configures a Connection. Zero values get sensible defaults.
type Options struct {
	// URI is a single endpoint (tcp://host:port) or a failover list
	// (failover://(url1,url2,...)?randomize=bool).
	URI string

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration

	// AliveTimeout bounds a single heartbeat-byte write.
	AliveTimeout time.Duration

	MaxReadBytes  int
	MaxWriteBytes int

	// TLS applies to ssl/tls/wss endpoints.
	TLS *tls.Config

	// Dialer overrides the default tcp/tls/ws dialer.
	Dialer Dialer

	// WaitCallback is invoked between read waits. Returning false aborts
	// the current read, which then reports no frame.
	WaitCallback func() bool

	Log *zap.Logger
}

// Connection owns one broker socket: failover endpoint selection, framed
// writes with chunking and progress-based timeouts, and polled reads
// feeding the frame parser.
//
// A Connection serves a single session and is not safe for concurrent use.
type Connection struct {
	endpoints *EndpointList
	dialer    Dialer

	conn   net.Conn
	active *Endpoint

	parser  *frame.Parser
	readBuf []byte

	obs          observerSet
	waitCallback func() bool

	connectTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	aliveTimeout   time.Duration
	maxWriteBytes  int

	log *zap.Logger
}

func NewConnection(o Options) (*Connection, error) {
	endpoints, err := ParseBrokerURI(o.URI)
	if err != nil {
		return nil, err
	}

	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.AliveTimeout <= 0 {
		o.AliveTimeout = DefaultAliveTimeout
	}
	if o.MaxReadBytes <= 0 {
		o.MaxReadBytes = DefaultMaxReadBytes
	}
	if o.MaxWriteBytes <= 0 {
		o.MaxWriteBytes = DefaultMaxWriteBytes
	}

	dialer := o.Dialer
	if dialer == nil {
		dialer = &netDialer{tlsConfig: o.TLS}
	}

	log := o.Log
	if log == nil {
		log = zap.NewNop()
	}

	c := &Connection{
		endpoints:      endpoints,
		dialer:         dialer,
		parser:         frame.NewParser(),
		readBuf:        make([]byte, o.MaxReadBytes),
		waitCallback:   o.WaitCallback,
		connectTimeout: o.ConnectTimeout,
		readTimeout:    o.ReadTimeout,
		writeTimeout:   o.WriteTimeout,
		aliveTimeout:   o.AliveTimeout,
		maxWriteBytes:  o.MaxWriteBytes,
		log:            log.Named("connection"),
	}

	c.parser.OnHeartbeat(func() {
		c.obs.emptyLineRead()
	})

	return c, nil
}

// Parser exposes the frame parser so the session can switch it between
// legacy and 1.1+ mode around version negotiation.
func (c *Connection) Parser() *frame.Parser {
	return c.parser
}

func (c *Connection) AddObserver(o Observer) {
	c.obs.add(o)
}

func (c *Connection) RemoveObserver(o Observer) {
	c.obs.remove(o)
}

func (c *Connection) SetWaitCallback(fn func() bool) {
	c.waitCallback = fn
}

// Connect tries each endpoint in order (shuffled when the URI asked for
// randomize) and keeps the first socket that opens. When every endpoint
// fails, the returned error chains each attempt's cause.
func (c *Connection) Connect() error {
	if c.conn != nil {
		return nil
	}

	var attemptErr error

	for _, e := range c.endpoints.Ordered() {
		conn, err := c.dialer.Dial(e, c.connectTimeout)
		if err != nil {
			c.log.Warn("Failed to connect to broker endpoint",
				zap.String("endpoint", e.String()),
				zap.Error(err))

			attemptErr = multierr.Append(attemptErr, &ConnectionError{Endpoint: e, Op: "connect", Err: err})
			continue
		}

		endpoint := e
		c.conn = conn
		c.active = &endpoint

		c.log.Debug("Connected to broker endpoint", zap.String("endpoint", e.String()))

		return nil
	}

	return fmt.Errorf("stampede: no broker endpoint reachable: %w", attemptErr)
}

func (c *Connection) Connected() bool {
	return c.conn != nil
}

// Active returns the endpoint of the current socket, or nil.
func (c *Connection) Active() *Endpoint {
	return c.active
}

// Disconnect closes the socket and clears the active-host record. Further
// reads and writes fail with ErrNotConnected.
func (c *Connection) Disconnect() error {
	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil
	c.active = nil

	return err
}

// WriteFrame serialises and writes a frame, then notifies observers.
func (c *Connection) WriteFrame(f *frame.Frame) error {
	if err := c.writeData(f.Bytes(), c.writeTimeout); err != nil {
		return err
	}

	c.obs.sentFrame(f)

	return nil
}

// SendAlive writes a single heartbeat byte with the short alive timeout.
func (c *Connection) SendAlive() error {
	hb := frame.NewHeartbeat()

	if err := c.writeData(hb.Bytes(), c.aliveTimeout); err != nil {
		return err
	}

	c.obs.sentFrame(hb)

	return nil
}

// writeData writes data in chunks of at most maxWriteBytes. The timeout is
// measured from the last byte that made progress, so a slow-but-moving
// socket never trips it.
func (c *Connection) writeData(data []byte, timeout time.Duration) error {
	if c.conn == nil {
		return ErrNotConnected
	}

	lastProgress := time.Now()

	for len(data) > 0 {
		chunk := data
		if len(chunk) > c.maxWriteBytes {
			chunk = chunk[:c.maxWriteBytes]
		}

		if err := c.conn.SetWriteDeadline(lastProgress.Add(timeout)); err != nil {
			return c.failure("write", err)
		}

		n, err := c.conn.Write(chunk)

		if n > 0 {
			data = data[n:]
			lastProgress = time.Now()
		}

		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() && n > 0 {
				// Forward progress was made; keep pushing.
				time.Sleep(partialWriteSleep)
				continue
			}

			return c.failure("write", err)
		}

		if len(data) > 0 {
			time.Sleep(partialWriteSleep)
		}
	}

	_ = c.conn.SetWriteDeadline(time.Time{})

	return nil
}

// ReadFrame returns the next frame from the broker.
//
// Already-parsed frames are drained first. Otherwise it waits up to the
// read timeout for bytes; an elapsed wait reports (nil, nil). With a wait
// callback installed the wait repeats until the callback returns false or
// data arrives. A broker ERROR frame is returned as an *ErrorFrame error.
func (c *Connection) ReadFrame() (*frame.Frame, error) {
	if f := c.parser.NextFrame(); f != nil {
		return c.deliver(f)
	}

	if c.conn == nil {
		return nil, ErrNotConnected
	}

	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return nil, c.failure("read", err)
		}

		n, err := c.conn.Read(c.readBuf)

		if n > 0 {
			c.parser.AddData(c.readBuf[:n])

			if f := c.parser.NextFrame(); f != nil {
				return c.deliver(f)
			}

			// Mid-frame; keep reading.
			continue
		}

		switch {
		case err == nil, errors.Is(err, io.EOF):
			// The peer has likely half-closed.
			c.obs.emptyRead()
			time.Sleep(emptyReadSleep)
			return nil, nil

		default:
			var nerr net.Error
			if !errors.As(err, &nerr) || !nerr.Timeout() {
				return nil, c.failure("read", err)
			}

			c.obs.emptyBuffer()

			if c.waitCallback == nil {
				// No data within the read timeout.
				return nil, nil
			}

			if !c.waitCallback() {
				return nil, nil
			}
		}
	}
}

// NextBufferedFrame drains one frame from bytes already parsed, without
// touching the socket.
func (c *Connection) NextBufferedFrame() *frame.Frame {
	f := c.parser.NextFrame()
	if f != nil {
		c.obs.receivedFrame(f)
	}

	return f
}

// FlushBufferedFrames drains every frame the parser can produce from
// already-buffered bytes. It performs no reads.
func (c *Connection) FlushBufferedFrames() []*frame.Frame {
	var out []*frame.Frame

	for {
		f := c.NextBufferedFrame()
		if f == nil {
			return out
		}

		out = append(out, f)
	}
}

// BufferEmpty reports whether any unparsed bytes remain buffered.
func (c *Connection) BufferEmpty() bool {
	return c.parser.BufferEmpty()
}

func (c *Connection) deliver(f *frame.Frame) (*frame.Frame, error) {
	c.obs.receivedFrame(f)

	if f.Command == frame.CmdError {
		return nil, &ErrorFrame{Frame: f}
	}

	return f, nil
}

func (c *Connection) failure(op string, err error) error {
	var endpoint Endpoint
	if c.active != nil {
		endpoint = *c.active
	}

	return &ConnectionError{Endpoint: endpoint, Op: op, Err: err}
}
