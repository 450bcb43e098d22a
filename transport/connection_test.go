package transport_test

import (
	"errors"
	"net"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/multierr"

	"github.com/luma/stampede/frame"
	"github.com/luma/stampede/transport"
)

// pipeDialer hands out the client ends of net.Pipe pairs, one per endpoint
// it is told to accept. Hosts not in the accept set fail to dial.
type pipeDialer struct {
	accept  map[string]bool
	brokers map[string]net.Conn
	dialed  []string
}

func newPipeDialer(hosts ...string) *pipeDialer {
	d := &pipeDialer{
		accept:  map[string]bool{},
		brokers: map[string]net.Conn{},
	}

	for _, h := range hosts {
		d.accept[h] = true
	}

	return d
}

func (d *pipeDialer) Dial(e transport.Endpoint, _ time.Duration) (net.Conn, error) {
	d.dialed = append(d.dialed, e.Host)

	if !d.accept[e.Host] {
		return nil, errors.New("connection refused")
	}

	client, broker := net.Pipe()
	d.brokers[e.Host] = broker

	return client, nil
}

func (d *pipeDialer) broker(host string) net.Conn {
	return d.brokers[host]
}

// recorder counts every observer callback.
type recorder struct {
	sent, received                       int
	emptyLines, emptyReads, emptyBuffers int
}

func (r *recorder) SentFrame(*frame.Frame)     { r.sent++ }
func (r *recorder) ReceivedFrame(*frame.Frame) { r.received++ }
func (r *recorder) EmptyLineRead()             { r.emptyLines++ }
func (r *recorder) EmptyRead()                 { r.emptyReads++ }
func (r *recorder) EmptyBuffer()               { r.emptyBuffers++ }

var _ = Describe("Connection", func() {
	var (
		dialer *pipeDialer
		conn   *transport.Connection
		broker net.Conn
	)

	connect := func(uri string) {
		var err error

		conn, err = transport.NewConnection(transport.Options{
			URI:         uri,
			ReadTimeout: 50 * time.Millisecond,
			Dialer:      dialer,
		})
		Expect(err).To(Succeed())
		Expect(conn.Connect()).To(Succeed())
	}

	BeforeEach(func() {
		dialer = newPipeDialer("a")
		connect("tcp://a")
		broker = dialer.broker("a")
	})

	AfterEach(func() {
		_ = conn.Disconnect()
	})

	Describe("Connect", func() {
		It("records the active endpoint", func() {
			Expect(conn.Connected()).To(BeTrue())
			Expect(conn.Active()).NotTo(BeNil())
			Expect(conn.Active().Host).To(Equal("a"))
		})

		It("falls through dead endpoints to a live one", func() {
			dialer = newPipeDialer("c")
			connect("failover://(tcp://a,tcp://b,tcp://c)")

			Expect(dialer.dialed).To(Equal([]string{"a", "b", "c"}))
			Expect(conn.Active().Host).To(Equal("c"))
		})

		It("chains one cause per endpoint when every dial fails", func() {
			d := newPipeDialer()

			c, err := transport.NewConnection(transport.Options{
				URI:    "failover://(tcp://a,tcp://b)",
				Dialer: d,
			})
			Expect(err).To(Succeed())

			err = c.Connect()
			Expect(err).To(HaveOccurred())
			Expect(c.Connected()).To(BeFalse())

			causes := multierr.Errors(errors.Unwrap(err))
			Expect(causes).To(HaveLen(2))

			for _, cause := range causes {
				var connErr *transport.ConnectionError
				Expect(errors.As(cause, &connErr)).To(BeTrue())
				Expect(connErr.Op).To(Equal("connect"))
			}
		})
	})

	Describe("WriteFrame", func() {
		It("puts the serialised frame on the wire and notifies observers", func() {
			rec := &recorder{}
			conn.AddObserver(rec)

			got := make(chan []byte, 1)
			go func() {
				buf := make([]byte, 256)
				n, _ := broker.Read(buf)
				got <- buf[:n]
			}()

			f := frame.New(frame.CmdSend)
			f.SetHeader("destination", "/queue/a")
			f.Body = []byte("hi")

			Expect(conn.WriteFrame(f)).To(Succeed())
			Eventually(got).Should(Receive(Equal([]byte("SEND\ndestination:/queue/a\n\nhi\x00"))))
			Expect(rec.sent).To(Equal(1))
		})

		It("fails with ErrNotConnected after Disconnect", func() {
			Expect(conn.Disconnect()).To(Succeed())

			err := conn.WriteFrame(frame.New(frame.CmdSend))
			Expect(errors.Is(err, transport.ErrNotConnected)).To(BeTrue())
		})
	})

	It("SendAlive writes a single newline byte", func() {
		got := make(chan []byte, 1)
		go func() {
			buf := make([]byte, 8)
			n, _ := broker.Read(buf)
			got <- buf[:n]
		}()

		Expect(conn.SendAlive()).To(Succeed())
		Eventually(got).Should(Receive(Equal([]byte("\n"))))
	})

	Describe("ReadFrame", func() {
		It("decodes a frame the broker wrote", func() {
			go func() {
				_, _ = broker.Write([]byte("MESSAGE\nmessage-id:m-1\n\nhello\x00"))
			}()

			f, err := conn.ReadFrame()
			Expect(err).To(Succeed())
			Expect(f).NotTo(BeNil())
			Expect(f.Command).To(Equal(frame.CmdMessage))
			Expect(f.Body).To(Equal([]byte("hello")))
		})

		It("reports no frame when the read wait elapses", func() {
			rec := &recorder{}
			conn.AddObserver(rec)

			f, err := conn.ReadFrame()
			Expect(err).To(Succeed())
			Expect(f).To(BeNil())
			Expect(rec.emptyBuffers).To(Equal(1))
		})

		It("repeats the wait until the callback gives up", func() {
			waits := 0
			conn.SetWaitCallback(func() bool {
				waits++
				return waits < 3
			})

			f, err := conn.ReadFrame()
			Expect(err).To(Succeed())
			Expect(f).To(BeNil())
			Expect(waits).To(Equal(3))
		})

		It("keeps waiting through heartbeat bytes and delivers the next frame", func() {
			rec := &recorder{}
			conn.AddObserver(rec)
			conn.SetWaitCallback(func() bool { return true })

			go func() {
				_, _ = broker.Write([]byte("\n"))
				_, _ = broker.Write([]byte("RECEIPT\nreceipt-id:1\n\n\x00"))
			}()

			f, err := conn.ReadFrame()
			Expect(err).To(Succeed())
			Expect(f.Command).To(Equal(frame.CmdReceipt))
			Expect(rec.emptyLines).To(Equal(1))
			Expect(rec.received).To(Equal(1))
		})

		It("returns a broker ERROR frame as an error", func() {
			go func() {
				_, _ = broker.Write([]byte("ERROR\nmessage:bad frame\n\n\x00"))
			}()

			f, err := conn.ReadFrame()
			Expect(f).To(BeNil())

			var errFrame *transport.ErrorFrame
			Expect(errors.As(err, &errFrame)).To(BeTrue())

			msg, _ := errFrame.Frame.Header("message")
			Expect(msg).To(Equal("bad frame"))
		})

		It("treats a closed peer as no data", func() {
			rec := &recorder{}
			conn.AddObserver(rec)

			Expect(broker.Close()).To(Succeed())

			f, err := conn.ReadFrame()
			Expect(err).To(Succeed())
			Expect(f).To(BeNil())
			Expect(rec.emptyReads).To(Equal(1))
		})
	})

	Describe("buffered frames", func() {
		It("drains frames already parsed without touching the socket", func() {
			go func() {
				_, _ = broker.Write([]byte("MESSAGE\nmessage-id:1\n\na\x00MESSAGE\nmessage-id:2\n\nb\x00"))
			}()

			first, err := conn.ReadFrame()
			Expect(err).To(Succeed())
			Expect(first.Body).To(Equal([]byte("a")))
			Expect(conn.BufferEmpty()).To(BeFalse())

			second := conn.NextBufferedFrame()
			Expect(second).NotTo(BeNil())
			Expect(second.Body).To(Equal([]byte("b")))

			Expect(conn.NextBufferedFrame()).To(BeNil())
			Expect(conn.BufferEmpty()).To(BeTrue())
		})

		It("flushes everything buffered at once", func() {
			conn.Parser().AddData([]byte("RECEIPT\nreceipt-id:1\n\n\x00RECEIPT\nreceipt-id:2\n\n\x00"))

			flushed := conn.FlushBufferedFrames()
			Expect(flushed).To(HaveLen(2))
			Expect(conn.BufferEmpty()).To(BeTrue())
		})
	})
})
