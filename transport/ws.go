package transport

import (
	"crypto/tls"
	"io"
	"net"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// stompSubprotocols advertises the versions we speak, newest first, per
// the STOMP-over-WebSocket convention.
var stompSubprotocols = []string{"v12.stomp", "v11.stomp", "v10.stomp"}

func dialWebsocket(e Endpoint, timeout time.Duration, tlsConfig *tls.Config) (net.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: timeout,
		TLSClientConfig:  tlsConfig,
		Subprotocols:     stompSubprotocols,
	}

	u := url.URL{Scheme: e.Scheme, Host: e.Addr()}

	ws, resp, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return nil, err
	}

	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	return &wsConn{ws: ws}, nil
}

// wsConn adapts a websocket connection to net.Conn. Frames written become
// one binary message each; reads concatenate incoming messages back into a
// byte stream.
type wsConn struct {
	ws     *websocket.Conn
	reader io.Reader
}

func (c *wsConn) Read(p []byte) (int, error) {
	for {
		if c.reader == nil {
			_, r, err := c.ws.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}

				return 0, err
			}

			c.reader = r
		}

		n, err := c.reader.Read(p)
		if err == io.EOF {
			c.reader = nil

			if n > 0 {
				return n, nil
			}

			continue
		}

		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}

	return len(p), nil
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

func (c *wsConn) LocalAddr() net.Addr {
	return c.ws.LocalAddr()
}

func (c *wsConn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}

	return c.ws.SetWriteDeadline(t)
}

func (c *wsConn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

func (c *wsConn) SetWriteDeadline(t time.Time) error {
	return c.ws.SetWriteDeadline(t)
}

var _ net.Conn = (*wsConn)(nil)
