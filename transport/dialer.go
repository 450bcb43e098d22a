package transport

import (
	"crypto/tls"
	"net"
	"time"
)

// Dialer opens the byte-stream transport for one endpoint. The default
// implementation understands plain TCP, TLS and STOMP-over-WebSocket; tests
// substitute their own.
type Dialer interface {
	Dial(e Endpoint, timeout time.Duration) (net.Conn, error)
}

type netDialer struct {
	tlsConfig *tls.Config
}

func (d *netDialer) Dial(e Endpoint, timeout time.Duration) (net.Conn, error) {
	switch e.Scheme {
	case "ssl", "tls":
		return tls.DialWithDialer(&net.Dialer{Timeout: timeout}, "tcp", e.Addr(), d.configFor(e))

	case "ws", "wss":
		return dialWebsocket(e, timeout, d.tlsConfig)

	default:
		// tcp and anything we do not recognise dials plain TCP.
		return net.DialTimeout("tcp", e.Addr(), timeout)
	}
}

func (d *netDialer) configFor(e Endpoint) *tls.Config {
	if d.tlsConfig == nil {
		return &tls.Config{ServerName: e.Host}
	}

	cfg := d.tlsConfig.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = e.Host
	}

	return cfg
}
