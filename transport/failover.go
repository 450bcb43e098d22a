package transport

import (
	"fmt"
	"math/rand"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// DefaultPort is the IANA-registered STOMP port.
const DefaultPort = 61613

// Endpoint is one broker address from the configured URI. The scheme is
// preserved verbatim so the dialer can pick a transport for it.
type Endpoint struct {
	Scheme string
	Host   string
	Port   int
}

func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s://%s", e.Scheme, e.Addr())
}

// EndpointList is the parsed form of a broker URI: one or more endpoints
// plus the failover options that govern connect-attempt ordering.
type EndpointList struct {
	endpoints []Endpoint
	randomize bool
}

// ParseBrokerURI accepts either a single endpoint
//
//   tcp://broker:61613
//
// or a failover list
//
//   failover://(tcp://a:61613,ssl://b:61614)?randomize=true
//
// Missing ports default to 61613.
func ParseBrokerURI(raw string) (*EndpointList, error) {
	if strings.HasPrefix(raw, "failover://") {
		return parseFailoverURI(raw)
	}

	e, err := parseEndpoint(raw)
	if err != nil {
		return nil, err
	}

	return &EndpointList{endpoints: []Endpoint{e}}, nil
}

func parseFailoverURI(raw string) (*EndpointList, error) {
	rest := strings.TrimPrefix(raw, "failover://")

	if !strings.HasPrefix(rest, "(") {
		return nil, fmt.Errorf("%w: failover URI %q is missing the endpoint list", ErrInvalidBrokerURI, raw)
	}

	end := strings.Index(rest, ")")
	if end < 0 {
		return nil, fmt.Errorf("%w: failover URI %q has an unterminated endpoint list", ErrInvalidBrokerURI, raw)
	}

	list := &EndpointList{}

	for _, part := range strings.Split(rest[1:end], ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		e, err := parseEndpoint(part)
		if err != nil {
			return nil, err
		}

		list.endpoints = append(list.endpoints, e)
	}

	if len(list.endpoints) == 0 {
		return nil, fmt.Errorf("%w: failover URI %q has no endpoints", ErrInvalidBrokerURI, raw)
	}

	if query := strings.TrimPrefix(rest[end+1:], "?"); query != "" {
		values, err := url.ParseQuery(query)
		if err != nil {
			return nil, fmt.Errorf("%w: bad failover options in %q: %v", ErrInvalidBrokerURI, raw, err)
		}

		if v := values.Get("randomize"); v != "" {
			randomize, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("%w: randomize=%q is not a boolean", ErrInvalidBrokerURI, v)
			}

			list.randomize = randomize
		}
	}

	return list, nil
}

func parseEndpoint(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %v", ErrInvalidBrokerURI, err)
	}

	if u.Scheme == "" || u.Hostname() == "" {
		return Endpoint{}, fmt.Errorf("%w: %q needs a scheme and a host", ErrInvalidBrokerURI, raw)
	}

	port := DefaultPort

	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return Endpoint{}, fmt.Errorf("%w: bad port in %q", ErrInvalidBrokerURI, raw)
		}
	}

	return Endpoint{Scheme: u.Scheme, Host: u.Hostname(), Port: port}, nil
}

// Ordered returns the endpoints in connect-attempt order: configured order
// by default, shuffled when randomize was requested.
func (l *EndpointList) Ordered() []Endpoint {
	out := make([]Endpoint, len(l.endpoints))
	copy(out, l.endpoints)

	if l.randomize {
		rand.Shuffle(len(out), func(i, j int) {
			out[i], out[j] = out[j], out[i]
		})
	}

	return out
}

func (l *EndpointList) Randomize() bool {
	return l.randomize
}

func (l *EndpointList) Len() int {
	return len(l.endpoints)
}
