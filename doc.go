// Package stampede is a STOMP 1.0/1.1/1.2 client library with support for
// the ActiveMQ, RabbitMQ and Apollo broker dialects.
//
// The interesting packages are
//
//   - frame: wire-level frame parsing and serialising
//   - protocol: version- and broker-specific verb frame construction
//   - transport: failover connection handling, heartbeats and observers
//   - client: the session layer and the producer/consumer state machine
package stampede
