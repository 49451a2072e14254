// Package transport provides the network listener loops that feed wire
// bytes to a Handler and write its reply back to the client, per the
// concurrency model of spec §5: one read loop dispatching worker goroutines
// for UDP, one goroutine per accepted connection for TCP.
package transport

import (
	"context"
	"time"

	"github.com/haukened/rr-dns/internal/dns/services/responder"
)

// Handler answers a raw wire-format request, matching
// responder.Responder.Respond's signature so the concrete Responder can be
// used directly without an adapter. A nil response with a nil error means
// the request was intentionally dropped (spec §4.6 step 1).
type Handler interface {
	Respond(reqBytes []byte, transport responder.Transport, now time.Time) ([]byte, error)
}

// ServerTransport is the common lifecycle for a listening DNS transport.
type ServerTransport interface {
	Start(ctx context.Context) error
	Stop() error
	Address() string
}

// Kind identifies a supported transport protocol.
type Kind string

const (
	KindUDP Kind = "udp"
	KindTCP Kind = "tcp"
)
