package transport

import (
	"fmt"

	"github.com/haukened/rr-dns/internal/dns/common/log"
)

// New builds the ServerTransport for kind, bound to addr and dispatching to
// handler.
func New(kind Kind, addr string, handler Handler, logger log.Logger) (ServerTransport, error) {
	switch kind {
	case KindUDP:
		return NewUDPTransport(addr, handler, logger), nil
	case KindTCP:
		return NewTCPTransport(addr, handler, logger), nil
	default:
		return nil, fmt.Errorf("unsupported transport kind: %s", kind)
	}
}
