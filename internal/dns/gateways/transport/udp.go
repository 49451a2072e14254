package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/haukened/rr-dns/internal/dns/common/log"
	"github.com/haukened/rr-dns/internal/dns/services/responder"
)

// UDPTransport serves DNS over UDP (RFC 1035): one read loop dispatches a
// worker goroutine per packet, since each request is answered independently
// and out of order.
type UDPTransport struct {
	addr    string
	handler Handler
	logger  log.Logger

	mu      sync.RWMutex
	conn    *net.UDPConn
	running bool
	stopCh  chan struct{}
}

func NewUDPTransport(addr string, handler Handler, logger log.Logger) *UDPTransport {
	return &UDPTransport{addr: addr, handler: handler, logger: logger, stopCh: make(chan struct{})}
}

func (t *UDPTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return fmt.Errorf("udp transport already running")
	}

	udpAddr, err := net.ResolveUDPAddr("udp", t.addr)
	if err != nil {
		return fmt.Errorf("resolve udp address %s: %w", t.addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("bind udp socket on %s: %w", t.addr, err)
	}

	t.conn = conn
	t.addr = conn.LocalAddr().String()
	t.running = true
	t.logger.Info(map[string]any{"transport": "udp", "address": t.addr}, "dns transport started")

	go t.listenLoop(ctx)
	return nil
}

func (t *UDPTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return nil
	}
	close(t.stopCh)
	var err error
	if t.conn != nil {
		err = t.conn.Close()
	}
	t.running = false
	t.logger.Info(map[string]any{"transport": "udp", "address": t.addr}, "dns transport stopped")
	return err
}

func (t *UDPTransport) Address() string { return t.addr }

func (t *UDPTransport) listenLoop(ctx context.Context) {
	buf := make([]byte, 65535) // EDNS0 may grow an inbound datagram past 512

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		default:
		}

		n, clientAddr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			t.mu.RLock()
			running := t.running
			t.mu.RUnlock()
			if !running {
				return
			}
			t.logger.Warn(map[string]any{"error": err.Error()}, "failed to read udp packet")
			continue
		}

		packet := make([]byte, n)
		copy(packet, buf[:n])
		go t.handlePacket(packet, clientAddr)
	}
}

func (t *UDPTransport) handlePacket(data []byte, clientAddr *net.UDPAddr) {
	resp, err := t.handler.Respond(data, responder.TransportUDP, time.Now())
	if err != nil {
		t.logger.Error(map[string]any{"client": clientAddr.String(), "error": err.Error()}, "failed to handle dns query")
		return
	}
	if resp == nil {
		return
	}
	if _, err := t.conn.WriteToUDP(resp, clientAddr); err != nil {
		t.logger.Error(map[string]any{"client": clientAddr.String(), "error": err.Error()}, "failed to send dns response")
	}
}
