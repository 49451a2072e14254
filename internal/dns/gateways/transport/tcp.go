package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/haukened/rr-dns/internal/dns/common/log"
	"github.com/haukened/rr-dns/internal/dns/services/responder"
)

// TCPTransport serves DNS over TCP (RFC 1035 §4.2.2): each accepted
// connection gets its own goroutine, since TCP sessions may carry several
// pipelined length-prefixed messages (and, for AXFR, a reply stream).
type TCPTransport struct {
	addr    string
	handler Handler
	logger  log.Logger

	mu       sync.Mutex
	listener net.Listener
	running  bool
	wg       sync.WaitGroup
}

func NewTCPTransport(addr string, handler Handler, logger log.Logger) *TCPTransport {
	return &TCPTransport{addr: addr, handler: handler, logger: logger}
}

func (t *TCPTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return fmt.Errorf("tcp transport already running")
	}
	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		t.mu.Unlock()
		return fmt.Errorf("bind tcp socket on %s: %w", t.addr, err)
	}
	t.listener = ln
	t.addr = ln.Addr().String()
	t.running = true
	t.mu.Unlock()

	t.logger.Info(map[string]any{"transport": "tcp", "address": t.addr}, "dns transport started")
	go t.acceptLoop(ctx)
	return nil
}

func (t *TCPTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return nil
	}
	err := t.listener.Close()
	t.running = false
	t.wg.Wait()
	t.logger.Info(map[string]any{"transport": "tcp", "address": t.addr}, "dns transport stopped")
	return err
}

func (t *TCPTransport) Address() string { return t.addr }

func (t *TCPTransport) acceptLoop(ctx context.Context) {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			t.mu.Lock()
			running := t.running
			t.mu.Unlock()
			if !running {
				return
			}
			t.logger.Warn(map[string]any{"error": err.Error()}, "failed to accept tcp connection")
			continue
		}
		t.wg.Add(1)
		go t.handleConn(ctx, conn)
	}
}

func (t *TCPTransport) handleConn(ctx context.Context, conn net.Conn) {
	defer t.wg.Done()
	defer conn.Close()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, err := readTCPMessage(conn)
		if err != nil {
			if err != io.EOF {
				t.logger.Debug(map[string]any{"client": conn.RemoteAddr().String(), "error": err.Error()}, "tcp read ended")
			}
			return
		}

		resp, err := t.handler.Respond(msg, responder.TransportTCP, time.Now())
		if err != nil {
			t.logger.Error(map[string]any{"client": conn.RemoteAddr().String(), "error": err.Error()}, "failed to handle dns query")
			return
		}
		if resp == nil {
			continue
		}
		if err := writeTCPMessage(conn, resp); err != nil {
			t.logger.Error(map[string]any{"client": conn.RemoteAddr().String(), "error": err.Error()}, "failed to send dns response")
			return
		}
	}
}

// readTCPMessage reads one 2-byte-length-prefixed DNS message.
func readTCPMessage(conn net.Conn) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// writeTCPMessage writes msg with its 2-byte length prefix.
func writeTCPMessage(conn net.Conn, msg []byte) error {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(msg)))
	if _, err := conn.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := conn.Write(msg)
	return err
}
