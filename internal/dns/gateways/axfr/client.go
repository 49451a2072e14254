// Package axfr implements the client side of a full zone transfer (RFC
// 5936): dialing a primary server over TCP, sending an AXFR query, and
// reassembling the streamed SOA...records...SOA response into a Zone.
package axfr

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/haukened/rr-dns/internal/dns/domain"
	"github.com/haukened/rr-dns/internal/dns/repos/zone"
)

// DialFunc matches net.Dialer.DialContext, injectable for testing.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Options configures a Client.
type Options struct {
	Timeout time.Duration
	Dial    DialFunc
}

// Client performs AXFR zone transfers against a single primary server.
type Client struct {
	timeout time.Duration
	dial    DialFunc
}

func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Dial == nil {
		opts.Dial = (&net.Dialer{}).DialContext
	}
	return &Client{timeout: opts.Timeout, dial: opts.Dial}
}

// Transfer connects to server, requests an AXFR of origin, and builds the
// resulting Zone from the streamed records.
func (c *Client) Transfer(ctx context.Context, server string, origin domain.Name) (*zone.Zone, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dial(ctx, "tcp", server)
	if err != nil {
		return nil, fmt.Errorf("axfr: connect to %s: %w", server, err)
	}
	defer conn.Close()

	q, err := domain.NewQuestion(origin, domain.RRTypeAXFR, domain.RRClassIN)
	if err != nil {
		return nil, fmt.Errorf("axfr: invalid origin %s: %w", origin, err)
	}
	req := domain.NewQuery(1, q, false)
	reqBytes, err := req.Encode(65535)
	if err != nil {
		return nil, fmt.Errorf("axfr: encode request: %w", err)
	}
	if err := writeMessage(conn, reqBytes); err != nil {
		return nil, fmt.Errorf("axfr: send request: %w", err)
	}

	var records []domain.Record
	soaCount := 0
	for {
		msgBytes, err := readMessage(conn)
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("axfr: read response: %w", err)
		}
		msg, err := domain.Decode(msgBytes)
		if err != nil {
			return nil, fmt.Errorf("axfr: decode response: %w", err)
		}
		if msg.Flags.RCode != domain.RCodeNoError {
			return nil, fmt.Errorf("axfr: server returned %s", msg.Flags.RCode)
		}
		for _, rec := range msg.Answer {
			records = append(records, rec)
			if rec.Type == domain.RRTypeSOA {
				soaCount++
			}
		}
		if soaCount >= 2 {
			break
		}
	}

	// The closing SOA duplicates the opening one (spec §4.5's "SOA, then
	// all other RRsets, then SOA again"); drop it before building the Zone.
	if n := len(records); n > 0 && records[n-1].Type == domain.RRTypeSOA {
		records = records[:n-1]
	}

	return zone.New(origin, records)
}

func writeMessage(conn net.Conn, msg []byte) error {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(msg)))
	if _, err := conn.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := conn.Write(msg)
	return err
}

func readMessage(conn net.Conn) ([]byte, error) {
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
