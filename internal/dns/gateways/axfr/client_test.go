package axfr

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/haukened/rr-dns/internal/dns/domain"
	"github.com/stretchr/testify/require"
)

func mustName(t *testing.T, s string) domain.Name {
	t.Helper()
	n, err := domain.ParseName(s, nil)
	require.NoError(t, err)
	return n
}

func soaRData(t *testing.T, origin string) []byte {
	t.Helper()
	out := append([]byte{}, mustName(t, "ns1."+origin).ToWireCanonical()...)
	out = append(out, mustName(t, "hostmaster."+origin).ToWireCanonical()...)
	return append(out, 0, 0, 0, 1, 0, 0, 14, 16, 0, 0, 2, 88, 0, 1, 81, 128, 0, 0, 1, 44)
}

// serveAXFR accepts one connection on the server side of a pipe, reads the
// request, and sends back SOA, NS, SOA in a single message.
func serveAXFR(t *testing.T, server net.Conn, origin string) {
	t.Helper()
	go func() {
		_, err := readMessage(server)
		require.NoError(t, err)

		soaRec, err := domain.NewRecord(mustName(t, origin), domain.RRTypeSOA, domain.RRClassIN, 3600, soaRData(t, origin))
		require.NoError(t, err)
		nsRec, err := domain.NewRecord(mustName(t, origin), domain.RRTypeNS, domain.RRClassIN, 3600, mustName(t, "ns1."+origin).ToWireCanonical())
		require.NoError(t, err)

		reply := domain.NewReply(domain.NewQuery(1, mustQuestion(t, origin), false), domain.RCodeNoError)
		reply.Answer = []domain.Record{soaRec, nsRec, soaRec}
		encoded, err := reply.Encode(65535)
		require.NoError(t, err)
		require.NoError(t, writeMessage(server, encoded))
		server.Close()
	}()
}

func mustQuestion(t *testing.T, origin string) domain.Question {
	t.Helper()
	q, err := domain.NewQuestion(mustName(t, origin), domain.RRTypeAXFR, domain.RRClassIN)
	require.NoError(t, err)
	return q
}

func TestClient_Transfer(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	serveAXFR(t, serverConn, "example.com.")

	c := NewClient(Options{
		Timeout: 5 * time.Second,
		Dial: func(ctx context.Context, network, address string) (net.Conn, error) {
			return clientConn, nil
		},
	})

	z, err := c.Transfer(context.Background(), "ignored", mustName(t, "example.com."))
	require.NoError(t, err)
	require.True(t, z.Origin().Equal(mustName(t, "example.com.")))
}
