package zoneset

import (
	"encoding/binary"
	"testing"

	"github.com/haukened/rr-dns/internal/dns/domain"
	"github.com/haukened/rr-dns/internal/dns/repos/zone"
	"github.com/stretchr/testify/require"
)

func soaRData(t *testing.T, origin string) []byte {
	t.Helper()
	var out []byte
	out = append(out, mustName(t, "ns1."+origin).ToWireCanonical()...)
	out = append(out, mustName(t, "hostmaster."+origin).ToWireCanonical()...)
	u32 := make([]byte, 20)
	vals := []uint32{1, 3600, 600, 86400, 300}
	for i, v := range vals {
		binary.BigEndian.PutUint32(u32[i*4:], v)
	}
	return append(out, u32...)
}

func mustName(t *testing.T, s string) domain.Name {
	t.Helper()
	n, err := domain.ParseName(s, nil)
	require.NoError(t, err)
	return n
}

func mustRecord(t *testing.T, owner string, rrtype domain.RRType, ttl uint32, rdata []byte) domain.Record {
	t.Helper()
	r, err := domain.NewRecord(mustName(t, owner), rrtype, domain.RRClassIN, ttl, rdata)
	require.NoError(t, err)
	return r
}

func buildZone(t *testing.T, origin string, extra ...domain.Record) *zone.Zone {
	t.Helper()
	soaData, err := domain.NewRecord(mustName(t, origin), domain.RRTypeSOA, domain.RRClassIN, 3600, soaRData(t, origin))
	require.NoError(t, err)
	records := []domain.Record{
		soaData,
		mustRecord(t, origin, domain.RRTypeNS, 3600, mustName(t, "ns1."+origin).ToWireCanonical()),
	}
	records = append(records, extra...)
	z, err := zone.New(mustName(t, origin), records)
	require.NoError(t, err)
	return z
}

func TestSet_BestPicksMostSpecific(t *testing.T) {
	s := New()
	s.Add(buildZone(t, "example.com."))
	s.Add(buildZone(t, "sub.example.com."))

	got := s.Best(mustName(t, "host.sub.example.com."))
	require.NotNil(t, got)
	require.True(t, got.Origin().Equal(mustName(t, "sub.example.com.")))
}

func TestSet_BestNoMatch(t *testing.T) {
	s := New()
	s.Add(buildZone(t, "example.com."))

	got := s.Best(mustName(t, "other.org."))
	require.Nil(t, got)
}

func TestSet_RemoveAndLen(t *testing.T) {
	s := New()
	z := buildZone(t, "example.com.")
	s.Add(z)
	require.Equal(t, 1, s.Len())
	s.Remove(z.Origin())
	require.Equal(t, 0, s.Len())
}
