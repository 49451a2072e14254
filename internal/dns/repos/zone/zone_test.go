package zone

import (
	"testing"

	"github.com/haukened/rr-dns/internal/dns/domain"
	"github.com/stretchr/testify/require"
)

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

func soaRData(t *testing.T) []byte {
	t.Helper()
	data, err := encodeRRData(domain.RRTypeSOA, "ns1.example.com. hostmaster.example.com. 1 3600 600 86400 300")
	require.NoError(t, err)
	return data
}

func baseRecords(t *testing.T) []domain.Record {
	t.Helper()
	return []domain.Record{
		mustRecord(t, "example.com.", domain.RRTypeSOA, 3600, soaRData(t)),
		mustRecord(t, "example.com.", domain.RRTypeNS, 3600, mustWireName(t, "ns1.example.com.")),
		mustRecord(t, "www.example.com.", domain.RRTypeA, 300, []byte{192, 0, 2, 1}),
	}
}

func mustWireName(t *testing.T, s string) []byte {
	t.Helper()
	return mustName(t, s).ToWireCanonical()
}

func TestNew_RequiresSOAAtOrigin(t *testing.T) {
	origin := mustName(t, "example.com.")
	_, err := New(origin, []domain.Record{
		mustRecord(t, "example.com.", domain.RRTypeNS, 3600, mustWireName(t, "ns1.example.com.")),
	})
	require.ErrorIs(t, err, domain.ErrZoneInvariant)
}

func TestNew_RequiresNSAtOrigin(t *testing.T) {
	origin := mustName(t, "example.com.")
	_, err := New(origin, []domain.Record{
		mustRecord(t, "example.com.", domain.RRTypeSOA, 3600, soaRData(t)),
	})
	require.ErrorIs(t, err, domain.ErrZoneInvariant)
}

func TestNew_RejectsRecordOutsideOrigin(t *testing.T) {
	origin := mustName(t, "example.com.")
	records := baseRecords(t)
	records = append(records, mustRecord(t, "other.org.", domain.RRTypeA, 300, []byte{1, 2, 3, 4}))
	_, err := New(origin, records)
	require.ErrorIs(t, err, domain.ErrZoneInvariant)
}

func TestLookup_ExactMatch(t *testing.T) {
	origin := mustName(t, "example.com.")
	z, err := New(origin, baseRecords(t))
	require.NoError(t, err)

	res := z.Lookup(mustName(t, "www.example.com."), domain.RRTypeA)
	require.Equal(t, domain.LookupSuccess, res.Kind)
	require.Len(t, res.RRsets, 1)
	require.Equal(t, domain.RRTypeA, res.RRsets[0].Type)
}

func TestLookup_NxDomain(t *testing.T) {
	origin := mustName(t, "example.com.")
	z, err := New(origin, baseRecords(t))
	require.NoError(t, err)

	res := z.Lookup(mustName(t, "nope.example.com."), domain.RRTypeA)
	require.Equal(t, domain.LookupNxDomain, res.Kind)
}

func TestLookup_NxRRset(t *testing.T) {
	origin := mustName(t, "example.com.")
	z, err := New(origin, baseRecords(t))
	require.NoError(t, err)

	res := z.Lookup(mustName(t, "www.example.com."), domain.RRTypeAAAA)
	require.Equal(t, domain.LookupNxRRset, res.Kind)
}

func TestLookup_Delegation(t *testing.T) {
	origin := mustName(t, "example.com.")
	records := baseRecords(t)
	records = append(records, mustRecord(t, "sub.example.com.", domain.RRTypeNS, 3600, mustWireName(t, "ns1.sub.example.com.")))
	z, err := New(origin, records)
	require.NoError(t, err)

	res := z.Lookup(mustName(t, "host.sub.example.com."), domain.RRTypeA)
	require.Equal(t, domain.LookupDelegation, res.Kind)
}

func TestLookup_Wildcard(t *testing.T) {
	origin := mustName(t, "example.com.")
	records := baseRecords(t)
	records = append(records, mustRecord(t, "*.example.com.", domain.RRTypeA, 300, []byte{203, 0, 113, 9}))
	z, err := New(origin, records)
	require.NoError(t, err)

	res := z.Lookup(mustName(t, "anything.example.com."), domain.RRTypeA)
	require.Equal(t, domain.LookupSuccess, res.Kind)
	require.True(t, res.RRsets[0].Owner.Equal(mustName(t, "anything.example.com.")))
}

func TestAXFR_SOAFirstAndLast(t *testing.T) {
	origin := mustName(t, "example.com.")
	z, err := New(origin, baseRecords(t))
	require.NoError(t, err)

	rrsets := z.AXFR()
	require.True(t, len(rrsets) >= 2)
	require.Equal(t, domain.RRTypeSOA, rrsets[0].Type)
	require.Equal(t, domain.RRTypeSOA, rrsets[len(rrsets)-1].Type)
}
