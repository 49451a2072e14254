package domain

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-dns/internal/dns/common/wire"
)

func TestCompression_AddGet_RoundTrip(t *testing.T) {
	n, err := ParseName("www.example.com.", nil)
	require.NoError(t, err)

	ct := NewCompression()
	ct.Add(12, n)

	off, ok := ct.Get(n)
	require.True(t, ok)
	require.Equal(t, 12, off)
}

func TestCompression_Add_RejectsOffsetBeyondPointerRange(t *testing.T) {
	n, err := ParseName("www.example.com.", nil)
	require.NoError(t, err)

	ct := NewCompression()
	ct.Add(maxCompressionOffset+1, n)

	_, ok := ct.Get(n)
	require.False(t, ok)
}

func TestMessage_Encode_SharesCompressionAcrossRecords(t *testing.T) {
	q, err := NewQuestion(mustMsgName(t, "www.example.com."), RRTypeA, RRClassIN)
	require.NoError(t, err)
	msg := NewQuery(1, q, false)
	msg.Flags.QR = true
	msg.Answer = []Record{
		mustMsgRecord(t, "www.example.com.", RRTypeCNAME, 300, mustMsgName(t, "target.example.com.").ToWireCanonical()),
	}
	msg.Authority = []Record{
		mustMsgRecord(t, "example.com.", RRTypeNS, 3600, mustMsgName(t, "ns1.example.com.").ToWireCanonical()),
	}

	compressed, err := msg.Encode(65535)
	require.NoError(t, err)

	uncompressedLen := len(mustMsgName(t, "www.example.com.").ToWireCanonical()) +
		len(mustMsgName(t, "target.example.com.").ToWireCanonical()) +
		len(mustMsgName(t, "example.com.").ToWireCanonical()) +
		len(mustMsgName(t, "ns1.example.com.").ToWireCanonical())
	require.Less(t, len(compressed), uncompressedLen+headerSize+40)

	got, err := Decode(compressed)
	require.NoError(t, err)
	require.Len(t, got.Answer, 1)
	require.Len(t, got.Authority, 1)
}

// NameFromWire must reject a compression pointer that targets itself or a
// later offset, since following it could never terminate (RFC 1035 §4.1.4).
func TestNameFromWire_RejectsForwardPointingCompressionPointer(t *testing.T) {
	buf := []byte{0xC0, 0x00} // pointer at offset 0 targeting offset 0
	r := wire.NewReader(buf)
	_, err := NameFromWire(r)
	require.ErrorIs(t, err, ErrBadCompression)
}

func TestNameFromWire_RejectsPointerTargetingLaterOffset(t *testing.T) {
	// A 3-byte label "foo" followed by a pointer aimed past itself.
	buf := []byte{3, 'f', 'o', 'o', 0xC0, 0x05}
	r := wire.NewReader(buf)
	r.Jump(4) // start reading the pointer directly
	_, err := NameFromWire(r)
	require.ErrorIs(t, err, ErrBadCompression)
}
