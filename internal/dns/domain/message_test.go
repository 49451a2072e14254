package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func mustMsgName(t *testing.T, s string) Name {
	t.Helper()
	n, err := ParseName(s, nil)
	require.NoError(t, err)
	return n
}

func TestMessage_EncodeDecode_RoundTrip(t *testing.T) {
	q, err := NewQuestion(mustMsgName(t, "www.example.com."), RRTypeA, RRClassIN)
	require.NoError(t, err)

	msg := NewQuery(0x1234, q, true)
	msg.Flags.QR = true
	msg.Flags.AA = true
	msg.Answer = []Record{
		mustMsgRecord(t, "www.example.com.", RRTypeA, 300, []byte{192, 0, 2, 1}),
	}
	msg.Authority = []Record{
		mustMsgRecord(t, "example.com.", RRTypeNS, 3600, mustMsgName(t, "ns1.example.com.").ToWireCanonical()),
	}
	msg.Additional = []Record{
		mustMsgRecord(t, "ns1.example.com.", RRTypeA, 3600, []byte{192, 0, 2, 53}),
	}

	rendered, err := msg.Encode(65535)
	require.NoError(t, err)

	got, err := Decode(rendered)
	require.NoError(t, err)

	require.Equal(t, msg.ID, got.ID)
	require.Equal(t, msg.Flags, got.Flags)
	require.Len(t, got.Question, 1)
	require.True(t, got.Question[0].Name.Equal(q.Name))
	require.Len(t, got.Answer, 1)
	require.Equal(t, msg.Answer[0].RData, got.Answer[0].RData)
	require.Len(t, got.Authority, 1)
	require.Len(t, got.Additional, 1)
}

func mustMsgRecord(t *testing.T, owner string, rrtype RRType, ttl uint32, rdata []byte) Record {
	t.Helper()
	r, err := NewRecord(mustMsgName(t, owner), rrtype, RRClassIN, ttl, rdata)
	require.NoError(t, err)
	return r
}

func TestMessage_Encode_TruncatesWhenOverMaxLength(t *testing.T) {
	q, err := NewQuestion(mustMsgName(t, "example.com."), RRTypeA, RRClassIN)
	require.NoError(t, err)
	msg := NewQuery(1, q, false)
	msg.Flags.QR = true
	for i := 0; i < 50; i++ {
		msg.Answer = append(msg.Answer, mustMsgRecord(t, "example.com.", RRTypeA, 60, []byte{10, 0, 0, byte(i)}))
	}

	rendered, err := msg.Encode(64)
	require.NoError(t, err)

	got, err := Decode(rendered)
	require.NoError(t, err)
	require.True(t, got.Flags.TC)
	require.Less(t, len(got.Answer), len(msg.Answer))
}
