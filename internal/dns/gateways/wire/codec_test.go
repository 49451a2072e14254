package wire

import (
	"testing"

	"github.com/haukened/rr-dns/internal/dns/domain"
	"github.com/stretchr/testify/require"
)

func TestDecodeEncodeRoundTrip(t *testing.T) {
	name, err := domain.ParseName("example.com.", nil)
	require.NoError(t, err)
	q, err := domain.NewQuestion(name, domain.RRTypeA, domain.RRClassIN)
	require.NoError(t, err)
	msg := domain.NewQuery(42, q, true)

	encoded, err := Encode(msg, MaxUDPPayload)
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, uint16(42), decoded.ID)
	require.Len(t, decoded.Question, 1)
	require.True(t, decoded.Question[0].Name.Equal(name))
}
