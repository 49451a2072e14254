package tsig

import (
	"testing"
	"time"

	"github.com/haukened/rr-dns/internal/dns/domain"
	"github.com/stretchr/testify/require"
)

func TestMapKeyStore_Lookup(t *testing.T) {
	name, err := domain.ParseName("key1.example.com.", nil)
	require.NoError(t, err)
	store := MapKeyStore{
		canonicalKeyName(name): {Name: name, Algorithm: "hmac-sha256.", Secret: []byte("s3cr3t")},
	}

	got, ok := store.Lookup(name)
	require.True(t, ok)
	require.Equal(t, "hmac-sha256.", got.Algorithm)

	other, err := domain.ParseName("nope.example.com.", nil)
	require.NoError(t, err)
	_, ok = store.Lookup(other)
	require.False(t, ok)
}

func TestWithinFudge(t *testing.T) {
	now := time.Now()
	require.True(t, WithinFudge(now, DefaultFudge, now.Add(100*time.Second)))
	require.False(t, WithinFudge(now, DefaultFudge, now.Add(400*time.Second)))
}

func TestMinMACLength(t *testing.T) {
	require.Equal(t, 10, MinMACLength("hmac-md5.sig-alg.reg.int.", 16))
	require.Equal(t, 16, MinMACLength("hmac-sha256.", 32))
}
