package claimcheck

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeBelowThresholdPassesThrough(t *testing.T) {
	store := NewInMemoryStore()
	codec := New(store)

	payload := []byte(`{"small":"value"}`)
	out, err := codec.Encode(context.Background(), payload)
	require.NoError(t, err)

	assert.Equal(t, payload, out)
	assert.Equal(t, 0, store.Len())
}

func TestEncodeAboveThresholdStoresBlob(t *testing.T) {
	store := NewInMemoryStore()
	codec := New(store, func(o *Options) { o.Threshold = 16 })

	payload := bytes.Repeat([]byte("x"), 4096)
	out, err := codec.Encode(context.Background(), payload)
	require.NoError(t, err)

	var env map[string]string
	require.NoError(t, json.Unmarshal(out, &env))
	assert.Equal(t, Marker, env["marker"])
	assert.NotEmpty(t, env["token"])
	assert.Equal(t, 1, store.Len())
	assert.Less(t, len(out), len(payload))
}

func TestRoundTrip(t *testing.T) {
	codec := New(NewInMemoryStore(), func(o *Options) { o.Threshold = 8 })

	payload := bytes.Repeat([]byte("payload"), 100)
	encoded, err := codec.Encode(context.Background(), payload)
	require.NoError(t, err)

	decoded, err := codec.Decode(context.Background(), encoded)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)
}

func TestDecodeNonEnvelopeVerbatim(t *testing.T) {
	codec := New(NewInMemoryStore())

	for _, payload := range [][]byte{
		[]byte(`{"marker":"something-else","token":"t"}`),
		[]byte(`plain text, not even JSON`),
		[]byte(`{"nested":{"marker":"claim-checked/v1"}}`),
	} {
		out, err := codec.Decode(context.Background(), payload)
		require.NoError(t, err)
		assert.Equal(t, payload, out)
	}
}

func TestDecodeMissingTokenFatal(t *testing.T) {
	codec := New(NewInMemoryStore(), func(o *Options) { o.Threshold = 8 })

	encoded, err := codec.Encode(context.Background(), bytes.Repeat([]byte("y"), 64))
	require.NoError(t, err)

	// A fresh store no longer holds the blob.
	fresh := New(NewInMemoryStore())
	_, err = fresh.Decode(context.Background(), encoded)
	assert.ErrorIs(t, err, ErrTokenMissing)
}

func TestTokensAreUnique(t *testing.T) {
	store := NewInMemoryStore()
	codec := New(store, func(o *Options) { o.Threshold = 4 })

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		out, err := codec.Encode(context.Background(), bytes.Repeat([]byte("z"), 32))
		require.NoError(t, err)
		var env map[string]string
		require.NoError(t, json.Unmarshal(out, &env))
		assert.False(t, seen[env["token"]])
		seen[env["token"]] = true
	}
}
