// Package claimcheck implements the claim-check pattern for oversized
// payloads: values whose serialized form exceeds a threshold are replaced by
// a small token envelope while the real bytes are stored in an external
// content store keyed by the token. Encode/Decode are applied transparently
// at serialization boundaries (checkpoint writes, persisted records); the
// routing graph and task invoker are unaware the codec exists.
package claimcheck

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wealthmesh/wealthmesh/core"
)

// Marker identifies a claim-checked envelope. The value doubles as a codec
// version so stored blobs remain decodable across upgrades.
const Marker = "claim-checked/v1"

// DefaultThreshold is the serialized size, in bytes, above which a payload
// is claim-checked. Values at or below the threshold pass through unchanged.
const DefaultThreshold = 4 * 1024

// ErrTokenMissing is returned when decoding an envelope whose token has no
// blob in the content store. A missing token is a fatal deserialization
// error; there is no way to reconstruct the original payload.
var ErrTokenMissing = errors.New("claimcheck: token not found in content store")

// ContentStore persists claim-checked blobs keyed by token. Implementations
// must support independent-key concurrent access. Blob lifecycle (expiry,
// cleanup) is a store concern, not a codec concern.
type ContentStore interface {
	Put(ctx context.Context, token string, data []byte) error
	Get(ctx context.Context, token string) ([]byte, error)
}

// envelope is the wire form substituted for an oversized payload.
type envelope struct {
	Marker string `json:"marker"`
	Token  string `json:"token"`
}

// Codec shrinks oversized payloads for transport and persistence.
type Codec struct {
	store     ContentStore
	threshold int
}

// Options configures a Codec.
type Options struct {
	// Threshold overrides DefaultThreshold when > 0.
	Threshold int
}

// New constructs a Codec backed by the given content store.
func New(store ContentStore, optFns ...func(o *Options)) *Codec {
	opts := Options{Threshold: DefaultThreshold}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	return &Codec{store: store, threshold: opts.Threshold}
}

// Encode returns data unchanged if it fits under the threshold; otherwise it
// stores data under a fresh token and returns the small token envelope.
func (c *Codec) Encode(ctx context.Context, data []byte) ([]byte, error) {
	if len(data) <= c.threshold {
		return data, nil
	}
	token := core.NewID()
	if err := c.store.Put(ctx, token, data); err != nil {
		return nil, fmt.Errorf("claimcheck: store payload: %w", err)
	}
	return json.Marshal(envelope{Marker: Marker, Token: token})
}

// Decode returns data verbatim when it is not a claim-check envelope;
// otherwise it resolves the token against the content store. A token with no
// stored blob yields ErrTokenMissing.
func (c *Codec) Decode(ctx context.Context, data []byte) ([]byte, error) {
	token, ok := parseEnvelope(data)
	if !ok {
		return data, nil
	}
	blob, err := c.store.Get(ctx, token)
	if err != nil {
		if errors.Is(err, ErrTokenMissing) {
			return nil, fmt.Errorf("%w: %s", ErrTokenMissing, token)
		}
		return nil, fmt.Errorf("claimcheck: fetch payload %s: %w", token, err)
	}
	return blob, nil
}

// parseEnvelope reports whether data is a marker-bearing envelope.
func parseEnvelope(data []byte) (string, bool) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return "", false
	}
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return "", false
	}
	if env.Marker != Marker || env.Token == "" {
		return "", false
	}
	return env.Token, true
}
