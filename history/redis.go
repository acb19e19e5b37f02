package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/wealthmesh/wealthmesh/claimcheck"
	"github.com/wealthmesh/wealthmesh/core"
)

// RedisStore is a HistoryStore backed by Redis lists, one per session id.
// Interactions and statuses are stored as JSON entries; when a claim-check
// codec is configured every entry passes through it so oversized structured
// responses never bloat the record keyspace.
type RedisStore struct {
	client *redis.Client
	codec  *claimcheck.Codec
	prefix string
}

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	// Prefix namespaces history keys; defaults to "history:".
	Prefix string
	// Codec, when non-nil, claim-checks each serialized entry.
	Codec *claimcheck.Codec
}

// NewRedisStore constructs a RedisStore over an existing client.
func NewRedisStore(client *redis.Client, optFns ...func(o *RedisOptions)) *RedisStore {
	opts := RedisOptions{Prefix: "history:"}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &RedisStore{client: client, codec: opts.Codec, prefix: opts.Prefix}
}

func (s *RedisStore) interactionsKey(sessionID string) string { return s.prefix + sessionID }
func (s *RedisStore) statusesKey(sessionID string) string     { return s.prefix + sessionID + ":status" }

// AppendInteraction appends one interaction to the session's history list.
func (s *RedisStore) AppendInteraction(ctx context.Context, sessionID string, interaction core.ChatInteraction) error {
	data, err := s.encode(ctx, interaction)
	if err != nil {
		return fmt.Errorf("history: encode interaction: %w", err)
	}
	if err := s.client.RPush(ctx, s.interactionsKey(sessionID), data).Err(); err != nil {
		return fmt.Errorf("history: append interaction %s: %w", sessionID, err)
	}
	return nil
}

// AppendStatus appends one status update to the session's status list.
func (s *RedisStore) AppendStatus(ctx context.Context, sessionID string, status core.StatusUpdate) error {
	data, err := s.encode(ctx, status)
	if err != nil {
		return fmt.Errorf("history: encode status: %w", err)
	}
	if err := s.client.RPush(ctx, s.statusesKey(sessionID), data).Err(); err != nil {
		return fmt.Errorf("history: append status %s: %w", sessionID, err)
	}
	return nil
}

// Read returns the session's full interaction history in append order.
func (s *RedisStore) Read(ctx context.Context, sessionID string) ([]core.ChatInteraction, error) {
	entries, err := s.client.LRange(ctx, s.interactionsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("history: read %s: %w", sessionID, err)
	}
	out := make([]core.ChatInteraction, 0, len(entries))
	for _, entry := range entries {
		var interaction core.ChatInteraction
		if err := s.decode(ctx, []byte(entry), &interaction); err != nil {
			return nil, fmt.Errorf("history: decode interaction: %w", err)
		}
		out = append(out, interaction)
	}
	return out, nil
}

// Delete removes the session's history and status lists.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.interactionsKey(sessionID), s.statusesKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("history: delete %s: %w", sessionID, err)
	}
	return nil
}

func (s *RedisStore) encode(ctx context.Context, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if s.codec == nil {
		return data, nil
	}
	return s.codec.Encode(ctx, data)
}

func (s *RedisStore) decode(ctx context.Context, data []byte, v any) error {
	if s.codec != nil {
		decoded, err := s.codec.Decode(ctx, data)
		if err != nil {
			return err
		}
		data = decoded
	}
	return json.Unmarshal(data, v)
}
