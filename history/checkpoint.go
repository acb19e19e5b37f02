package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/wealthmesh/wealthmesh/claimcheck"
	"github.com/wealthmesh/wealthmesh/core"
)

// InMemoryCheckpoints is a volatile CheckpointStore for tests and
// single-process hosting.
type InMemoryCheckpoints struct {
	mu          sync.RWMutex
	checkpoints map[string]core.Checkpoint
}

// NewInMemoryCheckpoints constructs an empty in-memory checkpoint store.
func NewInMemoryCheckpoints() *InMemoryCheckpoints {
	return &InMemoryCheckpoints{checkpoints: make(map[string]core.Checkpoint)}
}

// Save stores the checkpoint, replacing any previous one for the session.
func (s *InMemoryCheckpoints) Save(_ context.Context, cp core.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp.Transcript = core.CloneMessages(cp.Transcript)
	cp.Context = cp.Context.Clone()
	s.checkpoints[cp.SessionID] = cp
	return nil
}

// Load returns the latest checkpoint for the session, if any.
func (s *InMemoryCheckpoints) Load(_ context.Context, sessionID string) (core.Checkpoint, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpoints[sessionID]
	if !ok {
		return core.Checkpoint{}, false, nil
	}
	cp.Transcript = core.CloneMessages(cp.Transcript)
	cp.Context = cp.Context.Clone()
	return cp, true, nil
}

// Delete removes the session's checkpoint.
func (s *InMemoryCheckpoints) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.checkpoints, sessionID)
	return nil
}

// RedisCheckpoints is a CheckpointStore backed by Redis. Checkpoint records
// accumulate the full accepted-message transcript, so the claim-check codec
// is applied to every write when configured.
type RedisCheckpoints struct {
	client *redis.Client
	codec  *claimcheck.Codec
	prefix string
}

// RedisCheckpointOptions configures a RedisCheckpoints store.
type RedisCheckpointOptions struct {
	// Prefix namespaces checkpoint keys; defaults to "checkpoint:".
	Prefix string
	// Codec, when non-nil, claim-checks each serialized checkpoint.
	Codec *claimcheck.Codec
}

// NewRedisCheckpoints constructs a RedisCheckpoints over an existing client.
func NewRedisCheckpoints(client *redis.Client, optFns ...func(o *RedisCheckpointOptions)) *RedisCheckpoints {
	opts := RedisCheckpointOptions{Prefix: "checkpoint:"}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &RedisCheckpoints{client: client, codec: opts.Codec, prefix: opts.Prefix}
}

// Save stores the checkpoint, replacing any previous one for the session.
func (s *RedisCheckpoints) Save(ctx context.Context, cp core.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("checkpoint: encode %s: %w", cp.SessionID, err)
	}
	if s.codec != nil {
		if data, err = s.codec.Encode(ctx, data); err != nil {
			return fmt.Errorf("checkpoint: claim-check %s: %w", cp.SessionID, err)
		}
	}
	if err := s.client.Set(ctx, s.prefix+cp.SessionID, data, 0).Err(); err != nil {
		return fmt.Errorf("checkpoint: save %s: %w", cp.SessionID, err)
	}
	return nil
}

// Load returns the latest checkpoint for the session, if any.
func (s *RedisCheckpoints) Load(ctx context.Context, sessionID string) (core.Checkpoint, bool, error) {
	data, err := s.client.Get(ctx, s.prefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.Checkpoint{}, false, nil
	}
	if err != nil {
		return core.Checkpoint{}, false, fmt.Errorf("checkpoint: load %s: %w", sessionID, err)
	}
	if s.codec != nil {
		if data, err = s.codec.Decode(ctx, data); err != nil {
			return core.Checkpoint{}, false, fmt.Errorf("checkpoint: claim-check %s: %w", sessionID, err)
		}
	}
	var cp core.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return core.Checkpoint{}, false, fmt.Errorf("checkpoint: decode %s: %w", sessionID, err)
	}
	return cp, true, nil
}

// Delete removes the session's checkpoint.
func (s *RedisCheckpoints) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.prefix+sessionID).Err(); err != nil {
		return fmt.Errorf("checkpoint: delete %s: %w", sessionID, err)
	}
	return nil
}
