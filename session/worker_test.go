package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wealthmesh/wealthmesh/capability"
	"github.com/wealthmesh/wealthmesh/core"
	"github.com/wealthmesh/wealthmesh/gate"
	"github.com/wealthmesh/wealthmesh/history"
	"github.com/wealthmesh/wealthmesh/invoke"
	"github.com/wealthmesh/wealthmesh/logging"
	"github.com/wealthmesh/wealthmesh/role"
)

func fastInvoker() *invoke.Invoker {
	return invoke.New(func(o *invoke.Options) {
		o.InitialInterval = time.Millisecond
		o.MaxInterval = 2 * time.Millisecond
		o.MaxElapsed = 50 * time.Millisecond
	})
}

// echoDecider replies with the prompt prefixed, so responses are a pure
// function of the inbound text.
func echoDecider() role.Decider {
	return role.FuncDecider(func(_ context.Context, req role.DecideRequest) (role.Step, error) {
		var last string
		for _, m := range req.Transcript {
			if m.Role == core.RoleUser {
				last = m.Content
			}
		}
		return role.Reply{Text: "echo: " + last}, nil
	})
}

func newTestGraph(t *testing.T, decider role.Decider, roles ...*role.Role) *role.Graph {
	t.Helper()
	defaultRole := role.NewRole("supervisor")
	if len(roles) > 0 {
		defaultRole = roles[0]
		roles = roles[1:]
	}
	g, err := role.NewGraph(decider, defaultRole, roles, func(o *role.GraphOptions) {
		o.Invoker = fastInvoker()
		o.Logger = logging.NoOpLogger{}
	})
	require.NoError(t, err)
	return g
}

func newTestWorker(t *testing.T, mutate ...func(cfg *Config)) (*Worker, *history.InMemoryStore) {
	t.Helper()
	store := history.NewInMemoryStore()
	cfg := Config{
		SessionID: "s-1",
		Graph:     newTestGraph(t, echoDecider()),
		History:   store,
		Invoker:   fastInvoker(),
		Logger:    logging.NoOpLogger{},
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	w, err := NewWorker(cfg)
	require.NoError(t, err)
	t.Cleanup(w.Terminate)
	return w, store
}

func waitHistoryLen(t *testing.T, w *Worker, n int) []core.ChatInteraction {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h := w.History(); len(h) >= n {
			return h
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("history never reached %d entries, have %d", n, len(w.History()))
	return nil
}

func TestProcessMessageReturnsInteraction(t *testing.T) {
	w, store := newTestWorker(t)

	interactions, err := w.ProcessMessage(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, interactions, 1)
	assert.Equal(t, "hello", interactions[0].UserPrompt)
	assert.Equal(t, "echo: hello", interactions[0].TextResponse)
	assert.NotEmpty(t, interactions[0].ID)

	// Also persisted externally.
	persisted, err := store.Read(context.Background(), "s-1")
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, interactions[0].ID, persisted[0].ID)
}

func TestMessageValidation(t *testing.T) {
	w, store := newTestWorker(t)

	_, err := w.ProcessMessage(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = w.ProcessMessage(context.Background(), strings.Repeat("a", MaxMessageLen+1))
	assert.ErrorIs(t, err, ErrMessageTooLong)

	// Exactly at the limit is fine.
	_, err = w.ProcessMessage(context.Background(), strings.Repeat("a", MaxMessageLen))
	assert.NoError(t, err)

	// Rejected input never reaches history.
	persisted, err := store.Read(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Len(t, persisted, 1)
}

func TestSubmitDrainsInOrder(t *testing.T) {
	w, _ := newTestWorker(t)

	for i := 0; i < 10; i++ {
		w.Submit(core.UserMessage{Text: fmt.Sprintf("m-%d", i)})
	}

	h := waitHistoryLen(t, w, 10)
	for i := 0; i < 10; i++ {
		assert.Equal(t, fmt.Sprintf("m-%d", i), h[i].UserPrompt)
		assert.Equal(t, fmt.Sprintf("echo: m-%d", i), h[i].TextResponse)
	}
}

func TestGateRejectionRecordsFixedRefusal(t *testing.T) {
	deciderCalls := 0
	w, store := newTestWorker(t, func(cfg *Config) {
		cfg.Graph = newTestGraph(t, role.FuncDecider(func(context.Context, role.DecideRequest) (role.Step, error) {
			deciderCalls++
			return role.Reply{Text: "should not run"}, nil
		}))
		cfg.Gate = gate.New(gate.StaticClassifier{Decision: gate.Decision{Accepted: false, Reason: "geography question"}})
	})

	interactions, err := w.ProcessMessage(context.Background(), "what is the capital of France?")
	require.NoError(t, err)
	require.Len(t, interactions, 1)

	assert.Equal(t, gate.RefusalText, interactions[0].TextResponse)
	assert.Contains(t, interactions[0].Trace, "geography question")
	assert.Empty(t, interactions[0].StructuredResponse)
	assert.Equal(t, 0, deciderCalls)

	// The refusal is a normal interaction in the persisted record.
	persisted, err := store.Read(context.Background(), "s-1")
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, gate.RefusalText, persisted[0].TextResponse)
}

func TestTransientClassifierErrorRetries(t *testing.T) {
	attempts := 0
	flaky := gate.FuncClassifier(func(context.Context, string) (gate.Decision, error) {
		attempts++
		if attempts == 1 {
			return gate.Decision{}, errors.New("transient classifier outage")
		}
		return gate.Decision{Accepted: true}, nil
	})
	w, _ := newTestWorker(t, func(cfg *Config) {
		cfg.Gate = gate.New(flaky)
	})

	// The outage is absorbed by the retry policy; the caller sees a normal
	// reply, not a failure interaction.
	interactions, err := w.ProcessMessage(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, interactions, 1)
	assert.Equal(t, "echo: hello", interactions[0].TextResponse)
	assert.Equal(t, 2, attempts)

	h := w.History()
	require.Len(t, h, 1)
	assert.NotContains(t, h[0].Trace, "admission check failed")
}

func TestFatalTurnErrorKeepsSessionLive(t *testing.T) {
	boom := capability.NewTaskError("lookup", "endpoint absent", capability.CodeNotRetryable)
	task := capability.NewFuncTask("lookup", "",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(*capability.TaskContext, map[string]any) (any, error) {
			return nil, boom
		})
	super := role.NewRole("supervisor", func(o *role.RoleOptions) {
		o.Capabilities = []capability.Task{task}
	})

	calls := 0
	w, _ := newTestWorker(t, func(cfg *Config) {
		cfg.Graph = newTestGraph(t, role.FuncDecider(func(context.Context, role.DecideRequest) (role.Step, error) {
			calls++
			if calls == 1 {
				return role.Invoke{Capability: "lookup"}, nil
			}
			return role.Reply{Text: "recovered"}, nil
		}), super)
	})

	interactions, err := w.ProcessMessage(context.Background(), "fail please")
	require.Error(t, err)
	require.Len(t, interactions, 1)
	assert.Contains(t, interactions[0].Trace, "endpoint absent")
	assert.Equal(t, failureText, interactions[0].TextResponse)

	// The session keeps processing later turns.
	interactions, err = w.ProcessMessage(context.Background(), "try again")
	require.NoError(t, err)
	assert.Equal(t, "recovered", interactions[0].TextResponse)

	h := w.History()
	require.Len(t, h, 2)
	assert.Contains(t, h[0].Trace, "Error:")
}

func TestTurnAdoptsRoutingWritesAndDeletes(t *testing.T) {
	task := capability.NewFuncTask("switch_client", "",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(tc *capability.TaskContext, _ map[string]any) (any, error) {
			delete(tc.Routing, "client_id")
			tc.Routing["opening_id"] = "op-1"
			return "ok", nil
		})
	super := role.NewRole("supervisor", func(o *role.RoleOptions) {
		o.Capabilities = []capability.Task{task}
	})
	calls := 0
	decider := role.FuncDecider(func(context.Context, role.DecideRequest) (role.Step, error) {
		calls++
		if calls == 1 {
			return role.Invoke{Capability: "switch_client"}, nil
		}
		return role.Reply{Text: "done"}, nil
	})

	store := history.NewInMemoryStore()
	cfg := Config{
		SessionID: "s-1",
		Graph:     newTestGraph(t, decider, super),
		History:   store,
		Invoker:   fastInvoker(),
		Logger:    logging.NoOpLogger{},
	}
	w, err := ResumeWorker(cfg, core.Checkpoint{
		SessionID:  "s-1",
		ActiveRole: "supervisor",
		Context:    core.RoutingContext{"client_id": "c-1"},
	})
	require.NoError(t, err)
	t.Cleanup(w.Terminate)

	_, err = w.ProcessMessage(context.Background(), "switch")
	require.NoError(t, err)

	cp := w.snapshot()
	assert.Equal(t, "op-1", cp.Context["opening_id"])
	assert.NotContains(t, cp.Context, "client_id")
}

func TestDetachedWorkerForwardsToSuccessor(t *testing.T) {
	old, store := newTestWorker(t)
	require.Empty(t, old.detach())

	successor, err := NewWorker(Config{
		SessionID: "s-1",
		Graph:     newTestGraph(t, echoDecider()),
		History:   store,
		Invoker:   fastInvoker(),
		Logger:    logging.NoOpLogger{},
	})
	require.NoError(t, err)
	t.Cleanup(successor.Terminate)

	// A synchronous caller holding the stale pointer blocks until the
	// replacement is published, then lands on it.
	type result struct {
		interactions []core.ChatInteraction
		err          error
	}
	resCh := make(chan result, 1)
	go func() {
		interactions, err := old.ProcessMessage(context.Background(), "hello")
		resCh <- result{interactions, err}
	}()

	old.setSuccessor(successor)

	select {
	case res := <-resCh:
		require.NoError(t, res.err)
		require.Len(t, res.interactions, 1)
		assert.Equal(t, "echo: hello", res.interactions[0].TextResponse)
	case <-time.After(2 * time.Second):
		t.Fatal("forwarded call never completed")
	}
	assert.Empty(t, old.History())
	require.Len(t, successor.History(), 1)

	// Fire-and-forget events forward too instead of being dropped.
	old.Submit(core.ExternalStatus{Text: "kyc verified"})
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(successor.Statuses()) == 0 {
		time.Sleep(2 * time.Millisecond)
	}
	require.Len(t, successor.Statuses(), 1)
}

func TestExternalStatusBypassesGate(t *testing.T) {
	w, store := newTestWorker(t, func(cfg *Config) {
		// A gate that rejects everything must not see status events.
		cfg.Gate = gate.New(gate.StaticClassifier{Decision: gate.Decision{Accepted: false, Reason: "no"}})
	})

	w.Submit(core.ExternalStatus{Text: "kyc verified"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(w.Statuses()) == 1 {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	require.Len(t, w.Statuses(), 1)
	assert.Equal(t, "kyc verified", w.Statuses()[0].Status)

	// Persisted as a status update, not a chat interaction.
	assert.Len(t, store.Statuses("s-1"), 1)
	persisted, err := store.Read(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Empty(t, persisted)
}

func TestTerminateDrainsThenEnds(t *testing.T) {
	w, _ := newTestWorker(t)

	for i := 0; i < 5; i++ {
		w.Submit(core.UserMessage{Text: fmt.Sprintf("m-%d", i)})
	}
	w.Terminate()

	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("worker never ended")
	}

	assert.Equal(t, PhaseEnded, w.Phase())
	assert.Len(t, w.History(), 5)

	// Accepted but never drained.
	w.Submit(core.UserMessage{Text: "too late"})
	time.Sleep(10 * time.Millisecond)
	assert.Len(t, w.History(), 5)

	_, err := w.ProcessMessage(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrSessionEnded)

	// Idempotent re-entry.
	w.Terminate()
	assert.Equal(t, PhaseEnded, w.Phase())
}

func TestCheckpointSaveFailureKeepsWorkerRunning(t *testing.T) {
	w, _ := newTestWorker(t, func(cfg *Config) {
		cfg.Checkpoints = failingCheckpoints{}
		cfg.Policy = TurnThresholdPolicy{MaxTurns: 1}
	})

	_, err := w.ProcessMessage(context.Background(), "one")
	require.NoError(t, err)
	_, err = w.ProcessMessage(context.Background(), "two")
	require.NoError(t, err)

	assert.Len(t, w.History(), 2)
	assert.NotEqual(t, PhaseEnded, w.Phase())
}

func TestWorkerCheckpointsAtSafePoint(t *testing.T) {
	checkpoints := history.NewInMemoryCheckpoints()
	w, _ := newTestWorker(t, func(cfg *Config) {
		cfg.Checkpoints = checkpoints
		cfg.Policy = TurnThresholdPolicy{MaxTurns: 2}
	})

	_, err := w.ProcessMessage(context.Background(), "one")
	require.NoError(t, err)
	_, err = w.ProcessMessage(context.Background(), "two")
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, found, _ := checkpoints.Load(context.Background(), "s-1"); found {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	cp, found, err := checkpoints.Load(context.Background(), "s-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "supervisor", cp.ActiveRole)
	// Two turns, user plus assistant entries each.
	assert.Len(t, cp.Transcript, 4)
	assert.Empty(t, cp.Pending)
}

type failingCheckpoints struct{}

func (failingCheckpoints) Save(context.Context, core.Checkpoint) error {
	return errors.New("checkpoint store down")
}

func (failingCheckpoints) Load(context.Context, string) (core.Checkpoint, bool, error) {
	return core.Checkpoint{}, false, nil
}

func (failingCheckpoints) Delete(context.Context, string) error { return nil }
