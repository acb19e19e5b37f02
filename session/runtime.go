package session

import (
	"context"
	"sync"

	"github.com/wealthmesh/wealthmesh/core"
	"github.com/wealthmesh/wealthmesh/gate"
	"github.com/wealthmesh/wealthmesh/invoke"
	"github.com/wealthmesh/wealthmesh/logging"
	"github.com/wealthmesh/wealthmesh/role"
)

// RuntimeOptions configures a Runtime.
type RuntimeOptions struct {
	Gate        *gate.Gate
	Checkpoints core.CheckpointStore
	Policy      CompactionPolicy
	Invoker     *invoke.Invoker
	Logger      logging.Logger
}

// Runtime hosts one Worker per session id. It lazily creates workers on
// first use, reconstructs them from checkpoints when one exists, and
// performs the checkpoint-driven restart a worker requests at compaction
// time. All submissions go through the Runtime so a restart is atomic with
// respect to concurrent callers.
type Runtime struct {
	graph       *role.Graph
	store       core.HistoryStore
	gate        *gate.Gate
	checkpoints core.CheckpointStore
	policy      CompactionPolicy
	invoker     *invoke.Invoker
	logger      logging.Logger

	mu      sync.Mutex
	workers map[string]*Worker
}

// NewRuntime creates a Runtime over a shared role graph and history store.
func NewRuntime(graph *role.Graph, store core.HistoryStore, optFns ...func(o *RuntimeOptions)) *Runtime {
	opts := RuntimeOptions{
		Gate:    gate.New(nil),
		Invoker: invoke.New(),
		Logger:  logging.NewDefaultSlogLogger(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Runtime{
		graph:       graph,
		store:       store,
		gate:        opts.Gate,
		checkpoints: opts.Checkpoints,
		policy:      opts.Policy,
		invoker:     opts.Invoker,
		logger:      opts.Logger,
		workers:     make(map[string]*Worker),
	}
}

// SubmitUserMessage enqueues a user message without waiting for the turn.
func (r *Runtime) SubmitUserMessage(ctx context.Context, sessionID, text string) error {
	w, err := r.worker(ctx, sessionID)
	if err != nil {
		return err
	}
	w.Submit(core.UserMessage{Text: text})
	return nil
}

// SubmitStatus injects a trusted status notification into the session queue.
// Child processes report progress exclusively through this path.
func (r *Runtime) SubmitStatus(ctx context.Context, sessionID, text string) error {
	w, err := r.worker(ctx, sessionID)
	if err != nil {
		return err
	}
	w.Submit(core.ExternalStatus{Text: text})
	return nil
}

// ProcessMessage submits a user message and blocks until its turn completes.
func (r *Runtime) ProcessMessage(ctx context.Context, sessionID, text string) ([]core.ChatInteraction, error) {
	w, err := r.worker(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return w.ProcessMessage(ctx, text)
}

// History returns the session's ordered interaction record. For sessions
// with no live worker it is served straight from the persisted record, so
// cold-start reads need no dispatch loop.
func (r *Runtime) History(ctx context.Context, sessionID string) ([]core.ChatInteraction, error) {
	r.mu.Lock()
	w := r.workers[sessionID]
	r.mu.Unlock()

	if w != nil {
		return w.History(), nil
	}
	return r.store.Read(ctx, sessionID)
}

// End terminates the session: queued events drain, the worker stops, and the
// session's checkpoint is discarded. Ending an unknown session is a no-op.
func (r *Runtime) End(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	w := r.workers[sessionID]
	delete(r.workers, sessionID)
	r.mu.Unlock()

	if w == nil {
		return nil
	}
	w.Terminate()
	select {
	case <-w.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	if r.checkpoints != nil {
		if err := r.checkpoints.Delete(ctx, sessionID); err != nil {
			r.logger.Warn("checkpoint delete failed", "session_id", sessionID, "error", err)
		}
	}
	return nil
}

// Sessions lists the ids of sessions with a live worker.
func (r *Runtime) Sessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.workers))
	for id := range r.workers {
		ids = append(ids, id)
	}
	return ids
}

// worker returns the live worker for a session, creating one on first use.
// A persisted checkpoint reconstructs the transcript and role pointer; the
// persisted history record seeds the observable history either way.
func (r *Runtime) worker(ctx context.Context, sessionID string) (*Worker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.workers[sessionID]; ok {
		return w, nil
	}

	seed, err := r.store.Read(ctx, sessionID)
	if err != nil {
		r.logger.Warn("history read failed on cold start", "session_id", sessionID, "error", err)
		seed = nil
	}
	cfg := r.workerConfig(sessionID, seed)

	if r.checkpoints != nil {
		cp, found, err := r.checkpoints.Load(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if found {
			w, err := ResumeWorker(cfg, cp)
			if err != nil {
				return nil, err
			}
			r.workers[sessionID] = w
			r.logger.Info("session resumed from checkpoint", "session_id", sessionID, "active_role", cp.ActiveRole)
			return w, nil
		}
	}

	w, err := NewWorker(cfg)
	if err != nil {
		return nil, err
	}
	r.workers[sessionID] = w
	return w, nil
}

func (r *Runtime) workerConfig(sessionID string, seed []core.ChatInteraction) Config {
	return Config{
		SessionID:        sessionID,
		Graph:            r.graph,
		Gate:             r.gate,
		History:          r.store,
		Checkpoints:      r.checkpoints,
		Policy:           r.policy,
		Invoker:          r.invoker,
		Logger:           r.logger,
		SeedInteractions: seed,
		OnCompact:        func(cp core.Checkpoint) bool { return r.restart(sessionID, cp) },
	}
}

// restart swaps in a successor worker seeded from the checkpoint. The old
// worker's live queue, including waiting synchronous callers, is requeued on
// the successor ahead of anything submitted afterwards. Returns true when
// the swap happened, telling the predecessor's loop to exit.
func (r *Runtime) restart(sessionID string, cp core.Checkpoint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.workers[sessionID]
	if old == nil {
		return false
	}
	pending := old.detach()

	cfg := r.workerConfig(sessionID, old.History())
	w, err := newWorker(cfg, cp, pending)
	if err != nil {
		r.logger.Error("worker restart failed", "session_id", sessionID, "error", err)
		old.reattach(pending)
		return false
	}
	r.workers[sessionID] = w
	old.setSuccessor(w)
	r.logger.Info("session restarted from checkpoint", "session_id", sessionID, "requeued", len(pending))
	return true
}
