// Package session implements the per-session dispatch loop: a single-owner
// state machine that drains pending events in strict submission order, routes
// them through the admission gate and the role graph, and persists the
// resulting interactions. A Runtime hosts one Worker per session id and
// orchestrates checkpoint-driven restarts.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/wealthmesh/wealthmesh/core"
	"github.com/wealthmesh/wealthmesh/gate"
	"github.com/wealthmesh/wealthmesh/invoke"
	"github.com/wealthmesh/wealthmesh/logging"
	"github.com/wealthmesh/wealthmesh/role"
)

// MaxMessageLen is the maximum accepted user message length in characters.
const MaxMessageLen = 1000

// failureText is the user-visible response recorded when a turn aborts on a
// fatal task error. Like the gate refusal it never varies with the input.
const failureText = "I'm sorry, something went wrong while handling your request. Please try again."

var (
	// ErrEmptyMessage rejects blank user input before it is queued.
	ErrEmptyMessage = errors.New("session: message must not be empty")

	// ErrMessageTooLong rejects oversized user input before it is queued.
	ErrMessageTooLong = fmt.Errorf("session: message exceeds %d characters", MaxMessageLen)

	// ErrSessionEnded is returned by synchronous calls on a terminated session.
	ErrSessionEnded = errors.New("session: session has ended")
)

// Phase is the dispatch loop state, observable for tests and diagnostics.
type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseDraining          Phase = "draining"
	PhaseCompactionPending Phase = "compaction_pending"
	PhaseEnded             Phase = "ended"
)

type turnOutcome struct {
	interaction core.ChatInteraction
	err         error
}

type queueItem struct {
	event core.PendingEvent
	// reply is non-nil for synchronous submissions and receives exactly one
	// outcome once the turn completes.
	reply chan turnOutcome
}

// Config wires a Worker's collaborators. Graph and History are required.
type Config struct {
	SessionID   string
	Graph       *role.Graph
	Gate        *gate.Gate
	History     core.HistoryStore
	Checkpoints core.CheckpointStore
	Policy      CompactionPolicy
	Invoker     *invoke.Invoker
	Logger      logging.Logger

	// SeedInteractions pre-populates the observable history, used when a
	// worker is reconstructed for a session whose record already exists.
	SeedInteractions []core.ChatInteraction

	// OnCompact is called after a checkpoint has been durably saved. It
	// returns true when the host has taken over with a successor worker, at
	// which point this worker's loop exits. A nil OnCompact means checkpoints
	// are saved but the worker keeps running in place.
	OnCompact func(cp core.Checkpoint) bool
}

// Worker owns all in-memory state for one session. Exactly one goroutine
// (the loop) mutates routing state and the transcript; the mutex only guards
// the queue and the snapshots served to concurrent readers.
type Worker struct {
	sessionID   string
	graph       *role.Graph
	gate        *gate.Gate
	store       core.HistoryStore
	checkpoints core.CheckpointStore
	policy      CompactionPolicy
	invoker     *invoke.Invoker
	logger      logging.Logger
	onCompact   func(cp core.Checkpoint) bool

	mu         sync.Mutex
	cond       *sync.Cond
	queue      []queueItem
	terminated bool
	detached   bool
	successor  *Worker
	phase      Phase

	activeRole   string
	transcript   []core.Message
	routing      core.RoutingContext
	interactions []core.ChatInteraction
	statuses     []core.StatusUpdate
	turns        int

	done chan struct{}
}

// NewWorker creates a fresh worker with an empty transcript, active role set
// to the graph's default, and starts its dispatch loop.
func NewWorker(cfg Config) (*Worker, error) {
	return newWorker(cfg, core.Checkpoint{}, nil)
}

// ResumeWorker reconstructs a worker from a checkpoint. The checkpoint's
// pending events are queued ahead of anything submitted afterwards, so the
// successor observes the same order the predecessor would have.
func ResumeWorker(cfg Config, cp core.Checkpoint) (*Worker, error) {
	pending := make([]queueItem, 0, len(cp.Pending))
	for _, ev := range cp.Pending {
		pending = append(pending, queueItem{event: ev})
	}
	return newWorker(cfg, cp, pending)
}

func newWorker(cfg Config, cp core.Checkpoint, pending []queueItem) (*Worker, error) {
	if cfg.Graph == nil {
		return nil, errors.New("session: graph is required")
	}
	if cfg.History == nil {
		return nil, errors.New("session: history store is required")
	}
	if cfg.Gate == nil {
		cfg.Gate = gate.New(nil)
	}
	if cfg.Invoker == nil {
		cfg.Invoker = invoke.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDefaultSlogLogger()
	}

	w := &Worker{
		sessionID:    cfg.SessionID,
		graph:        cfg.Graph,
		gate:         cfg.Gate,
		store:        cfg.History,
		checkpoints:  cfg.Checkpoints,
		policy:       cfg.Policy,
		invoker:      cfg.Invoker,
		logger:       cfg.Logger,
		onCompact:    cfg.OnCompact,
		queue:        pending,
		phase:        PhaseIdle,
		activeRole:   cp.ActiveRole,
		transcript:   core.CloneMessages(cp.Transcript),
		routing:      cp.Context.Clone(),
		interactions: append([]core.ChatInteraction(nil), cfg.SeedInteractions...),
		done:         make(chan struct{}),
	}
	if w.activeRole == "" {
		w.activeRole = cfg.Graph.DefaultRole()
	}
	w.cond = sync.NewCond(&w.mu)

	go w.loop()
	return w, nil
}

// SessionID returns the session this worker owns.
func (w *Worker) SessionID() string { return w.sessionID }

// Phase reports the current dispatch loop state.
func (w *Worker) Phase() Phase {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.phase
}

// ActiveRole returns the current handoff pointer.
func (w *Worker) ActiveRole() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.activeRole
}

// Done is closed when the dispatch loop has stopped for good.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Submit enqueues an event without blocking. Events submitted after
// Terminate are accepted but never drained. A worker replaced during a
// compaction restart forwards to its successor, so no event is lost to a
// stale worker pointer.
func (w *Worker) Submit(event core.PendingEvent) {
	w.mu.Lock()
	if s := w.successorLocked(); s != nil {
		w.mu.Unlock()
		s.Submit(event)
		return
	}
	if w.terminated {
		w.mu.Unlock()
		return
	}
	w.queue = append(w.queue, queueItem{event: event})
	w.cond.Broadcast()
	w.mu.Unlock()
}

// successorLocked resolves the forwarding target for a detached worker,
// waiting out the instant between detach and the runtime publishing the
// replacement. Returns nil when the worker is live.
func (w *Worker) successorLocked() *Worker {
	for w.detached && w.successor == nil {
		w.cond.Wait()
	}
	return w.successor
}

// Terminate requests a cooperative stop: already-queued events drain, then
// the loop enters Ended. Calling it again is a no-op.
func (w *Worker) Terminate() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.terminated = true
	w.cond.Broadcast()
}

// ProcessMessage validates and enqueues a user message, then blocks until
// its turn completes, returning the interactions the call produced. Fatal
// turn errors are returned alongside the recorded error-trace interaction.
func (w *Worker) ProcessMessage(ctx context.Context, text string) ([]core.ChatInteraction, error) {
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > MaxMessageLen {
		return nil, ErrMessageTooLong
	}

	reply := make(chan turnOutcome, 1)

	w.mu.Lock()
	if s := w.successorLocked(); s != nil {
		w.mu.Unlock()
		return s.ProcessMessage(ctx, text)
	}
	if w.terminated {
		w.mu.Unlock()
		return nil, ErrSessionEnded
	}
	w.queue = append(w.queue, queueItem{event: core.UserMessage{Text: text}, reply: reply})
	w.cond.Broadcast()
	w.mu.Unlock()

	select {
	case out := <-reply:
		return []core.ChatInteraction{out.interaction}, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// History returns the ordered interaction record. It is served from memory
// and is never partial: interactions appear only after their turn completed.
func (w *Worker) History() []core.ChatInteraction {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]core.ChatInteraction, len(w.interactions))
	copy(out, w.interactions)
	return out
}

// Statuses returns the status updates recorded so far.
func (w *Worker) Statuses() []core.StatusUpdate {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]core.StatusUpdate, len(w.statuses))
	copy(out, w.statuses)
	return out
}

func (w *Worker) loop() {
	defer close(w.done)
	ctx := context.Background()

	for {
		item, ok := w.next()
		if !ok {
			w.setPhase(PhaseEnded)
			w.logger.Info("session ended", "session_id", w.sessionID)
			return
		}

		w.setPhase(PhaseDraining)
		w.processItem(ctx, item)

		if w.compactionDue() {
			w.setPhase(PhaseCompactionPending)
			if w.compact(ctx) {
				w.setPhase(PhaseEnded)
				return
			}
		}
		w.setPhase(PhaseIdle)
	}
}

// next blocks until an event is available or termination empties the queue.
func (w *Worker) next() (queueItem, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for len(w.queue) == 0 && !w.terminated {
		w.cond.Wait()
	}
	if len(w.queue) == 0 {
		return queueItem{}, false
	}
	item := w.queue[0]
	w.queue = w.queue[1:]
	return item, true
}

func (w *Worker) setPhase(p Phase) {
	w.mu.Lock()
	w.phase = p
	w.mu.Unlock()
}

func (w *Worker) processItem(ctx context.Context, item queueItem) {
	switch ev := item.event.(type) {
	case core.UserMessage:
		out := w.processUserMessage(ctx, ev)
		if item.reply != nil {
			item.reply <- out
		}
	case core.ExternalStatus:
		w.processExternalStatus(ctx, ev)
		if item.reply != nil {
			item.reply <- turnOutcome{}
		}
	default:
		w.logger.Warn("dropping unknown event type", "session_id", w.sessionID, "type", fmt.Sprintf("%T", item.event))
	}
}

// processUserMessage runs one full turn: gate, routing, interaction assembly
// and persistence. Observable history gains exactly one interaction for
// every drained user message, refusals and fatal errors included.
func (w *Worker) processUserMessage(ctx context.Context, ev core.UserMessage) turnOutcome {
	interaction := core.NewChatInteraction(ev.Text)

	// Classifier outages are transient task failures; the invoker absorbs
	// them and only an exhausted retry budget aborts the turn.
	out, err := w.invoker.Invoke(ctx, "admission_check", func(ctx context.Context) (any, error) {
		return w.gate.Check(ctx, ev.Text)
	})
	if err != nil {
		interaction.TextResponse = failureText
		interaction.Trace = fmt.Sprintf("Error: admission check failed: %v\n", err)
		w.record(ctx, interaction)
		return turnOutcome{interaction: interaction, err: err}
	}
	decision := out.(gate.Decision)
	if !decision.Accepted {
		interaction.TextResponse = gate.RefusalText
		interaction.Trace = fmt.Sprintf("Rejected by admission gate: %s\n", decision.Reason)
		w.logger.Info("message rejected", "session_id", w.sessionID, "reason", decision.Reason)
		w.record(ctx, interaction)
		return turnOutcome{interaction: interaction}
	}

	w.mu.Lock()
	in := role.TurnInput{
		SessionID:  w.sessionID,
		ActiveRole: w.activeRole,
		Text:       ev.Text,
		Transcript: core.CloneMessages(w.transcript),
		Routing:    w.routing.Clone(),
	}
	w.mu.Unlock()

	res, err := w.graph.RunTurn(ctx, in)
	if err != nil {
		// The turn aborts: no transcript delta, no role change. The session
		// itself stays live and the failure is visible in the trace.
		interaction.TextResponse = failureText
		interaction.Trace = fmt.Sprintf("Error: %v\n", err)
		w.logger.Error("turn failed", "session_id", w.sessionID, "error", err)
		w.record(ctx, interaction)
		return turnOutcome{interaction: interaction, err: err}
	}

	interaction.TextResponse = res.Text
	interaction.StructuredResponse = res.Structured
	interaction.Trace = res.Trace

	w.mu.Lock()
	w.transcript = append(w.transcript, res.TranscriptDelta...)
	w.activeRole = res.FinalRole
	// Tasks own the routing clone for the duration of the turn: writes and
	// deletes both carry over, the clone replaces the old context wholesale.
	w.routing = in.Routing
	w.mu.Unlock()

	w.record(ctx, interaction)
	return turnOutcome{interaction: interaction}
}

func (w *Worker) processExternalStatus(ctx context.Context, ev core.ExternalStatus) {
	status := core.NewStatusUpdate(ev.Text)

	w.mu.Lock()
	w.statuses = append(w.statuses, status)
	w.turns++
	w.mu.Unlock()

	_, err := w.invoker.Invoke(ctx, "history_append_status", func(ctx context.Context) (any, error) {
		return nil, w.store.AppendStatus(ctx, w.sessionID, status)
	})
	if err != nil {
		w.logger.Warn("status persist failed", "session_id", w.sessionID, "error", err)
	}
}

// record appends the interaction to the in-memory history and persists it
// externally. Persistence failures are logged, not fatal: the in-memory
// record remains authoritative for the life of this worker.
func (w *Worker) record(ctx context.Context, interaction core.ChatInteraction) {
	w.mu.Lock()
	w.interactions = append(w.interactions, interaction)
	w.turns++
	w.mu.Unlock()

	_, err := w.invoker.Invoke(ctx, "history_append_interaction", func(ctx context.Context) (any, error) {
		return nil, w.store.AppendInteraction(ctx, w.sessionID, interaction)
	})
	if err != nil {
		w.logger.Warn("history persist failed", "session_id", w.sessionID, "error", err)
	}
}

func (w *Worker) compactionDue() bool {
	if w.policy == nil || w.checkpoints == nil {
		return false
	}
	w.mu.Lock()
	stats := Stats{Turns: w.turns, TranscriptLen: len(w.transcript)}
	w.mu.Unlock()
	return w.policy.ShouldCompact(stats)
}

// compact snapshots a checkpoint at the current safe point and persists it.
// Returns true when the host has replaced this worker with a successor. A
// failed checkpoint write leaves the worker running unchanged.
func (w *Worker) compact(ctx context.Context) bool {
	cp := w.snapshot()

	_, err := w.invoker.Invoke(ctx, "checkpoint_save", func(ctx context.Context) (any, error) {
		return nil, w.checkpoints.Save(ctx, cp)
	})
	if err != nil {
		w.logger.Warn("checkpoint save failed, continuing without compaction", "session_id", w.sessionID, "error", err)
		return false
	}

	w.mu.Lock()
	w.turns = 0
	w.mu.Unlock()

	if w.onCompact == nil {
		return false
	}
	w.logger.Info("checkpoint saved, requesting restart", "session_id", w.sessionID, "transcript_len", len(cp.Transcript), "pending", len(cp.Pending))
	return w.onCompact(cp)
}

// snapshot captures the carry-over state at a safe point: no turn is in
// flight, so the transcript, role pointer and queue are mutually consistent.
func (w *Worker) snapshot() core.Checkpoint {
	w.mu.Lock()
	defer w.mu.Unlock()

	pending := make([]core.PendingEvent, 0, len(w.queue))
	for _, item := range w.queue {
		pending = append(pending, item.event)
	}
	return core.Checkpoint{
		SessionID:  w.sessionID,
		ActiveRole: w.activeRole,
		Transcript: core.CloneMessages(w.transcript),
		Context:    w.routing.Clone(),
		Pending:    pending,
	}
}

// detach hands the live queue to a successor and stops accepting events.
// Called by the runtime, under its own lock, during a compaction restart.
func (w *Worker) detach() []queueItem {
	w.mu.Lock()
	defer w.mu.Unlock()

	items := w.queue
	w.queue = nil
	w.detached = true
	w.terminated = true
	w.cond.Broadcast()
	return items
}

// setSuccessor publishes the replacement worker; callers holding a stale
// pointer forward to it from then on.
func (w *Worker) setSuccessor(s *Worker) {
	w.mu.Lock()
	w.successor = s
	w.cond.Broadcast()
	w.mu.Unlock()
}

// reattach undoes a detach after a failed restart, restoring the handed-over
// queue ahead of anything submitted since.
func (w *Worker) reattach(items []queueItem) {
	w.mu.Lock()
	w.queue = append(items, w.queue...)
	w.detached = false
	w.terminated = false
	w.cond.Broadcast()
	w.mu.Unlock()
}
