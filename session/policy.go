package session

// Stats summarizes a worker's in-memory growth since its last restart. The
// compaction policy sees it after every completed turn.
type Stats struct {
	// Turns is the number of events drained since the worker started or was
	// last reconstructed from a checkpoint.
	Turns int
	// TranscriptLen is the current accepted-message transcript length.
	TranscriptLen int
}

// CompactionPolicy decides when the replay log has grown enough to be worth
// a checkpoint-and-restart cycle. The host owns the policy; the worker only
// consults it at safe points, never mid-turn.
type CompactionPolicy interface {
	ShouldCompact(stats Stats) bool
}

// TurnThresholdPolicy compacts after a fixed number of drained events.
type TurnThresholdPolicy struct {
	// MaxTurns is the drained-event count that triggers compaction.
	MaxTurns int
}

func (p TurnThresholdPolicy) ShouldCompact(stats Stats) bool {
	return p.MaxTurns > 0 && stats.Turns >= p.MaxTurns
}

// FuncPolicy adapts a plain function to the CompactionPolicy interface.
type FuncPolicy func(stats Stats) bool

func (f FuncPolicy) ShouldCompact(stats Stats) bool { return f(stats) }
