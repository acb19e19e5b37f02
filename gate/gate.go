// Package gate implements the admission gate: a binary pre-filter that
// classifies inbound user messages as in-domain or not before they reach the
// routing graph. Rejected messages short-circuit the turn with a fixed,
// content-independent refusal; the classifier's reasoning is recorded in the
// interaction trace only and never shown to the end user. External status
// events bypass the gate entirely.
package gate

import (
	"context"

	"github.com/wealthmesh/wealthmesh/logging"
)

// RefusalText is the fixed response recorded for every rejected message. It
// never varies with the rejected content so the gate cannot be probed
// through its refusals.
const RefusalText = "I'm sorry, but I can only help with wealth management questions related to beneficiaries and investments. Please ask me about your beneficiaries, investment accounts, or other wealth management topics."

// Decision is the classifier verdict for a single message.
type Decision struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// Classifier is the external binary-classification contract. A classifier
// error is a retryable task error, not a rejection.
type Classifier interface {
	Classify(ctx context.Context, text string) (Decision, error)
}

// Gate wraps a Classifier with logging. A nil classifier accepts everything,
// mirroring a deployment that disables admission checks.
type Gate struct {
	classifier Classifier
	logger     logging.Logger
}

// Options holds overrides passed to New.
type Options struct {
	Logger logging.Logger
}

// New constructs a Gate over the given classifier.
func New(classifier Classifier, optFns ...func(o *Options)) *Gate {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Gate{classifier: classifier, logger: opts.Logger}
}

// Check classifies text. The returned Decision is authoritative: callers
// must not inspect the message further on rejection.
func (g *Gate) Check(ctx context.Context, text string) (Decision, error) {
	if g.classifier == nil {
		return Decision{Accepted: true}, nil
	}

	decision, err := g.classifier.Classify(ctx, text)
	if err != nil {
		return Decision{}, err
	}

	if decision.Accepted {
		g.logger.Debug("gate.accepted")
	} else {
		g.logger.Info("gate.rejected", "reason", decision.Reason)
	}
	return decision, nil
}

// StaticClassifier returns a fixed verdict regardless of input. Test helper
// and building block for deployments with an allow-all policy.
type StaticClassifier struct {
	Decision Decision
}

// Classify implements Classifier.
func (c StaticClassifier) Classify(context.Context, string) (Decision, error) {
	return c.Decision, nil
}

// FuncClassifier adapts a plain function to the Classifier interface.
type FuncClassifier func(ctx context.Context, text string) (Decision, error)

// Classify implements Classifier.
func (f FuncClassifier) Classify(ctx context.Context, text string) (Decision, error) {
	return f(ctx, text)
}
