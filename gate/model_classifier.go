package gate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wealthmesh/wealthmesh/core"
	"github.com/wealthmesh/wealthmesh/model"
)

// classifierInstructions steer the model toward a strict JSON verdict. The
// wording follows the routing filter used in production: the question must
// concern wealth management (beneficiaries, investment accounts, account
// opening) to pass.
const classifierInstructions = `You are a routing filter for a wealth management assistant.
Decide whether the user's message is a wealth management question: anything about
beneficiaries, investment accounts, opening or closing accounts, or the client's
own account data. Respond with a single JSON object and nothing else:
{"in_domain": true|false, "reasoning": "<one sentence>"}`

// verdict is the JSON shape the classifier model must produce.
type verdict struct {
	InDomain  bool   `json:"in_domain"`
	Reasoning string `json:"reasoning"`
}

// ModelClassifier drives a model.Model as the binary classifier. It
// satisfies the external-classifier contract; the orchestration core only
// sees the Decision.
type ModelClassifier struct {
	llm model.Model
}

// NewModelClassifier constructs a classifier over the given model.
func NewModelClassifier(llm model.Model) *ModelClassifier {
	return &ModelClassifier{llm: llm}
}

// Classify implements Classifier. Malformed model output is an error (and
// therefore retryable), never an implicit accept.
func (c *ModelClassifier) Classify(ctx context.Context, text string) (Decision, error) {
	resp, err := c.llm.Complete(ctx, model.Request{
		Instructions: classifierInstructions,
		Messages:     []core.Message{core.NewUserMessageEntry(text)},
	})
	if err != nil {
		return Decision{}, fmt.Errorf("classifier completion: %w", err)
	}

	v, err := parseVerdict(resp.Text)
	if err != nil {
		return Decision{}, fmt.Errorf("classifier verdict: %w", err)
	}
	return Decision{Accepted: v.InDomain, Reason: v.Reasoning}, nil
}

// parseVerdict extracts the JSON object from the completion text, tolerating
// surrounding prose or code fences.
func parseVerdict(text string) (verdict, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return verdict{}, fmt.Errorf("no JSON object in %q", text)
	}
	var v verdict
	if err := json.Unmarshal([]byte(text[start:end+1]), &v); err != nil {
		return verdict{}, fmt.Errorf("decode %q: %w", text[start:end+1], err)
	}
	return v, nil
}
