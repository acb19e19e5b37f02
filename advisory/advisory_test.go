package advisory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wealthmesh/wealthmesh/capability"
	"github.com/wealthmesh/wealthmesh/child"
	"github.com/wealthmesh/wealthmesh/core"
	"github.com/wealthmesh/wealthmesh/gate"
	"github.com/wealthmesh/wealthmesh/history"
	"github.com/wealthmesh/wealthmesh/invoke"
	"github.com/wealthmesh/wealthmesh/logging"
	"github.com/wealthmesh/wealthmesh/records"
	"github.com/wealthmesh/wealthmesh/role"
	"github.com/wealthmesh/wealthmesh/session"
)

func fastInvoker() *invoke.Invoker {
	return invoke.New(func(o *invoke.Options) {
		o.InitialInterval = time.Millisecond
		o.MaxInterval = 2 * time.Millisecond
		o.MaxElapsed = 50 * time.Millisecond
	})
}

func seededDeps(t *testing.T) Deps {
	t.Helper()
	ctx := context.Background()

	clients := records.NewInMemoryClients()
	require.NoError(t, clients.Put(ctx, records.Client{
		ID: "c-1", FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com",
	}))

	beneficiaries := records.NewInMemoryBeneficiaries()
	_, err := beneficiaries.Add(ctx, "c-1", records.Beneficiary{
		ID: "b-11111111", FirstName: "Grace", LastName: "Hopper", Relationship: "daughter",
	})
	require.NoError(t, err)

	investments := records.NewInMemoryInvestments()
	_, err = investments.Open(ctx, "c-1", "Index Fund", 1000)
	require.NoError(t, err)

	return Deps{
		Clients:       clients,
		Beneficiaries: beneficiaries,
		Investments:   investments,
	}
}

func taskContext() *capability.TaskContext {
	return &capability.TaskContext{
		Context:   context.Background(),
		SessionID: "s-1",
		Routing:   core.RoutingContext{},
		Logger:    logging.NoOpLogger{},
	}
}

func TestGraphConstruction(t *testing.T) {
	g, err := NewGraph(role.NewScriptDecider(), seededDeps(t))
	require.NoError(t, err)

	assert.Equal(t, RoleSupervisor, g.DefaultRole())
	for _, name := range []string{RoleSupervisor, RoleBeneficiary, RoleInvestment, RoleAccountOpening} {
		assert.NotNil(t, g.Role(name), name)
	}

	// Handoff edges mirror the advisory topology.
	assert.True(t, g.Role(RoleSupervisor).PermitsHandoff(RoleBeneficiary))
	assert.True(t, g.Role(RoleSupervisor).PermitsHandoff(RoleInvestment))
	assert.False(t, g.Role(RoleSupervisor).PermitsHandoff(RoleAccountOpening))
	assert.True(t, g.Role(RoleInvestment).PermitsHandoff(RoleAccountOpening))
	assert.True(t, g.Role(RoleAccountOpening).PermitsHandoff(RoleInvestment))
	assert.True(t, g.Role(RoleBeneficiary).PermitsHandoff(RoleSupervisor))
}

func TestListBeneficiariesTurn(t *testing.T) {
	decider := role.NewScriptDecider(
		role.Invoke{Capability: "list_beneficiaries", Args: map[string]any{"client_id": "c-1"}},
		role.Reply{Text: "You have one beneficiary: Grace Hopper (daughter)."},
	)
	g, err := NewGraph(decider, seededDeps(t), func(o *role.GraphOptions) {
		o.Invoker = fastInvoker()
		o.Logger = logging.NoOpLogger{}
	})
	require.NoError(t, err)

	res, err := g.RunTurn(context.Background(), role.TurnInput{
		SessionID:  "s-1",
		ActiveRole: RoleBeneficiary,
		Text:       "list my beneficiaries",
		Routing:    core.RoutingContext{"client_id": "c-1"},
	})
	require.NoError(t, err)

	assert.Contains(t, res.Structured, `"first_name":"Grace"`)
	assert.Contains(t, res.Trace, "beneficiary: calling task list_beneficiaries")
	assert.NotContains(t, res.Trace, "Handed off")
	assert.Equal(t, RoleBeneficiary, res.FinalRole)
	assert.Contains(t, res.Text, "Grace Hopper")
}

func TestOffTopicMessageGetsFixedRefusal(t *testing.T) {
	deciderCalls := 0
	decider := role.FuncDecider(func(context.Context, role.DecideRequest) (role.Step, error) {
		deciderCalls++
		return role.Reply{Text: "unreachable"}, nil
	})
	g, err := NewGraph(decider, seededDeps(t), func(o *role.GraphOptions) {
		o.Invoker = fastInvoker()
		o.Logger = logging.NoOpLogger{}
	})
	require.NoError(t, err)

	classifier := gate.FuncClassifier(func(_ context.Context, text string) (gate.Decision, error) {
		if strings.Contains(text, "capital of France") {
			return gate.Decision{Accepted: false, Reason: "geography question, not wealth management"}, nil
		}
		return gate.Decision{Accepted: true}, nil
	})

	rt := session.NewRuntime(g, history.NewInMemoryStore(), func(o *session.RuntimeOptions) {
		o.Gate = gate.New(classifier)
		o.Invoker = fastInvoker()
		o.Logger = logging.NoOpLogger{}
	})

	interactions, err := rt.ProcessMessage(context.Background(), "s-1", "what is the capital of France")
	require.NoError(t, err)
	require.Len(t, interactions, 1)
	assert.Equal(t, gate.RefusalText, interactions[0].TextResponse)
	assert.Contains(t, interactions[0].Trace, "geography question")
	assert.Empty(t, interactions[0].StructuredResponse)
	assert.Equal(t, 0, deciderCalls)
}

func TestOversizedMessageRejectedSynchronously(t *testing.T) {
	g, err := NewGraph(role.NewScriptDecider(), seededDeps(t), func(o *role.GraphOptions) {
		o.Invoker = fastInvoker()
		o.Logger = logging.NoOpLogger{}
	})
	require.NoError(t, err)

	rt := session.NewRuntime(g, history.NewInMemoryStore(), func(o *session.RuntimeOptions) {
		o.Invoker = fastInvoker()
		o.Logger = logging.NoOpLogger{}
	})

	_, err = rt.ProcessMessage(context.Background(), "s-1", strings.Repeat("a", 1001))
	assert.ErrorIs(t, err, session.ErrMessageTooLong)

	h, err := rt.History(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Empty(t, h)
}

func TestBeneficiaryTasks(t *testing.T) {
	d := seededDeps(t)

	add := newAddBeneficiaryTask(d)
	out, err := add.Call(taskContext(), map[string]any{
		"client_id": "c-1", "first_name": "Alan", "last_name": "Turing", "relationship": "son",
	})
	require.NoError(t, err)
	added := out.(records.Beneficiary)
	assert.NotEmpty(t, added.ID)

	list := newListBeneficiariesTask(d)
	out, err = list.Call(taskContext(), map[string]any{"client_id": "c-1"})
	require.NoError(t, err)
	assert.Len(t, out.([]records.Beneficiary), 2)

	del := newDeleteBeneficiaryTask(d)
	_, err = del.Call(taskContext(), map[string]any{"client_id": "c-1", "beneficiary_id": added.ID})
	require.NoError(t, err)

	_, err = del.Call(taskContext(), map[string]any{"client_id": "c-1", "beneficiary_id": added.ID})
	var taskErr *capability.TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, capability.CodeValidation, taskErr.Code)
}

func TestClientIDFallsBackToRouting(t *testing.T) {
	d := seededDeps(t)
	tc := taskContext()
	tc.Routing["client_id"] = "c-1"

	list := newListInvestmentsTask(d)
	out, err := list.Call(tc, map[string]any{"client_id": "c-1"})
	require.NoError(t, err)
	assert.Len(t, out.([]records.InvestmentAccount), 1)

	// Missing entirely, with empty routing, is a validation error.
	empty := taskContext()
	info := newGetClientInfoTask(d)
	_, err = info.Call(empty, map[string]any{"client_id": ""})
	var taskErr *capability.TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, capability.CodeValidation, taskErr.Code)
}

// latePoster breaks the runtime/graph construction cycle in tests the same
// way the server wiring does.
type latePoster struct {
	rt *session.Runtime
}

func (p *latePoster) SubmitStatus(ctx context.Context, sessionID, text string) error {
	return p.rt.SubmitStatus(ctx, sessionID, text)
}

func TestOpenAccountFlowEndToEnd(t *testing.T) {
	d := seededDeps(t)
	d.Coordinator = child.NewCoordinator(d.Investments, d.Clients, func(o *child.CoordinatorOptions) {
		o.Invoker = fastInvoker()
		o.Logger = logging.NoOpLogger{}
	})
	poster := &latePoster{}
	d.Poster = poster

	decider := role.NewScriptDecider(
		// Supervisor routes through investment into account opening.
		role.Handoff{Target: RoleInvestment},
		role.Handoff{Target: RoleAccountOpening},
		role.Invoke{Capability: "open_new_investment_account", Args: map[string]any{
			"client_id": "c-1", "account_name": "College Fund", "initial_balance": float64(250),
		}},
		role.Reply{Text: "Your account opening is underway; watch for status updates."},
	)
	g, err := NewGraph(decider, d, func(o *role.GraphOptions) {
		o.Invoker = fastInvoker()
		o.Logger = logging.NoOpLogger{}
	})
	require.NoError(t, err)

	store := history.NewInMemoryStore()
	rt := session.NewRuntime(g, store, func(o *session.RuntimeOptions) {
		o.Invoker = fastInvoker()
		o.Logger = logging.NoOpLogger{}
	})
	poster.rt = rt

	interactions, err := rt.ProcessMessage(context.Background(), "s-1", "open a new account for my kid")
	require.NoError(t, err)
	require.Len(t, interactions, 1)
	assert.Contains(t, interactions[0].Trace, "Handed off from supervisor to investment")
	assert.Contains(t, interactions[0].Trace, "Handed off from investment to account_opening")
	assert.Contains(t, interactions[0].StructuredResponse, "opening_id")

	openings := d.Coordinator.List()
	require.Len(t, openings, 1)
	o, err := d.Coordinator.Get(openings[0])
	require.NoError(t, err)

	require.NoError(t, o.VerifyKYC())
	require.NoError(t, o.ApproveCompliance())
	select {
	case <-o.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("opening never completed")
	}
	assert.Equal(t, child.StateComplete, o.State())

	// Status updates flowed back into the session record.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(store.Statuses("s-1")) >= 4 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	statuses := store.Statuses("s-1")
	require.NotEmpty(t, statuses)
	assert.Contains(t, statuses[len(statuses)-1].Status, "opened with balance 250.00")

	// The new account exists alongside the seeded one.
	accounts, err := d.Investments.List(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Len(t, accounts, 2)
}
