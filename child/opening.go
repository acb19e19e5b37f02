// Package child runs account-opening processes alongside a session. An
// opening advances through a fixed sequence of states gated on external
// signals and reports every transition back to its parent session as a
// status line, never by touching the session's transcript directly.
package child

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/wealthmesh/wealthmesh/invoke"
	"github.com/wealthmesh/wealthmesh/logging"
	"github.com/wealthmesh/wealthmesh/records"
)

// State is the lifecycle state of an account opening.
type State string

const (
	StateInitializing      State = "initializing"
	StateWaitingKYC        State = "waiting_kyc"
	StateWaitingCompliance State = "waiting_compliance"
	StateCreatingAccount   State = "creating_account"
	StateComplete          State = "complete"
	StateFailed            State = "failed"
)

// ErrBadSignal is returned when a signal arrives in a state that does not
// expect it.
var ErrBadSignal = errors.New("child: signal not valid in current state")

// StatusSink receives progress lines destined for the parent session. The
// runtime wires this to the session queue, so delivery never blocks the
// opening itself.
type StatusSink func(status string)

// Spec describes one account opening to start.
type Spec struct {
	ClientID       string
	AccountName    string
	InitialBalance float64
}

// OpeningOptions configures an Opening.
type OpeningOptions struct {
	Invoker *invoke.Invoker
	Logger  logging.Logger
	Sink    StatusSink
}

// Opening is one in-flight account opening. It owns a goroutine that walks
// the state sequence; callers interact only through signals and State.
type Opening struct {
	id          string
	spec        Spec
	investments records.InvestmentRepository
	clients     records.ClientRepository
	invoker     *invoke.Invoker
	logger      logging.Logger
	sink        StatusSink

	mu            sync.Mutex
	state         State
	failure       string
	pendingFields map[string]string
	account       records.InvestmentAccount

	kycOnce        sync.Once
	kycCh          chan struct{}
	complianceOnce sync.Once
	complianceCh   chan struct{}
	done           chan struct{}
}

// StartOpening creates an opening in the Initializing state and launches its
// run loop. The returned Opening is already reporting to the sink.
func StartOpening(ctx context.Context, spec Spec, investments records.InvestmentRepository, clients records.ClientRepository, optFns ...func(o *OpeningOptions)) *Opening {
	opts := OpeningOptions{
		Invoker: invoke.New(),
		Logger:  logging.NewDefaultSlogLogger(),
		Sink:    func(string) {},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	o := &Opening{
		id:           records.NewRecordID("op"),
		spec:         spec,
		investments:  investments,
		clients:      clients,
		invoker:      opts.Invoker,
		logger:       opts.Logger,
		sink:         opts.Sink,
		state:        StateInitializing,
		kycCh:        make(chan struct{}),
		complianceCh: make(chan struct{}),
		done:         make(chan struct{}),
	}
	go o.run(ctx)
	return o
}

// ID returns the opening's identifier.
func (o *Opening) ID() string { return o.id }

// State returns the current lifecycle state.
func (o *Opening) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Failure returns the failure reason. Valid only once State is Failed.
func (o *Opening) Failure() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.failure
}

// Account returns the created account. Valid only once State is Complete.
func (o *Opening) Account() records.InvestmentAccount {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.account
}

// Done is closed when the opening reaches Complete or Failed.
func (o *Opening) Done() <-chan struct{} { return o.done }

// VerifyKYC signals that identity verification passed. Valid while the
// opening is waiting on KYC; duplicate signals are ignored.
func (o *Opening) VerifyKYC() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state {
	case StateInitializing, StateWaitingKYC:
		o.kycOnce.Do(func() { close(o.kycCh) })
		return nil
	default:
		return fmt.Errorf("verify kyc in state %s: %w", o.state, ErrBadSignal)
	}
}

// ApproveCompliance signals that the compliance review passed. Valid while
// the opening is waiting on compliance; duplicate signals are ignored.
func (o *Opening) ApproveCompliance() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state {
	case StateInitializing, StateWaitingKYC, StateWaitingCompliance:
		o.complianceOnce.Do(func() { close(o.complianceCh) })
		return nil
	default:
		return fmt.Errorf("approve compliance in state %s: %w", o.state, ErrBadSignal)
	}
}

// UpdateClientDetails records client profile fields to apply before the
// account is created. Valid until the opening starts creating the account.
func (o *Opening) UpdateClientDetails(fields map[string]string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.state {
	case StateInitializing, StateWaitingKYC, StateWaitingCompliance:
	default:
		return fmt.Errorf("update client details in state %s: %w", o.state, ErrBadSignal)
	}
	if o.pendingFields == nil {
		o.pendingFields = make(map[string]string)
	}
	for k, v := range fields {
		o.pendingFields[k] = v
	}
	return nil
}

func (o *Opening) run(ctx context.Context) {
	defer close(o.done)

	o.transition(StateWaitingKYC, fmt.Sprintf("Account opening %s: awaiting KYC verification for client %s.", o.id, o.spec.ClientID))
	select {
	case <-o.kycCh:
	case <-ctx.Done():
		o.fail("cancelled while waiting for KYC verification")
		return
	}

	o.transition(StateWaitingCompliance, fmt.Sprintf("Account opening %s: KYC verified, awaiting compliance approval.", o.id))
	select {
	case <-o.complianceCh:
	case <-ctx.Done():
		o.fail("cancelled while waiting for compliance approval")
		return
	}

	o.transition(StateCreatingAccount, fmt.Sprintf("Account opening %s: compliance approved, creating account %q.", o.id, o.spec.AccountName))

	o.mu.Lock()
	fields := o.pendingFields
	o.pendingFields = nil
	o.mu.Unlock()

	if len(fields) > 0 {
		_, err := o.invoker.Invoke(ctx, "update_client_details", func(ctx context.Context) (any, error) {
			return o.clients.Update(ctx, o.spec.ClientID, fields)
		})
		if err != nil {
			o.fail(fmt.Sprintf("client detail update failed: %v", err))
			return
		}
	}

	res, err := o.invoker.Invoke(ctx, "open_investment_account", func(ctx context.Context) (any, error) {
		return o.investments.Open(ctx, o.spec.ClientID, o.spec.AccountName, o.spec.InitialBalance)
	})
	if err != nil {
		o.fail(fmt.Sprintf("account creation failed: %v", err))
		return
	}
	acct := res.(records.InvestmentAccount)

	o.mu.Lock()
	o.account = acct
	o.mu.Unlock()
	o.transition(StateComplete, fmt.Sprintf("Account opening %s: account %s (%s) opened with balance %.2f.", o.id, acct.ID, acct.Name, acct.Balance))
}

func (o *Opening) fail(reason string) {
	o.mu.Lock()
	o.failure = reason
	o.mu.Unlock()
	o.transition(StateFailed, fmt.Sprintf("Account opening %s failed: %s", o.id, reason))
}

func (o *Opening) transition(next State, status string) {
	o.mu.Lock()
	o.state = next
	o.mu.Unlock()

	o.logger.Info("account opening state change", "opening_id", o.id, "state", string(next))
	o.sink(status)
}
