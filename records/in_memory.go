package records

import (
	"context"
	"fmt"
	"sync"
)

// InMemoryClients is a thread-safe in-memory ClientRepository.
type InMemoryClients struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewInMemoryClients creates an empty in-memory client repository.
func NewInMemoryClients() *InMemoryClients {
	return &InMemoryClients{clients: make(map[string]Client)}
}

func (r *InMemoryClients) Get(_ context.Context, clientID string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.clients[clientID]
	if !ok {
		return Client{}, fmt.Errorf("client %q: %w", clientID, ErrNotFound)
	}
	return c, nil
}

func (r *InMemoryClients) Put(_ context.Context, client Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clients[client.ID] = client
	return nil
}

func (r *InMemoryClients) Update(_ context.Context, clientID string, fields map[string]string) (Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[clientID]
	if !ok {
		return Client{}, fmt.Errorf("client %q: %w", clientID, ErrNotFound)
	}
	ApplyClientFields(&c, fields)
	r.clients[clientID] = c
	return c, nil
}

// InMemoryBeneficiaries is a thread-safe in-memory BeneficiaryRepository.
type InMemoryBeneficiaries struct {
	mu       sync.RWMutex
	byClient map[string][]Beneficiary
}

// NewInMemoryBeneficiaries creates an empty in-memory beneficiary repository.
func NewInMemoryBeneficiaries() *InMemoryBeneficiaries {
	return &InMemoryBeneficiaries{byClient: make(map[string][]Beneficiary)}
}

func (r *InMemoryBeneficiaries) List(_ context.Context, clientID string) ([]Beneficiary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Beneficiary, len(r.byClient[clientID]))
	copy(out, r.byClient[clientID])
	return out, nil
}

func (r *InMemoryBeneficiaries) Add(_ context.Context, clientID string, b Beneficiary) (Beneficiary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b.ID == "" {
		b.ID = NewRecordID("b")
	}
	r.byClient[clientID] = append(r.byClient[clientID], b)
	return b, nil
}

func (r *InMemoryBeneficiaries) Delete(_ context.Context, clientID, beneficiaryID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.byClient[clientID]
	for i, b := range list {
		if b.ID == beneficiaryID {
			r.byClient[clientID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("beneficiary %q for client %q: %w", beneficiaryID, clientID, ErrNotFound)
}

// InMemoryInvestments is a thread-safe in-memory InvestmentRepository.
type InMemoryInvestments struct {
	mu       sync.RWMutex
	byClient map[string][]InvestmentAccount
}

// NewInMemoryInvestments creates an empty in-memory investment repository.
func NewInMemoryInvestments() *InMemoryInvestments {
	return &InMemoryInvestments{byClient: make(map[string][]InvestmentAccount)}
}

func (r *InMemoryInvestments) List(_ context.Context, clientID string) ([]InvestmentAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]InvestmentAccount, len(r.byClient[clientID]))
	copy(out, r.byClient[clientID])
	return out, nil
}

func (r *InMemoryInvestments) Open(_ context.Context, clientID, name string, balance float64) (InvestmentAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acct := InvestmentAccount{ID: NewRecordID("i"), Name: name, Balance: balance}
	r.byClient[clientID] = append(r.byClient[clientID], acct)
	return acct, nil
}

func (r *InMemoryInvestments) Close(_ context.Context, clientID, investmentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.byClient[clientID]
	for i, acct := range list {
		if acct.ID == investmentID {
			r.byClient[clientID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("investment %q for client %q: %w", investmentID, clientID, ErrNotFound)
}
