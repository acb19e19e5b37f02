package tomlrepo

import (
	"context"
	"fmt"
	"sync"

	"github.com/wealthmesh/wealthmesh/records"
)

type investmentsEntry struct {
	Accounts []records.InvestmentAccount `toml:"accounts"`
}

type investmentsFile struct {
	Clients map[string]investmentsEntry `toml:"clients"`
}

// Investments is a TOML file-backed records.InvestmentRepository.
type Investments struct {
	mu   sync.Mutex
	path string
}

// NewInvestments creates an investment repository backed by the TOML file at
// path.
func NewInvestments(path string) *Investments {
	return &Investments{path: path}
}

func (r *Investments) List(_ context.Context, clientID string) ([]records.InvestmentAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var file investmentsFile
	if err := loadFile(r.path, &file); err != nil {
		return nil, err
	}
	entry := file.Clients[clientID]
	out := make([]records.InvestmentAccount, len(entry.Accounts))
	copy(out, entry.Accounts)
	return out, nil
}

func (r *Investments) Open(_ context.Context, clientID, name string, balance float64) (records.InvestmentAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var file investmentsFile
	if err := loadFile(r.path, &file); err != nil {
		return records.InvestmentAccount{}, err
	}
	if file.Clients == nil {
		file.Clients = make(map[string]investmentsEntry)
	}
	acct := records.InvestmentAccount{ID: records.NewRecordID("i"), Name: name, Balance: balance}
	entry := file.Clients[clientID]
	entry.Accounts = append(entry.Accounts, acct)
	file.Clients[clientID] = entry
	if err := saveFile(r.path, &file); err != nil {
		return records.InvestmentAccount{}, err
	}
	return acct, nil
}

func (r *Investments) Close(_ context.Context, clientID, investmentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var file investmentsFile
	if err := loadFile(r.path, &file); err != nil {
		return err
	}
	entry := file.Clients[clientID]
	for i, acct := range entry.Accounts {
		if acct.ID == investmentID {
			entry.Accounts = append(entry.Accounts[:i:i], entry.Accounts[i+1:]...)
			file.Clients[clientID] = entry
			return saveFile(r.path, &file)
		}
	}
	return fmt.Errorf("investment %q for client %q: %w", investmentID, clientID, records.ErrNotFound)
}
