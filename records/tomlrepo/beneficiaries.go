package tomlrepo

import (
	"context"
	"fmt"
	"sync"

	"github.com/wealthmesh/wealthmesh/records"
)

type beneficiariesEntry struct {
	Beneficiaries []records.Beneficiary `toml:"beneficiaries"`
}

type beneficiariesFile struct {
	Clients map[string]beneficiariesEntry `toml:"clients"`
}

// Beneficiaries is a TOML file-backed records.BeneficiaryRepository.
type Beneficiaries struct {
	mu   sync.Mutex
	path string
}

// NewBeneficiaries creates a beneficiary repository backed by the TOML file
// at path.
func NewBeneficiaries(path string) *Beneficiaries {
	return &Beneficiaries{path: path}
}

func (r *Beneficiaries) List(_ context.Context, clientID string) ([]records.Beneficiary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var file beneficiariesFile
	if err := loadFile(r.path, &file); err != nil {
		return nil, err
	}
	entry := file.Clients[clientID]
	out := make([]records.Beneficiary, len(entry.Beneficiaries))
	copy(out, entry.Beneficiaries)
	return out, nil
}

func (r *Beneficiaries) Add(_ context.Context, clientID string, b records.Beneficiary) (records.Beneficiary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var file beneficiariesFile
	if err := loadFile(r.path, &file); err != nil {
		return records.Beneficiary{}, err
	}
	if file.Clients == nil {
		file.Clients = make(map[string]beneficiariesEntry)
	}
	if b.ID == "" {
		b.ID = records.NewRecordID("b")
	}
	entry := file.Clients[clientID]
	entry.Beneficiaries = append(entry.Beneficiaries, b)
	file.Clients[clientID] = entry
	if err := saveFile(r.path, &file); err != nil {
		return records.Beneficiary{}, err
	}
	return b, nil
}

func (r *Beneficiaries) Delete(_ context.Context, clientID, beneficiaryID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var file beneficiariesFile
	if err := loadFile(r.path, &file); err != nil {
		return err
	}
	entry := file.Clients[clientID]
	for i, b := range entry.Beneficiaries {
		if b.ID == beneficiaryID {
			entry.Beneficiaries = append(entry.Beneficiaries[:i:i], entry.Beneficiaries[i+1:]...)
			file.Clients[clientID] = entry
			return saveFile(r.path, &file)
		}
	}
	return fmt.Errorf("beneficiary %q for client %q: %w", beneficiaryID, clientID, records.ErrNotFound)
}
