// Package records defines the client/beneficiary/investment record
// collaborators the routing capabilities call. The orchestration core treats
// these as opaque, possibly slow, possibly failing dependencies; every call
// into them goes through the retry-backed invoker. File-backed TOML
// implementations live in the tomlrepo subpackage; the in-memory
// implementations here back tests and demos.
package records

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("records: not found")

// Client is a wealth-management client profile.
type Client struct {
	ID            string `json:"client_id" toml:"client_id"`
	FirstName     string `json:"first_name" toml:"first_name"`
	LastName      string `json:"last_name" toml:"last_name"`
	Address       string `json:"address" toml:"address"`
	Phone         string `json:"phone" toml:"phone"`
	Email         string `json:"email" toml:"email"`
	MaritalStatus string `json:"marital_status" toml:"marital_status"`
}

// Beneficiary is one beneficiary attached to a client.
type Beneficiary struct {
	ID           string `json:"beneficiary_id" toml:"beneficiary_id"`
	FirstName    string `json:"first_name" toml:"first_name"`
	LastName     string `json:"last_name" toml:"last_name"`
	Relationship string `json:"relationship" toml:"relationship"`
}

// InvestmentAccount is one investment account owned by a client.
type InvestmentAccount struct {
	ID      string  `json:"investment_id" toml:"investment_id"`
	Name    string  `json:"name" toml:"name"`
	Balance float64 `json:"balance" toml:"balance"`
}

// ClientRepository manages client profiles keyed by client id.
type ClientRepository interface {
	Get(ctx context.Context, clientID string) (Client, error)
	Put(ctx context.Context, client Client) error
	Update(ctx context.Context, clientID string, fields map[string]string) (Client, error)
}

// BeneficiaryRepository manages per-client beneficiary lists.
type BeneficiaryRepository interface {
	List(ctx context.Context, clientID string) ([]Beneficiary, error)
	Add(ctx context.Context, clientID string, b Beneficiary) (Beneficiary, error)
	Delete(ctx context.Context, clientID, beneficiaryID string) error
}

// InvestmentRepository manages per-client investment accounts.
type InvestmentRepository interface {
	List(ctx context.Context, clientID string) ([]InvestmentAccount, error)
	Open(ctx context.Context, clientID, name string, balance float64) (InvestmentAccount, error)
	Close(ctx context.Context, clientID, investmentID string) error
}

// NewRecordID generates a short readable record id with the given prefix,
// e.g. "b-4f6a7d12".
func NewRecordID(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString()[:8])
}

// ApplyClientFields merges the recognized update fields into c. Unknown
// fields are ignored so partial updates from the model boundary stay safe.
func ApplyClientFields(c *Client, fields map[string]string) {
	for k, v := range fields {
		switch k {
		case "first_name":
			c.FirstName = v
		case "last_name":
			c.LastName = v
		case "address":
			c.Address = v
		case "phone":
			c.Phone = v
		case "email":
			c.Email = v
		case "marital_status":
			c.MaritalStatus = v
		}
	}
}
