package advisory

import (
	"context"
	"errors"
	"fmt"

	"github.com/wealthmesh/wealthmesh/capability"
	"github.com/wealthmesh/wealthmesh/child"
	"github.com/wealthmesh/wealthmesh/records"
)

// StatusPoster injects trusted status notifications into a session's pending
// queue. The session runtime implements it; account openings report progress
// through this path only.
type StatusPoster interface {
	SubmitStatus(ctx context.Context, sessionID, text string) error
}

// Deps bundles the collaborators the advisory capabilities act on.
type Deps struct {
	Clients       records.ClientRepository
	Beneficiaries records.BeneficiaryRepository
	Investments   records.InvestmentRepository
	Coordinator   *child.Coordinator
	Poster        StatusPoster
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func numberArg(args map[string]any, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

// resolveClientID takes the client id from the arguments, falling back to
// the session routing context, and records it there for later turns.
func resolveClientID(tc *capability.TaskContext, args map[string]any) (string, error) {
	id := stringArg(args, "client_id")
	if id == "" && tc.Routing != nil {
		id = tc.Routing["client_id"]
	}
	if id == "" {
		return "", capability.NewTaskError("", "client_id is required", capability.CodeValidation)
	}
	if tc.Routing != nil {
		tc.Routing["client_id"] = id
	}
	return id, nil
}

func clientIDSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"client_id": map[string]any{"type": "string", "description": "The client's id."},
		},
		"required": []string{"client_id"},
	}
}

func newListBeneficiariesTask(d Deps) capability.Task {
	return capability.NewFuncTask(
		"list_beneficiaries",
		"List the client's beneficiaries.",
		clientIDSchema(),
		func(tc *capability.TaskContext, args map[string]any) (any, error) {
			clientID, err := resolveClientID(tc, args)
			if err != nil {
				return nil, err
			}
			return d.Beneficiaries.List(tc.Context, clientID)
		},
	)
}

func newAddBeneficiaryTask(d Deps) capability.Task {
	return capability.NewFuncTask(
		"add_beneficiary",
		"Add a beneficiary to the client's account.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"client_id":    map[string]any{"type": "string", "description": "The client's id."},
				"first_name":   map[string]any{"type": "string", "description": "The beneficiary's first name."},
				"last_name":    map[string]any{"type": "string", "description": "The beneficiary's last name."},
				"relationship": map[string]any{"type": "string", "description": "The beneficiary's relationship to the client."},
			},
			"required": []string{"client_id", "first_name", "last_name", "relationship"},
		},
		func(tc *capability.TaskContext, args map[string]any) (any, error) {
			clientID, err := resolveClientID(tc, args)
			if err != nil {
				return nil, err
			}
			return d.Beneficiaries.Add(tc.Context, clientID, records.Beneficiary{
				FirstName:    stringArg(args, "first_name"),
				LastName:     stringArg(args, "last_name"),
				Relationship: stringArg(args, "relationship"),
			})
		},
	)
}

func newDeleteBeneficiaryTask(d Deps) capability.Task {
	return capability.NewFuncTask(
		"delete_beneficiary",
		"Delete one of the client's beneficiaries by beneficiary id.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"client_id":      map[string]any{"type": "string", "description": "The client's id."},
				"beneficiary_id": map[string]any{"type": "string", "description": "The id of the beneficiary to delete."},
			},
			"required": []string{"client_id", "beneficiary_id"},
		},
		func(tc *capability.TaskContext, args map[string]any) (any, error) {
			clientID, err := resolveClientID(tc, args)
			if err != nil {
				return nil, err
			}
			beneficiaryID := stringArg(args, "beneficiary_id")
			if err := d.Beneficiaries.Delete(tc.Context, clientID, beneficiaryID); err != nil {
				if errors.Is(err, records.ErrNotFound) {
					return nil, capability.NewTaskError("delete_beneficiary", err.Error(), capability.CodeValidation)
				}
				return nil, err
			}
			return fmt.Sprintf("Beneficiary %s deleted.", beneficiaryID), nil
		},
	)
}

func newListInvestmentsTask(d Deps) capability.Task {
	return capability.NewFuncTask(
		"list_investments",
		"List the client's investment accounts and balances.",
		clientIDSchema(),
		func(tc *capability.TaskContext, args map[string]any) (any, error) {
			clientID, err := resolveClientID(tc, args)
			if err != nil {
				return nil, err
			}
			return d.Investments.List(tc.Context, clientID)
		},
	)
}

func newCloseInvestmentTask(d Deps) capability.Task {
	return capability.NewFuncTask(
		"close_investment",
		"Close one of the client's investment accounts by investment id.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"client_id":     map[string]any{"type": "string", "description": "The client's id."},
				"investment_id": map[string]any{"type": "string", "description": "The id of the investment account to close."},
			},
			"required": []string{"client_id", "investment_id"},
		},
		func(tc *capability.TaskContext, args map[string]any) (any, error) {
			clientID, err := resolveClientID(tc, args)
			if err != nil {
				return nil, err
			}
			investmentID := stringArg(args, "investment_id")
			if err := d.Investments.Close(tc.Context, clientID, investmentID); err != nil {
				if errors.Is(err, records.ErrNotFound) {
					return nil, capability.NewTaskError("close_investment", err.Error(), capability.CodeValidation)
				}
				return nil, err
			}
			return fmt.Sprintf("Investment account %s closed.", investmentID), nil
		},
	)
}

func newGetClientInfoTask(d Deps) capability.Task {
	return capability.NewFuncTask(
		"get_client_info",
		"Get the client's current profile details.",
		clientIDSchema(),
		func(tc *capability.TaskContext, args map[string]any) (any, error) {
			clientID, err := resolveClientID(tc, args)
			if err != nil {
				return nil, err
			}
			c, err := d.Clients.Get(tc.Context, clientID)
			if err != nil {
				if errors.Is(err, records.ErrNotFound) {
					return nil, capability.NewTaskError("get_client_info", err.Error(), capability.CodeValidation)
				}
				return nil, err
			}
			return c, nil
		},
	)
}

func newOpenAccountTask(d Deps) capability.Task {
	return capability.NewFuncTask(
		"open_new_investment_account",
		"Start opening a new investment account for the client. KYC and compliance run asynchronously; progress arrives as status updates.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"client_id":       map[string]any{"type": "string", "description": "The client's id."},
				"account_name":    map[string]any{"type": "string", "description": "A name for the new investment account."},
				"initial_balance": map[string]any{"type": "number", "description": "The opening balance."},
			},
			"required": []string{"client_id", "account_name"},
		},
		func(tc *capability.TaskContext, args map[string]any) (any, error) {
			if d.Coordinator == nil || d.Poster == nil {
				return nil, capability.NewTaskError("open_new_investment_account", "account opening is not configured", capability.CodeNotRetryable)
			}
			clientID, err := resolveClientID(tc, args)
			if err != nil {
				return nil, err
			}
			if _, err := d.Clients.Get(tc.Context, clientID); err != nil {
				if errors.Is(err, records.ErrNotFound) {
					return nil, capability.NewTaskError("open_new_investment_account", err.Error(), capability.CodeValidation)
				}
				return nil, err
			}

			sessionID := tc.SessionID
			sink := func(status string) {
				if err := d.Poster.SubmitStatus(context.Background(), sessionID, status); err != nil {
					tc.Logger.Warn("status delivery failed", "session_id", sessionID, "error", err)
				}
			}
			o := d.Coordinator.Start(context.Background(), child.Spec{
				ClientID:       clientID,
				AccountName:    stringArg(args, "account_name"),
				InitialBalance: numberArg(args, "initial_balance"),
			}, sink)

			if tc.Routing != nil {
				tc.Routing["opening_id"] = o.ID()
			}
			return map[string]any{"opening_id": o.ID(), "state": string(o.State())}, nil
		},
	)
}

func openingIDSchema(desc string) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"opening_id": map[string]any{"type": "string", "description": desc},
		},
		"required": []string{"opening_id"},
	}
}

// resolveOpening looks up an account opening by id, falling back to the
// routing context when the argument is absent.
func resolveOpening(d Deps, tc *capability.TaskContext, args map[string]any, task string) (*child.Opening, error) {
	if d.Coordinator == nil {
		return nil, capability.NewTaskError(task, "account opening is not configured", capability.CodeNotRetryable)
	}
	id := stringArg(args, "opening_id")
	if id == "" && tc.Routing != nil {
		id = tc.Routing["opening_id"]
	}
	o, err := d.Coordinator.Get(id)
	if err != nil {
		return nil, capability.NewTaskError(task, err.Error(), capability.CodeValidation)
	}
	return o, nil
}

func newApproveKYCTask(d Deps) capability.Task {
	return capability.NewFuncTask(
		"approve_kyc",
		"Record that KYC verification passed for an account opening.",
		openingIDSchema("The id of the account opening to verify."),
		func(tc *capability.TaskContext, args map[string]any) (any, error) {
			o, err := resolveOpening(d, tc, args, "approve_kyc")
			if err != nil {
				return nil, err
			}
			if err := o.VerifyKYC(); err != nil {
				return nil, capability.NewTaskError("approve_kyc", err.Error(), capability.CodeValidation)
			}
			return fmt.Sprintf("KYC verification recorded for opening %s.", o.ID()), nil
		},
	)
}

func newApproveComplianceTask(d Deps) capability.Task {
	return capability.NewFuncTask(
		"approve_compliance",
		"Record compliance sign-off for an account opening.",
		openingIDSchema("The id of the account opening to approve."),
		func(tc *capability.TaskContext, args map[string]any) (any, error) {
			o, err := resolveOpening(d, tc, args, "approve_compliance")
			if err != nil {
				return nil, err
			}
			if err := o.ApproveCompliance(); err != nil {
				return nil, capability.NewTaskError("approve_compliance", err.Error(), capability.CodeValidation)
			}
			return fmt.Sprintf("Compliance approval recorded for opening %s.", o.ID()), nil
		},
	)
}

func newUpdateClientDetailsTask(d Deps) capability.Task {
	return capability.NewFuncTask(
		"update_client_details",
		"Correct the client's profile details before the account is created.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"opening_id":     map[string]any{"type": "string", "description": "The id of the in-flight account opening."},
				"first_name":     map[string]any{"type": "string", "description": "Updated first name."},
				"last_name":      map[string]any{"type": "string", "description": "Updated last name."},
				"address":        map[string]any{"type": "string", "description": "Updated address."},
				"phone":          map[string]any{"type": "string", "description": "Updated phone number."},
				"email":          map[string]any{"type": "string", "description": "Updated email address."},
				"marital_status": map[string]any{"type": "string", "description": "Updated marital status."},
			},
			"required": []string{"opening_id"},
		},
		func(tc *capability.TaskContext, args map[string]any) (any, error) {
			o, err := resolveOpening(d, tc, args, "update_client_details")
			if err != nil {
				return nil, err
			}
			fields := make(map[string]string)
			for _, key := range []string{"first_name", "last_name", "address", "phone", "email", "marital_status"} {
				if v := stringArg(args, key); v != "" {
					fields[key] = v
				}
			}
			if len(fields) == 0 {
				return nil, capability.NewTaskError("update_client_details", "no fields to update", capability.CodeValidation)
			}
			if err := o.UpdateClientDetails(fields); err != nil {
				return nil, capability.NewTaskError("update_client_details", err.Error(), capability.CodeValidation)
			}
			return fmt.Sprintf("Client details queued for update on opening %s.", o.ID()), nil
		},
	)
}
