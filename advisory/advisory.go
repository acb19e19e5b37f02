// Package advisory assembles the concrete wealth management routing graph:
// a supervisor entry role that delegates to beneficiary, investment and
// account opening specialists, each backed by capability tasks over the
// record repositories and the account opening coordinator.
package advisory

import (
	"github.com/wealthmesh/wealthmesh/capability"
	"github.com/wealthmesh/wealthmesh/role"
)

// Roles builds the four advisory roles with their capability sets and
// handoff edges. The supervisor is the entry/default role; specialists hand
// back to it, and account opening is reachable only through investment.
func Roles(d Deps) (supervisor *role.Role, others []*role.Role) {
	supervisor = role.NewRole(RoleSupervisor, func(o *role.RoleOptions) {
		o.Description = supervisorDescription
		o.Instruction = supervisorInstructions
		o.Handoffs = []string{RoleBeneficiary, RoleInvestment}
	})

	beneficiary := role.NewRole(RoleBeneficiary, func(o *role.RoleOptions) {
		o.Description = beneficiaryDescription
		o.Instruction = beneficiaryInstructions
		o.Capabilities = []capability.Task{
			newListBeneficiariesTask(d),
			newAddBeneficiaryTask(d),
			newDeleteBeneficiaryTask(d),
		}
		o.Handoffs = []string{RoleSupervisor}
	})

	investment := role.NewRole(RoleInvestment, func(o *role.RoleOptions) {
		o.Description = investmentDescription
		o.Instruction = investmentInstructions
		o.Capabilities = []capability.Task{
			newListInvestmentsTask(d),
			newCloseInvestmentTask(d),
		}
		o.Handoffs = []string{RoleSupervisor, RoleAccountOpening}
	})

	accountOpening := role.NewRole(RoleAccountOpening, func(o *role.RoleOptions) {
		o.Description = accountOpeningDescription
		o.Instruction = accountOpeningInstructions
		o.Capabilities = []capability.Task{
			newOpenAccountTask(d),
			newGetClientInfoTask(d),
			newApproveKYCTask(d),
			newApproveComplianceTask(d),
			newUpdateClientDetailsTask(d),
		}
		o.Handoffs = []string{RoleInvestment}
	})

	return supervisor, []*role.Role{beneficiary, investment, accountOpening}
}

// NewGraph builds the complete advisory routing graph over the given decider.
func NewGraph(decider role.Decider, d Deps, optFns ...func(o *role.GraphOptions)) (*role.Graph, error) {
	supervisor, others := Roles(d)
	return role.NewGraph(decider, supervisor, others, optFns...)
}
