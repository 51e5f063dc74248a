package drift

// Status is the overall drift classification.
type Status string

const (
	StatusNone    Status = "none"
	StatusSuspect Status = "suspect"
)

// ReasonNoAccountsOrRoles is reported when detection was skipped.
const ReasonNoAccountsOrRoles = "no-accounts-or-roles"

// RoleState is the live state of an intended role that exists.
type RoleState struct {
	AttachedPolicies []string `json:"attached_policies"`
}

// AccountResult is the outcome for one account. Error is set when role
// assumption or an IAM call failed; the other fields then hold whatever was
// gathered before the failure.
type AccountResult struct {
	MissingRoles []string             `json:"missing_roles"`
	Roles        map[string]RoleState `json:"roles,omitempty"`
	Error        string               `json:"error,omitempty"`
}

// Failed reports whether the account check hit an error.
func (r AccountResult) Failed() bool { return r.Error != "" }

// Report is the result of a drift detection run.
type Report struct {
	Status     Status                   `json:"drift"`
	Reason     string                   `json:"reason,omitempty"`
	PerAccount map[string]AccountResult `json:"details,omitempty"`
	Summary    Summary                  `json:"summary"`
}

// Summary provides aggregate statistics for a drift report
type Summary struct {
	Accounts     int `json:"accounts"`
	Failed       int `json:"failed"`
	MissingRoles int `json:"missing_roles"`
}

// Suspect reports whether any intended role is missing in any account.
func (r Report) Suspect() bool { return r.Status == StatusSuspect }

func summarize(per map[string]AccountResult) Summary {
	s := Summary{Accounts: len(per)}
	for _, res := range per {
		if res.Failed() {
			s.Failed++
		}
		s.MissingRoles += len(res.MissingRoles)
	}
	return s
}
