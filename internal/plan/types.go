package plan

// Action is a change action recorded in a Terraform plan.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionNoOp   Action = "no-op"
)

// countedActions are the actions tallied per IAM resource type.
var countedActions = []Action{ActionCreate, ActionUpdate, ActionDelete, ActionNoOp}

// IAM resource types tracked by the summary.
const (
	TypeRole                 = "aws_iam_role"
	TypePolicy               = "aws_iam_policy"
	TypeRolePolicy           = "aws_iam_role_policy"
	TypeRolePolicyAttachment = "aws_iam_role_policy_attachment"
	TypePolicyAttachment     = "aws_iam_policy_attachment"
	TypeUserPolicy           = "aws_iam_user_policy"
	TypeGroupPolicy          = "aws_iam_group_policy"
)

// IAMTypes is the allow-list of resource types the summary inspects.
var IAMTypes = map[string]bool{
	TypeRole:                 true,
	TypePolicy:               true,
	TypeRolePolicy:           true,
	TypeRolePolicyAttachment: true,
	TypePolicyAttachment:     true,
	TypeUserPolicy:           true,
	TypeGroupPolicy:          true,
}

// policyTypes carry a JSON-encoded "policy" attribute.
var policyTypes = map[string]bool{
	TypePolicy:      true,
	TypeRolePolicy:  true,
	TypeUserPolicy:  true,
	TypeGroupPolicy: true,
}

// accountTagKeys are the tag keys read as account identifiers.
var accountTagKeys = []string{"AccountId", "account_id", "aws_account_id"}

// ChangePlan is the subset of `terraform show -json` output the gate consumes.
type ChangePlan struct {
	ResourceChanges []ResourceChange `json:"resource_changes"`
}

// ResourceChange is a single entry of resource_changes.
type ResourceChange struct {
	Type    string `json:"type"`
	Address string `json:"address"`
	Change  Change `json:"change"`
}

// Change holds the planned actions and the before/after attribute maps.
// Before and After are nil when the plan carries null (create/delete) or a
// non-object value.
type Change struct {
	Actions []Action       `json:"actions"`
	Before  map[string]any `json:"before,omitempty"`
	After   map[string]any `json:"after,omitempty"`
}

// ActionCounts tallies actions for one resource type.
type ActionCounts map[Action]int

// WildcardFinding records a policy statement granting Action "*".
type WildcardFinding struct {
	Address   string `json:"address"`
	Statement int    `json:"statement"`
	Reason    string `json:"reason"`
}

// Wildcard finding reasons.
const (
	ReasonScalarWildcard = "Action:* detected"
	ReasonListWildcard   = "Action list includes *"
)

// IAMSummary is the IAM-specific part of a Summary.
type IAMSummary struct {
	ByType          map[string]ActionCounts `json:"by_type"`
	RolesAffected   []string                `json:"roles_affected"`
	WildcardActions []WildcardFinding       `json:"wildcard_actions"`
}

// Summary is the normalised, IAM-focused digest of a ChangePlan. Every
// collection is non-nil so that it always serialises as an object or array.
type Summary struct {
	TotalResources int        `json:"total_resources"`
	IAM            IAMSummary `json:"iam"`
	Modules        []string   `json:"modules"`
	Accounts       []string   `json:"accounts"`
}

// NewSummary returns an empty summary with all collections initialised.
func NewSummary() Summary {
	return Summary{
		IAM: IAMSummary{
			ByType:          map[string]ActionCounts{},
			RolesAffected:   []string{},
			WildcardActions: []WildcardFinding{},
		},
		Modules:  []string{},
		Accounts: []string{},
	}
}
