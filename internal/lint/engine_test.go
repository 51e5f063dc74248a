package lint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func lintPolicy(policy string) Result {
	return NewEngine("arn:aws:iam::1111", nil).LintDocuments([]byte(policy), nil, nil)
}

func TestPolicyRules(t *testing.T) {
	tests := []struct {
		name   string
		policy string
		want   []string
	}{
		{
			name:   "wildcard action",
			policy: `{"Statement":[{"Action":"*","Resource":"arn:aws:s3:::b"}]}`,
			want:   []string{MsgWildcardAction},
		},
		{
			name:   "wildcard action in list is not rule one",
			policy: `{"Statement":[{"Action":["*"],"Resource":"arn:aws:s3:::b"}]}`,
			want:   []string{},
		},
		{
			name:   "passrole on star",
			policy: `{"Statement":{"Action":"iam:PassRole","Resource":"*"}}`,
			want:   []string{MsgPassRoleUnscoped},
		},
		{
			name:   "passrole scoped",
			policy: `{"Statement":{"Action":"iam:PassRole","Resource":"arn:aws:iam::1:role/x"}}`,
			want:   []string{},
		},
		{
			name:   "passrole star resource in list form is scoped",
			policy: `{"Statement":{"Action":"iam:PassRole","Resource":["*"]}}`,
			want:   []string{},
		},
		{
			name:   "assume role without condition",
			policy: `{"Statement":[{"Action":["sts:AssumeRoleWithWebIdentity"],"Resource":"*"}]}`,
			want:   []string{MsgAssumeRoleNoCond},
		},
		{
			name:   "assume role with condition",
			policy: `{"Statement":[{"Action":"sts:AssumeRole","Resource":"*","Condition":{"StringEquals":{"aws:PrincipalOrgID":"o-1"}}}]}`,
			want:   []string{},
		},
		{
			name:   "put object without sse",
			policy: `{"Statement":[{"Action":"s3:PutObject","Resource":"*","Condition":{"StringLike":{"s3:prefix":"a"}}}]}`,
			want:   []string{MsgPutObjectNoSSE},
		},
		{
			name:   "put object with sse",
			policy: `{"Statement":[{"Action":"s3:PutObject","Resource":"*","Condition":{"StringEquals":{"s3:x-amz-server-side-encryption":"aws:kms"}}}]}`,
			want:   []string{},
		},
		{
			name:   "full wildcard trips every statement rule",
			policy: `{"Statement":[{"Action":"*","Resource":"*"}]}`,
			want:   []string{MsgWildcardAction, MsgPassRoleUnscoped, MsgAssumeRoleNoCond, MsgPutObjectNoSSE},
		},
		{
			name:   "one message per statement",
			policy: `{"Statement":[{"Action":"iam:PassRole","Resource":"*"},{"Action":"iam:*","Resource":"*"},{"Action":["iam:PassRole"],"Resource":"*"}]}`,
			want:   []string{MsgPassRoleUnscoped, MsgPassRoleUnscoped},
		},
		{
			name:   "malformed policy",
			policy: `not json`,
			want:   []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := lintPolicy(tt.policy)
			assert.Equal(t, tt.want, res.Violations)
			assert.Equal(t, len(tt.want) == 0, res.Valid)
		})
	}
}

func TestWildcardActionAlwaysInvalid(t *testing.T) {
	policies := []string{
		`{"Statement":{"Action":"*"}}`,
		`{"Statement":[{"Action":"s3:GetObject","Resource":"*"},{"Action":"*","Resource":"arn:x"}]}`,
		`{"Version":"2012-10-17","Statement":[{"Effect":"Deny","Action":"*","Resource":"*","Condition":{"Bool":{"aws:SecureTransport":"false"}}}]}`,
		`{"Statement":[{"Action":"*","Resource":"*","Condition":{"Bool":true}}]}`,
		`{"Version":1,"Statement":[{"Sid":3,"Action":"*"}]}`,
	}
	for _, p := range policies {
		res := lintPolicy(p)
		assert.False(t, res.Valid, p)
		assert.Contains(t, res.Violations, MsgWildcardAction)
		assert.Contains(t, MsgWildcardAction, "Action:*")
	}
}

func TestTrustRule(t *testing.T) {
	tests := []struct {
		name  string
		trust string
		want  []string
	}{
		{"org principal", `{"Principal":{"AWS":"arn:aws:iam::111122223333:root"}}`, []string{}},
		{"external principal", `{"Principal":{"AWS":"arn:aws:iam::999900001111:root"}}`, []string{MsgExternalPrincipal}},
		{"external with external id", `{"Principal":{"AWS":"arn:aws:iam::999900001111:root"},"Condition":{"StringEquals":{"sts:ExternalId":"abc"}}}`, []string{}},
		{"list with one external", `{"Principal":{"AWS":["arn:aws:iam::111122223333:root","arn:aws:iam::999900001111:root"]}}`, []string{MsgExternalPrincipal}},
		{"star principal", `{"Principal":"*"}`, []string{MsgExternalPrincipal}},
		{"service principal only", `{"Principal":{"Service":"ec2.amazonaws.com"}}`, []string{}},
		{
			name:  "statement form reports once",
			trust: `{"Statement":[{"Principal":{"AWS":"arn:aws:iam::9:root"}},{"Principal":{"AWS":"arn:aws:iam::8:root"}}]}`,
			want:  []string{MsgExternalPrincipal},
		},
		{"empty trust", `{}`, []string{}},
	}
	e := NewEngine("arn:aws:iam::1111", nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := e.LintDocuments(nil, []byte(tt.trust), nil)
			assert.Equal(t, tt.want, res.Violations)
		})
	}
}

func TestTrustRuleWithoutOrgPrefix(t *testing.T) {
	var e Engine
	res := e.LintDocuments(nil, []byte(`{"Principal":{"AWS":"arn:aws:iam::111122223333:root"}}`), nil)
	assert.Equal(t, []string{MsgExternalPrincipal}, res.Violations)
}

func TestRequiredTags(t *testing.T) {
	tests := []struct {
		name     string
		metadata string
		tags     []string
		want     []string
	}{
		{"no metadata", ``, nil, []string{}},
		{"empty metadata", `{}`, nil, []string{}},
		{"all tags", `{"tags":{"Owner":"a","CostCenter":"b"}}`, nil, []string{}},
		{"missing one", `{"tags":{"Owner":"a"}}`, nil, []string{"Resource missing required tags (Owner, CostCenter)"}},
		{"no tags key", `{"name":"x"}`, nil, []string{"Resource missing required tags (Owner, CostCenter)"}},
		{"custom set", `{"tags":{"Owner":"a"}}`, []string{"Owner", "Team"}, []string{"Resource missing required tags (Owner, Team)"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewEngine("", tt.tags).LintDocuments(nil, nil, []byte(tt.metadata))
			assert.Equal(t, tt.want, res.Warnings)
			assert.True(t, res.Valid)
		})
	}
}

func TestFindings(t *testing.T) {
	res := NewEngine("arn:aws:iam::1111", nil).LintDocuments(
		[]byte(`{"Statement":{"Action":"*","Resource":"arn:x"}}`),
		nil,
		[]byte(`{"tags":{}}`),
	)

	assert.Equal(t, []Finding{
		{Message: MsgWildcardAction, Severity: SeverityViolation},
		{Message: "Resource missing required tags (Owner, CostCenter)", Severity: SeverityWarning},
	}, res.Findings())
}

func TestRuleRegistry(t *testing.T) {
	seen := map[string]bool{}
	for _, r := range Rules {
		assert.False(t, seen[r.ID], "duplicate rule %s", r.ID)
		seen[r.ID] = true
		assert.NotNil(t, r.Check)
	}
	assert.Len(t, Rules, 6)
}
