package awsclient

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/audit"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/bundle"
	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
)

// DynamoDBAPI is the DynamoDB surface used by the approval and audit tables.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// ApprovalTable stores bundle approvals as items {pk: S, approved: BOOL}.
type ApprovalTable struct {
	Client DynamoDBAPI
	Table  string
}

// NewApprovalTable returns a table-backed approval store.
func NewApprovalTable(cfg aws.Config, table string) *ApprovalTable {
	return &ApprovalTable{Client: dynamodb.NewFromConfig(cfg), Table: table}
}

// GetApproval implements bundle.ApprovalStore. Only a BOOL true approved
// attribute counts as approval.
func (t *ApprovalTable) GetApproval(ctx context.Context, hash string) (bundle.Approval, bool, error) {
	out, err := t.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(t.Table),
		Key:            map[string]types.AttributeValue{"pk": &types.AttributeValueMemberS{Value: bundle.Key(hash)}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return bundle.Approval{}, false, err
	}
	if out == nil || len(out.Item) == 0 {
		return bundle.Approval{Hash: hash}, false, nil
	}
	approved := false
	if v, ok := out.Item["approved"].(*types.AttributeValueMemberBOOL); ok {
		approved = v.Value
	}
	return bundle.Approval{Hash: hash, Approved: approved}, true, nil
}

// PutApproval implements bundle.ApprovalWriter.
func (t *ApprovalTable) PutApproval(ctx context.Context, a bundle.Approval) error {
	_, err := t.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(t.Table),
		Item: map[string]types.AttributeValue{
			"pk":       &types.AttributeValueMemberS{Value: bundle.Key(a.Hash)},
			"approved": &types.AttributeValueMemberBOOL{Value: a.Approved},
		},
	})
	return err
}

// AuditTable appends audit records with a conditional put on run_id.
type AuditTable struct {
	Client DynamoDBAPI
	Table  string
}

// NewAuditTable returns a table-backed audit writer.
func NewAuditTable(cfg aws.Config, table string) *AuditTable {
	return &AuditTable{Client: dynamodb.NewFromConfig(cfg), Table: table}
}

// Append implements audit.Writer. A record whose run_id already exists is
// left untouched.
func (t *AuditTable) Append(ctx context.Context, r audit.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := t.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(t.Table),
		ConditionExpression: aws.String("attribute_not_exists(run_id)"),
		Item: map[string]types.AttributeValue{
			"run_id":           &types.AttributeValueMemberS{Value: r.RunID},
			"created_at":       &types.AttributeValueMemberS{Value: created.UTC().Format(time.RFC3339)},
			"repo":             &types.AttributeValueMemberS{Value: r.Repo},
			"sha":              &types.AttributeValueMemberS{Value: r.SHA},
			"verdict":          &types.AttributeValueMemberS{Value: r.Verdict},
			"confidence":       &types.AttributeValueMemberN{Value: strconv.FormatFloat(r.Confidence, 'f', -1, 64)},
			"tokens_estimated": &types.AttributeValueMemberN{Value: strconv.Itoa(r.TokensEstimated)},
			"source":           &types.AttributeValueMemberS{Value: r.Source},
		},
	})
	if err != nil {
		var conflict *types.ConditionalCheckFailedException
		if errors.As(err, &conflict) {
			return nil
		}
		return errors.NewUpstreamError(errors.ErrCodeAuditWrite, "put audit record", err)
	}
	return nil
}
