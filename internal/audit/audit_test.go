package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gateerrors "github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
)

func TestMemoryWriterAppendOnly(t *testing.T) {
	w := NewMemoryWriter()
	ctx := context.Background()

	first := Record{RunID: "run-1", Verdict: "green", Confidence: 0.9}
	require.NoError(t, w.Append(ctx, first))
	require.NoError(t, w.Append(ctx, Record{RunID: "run-1", Verdict: "red"}))
	require.NoError(t, w.Append(ctx, Record{RunID: "run-2", Verdict: "amber"}))

	records := w.Records()
	require.Len(t, records, 2)
	assert.Equal(t, first, records[0])
	assert.Equal(t, "run-2", records[1].RunID)
}

func TestRecordValidate(t *testing.T) {
	err := NewMemoryWriter().Append(context.Background(), Record{Verdict: "green"})
	require.Error(t, err)
	assert.Equal(t, gateerrors.ErrCodeAuditWrite, gateerrors.CodeOf(err))
}

func TestToModel(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	m := toModel(Record{RunID: "r", CreatedAt: created, Verdict: "red", TokensEstimated: 12, Source: "agent"})

	assert.Equal(t, "audit_records", m.TableName())
	assert.Equal(t, created.UTC(), m.CreatedAt)
	assert.Equal(t, 12, m.TokensEstimated)

	assert.False(t, toModel(Record{RunID: "r"}).CreatedAt.IsZero())
}

func TestPostgresWriterWithoutDB(t *testing.T) {
	err := NewPostgresWriter(nil).Append(context.Background(), Record{RunID: "r"})
	require.Error(t, err)
	assert.True(t, gateerrors.IsRetryable(err))
}
