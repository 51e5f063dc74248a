package audit

import (
	"context"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/deepak-kumar-biswal/pr-approver-agent/internal/errors"
)

// RecordModel is the audit_records row.
type RecordModel struct {
	RunID           string    `gorm:"column:run_id;primaryKey"`
	CreatedAt       time.Time `gorm:"column:created_at;not null"`
	Repo            string    `gorm:"column:repo"`
	SHA             string    `gorm:"column:sha"`
	Verdict         string    `gorm:"column:verdict;not null"`
	Confidence      float64   `gorm:"column:confidence"`
	TokensEstimated int       `gorm:"column:tokens_estimated"`
	Source          string    `gorm:"column:source"`
}

// TableName implements gorm's tabler.
func (RecordModel) TableName() string { return "audit_records" }

// PostgresWriter inserts records with ON CONFLICT DO NOTHING, so rows are
// never updated in place.
type PostgresWriter struct {
	db *gorm.DB
}

// NewPostgresWriter wraps an open connection.
func NewPostgresWriter(db *gorm.DB) *PostgresWriter {
	return &PostgresWriter{db: db}
}

// OpenPostgres connects to dsn and ensures the table exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresWriter, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, errors.NewUpstreamError(errors.ErrCodeAuditWrite, "connect audit database", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&RecordModel{}); err != nil {
		return nil, errors.NewUpstreamError(errors.ErrCodeAuditWrite, "migrate audit_records", err)
	}
	return NewPostgresWriter(db), nil
}

// Append implements Writer.
func (w *PostgresWriter) Append(ctx context.Context, r Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if w.db == nil {
		return errors.New(errors.ErrCodeAuditWrite, errors.KindUpstreamTransient, "audit database unavailable")
	}
	model := toModel(r)
	if err := w.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&model).Error; err != nil {
		return errors.NewUpstreamError(errors.ErrCodeAuditWrite, "insert audit record", err)
	}
	return nil
}

func toModel(r Record) RecordModel {
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return RecordModel{
		RunID:           r.RunID,
		CreatedAt:       created.UTC(),
		Repo:            r.Repo,
		SHA:             r.SHA,
		Verdict:         r.Verdict,
		Confidence:      r.Confidence,
		TokensEstimated: r.TokensEstimated,
		Source:          r.Source,
	}
}
