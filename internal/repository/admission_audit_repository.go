package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-admissions-api/internal/models"
)

// AdmissionAuditRepository reads and appends admission audit entries.
type AdmissionAuditRepository struct {
	db *sqlx.DB
}

// NewAdmissionAuditRepository constructs the repository.
func NewAdmissionAuditRepository(db *sqlx.DB) *AdmissionAuditRepository {
	return &AdmissionAuditRepository{db: db}
}

// Create appends a standalone entry.
func (r *AdmissionAuditRepository) Create(ctx context.Context, entry *models.AdmissionAuditLog) error {
	return insertAuditLog(ctx, r.db, entry)
}

// ListByAdmission returns the trail of an admission, oldest first.
func (r *AdmissionAuditRepository) ListByAdmission(ctx context.Context, admissionID string) ([]models.AdmissionAuditLog, error) {
	query := `SELECT ` + auditColumns + ` FROM admission_audit_logs WHERE admission_id = $1 ORDER BY created_at ASC`
	var entries []models.AdmissionAuditLog
	if err := r.db.SelectContext(ctx, &entries, query, admissionID); err != nil {
		return nil, fmt.Errorf("list admission audit logs: %w", err)
	}
	return entries, nil
}
