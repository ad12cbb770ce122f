package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-admissions-api/internal/lifecycle"
	"github.com/noah-isme/sma-admissions-api/internal/models"
)

const (
	admissionColumns = `id, enquiry_id, applicant_name, grade, date_of_birth, gender, guardian_name, guardian_phone,
       guardian_email, guardian_relationship, address, photo_path, status, status_reason, submitted_by, submitted_at, updated_at`
	documentColumns = `id, admission_id, name, is_mandatory, status, rejection_reason, file_path, mime_type, size_bytes,
       submitted_at, verified_by, verified_at, created_at, updated_at`
	auditColumns = `id, admission_id, action, previous_status, new_status, actor_id, details, created_at`
)

func insertAdmission(ctx context.Context, tx *sqlx.Tx, admission *models.Admission) error {
	if admission.ID == "" {
		admission.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if admission.SubmittedAt.IsZero() {
		admission.SubmittedAt = now
	}
	admission.UpdatedAt = now
	const query = `INSERT INTO admissions (` + admissionColumns + `)
	VALUES (:id, :enquiry_id, :applicant_name, :grade, :date_of_birth, :gender, :guardian_name, :guardian_phone,
	        :guardian_email, :guardian_relationship, :address, :photo_path, :status, :status_reason, :submitted_by, :submitted_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, admission); err != nil {
		return fmt.Errorf("insert admission: %w", err)
	}
	return nil
}

func insertDocuments(ctx context.Context, tx *sqlx.Tx, admissionID string, docs []models.DocumentRequirement) error {
	now := time.Now().UTC()
	const query = `INSERT INTO admission_documents (` + documentColumns + `)
	VALUES (:id, :admission_id, :name, :is_mandatory, :status, :rejection_reason, :file_path, :mime_type, :size_bytes,
	        :submitted_at, :verified_by, :verified_at, :created_at, :updated_at)`
	for i := range docs {
		doc := &docs[i]
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		doc.AdmissionID = admissionID
		if doc.Status == "" {
			doc.Status = models.DocumentStatusPending
		}
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = now
		}
		doc.UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, query, doc); err != nil {
			return fmt.Errorf("insert admission document: %w", err)
		}
	}
	return nil
}

func insertAuditLog(ctx context.Context, ext sqlx.ExtContext, entry *models.AdmissionAuditLog) error {
	if entry == nil {
		return nil
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO admission_audit_logs (` + auditColumns + `)
	VALUES (:id, :admission_id, :action, :previous_status, :new_status, :actor_id, :details, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, ext, query, entry); err != nil {
		return fmt.Errorf("insert admission audit log: %w", err)
	}
	return nil
}

// lockOpenAdmission row-locks the admission and fails with sql.ErrNoRows when it
// is missing or already terminal.
func lockOpenAdmission(ctx context.Context, tx *sqlx.Tx, admissionID string) (models.AdmissionStatus, error) {
	var status models.AdmissionStatus
	if err := tx.GetContext(ctx, &status, `SELECT status FROM admissions WHERE id = $1 FOR UPDATE`, admissionID); err != nil {
		return "", err
	}
	if lifecycle.IsTerminal(status) {
		return status, sql.ErrNoRows
	}
	return status, nil
}

func expectOneRow(result interface{ RowsAffected() (int64, error) }, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check %s rows: %w", op, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
