package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-admissions-api/internal/models"
)

// DocumentRepository persists document requirements of admissions.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// ListByAdmission returns the requirements of an admission in creation order.
func (r *DocumentRepository) ListByAdmission(ctx context.Context, admissionID string) ([]models.DocumentRequirement, error) {
	query := `SELECT ` + documentColumns + ` FROM admission_documents WHERE admission_id = $1 ORDER BY created_at ASC, name ASC`
	var docs []models.DocumentRequirement
	if err := r.db.SelectContext(ctx, &docs, query, admissionID); err != nil {
		return nil, fmt.Errorf("list admission documents: %w", err)
	}
	return docs, nil
}

// GetByID fetches a requirement by identifier.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*models.DocumentRequirement, error) {
	query := `SELECT ` + documentColumns + ` FROM admission_documents WHERE id = $1`
	var doc models.DocumentRequirement
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Create adds a requirement to an open admission.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.DocumentRequirement, audit *models.AdmissionAuditLog) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create admission document: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = lockOpenAdmission(ctx, tx, doc.AdmissionID); err != nil {
		return err
	}
	docs := []models.DocumentRequirement{*doc}
	if err = insertDocuments(ctx, tx, doc.AdmissionID, docs); err != nil {
		return err
	}
	*doc = docs[0]
	if err = insertAuditLog(ctx, tx, audit); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create admission document: %w", err)
	}
	return nil
}

// AttachParams describes a stored file being linked to a requirement.
type AttachParams struct {
	ID          string
	AdmissionID string
	FilePath    string
	MimeType    string
	SizeBytes   int64
}

// AttachFile replaces the requirement's file reference and marks it SUBMITTED.
// Verified requirements and closed admissions yield sql.ErrNoRows.
func (r *DocumentRepository) AttachFile(ctx context.Context, params AttachParams, audit *models.AdmissionAuditLog) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin attach admission document: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = lockOpenAdmission(ctx, tx, params.AdmissionID); err != nil {
		return err
	}
	now := time.Now().UTC()
	query := fmt.Sprintf(`UPDATE admission_documents
	SET status = '%s', file_path = $3, mime_type = $4, size_bytes = $5, submitted_at = $6,
	    rejection_reason = NULL, verified_by = NULL, verified_at = NULL, updated_at = $6
	WHERE id = $1 AND admission_id = $2 AND status <> '%s'`, models.DocumentStatusSubmitted, models.DocumentStatusVerified)
	result, err := tx.ExecContext(ctx, query, params.ID, params.AdmissionID, params.FilePath, params.MimeType, params.SizeBytes, now)
	if err != nil {
		return fmt.Errorf("attach admission document: %w", err)
	}
	if err = expectOneRow(result, "document attach"); err != nil {
		return err
	}
	if err = insertAuditLog(ctx, tx, audit); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit attach admission document: %w", err)
	}
	return nil
}

// VerifyParams describes a reviewer's decision on a requirement.
type VerifyParams struct {
	ID          string
	AdmissionID string
	Expected    models.DocumentStatus
	Outcome     models.DocumentStatus
	Reason      *string
	VerifiedBy  *string
}

// Verify records the outcome when the requirement is still in the expected
// status and its admission is open.
func (r *DocumentRepository) Verify(ctx context.Context, params VerifyParams, audit *models.AdmissionAuditLog) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin verify admission document: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = lockOpenAdmission(ctx, tx, params.AdmissionID); err != nil {
		return err
	}
	const query = `UPDATE admission_documents
	SET status = $4, rejection_reason = $5, verified_by = $6, verified_at = $7, updated_at = $7
	WHERE id = $1 AND admission_id = $2 AND status = $3`
	result, err := tx.ExecContext(ctx, query, params.ID, params.AdmissionID, params.Expected, params.Outcome, params.Reason, params.VerifiedBy, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("verify admission document: %w", err)
	}
	if err = expectOneRow(result, "document verification"); err != nil {
		return err
	}
	if err = insertAuditLog(ctx, tx, audit); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit verify admission document: %w", err)
	}
	return nil
}
