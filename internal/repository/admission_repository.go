package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-admissions-api/internal/models"
)

// AdmissionRepository persists admissions and guards their lifecycle transitions.
type AdmissionRepository struct {
	db *sqlx.DB
}

// NewAdmissionRepository constructs the repository.
func NewAdmissionRepository(db *sqlx.DB) *AdmissionRepository {
	return &AdmissionRepository{db: db}
}

// Create stores a directly registered admission with its default requirements and audit entry.
func (r *AdmissionRepository) Create(ctx context.Context, admission *models.Admission, docs []models.DocumentRequirement, audit *models.AdmissionAuditLog) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create admission: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = insertAdmission(ctx, tx, admission); err != nil {
		return err
	}
	if err = insertDocuments(ctx, tx, admission.ID, docs); err != nil {
		return err
	}
	if audit != nil {
		audit.AdmissionID = admission.ID
		if err = insertAuditLog(ctx, tx, audit); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create admission: %w", err)
	}
	return nil
}

// GetByID fetches an admission by identifier.
func (r *AdmissionRepository) GetByID(ctx context.Context, id string) (*models.Admission, error) {
	query := `SELECT ` + admissionColumns + ` FROM admissions WHERE id = $1`
	var admission models.Admission
	if err := r.db.GetContext(ctx, &admission, query, id); err != nil {
		return nil, err
	}
	return &admission, nil
}

// List returns admissions matching the filter with the total count.
func (r *AdmissionRepository) List(ctx context.Context, filter models.AdmissionFilter) ([]models.Admission, int, error) {
	args := make([]interface{}, 0, 6)
	conditions := make([]string, 0, 4)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Grade != "" {
		args = append(args, filter.Grade)
		conditions = append(conditions, fmt.Sprintf("grade = $%d", len(args)))
	}
	if filter.SubmittedBy != "" {
		args = append(args, filter.SubmittedBy)
		conditions = append(conditions, fmt.Sprintf("submitted_by = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(applicant_name) LIKE $%d OR LOWER(guardian_name) LIKE $%d)", len(args), len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{"submitted_at": true, "updated_at": true, "applicant_name": true, "status": true}
	if !allowedSorts[sortBy] {
		sortBy = "submitted_at"
	}
	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	listQuery := fmt.Sprintf("SELECT %s FROM admissions%s ORDER BY %s %s LIMIT %d OFFSET %d",
		admissionColumns, where, sortBy, sortOrder, pageSize, (page-1)*pageSize)
	var admissions []models.Admission
	if err := r.db.SelectContext(ctx, &admissions, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list admissions: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM admissions"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count admissions: %w", err)
	}
	return admissions, total, nil
}

// UpdateStatusParams describes a guarded review transition.
type UpdateStatusParams struct {
	ID       string
	Expected models.AdmissionStatus
	Next     models.AdmissionStatus
	Reason   *string
}

// UpdateStatus applies a review transition when the admission is still in the
// expected status and records the audit entry in the same transaction.
func (r *AdmissionRepository) UpdateStatus(ctx context.Context, params UpdateStatusParams, audit *models.AdmissionAuditLog) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update admission status: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `UPDATE admissions SET status = $2, status_reason = $3, updated_at = $4
	WHERE id = $1 AND status = $5`
	result, err := tx.ExecContext(ctx, query, params.ID, params.Next, params.Reason, time.Now().UTC(), params.Expected)
	if err != nil {
		return fmt.Errorf("update admission status: %w", err)
	}
	if err = expectOneRow(result, "admission status update"); err != nil {
		return err
	}
	if err = insertAuditLog(ctx, tx, audit); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit update admission status: %w", err)
	}
	return nil
}

// Approve transitions the admission to APPROVED. The admission row is locked
// before the compliance gate is re-read, so document changes committed by
// concurrent reviewers are visible to the check. A status that moved away from
// expected or a gate that no longer clears yields sql.ErrNoRows.
func (r *AdmissionRepository) Approve(ctx context.Context, id string, expected models.AdmissionStatus, audit *models.AdmissionAuditLog) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin approve admission: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	status, err := lockOpenAdmission(ctx, tx, id)
	if err != nil {
		return err
	}
	if status != expected {
		err = sql.ErrNoRows
		return err
	}

	var gate struct {
		Total       int `db:"total"`
		Outstanding int `db:"outstanding"`
	}
	gateQuery := fmt.Sprintf(`SELECT COUNT(*) AS total,
	       COUNT(*) FILTER (WHERE is_mandatory AND status <> '%s') AS outstanding
	FROM admission_documents WHERE admission_id = $1`, models.DocumentStatusVerified)
	if err = tx.GetContext(ctx, &gate, gateQuery, id); err != nil {
		return fmt.Errorf("evaluate admission gate: %w", err)
	}
	if gate.Total == 0 || gate.Outstanding > 0 {
		err = sql.ErrNoRows
		return err
	}

	result, err := tx.ExecContext(ctx, `UPDATE admissions SET status = $3, status_reason = NULL, updated_at = $4 WHERE id = $1 AND status = $2`,
		id, expected, models.AdmissionStatusApproved, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("approve admission: %w", err)
	}
	if err = expectOneRow(result, "admission approval"); err != nil {
		return err
	}
	if err = insertAuditLog(ctx, tx, audit); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit approve admission: %w", err)
	}
	return nil
}

// UpdatePhoto stores the photo reference on an open admission.
func (r *AdmissionRepository) UpdatePhoto(ctx context.Context, id, photoPath string, audit *models.AdmissionAuditLog) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update admission photo: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = lockOpenAdmission(ctx, tx, id); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE admissions SET photo_path = $2, updated_at = $3 WHERE id = $1`, id, photoPath, time.Now().UTC()); err != nil {
		return fmt.Errorf("update admission photo: %w", err)
	}
	if err = insertAuditLog(ctx, tx, audit); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit update admission photo: %w", err)
	}
	return nil
}

// CountByStatus returns admission totals grouped by status.
func (r *AdmissionRepository) CountByStatus(ctx context.Context) ([]models.StatusCount, error) {
	const query = `SELECT status, COUNT(*) AS total FROM admissions GROUP BY status ORDER BY status`
	var counts []models.StatusCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count admissions by status: %w", err)
	}
	return counts, nil
}
