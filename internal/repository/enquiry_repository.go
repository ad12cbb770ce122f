package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-admissions-api/internal/models"
)

const enquiryColumns = `id, applicant_name, grade_level, parent_name, parent_phone, parent_email, notes, status,
       converted_admission_id, created_by, created_at, updated_at`

// EnquiryRepository persists enquiries and performs their conversion into admissions.
type EnquiryRepository struct {
	db *sqlx.DB
}

// NewEnquiryRepository constructs the repository.
func NewEnquiryRepository(db *sqlx.DB) *EnquiryRepository {
	return &EnquiryRepository{db: db}
}

// Create inserts a new enquiry.
func (r *EnquiryRepository) Create(ctx context.Context, enquiry *models.Enquiry) error {
	if enquiry.ID == "" {
		enquiry.ID = uuid.NewString()
	}
	if enquiry.Status == "" {
		enquiry.Status = models.EnquiryStatusActive
	}
	now := time.Now().UTC()
	if enquiry.CreatedAt.IsZero() {
		enquiry.CreatedAt = now
	}
	enquiry.UpdatedAt = now
	const query = `INSERT INTO enquiries (` + enquiryColumns + `)
	VALUES (:id, :applicant_name, :grade_level, :parent_name, :parent_phone, :parent_email, :notes, :status,
	        :converted_admission_id, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enquiry); err != nil {
		return fmt.Errorf("create enquiry: %w", err)
	}
	return nil
}

// GetByID fetches an enquiry by identifier.
func (r *EnquiryRepository) GetByID(ctx context.Context, id string) (*models.Enquiry, error) {
	query := `SELECT ` + enquiryColumns + ` FROM enquiries WHERE id = $1`
	var enquiry models.Enquiry
	if err := r.db.GetContext(ctx, &enquiry, query, id); err != nil {
		return nil, err
	}
	return &enquiry, nil
}

func buildEnquiryConditions(filter models.EnquiryFilter) (string, []interface{}) {
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
	if filter.GradeLevel != "" {
		args = append(args, filter.GradeLevel)
		conditions = append(conditions, fmt.Sprintf("grade_level = $%d", len(args)))
	}
	if filter.CreatedBy != "" {
		args = append(args, filter.CreatedBy)
		conditions = append(conditions, fmt.Sprintf("created_by = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		conditions = append(conditions, fmt.Sprintf("(LOWER(applicant_name) LIKE $%d OR LOWER(parent_name) LIKE $%d)", len(args), len(args)))
	}
	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// List returns enquiries matching the filter with the total count.
func (r *EnquiryRepository) List(ctx context.Context, filter models.EnquiryFilter) ([]models.Enquiry, int, error) {
	where, args := buildEnquiryConditions(filter)

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{"created_at": true, "updated_at": true, "applicant_name": true, "status": true}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
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

	listQuery := fmt.Sprintf("SELECT %s FROM enquiries%s ORDER BY %s %s LIMIT %d OFFSET %d",
		enquiryColumns, where, sortBy, sortOrder, pageSize, (page-1)*pageSize)
	var enquiries []models.Enquiry
	if err := r.db.SelectContext(ctx, &enquiries, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list enquiries: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM enquiries"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count enquiries: %w", err)
	}
	return enquiries, total, nil
}

// ListAll returns every enquiry matching the filter, oldest first, for exports.
func (r *EnquiryRepository) ListAll(ctx context.Context, filter models.EnquiryFilter) ([]models.Enquiry, error) {
	where, args := buildEnquiryConditions(filter)
	query := fmt.Sprintf("SELECT %s FROM enquiries%s ORDER BY created_at ASC", enquiryColumns, where)
	var enquiries []models.Enquiry
	if err := r.db.SelectContext(ctx, &enquiries, query, args...); err != nil {
		return nil, fmt.Errorf("list enquiries for export: %w", err)
	}
	return enquiries, nil
}

// UpdateStatus moves an enquiry from the expected status to next. A converted
// enquiry or a concurrent change yields sql.ErrNoRows.
func (r *EnquiryRepository) UpdateStatus(ctx context.Context, id string, expected, next models.EnquiryStatus) error {
	query := fmt.Sprintf(`UPDATE enquiries SET status = $2, updated_at = $3
	WHERE id = $1 AND status = $4 AND status <> '%s'`, models.EnquiryStatusConverted)
	result, err := r.db.ExecContext(ctx, query, id, next, time.Now().UTC(), expected)
	if err != nil {
		return fmt.Errorf("update enquiry status: %w", err)
	}
	return expectOneRow(result, "enquiry status update")
}

// ConvertParams groups the records created by a conversion.
type ConvertParams struct {
	EnquiryID string
	Admission *models.Admission
	Documents []models.DocumentRequirement
	Audit     *models.AdmissionAuditLog
}

// Convert atomically creates the admission with its requirements, marks the
// enquiry converted and appends the audit entry. The enquiry row is locked and
// must still be VERIFIED, otherwise sql.ErrNoRows is returned and nothing is written.
func (r *EnquiryRepository) Convert(ctx context.Context, params ConvertParams) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin convert enquiry: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var status models.EnquiryStatus
	if err = tx.GetContext(ctx, &status, `SELECT status FROM enquiries WHERE id = $1 FOR UPDATE`, params.EnquiryID); err != nil {
		return err
	}
	if status != models.EnquiryStatusVerified {
		err = sql.ErrNoRows
		return err
	}

	params.Admission.EnquiryID = &params.EnquiryID
	if err = insertAdmission(ctx, tx, params.Admission); err != nil {
		return err
	}
	if err = insertDocuments(ctx, tx, params.Admission.ID, params.Documents); err != nil {
		return err
	}

	const update = `UPDATE enquiries SET status = $2, converted_admission_id = $3, updated_at = $4
	WHERE id = $1 AND status = $5`
	result, err := tx.ExecContext(ctx, update, params.EnquiryID, models.EnquiryStatusConverted, params.Admission.ID, time.Now().UTC(), models.EnquiryStatusVerified)
	if err != nil {
		return fmt.Errorf("mark enquiry converted: %w", err)
	}
	if err = expectOneRow(result, "enquiry conversion"); err != nil {
		return err
	}

	if params.Audit != nil {
		params.Audit.AdmissionID = params.Admission.ID
		if err = insertAuditLog(ctx, tx, params.Audit); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit convert enquiry: %w", err)
	}
	return nil
}

// CountByStatus returns enquiry totals grouped by status.
func (r *EnquiryRepository) CountByStatus(ctx context.Context) ([]models.StatusCount, error) {
	const query = `SELECT status, COUNT(*) AS total FROM enquiries GROUP BY status ORDER BY status`
	var counts []models.StatusCount
	if err := r.db.SelectContext(ctx, &counts, query); err != nil {
		return nil, fmt.Errorf("count enquiries by status: %w", err)
	}
	return counts, nil
}
