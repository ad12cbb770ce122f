package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-admissions-api/internal/models"
)

var enquiryRowColumns = []string{"id", "applicant_name", "grade_level", "parent_name", "parent_phone", "parent_email", "notes", "status",
	"converted_admission_id", "created_by", "created_at", "updated_at"}

func TestEnquiryRepositoryCreateDefaultsActive(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnquiryRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enquiries")).WillReturnResult(sqlmock.NewResult(1, 1))

	enquiry := &models.Enquiry{ApplicantName: "Rina", GradeLevel: "10", ParentName: "Budi", ParentPhone: "+6281234567890"}
	require.NoError(t, repo.Create(context.Background(), enquiry))
	assert.NotEmpty(t, enquiry.ID)
	assert.Equal(t, models.EnquiryStatusActive, enquiry.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnquiryRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnquiryRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(enquiryRowColumns).
		AddRow("enq-1", "Rina", "10", "Budi", "+6281234567890", "", "", "VERIFIED", nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM enquiries WHERE status IN ($1) AND (LOWER(applicant_name) LIKE $2 OR LOWER(parent_name) LIKE $2) ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs(models.EnquiryStatusVerified, "%rin%").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enquiries WHERE status IN ($1)")).
		WithArgs(models.EnquiryStatusVerified, "%rin%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	list, total, err := repo.List(context.Background(), models.EnquiryFilter{
		Status: []models.EnquiryStatus{models.EnquiryStatusVerified},
		Search: "Rin",
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, models.EnquiryStatusVerified, list[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnquiryRepositoryUpdateStatusGuard(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnquiryRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enquiries SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4 AND status <> 'CONVERTED'")).
		WithArgs("enq-1", models.EnquiryStatusVerified, sqlmock.AnyArg(), models.EnquiryStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateStatus(context.Background(), "enq-1", models.EnquiryStatusActive, models.EnquiryStatusVerified))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enquiries SET status")).WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.UpdateStatus(context.Background(), "enq-1", models.EnquiryStatusActive, models.EnquiryStatusVerified)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnquiryRepositoryConvert(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnquiryRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM enquiries WHERE id = $1 FOR UPDATE")).
		WithArgs("enq-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("VERIFIED"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO admissions")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO admission_documents")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO admission_documents")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enquiries SET status = $2, converted_admission_id = $3")).
		WithArgs("enq-1", models.EnquiryStatusConverted, sqlmock.AnyArg(), sqlmock.AnyArg(), models.EnquiryStatusVerified).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO admission_audit_logs")).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	admission := &models.Admission{ApplicantName: "Rina", Grade: "10", Status: models.AdmissionStatusPendingReview}
	audit := &models.AdmissionAuditLog{Action: models.AuditActionEnquiryConvert, NewStatus: string(models.AdmissionStatusPendingReview)}
	err := repo.Convert(context.Background(), ConvertParams{
		EnquiryID: "enq-1",
		Admission: admission,
		Documents: []models.DocumentRequirement{{Name: "Birth certificate", IsMandatory: true}, {Name: "Photo"}},
		Audit:     audit,
	})
	require.NoError(t, err)
	require.NotNil(t, admission.EnquiryID)
	assert.Equal(t, "enq-1", *admission.EnquiryID)
	assert.Equal(t, admission.ID, audit.AdmissionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnquiryRepositoryConvertRequiresVerified(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnquiryRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM enquiries WHERE id = $1 FOR UPDATE")).
		WithArgs("enq-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("CONVERTED"))
	mock.ExpectRollback()

	err := repo.Convert(context.Background(), ConvertParams{EnquiryID: "enq-1", Admission: &models.Admission{}})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnquiryRepositoryCountByStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEnquiryRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) AS total FROM enquiries GROUP BY status")).
		WillReturnRows(sqlmock.NewRows([]string{"status", "total"}).AddRow("ACTIVE", 3).AddRow("CONVERTED", 1))

	counts, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.StatusCount{{Status: "ACTIVE", Total: 3}, {Status: "CONVERTED", Total: 1}}, counts)
}
