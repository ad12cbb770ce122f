package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admissions-api/internal/dto"
	"github.com/noah-isme/sma-admissions-api/internal/lifecycle"
	"github.com/noah-isme/sma-admissions-api/internal/models"
	"github.com/noah-isme/sma-admissions-api/internal/repository"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
	"github.com/noah-isme/sma-admissions-api/pkg/export"
	"github.com/noah-isme/sma-admissions-api/pkg/phone"
)

// Export formats accepted by EnquiryService.Export.
const (
	ExportFormatCSV  = "csv"
	ExportFormatXLSX = "xlsx"
)

type enquiryRepository interface {
	Create(ctx context.Context, enquiry *models.Enquiry) error
	GetByID(ctx context.Context, id string) (*models.Enquiry, error)
	List(ctx context.Context, filter models.EnquiryFilter) ([]models.Enquiry, int, error)
	ListAll(ctx context.Context, filter models.EnquiryFilter) ([]models.Enquiry, error)
	UpdateStatus(ctx context.Context, id string, expected, next models.EnquiryStatus) error
	Convert(ctx context.Context, params repository.ConvertParams) error
}

type summaryInvalidator interface {
	Invalidate(ctx context.Context)
}

// EnquiryServiceConfig tunes enquiry handling.
type EnquiryServiceConfig struct {
	PhoneRegion string
	Template    *DocumentTemplate
}

// EnquiryService manages enquiries and their conversion into admissions.
type EnquiryService struct {
	repo      enquiryRepository
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	summary   summaryInvalidator
	cfg       EnquiryServiceConfig
	now       func() time.Time
}

// NewEnquiryService constructs the service.
func NewEnquiryService(repo enquiryRepository, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, summary summaryInvalidator, cfg EnquiryServiceConfig) *EnquiryService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Template == nil {
		cfg.Template = DefaultDocumentTemplate()
	}
	if summary == nil {
		summary = noopInvalidator{}
	}
	return &EnquiryService{repo: repo, validator: validate, logger: logger, metrics: metrics, summary: summary, cfg: cfg, now: time.Now}
}

// Create records a new ACTIVE enquiry.
func (s *EnquiryService) Create(ctx context.Context, req dto.CreateEnquiryRequest, actor Actor) (*models.Enquiry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid enquiry payload")
	}
	normalized, err := phone.Normalize(req.ParentPhone, s.cfg.PhoneRegion)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "parentPhone is not a valid phone number")
	}

	now := s.now().UTC()
	enquiry := &models.Enquiry{
		ID:            uuid.NewString(),
		ApplicantName: strings.TrimSpace(req.ApplicantName),
		GradeLevel:    strings.TrimSpace(req.GradeLevel),
		ParentName:    strings.TrimSpace(req.ParentName),
		ParentPhone:   normalized,
		ParentEmail:   strings.ToLower(strings.TrimSpace(req.ParentEmail)),
		Notes:         strings.TrimSpace(req.Notes),
		Status:        models.EnquiryStatusActive,
		CreatedBy:     actor.idPtr(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, enquiry); err != nil {
		return nil, internalError(err, "create enquiry")
	}
	s.summary.Invalidate(ctx)
	s.logger.Info("enquiry created", zap.String("enquiry_id", enquiry.ID), zap.String("grade", enquiry.GradeLevel))
	return enquiry, nil
}

// List returns enquiries visible to the actor.
func (s *EnquiryService) List(ctx context.Context, query dto.EnquiryQuery, actor Actor) ([]models.Enquiry, *models.Pagination, error) {
	filter, err := s.filterFor(query, actor)
	if err != nil {
		return nil, nil, err
	}
	enquiries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "list enquiries")
	}
	return enquiries, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns one enquiry.
func (s *EnquiryService) Get(ctx context.Context, id string, actor Actor) (*models.Enquiry, error) {
	enquiry, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "enquiry", "load enquiry")
	}
	if !actor.canAccess(enquiry.CreatedBy) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "enquiry not found")
	}
	return enquiry, nil
}

// SetStatus moves an enquiry to a new status. Converted enquiries are final.
func (s *EnquiryService) SetStatus(ctx context.Context, id string, req dto.UpdateEnquiryStatusRequest, actor Actor) (*models.Enquiry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid status payload")
	}
	next := models.EnquiryStatus(strings.ToUpper(string(req.Status)))

	enquiry, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.CanSetEnquiryStatus(enquiry.Status, next); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, id, enquiry.Status, next); err != nil {
		return nil, mutationError(err, "enquiry", "update enquiry status")
	}

	previous := enquiry.Status
	enquiry.Status = next
	enquiry.UpdatedAt = s.now().UTC()
	s.metrics.RecordTransition("enquiry", string(previous), string(next))
	s.summary.Invalidate(ctx)
	s.logger.Info("enquiry status changed",
		zap.String("enquiry_id", id),
		zap.String("from", string(previous)),
		zap.String("to", string(next)),
		zap.String("actor_id", actor.ID),
	)
	return enquiry, nil
}

// Convert turns a VERIFIED enquiry into a PENDING_REVIEW admission with default requirements.
func (s *EnquiryService) Convert(ctx context.Context, id string, req dto.ConvertEnquiryRequest, actor Actor) (*dto.ConvertEnquiryResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid conversion payload")
	}
	dob, err := parseDate(req.DateOfBirth)
	if err != nil {
		return nil, err
	}

	enquiry, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.CanConvertEnquiry(enquiry.Status); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	admission := &models.Admission{
		ID:                   uuid.NewString(),
		ApplicantName:        enquiry.ApplicantName,
		Grade:                enquiry.GradeLevel,
		DateOfBirth:          dob,
		GuardianName:         enquiry.ParentName,
		GuardianPhone:        enquiry.ParentPhone,
		GuardianEmail:        enquiry.ParentEmail,
		GuardianRelationship: strings.TrimSpace(req.GuardianRelationship),
		Address:              strings.TrimSpace(req.Address),
		Status:               lifecycle.InitialStatusConverted,
		SubmittedBy:          enquiry.CreatedBy,
		SubmittedAt:          now,
		UpdatedAt:            now,
	}
	if req.Gender != "" {
		gender := models.Gender(req.Gender)
		admission.Gender = &gender
	}
	docs := s.cfg.Template.Requirements(admission.Grade, now)
	audit := newAuditEntry(admission.ID, models.AuditActionEnquiryConvert, nil, string(admission.Status), actor, map[string]interface{}{
		"enquiry_id":   enquiry.ID,
		"requirements": len(docs),
	})

	if err := s.repo.Convert(ctx, repository.ConvertParams{EnquiryID: enquiry.ID, Admission: admission, Documents: docs, Audit: audit}); err != nil {
		return nil, mutationError(err, "enquiry", "convert enquiry")
	}

	previous := enquiry.Status
	enquiry.Status = models.EnquiryStatusConverted
	enquiry.ConvertedAdmissionID = &admission.ID
	enquiry.UpdatedAt = now
	s.metrics.RecordTransition("enquiry", string(previous), string(enquiry.Status))
	s.summary.Invalidate(ctx)
	s.logger.Info("enquiry converted",
		zap.String("enquiry_id", enquiry.ID),
		zap.String("admission_id", admission.ID),
		zap.String("actor_id", actor.ID),
	)
	return &dto.ConvertEnquiryResponse{Enquiry: enquiry, Admission: admission}, nil
}

// Export renders all matching enquiries as CSV or XLSX.
func (s *EnquiryService) Export(ctx context.Context, query dto.EnquiryQuery, format string, actor Actor) ([]byte, string, string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatXLSX {
		return nil, "", "", appErrors.Clone(appErrors.ErrValidation, "format must be csv or xlsx")
	}
	filter, err := s.filterFor(query, actor)
	if err != nil {
		return nil, "", "", err
	}
	enquiries, err := s.repo.ListAll(ctx, filter)
	if err != nil {
		return nil, "", "", internalError(err, "list enquiries for export")
	}

	data := export.Dataset{
		Title:   "Enquiries",
		Headers: []string{"ID", "Applicant", "Grade", "Parent", "Phone", "Email", "Status", "Created At", "Admission ID"},
		Rows:    make([][]string, 0, len(enquiries)),
	}
	for _, e := range enquiries {
		admissionID := ""
		if e.ConvertedAdmissionID != nil {
			admissionID = *e.ConvertedAdmissionID
		}
		data.Rows = append(data.Rows, []string{
			e.ID, e.ApplicantName, e.GradeLevel, e.ParentName, e.ParentPhone, e.ParentEmail,
			string(e.Status), e.CreatedAt.UTC().Format(time.RFC3339), admissionID,
		})
	}

	filename := fmt.Sprintf("enquiries-%s.%s", s.now().UTC().Format("20060102"), format)
	if format == ExportFormatXLSX {
		content, err := export.RenderXLSX(data)
		if err != nil {
			return nil, "", "", internalError(err, "render enquiries xlsx")
		}
		return content, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", filename, nil
	}
	content, err := export.RenderCSV(data)
	if err != nil {
		return nil, "", "", internalError(err, "render enquiries csv")
	}
	return content, "text/csv", filename, nil
}

func (s *EnquiryService) filterFor(query dto.EnquiryQuery, actor Actor) (models.EnquiryFilter, error) {
	for _, status := range query.Status {
		if !lifecycle.ValidEnquiryStatus(status) {
			return models.EnquiryFilter{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown enquiry status %q", status))
		}
	}
	page, size := normalisePage(query.Page, query.PageSize)
	filter := models.EnquiryFilter{
		Status:     query.Status,
		GradeLevel: strings.TrimSpace(query.GradeLevel),
		Search:     strings.TrimSpace(query.Search),
		Page:       page,
		PageSize:   size,
		SortBy:     query.SortBy,
		SortOrder:  query.SortOrder,
	}
	if !actor.IsStaff() {
		if actor.ID == "" {
			return models.EnquiryFilter{}, appErrors.ErrUnauthorized
		}
		filter.CreatedBy = actor.ID
	}
	return filter, nil
}
