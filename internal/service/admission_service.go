package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admissions-api/internal/dto"
	"github.com/noah-isme/sma-admissions-api/internal/lifecycle"
	"github.com/noah-isme/sma-admissions-api/internal/models"
	"github.com/noah-isme/sma-admissions-api/internal/repository"
	"github.com/noah-isme/sma-admissions-api/pkg/cache"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
	"github.com/noah-isme/sma-admissions-api/pkg/export"
	"github.com/noah-isme/sma-admissions-api/pkg/phone"
	"github.com/noah-isme/sma-admissions-api/pkg/storage"
)

const defaultPhotoDimension = 512

type admissionRepository interface {
	Create(ctx context.Context, admission *models.Admission, docs []models.DocumentRequirement, audit *models.AdmissionAuditLog) error
	GetByID(ctx context.Context, id string) (*models.Admission, error)
	List(ctx context.Context, filter models.AdmissionFilter) ([]models.Admission, int, error)
	UpdateStatus(ctx context.Context, params repository.UpdateStatusParams, audit *models.AdmissionAuditLog) error
	Approve(ctx context.Context, id string, expected models.AdmissionStatus, audit *models.AdmissionAuditLog) error
	UpdatePhoto(ctx context.Context, id, photoPath string, audit *models.AdmissionAuditLog) error
}

type requirementLister interface {
	ListByAdmission(ctx context.Context, admissionID string) ([]models.DocumentRequirement, error)
}

type auditTrailReader interface {
	ListByAdmission(ctx context.Context, admissionID string) ([]models.AdmissionAuditLog, error)
}

type decisionNotifier interface {
	AdmissionDecided(ctx context.Context, decision AdmissionDecision)
}

// AdmissionServiceConfig tunes admission handling.
type AdmissionServiceConfig struct {
	PhoneRegion       string
	Template          *DocumentTemplate
	PhotoMaxDimension int
	PhotoMaxBytes     int64
	ReviewLockTTL     time.Duration
}

// AdmissionService runs the admission lifecycle: registration, review, finalize and the photo and checklist extras.
type AdmissionService struct {
	repo      admissionRepository
	documents requirementLister
	audits    auditTrailReader
	store     storage.ObjectStore
	notifier  decisionNotifier
	summary   summaryInvalidator
	lock      reviewLock
	validator *validator.Validate
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       AdmissionServiceConfig
	now       func() time.Time
}

// AdmissionServiceOption configures optional collaborators of AdmissionService.
type AdmissionServiceOption func(*AdmissionService)

// WithAdmissionStore sets the object store used for applicant photos.
func WithAdmissionStore(store storage.ObjectStore) AdmissionServiceOption {
	return func(s *AdmissionService) {
		s.store = store
	}
}

// WithDecisionNotifier delivers approve and reject decisions after they commit.
func WithDecisionNotifier(notifier decisionNotifier) AdmissionServiceOption {
	return func(s *AdmissionService) {
		s.notifier = notifier
	}
}

// WithSummaryInvalidator drops the cached summary after status changes.
func WithSummaryInvalidator(summary summaryInvalidator) AdmissionServiceOption {
	return func(s *AdmissionService) {
		if summary != nil {
			s.summary = summary
		}
	}
}

// WithAdmissionLocker serialises review actions through locker.
func WithAdmissionLocker(locker cache.Locker) AdmissionServiceOption {
	return func(s *AdmissionService) {
		s.lock = newReviewLock(locker, s.cfg.ReviewLockTTL, s.logger)
	}
}

// WithAdmissionMetrics records lifecycle metrics.
func WithAdmissionMetrics(metrics *MetricsService) AdmissionServiceOption {
	return func(s *AdmissionService) {
		s.metrics = metrics
	}
}

// NewAdmissionService constructs the service with defaults.
func NewAdmissionService(repo admissionRepository, documents requirementLister, audits auditTrailReader, validate *validator.Validate, logger *zap.Logger, cfg AdmissionServiceConfig, opts ...AdmissionServiceOption) *AdmissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Template == nil {
		cfg.Template = DefaultDocumentTemplate()
	}
	if cfg.PhotoMaxDimension <= 0 {
		cfg.PhotoMaxDimension = defaultPhotoDimension
	}
	if cfg.PhotoMaxBytes <= 0 {
		cfg.PhotoMaxBytes = 5 * 1024 * 1024
	}
	svc := &AdmissionService{
		repo:      repo,
		documents: documents,
		audits:    audits,
		summary:   noopInvalidator{},
		lock:      newReviewLock(nil, cfg.ReviewLockTTL, logger),
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// PhotoMaxBytes is the largest accepted photo upload in bytes.
func (s *AdmissionService) PhotoMaxBytes() int64 {
	return s.cfg.PhotoMaxBytes
}

// Register creates a REGISTERED admission with the default requirements for its grade.
func (s *AdmissionService) Register(ctx context.Context, req dto.RegisterAdmissionRequest, actor Actor) (*dto.AdmissionDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid admission payload")
	}
	dob, err := parseDate(req.DateOfBirth)
	if err != nil {
		return nil, err
	}
	guardianPhone, err := phone.Normalize(req.GuardianPhone, s.cfg.PhoneRegion)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "guardianPhone is not a valid phone number")
	}

	now := s.now().UTC()
	admission := &models.Admission{
		ID:                   uuid.NewString(),
		ApplicantName:        strings.TrimSpace(req.ApplicantName),
		Grade:                strings.TrimSpace(req.Grade),
		DateOfBirth:          dob,
		GuardianName:         strings.TrimSpace(req.GuardianName),
		GuardianPhone:        guardianPhone,
		GuardianEmail:        strings.ToLower(strings.TrimSpace(req.GuardianEmail)),
		GuardianRelationship: strings.TrimSpace(req.GuardianRelationship),
		Address:              strings.TrimSpace(req.Address),
		Status:               lifecycle.InitialStatusDirect,
		SubmittedBy:          actor.idPtr(),
		SubmittedAt:          now,
		UpdatedAt:            now,
	}
	if req.Gender != "" {
		gender := models.Gender(req.Gender)
		admission.Gender = &gender
	}
	docs := s.cfg.Template.Requirements(admission.Grade, now)
	audit := newAuditEntry(admission.ID, models.AuditActionAdmissionRegister, nil, string(admission.Status), actor, map[string]interface{}{
		"requirements": len(docs),
	})

	if err := s.repo.Create(ctx, admission, docs, audit); err != nil {
		return nil, internalError(err, "create admission")
	}
	s.summary.Invalidate(ctx)
	s.logger.Info("admission registered", zap.String("admission_id", admission.ID), zap.String("grade", admission.Grade))
	return &dto.AdmissionDetail{Admission: admission, Documents: docs, Compliance: lifecycle.Evaluate(docs)}, nil
}

// List returns admissions visible to the actor.
func (s *AdmissionService) List(ctx context.Context, query dto.AdmissionQuery, actor Actor) ([]models.Admission, *models.Pagination, error) {
	for _, status := range query.Status {
		if !lifecycle.ValidAdmissionStatus(status) {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown admission status %q", status))
		}
	}
	page, size := normalisePage(query.Page, query.PageSize)
	filter := models.AdmissionFilter{
		Status:    query.Status,
		Grade:     strings.TrimSpace(query.Grade),
		Search:    strings.TrimSpace(query.Search),
		Page:      page,
		PageSize:  size,
		SortBy:    query.SortBy,
		SortOrder: query.SortOrder,
	}
	if !actor.IsStaff() {
		if actor.ID == "" {
			return nil, nil, appErrors.ErrUnauthorized
		}
		filter.SubmittedBy = actor.ID
	}
	admissions, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "list admissions")
	}
	return admissions, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns the admission with its requirements and compliance.
func (s *AdmissionService) Get(ctx context.Context, id string, actor Actor) (*dto.AdmissionDetail, error) {
	admission, err := s.load(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, admission)
}

// Compliance evaluates the document gate for an admission.
func (s *AdmissionService) Compliance(ctx context.Context, id string, actor Actor) (*lifecycle.Compliance, error) {
	detail, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	return &detail.Compliance, nil
}

// UpdateStatus applies an administrative review transition. APPROVED is reserved for Finalize.
func (s *AdmissionService) UpdateStatus(ctx context.Context, id string, req dto.UpdateAdmissionStatusRequest, actor Actor) (*models.Admission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid status payload")
	}
	next := models.AdmissionStatus(strings.ToUpper(string(req.Status)))
	reason := strings.TrimSpace(req.Reason)

	release, err := s.lock.acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	admission, err := s.load(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.CanSetAdmissionStatus(admission.Status, next, reason); err != nil {
		return nil, err
	}

	previous := admission.Status
	details := map[string]interface{}{}
	if reason != "" {
		details["reason"] = reason
	}
	audit := newAuditEntry(id, models.AuditActionAdmissionStatus, strPtr(string(previous)), string(next), actor, details)
	params := repository.UpdateStatusParams{ID: id, Expected: previous, Next: next, Reason: optionalString(reason)}
	if err := s.repo.UpdateStatus(ctx, params, audit); err != nil {
		return nil, mutationError(err, "admission", "update admission status")
	}

	admission.Status = next
	admission.StatusReason = params.Reason
	admission.UpdatedAt = s.now().UTC()
	s.afterTransition(ctx, admission, previous, actor)
	return admission, nil
}

// Finalize approves an admission whose mandatory documents are all verified. A blocked gate
// is refused before any write reaches the store.
func (s *AdmissionService) Finalize(ctx context.Context, id string, actor Actor) (*dto.AdmissionDetail, error) {
	release, err := s.lock.acquire(ctx, id)
	if err != nil {
		s.metrics.ObserveFinalize(FinalizeConflict)
		return nil, err
	}
	defer release()

	admission, err := s.load(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	docs, err := s.documents.ListByAdmission(ctx, id)
	if err != nil {
		return nil, internalError(err, "list admission documents")
	}
	compliance := lifecycle.Evaluate(docs)
	if err := lifecycle.CanFinalize(admission.Status, compliance); err != nil {
		outcome := FinalizeBlocked
		if appErrors.Classify(err) == appErrors.CategoryRejected {
			outcome = FinalizeConflict
		}
		s.metrics.ObserveFinalize(outcome)
		return nil, err
	}

	previous := admission.Status
	audit := newAuditEntry(id, models.AuditActionAdmissionFinalize, strPtr(string(previous)), string(models.AdmissionStatusApproved), actor, map[string]interface{}{
		"mandatory": compliance.Mandatory,
		"total":     compliance.Total,
	})
	if err := s.repo.Approve(ctx, id, previous, audit); err != nil {
		mapped := mutationError(err, "admission", "approve admission")
		if appErrors.Classify(mapped) == appErrors.CategoryRejected {
			s.metrics.ObserveFinalize(FinalizeConflict)
		} else {
			s.metrics.ObserveFinalize(FinalizeError)
		}
		return nil, mapped
	}

	admission.Status = models.AdmissionStatusApproved
	admission.StatusReason = nil
	admission.UpdatedAt = s.now().UTC()
	s.metrics.ObserveFinalize(FinalizeApproved)
	s.afterTransition(ctx, admission, previous, actor)
	return &dto.AdmissionDetail{Admission: admission, Documents: docs, Compliance: compliance}, nil
}

// AuditLogs returns the admission's audit trail, oldest first.
func (s *AdmissionService) AuditLogs(ctx context.Context, id string, actor Actor) ([]models.AdmissionAuditLog, error) {
	if _, err := s.load(ctx, id, actor); err != nil {
		return nil, err
	}
	if s.audits == nil {
		return []models.AdmissionAuditLog{}, nil
	}
	logs, err := s.audits.ListByAdmission(ctx, id)
	if err != nil {
		return nil, internalError(err, "list admission audit logs")
	}
	if logs == nil {
		logs = []models.AdmissionAuditLog{}
	}
	return logs, nil
}

// UploadPhoto stores a bounded JPEG rendition of the applicant photo.
func (s *AdmissionService) UploadPhoto(ctx context.Context, id string, upload dto.DocumentUpload, actor Actor) (*models.Admission, error) {
	if s.store == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "photo storage not configured")
	}
	if len(upload.Content) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "photo is empty")
	}
	if int64(len(upload.Content)) > s.cfg.PhotoMaxBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("photo exceeds %d bytes", s.cfg.PhotoMaxBytes))
	}

	admission, err := s.load(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.CanModifyDocuments(admission.Status); err != nil {
		return nil, err
	}

	rendition, err := s.renderPhoto(upload.Content)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("admissions/%s/photo-%s.jpg", id, uuid.NewString())
	if err := s.store.Put(ctx, key, "image/jpeg", bytes.NewReader(rendition)); err != nil {
		return nil, internalError(err, "store admission photo")
	}

	audit := newAuditEntry(id, models.AuditActionPhotoUpload, strPtr(string(admission.Status)), string(admission.Status), actor, map[string]interface{}{
		"size_bytes": len(rendition),
	})
	if err := s.repo.UpdatePhoto(ctx, id, key, audit); err != nil {
		s.discardObject(ctx, key)
		return nil, mutationError(err, "admission", "update admission photo")
	}
	if admission.PhotoPath != nil && *admission.PhotoPath != key {
		s.discardObject(ctx, *admission.PhotoPath)
	}
	admission.PhotoPath = &key
	admission.UpdatedAt = s.now().UTC()
	return admission, nil
}

// ChecklistPDF renders the admission's document checklist.
func (s *AdmissionService) ChecklistPDF(ctx context.Context, id string, actor Actor) ([]byte, string, error) {
	detail, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, "", err
	}
	gate := "cleared"
	if !detail.Compliance.Cleared {
		gate = fmt.Sprintf("%d of %d mandatory outstanding", detail.Compliance.Outstanding, detail.Compliance.Mandatory)
	}
	table := export.Dataset{
		Headers: []string{"No", "Document", "Mandatory", "Status", "Note"},
		Rows:    make([][]string, 0, len(detail.Documents)),
	}
	for i, doc := range detail.Documents {
		mandatory := "No"
		if doc.IsMandatory {
			mandatory = "Yes"
		}
		note := ""
		if doc.RejectionReason != nil {
			note = *doc.RejectionReason
		}
		table.Rows = append(table.Rows, []string{fmt.Sprintf("%d", i+1), doc.Name, mandatory, string(doc.Status), note})
	}
	content, err := export.RenderChecklistPDF(export.Checklist{
		Title: "Admission Document Checklist",
		Fields: []export.Field{
			{Label: "Applicant", Value: detail.ApplicantName},
			{Label: "Grade", Value: detail.Grade},
			{Label: "Guardian", Value: detail.GuardianName},
			{Label: "Status", Value: string(detail.Status)},
			{Label: "Compliance", Value: gate},
		},
		Table:  table,
		Footer: "Generated " + s.now().UTC().Format("2006-01-02 15:04 MST"),
		Widths: []float64{12, 78, 25, 30, 45},
	})
	if err != nil {
		return nil, "", internalError(err, "render checklist pdf")
	}
	return content, fmt.Sprintf("checklist-%s.pdf", id), nil
}

func (s *AdmissionService) load(ctx context.Context, id string, actor Actor) (*models.Admission, error) {
	admission, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "admission", "load admission")
	}
	if !actor.canAccess(admission.SubmittedBy) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "admission not found")
	}
	return admission, nil
}

func (s *AdmissionService) detail(ctx context.Context, admission *models.Admission) (*dto.AdmissionDetail, error) {
	docs, err := s.documents.ListByAdmission(ctx, admission.ID)
	if err != nil {
		return nil, internalError(err, "list admission documents")
	}
	if docs == nil {
		docs = []models.DocumentRequirement{}
	}
	return &dto.AdmissionDetail{Admission: admission, Documents: docs, Compliance: lifecycle.Evaluate(docs)}, nil
}

func (s *AdmissionService) afterTransition(ctx context.Context, admission *models.Admission, previous models.AdmissionStatus, actor Actor) {
	s.metrics.RecordTransition("admission", string(previous), string(admission.Status))
	s.summary.Invalidate(ctx)
	s.logger.Info("admission status changed",
		zap.String("admission_id", admission.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(admission.Status)),
		zap.String("actor_id", actor.ID),
	)
	if s.notifier == nil {
		return
	}
	s.notifier.AdmissionDecided(ctx, AdmissionDecision{
		AdmissionID:   admission.ID,
		EnquiryID:     admission.EnquiryID,
		ApplicantName: admission.ApplicantName,
		Grade:         admission.Grade,
		Status:        admission.Status,
		Reason:        admission.StatusReason,
		DecidedBy:     actor.idPtr(),
		DecidedAt:     admission.UpdatedAt,
		GuardianName:  admission.GuardianName,
		GuardianEmail: admission.GuardianEmail,
	})
}

func (s *AdmissionService) renderPhoto(content []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(content), imaging.AutoOrientation(true))
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "photo must be a JPEG, PNG, GIF, BMP or TIFF image")
	}
	var out image.Image = img
	bounds := img.Bounds()
	if bounds.Dx() > s.cfg.PhotoMaxDimension || bounds.Dy() > s.cfg.PhotoMaxDimension {
		out = imaging.Fit(img, s.cfg.PhotoMaxDimension, s.cfg.PhotoMaxDimension, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, internalError(err, "encode admission photo")
	}
	return buf.Bytes(), nil
}

func (s *AdmissionService) discardObject(ctx context.Context, key string) {
	if err := s.store.Delete(context.WithoutCancel(ctx), key); err != nil {
		s.logger.Warn("failed to delete stored object", zap.String("key", key), zap.Error(err))
	}
}
