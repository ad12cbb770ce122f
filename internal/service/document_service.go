package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admissions-api/internal/dto"
	"github.com/noah-isme/sma-admissions-api/internal/lifecycle"
	"github.com/noah-isme/sma-admissions-api/internal/models"
	"github.com/noah-isme/sma-admissions-api/internal/repository"
	"github.com/noah-isme/sma-admissions-api/pkg/cache"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
	"github.com/noah-isme/sma-admissions-api/pkg/storage"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

type documentRepository interface {
	ListByAdmission(ctx context.Context, admissionID string) ([]models.DocumentRequirement, error)
	GetByID(ctx context.Context, id string) (*models.DocumentRequirement, error)
	Create(ctx context.Context, doc *models.DocumentRequirement, audit *models.AdmissionAuditLog) error
	AttachFile(ctx context.Context, params repository.AttachParams, audit *models.AdmissionAuditLog) error
	Verify(ctx context.Context, params repository.VerifyParams, audit *models.AdmissionAuditLog) error
}

type admissionReader interface {
	GetByID(ctx context.Context, id string) (*models.Admission, error)
}

// DocumentServiceConfig tunes upload validation and download links.
type DocumentServiceConfig struct {
	MaxFileSize   int64
	AllowedMIMEs  []string
	DownloadPath  string
	ReviewLockTTL time.Duration
}

// DocumentService manages admission document requirements and their files.
type DocumentService struct {
	repo       documentRepository
	admissions admissionReader
	store      storage.ObjectStore
	signer     *storage.SignedURLSigner
	lock       reviewLock
	validator  *validator.Validate
	metrics    *MetricsService
	logger     *zap.Logger
	cfg        DocumentServiceConfig
}

// DocumentServiceOption configures optional collaborators of DocumentService.
type DocumentServiceOption func(*DocumentService)

// WithDocumentSigner enables HMAC download links for stores that cannot presign.
func WithDocumentSigner(signer *storage.SignedURLSigner) DocumentServiceOption {
	return func(s *DocumentService) {
		s.signer = signer
	}
}

// WithDocumentLocker serialises document changes with the admission review lock.
func WithDocumentLocker(locker cache.Locker) DocumentServiceOption {
	return func(s *DocumentService) {
		s.lock = newReviewLock(locker, s.cfg.ReviewLockTTL, s.logger)
	}
}

// WithDocumentMetrics records upload and verification metrics.
func WithDocumentMetrics(metrics *MetricsService) DocumentServiceOption {
	return func(s *DocumentService) {
		s.metrics = metrics
	}
}

// NewDocumentService constructs the service with defaults.
func NewDocumentService(repo documentRepository, admissions admissionReader, store storage.ObjectStore, validate *validator.Validate, logger *zap.Logger, cfg DocumentServiceConfig, opts ...DocumentServiceOption) *DocumentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 10 * 1024 * 1024
	}
	if len(cfg.AllowedMIMEs) == 0 {
		cfg.AllowedMIMEs = []string{"application/pdf", "image/jpeg", "image/png"}
	}
	if cfg.DownloadPath == "" {
		cfg.DownloadPath = "/api/v1/documents/%s/download"
	}
	svc := &DocumentService{
		repo:       repo,
		admissions: admissions,
		store:      store,
		lock:       newReviewLock(nil, cfg.ReviewLockTTL, logger),
		validator:  validate,
		logger:     logger,
		cfg:        cfg,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// MaxFileSize is the largest accepted upload in bytes.
func (s *DocumentService) MaxFileSize() int64 {
	return s.cfg.MaxFileSize
}

// List returns an admission's requirements.
func (s *DocumentService) List(ctx context.Context, admissionID string, actor Actor) ([]models.DocumentRequirement, error) {
	if _, err := s.loadAdmission(ctx, admissionID, actor); err != nil {
		return nil, err
	}
	docs, err := s.repo.ListByAdmission(ctx, admissionID)
	if err != nil {
		return nil, internalError(err, "list admission documents")
	}
	if docs == nil {
		docs = []models.DocumentRequirement{}
	}
	return docs, nil
}

// Request adds a requirement to an open admission.
func (s *DocumentService) Request(ctx context.Context, admissionID string, req dto.RequestDocumentRequest, actor Actor) (*models.DocumentRequirement, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid document request")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "name is required")
	}
	admission, err := s.loadAdmission(ctx, admissionID, actor)
	if err != nil {
		return nil, err
	}
	release, err := s.lock.acquire(ctx, admission.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := lifecycle.CanModifyDocuments(admission.Status); err != nil {
		return nil, err
	}
	existing, err := s.repo.ListByAdmission(ctx, admissionID)
	if err != nil {
		return nil, internalError(err, "list admission documents")
	}
	for _, doc := range existing {
		if strings.EqualFold(doc.Name, name) {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("document %q already requested", doc.Name))
		}
	}

	doc := &models.DocumentRequirement{
		ID:          uuid.NewString(),
		AdmissionID: admissionID,
		Name:        name,
		IsMandatory: req.Mandatory,
		Status:      models.DocumentStatusPending,
	}
	audit := newAuditEntry(admissionID, models.AuditActionDocumentRequest, strPtr(string(admission.Status)), string(admission.Status), actor, map[string]interface{}{
		"document_id": doc.ID,
		"name":        name,
		"mandatory":   req.Mandatory,
	})
	if err := s.repo.Create(ctx, doc, audit); err != nil {
		return nil, mutationError(err, "admission", "create admission document")
	}
	return doc, nil
}

// Attach stores a file for a requirement and marks it SUBMITTED.
func (s *DocumentService) Attach(ctx context.Context, documentID string, upload dto.DocumentUpload, actor Actor) (*models.DocumentRequirement, error) {
	if s.store == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "document storage not configured")
	}
	mimeType, err := s.validateUpload(upload)
	if err != nil {
		return nil, err
	}

	doc, admission, err := s.loadDocument(ctx, documentID, actor)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.CanModifyDocuments(admission.Status); err != nil {
		return nil, err
	}
	if err := lifecycle.CanAttachDocument(doc.Status); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("admissions/%s/documents/%s/%s-%s", admission.ID, doc.ID, uuid.NewString()[:8], safeFileName(upload.FileName))
	if err := s.store.Put(ctx, key, mimeType, bytes.NewReader(upload.Content)); err != nil {
		return nil, internalError(err, "store document file")
	}

	size := int64(len(upload.Content))
	audit := newAuditEntry(admission.ID, models.AuditActionDocumentSubmit, strPtr(string(doc.Status)), string(models.DocumentStatusSubmitted), actor, map[string]interface{}{
		"document_id": doc.ID,
		"mime_type":   mimeType,
		"size_bytes":  size,
	})
	params := repository.AttachParams{ID: doc.ID, AdmissionID: admission.ID, FilePath: key, MimeType: mimeType, SizeBytes: size}
	if err := s.repo.AttachFile(ctx, params, audit); err != nil {
		s.discardObject(ctx, key)
		return nil, mutationError(err, "document", "attach document file")
	}
	if doc.HasFile() && *doc.FilePath != key {
		s.discardObject(ctx, *doc.FilePath)
	}

	now := time.Now().UTC()
	doc.Status = models.DocumentStatusSubmitted
	doc.FilePath = &key
	doc.MimeType = &mimeType
	doc.SizeBytes = &size
	doc.SubmittedAt = &now
	doc.RejectionReason = nil
	doc.VerifiedBy = nil
	doc.VerifiedAt = nil
	doc.UpdatedAt = now
	s.logger.Info("document submitted", zap.String("document_id", doc.ID), zap.String("admission_id", admission.ID))
	return doc, nil
}

// Verify records a reviewer's outcome and returns the refreshed compliance gate.
func (s *DocumentService) Verify(ctx context.Context, documentID string, req dto.VerifyDocumentRequest, actor Actor) (*dto.VerifyDocumentResponse, error) {
	outcome := models.DocumentStatus(strings.ToUpper(string(req.Outcome)))
	reason := strings.TrimSpace(req.Reason)
	if err := lifecycle.CanVerifyDocument(outcome, reason); err != nil {
		return nil, err
	}
	req.Outcome = outcome
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid verification payload")
	}

	doc, admission, err := s.loadDocument(ctx, documentID, actor)
	if err != nil {
		return nil, err
	}
	release, err := s.lock.acquire(ctx, admission.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := lifecycle.CanModifyDocuments(admission.Status); err != nil {
		return nil, err
	}
	if doc.Status == models.DocumentStatusVerified && outcome == models.DocumentStatusVerified {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "document already verified")
	}

	action := models.AuditActionDocumentVerify
	if outcome == models.DocumentStatusRejected {
		action = models.AuditActionDocumentReject
	}
	details := map[string]interface{}{"document_id": doc.ID, "name": doc.Name}
	if reason != "" {
		details["reason"] = reason
	}
	var rejection *string
	if outcome == models.DocumentStatusRejected {
		rejection = &reason
	}
	audit := newAuditEntry(admission.ID, action, strPtr(string(doc.Status)), string(outcome), actor, details)
	params := repository.VerifyParams{
		ID:          doc.ID,
		AdmissionID: admission.ID,
		Expected:    doc.Status,
		Outcome:     outcome,
		Reason:      rejection,
		VerifiedBy:  actor.idPtr(),
	}
	if err := s.repo.Verify(ctx, params, audit); err != nil {
		return nil, mutationError(err, "document", "verify document")
	}
	s.metrics.RecordTransition("document", string(doc.Status), string(outcome))

	docs, err := s.repo.ListByAdmission(ctx, admission.ID)
	if err != nil {
		return nil, internalError(err, "list admission documents")
	}
	updated := doc
	for i := range docs {
		if docs[i].ID == doc.ID {
			updated = &docs[i]
			break
		}
	}
	s.logger.Info("document reviewed",
		zap.String("document_id", doc.ID),
		zap.String("admission_id", admission.ID),
		zap.String("outcome", string(outcome)),
		zap.String("actor_id", actor.ID),
	)
	return &dto.VerifyDocumentResponse{Document: updated, Compliance: lifecycle.Evaluate(docs)}, nil
}

// DownloadURL issues a time-limited link to a requirement's file.
func (s *DocumentService) DownloadURL(ctx context.Context, documentID string, actor Actor) (*dto.SignedURLResponse, error) {
	doc, _, err := s.loadDocument(ctx, documentID, actor)
	if err != nil {
		return nil, err
	}
	if !doc.HasFile() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "document has no file")
	}

	if presigner, ok := s.store.(storage.Presigner); ok {
		ttl := 15 * time.Minute
		if s.signer != nil {
			ttl = s.signer.TTL()
		}
		url, err := presigner.PresignGet(ctx, *doc.FilePath, ttl)
		if err != nil {
			return nil, internalError(err, "presign document url")
		}
		return &dto.SignedURLResponse{URL: url, ExpiresAt: time.Now().UTC().Add(ttl).Format(time.RFC3339)}, nil
	}

	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "document downloads not configured")
	}
	token, expiresAt, err := s.signer.Generate(doc.ID, *doc.FilePath)
	if err != nil {
		return nil, internalError(err, "sign document url")
	}
	url := fmt.Sprintf(s.cfg.DownloadPath, doc.ID) + "?token=" + token
	return &dto.SignedURLResponse{URL: url, ExpiresAt: expiresAt.UTC().Format(time.RFC3339)}, nil
}

// Download opens the file referenced by a signed token. The caller closes the reader.
func (s *DocumentService) Download(ctx context.Context, documentID, token string) (io.ReadCloser, *models.DocumentRequirement, error) {
	if s.signer == nil || s.store == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrInternal, "document downloads not configured")
	}
	subject, key, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download link")
	}
	if subject != documentID {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download link")
	}
	doc, err := s.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, nil, lookupError(err, "document", "load document")
	}
	if !doc.HasFile() || *doc.FilePath != key {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "document file replaced, request a new link")
	}
	rc, err := s.store.Open(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "document file not found")
		}
		return nil, nil, internalError(err, "open document file")
	}
	return rc, doc, nil
}

func (s *DocumentService) validateUpload(upload dto.DocumentUpload) (string, error) {
	if len(upload.Content) == 0 {
		return "", appErrors.Clone(appErrors.ErrValidation, "file is empty")
	}
	if int64(len(upload.Content)) > s.cfg.MaxFileSize {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes", s.cfg.MaxFileSize))
	}
	detected := mimetype.Detect(upload.Content)
	if !mimetype.EqualsAny(detected.String(), s.cfg.AllowedMIMEs...) {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file type %s is not allowed", detected.String()))
	}
	return detected.String(), nil
}

func (s *DocumentService) loadAdmission(ctx context.Context, id string, actor Actor) (*models.Admission, error) {
	admission, err := s.admissions.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "admission", "load admission")
	}
	if !actor.canAccess(admission.SubmittedBy) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "admission not found")
	}
	return admission, nil
}

func (s *DocumentService) loadDocument(ctx context.Context, id string, actor Actor) (*models.DocumentRequirement, *models.Admission, error) {
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, lookupError(err, "document", "load document")
	}
	admission, err := s.admissions.GetByID(ctx, doc.AdmissionID)
	if err != nil {
		return nil, nil, lookupError(err, "admission", "load admission")
	}
	if !actor.canAccess(admission.SubmittedBy) {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
	}
	return doc, admission, nil
}

func (s *DocumentService) discardObject(ctx context.Context, key string) {
	if err := s.store.Delete(context.WithoutCancel(ctx), key); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		s.logger.Warn("failed to delete stored object", zap.String("key", key), zap.Error(err))
	}
}

func safeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	name = unsafeFileChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "file"
	}
	if len(name) > 100 {
		name = name[len(name)-100:]
	}
	return name
}
