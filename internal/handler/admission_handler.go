package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-admissions-api/internal/dto"
	"github.com/noah-isme/sma-admissions-api/internal/lifecycle"
	"github.com/noah-isme/sma-admissions-api/internal/middleware"
	"github.com/noah-isme/sma-admissions-api/internal/models"
	"github.com/noah-isme/sma-admissions-api/internal/service"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
	"github.com/noah-isme/sma-admissions-api/pkg/response"
)

type admissionService interface {
	Register(ctx context.Context, req dto.RegisterAdmissionRequest, actor service.Actor) (*dto.AdmissionDetail, error)
	List(ctx context.Context, query dto.AdmissionQuery, actor service.Actor) ([]models.Admission, *models.Pagination, error)
	Get(ctx context.Context, id string, actor service.Actor) (*dto.AdmissionDetail, error)
	Compliance(ctx context.Context, id string, actor service.Actor) (*lifecycle.Compliance, error)
	UpdateStatus(ctx context.Context, id string, req dto.UpdateAdmissionStatusRequest, actor service.Actor) (*models.Admission, error)
	Finalize(ctx context.Context, id string, actor service.Actor) (*dto.AdmissionDetail, error)
	AuditLogs(ctx context.Context, id string, actor service.Actor) ([]models.AdmissionAuditLog, error)
	UploadPhoto(ctx context.Context, id string, upload dto.DocumentUpload, actor service.Actor) (*models.Admission, error)
	PhotoMaxBytes() int64
	ChecklistPDF(ctx context.Context, id string, actor service.Actor) ([]byte, string, error)
}

type summaryService interface {
	Get(ctx context.Context) (*models.AdmissionsSummary, bool, error)
}

// AdmissionHandler exposes REST endpoints for the admission lifecycle.
type AdmissionHandler struct {
	service admissionService
	summary summaryService
}

// NewAdmissionHandler constructs the handler.
func NewAdmissionHandler(service admissionService, summary summaryService) *AdmissionHandler {
	return &AdmissionHandler{service: service, summary: summary}
}

// Register godoc
// @Summary Register an admission directly
// @Tags Admissions
// @Accept json
// @Produce json
// @Param payload body dto.RegisterAdmissionRequest true "Admission payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admissions [post]
func (h *AdmissionHandler) Register(c *gin.Context) {
	actor, ok := h.begin(c)
	if !ok {
		return
	}
	var req dto.RegisterAdmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid admission payload"))
		return
	}
	detail, err := h.service.Register(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, detail, nil)
}

// List godoc
// @Summary List admissions
// @Tags Admissions
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param grade query string false "Grade"
// @Param search query string false "Applicant or guardian name"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /admissions [get]
func (h *AdmissionHandler) List(c *gin.Context) {
	actor, ok := h.begin(c)
	if !ok {
		return
	}
	query := dto.AdmissionQuery{
		Grade:     strings.TrimSpace(c.Query("grade")),
		Search:    strings.TrimSpace(c.Query("search")),
		Page:      queryInt(c, "page"),
		PageSize:  queryInt(c, "page_size"),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}
	for _, status := range splitUpper(c.Query("status")) {
		query.Status = append(query.Status, models.AdmissionStatus(status))
	}
	admissions, pagination, err := h.service.List(c.Request.Context(), query, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, admissions, pagination)
}

// Get godoc
// @Summary Get admission detail with requirements and compliance
// @Tags Admissions
// @Produce json
// @Param id path string true "Admission ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admissions/{id} [get]
func (h *AdmissionHandler) Get(c *gin.Context) {
	actor, ok := h.begin(c)
	if !ok {
		return
	}
	detail, err := h.service.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Compliance godoc
// @Summary Evaluate the mandatory document gate
// @Tags Admissions
// @Produce json
// @Param id path string true "Admission ID"
// @Success 200 {object} response.Envelope
// @Router /admissions/{id}/compliance [get]
func (h *AdmissionHandler) Compliance(c *gin.Context) {
	actor, ok := h.begin(c)
	if !ok {
		return
	}
	compliance, err := h.service.Compliance(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, compliance, nil)
}

// UpdateStatus godoc
// @Summary Apply a review transition
// @Tags Admissions
// @Accept json
// @Produce json
// @Param id path string true "Admission ID"
// @Param payload body dto.UpdateAdmissionStatusRequest true "Target status and reason"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /admissions/{id}/status [patch]
func (h *AdmissionHandler) UpdateStatus(c *gin.Context) {
	actor, ok := h.begin(c)
	if !ok {
		return
	}
	var req dto.UpdateAdmissionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid status payload"))
		return
	}
	admission, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, admission, nil)
}

// Finalize godoc
// @Summary Approve an admission whose mandatory documents are verified
// @Tags Admissions
// @Produce json
// @Param id path string true "Admission ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /admissions/{id}/finalize [post]
func (h *AdmissionHandler) Finalize(c *gin.Context) {
	actor, ok := h.begin(c)
	if !ok {
		return
	}
	detail, err := h.service.Finalize(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// AuditLogs godoc
// @Summary List the admission audit trail
// @Tags Admissions
// @Produce json
// @Param id path string true "Admission ID"
// @Success 200 {object} response.Envelope
// @Router /admissions/{id}/audit-logs [get]
func (h *AdmissionHandler) AuditLogs(c *gin.Context) {
	actor, ok := h.begin(c)
	if !ok {
		return
	}
	logs, err := h.service.AuditLogs(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}

// UploadPhoto godoc
// @Summary Upload the applicant photo
// @Tags Admissions
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Admission ID"
// @Param file formData file true "Image"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /admissions/{id}/photo [post]
func (h *AdmissionHandler) UploadPhoto(c *gin.Context) {
	actor, ok := h.begin(c)
	if !ok {
		return
	}
	upload, err := readUpload(c, h.service.PhotoMaxBytes())
	if err != nil {
		response.Error(c, err)
		return
	}
	admission, err := h.service.UploadPhoto(c.Request.Context(), c.Param("id"), upload, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, admission, nil)
}

// Checklist godoc
// @Summary Download the document checklist
// @Tags Admissions
// @Produce application/pdf
// @Param id path string true "Admission ID"
// @Success 200 {file} file
// @Router /admissions/{id}/checklist.pdf [get]
func (h *AdmissionHandler) Checklist(c *gin.Context) {
	actor, ok := h.begin(c)
	if !ok {
		return
	}
	content, filename, err := h.service.ChecklistPDF(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, "application/pdf", filename, content)
}

// Summary godoc
// @Summary Pipeline counts per status
// @Tags Admissions
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admissions/summary [get]
func (h *AdmissionHandler) Summary(c *gin.Context) {
	if h.summary == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "summary service not configured"))
		return
	}
	summary, hit, err := h.summary.Get(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, summary, nil, middleware.ResponseMeta(c))
}

func (h *AdmissionHandler) begin(c *gin.Context) (service.Actor, bool) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "admission service not configured"))
		return service.Actor{}, false
	}
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return service.Actor{}, false
	}
	return actor, true
}
