package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-admissions-api/internal/dto"
	"github.com/noah-isme/sma-admissions-api/internal/models"
	"github.com/noah-isme/sma-admissions-api/internal/service"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
	"github.com/noah-isme/sma-admissions-api/pkg/response"
)

type enquiryService interface {
	Create(ctx context.Context, req dto.CreateEnquiryRequest, actor service.Actor) (*models.Enquiry, error)
	List(ctx context.Context, query dto.EnquiryQuery, actor service.Actor) ([]models.Enquiry, *models.Pagination, error)
	Get(ctx context.Context, id string, actor service.Actor) (*models.Enquiry, error)
	SetStatus(ctx context.Context, id string, req dto.UpdateEnquiryStatusRequest, actor service.Actor) (*models.Enquiry, error)
	Convert(ctx context.Context, id string, req dto.ConvertEnquiryRequest, actor service.Actor) (*dto.ConvertEnquiryResponse, error)
	Export(ctx context.Context, query dto.EnquiryQuery, format string, actor service.Actor) ([]byte, string, string, error)
}

// EnquiryHandler exposes REST endpoints for enquiries.
type EnquiryHandler struct {
	service enquiryService
}

// NewEnquiryHandler constructs the handler.
func NewEnquiryHandler(service enquiryService) *EnquiryHandler {
	return &EnquiryHandler{service: service}
}

// Create godoc
// @Summary Record an enquiry
// @Tags Enquiries
// @Accept json
// @Produce json
// @Param payload body dto.CreateEnquiryRequest true "Enquiry payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /enquiries [post]
func (h *EnquiryHandler) Create(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "enquiry service not configured"))
		return
	}
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.CreateEnquiryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid enquiry payload"))
		return
	}
	enquiry, err := h.service.Create(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, enquiry, nil)
}

// List godoc
// @Summary List enquiries
// @Tags Enquiries
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param grade query string false "Grade level"
// @Param search query string false "Applicant or parent name"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /enquiries [get]
func (h *EnquiryHandler) List(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "enquiry service not configured"))
		return
	}
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	enquiries, pagination, err := h.service.List(c.Request.Context(), enquiryQuery(c), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enquiries, pagination)
}

// Get godoc
// @Summary Get enquiry detail
// @Tags Enquiries
// @Produce json
// @Param id path string true "Enquiry ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enquiries/{id} [get]
func (h *EnquiryHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "enquiry service not configured"))
		return
	}
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	enquiry, err := h.service.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enquiry, nil)
}

// UpdateStatus godoc
// @Summary Change enquiry status
// @Tags Enquiries
// @Accept json
// @Produce json
// @Param id path string true "Enquiry ID"
// @Param payload body dto.UpdateEnquiryStatusRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /enquiries/{id}/status [patch]
func (h *EnquiryHandler) UpdateStatus(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "enquiry service not configured"))
		return
	}
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.UpdateEnquiryStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid status payload"))
		return
	}
	enquiry, err := h.service.SetStatus(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enquiry, nil)
}

// Convert godoc
// @Summary Convert a verified enquiry into an admission
// @Tags Enquiries
// @Accept json
// @Produce json
// @Param id path string true "Enquiry ID"
// @Param payload body dto.ConvertEnquiryRequest false "Admission details"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /enquiries/{id}/convert [post]
func (h *EnquiryHandler) Convert(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "enquiry service not configured"))
		return
	}
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ConvertEnquiryRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid conversion payload"))
			return
		}
	}
	result, err := h.service.Convert(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, result, nil)
}

// Export godoc
// @Summary Export enquiries
// @Tags Enquiries
// @Produce text/csv
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param format query string false "csv or xlsx"
// @Param status query string false "Comma separated statuses"
// @Success 200 {file} file
// @Router /enquiries/export [get]
func (h *EnquiryHandler) Export(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "enquiry service not configured"))
		return
	}
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	content, contentType, filename, err := h.service.Export(c.Request.Context(), enquiryQuery(c), c.Query("format"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, contentType, filename, content)
}

func enquiryQuery(c *gin.Context) dto.EnquiryQuery {
	query := dto.EnquiryQuery{
		GradeLevel: strings.TrimSpace(c.Query("grade")),
		Search:     strings.TrimSpace(c.Query("search")),
		Page:       queryInt(c, "page"),
		PageSize:   queryInt(c, "page_size"),
		SortBy:     c.Query("sort_by"),
		SortOrder:  c.Query("sort_order"),
	}
	for _, status := range splitUpper(c.Query("status")) {
		query.Status = append(query.Status, models.EnquiryStatus(status))
	}
	return query
}
