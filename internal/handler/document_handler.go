package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-admissions-api/internal/dto"
	"github.com/noah-isme/sma-admissions-api/internal/models"
	"github.com/noah-isme/sma-admissions-api/internal/service"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
	"github.com/noah-isme/sma-admissions-api/pkg/response"
)

type documentService interface {
	List(ctx context.Context, admissionID string, actor service.Actor) ([]models.DocumentRequirement, error)
	Request(ctx context.Context, admissionID string, req dto.RequestDocumentRequest, actor service.Actor) (*models.DocumentRequirement, error)
	Attach(ctx context.Context, documentID string, upload dto.DocumentUpload, actor service.Actor) (*models.DocumentRequirement, error)
	Verify(ctx context.Context, documentID string, req dto.VerifyDocumentRequest, actor service.Actor) (*dto.VerifyDocumentResponse, error)
	DownloadURL(ctx context.Context, documentID string, actor service.Actor) (*dto.SignedURLResponse, error)
	Download(ctx context.Context, documentID, token string) (io.ReadCloser, *models.DocumentRequirement, error)
	MaxFileSize() int64
}

// DocumentHandler exposes document requirement endpoints.
type DocumentHandler struct {
	service documentService
}

// NewDocumentHandler constructs the handler.
func NewDocumentHandler(service documentService) *DocumentHandler {
	return &DocumentHandler{service: service}
}

// List godoc
// @Summary List an admission's document requirements
// @Tags Documents
// @Produce json
// @Param id path string true "Admission ID"
// @Success 200 {object} response.Envelope
// @Router /admissions/{id}/documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	actor, ok := h.begin(c)
	if !ok {
		return
	}
	docs, err := h.service.List(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docs, nil)
}

// Request godoc
// @Summary Request an additional document
// @Tags Documents
// @Accept json
// @Produce json
// @Param id path string true "Admission ID"
// @Param payload body dto.RequestDocumentRequest true "Requirement"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /admissions/{id}/documents [post]
func (h *DocumentHandler) Request(c *gin.Context) {
	actor, ok := h.begin(c)
	if !ok {
		return
	}
	var req dto.RequestDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid document request"))
		return
	}
	doc, err := h.service.Request(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, doc, nil)
}

// Attach godoc
// @Summary Attach a file to a requirement
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Document ID"
// @Param file formData file true "PDF, JPEG or PNG"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /documents/{id}/file [post]
func (h *DocumentHandler) Attach(c *gin.Context) {
	actor, ok := h.begin(c)
	if !ok {
		return
	}
	upload, err := readUpload(c, h.service.MaxFileSize())
	if err != nil {
		response.Error(c, err)
		return
	}
	doc, err := h.service.Attach(c.Request.Context(), c.Param("id"), upload, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// Verify godoc
// @Summary Verify or reject a submitted document
// @Tags Documents
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body dto.VerifyDocumentRequest true "Outcome"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /documents/{id}/verify [post]
func (h *DocumentHandler) Verify(c *gin.Context) {
	actor, ok := h.begin(c)
	if !ok {
		return
	}
	var req dto.VerifyDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid verification payload"))
		return
	}
	result, err := h.service.Verify(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// DownloadURL godoc
// @Summary Issue a time-limited download link
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/download-url [get]
func (h *DocumentHandler) DownloadURL(c *gin.Context) {
	actor, ok := h.begin(c)
	if !ok {
		return
	}
	link, err := h.service.DownloadURL(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// Download godoc
// @Summary Stream a document through a signed link
// @Tags Documents
// @Produce octet-stream
// @Param id path string true "Document ID"
// @Param token query string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /documents/{id}/download [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "document service not configured"))
		return
	}
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "download token required"))
		return
	}
	rc, doc, err := h.service.Download(c.Request.Context(), c.Param("id"), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer rc.Close()

	contentType := "application/octet-stream"
	if doc.MimeType != nil && *doc.MimeType != "" {
		contentType = *doc.MimeType
	}
	c.Header("Cache-Control", "no-store")
	c.Header("Content-Disposition", `attachment; filename="`+doc.ID+extensionFor(contentType)+`"`)
	var length int64 = -1
	if doc.SizeBytes != nil {
		length = *doc.SizeBytes
	}
	c.DataFromReader(http.StatusOK, length, contentType, rc, nil)
}

func (h *DocumentHandler) begin(c *gin.Context) (service.Actor, bool) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "document service not configured"))
		return service.Actor{}, false
	}
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return service.Actor{}, false
	}
	return actor, true
}

func extensionFor(contentType string) string {
	switch contentType {
	case "application/pdf":
		return ".pdf"
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	}
	return ""
}
