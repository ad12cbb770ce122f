package handler

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-admissions-api/internal/dto"
	"github.com/noah-isme/sma-admissions-api/internal/lifecycle"
	"github.com/noah-isme/sma-admissions-api/internal/models"
	"github.com/noah-isme/sma-admissions-api/internal/service"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
)

type fakeDocumentSrv struct {
	lastUpload dto.DocumentUpload
	lastVerify dto.VerifyDocumentRequest
	lastToken  string
	content    []byte
	err        error
}

func (f *fakeDocumentSrv) List(_ context.Context, admissionID string, actor service.Actor) ([]models.DocumentRequirement, error) {
	return []models.DocumentRequirement{{ID: "d1", AdmissionID: admissionID}}, f.err
}

func (f *fakeDocumentSrv) Request(_ context.Context, admissionID string, req dto.RequestDocumentRequest, actor service.Actor) (*models.DocumentRequirement, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.DocumentRequirement{ID: "d2", AdmissionID: admissionID, Name: req.Name, IsMandatory: req.Mandatory}, nil
}

func (f *fakeDocumentSrv) Attach(_ context.Context, documentID string, upload dto.DocumentUpload, actor service.Actor) (*models.DocumentRequirement, error) {
	f.lastUpload = upload
	return &models.DocumentRequirement{ID: documentID, Status: models.DocumentStatusSubmitted}, f.err
}

func (f *fakeDocumentSrv) Verify(_ context.Context, documentID string, req dto.VerifyDocumentRequest, actor service.Actor) (*dto.VerifyDocumentResponse, error) {
	f.lastVerify = req
	if f.err != nil {
		return nil, f.err
	}
	return &dto.VerifyDocumentResponse{
		Document:   &models.DocumentRequirement{ID: documentID, Status: req.Outcome},
		Compliance: lifecycle.Compliance{Cleared: true, Total: 1, Mandatory: 1},
	}, nil
}

func (f *fakeDocumentSrv) DownloadURL(_ context.Context, documentID string, actor service.Actor) (*dto.SignedURLResponse, error) {
	return &dto.SignedURLResponse{URL: "/api/v1/documents/" + documentID + "/download?token=t"}, f.err
}

func (f *fakeDocumentSrv) Download(_ context.Context, documentID, token string) (io.ReadCloser, *models.DocumentRequirement, error) {
	f.lastToken = token
	if f.err != nil {
		return nil, nil, f.err
	}
	mime := "application/pdf"
	size := int64(len(f.content))
	return io.NopCloser(bytes.NewReader(f.content)), &models.DocumentRequirement{ID: documentID, MimeType: &mime, SizeBytes: &size}, nil
}

func (f *fakeDocumentSrv) MaxFileSize() int64 {
	return 1024
}

func TestDocumentHandlerRequest(t *testing.T) {
	handler := NewDocumentHandler(&fakeDocumentSrv{})
	c, rec := newTestContext(http.MethodPost, "/admissions/adm-1/documents", []byte(`{"name":"Vaccination record","mandatory":true}`), staffClaims)
	c.Params = gin.Params{{Key: "id", Value: "adm-1"}}

	handler.Request(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, string(decodeEnvelope(t, rec).Data), `"is_mandatory":true`)
}

func TestDocumentHandlerAttach(t *testing.T) {
	srv := &fakeDocumentSrv{}
	handler := NewDocumentHandler(srv)
	body, contentType := multipartBody(t, "akta.pdf", []byte("%PDF-1.4"))
	c, rec := newTestContext(http.MethodPost, "/documents/d1/file", body.Bytes(), parentClaims)
	c.Request.Header.Set("Content-Type", contentType)
	c.Params = gin.Params{{Key: "id", Value: "d1"}}

	handler.Attach(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "akta.pdf", srv.lastUpload.FileName)
	assert.Equal(t, int64(8), srv.lastUpload.Size)
}

func TestDocumentHandlerVerify(t *testing.T) {
	srv := &fakeDocumentSrv{}
	handler := NewDocumentHandler(srv)
	c, rec := newTestContext(http.MethodPost, "/documents/d1/verify", []byte(`{"outcome":"VERIFIED"}`), staffClaims)
	c.Params = gin.Params{{Key: "id", Value: "d1"}}

	handler.Verify(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.DocumentStatusVerified, srv.lastVerify.Outcome)
	assert.Contains(t, string(decodeEnvelope(t, rec).Data), `"cleared":true`)

	srv.err = appErrors.Clone(appErrors.ErrValidation, "reason is required when rejecting a document")
	c, rec = newTestContext(http.MethodPost, "/documents/d1/verify", []byte(`{"outcome":"REJECTED"}`), staffClaims)
	handler.Verify(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDocumentHandlerDownload(t *testing.T) {
	srv := &fakeDocumentSrv{content: []byte("%PDF-1.4 body")}
	handler := NewDocumentHandler(srv)

	c, rec := newTestContext(http.MethodGet, "/documents/d1/download?token=abc", nil, nil)
	c.Params = gin.Params{{Key: "id", Value: "d1"}}
	handler.Download(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", srv.lastToken)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "d1.pdf")
	assert.Equal(t, "%PDF-1.4 body", rec.Body.String())

	c, rec = newTestContext(http.MethodGet, "/documents/d1/download", nil, nil)
	handler.Download(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	srv.err = appErrors.Clone(appErrors.ErrForbidden, "download link expired")
	c, rec = newTestContext(http.MethodGet, "/documents/d1/download?token=old", nil, nil)
	handler.Download(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestDocumentHandlerDownloadURLRequiresClaims(t *testing.T) {
	handler := NewDocumentHandler(&fakeDocumentSrv{})
	c, rec := newTestContext(http.MethodGet, "/documents/d1/download-url", nil, nil)

	handler.DownloadURL(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
