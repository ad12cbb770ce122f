package dto

import (
	"github.com/noah-isme/sma-admissions-api/internal/lifecycle"
	"github.com/noah-isme/sma-admissions-api/internal/models"
)

// RequestDocumentRequest adds a requirement to an admission.
type RequestDocumentRequest struct {
	Name      string `json:"name" validate:"required,max=150"`
	Mandatory bool   `json:"mandatory"`
}

// VerifyDocumentRequest records a reviewer's decision on a submitted document.
type VerifyDocumentRequest struct {
	Outcome models.DocumentStatus `json:"outcome" validate:"required,oneof=VERIFIED REJECTED"`
	Reason  string                `json:"reason" validate:"max=500"`
}

// VerifyDocumentResponse returns the requirement with the refreshed gate.
type VerifyDocumentResponse struct {
	Document   *models.DocumentRequirement `json:"document"`
	Compliance lifecycle.Compliance        `json:"compliance"`
}

// DocumentUpload is a validated file ready to be stored.
type DocumentUpload struct {
	FileName    string
	ContentType string
	Size        int64
	Content     []byte
}

// SignedURLResponse is a time-limited download link.
type SignedURLResponse struct {
	URL       string `json:"url"`
	ExpiresAt string `json:"expiresAt"`
}
