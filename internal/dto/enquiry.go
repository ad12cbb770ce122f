package dto

import "github.com/noah-isme/sma-admissions-api/internal/models"

// CreateEnquiryRequest captures a prospective applicant's first contact.
type CreateEnquiryRequest struct {
	ApplicantName string `json:"applicantName" validate:"required,max=150"`
	GradeLevel    string `json:"gradeLevel" validate:"required,max=20"`
	ParentName    string `json:"parentName" validate:"required,max=150"`
	ParentPhone   string `json:"parentPhone" validate:"required"`
	ParentEmail   string `json:"parentEmail" validate:"omitempty,email"`
	Notes         string `json:"notes" validate:"max=2000"`
}

// UpdateEnquiryStatusRequest moves an enquiry within its lifecycle.
type UpdateEnquiryStatusRequest struct {
	Status models.EnquiryStatus `json:"status" validate:"required"`
}

// ConvertEnquiryRequest carries the admission details that an enquiry does not hold.
type ConvertEnquiryRequest struct {
	DateOfBirth          string `json:"dateOfBirth" validate:"omitempty,datetime=2006-01-02"`
	Gender               string `json:"gender" validate:"omitempty,oneof=MALE FEMALE"`
	GuardianRelationship string `json:"guardianRelationship" validate:"max=50"`
	Address              string `json:"address" validate:"max=500"`
}

// EnquiryQuery mirrors supported listing filters.
type EnquiryQuery struct {
	Status     []models.EnquiryStatus
	GradeLevel string
	Search     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// ConvertEnquiryResponse returns both sides of a conversion.
type ConvertEnquiryResponse struct {
	Enquiry   *models.Enquiry   `json:"enquiry"`
	Admission *models.Admission `json:"admission"`
}
