package dto

import (
	"github.com/noah-isme/sma-admissions-api/internal/lifecycle"
	"github.com/noah-isme/sma-admissions-api/internal/models"
)

// RegisterAdmissionRequest is the direct admission registration payload.
type RegisterAdmissionRequest struct {
	ApplicantName        string `json:"applicantName" validate:"required,max=150"`
	Grade                string `json:"grade" validate:"required,max=20"`
	DateOfBirth          string `json:"dateOfBirth" validate:"omitempty,datetime=2006-01-02"`
	Gender               string `json:"gender" validate:"omitempty,oneof=MALE FEMALE"`
	GuardianName         string `json:"guardianName" validate:"required,max=150"`
	GuardianPhone        string `json:"guardianPhone" validate:"required"`
	GuardianEmail        string `json:"guardianEmail" validate:"omitempty,email"`
	GuardianRelationship string `json:"guardianRelationship" validate:"max=50"`
	Address              string `json:"address" validate:"max=500"`
}

// UpdateAdmissionStatusRequest is an administrative review transition.
type UpdateAdmissionStatusRequest struct {
	Status models.AdmissionStatus `json:"status" validate:"required"`
	Reason string                 `json:"reason" validate:"max=500"`
}

// AdmissionQuery mirrors supported listing filters.
type AdmissionQuery struct {
	Status    []models.AdmissionStatus
	Grade     string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// AdmissionDetail bundles an admission with its requirements and gate result.
type AdmissionDetail struct {
	*models.Admission
	Documents  []models.DocumentRequirement `json:"documents"`
	Compliance lifecycle.Compliance         `json:"compliance"`
}
