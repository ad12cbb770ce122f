package models

import "time"

// DocumentStatus is the verification state of a document requirement.
type DocumentStatus string

const (
	DocumentStatusPending   DocumentStatus = "PENDING"
	DocumentStatusSubmitted DocumentStatus = "SUBMITTED"
	DocumentStatusVerified  DocumentStatus = "VERIFIED"
	DocumentStatusRejected  DocumentStatus = "REJECTED"
)

// DocumentRequirement is one artifact expected for an admission.
type DocumentRequirement struct {
	ID              string         `db:"id" json:"id"`
	AdmissionID     string         `db:"admission_id" json:"admission_id"`
	Name            string         `db:"name" json:"name"`
	IsMandatory     bool           `db:"is_mandatory" json:"is_mandatory"`
	Status          DocumentStatus `db:"status" json:"status"`
	RejectionReason *string        `db:"rejection_reason" json:"rejection_reason,omitempty"`
	FilePath        *string        `db:"file_path" json:"-"`
	MimeType        *string        `db:"mime_type" json:"mime_type,omitempty"`
	SizeBytes       *int64         `db:"size_bytes" json:"size_bytes,omitempty"`
	SubmittedAt     *time.Time     `db:"submitted_at" json:"submitted_at,omitempty"`
	VerifiedBy      *string        `db:"verified_by" json:"verified_by,omitempty"`
	VerifiedAt      *time.Time     `db:"verified_at" json:"verified_at,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// HasFile reports whether an artifact is attached.
func (d DocumentRequirement) HasFile() bool {
	return d.FilePath != nil && *d.FilePath != ""
}

// DocumentTemplateItem is a default requirement provisioned for new admissions.
type DocumentTemplateItem struct {
	Name      string `yaml:"name" json:"name"`
	Mandatory bool   `yaml:"mandatory" json:"mandatory"`
}
