package models

import "time"

// EnquiryStatus is the pre-admission lifecycle state of an enquiry.
type EnquiryStatus string

// Enquiry statuses in lifecycle order.
const (
	EnquiryStatusActive     EnquiryStatus = "ACTIVE"
	EnquiryStatusVerified   EnquiryStatus = "VERIFIED"
	EnquiryStatusInProgress EnquiryStatus = "IN_PROGRESS"
	EnquiryStatusConverted  EnquiryStatus = "CONVERTED"
)

// Enquiry is a prospective applicant's first contact with the school.
type Enquiry struct {
	ID                   string        `db:"id" json:"id"`
	ApplicantName        string        `db:"applicant_name" json:"applicant_name"`
	GradeLevel           string        `db:"grade_level" json:"grade_level"`
	ParentName           string        `db:"parent_name" json:"parent_name"`
	ParentPhone          string        `db:"parent_phone" json:"parent_phone"`
	ParentEmail          string        `db:"parent_email" json:"parent_email"`
	Notes                string        `db:"notes" json:"notes"`
	Status               EnquiryStatus `db:"status" json:"status"`
	ConvertedAdmissionID *string       `db:"converted_admission_id" json:"converted_admission_id,omitempty"`
	CreatedBy            *string       `db:"created_by" json:"created_by,omitempty"`
	CreatedAt            time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time     `db:"updated_at" json:"updated_at"`
}

// EnquiryFilter captures listing criteria for enquiries.
type EnquiryFilter struct {
	Status     []EnquiryStatus
	GradeLevel string
	Search     string
	CreatedBy  string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}
