package models

import "time"

// AdmissionStatus is the lifecycle state of an admission application.
type AdmissionStatus string

// Admission statuses. Approved, rejected and cancelled are terminal.
const (
	AdmissionStatusRegistered    AdmissionStatus = "REGISTERED"
	AdmissionStatusPendingReview AdmissionStatus = "PENDING_REVIEW"
	AdmissionStatusVerified      AdmissionStatus = "VERIFIED"
	AdmissionStatusApproved      AdmissionStatus = "APPROVED"
	AdmissionStatusRejected      AdmissionStatus = "REJECTED"
	AdmissionStatusCancelled     AdmissionStatus = "CANCELLED"
)

// Gender values accepted on admission forms.
type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
)

// Admission is a formal enrollment request for one applicant.
type Admission struct {
	ID                   string          `db:"id" json:"id"`
	EnquiryID            *string         `db:"enquiry_id" json:"enquiry_id,omitempty"`
	ApplicantName        string          `db:"applicant_name" json:"applicant_name"`
	Grade                string          `db:"grade" json:"grade"`
	DateOfBirth          *time.Time      `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Gender               *Gender         `db:"gender" json:"gender,omitempty"`
	GuardianName         string          `db:"guardian_name" json:"guardian_name"`
	GuardianPhone        string          `db:"guardian_phone" json:"guardian_phone"`
	GuardianEmail        string          `db:"guardian_email" json:"guardian_email"`
	GuardianRelationship string          `db:"guardian_relationship" json:"guardian_relationship"`
	Address              string          `db:"address" json:"address"`
	PhotoPath            *string         `db:"photo_path" json:"photo_path,omitempty"`
	Status               AdmissionStatus `db:"status" json:"status"`
	StatusReason         *string         `db:"status_reason" json:"status_reason,omitempty"`
	SubmittedBy          *string         `db:"submitted_by" json:"submitted_by,omitempty"`
	SubmittedAt          time.Time       `db:"submitted_at" json:"submitted_at"`
	UpdatedAt            time.Time       `db:"updated_at" json:"updated_at"`
}

// AdmissionFilter captures listing criteria for admissions.
type AdmissionFilter struct {
	Status      []AdmissionStatus
	Grade       string
	Search      string
	SubmittedBy string
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}

// StatusCount is one row of a grouped status count.
type StatusCount struct {
	Status string `db:"status" json:"status"`
	Total  int    `db:"total" json:"total"`
}

// AdmissionsSummary aggregates pipeline counts for the dashboard.
type AdmissionsSummary struct {
	Enquiries   map[string]int `json:"enquiries"`
	Admissions  map[string]int `json:"admissions"`
	GeneratedAt time.Time      `json:"generated_at"`
}
