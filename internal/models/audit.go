package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Admission audit actions.
const (
	AuditActionEnquiryConvert    = "ENQUIRY_CONVERT"
	AuditActionAdmissionRegister = "ADMISSION_REGISTER"
	AuditActionAdmissionStatus   = "ADMISSION_STATUS_CHANGE"
	AuditActionAdmissionFinalize = "ADMISSION_FINALIZE"
	AuditActionDocumentRequest   = "DOCUMENT_REQUEST"
	AuditActionDocumentSubmit    = "DOCUMENT_SUBMIT"
	AuditActionDocumentVerify    = "DOCUMENT_VERIFY"
	AuditActionDocumentReject    = "DOCUMENT_REJECT"
	AuditActionPhotoUpload       = "PHOTO_UPLOAD"
)

// AdmissionAuditLog is an append-only record of one state-changing action on an admission.
type AdmissionAuditLog struct {
	ID             string         `db:"id" json:"id"`
	AdmissionID    string         `db:"admission_id" json:"admission_id"`
	Action         string         `db:"action" json:"action"`
	PreviousStatus *string        `db:"previous_status" json:"previous_status,omitempty"`
	NewStatus      string         `db:"new_status" json:"new_status"`
	ActorID        *string        `db:"actor_id" json:"actor_id,omitempty"`
	Details        types.JSONText `db:"details" json:"details,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}
