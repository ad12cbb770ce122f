package lifecycle

import (
	"fmt"
	"strings"

	"github.com/noah-isme/sma-admissions-api/internal/models"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
)

// Initial statuses per creation path.
const (
	InitialStatusDirect    = models.AdmissionStatusRegistered
	InitialStatusConverted = models.AdmissionStatusPendingReview
)

// IsTerminal reports whether an admission can no longer change.
func IsTerminal(status models.AdmissionStatus) bool {
	switch status {
	case models.AdmissionStatusApproved, models.AdmissionStatusRejected, models.AdmissionStatusCancelled:
		return true
	}
	return false
}

// ValidAdmissionStatus reports whether status belongs to the admission lifecycle.
func ValidAdmissionStatus(status models.AdmissionStatus) bool {
	switch status {
	case models.AdmissionStatusRegistered,
		models.AdmissionStatusPendingReview,
		models.AdmissionStatusVerified,
		models.AdmissionStatusApproved,
		models.AdmissionStatusRejected,
		models.AdmissionStatusCancelled:
		return true
	}
	return false
}

// NonTerminalAdmissionStatuses lists the states from which review actions are allowed.
func NonTerminalAdmissionStatuses() []models.AdmissionStatus {
	return []models.AdmissionStatus{
		models.AdmissionStatusRegistered,
		models.AdmissionStatusPendingReview,
		models.AdmissionStatusVerified,
	}
}

// CanSetAdmissionStatus checks a review transition. APPROVED is excluded here
// because it is reachable only through finalize.
func CanSetAdmissionStatus(current, next models.AdmissionStatus, reason string) error {
	if IsTerminal(current) {
		return appErrors.Clone(appErrors.ErrFinalized, fmt.Sprintf("admission already %s", strings.ToLower(string(current))))
	}
	if !ValidAdmissionStatus(next) {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown admission status %q", next))
	}
	if next == models.AdmissionStatusApproved {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "use the finalize action to approve an admission")
	}
	if next == current {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "admission already in requested status")
	}
	if next == models.AdmissionStatusRejected && strings.TrimSpace(reason) == "" {
		return appErrors.Clone(appErrors.ErrValidation, "reason is required when rejecting an admission")
	}
	return nil
}

// CanFinalize checks that an admission may be approved given its compliance.
func CanFinalize(current models.AdmissionStatus, compliance Compliance) error {
	if IsTerminal(current) {
		return appErrors.Clone(appErrors.ErrFinalized, fmt.Sprintf("admission already %s", strings.ToLower(string(current))))
	}
	if !compliance.Cleared {
		if compliance.Total == 0 {
			return appErrors.Clone(appErrors.ErrComplianceBlocked, "admission has no document requirements")
		}
		return appErrors.Clone(appErrors.ErrComplianceBlocked, fmt.Sprintf("%d mandatory document(s) not verified", compliance.Outstanding))
	}
	return nil
}

// CanModifyDocuments checks that an admission still accepts document changes.
func CanModifyDocuments(current models.AdmissionStatus) error {
	if IsTerminal(current) {
		return appErrors.Clone(appErrors.ErrFinalized, fmt.Sprintf("admission already %s", strings.ToLower(string(current))))
	}
	return nil
}

// CanVerifyDocument checks a verification outcome for a requirement.
func CanVerifyDocument(outcome models.DocumentStatus, reason string) error {
	switch outcome {
	case models.DocumentStatusVerified:
		return nil
	case models.DocumentStatusRejected:
		if strings.TrimSpace(reason) == "" {
			return appErrors.Clone(appErrors.ErrValidation, "reason is required when rejecting a document")
		}
		return nil
	default:
		return appErrors.Clone(appErrors.ErrValidation, "outcome must be VERIFIED or REJECTED")
	}
}

// CanAttachDocument checks that a requirement accepts a new file.
func CanAttachDocument(status models.DocumentStatus) error {
	if status == models.DocumentStatusVerified {
		return appErrors.Clone(appErrors.ErrConflict, "document already verified")
	}
	return nil
}
