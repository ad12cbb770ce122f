package lifecycle

import (
	"fmt"

	"github.com/noah-isme/sma-admissions-api/internal/models"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
)

var enquiryOrder = map[models.EnquiryStatus]int{
	models.EnquiryStatusActive:     0,
	models.EnquiryStatusVerified:   1,
	models.EnquiryStatusInProgress: 2,
	models.EnquiryStatusConverted:  3,
}

// ValidEnquiryStatus reports whether status belongs to the enquiry lifecycle.
func ValidEnquiryStatus(status models.EnquiryStatus) bool {
	_, ok := enquiryOrder[status]
	return ok
}

// EnquiryStatuses returns the lifecycle states in order.
func EnquiryStatuses() []models.EnquiryStatus {
	return []models.EnquiryStatus{
		models.EnquiryStatusActive,
		models.EnquiryStatusVerified,
		models.EnquiryStatusInProgress,
		models.EnquiryStatusConverted,
	}
}

// CanSetEnquiryStatus checks a manual status change. Any non-terminal state may
// move to any other non-terminal state; CONVERTED is reachable only via conversion.
func CanSetEnquiryStatus(current, next models.EnquiryStatus) error {
	if current == models.EnquiryStatusConverted {
		return appErrors.Clone(appErrors.ErrFinalized, "enquiry already converted")
	}
	if !ValidEnquiryStatus(next) {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown enquiry status %q", next))
	}
	if next == models.EnquiryStatusConverted {
		return appErrors.Clone(appErrors.ErrInvalidTransition, "use the convert action to convert an enquiry")
	}
	return nil
}

// CanConvertEnquiry checks that an enquiry may be promoted to an admission.
func CanConvertEnquiry(current models.EnquiryStatus) error {
	switch current {
	case models.EnquiryStatusVerified:
		return nil
	case models.EnquiryStatusConverted:
		return appErrors.Clone(appErrors.ErrFinalized, "enquiry already converted")
	default:
		return appErrors.Clone(appErrors.ErrInvalidTransition, "enquiry must be VERIFIED before conversion")
	}
}
