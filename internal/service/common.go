package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/sma-admissions-api/internal/models"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
)

// Actor identifies who is performing an operation.
type Actor struct {
	ID   string
	Role models.UserRole
}

// ActorFromClaims builds an Actor from validated token claims.
func ActorFromClaims(claims *models.JWTClaims) Actor {
	if claims == nil {
		return Actor{}
	}
	return Actor{ID: claims.UserID, Role: claims.Role}
}

// IsStaff reports whether the actor may review admissions.
func (a Actor) IsStaff() bool {
	return a.Role.IsStaff()
}

func (a Actor) idPtr() *string {
	if a.ID == "" {
		return nil
	}
	id := a.ID
	return &id
}

// owns reports whether a parent actor created the record identified by owner.
func (a Actor) owns(owner *string) bool {
	return owner != nil && a.ID != "" && *owner == a.ID
}

func (a Actor) canAccess(owner *string) bool {
	return a.IsStaff() || a.owns(owner)
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(context.Context) {}

func internalError(err error, op string) error {
	return appErrors.Wrap(fmt.Errorf("%s: %w", op, err), appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
}

// lookupError maps a missing row to a not-found error for entity.
func lookupError(err error, entity, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, entity+" not found")
	}
	return internalError(err, op)
}

// mutationError maps a guard miss to a conflict the caller resolves by re-reading.
func mutationError(err error, entity, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrConflict, entity+" changed, refresh before retrying")
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return internalError(err, op)
}

func validationError(err error, message string) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		message = fmt.Sprintf("%s: %s failed on %s", message, verrs[0].Field(), verrs[0].Tag())
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}

func newAuditEntry(admissionID, action string, previous *string, next string, actor Actor, details map[string]interface{}) *models.AdmissionAuditLog {
	entry := &models.AdmissionAuditLog{
		ID:             uuid.NewString(),
		AdmissionID:    admissionID,
		Action:         action,
		PreviousStatus: previous,
		NewStatus:      next,
		ActorID:        actor.idPtr(),
		CreatedAt:      time.Now().UTC(),
	}
	if len(details) > 0 {
		if raw, err := json.Marshal(details); err == nil {
			entry.Details = types.JSONText(raw)
		}
	}
	return entry
}

func strPtr(v string) *string {
	return &v
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func parseDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "dateOfBirth must be YYYY-MM-DD")
	}
	return &t, nil
}

func normalisePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
