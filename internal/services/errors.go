package services

import (
	"errors"
	"fmt"

	apperrors "github.com/proctorly/exam-engine/internal/errors"
)

// ===== COMMON SERVICE ERRORS =====

var (
	// Generic errors
	ErrNotFound         = errors.New("resource not found")
	ErrUnauthorized     = errors.New("unauthorized access")
	ErrForbidden        = errors.New("forbidden - insufficient permissions")
	ErrValidationFailed = errors.New("validation failed")
	ErrInternalError    = errors.New("internal server error")

	// Exam specific errors
	ErrExamNotFound     = errors.New("exam not found")
	ErrExamNotActive    = errors.New("exam is not active")
	ErrExamNoQuestions  = errors.New("exam has no questions")
	ErrExamAccessDenied = errors.New("access denied to exam")

	// Attempt specific errors
	ErrDuplicateAttempt = errors.New("exam already attempted")
	ErrAttemptInFlight  = errors.New("a submission for this attempt is already in progress")

	// Submission / grading errors
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrRunnerUnavailable  = errors.New("code execution environment unavailable")
)

// ===== CUSTOM ERROR TYPES =====

type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

type PermissionError struct {
	UserID     string `json:"user_id"`
	ResourceID uint   `json:"resource_id"`
	Resource   string `json:"resource"`
	Action     string `json:"action"`
	Reason     string `json:"reason"`
}

func (pe *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: user %s cannot %s %s %d - %s",
		pe.UserID, pe.Action, pe.Resource, pe.ResourceID, pe.Reason)
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

// ===== ERROR HELPERS =====

// asValidationErrors converts validator output into the service-level
// ValidationErrors type so handlers can map it to a 400. Unknown shapes pass
// through wrapped.
func asValidationErrors(err error) error {
	if ve := apperrors.ToValidationErrors(err); len(ve) > 0 {
		return ve
	}
	return fmt.Errorf("validation failed: %w", err)
}

// IsNotFound checks if error represents a "not found" condition.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrExamNotFound) ||
		errors.Is(err, ErrSubmissionNotFound)
}

// IsUnauthorized checks if error represents an "unauthorized" condition.
func IsUnauthorized(err error) bool {
	if errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrExamAccessDenied) {
		return true
	}
	var pe *PermissionError
	return errors.As(err, &pe)
}

// IsAttemptError checks if error is user-correctable and safe to surface.
func IsAttemptError(err error) bool {
	return errors.Is(err, ErrDuplicateAttempt) ||
		errors.Is(err, ErrExamNotActive) ||
		errors.Is(err, ErrAttemptInFlight)
}

// IsValidation checks if error represents a validation failure.
func IsValidation(err error) bool {
	if errors.Is(err, ErrValidationFailed) {
		return true
	}
	var ve apperrors.ValidationErrors
	return errors.As(err, &ve)
}
