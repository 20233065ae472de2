package errors

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("title", "is required", "")

	assert.Equal(t, "title", err.Field)
	assert.Equal(t, "is required", err.Message)
	assert.Equal(t, "", err.Value)
	assert.Equal(t, "validation error on field 'title': is required", err.Error())
}

func TestNewValidationErrorWithRule(t *testing.T) {
	err := NewValidationErrorWithRule("duration", "must be at least 5", "min", 2)

	assert.Equal(t, "min", err.Rule)
	assert.Equal(t, "duration", err.Field)
	assert.Equal(t, 2, err.Value)
}

func TestValidationErrorsMessage(t *testing.T) {
	var errs ValidationErrors
	assert.Equal(t, "validation failed", errs.Error())

	errs = append(errs, *NewValidationError("title", "is required", nil))
	assert.Equal(t, "validation failed: title is required", errs.Error())

	errs = append(errs, *NewValidationError("duration", "must be at least 5", nil))
	assert.Equal(t, "validation failed: 2 field errors", errs.Error())
}

func TestToValidationErrors(t *testing.T) {
	type payload struct {
		Title    string `validate:"required"`
		Duration int    `validate:"min=5"`
	}

	err := validator.New().Struct(payload{Duration: 2})
	require.Error(t, err)

	errs := ToValidationErrors(err)
	require.Len(t, errs, 2)

	assert.Equal(t, "Title", errs[0].Field)
	assert.Equal(t, "required", errs[0].Rule)
	assert.Equal(t, "is required", errs[0].Message)

	assert.Equal(t, "Duration", errs[1].Field)
	assert.Equal(t, "min", errs[1].Rule)
	assert.Equal(t, "must be at least 5", errs[1].Message)

	// Non-validator errors translate to nothing rather than panicking.
	assert.Empty(t, ToValidationErrors(assert.AnError))
}
