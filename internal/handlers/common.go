package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/proctorly/exam-engine/internal/services"
	"github.com/proctorly/exam-engine/internal/session"
	"github.com/proctorly/exam-engine/internal/utils"
)

// ===== COMMON RESPONSE STRUCTURES =====

// ErrorResponse represents an error response
type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ===== BASE HANDLER STRUCT =====

// BaseHandler provides common logging functionality for all handlers
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{
		logger: logger,
	}
}

// LogRequest logs incoming HTTP requests with context information
func (h *BaseHandler) LogRequest(c *gin.Context, message string, additionalFields ...interface{}) {
	fields := []interface{}{
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"remote_addr", c.ClientIP(),
		"request_id", c.GetHeader("X-Request-ID"),
		"user_id", h.extractUserID(c),
	}
	fields = append(fields, additionalFields...)

	h.logger.Info(message, fields...)
}

// LogError logs error details with context information
func (h *BaseHandler) LogError(c *gin.Context, err error, message string, additionalFields ...interface{}) {
	fields := []interface{}{
		"request_id", c.GetHeader("X-Request-ID"),
		"user_id", h.extractUserID(c),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
	}
	fields = append(fields, additionalFields...)

	h.logger.LogError(err, message, fields...)
}

func (h *BaseHandler) extractUserID(c *gin.Context) interface{} {
	if userID, exists := c.Get("user_id"); exists {
		return userID
	}
	return nil
}

// parseIDParam parses a numeric path parameter and writes the 400 itself;
// a zero return means the response is already committed.
func (h *BaseHandler) parseIDParam(c *gin.Context, param string) uint {
	idStr := c.Param(param)
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
			Details: "must be a positive integer",
		})
		return 0
	}
	return uint(id)
}

// currentUser pulls the verified identity the auth middleware stored.
func (h *BaseHandler) currentUser(c *gin.Context) (string, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return "", false
	}
	return userID.(string), true
}

// handleServiceError maps service errors to HTTP responses.
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrors,
		})
		return
	}

	var permissionError *services.PermissionError
	if errors.As(err, &permissionError) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied",
			Details: map[string]interface{}{
				"resource": permissionError.Resource,
				"action":   permissionError.Action,
				"reason":   permissionError.Reason,
			},
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrExamNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Exam not found",
		})
	case errors.Is(err, services.ErrSubmissionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Submission not found",
		})
	case errors.Is(err, services.ErrExamNotActive):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Exam is not active",
			Code:    "EXAM_NOT_ACTIVE",
		})
	case errors.Is(err, services.ErrExamNoQuestions):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: "Exam has no questions",
		})
	case errors.Is(err, services.ErrDuplicateAttempt):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Exam already attempted",
			Code:    "DUPLICATE_ATTEMPT",
		})
	case errors.Is(err, services.ErrAttemptInFlight):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "A submission for this exam is already in progress",
			Code:    "ATTEMPT_IN_FLIGHT",
		})
	case errors.Is(err, services.ErrRunnerUnavailable):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Message: "Code execution environment unavailable",
		})
	case errors.Is(err, services.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
	case errors.Is(err, services.ErrForbidden), errors.Is(err, services.ErrExamAccessDenied):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied",
		})
	default:
		h.LogError(c, err, "Unhandled service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}

// handleSessionError maps session state machine errors to HTTP responses.
func (h *BaseHandler) handleSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrSessionExists):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "A live session already exists for this exam",
			Code:    "SESSION_EXISTS",
		})
	case errors.Is(err, session.ErrSessionInsecure):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Secure mode lost; restore fullscreen to continue",
			Code:    "SESSION_INSECURE",
		})
	case errors.Is(err, session.ErrSessionTerminated), errors.Is(err, session.ErrSessionNotActive):
		c.JSON(http.StatusGone, ErrorResponse{
			Message: "Session is no longer active",
		})
	case errors.Is(err, session.ErrWindowClosed):
		c.JSON(http.StatusGone, ErrorResponse{
			Message: "The exam window has closed",
			Code:    "EXAM_WINDOW_CLOSED",
		})
	case errors.Is(err, session.ErrNotInLobby):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Session already entered",
		})
	case errors.Is(err, session.ErrNoPendingSubmit):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "No submission awaiting confirmation",
		})
	case errors.Is(err, session.ErrUnknownQuestion):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Question does not belong to this exam",
		})
	case errors.Is(err, session.ErrInvalidNavigation):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Question index out of range",
		})
	default:
		h.LogError(c, err, "Unhandled session error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
