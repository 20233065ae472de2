package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/proctorly/exam-engine/internal/services"
	"github.com/proctorly/exam-engine/internal/utils"
)

type SubmissionHandler struct {
	BaseHandler
	submissionService services.SubmissionService
}

func NewSubmissionHandler(submissionService services.SubmissionService, logger utils.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		BaseHandler:       NewBaseHandler(logger),
		submissionService: submissionService,
	}
}

// SubmitExam runs the guard directly, without a live session. Clients that
// lost their session mid-exam can still land their answers through here; the
// guard enforces the same single-attempt and schedule rules either way.
func (h *SubmissionHandler) SubmitExam(c *gin.Context) {
	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return
	}
	studentID, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req services.SubmitExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	req.ExamID = examID

	h.LogRequest(c, "Submitting exam", "exam_id", examID)

	result, err := h.submissionService.Submit(c.Request.Context(), &req, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// GetReview returns the graded breakdown of the caller's submission,
// including correct answers. Available only after the attempt is terminal.
func (h *SubmissionHandler) GetReview(c *gin.Context) {
	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return
	}
	studentID, ok := h.currentUser(c)
	if !ok {
		return
	}

	review, err := h.submissionService.GetReview(c.Request.Context(), examID, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, review)
}
