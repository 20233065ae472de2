package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/proctorly/exam-engine/internal/models"
	"github.com/proctorly/exam-engine/internal/services"
	"github.com/proctorly/exam-engine/internal/utils"
)

type ExamHandler struct {
	BaseHandler
	examService services.ExamService
	validator   *utils.Validator
}

func NewExamHandler(examService services.ExamService, validator *utils.Validator, logger utils.Logger) *ExamHandler {
	return &ExamHandler{
		BaseHandler: NewBaseHandler(logger),
		examService: examService,
		validator:   validator,
	}
}

// CreateExam creates an exam with its questions in one shot.
func (h *ExamHandler) CreateExam(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req services.CreateExamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Creating exam", "title", req.Title)

	exam, err := h.examService.Create(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, SuccessResponse{
		Message: "Exam created",
		Data:    exam,
	})
}

// ListExams returns the role-appropriate listing: students see open exams
// annotated with their attempt state, teachers see the exams they created.
func (h *ExamHandler) ListExams(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	role, _ := c.Get("user_role")
	if role == models.RoleTeacher || role == models.RoleAdmin {
		exams, err := h.examService.ListForTeacher(c.Request.Context(), userID)
		if err != nil {
			h.handleServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, exams)
		return
	}

	views, err := h.examService.ListForStudent(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

// GetExam returns a single exam. Teachers get the full view with questions;
// candidates get the metadata only, with no answer keys or hidden test cases
// attached. Question data for candidates flows exclusively through the
// stripped questions endpoint.
func (h *ExamHandler) GetExam(c *gin.Context) {
	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return
	}

	var (
		exam *models.Exam
		err  error
	)
	role, _ := c.Get("user_role")
	if role == models.RoleTeacher || role == models.RoleAdmin {
		exam, err = h.examService.GetByID(c.Request.Context(), examID)
	} else {
		exam, err = h.examService.GetForCandidate(c.Request.Context(), examID)
	}
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, exam)
}

// GetExamQuestions returns the candidate view of an exam's questions, with
// correct options and hidden test cases stripped.
func (h *ExamHandler) GetExamQuestions(c *gin.Context) {
	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return
	}

	questions, err := h.examService.QuestionsForCandidate(c.Request.Context(), examID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, questions)
}

// DeleteExam removes an exam. Only the creator (or an admin) may delete.
func (h *ExamHandler) DeleteExam(c *gin.Context) {
	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return
	}
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Deleting exam", "exam_id", examID)

	if err := h.examService.Delete(c.Request.Context(), examID, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Exam deleted",
	})
}

// GetTeacherStats returns the dashboard aggregates for the caller.
func (h *ExamHandler) GetTeacherStats(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}

	stats, err := h.examService.GetTeacherStats(c.Request.Context(), userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
