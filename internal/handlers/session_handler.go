package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/proctorly/exam-engine/internal/events"
	"github.com/proctorly/exam-engine/internal/services"
	"github.com/proctorly/exam-engine/internal/session"
	"github.com/proctorly/exam-engine/internal/utils"
)

// SessionHandler exposes the live proctored session over HTTP. The session
// itself lives in process memory; these endpoints are thin translations of
// client signals into state machine calls.
type SessionHandler struct {
	BaseHandler
	manager           *session.Manager
	examService       services.ExamService
	submissionService services.SubmissionService
	publisher         events.EventPublisher
}

func NewSessionHandler(
	manager *session.Manager,
	examService services.ExamService,
	submissionService services.SubmissionService,
	publisher events.EventPublisher,
	logger utils.Logger,
) *SessionHandler {
	return &SessionHandler{
		BaseHandler:       NewBaseHandler(logger),
		manager:           manager,
		examService:       examService,
		submissionService: submissionService,
		publisher:         publisher,
	}
}

type integritySignalRequest struct {
	Type string `json:"type" binding:"required,oneof=fullscreen_exit fullscreen_restore tab_switch"`
}

type answerRequest struct {
	QuestionID     uint    `json:"question_id" binding:"required"`
	SelectedOption *int    `json:"selected_option"`
	Code           *string `json:"code"`
}

type flagRequest struct {
	QuestionID uint `json:"question_id" binding:"required"`
}

type navigateRequest struct {
	Index *int `json:"index" binding:"required"`
}

// StartSession creates a lobby session for the caller. The guard's duplicate
// check still runs at submission; this pre-check just fails fast.
func (h *SessionHandler) StartSession(c *gin.Context) {
	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return
	}
	studentID, ok := h.currentUser(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Starting session", "exam_id", examID)

	ctx := c.Request.Context()
	exam, err := h.examService.GetForCandidate(ctx, examID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	now := time.Now()
	if !exam.IsOpenAt(now) {
		h.handleServiceError(c, services.ErrExamNotActive)
		return
	}
	duration := exam.EffectiveDuration(now)
	if duration <= 0 {
		h.handleServiceError(c, services.ErrExamNotActive)
		return
	}

	attempted, err := h.submissionService.HasSubmitted(ctx, examID, studentID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	if attempted {
		h.handleServiceError(c, services.ErrDuplicateAttempt)
		return
	}

	questions, err := h.examService.QuestionsForCandidate(ctx, examID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	questionIDs := make([]uint, len(questions))
	for i, q := range questions {
		questionIDs[i] = q.ID
	}

	cfg := session.Config{
		ExamID:          examID,
		StudentID:       studentID,
		QuestionIDs:     questionIDs,
		DurationSeconds: int(duration.Seconds()),
		Deadline:        exam.EndTime,
		Submit:          h.dispatchSubmission,
		OnViolation:     h.violationPublisher(examID, studentID),
		Logger:          utils.ToSlogLogger(h.logger),
	}

	sess, err := h.manager.Start(cfg)
	if err != nil {
		h.handleSessionError(c, err)
		return
	}

	c.JSON(http.StatusCreated, SuccessResponse{
		Message: "Session created",
		Data:    sess.Snapshot(),
	})
}

// EnterSession starts the countdown. The client calls this once the secure
// fullscreen context is granted.
func (h *SessionHandler) EnterSession(c *gin.Context) {
	sess, ok := h.liveSession(c)
	if !ok {
		return
	}

	// The submission dispatch must outlive this request.
	if err := sess.Enter(context.Background()); err != nil {
		h.handleSessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, sess.Snapshot())
}

// GetSession returns the current snapshot.
func (h *SessionHandler) GetSession(c *gin.Context) {
	sess, ok := h.liveSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

// WatchSession streams snapshots as server-sent events until the session
// terminates or the client disconnects.
func (h *SessionHandler) WatchSession(c *gin.Context) {
	sess, ok := h.liveSession(c)
	if !ok {
		return
	}

	updates, cancel := sess.Subscribe()
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case snap, open := <-updates:
			if !open {
				return false
			}
			c.SSEvent("snapshot", snap)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// ReportSignal records an integrity signal from the client monitor.
func (h *SessionHandler) ReportSignal(c *gin.Context) {
	sess, ok := h.liveSession(c)
	if !ok {
		return
	}

	var req integritySignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	var err error
	switch req.Type {
	case "fullscreen_exit":
		err = sess.SecureLost()
	case "fullscreen_restore":
		err = sess.SecureRestored()
	case "tab_switch":
		err = sess.VisibilityLost()
	}
	if err != nil {
		h.handleSessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, sess.Snapshot())
}

// SaveAnswer records an MCQ selection or a code draft.
func (h *SessionHandler) SaveAnswer(c *gin.Context) {
	sess, ok := h.liveSession(c)
	if !ok {
		return
	}

	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	var err error
	switch {
	case req.SelectedOption != nil:
		err = sess.SelectOption(req.QuestionID, *req.SelectedOption)
	case req.Code != nil:
		err = sess.EditCode(req.QuestionID, *req.Code)
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Either selected_option or code is required",
		})
		return
	}
	if err != nil {
		h.handleSessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, sess.Snapshot())
}

// ToggleFlag marks or unmarks a question for review.
func (h *SessionHandler) ToggleFlag(c *gin.Context) {
	sess, ok := h.liveSession(c)
	if !ok {
		return
	}

	var req flagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	if err := sess.ToggleFlag(req.QuestionID); err != nil {
		h.handleSessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, sess.Snapshot())
}

// Navigate moves the question cursor.
func (h *SessionHandler) Navigate(c *gin.Context) {
	sess, ok := h.liveSession(c)
	if !ok {
		return
	}

	var req navigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	if err := sess.Navigate(*req.Index); err != nil {
		h.handleSessionError(c, err)
		return
	}

	c.JSON(http.StatusOK, sess.Snapshot())
}

// RequestSubmit opens the confirmation step.
func (h *SessionHandler) RequestSubmit(c *gin.Context) {
	sess, ok := h.liveSession(c)
	if !ok {
		return
	}
	if err := sess.RequestSubmit(); err != nil {
		h.handleSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

// ConfirmSubmit finalizes the manual submission.
func (h *SessionHandler) ConfirmSubmit(c *gin.Context) {
	sess, ok := h.liveSession(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Confirming submission")

	if err := sess.ConfirmSubmit(); err != nil {
		h.handleSessionError(c, err)
		return
	}

	// The terminal transition is dispatched; the graded result is read back
	// through the review endpoint.
	<-sess.Done()
	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Submission dispatched",
	})
}

// CancelSubmit backs out of the confirmation step.
func (h *SessionHandler) CancelSubmit(c *gin.Context) {
	sess, ok := h.liveSession(c)
	if !ok {
		return
	}
	if err := sess.CancelSubmit(); err != nil {
		h.handleSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

// liveSession resolves the caller's session for the exam in the path. The 404
// is already written when the second return is false.
func (h *SessionHandler) liveSession(c *gin.Context) (*session.Session, bool) {
	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return nil, false
	}
	studentID, ok := h.currentUser(c)
	if !ok {
		return nil, false
	}
	sess, ok := h.manager.Get(examID, studentID)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "No live session for this exam",
		})
		return nil, false
	}
	return sess, true
}

// dispatchSubmission is the session's terminal callback into the guard.
func (h *SessionHandler) dispatchSubmission(ctx context.Context, outcome *session.Outcome) {
	req := &services.SubmitExamRequest{
		ExamID:         outcome.ExamID,
		Answers:        outcome.Answers,
		TabSwitchCount: outcome.ViolationCount,
		TimeSpent:      outcome.ElapsedSeconds,
	}
	result, err := h.submissionService.Submit(ctx, req, outcome.StudentID)
	if err != nil {
		h.logger.LogError(err, "session submission failed",
			"exam_id", outcome.ExamID,
			"student_id", outcome.StudentID,
			"reason", outcome.Reason)
		return
	}
	h.logger.Info("session submission graded",
		"exam_id", outcome.ExamID,
		"student_id", outcome.StudentID,
		"reason", outcome.Reason,
		"score", result.Score,
		"total_score", result.TotalScore)
}

func (h *SessionHandler) violationPublisher(examID uint, studentID string) func(session.ViolationKind, int) {
	if h.publisher == nil {
		return nil
	}
	return func(kind session.ViolationKind, count int) {
		event := events.NewExamEvent(events.EventIntegrityViolation, events.IntegrityViolationEvent{
			ExamID:    examID,
			StudentID: studentID,
			Kind:      string(kind),
			Count:     count,
			Max:       session.MaxWarnings,
		})
		if err := h.publisher.PublishExamEvent(context.Background(), event); err != nil {
			h.logger.Warn("violation event publish failed", "error", err, "exam_id", examID)
		}
	}
}
