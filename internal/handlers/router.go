package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/proctorly/exam-engine/internal/events"
	"github.com/proctorly/exam-engine/internal/models"
	"github.com/proctorly/exam-engine/internal/services"
	"github.com/proctorly/exam-engine/internal/session"
	"github.com/proctorly/exam-engine/internal/utils"
)

type HandlerManager struct {
	authenticator     *Authenticator
	examHandler       *ExamHandler
	sessionHandler    *SessionHandler
	submissionHandler *SubmissionHandler
}

func NewHandlerManager(
	authenticator *Authenticator,
	examService services.ExamService,
	submissionService services.SubmissionService,
	sessionManager *session.Manager,
	publisher events.EventPublisher,
	validator *utils.Validator,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		authenticator:     authenticator,
		examHandler:       NewExamHandler(examService, validator, logger),
		sessionHandler:    NewSessionHandler(sessionManager, examService, submissionService, publisher, logger),
		submissionHandler: NewSubmissionHandler(submissionService, logger),
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "exam-engine",
		})
	})

	v1 := router.Group("/api/v1")
	v1.Use(hm.authenticator.Middleware())
	{
		exams := v1.Group("/exams")
		{
			exams.GET("", hm.examHandler.ListExams)
			exams.GET("/:id", hm.examHandler.GetExam)
			exams.GET("/:id/questions", hm.examHandler.GetExamQuestions)

			teacherOnly := RequireRole(models.RoleTeacher, models.RoleAdmin)
			exams.POST("", teacherOnly, hm.examHandler.CreateExam)
			exams.DELETE("/:id", teacherOnly, hm.examHandler.DeleteExam)

			// Live session lifecycle
			sessions := exams.Group("/:id/session", RequireRole(models.RoleStudent))
			{
				sessions.POST("", hm.sessionHandler.StartSession)
				sessions.POST("/enter", hm.sessionHandler.EnterSession)
				sessions.GET("", hm.sessionHandler.GetSession)
				sessions.GET("/watch", hm.sessionHandler.WatchSession)
				sessions.POST("/signals", hm.sessionHandler.ReportSignal)
				sessions.POST("/answers", hm.sessionHandler.SaveAnswer)
				sessions.POST("/flags", hm.sessionHandler.ToggleFlag)
				sessions.POST("/navigate", hm.sessionHandler.Navigate)
				sessions.POST("/submit", hm.sessionHandler.RequestSubmit)
				sessions.POST("/submit/confirm", hm.sessionHandler.ConfirmSubmit)
				sessions.POST("/submit/cancel", hm.sessionHandler.CancelSubmit)
			}

			// Terminal submission and review
			exams.POST("/:id/submissions", RequireRole(models.RoleStudent), hm.submissionHandler.SubmitExam)
			exams.GET("/:id/submissions/review", hm.submissionHandler.GetReview)
		}

		v1.GET("/teacher/stats", RequireRole(models.RoleTeacher, models.RoleAdmin), hm.examHandler.GetTeacherStats)
	}
}
