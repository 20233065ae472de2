package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proctorly/exam-engine/internal/models"
	"github.com/proctorly/exam-engine/internal/services"
	"github.com/proctorly/exam-engine/internal/utils"
)

type stubExamService struct {
	services.ExamService
	full      *models.Exam
	candidate *models.Exam
}

func (s *stubExamService) GetByID(_ context.Context, _ uint) (*models.Exam, error) {
	return s.full, nil
}

func (s *stubExamService) GetForCandidate(_ context.Context, _ uint) (*models.Exam, error) {
	return s.candidate, nil
}

func performGetExam(svc services.ExamService, role models.UserRole) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	h := NewExamHandler(svc, utils.NewValidator(), utils.NewDevelopmentLogger())

	router := gin.New()
	router.GET("/exams/:id", func(c *gin.Context) {
		c.Set("user_id", "user-1")
		c.Set("user_role", role)
		h.GetExam(c)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/exams/1", nil)
	router.ServeHTTP(rec, req)
	return rec
}

func TestGetExamViewPerRole(t *testing.T) {
	correct := 2
	svc := &stubExamService{
		full: &models.Exam{ID: 1, Title: "Algorithms Midterm", Questions: []models.Question{
			{ID: 1, ExamID: 1, Type: models.QuestionMCQ, Marks: 5, CorrectOption: &correct},
		}},
		candidate: &models.Exam{ID: 1, Title: "Algorithms Midterm", QuestionsCount: 1},
	}

	t.Run("student never sees the answer key", func(t *testing.T) {
		rec := performGetExam(svc, models.RoleStudent)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "correct_option")
		assert.NotContains(t, rec.Body.String(), "test_cases")
		assert.Contains(t, rec.Body.String(), `"questions_count":1`)
	})

	t.Run("teacher gets the full exam", func(t *testing.T) {
		rec := performGetExam(svc, models.RoleTeacher)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"correct_option":2`)
	})
}
