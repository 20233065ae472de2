package repositories

import (
	"context"

	"github.com/proctorly/exam-engine/internal/models"
)

// ExamRepository interface for exam operations.
type ExamRepository interface {
	Create(ctx context.Context, exam *models.Exam) error
	GetByID(ctx context.Context, id uint) (*models.Exam, error)
	GetByIDWithQuestions(ctx context.Context, id uint) (*models.Exam, error)
	Delete(ctx context.Context, id uint) error // Soft delete

	List(ctx context.Context, filters ExamFilters) ([]*models.Exam, int64, error)
	GetByCreator(ctx context.Context, creatorID string, filters ExamFilters) ([]*models.Exam, int64, error)

	// Permission checks
	IsOwner(ctx context.Context, examID uint, userID string) (bool, error)

	// Teacher dashboard
	GetTeacherStats(ctx context.Context, creatorID string) (*TeacherStats, error)
}

// QuestionRepository interface for question operations. The engine consumes
// the ordered question list; authoring beyond creation is the question-bank
// collaborator's concern.
type QuestionRepository interface {
	CreateBatch(ctx context.Context, questions []models.Question) error
	GetByExam(ctx context.Context, examID uint) ([]models.Question, error)
	GetByExamForCandidate(ctx context.Context, examID uint) ([]models.Question, error)
	CountByExam(ctx context.Context, examID uint) (int64, error)
}
