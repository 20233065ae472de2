package repositories

import (
	"context"
	"time"

	"github.com/proctorly/exam-engine/internal/models"
)

// SubmissionRepository interface for submission operations.
//
// CreateIfAbsent is the atomic "insert if not exists" the submission guard
// relies on: it must fail with ErrDuplicateSubmission when a row already
// exists for the (exam, student) pair, never silently overwrite.
type SubmissionRepository interface {
	CreateIfAbsent(ctx context.Context, submission *models.Submission) error
	GetByID(ctx context.Context, id uint) (*models.Submission, error)
	GetByExamAndStudent(ctx context.Context, examID uint, studentID string) (*models.Submission, error)
	ExistsByExamAndStudent(ctx context.Context, examID uint, studentID string) (bool, error)

	List(ctx context.Context, filters SubmissionFilters) ([]*models.Submission, int64, error)
	GetByStudent(ctx context.Context, studentID string) ([]*models.Submission, error)
	GetRecentForTeacher(ctx context.Context, teacherID string, limit int) ([]*models.Submission, error)
}

// UserRepository interface for user operations (the engine is not the owner
// of user data; it mirrors verified identities).
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	Upsert(ctx context.Context, user *models.User) error
	UpdateLastLogin(ctx context.Context, id string, loginTime time.Time) error
}
