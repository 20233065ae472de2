package repositories

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ===== SHARED FILTER STRUCTS =====

type ExamFilters struct {
	CreatedBy *string    `json:"created_by"`
	OpenAt    *time.Time `json:"open_at"`
	DateFrom  *time.Time `json:"date_from"`
	DateTo    *time.Time `json:"date_to"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
	SortBy    string     `json:"sort_by"`    // "created_at", "title"
	SortOrder string     `json:"sort_order"` // "asc", "desc"
}

type SubmissionFilters struct {
	ExamID    *uint      `json:"exam_id"`
	StudentID *string    `json:"student_id"`
	DateFrom  *time.Time `json:"date_from"`
	DateTo    *time.Time `json:"date_to"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
	SortBy    string     `json:"sort_by"`
	SortOrder string     `json:"sort_order"`
}

// ===== SHARED STATISTICS STRUCTS =====

// TeacherStats backs the teacher dashboard: exam count, distinct candidates,
// and the latest activity across the teacher's exams.
type TeacherStats struct {
	TotalExams    int64 `json:"total_exams"`
	TotalStudents int64 `json:"total_students"`
}

// ===== AGGREGATE REPOSITORY =====

// Repository bundles the per-entity repositories behind one dependency.
type Repository interface {
	Exam() ExamRepository
	Question() QuestionRepository
	Submission() SubmissionRepository
	User() UserRepository
}

// ErrDuplicateSubmission is returned by CreateIfAbsent when the unique
// (exam, student) constraint already holds a row.
var ErrDuplicateSubmission = errors.New("submission already exists for exam and student")

// IsNotFoundError reports whether err is the storage layer's record-missing error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
