package postgres

import (
	"github.com/proctorly/exam-engine/internal/repositories"
	"gorm.io/gorm"
)

type repository struct {
	exam       repositories.ExamRepository
	question   repositories.QuestionRepository
	submission repositories.SubmissionRepository
	user       repositories.UserRepository
}

// NewRepository wires every entity repository over one gorm connection.
func NewRepository(db *gorm.DB) repositories.Repository {
	return &repository{
		exam:       NewExamPostgreSQL(db),
		question:   NewQuestionPostgreSQL(db),
		submission: NewSubmissionPostgreSQL(db),
		user:       NewUserPostgreSQL(db),
	}
}

func (r *repository) Exam() repositories.ExamRepository             { return r.exam }
func (r *repository) Question() repositories.QuestionRepository     { return r.question }
func (r *repository) Submission() repositories.SubmissionRepository { return r.submission }
func (r *repository) User() repositories.UserRepository             { return r.user }
