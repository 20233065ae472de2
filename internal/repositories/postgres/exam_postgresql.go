package postgres

import (
	"context"

	"github.com/proctorly/exam-engine/internal/models"
	"github.com/proctorly/exam-engine/internal/repositories"
	"gorm.io/gorm"
)

type ExamPostgreSQL struct {
	db *gorm.DB
}

func NewExamPostgreSQL(db *gorm.DB) repositories.ExamRepository {
	return &ExamPostgreSQL{db: db}
}

func (e ExamPostgreSQL) Create(ctx context.Context, exam *models.Exam) error {
	return e.db.WithContext(ctx).Create(exam).Error
}

func (e ExamPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Exam, error) {
	var exam models.Exam
	if err := e.db.WithContext(ctx).First(&exam, id).Error; err != nil {
		return nil, err
	}
	return &exam, nil
}

func (e ExamPostgreSQL) GetByIDWithQuestions(ctx context.Context, id uint) (*models.Exam, error) {
	var exam models.Exam
	if err := e.db.WithContext(ctx).
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("questions.id ASC")
		}).
		First(&exam, id).Error; err != nil {
		return nil, err
	}
	exam.QuestionsCount = len(exam.Questions)
	return &exam, nil
}

func (e ExamPostgreSQL) Delete(ctx context.Context, id uint) error {
	return e.db.WithContext(ctx).Delete(&models.Exam{}, id).Error
}

func (e ExamPostgreSQL) List(ctx context.Context, filters repositories.ExamFilters) ([]*models.Exam, int64, error) {
	var exams []*models.Exam
	var total int64

	query := e.db.WithContext(ctx).Model(&models.Exam{})
	query = e.applyFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = e.applyPaginationAndSort(query, filters)

	if err := query.Preload("Creator").Find(&exams).Error; err != nil {
		return nil, 0, err
	}

	return exams, total, nil
}

func (e ExamPostgreSQL) GetByCreator(ctx context.Context, creatorID string, filters repositories.ExamFilters) ([]*models.Exam, int64, error) {
	filters.CreatedBy = &creatorID
	return e.List(ctx, filters)
}

func (e ExamPostgreSQL) IsOwner(ctx context.Context, examID uint, userID string) (bool, error) {
	var count int64
	if err := e.db.WithContext(ctx).
		Model(&models.Exam{}).
		Where("id = ? AND created_by = ?", examID, userID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (e ExamPostgreSQL) GetTeacherStats(ctx context.Context, creatorID string) (*repositories.TeacherStats, error) {
	var stats repositories.TeacherStats

	if err := e.db.WithContext(ctx).
		Model(&models.Exam{}).
		Where("created_by = ?", creatorID).
		Count(&stats.TotalExams).Error; err != nil {
		return nil, err
	}

	if err := e.db.WithContext(ctx).
		Model(&models.Submission{}).
		Joins("JOIN exams ON exams.id = submissions.exam_id").
		Where("exams.created_by = ?", creatorID).
		Distinct("submissions.student_id").
		Count(&stats.TotalStudents).Error; err != nil {
		return nil, err
	}

	return &stats, nil
}

func (e ExamPostgreSQL) applyFilters(query *gorm.DB, filters repositories.ExamFilters) *gorm.DB {
	if filters.CreatedBy != nil {
		query = query.Where("created_by = ?", *filters.CreatedBy)
	}
	if filters.OpenAt != nil {
		query = query.
			Where("start_time IS NULL OR start_time <= ?", *filters.OpenAt).
			Where("end_time IS NULL OR end_time >= ?", *filters.OpenAt)
	}
	if filters.DateFrom != nil {
		query = query.Where("created_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("created_at <= ?", *filters.DateTo)
	}
	return query
}

func (e ExamPostgreSQL) applyPaginationAndSort(query *gorm.DB, filters repositories.ExamFilters) *gorm.DB {
	sortBy := filters.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	sortOrder := filters.SortOrder
	if sortOrder != "asc" {
		sortOrder = "desc"
	}
	query = query.Order(sortBy + " " + sortOrder)

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}
	return query
}
