package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/proctorly/exam-engine/internal/cache"
	"github.com/proctorly/exam-engine/internal/models"
	"github.com/proctorly/exam-engine/internal/repositories"
	"github.com/proctorly/exam-engine/internal/utils"
	"gorm.io/datatypes"
)

const questionCacheTTL = 5 * time.Minute

// ExamService covers the exam surface the engine needs around the core:
// creation with inline questions, candidate/teacher listings, and the
// question feed a session consumes.
type ExamService interface {
	Create(ctx context.Context, req *CreateExamRequest, creatorID string) (*models.Exam, error)
	// GetByID returns the full exam including its questions with answer
	// keys. Owner and teacher view only; candidates go through
	// GetForCandidate.
	GetByID(ctx context.Context, id uint) (*models.Exam, error)
	// GetForCandidate returns the exam metadata without its questions, so
	// the answer key and hidden test cases never reach a candidate.
	GetForCandidate(ctx context.Context, id uint) (*models.Exam, error)
	Delete(ctx context.Context, id uint, userID string) error

	ListForStudent(ctx context.Context, studentID string) ([]*StudentExamView, error)
	ListForTeacher(ctx context.Context, teacherID string) ([]*models.Exam, error)
	GetTeacherStats(ctx context.Context, teacherID string) (*TeacherStatsResponse, error)

	// QuestionsForCandidate returns the exam's questions with answer keys
	// stripped, cached between session entries.
	QuestionsForCandidate(ctx context.Context, examID uint) ([]models.Question, error)
}

// CreateExamRequest creates an exam together with its question bank.
type CreateExamRequest struct {
	Title           string                  `json:"title" validate:"required,min=1,max=200"`
	Description     *string                 `json:"description" validate:"omitempty,max=1000"`
	Duration        int                     `json:"duration" validate:"required,min=5,max=300"`
	StartTime       *time.Time              `json:"start_time"`
	EndTime         *time.Time              `json:"end_time"`
	TotalMarks      int                     `json:"total_marks" validate:"min=0"`
	NegativeMarking bool                    `json:"negative_marking"`
	Questions       []CreateQuestionRequest `json:"questions" validate:"dive"`
}

type CreateQuestionRequest struct {
	Type  models.QuestionType `json:"question_type" validate:"omitempty,question_type"`
	Marks int                 `json:"marks" validate:"min=0"`

	Text          *string  `json:"text"`
	Options       []string `json:"options" validate:"omitempty,min=2,max=6"`
	CorrectOption *int     `json:"correct_option"`

	ProblemDescription *string           `json:"problem_description"`
	InputFormat        *string           `json:"input_format"`
	OutputFormat       *string           `json:"output_format"`
	SampleInput        *string           `json:"sample_input"`
	SampleOutput       *string           `json:"sample_output"`
	TestCases          []models.TestCase `json:"test_cases"`
}

// StudentExamView merges an exam with the student's own attempt status.
type StudentExamView struct {
	Exam        *models.Exam `json:"exam"`
	IsAttempted bool         `json:"is_attempted"`
	Score       *int         `json:"score,omitempty"`
	TotalScore  *int         `json:"total_score,omitempty"`
}

// TeacherStatsResponse backs the teacher dashboard.
type TeacherStatsResponse struct {
	TotalExams     int64                `json:"total_exams"`
	TotalStudents  int64                `json:"total_students"`
	RecentActivity []*models.Submission `json:"recent_activity"`
}

type examService struct {
	repo      repositories.Repository
	cache     cache.CacheService
	logger    *slog.Logger
	validator *utils.Validator
}

func NewExamService(repo repositories.Repository, cacheService cache.CacheService, logger *slog.Logger, validator *utils.Validator) ExamService {
	return &examService{
		repo:      repo,
		cache:     cacheService,
		logger:    logger,
		validator: validator,
	}
}

func (s *examService) Create(ctx context.Context, req *CreateExamRequest, creatorID string) (*models.Exam, error) {
	if creatorID == "" {
		return nil, ErrUnauthorized
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, asValidationErrors(err)
	}

	questions, err := buildQuestions(req.Questions)
	if err != nil {
		return nil, err
	}

	// A total supplied without per-question marks is distributed evenly,
	// remainder on the last question.
	totalMarks := req.TotalMarks
	if totalMarks > 0 && !hasExplicitMarks(req.Questions) {
		models.DistributeMarks(questions, totalMarks)
	} else {
		totalMarks = 0
		for _, q := range questions {
			totalMarks += q.Marks
		}
	}

	exam := &models.Exam{
		Title:           req.Title,
		Description:     req.Description,
		Duration:        req.Duration,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		TotalMarks:      totalMarks,
		NegativeMarking: req.NegativeMarking,
		CreatedBy:       creatorID,
	}

	if err := s.repo.Exam().Create(ctx, exam); err != nil {
		return nil, fmt.Errorf("failed to create exam: %w", err)
	}

	for i := range questions {
		questions[i].ExamID = exam.ID
	}
	if err := s.repo.Question().CreateBatch(ctx, questions); err != nil {
		return nil, fmt.Errorf("failed to create questions: %w", err)
	}

	exam.Questions = questions
	exam.QuestionsCount = len(questions)

	s.logger.Info("Exam created",
		"exam_id", exam.ID,
		"creator_id", creatorID,
		"questions", len(questions),
		"total_marks", exam.TotalMarks)

	return exam, nil
}

func (s *examService) GetByID(ctx context.Context, id uint) (*models.Exam, error) {
	exam, err := s.repo.Exam().GetByIDWithQuestions(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}
	return exam, nil
}

func (s *examService) GetForCandidate(ctx context.Context, id uint) (*models.Exam, error) {
	exam, err := s.repo.Exam().GetByID(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	count, err := s.repo.Question().CountByExam(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to count questions: %w", err)
	}

	// Copy so a repository that shares the stored value is never mutated.
	view := *exam
	view.Questions = nil
	view.QuestionsCount = int(count)
	return &view, nil
}

func (s *examService) Delete(ctx context.Context, id uint, userID string) error {
	owner, err := s.repo.Exam().IsOwner(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("failed to check exam ownership: %w", err)
	}
	if !owner {
		return NewPermissionError(userID, id, "exam", "delete", "not the exam owner")
	}

	if err := s.repo.Exam().Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete exam: %w", err)
	}

	if err := s.cache.Delete(ctx, questionCacheKey(id)); err != nil {
		s.logger.Warn("failed to evict question cache", "exam_id", id, "error", err)
	}
	return nil
}

func (s *examService) ListForStudent(ctx context.Context, studentID string) ([]*StudentExamView, error) {
	if studentID == "" {
		return nil, ErrUnauthorized
	}

	exams, _, err := s.repo.Exam().List(ctx, repositories.ExamFilters{})
	if err != nil {
		return nil, fmt.Errorf("failed to list exams: %w", err)
	}

	submissions, err := s.repo.Submission().GetByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load student submissions: %w", err)
	}
	byExam := make(map[uint]*models.Submission, len(submissions))
	for _, sub := range submissions {
		byExam[sub.ExamID] = sub
	}

	views := make([]*StudentExamView, 0, len(exams))
	for _, exam := range exams {
		view := &StudentExamView{Exam: exam}
		if sub, ok := byExam[exam.ID]; ok {
			view.IsAttempted = true
			view.Score = &sub.Score
			view.TotalScore = &sub.TotalScore
		}
		views = append(views, view)
	}
	return views, nil
}

func (s *examService) ListForTeacher(ctx context.Context, teacherID string) ([]*models.Exam, error) {
	exams, _, err := s.repo.Exam().GetByCreator(ctx, teacherID, repositories.ExamFilters{})
	if err != nil {
		return nil, fmt.Errorf("failed to list teacher exams: %w", err)
	}
	return exams, nil
}

func (s *examService) GetTeacherStats(ctx context.Context, teacherID string) (*TeacherStatsResponse, error) {
	stats, err := s.repo.Exam().GetTeacherStats(ctx, teacherID)
	if err != nil {
		return nil, fmt.Errorf("failed to load teacher stats: %w", err)
	}

	recent, err := s.repo.Submission().GetRecentForTeacher(ctx, teacherID, 5)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent submissions: %w", err)
	}

	return &TeacherStatsResponse{
		TotalExams:     stats.TotalExams,
		TotalStudents:  stats.TotalStudents,
		RecentActivity: recent,
	}, nil
}

func (s *examService) QuestionsForCandidate(ctx context.Context, examID uint) ([]models.Question, error) {
	key := questionCacheKey(examID)

	var cached []models.Question
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("question cache read failed", "exam_id", examID, "error", err)
	}

	questions, err := s.repo.Question().GetByExamForCandidate(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrExamNoQuestions
	}

	if err := s.cache.Set(ctx, key, questions, questionCacheTTL); err != nil {
		s.logger.Warn("question cache write failed", "exam_id", examID, "error", err)
	}
	return questions, nil
}

func questionCacheKey(examID uint) string {
	return fmt.Sprintf("exam-questions:%d", examID)
}

func buildQuestions(reqs []CreateQuestionRequest) ([]models.Question, error) {
	questions := make([]models.Question, 0, len(reqs))
	for i, qr := range reqs {
		qType := qr.Type
		if qType == "" {
			qType = models.QuestionMCQ
		}
		marks := qr.Marks
		if marks <= 0 {
			marks = 1
		}

		q := models.Question{
			Type:               qType,
			Marks:              marks,
			Text:               qr.Text,
			CorrectOption:      qr.CorrectOption,
			ProblemDescription: qr.ProblemDescription,
			InputFormat:        qr.InputFormat,
			OutputFormat:       qr.OutputFormat,
			SampleInput:        qr.SampleInput,
			SampleOutput:       qr.SampleOutput,
		}

		if len(qr.Options) > 0 {
			raw, err := json.Marshal(qr.Options)
			if err != nil {
				return nil, fmt.Errorf("question %d: failed to encode options: %w", i+1, err)
			}
			q.Options = datatypes.JSON(raw)
		}
		if len(qr.TestCases) > 0 {
			raw, err := json.Marshal(qr.TestCases)
			if err != nil {
				return nil, fmt.Errorf("question %d: failed to encode test cases: %w", i+1, err)
			}
			q.TestCases = datatypes.JSON(raw)
		}

		questions = append(questions, q)
	}
	return questions, nil
}

func hasExplicitMarks(reqs []CreateQuestionRequest) bool {
	for _, qr := range reqs {
		if qr.Marks > 0 {
			return true
		}
	}
	return false
}
