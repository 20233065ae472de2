package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/proctorly/exam-engine/internal/cache"
	"github.com/proctorly/exam-engine/internal/events"
	"github.com/proctorly/exam-engine/internal/models"
	"github.com/proctorly/exam-engine/internal/repositories"
	"github.com/proctorly/exam-engine/internal/runner"
	"github.com/proctorly/exam-engine/internal/utils"
)

// submitLockTTL bounds how long a crashed submit can hold the per-attempt
// lock before another request may retry.
const submitLockTTL = 30 * time.Second

// submitWindowGrace keeps the window check from rejecting a session whose
// countdown ran out exactly at the scheduled end; the dispatch from the
// session goroutine lands moments after the edge.
const submitWindowGrace = 30 * time.Second

// SubmissionService is the submission guard: it enforces the single-attempt
// invariant and the exam's schedule window, then grades and persists.
type SubmissionService interface {
	Submit(ctx context.Context, req *SubmitExamRequest, studentID string) (*SubmissionResult, error)
	HasSubmitted(ctx context.Context, examID uint, studentID string) (bool, error)
	GetReview(ctx context.Context, examID uint, studentID string) (*ReviewResponse, error)
}

// SubmitExamRequest is the session-to-guard payload.
type SubmitExamRequest struct {
	ExamID         uint                 `json:"exam_id" validate:"required"`
	Answers        models.AnswerPayload `json:"answers"`
	TabSwitchCount int                  `json:"tab_switch_count" validate:"min=0"`
	TimeSpent      int                  `json:"time_spent" validate:"min=0"` // seconds
}

// SubmissionResult is returned to the caller after a successful submit.
type SubmissionResult struct {
	SubmissionID uint    `json:"submission_id"`
	Score        int     `json:"score"`
	TotalScore   int     `json:"total_score"`
	Percentage   float64 `json:"percentage"`
}

// ReviewQuestion reconstructs one graded question for display.
type ReviewQuestion struct {
	QuestionID     uint              `json:"question_id"`
	Type           models.QuestionType `json:"question_type"`
	Text           *string           `json:"text,omitempty"`
	Options        []string          `json:"options,omitempty"`
	CorrectOption  *int              `json:"correct_option,omitempty"`
	SelectedOption *int              `json:"selected_option,omitempty"`
	SubmittedCode  *string           `json:"submitted_code,omitempty"`
	TestCases      []models.TestCase `json:"test_cases,omitempty"`
	Marks          int               `json:"marks"`
	IsCorrect      bool              `json:"is_correct"`
}

// ReviewResponse is the review read path over an already-graded submission.
type ReviewResponse struct {
	ExamID     uint             `json:"exam_id"`
	Score      int              `json:"score"`
	TotalScore int              `json:"total_score"`
	Percentage float64          `json:"percentage"`
	Questions  []ReviewQuestion `json:"questions"`
}

type submissionService struct {
	repo       repositories.Repository
	grading    GradingService
	codeRun    runner.Runner // nil when no execution backend is provisioned
	runTimeout time.Duration
	lock       cache.SubmitLock
	publisher  events.EventPublisher
	logger     *slog.Logger
	validator  *utils.Validator
}

func NewSubmissionService(
	repo repositories.Repository,
	grading GradingService,
	codeRun runner.Runner,
	runTimeout time.Duration,
	lock cache.SubmitLock,
	publisher events.EventPublisher,
	logger *slog.Logger,
	validator *utils.Validator,
) SubmissionService {
	return &submissionService{
		repo:       repo,
		grading:    grading,
		codeRun:    codeRun,
		runTimeout: runTimeout,
		lock:       lock,
		publisher:  publisher,
		logger:     logger,
		validator:  validator,
	}
}

// Submit validates the attempt, grades it, and persists exactly one
// submission per (exam, student). Guard errors are returned before any state
// mutation.
func (s *submissionService) Submit(ctx context.Context, req *SubmitExamRequest, studentID string) (*SubmissionResult, error) {
	if studentID == "" {
		return nil, ErrUnauthorized
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, asValidationErrors(err)
	}

	s.logger.Info("Submitting exam",
		"exam_id", req.ExamID,
		"student_id", studentID,
		"answers_count", len(req.Answers))

	exam, err := s.repo.Exam().GetByID(ctx, req.ExamID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	// Duplicate verdict outranks the window verdict: an already-graded
	// candidate retrying on a closed exam learns they already submitted,
	// not that the exam is over. Fast path only; the locked check below is
	// the authoritative one.
	exists, err := s.repo.Submission().ExistsByExamAndStudent(ctx, req.ExamID, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing submission: %w", err)
	}
	if exists {
		return nil, ErrDuplicateAttempt
	}

	if !exam.IsOpenAt(time.Now().Add(-submitWindowGrace)) {
		return nil, ErrExamNotActive
	}

	// Critical section: the duplicate pre-check and the insert must not
	// interleave with a concurrent submit for the same pair.
	acquired, err := s.lock.Acquire(ctx, req.ExamID, studentID, submitLockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire submit lock: %w", err)
	}
	if !acquired {
		return nil, ErrAttemptInFlight
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx), req.ExamID, studentID); err != nil {
			s.logger.Warn("failed to release submit lock",
				"exam_id", req.ExamID, "student_id", studentID, "error", err)
		}
	}()

	exists, err = s.repo.Submission().ExistsByExamAndStudent(ctx, req.ExamID, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing submission: %w", err)
	}
	if exists {
		return nil, ErrDuplicateAttempt
	}

	questions, err := s.repo.Question().GetByExam(ctx, req.ExamID)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}

	answers := req.Answers.Normalize()

	verdicts, err := s.runCodeAnswers(ctx, questions, answers)
	if err != nil {
		return nil, err
	}

	grade := s.grading.Grade(questions, answers, verdicts, exam.NegativeMarking)

	rawAnswers, err := json.Marshal(req.Answers)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal answers: %w", err)
	}
	rawVerdicts, err := json.Marshal(verdicts)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal verdicts: %w", err)
	}

	submission := &models.Submission{
		ExamID:         req.ExamID,
		StudentID:      studentID,
		Score:          grade.Score,
		TotalScore:     grade.TotalScore,
		Answers:        rawAnswers,
		CodeVerdicts:   rawVerdicts,
		TabSwitchCount: req.TabSwitchCount,
		TimeSpent:      req.TimeSpent,
		CompletedAt:    time.Now().UTC(),
	}

	if err := s.repo.Submission().CreateIfAbsent(ctx, submission); err != nil {
		if errors.Is(err, repositories.ErrDuplicateSubmission) {
			return nil, ErrDuplicateAttempt
		}
		return nil, fmt.Errorf("failed to persist submission: %w", err)
	}

	s.logger.Info("Exam submitted",
		"submission_id", submission.ID,
		"exam_id", req.ExamID,
		"student_id", studentID,
		"score", grade.Score,
		"total_score", grade.TotalScore)

	s.publishCompleted(ctx, submission, grade)

	return &SubmissionResult{
		SubmissionID: submission.ID,
		Score:        grade.Score,
		TotalScore:   grade.TotalScore,
		Percentage:   grade.Percentage,
	}, nil
}

// HasSubmitted reports whether a graded submission already exists for the
// pair. Callers use it to fail fast; the authoritative check stays in Submit.
func (s *submissionService) HasSubmitted(ctx context.Context, examID uint, studentID string) (bool, error) {
	if studentID == "" {
		return false, ErrUnauthorized
	}
	exists, err := s.repo.Submission().ExistsByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		return false, fmt.Errorf("failed to check existing submission: %w", err)
	}
	return exists, nil
}

// runCodeAnswers builds the verdict map for CODE questions. Verdicts are
// always computed server-side; a client-supplied verdict is never trusted.
// A missing runner is fatal only when the exam actually has CODE questions,
// so MCQ-only exams grade regardless of sandbox availability.
func (s *submissionService) runCodeAnswers(ctx context.Context, questions []models.Question, answers map[uint]models.Answer) (map[uint]bool, error) {
	verdicts := make(map[uint]bool)

	for _, q := range questions {
		if q.Type != models.QuestionCode {
			continue
		}
		answer, ok := answers[q.ID]
		if !ok || answer.SubmittedCode == nil || *answer.SubmittedCode == "" {
			continue
		}

		if s.codeRun == nil {
			return nil, ErrRunnerUnavailable
		}

		testCases, err := q.TestCaseList()
		if err != nil {
			s.logger.Warn("skipping question with malformed test cases",
				"question_id", q.ID, "error", err)
			continue
		}
		if len(testCases) == 0 {
			continue
		}

		result, err := s.codeRun.Run(ctx, *answer.SubmittedCode, testCases, s.runTimeout)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRunnerUnavailable, err)
		}
		verdicts[q.ID] = result.AllPassed
	}

	return verdicts, nil
}

func (s *submissionService) publishCompleted(ctx context.Context, submission *models.Submission, grade GradeResult) {
	event := events.NewExamEvent(events.EventSubmissionCompleted, events.SubmissionCompletedEvent{
		SubmissionID:   submission.ID,
		ExamID:         submission.ExamID,
		StudentID:      submission.StudentID,
		Score:          grade.Score,
		TotalScore:     grade.TotalScore,
		Percentage:     grade.Percentage,
		TabSwitchCount: submission.TabSwitchCount,
		TimeSpent:      submission.TimeSpent,
	})
	if err := s.publisher.PublishExamEvent(ctx, event); err != nil {
		s.logger.Error("failed to publish submission event",
			"submission_id", submission.ID, "error", err)
	}
}

// GetReview reconstructs per-question results for an already-graded
// submission. It is a pure read transformation; nothing is re-graded.
func (s *submissionService) GetReview(ctx context.Context, examID uint, studentID string) (*ReviewResponse, error) {
	if studentID == "" {
		return nil, ErrUnauthorized
	}

	submission, err := s.repo.Submission().GetByExamAndStudent(ctx, examID, studentID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}

	questions, err := s.repo.Question().GetByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}

	var payload models.AnswerPayload
	if len(submission.Answers) > 0 {
		if err := json.Unmarshal(submission.Answers, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode stored answers: %w", err)
		}
	}
	answers := payload.Normalize()

	verdicts := make(map[uint]bool)
	if len(submission.CodeVerdicts) > 0 {
		if err := json.Unmarshal(submission.CodeVerdicts, &verdicts); err != nil {
			s.logger.Warn("failed to decode stored verdicts",
				"submission_id", submission.ID, "error", err)
		}
	}

	review := &ReviewResponse{
		ExamID:     examID,
		Score:      submission.Score,
		TotalScore: submission.TotalScore,
		Percentage: submission.Percentage(),
		Questions:  make([]ReviewQuestion, 0, len(questions)),
	}

	for _, q := range questions {
		rq := ReviewQuestion{
			QuestionID:    q.ID,
			Type:          q.Type,
			Text:          q.Text,
			CorrectOption: q.CorrectOption,
			Marks:         q.Marks,
		}
		if opts, err := q.OptionList(); err == nil {
			rq.Options = opts
		}
		if cases, err := q.TestCaseList(); err == nil {
			rq.TestCases = cases
		}

		answer := answers[q.ID]
		rq.SelectedOption = answer.SelectedOption
		rq.SubmittedCode = answer.SubmittedCode

		switch q.Type {
		case models.QuestionMCQ:
			if answer.SelectedOption != nil && q.CorrectOption != nil {
				rq.IsCorrect = *answer.SelectedOption == *q.CorrectOption
			}
		case models.QuestionCode:
			rq.IsCorrect = verdicts[q.ID]
		}

		review.Questions = append(review.Questions, rq)
	}

	return review, nil
}
