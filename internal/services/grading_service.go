package services

import (
	"log/slog"
	"math"

	"github.com/proctorly/exam-engine/internal/models"
)

// GradingService computes scores for a finalized answer set under an exam's
// marking policy. Grading is pure given its inputs, so a submission can be
// re-graded for audits and always land on the same numbers.
type GradingService interface {
	Grade(questions []models.Question, answers map[uint]models.Answer, verdicts map[uint]bool, negativeMarking bool) GradeResult
}

// GradeResult is the outcome of one grading pass.
type GradeResult struct {
	Score      int     `json:"score"`
	TotalScore int     `json:"total_score"`
	Percentage float64 `json:"percentage"`
}

type gradingService struct {
	logger *slog.Logger
}

func NewGradingService(logger *slog.Logger) GradingService {
	return &gradingService{logger: logger}
}

// Grade accumulates per question:
//   - every question's marks count toward the total
//   - a correct MCQ selection earns the question's marks; an explicitly wrong
//     selection costs a flat 1 point when negative marking is on; a blank
//     answer is never penalized
//   - a CODE question earns its marks only when every test case passed
//
// The final score is clamped at zero so negative marking can never produce a
// negative total. Missing or malformed answers grade as unanswered, never as
// an error.
func (s *gradingService) Grade(questions []models.Question, answers map[uint]models.Answer, verdicts map[uint]bool, negativeMarking bool) GradeResult {
	score := 0
	totalScore := 0

	for _, q := range questions {
		totalScore += q.Marks

		switch q.Type {
		case models.QuestionMCQ:
			answer, ok := answers[q.ID]
			if !ok || answer.SelectedOption == nil || q.CorrectOption == nil {
				continue
			}
			if *answer.SelectedOption == *q.CorrectOption {
				score += q.Marks
			} else if negativeMarking {
				score -= 1
			}

		case models.QuestionCode:
			if verdicts[q.ID] {
				score += q.Marks
			}
		}
	}

	if score < 0 {
		score = 0
	}

	result := GradeResult{
		Score:      score,
		TotalScore: totalScore,
		Percentage: percentage(score, totalScore),
	}

	s.logger.Debug("graded answer set",
		"questions", len(questions),
		"score", result.Score,
		"total_score", result.TotalScore,
		"negative_marking", negativeMarking)

	return result
}

func percentage(score, totalScore int) float64 {
	if totalScore <= 0 {
		return 0
	}
	return math.Round(float64(score)/float64(totalScore)*100*100) / 100
}
