package services

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/proctorly/exam-engine/internal/models"
)

func intPtr(v int) *int { return &v }

func mcq(id uint, marks, correct int) models.Question {
	return models.Question{
		ID:            id,
		Type:          models.QuestionMCQ,
		Marks:         marks,
		CorrectOption: intPtr(correct),
	}
}

func codeQuestion(id uint, marks int) models.Question {
	return models.Question{
		ID:    id,
		Type:  models.QuestionCode,
		Marks: marks,
	}
}

func selected(option int) models.Answer {
	return models.Answer{SelectedOption: intPtr(option)}
}

func TestGradeMCQ(t *testing.T) {
	grading := NewGradingService(slog.Default())

	questions := []models.Question{
		mcq(1, 5, 2),
		mcq(2, 5, 0),
	}

	t.Run("one correct one wrong without negative marking", func(t *testing.T) {
		answers := map[uint]models.Answer{
			1: selected(2),
			2: selected(3),
		}
		result := grading.Grade(questions, answers, nil, false)

		assert.Equal(t, 5, result.Score)
		assert.Equal(t, 10, result.TotalScore)
		assert.InDelta(t, 50.0, result.Percentage, 0.001)
	})

	t.Run("wrong answer costs one point with negative marking", func(t *testing.T) {
		answers := map[uint]models.Answer{
			1: selected(2),
			2: selected(3),
		}
		result := grading.Grade(questions, answers, nil, true)

		assert.Equal(t, 4, result.Score)
		assert.Equal(t, 10, result.TotalScore)
	})

	t.Run("blank answers are never penalized", func(t *testing.T) {
		result := grading.Grade(questions, map[uint]models.Answer{}, nil, true)

		assert.Equal(t, 0, result.Score)
		assert.Equal(t, 10, result.TotalScore)
		assert.Zero(t, result.Percentage)
	})

	t.Run("score clamps at zero", func(t *testing.T) {
		answers := map[uint]models.Answer{
			1: selected(0),
			2: selected(3),
		}
		result := grading.Grade(questions, answers, nil, true)

		assert.Equal(t, 0, result.Score)
		assert.Zero(t, result.Percentage)
	})
}

func TestGradeCode(t *testing.T) {
	grading := NewGradingService(slog.Default())

	questions := []models.Question{
		codeQuestion(1, 10),
		codeQuestion(2, 10),
	}

	t.Run("all or nothing per question", func(t *testing.T) {
		verdicts := map[uint]bool{1: true, 2: false}
		result := grading.Grade(questions, nil, verdicts, false)

		assert.Equal(t, 10, result.Score)
		assert.Equal(t, 20, result.TotalScore)
		assert.InDelta(t, 50.0, result.Percentage, 0.001)
	})

	t.Run("missing verdict grades as unanswered", func(t *testing.T) {
		result := grading.Grade(questions, nil, nil, true)

		assert.Equal(t, 0, result.Score)
		assert.Equal(t, 20, result.TotalScore)
	})

	t.Run("failed code is never negatively marked", func(t *testing.T) {
		verdicts := map[uint]bool{1: false, 2: false}
		result := grading.Grade(questions, nil, verdicts, true)

		assert.Equal(t, 0, result.Score)
	})
}

func TestGradeMixed(t *testing.T) {
	grading := NewGradingService(slog.Default())

	questions := []models.Question{
		mcq(1, 3, 1),
		mcq(2, 3, 2),
		codeQuestion(3, 4),
	}
	answers := map[uint]models.Answer{
		1: selected(1),
		2: selected(2),
	}
	verdicts := map[uint]bool{3: true}

	result := grading.Grade(questions, answers, verdicts, true)

	assert.Equal(t, 10, result.Score)
	assert.Equal(t, 10, result.TotalScore)
	assert.InDelta(t, 100.0, result.Percentage, 0.001)
}

func TestGradePercentageRounding(t *testing.T) {
	grading := NewGradingService(slog.Default())

	questions := []models.Question{
		mcq(1, 1, 0),
		mcq(2, 1, 0),
		mcq(3, 1, 0),
	}
	answers := map[uint]models.Answer{1: selected(0)}

	result := grading.Grade(questions, answers, nil, false)

	assert.Equal(t, 1, result.Score)
	assert.InDelta(t, 33.33, result.Percentage, 0.001)
}

func TestGradeEmptyExam(t *testing.T) {
	grading := NewGradingService(slog.Default())

	result := grading.Grade(nil, nil, nil, false)

	assert.Zero(t, result.Score)
	assert.Zero(t, result.TotalScore)
	assert.Zero(t, result.Percentage)
}

func TestGradeIsDeterministic(t *testing.T) {
	grading := NewGradingService(slog.Default())

	questions := []models.Question{
		mcq(1, 5, 2),
		codeQuestion(2, 5),
	}
	answers := map[uint]models.Answer{1: selected(4)}
	verdicts := map[uint]bool{2: true}

	first := grading.Grade(questions, answers, verdicts, true)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, grading.Grade(questions, answers, verdicts, true))
	}
}
