package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type QuestionType string

const (
	QuestionMCQ  QuestionType = "MCQ"
	QuestionCode QuestionType = "CODE"
)

type Question struct {
	ID     uint         `json:"id" gorm:"primaryKey"`
	ExamID uint         `json:"exam_id" gorm:"not null;index"`
	Type   QuestionType `json:"question_type" gorm:"not null;default:MCQ" validate:"omitempty,question_type"`
	Marks  int          `json:"marks" gorm:"not null;default:1" validate:"min=1"`

	// MCQ fields
	Text          *string        `json:"text,omitempty" gorm:"type:text"`
	Options       datatypes.JSON `json:"options,omitempty" gorm:"type:jsonb"` // []string
	CorrectOption *int           `json:"correct_option,omitempty"`

	// CODE fields
	ProblemDescription *string        `json:"problem_description,omitempty" gorm:"type:text"`
	InputFormat        *string        `json:"input_format,omitempty" gorm:"type:text"`
	OutputFormat       *string        `json:"output_format,omitempty" gorm:"type:text"`
	SampleInput        *string        `json:"sample_input,omitempty" gorm:"type:text"`
	SampleOutput       *string        `json:"sample_output,omitempty" gorm:"type:text"`
	TestCases          datatypes.JSON `json:"test_cases,omitempty" gorm:"type:jsonb"` // []TestCase

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Exam Exam `json:"-" gorm:"foreignKey:ExamID"`
}

func (Question) TableName() string {
	return "questions"
}

// TestCase is one hidden input/output pair for a CODE question.
type TestCase struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
}

// OptionList decodes the stored options column.
func (q *Question) OptionList() ([]string, error) {
	if len(q.Options) == 0 {
		return nil, nil
	}
	var opts []string
	if err := json.Unmarshal(q.Options, &opts); err != nil {
		return nil, err
	}
	return opts, nil
}

// TestCaseList decodes the stored test cases column.
func (q *Question) TestCaseList() ([]TestCase, error) {
	if len(q.TestCases) == 0 {
		return nil, nil
	}
	var cases []TestCase
	if err := json.Unmarshal(q.TestCases, &cases); err != nil {
		return nil, err
	}
	return cases, nil
}

// DistributeMarks assigns per-question marks by even distribution of a total,
// with the remainder going to the last question. Used when an exam author
// supplies only a total mark value.
func DistributeMarks(questions []Question, totalMarks int) {
	n := len(questions)
	if n == 0 || totalMarks <= 0 {
		return
	}
	each := totalMarks / n
	if each < 1 {
		each = 1
	}
	for i := range questions {
		questions[i].Marks = each
	}
	if rest := totalMarks - each*n; rest > 0 {
		questions[n-1].Marks += rest
	}
}
