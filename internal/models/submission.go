package models

import (
	"time"

	"gorm.io/datatypes"
)

// Submission is the single permitted attempt record for an (exam, student)
// pair. The composite unique index is the storage-level backstop for the
// one-attempt invariant; the submission service also pre-checks under a
// per-key lock so grading never runs twice for the same attempt.
type Submission struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	ExamID     uint   `json:"exam_id" gorm:"not null;uniqueIndex:idx_submissions_exam_student"`
	StudentID  string `json:"student_id" gorm:"not null;size:255;uniqueIndex:idx_submissions_exam_student"`
	Score      int    `json:"score" gorm:"not null"`
	TotalScore int    `json:"total_score" gorm:"not null"`

	// Answers retains the raw answer payload for the review read path.
	Answers datatypes.JSON `json:"answers" gorm:"type:jsonb"`

	// CodeVerdicts retains the per-question pass/fail verdict map so review
	// never has to re-run candidate code.
	CodeVerdicts datatypes.JSON `json:"code_verdicts,omitempty" gorm:"type:jsonb"`

	TabSwitchCount int       `json:"tab_switch_count" gorm:"default:0"`
	TimeSpent      int       `json:"time_spent" gorm:"default:0"` // seconds
	CompletedAt    time.Time `json:"completed_at"`

	CreatedAt time.Time `json:"created_at"`

	// Relations
	Exam    Exam `json:"-" gorm:"foreignKey:ExamID"`
	Student User `json:"student,omitempty" gorm:"foreignKey:StudentID"`
}

func (Submission) TableName() string {
	return "submissions"
}

// Percentage returns the rounded score percentage for this submission.
func (s *Submission) Percentage() float64 {
	if s.TotalScore <= 0 {
		return 0
	}
	return float64(int(float64(s.Score)/float64(s.TotalScore)*100*100+0.5)) / 100
}
