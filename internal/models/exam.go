package models

import (
	"time"

	"gorm.io/gorm"
)

type Exam struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	Title       string  `json:"title" gorm:"not null;size:200;index" validate:"required,min=1,max=200"`
	Description *string `json:"description" gorm:"type:text" validate:"omitempty,max=1000"`

	// Duration in minutes. The effective duration of a session is clamped to
	// the remaining schedule window when one is configured.
	Duration  int        `json:"duration" gorm:"not null" validate:"required,min=5,max=300"`
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`

	TotalMarks      int  `json:"total_marks" gorm:"not null;default:0"`
	NegativeMarking bool `json:"negative_marking" gorm:"default:false"`

	// Metadata
	CreatedBy string         `json:"created_by" gorm:"not null;size:255;index"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Questions   []Question   `json:"questions,omitempty" gorm:"foreignKey:ExamID"`
	Submissions []Submission `json:"-" gorm:"foreignKey:ExamID"`
	Creator     User         `json:"creator,omitempty" gorm:"foreignKey:CreatedBy"`

	// Computed fields (not stored)
	QuestionsCount int `json:"questions_count" gorm:"-"`
}

func (Exam) TableName() string {
	return "exams"
}

// IsOpenAt reports whether a session may be created at the given instant.
// Exams without a configured window are always open.
func (e *Exam) IsOpenAt(now time.Time) bool {
	if e.StartTime != nil && now.Before(*e.StartTime) {
		return false
	}
	if e.EndTime != nil && now.After(*e.EndTime) {
		return false
	}
	return true
}

// EffectiveDuration returns the allowed session duration at the given
// instant: min(duration, endTime - now) when an end time is configured, so a
// late entrant never runs past the window.
func (e *Exam) EffectiveDuration(now time.Time) time.Duration {
	full := time.Duration(e.Duration) * time.Minute
	if e.EndTime == nil {
		return full
	}
	remaining := e.EndTime.Sub(now)
	if remaining < full {
		return remaining
	}
	return full
}
