package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventSubmissionCompleted EventType = "submission.completed"
	EventSessionTerminated   EventType = "session.terminated"
	EventIntegrityViolation  EventType = "session.integrity_violation"
)

// ExamEvent is the envelope published for every engine event.
type ExamEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Source    string    `json:"source"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`

	Data interface{} `json:"data"`
}

// SubmissionCompletedEvent is emitted after a submission has been graded and
// persisted. Downstream consumers (analytics, dashboards) own what happens
// next; the engine only publishes.
type SubmissionCompletedEvent struct {
	SubmissionID   uint    `json:"submission_id"`
	ExamID         uint    `json:"exam_id"`
	StudentID      string  `json:"student_id"`
	Score          int     `json:"score"`
	TotalScore     int     `json:"total_score"`
	Percentage     float64 `json:"percentage"`
	TabSwitchCount int     `json:"tab_switch_count"`
	TimeSpent      int     `json:"time_spent"`
}

// IntegrityViolationEvent is emitted for each counted proctoring violation.
type IntegrityViolationEvent struct {
	ExamID    uint   `json:"exam_id"`
	StudentID string `json:"student_id"`
	Kind      string `json:"kind"`
	Count     int    `json:"count"`
	Max       int    `json:"max"`
}

// NewExamEvent wraps payload data in a fully populated envelope.
func NewExamEvent(eventType EventType, data interface{}) *ExamEvent {
	return &ExamEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    "exam-engine",
		Version:   "1.0",
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}
