package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var ErrSessionExists = errors.New("session: a live session already exists for this exam and student")

// Manager is the registry of live sessions, one per (exam, student) pair.
// A second session for the same pair is rejected while the first is live;
// the slot frees itself when the session terminates.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	logger   *slog.Logger
}

func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

func sessionKey(examID uint, studentID string) string {
	return fmt.Sprintf("%d:%s", examID, studentID)
}

// Start creates and registers a session for the pair in cfg. It returns
// ErrSessionExists while a previous session for the pair is still live.
func (m *Manager) Start(cfg Config) (*Session, error) {
	key := sessionKey(cfg.ExamID, cfg.StudentID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[key]; ok {
		select {
		case <-existing.Done():
			// Terminated but not yet reaped; fall through and replace.
		default:
			return nil, ErrSessionExists
		}
	}

	sess := New(cfg)
	m.sessions[key] = sess

	go func() {
		<-sess.Done()
		m.mu.Lock()
		if m.sessions[key] == sess {
			delete(m.sessions, key)
		}
		m.mu.Unlock()
		if m.logger != nil {
			m.logger.Info("session reaped", "exam_id", cfg.ExamID, "student_id", cfg.StudentID)
		}
	}()

	return sess, nil
}

// Get returns the live session for the pair, if any.
func (m *Manager) Get(examID uint, studentID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[sessionKey(examID, studentID)]
	return sess, ok
}

// Shutdown aborts every live session. Sessions terminate without submitting.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	live := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		live = append(live, sess)
	}
	m.mu.Unlock()

	for _, sess := range live {
		sess.Abort()
	}
}
