package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proctorly/exam-engine/internal/cache"
	"github.com/proctorly/exam-engine/internal/utils"
)

// ===== IN-MEMORY CACHE =====

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}}
}

func (c *memCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = raw
	return nil
}

func (c *memCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	raw, ok := c.data[key]
	c.mu.Unlock()
	if !ok {
		return cache.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func newTestExamService(repo *memRepository) ExamService {
	return NewExamService(repo, newMemCache(), slog.Default(), utils.NewValidator())
}

// ===== TESTS =====

func TestGetForCandidateStripsAnswerKey(t *testing.T) {
	repo := newMemRepository()
	exam := seedMCQExam(t, repo, false)

	svc := newTestExamService(repo)
	view, err := svc.GetForCandidate(context.Background(), exam.ID)
	require.NoError(t, err)

	assert.Empty(t, view.Questions)
	assert.Equal(t, 2, view.QuestionsCount)
	assert.Equal(t, exam.Title, view.Title)

	// Nothing resembling an answer key survives serialization.
	body, err := json.Marshal(view)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "correct_option")
	assert.NotContains(t, string(body), "test_cases")
}

func TestGetForCandidateStripsHiddenTestCases(t *testing.T) {
	repo := newMemRepository()
	exam := seedCodeExam(t, repo)

	svc := newTestExamService(repo)
	view, err := svc.GetForCandidate(context.Background(), exam.ID)
	require.NoError(t, err)

	assert.Empty(t, view.Questions)

	body, err := json.Marshal(view)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "expected_output")
}

func TestGetByIDKeepsFullQuestionsForOwner(t *testing.T) {
	repo := newMemRepository()
	exam := seedMCQExam(t, repo, false)

	svc := newTestExamService(repo)
	full, err := svc.GetByID(context.Background(), exam.ID)
	require.NoError(t, err)

	require.Len(t, full.Questions, 2)
	require.NotNil(t, full.Questions[0].CorrectOption)
	assert.Equal(t, 2, *full.Questions[0].CorrectOption)
}

func TestGetForCandidateUnknownExam(t *testing.T) {
	svc := newTestExamService(newMemRepository())

	_, err := svc.GetForCandidate(context.Background(), 404)
	assert.ErrorIs(t, err, ErrExamNotFound)
}
