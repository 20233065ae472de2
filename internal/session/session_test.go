package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proctorly/exam-engine/internal/models"
)

// fakeClock lets tests step through the debounce window without sleeping.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestSession(t *testing.T, outcomes chan *Outcome) (*Session, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	sess := New(Config{
		ExamID:          42,
		StudentID:       "student-1",
		QuestionIDs:     []uint{101, 102, 103},
		DurationSeconds: 3600,
		Submit: func(_ context.Context, o *Outcome) {
			if outcomes != nil {
				outcomes <- o
			}
		},
	})
	sess.now = clock.Now
	t.Cleanup(sess.Abort)
	return sess, clock
}

func TestSessionEnter(t *testing.T) {
	sess, _ := newTestSession(t, nil)

	snap := sess.Snapshot()
	assert.Equal(t, StateLobby, snap.State)

	require.NoError(t, sess.Enter(context.Background()))
	assert.ErrorIs(t, sess.Enter(context.Background()), ErrNotInLobby)

	snap = sess.Snapshot()
	assert.Equal(t, StateActive, snap.State)
	assert.True(t, snap.Secure)
	assert.Equal(t, 3600, snap.RemainingSeconds)
	assert.Equal(t, 3, snap.TotalQuestions)
}

func TestSessionAnswerCapture(t *testing.T) {
	sess, _ := newTestSession(t, nil)
	require.NoError(t, sess.Enter(context.Background()))

	require.NoError(t, sess.SelectOption(101, 2))
	require.NoError(t, sess.EditCode(102, "print(input())"))
	require.NoError(t, sess.ToggleFlag(103))
	require.NoError(t, sess.Navigate(1))

	assert.ErrorIs(t, sess.SelectOption(999, 0), ErrUnknownQuestion)
	assert.ErrorIs(t, sess.Navigate(3), ErrInvalidNavigation)

	snap := sess.Snapshot()
	assert.Equal(t, 2, snap.AnsweredCount)
	assert.Equal(t, []uint{103}, snap.FlaggedQuestions)
	assert.Equal(t, 1, snap.CurrentIndex)

	// Re-selecting overwrites rather than double-counting.
	require.NoError(t, sess.SelectOption(101, 3))
	assert.Equal(t, 2, sess.Snapshot().AnsweredCount)

	// Toggling again clears the flag.
	require.NoError(t, sess.ToggleFlag(103))
	assert.Empty(t, sess.Snapshot().FlaggedQuestions)
}

func TestSessionInteractionRejectedBeforeEnter(t *testing.T) {
	sess, _ := newTestSession(t, nil)

	assert.ErrorIs(t, sess.SelectOption(101, 0), ErrSessionNotActive)
	assert.ErrorIs(t, sess.RequestSubmit(), ErrSessionNotActive)
}

func TestSessionInsecureLocksInteraction(t *testing.T) {
	sess, _ := newTestSession(t, nil)
	require.NoError(t, sess.Enter(context.Background()))

	require.NoError(t, sess.SecureLost())
	snap := sess.Snapshot()
	assert.False(t, snap.Secure)
	assert.Equal(t, 1, snap.ViolationCount)

	assert.ErrorIs(t, sess.SelectOption(101, 0), ErrSessionInsecure)
	assert.ErrorIs(t, sess.EditCode(102, "x"), ErrSessionInsecure)
	assert.ErrorIs(t, sess.RequestSubmit(), ErrSessionInsecure)

	require.NoError(t, sess.SecureRestored())
	assert.NoError(t, sess.SelectOption(101, 0))
}

func TestSessionInsecureBlocksManualSubmit(t *testing.T) {
	outcomes := make(chan *Outcome, 1)
	sess, _ := newTestSession(t, outcomes)
	require.NoError(t, sess.Enter(context.Background()))

	// Confirmation opened while secure cannot be completed once the
	// secure context is gone.
	require.NoError(t, sess.RequestSubmit())
	require.NoError(t, sess.SecureLost())
	assert.ErrorIs(t, sess.ConfirmSubmit(), ErrSessionInsecure)
	assert.Empty(t, outcomes)

	require.NoError(t, sess.SecureRestored())
	require.NoError(t, sess.ConfirmSubmit())
	outcome := <-outcomes
	assert.Equal(t, ReasonManual, outcome.Reason)
}

func TestSessionEnterClampsToWindowEnd(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	deadline := clock.t.Add(90 * time.Second)
	sess := New(Config{
		ExamID:          42,
		StudentID:       "student-1",
		QuestionIDs:     []uint{101},
		DurationSeconds: 3600,
		Deadline:        &deadline,
	})
	sess.now = clock.Now
	t.Cleanup(sess.Abort)

	// The lobby shows the nominal duration; the countdown is fixed at
	// entry, so lobby dwell eats into the window.
	assert.Equal(t, 3600, sess.Snapshot().RemainingSeconds)

	clock.Advance(30 * time.Second)
	require.NoError(t, sess.Enter(context.Background()))
	assert.Equal(t, 60, sess.Snapshot().RemainingSeconds)
}

func TestSessionEnterAfterWindowEnd(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)}
	deadline := clock.t.Add(time.Minute)
	sess := New(Config{
		ExamID:          42,
		StudentID:       "student-1",
		QuestionIDs:     []uint{101},
		DurationSeconds: 3600,
		Deadline:        &deadline,
	})
	sess.now = clock.Now

	clock.Advance(2 * time.Minute)
	assert.ErrorIs(t, sess.Enter(context.Background()), ErrWindowClosed)

	select {
	case <-sess.Done():
	default:
		t.Fatal("expected the session to terminate when the window is gone")
	}
}

func TestSessionViolationDebounce(t *testing.T) {
	sess, clock := newTestSession(t, nil)
	require.NoError(t, sess.Enter(context.Background()))

	// A fullscreen exit typically fires a visibility signal too; the burst
	// counts once.
	require.NoError(t, sess.SecureLost())
	clock.Advance(50 * time.Millisecond)
	require.NoError(t, sess.VisibilityLost())
	assert.Equal(t, 1, sess.Snapshot().ViolationCount)

	// Past the window a new signal counts.
	clock.Advance(3 * time.Second)
	require.NoError(t, sess.VisibilityLost())
	assert.Equal(t, 2, sess.Snapshot().ViolationCount)
}

func TestSessionViolationEscalation(t *testing.T) {
	outcomes := make(chan *Outcome, 1)
	sess, clock := newTestSession(t, outcomes)

	var kinds []ViolationKind
	sess.cfg.OnViolation = func(kind ViolationKind, _ int) { kinds = append(kinds, kind) }
	require.NoError(t, sess.Enter(context.Background()))

	require.NoError(t, sess.VisibilityLost())
	clock.Advance(3 * time.Second)
	require.NoError(t, sess.VisibilityLost())
	clock.Advance(3 * time.Second)
	require.NoError(t, sess.VisibilityLost())

	select {
	case o := <-outcomes:
		assert.Equal(t, ReasonIntegrityExceeded, o.Reason)
		assert.Equal(t, MaxWarnings, o.ViolationCount)
		assert.Equal(t, uint(42), o.ExamID)
	case <-time.After(time.Second):
		t.Fatal("expected forced submission after max warnings")
	}

	<-sess.Done()
	assert.Len(t, kinds, MaxWarnings)

	// Signals after termination are rejected, never double-submitted.
	assert.ErrorIs(t, sess.VisibilityLost(), ErrSessionTerminated)
	assert.Empty(t, outcomes)
}

func TestSessionManualSubmitTwoStep(t *testing.T) {
	outcomes := make(chan *Outcome, 1)
	sess, _ := newTestSession(t, outcomes)
	require.NoError(t, sess.Enter(context.Background()))
	require.NoError(t, sess.SelectOption(101, 1))

	// Confirming without a pending request is rejected.
	assert.ErrorIs(t, sess.ConfirmSubmit(), ErrNoPendingSubmit)

	// Cancel rolls the confirmation back.
	require.NoError(t, sess.RequestSubmit())
	assert.True(t, sess.Snapshot().AwaitingConfirm)
	require.NoError(t, sess.CancelSubmit())
	assert.ErrorIs(t, sess.ConfirmSubmit(), ErrNoPendingSubmit)

	require.NoError(t, sess.RequestSubmit())
	require.NoError(t, sess.ConfirmSubmit())

	select {
	case o := <-outcomes:
		assert.Equal(t, ReasonManual, o.Reason)
		assert.Equal(t, "student-1", o.StudentID)
		assertAnswerOption(t, o.Answers, "101", 1)
	case <-time.After(time.Second):
		t.Fatal("expected manual submission")
	}

	<-sess.Done()
	assert.Equal(t, StateTerminated, sess.Snapshot().State)
	assert.ErrorIs(t, sess.ConfirmSubmit(), ErrSessionTerminated)
}

func TestSessionTimeExpiry(t *testing.T) {
	outcomes := make(chan *Outcome, 1)
	clock := &fakeClock{t: time.Now()}
	sess := New(Config{
		ExamID:          7,
		StudentID:       "student-2",
		QuestionIDs:     []uint{1},
		DurationSeconds: 1,
		Submit: func(_ context.Context, o *Outcome) {
			outcomes <- o
		},
	})
	sess.now = clock.Now
	t.Cleanup(sess.Abort)
	require.NoError(t, sess.Enter(context.Background()))

	select {
	case o := <-outcomes:
		assert.Equal(t, ReasonTimeExpired, o.Reason)
		assert.Equal(t, 1, o.ElapsedSeconds)
	case <-time.After(3 * time.Second):
		t.Fatal("expected submission on timer expiry")
	}
}

func TestSessionSubscribe(t *testing.T) {
	sess, _ := newTestSession(t, nil)

	updates, cancel := sess.Subscribe()
	defer cancel()

	first := <-updates
	assert.Equal(t, StateLobby, first.State)

	require.NoError(t, sess.Enter(context.Background()))

	var sawActive bool
	deadline := time.After(time.Second)
	for !sawActive {
		select {
		case snap := <-updates:
			if snap.State == StateActive {
				sawActive = true
			}
		case <-deadline:
			t.Fatal("expected an active snapshot")
		}
	}

	// Termination closes the channel.
	sess.Abort()
	for range updates {
	}
}

func TestManagerRejectsSecondLiveSession(t *testing.T) {
	mgr := NewManager(nil)
	cfg := Config{ExamID: 1, StudentID: "s1", QuestionIDs: []uint{1}, DurationSeconds: 600}

	first, err := mgr.Start(cfg)
	require.NoError(t, err)
	t.Cleanup(first.Abort)

	_, err = mgr.Start(cfg)
	assert.ErrorIs(t, err, ErrSessionExists)

	// A different student on the same exam gets a session.
	other := cfg
	other.StudentID = "s2"
	second, err := mgr.Start(other)
	require.NoError(t, err)
	t.Cleanup(second.Abort)

	got, ok := mgr.Get(1, "s1")
	require.True(t, ok)
	assert.Same(t, first, got)

	// Once the first terminates the slot frees up.
	first.Abort()
	<-first.Done()
	require.Eventually(t, func() bool {
		_, live := mgr.Get(1, "s1")
		return !live
	}, time.Second, 10*time.Millisecond)

	replacement, err := mgr.Start(cfg)
	require.NoError(t, err)
	t.Cleanup(replacement.Abort)
}

func assertAnswerOption(t *testing.T, payload models.AnswerPayload, key string, want int) {
	t.Helper()
	raw, ok := payload[key]
	require.True(t, ok, "answer %s missing", key)
	var got int
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, want, got)
}
