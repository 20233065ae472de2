package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/proctorly/exam-engine/internal/models"
)

type State string

const (
	StateLobby      State = "lobby"
	StateActive     State = "active"
	StateSubmitting State = "submitting"
	StateTerminated State = "terminated"
)

// SubmitReason explains which path triggered the terminal transition.
type SubmitReason string

const (
	ReasonManual            SubmitReason = "manual"
	ReasonTimeExpired       SubmitReason = "time_expired"
	ReasonIntegrityExceeded SubmitReason = "integrity_exceeded"
)

// ViolationKind names the integrity signals the monitor counts.
type ViolationKind string

const (
	ViolationSecureLost     ViolationKind = "fullscreen_exit"
	ViolationVisibilityLost ViolationKind = "tab_switch"
)

const (
	// MaxWarnings is the violation count that forces submission.
	MaxWarnings = 3

	// violationDebounce collapses the burst of browser signals a single user
	// action can fire into one counted violation.
	violationDebounce = 2 * time.Second

	tickInterval = time.Second
)

var (
	ErrNotInLobby        = errors.New("session: already entered")
	ErrSessionNotActive  = errors.New("session: not active")
	ErrSessionInsecure   = errors.New("session: secure context lost, interaction disabled")
	ErrSessionTerminated = errors.New("session: terminated")
	ErrWindowClosed      = errors.New("session: exam window already closed")
	ErrNoPendingSubmit   = errors.New("session: no submission awaiting confirmation")
	ErrUnknownQuestion   = errors.New("session: question does not belong to this exam")
	ErrInvalidNavigation = errors.New("session: question index out of range")
)

// Outcome is what a terminating session hands to the submission guard.
type Outcome struct {
	ExamID         uint
	StudentID      string
	Answers        models.AnswerPayload
	ViolationCount int
	ElapsedSeconds int
	Reason         SubmitReason
}

// SubmitFunc dispatches the final payload to the submission guard. It is
// invoked exactly once per session, from the session's own goroutine.
type SubmitFunc func(ctx context.Context, outcome *Outcome)

// Snapshot is the client-observable session state published to subscribers.
type Snapshot struct {
	State            State        `json:"state"`
	Secure           bool         `json:"secure"`
	RemainingSeconds int          `json:"remaining_seconds"`
	ViolationCount   int          `json:"violation_count"`
	MaxWarnings      int          `json:"max_warnings"`
	CurrentIndex     int          `json:"current_index"`
	AnsweredCount    int          `json:"answered_count"`
	TotalQuestions   int          `json:"total_questions"`
	FlaggedQuestions []uint       `json:"flagged_questions"`
	AwaitingConfirm  bool         `json:"awaiting_confirm"`
	SubmitReason     SubmitReason `json:"submit_reason,omitempty"`
}

// Config describes one candidate's session.
type Config struct {
	ExamID          uint
	StudentID       string
	QuestionIDs     []uint
	DurationSeconds int
	// Deadline is the hard end of the exam window, when one is scheduled.
	// The countdown is clamped against it at Enter, not at lobby creation.
	Deadline    *time.Time
	Submit      SubmitFunc
	OnViolation func(kind ViolationKind, count int)
	Logger      *slog.Logger
}

// Session is the proctored state machine for one candidate taking one exam.
// All mutation happens on a single control goroutine; timer ticks, integrity
// signals and submit actions are serialized through one channel so exactly
// one terminal transition can occur.
type Session struct {
	cfg       Config
	questions map[uint]struct{}

	// Control-loop state; touched only by run().
	state         State
	secure        bool
	allotted      int
	remaining     int
	violations    int
	lastViolation time.Time
	currentIndex  int
	answers       map[uint]json.RawMessage
	flagged       map[uint]struct{}
	awaitConfirm  bool
	reason        SubmitReason
	baseCtx       context.Context

	events      chan request
	done        chan struct{}
	subscribers map[int]chan Snapshot
	nextSubID   int

	now func() time.Time
}

type request struct {
	apply func()
	reply chan struct{}
}

// New creates a session in the lobby and starts its control goroutine. The
// countdown does not run until Enter.
func New(cfg Config) *Session {
	questions := make(map[uint]struct{}, len(cfg.QuestionIDs))
	for _, id := range cfg.QuestionIDs {
		questions[id] = struct{}{}
	}
	s := &Session{
		cfg:         cfg,
		questions:   questions,
		state:       StateLobby,
		allotted:    cfg.DurationSeconds,
		remaining:   cfg.DurationSeconds,
		baseCtx:     context.Background(),
		answers:     make(map[uint]json.RawMessage),
		flagged:     make(map[uint]struct{}),
		events:      make(chan request),
		done:        make(chan struct{}),
		subscribers: make(map[int]chan Snapshot),
		now:         time.Now,
	}
	go s.run()
	return s
}

func (s *Session) run() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.handleTick()
		case req := <-s.events:
			req.apply()
			close(req.reply)
		}

		if s.state == StateTerminated {
			return
		}
	}
}

// dispatch runs fn on the control goroutine and waits for it.
func (s *Session) dispatch(fn func() error) error {
	var result error
	req := request{
		apply: func() { result = fn() },
		reply: make(chan struct{}),
	}
	select {
	case s.events <- req:
		<-req.reply
		return result
	case <-s.done:
		return ErrSessionTerminated
	}
}

// Enter transitions Lobby -> Active. The caller vouches that the candidate
// granted the secure presentation context; the session starts secure and the
// countdown begins immediately. ctx bounds the final submission dispatch.
//
// The effective duration is fixed here, not at lobby creation: lobby dwell
// on a scheduled exam must not push the countdown past the window's end.
func (s *Session) Enter(ctx context.Context) error {
	return s.dispatch(func() error {
		if s.state != StateLobby {
			return ErrNotInLobby
		}
		if s.cfg.Deadline != nil {
			left := int(s.cfg.Deadline.Sub(s.now()).Seconds())
			if left <= 0 {
				s.terminate()
				return ErrWindowClosed
			}
			if left < s.remaining {
				s.remaining = left
			}
		}
		s.allotted = s.remaining
		s.state = StateActive
		s.secure = true
		s.baseCtx = ctx
		s.notify()
		return nil
	})
}

// ===== TIMER =====

func (s *Session) handleTick() {
	if s.state != StateActive {
		return
	}
	s.remaining--
	if s.remaining <= 0 {
		s.remaining = 0
		// Time expiry never asks for confirmation.
		s.submit(ReasonTimeExpired)
		return
	}
	s.notify()
}

// ===== INTEGRITY MONITORING =====

// SecureLost records loss of the secure presentation context. Interaction is
// rejected until SecureRestored.
func (s *Session) SecureLost() error {
	return s.dispatch(func() error {
		if s.state != StateActive {
			return nil
		}
		s.secure = false
		s.countViolation(ViolationSecureLost)
		return nil
	})
}

// SecureRestored re-arms interaction after the candidate returns to the
// secure context.
func (s *Session) SecureRestored() error {
	return s.dispatch(func() error {
		if s.state != StateActive {
			return nil
		}
		s.secure = true
		s.notify()
		return nil
	})
}

// VisibilityLost records the session losing foreground visibility.
func (s *Session) VisibilityLost() error {
	return s.dispatch(func() error {
		if s.state != StateActive {
			return nil
		}
		s.countViolation(ViolationVisibilityLost)
		return nil
	})
}

// countViolation is debounced: a burst of signals within the window counts
// once. Reaching MaxWarnings forces submission; after that the state check in
// the callers makes further signals no-ops.
func (s *Session) countViolation(kind ViolationKind) {
	now := s.now()
	if !s.lastViolation.IsZero() && now.Sub(s.lastViolation) < violationDebounce {
		s.notify()
		return
	}
	s.lastViolation = now
	s.violations++

	if s.cfg.Logger != nil {
		s.cfg.Logger.Warn("integrity violation",
			"exam_id", s.cfg.ExamID,
			"student_id", s.cfg.StudentID,
			"kind", kind,
			"count", s.violations,
			"max", MaxWarnings)
	}
	if s.cfg.OnViolation != nil {
		s.cfg.OnViolation(kind, s.violations)
	}

	if s.violations >= MaxWarnings {
		s.submit(ReasonIntegrityExceeded)
		return
	}
	s.notify()
}

// ===== ANSWER CAPTURE =====

// SelectOption records an MCQ selection in the in-memory payload.
func (s *Session) SelectOption(qid uint, option int) error {
	return s.dispatch(func() error {
		if err := s.interactive(); err != nil {
			return err
		}
		if _, ok := s.questions[qid]; !ok {
			return ErrUnknownQuestion
		}
		raw, _ := json.Marshal(option)
		s.answers[qid] = raw
		s.notify()
		return nil
	})
}

// EditCode replaces the submitted source for a CODE question. Every edit
// lands here; nothing round-trips to the grader until submission.
func (s *Session) EditCode(qid uint, code string) error {
	return s.dispatch(func() error {
		if err := s.interactive(); err != nil {
			return err
		}
		if _, ok := s.questions[qid]; !ok {
			return ErrUnknownQuestion
		}
		raw, _ := json.Marshal(code)
		s.answers[qid] = raw
		s.notify()
		return nil
	})
}

// ToggleFlag marks or unmarks a question for review. Pure annotation; no
// grading effect.
func (s *Session) ToggleFlag(qid uint) error {
	return s.dispatch(func() error {
		if err := s.interactive(); err != nil {
			return err
		}
		if _, ok := s.questions[qid]; !ok {
			return ErrUnknownQuestion
		}
		if _, ok := s.flagged[qid]; ok {
			delete(s.flagged, qid)
		} else {
			s.flagged[qid] = struct{}{}
		}
		s.notify()
		return nil
	})
}

// Navigate moves the current question cursor.
func (s *Session) Navigate(index int) error {
	return s.dispatch(func() error {
		if err := s.interactive(); err != nil {
			return err
		}
		if index < 0 || index >= len(s.cfg.QuestionIDs) {
			return ErrInvalidNavigation
		}
		s.currentIndex = index
		s.notify()
		return nil
	})
}

func (s *Session) interactive() error {
	if s.state != StateActive {
		return ErrSessionNotActive
	}
	if !s.secure {
		return ErrSessionInsecure
	}
	return nil
}

// ===== SUBMISSION =====

// RequestSubmit opens the manual two-step confirmation. Like answering, it
// requires the secure context; only the auto-submission paths run insecure.
func (s *Session) RequestSubmit() error {
	return s.dispatch(func() error {
		if err := s.interactive(); err != nil {
			return err
		}
		s.awaitConfirm = true
		s.notify()
		return nil
	})
}

// CancelSubmit closes the confirmation without submitting.
func (s *Session) CancelSubmit() error {
	return s.dispatch(func() error {
		if s.state != StateActive {
			return ErrSessionNotActive
		}
		s.awaitConfirm = false
		s.notify()
		return nil
	})
}

// ConfirmSubmit dispatches the manual submission. It requires a preceding
// RequestSubmit; the auto-submission paths never come through here.
func (s *Session) ConfirmSubmit() error {
	return s.dispatch(func() error {
		if err := s.interactive(); err != nil {
			return err
		}
		if !s.awaitConfirm {
			return ErrNoPendingSubmit
		}
		s.submit(ReasonManual)
		return nil
	})
}

// Abort terminates without submitting. Used on server shutdown.
func (s *Session) Abort() {
	_ = s.dispatch(func() error {
		s.terminate()
		return nil
	})
}

// submit performs the single terminal transition. Only the first caller gets
// past the state check; a timer racing a manual submit is a no-op here.
func (s *Session) submit(reason SubmitReason) {
	if s.state != StateActive {
		return
	}
	s.state = StateSubmitting
	s.reason = reason
	s.notify()

	outcome := &Outcome{
		ExamID:         s.cfg.ExamID,
		StudentID:      s.cfg.StudentID,
		Answers:        s.wireAnswers(),
		ViolationCount: s.violations,
		ElapsedSeconds: s.allotted - s.remaining,
		Reason:         reason,
	}

	// The session is discarded the moment the payload is dispatched; the
	// guard's verdict does not resurrect it.
	if s.cfg.Submit != nil {
		s.cfg.Submit(s.baseCtx, outcome)
	}

	s.terminate()
}

func (s *Session) terminate() {
	if s.state == StateTerminated {
		return
	}
	s.state = StateTerminated
	s.notify()

	// Deterministically detach every listener.
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	close(s.done)
}

func (s *Session) wireAnswers() models.AnswerPayload {
	payload := make(models.AnswerPayload, len(s.answers))
	for qid, raw := range s.answers {
		payload[strconv.FormatUint(uint64(qid), 10)] = raw
	}
	return payload
}

// ===== OBSERVATION =====

// Subscribe registers a listener for state snapshots and delivers the current
// one immediately. The returned cancel is safe to call after termination.
// Slow listeners miss intermediate snapshots rather than blocking the control
// loop.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 16)
	var id int
	err := s.dispatch(func() error {
		id = s.nextSubID
		s.nextSubID++
		s.subscribers[id] = ch
		ch <- s.currentSnapshot()
		return nil
	})
	if err != nil {
		close(ch)
		return ch, func() {}
	}

	cancel := func() {
		_ = s.dispatch(func() error {
			if sub, ok := s.subscribers[id]; ok {
				delete(s.subscribers, id)
				close(sub)
			}
			return nil
		})
	}
	return ch, cancel
}

// Snapshot returns the current state. After termination it reports a minimal
// terminated snapshot.
func (s *Session) Snapshot() Snapshot {
	var snap Snapshot
	if err := s.dispatch(func() error {
		snap = s.currentSnapshot()
		return nil
	}); err != nil {
		snap = Snapshot{State: StateTerminated, MaxWarnings: MaxWarnings}
	}
	return snap
}

func (s *Session) currentSnapshot() Snapshot {
	flagged := make([]uint, 0, len(s.flagged))
	for qid := range s.flagged {
		flagged = append(flagged, qid)
	}
	sort.Slice(flagged, func(i, j int) bool { return flagged[i] < flagged[j] })

	return Snapshot{
		State:            s.state,
		Secure:           s.secure,
		RemainingSeconds: s.remaining,
		ViolationCount:   s.violations,
		MaxWarnings:      MaxWarnings,
		CurrentIndex:     s.currentIndex,
		AnsweredCount:    len(s.answers),
		TotalQuestions:   len(s.cfg.QuestionIDs),
		FlaggedQuestions: flagged,
		AwaitingConfirm:  s.awaitConfirm,
		SubmitReason:     s.reason,
	}
}

func (s *Session) notify() {
	snap := s.currentSnapshot()
	for _, ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
		}
	}
}

// Done is closed once the session has terminated.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
