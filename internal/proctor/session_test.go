package proctor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/model"
)

type fakeSubmitter struct {
	mu    sync.Mutex
	calls int
	reqs  []model.SubmissionRequest
	res   *model.SubmissionResult
	err   error
}

func (f *fakeSubmitter) Submit(_ context.Context, _ string, req model.SubmissionRequest) (*model.SubmissionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.res, nil
}

func (f *fakeSubmitter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeSubmitter) lastRequest() model.SubmissionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqs[len(f.reqs)-1]
}

type sessionRecorder struct {
	mu           sync.Mutex
	warnings     []int
	locks        []int
	submitted    chan int // elapsed minutes
	submitFailed chan error
	failedWith   map[uuid.UUID]int
}

func newSessionRecorder() *sessionRecorder {
	return &sessionRecorder{
		submitted:    make(chan int, 1),
		submitFailed: make(chan error, 1),
	}
}

func (r *sessionRecorder) events() SessionEvents {
	return SessionEvents{
		OnWarning: func(tabSwitches, _ int) {
			r.mu.Lock()
			r.warnings = append(r.warnings, tabSwitches)
			r.mu.Unlock()
		},
		OnLocked: func(tabSwitches, _ int) {
			r.mu.Lock()
			r.locks = append(r.locks, tabSwitches)
			r.mu.Unlock()
		},
		OnSubmitted: func(_ *model.SubmissionResult, elapsedMinutes int) {
			r.submitted <- elapsedMinutes
		},
		OnSubmitFailed: func(err error, answers map[uuid.UUID]int) {
			r.mu.Lock()
			r.failedWith = answers
			r.mu.Unlock()
			r.submitFailed <- err
		},
	}
}

func (r *sessionRecorder) warningCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.warnings)
}

func testExam(durationMinutes int) *model.Exam {
	return &model.Exam{
		ID:              uuid.New(),
		Title:           "Ujian Matematika",
		DurationMinutes: durationMinutes,
		Questions: []model.Question{
			{ID: uuid.New(), QuestionText: "1 + 1", Options: []string{"1", "2", "3", "4"}, Points: 10},
			{ID: uuid.New(), QuestionText: "2 * 3", Options: []string{"4", "5", "6", "7"}, Points: 10},
			{ID: uuid.New(), QuestionText: "9 / 3", Options: []string{"1", "2", "3", "4"}, Points: 10},
		},
	}
}

func newTestSession(t *testing.T, exam *model.Exam, sub Submitter, rec *sessionRecorder, mutate func(*SessionConfig)) *Session {
	t.Helper()
	cfg := SessionConfig{
		Exam:                exam,
		StudentID:           42,
		Bearer:              "test-token",
		MaxTabSwitches:      3,
		WarningThreshold:    1,
		LockGrace:           20 * time.Millisecond,
		SubmitTimeout:       time.Second,
		FullscreenSupported: true,
		Submitter:           sub,
		Events:              rec.events(),
		Log:                 zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := NewSession(cfg)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func waitSubmitted(t *testing.T, rec *sessionRecorder) int {
	t.Helper()
	select {
	case elapsed := <-rec.submitted:
		return elapsed
	case <-time.After(2 * time.Second):
		t.Fatal("submission never completed")
		return 0
	}
}

func TestSessionStartTransitions(t *testing.T) {
	sub := &fakeSubmitter{res: &model.SubmissionResult{}}
	rec := newSessionRecorder()
	s := newTestSession(t, testExam(60), sub, rec, nil)

	assert.Equal(t, model.PhaseNotStarted, s.Phase())
	require.NoError(t, s.Start())
	assert.Equal(t, model.PhaseInProgress, s.Phase())
	assert.True(t, s.Active())

	// Starting twice is rejected.
	assert.Error(t, s.Start())

	snap := s.Snapshot()
	assert.Equal(t, 3600, snap.TimeRemaining)
	assert.True(t, snap.FullscreenPending, "fullscreen request is pending until the client confirms")
}

func TestSessionTimerExpirySubmitsWithZeroAnswers(t *testing.T) {
	sub := &fakeSubmitter{res: &model.SubmissionResult{Score: 0, TotalScore: 30}}
	rec := newSessionRecorder()
	s := newTestSession(t, testExam(0), sub, rec, nil)

	require.NoError(t, s.Start())
	s.tick() // timeRemaining is already 0: expiry submits unconditionally

	elapsed := waitSubmitted(t, rec)
	assert.Equal(t, 0, elapsed)
	assert.Equal(t, 1, sub.callCount())
	assert.Empty(t, sub.lastRequest().Answers)
	assert.Equal(t, model.PhaseSubmitted, s.Phase())
}

func TestSessionLastAnswerWins(t *testing.T) {
	exam := testExam(60)
	sub := &fakeSubmitter{res: &model.SubmissionResult{}}
	rec := newSessionRecorder()
	s := newTestSession(t, exam, sub, rec, nil)

	require.NoError(t, s.Start())
	s.HandleFullscreenChange(true) // Clear the pending modal

	qID := exam.Questions[0].ID
	require.NoError(t, s.SelectAnswer(qID, 1))
	require.NoError(t, s.SelectAnswer(qID, 3))
	require.NoError(t, s.SelectAnswer(exam.Questions[1].ID, 2))

	require.NoError(t, s.Submit())
	waitSubmitted(t, rec)

	req := sub.lastRequest()
	assert.Equal(t, 3, req.Answers[qID])
	assert.Equal(t, 2, req.Answers[exam.Questions[1].ID])
	assert.Len(t, req.Answers, 2)
}

func TestSessionSelectAnswerValidation(t *testing.T) {
	exam := testExam(60)
	sub := &fakeSubmitter{res: &model.SubmissionResult{}}
	rec := newSessionRecorder()
	s := newTestSession(t, exam, sub, rec, nil)

	// Before start.
	assert.Error(t, s.SelectAnswer(exam.Questions[0].ID, 0))

	require.NoError(t, s.Start())
	s.HandleFullscreenChange(true)

	// Unknown question.
	assert.Error(t, s.SelectAnswer(uuid.New(), 0))
	// Option out of range.
	assert.Error(t, s.SelectAnswer(exam.Questions[0].ID, 4))
	assert.Error(t, s.SelectAnswer(exam.Questions[0].ID, -1))

	require.NoError(t, s.SelectAnswer(exam.Questions[0].ID, 0))
}

func TestSessionWarningBlocksInteractionAndNeverRearms(t *testing.T) {
	exam := testExam(60)
	sub := &fakeSubmitter{res: &model.SubmissionResult{}}
	rec := newSessionRecorder()
	s := newTestSession(t, exam, sub, rec, nil)

	require.NoError(t, s.Start())
	s.HandleFullscreenChange(true)

	// First tab switch trips the one-shot warning.
	s.HandleVisibility(true)
	s.HandleVisibility(false)
	assert.Equal(t, []int{1}, rec.warnings)

	// The blocking modal rejects answers and submission.
	assert.Error(t, s.SelectAnswer(exam.Questions[0].ID, 0))
	assert.Error(t, s.Submit())

	s.AckWarning()
	require.NoError(t, s.SelectAnswer(exam.Questions[0].ID, 0))

	// A second tab switch never re-arms the warning.
	s.HandleVisibility(true)
	s.HandleVisibility(false)
	assert.Equal(t, 1, rec.warningCount())

	snap := s.Snapshot()
	assert.Equal(t, 2, snap.Security.TabSwitches)
	assert.True(t, snap.Security.WarningShown)
}

func TestSessionLockAutoSubmitsAfterGrace(t *testing.T) {
	exam := testExam(60)
	sub := &fakeSubmitter{res: &model.SubmissionResult{}}
	rec := newSessionRecorder()
	s := newTestSession(t, exam, sub, rec, func(cfg *SessionConfig) {
		cfg.MaxTabSwitches = 1
	})

	require.NoError(t, s.Start())
	s.HandleFullscreenChange(true)

	s.HandleVisibility(true)
	assert.Equal(t, []int{1}, rec.locks)

	// The attempt is still in progress during the grace window.
	assert.Equal(t, model.PhaseInProgress, s.Phase())

	waitSubmitted(t, rec)
	assert.Equal(t, 1, sub.callCount())
	assert.Equal(t, model.PhaseSubmitted, s.Phase())
}

func TestSessionLockAndTimerRaceSubmitOnce(t *testing.T) {
	exam := testExam(60)
	sub := &fakeSubmitter{res: &model.SubmissionResult{}}
	rec := newSessionRecorder()
	s := newTestSession(t, exam, sub, rec, func(cfg *SessionConfig) {
		cfg.MaxTabSwitches = 1
		cfg.LockGrace = 10 * time.Millisecond
	})

	require.NoError(t, s.Start())
	s.HandleFullscreenChange(true)

	// Lock fires and schedules the grace submit; the countdown hits zero in
	// the same window.
	s.HandleVisibility(true)
	s.mu.Lock()
	s.timeRemaining = 1
	s.mu.Unlock()
	s.tick()

	waitSubmitted(t, rec)
	time.Sleep(50 * time.Millisecond) // Let the grace timer fire into the guard
	assert.Equal(t, 1, sub.callCount(), "competing triggers must yield exactly one submission")
}

func TestSessionUserSubmitCapturesElapsedAtTransition(t *testing.T) {
	exam := testExam(60)
	sub := &fakeSubmitter{res: &model.SubmissionResult{Score: 20, TotalScore: 30}}
	rec := newSessionRecorder()
	s := newTestSession(t, exam, sub, rec, nil)

	require.NoError(t, s.Start())
	s.HandleFullscreenChange(true)

	// Submitting right away reports zero elapsed minutes.
	require.NoError(t, s.Submit())
	elapsed := waitSubmitted(t, rec)
	assert.Equal(t, 0, elapsed)
	assert.Equal(t, 0, sub.lastRequest().TimeSpentMinutes)

	// A second submit is rejected outright.
	assert.Error(t, s.Submit())
	assert.Equal(t, 1, sub.callCount())
}

func TestSessionFullscreenRejectionKeepsRetryPathAndCounters(t *testing.T) {
	exam := testExam(60)
	sub := &fakeSubmitter{res: &model.SubmissionResult{}}
	rec := newSessionRecorder()

	var cmds commandRecorder
	s := newTestSession(t, exam, sub, rec, func(cfg *SessionConfig) {
		cfg.Commands = cmds.sink
	})

	require.NoError(t, s.Start())

	// One tab switch before the fullscreen question is settled.
	s.HandleVisibility(true)
	s.HandleVisibility(false)

	// The client rejects the fullscreen request: still pending, not fatal.
	var rejected *FullscreenRejectedError
	require.ErrorAs(t, s.HandleFullscreenResult(false, "user gesture required"), &rejected)
	assert.True(t, s.Snapshot().FullscreenPending)

	// Retry issues a fresh enter command and resets nothing.
	require.NoError(t, s.RetryFullscreen())
	s.HandleFullscreenResult(true, "")
	s.HandleFullscreenChange(true)

	snap := s.Snapshot()
	assert.False(t, snap.FullscreenPending)
	assert.Equal(t, 1, snap.Security.TabSwitches, "retry must not reset counters")

	enterCount := 0
	for _, cmd := range cmds.commands {
		if cmd.Kind == CommandEnterFullscreen {
			enterCount++
		}
	}
	assert.Equal(t, 2, enterCount)
}

func TestSessionFullscreenExitMidExamRePends(t *testing.T) {
	exam := testExam(60)
	sub := &fakeSubmitter{res: &model.SubmissionResult{}}
	rec := newSessionRecorder()
	s := newTestSession(t, exam, sub, rec, nil)

	require.NoError(t, s.Start())
	s.HandleFullscreenChange(true)
	require.False(t, s.Snapshot().FullscreenPending)

	s.HandleFullscreenChange(false)
	assert.True(t, s.Snapshot().FullscreenPending)

	kinds := make([]model.ViolationKind, 0)
	for _, v := range s.Violations() {
		kinds = append(kinds, v.Kind)
	}
	assert.Contains(t, kinds, model.ViolationFullscreenExit)
}

func TestSessionSubmitFailureHandsAnswersBack(t *testing.T) {
	exam := testExam(60)
	sub := &fakeSubmitter{err: errors.New("upstream is down")}
	rec := newSessionRecorder()
	s := newTestSession(t, exam, sub, rec, nil)

	require.NoError(t, s.Start())
	s.HandleFullscreenChange(true)
	require.NoError(t, s.SelectAnswer(exam.Questions[0].ID, 2))
	require.NoError(t, s.Submit())

	select {
	case err := <-rec.submitFailed:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("failure callback never fired")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, map[uuid.UUID]int{exam.Questions[0].ID: 2}, rec.failedWith)
}

func TestSessionViolationAuditSequence(t *testing.T) {
	exam := testExam(60)
	sub := &fakeSubmitter{res: &model.SubmissionResult{}}
	rec := newSessionRecorder()

	var mu sync.Mutex
	var audited []model.ViolationEvent
	s := newTestSession(t, exam, sub, rec, func(cfg *SessionConfig) {
		cfg.Audit = func(ev model.ViolationEvent) {
			mu.Lock()
			audited = append(audited, ev)
			mu.Unlock()
		}
	})

	require.NoError(t, s.Start())
	s.HandleFullscreenChange(true)

	s.HandleVisibility(true)
	s.HandleVisibility(false)
	s.AckWarning()
	s.HandleBlur()
	s.HandleKeyDown(KeyEvent{Key: "F12"})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, audited, 3)
	assert.Equal(t, model.ViolationTabSwitch, audited[0].Kind)
	assert.Equal(t, model.ViolationWindowBlur, audited[1].Kind)
	assert.Equal(t, model.ViolationBlockedKey, audited[2].Kind)
	assert.Equal(t, "F12", audited[2].Detail)

	for _, ev := range audited {
		assert.Equal(t, exam.ID, ev.ExamID)
		assert.Equal(t, 42, ev.StudentID)
		assert.False(t, ev.OccurredAt.IsZero())
	}

	assert.Equal(t, len(audited), len(s.Violations()))
}

func TestSessionCloseStopsEverything(t *testing.T) {
	exam := testExam(60)
	sub := &fakeSubmitter{res: &model.SubmissionResult{}}
	rec := newSessionRecorder()
	s := newTestSession(t, exam, sub, rec, nil)

	require.NoError(t, s.Start())
	s.Close()
	s.Close() // Idempotent

	assert.False(t, s.Active())

	// Events after teardown are dropped.
	s.HandleVisibility(true)
	assert.Zero(t, s.Snapshot().Security.TabSwitches)
}
