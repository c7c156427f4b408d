package proctor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Submitter performs the single write the session needs from the upstream
// backend. The state machine guarantees it is invoked at most once per session.
type Submitter interface {
	Submit(ctx context.Context, bearer string, req model.SubmissionRequest) (*model.SubmissionResult, error)
}

// StateSnapshot is the session view pushed to the client after every
// meaningful transition.
type StateSnapshot struct {
	Phase             model.SessionPhase  `json:"phase"`
	FullscreenPending bool                `json:"fullscreen_pending"`
	WarningPending    bool                `json:"warning_pending"`
	TimeRemaining     int                 `json:"time_remaining"`
	Answered          int                 `json:"answered"`
	Security          model.SecurityState `json:"security"`
}

// SessionEvents are the session's outbound notifications. All callbacks fire
// without the session lock held and must not call back into the session.
type SessionEvents struct {
	OnState        func(StateSnapshot)
	OnTick         func(remaining int)
	OnWarning      func(tabSwitches, maxTabSwitches int)
	OnLocked       func(tabSwitches, maxTabSwitches int)
	OnSubmitted    func(res *model.SubmissionResult, elapsedMinutes int)
	OnSubmitFailed func(err error, answers map[uuid.UUID]int)
}

// SessionConfig assembles one attempt.
type SessionConfig struct {
	Exam                *model.Exam
	StudentID           int
	Bearer              string
	MaxTabSwitches      int
	WarningThreshold    int
	LockGrace           time.Duration
	SubmitTimeout       time.Duration
	FullscreenSupported bool
	Submitter           Submitter
	Commands            CommandSink
	Events              SessionEvents
	Audit               func(model.ViolationEvent)
	Log                 zerolog.Logger
}

// Session is the exam attempt state machine. It owns the countdown, the answer
// map, and the single guarded transition into SUBMITTING; the monitor and the
// fullscreen controller only report into it through callbacks.
type Session struct {
	cfg        SessionConfig
	log        zerolog.Logger
	monitor    *LockMonitor
	fullscreen *FullscreenController

	mu                sync.Mutex
	phase             model.SessionPhase
	fullscreenPending bool
	warningPending    bool
	answers           map[uuid.UUID]int
	questionSet       map[uuid.UUID]int // question ID → option count
	startedAt         time.Time
	durationSeconds   int
	timeRemaining     int
	elapsedMinutes    int
	violations        []model.ViolationEvent
	lockTimer         *time.Timer
	closed            bool

	stopTick chan struct{}
	tickOnce sync.Once
}

// NewSession wires the monitor and fullscreen controller for one attempt. The
// session starts in NOT_STARTED; nothing is mounted until Start.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Exam == nil {
		return nil, fmt.Errorf("session requires an exam")
	}
	if cfg.Submitter == nil {
		return nil, fmt.Errorf("session requires a submitter")
	}
	if cfg.Commands == nil {
		cfg.Commands = func(Command) {}
	}
	if cfg.LockGrace <= 0 {
		cfg.LockGrace = 2 * time.Second
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 30 * time.Second
	}

	log := cfg.Log.With().
		Str("component", "exam_session").
		Str("exam_id", cfg.Exam.ID.String()).
		Int("student_id", cfg.StudentID).
		Logger()

	s := &Session{
		cfg:         cfg,
		log:         log,
		phase:       model.PhaseNotStarted,
		answers:     make(map[uuid.UUID]int),
		questionSet: make(map[uuid.UUID]int, len(cfg.Exam.Questions)),
		stopTick:    make(chan struct{}),
	}
	for _, q := range cfg.Exam.Questions {
		s.questionSet[q.ID] = len(q.Options)
	}

	monitor, err := NewLockMonitor(MonitorConfig{
		MaxTabSwitches:   cfg.MaxTabSwitches,
		WarningThreshold: cfg.WarningThreshold,
		Callbacks: MonitorCallbacks{
			OnTabSwitch: s.onTabSwitch,
			OnWarn:      s.onWarn,
			OnLock:      s.onLock,
			OnViolation: s.onViolation,
		},
	}, cfg.Commands, log)
	if err != nil {
		return nil, err
	}
	s.monitor = monitor
	s.fullscreen = NewFullscreenController(cfg.FullscreenSupported, cfg.Commands, s.onFullscreenChange, log)

	return s, nil
}

// Start moves NOT_STARTED → IN_PROGRESS: mounts the monitor, requests
// fullscreen, and starts the countdown from the exam's configured duration.
// When the environment cannot go fullscreen at all the attempt proceeds
// best-effort; a rejected request keeps fullscreen_pending set with a retry
// path, never a dead end.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("session is closed")
	}
	if s.phase != model.PhaseNotStarted {
		s.mu.Unlock()
		return fmt.Errorf("exam already started")
	}

	s.phase = model.PhaseInProgress
	s.startedAt = time.Now()
	s.durationSeconds = s.cfg.Exam.DurationMinutes * 60
	s.timeRemaining = s.durationSeconds
	s.fullscreenPending = s.cfg.FullscreenSupported
	s.mu.Unlock()

	s.monitor.Mount()
	if s.cfg.FullscreenSupported {
		_ = s.fullscreen.Enter()
	}

	go s.runTicker()

	s.log.Info().Int("duration_seconds", s.durationSeconds).Msg("Exam session started")
	s.emitState()
	return nil
}

func (s *Session) runTicker() {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-s.stopTick:
			return
		case <-t.C:
			s.tick()
		}
	}
}

func (s *Session) stopTicker() {
	s.tickOnce.Do(func() { close(s.stopTick) })
}

// tick decrements the countdown by one second. Submission at zero is
// unconditional: pending modals and unanswered questions do not delay it.
func (s *Session) tick() {
	s.mu.Lock()
	if s.phase != model.PhaseInProgress {
		s.mu.Unlock()
		return
	}
	if s.timeRemaining > 0 {
		s.timeRemaining--
	}
	remaining := s.timeRemaining
	expired := remaining == 0
	if expired {
		s.beginSubmissionLocked(model.TriggerTimer)
	}
	onTick := s.cfg.Events.OnTick
	s.mu.Unlock()

	if onTick != nil {
		onTick(remaining)
	}
}

// SelectAnswer records the chosen option for a question. Last write wins.
// Selection is rejected while a modal blocks interaction or outside
// IN_PROGRESS.
func (s *Session) SelectAnswer(questionID uuid.UUID, option int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != model.PhaseInProgress {
		return fmt.Errorf("answers are only accepted while the exam is in progress")
	}
	if s.fullscreenPending || s.warningPending {
		return fmt.Errorf("interaction is blocked until the pending notice is resolved")
	}
	optionCount, ok := s.questionSet[questionID]
	if !ok {
		return fmt.Errorf("question %s is not part of this exam", questionID)
	}
	if option < 0 || option >= optionCount {
		return fmt.Errorf("option index %d out of range for question %s", option, questionID)
	}

	s.answers[questionID] = option
	return nil
}

// Submit is the explicit user submission path.
func (s *Session) Submit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != model.PhaseInProgress {
		return fmt.Errorf("exam is not in progress")
	}
	if s.fullscreenPending || s.warningPending {
		return fmt.Errorf("interaction is blocked until the pending notice is resolved")
	}
	s.beginSubmissionLocked(model.TriggerUser)
	return nil
}

// AckWarning acknowledges the blocking warning modal. The one-shot warning flag
// stays set on the monitor; acknowledging never re-arms it.
func (s *Session) AckWarning() {
	s.mu.Lock()
	s.warningPending = false
	s.mu.Unlock()
	s.emitState()
}

// RetryFullscreen re-issues the fullscreen request after a rejection. Counters
// are untouched.
func (s *Session) RetryFullscreen() error {
	return s.fullscreen.Enter()
}

// HandleFullscreenResult resolves the outcome of an enter-fullscreen command.
// On rejection the session stays pending and the caller surfaces the retry
// affordance.
func (s *Session) HandleFullscreenResult(ok bool, reason string) error {
	err := s.fullscreen.HandleResult(ok, reason)
	if err != nil {
		return err
	}
	// The authoritative pending clear comes from the fullscreenchange report,
	// but a confirmed grant unblocks interaction immediately.
	s.mu.Lock()
	s.fullscreenPending = false
	s.mu.Unlock()
	s.emitState()
	return nil
}

// HandleFullscreenChange applies a ground-truth fullscreenchange report.
func (s *Session) HandleFullscreenChange(active bool) {
	s.fullscreen.HandleChange(active)
}

// onFullscreenChange is the controller's change callback. Leaving fullscreen
// mid-exam re-raises the pending modal and is recorded for audit.
func (s *Session) onFullscreenChange(active bool) {
	s.mu.Lock()
	if s.closed || s.phase != model.PhaseInProgress {
		s.mu.Unlock()
		return
	}
	s.fullscreenPending = !active && s.cfg.FullscreenSupported
	record := !active
	s.mu.Unlock()

	if record {
		s.recordViolation(model.ViolationFullscreenExit, "")
	}
	s.emitState()
}

// HandleVisibility forwards a visibilitychange report to the monitor.
func (s *Session) HandleVisibility(hidden bool) {
	if !s.inProgress() {
		return
	}
	s.monitor.HandleVisibility(hidden)
}

// HandleBlur forwards a window blur report to the monitor.
func (s *Session) HandleBlur() {
	if !s.inProgress() {
		return
	}
	s.monitor.HandleBlur()
}

// HandleFocus forwards a window focus report to the monitor.
func (s *Session) HandleFocus() {
	if !s.inProgress() {
		return
	}
	s.monitor.HandleFocus()
}

// HandleKeyDown forwards a keydown report to the monitor. Returns whether the
// chord was on the deny-list.
func (s *Session) HandleKeyDown(ev KeyEvent) bool {
	if !s.inProgress() {
		return false
	}
	return s.monitor.HandleKeyDown(ev)
}

func (s *Session) inProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.phase == model.PhaseInProgress
}

// ─── Monitor callbacks ──────────────────────────────────────────────────────

func (s *Session) onTabSwitch(count int) {
	s.emitState()
}

func (s *Session) onWarn(count int) {
	s.mu.Lock()
	s.warningPending = true
	onWarning := s.cfg.Events.OnWarning
	s.mu.Unlock()

	s.log.Warn().Int("tab_switches", count).Msg("Tab switch warning threshold reached")
	if onWarning != nil {
		onWarning(count, s.cfg.MaxTabSwitches)
	}
	s.emitState()
}

func (s *Session) onLock(count int) {
	s.mu.Lock()
	if s.closed || s.phase != model.PhaseInProgress {
		s.mu.Unlock()
		return
	}
	// Block interaction behind the terminal notice, then give the client a
	// short grace window to render it before the submission fires.
	s.warningPending = true
	s.lockTimer = time.AfterFunc(s.cfg.LockGrace, s.autoSubmit)
	onLocked := s.cfg.Events.OnLocked
	s.mu.Unlock()

	s.log.Warn().Int("tab_switches", count).Msg("Lock condition reached, scheduling auto-submit")
	if onLocked != nil {
		onLocked(count, s.cfg.MaxTabSwitches)
	}
	s.emitState()
}

func (s *Session) autoSubmit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beginSubmissionLocked(model.TriggerLock)
}

func (s *Session) onViolation(kind model.ViolationKind, detail string) {
	s.recordViolation(kind, detail)
}

func (s *Session) recordViolation(kind model.ViolationKind, detail string) {
	tabSwitches, _, _, _ := s.monitor.Snapshot()
	ev := model.ViolationEvent{
		ExamID:      s.cfg.Exam.ID,
		StudentID:   s.cfg.StudentID,
		Kind:        kind,
		TabSwitches: tabSwitches,
		Detail:      detail,
		OccurredAt:  time.Now(),
	}

	s.mu.Lock()
	s.violations = append(s.violations, ev)
	s.mu.Unlock()

	if s.cfg.Audit != nil {
		s.cfg.Audit(ev)
	}
}

// ─── Submission ─────────────────────────────────────────────────────────────

// beginSubmissionLocked is the single guarded entry into SUBMITTING. Callers
// hold s.mu. The timer, the lock path and the user can all race here in the
// same tick; the phase check makes every attempt after the first a no-op.
func (s *Session) beginSubmissionLocked(trigger model.SubmitTrigger) {
	if s.phase != model.PhaseInProgress {
		return
	}

	s.phase = model.PhaseSubmitting
	// Elapsed time is fixed at the moment of transition, not when the network
	// call eventually resolves.
	s.elapsedMinutes = (s.durationSeconds - s.timeRemaining) / 60
	s.stopTicker()

	answers := make(map[uuid.UUID]int, len(s.answers))
	for q, a := range s.answers {
		answers[q] = a
	}

	s.log.Info().
		Str("trigger", string(trigger)).
		Int("answered", len(answers)).
		Int("elapsed_minutes", s.elapsedMinutes).
		Msg("Submitting exam attempt")

	go s.submit(trigger, answers, s.elapsedMinutes)
}

func (s *Session) submit(trigger model.SubmitTrigger, answers map[uuid.UUID]int, elapsedMinutes int) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SubmitTimeout)
	defer cancel()

	res, err := s.cfg.Submitter.Submit(ctx, s.cfg.Bearer, model.SubmissionRequest{
		ExamID:           s.cfg.Exam.ID,
		Answers:          answers,
		TimeSpentMinutes: elapsedMinutes,
	})

	s.mu.Lock()
	closed := s.closed
	if err == nil {
		s.phase = model.PhaseSubmitted
	}
	s.mu.Unlock()

	// Enforcement ends as soon as the attempt is terminal, on both outcomes:
	// the learner must get their browser back even if the recording failed.
	s.monitor.Unmount()
	_ = s.fullscreen.Exit()

	if err != nil {
		s.log.Error().Err(err).Str("trigger", string(trigger)).Msg("Submission failed")
		if closed {
			return
		}
		if s.cfg.Events.OnSubmitFailed != nil {
			// Hand the answers back so the client can keep them visible until
			// the learner acknowledges the failure.
			s.cfg.Events.OnSubmitFailed(err, answers)
		}
		return
	}

	s.log.Info().
		Float64("score", res.Score).
		Float64("total_score", res.TotalScore).
		Msg("Exam attempt recorded")

	if closed {
		return
	}
	if s.cfg.Events.OnSubmitted != nil {
		s.cfg.Events.OnSubmitted(res, elapsedMinutes)
	}
	s.emitState()
}

// ─── Teardown & reporting ───────────────────────────────────────────────────

// Close tears the session down: the ticker stops, the monitor unmounts and its
// suppressions are revoked, and a submission resolving afterwards will not
// reach the client. Idempotent, safe on every exit path.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.lockTimer != nil {
		s.lockTimer.Stop()
	}
	s.mu.Unlock()

	s.stopTicker()
	s.monitor.Unmount()
	s.log.Info().Msg("Exam session closed")
}

// Active reports whether the attempt is live (started, not submitted, not torn
// down).
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && (s.phase == model.PhaseInProgress || s.phase == model.PhaseSubmitting)
}

// Phase returns the current lifecycle phase.
func (s *Session) Phase() model.SessionPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Answers returns a copy of the current answer map.
func (s *Session) Answers() map[uuid.UUID]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]int, len(s.answers))
	for q, a := range s.answers {
		out[q] = a
	}
	return out
}

// Violations returns the recorded violation sequence for the attempt.
func (s *Session) Violations() []model.ViolationEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ViolationEvent, len(s.violations))
	copy(out, s.violations)
	return out
}

// Snapshot assembles the current state view.
func (s *Session) Snapshot() StateSnapshot {
	tabSwitches, violations, warningShown, locked := s.monitor.Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()
	return StateSnapshot{
		Phase:             s.phase,
		FullscreenPending: s.fullscreenPending,
		WarningPending:    s.warningPending,
		TimeRemaining:     s.timeRemaining,
		Answered:          len(s.answers),
		Security: model.SecurityState{
			Fullscreen:          s.fullscreen.Active(),
			FullscreenSupported: s.cfg.FullscreenSupported,
			TabSwitches:         tabSwitches,
			Violations:          violations,
			WarningShown:        warningShown,
			Locked:              locked,
		},
	}
}

func (s *Session) emitState() {
	if s.cfg.Events.OnState == nil {
		return
	}
	s.cfg.Events.OnState(s.Snapshot())
}
