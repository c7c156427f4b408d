package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionPhase enumerates the exam attempt lifecycle.
type SessionPhase string

const (
	PhaseNotStarted SessionPhase = "NOT_STARTED"
	PhaseInProgress SessionPhase = "IN_PROGRESS"
	PhaseSubmitting SessionPhase = "SUBMITTING"
	PhaseSubmitted  SessionPhase = "SUBMITTED"
)

// SubmitTrigger tags which producer won the transition into SUBMITTING.
type SubmitTrigger string

const (
	TriggerUser  SubmitTrigger = "user"
	TriggerTimer SubmitTrigger = "timer"
	TriggerLock  SubmitTrigger = "lock"
)

// ViolationKind identifies a discrete secure-browsing deviation.
type ViolationKind string

const (
	ViolationTabSwitch      ViolationKind = "tab_switch"
	ViolationWindowBlur     ViolationKind = "window_blur"
	ViolationFullscreenExit ViolationKind = "fullscreen_exit"
	ViolationBlockedKey     ViolationKind = "blocked_key"
)

// ViolationEvent is one recorded deviation during an attempt. The session keeps
// the full sequence in memory and forwards each event to the audit queue.
type ViolationEvent struct {
	ExamID      uuid.UUID     `json:"exam_id"`
	StudentID   int           `json:"student_id"`
	Kind        ViolationKind `json:"kind"`
	TabSwitches int           `json:"tab_switches"`
	Detail      string        `json:"detail,omitempty"`
	OccurredAt  time.Time     `json:"occurred_at"`
}

// SecurityState aggregates the proctoring counters for one attempt.
// TabSwitches feeds the warning/lock thresholds; Violations counts window
// blurs and is reported but never gates anything. The two are intentionally
// independent signals.
type SecurityState struct {
	Fullscreen          bool `json:"fullscreen"`
	FullscreenSupported bool `json:"fullscreen_supported"`
	TabSwitches         int  `json:"tab_switches"`
	Violations          int  `json:"violations"`
	WarningShown        bool `json:"warning_shown"`
	Locked              bool `json:"locked"`
}
