package websocket

import (
	"github.com/stemsi/exstem-proctor/internal/proctor"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionStart            Action = "start"
	ActionAnswer           Action = "answer"
	ActionSubmit           Action = "submit"
	ActionAckWarning       Action = "ack_warning"
	ActionRetryFullscreen  Action = "retry_fullscreen"
	ActionFullscreenResult Action = "fullscreen_result"
	ActionFullscreenChange Action = "fullscreen_change"
	ActionVisibility       Action = "visibility"
	ActionBlur             Action = "blur"
	ActionFocus            Action = "focus"
	ActionKeyDown          Action = "keydown"
	ActionPing             Action = "ping"
)

// RequestPayload is the single inbound frame shape; which fields are read
// depends on the action. Keeping one struct mirrors how the client batches its
// event forwarding. Frames are validated against the binding tags before
// dispatch; an invalid frame is answered with a field error map.
type RequestPayload struct {
	Action Action `json:"action" binding:"required"`

	// start
	FullscreenSupported bool `json:"fullscreen_supported,omitempty"`

	// answer
	QID    string `json:"q_id,omitempty" binding:"required_if=Action answer,omitempty,uuid"`
	Option *int   `json:"option,omitempty" binding:"required_if=Action answer,omitempty,gte=0"`

	// fullscreen_result
	OK     bool   `json:"ok,omitempty"`
	Reason string `json:"reason,omitempty" binding:"max=256"`

	// fullscreen_change
	Active bool `json:"active,omitempty"`

	// visibility
	Hidden bool `json:"hidden,omitempty"`

	// keydown
	Key proctor.KeyEvent `json:"key,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState     Event = "state"
	EventCommand   Event = "command"
	EventTick      Event = "tick"
	EventWarning   Event = "warning"
	EventLocked    Event = "locked"
	EventSubmitted Event = "submitted"
	EventError     Event = "error"
	EventPong      Event = "pong"
)

// StateResponse pushes the full session snapshot after a transition.
type StateResponse struct {
	Event Event                 `json:"event"`
	State proctor.StateSnapshot `json:"state"`
}

// CommandResponse carries an environment directive (fullscreen requests,
// suppression rules, restore).
type CommandResponse struct {
	Event   Event           `json:"event"`
	Command proctor.Command `json:"command"`
}

// TickResponse is the per-second countdown frame.
type TickResponse struct {
	Event         Event `json:"event"`
	TimeRemaining int   `json:"time_remaining"`
}

// WarningResponse is the blocking one-shot tab-switch warning.
type WarningResponse struct {
	Event          Event `json:"event"`
	TabSwitches    int   `json:"tab_switches"`
	MaxTabSwitches int   `json:"max_tab_switches"`
}

// LockedResponse is the terminal lock notice; auto-submission follows after
// the grace delay.
type LockedResponse struct {
	Event          Event `json:"event"`
	TabSwitches    int   `json:"tab_switches"`
	MaxTabSwitches int   `json:"max_tab_switches"`
}

// SubmittedResponse reports the recorded result.
type SubmittedResponse struct {
	Event            Event   `json:"event"`
	Score            float64 `json:"score"`
	TotalScore       float64 `json:"total_score"`
	TimeSpentMinutes int     `json:"time_spent_minutes"`
}

// ErrorResponse reports a failure. Answers are echoed back on terminal
// submission failures so nothing answered is silently lost; Fields carries
// translated validation errors for rejected frames.
type ErrorResponse struct {
	Event   Event             `json:"event"`
	Error   string            `json:"error"`
	Fields  map[string]string `json:"fields,omitempty"`
	Answers map[string]int    `json:"answers,omitempty"`
}

// PongResponse answers a ping.
type PongResponse struct {
	Event Event `json:"event"`
}
