package proctor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// ErrFullscreenUnsupported is returned when the client environment reported no
// fullscreen capability at session start.
var ErrFullscreenUnsupported = errors.New("fullscreen is not supported by the client environment")

// FullscreenRejectedError wraps the client-side reason a fullscreen request was
// denied (user gesture required, permission denied). The caller must keep a
// retry affordance available rather than failing the attempt.
type FullscreenRejectedError struct {
	Reason string
}

func (e *FullscreenRejectedError) Error() string {
	return fmt.Sprintf("fullscreen request rejected: %s", e.Reason)
}

// FullscreenController tracks the client's fullscreen state and issues
// enter/exit requests over the command sink. State is updated exclusively from
// client-reported change events, so it reflects ground truth even when the
// user exits by native means (Escape key) rather than through this controller.
type FullscreenController struct {
	mu        sync.Mutex
	supported bool
	active    bool
	onChange  func(active bool)
	commands  CommandSink
	log       zerolog.Logger
}

// NewFullscreenController creates a controller for one attempt. supported comes
// from the client's capability report at session start. onChange fires on every
// ground-truth transition, regardless of who initiated it.
func NewFullscreenController(supported bool, commands CommandSink, onChange func(bool), log zerolog.Logger) *FullscreenController {
	return &FullscreenController{
		supported: supported,
		onChange:  onChange,
		commands:  commands,
		log:       log.With().Str("component", "fullscreen").Logger(),
	}
}

// Supported reports whether the client environment can go fullscreen.
func (f *FullscreenController) Supported() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.supported
}

// Active reports the live fullscreen state.
func (f *FullscreenController) Active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// Enter requests fullscreen from the client. The request is asynchronous; the
// outcome arrives later as a fullscreen result event. Calling Enter while
// already fullscreen is a no-op.
func (f *FullscreenController) Enter() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.supported {
		return ErrFullscreenUnsupported
	}
	if f.active {
		return nil
	}
	f.commands(Command{Kind: CommandEnterFullscreen})
	return nil
}

// Exit requests leaving fullscreen. Idempotent.
func (f *FullscreenController) Exit() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.supported || !f.active {
		return nil
	}
	f.commands(Command{Kind: CommandExitFullscreen})
	return nil
}

// HandleResult resolves a pending enter request. A rejection is surfaced as a
// FullscreenRejectedError; the session keeps the retry path open.
func (f *FullscreenController) HandleResult(ok bool, reason string) error {
	if ok {
		return nil
	}
	f.log.Warn().Str("reason", reason).Msg("Fullscreen request rejected by client")
	return &FullscreenRejectedError{Reason: reason}
}

// HandleChange applies a client-reported fullscreenchange notification. This is
// the only writer of the active flag.
func (f *FullscreenController) HandleChange(active bool) {
	f.mu.Lock()
	changed := f.active != active
	f.active = active
	onChange := f.onChange
	f.mu.Unlock()

	if changed && onChange != nil {
		onChange(active)
	}
}
