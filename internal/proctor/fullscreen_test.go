package proctor

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type commandRecorder struct {
	commands []Command
}

func (r *commandRecorder) sink(cmd Command) {
	r.commands = append(r.commands, cmd)
}

func (r *commandRecorder) kinds() []CommandKind {
	out := make([]CommandKind, 0, len(r.commands))
	for _, cmd := range r.commands {
		out = append(out, cmd.Kind)
	}
	return out
}

func TestFullscreenEnterUnsupported(t *testing.T) {
	rec := &commandRecorder{}
	fc := NewFullscreenController(false, rec.sink, nil, zerolog.Nop())

	err := fc.Enter()
	assert.ErrorIs(t, err, ErrFullscreenUnsupported)
	assert.Empty(t, rec.commands)
}

func TestFullscreenEnterIssuesCommandOnce(t *testing.T) {
	rec := &commandRecorder{}
	fc := NewFullscreenController(true, rec.sink, nil, zerolog.Nop())

	require.NoError(t, fc.Enter())
	assert.Equal(t, []CommandKind{CommandEnterFullscreen}, rec.kinds())

	// Active after the client confirms; Enter is now a no-op.
	fc.HandleChange(true)
	require.NoError(t, fc.Enter())
	assert.Equal(t, []CommandKind{CommandEnterFullscreen}, rec.kinds())
}

func TestFullscreenChangeFiresCallbackOnTransitionOnly(t *testing.T) {
	var transitions []bool
	fc := NewFullscreenController(true, func(Command) {}, func(active bool) {
		transitions = append(transitions, active)
	}, zerolog.Nop())

	fc.HandleChange(true)
	fc.HandleChange(true) // Duplicate report, no transition
	fc.HandleChange(false)

	assert.Equal(t, []bool{true, false}, transitions)
}

func TestFullscreenHandleResult(t *testing.T) {
	fc := NewFullscreenController(true, func(Command) {}, nil, zerolog.Nop())

	assert.NoError(t, fc.HandleResult(true, ""))

	err := fc.HandleResult(false, "permission denied")
	var rejected *FullscreenRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "permission denied", rejected.Reason)
}

func TestFullscreenExitOnlyWhenActive(t *testing.T) {
	rec := &commandRecorder{}
	fc := NewFullscreenController(true, rec.sink, nil, zerolog.Nop())

	require.NoError(t, fc.Exit())
	assert.Empty(t, rec.commands)

	fc.HandleChange(true)
	require.NoError(t, fc.Exit())
	assert.Equal(t, []CommandKind{CommandExitFullscreen}, rec.kinds())
}
