package proctor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChord(t *testing.T) {
	tests := []struct {
		name string
		ev   KeyEvent
		want string
	}{
		{"plain function key", KeyEvent{Key: "F12"}, "F12"},
		{"single char is uppercased", KeyEvent{Key: "u", Ctrl: true}, "Ctrl+U"},
		{"modifier order is ctrl alt shift", KeyEvent{Key: "i", Ctrl: true, Shift: true}, "Ctrl+Shift+I"},
		{"alt chord", KeyEvent{Key: "Tab", Alt: true}, "Alt+Tab"},
		{"all modifiers", KeyEvent{Key: "x", Ctrl: true, Alt: true, Shift: true}, "Ctrl+Alt+Shift+X"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Chord(tt.ev))
		})
	}
}

func TestKeyDenied(t *testing.T) {
	denied := []KeyEvent{
		{Key: "F11"},
		{Key: "F12"},
		{Key: "i", Ctrl: true, Shift: true},
		{Key: "J", Ctrl: true, Shift: true},
		{Key: "u", Ctrl: true},
		{Key: "s", Ctrl: true},
		{Key: "p", Ctrl: true},
		{Key: "P", Ctrl: true, Shift: true},
		{Key: "Tab", Alt: true},
		{Key: "Tab", Ctrl: true},
		{Key: "w", Ctrl: true},
		{Key: "t", Ctrl: true},
		{Key: "n", Ctrl: true},
		{Key: "n", Ctrl: true, Shift: true},
	}
	for _, ev := range denied {
		assert.True(t, KeyDenied(ev), "expected %q to be denied", Chord(ev))
	}

	allowed := []KeyEvent{
		{Key: "a"},
		{Key: "c", Ctrl: true}, // Copy stays available
		{Key: "v", Ctrl: true}, // Paste stays available
		{Key: "F5"},
		{Key: "Enter"},
		{Key: "Tab"}, // Unmodified tab is normal form navigation
	}
	for _, ev := range allowed {
		assert.False(t, KeyDenied(ev), "expected %q to be allowed", Chord(ev))
	}
}

func TestDeniedChordsReturnsCopy(t *testing.T) {
	chords := DeniedChords()
	assert.NotEmpty(t, chords)

	chords[0] = "mutated"
	assert.NotEqual(t, "mutated", DeniedChords()[0])
}
