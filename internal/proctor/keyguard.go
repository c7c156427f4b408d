package proctor

import "strings"

// KeyEvent is a keydown report from the monitored document. Key length is
// bounded at the wire boundary; real key values top out around
// "MediaTrackPrevious".
type KeyEvent struct {
	Key   string `json:"key" binding:"max=64"`
	Ctrl  bool   `json:"ctrl"`
	Shift bool   `json:"shift"`
	Alt   bool   `json:"alt"`
	Meta  bool   `json:"meta"`
}

// deniedChords is the fixed deny-list of keyboard chords intercepted while a
// monitor is mounted: new tab/window, close tab, tab switching, view source,
// save, print, devtools/console, command palette, incognito, fullscreen toggle.
var deniedChords = []string{
	"F11",
	"F12",
	"Ctrl+Shift+I",
	"Ctrl+Shift+J",
	"Ctrl+U",
	"Ctrl+S",
	"Ctrl+P",
	"Ctrl+Shift+P",
	"Alt+Tab",
	"Ctrl+Tab",
	"Ctrl+W",
	"Ctrl+T",
	"Ctrl+N",
	"Ctrl+Shift+N",
}

var deniedChordSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(deniedChords))
	for _, c := range deniedChords {
		set[strings.ToLower(c)] = struct{}{}
	}
	return set
}()

// Chord normalizes a key event into a Modifier+Key form matching the deny-list
// notation, e.g. "Ctrl+Shift+I" or "F12".
func Chord(ev KeyEvent) string {
	var b strings.Builder
	if ev.Ctrl {
		b.WriteString("Ctrl+")
	}
	if ev.Alt {
		b.WriteString("Alt+")
	}
	if ev.Shift {
		b.WriteString("Shift+")
	}
	if len(ev.Key) == 1 {
		b.WriteString(strings.ToUpper(ev.Key))
	} else {
		b.WriteString(ev.Key)
	}
	return b.String()
}

// KeyDenied reports whether the chord for ev is on the deny-list.
func KeyDenied(ev KeyEvent) bool {
	_, ok := deniedChordSet[strings.ToLower(Chord(ev))]
	return ok
}

// DeniedChords returns the deny-list for pushing to the client, which needs it
// to preventDefault synchronously; the server-side check is the audit record.
func DeniedChords() []string {
	out := make([]string, len(deniedChords))
	copy(out, deniedChords)
	return out
}
