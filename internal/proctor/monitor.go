package proctor

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// MonitorCallbacks are invoked synchronously on the goroutine that delivered
// the event. The monitor never mutates session state itself; it only reports.
type MonitorCallbacks struct {
	OnTabSwitch   func(count int)
	OnWindowBlur  func()
	OnWindowFocus func()
	OnWarn        func(count int)
	OnLock        func(count int)
	OnViolation   func(kind model.ViolationKind, detail string)
}

// MonitorConfig configures a LockMonitor for one attempt.
type MonitorConfig struct {
	MaxTabSwitches   int
	WarningThreshold int
	Callbacks        MonitorCallbacks
}

func (c MonitorConfig) validate() error {
	if c.MaxTabSwitches < 1 {
		return fmt.Errorf("max tab switches must be >= 1, got %d", c.MaxTabSwitches)
	}
	if c.WarningThreshold < 1 {
		return fmt.Errorf("warning threshold must be >= 1, got %d", c.WarningThreshold)
	}
	if c.WarningThreshold > c.MaxTabSwitches {
		return fmt.Errorf("warning threshold %d exceeds max tab switches %d", c.WarningThreshold, c.MaxTabSwitches)
	}
	return nil
}

// LockMonitor observes visibility, focus and keyboard reports while mounted,
// counts violations, and escalates through the policy. Suppression directives
// pushed on Mount are tracked and revoked one-for-one on Unmount, so whatever
// the client changed on our behalf is restored on every exit path.
type LockMonitor struct {
	cfg      MonitorConfig
	commands CommandSink
	log      zerolog.Logger

	mu           sync.Mutex
	mounted      bool
	tabSwitches  int
	violations   int
	warningShown bool
	locked       bool
	applied      []string
}

// NewLockMonitor validates the configuration and returns an unmounted monitor.
func NewLockMonitor(cfg MonitorConfig, commands CommandSink, log zerolog.Logger) (*LockMonitor, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("monitor config: %w", err)
	}
	return &LockMonitor{
		cfg:      cfg,
		commands: commands,
		log:      log.With().Str("component", "lock_monitor").Logger(),
	}, nil
}

// Mount activates monitoring and pushes the suppression directives
// (context menu, text selection, drag, keyboard deny-list). Idempotent.
func (m *LockMonitor) Mount() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mounted {
		return
	}
	m.mounted = true
	m.applied = []string{RuleContextMenu, RuleSelectStart, RuleDragStart}
	m.commands(Command{
		Kind:   CommandSuppress,
		Rules:  append([]string(nil), m.applied...),
		Chords: DeniedChords(),
	})
}

// Unmount deactivates monitoring and revokes exactly the directives Mount
// applied. Safe to call from any teardown path, any number of times.
func (m *LockMonitor) Unmount() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.mounted {
		return
	}
	m.mounted = false
	if len(m.applied) > 0 {
		m.commands(Command{Kind: CommandRestore, Rules: m.applied})
		m.applied = nil
	}
}

// HandleVisibility processes a visibilitychange report. A transition to hidden
// counts as one tab switch and fires both OnTabSwitch and OnWindowBlur (the
// original treats a hidden tab as both signals). Counters only ever grow.
func (m *LockMonitor) HandleVisibility(hidden bool) {
	m.mu.Lock()
	if !m.mounted {
		m.mu.Unlock()
		return
	}

	cb := m.cfg.Callbacks
	if !hidden {
		m.mu.Unlock()
		if cb.OnWindowFocus != nil {
			cb.OnWindowFocus()
		}
		return
	}

	m.tabSwitches++
	count := m.tabSwitches

	decision := Escalate(EscalationInput{
		TabSwitches:      m.tabSwitches,
		Violations:       m.violations,
		MaxTabSwitches:   m.cfg.MaxTabSwitches,
		WarningThreshold: m.cfg.WarningThreshold,
		WarningShown:     m.warningShown,
	})

	var warn, lock bool
	switch decision {
	case DecisionWarn:
		m.warningShown = true
		warn = true
	case DecisionLock:
		if !m.locked {
			m.locked = true
			lock = true
		}
	}
	m.mu.Unlock()

	if cb.OnViolation != nil {
		cb.OnViolation(model.ViolationTabSwitch, "")
	}
	if cb.OnTabSwitch != nil {
		cb.OnTabSwitch(count)
	}
	if cb.OnWindowBlur != nil {
		cb.OnWindowBlur()
	}
	if warn && cb.OnWarn != nil {
		cb.OnWarn(count)
	}
	if lock {
		m.log.Warn().Int("tab_switches", count).Msg("Maximum tab switches exceeded, session locked")
		if cb.OnLock != nil {
			cb.OnLock(count)
		}
	}
}

// HandleBlur processes a window blur report. Blur is an independent signal: it
// bumps the display-only violation counter and never feeds the lock threshold.
func (m *LockMonitor) HandleBlur() {
	m.mu.Lock()
	if !m.mounted {
		m.mu.Unlock()
		return
	}
	m.violations++
	cb := m.cfg.Callbacks
	m.mu.Unlock()

	if cb.OnViolation != nil {
		cb.OnViolation(model.ViolationWindowBlur, "")
	}
	if cb.OnWindowBlur != nil {
		cb.OnWindowBlur()
	}
}

// HandleFocus processes a window focus report.
func (m *LockMonitor) HandleFocus() {
	m.mu.Lock()
	mounted := m.mounted
	cb := m.cfg.Callbacks
	m.mu.Unlock()

	if mounted && cb.OnWindowFocus != nil {
		cb.OnWindowFocus()
	}
}

// HandleKeyDown checks a keydown report against the deny-list. Returns true if
// the chord is denied; denied chords are logged and audited, not escalated.
func (m *LockMonitor) HandleKeyDown(ev KeyEvent) bool {
	m.mu.Lock()
	mounted := m.mounted
	cb := m.cfg.Callbacks
	m.mu.Unlock()

	if !mounted || !KeyDenied(ev) {
		return false
	}

	chord := Chord(ev)
	m.log.Debug().Str("chord", chord).Msg("Blocked keyboard chord")
	if cb.OnViolation != nil {
		cb.OnViolation(model.ViolationBlockedKey, chord)
	}
	return true
}

// Snapshot returns the monitor's counters for state reporting.
func (m *LockMonitor) Snapshot() (tabSwitches, violations int, warningShown, locked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tabSwitches, m.violations, m.warningShown, m.locked
}

// Locked reports whether the terminal lock condition was reached.
func (m *LockMonitor) Locked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}
