package proctor

// CommandKind enumerates directives pushed to the exam-taking client.
type CommandKind string

const (
	CommandEnterFullscreen CommandKind = "enter_fullscreen"
	CommandExitFullscreen  CommandKind = "exit_fullscreen"
	CommandSuppress        CommandKind = "suppress"
	CommandRestore         CommandKind = "restore"
)

// Interaction rules a suppress/restore command applies to.
const (
	RuleContextMenu = "contextmenu"
	RuleSelectStart = "selectstart"
	RuleDragStart   = "dragstart"
)

// Command is a single directive for the client environment. Suppress and
// restore carry the affected rules; suppress additionally carries the keyboard
// deny-list so the client can preventDefault without a server round trip.
type Command struct {
	Kind   CommandKind `json:"kind"`
	Rules  []string    `json:"rules,omitempty"`
	Chords []string    `json:"chords,omitempty"`
}

// CommandSink delivers commands to the connected client. Delivery is
// best-effort: a client that never acts on a command is an accepted
// degradation, not a fault.
type CommandSink func(Command)
