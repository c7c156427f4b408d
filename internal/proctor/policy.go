package proctor

// Decision is the escalation outcome for a given violation tally.
type Decision string

const (
	DecisionNone Decision = "NONE"
	DecisionWarn Decision = "WARN"
	DecisionLock Decision = "LOCK"
)

// EscalationInput is everything the policy is allowed to look at. Violations is
// carried for completeness but does not feed any threshold: window blurs are an
// independent, display-only signal.
type EscalationInput struct {
	TabSwitches      int
	Violations       int
	MaxTabSwitches   int
	WarningThreshold int
	WarningShown     bool
}

// Escalate maps a violation tally to an action. It holds no state and is safe
// to re-evaluate with the same inputs: lock wins over warn, and a warning that
// was already shown stays shown for the rest of the session.
func Escalate(in EscalationInput) Decision {
	if in.TabSwitches >= in.MaxTabSwitches {
		return DecisionLock
	}
	if in.TabSwitches >= in.WarningThreshold && !in.WarningShown {
		return DecisionWarn
	}
	return DecisionNone
}
