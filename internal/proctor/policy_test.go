package proctor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscalate(t *testing.T) {
	tests := []struct {
		name string
		in   EscalationInput
		want Decision
	}{
		{
			name: "below warning threshold",
			in:   EscalationInput{TabSwitches: 0, MaxTabSwitches: 3, WarningThreshold: 1},
			want: DecisionNone,
		},
		{
			name: "at warning threshold",
			in:   EscalationInput{TabSwitches: 1, MaxTabSwitches: 3, WarningThreshold: 1},
			want: DecisionWarn,
		},
		{
			name: "above warning threshold but warning already shown",
			in:   EscalationInput{TabSwitches: 2, MaxTabSwitches: 3, WarningThreshold: 1, WarningShown: true},
			want: DecisionNone,
		},
		{
			name: "at max tab switches",
			in:   EscalationInput{TabSwitches: 3, MaxTabSwitches: 3, WarningThreshold: 1, WarningShown: true},
			want: DecisionLock,
		},
		{
			name: "lock wins over warn when thresholds coincide",
			in:   EscalationInput{TabSwitches: 1, MaxTabSwitches: 1, WarningThreshold: 1},
			want: DecisionLock,
		},
		{
			name: "beyond max still locks",
			in:   EscalationInput{TabSwitches: 10, MaxTabSwitches: 3, WarningThreshold: 1, WarningShown: true},
			want: DecisionLock,
		},
		{
			name: "blur violations never feed the thresholds",
			in:   EscalationInput{TabSwitches: 0, Violations: 50, MaxTabSwitches: 3, WarningThreshold: 1},
			want: DecisionNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Escalate(tt.in))
		})
	}
}
