// Package policy decides whether a classified broadcast is shown to the user.
package policy

import (
	"github.com/linnemanlabs/cbwatch/internal/broadcast"
	"github.com/linnemanlabs/cbwatch/internal/classify"
	"github.com/linnemanlabs/cbwatch/internal/prefs"
)

// Decision is the delivery verdict for one message.
type Decision struct {
	Deliver          bool `json:"deliver"`
	TreatAsEmergency bool `json:"treat_as_emergency"`
}

// Filter maps categories onto their user preference toggles. Its zero value is ready to use.
type Filter struct{}

// Decide returns the decision for msg. Presidential alerts are always delivered.
func (Filter) Decide(_ *broadcast.Message, cl classify.Classification, snap prefs.Snapshot) Decision {
	return Decision{
		Deliver:          enabled(cl.Category, snap),
		TreatAsEmergency: cl.IsEmergencyAlert,
	}
}

// Toggle returns the preference key gating category c, or "" when c is not suppressible.
func Toggle(c classify.Category) string {
	switch c {
	case classify.CategoryEtwsTest:
		return prefs.KeyEnableEtwsTestAlerts
	case classify.CategoryCmasExtreme, classify.CategoryCmasSevere:
		return prefs.KeyEnableCmasImminentThreatAlerts
	case classify.CategoryCmasAmber:
		return prefs.KeyEnableCmasAmberAlerts
	case classify.CategoryCmasRequiredMonthlyTest:
		return prefs.KeyEnableCmasTestAlerts
	default:
		return ""
	}
}

func enabled(c classify.Category, snap prefs.Snapshot) bool {
	if c == classify.CategoryCmasPresidential {
		return true
	}
	key := Toggle(c)
	if key == "" {
		return true
	}
	return snap.Bool(key)
}
