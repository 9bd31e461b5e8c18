package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/linnemanlabs/cbwatch/internal/pdu"
)

// Action names the intent a batch of PDUs arrived with.
type Action string

const (
	ActionGSMEmergency  Action = "GSM_EMERGENCY"
	ActionGSMNormal     Action = "GSM_NORMAL"
	ActionCDMAEmergency Action = "CDMA_EMERGENCY"
)

// ParseAction validates s as an Action.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionGSMEmergency, ActionGSMNormal, ActionCDMAEmergency:
		return a, nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

// UnmarshalJSON rejects unknown actions.
func (a *Action) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAction(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Format returns the PDU format the action carries.
func (a Action) Format() pdu.Format {
	switch a {
	case ActionGSMEmergency, ActionGSMNormal:
		return pdu.FormatGSM
	case ActionCDMAEmergency:
		return pdu.FormatCDMA
	default:
		return pdu.FormatUnknown
	}
}

// Emergency reports whether the radio flagged the batch as an emergency broadcast.
func (a Action) Emergency() bool {
	return a == ActionGSMEmergency || a == ActionCDMAEmergency
}

// Batch is one unit of work: the raw pages of a single broadcast.
type Batch struct {
	ID         string
	Action     Action
	PDUs       [][]byte
	ReceivedAt time.Time
}
