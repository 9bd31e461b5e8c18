package broadcast

import (
	"time"

	"github.com/linnemanlabs/cbwatch/internal/pdu"
)

// Message is one assembled cell broadcast.
type Message struct {
	ID                string           `json:"id"`
	Format            pdu.Format       `json:"format"`
	MessageIdentifier int              `json:"message_identifier"`
	Serial            pdu.SerialNumber `json:"serial"`
	Language          string           `json:"language"`
	Body              string           `json:"body"`
	DeliveryTime      time.Time        `json:"delivery_time"`
	Read              bool             `json:"read"`

	// Etws is set for GSM ETWS primary notifications.
	Etws *pdu.EtwsWarning `json:"etws,omitempty"`
	// Cdma is set when Format is pdu.FormatCDMA.
	Cdma *CdmaInfo `json:"cdma,omitempty"`
}

// CdmaInfo is the CDMA extension of a message.
type CdmaInfo struct {
	Severity  pdu.Severity  `json:"severity"`
	Urgency   pdu.Urgency   `json:"urgency"`
	Certainty pdu.Certainty `json:"certainty"`
	Priority  pdu.Priority  `json:"priority"`
}

// Clone returns a deep copy of m.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	cp := *m
	if m.Etws != nil {
		etws := *m.Etws
		cp.Etws = &etws
	}
	if m.Cdma != nil {
		cdma := *m.Cdma
		cp.Cdma = &cdma
	}
	return &cp
}

// IsCDMA reports whether the message was received on CDMA.
func (m *Message) IsCDMA() bool {
	return m.Format == pdu.FormatCDMA
}

func cdmaInfoFrom(f pdu.Fragment) *CdmaInfo {
	if f.Format != pdu.FormatCDMA {
		return nil
	}
	info := &CdmaInfo{}
	if f.Cdma == nil {
		return info
	}
	info.Priority = f.Cdma.Priority
	if c := f.Cdma.Cmas; c != nil {
		info.Severity = c.Severity
		info.Urgency = c.Urgency
		info.Certainty = c.Certainty
	}
	return info
}
