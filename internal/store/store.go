// Package store defines persistence for assembled broadcasts.
package store

import (
	"context"
	"time"

	"github.com/linnemanlabs/cbwatch/internal/broadcast"
	"github.com/linnemanlabs/cbwatch/internal/pdu"
)

// List limits.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Store is the persistence interface for broadcasts. Insert is idempotent on message ID.
type Store interface {
	Insert(ctx context.Context, msg *broadcast.Message) error
	Get(ctx context.Context, id string) (*broadcast.Message, bool, error)
	List(ctx context.Context, limit int) ([]*broadcast.Message, error)
	MarkRead(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// ClampLimit maps a requested list size onto [1, MaxListLimit], using DefaultListLimit for zero or less.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}

// Record is the flat column form of a message shared by the SQL backends.
// Pointer fields are NULL when the extension is absent.
type Record struct {
	ID                string
	Format            string
	MessageIdentifier int
	Serial            int
	Language          string
	Body              string
	DeliveryTime      time.Time
	Read              bool
	EtwsWarningType   *int
	EtwsUserAlert     *bool
	EtwsPopup         *bool
	CdmaSeverity      *int
	CdmaUrgency       *int
	CdmaCertainty     *int
	CdmaPriority      *int
}

// RecordFrom flattens msg.
func RecordFrom(msg *broadcast.Message) Record {
	r := Record{
		ID:                msg.ID,
		Format:            msg.Format.String(),
		MessageIdentifier: msg.MessageIdentifier,
		Serial:            int(msg.Serial),
		Language:          msg.Language,
		Body:              msg.Body,
		DeliveryTime:      msg.DeliveryTime.UTC(),
		Read:              msg.Read,
	}
	if e := msg.Etws; e != nil {
		wt := int(e.WarningType)
		r.EtwsWarningType = &wt
		r.EtwsUserAlert = &e.EmergencyUserAlert
		r.EtwsPopup = &e.Popup
	}
	if c := msg.Cdma; c != nil {
		sev, urg, cert, prio := int(c.Severity), int(c.Urgency), int(c.Certainty), int(c.Priority)
		r.CdmaSeverity = &sev
		r.CdmaUrgency = &urg
		r.CdmaCertainty = &cert
		r.CdmaPriority = &prio
	}
	return r
}

// Message rebuilds the message held in r.
func (r Record) Message() (*broadcast.Message, error) {
	format, err := pdu.ParseFormat(r.Format)
	if err != nil {
		return nil, err
	}
	msg := &broadcast.Message{
		ID:                r.ID,
		Format:            format,
		MessageIdentifier: r.MessageIdentifier,
		Serial:            pdu.SerialNumber(r.Serial),
		Language:          r.Language,
		Body:              r.Body,
		DeliveryTime:      r.DeliveryTime.UTC(),
		Read:              r.Read,
	}
	if r.EtwsWarningType != nil {
		msg.Etws = &pdu.EtwsWarning{
			WarningType:        pdu.EtwsWarningType(*r.EtwsWarningType),
			EmergencyUserAlert: deref(r.EtwsUserAlert),
			Popup:              deref(r.EtwsPopup),
		}
	}
	if format == pdu.FormatCDMA {
		msg.Cdma = &broadcast.CdmaInfo{
			Severity:  pdu.Severity(deref(r.CdmaSeverity)),
			Urgency:   pdu.Urgency(deref(r.CdmaUrgency)),
			Certainty: pdu.Certainty(deref(r.CdmaCertainty)),
			Priority:  pdu.Priority(deref(r.CdmaPriority)),
		}
	}
	return msg, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
