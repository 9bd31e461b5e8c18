package modem

import (
	"context"
	"errors"
	"fmt"

	"github.com/linnemanlabs/cbwatch/internal/classify"
	"github.com/linnemanlabs/cbwatch/internal/pdu"
)

// ErrUnsupportedFormat is returned when asked to configure a non-GSM channel.
var ErrUnsupportedFormat = errors.New("modem: only gsm channels can be configured")

// setupCommands turn echo off, select PDU mode and route broadcasts to the terminal as +CBM.
var setupCommands = []string{
	"ATE0",
	"AT+CMGF=0",
	"AT+CNMI=2,0,2,0,0",
}

// Radio configures cell broadcast reception on the modem.
type Radio struct {
	session *Session
}

func NewRadio(s *Session) *Radio {
	return &Radio{session: s}
}

// Setup prepares the modem for receiving broadcasts.
func (r *Radio) Setup(ctx context.Context) error {
	if _, err := r.session.AT(ctx, "AT"); err != nil {
		return fmt.Errorf("modem: not responding: %w", err)
	}
	return r.session.ATs(ctx, setupCommands...)
}

// SetChannels accepts or rejects the message identifiers in iv with AT+CSCB.
func (r *Radio) SetChannels(ctx context.Context, format pdu.Format, iv classify.Interval, enable bool) error {
	if format != pdu.FormatGSM {
		return ErrUnsupportedFormat
	}
	_, err := r.session.AT(ctx, cscb(iv, enable))
	return err
}

func cscb(iv classify.Interval, enable bool) string {
	mode := 1
	if enable {
		mode = 0
	}
	mids := fmt.Sprintf("%d", iv.From)
	if iv.To != iv.From {
		mids = fmt.Sprintf("%d-%d", iv.From, iv.To)
	}
	return fmt.Sprintf(`AT+CSCB=%d,"%s"`, mode, mids)
}
