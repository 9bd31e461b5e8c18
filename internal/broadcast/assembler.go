// Package broadcast assembles decoded cell broadcast pages into messages.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/cbwatch/internal/pdu"
)

// ErrNoPDUs is returned when a batch carries no PDUs.
var ErrNoPDUs = errors.New("batch has no pdus")

// DecodeFunc decodes one PDU.
type DecodeFunc func(raw []byte, format pdu.Format) (pdu.Fragment, error)

// DropHook is called for every page after the first that could not be decoded.
// page is 1 based.
type DropHook func(format pdu.Format, page int, err error)

// Assembler merges the pages of one batch into a Message. It keeps no state between calls.
type Assembler struct {
	decode DecodeFunc
	now    func() time.Time
	onDrop DropHook
	logger log.Logger
}

// NewAssembler creates an assembler using pdu.Decode and the wall clock.
func NewAssembler(logger log.Logger) *Assembler {
	if logger == nil {
		logger = log.Nop()
	}
	return &Assembler{
		decode: pdu.Decode,
		now:    time.Now,
		logger: logger,
	}
}

// WithClock replaces the delivery time source.
func (a *Assembler) WithClock(now func() time.Time) *Assembler {
	a.now = now
	return a
}

// WithDecoder replaces the PDU decoder.
func (a *Assembler) WithDecoder(decode DecodeFunc) *Assembler {
	a.decode = decode
	return a
}

// WithDropHook registers a callback for dropped pages.
func (a *Assembler) WithDropHook(fn DropHook) *Assembler {
	a.onDrop = fn
	return a
}

// Assemble decodes pdus in arrival order and concatenates their bodies. Identifier, serial, language and
// format extensions come from the first page. A first page that fails to decode fails the batch; later pages
// that fail are logged and skipped.
func (a *Assembler) Assemble(ctx context.Context, format pdu.Format, pdus [][]byte) (*Message, error) {
	if len(pdus) == 0 {
		return nil, ErrNoPDUs
	}

	first, err := a.decode(pdus[0], format)
	if err != nil {
		return nil, fmt.Errorf("decode page 1: %w", err)
	}

	var body strings.Builder
	body.WriteString(first.Body)
	for i, raw := range pdus[1:] {
		page := i + 2
		frag, err := a.decode(raw, format)
		if err != nil {
			a.logger.Warn(ctx, "dropping undecodable page",
				"format", format.String(),
				"message_id", first.MessageIdentifier,
				"page", page,
				"pages", len(pdus),
				"error", err,
			)
			if a.onDrop != nil {
				a.onDrop(format, page, err)
			}
			continue
		}
		body.WriteString(frag.Body)
	}

	msg := &Message{
		ID:                ulid.Make().String(),
		Format:            first.Format,
		MessageIdentifier: first.MessageIdentifier,
		Serial:            first.Serial,
		Language:          first.Language,
		Body:              body.String(),
		DeliveryTime:      a.now().UTC(),
		Cdma:              cdmaInfoFrom(first),
	}
	if first.Etws != nil {
		etws := *first.Etws
		msg.Etws = &etws
	}
	return msg, nil
}
