package modem

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/cbwatch/internal/pipeline"
)

const (
	cbmPrefix = "+CBM:"

	etwsPrimaryMaxLen = 56
	gsmMaxLen         = 88
	gsmHeaderLen      = 6

	// DefaultPageExpiry bounds how long pages of an incomplete message are kept.
	DefaultPageExpiry = 60 * time.Second
)

// Identifiers in this range are flagged as emergency broadcasts.
const (
	pwsFirst = 0x1100
	pwsLast  = 0x18ff
)

// Submitter accepts assembled batches.
type Submitter interface {
	Submit(ctx context.Context, b pipeline.Batch) (string, error)
}

type pageKey struct {
	serial uint16
	id     uint16
}

type pageSet struct {
	pages    [][]byte
	received int
	first    time.Time
}

// Collector groups +CBM pages into batches, one per complete message.
type Collector struct {
	submitter Submitter
	logger    log.Logger
	expiry    time.Duration
	now       func() time.Time

	mu      sync.Mutex
	pending map[pageKey]*pageSet
}

// NewCollector returns a collector that submits complete messages to submitter.
func NewCollector(submitter Submitter, logger log.Logger) *Collector {
	if logger == nil {
		logger = log.Nop()
	}
	return &Collector{
		submitter: submitter,
		logger:    logger,
		expiry:    DefaultPageExpiry,
		now:       time.Now,
		pending:   make(map[pageKey]*pageSet),
	}
}

// WithExpiry overrides DefaultPageExpiry.
func (c *Collector) WithExpiry(d time.Duration) *Collector {
	c.expiry = d
	return c
}

// WithClock overrides the clock used for page expiry.
func (c *Collector) WithClock(now func() time.Time) *Collector {
	c.now = now
	return c
}

// Attach routes the session's +CBM results to the collector.
func (c *Collector) Attach(ctx context.Context, s *Session) {
	s.OnIndication(cbmPrefix, 1, func(lines []string) {
		c.HandleIndication(ctx, lines)
	})
}

// HandleIndication accepts the two lines of a PDU mode +CBM result: the header with the
// octet count and the hex encoded page.
func (c *Collector) HandleIndication(ctx context.Context, lines []string) {
	if len(lines) != 2 {
		c.logger.Warn(ctx, "malformed cbm indication", "lines", len(lines))
		return
	}
	raw, err := hex.DecodeString(strings.TrimSpace(lines[1]))
	if err != nil {
		c.logger.Warn(ctx, "cbm pdu is not hex", "header", lines[0], "error", err)
		return
	}
	c.HandlePage(ctx, raw)
}

// HandlePage adds one raw GSM page and submits the message once all pages are present.
func (c *Collector) HandlePage(ctx context.Context, raw []byte) {
	if len(raw) < gsmHeaderLen {
		c.logger.Warn(ctx, "dropping short cbm page", "octets", len(raw))
		return
	}

	// ETWS primary notifications and UMTS messages arrive whole.
	if len(raw) <= etwsPrimaryMaxLen || len(raw) > gsmMaxLen {
		id := binary.BigEndian.Uint16(raw[2:4])
		if len(raw) > gsmMaxLen {
			id = binary.BigEndian.Uint16(raw[1:3])
		}
		c.submit(ctx, id, [][]byte{raw})
		return
	}

	key := pageKey{
		serial: binary.BigEndian.Uint16(raw[0:2]),
		id:     binary.BigEndian.Uint16(raw[2:4]),
	}
	index, total := int(raw[5]>>4), int(raw[5]&0x0f)
	if index == 0 || total == 0 || index > total {
		index, total = 1, 1
	}
	if total == 1 {
		c.submit(ctx, key.id, [][]byte{raw})
		return
	}

	pages, ok := c.add(ctx, key, index, total, raw)
	if ok {
		c.submit(ctx, key.id, pages)
	}
}

func (c *Collector) add(ctx context.Context, key pageKey, index, total int, raw []byte) ([][]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, set := range c.pending {
		if now.Sub(set.first) > c.expiry {
			c.logger.Warn(ctx, "discarding incomplete broadcast",
				"message_identifier", k.id,
				"serial", k.serial,
				"pages", set.received,
				"total", len(set.pages),
			)
			delete(c.pending, k)
		}
	}

	set, ok := c.pending[key]
	if !ok || len(set.pages) != total {
		set = &pageSet{pages: make([][]byte, total), first: now}
		c.pending[key] = set
	}
	if set.pages[index-1] == nil {
		set.pages[index-1] = append([]byte(nil), raw...)
		set.received++
	}
	if set.received < total {
		return nil, false
	}
	delete(c.pending, key)
	return set.pages, true
}

// Pending returns the number of messages waiting for more pages.
func (c *Collector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Collector) submit(ctx context.Context, id uint16, pages [][]byte) {
	action := pipeline.ActionGSMNormal
	if id >= pwsFirst && id <= pwsLast {
		action = pipeline.ActionGSMEmergency
	}
	batchID, err := c.submitter.Submit(ctx, pipeline.Batch{Action: action, PDUs: pages})
	if err != nil {
		c.logger.Error(ctx, err, "submit broadcast from modem", "message_identifier", id)
		return
	}
	c.logger.Info(ctx, "broadcast received from modem",
		"batch_id", batchID,
		"message_identifier", fmt.Sprintf("0x%04x", id),
		"action", string(action),
		"pages", len(pages),
	)
}
