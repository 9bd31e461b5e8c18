// Package channelcfg decides which cell broadcast message identifiers the radio
// should listen to and pushes that selection to it.
package channelcfg

import (
	"context"
	"errors"
	"fmt"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/cbwatch/internal/classify"
	"github.com/linnemanlabs/cbwatch/internal/pdu"
	"github.com/linnemanlabs/cbwatch/internal/prefs"
)

// Full public warning ranges listened to when no operator range is configured.
var (
	GSMPublicWarningRange  = classify.Interval{From: 0x1100, To: 0x18ff}
	CDMAPublicWarningRange = classify.Interval{From: 0x1000, To: 0x10ff}
	Channel50              = classify.Interval{From: 50, To: 50}
)

// Plan is the channel selection for one format.
type Plan struct {
	Format  pdu.Format          `json:"format"`
	Enable  []classify.Interval `json:"enable"`
	Disable []classify.Interval `json:"disable"`
}

// Planner computes channel plans from the operator ranges and the preferences.
type Planner struct {
	gsm        classify.IdentifierRange
	cdma       classify.IdentifierRange
	showBrazil bool
}

// NewPlanner parses the operator identifier strings. Malformed tokens are logged and
// skipped; the returned errors list them.
func NewPlanner(ctx context.Context, gsmIDs, cdmaIDs string, showBrazil bool, logger log.Logger) (*Planner, []error) {
	if logger == nil {
		logger = log.Nop()
	}
	gsm, gsmErrs := classify.ParseIdentifierRange(gsmIDs)
	cdma, cdmaErrs := classify.ParseIdentifierRange(cdmaIDs)
	for _, err := range gsmErrs {
		logger.Warn(ctx, "ignoring gsm emergency id", "error", err)
	}
	for _, err := range cdmaErrs {
		logger.Warn(ctx, "ignoring cdma emergency id", "error", err)
	}
	p := &Planner{gsm: gsm, cdma: cdma, showBrazil: showBrazil}
	return p, append(gsmErrs, cdmaErrs...)
}

// OperatorRange returns the parsed operator emergency range of format.
func (p *Planner) OperatorRange(format pdu.Format) classify.IdentifierRange {
	if format == pdu.FormatCDMA {
		return p.cdma
	}
	return p.gsm
}

// Plan returns the channels to enable and disable for format under snap.
func (p *Planner) Plan(format pdu.Format, snap prefs.Snapshot) Plan {
	plan := Plan{Format: format, Enable: []classify.Interval{}, Disable: []classify.Interval{}}

	ranges := p.emergencyRanges(format)
	if snap.Bool(prefs.KeyEnableEmergencyAlerts) {
		plan.Enable = append(plan.Enable, ranges...)
	} else {
		plan.Disable = append(plan.Disable, ranges...)
	}

	if format == pdu.FormatGSM {
		if p.showBrazil && snap.Bool(prefs.KeyEnableChannel50Alerts) {
			plan.Enable = append(plan.Enable, Channel50)
		} else {
			plan.Disable = append(plan.Disable, Channel50)
		}
	}
	return plan
}

func (p *Planner) emergencyRanges(format pdu.Format) []classify.Interval {
	if op := p.OperatorRange(format); !op.Empty() {
		return op.Intervals()
	}
	if format == pdu.FormatCDMA {
		return []classify.Interval{CDMAPublicWarningRange}
	}
	return []classify.Interval{GSMPublicWarningRange}
}

// Radio accepts channel selections.
type Radio interface {
	SetChannels(ctx context.Context, format pdu.Format, iv classify.Interval, enable bool) error
}

// Configurator applies plans to a radio.
type Configurator struct {
	planner *Planner
	source  prefs.Source
	radio   Radio
	logger  log.Logger
}

func NewConfigurator(planner *Planner, source prefs.Source, radio Radio, logger log.Logger) *Configurator {
	if planner == nil || radio == nil {
		panic(xerrors.New("channelcfg: planner and radio are required"))
	}
	if source == nil {
		source = prefs.NewMemory(nil)
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Configurator{planner: planner, source: source, radio: radio, logger: logger}
}

// Apply pushes the current plan for format to the radio. Every interval is attempted;
// the failures are joined.
func (c *Configurator) Apply(ctx context.Context, format pdu.Format) (Plan, error) {
	snap, err := c.source.Snapshot(ctx)
	if err != nil {
		c.logger.Warn(ctx, "preferences unavailable, using defaults", "error", err)
		snap = prefs.Defaults()
	}
	plan := c.planner.Plan(format, snap)

	var errs []error
	for _, iv := range plan.Enable {
		if err := c.radio.SetChannels(ctx, format, iv, true); err != nil {
			errs = append(errs, fmt.Errorf("enable %s: %w", iv, err))
		}
	}
	for _, iv := range plan.Disable {
		if err := c.radio.SetChannels(ctx, format, iv, false); err != nil {
			errs = append(errs, fmt.Errorf("disable %s: %w", iv, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		c.logger.Error(ctx, err, "channel configuration incomplete", "format", format.String())
		return plan, err
	}

	c.logger.Info(ctx, "channels configured",
		"format", format.String(),
		"enabled", len(plan.Enable),
		"disabled", len(plan.Disable),
	)
	return plan, nil
}
