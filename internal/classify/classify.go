// Package classify maps assembled broadcasts onto the emergency alert taxonomy.
package classify

import (
	"github.com/linnemanlabs/cbwatch/internal/broadcast"
	"github.com/linnemanlabs/cbwatch/internal/pdu"
)

// GSM message identifiers, 3GPP TS 23.041 9.4.1.2.2.
const (
	GsmEtwsFirst                = 0x1100
	GsmEtwsEarthquake           = 0x1100
	GsmEtwsTsunami              = 0x1101
	GsmEtwsEarthquakeAndTsunami = 0x1102
	GsmEtwsTest                 = 0x1103
	GsmEtwsOther                = 0x1104
	GsmEtwsLast                 = 0x1107
	GsmCmasFirst                = 0x1112
	GsmCmasPresidential         = 0x1112
	GsmCmasExtremeFirst         = 0x1113
	GsmCmasExtremeLast          = 0x1116
	GsmCmasSevereFirst          = 0x1117
	GsmCmasSevereLast           = 0x111a
	GsmCmasAmber                = 0x111b
	GsmCmasRequiredMonthlyTest  = 0x111c
	GsmCmasExercise             = 0x111d
	GsmCmasOperatorDefined      = 0x111e
	GsmCmasLast                 = 0x112f
	GsmPwsFirst                 = 0x1100
	GsmPwsLast                  = 0x18ff
	GsmChannel50                = 50
)

// CDMA service categories, 3GPP2 C.R1001-G 9.3.3.
const (
	CdmaCmasFirst               = 0x1000
	CdmaCmasPresidential        = 0x1000
	CdmaCmasExtreme             = 0x1001
	CdmaCmasSevere              = 0x1002
	CdmaCmasAmber               = 0x1003
	CdmaCmasRequiredMonthlyTest = 0x1004
	CdmaCmasLast                = 0x10ff
	CdmaPwsFirst                = 0x1000
	CdmaPwsLast                 = 0x10ff
)

// Classification is the emergency taxonomy view of one message. It is recomputed for every use.
type Classification struct {
	IsPublicAlert              bool     `json:"is_public_alert"`
	IsEmergencyAlert           bool     `json:"is_emergency_alert"`
	IsEtws                     bool     `json:"is_etws"`
	IsCmas                     bool     `json:"is_cmas"`
	IsOperatorDefinedEmergency bool     `json:"is_operator_defined_emergency"`
	Category                   Category `json:"category"`
}

// TitleKey returns the notification title key, falling back to the generic public alert or broadcast keys
// when the identifier has no category of its own.
func (c Classification) TitleKey() string {
	if key := c.Category.TitleKey(); key != "" {
		return key
	}
	if c.IsPublicAlert || c.IsOperatorDefinedEmergency {
		return TitleKeyOtherPublicAlert
	}
	return TitleKeyOtherBroadcast
}

// Title returns the default english title for TitleKey.
func (c Classification) Title() string {
	return TitleFor(c.TitleKey())
}

// EmergencyGrade reports whether the message gets full alert treatment regardless of preferences.
func (c Classification) EmergencyGrade() bool {
	return c.IsEmergencyAlert || c.IsOperatorDefinedEmergency
}

// Classifier holds the operator defined emergency ranges. It is safe for concurrent use.
type Classifier struct {
	gsmOperator  IdentifierRange
	cdmaOperator IdentifierRange
}

// NewClassifier creates a classifier with the given operator defined emergency ranges.
func NewClassifier(gsmOperator, cdmaOperator IdentifierRange) *Classifier {
	return &Classifier{gsmOperator: gsmOperator, cdmaOperator: cdmaOperator}
}

// OperatorRange returns the operator defined emergency range for format.
func (c *Classifier) OperatorRange(format pdu.Format) IdentifierRange {
	if format == pdu.FormatCDMA {
		return c.cdmaOperator
	}
	return c.gsmOperator
}

// Classify classifies msg. It has no side effects.
func (c *Classifier) Classify(msg *broadcast.Message) Classification {
	id := msg.MessageIdentifier
	var cl Classification

	switch msg.Format {
	case pdu.FormatCDMA:
		cl.IsCmas = id >= CdmaCmasFirst && id <= CdmaCmasLast
		cl.Category = cdmaCategory(id)
		cl.IsOperatorDefinedEmergency = c.cdmaOperator.Contains(id)
	default:
		cl.IsEtws = id >= GsmEtwsFirst && id <= GsmEtwsLast
		cl.IsCmas = id >= GsmCmasFirst && id <= GsmCmasLast
		cl.Category = gsmCategory(id)
		cl.IsOperatorDefinedEmergency = c.gsmOperator.Contains(id)
	}

	cl.IsPublicAlert = cl.IsEtws || cl.IsCmas
	cl.IsEmergencyAlert = cl.IsPublicAlert && cl.Category != CategoryCmasAmber
	return cl
}

func gsmCategory(id int) Category {
	switch {
	case id == GsmEtwsEarthquake:
		return CategoryEtwsEarthquake
	case id == GsmEtwsTsunami:
		return CategoryEtwsTsunami
	case id == GsmEtwsEarthquakeAndTsunami:
		return CategoryEtwsEarthquakeAndTsunami
	case id == GsmEtwsTest:
		return CategoryEtwsTest
	case id == GsmEtwsOther:
		return CategoryEtwsOther
	case id == GsmCmasPresidential:
		return CategoryCmasPresidential
	case id >= GsmCmasExtremeFirst && id <= GsmCmasExtremeLast:
		return CategoryCmasExtreme
	case id >= GsmCmasSevereFirst && id <= GsmCmasSevereLast:
		return CategoryCmasSevere
	case id == GsmCmasAmber:
		return CategoryCmasAmber
	case id == GsmCmasRequiredMonthlyTest:
		return CategoryCmasRequiredMonthlyTest
	case id == GsmCmasExercise:
		return CategoryCmasExercise
	case id == GsmCmasOperatorDefined:
		return CategoryCmasOperatorDefined
	default:
		return CategoryNone
	}
}

func cdmaCategory(id int) Category {
	switch id {
	case CdmaCmasPresidential:
		return CategoryCmasPresidential
	case CdmaCmasExtreme:
		return CategoryCmasExtreme
	case CdmaCmasSevere:
		return CategoryCmasSevere
	case CdmaCmasAmber:
		return CategoryCmasAmber
	case CdmaCmasRequiredMonthlyTest:
		return CategoryCmasRequiredMonthlyTest
	default:
		return CategoryNone
	}
}
