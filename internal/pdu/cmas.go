package pdu

// Severity is the CMAS alert severity.
type Severity int

const (
	SeverityUnknown Severity = iota
	SeverityExtreme
	SeveritySevere
)

// Urgency is the CMAS alert urgency.
type Urgency int

const (
	UrgencyUnknown Urgency = iota
	UrgencyImmediate
	UrgencyExpected
)

// Certainty is the CMAS alert certainty.
type Certainty int

const (
	CertaintyUnknown Certainty = iota
	CertaintyObserved
	CertaintyLikely
)

func (s Severity) String() string {
	switch s {
	case SeverityExtreme:
		return "extreme"
	case SeveritySevere:
		return "severe"
	default:
		return "unknown"
	}
}

func (u Urgency) String() string {
	switch u {
	case UrgencyImmediate:
		return "immediate"
	case UrgencyExpected:
		return "expected"
	default:
		return "unknown"
	}
}

func (c Certainty) String() string {
	switch c {
	case CertaintyObserved:
		return "observed"
	case CertaintyLikely:
		return "likely"
	default:
		return "unknown"
	}
}

func (s Severity) MarshalText() ([]byte, error)  { return []byte(s.String()), nil }
func (u Urgency) MarshalText() ([]byte, error)   { return []byte(u.String()), nil }
func (c Certainty) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// severityFromWire maps the 4 bit CMAS severity field, 3GPP2 C.S0015 4.5.21.
func severityFromWire(v uint32) Severity {
	switch v {
	case 0:
		return SeverityExtreme
	case 1:
		return SeveritySevere
	default:
		return SeverityUnknown
	}
}

func urgencyFromWire(v uint32) Urgency {
	switch v {
	case 0:
		return UrgencyImmediate
	case 1:
		return UrgencyExpected
	default:
		return UrgencyUnknown
	}
}

func certaintyFromWire(v uint32) Certainty {
	switch v {
	case 0:
		return CertaintyObserved
	case 1:
		return CertaintyLikely
	default:
		return CertaintyUnknown
	}
}

// CmasCategory is the CMAS event category as sent on the air.
type CmasCategory int

var cmasCategoryNames = [...]string{
	"geo", "met", "safety", "security", "rescue", "fire",
	"health", "env", "transport", "infra", "cbrne", "other",
}

func (c CmasCategory) String() string {
	if c >= 0 && int(c) < len(cmasCategoryNames) {
		return cmasCategoryNames[c]
	}
	return "unknown"
}

func (c CmasCategory) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// CmasResponseType is the CMAS recommended response as sent on the air.
type CmasResponseType int

var cmasResponseNames = [...]string{
	"shelter", "evacuate", "prepare", "execute", "monitor", "avoid", "assess", "none",
}

func (r CmasResponseType) String() string {
	if r >= 0 && int(r) < len(cmasResponseNames) {
		return cmasResponseNames[r]
	}
	return "unknown"
}

func (r CmasResponseType) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// CmasRecord holds the fields of the CMAS user data records. Fields of records that were
// not present keep their zero value. Identifier, AlertHandling and Language come from
// record type 2.
type CmasRecord struct {
	Version       int              `json:"version"`
	Category      CmasCategory     `json:"category"`
	ResponseType  CmasResponseType `json:"response_type"`
	Severity      Severity         `json:"severity"`
	Urgency       Urgency          `json:"urgency"`
	Certainty     Certainty        `json:"certainty"`
	Identifier    int              `json:"identifier"`
	AlertHandling int              `json:"alert_handling"`
	Language      int              `json:"language"`
	HasMetadata   bool             `json:"-"`
}
