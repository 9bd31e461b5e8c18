package pdu

import (
	"fmt"
	"strings"
)

// Format is the radio technology a PDU was received on.
type Format int

const (
	FormatUnknown Format = iota
	FormatGSM
	FormatCDMA
)

func (f Format) String() string {
	switch f {
	case FormatGSM:
		return "gsm"
	case FormatCDMA:
		return "cdma"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Format) UnmarshalText(text []byte) error {
	parsed, err := ParseFormat(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// ParseFormat parses "gsm" or "cdma", case insensitive.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gsm":
		return FormatGSM, nil
	case "cdma":
		return FormatCDMA, nil
	default:
		return FormatUnknown, fmt.Errorf("unknown format %q", s)
	}
}

// Encoding is the character encoding of a fragment's body on the air.
type Encoding int

const (
	EncodingUnknown Encoding = iota
	EncodingGSM7
	EncodingUCS2
	EncodingOctet
	EncodingLatin1
	EncodingASCII7
	EncodingShiftJIS
	EncodingKorean
	EncodingLatinHebrew
)

var encodingNames = map[Encoding]string{
	EncodingGSM7:        "gsm7",
	EncodingUCS2:        "ucs2",
	EncodingOctet:       "octet",
	EncodingLatin1:      "latin1",
	EncodingASCII7:      "ascii7",
	EncodingShiftJIS:    "shift_jis",
	EncodingKorean:      "korean",
	EncodingLatinHebrew: "latin_hebrew",
}

func (e Encoding) String() string {
	if name, ok := encodingNames[e]; ok {
		return name
	}
	return "unknown"
}

// SerialNumber is the 16 bit GSM cell broadcast serial number, see 3GPP TS 23.041 9.4.1.2.1.
type SerialNumber uint16

// GeographicalScope returns the 2 bit geographical scope.
func (s SerialNumber) GeographicalScope() int {
	return int(s>>14) & 0x03
}

// MessageCode returns the 10 bit message code.
func (s SerialNumber) MessageCode() int {
	return int(s>>4) & 0x3ff
}

// UpdateNumber returns the 4 bit update number.
func (s SerialNumber) UpdateNumber() int {
	return int(s) & 0x0f
}

// EtwsWarningType is the warning type carried by ETWS primary notifications, see 3GPP TS 23.041 9.3.24.
type EtwsWarningType int

const (
	EtwsWarningEarthquake           EtwsWarningType = 0x00
	EtwsWarningTsunami              EtwsWarningType = 0x01
	EtwsWarningEarthquakeAndTsunami EtwsWarningType = 0x02
	EtwsWarningTest                 EtwsWarningType = 0x03
	EtwsWarningOther                EtwsWarningType = 0x04
)

// EtwsWarning holds the ETWS primary notification header fields.
type EtwsWarning struct {
	WarningType        EtwsWarningType `json:"warning_type"`
	EmergencyUserAlert bool            `json:"emergency_user_alert"`
	Popup              bool            `json:"popup"`
}

// Fragment is one decoded cell broadcast PDU.
type Fragment struct {
	Format            Format
	MessageIdentifier int
	Serial            SerialNumber
	PageIndex         int
	TotalPages        int
	Body              string
	Language          string
	Encoding          Encoding

	// Etws is set for GSM ETWS primary notifications only.
	Etws *EtwsWarning
	// Cdma is set for every CDMA fragment.
	Cdma *CdmaInfo
}

// Priority is the CDMA bearer data priority indicator, see 3GPP2 C.S0015 4.5.9.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityInteractive
	PriorityUrgent
	PriorityEmergency
)

// CdmaInfo holds the CDMA specific parts of a fragment.
type CdmaInfo struct {
	Teleservice       int
	MessageID         int
	Priority          Priority
	HasPriority       bool
	LanguageIndicator int
	Cmas              *CmasRecord
}
