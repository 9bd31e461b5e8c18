package pdu

import "strings"

// GSM cell broadcast layout, 3GPP TS 23.041 9.4.
const (
	gsmHeaderLength       = 6
	gsmPDULength          = 88
	etwsPrimaryMaxLength  = 56
	umtsHeaderLength      = 7
	umtsPageContentLength = 82
	umtsMessageTypeCBS    = 0x01
)

// Message identifier ranges that need to be known while decoding.
const (
	etwsFirstIdentifier = 0x1100
	etwsLastIdentifier  = 0x1107
)

func decodeGSM(raw []byte) (Fragment, error) {
	switch {
	case len(raw) < gsmHeaderLength:
		return Fragment{}, truncated("gsm pdu too short: %d", len(raw))
	case len(raw) <= etwsPrimaryMaxLength:
		return decodeEtwsPrimary(raw)
	case len(raw) <= gsmPDULength:
		return decodeGSMPage(raw)
	default:
		return decodeUMTS(raw)
	}
}

// decodeEtwsPrimary decodes an ETWS primary notification: a bare header with the warning type
// in place of the data coding scheme and page parameter.
func decodeEtwsPrimary(raw []byte) (Fragment, error) {
	id := int(raw[2])<<8 | int(raw[3])
	if id < etwsFirstIdentifier || id > etwsLastIdentifier {
		return Fragment{}, invalidHeader("short pdu with non ETWS message identifier 0x%04x", id)
	}
	return Fragment{
		Format:            FormatGSM,
		MessageIdentifier: id,
		Serial:            SerialNumber(uint16(raw[0])<<8 | uint16(raw[1])),
		PageIndex:         1,
		TotalPages:        1,
		Etws: &EtwsWarning{
			WarningType:        EtwsWarningType((raw[4] & 0xfe) >> 1),
			EmergencyUserAlert: raw[4]&0x01 != 0,
			Popup:              raw[5]&0x80 != 0,
		},
	}, nil
}

func decodeGSMPage(raw []byte) (Fragment, error) {
	coding, err := parseDataCoding(raw[4])
	if err != nil {
		return Fragment{}, err
	}

	pageIndex := int(raw[5] >> 4)
	totalPages := int(raw[5] & 0x0f)
	if pageIndex == 0 || totalPages == 0 || pageIndex > totalPages {
		pageIndex, totalPages = 1, 1
	}

	body, bodyLanguage := coding.decodeContent(raw[gsmHeaderLength:])
	return Fragment{
		Format:            FormatGSM,
		MessageIdentifier: int(raw[2])<<8 | int(raw[3]),
		Serial:            SerialNumber(uint16(raw[0])<<8 | uint16(raw[1])),
		PageIndex:         pageIndex,
		TotalPages:        totalPages,
		Body:              body,
		Language:          firstNonEmpty(bodyLanguage, coding.language),
		Encoding:          coding.encoding,
	}, nil
}

// decodeUMTS decodes the UMTS CBS format, which carries all pages in one PDU:
// type(1) id(2) serial(2) dcs(1) pages(1) then per page 82 content octets and one length octet.
func decodeUMTS(raw []byte) (Fragment, error) {
	if raw[0] != umtsMessageTypeCBS {
		return Fragment{}, invalidHeader("unsupported umts message type 0x%02x", raw[0])
	}

	coding, err := parseDataCoding(raw[5])
	if err != nil {
		return Fragment{}, err
	}

	pages := int(raw[6])
	if pages == 0 {
		return Fragment{}, invalidHeader("umts pdu without pages")
	}
	if want := umtsHeaderLength + pages*(umtsPageContentLength+1); len(raw) < want {
		return Fragment{}, truncated("umts pdu with %d pages too short: %d, want %d", pages, len(raw), want)
	}

	var body strings.Builder
	var language string
	for i := 0; i < pages; i++ {
		offset := umtsHeaderLength + i*(umtsPageContentLength+1)
		length := int(raw[offset+umtsPageContentLength])
		if length > umtsPageContentLength {
			return Fragment{}, invalidHeader("umts page %d length %d exceeds %d", i+1, length, umtsPageContentLength)
		}
		text, pageLanguage := coding.decodeContent(raw[offset : offset+length])
		if i == 0 {
			language = pageLanguage
		}
		body.WriteString(text)
	}

	return Fragment{
		Format:            FormatGSM,
		MessageIdentifier: int(raw[1])<<8 | int(raw[2]),
		Serial:            SerialNumber(uint16(raw[3])<<8 | uint16(raw[4])),
		PageIndex:         1,
		TotalPages:        1,
		Body:              body.String(),
		Language:          firstNonEmpty(language, coding.language),
		Encoding:          coding.encoding,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
