package pdu

import (
	"encoding/binary"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
)

// CDMA broadcast service categories carrying CMAS, 3GPP2 C.R1001-G 9.3.3.
const (
	cdmaCmasFirstCategory = 0x1000
	cdmaCmasLastCategory  = 0x10ff
)

// envelopeHeaderLength is the fixed part of the serialized CDMA SMS envelope:
// message type, teleservice and service category (4 each), the originating address
// header (5) and, after the address digits, bearer reply (4), reply sequence, error
// class and cause code (1 each) and the bearer data length (4).
const envelopeHeaderLength = 12 + 5 + 4 + 3 + 4

// Bearer data subparameter identifiers, 3GPP2 C.S0015-B 4.5.
const (
	subparamMessageIdentifier = 0x00
	subparamUserData          = 0x01
	subparamPriority          = 0x08
	subparamLanguage          = 0x0d
)

// CDMA user data message encodings, 3GPP2 C.R1001 9.1.
const (
	cdmaEncodingOctet       = 0
	cdmaEncodingIS91        = 1
	cdmaEncodingASCII7      = 2
	cdmaEncodingIA5         = 3
	cdmaEncodingUnicode16   = 4
	cdmaEncodingShiftJIS    = 5
	cdmaEncodingKorean      = 6
	cdmaEncodingLatinHebrew = 7
	cdmaEncodingLatin       = 8
	cdmaEncodingGSM7        = 9
	cdmaEncodingGSMDCS      = 10
)

// CMAS user data record types, 3GPP2 C.S0015-B 4.5.21.
const (
	cmasRecordAlertText = 0
	cmasRecordAlertInfo = 1
	cmasRecordAlertMeta = 2
)

// cdmaLanguageEnglish is the only language indicator value mapped to a code.
const cdmaLanguageEnglish = 1

type userData struct {
	encoding Encoding
	body     string
	cmas     *CmasRecord
}

func decodeCDMA(raw []byte) (Fragment, error) {
	if len(raw) < envelopeHeaderLength {
		return Fragment{}, truncated("cdma envelope too short: %d", len(raw))
	}

	teleservice := int(binary.BigEndian.Uint32(raw[4:8]))
	category := int(binary.BigEndian.Uint32(raw[8:12]))
	digits := int(raw[16])
	offset := 17 + digits
	if len(raw) < offset+4+3+4 {
		return Fragment{}, truncated("cdma envelope with %d address digits too short: %d", digits, len(raw))
	}
	offset += 4 + 3
	bearerLength := int(binary.BigEndian.Uint32(raw[offset : offset+4]))
	offset += 4
	if len(raw)-offset < bearerLength {
		return Fragment{}, truncated("cdma bearer data length %d exceeds remaining %d", bearerLength, len(raw)-offset)
	}

	info := &CdmaInfo{Teleservice: teleservice}
	frag := Fragment{
		Format:            FormatCDMA,
		MessageIdentifier: category,
		PageIndex:         1,
		TotalPages:        1,
		Cdma:              info,
	}

	isCmas := category >= cdmaCmasFirstCategory && category <= cdmaCmasLastCategory
	bearer := raw[offset : offset+bearerLength]
	for len(bearer) > 0 {
		if len(bearer) < 2 {
			return Fragment{}, truncated("cdma bearer subparameter header")
		}
		id, length := bearer[0], int(bearer[1])
		if len(bearer) < 2+length {
			return Fragment{}, truncated("cdma subparameter 0x%02x length %d exceeds remaining %d", id, length, len(bearer)-2)
		}
		value := bearer[2 : 2+length]
		bearer = bearer[2+length:]

		switch id {
		case subparamMessageIdentifier:
			r := newBitReader(value)
			if err := r.skip(4); err != nil {
				return Fragment{}, err
			}
			msgID, err := r.read(16)
			if err != nil {
				return Fragment{}, err
			}
			info.MessageID = int(msgID)
		case subparamPriority:
			if length < 1 {
				return Fragment{}, truncated("cdma priority subparameter")
			}
			info.Priority = Priority(value[0] >> 6)
			info.HasPriority = true
		case subparamLanguage:
			if length < 1 {
				return Fragment{}, truncated("cdma language subparameter")
			}
			info.LanguageIndicator = int(value[0])
		case subparamUserData:
			ud, err := decodeUserData(value, isCmas)
			if err != nil {
				return Fragment{}, err
			}
			frag.Encoding = ud.encoding
			frag.Body = ud.body
			info.Cmas = ud.cmas
		}
	}

	language := info.LanguageIndicator
	if info.Cmas != nil && info.Cmas.HasMetadata {
		language = info.Cmas.Language
	}
	if language == cdmaLanguageEnglish {
		frag.Language = "en"
	}
	return frag, nil
}

func decodeUserData(value []byte, isCmas bool) (userData, error) {
	r := newBitReader(value)
	enc, err := r.read(5)
	if err != nil {
		return userData{}, err
	}
	if enc == cdmaEncodingIS91 || enc == cdmaEncodingGSMDCS {
		if err := r.skip(8); err != nil {
			return userData{}, err
		}
	}
	fields, err := r.read(8)
	if err != nil {
		return userData{}, err
	}

	if isCmas {
		if enc != cdmaEncodingOctet {
			return userData{}, invalidHeader("cmas user data with encoding %d", enc)
		}
		payload, err := r.readFields(int(fields), 8)
		if err != nil {
			return userData{}, err
		}
		return decodeCmasPayload(payload)
	}

	body, bodyEncoding, err := decodeCharacters(r, int(enc), int(fields))
	if err != nil {
		return userData{}, err
	}
	return userData{encoding: bodyEncoding, body: body}, nil
}

func decodeCmasPayload(payload []byte) (userData, error) {
	if len(payload) < 1 {
		return userData{}, truncated("cmas payload without protocol version")
	}
	rec := &CmasRecord{Version: int(payload[0])}
	ud := userData{cmas: rec}
	rest := payload[1:]
	for len(rest) >= 2 {
		kind, length := rest[0], int(rest[1])
		if len(rest) < 2+length {
			return userData{}, truncated("cmas record %d length %d exceeds remaining %d", kind, length, len(rest)-2)
		}
		value := rest[2 : 2+length]
		rest = rest[2+length:]

		switch kind {
		case cmasRecordAlertText:
			r := newBitReader(value)
			charset, err := r.read(5)
			if err != nil {
				return userData{}, err
			}
			body, bodyEncoding, err := decodeCharacters(r, int(charset), (length*8-5)/charWidth(int(charset)))
			if err != nil {
				return userData{}, err
			}
			ud.body = body
			ud.encoding = bodyEncoding
		case cmasRecordAlertInfo:
			if length < 4 {
				return userData{}, truncated("cmas alert info record length %d", length)
			}
			rec.Category = CmasCategory(value[0])
			rec.ResponseType = CmasResponseType(value[1])
			rec.Severity = severityFromWire(uint32(value[2] >> 4))
			rec.Urgency = urgencyFromWire(uint32(value[2] & 0x0f))
			rec.Certainty = certaintyFromWire(uint32(value[3] >> 4))
		case cmasRecordAlertMeta:
			if length < 10 {
				return userData{}, truncated("cmas alert metadata record length %d", length)
			}
			rec.Identifier = int(binary.BigEndian.Uint16(value[0:2]))
			rec.AlertHandling = int(value[2])
			// value[3:9] is the expiry time
			rec.Language = int(value[9])
			rec.HasMetadata = true
		}
	}
	return ud, nil
}

// charWidth returns the width in bits of one character field for a CDMA encoding.
func charWidth(enc int) int {
	switch enc {
	case cdmaEncodingASCII7, cdmaEncodingIA5, cdmaEncodingGSM7:
		return 7
	case cdmaEncodingUnicode16:
		return 16
	default:
		return 8
	}
}

// decodeCharacters reads count character fields in encoding enc.
func decodeCharacters(r *bitReader, enc, count int) (string, Encoding, error) {
	switch enc {
	case cdmaEncodingUnicode16:
		units := make([]byte, 0, count*2)
		for i := 0; i < count; i++ {
			v, err := r.read(16)
			if err != nil {
				return "", EncodingUnknown, err
			}
			units = append(units, byte(v>>8), byte(v))
		}
		return trimCdmaText(decodeUCS2(units)), EncodingUCS2, nil
	case cdmaEncodingASCII7, cdmaEncodingIA5:
		chars, err := r.readFields(count, 7)
		if err != nil {
			return "", EncodingUnknown, err
		}
		return trimCdmaText(string(chars)), EncodingASCII7, nil
	case cdmaEncodingGSM7:
		septets, err := r.readFields(count, 7)
		if err != nil {
			return "", EncodingUnknown, err
		}
		return trimCdmaText(decodeSeptets(septets)), EncodingGSM7, nil
	}

	octets, err := r.readFields(count, 8)
	if err != nil {
		return "", EncodingUnknown, err
	}
	codec, kind := octetCodec(enc)
	text, err := codec.NewDecoder().Bytes(octets)
	if err != nil {
		return "", EncodingUnknown, invalidHeader("cdma user data in %s: %v", kind, err)
	}
	return trimCdmaText(string(text)), kind, nil
}

func octetCodec(enc int) (encoding.Encoding, Encoding) {
	switch enc {
	case cdmaEncodingShiftJIS:
		return japanese.ShiftJIS, EncodingShiftJIS
	case cdmaEncodingKorean:
		return korean.EUCKR, EncodingKorean
	case cdmaEncodingLatinHebrew:
		return charmap.ISO8859_8, EncodingLatinHebrew
	case cdmaEncodingLatin:
		return charmap.ISO8859_1, EncodingLatin1
	default:
		return charmap.ISO8859_1, EncodingOctet
	}
}

// trimCdmaText drops the fill characters that pad the last field.
func trimCdmaText(s string) string {
	return strings.TrimRight(s, "\x00\r")
}
