package pdu

import (
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// languageGroup0 maps the low nibble of DCS group 0000 to ISO 639-1, see 3GPP TS 23.038 5.
var languageGroup0 = [16]string{
	"de", "en", "it", "fr", "es", "nl", "sv", "da", "pt", "fi", "no", "el", "tr", "hu", "pl", "",
}

// languageGroup2 maps the low nibble of DCS group 0010.
var languageGroup2 = [16]string{
	"cs", "he", "ar", "ru", "is", "", "", "", "", "", "", "", "", "", "", "",
}

// dataCoding is the parsed cell broadcast data coding scheme.
type dataCoding struct {
	encoding Encoding
	language string
	// languageInBody marks DCS 0x10/0x11: the body starts with a language indication.
	languageInBody bool
}

func parseDataCoding(dcs byte) (dataCoding, error) {
	low := dcs & 0x0f
	switch dcs >> 4 {
	case 0x0:
		return dataCoding{encoding: EncodingGSM7, language: languageGroup0[low]}, nil
	case 0x1:
		switch low {
		case 0x0:
			return dataCoding{encoding: EncodingGSM7, languageInBody: true}, nil
		case 0x1:
			return dataCoding{encoding: EncodingUCS2, languageInBody: true}, nil
		default:
			return dataCoding{encoding: EncodingGSM7}, nil
		}
	case 0x2:
		return dataCoding{encoding: EncodingGSM7, language: languageGroup2[low]}, nil
	case 0x4, 0x5, 0x6, 0x7:
		switch (dcs & 0x0c) >> 2 {
		case 0x1:
			return dataCoding{encoding: EncodingOctet}, nil
		case 0x2:
			return dataCoding{encoding: EncodingUCS2}, nil
		default:
			return dataCoding{encoding: EncodingGSM7}, nil
		}
	case 0x9:
		return dataCoding{}, invalidHeader("unsupported data coding scheme 0x%02x (user data header)", dcs)
	case 0xf:
		if dcs&0x04 != 0 {
			return dataCoding{encoding: EncodingOctet}, nil
		}
		return dataCoding{encoding: EncodingGSM7}, nil
	default:
		// reserved groups are read as the default alphabet
		return dataCoding{encoding: EncodingGSM7}, nil
	}
}

// decodeContent decodes a page's content octets and returns the body text and the language
// found in the body, if any.
func (c dataCoding) decodeContent(content []byte) (string, string) {
	var body, language string
	switch c.encoding {
	case EncodingUCS2:
		if c.languageInBody && len(content) >= 2 {
			language = decodeSeptets(unpackSeptets(content[:2], 2))
			content = content[2:]
		}
		body = decodeUCS2(content)
	case EncodingOctet:
		body = decodeLatin1(content)
	default:
		body = decodeGSM7Packed(content)
		if runes := []rune(body); c.languageInBody && len(runes) > 2 {
			language = string(runes[:2])
			body = string(runes[3:])
		}
	}
	return strings.TrimRight(body, "\r"), language
}

func decodeUCS2(data []byte) string {
	if len(data)%2 != 0 {
		data = data[:len(data)-1]
	}
	text, err := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder().Bytes(data)
	if err != nil {
		return ""
	}
	return string(text)
}

func decodeLatin1(data []byte) string {
	text, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return ""
	}
	return string(text)
}
