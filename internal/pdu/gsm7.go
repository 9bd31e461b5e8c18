package pdu

import (
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

const gsmEscape = 0x1b

// gsmDefaultAlphabet is the GSM 03.38 default alphabet, indexed by septet.
var gsmDefaultAlphabet = [128]rune{
	'@', '£', '$', '¥', 'è', 'é', 'ù', 'ì', 'ò', 'Ç', '\n', 'Ø', 'ø', '\r', 'Å', 'å',
	'Δ', '_', 'Φ', 'Γ', 'Λ', 'Ω', 'Π', 'Ψ', 'Σ', 'Θ', 'Ξ', ' ', 'Æ', 'æ', 'ß', 'É',
	' ', '!', '"', '#', '¤', '%', '&', '\'', '(', ')', '*', '+', ',', '-', '.', '/',
	'0', '1', '2', '3', '4', '5', '6', '7', '8', '9', ':', ';', '<', '=', '>', '?',
	'¡', 'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H', 'I', 'J', 'K', 'L', 'M', 'N', 'O',
	'P', 'Q', 'R', 'S', 'T', 'U', 'V', 'W', 'X', 'Y', 'Z', 'Ä', 'Ö', 'Ñ', 'Ü', '§',
	'¿', 'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h', 'i', 'j', 'k', 'l', 'm', 'n', 'o',
	'p', 'q', 'r', 's', 't', 'u', 'v', 'w', 'x', 'y', 'z', 'ä', 'ö', 'ñ', 'ü', 'à',
}

// gsmExtensionAlphabet holds the characters reachable through the escape septet.
var gsmExtensionAlphabet = map[byte]rune{
	0x0a: '\f',
	0x14: '^',
	0x28: '{',
	0x29: '}',
	0x2f: '\\',
	0x3c: '[',
	0x3d: '~',
	0x3e: ']',
	0x40: '|',
	0x65: '€',
}

var (
	gsmDefaultIndex   = make(map[rune]byte, len(gsmDefaultAlphabet))
	gsmExtensionIndex = make(map[rune]byte, len(gsmExtensionAlphabet))
)

func init() {
	for septet, r := range gsmDefaultAlphabet {
		if septet == gsmEscape {
			continue
		}
		gsmDefaultIndex[r] = byte(septet)
	}
	for septet, r := range gsmExtensionAlphabet {
		gsmExtensionIndex[r] = septet
	}
}

// GSM7 is the GSM 03.38 default alphabet including the extension table.
// It works on unpacked septets, one septet per byte; see unpackSeptets.
// Characters without a GSM representation are encoded as '?'.
var GSM7 encoding.Encoding = gsm7Encoding{}

type gsm7Encoding struct{}

func (gsm7Encoding) NewDecoder() *encoding.Decoder {
	return &encoding.Decoder{Transformer: gsm7Decoder{}}
}

func (gsm7Encoding) NewEncoder() *encoding.Encoder {
	return &encoding.Encoder{Transformer: gsm7Encoder{}}
}

func (gsm7Encoding) String() string {
	return "GSM 03.38"
}

type gsm7Decoder struct{ transform.NopResetter }

func (gsm7Decoder) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		septet := src[nSrc] & 0x7f
		size := 1
		r := gsmDefaultAlphabet[septet]
		if septet == gsmEscape {
			switch {
			case nSrc+1 < len(src):
				next := src[nSrc+1] & 0x7f
				size = 2
				if ext, ok := gsmExtensionAlphabet[next]; ok {
					r = ext
				} else {
					r = gsmDefaultAlphabet[next]
				}
			case !atEOF:
				return nDst, nSrc, transform.ErrShortSrc
			default:
				r = ' '
			}
		}
		if nDst+utf8.RuneLen(r) > len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		nDst += utf8.EncodeRune(dst[nDst:], r)
		nSrc += size
	}
	return nDst, nSrc, nil
}

type gsm7Encoder struct{ transform.NopResetter }

func (gsm7Encoder) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		if !atEOF && !utf8.FullRune(src[nSrc:]) {
			return nDst, nSrc, transform.ErrShortSrc
		}
		r, size := utf8.DecodeRune(src[nSrc:])

		var septets [2]byte
		n := 1
		if s, ok := gsmDefaultIndex[r]; ok {
			septets[0] = s
		} else if s, ok := gsmExtensionIndex[r]; ok {
			septets[0], septets[1] = gsmEscape, s
			n = 2
		} else {
			septets[0] = gsmDefaultIndex['?']
		}

		if nDst+n > len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		nDst += copy(dst[nDst:], septets[:n])
		nSrc += size
	}
	return nDst, nSrc, nil
}

// unpackSeptets extracts count 7 bit values packed LSB first into octets (3GPP TS 23.038 6.1.2.1).
func unpackSeptets(packed []byte, count int) []byte {
	result := make([]byte, 0, count)
	for i := 0; i < count; i++ {
		bit := i * 7
		index := bit / 8
		if index >= len(packed) {
			break
		}
		shift := uint(bit % 8)
		value := packed[index] >> shift
		if shift > 1 && index+1 < len(packed) {
			value |= packed[index+1] << (8 - shift)
		}
		result = append(result, value&0x7f)
	}
	return result
}

// packSeptets is the inverse of unpackSeptets.
func packSeptets(septets []byte) []byte {
	result := make([]byte, (len(septets)*7+7)/8)
	for i, septet := range septets {
		bit := i * 7
		index := bit / 8
		shift := uint(bit % 8)
		result[index] |= (septet & 0x7f) << shift
		if shift > 1 {
			result[index+1] |= (septet & 0x7f) >> (8 - shift)
		}
	}
	return result
}

// decodeGSM7Packed decodes as many packed septets as fit into data.
func decodeGSM7Packed(data []byte) string {
	return decodeSeptets(unpackSeptets(data, len(data)*8/7))
}

func decodeSeptets(septets []byte) string {
	text, err := GSM7.NewDecoder().Bytes(septets)
	if err != nil {
		return ""
	}
	return string(text)
}

// EncodeGSM7Packed encodes text with the GSM 03.38 alphabet and packs the septets into octets.
func EncodeGSM7Packed(text string) []byte {
	septets, err := GSM7.NewEncoder().Bytes([]byte(text))
	if err != nil {
		return nil
	}
	return packSeptets(septets)
}
