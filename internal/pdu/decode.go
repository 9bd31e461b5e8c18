// Package pdu decodes GSM/UMTS and CDMA cell broadcast PDUs into fragments.
package pdu

import "fmt"

// Decode decodes a single raw PDU received on the given format.
// Errors wrap ErrTruncated or ErrInvalidHeader.
func Decode(raw []byte, format Format) (Fragment, error) {
	switch format {
	case FormatGSM:
		return decodeGSM(raw)
	case FormatCDMA:
		return decodeCDMA(raw)
	default:
		return Fragment{}, &DecodeError{Kind: ErrInvalidHeader, Detail: fmt.Sprintf("unsupported format %v", format)}
	}
}
