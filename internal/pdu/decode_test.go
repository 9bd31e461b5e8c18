package pdu

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	gsm7BitTest               = "c0000032401141d071da0491cbe6709d4d0785d97074585ca683dae5f93c7c2e83ee693a1a340ecbe5e9f0b90c9297e975b91b040f93c969f7b9d168341a8d46a3d168341a8d46a3d168341a8d46a3d168341a8d46a3d100"
	gsm7BitTestWithLanguage   = "c0000032041141d071da0491cbe6709d4d0785d97074585ca683dae5f93c7c2e83ee693a1a340ecbe5e9f0b90c9297e975b91b040f93c969f7b9d168341a8d46a3d168341a8d46a3d168341a8d46a3d168341a8d46a3d100"
	gsm7BitTestLanguageInBody = "c00000321011737b23083a4e9b2072d91caeb3e9a0301b8e0e8bcb7450bb3c9f87cf65d03d4d4783c661b93c1d3e9741f232bd2e7783e0613239ed3e371a8d46a3d168341a8d46a3d168341a8d46a3d168341a8d46a3d100"
	gsmUcs2Test               = "c000003248110041002000550043005300320020006d00650073007300610067006500200063006f006e007400610069006e0069006e006700200061002004340020006300680061007200610063007400650072000d000d"
	gsmUcs2TestLanguageInBody = "c00000321111783c0041002000550043005300320020006d00650073007300610067006500200063006f006e007400610069006e0069006e006700200061002004340020006300680061007200610063007400650072000d"
	gsm7BitTestUmts           = "010032c000400141d071da0491cbe6709d4d0785d97074585ca683dae5f93c7c2e83ee693a1a340ecbe5e9f0b90c9297e975b91b040f93c969f7b9d168341a8d46a3d168341a8d46a3d168341a8d46a3d168341a8d46a3d10034"
	gsm7BitTestUmtsLanguage   = "010032c0001001737b23083a4e9b2072d91caeb3e9a0301b8e0e8bcb7450bb3c9f87cf65d03d4d4783c661b93c1d3e9741f232bd2e7783e0613239ed3e371a8d46a3d168341a8d46a3d168341a8d46a3d168341a8d46a3d10037"
	gsm7BitTestMultipageUmts  = "010001c0004002c6b47c4e07c1c3e7f2aad168341a8d46a3d168341a8d46a3d168341a8d46a3d168341a8d46a3d168341a8d46a3d168341a8d46a3d168341a8d46a3d168341a8d46a3d168341a8d46a3d168341a8d46a3d1000ad3f2f8ed2683e0e173b9d168341a8d46a3d168341a8d46a3d168341a8d46a3d168341a8d46a3d168341a8d46a3d168341a8d46a3d168341a8d46a3d168341a8d46a3d168341a8d46a3d168341a8d46a3d1000a"
	gsmUcs2TestMultipageUmts  = "010032c0004802004100410041000d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d06004200420042000d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d0d06"
	cdmaPresidentialMessage   = "000000010005000000001000000000000000000000000000000000740801c000031000f0015d02d80008201028800010509da0101218c8699820080230aa488a828528b4e4c48b3aa2091069a0934e9d58b110419c822cd8b4a3c59d0eca083322d2a8b904391161cb41327c3833104d8b124c1411a7d241367d28a82245a9064cca60030604011a100e250901000e00"
	gsmDefaultAlphabetMessage = "A GSM default alphabet message with carriage return padding"
	ucs2Message               = "A UCS2 message containing a д character"
	presidentialMessageText   = "THE PRESIDENT HAS ISSUED AN EMERGENCY ALERT. CHECK LOCAL MEDIA FOR MORE DETAILS"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

// gsmPage builds an 88 octet GSM page carrying text in the default alphabet, padded with CR.
func gsmPage(t *testing.T, serial, id uint16, page, total int, text string) []byte {
	t.Helper()
	require.LessOrEqual(t, len(text), 93)
	content := EncodeGSM7Packed(text + strings.Repeat("\r", 93-len(text)))
	require.Len(t, content, 82)
	header := []byte{byte(serial >> 8), byte(serial), byte(id >> 8), byte(id), 0x40, byte(page<<4 | total)}
	return append(header, content...)
}

func TestDecodeGSM(t *testing.T) {
	t.Parallel()

	tt := []struct {
		desc         string
		pdu          string
		wantID       int
		wantBody     string
		wantLanguage string
		wantEncoding Encoding
	}{
		{
			desc:         "default alphabet",
			pdu:          gsm7BitTest,
			wantID:       0x32,
			wantBody:     gsmDefaultAlphabetMessage,
			wantEncoding: EncodingGSM7,
		},
		{
			desc:         "language from data coding scheme",
			pdu:          gsm7BitTestWithLanguage,
			wantID:       0x32,
			wantBody:     gsmDefaultAlphabetMessage,
			wantLanguage: "es",
			wantEncoding: EncodingGSM7,
		},
		{
			desc:         "language in default alphabet body",
			pdu:          gsm7BitTestLanguageInBody,
			wantID:       0x32,
			wantBody:     gsmDefaultAlphabetMessage,
			wantLanguage: "sv",
			wantEncoding: EncodingGSM7,
		},
		{
			desc:         "ucs2",
			pdu:          gsmUcs2Test,
			wantID:       0x32,
			wantBody:     ucs2Message,
			wantEncoding: EncodingUCS2,
		},
		{
			desc:         "ucs2 with packed language prefix",
			pdu:          gsmUcs2TestLanguageInBody,
			wantID:       0x32,
			wantBody:     ucs2Message,
			wantLanguage: "xx",
			wantEncoding: EncodingUCS2,
		},
		{
			desc:         "umts single page",
			pdu:          gsm7BitTestUmts,
			wantID:       0x32,
			wantBody:     gsmDefaultAlphabetMessage,
			wantEncoding: EncodingGSM7,
		},
		{
			desc:         "umts language in body",
			pdu:          gsm7BitTestUmtsLanguage,
			wantID:       0x32,
			wantBody:     gsmDefaultAlphabetMessage,
			wantLanguage: "sv",
			wantEncoding: EncodingGSM7,
		},
		{
			desc:         "umts two default alphabet pages",
			pdu:          gsm7BitTestMultipageUmts,
			wantID:       0x01,
			wantBody:     "First page+Second page",
			wantEncoding: EncodingGSM7,
		},
		{
			desc:         "umts two ucs2 pages",
			pdu:          gsmUcs2TestMultipageUmts,
			wantID:       0x32,
			wantBody:     "AAABBB",
			wantEncoding: EncodingUCS2,
		},
	}

	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			frag, err := Decode(mustHex(t, tc.pdu), FormatGSM)
			require.NoError(t, err)
			assert.Equal(t, FormatGSM, frag.Format)
			assert.Equal(t, tc.wantID, frag.MessageIdentifier)
			assert.Equal(t, SerialNumber(0xc000), frag.Serial)
			assert.Equal(t, tc.wantBody, frag.Body)
			assert.Equal(t, tc.wantLanguage, frag.Language)
			assert.Equal(t, tc.wantEncoding, frag.Encoding)
			assert.Equal(t, 1, frag.PageIndex)
			assert.Equal(t, 1, frag.TotalPages)
			assert.Nil(t, frag.Etws)
			assert.Nil(t, frag.Cdma)
		})
	}
}

func TestDecodeGSMPageParameter(t *testing.T) {
	t.Parallel()

	tt := []struct {
		desc      string
		page      int
		total     int
		wantPage  int
		wantTotal int
	}{
		{desc: "second of three", page: 2, total: 3, wantPage: 2, wantTotal: 3},
		{desc: "zero page index", page: 0, total: 3, wantPage: 1, wantTotal: 1},
		{desc: "zero total", page: 1, total: 0, wantPage: 1, wantTotal: 1},
		{desc: "index beyond total", page: 4, total: 2, wantPage: 1, wantTotal: 1},
	}

	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			frag, err := Decode(gsmPage(t, 0x1230, 0x1112, tc.page, tc.total, "page text"), FormatGSM)
			require.NoError(t, err)
			assert.Equal(t, tc.wantPage, frag.PageIndex)
			assert.Equal(t, tc.wantTotal, frag.TotalPages)
			assert.Equal(t, "page text", frag.Body)
			assert.Equal(t, 0x1112, frag.MessageIdentifier)
		})
	}
}

func TestDecodeEtwsPrimaryNotification(t *testing.T) {
	t.Parallel()

	// earthquake and tsunami, emergency user alert, popup; security information zeroed
	raw := make([]byte, 56)
	copy(raw, []byte{0x30, 0x00, 0x11, 0x02, 0x05, 0x80})

	frag, err := Decode(raw, FormatGSM)
	require.NoError(t, err)
	assert.Equal(t, 0x1102, frag.MessageIdentifier)
	assert.Equal(t, SerialNumber(0x3000), frag.Serial)
	assert.Empty(t, frag.Body)
	require.NotNil(t, frag.Etws)
	assert.Equal(t, EtwsWarningEarthquakeAndTsunami, frag.Etws.WarningType)
	assert.True(t, frag.Etws.EmergencyUserAlert)
	assert.True(t, frag.Etws.Popup)
}

func TestDecodeGSMErrors(t *testing.T) {
	t.Parallel()

	umtsTwoPagesShort := mustHex(t, gsmUcs2TestMultipageUmts)[:120]
	umtsZeroPages := append([]byte{}, mustHex(t, gsm7BitTestUmts)...)
	umtsZeroPages[6] = 0
	umtsLongPage := append([]byte{}, mustHex(t, gsm7BitTestUmts)...)
	umtsLongPage[89] = 83
	umtsBadType := append([]byte{}, mustHex(t, gsm7BitTestUmts)...)
	umtsBadType[0] = 0x02
	userDataHeader := append([]byte{}, mustHex(t, gsm7BitTest)...)
	userDataHeader[4] = 0x90
	shortNonEtws := make([]byte, 56)
	shortNonEtws[3] = 0x32

	tt := []struct {
		desc    string
		raw     []byte
		wantErr error
	}{
		{desc: "empty", raw: nil, wantErr: ErrTruncated},
		{desc: "shorter than header", raw: []byte{0xc0, 0x00, 0x00, 0x32, 0x40}, wantErr: ErrTruncated},
		{desc: "short pdu without etws identifier", raw: shortNonEtws, wantErr: ErrInvalidHeader},
		{desc: "umts pages beyond buffer", raw: umtsTwoPagesShort, wantErr: ErrTruncated},
		{desc: "umts without pages", raw: umtsZeroPages, wantErr: ErrInvalidHeader},
		{desc: "umts page length too large", raw: umtsLongPage, wantErr: ErrInvalidHeader},
		{desc: "umts wrong message type", raw: umtsBadType, wantErr: ErrInvalidHeader},
		{desc: "user data header coding group", raw: userDataHeader, wantErr: ErrInvalidHeader},
	}

	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			_, err := Decode(tc.raw, FormatGSM)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)

			var decodeErr *DecodeError
			assert.ErrorAs(t, err, &decodeErr)
		})
	}
}

func TestDecodeCDMAPresidential(t *testing.T) {
	t.Parallel()

	raw := mustHex(t, cdmaPresidentialMessage)
	require.Len(t, raw, 144)

	frag, err := Decode(raw, FormatCDMA)
	require.NoError(t, err)
	assert.Equal(t, FormatCDMA, frag.Format)
	assert.Equal(t, 0x1000, frag.MessageIdentifier)
	assert.Equal(t, presidentialMessageText, frag.Body)
	assert.Equal(t, "en", frag.Language)
	assert.Equal(t, EncodingASCII7, frag.Encoding)

	require.NotNil(t, frag.Cdma)
	assert.Equal(t, 0x00050000, frag.Cdma.Teleservice)
	assert.Equal(t, 15, frag.Cdma.MessageID)
	assert.True(t, frag.Cdma.HasPriority)
	assert.Equal(t, PriorityEmergency, frag.Cdma.Priority)

	cmas := frag.Cdma.Cmas
	require.NotNil(t, cmas)
	assert.Equal(t, CmasCategory(2), cmas.Category)
	assert.Equal(t, "safety", cmas.Category.String())
	assert.Equal(t, "avoid", cmas.ResponseType.String())
	assert.Equal(t, SeveritySevere, cmas.Severity)
	assert.Equal(t, UrgencyImmediate, cmas.Urgency)
	assert.Equal(t, CertaintyObserved, cmas.Certainty)
	assert.Equal(t, 0x13b4, cmas.Identifier)
	assert.Equal(t, 2, cmas.AlertHandling)
	assert.True(t, cmas.HasMetadata)
}

func TestDecodeCDMAServiceCategory(t *testing.T) {
	t.Parallel()

	raw := mustHex(t, cdmaPresidentialMessage)
	raw[11] = 0x03

	frag, err := Decode(raw, FormatCDMA)
	require.NoError(t, err)
	assert.Equal(t, 0x1003, frag.MessageIdentifier)
	assert.Equal(t, presidentialMessageText, frag.Body)
}

// cdmaEnvelope wraps bearer data in a serialized envelope with no address digits.
func cdmaEnvelope(category uint16, bearer []byte) []byte {
	raw := make([]byte, 0, envelopeHeaderLength+len(bearer))
	raw = append(raw, 0, 0, 0, 1, 0, 0, 0x10, 0x02, 0, 0, byte(category>>8), byte(category))
	raw = append(raw, 0, 0, 0, 0, 0)
	raw = append(raw, 0, 0, 0, 0, 0, 0, 0)
	raw = append(raw, 0, 0, 0, byte(len(bearer)))
	return append(raw, bearer...)
}

func TestDecodeCDMAPlainUserData(t *testing.T) {
	t.Parallel()

	bearer := []byte{0x0d, 0x01, 0x01}
	userData := packUserData(8, []byte{'H', 0xe9, '!'})
	bearer = append(bearer, 0x01, byte(len(userData)))
	bearer = append(bearer, userData...)

	frag, err := Decode(cdmaEnvelope(0x0001, bearer), FormatCDMA)
	require.NoError(t, err)
	assert.Equal(t, 0x0001, frag.MessageIdentifier)
	assert.Equal(t, "Hé!", frag.Body)
	assert.Equal(t, EncodingLatin1, frag.Encoding)
	assert.Equal(t, "en", frag.Language)
	require.NotNil(t, frag.Cdma)
	assert.Nil(t, frag.Cdma.Cmas)
	assert.False(t, frag.Cdma.HasPriority)
}

// packUserData packs a 5 bit encoding, an 8 bit field count and 8 bit fields MSB first.
func packUserData(enc byte, fields []byte) []byte {
	total := 13 + 8*len(fields)
	out := make([]byte, (total+7)/8)
	put := func(pos int, v uint32, width int) {
		for i := 0; i < width; i++ {
			if v&(1<<uint(width-1-i)) != 0 {
				out[(pos+i)/8] |= 0x80 >> uint((pos+i)%8)
			}
		}
	}
	put(0, uint32(enc), 5)
	put(5, uint32(len(fields)), 8)
	for i, f := range fields {
		put(13+8*i, uint32(f), 8)
	}
	return out
}

func TestDecodeCDMAErrors(t *testing.T) {
	t.Parallel()

	tt := []struct {
		desc    string
		raw     []byte
		wantErr error
	}{
		{desc: "short envelope", raw: make([]byte, 10), wantErr: ErrTruncated},
		{desc: "bearer length beyond buffer", raw: mustHex(t, cdmaPresidentialMessage)[:100], wantErr: ErrTruncated},
		{desc: "subparameter beyond bearer", raw: cdmaEnvelope(0x0001, []byte{0x01, 0x09, 0x00}), wantErr: ErrTruncated},
		{desc: "cmas user data not octet encoded", raw: cdmaEnvelope(0x1000, []byte{0x01, 0x02, 0x10, 0x00}), wantErr: ErrInvalidHeader},
	}

	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			t.Parallel()

			_, err := Decode(tc.raw, FormatCDMA)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestDecodeUnknownFormat(t *testing.T) {
	t.Parallel()

	_, err := Decode(mustHex(t, gsm7BitTest), FormatUnknown)
	assert.ErrorIs(t, err, ErrInvalidHeader)
}
