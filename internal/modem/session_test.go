package modem

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLines(t *testing.T) {
	lines := readLines(strings.NewReader("hello\r\n\n\x00world\r\nlast"))

	var got []string
	for line := range lines {
		got = append(got, line)
	}

	assert.Equal(t, []string{"hello", "world", "last"}, got)
}

func TestWithTerminator(t *testing.T) {
	tt := []struct {
		desc     string
		request  string
		expected string
	}{
		{desc: "plain command", request: "AT", expected: "AT\r\n"},
		{desc: "ctrl-z", request: "hello\x1a", expected: "hello\x1a"},
		{desc: "escape", request: "abort\x1b", expected: "abort\x1b"},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.expected, withTerminator(tc.request))
		})
	}
}

func TestSession_SimpleCommand(t *testing.T) {
	m := newFakeModem(t)
	s := NewSession(m, log.Nop())
	m.respond(ok)

	response, err := s.AT(context.Background(), "AT")

	require.NoError(t, err)
	assert.Empty(t, response)
	assert.Equal(t, []string{"AT"}, m.Written())
}

func TestSession_IntermediateLines(t *testing.T) {
	m := newFakeModem(t)
	s := NewSession(m, log.Nop())
	m.respond(func(req string) string {
		return req + "\r\n+CSCB: 0,\"4352-6399\",\"\"\r\n\r\nOK\r\n"
	})

	response, err := s.AT(context.Background(), "AT+CSCB?")

	require.NoError(t, err)
	assert.Equal(t, []string{`+CSCB: 0,"4352-6399",""`}, response)
}

func TestSession_ErrorResult(t *testing.T) {
	m := newFakeModem(t)
	s := NewSession(m, log.Nop())
	m.respond(func(string) string { return "+CMS ERROR: 303\r\n" })

	_, err := s.AT(context.Background(), "AT+CSCB=0")

	var atErr *ATError
	require.ErrorAs(t, err, &atErr)
	assert.Equal(t, "AT+CSCB=0", atErr.Request)
	assert.Equal(t, "+CMS ERROR: 303", atErr.Response)
}

func TestSession_ATsStopsAtFirstFailure(t *testing.T) {
	m := newFakeModem(t)
	s := NewSession(m, log.Nop())
	m.respond(func(req string) string {
		if req == "AT+CMGF=0" {
			return "ERROR\r\n"
		}
		return "OK\r\n"
	})

	err := s.ATs(context.Background(), "ATE0", "AT+CMGF=0", "AT+CNMI=2,0,2,0,0")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "AT+CMGF=0 failed")
	assert.Equal(t, []string{"ATE0", "AT+CMGF=0"}, m.Written())
}

func TestSession_Indication(t *testing.T) {
	m := newFakeModem(t)
	s := NewSession(m, log.Nop())
	got := make(chan []string, 1)
	s.OnIndication("+cbm:", 1, func(lines []string) { got <- lines })

	m.emit("+CBM: 6\r\n011011000000\r\n")

	select {
	case lines := <-got:
		assert.Equal(t, []string{"+CBM: 6", "011011000000"}, lines)
	case <-time.After(time.Second):
		t.Fatal("indication not delivered")
	}
}

func TestSession_IndicationDuringCommand(t *testing.T) {
	m := newFakeModem(t)
	s := NewSession(m, log.Nop())
	got := make(chan []string, 1)
	s.OnIndication("+CBM:", 1, func(lines []string) { got <- lines })
	m.respond(func(string) string {
		return "+CBM: 6\r\n011011000000\r\nOK\r\n"
	})

	response, err := s.AT(context.Background(), "AT")

	require.NoError(t, err)
	assert.Empty(t, response)
	select {
	case lines := <-got:
		assert.Len(t, lines, 2)
	case <-time.After(time.Second):
		t.Fatal("indication not delivered")
	}
}

func TestSession_ClosedDevice(t *testing.T) {
	m := newFakeModem(t)
	s := NewSession(m, log.Nop())

	m.Close()

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session did not end")
	}
	assert.True(t, s.Closed())
	_, err := s.AT(context.Background(), "AT")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSession_ContextCancelled(t *testing.T) {
	m := newFakeModem(t)
	s := NewSession(m, log.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	_, err := s.AT(ctx, "AT")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
