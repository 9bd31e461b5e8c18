// Package modem talks to a GSM modem over its AT command interface. It receives cell
// broadcast pages as +CBM unsolicited results and selects channels with AT+CSCB.
package modem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

const (
	readBufferSize   = 1024
	sendQueueTimeout = 500 * time.Millisecond
	idleTick         = 100 * time.Millisecond
)

var (
	// ErrSendQueueTimeout is returned when a command could not be handed to the session loop in time.
	ErrSendQueueTimeout = errors.New("modem: AT send queue timeout")
	// ErrClosed is returned for commands issued after the device closed.
	ErrClosed = errors.New("modem: session closed")
)

// ATError is a final error result code returned by the modem.
type ATError struct {
	Request  string
	Response string
}

func (e *ATError) Error() string {
	return fmt.Sprintf("%s: %s", e.Request, e.Response)
}

// IndicationHandler receives the lines of one unsolicited result. Handlers run on the
// session goroutine and must not issue AT commands.
type IndicationHandler func(lines []string)

// Session serializes AT commands to a device and routes unsolicited results to handlers.
type Session struct {
	commands chan command
	closed   chan struct{}
	logger   log.Logger

	mu          sync.RWMutex
	indications []indicationConfig
}

// NewSession starts reading from device. The session ends when a read fails.
func NewSession(device io.ReadWriter, logger log.Logger) *Session {
	if logger == nil {
		logger = log.Nop()
	}
	s := &Session{
		commands: make(chan command),
		closed:   make(chan struct{}),
		logger:   logger,
	}
	go s.loop(device, readLines(device))
	return s
}

// Closed reports whether the device stopped delivering data.
func (s *Session) Closed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.closed
}

// OnIndication registers handler for unsolicited results starting with prefix
// (case insensitive) that are followed by trailingLines more lines.
func (s *Session) OnIndication(prefix string, trailingLines int, handler IndicationHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indications = append(s.indications, indicationConfig{
		prefix:        strings.ToUpper(prefix),
		trailingLines: trailingLines,
		handler:       handler,
	})
}

// AT sends request and waits for its final result code. The intermediate lines are returned.
func (s *Session) AT(ctx context.Context, request string) ([]string, error) {
	cmd := command{
		request:   request,
		result:    make(chan commandResult, 1),
		cancelled: ctx.Done(),
	}

	select {
	case s.commands <- cmd:
	case <-s.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(sendQueueTimeout):
		return nil, ErrSendQueueTimeout
	}

	select {
	case r := <-cmd.result:
		return r.lines, r.err
	case <-s.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ATs sends requests in order and stops at the first failure.
func (s *Session) ATs(ctx context.Context, requests ...string) error {
	for _, request := range requests {
		if _, err := s.AT(ctx, request); err != nil {
			return fmt.Errorf("%s failed: %w", request, err)
		}
	}
	return nil
}

func (s *Session) loop(device io.Writer, lines <-chan string) {
	defer close(s.closed)

	var active *command
	var pending *indication
	tick := time.NewTicker(idleTick)
	defer tick.Stop()

	for {
		var cancelled <-chan struct{}
		if active != nil {
			cancelled = active.cancelled
		}

		select {
		case line, ok := <-lines:
			if !ok {
				return
			}
			switch {
			case pending != nil:
				pending.lines = append(pending.lines, line)
				if pending.complete() {
					pending.config.handler(pending.lines)
					pending = nil
				}
			default:
				if ind := s.match(line); ind != nil {
					if ind.complete() {
						ind.config.handler(ind.lines)
					} else {
						pending = ind
					}
					break
				}
				if active != nil {
					if active.addLine(line) {
						active = nil
					}
				}
			}
		case <-cancelled:
			active = nil
		case <-tick.C:
		}

		if active == nil {
			select {
			case cmd := <-s.commands:
				if cmd.request == "" {
					cmd.result <- commandResult{}
					break
				}
				if _, err := io.WriteString(device, withTerminator(cmd.request)); err != nil {
					cmd.result <- commandResult{err: fmt.Errorf("modem: write %s: %w", cmd.request, err)}
					break
				}
				active = &cmd
			default:
			}
		}
	}
}

func (s *Session) match(line string) *indication {
	s.mu.RLock()
	defer s.mu.RUnlock()
	upper := strings.ToUpper(line)
	for _, c := range s.indications {
		if strings.HasPrefix(upper, c.prefix) {
			return &indication{config: c, lines: []string{line}}
		}
	}
	return nil
}

// withTerminator appends CR LF unless the request already ends with Ctrl-Z or ESC.
func withTerminator(request string) string {
	last := request[len(request)-1]
	if last == 0x1a || last == 0x1b {
		return request
	}
	return request + "\r\n"
}

// readLines splits device output into non-empty lines with control characters removed.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string, 1)
	go func() {
		defer close(lines)
		buf := make([]byte, readBufferSize)
		current := make([]byte, 0, readBufferSize)
		for {
			n, err := r.Read(buf)
			for _, b := range buf[:n] {
				switch {
				case b == '\n':
					if len(current) == 0 {
						continue
					}
					lines <- string(current)
					current = current[:0]
				case b < ' ':
					continue
				default:
					current = append(current, b)
				}
			}
			if err != nil {
				if len(current) > 0 {
					lines <- string(current)
				}
				return
			}
		}
	}()
	return lines
}

type indicationConfig struct {
	prefix        string
	trailingLines int
	handler       IndicationHandler
}

type indication struct {
	config indicationConfig
	lines  []string
}

func (i *indication) complete() bool {
	return len(i.lines) >= i.config.trailingLines+1
}

type commandResult struct {
	lines []string
	err   error
}

type command struct {
	request   string
	lines     []string
	result    chan commandResult
	cancelled <-chan struct{}
}

// addLine records a response line and reports whether it was the final result code.
func (c *command) addLine(line string) bool {
	trimmed := strings.TrimSpace(strings.ToUpper(line))
	switch {
	case trimmed == "OK":
		c.result <- commandResult{lines: c.lines}
		return true
	case trimmed == "ERROR",
		strings.HasPrefix(trimmed, "+CME ERROR"),
		strings.HasPrefix(trimmed, "+CMS ERROR"):
		c.result <- commandResult{err: &ATError{Request: c.request, Response: line}}
		return true
	case trimmed == strings.ToUpper(c.request):
		// command echo
		return false
	default:
		c.lines = append(c.lines, line)
		return false
	}
}
