package modem

import (
	"io"
	"strings"
	"sync"
	"testing"
)

// fakeModem is an in-memory device: tests emit modem output and observe the
// commands the session writes.
type fakeModem struct {
	pr *io.PipeReader
	pw *io.PipeWriter

	mu       sync.Mutex
	written  []string
	requests chan string
	done     chan struct{}
	once     sync.Once
}

func newFakeModem(t *testing.T) *fakeModem {
	t.Helper()
	pr, pw := io.Pipe()
	m := &fakeModem{
		pr:       pr,
		pw:       pw,
		requests: make(chan string, 16),
		done:     make(chan struct{}),
	}
	t.Cleanup(m.Close)
	return m
}

func (m *fakeModem) Read(p []byte) (int, error) {
	return m.pr.Read(p)
}

func (m *fakeModem) Write(p []byte) (int, error) {
	request := strings.TrimRight(string(p), "\r\n")
	m.mu.Lock()
	m.written = append(m.written, request)
	m.mu.Unlock()
	select {
	case m.requests <- request:
	default:
	}
	return len(p), nil
}

// Close ends the session's input with EOF.
func (m *fakeModem) Close() {
	m.once.Do(func() {
		close(m.done)
		_ = m.pw.Close()
	})
}

func (m *fakeModem) emit(output string) {
	_, _ = io.WriteString(m.pw, output)
}

// respond answers every request with reply(request).
func (m *fakeModem) respond(reply func(request string) string) {
	go func() {
		for {
			select {
			case req := <-m.requests:
				m.emit(reply(req))
			case <-m.done:
				return
			}
		}
	}()
}

func (m *fakeModem) Written() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.written...)
}

func ok(string) string { return "OK\r\n" }
