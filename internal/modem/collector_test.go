package modem

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linnemanlabs/cbwatch/internal/pipeline"
)

type recordingSubmitter struct {
	mu      sync.Mutex
	batches []pipeline.Batch
	err     error
}

func (r *recordingSubmitter) Submit(_ context.Context, b pipeline.Batch) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.batches = append(r.batches, b)
	return "batch", nil
}

func (r *recordingSubmitter) Batches() []pipeline.Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pipeline.Batch(nil), r.batches...)
}

func gsmPage(serial, id uint16, index, total int) []byte {
	page := make([]byte, gsmMaxLen)
	page[0], page[1] = byte(serial>>8), byte(serial)
	page[2], page[3] = byte(id>>8), byte(id)
	page[4] = 0x01
	page[5] = byte(index<<4 | total)
	for i := gsmHeaderLen; i < len(page); i++ {
		page[i] = byte(index)
	}
	return page
}

func TestCollector_SinglePage(t *testing.T) {
	tt := []struct {
		desc     string
		page     []byte
		expected pipeline.Action
	}{
		{desc: "normal channel", page: gsmPage(0x3001, 50, 1, 1), expected: pipeline.ActionGSMNormal},
		{desc: "presidential", page: gsmPage(0x3001, 0x1112, 1, 1), expected: pipeline.ActionGSMEmergency},
		{desc: "last pws id", page: gsmPage(0x3001, 0x18ff, 1, 1), expected: pipeline.ActionGSMEmergency},
		{desc: "invalid page parameter", page: gsmPage(0x3001, 0x1900, 0, 0), expected: pipeline.ActionGSMNormal},
		{desc: "index above total", page: gsmPage(0x3001, 0x1113, 3, 2), expected: pipeline.ActionGSMEmergency},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			sub := &recordingSubmitter{}
			c := NewCollector(sub, log.Nop())

			c.HandlePage(context.Background(), tc.page)

			batches := sub.Batches()
			require.Len(t, batches, 1)
			assert.Equal(t, tc.expected, batches[0].Action)
			assert.Equal(t, [][]byte{tc.page}, batches[0].PDUs)
			assert.Equal(t, 0, c.Pending())
		})
	}
}

func TestCollector_MultiPageOutOfOrder(t *testing.T) {
	sub := &recordingSubmitter{}
	c := NewCollector(sub, log.Nop())
	p1, p2, p3 := gsmPage(0x1234, 0x1113, 1, 3), gsmPage(0x1234, 0x1113, 2, 3), gsmPage(0x1234, 0x1113, 3, 3)

	c.HandlePage(context.Background(), p3)
	c.HandlePage(context.Background(), p1)
	assert.Empty(t, sub.Batches())
	assert.Equal(t, 1, c.Pending())

	c.HandlePage(context.Background(), p2)

	batches := sub.Batches()
	require.Len(t, batches, 1)
	assert.Equal(t, pipeline.ActionGSMEmergency, batches[0].Action)
	assert.Equal(t, [][]byte{p1, p2, p3}, batches[0].PDUs)
	assert.Equal(t, 0, c.Pending())
}

func TestCollector_DuplicatePage(t *testing.T) {
	sub := &recordingSubmitter{}
	c := NewCollector(sub, log.Nop())

	c.HandlePage(context.Background(), gsmPage(1, 50, 1, 2))
	c.HandlePage(context.Background(), gsmPage(1, 50, 1, 2))
	assert.Empty(t, sub.Batches())

	c.HandlePage(context.Background(), gsmPage(1, 50, 2, 2))

	batches := sub.Batches()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0].PDUs, 2)
}

func TestCollector_SeparatesSerials(t *testing.T) {
	sub := &recordingSubmitter{}
	c := NewCollector(sub, log.Nop())

	c.HandlePage(context.Background(), gsmPage(1, 50, 1, 2))
	c.HandlePage(context.Background(), gsmPage(2, 50, 2, 2))

	assert.Empty(t, sub.Batches())
	assert.Equal(t, 2, c.Pending())
}

func TestCollector_ExpiresIncompleteMessages(t *testing.T) {
	sub := &recordingSubmitter{}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewCollector(sub, log.Nop()).WithExpiry(time.Minute).WithClock(func() time.Time { return now })

	c.HandlePage(context.Background(), gsmPage(1, 0x1113, 1, 2))
	now = now.Add(61 * time.Second)
	c.HandlePage(context.Background(), gsmPage(2, 0x1114, 1, 2))
	assert.Equal(t, 1, c.Pending())

	c.HandlePage(context.Background(), gsmPage(1, 0x1113, 2, 2))

	assert.Empty(t, sub.Batches())
	assert.Equal(t, 2, c.Pending())
}

func TestCollector_WholeMessages(t *testing.T) {
	etws := []byte{0x11, 0x00, 0x11, 0x02, 0x01, 0x80}
	umts := make([]byte, 7+83)
	umts[0] = 0x01
	umts[1], umts[2] = 0x00, 0x32
	umts[6] = 0x01

	tt := []struct {
		desc     string
		page     []byte
		expected pipeline.Action
	}{
		{desc: "etws primary", page: etws, expected: pipeline.ActionGSMEmergency},
		{desc: "umts channel 50", page: umts, expected: pipeline.ActionGSMNormal},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			sub := &recordingSubmitter{}
			c := NewCollector(sub, log.Nop())

			c.HandlePage(context.Background(), tc.page)

			batches := sub.Batches()
			require.Len(t, batches, 1)
			assert.Equal(t, tc.expected, batches[0].Action)
		})
	}
}

func TestCollector_HandleIndication(t *testing.T) {
	page := gsmPage(0x3001, 0x1112, 1, 1)
	tt := []struct {
		desc     string
		lines    []string
		expected int
	}{
		{desc: "valid", lines: []string{"+CBM: 88", strings.ToUpper(hex.EncodeToString(page))}, expected: 1},
		{desc: "not hex", lines: []string{"+CBM: 88", "zz"}, expected: 0},
		{desc: "missing pdu", lines: []string{"+CBM: 88"}, expected: 0},
		{desc: "short pdu", lines: []string{"+CBM: 3", "010203"}, expected: 0},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			sub := &recordingSubmitter{}
			c := NewCollector(sub, log.Nop())

			c.HandleIndication(context.Background(), tc.lines)

			assert.Len(t, sub.Batches(), tc.expected)
		})
	}
}

func TestCollector_SubmitErrorIsLogged(t *testing.T) {
	sub := &recordingSubmitter{err: errors.New("queue closed")}
	c := NewCollector(sub, log.Nop())

	assert.NotPanics(t, func() {
		c.HandlePage(context.Background(), gsmPage(1, 50, 1, 1))
	})
}

func TestCollector_AttachedToSession(t *testing.T) {
	m := newFakeModem(t)
	s := NewSession(m, log.Nop())
	sub := &recordingSubmitter{}
	NewCollector(sub, log.Nop()).Attach(context.Background(), s)

	page := gsmPage(0x3001, 0x1112, 1, 1)
	m.emit("+CBM: 88\r\n" + hex.EncodeToString(page) + "\r\n")

	assert.Eventually(t, func() bool { return len(sub.Batches()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, [][]byte{page}, sub.Batches()[0].PDUs)
}
