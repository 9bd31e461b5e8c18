package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/cbwatch/internal/broadcast"
	"github.com/linnemanlabs/cbwatch/internal/classify"
	"github.com/linnemanlabs/cbwatch/internal/pdu"
	"github.com/linnemanlabs/cbwatch/internal/policy"
	"github.com/linnemanlabs/cbwatch/internal/prefs"
)

type played struct {
	body, language string
	d              time.Duration
}

// recorder implements Storage, Notifier and Player. Insert and Post fail their
// first failInsert and failPost calls.
type recorder struct {
	mu            sync.Mutex
	inserted      []*broadcast.Message
	posted        []Notification
	played        []played
	insertCalls   int
	postCalls     int
	failInsert    int
	failPost      int
	permanentPost bool
	postGate      chan struct{}
	postEntered   chan struct{}
}

func (r *recorder) Insert(_ context.Context, msg *broadcast.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertCalls++
	if r.insertCalls <= r.failInsert {
		return errors.New("db unavailable")
	}
	r.inserted = append(r.inserted, msg)
	return nil
}

func (r *recorder) Post(ctx context.Context, n Notification) error {
	if r.postEntered != nil {
		r.postEntered <- struct{}{}
	}
	if r.postGate != nil {
		select {
		case <-r.postGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.postCalls++
	if r.postCalls <= r.failPost {
		err := errors.New("webhook 503")
		if r.permanentPost {
			return Permanent(err)
		}
		return err
	}
	r.posted = append(r.posted, n)
	return nil
}

func (r *recorder) Play(_ context.Context, body, language string, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.played = append(r.played, played{body, language, d})
	return nil
}

func (r *recorder) counts() (inserted, posted, played int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inserted), len(r.posted), len(r.played)
}

type countingSeq struct {
	mu    sync.Mutex
	calls int
}

func (s *countingSeq) Next(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return int64(100 + s.calls), nil
}

type results struct {
	mu    sync.Mutex
	errs  map[string][]error
	tries map[string][]int
	drops map[string]int
}

func newResults() *results {
	return &results{errs: map[string][]error{}, tries: map[string][]int{}, drops: map[string]int{}}
}

func (r *results) hooks() Hooks {
	return Hooks{
		OnResult: func(sink string, attempts int, _ float64, err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs[sink] = append(r.errs[sink], err)
			r.tries[sink] = append(r.tries[sink], attempts)
		},
		OnDrop: func(sink string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.drops[sink]++
		},
	}
}

func testOptions(res *results) Options {
	return Options{
		QueueSize:       8,
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Hooks:           res.hooks(),
	}
}

var classifier = classify.NewClassifier(classify.IdentifierRange{}, classify.IdentifierRange{})

func message(format pdu.Format, id int, lang string) *broadcast.Message {
	return &broadcast.Message{
		ID:                "01HTEST",
		Format:            format,
		MessageIdentifier: id,
		Language:          lang,
		Body:              "Take shelter now",
		DeliveryTime:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func dispatchOne(t *testing.T, c *Coordinator, msg *broadcast.Message, snap prefs.Snapshot) Plan {
	t.Helper()
	cl := classifier.Classify(msg)
	d := policy.Filter{}.Decide(msg, cl, snap)
	return c.Dispatch(context.Background(), msg, cl, d, snap)
}

func closeCoordinator(t *testing.T, c *Coordinator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestDispatch_NotDeliveredMakesNoCalls(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	seq := &countingSeq{}
	c := NewCoordinator(rec, rec, rec, seq, log.Nop(), testOptions(newResults()))

	plan := dispatchOne(t, c, message(pdu.FormatGSM, classify.GsmCmasAmber, "en"), prefs.Defaults())
	closeCoordinator(t, c)

	if plan.Deliver {
		t.Error("amber alert delivered with default preferences")
	}
	if i, p, a := rec.counts(); i+p+a != 0 {
		t.Errorf("sink calls = %d/%d/%d, want none", i, p, a)
	}
	if seq.calls != 0 {
		t.Errorf("sequence calls = %d, want 0", seq.calls)
	}
}

func TestDispatch_NonEmergency(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	c := NewCoordinator(rec, rec, rec, &countingSeq{}, log.Nop(), testOptions(newResults()))

	msg := message(pdu.FormatGSM, 1234, "de")
	dispatchOne(t, c, msg, prefs.Defaults())
	closeCoordinator(t, c)

	i, p, a := rec.counts()
	if i != 1 || p != 1 || a != 0 {
		t.Fatalf("store/notify/audio = %d/%d/%d, want 1/1/0", i, p, a)
	}
	n := rec.posted[0]
	if n.Presentation != PresentationPassive {
		t.Errorf("presentation = %v, want passive", n.Presentation)
	}
	if n.TitleKey != classify.TitleKeyOtherBroadcast {
		t.Errorf("title key = %q, want %q", n.TitleKey, classify.TitleKeyOtherBroadcast)
	}
	if n.ID != 101 {
		t.Errorf("notification id = %d, want 101", n.ID)
	}
	if n.MessageID != msg.ID {
		t.Errorf("message id = %q, want %q", n.MessageID, msg.ID)
	}
}

func TestDispatch_EmergencyCallsEverySinkOnce(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	c := NewCoordinator(rec, rec, rec, &countingSeq{}, log.Nop(), testOptions(newResults()))

	dispatchOne(t, c, message(pdu.FormatGSM, classify.GsmEtwsEarthquake, "en"), prefs.Defaults())
	closeCoordinator(t, c)

	i, p, a := rec.counts()
	if i != 1 || p != 1 || a != 1 {
		t.Fatalf("store/notify/audio = %d/%d/%d, want 1/1/1", i, p, a)
	}
	if rec.posted[0].Presentation != PresentationFullScreen {
		t.Errorf("presentation = %v, want full_screen", rec.posted[0].Presentation)
	}
	got := rec.played[0]
	if got.language != "ja" {
		t.Errorf("speech language = %q, want %q", got.language, "ja")
	}
	if got.d != 4*time.Second {
		t.Errorf("duration = %v, want 4s", got.d)
	}
	if got.body != "Take shelter now" {
		t.Errorf("speech body = %q", got.body)
	}
}

func TestDispatch_SinksGetIndependentCopies(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	c := NewCoordinator(rec, rec, rec, &countingSeq{}, log.Nop(), testOptions(newResults()))

	msg := message(pdu.FormatGSM, 1234, "en")
	dispatchOne(t, c, msg, prefs.Defaults())
	msg.Body = "mutated by caller"
	closeCoordinator(t, c)

	if rec.inserted[0] == msg {
		t.Fatal("storage received the caller's pointer")
	}
	if rec.inserted[0].Body != "Take shelter now" {
		t.Errorf("stored body = %q, want original", rec.inserted[0].Body)
	}
}

func TestDispatch_FailingStoreDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	rec := &recorder{failInsert: 100}
	res := newResults()
	c := NewCoordinator(rec, rec, rec, &countingSeq{}, log.Nop(), testOptions(res))

	dispatchOne(t, c, message(pdu.FormatGSM, classify.GsmCmasPresidential, "en"), prefs.Defaults())
	closeCoordinator(t, c)

	i, p, a := rec.counts()
	if i != 0 || p != 1 || a != 1 {
		t.Fatalf("store/notify/audio = %d/%d/%d, want 0/1/1", i, p, a)
	}
	if rec.insertCalls != 3 {
		t.Errorf("insert attempts = %d, want 3", rec.insertCalls)
	}

	var se *SinkError
	if err := res.errs[SinkStorage][0]; !errors.As(err, &se) {
		t.Fatalf("storage result = %v, want *SinkError", err)
	}
	if se.Sink != SinkStorage || se.Attempts != 3 || se.MessageID != "01HTEST" {
		t.Errorf("SinkError = %+v", se)
	}
	if err := res.errs[SinkNotifier][0]; err != nil {
		t.Errorf("notifier result = %v, want nil", err)
	}
}

func TestDispatch_RetryReusesNotificationID(t *testing.T) {
	t.Parallel()

	rec := &recorder{failPost: 2}
	seq := &countingSeq{}
	res := newResults()
	c := NewCoordinator(rec, rec, rec, seq, log.Nop(), testOptions(res))

	dispatchOne(t, c, message(pdu.FormatGSM, 1234, "en"), prefs.Defaults())
	closeCoordinator(t, c)

	if len(rec.posted) != 1 {
		t.Fatalf("posted = %d, want 1", len(rec.posted))
	}
	if seq.calls != 1 {
		t.Errorf("sequence calls = %d, want 1", seq.calls)
	}
	if got := res.tries[SinkNotifier][0]; got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestDispatch_PermanentErrorStopsRetries(t *testing.T) {
	t.Parallel()

	rec := &recorder{failPost: 100, permanentPost: true}
	res := newResults()
	c := NewCoordinator(rec, rec, rec, &countingSeq{}, log.Nop(), testOptions(res))

	dispatchOne(t, c, message(pdu.FormatGSM, 1234, "en"), prefs.Defaults())
	closeCoordinator(t, c)

	if rec.postCalls != 1 {
		t.Errorf("post attempts = %d, want 1", rec.postCalls)
	}
	var se *SinkError
	if !errors.As(res.errs[SinkNotifier][0], &se) {
		t.Fatalf("notifier result = %v, want *SinkError", res.errs[SinkNotifier][0])
	}
}

func TestDispatch_FullQueueDrops(t *testing.T) {
	t.Parallel()

	rec := &recorder{postGate: make(chan struct{}), postEntered: make(chan struct{}, 8)}
	res := newResults()
	opts := testOptions(res)
	opts.QueueSize = 1
	c := NewCoordinator(rec, rec, rec, &countingSeq{}, log.Nop(), opts)

	dispatchOne(t, c, message(pdu.FormatGSM, 1234, "en"), prefs.Defaults())
	<-rec.postEntered // worker is now blocked on the first notification

	dispatchOne(t, c, message(pdu.FormatGSM, 1234, "en"), prefs.Defaults())
	dispatchOne(t, c, message(pdu.FormatGSM, 1234, "en"), prefs.Defaults())

	res.mu.Lock()
	drops := res.drops[SinkNotifier]
	res.mu.Unlock()
	if drops != 1 {
		t.Errorf("notifier drops = %d, want 1", drops)
	}

	close(rec.postGate)
	closeCoordinator(t, c)

	if _, p, _ := rec.counts(); p != 2 {
		t.Errorf("posted = %d, want 2", p)
	}
}

func TestClose_RejectsLateWork(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	res := newResults()
	c := NewCoordinator(rec, rec, rec, &countingSeq{}, log.Nop(), testOptions(res))
	closeCoordinator(t, c)

	dispatchOne(t, c, message(pdu.FormatGSM, 1234, "en"), prefs.Defaults())
	if res.drops[SinkStorage] != 1 || res.drops[SinkNotifier] != 1 {
		t.Errorf("drops = %v, want one per queued sink", res.drops)
	}
	if err := c.Close(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("second Close = %v, want ErrClosed", err)
	}
}

func TestClose_DeadlineAbandonsStuckSink(t *testing.T) {
	t.Parallel()

	rec := &recorder{postGate: make(chan struct{}), postEntered: make(chan struct{}, 8)}
	c := NewCoordinator(rec, rec, rec, &countingSeq{}, log.Nop(), testOptions(newResults()))

	dispatchOne(t, c, message(pdu.FormatGSM, 1234, "en"), prefs.Defaults())
	<-rec.postEntered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Close = %v, want deadline exceeded", err)
	}
}

func TestNewCoordinator_PanicsOnMissingSink(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Error("expected panic for nil storage")
		}
	}()
	rec := &recorder{}
	NewCoordinator(nil, rec, rec, &countingSeq{}, nil, Options{})
}

func TestCounter(t *testing.T) {
	t.Parallel()

	c := NewCounter(41)
	for want := int64(42); want < 45; want++ {
		got, err := c.Next(context.Background())
		if err != nil || got != want {
			t.Errorf("Next = %d, %v, want %d", got, err, want)
		}
	}
}
