package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/cbwatch/internal/broadcast"
	"github.com/linnemanlabs/cbwatch/internal/classify"
	"github.com/linnemanlabs/cbwatch/internal/policy"
	"github.com/linnemanlabs/cbwatch/internal/prefs"
)

// Sink names used in logs, errors and metric labels.
const (
	SinkStorage  = "storage"
	SinkNotifier = "notifier"
	SinkAudio    = "audio"
)

// Storage persists messages. Insert must be idempotent on message ID.
type Storage interface {
	Insert(ctx context.Context, msg *broadcast.Message) error
}

// Notifier posts user visible notifications.
type Notifier interface {
	Post(ctx context.Context, n Notification) error
}

// Player sounds the alert tone and speaks body in language when body is non-empty.
type Player interface {
	Play(ctx context.Context, body, language string, d time.Duration) error
}

// Sequence hands out notification IDs.
type Sequence interface {
	Next(ctx context.Context) (int64, error)
}

// SinkError is reported when a sink gives up on a message.
type SinkError struct {
	Sink      string
	MessageID string
	Attempts  int
	Err       error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("%s sink: message %s: after %d attempts: %v", e.Sink, e.MessageID, e.Attempts, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// ErrClosed is returned by Close when called twice.
var ErrClosed = errors.New("dispatch: coordinator closed")

// Hooks are optional callbacks for observability. Nil fields are skipped.
type Hooks struct {
	// OnResult is called once per sink call with the total attempts made and the
	// final error, a *SinkError, or nil.
	OnResult func(sink string, attempts int, duration float64, err error)
	// OnDrop is called when a sink queue is full or the coordinator is closed.
	OnDrop func(sink string)
}

// Options tune the worker queues.
type Options struct {
	QueueSize       int
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Hooks           Hooks
}

// DefaultOptions returns the options used when fields are left zero.
func DefaultOptions() Options {
	return Options{
		QueueSize:       64,
		MaxAttempts:     5,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.QueueSize <= 0 {
		o.QueueSize = def.QueueSize
	}
	if o.MaxAttempts == 0 {
		o.MaxAttempts = def.MaxAttempts
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = def.InitialInterval
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = def.MaxInterval
	}
	return o
}

type job struct {
	ctx       context.Context
	messageID string
	call      func(ctx context.Context) error
}

// Coordinator runs one bounded queue and worker per sink, so a slow or failing
// sink never holds up the others or the caller.
type Coordinator struct {
	storage  Storage
	notifier Notifier
	player   Player
	seq      Sequence
	opts     Options
	logger   log.Logger

	queues map[string]chan job

	mu     sync.RWMutex
	closed bool

	stop    context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup
}

// NewCoordinator starts the sink workers. Storage, notifier, player and sequence are required.
func NewCoordinator(storage Storage, notifier Notifier, player Player, seq Sequence, logger log.Logger, opts Options) *Coordinator {
	if storage == nil {
		panic(xerrors.New("dispatch: storage is required"))
	}
	if notifier == nil {
		panic(xerrors.New("dispatch: notifier is required"))
	}
	if player == nil {
		panic(xerrors.New("dispatch: player is required"))
	}
	if seq == nil {
		panic(xerrors.New("dispatch: sequence is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}

	opts = opts.withDefaults()
	stop, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		storage:  storage,
		notifier: notifier,
		player:   player,
		seq:      seq,
		opts:     opts,
		logger:   logger,
		queues:   make(map[string]chan job, 3),
		stop:     stop,
		cancel:   cancel,
	}
	for _, sink := range []string{SinkStorage, SinkNotifier, SinkAudio} {
		q := make(chan job, opts.QueueSize)
		c.queues[sink] = q
		c.workers.Add(1)
		go c.run(sink, q)
	}
	return c
}

// Dispatch plans and enqueues the sink calls for msg and returns the plan.
// Each sink receives its own copy of msg. It never blocks on a sink.
func (c *Coordinator) Dispatch(ctx context.Context, msg *broadcast.Message, cl classify.Classification, d policy.Decision, snap prefs.Snapshot) Plan {
	plan := BuildPlan(msg, cl, d, snap)
	if !plan.Deliver {
		return plan
	}

	stored := msg.Clone()
	c.enqueue(ctx, SinkStorage, msg.ID, func(ctx context.Context) error {
		return c.storage.Insert(ctx, stored)
	})

	n := plan.Notification
	var assigned bool
	c.enqueue(ctx, SinkNotifier, msg.ID, func(ctx context.Context) error {
		// retries reuse the first ID so a flaky notifier can replace rather than duplicate
		if !assigned {
			id, err := c.seq.Next(ctx)
			if err != nil {
				return fmt.Errorf("next notification id: %w", err)
			}
			n.ID = id
			assigned = true
		}
		return c.notifier.Post(ctx, n)
	})

	if a := plan.Audio; a != nil {
		audio := *a
		c.enqueue(ctx, SinkAudio, msg.ID, func(ctx context.Context) error {
			return c.player.Play(ctx, audio.Body, audio.Language, audio.Duration)
		})
	}
	return plan
}

func (c *Coordinator) enqueue(ctx context.Context, sink, messageID string, call func(context.Context) error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.closed {
		select {
		case c.queues[sink] <- job{ctx: ctx, messageID: messageID, call: call}:
			return
		default:
		}
	}

	c.logger.Warn(ctx, "sink queue unavailable, dropping work",
		"sink", sink,
		"message_id", messageID,
		"closed", c.closed,
	)
	if c.opts.Hooks.OnDrop != nil {
		c.opts.Hooks.OnDrop(sink)
	}
}

func (c *Coordinator) run(sink string, q <-chan job) {
	defer c.workers.Done()
	for j := range q {
		c.execute(sink, j)
	}
}

func (c *Coordinator) execute(sink string, j job) {
	ctx, cancel := context.WithCancel(j.ctx)
	defer cancel()
	// abandon retries once Close runs out of time
	stopAfter := context.AfterFunc(c.stop, cancel)
	defer stopAfter()

	L := c.logger.With("sink", sink, "message_id", j.messageID)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InitialInterval
	b.MaxInterval = c.opts.MaxInterval

	start := time.Now()
	attempts := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempts++
		return struct{}{}, j.call(ctx)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.opts.MaxAttempts),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			L.Warn(ctx, "sink call failed, retrying", "attempt", attempts, "retry_in", next, "error", err)
		}),
	)
	duration := time.Since(start).Seconds()

	if err != nil {
		err = &SinkError{Sink: sink, MessageID: j.messageID, Attempts: attempts, Err: err}
		L.Error(ctx, err, "sink gave up", "attempts", attempts)
	}
	if c.opts.Hooks.OnResult != nil {
		c.opts.Hooks.OnResult(sink, attempts, duration, err)
	}
}

// Close stops accepting work and waits for the queues to drain. When ctx ends
// first, in-flight retries are abandoned and ctx's error is returned.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.closed = true
	for _, q := range c.queues {
		close(q)
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.cancel()
		return nil
	case <-ctx.Done():
		c.cancel()
		<-done
		return ctx.Err()
	}
}
