// Package pipeline runs batches of raw PDUs through decoding, assembly, classification,
// policy and dispatch.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/cbwatch/internal/broadcast"
	"github.com/linnemanlabs/cbwatch/internal/classify"
	"github.com/linnemanlabs/cbwatch/internal/dispatch"
	"github.com/linnemanlabs/cbwatch/internal/pdu"
	"github.com/linnemanlabs/cbwatch/internal/policy"
	"github.com/linnemanlabs/cbwatch/internal/prefs"
)

var (
	// ErrEmptyBatch is returned by Submit for a batch without PDUs.
	ErrEmptyBatch = errors.New("batch has no pdus")
	// ErrUnknownAction is returned by Submit for a batch whose action has no format.
	ErrUnknownAction = errors.New("unknown batch action")
)

// Batch results used in logs and metrics.
const (
	ResultDelivered  = "delivered"
	ResultSuppressed = "suppressed"
	ResultFailed     = "failed"
)

// Dispatcher hands a classified message to the sinks.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg *broadcast.Message, cl classify.Classification, d policy.Decision, snap prefs.Snapshot) dispatch.Plan
}

// Outcome is what became of one batch.
type Outcome struct {
	BatchID        string
	Result         string
	Message        *broadcast.Message
	Classification classify.Classification
	Decision       policy.Decision
	Plan           dispatch.Plan
}

// Hooks are optional callbacks for observability. Nil fields are skipped.
type Hooks struct {
	OnSubmit   func(result string)
	OnMessage  func(format, category, decision string)
	OnComplete func(format, result string, duration float64)
}

// Service is the business boundary for batch processing.
type Service struct {
	assembler  *broadcast.Assembler
	classifier *classify.Classifier
	filter     policy.Filter
	prefs      prefs.Source
	dispatcher Dispatcher
	hooks      Hooks
	tracer     trace.Tracer
	logger     log.Logger

	inflight sync.WaitGroup
}

// NewService creates a pipeline service.
func NewService(assembler *broadcast.Assembler, classifier *classify.Classifier, source prefs.Source, dispatcher Dispatcher, hooks Hooks, logger log.Logger) *Service {
	if assembler == nil || classifier == nil || dispatcher == nil {
		panic(xerrors.New("pipeline: assembler, classifier and dispatcher are required"))
	}
	if source == nil {
		source = prefs.NewMemory(nil)
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		assembler:  assembler,
		classifier: classifier,
		prefs:      source,
		dispatcher: dispatcher,
		hooks:      hooks,
		tracer:     otel.Tracer("github.com/linnemanlabs/cbwatch/internal/pipeline"),
		logger:     logger,
	}
}

// WithTracerProvider replaces the global tracer provider.
func (s *Service) WithTracerProvider(tp trace.TracerProvider) *Service {
	s.tracer = tp.Tracer("github.com/linnemanlabs/cbwatch/internal/pipeline")
	return s
}

// Submit accepts a batch for asynchronous processing and returns its ID.
func (s *Service) Submit(ctx context.Context, b Batch) (string, error) {
	if len(b.PDUs) == 0 {
		s.submitted("rejected")
		return "", ErrEmptyBatch
	}
	if b.Action.Format() == pdu.FormatUnknown {
		s.submitted("rejected")
		return "", ErrUnknownAction
	}
	if b.ID == "" {
		b.ID = ulid.Make().String()
	}
	if b.ReceivedAt.IsZero() {
		b.ReceivedAt = time.Now()
	}

	s.submitted("accepted")
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		_, _ = s.Process(context.WithoutCancel(ctx), b)
	}()
	return b.ID, nil
}

// Wait blocks until submitted batches finish or ctx ends.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Process runs one batch to completion and returns its outcome. A batch whose first
// page cannot be decoded yields an error and no message.
func (s *Service) Process(ctx context.Context, b Batch) (*Outcome, error) {
	start := time.Now()
	format := b.Action.Format()

	ctx, span := s.tracer.Start(ctx, "pipeline.Process",
		trace.WithAttributes(
			attribute.String("cbwatch.batch_id", b.ID),
			attribute.String("cbwatch.action", string(b.Action)),
			attribute.Int("cbwatch.pdus", len(b.PDUs)),
		),
	)
	defer span.End()

	L := s.logger.With("batch_id", b.ID, "format", format.String())
	out := &Outcome{BatchID: b.ID, Result: ResultFailed}
	defer func() {
		span.SetAttributes(attribute.String("cbwatch.result", out.Result))
		if s.hooks.OnComplete != nil {
			s.hooks.OnComplete(format.String(), out.Result, time.Since(start).Seconds())
		}
	}()

	// preferences are read once, before any of the pure stages
	snap, err := s.prefs.Snapshot(ctx)
	if err != nil {
		L.Warn(ctx, "preferences unavailable, using defaults", "error", err)
		snap = prefs.Defaults()
	}

	msg, err := s.assembler.Assemble(ctx, format, b.PDUs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assemble failed")
		L.Warn(ctx, "dropping batch", "pdus", len(b.PDUs), "error", err)
		return out, err
	}

	cl := s.classifier.Classify(msg)
	d := s.filter.Decide(msg, cl, snap)
	plan := s.dispatcher.Dispatch(ctx, msg, cl, d, snap)

	out.Message = msg
	out.Classification = cl
	out.Decision = d
	out.Plan = plan
	out.Result = ResultSuppressed
	if d.Deliver {
		out.Result = ResultDelivered
	}

	span.SetAttributes(
		attribute.String("cbwatch.message_id", msg.ID),
		attribute.Int("cbwatch.message_identifier", msg.MessageIdentifier),
		attribute.String("cbwatch.category", cl.Category.String()),
		attribute.Bool("cbwatch.emergency", d.TreatAsEmergency),
	)
	if s.hooks.OnMessage != nil {
		s.hooks.OnMessage(format.String(), cl.Category.String(), out.Result)
	}

	L.Info(ctx, "batch processed",
		"message_id", msg.ID,
		"message_identifier", msg.MessageIdentifier,
		"category", cl.Category.String(),
		"result", out.Result,
		"emergency", d.TreatAsEmergency,
		"radio_emergency", b.Action.Emergency(),
		"duration", time.Since(start),
	)
	return out, nil
}

func (s *Service) submitted(result string) {
	if s.hooks.OnSubmit != nil {
		s.hooks.OnSubmit(result)
	}
}
