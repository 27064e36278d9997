package application

import (
	"context"
	"errors"
	"time"

	"github.com/iclalusta/e-commerce-microservice/internal/domain/errs"
	"github.com/iclalusta/e-commerce-microservice/internal/observability"
	"github.com/iclalusta/e-commerce-microservice/internal/observability/logctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type UseCase[C any, R any] interface {
	Execute(ctx context.Context, cmd C) (R, error)
}

const spanPrefix = "UC."

// Instruments carries the RED instruments shared by the use cases of one service.
type Instruments struct {
	tracer   observability.Tracer
	log      observability.Logger
	requests observability.Counter
	duration observability.Histogram
}

// NewInstruments resolves tracer, logger and metrics from tel, falling back to no-ops.
func NewInstruments(tel observability.Observability, service string) Instruments {
	tel = observability.Resolve(tel)
	metrics := tel.Metrics()
	return Instruments{
		tracer:   tel.Tracer(),
		log:      tel.Logger().With(observability.F("service", service)),
		requests: metrics.Counter(observability.MUsecaseRequests),
		duration: metrics.Histogram(observability.MUsecaseDuration),
	}
}

func (in Instruments) Logger() observability.Logger { return in.log }

// Run tracks a single use case execution until End is called.
type Run struct {
	in       Instruments
	useCase  string
	span     trace.Span
	ctx      context.Context
	log      observability.Logger
	start    time.Time
	outcome  string
	status   string
	fields   []observability.Field
	finished bool
}

// Start opens the span and the request-scoped logger for useCase.
func (in Instruments) Start(ctx context.Context, useCase string, attrs ...attribute.KeyValue) (context.Context, *Run) {
	logger := logctx.FromOr(ctx, in.log).With(observability.F("use_case", useCase))
	attrs = append([]attribute.KeyValue{attribute.String("use_case", useCase)}, attrs...)
	ctx, span := in.tracer.Start(ctx, spanPrefix+useCase, attrs...)
	ctx = logctx.With(ctx, logger)
	return ctx, &Run{
		in:      in,
		useCase: useCase,
		span:    span,
		ctx:     ctx,
		log:     logger,
		start:   time.Now(),
		outcome: "success",
		status:  "OK",
	}
}

func (r *Run) Logger() observability.Logger { return r.log }

// Fail marks the run as failed with a stable status text such as "REPO_INSERT_FAILED".
func (r *Run) Fail(status string) {
	r.outcome, r.status = "error", status
}

// Mark keeps the outcome but replaces the status text (e.g. "DECLINED", "SKIPPED").
func (r *Run) Mark(status string) {
	r.status = status
}

// With adds fields to the final use_case_done line.
func (r *Run) With(fields ...observability.Field) {
	r.fields = append(r.fields, fields...)
}

// End records span status, metrics and the single use_case_done log line.
func (r *Run) End(err error) {
	if r == nil || r.finished {
		return
	}
	r.finished = true
	if err != nil && r.outcome == "success" {
		r.outcome, r.status = "error", errs.Code(err)
	}

	if r.span != nil {
		if err != nil {
			r.span.RecordError(err)
			r.span.SetStatus(codes.Error, r.status)
		} else {
			r.span.SetStatus(codes.Ok, r.status)
		}
		r.span.End()
	}

	latency := time.Since(r.start).Seconds()
	r.in.requests.Add(1,
		observability.L("use_case", r.useCase),
		observability.L("outcome", r.outcome),
	)
	r.in.duration.Observe(latency, observability.L("use_case", r.useCase))

	fields := append([]observability.Field{
		observability.F("outcome", r.outcome),
		observability.F("status", r.status),
		observability.F("latency_seconds", latency),
	}, r.fields...)
	if sc := trace.SpanContextFromContext(r.ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	if err != nil {
		fields = append(fields, observability.Err(err))
	}
	r.log.Info("use_case_done", fields...)
}

// External records calls that leave the process (collaborators, the event bus).
type External struct {
	requests observability.Counter
	duration observability.Histogram
}

func NewExternal(tel observability.Observability) External {
	metrics := observability.Resolve(tel).Metrics()
	return External{
		requests: metrics.Counter(observability.MExternalRequests),
		duration: metrics.Histogram(observability.MExternalRequestDuration),
	}
}

// Observe counts one call to peer/endpoint that started at start and ended with err.
func (e External) Observe(peer, endpoint string, start time.Time, err error) {
	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	case errors.Is(err, context.Canceled):
		outcome = "canceled"
	default:
		outcome = "error"
	}
	e.requests.Add(1,
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
		observability.L("outcome", outcome),
	)
	e.duration.Observe(time.Since(start).Seconds(),
		observability.L("peer", peer),
		observability.L("endpoint", endpoint),
	)
}
