package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/daylight/pkg/engine"
)

// PipelineObserver turns step lifecycle notifications into spans and
// metrics. It implements engine.Observer.
type PipelineObserver struct {
	tracer  *Tracer
	metrics *Metrics

	mu    sync.Mutex
	runs  map[string]runSpan
	steps map[string]stepSpan
}

type runSpan struct {
	ctx  context.Context
	span trace.Span
}

type stepSpan struct {
	span    trace.Span
	started time.Time
}

var _ engine.Observer = (*PipelineObserver)(nil)

// NewPipelineObserver creates an observer. Either argument may be nil.
func NewPipelineObserver(tracer *Tracer, metrics *Metrics) *PipelineObserver {
	return &PipelineObserver{
		tracer:  tracer,
		metrics: metrics,
		runs:    make(map[string]runSpan),
		steps:   make(map[string]stepSpan),
	}
}

// StepStarted opens the run span on the first step of a run, then a child
// span for the step.
func (o *PipelineObserver) StepStarted(ctx context.Context, run *engine.Run, step *engine.CommandStep) context.Context {
	o.mu.Lock()
	defer o.mu.Unlock()

	rs := o.startRun(ctx, run)
	entry := stepSpan{started: time.Now()}
	stepCtx := ctx
	if o.tracer != nil {
		stepCtx, entry.span = o.tracer.StartStepSpan(rs.ctx, step)
	}
	o.steps[run.ID+"/"+step.ID] = entry
	return stepCtx
}

// StepFinished closes the step span and records the step metrics.
func (o *PipelineObserver) StepFinished(_ context.Context, run *engine.Run, step *engine.CommandStep, err error) {
	o.mu.Lock()
	key := run.ID + "/" + step.ID
	entry, ok := o.steps[key]
	delete(o.steps, key)
	o.mu.Unlock()

	duration := time.Duration(0)
	if step.Result != nil && step.Result.Duration > 0 {
		duration = step.Result.Duration
	} else if ok {
		duration = time.Since(entry.started)
	}
	o.metrics.RecordStep(step, duration, err)

	if entry.span == nil {
		return
	}
	if err != nil {
		RecordError(entry.span, err)
		if step.Result != nil && step.Result.Stderr != "" {
			entry.span.AddEvent("stderr", trace.WithAttributes(AttrStderr.String(step.Result.Stderr)))
		}
	} else {
		RecordSuccess(entry.span)
	}
	entry.span.End()
}

// RunFinished closes the run span and records the run metrics.
func (o *PipelineObserver) RunFinished(ctx context.Context, run *engine.Run) {
	o.mu.Lock()
	rs := o.startRun(ctx, run)
	delete(o.runs, run.ID)
	o.mu.Unlock()

	o.metrics.RecordRunCompleted(run.Status, run.Duration)
	log.Debug().Str("run_id", run.ID).Str("trace_id", TraceID(rs.ctx)).Msg("Run observed")

	if rs.span == nil {
		return
	}
	if run.Status == engine.RunStatusFailed {
		rs.span.SetStatus(codes.Error, run.Error)
	} else {
		RecordSuccess(rs.span)
	}
	rs.span.End()
}

// startRun returns the open run span, starting it if needed. Callers hold mu.
func (o *PipelineObserver) startRun(ctx context.Context, run *engine.Run) runSpan {
	if rs, ok := o.runs[run.ID]; ok {
		return rs
	}
	rs := runSpan{ctx: ctx}
	if o.tracer != nil {
		rs.ctx, rs.span = o.tracer.StartRunSpan(ctx, run)
	}
	o.metrics.RecordRunStarted(run.Project)
	o.runs[run.ID] = rs
	return rs
}
