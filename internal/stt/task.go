package stt

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Result is the outcome of a transcription task.
type Result struct {
	Text     string
	Err      error
	Samples  int
	Duration time.Duration
}

// Task is a single transcription unit of work. It runs on its own goroutine,
// touches nothing but the recognizer and is joined exactly once.
type Task struct {
	recognizer Recognizer
	sampleRate int
	opts       Options
	logger     *slog.Logger

	started atomic.Bool
	joined  atomic.Bool
	done    chan struct{}
	result  Result
}

// NewTask prepares a task for recognizer.
func NewTask(recognizer Recognizer, sampleRate int, opts Options, logger *slog.Logger) *Task {
	return &Task{
		recognizer: recognizer,
		sampleRate: sampleRate,
		opts:       opts,
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Start runs the task on a new goroutine. onDone, if set, is called from that
// goroutine after the result is available. Start panics when called twice.
func (t *Task) Start(ctx context.Context, samples []int16, onDone func(*Task)) {
	if !t.started.CompareAndSwap(false, true) {
		panic("stt: task started twice")
	}
	go func() {
		t.result = t.Run(ctx, samples)
		close(t.done)
		if onDone != nil {
			onDone(t)
		}
	}()
}

// Run transcribes samples synchronously. Panics raised by the recognizer are
// converted into an InternalFault result.
func (t *Task) Run(ctx context.Context, samples []int16) (res Result) {
	ctx, span := otel.Tracer("github.com/loqalabs/loqa-dictate/stt").Start(ctx, "stt.transcribe")
	span.SetAttributes(
		attribute.Int("audio.samples", len(samples)),
		attribute.Int("audio.sample_rate", t.sampleRate),
	)
	start := time.Now()
	res.Samples = len(samples)

	defer func() {
		if r := recover(); r != nil {
			res.Text = ""
			res.Err = &InternalFault{Value: r}
		}
		res.Duration = time.Since(start)
		if res.Err != nil {
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, Kind(res.Err))
		}
		span.End()
	}()

	if len(samples) == 0 {
		res.Err = ErrEmptyInput
		return res
	}
	if t.recognizer == nil || !t.recognizer.Loaded() {
		res.Err = ErrEngineUnavailable
		return res
	}

	out, err := t.recognizer.Transcribe(ctx, samples, t.sampleRate, t.opts)
	if err != nil {
		res.Err = err
		return res
	}
	text := strings.TrimSpace(out.Text)
	if text == "" {
		res.Err = ErrEmptyOutput
		return res
	}
	res.Text = text
	if t.logger != nil {
		t.logger.Debug("transcription finished",
			slog.Int("samples", len(samples)),
			slog.Float64("confidence", out.Confidence))
	}
	return res
}

// Done is closed once the result is available.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait joins the task. Only the first call returns the result; later calls
// return ErrAlreadyJoined. If ctx ends first the task is not joined.
func (t *Task) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	if !t.joined.CompareAndSwap(false, true) {
		return Result{}, ErrAlreadyJoined
	}
	return t.result, nil
}
