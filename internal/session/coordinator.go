package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-dictate/internal/audio"
	"github.com/loqalabs/loqa-dictate/internal/config"
	"github.com/loqalabs/loqa-dictate/internal/stt"
	"github.com/loqalabs/loqa-dictate/internal/vad"
)

// ErrClosed is returned by trigger methods once the coordinator has shut down.
var ErrClosed = errors.New("session coordinator closed")

// Config carries the timing and audio parameters of the coordinator.
type Config struct {
	SampleRate        int
	MaxDuration       time.Duration
	SilenceDuration   time.Duration
	SilenceThreshold  float64
	ErrorRecovery     time.Duration
	NoAudioReset      time.Duration
	PollInterval      time.Duration
	TranscribeTimeout time.Duration
	DeliverTimeout    time.Duration
	Options           stt.Options
}

// ConfigFrom maps the file/env configuration onto coordinator settings.
func ConfigFrom(cfg config.Config) Config {
	return Config{
		SampleRate:        cfg.Audio.SampleRate,
		MaxDuration:       time.Duration(cfg.Recorder.MaxDurationMS) * time.Millisecond,
		SilenceDuration:   time.Duration(cfg.Recorder.SilenceDurationMS) * time.Millisecond,
		SilenceThreshold:  cfg.Recorder.SilenceThreshold,
		ErrorRecovery:     time.Duration(cfg.Recorder.ErrorRecoveryMS) * time.Millisecond,
		NoAudioReset:      time.Duration(cfg.Recorder.NoAudioResetMS) * time.Millisecond,
		PollInterval:      time.Duration(cfg.Recorder.PollIntervalMS) * time.Millisecond,
		TranscribeTimeout: time.Duration(cfg.STT.TimeoutMS) * time.Millisecond,
		DeliverTimeout:    time.Duration(cfg.Output.TimeoutMS) * time.Millisecond,
		Options:           stt.OptionsFromConfig(cfg.STT),
	}
}

// Option customises a Coordinator.
type Option func(*Coordinator)

// WithStatus sets the sink receiving status, hint and state updates.
func WithStatus(sink StatusSink) Option {
	return func(c *Coordinator) { c.status = sink }
}

// WithOutput sets the sink receiving transcribed text.
func WithOutput(sink OutputSink) Option {
	return func(c *Coordinator) { c.output = sink }
}

// WithListener adds a transition observer before the loop starts. Use
// AddListener once the coordinator is running.
func WithListener(l Listener) Option {
	return func(c *Coordinator) { c.listeners = append(c.listeners, l) }
}

// WithClock replaces time.Now for duration and silence accounting.
func WithClock(clock func() time.Time) Option {
	return func(c *Coordinator) { c.clock = clock }
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
	cmdToggle
	cmdRecover
	cmdSupervise
	cmdTaskDone
	cmdRecoveryFired
	cmdStatusReset
	cmdAddListener
	cmdShutdown
)

type command struct {
	kind     commandKind
	gen      uint64
	task     *stt.Task
	listener Listener
	ctx      context.Context
	done     chan error
}

// Coordinator owns the record/transcribe state machine. Every transition is
// executed by a single loop goroutine fed through a command channel; trigger
// methods only enqueue and wait.
type Coordinator struct {
	cfg        Config
	capture    audio.Capture
	recognizer stt.Recognizer
	status     StatusSink
	output     OutputSink
	listeners  []Listener
	logger     *slog.Logger
	clock      func() time.Time
	metrics    *metrics

	detector vad.Detector
	policy   vad.Policy
	sink     *audio.Sink

	ctx       context.Context
	cancel    context.CancelFunc
	cmds      chan command
	loopDone  chan struct{}
	startOnce sync.Once
	lastVoice atomic.Int64

	// owned by the loop goroutine
	state       State
	sessionID   string
	startedAt   time.Time
	recGen      uint64
	supervisor  *supervisor
	task        *stt.Task
	recovery    RecoveryTimer
	statusReset RecoveryTimer

	viewMu sync.RWMutex
	view   Snapshot
}

// NewCoordinator validates cfg and assembles a coordinator in the Ready state.
// Call Start to run it.
func NewCoordinator(parent context.Context, cfg Config, capture audio.Capture, recognizer stt.Recognizer, logger *slog.Logger, opts ...Option) (*Coordinator, error) {
	if capture == nil {
		return nil, errors.New("session: capture is required")
	}
	if cfg.SampleRate <= 0 {
		return nil, errors.New("session: sample rate must be positive")
	}
	if cfg.MaxDuration <= 0 || cfg.SilenceDuration <= 0 {
		return nil, errors.New("session: durations must be positive")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}
	if cfg.TranscribeTimeout <= 0 {
		cfg.TranscribeTimeout = 45 * time.Second
	}
	if cfg.DeliverTimeout <= 0 {
		cfg.DeliverTimeout = 5 * time.Second
	}
	detector, err := vad.NewDetector(cfg.SilenceThreshold)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	m, err := newMetrics()
	if err != nil {
		return nil, fmt.Errorf("session metrics: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(parent)
	c := &Coordinator{
		cfg:        cfg,
		capture:    capture,
		recognizer: recognizer,
		status:     nopStatus{},
		logger:     logger.With(slog.String("component", "session")),
		clock:      time.Now,
		metrics:    m,
		detector:   detector,
		policy:     vad.Policy{SilenceDuration: cfg.SilenceDuration, MaxDuration: cfg.MaxDuration},
		sink:       audio.NewSinkForDuration(cfg.SampleRate, cfg.MaxDuration),
		ctx:        ctx,
		cancel:     cancel,
		cmds:       make(chan command),
		loopDone:   make(chan struct{}),
		state:      Ready,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.sink.Seal()
	c.view = Snapshot{State: Ready, StateName: Ready.String(), Status: StatusReady, Hint: hintReady}
	return c, nil
}

// Start launches the coordinator loop and publishes the initial status.
func (c *Coordinator) Start() {
	c.startOnce.Do(func() {
		c.status.SetState(Ready)
		c.status.SetStatus(StatusReady)
		c.status.SetHint(hintReady)
		go c.loop()
	})
}

// Close stops an active recording without transcribing it, waits for an
// outstanding transcription bounded by ctx, cancels timers and stops the loop.
func (c *Coordinator) Close(ctx context.Context) error {
	c.Start()
	err := c.submit(ctx, command{kind: cmdShutdown, ctx: ctx})
	c.cancel()
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

// Toggle starts a recording from Ready or Error, stops one in Recording and
// is ignored while Transcribing.
func (c *Coordinator) Toggle(ctx context.Context) error {
	return c.submit(ctx, command{kind: cmdToggle})
}

// StartRecording begins a session. It is a no-op while a session is active.
func (c *Coordinator) StartRecording(ctx context.Context) error {
	return c.submit(ctx, command{kind: cmdStart})
}

// StopRecording ends the current recording. It is a no-op unless Recording.
func (c *Coordinator) StopRecording(ctx context.Context) error {
	return c.submit(ctx, command{kind: cmdStop})
}

// Recover leaves the Error state immediately.
func (c *Coordinator) Recover(ctx context.Context) error {
	return c.submit(ctx, command{kind: cmdRecover})
}

// AddListener registers a transition observer on a running coordinator. The
// listener sees every transition applied after the call returns.
func (c *Coordinator) AddListener(ctx context.Context, l Listener) error {
	if l == nil {
		return errors.New("session: listener is required")
	}
	return c.submit(ctx, command{kind: cmdAddListener, listener: l})
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.viewMu.RLock()
	defer c.viewMu.RUnlock()
	return c.view.State
}

// Snapshot returns the projected status. It never blocks on the loop.
func (c *Coordinator) Snapshot() Snapshot {
	c.viewMu.RLock()
	snap := c.view
	c.viewMu.RUnlock()
	if snap.State == Recording {
		if ns := c.lastVoice.Load(); ns != 0 {
			snap.LastVoiceAt = time.Unix(0, ns)
		}
	}
	snap.Buffered = c.sink.Len()
	return snap
}

func (c *Coordinator) submit(ctx context.Context, cmd command) error {
	cmd.done = make(chan error, 1)
	select {
	case c.cmds <- cmd:
	case <-c.loopDone:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post enqueues an internal event. It gives up once the loop has exited.
func (c *Coordinator) post(cmd command) {
	select {
	case c.cmds <- cmd:
	case <-c.loopDone:
	}
}

func (c *Coordinator) loop() {
	defer close(c.loopDone)
	for {
		var cmd command
		select {
		case cmd = <-c.cmds:
		case <-c.ctx.Done():
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.TranscribeTimeout)
			if err := c.shutdown(ctx); err != nil {
				c.logger.Warn("shutdown incomplete", slogError(err))
			}
			cancel()
			return
		}

		var err error
		switch cmd.kind {
		case cmdStart:
			c.handleStart()
		case cmdStop:
			c.handleStop(vad.StopRequested)
		case cmdToggle:
			c.handleToggle()
		case cmdRecover:
			c.handleRecover()
		case cmdSupervise:
			c.handleSupervise(cmd.gen)
		case cmdTaskDone:
			c.handleTaskDone(cmd.task)
		case cmdRecoveryFired:
			c.handleRecoveryFired(cmd.gen)
		case cmdStatusReset:
			c.handleStatusReset(cmd.gen)
		case cmdAddListener:
			c.listeners = append(c.listeners, cmd.listener)
		case cmdShutdown:
			err = c.shutdown(cmd.ctx)
		}
		if cmd.done != nil {
			cmd.done <- err
		}
		if cmd.kind == cmdShutdown {
			return
		}
	}
}

func (c *Coordinator) handleToggle() {
	switch c.state {
	case Ready, Error:
		c.handleStart()
	case Recording:
		c.handleStop(vad.StopRequested)
	case Transcribing:
		c.logger.Debug("toggle ignored while transcribing")
	}
}

func (c *Coordinator) handleStart() {
	if c.state.Active() {
		c.logger.Debug("start ignored, session already active", slog.String("state", c.state.String()))
		return
	}
	from := c.state
	c.recovery.Cancel()
	c.statusReset.Cancel()

	c.sink.Clear()
	c.sink.Open()
	c.lastVoice.Store(0)

	if err := c.capture.Start(c.ctx, c.onChunk); err != nil {
		c.sink.Seal()
		c.metrics.captureFailures.Add(c.ctx, 1)
		c.logger.Warn("audio capture failed to start", slogError(err))
		// no session was created, the previous one is already closed
		c.sessionID = ""
		c.startedAt = time.Time{}
		c.transition(Transition{From: from, To: Ready, Reason: "capture_failed", Status: StatusMicFailure, Err: err}, hintMicFailure)
		return
	}

	c.sessionID = uuid.NewString()
	c.startedAt = c.clock()
	c.recGen++
	c.supervisor = c.startSupervisor(c.recGen)
	c.metrics.sessions.Add(c.ctx, 1)
	c.logger.Info("recording started", slog.String("session_id", c.sessionID))
	c.transition(Transition{From: from, To: Recording, Reason: "requested", Status: StatusRecording}, hintRecording)
}

// onChunk runs on the capture context. It only touches the sink and the
// last-voice timestamp.
func (c *Coordinator) onChunk(samples []int16) {
	if !c.sink.Push(samples) {
		return
	}
	if voice, _ := c.detector.IsVoice(samples); voice {
		c.lastVoice.Store(c.clock().UnixNano())
	}
}

func (c *Coordinator) handleSupervise(gen uint64) {
	if c.state != Recording || gen != c.recGen {
		return
	}
	var lastVoice time.Time
	if ns := c.lastVoice.Load(); ns != 0 {
		lastVoice = time.Unix(0, ns)
	}
	if reason := c.policy.Evaluate(c.startedAt, lastVoice, c.clock()); reason != vad.StopNone {
		c.handleStop(reason)
	}
}

func (c *Coordinator) handleStop(reason vad.StopReason) {
	if c.state != Recording {
		return
	}
	samples := c.haltCapture()
	c.metrics.recordStop(c.ctx, reason.String())
	c.logger.Info("recording stopped",
		slog.String("session_id", c.sessionID),
		slog.String("reason", reason.String()),
		slog.Int("samples", len(samples)))

	if len(samples) == 0 {
		c.sink.Clear()
		c.transition(Transition{From: Recording, To: Ready, Reason: "no_audio", Status: StatusNoAudio}, hintNoAudio)
		if c.cfg.NoAudioReset > 0 {
			c.statusReset.Arm(c.cfg.NoAudioReset, func(gen uint64) {
				c.post(command{kind: cmdStatusReset, gen: gen})
			})
		}
		return
	}

	task := stt.NewTask(c.recognizer, c.cfg.SampleRate, c.cfg.Options, c.logger)
	c.task = task
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), c.cfg.TranscribeTimeout)
	task.Start(ctx, samples, func(done *stt.Task) {
		cancel()
		c.post(command{kind: cmdTaskDone, task: done})
	})
	c.transition(Transition{From: Recording, To: Transcribing, Reason: reason.String(), Status: StatusTranscribing, Samples: len(samples)}, hintTranscribing)
}

// haltCapture stops supervision and the device, seals the sink and returns
// what was captured.
func (c *Coordinator) haltCapture() []int16 {
	if c.supervisor != nil {
		c.supervisor.stop()
		c.supervisor = nil
	}
	if err := c.capture.Stop(); err != nil {
		c.logger.Warn("audio capture failed to stop", slogError(err))
	}
	c.sink.Seal()
	c.startedAt = time.Time{}
	return c.sink.Snapshot()
}

func (c *Coordinator) handleTaskDone(task *stt.Task) {
	if task == nil || task != c.task {
		return
	}
	c.task = nil
	// onDone fires after the result is published, so this never blocks
	res, err := task.Wait(context.Background())
	c.sink.Clear()
	if err != nil {
		res.Err = err
	}
	c.finishTranscription(res)
}

func (c *Coordinator) finishTranscription(res stt.Result) {
	kind := stt.Kind(res.Err)
	c.metrics.recordTranscription(c.ctx, kind, res.Duration)

	if res.Err != nil {
		c.logger.Warn("transcription failed",
			slog.String("session_id", c.sessionID),
			slog.String("kind", kind),
			slogError(res.Err))
		c.transition(Transition{From: Transcribing, To: Error, Reason: kind, Status: StatusError, Err: res.Err, Samples: res.Samples, Latency: res.Duration}, hintError)
		c.recovery.Arm(c.cfg.ErrorRecovery, func(gen uint64) {
			c.post(command{kind: cmdRecoveryFired, gen: gen})
		})
		return
	}

	if c.output != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), c.cfg.DeliverTimeout)
		if err := c.output.Deliver(ctx, res.Text); err != nil {
			c.logger.Warn("output delivery failed", slogError(err))
		}
		cancel()
	}
	c.logger.Info("transcription delivered",
		slog.String("session_id", c.sessionID),
		slog.Int("chars", len(res.Text)),
		slog.Duration("took", res.Duration))
	c.transition(Transition{From: Transcribing, To: Ready, Reason: "transcribed", Status: StatusReady, Text: res.Text, Samples: res.Samples, Latency: res.Duration}, hintReady)
}

func (c *Coordinator) handleRecover() {
	if c.state != Error {
		return
	}
	c.recovery.Cancel()
	c.transition(Transition{From: Error, To: Ready, Reason: "recovered", Status: StatusReady}, hintReady)
}

func (c *Coordinator) handleRecoveryFired(gen uint64) {
	if c.state != Error || !c.recovery.Current(gen) {
		return
	}
	c.transition(Transition{From: Error, To: Ready, Reason: "auto_recovered", Status: StatusReady}, hintReady)
}

func (c *Coordinator) handleStatusReset(gen uint64) {
	if c.state != Ready || !c.statusReset.Current(gen) {
		return
	}
	c.status.SetStatus(StatusReady)
	c.status.SetHint(hintReady)
	c.viewMu.Lock()
	c.view.Status = StatusReady
	c.view.Hint = hintReady
	c.viewMu.Unlock()
}

func (c *Coordinator) shutdown(ctx context.Context) error {
	c.recovery.Cancel()
	c.statusReset.Cancel()

	if c.state == Recording {
		c.haltCapture()
		c.sink.Clear()
		c.metrics.recordStop(ctx, "shutdown")
		c.transition(Transition{From: Recording, To: Ready, Reason: "shutdown", Status: StatusReady}, hintReady)
	}
	if c.task != nil {
		task := c.task
		res, err := task.Wait(ctx)
		if err != nil {
			return fmt.Errorf("wait for transcription: %w", err)
		}
		c.task = nil
		c.sink.Clear()
		c.finishTranscription(res)
		c.recovery.Cancel()
	}
	return nil
}

// transition applies a state change, projects it to the status sink and
// notifies listeners. Only the loop goroutine calls it.
func (c *Coordinator) transition(tr Transition, hint string) {
	tr.SessionID = c.sessionID
	tr.At = c.clock()
	c.state = tr.To

	c.viewMu.Lock()
	c.view.State = tr.To
	c.view.StateName = tr.To.String()
	c.view.Status = tr.Status
	c.view.Hint = hint
	c.view.SessionID = c.sessionID
	c.view.StartedAt = c.startedAt
	if tr.To != Recording {
		c.view.LastVoiceAt = time.Time{}
	}
	if tr.Text != "" {
		c.view.LastText = tr.Text
	}
	switch {
	case tr.Err != nil:
		c.view.LastError = tr.Err.Error()
	case tr.To == Recording:
		c.view.LastError = ""
	}
	c.viewMu.Unlock()

	c.status.SetState(tr.To)
	c.status.SetStatus(tr.Status)
	c.status.SetHint(hint)

	for _, l := range c.listeners {
		l.OnTransition(c.ctx, tr)
	}
}

type supervisor struct {
	quit chan struct{}
	done chan struct{}
}

// startSupervisor ticks every poll interval and asks the loop to evaluate the
// auto-stop policy. It never blocks the loop: both waits also watch quit.
func (c *Coordinator) startSupervisor(gen uint64) *supervisor {
	s := &supervisor{quit: make(chan struct{}), done: make(chan struct{})}
	go func() {
		defer close(s.done)
		ticker := time.NewTicker(c.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.quit:
				return
			case <-ticker.C:
			}
			select {
			case c.cmds <- command{kind: cmdSupervise, gen: gen}:
			case <-s.quit:
				return
			case <-c.loopDone:
				return
			}
		}
	}()
	return s
}

func (s *supervisor) stop() {
	close(s.quit)
	<-s.done
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
