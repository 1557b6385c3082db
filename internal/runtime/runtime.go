package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-dictate/internal/audio"
	"github.com/loqalabs/loqa-dictate/internal/bus"
	"github.com/loqalabs/loqa-dictate/internal/config"
	"github.com/loqalabs/loqa-dictate/internal/eventstore"
	"github.com/loqalabs/loqa-dictate/internal/natsserver"
	"github.com/loqalabs/loqa-dictate/internal/output"
	"github.com/loqalabs/loqa-dictate/internal/session"
	"github.com/loqalabs/loqa-dictate/internal/status"
	"github.com/loqalabs/loqa-dictate/internal/stt"
	"github.com/loqalabs/loqa-dictate/internal/tui"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Option customises a Runtime.
type Option func(*Runtime)

// WithCapture replaces the configured audio backend.
func WithCapture(c audio.Capture) Option {
	return func(r *Runtime) { r.capture = c }
}

// WithRecognizer replaces the configured transcription backend.
func WithRecognizer(rec stt.Recognizer) Option {
	return func(r *Runtime) { r.recognizer = rec }
}

// WithStdout sets where result blocks are printed when the terminal UI is off.
func WithStdout(w io.Writer) Option {
	return func(r *Runtime) { r.stdout = w }
}

type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	stdout     io.Writer
	capture    audio.Capture
	recognizer stt.Recognizer

	coordinator *session.Coordinator
	listener    net.Listener
	httpServer  *http.Server
	ready       atomic.Bool
	addr        atomic.Value
}

func New(cfg config.Config, logger *slog.Logger, opts ...Option) *Runtime {
	r := &Runtime{
		cfg:    cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Addr is the bound HTTP address once the runtime is ready.
func (r *Runtime) Addr() string {
	if v, ok := r.addr.Load().(string); ok {
		return v
	}
	return ""
}

// Ready reports whether every component started.
func (r *Runtime) Ready() bool {
	return r.ready.Load()
}

// Start assembles the pipeline and blocks until ctx ends or the terminal UI
// quits. Components are torn down in reverse order of construction.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	closers = append(closers, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	})

	if r.recognizer == nil {
		rec, err := stt.New(r.cfg.STT)
		if err != nil {
			return fmt.Errorf("init recognizer: %w", err)
		}
		r.recognizer = rec
	}
	if closer, ok := r.recognizer.(io.Closer); ok {
		closers = append(closers, func() { _ = closer.Close() })
	}
	if !r.recognizer.Loaded() {
		r.logger.Warn("transcription engine not loaded, recordings will fail until it is available",
			slog.String("mode", r.cfg.STT.Mode))
	}

	if r.capture == nil {
		capture, closeCapture, err := newCapture(r.cfg.Audio)
		if err != nil {
			return fmt.Errorf("init audio capture: %w", err)
		}
		r.capture = capture
		closers = append(closers, func() { _ = closeCapture() })
	}

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	closers = append(closers, func() {
		if err := store.Close(); err != nil {
			r.logger.Warn("event store close error", slog.String("error", err.Error()))
		}
	})

	sinks := status.Multi{status.NewLog(r.logger)}
	if r.cfg.Output.Notify {
		notifier := status.NewNotifier(r.cfg.RuntimeName, r.logger)
		sinks = append(sinks, notifier)
		closers = append(closers, notifier.Wait)
	}

	stdout := r.stdout
	if r.cfg.UI.Enabled {
		// the terminal UI shows the transcript itself
		stdout = nil
	}
	out := output.FromConfig(r.cfg.Output, stdout, r.logger)

	opts := []session.Option{
		session.WithStatus(sinks),
		session.WithOutput(out),
		session.WithListener(store),
	}

	var busClient *bus.Client
	if r.cfg.Bus.Enabled {
		busCfg := r.cfg.Bus
		embedded, err := natsserver.Start(busCfg, r.logger)
		if err != nil {
			return fmt.Errorf("start embedded NATS: %w", err)
		}
		if embedded != nil {
			closers = append(closers, embedded.Shutdown)
			busCfg.Servers = []string{embedded.ClientURL()}
		}
		busClient, err = bus.Connect(ctx, busCfg, r.logger.With(slog.String("component", "bus")))
		if err != nil {
			return err
		}
		closers = append(closers, busClient.Close)
		opts = append(opts, session.WithListener(bus.NewPublisher(busClient)))
	}

	// the coordinator outlives ctx so Close can journal the final transitions
	coordinator, err := session.NewCoordinator(context.WithoutCancel(ctx), session.ConfigFrom(r.cfg), r.capture, r.recognizer, r.logger, opts...)
	if err != nil {
		return fmt.Errorf("init session coordinator: %w", err)
	}
	r.coordinator = coordinator
	coordinator.Start()
	closers = append(closers, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := coordinator.Close(shutdownCtx); err != nil {
			r.logger.Error("session shutdown error", slog.String("error", err.Error()))
		}
	})

	if busClient != nil {
		sub, err := bus.ServeControl(ctx, busClient, coordinator)
		if err != nil {
			return err
		}
		closers = append(closers, func() { _ = sub.Unsubscribe() })
	}

	g, gctx := errgroup.WithContext(ctx)

	if r.cfg.HTTP.Enabled {
		if err := r.listen(metricsHandler, store); err != nil {
			return err
		}
		g.Go(func() error {
			if err := r.httpServer.Serve(r.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return r.httpServer.Shutdown(shutdownCtx)
		})
	}

	if r.cfg.UI.Enabled {
		g.Go(func() error {
			err := tui.Run(gctx, coordinator, time.Duration(r.cfg.UI.RefreshMS)*time.Millisecond, r.cfg.Audio.SampleRate)
			// quitting the UI ends the process
			cancel()
			return err
		})
	}

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", r.Addr()),
		slog.String("stt_mode", r.cfg.STT.Mode),
		slog.String("audio_backend", r.cfg.Audio.Backend))

	<-gctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	return g.Wait()
}

func (r *Runtime) listen(metrics http.Handler, history historySource) error {
	a := &api{
		ctrl:    r.coordinator,
		history: history,
		ready:   r.ready.Load,
		logger:  r.logger.With(slog.String("component", "http")),
	}
	addr := net.JoinHostPort(r.cfg.HTTP.Bind, fmt.Sprint(r.cfg.HTTP.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	r.listener = ln
	r.addr.Store(ln.Addr().String())
	r.httpServer = &http.Server{
		Handler:           a.routes(metrics),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return nil
}
