// Package orchestration wires synthesis, turn-taking, dialogue and reporting
// into complete interview sessions.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/skillissue/mockview/internal/cache"
	"github.com/skillissue/mockview/internal/capability"
	"github.com/skillissue/mockview/internal/config"
	"github.com/skillissue/mockview/internal/dialogue"
	"github.com/skillissue/mockview/internal/evaluation"
	"github.com/skillissue/mockview/internal/models"
	"github.com/skillissue/mockview/internal/reporting"
	"github.com/skillissue/mockview/internal/session"
	"github.com/skillissue/mockview/internal/store"
	"github.com/skillissue/mockview/internal/synthesis"
	"github.com/skillissue/mockview/internal/telemetry"
	"github.com/skillissue/mockview/internal/turntaking"
)

// Runner runs interview sessions. A Runner may run several sessions
// concurrently; sessions share no mutable state.
type Runner struct {
	cfg       *config.Config
	gen       capability.Generator
	scorer    capability.Scorer
	synth     *synthesis.Synthesizer
	synthOpts synthesis.Options

	recognizer capability.Recognizer
	speaker    capability.Speaker
	clk        clock.Clock

	// Profile caching
	cache *cache.Cache

	// Archiving and export
	store     store.Store
	exporters []reporting.Exporter

	metrics     *telemetry.Metrics
	annotations <-chan models.Annotation
	newID       func() string

	// Progress tracking
	progressMu sync.Mutex
	listeners  []ProgressListener
}

// ProgressListener receives every session event as it is logged.
type ProgressListener func(sessionID string, event session.Event)

// Result is a finished session and its report.
type Result struct {
	Session *models.Session
	Report  *models.SessionReport
	// LogPath is the NDJSON event log, when session logging is enabled.
	LogPath string
	// Exports lists where the report was published.
	Exports []string
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithAudio sets the recognition stream and the speech output.
func WithAudio(rec capability.Recognizer, spk capability.Speaker) RunnerOption {
	return func(r *Runner) {
		r.recognizer = rec
		r.speaker = spk
	}
}

// WithClock sets the clock shared by the engine and the orchestrator.
func WithClock(clk clock.Clock) RunnerOption {
	return func(r *Runner) {
		r.clk = clk
	}
}

// WithCache enables profile caching
func WithCache(c *cache.Cache) RunnerOption {
	return func(r *Runner) {
		r.cache = c
	}
}

// WithStore archives every finished session and report.
func WithStore(s store.Store) RunnerOption {
	return func(r *Runner) {
		r.store = s
	}
}

// WithExporters publishes every report.
func WithExporters(e ...reporting.Exporter) RunnerOption {
	return func(r *Runner) {
		r.exporters = append(r.exporters, e...)
	}
}

// WithMetrics records telemetry.
func WithMetrics(m *telemetry.Metrics) RunnerOption {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithAnnotations forwards external annotations into the running session.
func WithAnnotations(ch <-chan models.Annotation) RunnerOption {
	return func(r *Runner) {
		r.annotations = ch
	}
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(f func() string) RunnerOption {
	return func(r *Runner) {
		r.newID = f
	}
}

// NewRunner creates a runner using gen and scorer for the external calls.
func NewRunner(cfg *config.Config, gen capability.Generator, scorer capability.Scorer, opts ...RunnerOption) *Runner {
	synthOpts := synthesis.Options{
		MinConfidence: cfg.Synthesis.MinConfidence,
		MinTopics:     cfg.Synthesis.MinTopics,
		MaxTopics:     cfg.Synthesis.MaxTopics,
	}
	r := &Runner{
		cfg:       cfg,
		gen:       gen,
		scorer:    scorer,
		synth:     synthesis.New(nil, synthesis.NewVocabulary(cfg.Synthesis.Aliases), synthOpts),
		synthOpts: synthOpts,
		clk:       clock.New(),
		newID:     uuid.NewString,
		listeners: []ProgressListener{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// OnProgress registers a progress listener
func (r *Runner) OnProgress(listener ProgressListener) {
	r.progressMu.Lock()
	defer r.progressMu.Unlock()
	r.listeners = append(r.listeners, listener)
}

func (r *Runner) notifyProgress(sessionID string, event session.Event) {
	r.progressMu.Lock()
	listeners := append([]ProgressListener(nil), r.listeners...)
	r.progressMu.Unlock()

	for _, l := range listeners {
		l(sessionID, event)
	}
}

// Synthesize builds the context profile for a candidate and a role,
// consulting the cache first when one is configured.
func (r *Runner) Synthesize(ctx context.Context, candidate, target string, params models.DomainParameters) (*models.ContextProfile, error) {
	var key string
	if r.cache != nil {
		k, err := r.profileKey(candidate, target, params)
		if err != nil {
			return nil, fmt.Errorf("computing cache key: %w", err)
		}
		key = k
		if p, ok := r.cache.Get(key); ok {
			slog.Debug("Context profile cache hit", "key", key[:12])
			return p, nil
		}
	}

	profile, err := r.synth.Synthesize(ctx, candidate, target, params)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if err := r.cache.Put(key, profile); err != nil {
			slog.Warn("Failed to cache context profile", "error", err)
		}
	}
	return profile, nil
}

func (r *Runner) profileKey(candidate, target string, params models.DomainParameters) (string, error) {
	return cache.CacheKey(synthesis.Fingerprint(candidate, target, params, r.synthOpts), r.cfg.Synthesis.Aliases)
}

// Run interviews over profile until the session reaches its terminal state.
//
// The returned Result is non-nil whenever the session started. The error
// is an *models.UnrecoverableUpstreamError when a capability failed for
// good, or reports a failure to archive or export the report.
func (r *Runner) Run(ctx context.Context, profile *models.ContextProfile) (*Result, error) {
	if r.recognizer == nil {
		return nil, errors.New("no recognizer configured")
	}
	if profile == nil || profile.Len() == 0 {
		return nil, &models.InsufficientContextError{Found: 0, Required: max(r.cfg.Synthesis.MinTopics, 1)}
	}

	cfg := r.cfg
	th := models.Thresholds{
		Vagueness: cfg.Policy.VaguenessThreshold,
		Gap:       cfg.Policy.GapThreshold,
		OffTopic:  cfg.Policy.OffTopicThreshold,
	}
	sess := models.NewSession(r.newID(), profile, th, cfg.Policy.TurnBudget, cfg.Policy.TimeBudget.Std(), r.clk.Now())
	res := &Result{Session: sess}

	logger, err := r.eventLogger(sess.ID, res)
	if err != nil {
		return nil, err
	}
	defer logger.Close() //nolint:errcheck

	engine := turntaking.NewEngine(turntaking.Timing{
		Debounce:        cfg.Timing.Debounce.Std(),
		Confirmation:    cfg.Timing.Confirmation.Std(),
		FillerExtension: cfg.Timing.FillerExtension.Std(),
		Ceiling:         cfg.Timing.Ceiling.Std(),
		MinConfidence:   cfg.Timing.MinFragmentConfidence,
	}, r.clk)

	analyzer := evaluation.NewAnalyzer(r.scorer, evaluation.Options{
		Thresholds: th,
		Timeout:    cfg.Backends.Scorer.Timeout.Std(),
		Backoff:    cfg.Backends.RetryBackoff.Std(),
	})

	maxDepth := config.DefaultMaxDepth
	if cfg.Policy.MaxDepth != nil {
		maxDepth = *cfg.Policy.MaxDepth
	}
	orchOpts := []dialogue.Option{
		dialogue.WithClock(r.clk),
		dialogue.WithEventLogger(logger),
		dialogue.WithMetrics(r.metrics),
	}
	if r.speaker != nil {
		orchOpts = append(orchOpts, dialogue.WithSpeaker(r.speaker))
	}
	orch := dialogue.NewOrchestrator(sess, engine, r.gen, analyzer, dialogue.Config{
		Policy: dialogue.Policy{
			VaguenessThreshold: th.Vagueness,
			MaxDepth:           maxDepth,
			TurnBudget:         cfg.Policy.TurnBudget,
			TimeBudget:         cfg.Policy.TimeBudget.Std(),
		},
		MaxConsecutiveFailures: cfg.Policy.MaxConsecutiveFailures,
		GenerationTimeout:      cfg.Backends.Generator.Timeout.Std(),
		RetryBackoff:           cfg.Backends.RetryBackoff.Std(),
		FallbackCacheSize:      cfg.Backends.FallbackCacheSize,
	}, orchOpts...)

	// stream tasks stop once the reactor reaches its terminal state
	streamCtx, stopStream := context.WithCancel(ctx)
	defer stopStream()
	g, gctx := errgroup.WithContext(streamCtx)

	fragments := make(chan models.Utterance)
	g.Go(func() error {
		return r.ingest(gctx, engine, orch, fragments)
	})
	g.Go(func() error {
		return engine.Run(gctx, fragments)
	})
	if r.annotations != nil {
		g.Go(func() error {
			forwardAnnotations(gctx, r.annotations, orch)
			return nil
		})
	}

	var runErr error
	g.Go(func() error {
		defer stopStream()
		runErr = orch.Run(ctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("running session %s: %w", sess.ID, err)
	}

	res.Report = reporting.Build(sess)
	slog.Debug("Session finished", "session", sess.ID, "reason", sess.EndReason, "turns", len(sess.Turns), "complete", res.Report.Complete)

	// Archiving runs on its own context so a cancelled session is still kept.
	persistErr := r.persist(context.WithoutCancel(ctx), res)
	return res, errors.Join(runErr, persistErr)
}

// ingest forwards recognized fragments to the engine, rebasing their
// offsets from the recognizer's origin onto the engine's.
func (r *Runner) ingest(ctx context.Context, engine *turntaking.Engine, orch *dialogue.Orchestrator, out chan<- models.Utterance) error {
	defer close(out)

	start := r.clk.Now()
	stream, err := r.recognizer.Stream(ctx)
	if err != nil {
		orch.Fail(fmt.Errorf("starting recognition: %w", err))
		// closing out now would read as a normal end of stream
		<-ctx.Done()
		return nil
	}
	shift := engine.Offset(start)

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-stream:
			if !ok {
				slog.Debug("Recognition stream ended")
				return nil
			}
			u.Start += shift
			u.End += shift
			select {
			case out <- u:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func forwardAnnotations(ctx context.Context, in <-chan models.Annotation, orch *dialogue.Orchestrator) {
	for {
		select {
		case <-ctx.Done():
			return
		case a, ok := <-in:
			if !ok {
				return
			}
			orch.Annotate(a)
		}
	}
}

func (r *Runner) persist(ctx context.Context, res *Result) error {
	var errs []error
	if r.store != nil {
		if err := r.store.SaveSession(ctx, res.Session); err != nil {
			errs = append(errs, fmt.Errorf("archiving session: %w", err))
		}
		if err := r.store.SaveReport(ctx, res.Report); err != nil {
			errs = append(errs, fmt.Errorf("archiving report: %w", err))
		}
	}
	for _, e := range r.exporters {
		loc, err := e.Export(ctx, res.Report)
		if err != nil {
			errs = append(errs, fmt.Errorf("exporting report: %w", err))
			continue
		}
		res.Exports = append(res.Exports, loc)
	}
	return errors.Join(errs...)
}

func (r *Runner) eventLogger(sessionID string, res *Result) (session.Logger, error) {
	var inner session.Logger = session.NopLogger{}
	if r.cfg.SessionLog != nil && *r.cfg.SessionLog {
		l, err := session.NewJSONLogger(session.DefaultLogPath(r.cfg.Paths.Sessions, sessionID))
		if err != nil {
			return nil, err
		}
		res.LogPath = l.Path()
		inner = l
	}
	return &progressLogger{inner: inner, notify: func(ev session.Event) { r.notifyProgress(sessionID, ev) }}, nil
}

// progressLogger tees session events to the progress listeners.
type progressLogger struct {
	inner  session.Logger
	notify func(session.Event)
}

func (l *progressLogger) Log(ev session.Event) error {
	l.notify(ev)
	return l.inner.Log(ev)
}

func (l *progressLogger) Close() error { return l.inner.Close() }
