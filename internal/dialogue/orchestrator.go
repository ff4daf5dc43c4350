package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sethvargo/go-retry"

	"github.com/skillissue/mockview/internal/capability"
	"github.com/skillissue/mockview/internal/evaluation"
	"github.com/skillissue/mockview/internal/models"
	"github.com/skillissue/mockview/internal/session"
	"github.com/skillissue/mockview/internal/telemetry"
	"github.com/skillissue/mockview/internal/turntaking"
)

// TurnSource delivers turn boundaries and accepts turn control.
// *turntaking.Engine implements it.
type TurnSource interface {
	Events() <-chan turntaking.Event
	Open(turnID int)
	SystemSpeech(turnID int, speaking bool)
	Preempt(turnID int)
}

// Config holds the orchestrator settings.
type Config struct {
	Policy                 Policy
	MaxConsecutiveFailures int
	// GenerationTimeout bounds each generation attempt.
	GenerationTimeout time.Duration
	RetryBackoff      time.Duration
	FallbackCacheSize int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSpeaker renders questions through s. Without a speaker questions are
// only logged.
func WithSpeaker(s capability.Speaker) Option {
	return func(o *Orchestrator) { o.speaker = s }
}

// WithClock sets the clock used for timestamps and the time budget.
func WithClock(clk clock.Clock) Option {
	return func(o *Orchestrator) { o.clk = clk }
}

// WithEventLogger records session events.
func WithEventLogger(l session.Logger) Option {
	return func(o *Orchestrator) { o.events = l }
}

// WithMetrics records telemetry.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

const (
	capGenerator  = "generator"
	capScorer     = "scorer"
	capRecognizer = "recognizer"
)

type genSlot struct {
	token    int
	topic    models.Topic
	depth    int
	prefetch bool
	cancel   context.CancelFunc
	done     bool
	res      genResult
}

type genResult struct {
	token    int
	question string
	elapsed  time.Duration
	err      error
}

const (
	jobPending int32 = iota
	jobStarted
	jobCancelled
)

type evalJob struct {
	turn  models.Turn
	topic models.Topic
	state atomic.Int32
}

type evalResult struct {
	turn    int
	result  models.EvaluationResult
	err     error
	elapsed time.Duration
}

type speakDone struct {
	turn int
	err  error
}

// Orchestrator runs one interview. Run is the only goroutine that touches
// the session; generation, speech and scoring report back over channels.
type Orchestrator struct {
	sess     *models.Session
	src      TurnSource
	gen      capability.Generator
	analyzer *evaluation.Analyzer
	cfg      Config

	speaker capability.Speaker
	clk     clock.Clock
	events  session.Logger
	metrics *telemetry.Metrics

	fallback *fallbackQuestions

	genCh    chan genResult
	speakCh  chan speakDone
	evalCh   chan evalResult
	annotCh  chan models.Annotation
	failCh   chan error
	stopped  chan struct{}
	stopOnce sync.Once

	// reactor state
	wg          sync.WaitGroup
	runCtx      context.Context
	evalQueue   chan *evalJob
	nextToken   int
	dispatching *genSlot
	prefetching *genSlot
	open        int
	speaking    int
	stopSpeech  context.CancelFunc
	evals       map[int]*evalJob
	awaiting    int
	leaving     string
	timeUp      bool
	streamEnded bool
	failures    map[string]int
	orphans     []models.Annotation
	runErr      error
}

// NewOrchestrator creates an orchestrator for sess. The session must be in
// the intake state.
func NewOrchestrator(sess *models.Session, src TurnSource, gen capability.Generator, analyzer *evaluation.Analyzer, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		sess:     sess,
		src:      src,
		gen:      gen,
		analyzer: analyzer,
		cfg:      cfg,
		clk:      clock.New(),
		events:   session.NopLogger{},
		genCh:    make(chan genResult),
		speakCh:  make(chan speakDone),
		evalCh:   make(chan evalResult),
		annotCh:  make(chan models.Annotation, 16),
		failCh:   make(chan error, 1),
		stopped:  make(chan struct{}),
		open:     -1,
		speaking: -1,
		awaiting: -1,
		evals:    make(map[int]*evalJob),
		failures: make(map[string]int),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.fallback = newFallbackQuestions(cfg.FallbackCacheSize)
	return o
}

// Session returns the session. It must not be read while Run is active.
func (o *Orchestrator) Session() *models.Session { return o.sess }

// Annotate attaches an external annotation to the open turn, or to the
// latest turn when none is open.
func (o *Orchestrator) Annotate(a models.Annotation) {
	select {
	case o.annotCh <- a:
	case <-o.stopped:
	}
}

// Fail ends the session with an unrecoverable recognizer error.
func (o *Orchestrator) Fail(err error) {
	select {
	case o.failCh <- err:
	case <-o.stopped:
	default:
	}
}

// Run drives the interview until it concludes, ctx is cancelled or an
// upstream capability fails for good. Cancellation returns nil; the session
// records why it ended.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.sess.State != models.StateIntake {
		return fmt.Errorf("session %s already started", o.sess.ID)
	}
	ctx, cancel := context.WithCancel(ctx)
	o.runCtx = ctx
	defer o.stopOnce.Do(func() { close(o.stopped) })
	defer o.wg.Wait()
	defer cancel()

	o.evalQueue = make(chan *evalJob, 8)
	o.wg.Add(1)
	go o.evalWorker(ctx)

	o.logEvent(session.EventSessionStart, session.SessionStartData(
		o.sess.Profile.Params().Role, string(o.sess.Profile.Params().Seniority), o.sess.Profile.Len(), o.cfg.Policy.TurnBudget))
	slog.Debug("Interview started", "session", o.sess.ID, "topics", o.sess.Profile.Len())

	var budgetC <-chan time.Time
	if o.sess.TimeBudget > 0 {
		timer := o.clk.Timer(o.sess.TimeRemaining(o.clk.Now()))
		defer timer.Stop()
		budgetC = timer.C
	}

	first, ok := SelectNext(o.sess.Profile, nil)
	if !ok {
		o.terminate(models.EndConcluded, "no topics to ask about")
		return nil
	}
	must(Transition(o.sess, models.StateQuestioning))
	o.dispatch(first, 0, nil)

	events := o.src.Events()
	for o.sess.State != models.StateTerminal {
		select {
		case <-ctx.Done():
			o.terminate(models.EndCancelled, "")
		case ev, ok := <-events:
			if !ok {
				events = nil
				o.handleStreamClosed()
				continue
			}
			o.handleTurnEvent(ev)
		case res := <-o.genCh:
			o.handleGeneration(res)
		case d := <-o.speakCh:
			o.handleSpeakDone(d)
		case res := <-o.evalCh:
			o.handleEvaluation(res)
		case a := <-o.annotCh:
			o.handleAnnotation(a)
		case err := <-o.failCh:
			o.fail(&models.UnrecoverableUpstreamError{Capability: capRecognizer, Failures: 1, Err: err})
		case <-budgetC:
			budgetC = nil
			o.handleTimeUp()
		}
	}
	return o.runErr
}

func (o *Orchestrator) handleTurnEvent(ev turntaking.Event) {
	switch ev.Kind {
	case turntaking.EventBoundary:
		o.handleBoundary(ev)
	case turntaking.EventInterrupt:
		o.handleInterrupt(ev)
	case turntaking.EventResumed:
		o.handleResumed(ev)
	case turntaking.EventStreamClosed:
		o.handleStreamClosed()
	}
}

// dispatch starts generating the question for the next turn.
func (o *Orchestrator) dispatch(topic models.Topic, depth int, prev *models.Turn) {
	o.dispatching = o.startGeneration(topic, depth, prev, false)
}

func (o *Orchestrator) startGeneration(topic models.Topic, depth int, prev *models.Turn, prefetch bool) *genSlot {
	o.nextToken++
	ctx, cancel := context.WithCancel(o.runCtx)
	slot := &genSlot{token: o.nextToken, topic: topic, depth: depth, prefetch: prefetch, cancel: cancel}
	req := capability.GenerateRequest{
		Topic:  topic,
		Depth:  depth,
		Params: o.sess.Profile.Params(),
	}
	if prev != nil {
		req.PreviousQuestion = prev.Question
		req.RecentTranscript = prev.Transcript
	}
	o.wg.Add(1)
	go o.generate(ctx, slot.token, req)
	return slot
}

func (o *Orchestrator) generate(ctx context.Context, token int, req capability.GenerateRequest) {
	defer o.wg.Done()
	start := time.Now()

	var (
		question string
		attempts int
		lastErr  error
	)
	backoff := retry.WithMaxRetries(1, retry.NewConstant(max(o.cfg.RetryBackoff, time.Millisecond)))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		attemptCtx := ctx
		if o.cfg.GenerationTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, o.cfg.GenerationTimeout)
			defer cancel()
		}
		q, err := o.gen.Generate(attemptCtx, req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Debug("Generation attempt failed", "topic", req.Topic.ID, "attempt", attempts, "error", err)
			return retry.RetryableError(err)
		}
		question = q
		return nil
	})
	if ctx.Err() != nil {
		return
	}

	res := genResult{token: token, question: question, elapsed: time.Since(start)}
	if err != nil {
		if lastErr == nil {
			lastErr = err
		}
		res.err = &models.GenerationTimeoutError{TopicID: req.Topic.ID, Attempts: attempts, Err: lastErr}
	}
	select {
	case o.genCh <- res:
	case <-ctx.Done():
	}
}

func (o *Orchestrator) handleGeneration(res genResult) {
	switch {
	case o.dispatching != nil && o.dispatching.token == res.token:
		slot := o.dispatching
		o.dispatching = nil
		slot.cancel()
		o.openTurn(slot, res)
	case o.prefetching != nil && o.prefetching.token == res.token:
		o.prefetching.done = true
		o.prefetching.res = res
	}
}

func (o *Orchestrator) openTurn(slot *genSlot, res genResult) {
	o.metrics.ObserveGeneration(res.elapsed)

	turn := models.Turn{
		TopicID:        slot.topic.ID,
		Question:       res.question,
		QuestionSource: models.QuestionGenerated,
		Depth:          slot.depth,
		OpenedAt:       o.clk.Now(),
	}
	if slot.prefetch {
		turn.QuestionSource = models.QuestionPrefetched
	}
	if res.err != nil {
		turn.Question = o.fallback.question(slot.topic)
		turn.QuestionSource = models.QuestionFallback
		turn.Degradations = append(turn.Degradations, res.err.Error())
		slog.Warn("Question generation failed, using fallback", "topic", slot.topic.ID, "error", res.err)
		if o.degraded(capGenerator, res.err) {
			return
		}
	} else {
		o.failures[capGenerator] = 0
		o.fallback.remember(slot.topic.ID, res.question)
	}

	if o.leaving != "" {
		o.sess.MarkExplored(o.leaving)
		o.leaving = ""
	}

	idx := o.sess.AppendTurn(turn)
	if len(o.orphans) > 0 {
		o.sess.Turn(idx).Annotations = append(o.sess.Turn(idx).Annotations, o.orphans...)
		o.orphans = nil
	}
	must(Transition(o.sess, models.StateQuestioning))
	o.open = idx
	o.metrics.Question(string(turn.QuestionSource))
	o.logEvent(session.EventQuestion, session.QuestionData(idx, turn.TopicID, turn.Depth, string(turn.QuestionSource), turn.Question))
	slog.Debug("Question dispatched", "turn", idx, "topic", turn.TopicID, "depth", turn.Depth, "source", turn.QuestionSource)

	o.src.Open(idx)
	o.speak(idx, turn.Question)
}

func (o *Orchestrator) speak(idx int, text string) {
	if o.speaker == nil {
		return
	}
	ctx, cancel := context.WithCancel(o.runCtx)
	o.stopSpeech = cancel
	o.speaking = idx
	o.src.SystemSpeech(idx, true)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		err := o.speaker.Speak(ctx, text)
		select {
		case o.speakCh <- speakDone{turn: idx, err: err}:
		case <-o.runCtx.Done():
		}
	}()
}

func (o *Orchestrator) handleSpeakDone(d speakDone) {
	if d.err != nil && !errors.Is(d.err, context.Canceled) {
		slog.Warn("Speech playback failed", "turn", d.turn, "error", d.err)
	}
	if d.turn != o.speaking {
		return
	}
	o.speaking = -1
	if o.stopSpeech != nil {
		o.stopSpeech()
		o.stopSpeech = nil
	}
	if d.turn == o.open {
		o.src.SystemSpeech(d.turn, false)
	}
}

func (o *Orchestrator) cancelSpeech() {
	if o.stopSpeech != nil {
		o.stopSpeech()
	}
}

func (o *Orchestrator) handleInterrupt(ev turntaking.Event) {
	turn := o.sess.Turn(ev.TurnID)
	if turn == nil || ev.TurnID != o.open {
		return
	}
	turn.BargedIn = true
	o.cancelSpeech()
	o.discardGeneration()
	o.metrics.BargeIn()
	o.logEvent(session.EventBargeIn, session.TurnData(ev.TurnID))
	slog.Debug("Candidate barged in", "turn", ev.TurnID)
}

func (o *Orchestrator) handleBoundary(ev turntaking.Event) {
	turn := o.sess.Turn(ev.TurnID)
	if turn == nil || turn.Closed() || ev.TurnID != o.open {
		return
	}
	o.open = -1
	if ev.TurnID == o.speaking {
		o.cancelSpeech()
	}

	turn.Utterances = append([]models.Utterance(nil), ev.Utterances...)
	turn.Transcript = models.JoinTranscript(turn.Utterances)
	if turn.ContinuationOf != nil {
		if prev := o.sess.Turn(*turn.ContinuationOf); prev != nil && prev.Transcript != "" {
			turn.Transcript = joinNonEmpty(prev.Transcript, turn.Transcript)
		}
	}
	turn.Outcome = ev.Outcome
	turn.BoundaryReason = ev.Reason
	turn.ClosedAt = o.clk.Now()
	if ev.Reason == models.ReasonRecognitionGap {
		gap := &models.RecognitionGapError{TurnIndex: turn.Index, Silence: ev.Listened}
		turn.Degradations = append(turn.Degradations, gap.Error())
		o.metrics.Degraded(capRecognizer)
		o.logEvent(session.EventDegraded, session.ErrorData(gap.Error(), map[string]any{"turn": turn.Index}))
	}

	o.metrics.Turn(string(turn.Outcome))
	o.logEvent(session.EventTurnClosed, session.TurnClosedData(turn.Index, string(turn.Outcome), turn.BoundaryReason, turn.Transcript))
	slog.Debug("Turn closed", "turn", turn.Index, "outcome", turn.Outcome, "reason", turn.BoundaryReason)

	if turn.Outcome == models.OutcomeInterrupted {
		o.conclude("")
		return
	}

	must(Transition(o.sess, models.StateEvaluating))
	o.awaiting = turn.Index
	o.submitEvaluation(*turn)

	o.discardPrefetch()
	if next, ok := SelectNext(o.sess.Profile, o.skipFor(turn.TopicID)); ok {
		o.prefetching = o.startGeneration(next, 0, turn, true)
	}
}

func (o *Orchestrator) handleResumed(ev turntaking.Event) {
	if o.open >= 0 || ev.TurnID != len(o.sess.Turns)-1 {
		return
	}
	if o.sess.State == models.StateConcluding || o.sess.State == models.StateTerminal {
		return
	}
	turn := o.sess.Turn(ev.TurnID)
	if turn == nil || !turn.Closed() || turn.Reopened || turn.Outcome == models.OutcomeInterrupted {
		return
	}

	turn.Reopened = true
	turn.Decision = ""
	if turn.Evaluation != nil {
		turn.Evaluation.Superseded = true
	}
	if job, ok := o.evals[turn.Index]; ok && job.state.CompareAndSwap(jobPending, jobCancelled) {
		delete(o.evals, turn.Index)
	}
	if o.awaiting == turn.Index {
		o.awaiting = -1
	}
	o.discardGeneration()
	o.leaving = ""

	o.metrics.Reopen()
	o.logEvent(session.EventReopen, session.TurnData(turn.Index))
	slog.Debug("Turn reopened", "turn", turn.Index)

	of := turn.Index
	idx := o.sess.AppendTurn(models.Turn{
		TopicID:        turn.TopicID,
		Question:       turn.Question,
		QuestionSource: models.QuestionContinuation,
		Depth:          turn.Depth,
		ContinuationOf: &of,
		OpenedAt:       o.clk.Now(),
	})
	must(Transition(o.sess, models.StateQuestioning))
	o.open = idx
	o.src.Open(idx)
}

func (o *Orchestrator) submitEvaluation(turn models.Turn) {
	topic, _ := o.sess.Profile.Topic(turn.TopicID)
	job := &evalJob{turn: turn, topic: topic}
	o.evals[turn.Index] = job
	select {
	case o.evalQueue <- job:
	case <-o.runCtx.Done():
	}
}

func (o *Orchestrator) evalWorker(ctx context.Context) {
	defer o.wg.Done()
	params := o.sess.Profile.Params()
	for {
		var job *evalJob
		select {
		case job = <-o.evalQueue:
		case <-ctx.Done():
			return
		}
		if !job.state.CompareAndSwap(jobPending, jobStarted) {
			continue
		}
		start := time.Now()
		result, err := o.analyzer.Evaluate(ctx, job.turn, job.topic, params)
		if ctx.Err() != nil {
			return
		}
		select {
		case o.evalCh <- evalResult{turn: job.turn.Index, result: result, err: err, elapsed: time.Since(start)}:
		case <-ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) handleEvaluation(res evalResult) {
	delete(o.evals, res.turn)
	turn := o.sess.Turn(res.turn)
	if turn == nil {
		return
	}
	o.metrics.ObserveEvaluation(res.elapsed)
	if err := evaluation.Apply(turn, res.result); err != nil {
		slog.Warn("Dropping evaluation", "turn", res.turn, "error", err)
		return
	}
	ev := turn.Evaluation
	o.logEvent(session.EventEvaluation, session.EvaluationData(turn.Index, ev.Relevance, ev.Correctness, ev.Unavailable, ev.Superseded, tagStrings(ev.Tags)))

	if res.err != nil {
		turn.Degradations = append(turn.Degradations, res.err.Error())
		slog.Warn("Evaluation unavailable", "turn", turn.Index, "error", res.err)
		if o.degraded(capScorer, res.err) {
			return
		}
	} else {
		o.failures[capScorer] = 0
	}

	switch {
	case o.sess.State == models.StateConcluding:
		o.maybeFinish()
	case o.sess.State == models.StateEvaluating && o.awaiting == turn.Index && !turn.Reopened:
		o.awaiting = -1
		o.decide(turn)
	}
}

func (o *Orchestrator) decide(turn *models.Turn) {
	must(Transition(o.sess, models.StateDeciding))
	now := o.clk.Now()
	_, hasUnexplored := SelectNext(o.sess.Profile, o.skipFor(turn.TopicID))
	decision := Decide(o.cfg.Policy, DecideInput{
		Evaluation:    turn.Evaluation,
		Depth:         turn.Depth,
		TurnsUsed:     o.sess.TurnsUsed(),
		TimeRemaining: o.sess.TimeRemaining(now),
		HasUnexplored: hasUnexplored,
	})
	if o.streamEnded || o.timeUp {
		decision = models.DecisionConclude
	}
	turn.Decision = decision

	var nextTopic models.Topic
	if decision == models.DecisionAdvanceTopic {
		nextTopic, _ = SelectNext(o.sess.Profile, o.skipFor(turn.TopicID))
	}
	o.metrics.Decision(string(decision))
	o.logEvent(session.EventDecision, session.DecisionData(turn.Index, string(decision), nextTopic.ID))
	slog.Debug("Follow-up decided", "turn", turn.Index, "decision", decision, "next", nextTopic.ID)

	switch decision {
	case models.DecisionRepeatDeeper:
		o.discardPrefetch()
		topic, _ := o.sess.Profile.Topic(turn.TopicID)
		o.dispatch(topic, turn.Depth+1, turn)
	case models.DecisionAdvanceTopic:
		o.leaving = turn.TopicID
		if p := o.prefetching; p != nil && p.topic.ID == nextTopic.ID {
			o.prefetching = nil
			if p.done {
				p.cancel()
				o.openTurn(p, p.res)
				return
			}
			o.dispatching = p
			return
		}
		o.discardPrefetch()
		o.dispatch(nextTopic, 0, turn)
	default:
		o.conclude("")
	}
}

func (o *Orchestrator) handleAnnotation(a models.Annotation) {
	idx := o.open
	if idx < 0 {
		idx = len(o.sess.Turns) - 1
	}
	turn := o.sess.Turn(idx)
	if turn == nil {
		o.orphans = append(o.orphans, a)
		return
	}
	turn.Annotations = append(turn.Annotations, a)
}

func (o *Orchestrator) drainAnnotations() {
	for {
		select {
		case a := <-o.annotCh:
			o.handleAnnotation(a)
		default:
			return
		}
	}
}

func (o *Orchestrator) handleTimeUp() {
	o.timeUp = true
	slog.Debug("Time budget exhausted", "session", o.sess.ID)
	switch {
	case o.open >= 0:
		o.src.Preempt(o.open)
	case o.sess.State == models.StateEvaluating:
		// the pending decision will conclude
	default:
		o.conclude("")
	}
}

func (o *Orchestrator) handleStreamClosed() {
	if o.streamEnded {
		return
	}
	o.streamEnded = true
	slog.Debug("Recognition stream closed", "session", o.sess.ID)
	if o.sess.State == models.StateEvaluating {
		return
	}
	o.conclude("recognition stream closed")
}

// degraded counts a failed call and ends the session once the capability
// has failed too many times in a row.
func (o *Orchestrator) degraded(name string, err error) bool {
	o.failures[name]++
	o.metrics.Degraded(name)
	o.logEvent(session.EventDegraded, session.ErrorData(err.Error(), map[string]any{"capability": name}))
	if o.cfg.MaxConsecutiveFailures > 0 && o.failures[name] >= o.cfg.MaxConsecutiveFailures {
		o.fail(&models.UnrecoverableUpstreamError{Capability: name, Failures: o.failures[name], Err: err})
		return true
	}
	return false
}

func (o *Orchestrator) conclude(detail string) {
	if o.sess.State == models.StateConcluding || o.sess.State == models.StateTerminal {
		return
	}
	o.discardGeneration()
	o.cancelSpeech()
	if o.open >= 0 {
		o.closeOpenTurn(models.ReasonCancelled)
	}
	must(Transition(o.sess, models.StateConcluding))
	o.sess.EndReason = models.EndConcluded
	o.sess.EndDetail = detail
	o.maybeFinish()
}

func (o *Orchestrator) maybeFinish() {
	if o.sess.State != models.StateConcluding || len(o.evals) > 0 {
		return
	}
	o.finish()
}

func (o *Orchestrator) fail(err *models.UnrecoverableUpstreamError) {
	slog.Error("Ending session after upstream failure", "session", o.sess.ID, "error", err)
	o.logEvent(session.EventError, session.ErrorData(err.Error(), map[string]any{"capability": err.Capability}))
	o.runErr = err
	o.terminate(models.EndUpstreamFailure, err.Error())
}

// terminate ends the session without waiting for in-flight work.
func (o *Orchestrator) terminate(reason models.EndReason, detail string) {
	if o.sess.State == models.StateTerminal {
		return
	}
	o.discardGeneration()
	o.cancelSpeech()
	if o.open >= 0 {
		o.closeOpenTurn(models.ReasonCancelled)
	}
	for idx, job := range o.evals {
		job.state.CompareAndSwap(jobPending, jobCancelled)
		delete(o.evals, idx)
	}
	o.sess.EndReason = reason
	o.sess.EndDetail = detail
	o.finish()
}

func (o *Orchestrator) finish() {
	o.drainAnnotations()
	now := o.clk.Now()
	o.sess.EndedAt = now
	must(Transition(o.sess, models.StateTerminal))
	o.metrics.SessionEnded(string(o.sess.EndReason))
	o.logEvent(session.EventSessionEnd, session.SessionEndData(string(o.sess.EndReason), len(o.sess.Turns), now.Sub(o.sess.StartedAt).Milliseconds()))
	slog.Debug("Interview ended", "session", o.sess.ID, "reason", o.sess.EndReason, "turns", len(o.sess.Turns))
}

func (o *Orchestrator) closeOpenTurn(reason string) {
	turn := o.sess.Turn(o.open)
	o.open = -1
	if turn == nil || turn.Closed() {
		return
	}
	turn.Outcome = models.OutcomeInterrupted
	turn.BoundaryReason = reason
	turn.ClosedAt = o.clk.Now()
	if turn.ContinuationOf != nil {
		if prev := o.sess.Turn(*turn.ContinuationOf); prev != nil {
			turn.Transcript = prev.Transcript
		}
	}
	o.metrics.Turn(string(turn.Outcome))
	o.logEvent(session.EventTurnClosed, session.TurnClosedData(turn.Index, string(turn.Outcome), reason, turn.Transcript))
}

func (o *Orchestrator) discardGeneration() {
	if o.dispatching != nil {
		o.dispatching.cancel()
		o.dispatching = nil
	}
	o.discardPrefetch()
}

func (o *Orchestrator) discardPrefetch() {
	if o.prefetching != nil {
		o.prefetching.cancel()
		o.prefetching = nil
	}
}

// skipFor excludes explored topics and current.
func (o *Orchestrator) skipFor(current string) func(string) bool {
	return func(id string) bool {
		return id == current || o.sess.IsExplored(id)
	}
}

func (o *Orchestrator) logEvent(t session.EventType, data map[string]any) {
	ev := session.NewEventAt(o.clk.Now(), t, data)
	ev.SessionID = o.sess.ID
	if err := o.events.Log(ev); err != nil {
		slog.Warn("Failed to write session event", "type", t, "error", err)
	}
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + " " + b
}

func tagStrings(tags []models.DiscrepancyTag) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = string(t)
	}
	return out
}
