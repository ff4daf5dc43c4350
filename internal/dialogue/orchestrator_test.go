package dialogue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/skillissue/mockview/internal/capability"
	"github.com/skillissue/mockview/internal/capability/capabilitymock"
	"github.com/skillissue/mockview/internal/evaluation"
	"github.com/skillissue/mockview/internal/models"
	"github.com/skillissue/mockview/internal/reporting"
	"github.com/skillissue/mockview/internal/session"
	"github.com/skillissue/mockview/internal/telemetry"
	"github.com/skillissue/mockview/internal/turntaking"
)

const waitTimeout = 5 * time.Second

var testThresholds = models.Thresholds{Vagueness: 0.5, Gap: 0.4, OffTopic: 0.2}

type speechCall struct {
	turn     int
	speaking bool
}

type fakeSource struct {
	events  chan turntaking.Event
	opened  chan int
	preempt chan int

	mu     sync.Mutex
	speech []speechCall
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		events:  make(chan turntaking.Event),
		opened:  make(chan int, 16),
		preempt: make(chan int, 4),
	}
}

func (f *fakeSource) Events() <-chan turntaking.Event { return f.events }
func (f *fakeSource) Open(id int)                     { f.opened <- id }
func (f *fakeSource) Preempt(id int)                  { f.preempt <- id }

func (f *fakeSource) SystemSpeech(id int, speaking bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.speech = append(f.speech, speechCall{turn: id, speaking: speaking})
}

func (f *fakeSource) speechCalls() []speechCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]speechCall(nil), f.speech...)
}

func (f *fakeSource) waitOpen(t *testing.T) int {
	t.Helper()
	select {
	case id := <-f.opened:
		return id
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a turn to open")
		return -1
	}
}

func (f *fakeSource) send(t *testing.T, ev turntaking.Event) {
	t.Helper()
	select {
	case f.events <- ev:
	case <-time.After(waitTimeout):
		t.Fatalf("timed out sending %s event", ev.Kind)
	}
}

func answered(turn int, text string) turntaking.Event {
	return turntaking.Event{
		Kind:       turntaking.EventBoundary,
		TurnID:     turn,
		Outcome:    models.OutcomeCompleted,
		Reason:     models.ReasonSilence,
		Utterances: []models.Utterance{{Seq: turn, Text: text, Confidence: 0.9}},
	}
}

type scorerFunc func(ctx context.Context, req capability.ScoreRequest) (capability.Score, error)

func (f scorerFunc) Score(ctx context.Context, req capability.ScoreRequest) (capability.Score, error) {
	return f(ctx, req)
}

type generatorFunc func(ctx context.Context, req capability.GenerateRequest) (string, error)

func (f generatorFunc) Generate(ctx context.Context, req capability.GenerateRequest) (string, error) {
	return f(ctx, req)
}

func fixedScores(scores map[string]capability.Score) capability.Scorer {
	return scorerFunc(func(_ context.Context, req capability.ScoreRequest) (capability.Score, error) {
		s, ok := scores[req.Transcript]
		if !ok {
			return capability.Score{}, errors.New("unexpected transcript " + req.Transcript)
		}
		return s, nil
	})
}

func backendProfile() *models.ContextProfile {
	return models.NewContextProfile([]models.Topic{
		{ID: "go", Label: "Go", Source: models.SourceBoth, Weight: 0.9, ExpectedKnowledge: []string{"goroutines"}},
		{ID: "kafka", Label: "Kafka", Source: models.SourceClaimed, Weight: 0.6, ExpectedKnowledge: []string{"partitions"}},
		{ID: "kubernetes", Label: "Kubernetes", Source: models.SourceRequired, Weight: 0.6, ExpectedKnowledge: []string{"pods"}},
	}, models.DomainParameters{Role: "Backend Engineer", Seniority: models.SenioritySenior, Difficulty: 0.5}, "fp-backend")
}

func singleTopicProfile() *models.ContextProfile {
	return models.NewContextProfile([]models.Topic{
		{ID: "go", Label: "Go", Source: models.SourceBoth, Weight: 0.9, ExpectedKnowledge: []string{"goroutines"}},
	}, models.DomainParameters{Role: "Backend Engineer", Seniority: models.SeniorityMid}, "fp-go")
}

func testConfig() Config {
	return Config{
		Policy:                 Policy{VaguenessThreshold: testThresholds.Vagueness, MaxDepth: 1, TurnBudget: 5},
		MaxConsecutiveFailures: 3,
		GenerationTimeout:      time.Second,
		RetryBackoff:           time.Millisecond,
		FallbackCacheSize:      8,
	}
}

func newTestSession(profile *models.ContextProfile, clk clock.Clock, timeBudget time.Duration) *models.Session {
	return models.NewSession("s-1", profile, testThresholds, 5, timeBudget, clk.Now())
}

func newAnalyzer(scorer capability.Scorer) *evaluation.Analyzer {
	return evaluation.NewAnalyzer(scorer, evaluation.Options{Thresholds: testThresholds, Backoff: time.Millisecond})
}

func runAsync(ctx context.Context, o *Orchestrator) <-chan error {
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()
	return done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for the interview to end")
		return nil
	}
}

func TestOrchestrator_ThreeTopicInterview(t *testing.T) {
	clk := clock.NewMock()
	src := newFakeSource()
	sess := newTestSession(backendProfile(), clk, 0)
	logger := &session.MemoryLogger{}
	metrics := telemetry.NewMetrics()

	scorer := fixedScores(map[string]capability.Score{
		"it runs things":         {Relevance: 0.3, Correctness: 0.3},
		"not sure really":        {Relevance: 0.3, Correctness: 0.2},
		"partitions and offsets": {Relevance: 0.9, Correctness: 0.8},
		"pods i guess":           {Relevance: 0.6, Correctness: 0.2},
	})
	o := NewOrchestrator(sess, src, capability.NewTemplateGenerator(), newAnalyzer(scorer), testConfig(),
		WithClock(clk), WithEventLogger(logger), WithMetrics(metrics))

	done := runAsync(context.Background(), o)
	answers := []string{"it runs things", "not sure really", "partitions and offsets", "pods i guess"}
	for i, a := range answers {
		require.Equal(t, i, src.waitOpen(t))
		src.send(t, answered(i, a))
	}
	require.NoError(t, waitDone(t, done))

	require.Len(t, sess.Turns, 4)
	var (
		topics    []string
		depths    []int
		decisions []models.FollowUpDecision
		sources   []models.QuestionSource
	)
	for _, turn := range sess.Turns {
		topics = append(topics, turn.TopicID)
		depths = append(depths, turn.Depth)
		decisions = append(decisions, turn.Decision)
		sources = append(sources, turn.QuestionSource)
		require.NotNil(t, turn.Evaluation, "turn %d", turn.Index)
	}
	assert.Equal(t, []string{"go", "go", "kafka", "kubernetes"}, topics)
	assert.Equal(t, []int{0, 1, 0, 0}, depths)
	assert.Equal(t, []models.FollowUpDecision{
		models.DecisionRepeatDeeper,
		models.DecisionAdvanceTopic,
		models.DecisionAdvanceTopic,
		models.DecisionConclude,
	}, decisions)
	assert.Equal(t, []models.QuestionSource{
		models.QuestionGenerated,
		models.QuestionGenerated,
		models.QuestionPrefetched,
		models.QuestionPrefetched,
	}, sources)
	assert.Contains(t, sess.Turns[1].Question, "deeper")

	assert.Equal(t, models.StateTerminal, sess.State)
	assert.True(t, sess.Complete())
	assert.Equal(t, 4, sess.TurnsUsed())
	assert.Equal(t, []string{"go", "kafka"}, sess.Explored)

	assert.True(t, sess.Turns[0].Evaluation.HasTag(models.TagResumeOverstated))
	gaps := evaluation.KnowledgeGaps(sess)
	require.Len(t, gaps, 1)
	assert.Equal(t, "kubernetes", gaps[0].TopicID)

	var decided int
	for _, ev := range logger.Events() {
		if ev.Type == session.EventDecision {
			decided++
		}
		assert.Equal(t, "s-1", ev.SessionID)
	}
	assert.Equal(t, 4, decided)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.DecisionsTotal.WithLabelValues(string(models.DecisionAdvanceTopic))))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.QuestionsTotal.WithLabelValues(string(models.QuestionPrefetched))))
}

func TestOrchestrator_ReopenBuildsContinuation(t *testing.T) {
	clk := clock.NewMock()
	src := newFakeSource()
	sess := newTestSession(singleTopicProfile(), clk, 0)

	started := make(chan struct{})
	release := make(chan struct{})
	var (
		mu          sync.Mutex
		transcripts []string
	)
	scorer := scorerFunc(func(ctx context.Context, req capability.ScoreRequest) (capability.Score, error) {
		mu.Lock()
		transcripts = append(transcripts, req.Transcript)
		first := len(transcripts) == 1
		mu.Unlock()
		if first {
			close(started)
			<-release
			return capability.Score{Relevance: 0.4, Correctness: 0.4}, nil
		}
		return capability.Score{Relevance: 0.9, Correctness: 0.8}, nil
	})
	o := NewOrchestrator(sess, src, capability.NewTemplateGenerator(), newAnalyzer(scorer), testConfig(), WithClock(clk))

	done := runAsync(context.Background(), o)
	require.Equal(t, 0, src.waitOpen(t))
	src.send(t, answered(0, "goroutines are cheap"))
	<-started
	src.send(t, turntaking.Event{Kind: turntaking.EventResumed, TurnID: 0})
	require.Equal(t, 1, src.waitOpen(t))
	close(release)
	src.send(t, answered(1, "and channels connect them"))
	require.NoError(t, waitDone(t, done))

	require.Len(t, sess.Turns, 2)
	first, cont := sess.Turns[0], sess.Turns[1]

	assert.True(t, first.Reopened)
	assert.Empty(t, first.Decision)
	require.NotNil(t, first.Evaluation)
	assert.True(t, first.Evaluation.Superseded)

	require.NotNil(t, cont.ContinuationOf)
	assert.Equal(t, 0, *cont.ContinuationOf)
	assert.Equal(t, models.QuestionContinuation, cont.QuestionSource)
	assert.Equal(t, first.Question, cont.Question)
	assert.Equal(t, "goroutines are cheap and channels connect them", cont.Transcript)
	assert.Equal(t, models.DecisionConclude, cont.Decision)
	assert.Equal(t, 1, sess.TurnsUsed())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"goroutines are cheap", "goroutines are cheap and channels connect them"}, transcripts)
}

func TestOrchestrator_ReopenWhileFollowUpGenerates(t *testing.T) {
	clk := clock.NewMock()
	src := newFakeSource()
	sess := newTestSession(singleTopicProfile(), clk, 0)

	deeper := make(chan struct{})
	var once sync.Once
	gen := generatorFunc(func(ctx context.Context, req capability.GenerateRequest) (string, error) {
		if req.Depth == 0 {
			return capability.TemplateQuestion(req), nil
		}
		once.Do(func() { close(deeper) })
		<-ctx.Done()
		return "", ctx.Err()
	})
	scorer := fixedScores(map[string]capability.Score{
		"goroutines are cheap":                           {Relevance: 0.3, Correctness: 0.1},
		"goroutines are cheap and channels connect them": {Relevance: 0.9, Correctness: 0.8},
	})
	o := NewOrchestrator(sess, src, gen, newAnalyzer(scorer), testConfig(), WithClock(clk))

	done := runAsync(context.Background(), o)
	require.Equal(t, 0, src.waitOpen(t))
	src.send(t, answered(0, "goroutines are cheap"))

	// the weak answer is scored and a deeper follow-up is being generated
	select {
	case <-deeper:
	case <-time.After(waitTimeout):
		t.Fatal("follow-up generation did not start")
	}
	src.send(t, turntaking.Event{Kind: turntaking.EventResumed, TurnID: 0})
	require.Equal(t, 1, src.waitOpen(t))
	src.send(t, answered(1, "and channels connect them"))
	require.NoError(t, waitDone(t, done))

	require.Len(t, sess.Turns, 2)
	first, cont := sess.Turns[0], sess.Turns[1]
	assert.True(t, first.Reopened)
	assert.Empty(t, first.Decision)
	require.NotNil(t, first.Evaluation)
	assert.True(t, first.Evaluation.Superseded, "an evaluation applied before the reopen is superseded")
	assert.Equal(t, models.DecisionConclude, cont.Decision)

	r := reporting.Build(sess)
	assert.Equal(t, 1, r.Summary.TurnsEvaluated)
	assert.InDelta(t, 0.9, r.Summary.MeanRelevance, 1e-9)
	assert.Zero(t, r.Summary.TagCounts[models.TagResumeOverstated])
	assert.Empty(t, r.Discrepancies)
}

func TestOrchestrator_QuestionsCarryPreviousAnswer(t *testing.T) {
	clk := clock.NewMock()
	src := newFakeSource()
	sess := newTestSession(backendProfile(), clk, 0)

	gen := generatorFunc(func(ctx context.Context, req capability.GenerateRequest) (string, error) {
		return fmt.Sprintf("%s/%d after %q", req.Topic.ID, req.Depth, req.RecentTranscript), nil
	})
	scorer := fixedScores(map[string]capability.Score{
		"it runs things":         {Relevance: 0.3, Correctness: 0.3},
		"not sure really":        {Relevance: 0.3, Correctness: 0.2},
		"partitions and offsets": {Relevance: 0.9, Correctness: 0.8},
		"pods i guess":           {Relevance: 0.6, Correctness: 0.2},
	})
	o := NewOrchestrator(sess, src, gen, newAnalyzer(scorer), testConfig(), WithClock(clk))

	done := runAsync(context.Background(), o)
	for i, a := range []string{"it runs things", "not sure really", "partitions and offsets", "pods i guess"} {
		require.Equal(t, i, src.waitOpen(t))
		src.send(t, answered(i, a))
	}
	require.NoError(t, waitDone(t, done))

	var questions []string
	for _, turn := range sess.Turns {
		questions = append(questions, turn.Question)
	}
	assert.Equal(t, []string{
		`go/0 after ""`,
		`go/1 after "it runs things"`,
		`kafka/0 after "not sure really"`,
		`kubernetes/0 after "partitions and offsets"`,
	}, questions)
}

type blockingSpeaker struct {
	cancelled chan string
}

func (s *blockingSpeaker) Speak(ctx context.Context, text string) error {
	<-ctx.Done()
	s.cancelled <- text
	return ctx.Err()
}

func TestOrchestrator_BargeInCancelsSpeech(t *testing.T) {
	clk := clock.NewMock()
	src := newFakeSource()
	sess := newTestSession(singleTopicProfile(), clk, 0)
	speaker := &blockingSpeaker{cancelled: make(chan string, 4)}
	scorer := fixedScores(map[string]capability.Score{"sorry, channels": {Relevance: 0.8, Correctness: 0.8}})
	o := NewOrchestrator(sess, src, capability.NewTemplateGenerator(), newAnalyzer(scorer), testConfig(),
		WithClock(clk), WithSpeaker(speaker))

	done := runAsync(context.Background(), o)
	require.Equal(t, 0, src.waitOpen(t))
	src.send(t, turntaking.Event{Kind: turntaking.EventInterrupt, TurnID: 0})

	select {
	case text := <-speaker.cancelled:
		assert.NotEmpty(t, text)
	case <-time.After(waitTimeout):
		t.Fatal("speech was not cancelled")
	}

	src.send(t, answered(0, "sorry, channels"))
	require.NoError(t, waitDone(t, done))

	assert.True(t, sess.Turns[0].BargedIn)
	calls := src.speechCalls()
	require.NotEmpty(t, calls)
	assert.Equal(t, speechCall{turn: 0, speaking: true}, calls[0])
}

func TestOrchestrator_GenerationFallback(t *testing.T) {
	ctrl := gomock.NewController(t)
	gen := capabilitymock.NewMockGenerator(ctrl)
	gen.EXPECT().Generate(gomock.Any(), gomock.Any()).Return("", errors.New("model overloaded")).Times(2)

	clk := clock.NewMock()
	src := newFakeSource()
	sess := newTestSession(singleTopicProfile(), clk, 0)
	scorer := fixedScores(map[string]capability.Score{"lots of goroutines": {Relevance: 0.7, Correctness: 0.7}})
	o := NewOrchestrator(sess, src, gen, newAnalyzer(scorer), testConfig(), WithClock(clk))

	done := runAsync(context.Background(), o)
	require.Equal(t, 0, src.waitOpen(t))
	src.send(t, answered(0, "lots of goroutines"))
	require.NoError(t, waitDone(t, done))

	turn := sess.Turns[0]
	assert.Equal(t, models.QuestionFallback, turn.QuestionSource)
	assert.Equal(t, capability.GenericQuestion("Go"), turn.Question)
	require.Len(t, turn.Degradations, 1)
	assert.Contains(t, turn.Degradations[0], `question generation for topic "go" failed after 2 attempts`)
	assert.True(t, sess.Complete())
}

func TestOrchestrator_UnrecoverableGenerator(t *testing.T) {
	ctrl := gomock.NewController(t)
	gen := capabilitymock.NewMockGenerator(ctrl)
	gen.EXPECT().Generate(gomock.Any(), gomock.Any()).Return("", errors.New("quota exceeded")).Times(2)

	clk := clock.NewMock()
	src := newFakeSource()
	sess := newTestSession(singleTopicProfile(), clk, 0)
	cfg := testConfig()
	cfg.MaxConsecutiveFailures = 1
	o := NewOrchestrator(sess, src, gen, newAnalyzer(fixedScores(nil)), cfg, WithClock(clk))

	err := waitDone(t, runAsync(context.Background(), o))
	var upstream *models.UnrecoverableUpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "generator", upstream.Capability)

	assert.Empty(t, sess.Turns)
	assert.Equal(t, models.StateTerminal, sess.State)
	assert.Equal(t, models.EndUpstreamFailure, sess.EndReason)
	assert.False(t, sess.Complete())
}

func TestOrchestrator_ScorerUnavailable(t *testing.T) {
	clk := clock.NewMock()
	src := newFakeSource()
	sess := newTestSession(backendProfile(), clk, 0)
	scorer := scorerFunc(func(context.Context, capability.ScoreRequest) (capability.Score, error) {
		return capability.Score{}, errors.New("judge timed out")
	})
	cfg := testConfig()
	cfg.MaxConsecutiveFailures = 5
	o := NewOrchestrator(sess, src, capability.NewTemplateGenerator(), newAnalyzer(scorer), cfg, WithClock(clk))

	done := runAsync(context.Background(), o)
	require.Equal(t, 0, src.waitOpen(t))
	src.send(t, answered(0, "channels"))
	require.Equal(t, 1, src.waitOpen(t))
	src.send(t, answered(1, "partitions"))
	require.Equal(t, 2, src.waitOpen(t))
	src.send(t, answered(2, "pods"))
	require.NoError(t, waitDone(t, done))

	for _, turn := range sess.Turns {
		require.NotNil(t, turn.Evaluation)
		assert.True(t, turn.Evaluation.Unavailable)
		assert.NotEmpty(t, turn.Degradations)
	}
	// unavailable scores never trigger a deeper follow-up
	assert.Equal(t, models.DecisionAdvanceTopic, sess.Turns[0].Decision)
	assert.Equal(t, models.DecisionConclude, sess.Turns[2].Decision)
}

func TestOrchestrator_CancelClosesOpenTurn(t *testing.T) {
	clk := clock.NewMock()
	src := newFakeSource()
	sess := newTestSession(singleTopicProfile(), clk, 0)
	o := NewOrchestrator(sess, src, capability.NewTemplateGenerator(), newAnalyzer(fixedScores(nil)), testConfig(), WithClock(clk))

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, o)
	require.Equal(t, 0, src.waitOpen(t))
	cancel()
	require.NoError(t, waitDone(t, done))

	require.Len(t, sess.Turns, 1)
	assert.Equal(t, models.OutcomeInterrupted, sess.Turns[0].Outcome)
	assert.Equal(t, models.ReasonCancelled, sess.Turns[0].BoundaryReason)
	assert.Equal(t, models.EndCancelled, sess.EndReason)
	assert.Equal(t, models.StateTerminal, sess.State)
	assert.Equal(t, 0, sess.TurnsUsed())
}

func TestOrchestrator_TimeBudgetPreemptsOpenTurn(t *testing.T) {
	clk := clock.NewMock()
	src := newFakeSource()
	sess := newTestSession(backendProfile(), clk, 10*time.Minute)
	cfg := testConfig()
	cfg.Policy.TimeBudget = 10 * time.Minute
	o := NewOrchestrator(sess, src, capability.NewTemplateGenerator(), newAnalyzer(fixedScores(nil)), cfg, WithClock(clk))

	done := runAsync(context.Background(), o)
	require.Equal(t, 0, src.waitOpen(t))
	clk.Add(11 * time.Minute)

	select {
	case id := <-src.preempt:
		assert.Equal(t, 0, id)
	case <-time.After(waitTimeout):
		t.Fatal("open turn was not preempted")
	}
	src.send(t, turntaking.Event{
		Kind:    turntaking.EventBoundary,
		TurnID:  0,
		Outcome: models.OutcomeInterrupted,
		Reason:  models.ReasonPreempted,
	})
	require.NoError(t, waitDone(t, done))

	assert.Equal(t, models.OutcomeInterrupted, sess.Turns[0].Outcome)
	assert.Nil(t, sess.Turns[0].Evaluation)
	assert.True(t, sess.Complete())
	assert.Equal(t, 0, sess.TurnsUsed())
}

func TestOrchestrator_RecognizerFailure(t *testing.T) {
	clk := clock.NewMock()
	src := newFakeSource()
	sess := newTestSession(singleTopicProfile(), clk, 0)
	o := NewOrchestrator(sess, src, capability.NewTemplateGenerator(), newAnalyzer(fixedScores(nil)), testConfig(), WithClock(clk))

	done := runAsync(context.Background(), o)
	require.Equal(t, 0, src.waitOpen(t))
	o.Fail(errors.New("microphone unplugged"))

	err := waitDone(t, done)
	var upstream *models.UnrecoverableUpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "recognizer", upstream.Capability)
	assert.Equal(t, models.OutcomeInterrupted, sess.Turns[0].Outcome)
	assert.Equal(t, models.EndUpstreamFailure, sess.EndReason)
}

func TestOrchestrator_StreamClosedWaitsForEvaluation(t *testing.T) {
	clk := clock.NewMock()
	src := newFakeSource()
	sess := newTestSession(backendProfile(), clk, 0)
	gate := make(chan struct{})
	scorer := scorerFunc(func(ctx context.Context, req capability.ScoreRequest) (capability.Score, error) {
		<-gate
		return capability.Score{Relevance: 0.9, Correctness: 0.9}, nil
	})
	o := NewOrchestrator(sess, src, capability.NewTemplateGenerator(), newAnalyzer(scorer), testConfig(), WithClock(clk))

	done := runAsync(context.Background(), o)
	require.Equal(t, 0, src.waitOpen(t))
	src.send(t, answered(0, "goroutines everywhere"))
	src.send(t, turntaking.Event{Kind: turntaking.EventStreamClosed})
	close(gate)
	require.NoError(t, waitDone(t, done))

	require.Len(t, sess.Turns, 1)
	require.NotNil(t, sess.Turns[0].Evaluation)
	assert.InDelta(t, 0.9, sess.Turns[0].Evaluation.Relevance, 1e-9)
	assert.Equal(t, models.DecisionConclude, sess.Turns[0].Decision)
	assert.True(t, sess.Complete())
}

func TestOrchestrator_RecognitionGapIsRecorded(t *testing.T) {
	clk := clock.NewMock()
	src := newFakeSource()
	sess := newTestSession(singleTopicProfile(), clk, 0)
	o := NewOrchestrator(sess, src, capability.NewTemplateGenerator(), newAnalyzer(fixedScores(nil)), testConfig(), WithClock(clk))

	done := runAsync(context.Background(), o)
	require.Equal(t, 0, src.waitOpen(t))
	src.send(t, turntaking.Event{
		Kind:     turntaking.EventBoundary,
		TurnID:   0,
		Outcome:  models.OutcomeTimedOut,
		Reason:   models.ReasonRecognitionGap,
		Listened: 45 * time.Second,
	})
	// the empty answer scores zero and gets one deeper follow-up
	require.Equal(t, 1, src.waitOpen(t))
	src.send(t, answered(1, "goroutines"))
	require.NoError(t, waitDone(t, done))

	first := sess.Turns[0]
	require.Len(t, first.Degradations, 1)
	assert.Contains(t, first.Degradations[0], "no speech recognized in turn 0")
	require.NotNil(t, first.Evaluation)
	assert.Equal(t, "no answer captured", first.Evaluation.Rationale)
	assert.Equal(t, models.DecisionRepeatDeeper, first.Decision)
}

func TestOrchestrator_Annotate(t *testing.T) {
	clk := clock.NewMock()
	src := newFakeSource()
	sess := newTestSession(singleTopicProfile(), clk, 0)
	scorer := fixedScores(map[string]capability.Score{"goroutines": {Relevance: 0.9, Correctness: 0.9}})
	o := NewOrchestrator(sess, src, capability.NewTemplateGenerator(), newAnalyzer(scorer), testConfig(), WithClock(clk))

	done := runAsync(context.Background(), o)
	require.Equal(t, 0, src.waitOpen(t))
	o.Annotate(models.Annotation{Type: "gaze-away", Confidence: 0.8, From: time.Second, To: 3 * time.Second})
	src.send(t, answered(0, "goroutines"))
	require.NoError(t, waitDone(t, done))

	require.Len(t, sess.Turns[0].Annotations, 1)
	assert.Equal(t, "gaze-away", sess.Turns[0].Annotations[0].Type)

	// after Run returns annotations are dropped without blocking
	o.Annotate(models.Annotation{Type: "late"})
	o.Fail(errors.New("ignored"))
}

func TestOrchestrator_RunTwice(t *testing.T) {
	clk := clock.NewMock()
	sess := newTestSession(singleTopicProfile(), clk, 0)
	sess.State = models.StateTerminal
	o := NewOrchestrator(sess, newFakeSource(), capability.NewTemplateGenerator(), newAnalyzer(fixedScores(nil)), testConfig())
	require.Error(t, o.Run(context.Background()))
}
