package turntaking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillissue/mockview/internal/models"
)

const ms = time.Millisecond

func testTiming() Timing {
	return Timing{
		Debounce:        700 * ms,
		Confirmation:    600 * ms,
		FillerExtension: 400 * ms,
		Ceiling:         10 * time.Second,
		MinConfidence:   0.3,
	}
}

func words(text string, start, end time.Duration) models.Utterance {
	return models.Utterance{Text: text, Start: start, End: end, Confidence: 0.9}
}

func boundaries(events []Event) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Kind == EventBoundary {
			out = append(out, ev)
		}
	}
	return out
}

// advanceTo steps the detector every 10ms and collects events.
func advanceTo(d *Detector, from, to time.Duration) []Event {
	var out []Event
	for now := from; now <= to; now += 10 * ms {
		out = append(out, d.Advance(now)...)
	}
	return out
}

func TestDetector_SilenceConfirmsExactlyOnce(t *testing.T) {
	d := NewDetector(testTiming())
	d.Open(0, 0)
	require.Empty(t, d.Observe(words("I used channels", 0, time.Second), time.Second))

	next, ok := d.NextDeadline()
	require.True(t, ok)
	assert.Equal(t, 1700*ms, next)

	assert.Empty(t, d.Advance(1690*ms))
	assert.Equal(t, StateListening, d.State())
	assert.Empty(t, d.Advance(1700*ms))
	assert.Equal(t, StatePossibleEnd, d.State())

	events := advanceTo(d, 1700*ms, 5*time.Second)
	got := boundaries(events)
	require.Len(t, got, 1)
	assert.Equal(t, 2300*ms, got[0].At)
	assert.Equal(t, models.OutcomeCompleted, got[0].Outcome)
	assert.Equal(t, models.ReasonSilence, got[0].Reason)

	sinceLast := got[0].At - time.Second
	assert.GreaterOrEqual(t, sinceLast, 700*ms)
	assert.LessOrEqual(t, sinceLast, 1300*ms)
	assert.Equal(t, StateConfirmed, d.State())
}

func TestDetector_FalseAlarmReturnsToListening(t *testing.T) {
	d := NewDetector(testTiming())
	d.Open(0, 0)
	d.Observe(words("first", 0, time.Second), time.Second)
	d.Advance(1800 * ms)
	require.Equal(t, StatePossibleEnd, d.State())

	d.Observe(words("and then", 1900*ms, 2200*ms), 2200*ms)
	assert.Equal(t, StateListening, d.State())
	assert.Empty(t, d.Advance(2300*ms))

	got := boundaries(advanceTo(d, 2300*ms, 5*time.Second))
	require.Len(t, got, 1)
	assert.Equal(t, 3500*ms, got[0].At)
	require.Len(t, got[0].Utterances, 2)
}

func TestDetector_FillerExtendsInsteadOfResetting(t *testing.T) {
	tests := []struct {
		name   string
		filler models.Utterance
		want   time.Duration
	}{
		// deadline 1.7s extended by 400ms, below filler end + debounce (2.3s)
		{name: "extends", filler: words("um", 1500*ms, 1600*ms), want: 2100*ms + 600*ms},
		// extension capped at filler end + debounce
		{name: "capped", filler: words("uh", 1000*ms, 1050*ms), want: 1750*ms + 600*ms},
		// low confidence noise behaves like a filler
		{name: "noise", filler: models.Utterance{Text: "blah", Start: 1500 * ms, End: 1600 * ms, Confidence: 0.1}, want: 2100*ms + 600*ms},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDetector(testTiming())
			d.Open(0, 0)
			d.Observe(words("answer", 0, time.Second), time.Second)
			d.Observe(tt.filler, tt.filler.End)

			got := boundaries(advanceTo(d, tt.filler.End, 5*time.Second))
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].At)
			require.Len(t, got[0].Utterances, 2)
			assert.True(t, got[0].Utterances[1].NonLexical)
		})
	}
}

func TestDetector_HesitationMidAnswerKeepsTurnOpen(t *testing.T) {
	// speech, 0.4s pause, "um", 0.3s pause, more speech
	script := []struct {
		fragment models.Utterance
		silence  time.Duration
	}{
		{fragment: words("I would shard by tenant", 0, time.Second), silence: 400 * ms},
		{fragment: words("um", 1400*ms, 1500*ms), silence: 300 * ms},
		{fragment: words("and rebalance with consistent hashing", 1800*ms, 3*time.Second)},
	}

	d := NewDetector(testTiming())
	d.Open(0, 0)
	for i, step := range script {
		got := boundaries(d.Observe(step.fragment, step.fragment.End))
		end := step.fragment.End + step.silence
		got = append(got, boundaries(advanceTo(d, step.fragment.End, end))...)
		require.Empty(t, got, "step %d", i)
		if i < len(script)-1 {
			assert.NotEqual(t, StateConfirmed, d.State(), "step %d", i)
		}
	}

	got := boundaries(advanceTo(d, 3*time.Second, 5*time.Second))
	require.Len(t, got, 1)
	assert.Equal(t, 3*time.Second+700*ms+600*ms, got[0].At)
	require.Len(t, got[0].Utterances, 3)
	assert.True(t, got[0].Utterances[1].NonLexical)
}

func TestDetector_OutOfOrderFragmentsDoNotMoveDeadlineBack(t *testing.T) {
	d := NewDetector(testTiming())
	d.Open(0, 0)
	d.Observe(words("second part", 2*time.Second, 3*time.Second), 3*time.Second)
	d.Observe(words("first part", 500*ms, time.Second), 3100*ms)

	next, ok := d.NextDeadline()
	require.True(t, ok)
	assert.Equal(t, 3700*ms, next)

	got := boundaries(advanceTo(d, 3100*ms, 6*time.Second))
	require.Len(t, got, 1)
	assert.Equal(t, 4300*ms, got[0].At)
	assert.Equal(t, "first part", got[0].Utterances[0].Text)
	assert.Equal(t, "first part second part", models.JoinTranscript(got[0].Utterances))
}

func TestDetector_Ceiling(t *testing.T) {
	t.Run("no fragments is a recognition gap", func(t *testing.T) {
		d := NewDetector(testTiming())
		d.Open(3, 0)
		got := boundaries(advanceTo(d, 0, 11*time.Second))
		require.Len(t, got, 1)
		assert.Equal(t, 3, got[0].TurnID)
		assert.Equal(t, 10*time.Second, got[0].At)
		assert.Equal(t, models.OutcomeTimedOut, got[0].Outcome)
		assert.Equal(t, models.ReasonRecognitionGap, got[0].Reason)
		assert.Equal(t, 10*time.Second, got[0].Listened)
	})

	t.Run("filler only has no answer", func(t *testing.T) {
		d := NewDetector(testTiming())
		d.Open(0, 0)
		d.Observe(words("umm", time.Second, 1200*ms), 1200*ms)
		got := boundaries(advanceTo(d, 1200*ms, 11*time.Second))
		require.Len(t, got, 1)
		assert.Equal(t, models.OutcomeTimedOut, got[0].Outcome)
		assert.Equal(t, models.ReasonNoAnswer, got[0].Reason)
	})

	t.Run("speech at ceiling completes", func(t *testing.T) {
		d := NewDetector(testTiming())
		d.Open(0, 0)
		d.Observe(words("still talking", 9500*ms, 9900*ms), 9900*ms)
		got := boundaries(advanceTo(d, 9900*ms, 12*time.Second))
		require.Len(t, got, 1)
		assert.Equal(t, 10*time.Second, got[0].At)
		assert.Equal(t, models.OutcomeCompleted, got[0].Outcome)
		assert.Equal(t, models.ReasonCeiling, got[0].Reason)
	})
}

func TestDetector_BargeIn(t *testing.T) {
	d := NewDetector(testTiming())
	d.Open(0, 0)
	assert.Empty(t, d.SystemSpeech(true, 0))

	events := d.Observe(words("wait I know this", 300*ms, 500*ms), 500*ms)
	require.Len(t, events, 1)
	assert.Equal(t, EventInterrupt, events[0].Kind)
	assert.Equal(t, 0, events[0].TurnID)

	// second fragment does not interrupt twice
	assert.Empty(t, d.Observe(words("it uses", 600*ms, 800*ms), 800*ms))
	// deadlines are suspended while the system speaks
	assert.Empty(t, advanceTo(d, 800*ms, 3*time.Second))

	d.SystemSpeech(false, 3*time.Second)
	got := boundaries(advanceTo(d, 3*time.Second, 6*time.Second))
	require.Len(t, got, 1)
	assert.Equal(t, 3600*ms, got[0].At)
	assert.Equal(t, "wait I know this it uses", models.JoinTranscript(got[0].Utterances))
}

func TestDetector_ResumedCarriesIntoNextTurn(t *testing.T) {
	d := NewDetector(testTiming())
	d.Open(0, 0)
	d.Observe(words("done", 0, time.Second), time.Second)
	require.Len(t, boundaries(advanceTo(d, time.Second, 3*time.Second)), 1)

	events := d.Observe(words("actually one more thing", 3100*ms, 3500*ms), 3500*ms)
	require.Len(t, events, 1)
	assert.Equal(t, EventResumed, events[0].Kind)
	assert.Equal(t, 0, events[0].TurnID)
	assert.Empty(t, d.Observe(words("about locks", 3600*ms, 3900*ms), 3900*ms))

	d.Open(1, 4*time.Second)
	got := boundaries(advanceTo(d, 4*time.Second, 6*time.Second))
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].TurnID)
	assert.Equal(t, "actually one more thing about locks", models.JoinTranscript(got[0].Utterances))
	assert.Equal(t, 5200*ms, got[0].At)
}

func TestDetector_PreemptSuppressesResume(t *testing.T) {
	d := NewDetector(testTiming())
	d.Open(0, 0)
	d.Observe(words("partial", 0, time.Second), time.Second)

	events := d.Preempt(1200 * ms)
	require.Len(t, events, 1)
	assert.Equal(t, models.OutcomeInterrupted, events[0].Outcome)
	assert.Equal(t, models.ReasonPreempted, events[0].Reason)
	assert.Equal(t, StateInterrupted, d.State())

	assert.Empty(t, d.Observe(words("more", 1300*ms, 1500*ms), 1500*ms))
	assert.Empty(t, d.Advance(time.Minute))
	assert.Empty(t, d.Preempt(time.Minute))
}

func TestDetector_OpenClosesPreviousTurn(t *testing.T) {
	d := NewDetector(testTiming())
	d.Open(0, 0)
	events := d.Open(1, time.Second)
	require.Len(t, events, 1)
	assert.Equal(t, 0, events[0].TurnID)
	assert.Equal(t, models.OutcomeInterrupted, events[0].Outcome)
}

func TestIsFiller(t *testing.T) {
	assert.True(t, IsFiller("um"))
	assert.True(t, IsFiller("Uh, umm..."))
	assert.False(t, IsFiller("um I think"))
	assert.False(t, IsFiller(""))
}
