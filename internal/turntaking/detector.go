// Package turntaking decides when the candidate has finished speaking.
//
// Detector is a clock-free state machine driven with stream offsets, which
// keeps boundary decisions reproducible. Engine runs a Detector as a task
// over a live fragment channel.
package turntaking

import (
	"sort"
	"strings"
	"time"

	"github.com/skillissue/mockview/internal/models"
)

// Timing holds the turn-taking windows.
type Timing struct {
	Debounce        time.Duration
	Confirmation    time.Duration
	FillerExtension time.Duration
	Ceiling         time.Duration
	// MinConfidence below which a fragment is treated as non-lexical noise.
	MinConfidence float64
}

// DefaultTiming returns the production windows.
func DefaultTiming() Timing {
	return Timing{
		Debounce:        700 * time.Millisecond,
		Confirmation:    600 * time.Millisecond,
		FillerExtension: 400 * time.Millisecond,
		Ceiling:         45 * time.Second,
		MinConfidence:   0.3,
	}
}

// State is the detector's position within a turn.
type State string

const (
	StateIdle        State = "idle"
	StateListening   State = "listening"
	StatePossibleEnd State = "possible-end"
	StateConfirmed   State = "confirmed"
	StateInterrupted State = "interrupted"
)

// EventKind identifies detector output.
type EventKind string

const (
	// EventBoundary closes a turn. Emitted at most once per turn.
	EventBoundary EventKind = "boundary"
	// EventInterrupt reports candidate speech over system speech.
	EventInterrupt EventKind = "interrupt"
	// EventResumed reports speech after a confirmed boundary and before
	// the next turn opened.
	EventResumed EventKind = "resumed"
	// EventStreamClosed reports the end of the recognition stream.
	EventStreamClosed EventKind = "stream-closed"
)

// Event is emitted by the detector.
type Event struct {
	Kind       EventKind
	TurnID     int
	At         time.Duration
	Outcome    models.TurnOutcome
	Reason     string
	Utterances []models.Utterance
	// Listened is how long the turn listened before closing.
	Listened time.Duration
}

var fillers = map[string]bool{
	"um": true, "umm": true, "uh": true, "uhm": true, "uhh": true, "er": true, "erm": true,
	"ah": true, "eh": true, "hmm": true, "hm": true, "mm": true, "mhm": true,
}

// IsFiller reports whether text consists only of hesitation sounds.
func IsFiller(text string) bool {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '-' || r == '…'
	})
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		if !fillers[w] {
			return false
		}
	}
	return true
}

// Detector tracks one turn at a time.
type Detector struct {
	timing Timing

	state    State
	open     bool
	turnID   int
	speaking bool
	bargedIn bool

	utts        []models.Utterance
	carry       []models.Utterance
	hasLexical  bool
	sawFragment bool

	deadline   time.Duration
	ceilingAt  time.Duration
	listenFrom time.Duration

	lastClosed  int
	resumedSent bool
}

// NewDetector returns an idle detector.
func NewDetector(t Timing) *Detector {
	return &Detector{timing: t, state: StateIdle, lastClosed: -1}
}

func (d *Detector) State() State { return d.state }

// Open starts capturing turnID. Speech heard since the last boundary is
// carried into the new turn. A still-open turn is closed as interrupted.
func (d *Detector) Open(turnID int, now time.Duration) []Event {
	var events []Event
	if d.open {
		events = append(events, d.close(now, models.OutcomeInterrupted, models.ReasonPreempted))
	}

	d.open = true
	d.turnID = turnID
	d.state = StateListening
	d.speaking = false
	d.bargedIn = false
	d.hasLexical = false
	d.deadline = 0
	d.utts = nil
	d.sawFragment = len(d.carry) > 0
	for _, u := range d.carry {
		d.utts = insertSorted(d.utts, u)
		d.absorb(u)
	}
	d.carry = nil
	d.startListening(now)
	return events
}

// SystemSpeech marks system speech starting or stopping. Deadlines are
// suspended while the system speaks.
func (d *Detector) SystemSpeech(speaking bool, now time.Duration) []Event {
	if !d.open {
		return nil
	}
	d.speaking = speaking
	if speaking {
		if d.hasLexical && !d.bargedIn {
			d.bargedIn = true
			return []Event{{Kind: EventInterrupt, TurnID: d.turnID, At: now}}
		}
		return nil
	}
	d.startListening(now)
	return nil
}

func (d *Detector) startListening(now time.Duration) {
	d.listenFrom = now
	d.ceilingAt = now + d.timing.Ceiling
	if d.hasLexical && d.deadline < now {
		d.deadline = now
	}
}

// Observe ingests one fragment. Fragments may arrive out of order.
func (d *Detector) Observe(u models.Utterance, now time.Duration) []Event {
	u.NonLexical = !d.lexical(u)

	if !d.open {
		d.carry = insertSorted(d.carry, u)
		if !u.NonLexical && d.lastClosed >= 0 && !d.resumedSent {
			d.resumedSent = true
			return []Event{{Kind: EventResumed, TurnID: d.lastClosed, At: now}}
		}
		return nil
	}

	var events []Event
	d.utts = insertSorted(d.utts, u)
	d.sawFragment = true
	if !u.NonLexical && d.speaking && !d.bargedIn {
		d.bargedIn = true
		events = append(events, Event{Kind: EventInterrupt, TurnID: d.turnID, At: now})
	}
	d.absorb(u)
	return events
}

// absorb moves the debounce deadline for u. Deadlines only move forward.
func (d *Detector) absorb(u models.Utterance) {
	var next time.Duration
	switch {
	case !u.NonLexical:
		next = u.End + d.timing.Debounce
		if !d.hasLexical {
			d.hasLexical = true
			d.deadline = next
			d.state = StateListening
			return
		}
	case d.hasLexical:
		// a filler extends the window instead of resetting it
		next = min(max(d.deadline, u.End)+d.timing.FillerExtension, u.End+d.timing.Debounce)
	default:
		return
	}
	if next > d.deadline {
		d.deadline = next
		d.state = StateListening
	}
}

// Advance fires every deadline due at now.
func (d *Detector) Advance(now time.Duration) []Event {
	if !d.open || d.speaking {
		return nil
	}
	if d.hasLexical {
		confirmAt := d.deadline + d.timing.Confirmation
		if now >= confirmAt && confirmAt <= d.ceilingAt {
			return []Event{d.close(confirmAt, models.OutcomeCompleted, models.ReasonSilence)}
		}
	}
	if now >= d.ceilingAt {
		switch {
		case d.hasLexical:
			return []Event{d.close(d.ceilingAt, models.OutcomeCompleted, models.ReasonCeiling)}
		case d.sawFragment:
			return []Event{d.close(d.ceilingAt, models.OutcomeTimedOut, models.ReasonNoAnswer)}
		default:
			return []Event{d.close(d.ceilingAt, models.OutcomeTimedOut, models.ReasonRecognitionGap)}
		}
	}
	if d.hasLexical && now >= d.deadline {
		d.state = StatePossibleEnd
	}
	return nil
}

// Flush closes an open turn immediately, used when the stream ends.
func (d *Detector) Flush(now time.Duration) []Event {
	if !d.open {
		return nil
	}
	if d.hasLexical {
		return []Event{d.close(now, models.OutcomeCompleted, models.ReasonSilence)}
	}
	return []Event{d.close(now, models.OutcomeTimedOut, models.ReasonNoAnswer)}
}

// Preempt closes the open turn as interrupted.
func (d *Detector) Preempt(now time.Duration) []Event {
	if !d.open {
		return nil
	}
	ev := d.close(now, models.OutcomeInterrupted, models.ReasonPreempted)
	d.state = StateInterrupted
	d.lastClosed = -1
	return []Event{ev}
}

// NextDeadline is the next offset at which Advance has work to do.
func (d *Detector) NextDeadline() (time.Duration, bool) {
	if !d.open || d.speaking {
		return 0, false
	}
	next := d.ceilingAt
	if d.hasLexical {
		if d.state == StateListening && d.deadline < next {
			next = d.deadline
		}
		if c := d.deadline + d.timing.Confirmation; c < next && d.state == StatePossibleEnd {
			next = c
		}
	}
	return next, true
}

func (d *Detector) close(at time.Duration, outcome models.TurnOutcome, reason string) Event {
	ev := Event{
		Kind:       EventBoundary,
		TurnID:     d.turnID,
		At:         at,
		Outcome:    outcome,
		Reason:     reason,
		Utterances: d.utts,
		Listened:   max(at-d.listenFrom, 0),
	}
	d.open = false
	d.state = StateConfirmed
	d.lastClosed = d.turnID
	d.resumedSent = false
	d.utts = nil
	d.hasLexical = false
	d.sawFragment = false
	return ev
}

func (d *Detector) lexical(u models.Utterance) bool {
	if u.NonLexical || strings.TrimSpace(u.Text) == "" || IsFiller(u.Text) {
		return false
	}
	// zero confidence means the recognizer did not report one
	return u.Confidence == 0 || u.Confidence >= d.timing.MinConfidence
}

func insertSorted(utts []models.Utterance, u models.Utterance) []models.Utterance {
	i := sort.Search(len(utts), func(i int) bool { return utts[i].Start > u.Start })
	utts = append(utts, models.Utterance{})
	copy(utts[i+1:], utts[i:])
	utts[i] = u
	return utts
}
