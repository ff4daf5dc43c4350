package turntaking

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/skillissue/mockview/internal/models"
)

type controlKind int

const (
	ctrlOpen controlKind = iota
	ctrlSpeech
	ctrlPreempt
)

type control struct {
	kind     controlKind
	turnID   int
	speaking bool
}

// Engine runs a Detector over a live fragment stream. Output events are
// queued without bound so fragment ingestion never waits on the consumer.
type Engine struct {
	det    *Detector
	clk    clock.Clock
	origin time.Time

	ctrl   chan control
	events chan Event
	done   chan struct{}
}

// NewEngine creates an engine whose stream origin is the clock's current
// time. Fragment offsets must be relative to Origin.
func NewEngine(timing Timing, clk clock.Clock) *Engine {
	if clk == nil {
		clk = clock.New()
	}
	return &Engine{
		det:    NewDetector(timing),
		clk:    clk,
		origin: clk.Now(),
		ctrl:   make(chan control, 16),
		events: make(chan Event),
		done:   make(chan struct{}),
	}
}

// Origin is the wall time matching stream offset zero.
func (e *Engine) Origin() time.Time { return e.origin }

// Events delivers detector output. It is closed when Run returns.
func (e *Engine) Events() <-chan Event { return e.events }

// Offset converts a clock time into a stream offset.
func (e *Engine) Offset(t time.Time) time.Duration { return t.Sub(e.origin) }

// Open starts capturing a new turn.
func (e *Engine) Open(turnID int) { e.send(control{kind: ctrlOpen, turnID: turnID}) }

// SystemSpeech reports system speech starting or stopping for turnID.
func (e *Engine) SystemSpeech(turnID int, speaking bool) {
	e.send(control{kind: ctrlSpeech, turnID: turnID, speaking: speaking})
}

// Preempt force-closes turnID as interrupted.
func (e *Engine) Preempt(turnID int) { e.send(control{kind: ctrlPreempt, turnID: turnID}) }

func (e *Engine) send(c control) {
	select {
	case e.ctrl <- c:
	case <-e.done:
	}
}

// Run consumes fragments until ctx is done. A closed fragment channel
// flushes the open turn and emits EventStreamClosed.
func (e *Engine) Run(ctx context.Context, in <-chan models.Utterance) error {
	defer close(e.done)
	defer close(e.events)

	var (
		pending []Event
		timer   *clock.Timer
		timerC  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		var (
			out  chan<- Event
			next Event
		)
		if len(pending) > 0 {
			out = e.events
			next = pending[0]
		}

		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-in:
			now := e.now()
			if !ok {
				in = nil
				pending = append(pending, e.det.Flush(now)...)
				pending = append(pending, Event{Kind: EventStreamClosed, At: now})
				break
			}
			pending = append(pending, e.det.Observe(u, now)...)
		case c := <-e.ctrl:
			pending = append(pending, e.apply(c)...)
		case <-timerC:
			pending = append(pending, e.det.Advance(e.now())...)
		case out <- next:
			pending = pending[1:]
			logEvent(next)
		}

		deadline, ok := e.det.NextDeadline()
		if !ok {
			if timer != nil {
				timer.Stop()
			}
			timerC = nil
			continue
		}
		wait := max(deadline-e.now(), 0)
		if timer == nil {
			timer = e.clk.Timer(wait)
		} else {
			timer.Stop()
			timer.Reset(wait)
		}
		timerC = timer.C
	}
}

func (e *Engine) apply(c control) []Event {
	now := e.now()
	switch c.kind {
	case ctrlOpen:
		return e.det.Open(c.turnID, now)
	case ctrlSpeech:
		if e.det.open && e.det.turnID == c.turnID {
			return e.det.SystemSpeech(c.speaking, now)
		}
	case ctrlPreempt:
		if e.det.open && e.det.turnID == c.turnID {
			return e.det.Preempt(now)
		}
	}
	return nil
}

func (e *Engine) now() time.Duration { return e.clk.Since(e.origin) }

func logEvent(ev Event) {
	switch ev.Kind {
	case EventBoundary:
		slog.Debug("Turn boundary", "turn", ev.TurnID, "outcome", ev.Outcome, "reason", ev.Reason, "at", ev.At, "utterances", len(ev.Utterances))
	default:
		slog.Debug("Turn event", "kind", ev.Kind, "turn", ev.TurnID, "at", ev.At)
	}
}
