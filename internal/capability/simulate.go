package capability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"gopkg.in/yaml.v3"

	"github.com/skillissue/mockview/internal/config"
	"github.com/skillissue/mockview/internal/models"
	"github.com/skillissue/mockview/internal/validation"
)

// Script drives a simulated candidate. Each answer responds to one spoken
// question, in order.
type Script struct {
	Name       string          `yaml:"name"`
	SpeechRate config.Duration `yaml:"speech_rate"`
	WordPace   config.Duration `yaml:"word_pace"`
	Hangup     config.Duration `yaml:"hangup"`
	Confidence float64         `yaml:"confidence"`
	Answers    []ScriptAnswer  `yaml:"answers"`
}

// ScriptAnswer is the candidate's reaction to one question.
type ScriptAnswer struct {
	Text    string          `yaml:"text"`
	Silent  bool            `yaml:"silent"`
	Delay   config.Duration `yaml:"delay"`
	BargeIn bool            `yaml:"barge_in"`
	Fillers []string        `yaml:"fillers"`
	// Pause is the gap between answer chunks.
	Pause config.Duration `yaml:"pause"`
	// Resume is spoken ResumeAfter after the answer ends, simulating a
	// candidate who keeps talking after a pause.
	Resume      string          `yaml:"resume"`
	ResumeAfter config.Duration `yaml:"resume_after"`
}

const (
	defaultSpeechRate = 60 * time.Millisecond
	defaultWordPace   = 90 * time.Millisecond
	defaultHangup     = 3 * time.Second
	defaultScriptConf = 0.92
	wordsPerFragment  = 4
)

// LoadScript reads and validates a simulation script.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	return ParseScript(data)
}

// ParseScript validates data against the script schema and decodes it.
func ParseScript(data []byte) (*Script, error) {
	if errs := validation.ValidateScriptBytes(data); len(errs) > 0 {
		return nil, fmt.Errorf("invalid script:\n  %s", strings.Join(errs, "\n  "))
	}
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing script: %w", err)
	}
	if s.SpeechRate == 0 {
		s.SpeechRate = config.Duration(defaultSpeechRate)
	}
	if s.WordPace == 0 {
		s.WordPace = config.Duration(defaultWordPace)
	}
	if s.Hangup == 0 {
		s.Hangup = config.Duration(defaultHangup)
	}
	if s.Confidence == 0 {
		s.Confidence = defaultScriptConf
	}
	return &s, nil
}

type questionCue struct {
	text    string
	started time.Time
	ended   <-chan struct{}
}

// ScriptedCandidate plays both ends of the audio loop for a simulation: it
// "speaks" questions by waiting out their duration, and answers them from
// a Script as a Recognizer stream.
type ScriptedCandidate struct {
	script *Script
	clk    clock.Clock
	out    io.Writer

	cues chan questionCue

	mu     sync.Mutex
	origin time.Time
	seq    int
}

// NewScriptedCandidate creates a candidate. Spoken questions and answers
// are echoed to out when it is not nil.
func NewScriptedCandidate(script *Script, clk clock.Clock, out io.Writer) *ScriptedCandidate {
	if clk == nil {
		clk = clock.New()
	}
	return &ScriptedCandidate{
		script: script,
		clk:    clk,
		out:    out,
		cues:   make(chan questionCue, len(script.Answers)+1),
	}
}

// Speak implements Speaker. Playback time grows with the word count.
func (c *ScriptedCandidate) Speak(ctx context.Context, text string) error {
	ended := make(chan struct{})
	defer close(ended)

	c.echo("interviewer", text)
	select {
	case c.cues <- questionCue{text: text, started: c.clk.Now(), ended: ended}:
	default:
		// script exhausted; nobody is listening
	}

	d := time.Duration(len(strings.Fields(text))) * c.script.SpeechRate.Std()
	t := c.clk.Timer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stream implements Recognizer. The stream closes after the last answer
// plus the script's hangup delay.
func (c *ScriptedCandidate) Stream(ctx context.Context) (<-chan models.Utterance, error) {
	c.mu.Lock()
	if !c.origin.IsZero() {
		c.mu.Unlock()
		return nil, errors.New("scripted stream already started")
	}
	c.origin = c.clk.Now()
	c.mu.Unlock()

	out := make(chan models.Utterance)
	go func() {
		defer close(out)
		for i, answer := range c.script.Answers {
			var cue questionCue
			select {
			case cue = <-c.cues:
			case <-ctx.Done():
				return
			}
			if err := c.answer(ctx, out, cue, answer); err != nil {
				return
			}
			if i == len(c.script.Answers)-1 {
				_ = c.sleep(ctx, c.script.Hangup.Std())
			}
		}
	}()
	return out, nil
}

func (c *ScriptedCandidate) answer(ctx context.Context, out chan<- models.Utterance, cue questionCue, a ScriptAnswer) error {
	if a.Silent {
		return nil
	}
	if !a.BargeIn {
		select {
		case <-cue.ended:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := c.sleep(ctx, a.Delay.Std()); err != nil {
		return err
	}

	for _, f := range a.Fillers {
		if err := c.say(ctx, out, f); err != nil {
			return err
		}
	}
	c.echo("candidate", a.Text)
	for i, chunk := range chunkWords(a.Text, wordsPerFragment) {
		if i > 0 && a.Pause > 0 {
			if err := c.sleep(ctx, a.Pause.Std()); err != nil {
				return err
			}
		}
		if err := c.say(ctx, out, chunk); err != nil {
			return err
		}
	}

	if a.Resume != "" {
		if err := c.sleep(ctx, a.ResumeAfter.Std()); err != nil {
			return err
		}
		c.echo("candidate", a.Resume)
		for _, chunk := range chunkWords(a.Resume, wordsPerFragment) {
			if err := c.say(ctx, out, chunk); err != nil {
				return err
			}
		}
	}
	return nil
}

// say emits one fragment whose duration follows the word pace.
func (c *ScriptedCandidate) say(ctx context.Context, out chan<- models.Utterance, text string) error {
	start := c.clk.Since(c.origin)
	if err := c.sleep(ctx, time.Duration(len(strings.Fields(text)))*c.script.WordPace.Std()); err != nil {
		return err
	}
	c.mu.Lock()
	c.seq++
	u := models.Utterance{
		Seq:        c.seq,
		Text:       text,
		Start:      start,
		End:        c.clk.Since(c.origin),
		Confidence: c.script.Confidence,
	}
	c.mu.Unlock()

	select {
	case out <- u:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *ScriptedCandidate) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := c.clk.Timer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *ScriptedCandidate) echo(who, text string) {
	if c.out == nil || text == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.out, "%-12s %s\n", who+":", text)
}

func chunkWords(text string, n int) []string {
	words := strings.Fields(text)
	var chunks []string
	for len(words) > 0 {
		k := min(n, len(words))
		chunks = append(chunks, strings.Join(words[:k], " "))
		words = words[k:]
	}
	return chunks
}
