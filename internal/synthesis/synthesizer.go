// Package synthesis turns a candidate background and a target role
// description into a weighted topic graph.
package synthesis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/skillissue/mockview/internal/models"
)

// MaxDocumentBytes bounds each input document.
const MaxDocumentBytes = 256 << 10

// Options tune synthesis. Zero values take the defaults below.
type Options struct {
	MinConfidence float64
	MinTopics     int
	MaxTopics     int
}

const (
	defaultMinConfidence = 0.35
	defaultMinTopics     = 3
	defaultMaxTopics     = 12
)

func (o Options) withDefaults() Options {
	if o.MinConfidence == 0 {
		o.MinConfidence = defaultMinConfidence
	}
	if o.MinTopics == 0 {
		o.MinTopics = defaultMinTopics
	}
	if o.MaxTopics == 0 {
		o.MaxTopics = defaultMaxTopics
	}
	return o
}

// Synthesizer builds context profiles. It is safe for concurrent use.
type Synthesizer struct {
	extractor Extractor
	vocab     *Vocabulary
	opts      Options
}

// New creates a Synthesizer. A nil extractor uses the lexicon extractor over
// vocab.
func New(extractor Extractor, vocab *Vocabulary, opts Options) *Synthesizer {
	if vocab == nil {
		vocab = NewVocabulary(nil)
	}
	if extractor == nil {
		extractor = NewLexiconExtractor(vocab)
	}
	return &Synthesizer{extractor: extractor, vocab: vocab, opts: opts.withDefaults()}
}

// topicAcc accumulates mentions of one term across both documents.
type topicAcc struct {
	id          string
	label       string
	concepts    []string
	claimed     bool
	required    bool
	mentions    int
	recency     float64
	criticality float64
}

// Synthesize builds a ContextProfile. Identical inputs always produce an
// identical profile.
func (s *Synthesizer) Synthesize(ctx context.Context, candidate, target string, params models.DomainParameters) (*models.ContextProfile, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("domain parameters: %w", err)
	}
	if err := validateDocument(string(DocCandidate), candidate); err != nil {
		return nil, err
	}
	if err := validateDocument(string(DocTarget), target); err != nil {
		return nil, err
	}

	byID := make(map[string]*topicAcc)
	var order []*topicAcc

	// target first: role requirements lead the insertion order
	for _, doc := range []Document{{Kind: DocTarget, Text: target}, {Kind: DocCandidate, Text: candidate}} {
		mentions, err := s.extractor.Extract(ctx, doc)
		if err != nil {
			return nil, &models.DocumentParseError{Document: string(doc.Kind), Reason: models.ParseMalformed, Err: err}
		}
		for _, m := range mentions {
			if m.Confidence < s.opts.MinConfidence {
				slog.Debug("Discarding low-confidence mention", "term", m.TermID, "confidence", m.Confidence)
				continue
			}
			acc, ok := byID[m.TermID]
			if !ok {
				acc = &topicAcc{id: m.TermID, label: m.Label, concepts: m.Concepts}
				byID[m.TermID] = acc
				order = append(order, acc)
			}
			acc.mentions++
			switch doc.Kind {
			case DocTarget:
				acc.required = true
				acc.criticality = math.Max(acc.criticality, m.Criticality)
			case DocCandidate:
				acc.claimed = true
				acc.recency = math.Max(acc.recency, m.Recency)
			}
		}
	}

	topics := make([]models.Topic, 0, len(order))
	depth := baseDepth(params)
	for _, acc := range order {
		t := models.Topic{
			ID:                acc.id,
			Label:             acc.label,
			Source:            source(acc),
			DepthLevel:        depth,
			ExpectedKnowledge: expected(acc),
		}
		t.Weight = Weight(t.Source, acc.recency, acc.criticality, acc.mentions, params.Difficulty)
		if term, ok := s.vocab.Term(acc.id); ok {
			t.Aliases = append([]string(nil), term.Aliases...)
		}
		topics = append(topics, t)
	}

	topics = keepHeaviest(topics, s.opts.MaxTopics)
	if len(topics) < s.opts.MinTopics {
		return nil, &models.InsufficientContextError{Found: len(topics), Required: s.opts.MinTopics}
	}

	fp := Fingerprint(candidate, target, params, s.opts)
	slog.Debug("Synthesized context profile", "topics", len(topics), "fingerprint", fp[:12])
	return models.NewContextProfile(topics, params, fp), nil
}

func validateDocument(kind, doc string) error {
	switch {
	case strings.TrimSpace(doc) == "":
		return &models.DocumentParseError{Document: kind, Reason: models.ParseEmpty}
	case len(doc) > MaxDocumentBytes:
		return &models.DocumentParseError{Document: kind, Reason: models.ParseTooLarge}
	case !utf8.ValidString(doc):
		return &models.DocumentParseError{Document: kind, Reason: models.ParseInvalidEncoding}
	case strings.ContainsRune(doc, 0):
		return &models.DocumentParseError{Document: kind, Reason: models.ParseMalformed}
	}
	return nil
}

func source(acc *topicAcc) models.TopicSource {
	switch {
	case acc.claimed && acc.required:
		return models.SourceBoth
	case acc.required:
		return models.SourceRequired
	}
	return models.SourceClaimed
}

func expected(acc *topicAcc) []string {
	if len(acc.concepts) > 0 {
		return append([]string(nil), acc.concepts...)
	}
	return []string{Normalize(acc.label)}
}

func baseDepth(p models.DomainParameters) int {
	depth := 2
	switch p.Seniority {
	case models.SeniorityJunior:
		depth = 1
	case models.SenioritySenior, models.SeniorityStaff:
		depth = 3
	}
	if p.Difficulty >= 0.75 && depth < 3 {
		depth++
	}
	return depth
}

// Weight bands keep every dual-sourced topic strictly above every
// single-sourced one, after rounding.
const (
	singleFloor = 0.05
	singleCeil  = 0.5
	bothFloor   = 0.5001
	bothCeil    = 1.0
)

// Weight maps topic signals onto the source's band and rounds to 4 decimals.
func Weight(src models.TopicSource, recency, criticality float64, mentions int, difficulty float64) float64 {
	freq := math.Min(1, float64(mentions)/3)
	var signal float64
	switch src {
	case models.SourceBoth:
		signal = 0.4*criticality + 0.4*recency + 0.2*freq
	case models.SourceRequired:
		signal = 0.7*criticality + 0.3*freq
	default:
		signal = 0.7*recency + 0.3*freq
	}

	// harder interviews lean on the role's demands over the candidate's claims
	if src == models.SourceClaimed {
		signal *= 1.2 - 0.4*difficulty
	} else {
		signal *= 0.8 + 0.4*difficulty
	}
	signal = clamp01(signal)

	var w float64
	if src == models.SourceBoth {
		w = bothFloor + (bothCeil-bothFloor)*signal
	} else {
		w = singleFloor + (singleCeil-singleFloor)*signal
	}
	return math.Round(w*1e4) / 1e4
}

// keepHeaviest keeps the limit heaviest topics (ties by insertion order)
// and restores insertion order.
func keepHeaviest(topics []models.Topic, limit int) []models.Topic {
	if len(topics) <= limit {
		return topics
	}
	idx := make([]int, len(topics))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return topics[idx[a]].Weight > topics[idx[b]].Weight
	})
	idx = idx[:limit]
	sort.Ints(idx)
	out := make([]models.Topic, 0, limit)
	for _, i := range idx {
		out = append(out, topics[i])
	}
	return out
}

// Fingerprint hashes the synthesis inputs.
func Fingerprint(candidate, target string, params models.DomainParameters, opts Options) string {
	h := sha256.New()
	writeString(h, candidate)
	writeString(h, target)
	writeString(h, params.Role)
	writeString(h, string(params.Seniority))
	fmt.Fprintf(h, "%.6f\x00%.6f\x00%d\x00%d\x00", params.Difficulty, opts.MinConfidence, opts.MinTopics, opts.MaxTopics)
	return hex.EncodeToString(h.Sum(nil))
}

func writeString(w io.Writer, s string) {
	_, _ = io.WriteString(w, s+"\x00")
}
