package synthesis

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// DocumentKind identifies the two synthesis inputs.
type DocumentKind string

const (
	DocCandidate DocumentKind = "candidate"
	DocTarget    DocumentKind = "target"
)

// Document is extracted text handed to an Extractor.
type Document struct {
	Kind DocumentKind
	Text string
}

// Mention is one occurrence of a vocabulary term in a document. Signals are
// in [0,1]: Recency is meaningful for candidate documents, Criticality for
// target documents.
type Mention struct {
	TermID      string
	Label       string
	Concepts    []string
	Confidence  float64
	Recency     float64
	Criticality float64
	Section     string
}

// Extractor finds topic mentions in a document.
type Extractor interface {
	Extract(ctx context.Context, doc Document) ([]Mention, error)
}

const (
	listPhraseConfidence = 0.5
	properNounConfidence = 0.25
	defaultRecency       = 0.6
	defaultCriticality   = 0.75
)

var (
	yearPattern      = regexp.MustCompile(`\b(19[89]\d|20\d\d)\b`)
	presentPattern   = regexp.MustCompile(`(?i)\b(present|current|now|today)\b`)
	seniorityPattern = regexp.MustCompile(`(?i)\b(senior|lead|principal|staff|architect|expert|owned|led)\b`)
	requiredPattern  = regexp.MustCompile(`(?i)\b(required|requirements?|must|qualifications|responsibilities|you will|what you.ll need|essential)\b`)
	preferredPattern = regexp.MustCompile(`(?i)\b(nice to have|preferred|bonus|plus|desirable|optional|familiarity)\b`)
	skillsPattern    = regexp.MustCompile(`(?i)\b(skills?|technolog(y|ies)|stack|tools|languages)\b`)
)

// LexiconExtractor matches the shared vocabulary against Markdown or plain
// text documents, tracking section headings for context.
type LexiconExtractor struct {
	vocab *Vocabulary
}

// NewLexiconExtractor returns an extractor over vocab.
func NewLexiconExtractor(vocab *Vocabulary) *LexiconExtractor {
	return &LexiconExtractor{vocab: vocab}
}

type block struct {
	section  string
	text     string
	listItem bool
}

// Extract implements Extractor.
func (e *LexiconExtractor) Extract(ctx context.Context, doc Document) ([]Mention, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	blocks := splitBlocks([]byte(doc.Text))
	refYear := referenceYear(doc.Text)

	var mentions []Mention
	for _, b := range blocks {
		found := e.matchTerms(b.text)
		if len(found) == 0 && b.listItem && isSkillsSection(b.section) {
			if m, ok := listPhrase(b.text); ok {
				found = append(found, m)
			}
		}
		if len(found) == 0 && doc.Kind == DocCandidate {
			found = append(found, properNouns(b.text, e.vocab)...)
		}
		for _, m := range found {
			m.Section = b.section
			switch doc.Kind {
			case DocCandidate:
				m.Recency = recency(b.section+" "+b.text, refYear)
			case DocTarget:
				m.Criticality = criticality(b.section, b.text)
			}
			mentions = append(mentions, m)
		}
	}
	return mentions, nil
}

// matchTerms scans n-grams longest first so "apache kafka" wins over "kafka".
func (e *LexiconExtractor) matchTerms(s string) []Mention {
	words := tokens(s)
	var out []Mention
	for i := 0; i < len(words); {
		matched := false
		for n := min(e.vocab.maxLen, len(words)-i); n >= 1; n-- {
			phrase := strings.Join(words[i:i+n], " ")
			term, conf, ok := e.vocab.Lookup(phrase)
			if !ok {
				continue
			}
			out = append(out, Mention{
				TermID:     term.ID,
				Label:      term.Label,
				Concepts:   term.Concepts,
				Confidence: conf,
			})
			i += n
			matched = true
			break
		}
		if !matched {
			i++
		}
	}
	return out
}

func listPhrase(s string) (Mention, bool) {
	label := strings.TrimSpace(strings.Trim(s, ".,;:"))
	if label == "" || len(strings.Fields(label)) > 3 {
		return Mention{}, false
	}
	id := Slug(label)
	if id == "" {
		return Mention{}, false
	}
	return Mention{TermID: id, Label: label, Confidence: listPhraseConfidence}, true
}

// properNouns picks capitalized words that are not sentence starts. They are
// low-confidence guesses and usually fall below the mention threshold.
func properNouns(s string, vocab *Vocabulary) []Mention {
	var out []Mention
	fields := strings.Fields(s)
	for i, f := range fields {
		if i == 0 || strings.HasSuffix(fields[i-1], ".") {
			continue
		}
		w := strings.Trim(f, ".,;:()[]\"'")
		if len(w) < 3 || w[0] < 'A' || w[0] > 'Z' {
			continue
		}
		if _, _, ok := vocab.Lookup(Normalize(w)); ok {
			continue
		}
		out = append(out, Mention{TermID: Slug(w), Label: w, Confidence: properNounConfidence})
	}
	return out
}

func isSkillsSection(section string) bool {
	return skillsPattern.MatchString(section) || requiredPattern.MatchString(section) || preferredPattern.MatchString(section)
}

// referenceYear is the latest year mentioned in the document. Using the
// document instead of the wall clock keeps synthesis deterministic.
func referenceYear(s string) int {
	ref := 0
	for _, m := range yearPattern.FindAllString(s, -1) {
		if y, err := strconv.Atoi(m); err == nil && y > ref {
			ref = y
		}
	}
	return ref
}

func recency(s string, refYear int) float64 {
	r := defaultRecency
	if refYear > 0 {
		latest := 0
		for _, m := range yearPattern.FindAllString(s, -1) {
			if y, _ := strconv.Atoi(m); y > latest {
				latest = y
			}
		}
		if presentPattern.MatchString(s) {
			latest = refYear
		}
		if latest > 0 {
			r = 1 - float64(refYear-latest)/10
		}
	}
	if seniorityPattern.MatchString(s) {
		r += 0.1
	}
	return clamp01(r)
}

func criticality(section, sentence string) float64 {
	switch {
	case preferredPattern.MatchString(sentence):
		return 0.5
	case requiredPattern.MatchString(sentence):
		return 1
	case preferredPattern.MatchString(section):
		return 0.5
	case requiredPattern.MatchString(section):
		return 1
	}
	return defaultCriticality
}

// splitBlocks walks the Markdown AST and returns text blocks with the
// nearest preceding heading. Short lines ending in ":" act as headings for
// plain text documents.
func splitBlocks(src []byte) []block {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var blocks []block
	section := ""
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindHeading:
			section = nodeText(n, src)
			return ast.WalkSkipChildren, nil
		case ast.KindParagraph, ast.KindTextBlock:
			for _, line := range strings.Split(nodeText(n, src), "\n") {
				line = strings.TrimSpace(line)
				if line == "" {
					continue
				}
				if strings.HasSuffix(line, ":") && len(line) <= 60 {
					section = strings.TrimSuffix(line, ":")
					continue
				}
				parent := n.Parent()
				blocks = append(blocks, block{
					section:  section,
					text:     line,
					listItem: parent != nil && parent.Kind() == ast.KindListItem,
				})
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return blocks
}

func nodeText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
