package capability

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/skillissue/mockview/internal/models"
)

// HeuristicScorer scores answers offline from lexical signals: overlap with
// the question and topic, specificity, hedging and coverage of the topic's
// expected knowledge. The full breakdown from MeasureAnswer is attached to
// every score.
type HeuristicScorer struct{}

// NewHeuristicScorer returns a HeuristicScorer.
func NewHeuristicScorer() *HeuristicScorer { return &HeuristicScorer{} }

var (
	wordPattern     = regexp.MustCompile(`[\p{L}\p{N}+#./-]+`)
	numberPattern   = regexp.MustCompile(`\b\d+(\.\d+)?\s*(%|ms|s|x|gb|mb|k|m|rps|qps)?\b`)
	concretePattern = regexp.MustCompile(`(?i)\b(implemented|built|designed|measured|profiled|migrated|debugged|reduced|increased|deployed|wrote|benchmarked|because|for example|for instance|tradeoff|instead)\b`)
	hedgePattern    = regexp.MustCompile(`(?i)\b(maybe|probably|i think|i guess|not sure|kind of|sort of|i don't know|perhaps|i believe|something like)\b`)

	causalPattern   = regexp.MustCompile(`(?i)\b(because|therefore|thus|hence|as a result|which caused|leading to|which meant|so that|in order to)\b`)
	examplePattern  = regexp.MustCompile(`(?i)\b(for example|for instance|such as|specifically|in particular|to illustrate|in my project|we implemented|concretely)\b`)
	quantityPattern = regexp.MustCompile(`(?i)\b\d+\s*(%|x|times|ms|seconds|minutes|hours|gb|mb|tb|requests|users|percent|k|m)\b`)
	shallowPattern  = regexp.MustCompile(`(?i)\b(i worked on it|it was fine|did some stuff|helped with|was involved in|i know about|i have experience|i've done that|we just used)\b`)
	passivePattern  = regexp.MustCompile(`(?i)\b(was done|was built|was implemented|was developed|were created|it was decided|things were set up|stuff was)\b`)
	actionPattern   = regexp.MustCompile(`(?i)\bi (built|designed|led|created|implemented|deployed|developed|wrote|refactored|migrated|optimi[sz]ed|introduced|reduced|automated|coordinated|owned|drove|shipped|launched|established|mentored|scaled|measured|profiled|debugged)\b`)
	sentenceSplit   = regexp.MustCompile(`[.!?]+`)

	starPatterns = []struct {
		part    string
		pattern *regexp.Regexp
	}{
		{models.STARSituation, regexp.MustCompile(`(?i)\b(project|situation|challenge|context|background|scenario|at the time|problem we faced|the issue was)\b`)},
		{models.STARTask, regexp.MustCompile(`(?i)\b(task|responsible for|goal|objective|assigned to|my role was|i was asked to|needed to|requirement was)\b`)},
		{models.STARAction, actionPattern},
		{models.STARResult, regexp.MustCompile(`(?i)\b(result|improved|increased|reduced|achieved|delivered|outcome|impact|saved|cut|boosted|grew|shipped|launched|decreased|eliminated)\b`)},
	}

	redFlagPatterns = []struct {
		flag    string
		pattern *regexp.Regexp
	}{
		{"blame-shifting", regexp.MustCompile(`(?i)\b(their fault|not my fault|wasn't my (fault|call|problem)|management (didn't|never|wouldn't)|the other team (broke|messed)|my (manager|team) (screwed|messed) up)\b`)},
		{"avoidance", regexp.MustCompile(`(?i)\b(rather not (say|talk|discuss)|can't (really )?(say|talk about)|don't remember|no comment|skip (this|that) one|never (had|made) (a|any) (mistake|failure)s?)\b`)},
		{"implausible-claim", regexp.MustCompile(`(?i)\b(zero bugs|never had a (single )?(bug|outage|incident)|100% uptime|always perfect|single-handedly (built|rewrote))\b`)},
	}
)

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true, "to": true, "in": true,
	"on": true, "for": true, "with": true, "is": true, "are": true, "was": true, "it": true, "you": true,
	"your": true, "i": true, "we": true, "how": true, "what": true, "can": true, "me": true, "that": true,
	"this": true, "do": true, "does": true, "did": true, "about": true, "would": true, "where": true,
	"have": true, "has": true, "be": true, "at": true, "as": true, "my": true, "our": true,
}

// Score implements Scorer.
func (h *HeuristicScorer) Score(ctx context.Context, req ScoreRequest) (Score, error) {
	if err := ctx.Err(); err != nil {
		return Score{}, err
	}
	answer := strings.ToLower(req.Transcript)
	answerWords := contentWords(answer)
	if len(answerWords) == 0 {
		return Score{Rationale: "no answer content"}, nil
	}

	anchors := contentWords(strings.ToLower(req.Question + " " + req.Topic.Label + " " + strings.Join(req.Topic.Aliases, " ")))
	overlap := setOverlap(anchors, answerWords)

	specificity := 0.0
	if numberPattern.MatchString(answer) {
		specificity += 0.4
	}
	specificity += math.Min(0.6, 0.2*float64(len(concretePattern.FindAllString(answer, -1))))
	hedges := len(hedgePattern.FindAllString(answer, -1))
	hedging := math.Min(1, float64(hedges)/3)

	// very short answers cannot be relevant regardless of overlap
	length := math.Min(1, float64(len(answerWords))/25)

	covered := 0
	for _, concept := range req.Topic.ExpectedKnowledge {
		if strings.Contains(answer, strings.ToLower(concept)) {
			covered++
		}
	}
	coverage := 0.0
	if n := len(req.Topic.ExpectedKnowledge); n > 0 {
		coverage = math.Min(1, float64(covered)/math.Min(3, float64(n)))
	}

	relevance := clamp01(0.45*overlap+0.25*specificity+0.3*length-0.25*hedging)
	if coverage > 0 {
		relevance = clamp01(relevance + 0.15*coverage)
	}
	correctness := clamp01(0.6*coverage + 0.25*specificity + 0.15*length - 0.3*hedging)

	return Score{
		Relevance:   round4(relevance),
		Correctness: round4(correctness),
		Rationale: fmt.Sprintf("overlap %.2f, specificity %.2f, hedging %.2f, concepts %d/%d",
			overlap, specificity, hedging, covered, len(req.Topic.ExpectedKnowledge)),
		Metrics: MeasureAnswer(req),
	}, nil
}

// MeasureAnswer computes the lexical breakdown of the answer in req. It
// returns nil for an answer without content.
func MeasureAnswer(req ScoreRequest) *models.AnswerMetrics {
	answer := strings.TrimSpace(req.Transcript)
	words := len(wordPattern.FindAllString(answer, -1))
	if words == 0 {
		return nil
	}
	total := float64(words)

	var sentences []string
	for _, s := range sentenceSplit.Split(answer, -1) {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}
	nSentences := float64(max(len(sentences), 1))

	// depth: causal reasoning, examples and quantified claims, minus filler
	depth := 0.35*math.Min(float64(len(causalPattern.FindAllString(answer, -1)))/total*25, 1) +
		0.35*math.Min(float64(len(examplePattern.FindAllString(answer, -1)))/total*25, 1) +
		0.30*math.Min(float64(len(quantityPattern.FindAllString(answer, -1)))/total*15, 1)
	depth = math.Max(depth-0.12*float64(len(shallowPattern.FindAllString(answer, -1))), 0)

	// completeness: share of sentences touching the question or topic, plus length
	anchors := contentWords(strings.ToLower(req.Question + " " + req.Topic.Label + " " + strings.Join(req.Topic.Aliases, " ")))
	onTopic := 0
	for _, s := range sentences {
		if setOverlap(anchors, contentWords(strings.ToLower(s))) > 0 {
			onTopic++
		}
	}
	completeness := 0.6*float64(onTopic)/nSentences + 0.4*math.Min(total/80, 1)

	lower := strings.ToLower(answer)
	specificity := 0.0
	if numberPattern.MatchString(lower) {
		specificity += 0.4
	}
	specificity += math.Min(0.6, 0.2*float64(len(concretePattern.FindAllString(lower, -1))))

	confidence := 1 - 0.25*float64(len(hedgePattern.FindAllString(answer, -1)))/nSentences -
		0.15*float64(len(passivePattern.FindAllString(answer, -1)))/nSentences
	confidence = math.Max(confidence, 0)
	confidence += math.Min(0.2*float64(len(actionPattern.FindAllString(answer, -1)))/nSentences, 0.3)

	m := &models.AnswerMetrics{
		Depth:        round4(clamp01(depth)),
		Completeness: round4(clamp01(completeness)),
		Specificity:  round4(clamp01(specificity)),
		Confidence:   round4(clamp01(confidence)),
	}
	for _, sp := range starPatterns {
		if sp.pattern.MatchString(answer) {
			m.STARParts = append(m.STARParts, sp.part)
		}
	}
	m.STAR = float64(len(m.STARParts)) / 4
	for _, rf := range redFlagPatterns {
		if rf.pattern.MatchString(answer) {
			m.RedFlags = append(m.RedFlags, rf.flag)
		}
	}
	return m
}

// withJudgeMetrics attaches the lexical breakdown to a judge's score. STAR
// parts reported by the judge replace the lexical ones. Red flags from both
// are kept.
func withJudgeMetrics(req ScoreRequest, s Score) Score {
	m := MeasureAnswer(req)
	judged := s.Metrics
	s.Metrics = m
	if m == nil || judged == nil {
		return s
	}
	if judged.STARParts != nil {
		m.STARParts = judged.STARParts
		m.STAR = judged.STAR
	}
	for _, f := range judged.RedFlags {
		if !containsString(m.RedFlags, f) {
			m.RedFlags = append(m.RedFlags, f)
		}
	}
	return s
}

func starPart(p string) bool {
	for _, sp := range starPatterns {
		if sp.part == p {
			return true
		}
	}
	return false
}

// orderSTAR sorts parts into situation, task, action, result order. The
// result is never nil.
func orderSTAR(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, sp := range starPatterns {
		if containsString(parts, sp.part) {
			out = append(out, sp.part)
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func contentWords(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range wordPattern.FindAllString(s, -1) {
		w = strings.Trim(w, "./-")
		if len(w) < 2 || stopwords[w] {
			continue
		}
		out[w] = true
	}
	return out
}

// setOverlap is the share of anchor words present in the answer.
func setOverlap(anchors, answer map[string]bool) float64 {
	if len(anchors) == 0 {
		return 0
	}
	hit := 0
	for w := range anchors {
		if answer[w] {
			hit++
		}
	}
	return math.Min(1, float64(hit)/math.Min(4, float64(len(anchors))))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
