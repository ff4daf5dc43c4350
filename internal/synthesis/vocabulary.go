package synthesis

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Term is a canonical vocabulary entry.
type Term struct {
	ID       string
	Label    string
	Aliases  []string
	Concepts []string
}

// builtinTerms is the shared vocabulary both documents are mapped onto.
var builtinTerms = []Term{
	{ID: "go", Label: "Go", Aliases: []string{"golang"}, Concepts: []string{"goroutine", "channel", "interface", "context", "error", "select"}},
	{ID: "python", Label: "Python", Aliases: []string{"python3"}, Concepts: []string{"generator", "decorator", "gil", "asyncio", "typing"}},
	{ID: "java", Label: "Java", Aliases: []string{"jvm"}, Concepts: []string{"garbage", "thread", "spring", "stream", "generics"}},
	{ID: "rust", Label: "Rust", Concepts: []string{"ownership", "borrow", "lifetime", "trait", "unsafe"}},
	{ID: "typescript", Label: "TypeScript", Aliases: []string{"ts"}, Concepts: []string{"type", "generic", "union", "interface", "compiler"}},
	{ID: "javascript", Label: "JavaScript", Aliases: []string{"js", "ecmascript"}, Concepts: []string{"closure", "promise", "event loop", "prototype", "async"}},
	{ID: "cpp", Label: "C++", Aliases: []string{"c++", "cplusplus"}, Concepts: []string{"raii", "template", "pointer", "move", "memory"}},
	{ID: "sql", Label: "SQL", Concepts: []string{"join", "index", "transaction", "query plan", "normalization"}},
	{ID: "postgresql", Label: "PostgreSQL", Aliases: []string{"postgres", "psql"}, Concepts: []string{"index", "vacuum", "mvcc", "replication", "transaction"}},
	{ID: "mysql", Label: "MySQL", Aliases: []string{"mariadb"}, Concepts: []string{"innodb", "index", "replication", "transaction"}},
	{ID: "mongodb", Label: "MongoDB", Aliases: []string{"mongo"}, Concepts: []string{"document", "sharding", "replica set", "aggregation"}},
	{ID: "redis", Label: "Redis", Concepts: []string{"cache", "eviction", "ttl", "pub/sub", "persistence"}},
	{ID: "kafka", Label: "Kafka", Aliases: []string{"apache kafka"}, Concepts: []string{"partition", "consumer group", "offset", "broker", "retention"}},
	{ID: "rabbitmq", Label: "RabbitMQ", Aliases: []string{"amqp"}, Concepts: []string{"exchange", "queue", "ack", "routing"}},
	{ID: "docker", Label: "Docker", Aliases: []string{"containers", "container"}, Concepts: []string{"image", "layer", "dockerfile", "registry", "volume"}},
	{ID: "kubernetes", Label: "Kubernetes", Aliases: []string{"k8s", "kube"}, Concepts: []string{"pod", "deployment", "service", "ingress", "scheduler", "operator"}},
	{ID: "terraform", Label: "Terraform", Aliases: []string{"hcl"}, Concepts: []string{"state", "module", "provider", "plan", "drift"}},
	{ID: "aws", Label: "AWS", Aliases: []string{"amazon web services", "ec2", "s3"}, Concepts: []string{"iam", "vpc", "lambda", "region", "autoscaling"}},
	{ID: "gcp", Label: "Google Cloud", Aliases: []string{"google cloud platform", "google cloud"}, Concepts: []string{"iam", "gke", "bigquery", "pub/sub"}},
	{ID: "azure", Label: "Azure", Aliases: []string{"microsoft azure"}, Concepts: []string{"aks", "resource group", "entra", "blob"}},
	{ID: "grpc", Label: "gRPC", Aliases: []string{"protobuf", "protocol buffers"}, Concepts: []string{"stream", "deadline", "proto", "http/2"}},
	{ID: "rest", Label: "REST APIs", Aliases: []string{"rest api", "restful", "http api"}, Concepts: []string{"idempotent", "status code", "pagination", "versioning"}},
	{ID: "graphql", Label: "GraphQL", Concepts: []string{"schema", "resolver", "n+1", "mutation"}},
	{ID: "react", Label: "React", Aliases: []string{"reactjs", "react.js"}, Concepts: []string{"hook", "state", "render", "component", "virtual dom"}},
	{ID: "nodejs", Label: "Node.js", Aliases: []string{"node", "node.js"}, Concepts: []string{"event loop", "stream", "npm", "worker"}},
	{ID: "linux", Label: "Linux", Aliases: []string{"unix"}, Concepts: []string{"process", "signal", "file descriptor", "cgroup", "kernel"}},
	{ID: "ci-cd", Label: "CI/CD", Aliases: []string{"ci/cd", "continuous integration", "continuous delivery", "github actions", "jenkins"}, Concepts: []string{"pipeline", "artifact", "rollback", "test"}},
	{ID: "distributed-systems", Label: "Distributed systems", Aliases: []string{"distributed system", "distributed computing"}, Concepts: []string{"consensus", "partition", "replication", "consistency", "latency"}},
	{ID: "microservices", Label: "Microservices", Aliases: []string{"microservice", "service oriented architecture", "soa"}, Concepts: []string{"boundary", "contract", "discovery", "circuit breaker"}},
	{ID: "system-design", Label: "System design", Aliases: []string{"architecture", "software architecture"}, Concepts: []string{"scalability", "tradeoff", "bottleneck", "capacity", "availability"}},
	{ID: "concurrency", Label: "Concurrency", Aliases: []string{"multithreading", "parallelism"}, Concepts: []string{"lock", "race", "deadlock", "mutex", "atomic"}},
	{ID: "observability", Label: "Observability", Aliases: []string{"monitoring", "prometheus", "opentelemetry", "grafana"}, Concepts: []string{"metric", "trace", "log", "alert", "slo"}},
	{ID: "security", Label: "Security", Aliases: []string{"appsec", "oauth", "authentication"}, Concepts: []string{"token", "encryption", "tls", "authorization"}},
	{ID: "machine-learning", Label: "Machine learning", Aliases: []string{"ml", "deep learning", "pytorch", "tensorflow"}, Concepts: []string{"training", "overfitting", "feature", "evaluation", "model"}},
	{ID: "data-engineering", Label: "Data engineering", Aliases: []string{"etl", "spark", "airflow", "data pipelines", "data pipeline"}, Concepts: []string{"batch", "stream", "schema", "partition", "backfill"}},
	{ID: "testing", Label: "Testing", Aliases: []string{"unit testing", "tdd", "test automation"}, Concepts: []string{"mock", "coverage", "integration", "fixture"}},
	{ID: "leadership", Label: "Technical leadership", Aliases: []string{"mentoring", "mentorship", "team lead"}, Concepts: []string{"mentor", "review", "decision", "roadmap"}},
}

// Vocabulary maps normalized surface forms onto canonical terms.
type Vocabulary struct {
	terms   map[string]Term
	surface map[string]surfaceEntry
	maxLen  int
}

type surfaceEntry struct {
	id         string
	confidence float64
}

const (
	exactConfidence  = 1.0
	aliasConfidence  = 0.9
	customConfidence = 0.8
)

// Normalize folds case, applies NFKC and trims punctuation around s.
func Normalize(s string) string {
	s = cases.Fold().String(norm.NFKC.String(s))
	s = strings.TrimFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+' && r != '#'
	})
	return strings.Join(strings.Fields(s), " ")
}

// NewVocabulary builds the built-in vocabulary plus extra aliases
// (surface form → canonical id or new label).
func NewVocabulary(extra map[string]string) *Vocabulary {
	v := &Vocabulary{
		terms:   make(map[string]Term, len(builtinTerms)),
		surface: make(map[string]surfaceEntry),
	}
	for _, t := range builtinTerms {
		v.terms[t.ID] = t
		v.add(t.Label, t.ID, exactConfidence)
		v.add(t.ID, t.ID, exactConfidence)
		for _, a := range t.Aliases {
			v.add(a, t.ID, aliasConfidence)
		}
	}
	surfaces := make([]string, 0, len(extra))
	for surface := range extra {
		surfaces = append(surfaces, surface)
	}
	sort.Strings(surfaces)
	for _, surface := range surfaces {
		target := extra[surface]
		id := Slug(target)
		if _, ok := v.terms[id]; !ok {
			v.terms[id] = Term{ID: id, Label: strings.TrimSpace(target)}
			v.add(target, id, customConfidence)
		}
		v.add(surface, id, customConfidence)
	}
	return v
}

func (v *Vocabulary) add(surface, id string, confidence float64) {
	key := Normalize(surface)
	if key == "" {
		return
	}
	if cur, ok := v.surface[key]; ok && cur.confidence >= confidence {
		return
	}
	v.surface[key] = surfaceEntry{id: id, confidence: confidence}
	if n := len(strings.Fields(key)); n > v.maxLen {
		v.maxLen = n
	}
}

// Lookup resolves a normalized phrase.
func (v *Vocabulary) Lookup(phrase string) (Term, float64, bool) {
	e, ok := v.surface[phrase]
	if !ok {
		return Term{}, 0, false
	}
	return v.terms[e.id], e.confidence, true
}

// Term returns the canonical entry for id.
func (v *Vocabulary) Term(id string) (Term, bool) {
	t, ok := v.terms[id]
	return t, ok
}

// Slug turns a label into a topic id.
func Slug(s string) string {
	s = Normalize(s)
	var b strings.Builder
	dash := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case r == '+':
			b.WriteString("p")
			dash = false
		case r == '#':
			b.WriteString("sharp")
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// tokens splits normalized text into words, keeping symbols that belong to
// technology names (c++, c#, node.js, ci/cd).
func tokens(text string) []string {
	fields := strings.FieldsFunc(Normalize(text), func(r rune) bool {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
		switch r {
		case '+', '#', '.', '/', '-':
			return false
		}
		return true
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "./-")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
