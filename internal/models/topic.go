package models

import "encoding/json"

// TopicSource records which document a topic came from.
type TopicSource string

const (
	SourceClaimed  TopicSource = "claimed"
	SourceRequired TopicSource = "required"
	SourceBoth     TopicSource = "both"
)

// IsClaimed is true when the candidate's background mentions the topic.
func (s TopicSource) IsClaimed() bool {
	return s == SourceClaimed || s == SourceBoth
}

// Topic is a node of the synthesized topic graph.
type Topic struct {
	ID                string      `json:"id"`
	Label             string      `json:"label"`
	Source            TopicSource `json:"source"`
	Weight            float64     `json:"weight"`
	DepthLevel        int         `json:"depth_level"`
	Aliases           []string    `json:"aliases,omitempty"`
	ExpectedKnowledge []string    `json:"expected_knowledge,omitempty"`
}

// ContextProfile is the immutable output of context synthesis. Topic order
// is the insertion order used to break selection ties.
type ContextProfile struct {
	topics      []Topic
	index       map[string]int
	params      DomainParameters
	fingerprint string
}

// NewContextProfile copies topics into a new profile.
func NewContextProfile(topics []Topic, params DomainParameters, fingerprint string) *ContextProfile {
	p := &ContextProfile{
		topics:      make([]Topic, len(topics)),
		index:       make(map[string]int, len(topics)),
		params:      params,
		fingerprint: fingerprint,
	}
	for i, t := range topics {
		p.topics[i] = cloneTopic(t)
		p.index[t.ID] = i
	}
	return p
}

// Topics returns a copy of the topics in insertion order.
func (p *ContextProfile) Topics() []Topic {
	out := make([]Topic, len(p.topics))
	for i, t := range p.topics {
		out[i] = cloneTopic(t)
	}
	return out
}

// Topic looks up a topic by id.
func (p *ContextProfile) Topic(id string) (Topic, bool) {
	i, ok := p.index[id]
	if !ok {
		return Topic{}, false
	}
	return cloneTopic(p.topics[i]), true
}

// Position returns the insertion index of a topic, or -1.
func (p *ContextProfile) Position(id string) int {
	if i, ok := p.index[id]; ok {
		return i
	}
	return -1
}

func (p *ContextProfile) Len() int                 { return len(p.topics) }
func (p *ContextProfile) Params() DomainParameters { return p.params }
func (p *ContextProfile) Fingerprint() string      { return p.fingerprint }

// ProfileSnapshot is the serialized form of a ContextProfile.
type ProfileSnapshot struct {
	Fingerprint string           `json:"fingerprint"`
	Params      DomainParameters `json:"params"`
	Topics      []Topic          `json:"topics"`
}

// Snapshot returns a serializable copy of the profile.
func (p *ContextProfile) Snapshot() ProfileSnapshot {
	return ProfileSnapshot{Fingerprint: p.fingerprint, Params: p.params, Topics: p.Topics()}
}

// Restore rebuilds a profile from a snapshot.
func (s ProfileSnapshot) Restore() *ContextProfile {
	return NewContextProfile(s.Topics, s.Params, s.Fingerprint)
}

func (p *ContextProfile) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Snapshot())
}

func (p *ContextProfile) UnmarshalJSON(data []byte) error {
	var s ProfileSnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*p = *s.Restore()
	return nil
}

func cloneTopic(t Topic) Topic {
	t.Aliases = append([]string(nil), t.Aliases...)
	t.ExpectedKnowledge = append([]string(nil), t.ExpectedKnowledge...)
	return t
}
