package dialogue

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/skillissue/mockview/internal/capability"
	"github.com/skillissue/mockview/internal/models"
)

// fallbackQuestions remembers the last generated question per topic so a
// failed generation can still ask something on topic.
type fallbackQuestions struct {
	cache *lru.Cache[string, string]
}

func newFallbackQuestions(size int) *fallbackQuestions {
	if size <= 0 {
		size = 64
	}
	c, err := lru.New[string, string](size)
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}
	return &fallbackQuestions{cache: c}
}

func (f *fallbackQuestions) remember(topicID, question string) {
	f.cache.Add(topicID, question)
}

func (f *fallbackQuestions) question(topic models.Topic) string {
	if q, ok := f.cache.Get(topic.ID); ok {
		return q
	}
	return capability.GenericQuestion(topic.Label)
}
