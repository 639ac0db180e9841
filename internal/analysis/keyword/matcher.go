package keyword

import (
	"math/rand/v2"
	"strings"

	"github.com/zhouzirui/supportbot/internal/model/knowledge"
)

// Rand is the randomness the matcher draws replies with.
type Rand interface {
	IntN(n int) int
}

// Matcher 根据关键词把用户输入归类，并从知识库中挑选回复。
type Matcher struct {
	base     knowledge.Base
	keywords knowledge.Keywords
	rnd      Rand
}

// NewMatcher builds a matcher over base and keywords. A nil rnd uses the
// package-level math/rand source. Missing keyword sets fall back to the
// stock ones, and an empty default pool is replaced by the stock default.
func NewMatcher(base knowledge.Base, keywords knowledge.Keywords, rnd Rand) *Matcher {
	b := base.Clone()
	if err := b.Validate(); err != nil {
		b[string(knowledge.Default)] = knowledge.Seed().Pool(knowledge.Default)
	}

	kw := knowledge.SeedKeywords()
	for category, words := range keywords {
		kw[category] = append([]string(nil), words...)
	}

	if rnd == nil {
		rnd = globalRand{}
	}

	return &Matcher{base: b, keywords: kw, rnd: rnd}
}

// Classify returns the first category, in priority order, whose keywords
// occur in text. Matching is case-insensitive substring containment.
func (m *Matcher) Classify(text string) knowledge.Category {
	normalized := strings.ToLower(text)
	for _, category := range knowledge.Priority {
		if matchKeywords(normalized, m.keywords[string(category)]) {
			return category
		}
	}
	return knowledge.Default
}

// Respond picks a reply for category. Thanks and goodbye have fixed replies;
// a category without candidates uses the default pool.
func (m *Matcher) Respond(category knowledge.Category) string {
	switch category {
	case knowledge.Thanks:
		return knowledge.ThanksReply
	case knowledge.Goodbye:
		return knowledge.GoodbyeReply
	}

	pool := m.base.Pool(category)
	if len(pool) == 0 {
		pool = m.base.Pool(knowledge.Default)
	}
	return pool[m.rnd.IntN(len(pool))]
}

// Reply classifies text and picks a reply in one step.
func (m *Matcher) Reply(text string) string {
	return m.Respond(m.Classify(text))
}

func matchKeywords(text string, keywords []string) bool {
	for _, word := range keywords {
		if word == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(word)) {
			return true
		}
	}
	return false
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }
