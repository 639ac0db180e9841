package ai

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zhouzirui/supportbot/internal/config"
	"github.com/zhouzirui/supportbot/internal/model/knowledge"
)

const basePrompt = `You are %s, the support assistant embedded on a customer's website.
Answer briefly and politely in the user's language. If you do not know an answer,
say so and point the user to the contact details below instead of guessing.`

// BuildSystemPrompt renders the system prompt for a widget. extra, when set,
// is appended verbatim (AI_SYSTEM_PROMPT).
func BuildSystemPrompt(opts config.Options, extra string) string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf(basePrompt, opts.Title))

	facts := knowledgeFacts(opts.KnowledgeBase)
	if len(facts) > 0 {
		builder.WriteString("\n\nKnown facts:\n- ")
		builder.WriteString(strings.Join(facts, "\n- "))
	}

	if extra = strings.TrimSpace(extra); extra != "" {
		builder.WriteString("\n\n")
		builder.WriteString(extra)
	}
	return builder.String()
}

// knowledgeFacts lists the non-greeting, non-default replies, which carry the
// business facts (hours, contact, pricing, custom categories).
func knowledgeFacts(base knowledge.Base) []string {
	categories := make([]string, 0, len(base))
	for c := range base {
		if c == string(knowledge.Greetings) || c == string(knowledge.Default) {
			continue
		}
		categories = append(categories, c)
	}
	sort.Strings(categories)

	var facts []string
	for _, c := range categories {
		for _, reply := range base[c] {
			if reply = strings.TrimSpace(reply); reply != "" {
				facts = append(facts, fmt.Sprintf("%s: %s", c, reply))
			}
		}
	}
	return facts
}
