package knowledge

import "errors"

// Category names a bucket of canned replies.
type Category string

const (
	Greetings Category = "greetings"
	Hours     Category = "hours"
	Contact   Category = "contact"
	Pricing   Category = "pricing"
	Thanks    Category = "thanks"
	Goodbye   Category = "goodbye"
	Default   Category = "default"
)

// Priority is the order in which categories are tested against user input.
var Priority = []Category{Greetings, Hours, Contact, Pricing, Thanks, Goodbye}

// Fixed replies for the categories that are not backed by the knowledge base.
const (
	ThanksReply  = "You're welcome! Is there anything else I can help you with?"
	GoodbyeReply = "Goodbye! Feel free to come back if you need any help. Have a great day!"
)

// ErrEmptyDefault is returned by Validate when the catch-all pool is empty.
var ErrEmptyDefault = errors.New("knowledge base default category must not be empty")

// Base maps category names to candidate replies.
type Base map[string][]string

// Keywords maps category names to the substrings that select them.
type Keywords map[string][]string

// Seed returns the stock knowledge base shipped with the widget.
func Seed() Base {
	return Base{
		string(Greetings): {
			"Hello! How can I assist you today?",
			"Hi there! What can I help you with?",
			"Hey! I'm here to help. What do you need?",
		},
		string(Hours): {
			"We're available Monday through Friday, 9 AM to 6 PM EST.",
		},
		string(Contact): {
			"You can contact our support team at support@example.com or call us at 1-800-555-0123.",
		},
		string(Pricing): {
			"We offer flexible pricing plans. Our basic plan starts at $29/month.",
		},
		string(Default): {
			"I understand. Let me help you with that.",
			"That's a great question! Let me assist you.",
			"Thanks for asking! Here's what I know about that...",
		},
	}
}

// SeedKeywords returns the stock keyword sets.
func SeedKeywords() Keywords {
	return Keywords{
		string(Greetings): {"hello", "hi", "hey", "greetings"},
		string(Hours):     {"hour", "time", "when", "open", "available"},
		string(Contact):   {"contact", "email", "phone", "reach"},
		string(Pricing):   {"price", "pricing", "cost", "plan"},
		string(Thanks):    {"thank", "thanks"},
		string(Goodbye):   {"bye", "goodbye"},
	}
}

// Validate reports whether the base satisfies the non-empty default invariant.
func (b Base) Validate() error {
	if len(b[string(Default)]) == 0 {
		return ErrEmptyDefault
	}
	return nil
}

// Pool returns the replies for a category.
func (b Base) Pool(c Category) []string {
	return b[string(c)]
}

// Clone returns a deep copy so callers can't mutate a shared snapshot.
func (b Base) Clone() Base {
	out := make(Base, len(b))
	for k, v := range b {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Clone returns a deep copy of the keyword sets.
func (k Keywords) Clone() Keywords {
	out := make(Keywords, len(k))
	for c, words := range k {
		out[c] = append([]string(nil), words...)
	}
	return out
}
