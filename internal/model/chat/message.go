package chat

import "time"

// Message is a single transcript entry. Values are never mutated after creation.
type Message struct {
	Text      string    `json:"text"`
	IsUser    bool      `json:"isUser"`
	Timestamp time.Time `json:"timestamp"`
}

// NewUserMessage 创建用户消息。
func NewUserMessage(text string, at time.Time) Message {
	return Message{Text: text, IsUser: true, Timestamp: at}
}

// NewBotMessage 创建机器人回复消息。
func NewBotMessage(text string, at time.Time) Message {
	return Message{Text: text, IsUser: false, Timestamp: at}
}

// Sender returns the role label used by LLM history builders and logs.
func (m Message) Sender() string {
	if m.IsUser {
		return "user"
	}
	return "assistant"
}
