package ai

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/supportbot/internal/config"
	"github.com/zhouzirui/supportbot/internal/model/chat"
)

// ErrEmptyReply is returned when the model answers with only whitespace.
var ErrEmptyReply = errors.New("AI chain returned an empty reply")

// Service answers widget messages with an LLM. It satisfies
// resolver.ResponseProvider, so it plugs in as a widget's custom callback.
type Service struct {
	chain        compose.Runnable[map[string]any, *schema.Message]
	system       string
	historyLimit int
}

// NewService creates the Ark chat model from cfg and compiles the chain.
func NewService(ctx context.Context, cfg config.AIConfig, opts config.Options) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create chat model")
	}
	return NewServiceWithModel(ctx, chatModel, BuildSystemPrompt(opts, cfg.SystemPrompt), cfg.HistoryLimit)
}

// NewServiceWithModel compiles the chain around an existing chat model.
func NewServiceWithModel(ctx context.Context, chatModel model.BaseChatModel, system string, historyLimit int) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compile chat chain")
	}

	if historyLimit < 1 {
		historyLimit = 10
	}

	return &Service{
		chain:        runnable,
		system:       system,
		historyLimit: historyLimit,
	}, nil
}

// GenerateResponse runs the chain for userText. The transcript's last entry is
// the user message itself and is sent as the query, not as history.
func (s *Service) GenerateResponse(ctx context.Context, userText string, transcript []chat.Message) (string, error) {
	input := map[string]any{
		"system":  s.system,
		"history": buildHistoryMessages(transcript, userText, s.historyLimit),
		"query":   userText,
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", errors.Wrap(err, "failed to run AI chain")
	}

	content := strings.TrimSpace(response.Content)
	if content == "" {
		return "", ErrEmptyReply
	}

	log.Debug().Str("component", "ai").Int("length", len(content)).Msg("generated response")
	return content, nil
}

func buildHistoryMessages(messages []chat.Message, userText string, limit int) []*schema.Message {
	if n := len(messages); n > 0 && messages[n-1].IsUser && messages[n-1].Text == userText {
		messages = messages[:n-1]
	}
	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > limit {
		startIdx = len(messages) - limit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		switch msg.Sender() {
		case "user":
			history = append(history, schema.UserMessage(msg.Text))
		case "assistant":
			history = append(history, schema.AssistantMessage(msg.Text, nil))
		}
	}

	return history
}
