// Package llm wraps the completion service behind a small gateway. Callers
// hand it an ordered list of role-tagged turns and get back one generated
// assistant turn; every failure mode (transport, timeout, empty body) surfaces
// as an error for the orchestrator to absorb.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// Turn roles understood by the completion service.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is one role-tagged unit of the context sent to the model.
type Turn struct {
	Role    string
	Content string
}

// Usage carries the token counts reported by the completion service, when the
// backend provides them.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Result is one generated assistant turn.
type Result struct {
	Text  string
	Usage Usage
}

type Gateway struct {
	llm       llms.Model
	model     string
	maxTokens int
	timeout   time.Duration
	logger    *zap.Logger
}

func New(baseURL, token, model string, maxTokens int, timeout time.Duration, logger *zap.Logger) (*Gateway, error) {
	client, err := openai.New(
		openai.WithToken(token),
		openai.WithBaseURL(baseURL),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, err
	}
	return &Gateway{
		llm:       client,
		model:     model,
		maxTokens: maxTokens,
		timeout:   timeout,
		logger:    logger,
	}, nil
}

// Complete sends the assembled turns to the completion service and returns the
// generated text, trimmed. The call is bounded by the configured timeout.
func (g *Gateway) Complete(ctx context.Context, turns []Turn) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	content := make([]llms.MessageContent, 0, len(turns))
	for _, turn := range turns {
		role, err := chatMessageType(turn.Role)
		if err != nil {
			return nil, err
		}
		content = append(content, llms.TextParts(role, turn.Content))
	}

	start := time.Now()
	resp, err := g.llm.GenerateContent(ctx, content, llms.WithMaxTokens(g.maxTokens))
	if err != nil {
		return nil, fmt.Errorf("generating completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("completion response contained no choices")
	}

	choice := resp.Choices[0]
	text := strings.TrimSpace(choice.Content)
	if text == "" {
		return nil, errors.New("completion response was empty")
	}

	usage := usageFromGenerationInfo(choice.GenerationInfo)
	g.logger.Debug("completion generated",
		zap.String("model", g.model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("totalTokens", usage.TotalTokens))

	return &Result{Text: text, Usage: usage}, nil
}

func chatMessageType(role string) (llms.ChatMessageType, error) {
	switch role {
	case RoleSystem:
		return llms.ChatMessageTypeSystem, nil
	case RoleUser:
		return llms.ChatMessageTypeHuman, nil
	case RoleAssistant:
		return llms.ChatMessageTypeAI, nil
	default:
		return "", fmt.Errorf("unknown turn role %q", role)
	}
}

func usageFromGenerationInfo(info map[string]any) Usage {
	var usage Usage
	if n, ok := info["PromptTokens"].(int); ok {
		usage.PromptTokens = n
	}
	if n, ok := info["CompletionTokens"].(int); ok {
		usage.CompletionTokens = n
	}
	if n, ok := info["TotalTokens"].(int); ok {
		usage.TotalTokens = n
	}
	return usage
}
