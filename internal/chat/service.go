// Package chat holds the conversation orchestration pipeline: resolving or
// creating the target conversation, persisting both halves of a turn, and
// driving the completion service with the assembled history.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/parley-chat/parley/internal/db"
	"github.com/parley-chat/parley/internal/llm"
	"github.com/parley-chat/parley/internal/models"
	"go.uber.org/zap"
)

const (
	maxMessageLength = 2000
	maxTitleLength   = 100
	titleFromTextLen = 30

	defaultTitle = "New Conversation"

	// Written in place of the model reply whenever the completion service
	// fails. The request still succeeds; downstream consumers can tell the
	// turn apart by this content.
	fallbackResponse = "Sorry, I could not generate a response."
)

// ErrNotFound mirrors the store sentinel: the conversation is absent or owned
// by someone else.
var ErrNotFound = db.ErrNotFound

var (
	ErrEmptyMessage   = errors.New("message text must not be empty")
	ErrMessageTooLong = errors.New("message text exceeds maximum length")
	ErrInvalidTitle   = errors.New("title must be between 1 and 100 characters")
)

// Completer generates one assistant turn from an ordered turn list.
type Completer interface {
	Complete(ctx context.Context, turns []llm.Turn) (*llm.Result, error)
}

type Service struct {
	db        *db.Database
	completer Completer
	assembler *Assembler
	logger    *zap.Logger
}

func NewService(database *db.Database, completer Completer, logger *zap.Logger) *Service {
	return &Service{
		db:        database,
		completer: completer,
		assembler: NewAssembler(),
		logger:    logger,
	}
}

// SendResult is the outcome of one orchestrated turn.
type SendResult struct {
	UserMessage  *models.Message      `json:"userMessage"`
	AIMessage    *models.Message      `json:"aiMessage"`
	Conversation *models.Conversation `json:"conversation"`
}

// SendMessage runs the full turn pipeline. The user message is durable before
// the completion call is attempted, so a model failure never loses the input;
// any completion failure is absorbed into the fallback reply. conversationID
// may be empty, in which case a new conversation is created with a title
// derived from the text.
func (s *Service) SendMessage(ctx context.Context, ownerID, text, conversationID string) (*SendResult, error) {
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > maxMessageLength {
		return nil, ErrMessageTooLong
	}

	conv, err := s.resolveConversation(ctx, ownerID, text, conversationID)
	if err != nil {
		return nil, err
	}

	userMsg := &models.Message{
		ConvID: conv.ID,
		Role:   models.RoleUser,
		Text:   text,
	}
	if err := s.db.SaveMessage(ctx, userMsg); err != nil {
		return nil, err
	}

	history, err := s.db.GetConversationHistory(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	turns := s.assembler.Assemble(time.Now(), history)
	s.logger.Debug("context assembled",
		zap.String("conversationId", conv.ID),
		zap.Int("turns", len(turns)),
		zap.Int("promptTokensEstimate", s.assembler.EstimateTokens(turns)))

	aiText := fallbackResponse
	result, err := s.completer.Complete(ctx, turns)
	if err != nil {
		// Deliberate product behavior: the caller still gets a successful
		// turn, with the cause logged for observability.
		s.logger.Error("completion failed, substituting fallback",
			zap.Error(err),
			zap.String("conversationId", conv.ID),
			zap.String("ownerId", ownerID))
	} else {
		aiText = result.Text
		s.logger.Info("completion succeeded",
			zap.String("conversationId", conv.ID),
			zap.Int("promptTokens", result.Usage.PromptTokens),
			zap.Int("completionTokens", result.Usage.CompletionTokens))
	}

	aiMsg := &models.Message{
		ConvID: conv.ID,
		Role:   models.RoleAI,
		Text:   aiText,
	}
	if err := s.db.SaveMessage(ctx, aiMsg); err != nil {
		return nil, err
	}

	updatedAt, err := s.db.TouchConversation(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	conv.UpdatedAt = updatedAt

	return &SendResult{
		UserMessage:  userMsg,
		AIMessage:    aiMsg,
		Conversation: conv,
	}, nil
}

// resolveConversation looks up an owned conversation or creates a fresh one
// titled from the first words of the message.
func (s *Service) resolveConversation(ctx context.Context, ownerID, text, conversationID string) (*models.Conversation, error) {
	if conversationID != "" {
		return s.db.GetConversation(ctx, ownerID, conversationID)
	}
	return s.db.CreateConversation(ctx, ownerID, titleFromText(text))
}

// CreateConversation persists an empty conversation. An absent title falls
// back to the default.
func (s *Service) CreateConversation(ctx context.Context, ownerID, title string) (*models.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = defaultTitle
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return nil, ErrInvalidTitle
	}
	return s.db.CreateConversation(ctx, ownerID, title)
}

// ListConversations returns the owner's conversations, most recently active
// first.
func (s *Service) ListConversations(ctx context.Context, ownerID string) ([]models.Conversation, error) {
	return s.db.ListConversations(ctx, ownerID)
}

// GetConversationMessages returns every message of an owned conversation,
// oldest first.
func (s *Service) GetConversationMessages(ctx context.Context, ownerID, conversationID string) ([]models.Message, error) {
	if _, err := s.db.GetConversation(ctx, ownerID, conversationID); err != nil {
		return nil, err
	}
	return s.db.GetConversationHistory(ctx, conversationID)
}

// RenameConversation updates an owned conversation's title.
func (s *Service) RenameConversation(ctx context.Context, ownerID, conversationID, title string) (*models.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" || utf8.RuneCountInString(title) > maxTitleLength {
		return nil, ErrInvalidTitle
	}
	return s.db.UpdateConversationTitle(ctx, ownerID, conversationID, title)
}

// DeleteConversation removes an owned conversation and all of its messages.
func (s *Service) DeleteConversation(ctx context.Context, ownerID, conversationID string) error {
	return s.db.DeleteConversation(ctx, ownerID, conversationID)
}

func titleFromText(text string) string {
	runes := []rune(text)
	if len(runes) > titleFromTextLen {
		runes = runes[:titleFromTextLen]
	}
	return string(runes)
}
