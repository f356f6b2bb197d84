package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/parley-chat/parley/internal/auth"
	"github.com/parley-chat/parley/internal/chat"
	"github.com/parley-chat/parley/internal/db"
	"github.com/parley-chat/parley/internal/models"
	"go.uber.org/zap"
)

type Handler struct {
	chat     *chat.Service
	db       *db.Database
	validate *validator.Validate
	logger   *zap.Logger
}

func NewHandler(chatService *chat.Service, database *db.Database, logger *zap.Logger) *Handler {
	return &Handler{
		chat:     chatService,
		db:       database,
		validate: validator.New(),
		logger:   logger,
	}
}

type SendMessageRequest struct {
	Text           string `json:"text" validate:"required,max=2000"`
	ConversationID string `json:"conversationId" validate:"omitempty"`
}

type CreateConversationRequest struct {
	Title string `json:"title" validate:"omitempty,max=100"`
}

type RenameConversationRequest struct {
	Title string `json:"title" validate:"required,max=100"`
}

type CreateConversationResponse struct {
	ID           string `json:"id"`
	SessionToken string `json:"sessionToken"`
}

type MessagesResponse struct {
	Messages []models.Message `json:"messages"`
}

// HandleSend is POST /api/conversations/send.
func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	ownerID := principal(r)

	var req SendMessageRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.chat.SendMessage(r.Context(), ownerID, req.Text, req.ConversationID)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to process message")
		return
	}

	h.logger.Info("chat message processed",
		zap.String("ownerId", ownerID),
		zap.String("conversationId", result.Conversation.ID),
		zap.Int("textLength", len(req.Text)))
	writeJSON(w, http.StatusCreated, result)
}

// HandleCreateConversation is POST /api/conversations.
func (h *Handler) HandleCreateConversation(w http.ResponseWriter, r *http.Request) {
	ownerID := principal(r)

	var req CreateConversationRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	conv, err := h.chat.CreateConversation(r.Context(), ownerID, req.Title)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to create conversation")
		return
	}

	h.logger.Info("conversation created",
		zap.String("ownerId", ownerID),
		zap.String("conversationId", conv.ID))
	writeJSON(w, http.StatusCreated, CreateConversationResponse{
		ID:           conv.ID,
		SessionToken: conv.SessionToken,
	})
}

// HandleListConversations is GET /api/conversations.
func (h *Handler) HandleListConversations(w http.ResponseWriter, r *http.Request) {
	ownerID := principal(r)

	conversations, err := h.chat.ListConversations(r.Context(), ownerID)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to fetch conversations")
		return
	}
	writeJSON(w, http.StatusOK, conversations)
}

// HandleGetMessages is GET /api/conversations/{id}.
func (h *Handler) HandleGetMessages(w http.ResponseWriter, r *http.Request) {
	ownerID := principal(r)

	messages, err := h.chat.GetConversationMessages(r.Context(), ownerID, r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to fetch messages")
		return
	}
	writeJSON(w, http.StatusOK, MessagesResponse{Messages: messages})
}

// HandleRenameConversation is PATCH /api/conversations/{id}.
func (h *Handler) HandleRenameConversation(w http.ResponseWriter, r *http.Request) {
	ownerID := principal(r)

	var req RenameConversationRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	conv, err := h.chat.RenameConversation(r.Context(), ownerID, r.PathValue("id"), req.Title)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to rename conversation")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// HandleDeleteConversation is DELETE /api/conversations/{id}.
func (h *Handler) HandleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	ownerID := principal(r)

	if err := h.chat.DeleteConversation(r.Context(), ownerID, r.PathValue("id")); err != nil {
		h.writeServiceError(w, r, err, "Failed to delete conversation")
		return
	}

	h.logger.Info("conversation deleted",
		zap.String("ownerId", ownerID),
		zap.String("conversationId", r.PathValue("id")))
	writeJSON(w, http.StatusOK, map[string]string{"message": "Conversation deleted"})
}

// HandleHealth is GET /api/health. Unauthenticated.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		h.logger.Error("health check failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// principal returns the verified owner id placed in the context by the auth
// middleware. Routes are never registered without it, so absence is a wiring
// bug rather than a client error.
func principal(r *http.Request) string {
	id, _ := auth.PrincipalFromContext(r.Context())
	return id
}

func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid input data")
		return false
	}
	return true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		writeError(w, http.StatusNotFound, "Conversation not found")
	case errors.Is(err, chat.ErrInvalidTitle),
		errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrMessageTooLong):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error(msg,
			zap.Error(err),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path))
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
