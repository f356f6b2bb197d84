package models

import "time"

// Message roles. Closed set; the context assembler maps RoleAI to the
// completion service's "assistant" role.
const (
	RoleUser = "user"
	RoleAI   = "ai"
)

type Message struct {
	ID        string    `json:"id"`
	ConvID    string    `json:"conversationId"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

type Conversation struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"-"`
	Title        string    `json:"title"`
	SessionToken string    `json:"sessionToken"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
