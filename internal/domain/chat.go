// Package domain contains core domain types for the assistant.
package domain

import "time"

// Role identifies the author of a chat message.
type Role string

const (
	// RoleUser marks text submitted by the person chatting.
	RoleUser Role = "user"
	// RoleAssistant marks text produced by the agent.
	RoleAssistant Role = "assistant"
)

// ChatMessage is one immutable entry of a chat history.
type ChatMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NewUserMessage creates a user message stamped with the current time.
func NewUserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content, CreatedAt: time.Now()}
}

// NewAssistantMessage creates an assistant message stamped with the current time.
func NewAssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content, CreatedAt: time.Now()}
}
