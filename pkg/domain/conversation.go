package domain

import "time"

// Conversation is a chat session over the owner's memories. Title starts
// empty and is filled in by an AI-generated short title once the chat
// produces enough context (see cortex chat pipeline's title_update frame).
type Conversation struct {
	ID        string
	OwnerID   string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MessageRole distinguishes user turns from assistant turns.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ConversationMessage is one turn. CitedMemoryIDs records which memories
// backed an assistant answer, surfaced to the user as sources.
type ConversationMessage struct {
	ID              string
	ConversationID  string
	Role            MessageRole
	Content         string
	CitedMemoryIDs  []string
	CreatedAt       time.Time
}
