package models

// Role tags a prompt message with its speaker.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PromptMessage is one role-tagged entry in the message list sent to the
// generation endpoint. Built per request, consumed once.
type PromptMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
