// Package transcript persists chat conversations to PostgreSQL.
//
// Messages are stored as a JSONB document per conversation; a save replaces
// the whole transcript. This keeps reads and writes single-row and avoids a
// message table the read path never queries independently.
package transcript

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// InvocationState tracks where a tool call is in its lifecycle.
type InvocationState string

const (
	// InvocationPending means the model requested the call but no result
	// has been recorded yet.
	InvocationPending InvocationState = "pending"

	// InvocationResult means the call completed and Result is populated.
	InvocationResult InvocationState = "result"
)

// Conversation is a persisted chat transcript owned by a single user.
type Conversation struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Message is a single turn in a conversation.
type Message struct {
	ID              string           `json:"id,omitempty"`
	Role            Role             `json:"role"`
	Content         string           `json:"content"`
	Attachments     []Attachment     `json:"attachments,omitempty"`
	ToolInvocations []ToolInvocation `json:"toolInvocations,omitempty"`
}

// Attachment references an uploaded file included with a message.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	URL         string `json:"url"`
}

// ToolInvocation records one tool call made by the model during a turn,
// matched to its result by CallID.
type ToolInvocation struct {
	ToolName string          `json:"toolName"`
	CallID   string          `json:"callId"`
	State    InvocationState `json:"state"`
	Args     map[string]any  `json:"args,omitempty"`
	Result   any             `json:"result,omitempty"`
}
