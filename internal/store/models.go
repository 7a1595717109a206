package store

import "time"

// Roles a turn may carry. A turn's role never changes after creation.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// MaxContentLength bounds the text of a single turn.
const MaxContentLength = 50000

// AttachmentRef points at stored attachment text from a turn.
type AttachmentRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind,omitempty"`
}

// TurnMeta is generation/edit metadata attached to a turn.
type TurnMeta struct {
	Model           string  `json:"model,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
	Tokens          int     `json:"tokens,omitempty"`
	IsEdited        bool    `json:"is_edited,omitempty"`
	OriginalContent string  `json:"original_content,omitempty"`
}

// Turn is one persisted message in a conversation.
type Turn struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Seq            uint64          `json:"seq"`
	Role           string          `json:"role"`
	Content        string          `json:"content"`
	Attachments    []AttachmentRef `json:"attachments,omitempty"`
	Meta           *TurnMeta       `json:"meta,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Conversation owns an ordered set of turns plus denormalized summary fields.
// MessageCount and LastMessage are caches maintained by the coordinator, not
// by the store.
type Conversation struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	Title        string    `json:"title"`
	LastMessage  string    `json:"last_message"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Attachment holds pre-extracted attachment text keyed by id. Extraction
// happens outside this system; the text arrives as an opaque string.
type Attachment struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind,omitempty"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// ModelSettings are per-owner generation preferences.
type ModelSettings struct {
	Model        string  `json:"model,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
}
