package domain

import "time"

// Role tags the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a chat session.
// Incomplete marks an assistant reply whose stream was aborted.
type Message struct {
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	Incomplete bool      `json:"incomplete,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// CompletionRequest is what gets sent to the completion endpoint.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	Temperature float32
}

// CompletionKind discriminates a single payload from a streamed fragment.
type CompletionKind int

const (
	KindPayload CompletionKind = iota
	KindFragment
)

func (k CompletionKind) String() string {
	if k == KindFragment {
		return "fragment"
	}
	return "payload"
}

// Completion is the result of a completion call. For KindPayload Text is the
// whole reply; for KindFragment it is the next piece of it.
type Completion struct {
	Kind         CompletionKind
	Text         string
	FinishReason string
}

// Image references a generated image.
type Image struct {
	URL           string `json:"url,omitempty"`
	B64JSON       string `json:"b64_json,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}
