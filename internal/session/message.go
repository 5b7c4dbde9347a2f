// Package session manages chat sessions: the message log, the session
// controller with its concurrency guards, the autonomous driver, and the
// journey navigator.
package session

import (
	"time"

	"codesquad/internal/gateway"
)

// Sender identifies who produced a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// InteractionPrompt is a mid-turn question from the model. SubmittedAnswer
// is filled in once the user responds.
type InteractionPrompt struct {
	Prompt          string `json:"prompt"`
	SubmittedAnswer string `json:"submittedAnswer,omitempty"`
}

// Message is one entry in a session log. ID is a per-session monotonic
// sequence number; Timestamp is kept for the snapshot wire format.
type Message struct {
	ID            int64                `json:"id"`
	Sender        Sender               `json:"sender"`
	Content       string               `json:"content"`
	Timestamp     time.Time            `json:"timestamp"`
	ParentID      int64                `json:"parentId,omitempty"`
	AttachedFiles []gateway.Attachment `json:"attachedFiles,omitempty"`
	IsAutoPrompt  bool                 `json:"isAutoPrompt,omitempty"`
	Interaction   *InteractionPrompt   `json:"interaction,omitempty"`
}
