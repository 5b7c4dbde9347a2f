package session

import (
	"time"

	"codesquad/internal/gateway"
	"codesquad/internal/orchestrator"
	"codesquad/internal/persona"
)

// Session is one chat session. Field access is guarded by the controller;
// sessions are never shared outside it.
type Session struct {
	ID     string
	Name   string
	Mode   persona.Mode
	Custom *persona.CustomConfig

	Messages []Message

	Driving     bool
	DrivingGoal string
	Journey     *JourneyState

	nextMsgID  int64
	busy       bool
	awaitingID int64 // message ID of the unanswered interaction, 0 when none

	conv  orchestrator.Streamer
	board *orchestrator.StatusBoard // squad sessions only
}

// instruction resolves the effective system instruction.
func (s *Session) instruction() string {
	if s.Mode == persona.ModeCustom && s.Custom != nil {
		return s.Custom.Instruction()
	}
	return s.Mode.SystemInstruction()
}

// appendMessage assigns the next sequence ID and records the message.
func (s *Session) appendMessage(m Message) *Message {
	s.nextMsgID++
	m.ID = s.nextMsgID
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	s.Messages = append(s.Messages, m)
	return &s.Messages[len(s.Messages)-1]
}

// messageByID returns the message with the given sequence ID.
func (s *Session) messageByID(id int64) *Message {
	for i := range s.Messages {
		if s.Messages[i].ID == id {
			return &s.Messages[i]
		}
	}
	return nil
}

// turns converts the message log into provider history turns.
func (s *Session) turns() []gateway.Turn {
	out := make([]gateway.Turn, 0, len(s.Messages))
	for _, m := range s.Messages {
		role := "user"
		if m.Sender == SenderAI {
			role = "model"
		}
		out = append(out, gateway.Turn{Role: role, Text: m.Content})
	}
	return out
}

// lastAIText returns the content of the most recent AI message.
func (s *Session) lastAIText() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Sender == SenderAI {
			return s.Messages[i].Content
		}
	}
	return ""
}

// VisibleMessages returns the log without auto-generated prompts, the view
// shown for journey lessons.
func (s *Session) VisibleMessages() []Message {
	out := make([]Message, 0, len(s.Messages))
	for _, m := range s.Messages {
		if m.IsAutoPrompt {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Thread walks parent links from the given message up to the thread root
// and returns the chain in root-first order.
func (s *Session) Thread(messageID int64) []Message {
	var chain []Message
	for id := messageID; id != 0; {
		m := s.messageByID(id)
		if m == nil {
			break
		}
		chain = append(chain, *m)
		id = m.ParentID
	}
	// Reverse into root-first order.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}
