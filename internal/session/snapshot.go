package session

import (
	"time"

	"codesquad/internal/gateway"
	"codesquad/internal/orchestrator"
	"codesquad/internal/persona"
)

// Snapshot is the persisted wire form of a session. Gateway handles are
// never stored; conversations are rebuilt from the message log on the
// first turn after a restore.
type Snapshot struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Mode        string                `json:"mode"`
	Custom      *persona.CustomConfig `json:"customConfig,omitempty"`
	IsDriving   bool                  `json:"isDriving,omitempty"`
	DrivingGoal string                `json:"drivingGoal,omitempty"`
	Journey     *JourneySnapshot      `json:"journey,omitempty"`
	Messages    []MessageSnapshot     `json:"messages"`
}

// JourneySnapshot persists journey progress.
type JourneySnapshot struct {
	ProgramID   string `json:"programId"`
	LessonIndex int    `json:"lessonIndex"`
}

// MessageSnapshot is the persisted wire form of a message. Identity on
// the wire is the timestamp; parent links persist as parentTimestamp and
// resolve back to sequence IDs on restore.
type MessageSnapshot struct {
	Sender          string               `json:"sender"`
	Content         string               `json:"content"`
	Timestamp       time.Time            `json:"timestamp"`
	ParentTimestamp *time.Time           `json:"parentTimestamp,omitempty"`
	AttachedFiles   []gateway.Attachment `json:"attachedFiles,omitempty"`
	IsAutoPrompt    bool                 `json:"isAutoPrompt,omitempty"`
	Interaction     *InteractionPrompt   `json:"interactionPrompt,omitempty"`
}

func snapshotOf(s *Session) Snapshot {
	snap := Snapshot{
		ID:          s.ID,
		Name:        s.Name,
		Mode:        string(s.Mode),
		Custom:      s.Custom,
		IsDriving:   s.Driving,
		DrivingGoal: s.DrivingGoal,
		Messages:    make([]MessageSnapshot, 0, len(s.Messages)),
	}
	if s.Journey != nil {
		snap.Journey = &JourneySnapshot{
			ProgramID:   s.Journey.ProgramID,
			LessonIndex: s.Journey.LessonIndex,
		}
	}
	for _, m := range s.Messages {
		ms := MessageSnapshot{
			Sender:        string(m.Sender),
			Content:       m.Content,
			Timestamp:     m.Timestamp,
			AttachedFiles: m.AttachedFiles,
			IsAutoPrompt:  m.IsAutoPrompt,
		}
		if m.Interaction != nil {
			ip := *m.Interaction
			ms.Interaction = &ip
		}
		if m.ParentID != 0 {
			if parent := s.messageByID(m.ParentID); parent != nil {
				ts := parent.Timestamp
				ms.ParentTimestamp = &ts
			}
		}
		snap.Messages = append(snap.Messages, ms)
	}
	return snap
}

// Restore rebuilds sessions from snapshots, in order. Messages receive
// fresh sequence IDs; an AI message with an unanswered interaction at the
// tail restores the awaiting-answer guard. Driving never resumes on its
// own after a restore.
func (c *Controller) Restore(snapshots []Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, snap := range snapshots {
		if len(c.sessions) >= c.maxSessions {
			break
		}
		if _, exists := c.sessions[snap.ID]; exists {
			continue
		}

		s := &Session{
			ID:          snap.ID,
			Name:        snap.Name,
			Mode:        persona.Mode(snap.Mode),
			Custom:      snap.Custom,
			DrivingGoal: snap.DrivingGoal,
		}
		if s.Mode == persona.ModeSquad {
			s.board = orchestrator.NewStatusBoard(nil)
		}
		if snap.Journey != nil {
			s.Journey = &JourneyState{
				ProgramID:   snap.Journey.ProgramID,
				LessonIndex: snap.Journey.LessonIndex,
			}
		}

		byTimestamp := make(map[time.Time]int64, len(snap.Messages))
		for _, ms := range snap.Messages {
			m := Message{
				Sender:        Sender(ms.Sender),
				Content:       ms.Content,
				Timestamp:     ms.Timestamp,
				AttachedFiles: ms.AttachedFiles,
				IsAutoPrompt:  ms.IsAutoPrompt,
			}
			if ms.Interaction != nil {
				ip := *ms.Interaction
				m.Interaction = &ip
			}
			if ms.ParentTimestamp != nil {
				m.ParentID = byTimestamp[*ms.ParentTimestamp]
			}
			stored := s.appendMessage(m)
			byTimestamp[stored.Timestamp] = stored.ID
		}

		// A tail interaction with no submitted answer is still pending.
		for i := len(s.Messages) - 1; i >= 0; i-- {
			m := s.Messages[i]
			if m.Sender != SenderAI {
				continue
			}
			if m.Interaction != nil && m.Interaction.SubmittedAnswer == "" {
				s.awaitingID = m.ID
			}
			break
		}

		c.sessions[s.ID] = s
		c.order = append(c.order, s.ID)
	}
}
