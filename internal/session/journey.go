package session

import (
	"context"
	"errors"
	"fmt"
	"os"

	"codesquad/internal/logging"
	"codesquad/internal/orchestrator"

	"gopkg.in/yaml.v3"
)

// Lesson is one step of a journey program.
type Lesson struct {
	Title   string `yaml:"title" json:"title"`
	Content string `yaml:"content" json:"content"`
}

// Program is an ordered lesson plan.
type Program struct {
	ID      string   `yaml:"id" json:"id"`
	Title   string   `yaml:"title" json:"title"`
	Lessons []Lesson `yaml:"lessons" json:"lessons"`
}

// JourneyState tracks a session's position in its program. LessonIndex is
// -1 before the first lesson starts.
type JourneyState struct {
	ProgramID   string
	LessonIndex int
}

// LoadPrograms reads journey programs from a YAML file.
func LoadPrograms(path string) ([]Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read programs: %w", err)
	}
	var doc struct {
		Programs []Program `yaml:"programs"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse programs: %w", err)
	}
	return doc.Programs, nil
}

// DefaultPrograms returns the built-in program set.
func DefaultPrograms() []Program {
	return []Program{
		{
			ID:    "go-basics",
			Title: "Go Fundamentals",
			Lessons: []Lesson{
				{Title: "Hello, Go", Content: "Toolchain setup, packages, the main function, go run."},
				{Title: "Types and Values", Content: "Basic types, zero values, constants, type conversions."},
				{Title: "Control Flow", Content: "if, for, switch; no while; early returns."},
				{Title: "Functions and Errors", Content: "Multiple returns, the error idiom, defer."},
				{Title: "Structs and Methods", Content: "Value vs pointer receivers, embedding."},
				{Title: "Goroutines and Channels", Content: "go statements, channel send/receive, select."},
			},
		},
		{
			ID:    "web-apis",
			Title: "Building Web APIs",
			Lessons: []Lesson{
				{Title: "HTTP Basics", Content: "Requests, responses, status codes, headers."},
				{Title: "Routing and Handlers", Content: "Handler functions, routers, middleware."},
				{Title: "JSON In and Out", Content: "Encoding, decoding, validation, error envelopes."},
				{Title: "Streaming Responses", Content: "Server-sent events, flushing, client disconnects."},
			},
		},
	}
}

// ProgramByID returns a configured journey program.
func (c *Controller) ProgramByID(id string) (Program, bool) {
	p, ok := c.programs[id]
	return p, ok
}

// Programs lists the configured journey programs.
func (c *Controller) Programs() []Program {
	out := make([]Program, 0, len(c.programs))
	for _, p := range c.programs {
		out = append(out, p)
	}
	return out
}

func firstLessonPrompt(program Program, lesson Lesson) string {
	return fmt.Sprintf(
		"Let's begin the journey %q. Please teach me the first lesson: %q. Here is the content guideline: %q",
		program.Title, lesson.Title, lesson.Content)
}

func nextLessonPrompt(lesson Lesson) string {
	return fmt.Sprintf(
		"Great, let's move to the next lesson: %q. Here is the content guideline: %q",
		lesson.Title, lesson.Content)
}

// NavigateJourney moves the lesson index by delta, clamped to the program
// bounds, and sends the lesson auto prompt through a full turn. A move
// that clamps back to the current lesson is a silent no-op. delta zero
// starts the first lesson of a fresh journey session.
func (c *Controller) NavigateJourney(ctx context.Context, sessionID string, delta int, sink orchestrator.Sink) (Message, error) {
	log := logging.Get(logging.CategoryJourney)

	c.mu.Lock()
	s, ok := c.sessions[sessionID]
	if !ok {
		c.mu.Unlock()
		return Message{}, ErrSessionNotFound
	}
	if s.Journey == nil {
		c.mu.Unlock()
		return Message{}, fmt.Errorf("session %s is not a journey session", sessionID)
	}
	prog, ok := c.programs[s.Journey.ProgramID]
	if !ok || len(prog.Lessons) == 0 {
		c.mu.Unlock()
		return Message{}, fmt.Errorf("journey program %q unavailable", s.Journey.ProgramID)
	}
	if s.busy {
		c.mu.Unlock()
		return Message{}, ErrSessionBusy
	}
	if s.awaitingID != 0 {
		c.mu.Unlock()
		return Message{}, ErrAwaitingAnswer
	}

	target := s.Journey.LessonIndex + delta
	if s.Journey.LessonIndex < 0 {
		target = 0
	}
	if target < 0 {
		target = 0
	}
	if target > len(prog.Lessons)-1 {
		target = len(prog.Lessons) - 1
	}
	if target == s.Journey.LessonIndex {
		c.mu.Unlock()
		log.Debug("navigation clamped to current lesson %d on session %s", target, sessionID)
		return Message{}, nil
	}

	prev := s.Journey.LessonIndex
	first := prev < 0
	s.Journey.LessonIndex = target
	lesson := prog.Lessons[target]
	c.mu.Unlock()

	var prompt string
	if first {
		prompt = firstLessonPrompt(prog, lesson)
	} else {
		prompt = nextLessonPrompt(lesson)
	}

	log.Info("session %s moving to lesson %d: %s", sessionID, target, lesson.Title)
	msg, err := c.send(ctx, sessionID, prompt, nil, true, 0, sink)
	if errors.Is(err, ErrSessionBusy) || errors.Is(err, ErrAwaitingAnswer) {
		// A concurrent turn slipped in between the guard check and the
		// send; the lesson never started, so the index rolls back.
		c.mu.Lock()
		if s.Journey != nil && s.Journey.LessonIndex == target {
			s.Journey.LessonIndex = prev
		}
		c.mu.Unlock()
	}
	return msg, err
}
