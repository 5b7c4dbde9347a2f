package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"codesquad/internal/gateway"
	"codesquad/internal/logging"
	"codesquad/internal/orchestrator"
	"codesquad/internal/persona"

	"github.com/google/uuid"
)

// DefaultMaxSessions caps the session dock.
const DefaultMaxSessions = 6

// Fixed user-visible strings.
const (
	welcomeFormat = "Welcome to your new **%s** session! How can I help?"
	apologyText   = "Sorry, I encountered an error. Please try again."
)

// Controller guard errors.
var (
	ErrTooManySessions      = errors.New("session limit reached")
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionBusy          = errors.New("session is busy")
	ErrAwaitingAnswer       = errors.New("session is awaiting an interaction answer")
	ErrNoPendingInteraction = errors.New("no pending interaction")
)

// ConversationFactory opens a provider conversation for a session.
type ConversationFactory func(systemInstruction string, mode persona.Mode, prior []gateway.Turn) orchestrator.Streamer

// TurnRunner runs one turn against a conversation. *orchestrator.Orchestrator
// satisfies it.
type TurnRunner interface {
	RunTurn(ctx context.Context, conv orchestrator.Streamer, board *orchestrator.StatusBoard, parts []gateway.GeminiPart, sink orchestrator.Sink) (orchestrator.TurnResult, error)
}

// Completer produces single-shot completions for the driver meta calls.
type Completer func(ctx context.Context, systemInstruction, prompt string) (string, error)

// Saver persists session snapshots.
type Saver interface {
	SaveAll(snapshots []Snapshot) error
}

// Options tunes controller behavior. Zero values fall back to defaults.
type Options struct {
	MaxSessions int
	DriverDelay time.Duration
	Programs    []Program
}

// Controller owns every session: creation against the cap, per-session
// turn serialization, the awaiting-answer protocol, driving, and journeys.
type Controller struct {
	factory  ConversationFactory
	runner   TurnRunner
	complete Completer
	saver    Saver

	maxSessions int
	driverDelay time.Duration
	programs    map[string]Program

	mu       sync.Mutex
	sessions map[string]*Session
	order    []string
}

// NewController wires a controller. saver may be nil for in-memory use.
func NewController(factory ConversationFactory, runner TurnRunner, complete Completer, saver Saver, opts Options) *Controller {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.DriverDelay <= 0 {
		opts.DriverDelay = 2 * time.Second
	}
	programs := make(map[string]Program, len(opts.Programs))
	for _, p := range opts.Programs {
		programs[p.ID] = p
	}

	return &Controller{
		factory:     factory,
		runner:      runner,
		complete:    complete,
		saver:       saver,
		maxSessions: opts.MaxSessions,
		driverDelay: opts.DriverDelay,
		programs:    programs,
		sessions:    make(map[string]*Session),
	}
}

// CreateParams describes a new session.
type CreateParams struct {
	Mode      persona.Mode
	Name      string
	Custom    *persona.CustomConfig
	ProgramID string // journey mode only
}

// CreateSession adds a session. At the cap it returns ErrTooManySessions
// and the session list is untouched. Non-journey sessions open with the
// synthetic welcome message.
func (c *Controller) CreateSession(p CreateParams) (Snapshot, error) {
	log := logging.Get(logging.CategorySession)

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.sessions) >= c.maxSessions {
		log.Warn("create rejected: %d sessions already open", len(c.sessions))
		return Snapshot{}, ErrTooManySessions
	}
	if !p.Mode.Valid() {
		return Snapshot{}, fmt.Errorf("unknown mode %q", p.Mode)
	}

	name := p.Name
	if name == "" {
		if p.Mode == persona.ModeCustom && p.Custom != nil && p.Custom.Name != "" {
			name = p.Custom.Name
		} else {
			name = p.Mode.DisplayName()
		}
	}

	s := &Session{
		ID:     uuid.NewString(),
		Name:   name,
		Mode:   p.Mode,
		Custom: p.Custom,
	}

	if p.Mode == persona.ModeSquad {
		s.board = orchestrator.NewStatusBoard(nil)
	}

	if p.Mode == persona.ModeJourney {
		prog, ok := c.programs[p.ProgramID]
		if !ok {
			return Snapshot{}, fmt.Errorf("unknown journey program %q", p.ProgramID)
		}
		s.Journey = &JourneyState{ProgramID: prog.ID, LessonIndex: -1}
	} else {
		s.appendMessage(Message{
			Sender:  SenderAI,
			Content: fmt.Sprintf(welcomeFormat, name),
		})
	}

	c.sessions[s.ID] = s
	c.order = append(c.order, s.ID)
	log.Info("created session %s mode=%s (%d open)", s.ID, s.Mode, len(c.sessions))

	snap := snapshotOf(s)
	go c.persist()
	return snap, nil
}

// CloseSession removes a session. Closing an unknown ID is a no-op.
func (c *Controller) CloseSession(id string) {
	c.mu.Lock()
	if _, ok := c.sessions[id]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.sessions, id)
	for i, sid := range c.order {
		if sid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.mu.Unlock()

	logging.Get(logging.CategorySession).Info("closed session %s", id)
	c.persist()
}

// Sessions returns snapshots in creation order.
func (c *Controller) Sessions() []Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Snapshot, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, snapshotOf(c.sessions[id]))
	}
	return out
}

// Get returns a snapshot of one session.
func (c *Controller) Get(id string) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	if !ok {
		return Snapshot{}, false
	}
	return snapshotOf(s), true
}

// Thread returns the parent-link chain ending at messageID, root first.
func (c *Controller) Thread(sessionID string, messageID int64) ([]Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.Thread(messageID), nil
}

// SpecialistStatus returns the session's specialist status map. Non-squad
// sessions have no specialists and return an empty map.
func (c *Controller) SpecialistStatus(sessionID string) (map[persona.Mode]orchestrator.Status, error) {
	c.mu.Lock()
	s, ok := c.sessions[sessionID]
	if !ok {
		c.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	board := s.board
	c.mu.Unlock()

	if board == nil {
		return map[persona.Mode]orchestrator.Status{}, nil
	}
	return board.Snapshot(), nil
}

// Send runs a user message through a full turn, streaming events to the
// sink. The returned message is the settled AI reply; on turn failure the
// reply carries the apology text and the error is returned alongside.
func (c *Controller) Send(ctx context.Context, sessionID, text string, files []gateway.Attachment, sink orchestrator.Sink) (Message, error) {
	return c.send(ctx, sessionID, text, files, false, 0, sink)
}

func (c *Controller) send(ctx context.Context, sessionID, text string, files []gateway.Attachment, auto bool, parentID int64, sink orchestrator.Sink) (Message, error) {
	log := logging.Get(logging.CategorySession)
	if sink == nil {
		sink = func(orchestrator.Event) {}
	}

	c.mu.Lock()
	s, ok := c.sessions[sessionID]
	if !ok {
		c.mu.Unlock()
		return Message{}, ErrSessionNotFound
	}
	if s.busy {
		c.mu.Unlock()
		return Message{}, ErrSessionBusy
	}
	if s.awaitingID != 0 {
		c.mu.Unlock()
		return Message{}, ErrAwaitingAnswer
	}
	s.busy = true

	if s.conv == nil {
		s.conv = c.factory(s.instruction(), s.Mode, s.turns())
	}
	conv := s.conv
	mode := s.Mode
	board := s.board

	// Every message chains to its predecessor; answers carry the
	// interaction message instead.
	if parentID == 0 && len(s.Messages) > 0 {
		parentID = s.Messages[len(s.Messages)-1].ID
	}
	userID := s.appendMessage(Message{
		Sender:        SenderUser,
		Content:       text,
		AttachedFiles: files,
		IsAutoPrompt:  auto,
		ParentID:      parentID,
	}).ID

	// The reply is appended open and empty now, and mutated in place as
	// chunks stream in, so a mid-turn snapshot shows the partial text.
	openID := s.appendMessage(Message{Sender: SenderAI, ParentID: userID}).ID
	c.mu.Unlock()

	streamSink := func(ev orchestrator.Event) {
		if chunk, ok := ev.(orchestrator.TextChunk); ok {
			c.mu.Lock()
			if m := s.messageByID(openID); m != nil {
				m.Content += chunk.Text
			}
			c.mu.Unlock()
		}
		sink(ev)
	}

	parts := gateway.BuildMessageParts(text, files, mode)
	result, err := c.runner.RunTurn(ctx, conv, board, parts, streamSink)

	c.mu.Lock()
	s.busy = false

	open := s.messageByID(openID)
	if err != nil {
		log.Error("turn failed on session %s: %v", sessionID, err)
		open.Content = apologyText
		s.Driving = false
	} else {
		open.Content = result.Text
		if result.Paused {
			open.Interaction = &InteractionPrompt{Prompt: result.Interaction}
			s.awaitingID = openID
		}
	}
	reply := *open
	rearm := err == nil && !result.Paused && s.Driving
	c.mu.Unlock()

	c.persist()
	if rearm {
		c.scheduleDrive(sessionID)
	}
	return reply, err
}

// SubmitAnswer records the answer on the pending interaction and resumes
// the conversation with it. messageID zero means "the pending one".
func (c *Controller) SubmitAnswer(ctx context.Context, sessionID string, messageID int64, answer string, sink orchestrator.Sink) (Message, error) {
	c.mu.Lock()
	s, ok := c.sessions[sessionID]
	if !ok {
		c.mu.Unlock()
		return Message{}, ErrSessionNotFound
	}
	if s.busy {
		c.mu.Unlock()
		return Message{}, ErrSessionBusy
	}
	if s.awaitingID == 0 || (messageID != 0 && messageID != s.awaitingID) {
		c.mu.Unlock()
		return Message{}, ErrNoPendingInteraction
	}

	parent := s.awaitingID
	if m := s.messageByID(parent); m != nil && m.Interaction != nil {
		m.Interaction.SubmittedAnswer = answer
	}
	s.awaitingID = 0
	c.mu.Unlock()

	return c.send(ctx, sessionID, answer, nil, false, parent, sink)
}

// persist saves all snapshots, best effort.
func (c *Controller) persist() {
	if c.saver == nil {
		return
	}
	if err := c.saver.SaveAll(c.Sessions()); err != nil {
		logging.Get(logging.CategoryStore).Error("snapshot save failed: %v", err)
	}
}
