package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"codesquad/internal/gateway"
	"codesquad/internal/orchestrator"
	"codesquad/internal/persona"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopStreamer struct{}

func (nopStreamer) SendMessageStream(context.Context, []gateway.GeminiPart) (<-chan gateway.StreamEvent, <-chan error) {
	return nil, nil
}
func (nopStreamer) SendFunctionResults(context.Context, []gateway.FunctionResult) (<-chan gateway.StreamEvent, <-chan error) {
	return nil, nil
}
func (nopStreamer) QueueFunctionResults([]gateway.FunctionResult) {}

// scriptedTurn is one canned RunTurn outcome.
type scriptedTurn struct {
	events  []orchestrator.Event
	result  orchestrator.TurnResult
	err     error
	block   chan struct{} // when set, RunTurn waits on it after sinking events
	started chan struct{} // when set, closed once the events are sunk
}

type fakeRunner struct {
	mu     sync.Mutex
	turns  []scriptedTurn
	calls  int
	boards []*orchestrator.StatusBoard
}

func (r *fakeRunner) RunTurn(ctx context.Context, conv orchestrator.Streamer, board *orchestrator.StatusBoard, parts []gateway.GeminiPart, sink orchestrator.Sink) (orchestrator.TurnResult, error) {
	r.mu.Lock()
	i := r.calls
	r.calls++
	r.boards = append(r.boards, board)
	r.mu.Unlock()

	if i >= len(r.turns) {
		return orchestrator.TurnResult{Text: "reply"}, nil
	}
	t := r.turns[i]
	for _, ev := range t.events {
		sink(ev)
	}
	if t.started != nil {
		close(t.started)
	}
	if t.block != nil {
		<-t.block
	}
	return t.result, t.err
}

func newTestController(runner *fakeRunner, opts Options) *Controller {
	if runner == nil {
		runner = &fakeRunner{}
	}
	factory := func(system string, mode persona.Mode, prior []gateway.Turn) orchestrator.Streamer {
		return nopStreamer{}
	}
	complete := func(ctx context.Context, system, prompt string) (string, error) {
		return "", nil
	}
	return NewController(factory, runner, complete, nil, opts)
}

func mustCreate(t *testing.T, c *Controller, p CreateParams) Snapshot {
	t.Helper()
	snap, err := c.CreateSession(p)
	require.NoError(t, err)
	return snap
}

func TestCreateSessionWelcomeMessage(t *testing.T) {
	c := newTestController(nil, Options{})
	snap := mustCreate(t, c, CreateParams{Mode: persona.ModeBuild})

	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "ai", snap.Messages[0].Sender)
	assert.Equal(t, "Welcome to your new **Build** session! How can I help?", snap.Messages[0].Content)
}

func TestCreateSessionCap(t *testing.T) {
	c := newTestController(nil, Options{MaxSessions: 6})
	for i := 0; i < 6; i++ {
		mustCreate(t, c, CreateParams{Mode: persona.ModeLearn})
	}

	_, err := c.CreateSession(CreateParams{Mode: persona.ModeLearn})
	assert.ErrorIs(t, err, ErrTooManySessions)
	assert.Len(t, c.Sessions(), 6, "rejected create must not touch the list")
}

func TestCreateSessionCustomName(t *testing.T) {
	c := newTestController(nil, Options{})
	snap := mustCreate(t, c, CreateParams{
		Mode:   persona.ModeCustom,
		Custom: &persona.CustomConfig{Name: "Rust Tutor", Prompt: "teach rust"},
	})
	assert.Equal(t, "Rust Tutor", snap.Name)
	assert.Contains(t, snap.Messages[0].Content, "**Rust Tutor**")
}

func TestCreateSessionUnknownMode(t *testing.T) {
	c := newTestController(nil, Options{})
	_, err := c.CreateSession(CreateParams{Mode: "nonsense"})
	require.Error(t, err)
}

func TestSendAppendsUserAndReply(t *testing.T) {
	runner := &fakeRunner{turns: []scriptedTurn{{
		events: []orchestrator.Event{orchestrator.TextChunk{Text: "Hi "}, orchestrator.TextChunk{Text: "there"}},
		result: orchestrator.TurnResult{Text: "Hi there"},
	}}}
	c := newTestController(runner, Options{})
	snap := mustCreate(t, c, CreateParams{Mode: persona.ModeBuild})

	var streamed []orchestrator.Event
	reply, err := c.Send(context.Background(), snap.ID, "hello", nil, func(ev orchestrator.Event) {
		streamed = append(streamed, ev)
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi there", reply.Content)
	assert.Len(t, streamed, 2)

	got, ok := c.Get(snap.ID)
	require.True(t, ok)
	// Welcome, user message, AI reply.
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "user", got.Messages[1].Sender)
	assert.Equal(t, "hello", got.Messages[1].Content)
}

func TestSendUnknownSession(t *testing.T) {
	c := newTestController(nil, Options{})
	_, err := c.Send(context.Background(), "missing", "hi", nil, nil)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSendWhileBusy(t *testing.T) {
	gate := make(chan struct{})
	started := make(chan struct{})
	runner := &fakeRunner{turns: []scriptedTurn{{
		block:   gate,
		started: started,
		result:  orchestrator.TurnResult{Text: "slow"},
	}}}
	c := newTestController(runner, Options{})
	snap := mustCreate(t, c, CreateParams{Mode: persona.ModeBuild})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := c.Send(context.Background(), snap.ID, "first", nil, nil)
		assert.NoError(t, err)
	}()

	<-started
	_, err := c.Send(context.Background(), snap.ID, "second", nil, nil)
	assert.ErrorIs(t, err, ErrSessionBusy)

	close(gate)
	<-done
}

func TestInteractionLifecycle(t *testing.T) {
	runner := &fakeRunner{turns: []scriptedTurn{
		{
			events: []orchestrator.Event{
				orchestrator.TextChunk{Text: "Before. "},
				orchestrator.Interaction{Prompt: "Which one?"},
			},
			result: orchestrator.TurnResult{Text: "Before. ", Interaction: "Which one?", Paused: true},
		},
		{result: orchestrator.TurnResult{Text: "Going with A."}},
	}}
	c := newTestController(runner, Options{})
	snap := mustCreate(t, c, CreateParams{Mode: persona.ModeSquad})

	reply, err := c.Send(context.Background(), snap.ID, "pick one", nil, nil)
	require.NoError(t, err)
	require.NotNil(t, reply.Interaction)
	assert.Equal(t, "Which one?", reply.Interaction.Prompt)

	// New input is refused until the interaction is answered.
	_, err = c.Send(context.Background(), snap.ID, "another", nil, nil)
	assert.ErrorIs(t, err, ErrAwaitingAnswer)

	// Answering an unrelated message ID is refused.
	_, err = c.SubmitAnswer(context.Background(), snap.ID, reply.ID+100, "A", nil)
	assert.ErrorIs(t, err, ErrNoPendingInteraction)

	resumed, err := c.SubmitAnswer(context.Background(), snap.ID, reply.ID, "A", nil)
	require.NoError(t, err)
	assert.Equal(t, "Going with A.", resumed.Content)

	got, _ := c.Get(snap.ID)
	var interaction *MessageSnapshot
	for i := range got.Messages {
		if got.Messages[i].Interaction != nil {
			interaction = &got.Messages[i]
		}
	}
	require.NotNil(t, interaction)
	assert.Equal(t, "A", interaction.Interaction.SubmittedAnswer)

	// The answer threads back through the interaction message and the
	// earlier exchange to the session root.
	thread, err := c.Thread(snap.ID, resumed.ID-1)
	require.NoError(t, err)
	require.Len(t, thread, 4)
	assert.Equal(t, "A", thread[len(thread)-1].Content)
	assert.Equal(t, "Which one?", thread[len(thread)-2].Interaction.Prompt)
}

func TestSendLinksMessagesIntoThread(t *testing.T) {
	c := newTestController(nil, Options{})
	snap := mustCreate(t, c, CreateParams{Mode: persona.ModeBuild})

	_, err := c.Send(context.Background(), snap.ID, "first", nil, nil)
	require.NoError(t, err)
	reply, err := c.Send(context.Background(), snap.ID, "second", nil, nil)
	require.NoError(t, err)

	// welcome, first, reply, second, reply: one unbroken chain.
	thread, err := c.Thread(snap.ID, reply.ID)
	require.NoError(t, err)
	require.Len(t, thread, 5)
	assert.Contains(t, thread[0].Content, "Welcome")
	assert.Equal(t, "second", thread[3].Content)

	// Every message after the root carries its parent on the wire.
	got, _ := c.Get(snap.ID)
	for i, m := range got.Messages[1:] {
		assert.NotNil(t, m.ParentTimestamp, "message %d should link to its predecessor", i+1)
	}
}

func TestStreamedChunksVisibleMidTurn(t *testing.T) {
	gate := make(chan struct{})
	started := make(chan struct{})
	runner := &fakeRunner{turns: []scriptedTurn{{
		events:  []orchestrator.Event{orchestrator.TextChunk{Text: "Stream"}, orchestrator.TextChunk{Text: "ing"}},
		result:  orchestrator.TurnResult{Text: "Streaming"},
		block:   gate,
		started: started,
	}}}
	c := newTestController(runner, Options{})
	snap := mustCreate(t, c, CreateParams{Mode: persona.ModeBuild})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := c.Send(context.Background(), snap.ID, "go", nil, nil)
		assert.NoError(t, err)
	}()

	// While the turn is still running, the log ends in an open AI message
	// holding the chunks streamed so far.
	<-started
	got, ok := c.Get(snap.ID)
	require.True(t, ok)
	require.Len(t, got.Messages, 3)
	last := got.Messages[len(got.Messages)-1]
	assert.Equal(t, "ai", last.Sender)
	assert.Equal(t, "Streaming", last.Content)

	close(gate)
	<-done

	got, _ = c.Get(snap.ID)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "Streaming", got.Messages[2].Content)
}

func TestSpecialistBoardScopedToSquadSession(t *testing.T) {
	runner := &fakeRunner{}
	c := newTestController(runner, Options{})
	squad := mustCreate(t, c, CreateParams{Mode: persona.ModeSquad})
	learn := mustCreate(t, c, CreateParams{Mode: persona.ModeLearn})

	_, err := c.Send(context.Background(), squad.ID, "delegate this", nil, nil)
	require.NoError(t, err)
	_, err = c.Send(context.Background(), learn.ID, "just chat", nil, nil)
	require.NoError(t, err)

	runner.mu.Lock()
	boards := append([]*orchestrator.StatusBoard(nil), runner.boards...)
	runner.mu.Unlock()
	require.Len(t, boards, 2)
	assert.NotNil(t, boards[0], "squad turn carries the session board")
	assert.Nil(t, boards[1], "non-squad turn carries no board")

	statuses, err := c.SpecialistStatus(squad.ID)
	require.NoError(t, err)
	assert.Len(t, statuses, len(persona.Specialists))
	assert.Equal(t, orchestrator.StatusIdle, statuses[persona.ModeBuild])

	statuses, err = c.SpecialistStatus(learn.ID)
	require.NoError(t, err)
	assert.Empty(t, statuses)

	_, err = c.SpecialistStatus("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestTurnErrorSubstitutesApology(t *testing.T) {
	runner := &fakeRunner{turns: []scriptedTurn{{
		err: fmt.Errorf("provider exploded"),
	}}}
	c := newTestController(runner, Options{})
	snap := mustCreate(t, c, CreateParams{Mode: persona.ModeDebug})

	reply, err := c.Send(context.Background(), snap.ID, "hi", nil, nil)
	require.Error(t, err)
	assert.Equal(t, "Sorry, I encountered an error. Please try again.", reply.Content)

	// The apology lands in the log so the conversation can continue.
	got, _ := c.Get(snap.ID)
	assert.Equal(t, reply.Content, got.Messages[len(got.Messages)-1].Content)
}

func TestCloseSession(t *testing.T) {
	c := newTestController(nil, Options{})
	snap := mustCreate(t, c, CreateParams{Mode: persona.ModeBuild})

	c.CloseSession(snap.ID)
	assert.Empty(t, c.Sessions())

	// Closing again, or an unknown ID, is a silent no-op.
	c.CloseSession(snap.ID)
	c.CloseSession("never-existed")
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	runner := &fakeRunner{turns: []scriptedTurn{{
		result: orchestrator.TurnResult{Text: "Pick: ", Interaction: "Red or blue?", Paused: true},
	}}}
	c := newTestController(runner, Options{})
	snap := mustCreate(t, c, CreateParams{Mode: persona.ModeSquad})
	_, err := c.Send(context.Background(), snap.ID, "decide", nil, nil)
	require.NoError(t, err)

	saved := c.Sessions()
	require.Len(t, saved, 1)
	require.NotNil(t, saved[0].Messages[len(saved[0].Messages)-1].Interaction)

	restored := newTestController(&fakeRunner{}, Options{})
	restored.Restore(saved)

	got, ok := restored.Get(snap.ID)
	require.True(t, ok)
	assert.Equal(t, len(saved[0].Messages), len(got.Messages))

	// The unanswered interaction still guards the session.
	_, err = restored.Send(context.Background(), snap.ID, "hi", nil, nil)
	assert.ErrorIs(t, err, ErrAwaitingAnswer)
}

func TestRestoreResolvesParentTimestamps(t *testing.T) {
	ts1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ts2 := ts1.Add(time.Minute)
	snap := Snapshot{
		ID:   "s1",
		Name: "Squad",
		Mode: "squad",
		Messages: []MessageSnapshot{
			{Sender: "ai", Content: "q", Timestamp: ts1,
				Interaction: &InteractionPrompt{Prompt: "q", SubmittedAnswer: "a"}},
			{Sender: "user", Content: "a", Timestamp: ts2, ParentTimestamp: &ts1},
		},
	}

	c := newTestController(nil, Options{})
	c.Restore([]Snapshot{snap})

	thread, err := c.Thread("s1", 2)
	require.NoError(t, err)
	require.Len(t, thread, 2)
	assert.Equal(t, "q", thread[0].Content)
	assert.Equal(t, "a", thread[1].Content)
}

func TestRestoreRespectsCap(t *testing.T) {
	var snaps []Snapshot
	for i := 0; i < 8; i++ {
		snaps = append(snaps, Snapshot{ID: fmt.Sprintf("s%d", i), Mode: "build"})
	}
	c := newTestController(nil, Options{MaxSessions: 6})
	c.Restore(snaps)
	assert.Len(t, c.Sessions(), 6)
}
