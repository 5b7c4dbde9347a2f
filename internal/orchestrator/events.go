// Package orchestrator runs model turns: it streams rounds from a
// conversation handle, detects pause markers, dispatches delegated
// specialist calls, and feeds results back until the turn settles.
package orchestrator

// Event is a tagged variant delivered to the turn sink in order:
// either a TextChunk or an Interaction.
type Event interface {
	turnEvent()
}

// TextChunk is an incremental piece of assistant text.
type TextChunk struct {
	Text string
}

// Interaction is a question the model asked the user via a pause marker.
// It is always the final event of its turn.
type Interaction struct {
	Prompt string
}

func (TextChunk) turnEvent()   {}
func (Interaction) turnEvent() {}

// Sink receives turn events in emission order.
type Sink func(Event)
