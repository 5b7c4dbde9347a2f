package orchestrator

import (
	"context"
	"regexp"
	"strings"

	"codesquad/internal/gateway"
	"codesquad/internal/logging"
)

// pauseMarker is the in-band marker the model emits to ask the user a
// question mid-turn.
var pauseMarker = regexp.MustCompile(`\[PAUSE_INTERACTION:\s*"([^"]+)"\]`)

const pauseMarkerLiteral = `[PAUSE_INTERACTION:`

// Streamer is the conversation surface the orchestrator drives.
// *gateway.Conversation satisfies it.
type Streamer interface {
	SendMessageStream(ctx context.Context, parts []gateway.GeminiPart) (<-chan gateway.StreamEvent, <-chan error)
	SendFunctionResults(ctx context.Context, results []gateway.FunctionResult) (<-chan gateway.StreamEvent, <-chan error)
	QueueFunctionResults(results []gateway.FunctionResult)
}

// TurnResult is the settled outcome of one turn.
type TurnResult struct {
	// Text is every emitted text chunk concatenated, across all rounds.
	Text string
	// Interaction is the pause prompt when the turn ended on a marker.
	Interaction string
	// Paused reports whether the turn ended awaiting a user answer.
	Paused bool
}

// Orchestrator runs turns against a conversation handle.
type Orchestrator struct {
	dispatcher *Dispatcher
}

// New creates an orchestrator backed by the given specialist dispatcher.
func New(dispatcher *Dispatcher) *Orchestrator {
	return &Orchestrator{dispatcher: dispatcher}
}

// RunTurn submits parts and streams events to the sink until the turn
// settles: the model finishes a round with no function calls, or emits a
// pause marker. Delegated calls are dispatched between rounds and their
// results fed back. Calls collected in a round that paused are still
// dispatched; their results are queued on the conversation for the next
// submission.
//
// board is the calling session's specialist status board; squad sessions
// pass theirs and it resets at turn start, every other mode passes nil
// and no board is touched.
func (o *Orchestrator) RunTurn(ctx context.Context, conv Streamer, board *StatusBoard, parts []gateway.GeminiPart, sink Sink) (TurnResult, error) {
	log := logging.Get(logging.CategoryOrchestrator)
	timer := logging.StartTimer(logging.CategoryOrchestrator, "turn")
	defer timer.Stop()

	if board != nil {
		board.Reset()
	}

	var total strings.Builder
	round := 0

	events, errs := conv.SendMessageStream(ctx, parts)
	for {
		round++
		outcome, err := o.runRound(events, errs, sink, &total)
		if err != nil {
			log.Error("round %d failed: %v", round, err)
			return TurnResult{Text: total.String()}, err
		}

		if outcome.paused {
			if len(outcome.calls) > 0 {
				// Answer the outstanding calls now; the replies ride along
				// with the user's next submission.
				results := o.dispatcher.Dispatch(ctx, board, outcome.calls)
				conv.QueueFunctionResults(results)
			}
			sink(Interaction{Prompt: outcome.prompt})
			log.Info("turn paused after %d round(s)", round)
			return TurnResult{Text: total.String(), Interaction: outcome.prompt, Paused: true}, nil
		}

		if len(outcome.calls) == 0 {
			log.Debug("turn settled after %d round(s) text_len=%d", round, total.Len())
			return TurnResult{Text: total.String()}, nil
		}

		results := o.dispatcher.Dispatch(ctx, board, outcome.calls)
		events, errs = conv.SendFunctionResults(ctx, results)
	}
}

type roundOutcome struct {
	calls  []gateway.FunctionCall
	paused bool
	prompt string
}

// runRound consumes one streamed round. Text before a pause marker is
// emitted exactly once; text after it is discarded. When no marker is
// found, everything is emitted, with a possible marker prefix held back
// until the stream proves it was plain text.
func (o *Orchestrator) runRound(events <-chan gateway.StreamEvent, errs <-chan error, sink Sink, total *strings.Builder) (roundOutcome, error) {
	var out roundOutcome
	var buffer strings.Builder
	emitted := 0

	emit := func(text string) {
		if text == "" {
			return
		}
		total.WriteString(text)
		sink(TextChunk{Text: text})
	}

	for ev := range events {
		switch ev := ev.(type) {
		case gateway.TextFragment:
			if out.paused {
				continue
			}
			buffer.WriteString(ev.Text)
			buf := buffer.String()

			if loc := pauseMarker.FindStringSubmatchIndex(buf); loc != nil {
				if loc[0] > emitted {
					emit(buf[emitted:loc[0]])
				}
				emitted = len(buf)
				out.paused = true
				out.prompt = buf[loc[2]:loc[3]]
				continue
			}

			safe := len(buf)
			if hold := pendingMarkerStart(buf[emitted:]); hold >= 0 {
				safe = emitted + hold
			}
			if safe > emitted {
				emit(buf[emitted:safe])
				emitted = safe
			}

		case gateway.FunctionCallBatch:
			out.calls = append(out.calls, ev.Calls...)
		}
	}

	if err := <-errs; err != nil {
		return out, err
	}

	// Stream ended without completing a marker; the held-back suffix was
	// ordinary text.
	if !out.paused {
		buf := buffer.String()
		if emitted < len(buf) {
			emit(buf[emitted:])
		}
	}
	return out, nil
}

// pendingMarkerStart returns the offset of a trailing substring that may
// still grow into a pause marker, or -1 when the tail is settled text.
func pendingMarkerStart(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] != '[' {
			continue
		}
		suffix := s[i:]
		if len(suffix) < len(pauseMarkerLiteral) {
			if strings.HasPrefix(pauseMarkerLiteral, suffix) {
				return i
			}
			continue
		}
		if strings.HasPrefix(suffix, pauseMarkerLiteral) && !strings.Contains(suffix, "]") {
			return i
		}
	}
	return -1
}
