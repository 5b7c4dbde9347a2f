package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"codesquad/internal/gateway"
	"codesquad/internal/logging"
	"codesquad/internal/persona"

	"golang.org/x/sync/errgroup"
)

// Substituted specialist outcomes. Dispatch failures never propagate;
// the squad leader receives these strings instead.
const (
	SpecialistErrorText = "Specialist AI encountered an error."
	SpecialistEmptyText = "No response from specialist."
)

// CompletionFunc produces a single-shot completion for a specialist.
type CompletionFunc func(ctx context.Context, systemInstruction, prompt string) (string, error)

// Dispatcher fans delegated function calls out to specialist personas.
type Dispatcher struct {
	complete CompletionFunc
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(complete CompletionFunc) *Dispatcher {
	return &Dispatcher{complete: complete}
}

// Dispatch runs every call concurrently and returns one result per call,
// in call order. Failures and empty replies are substituted, so the
// returned slice always matches len(calls) and the error is always nil
// per call. board carries the calling session's specialist statuses and
// may be nil.
func (d *Dispatcher) Dispatch(ctx context.Context, board *StatusBoard, calls []gateway.FunctionCall) []gateway.FunctionResult {
	log := logging.Get(logging.CategorySpecialist)
	results := make([]gateway.FunctionResult, len(calls))

	g, ctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			results[i] = gateway.FunctionResult{
				ID:   call.ID,
				Name: call.Name,
				Text: d.run(ctx, board, call),
			}
			return nil
		})
	}
	g.Wait()

	log.Info("dispatched %d specialist calls", len(calls))
	return results
}

func (d *Dispatcher) run(ctx context.Context, board *StatusBoard, call gateway.FunctionCall) string {
	log := logging.Get(logging.CategorySpecialist)

	mode, ok := persona.SpecialistFor(call.Name)
	if !ok {
		log.Warn("unknown delegation function: %s", call.Name)
		return SpecialistErrorText
	}

	if board != nil {
		board.Set(mode, StatusWorking)
	}

	task, _ := call.Args["task"].(string)
	prompt := task
	if strings.TrimSpace(prompt) == "" {
		prompt = fmt.Sprintf("Perform your specialty. Raw arguments: %v", call.Args)
	}

	text, err := d.complete(ctx, mode.SystemInstruction(), prompt)
	if err != nil {
		log.Error("%s failed: %v", call.Name, err)
		if board != nil {
			board.Set(mode, StatusError)
		}
		return SpecialistErrorText
	}

	if board != nil {
		board.Set(mode, StatusComplete)
	}
	if strings.TrimSpace(text) == "" {
		return SpecialistEmptyText
	}
	return text
}
