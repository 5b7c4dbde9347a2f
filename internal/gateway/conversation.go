package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"codesquad/internal/logging"
)

// Conversation is a stateful handle on one provider conversation. History
// accumulates across submissions; the session controller serializes turns,
// so at most one stream is active at a time.
type Conversation struct {
	client  *Client
	system  string
	history []GeminiContent
	tools   []GeminiTool

	// Function responses produced while a turn was paused, prepended to
	// the next submission so the provider never sees an unanswered call.
	pending []GeminiPart

	mu sync.Mutex
}

// History returns a copy of the accumulated provider contents.
func (cv *Conversation) History() []GeminiContent {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	out := make([]GeminiContent, len(cv.history))
	copy(out, cv.history)
	return out
}

// QueueFunctionResults stores function results to be delivered with the
// next submission.
func (cv *Conversation) QueueFunctionResults(results []FunctionResult) {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	cv.pending = append(cv.pending, functionResultParts(results)...)
}

// SendMessageStream submits message parts and streams the model reply.
// Any queued function results are delivered ahead of the new parts.
func (cv *Conversation) SendMessageStream(ctx context.Context, parts []GeminiPart) (<-chan StreamEvent, <-chan error) {
	cv.mu.Lock()
	var newContents []GeminiContent
	if len(cv.pending) > 0 {
		newContents = append(newContents, GeminiContent{Role: "function", Parts: cv.pending})
		cv.pending = nil
	}
	newContents = append(newContents, GeminiContent{Role: "user", Parts: parts})
	cv.mu.Unlock()

	return cv.stream(ctx, newContents)
}

// SendFunctionResults submits function results as a function-role turn and
// streams the follow-up model reply.
func (cv *Conversation) SendFunctionResults(ctx context.Context, results []FunctionResult) (<-chan StreamEvent, <-chan error) {
	newContents := []GeminiContent{
		{Role: "function", Parts: functionResultParts(results)},
	}
	return cv.stream(ctx, newContents)
}

func functionResultParts(results []FunctionResult) []GeminiPart {
	parts := make([]GeminiPart, 0, len(results))
	for _, r := range results {
		parts = append(parts, GeminiPart{
			FunctionResponse: &GeminiFunctionResponse{
				Name: r.Name,
				Response: map[string]interface{}{
					"content": r.Text,
				},
			},
		})
	}
	return parts
}

// stream appends newContents to the history, runs one streamed provider
// round, and appends the accumulated model reply on success.
func (cv *Conversation) stream(ctx context.Context, newContents []GeminiContent) (<-chan StreamEvent, <-chan error) {
	eventChan := make(chan StreamEvent, 100)
	errorChan := make(chan error, 1)

	c := cv.client
	log := logging.Get(logging.CategoryGateway)

	cv.mu.Lock()
	cv.history = append(cv.history, newContents...)
	contents := make([]GeminiContent, len(cv.history))
	copy(contents, cv.history)
	cv.mu.Unlock()

	go func() {
		defer close(eventChan)
		defer close(errorChan)

		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
			defer cancel()
		}

		startTime := time.Now()

		if c.apiKey == "" {
			errorChan <- fmt.Errorf("API key not configured")
			return
		}

		c.throttle()

		reqBody := GeminiRequest{
			Contents: contents,
			GenerationConfig: GeminiGenerationConfig{
				Temperature:     1.0,
				MaxOutputTokens: c.maxOutputTokens,
			},
			Tools: cv.tools,
		}
		if cv.system != "" {
			reqBody.SystemInstruction = &GeminiContent{
				Parts: []GeminiPart{{Text: cv.system}},
			}
		}

		url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", c.baseURL, c.model, c.apiKey)

		maxRetries := 3
		var lastErr error

		for attempt := 0; attempt <= maxRetries; attempt++ {
			if attempt > 0 {
				time.Sleep(time.Duration(1<<uint(attempt-1)) * time.Second)
			}

			jsonData, err := json.Marshal(reqBody)
			if err != nil {
				errorChan <- fmt.Errorf("failed to marshal request: %w", err)
				return
			}

			req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
			if err != nil {
				errorChan <- fmt.Errorf("failed to create request: %w", err)
				return
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Accept", "text/event-stream")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				lastErr = fmt.Errorf("request failed: %w", err)
				continue
			}

			if resp.StatusCode == http.StatusTooManyRequests {
				body, _ := io.ReadAll(resp.Body)
				resp.Body.Close()
				lastErr = fmt.Errorf("rate limit exceeded (429): %s", strings.TrimSpace(string(body)))
				continue
			}

			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(resp.Body)
				resp.Body.Close()
				errorChan <- fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
				return
			}

			var modelText strings.Builder
			var calls []FunctionCall
			var scanErr error

			scanner := bufio.NewScanner(resp.Body)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		scan:
			for scanner.Scan() {
				line := scanner.Text()
				if !strings.HasPrefix(line, "data:") {
					continue
				}
				data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
				if data == "" {
					continue
				}
				if data == "[DONE]" {
					break
				}

				var chunk GeminiResponse
				if err := json.Unmarshal([]byte(data), &chunk); err != nil {
					continue
				}
				if chunk.Error != nil {
					scanErr = fmt.Errorf("API error: %s", chunk.Error.Message)
					break
				}
				if len(chunk.Candidates) == 0 {
					continue
				}
				for _, part := range chunk.Candidates[0].Content.Parts {
					if part.FunctionCall != nil {
						calls = append(calls, FunctionCall{
							ID:   fmt.Sprintf("call_%d", len(calls)),
							Name: part.FunctionCall.Name,
							Args: part.FunctionCall.Args,
						})
						continue
					}
					if part.Text == "" {
						continue
					}
					modelText.WriteString(part.Text)
					select {
					case eventChan <- TextFragment{Text: part.Text}:
					case <-ctx.Done():
						resp.Body.Close()
						errorChan <- ctx.Err()
						return
					}
				}
				select {
				case <-ctx.Done():
					scanErr = ctx.Err()
					break scan
				default:
				}
			}
			if scanErr == nil {
				scanErr = scanner.Err()
			}
			resp.Body.Close()

			if scanErr != nil {
				log.Error("stream: failed after %v: %v", time.Since(startTime), scanErr)
				errorChan <- fmt.Errorf("stream error: %w", scanErr)
				return
			}

			if len(calls) > 0 {
				select {
				case eventChan <- FunctionCallBatch{Calls: calls}:
				case <-ctx.Done():
					errorChan <- ctx.Err()
					return
				}
			}

			cv.appendModelReply(modelText.String(), calls)
			log.Info("stream: completed in %v text_len=%d calls=%d", time.Since(startTime), modelText.Len(), len(calls))
			return
		}

		log.Error("stream: max retries exceeded after %v: %v", time.Since(startTime), lastErr)
		errorChan <- fmt.Errorf("max retries exceeded: %w", lastErr)
	}()

	return eventChan, errorChan
}

// appendModelReply records the streamed reply in the history.
func (cv *Conversation) appendModelReply(text string, calls []FunctionCall) {
	parts := make([]GeminiPart, 0, 1+len(calls))
	if text != "" {
		parts = append(parts, GeminiPart{Text: text})
	}
	for _, call := range calls {
		parts = append(parts, GeminiPart{
			FunctionCall: &GeminiFunctionCall{Name: call.Name, Args: call.Args},
		})
	}
	if len(parts) == 0 {
		return
	}
	cv.mu.Lock()
	cv.history = append(cv.history, GeminiContent{Role: "model", Parts: parts})
	cv.mu.Unlock()
}
