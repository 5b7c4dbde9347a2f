package gateway

import (
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
	"codesquad/internal/persona"
)

// Config configures the Gemini client.
type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	Timeout         time.Duration
	MaxOutputTokens int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:          apiKey,
		BaseURL:         "https://generativelanguage.googleapis.com/v1beta",
		Model:           "gemini-3-pro-preview",
		Timeout:         2 * time.Minute,
		MaxOutputTokens: 65536,
	}
}

// Client is a hand-rolled client for the Gemini REST API.
type Client struct {
	apiKey          string
	baseURL         string
	model           string
	maxOutputTokens int
	httpClient      *http.Client
	mu              sync.Mutex
	lastRequest     time.Time
}

// NewClient creates a Gemini client.
func NewClient(config Config) *Client {
	model := strings.TrimSpace(config.Model)
	if model == "" {
		model = "gemini-3-pro-preview"
	}
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	maxOutputTokens := config.MaxOutputTokens
	if maxOutputTokens == 0 {
		maxOutputTokens = 65536
	}

	return &Client{
		apiKey:          config.APIKey,
		baseURL:         baseURL,
		model:           model,
		maxOutputTokens: maxOutputTokens,
		httpClient:      &http.Client{Timeout: timeout},
	}
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// throttle enforces a minimum inter-request delay.
func (c *Client) throttle() {
	c.mu.Lock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < 100*time.Millisecond {
		time.Sleep(100*time.Millisecond - elapsed)
	}
	c.lastRequest = time.Now()
	c.mu.Unlock()
}

// StartConversation builds a conversation handle seeded with prior turns.
// The leading synthetic welcome turn and empty turns are dropped from the
// provider history. Squad mode attaches the delegation function set;
// academic mode attaches Google Search grounding.
func (c *Client) StartConversation(systemInstruction string, mode persona.Mode, prior []Turn) *Conversation {
	history := convertHistory(prior)

	var tools []GeminiTool
	switch mode {
	case persona.ModeSquad:
		decls := make([]GeminiFunctionDeclaration, 0, len(persona.Specialists))
		for _, s := range persona.Specialists {
			decls = append(decls, GeminiFunctionDeclaration{
				Name:        s.Function,
				Description: s.Description,
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"task": map[string]interface{}{
							"type":        "string",
							"description": "The sub-task for the specialist, with all context it needs.",
						},
					},
					"required": []interface{}{"task"},
				},
			})
		}
		tools = []GeminiTool{{FunctionDeclarations: decls}}
	case persona.ModeAcademic:
		tools = []GeminiTool{{GoogleSearch: &GeminiGoogleSearch{}}}
	}

	return &Conversation{
		client:  c,
		system:  systemInstruction,
		history: history,
		tools:   tools,
	}
}

// convertHistory maps prior turns into provider contents. A leading model
// turn starting with "Welcome" is the synthetic greeting the provider
// never produced; it is dropped along with empty turns.
func convertHistory(prior []Turn) []GeminiContent {
	contents := make([]GeminiContent, 0, len(prior))
	for i, turn := range prior {
		if i == 0 && turn.Role == "model" && strings.HasPrefix(turn.Text, "Welcome") {
			continue
		}
		if strings.TrimSpace(turn.Text) == "" {
			continue
		}
		role := turn.Role
		if role != "model" {
			role = "user"
		}
		contents = append(contents, GeminiContent{
			Role:  role,
			Parts: []GeminiPart{{Text: turn.Text}},
		})
	}
	return contents
}

// Complete sends a single prompt with a system instruction and returns the
// full completion. Used for specialist dispatches and driver meta calls.
func (c *Client) Complete(ctx context.Context, systemInstruction, prompt string) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	log := logging.Get(logging.CategoryGateway)
	startTime := time.Now()
	log.Debug("Complete: model=%s system_len=%d prompt_len=%d", c.model, len(systemInstruction), len(prompt))

	if c.apiKey == "" {
		return "", fmt.Errorf("API key not configured")
	}

	c.throttle()

	reqBody := GeminiRequest{
		Contents: []GeminiContent{
			{Role: "user", Parts: []GeminiPart{{Text: prompt}}},
		},
		GenerationConfig: GeminiGenerationConfig{
			Temperature:     1.0,
			MaxOutputTokens: c.maxOutputTokens,
		},
	}
	if systemInstruction != "" {
		reqBody.SystemInstruction = &GeminiContent{
			Parts: []GeminiPart{{Text: systemInstruction}},
		}
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	maxRetries := 3
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			time.Sleep(time.Duration(1<<uint(i-1)) * time.Second)
		}

		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return "", fmt.Errorf("failed to marshal request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
		if err != nil {
			return "", fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limit exceeded (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}

		var geminiResp GeminiResponse
		if err := json.Unmarshal(body, &geminiResp); err != nil {
			return "", fmt.Errorf("failed to parse response: %w", err)
		}
		if geminiResp.Error != nil {
			return "", fmt.Errorf("API error: %s", geminiResp.Error.Message)
		}
		if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
			return "", fmt.Errorf("no completion returned")
		}

		var result strings.Builder
		for _, part := range geminiResp.Candidates[0].Content.Parts {
			result.WriteString(part.Text)
		}
		response := strings.TrimSpace(result.String())

		log.Info("Complete: finished in %v response_len=%d", time.Since(startTime), len(response))
		return response, nil
	}

	log.Error("Complete: max retries exceeded after %v: %v", time.Since(startTime), lastErr)
	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}
