// Package gateway talks to the Gemini Generative Language API: conversation
// handles with replayed history, streaming message submission, delegated
// single-shot completions, and inline file attachments.
package gateway

// GeminiRequest is the request body for generateContent / streamGenerateContent.
type GeminiRequest struct {
	Contents          []GeminiContent        `json:"contents"`
	SystemInstruction *GeminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  GeminiGenerationConfig `json:"generationConfig"`
	Tools             []GeminiTool           `json:"tools,omitempty"`
}

// GeminiContent is a single turn in the provider conversation.
type GeminiContent struct {
	Role  string       `json:"role,omitempty"` // user, model, function
	Parts []GeminiPart `json:"parts"`
}

// GeminiPart is one piece of a content turn. Exactly one field is set.
type GeminiPart struct {
	Text             string                  `json:"text,omitempty"`
	InlineData       *GeminiInlineData       `json:"inlineData,omitempty"`
	FunctionCall     *GeminiFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *GeminiFunctionResponse `json:"functionResponse,omitempty"`
}

// GeminiInlineData carries base64 file content.
type GeminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// GeminiFunctionCall is a function invocation requested by the model.
type GeminiFunctionCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args,omitempty"`
}

// GeminiFunctionResponse carries a function result back to the model.
type GeminiFunctionResponse struct {
	Name     string                 `json:"name"`
	Response map[string]interface{} `json:"response"`
}

// GeminiGenerationConfig controls sampling.
type GeminiGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

// GeminiTool declares either function declarations or a built-in tool.
type GeminiTool struct {
	FunctionDeclarations []GeminiFunctionDeclaration `json:"functionDeclarations,omitempty"`
	GoogleSearch         *GeminiGoogleSearch         `json:"googleSearch,omitempty"`
}

// GeminiGoogleSearch enables Google Search grounding.
type GeminiGoogleSearch struct{}

// GeminiFunctionDeclaration describes one callable function.
type GeminiFunctionDeclaration struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// GeminiResponse is a generateContent response or one SSE stream chunk.
type GeminiResponse struct {
	Candidates []GeminiCandidate `json:"candidates"`
	Error      *GeminiError      `json:"error,omitempty"`
}

// GeminiCandidate is one response candidate.
type GeminiCandidate struct {
	Content      GeminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

// GeminiError is the API error envelope.
type GeminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Turn is one prior exchange turn used to rebuild a provider conversation.
type Turn struct {
	Role string // user or model
	Text string
}

// Attachment is a user-supplied file, content base64-encoded.
type Attachment struct {
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

// FunctionCall is a delegation request surfaced from a stream.
type FunctionCall struct {
	ID   string
	Name string
	Args map[string]interface{}
}

// FunctionResult is the outcome of a dispatched function call.
type FunctionResult struct {
	ID   string
	Name string
	Text string
}

// StreamEvent is a tagged variant emitted while streaming a model reply:
// either a TextFragment or a FunctionCallBatch.
type StreamEvent interface {
	streamEvent()
}

// TextFragment is an incremental piece of model text.
type TextFragment struct {
	Text string
}

// FunctionCallBatch carries every function call the model requested in
// one streamed reply, in arrival order.
type FunctionCallBatch struct {
	Calls []FunctionCall
}

func (TextFragment) streamEvent()      {}
func (FunctionCallBatch) streamEvent() {}
