package persona

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"honeypot-lab/pkg/logger"
)

const (
	defaultClaudeURL = "https://api.anthropic.com/v1/messages"
	defaultOpenAIURL = "https://api.openai.com/v1/chat/completions"
	defaultGeminiURL = "https://generativelanguage.googleapis.com/v1beta/models"
)

// LLMClient talks to a chat completion API
type LLMClient struct {
	httpClient *http.Client
	logger     *logger.Logger
	config     LLMConfig
}

// LLMConfig holds LLM client configuration
type LLMConfig struct {
	Provider     string // gemini, claude, openai
	GoogleAPIKey string
	ClaudeAPIKey string
	OpenAIAPIKey string
	Model        string
	Temperature  float64
	MaxTokens    int
	Timeout      time.Duration

	// Endpoint overrides, used by tests and proxies
	GeminiURL string
	ClaudeURL string
	OpenAIURL string
}

// NewLLMClient creates a new LLM client
func NewLLMClient(cfg LLMConfig, log *logger.Logger) *LLMClient {
	if cfg.Provider == "" {
		cfg.Provider = "gemini"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.9 // varied, human-sounding replies
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 150
	}
	if cfg.Model == "" {
		switch cfg.Provider {
		case "claude":
			cfg.Model = "claude-3-5-haiku-latest"
		case "openai":
			cfg.Model = "gpt-4o-mini"
		default:
			cfg.Model = "gemini-2.0-flash"
		}
	}
	if cfg.GeminiURL == "" {
		cfg.GeminiURL = defaultGeminiURL
	}
	if cfg.ClaudeURL == "" {
		cfg.ClaudeURL = defaultClaudeURL
	}
	if cfg.OpenAIURL == "" {
		cfg.OpenAIURL = defaultOpenAIURL
	}

	return &LLMClient{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: log.WithComponent("llm-client"),
		config: cfg,
	}
}

// Provider returns the configured backend name
func (c *LLMClient) Provider() string {
	return c.config.Provider
}

// Message represents a chat message
type Message struct {
	Role string `json:"role"` // user or assistant
	Text string `json:"text"`
}

// CompletionResponse represents a completion response
type CompletionResponse struct {
	Content    string
	StopReason string
	Usage      struct {
		InputTokens  int
		OutputTokens int
	}
}

// Chat sends the conversation and returns the model's text
func (c *LLMClient) Chat(ctx context.Context, messages []Message, system string) (string, error) {
	var response *CompletionResponse
	var err error

	switch c.config.Provider {
	case "gemini":
		response, err = c.callGemini(ctx, system, messages)
	case "claude":
		response, err = c.callClaude(ctx, system, messages)
	case "openai":
		response, err = c.callOpenAI(ctx, system, messages)
	default:
		return "", fmt.Errorf("unsupported provider: %s", c.config.Provider)
	}

	if err != nil {
		return "", err
	}

	c.logger.Debug().
		Str("provider", c.config.Provider).
		Str("stop_reason", response.StopReason).
		Int("input_tokens", response.Usage.InputTokens).
		Int("output_tokens", response.Usage.OutputTokens).
		Msg("completion received")

	return response.Content, nil
}

// post sends a JSON body and returns the raw response body on HTTP 200
func (c *LLMClient) post(ctx context.Context, provider, url string, payload any, headers map[string]string) ([]byte, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s API error %d: %s", provider, resp.StatusCode, string(body))
	}
	return body, nil
}

// callGemini makes a request to the Gemini generateContent API
func (c *LLMClient) callGemini(ctx context.Context, system string, messages []Message) (*CompletionResponse, error) {
	url := fmt.Sprintf("%s/%s:generateContent", c.config.GeminiURL, c.config.Model)

	type part struct {
		Text string `json:"text"`
	}
	type content struct {
		Role  string `json:"role,omitempty"`
		Parts []part `json:"parts"`
	}

	contents := make([]content, len(messages))
	for i, msg := range messages {
		role := msg.Role
		if role == "assistant" {
			role = "model"
		}
		contents[i] = content{Role: role, Parts: []part{{Text: msg.Text}}}
	}

	reqBody := map[string]any{
		"contents": contents,
		"generationConfig": map[string]any{
			"temperature":     c.config.Temperature,
			"topP":            0.95,
			"topK":            40,
			"maxOutputTokens": c.config.MaxTokens,
		},
	}
	if system != "" {
		reqBody["systemInstruction"] = content{Parts: []part{{Text: system}}}
	}

	body, err := c.post(ctx, "Gemini", url, reqBody, map[string]string{
		"x-goog-api-key": c.config.GoogleAPIKey,
	})
	if err != nil {
		return nil, err
	}

	var geminiResp struct {
		Candidates []struct {
			Content struct {
				Parts []part `json:"parts"`
			} `json:"content"`
			FinishReason string `json:"finishReason"`
		} `json:"candidates"`
		UsageMetadata struct {
			PromptTokenCount     int `json:"promptTokenCount"`
			CandidatesTokenCount int `json:"candidatesTokenCount"`
		} `json:"usageMetadata"`
	}

	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return nil, err
	}

	if len(geminiResp.Candidates) == 0 {
		return nil, fmt.Errorf("no response from Gemini")
	}

	resp := &CompletionResponse{StopReason: geminiResp.Candidates[0].FinishReason}
	for _, p := range geminiResp.Candidates[0].Content.Parts {
		resp.Content += p.Text
	}
	resp.Usage.InputTokens = geminiResp.UsageMetadata.PromptTokenCount
	resp.Usage.OutputTokens = geminiResp.UsageMetadata.CandidatesTokenCount
	return resp, nil
}

// callClaude makes a request to Claude API
func (c *LLMClient) callClaude(ctx context.Context, system string, messages []Message) (*CompletionResponse, error) {
	claudeMessages := make([]map[string]any, len(messages))
	for i, msg := range messages {
		claudeMessages[i] = map[string]any{
			"role": msg.Role,
			"content": []map[string]string{
				{"type": "text", "text": msg.Text},
			},
		}
	}

	reqBody := map[string]any{
		"model":       c.config.Model,
		"max_tokens":  c.config.MaxTokens,
		"temperature": c.config.Temperature,
		"system":      system,
		"messages":    claudeMessages,
	}

	body, err := c.post(ctx, "Claude", c.config.ClaudeURL, reqBody, map[string]string{
		"x-api-key":         c.config.ClaudeAPIKey,
		"anthropic-version": "2023-06-01",
	})
	if err != nil {
		return nil, err
	}

	var claudeResp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		StopReason string `json:"stop_reason"`
		Usage      struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}

	if err := json.Unmarshal(body, &claudeResp); err != nil {
		return nil, err
	}

	resp := &CompletionResponse{StopReason: claudeResp.StopReason}
	for _, block := range claudeResp.Content {
		if block.Type == "text" {
			resp.Content += block.Text
		}
	}
	resp.Usage.InputTokens = claudeResp.Usage.InputTokens
	resp.Usage.OutputTokens = claudeResp.Usage.OutputTokens
	return resp, nil
}

// callOpenAI makes a request to OpenAI API
func (c *LLMClient) callOpenAI(ctx context.Context, system string, messages []Message) (*CompletionResponse, error) {
	openAIMessages := []map[string]string{
		{"role": "system", "content": system},
	}
	for _, msg := range messages {
		openAIMessages = append(openAIMessages, map[string]string{
			"role":    msg.Role,
			"content": msg.Text,
		})
	}

	reqBody := map[string]any{
		"model":       c.config.Model,
		"max_tokens":  c.config.MaxTokens,
		"temperature": c.config.Temperature,
		"messages":    openAIMessages,
	}

	body, err := c.post(ctx, "OpenAI", c.config.OpenAIURL, reqBody, map[string]string{
		"Authorization": "Bearer " + c.config.OpenAIAPIKey,
	})
	if err != nil {
		return nil, err
	}

	var openAIResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}

	if err := json.Unmarshal(body, &openAIResp); err != nil {
		return nil, err
	}

	if len(openAIResp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	resp := &CompletionResponse{
		Content:    openAIResp.Choices[0].Message.Content,
		StopReason: openAIResp.Choices[0].FinishReason,
	}
	resp.Usage.InputTokens = openAIResp.Usage.PromptTokens
	resp.Usage.OutputTokens = openAIResp.Usage.CompletionTokens
	return resp, nil
}
