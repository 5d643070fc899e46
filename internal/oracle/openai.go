package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/propflow/veritas/internal/model"
)

// openaiClient implements the Client interface for the OpenAI API.
type openaiClient struct {
	httpClient  *http.Client
	name        string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
}

// newOpenAIClient creates a new OpenAI API client.
func newOpenAIClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 100
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	name := cfg.Name
	if name == "" {
		name = "openai"
	}

	return &openaiClient{
		name:        name,
		apiKey:      cfg.APIKey,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

func (c *openaiClient) Name() string {
	return c.name
}

// Evaluate sends an evaluation request to OpenAI.
func (c *openaiClient) Evaluate(ctx context.Context, formula model.Formula) (Evaluation, error) {
	requestBody := map[string]any{
		"model":       c.model,
		"max_tokens":  c.maxTokens,
		"temperature": c.temperature,
		"messages": []map[string]string{
			{
				"role":    "system",
				"content": "You are a precise arithmetic evaluator. Compute the requested formula exactly and respond only with the JSON format requested.",
			},
			{
				"role":    "user",
				"content": buildPrompt(formula),
			},
		},
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return Evaluation{}, NewCallError(ErrTransport, fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.openai.com/v1/chat/completions", strings.NewReader(string(jsonBody)))
	if err != nil {
		return Evaluation{}, NewCallError(ErrTransport, fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Evaluation{}, NewCallError(Categorize(err), fmt.Errorf("request failed: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Evaluation{}, NewCallError(ErrTransport, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return Evaluation{}, NewCallError(categorizeStatus(resp.StatusCode), fmt.Errorf("openai API error (status %d): %s", resp.StatusCode, string(body)))
	}

	var response openaiResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return Evaluation{}, NewCallError(ErrMalformed, fmt.Errorf("failed to parse response: %w", err))
	}

	if len(response.Choices) == 0 {
		return Evaluation{}, NewCallError(ErrMalformed, fmt.Errorf("no choices in response"))
	}

	value, err := parseNumeric(response.Choices[0].Message.Content)
	if err != nil {
		return Evaluation{}, err
	}

	return Evaluation{
		Value:     value,
		CostUnits: float64(response.Usage.TotalTokens),
	}, nil
}

// openaiResponse represents the OpenAI API response structure.
type openaiResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
