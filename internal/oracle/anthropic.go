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

// anthropicClient implements the Client interface for the Anthropic API.
type anthropicClient struct {
	httpClient  *http.Client
	name        string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
}

// newAnthropicClient creates a new Anthropic API client.
func newAnthropicClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "claude-3-5-haiku-20241022"
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
		name = "anthropic"
	}

	return &anthropicClient{
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

func (c *anthropicClient) Name() string {
	return c.name
}

// Evaluate sends an evaluation request to Anthropic.
func (c *anthropicClient) Evaluate(ctx context.Context, formula model.Formula) (Evaluation, error) {
	systemPrompt := "You are a precise arithmetic evaluator. Compute the requested formula exactly and respond only with the JSON format requested."

	requestBody := map[string]any{
		"model":       c.model,
		"max_tokens":  c.maxTokens,
		"temperature": c.temperature,
		"system":      systemPrompt,
		"messages": []map[string]string{
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

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.anthropic.com/v1/messages", strings.NewReader(string(jsonBody)))
	if err != nil {
		return Evaluation{}, NewCallError(ErrTransport, fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

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
		return Evaluation{}, NewCallError(categorizeStatus(resp.StatusCode), fmt.Errorf("anthropic API error (status %d): %s", resp.StatusCode, string(body)))
	}

	var response anthropicResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return Evaluation{}, NewCallError(ErrMalformed, fmt.Errorf("failed to parse response: %w", err))
	}

	if len(response.Content) == 0 {
		return Evaluation{}, NewCallError(ErrMalformed, fmt.Errorf("no content in response"))
	}

	value, err := parseNumeric(response.Content[0].Text)
	if err != nil {
		return Evaluation{}, err
	}

	return Evaluation{
		Value:     value,
		CostUnits: float64(response.Usage.InputTokens + response.Usage.OutputTokens),
	}, nil
}

// anthropicResponse represents the Anthropic API response structure.
type anthropicResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// categorizeStatus maps an HTTP status code onto an error category.
func categorizeStatus(status int) ErrorCategory {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuth
	case http.StatusTooManyRequests, http.StatusPaymentRequired:
		return ErrQuota
	default:
		return ErrTransport
	}
}
