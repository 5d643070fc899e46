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

// evalHTTPClient implements the Client interface against a self-hosted
// expression evaluation service speaking a plain JSON contract:
// POST {expression, variables} -> {result}.
type evalHTTPClient struct {
	httpClient *http.Client
	name       string
	baseURL    string
}

// newEvalHTTPClient creates a client for a generic HTTP evaluator.
func newEvalHTTPClient(cfg Config) (Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("evalhttp base URL is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	name := cfg.Name
	if name == "" {
		name = "evalhttp"
	}

	return &evalHTTPClient{
		name:    name,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func (c *evalHTTPClient) Name() string {
	return c.name
}

// Evaluate posts the formula to the evaluation service.
func (c *evalHTTPClient) Evaluate(ctx context.Context, formula model.Formula) (Evaluation, error) {
	requestBody := map[string]any{
		"expression": formula.Expression,
		"variables":  formula.Variables,
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return Evaluation{}, NewCallError(ErrTransport, fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/evaluate", strings.NewReader(string(jsonBody)))
	if err != nil {
		return Evaluation{}, NewCallError(ErrTransport, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

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
		return Evaluation{}, NewCallError(categorizeStatus(resp.StatusCode), fmt.Errorf("evaluator error (status %d): %s", resp.StatusCode, string(body)))
	}

	var response struct {
		Result *float64 `json:"result"`
		Error  string   `json:"error"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return Evaluation{}, NewCallError(ErrMalformed, fmt.Errorf("failed to parse response: %w", err))
	}

	if response.Error != "" {
		return Evaluation{}, NewCallError(ErrMalformed, fmt.Errorf("evaluator rejected expression: %s", response.Error))
	}
	if response.Result == nil {
		return Evaluation{}, NewCallError(ErrMalformed, fmt.Errorf("no result field in response"))
	}

	return Evaluation{Value: *response.Result}, nil
}
