package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/CurvatureX/trigger-engine/common/models"
	"github.com/CurvatureX/trigger-engine/common/security"
)

// HTTPActionExecutor performs an outbound HTTP call described by a node's
// config (url, method, headers, body), validated through the
// common/security SSRF-blocking validators so node-authored outbound calls
// can't be used to reach internal infrastructure. It is the only caller of
// those validators; the Dispatcher's engine URL and the GitHub enhancement
// fetches are not run through them.
type HTTPActionExecutor struct {
	client    *http.Client
	validator *security.URLValidator
}

// NewHTTPActionExecutor creates an HTTP action executor with a bounded
// client timeout.
func NewHTTPActionExecutor() *HTTPActionExecutor {
	return &HTTPActionExecutor{
		client:    &http.Client{Timeout: 30 * time.Second},
		validator: security.NewURLValidator(),
	}
}

// Execute implements Executor.
func (e *HTTPActionExecutor) Execute(ctx context.Context, node models.Node, input map[string]interface{}) (interface{}, error) {
	url, _ := node.Config["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("node %s: config.url is required", node.ID)
	}
	if err := e.validator.Validate(url); err != nil {
		return nil, fmt.Errorf("node %s: url validation failed: %w", node.ID, err)
	}

	method, _ := node.Config["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	var body io.Reader
	if payload, ok := node.Config["body"]; ok {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("node %s: marshal body: %w", node.ID, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("node %s: build request: %w", node.ID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if headers, ok := node.Config["headers"].(map[string]interface{}); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("node %s: http request failed: %w", node.ID, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("node %s: read response: %w", node.ID, err)
	}

	result := map[string]interface{}{
		"status_code": resp.StatusCode,
	}
	var parsed interface{}
	if json.Unmarshal(respBody, &parsed) == nil {
		result["body"] = parsed
	} else {
		result["body"] = string(respBody)
	}

	if resp.StatusCode >= 400 {
		return result, fmt.Errorf("node %s: http action returned status %d", node.ID, resp.StatusCode)
	}
	return result, nil
}

// PassthroughExecutor returns its input unchanged as output; used for
// test/no-op nodes and as a registry fallback in examples.
type PassthroughExecutor struct{}

// Execute implements Executor.
func (PassthroughExecutor) Execute(ctx context.Context, node models.Node, input map[string]interface{}) (interface{}, error) {
	return input, nil
}
