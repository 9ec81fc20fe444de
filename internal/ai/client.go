package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hpungsan/whispr/internal/config"
)

var (
	// ErrUnreachable means the inference server could not be contacted.
	ErrUnreachable = errors.New("inference server unreachable")
	// ErrBadResponse means the server answered with a non-success status or
	// an unreadable body.
	ErrBadResponse = errors.New("inference server returned a bad response")
	// ErrRequestFailed means a generate call did not produce a result.
	ErrRequestFailed = errors.New("inference request failed")
	// ErrNoModelAssigned means no usable model serves the capability.
	ErrNoModelAssigned = errors.New("no model assigned")
)

// Backend is the inference server as seen by the orchestrator.
type Backend interface {
	ListModels(ctx context.Context) ([]ModelInfo, error)
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// ModelInfo is one entry of the model-list response.
type ModelInfo struct {
	Name    string       `json:"name"`
	Details ModelDetails `json:"details"`
}

// ModelDetails carries the optional metadata some servers report.
type ModelDetails struct {
	Family        string `json:"family,omitempty"`
	ParameterSize string `json:"parameter_size,omitempty"`
	ContextLength int    `json:"context_length,omitempty"`
}

type listModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// GenerateRequest is the body of a generate call.
type GenerateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options GenerateOptions `json:"options"`
}

// GenerateOptions are the decoding parameters. The output bound is sent
// under both common field names.
type GenerateOptions struct {
	MaxTokens   int     `json:"maxTokens"`
	NumPredict  int     `json:"num_predict"`
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Client talks to an Ollama-compatible server on localhost.
type Client struct {
	baseURL      string
	modelsPath   string
	generatePath string
	client       *http.Client
}

// NewClient creates a client from config. The URL must already have passed
// config.ValidateInferenceURL.
func NewClient(cfg *config.Config) *Client {
	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.InferenceURL, "/"),
		modelsPath:   cfg.ModelsPath,
		generatePath: cfg.GeneratePath,
		client: &http.Client{
			Timeout:       timeout,
			CheckRedirect: checkRedirect,
		},
	}
}

// checkRedirect follows a redirect only when its target is still a loopback URL.
func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return errors.New("stopped after 10 redirects")
	}
	if err := config.ValidateInferenceURL(req.URL.String()); err != nil {
		return fmt.Errorf("refusing redirect: %w", err)
	}
	return nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// ListModels fetches the installed models.
func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.modelsPath, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrBadResponse, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result listModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	return result.Models, nil
}

// Generate runs one non-streaming completion and returns the raw response text.
func (c *Client) Generate(ctx context.Context, in GenerateRequest) (string, error) {
	in.Stream = false
	body, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.generatePath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: status %d: %s", ErrRequestFailed, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	return result.Response, nil
}
