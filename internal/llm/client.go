// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Ballast Contributors

// Package llm is the HTTP client for the local model service. The
// service speaks the Ollama wire protocol: GET /api/tags for liveness
// and installed models, POST /api/generate for completions.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	ballasterr "github.com/ballast-dev/ballast/pkg/errors"
)

const defaultBaseURL = "http://localhost:11434"

// Pinger checks whether the model service is alive.
type Pinger interface {
	Ping(ctx context.Context) (*Liveness, error)
}

// Generator runs a completion against the model service.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Config holds model service client configuration.
type Config struct {
	BaseURL string
	// RequestTimeout bounds liveness calls; GenerateTimeout bounds
	// completions, which can be slow on first load.
	RequestTimeout  time.Duration
	GenerateTimeout time.Duration
}

// Client talks to the local model service over HTTP.
type Client struct {
	baseURL         string
	http            *http.Client
	requestTimeout  time.Duration
	generateTimeout time.Duration
}

var (
	_ Pinger    = (*Client)(nil)
	_ Generator = (*Client)(nil)
)

// New creates a model service client. Zero-value timeouts get sane
// defaults rather than unbounded calls.
func New(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}

	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Second
	}

	generateTimeout := cfg.GenerateTimeout
	if generateTimeout <= 0 {
		generateTimeout = 2 * time.Minute
	}

	return &Client{
		baseURL:         base,
		http:            &http.Client{},
		requestTimeout:  requestTimeout,
		generateTimeout: generateTimeout,
	}
}

// BaseURL returns the service endpoint the client targets.
func (c *Client) BaseURL() string { return c.baseURL }

// Liveness is the result of a liveness probe.
type Liveness struct {
	Running bool     `json:"running"`
	Models  []string `json:"models"`
}

// tagsResponse mirrors the service's GET /api/tags payload.
type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Ping probes GET /api/tags. A nil error means the service answered
// 200; the returned Liveness lists the installed models.
func (c *Client) Ping(ctx context.Context) (*Liveness, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, ballasterr.Wrap(err, ballasterr.CategorySystem, "building liveness request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, ballasterr.Wrap(err, ballasterr.CategoryNetwork, "model service unreachable",
			ballasterr.Field("url", c.baseURL))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ballasterr.Errorf(ballasterr.CategoryDependencyFailure,
			"model service liveness returned status %d", resp.StatusCode)
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, ballasterr.Wrap(err, ballasterr.CategoryDependencyFailure, "decoding liveness response")
	}

	live := &Liveness{Running: true, Models: make([]string, 0, len(tags.Models))}
	for _, m := range tags.Models {
		live.Models = append(live.Models, m.Name)
	}
	return live, nil
}

// GenerateRequest is the POST /api/generate payload. Stream is always
// sent explicitly; the resilience layer never consumes partial output.
type GenerateRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt,omitempty"`
	Stream  bool    `json:"stream"`
	Options Options `json:"options,omitempty"`
}

// Options tunes generation.
type Options struct {
	Temperature float64  `json:"temperature,omitempty"`
	TopP        float64  `json:"top_p,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// GenerateResponse is the service's completion payload.
type GenerateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	Context         []int  `json:"context,omitempty"`
	TotalDuration   int64  `json:"total_duration,omitempty"`
	PromptEvalCount int    `json:"prompt_eval_count,omitempty"`
	EvalCount       int    `json:"eval_count,omitempty"`
}

// Generate runs a non-streaming completion.
func (c *Client) Generate(ctx context.Context, genReq GenerateRequest) (*GenerateResponse, error) {
	if genReq.Model == "" {
		return nil, ballasterr.New(ballasterr.CategoryValidation, "generate: model must not be empty")
	}
	genReq.Stream = false

	ctx, cancel := context.WithTimeout(ctx, c.generateTimeout)
	defer cancel()

	payload, err := json.Marshal(genReq)
	if err != nil {
		return nil, ballasterr.Wrap(err, ballasterr.CategorySystem, "marshalling generate request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, ballasterr.Wrap(err, ballasterr.CategorySystem, "building generate request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, ballasterr.Wrap(err, ballasterr.CategoryNetwork, "model service unreachable",
			ballasterr.FieldModel(genReq.Model))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ballasterr.Wrap(err, ballasterr.CategoryNetwork, "reading generate response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, ballasterr.Errorf(ballasterr.CategoryDependencyFailure,
			"model service returned status %d: %s", resp.StatusCode, truncate(body, 256))
	}

	var genResp GenerateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return nil, ballasterr.Wrap(err, ballasterr.CategoryDependencyFailure, "decoding generate response",
			ballasterr.FieldModel(genReq.Model))
	}

	return &genResp, nil
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
