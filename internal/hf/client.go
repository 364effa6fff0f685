package hf

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"gen-agents/internal/retry"
)

const (
	serverlessBaseURL = "https://api-inference.huggingface.co/models/"

	defaultTimeout    = 120 * time.Second
	defaultMaxRetries = 3
	retryBaseDelay    = 500 * time.Millisecond
)

var validate = validator.New()

// APIError is a non-2xx response from the inference server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hf: inference request failed with status %d: %s", e.StatusCode, e.Message)
}

// Config describes how to reach a text-generation backend.
type Config struct {
	APIType APIType
	// Model is the hub model ID. Required for the serverless API.
	Model string
	// URL is the endpoint address. Required for inference endpoints and TGI.
	URL string
	// Token is the bearer token, if any.
	Token      string
	Timeout    time.Duration
	MaxRetries int
}

// Client calls a Hugging Face text-generation backend over HTTP.
type Client struct {
	model      string
	endpoint   string
	token      string
	httpClient *http.Client
	maxRetries int
	log        *slog.Logger
}

// NewClient validates cfg for the chosen API type and builds a client.
// For the serverless API the model ID is checked against the hub; for
// endpoint-based API types the URL is validated instead.
func NewClient(ctx context.Context, cfg Config, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}

	c := &Client{
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		log:        log,
	}

	switch cfg.APIType {
	case APITypeServerless:
		if cfg.Model == "" {
			return nil, errors.New("hf: the serverless inference API requires a model ID")
		}
		if err := CheckModel(ctx, cfg.Model, cfg.Token); err != nil {
			return nil, err
		}
		c.model = cfg.Model
		c.endpoint = serverlessBaseURL + cfg.Model
	case APITypeInferenceEndpoints, APITypeTextGenerationInference:
		if cfg.URL == "" {
			return nil, errors.New("hf: inference endpoints and TGI require a URL")
		}
		if err := validate.Var(cfg.URL, "http_url"); err != nil {
			return nil, fmt.Errorf("hf: invalid url %q", cfg.URL)
		}
		c.model = cfg.URL
		c.endpoint = cfg.URL
	default:
		return nil, fmt.Errorf("hf: unknown api type %q", cfg.APIType)
	}

	return c, nil
}

// Model returns the client's model identity: the hub model ID for the
// serverless API, otherwise the endpoint URL.
func (c *Client) Model() string { return c.model }

type generateRequest struct {
	Inputs     string           `json:"inputs"`
	Parameters generateParams   `json:"parameters"`
	Stream     bool             `json:"stream,omitempty"`
	Options    *generateOptions `json:"options,omitempty"`
}

type generateParams struct {
	GenerationParams
	// Details asks the server to include token-level detail in the response.
	Details bool `json:"details"`
}

type generateOptions struct {
	WaitForModel bool `json:"wait_for_model,omitempty"`
}

// TextGeneration performs a non-streaming generation call. A 503 from the
// serverless API means the model is still loading, so the request is retried
// with exponential backoff.
func (c *Client) TextGeneration(ctx context.Context, prompt string, params GenerationParams) (*Output, error) {
	body, err := json.Marshal(generateRequest{
		Inputs:     prompt,
		Parameters: generateParams{GenerationParams: params, Details: true},
	})
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			c.log.Warn("hf model loading, retrying", "attempt", attempt, "model", c.model)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retry.ExponentialBackoff(attempt-1, retryBaseDelay)):
			}
		}

		out, err := c.textGenerationOnce(ctx, body)
		if err == nil {
			return out, nil
		}
		lastErr = err

		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) textGenerationOnce(ctx context.Context, body []byte) (*Output, error) {
	resp, err := c.post(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(data)}
	}

	// The serverless API wraps the output in a one-element array; TGI's
	// /generate returns a bare object. Accept both.
	if len(data) > 0 && data[0] == '[' {
		var outs []Output
		if err := json.Unmarshal(data, &outs); err != nil {
			return nil, fmt.Errorf("hf: decoding response: %w", err)
		}
		if len(outs) == 0 {
			return nil, errors.New("hf: empty response array")
		}
		return &outs[0], nil
	}
	var out Output
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("hf: decoding response: %w", err)
	}
	return &out, nil
}

// TextGenerationStream performs a streaming generation call and returns the
// event sequence. The caller owns the stream and must Close it.
func (c *Client) TextGenerationStream(ctx context.Context, prompt string, params GenerationParams) (TokenStream, error) {
	body, err := json.Marshal(generateRequest{
		Inputs:     prompt,
		Parameters: generateParams{GenerationParams: params, Details: true},
		Stream:     true,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(data)}
	}
	return newSSEStream(resp.Body), nil
}

func (c *Client) post(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.httpClient.Do(req)
}
