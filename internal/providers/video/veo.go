package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"server/internal/domain"
	"server/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("veo: at least one api key is required")

// Options configures the Veo client.
type Options struct {
	APIKeys    []string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client drives the Veo long-running video generation API: a submit call that
// returns an operation name, then repeated operation reads until done. It
// supports multiple backing credentials for the same endpoint; a
// credential-classified failure during submit rotates to the next key and
// retries exactly once before surfacing the error.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger

	mu     sync.Mutex
	keys   []string
	active int
}

type predictRequest struct {
	Instances  []predictInstance `json:"instances"`
	Parameters predictParams     `json:"parameters"`
}

type predictInstance struct {
	Prompt string         `json:"prompt"`
	Image  *instanceImage `json:"image,omitempty"`
}

type instanceImage struct {
	FileURI string `json:"fileUri"`
}

type predictParams struct {
	AspectRatio     string `json:"aspectRatio,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
}

type operationResponse struct {
	Name     string          `json:"name"`
	Done     bool            `json:"done"`
	Error    *apiError       `json:"error,omitempty"`
	Response *videosResponse `json:"response,omitempty"`
}

type videosResponse struct {
	GenerateVideoResponse struct {
		GeneratedSamples []struct {
			Video struct {
				URI      string `json:"uri"`
				MimeType string `json:"mimeType"`
			} `json:"video"`
		} `json:"generatedSamples"`
	} `json:"generateVideoResponse"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

// NewClient constructs a Veo client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	keys := make([]string, 0, len(opts.APIKeys))
	for _, key := range opts.APIKeys {
		if trimmed := strings.TrimSpace(key); trimmed != "" {
			keys = append(keys, trimmed)
		}
	}
	if len(keys) == 0 {
		return nil, ErrMissingAPIKey
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = domain.DefaultModel
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Client{
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     logger,
		keys:       keys,
	}, nil
}

// Model returns the configured default model identifier.
func (c *Client) Model() string {
	return c.model
}

// Submit starts a generation and returns the operation handle. On a
// credential-classified failure the client rotates to the next configured key
// and retries once.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (*Operation, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	key := c.currentKey()
	op, err := c.submitWithKey(ctx, key, model, req)
	if err == nil {
		return op, nil
	}
	if !isCredentialError(err) || len(c.keys) < 2 {
		return nil, err
	}

	next := c.rotateKey(key)
	c.logger.Warn().
		Str("request_id", req.RequestID).
		Err(err).
		Msg("veo: credential failure, retrying with next key")
	return c.submitWithKey(ctx, next, model, req)
}

func (c *Client) submitWithKey(ctx context.Context, key, model string, req SubmitRequest) (*Operation, error) {
	payload := predictRequest{
		Instances: []predictInstance{{Prompt: req.Prompt}},
		Parameters: predictParams{
			AspectRatio:     req.AspectRatio,
			DurationSeconds: req.DurationSeconds,
		},
	}
	if req.ReferenceAssetURL != "" {
		payload.Instances[0].Image = &instanceImage{FileURI: req.ReferenceAssetURL}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("veo: encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:predictLongRunning", c.baseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("veo: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", key)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("veo: submit: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("veo: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp.StatusCode, raw)
	}

	var out operationResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("veo: decode response: %w", err)
	}
	if out.Name == "" {
		return nil, fmt.Errorf("%w: submit returned no operation name", domain.ErrProviderFailure)
	}

	c.logger.Debug().Str("operation", out.Name).Str("model", model).Msg("veo: operation started")
	return &Operation{Name: out.Name, key: key}, nil
}

// Poll reads the operation state once. The handle's pinned key is used so a
// rotated submit credential keeps serving its own operations.
func (c *Client) Poll(ctx context.Context, op *Operation) (*PollResult, error) {
	endpoint := fmt.Sprintf("%s/%s", c.baseURL, strings.TrimLeft(op.Name, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("veo: build poll request: %w", err)
	}
	httpReq.Header.Set("x-goog-api-key", op.key)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("veo: poll: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("veo: read poll response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp.StatusCode, raw)
	}

	var out operationResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("veo: decode poll response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderFailure, out.Error.Message)
	}
	if !out.Done {
		return &PollResult{}, nil
	}

	result := &PollResult{Done: true, Metadata: map[string]any{"operation": out.Name}}
	if out.Response != nil && len(out.Response.GenerateVideoResponse.GeneratedSamples) > 0 {
		sample := out.Response.GenerateVideoResponse.GeneratedSamples[0]
		if sample.Video.URI != "" {
			mime := sample.Video.MimeType
			if mime == "" {
				mime = "video/mp4"
			}
			result.Artifact = &Artifact{URI: sample.Video.URI, MimeType: mime}
		}
	}
	return result, nil
}

func (c *Client) currentKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keys[c.active]
}

// rotateKey advances past the failed key and returns the replacement. A
// concurrent submit may already have rotated; in that case the current key is
// reused as-is.
func (c *Client) rotateKey(failed string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keys[c.active] == failed {
		c.active = (c.active + 1) % len(c.keys)
	}
	return c.keys[c.active]
}

func decodeAPIError(statusCode int, raw []byte) error {
	var envelope errorEnvelope
	message := strings.TrimSpace(string(raw))
	status := ""
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Message != "" {
		message = envelope.Error.Message
		status = envelope.Error.Status
	}
	return &providerError{
		statusCode: statusCode,
		status:     status,
		message:    message,
	}
}

type providerError struct {
	statusCode int
	status     string
	message    string
}

func (e *providerError) Error() string {
	return fmt.Sprintf("veo: http %d: %s", e.statusCode, e.message)
}

func (e *providerError) Unwrap() error {
	return domain.ErrProviderFailure
}

// isCredentialError classifies authentication and quota-exhaustion failures,
// the only ones worth a key rotation.
func isCredentialError(err error) bool {
	var pe *providerError
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.statusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return true
	}
	switch pe.status {
	case "UNAUTHENTICATED", "PERMISSION_DENIED", "RESOURCE_EXHAUSTED":
		return true
	}
	return false
}

var _ Provider = (*Client)(nil)
