// Package genai provides the resilient client for the hosted generative-AI
// endpoint used by ShotScope analysis flows.
//
// The client sends multi-modal (video/text) requests, choosing inline base64
// or upload-then-reference by encoded payload size, retries once on timeout
// or 5xx, and fails fast behind a circuit breaker after repeated failures.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/RinkLab/ShotScope/internal/media"
	"github.com/RinkLab/ShotScope/internal/models"
	"github.com/RinkLab/ShotScope/internal/util"
)

// Default configuration constants.
const (
	DefaultBaseURL   = "https://generativelanguage.googleapis.com/v1beta"
	DefaultUploadURL = "https://generativelanguage.googleapis.com/upload/v1beta/files"
	DefaultModel     = "gemini-2.0-flash"

	// DefaultRetryDelay is the fixed pause before the single retry.
	DefaultRetryDelay = 1500 * time.Millisecond
	// VideoRequestTimeout applies to requests carrying video media.
	VideoRequestTimeout = 120 * time.Second
	// TextRequestTimeout applies to all other requests.
	TextRequestTimeout = 90 * time.Second
)

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey       string
	BaseURL      string
	UploadURL    string
	Model        string
	HTTPClient   *http.Client
	RetryDelay   time.Duration
	VideoTimeout time.Duration
	TextTimeout  time.Duration
	Breaker      *CircuitBreaker
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the API key for the hosted endpoint.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithBaseURL overrides the endpoint base URL (used in tests).
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithUploadURL overrides the file-upload URL.
func WithUploadURL(u string) Option {
	return func(o *Opts) { o.UploadURL = u }
}

// WithModel sets the model identifier.
func WithModel(m string) Option {
	return func(o *Opts) { o.Model = m }
}

// WithHTTPClient injects an HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// WithRetryDelay overrides the fixed delay before the single retry.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Opts) { o.RetryDelay = d }
}

// WithTimeouts overrides the video and text request timeouts.
func WithTimeouts(video, text time.Duration) Option {
	return func(o *Opts) {
		o.VideoTimeout = video
		o.TextTimeout = text
	}
}

// WithBreaker injects a circuit breaker, shared or preconfigured.
func WithBreaker(b *CircuitBreaker) Option {
	return func(o *Opts) { o.Breaker = b }
}

// Client issues requests to the hosted generative-AI endpoint.
type Client struct {
	httpClient   *http.Client
	apiKey       string
	baseURL      string
	uploadURL    string
	model        string
	retryDelay   time.Duration
	videoTimeout time.Duration
	textTimeout  time.Duration
	breaker      *CircuitBreaker
}

// Request describes one multi-modal generation call.
type Request struct {
	Prompt    string
	Clips     []models.MediaClip
	Config    models.GenerationConfig
	FrameRate float64 // sampling rate hint for video media; 0 means endpoint default
}

// NewClient creates a GenAI client. The API key falls back to the
// GEMINI_API_KEY environment variable if not provided via options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	slog.Debug("GenAI client config loaded", "APIKey_set", cfg.APIKey != "", "baseURL_set", cfg.BaseURL != "")
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY not set")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UploadURL == "" {
		cfg.UploadURL = DefaultUploadURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.VideoTimeout == 0 {
		cfg.VideoTimeout = VideoRequestTimeout
	}
	if cfg.TextTimeout == 0 {
		cfg.TextTimeout = TextRequestTimeout
	}
	if cfg.Breaker == nil {
		cfg.Breaker = NewCircuitBreaker()
	}

	return &Client{
		httpClient:   cfg.HTTPClient,
		apiKey:       cfg.APIKey,
		baseURL:      cfg.BaseURL,
		uploadURL:    cfg.UploadURL,
		model:        cfg.Model,
		retryDelay:   cfg.RetryDelay,
		videoTimeout: cfg.VideoTimeout,
		textTimeout:  cfg.TextTimeout,
		breaker:      cfg.Breaker,
	}, nil
}

// Wire types for the endpoint's JSON-over-HTTPS protocol.

type generateRequest struct {
	Contents         []contentBlock           `json:"contents"`
	GenerationConfig *models.GenerationConfig `json:"generationConfig,omitempty"`
}

type contentBlock struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text          string         `json:"text,omitempty"`
	InlineData    *inlineData    `json:"inlineData,omitempty"`
	FileData      *fileData      `json:"fileData,omitempty"`
	VideoMetadata *videoMetadata `json:"videoMetadata,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type fileData struct {
	MimeType string `json:"mimeType"`
	FileURI  string `json:"fileUri"`
}

type videoMetadata struct {
	FPS float64 `json:"fps,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content contentBlock `json:"content"`
	} `json:"candidates"`
}

type uploadResponse struct {
	File struct {
		Name string `json:"name"`
		URI  string `json:"uri"`
	} `json:"file"`
}

// GenerateContent sends the request and returns sanitized response text ready
// for schema decoding. It either returns data or a typed error; cancellation
// is checked at every suspension point.
func (c *Client) GenerateContent(ctx context.Context, req Request) (string, error) {
	reqID := util.GenerateRandomID("req_", 12)
	slog.Debug("GenAI GenerateContent invoked", "requestID", reqID, "clips", len(req.Clips), "frameRate", req.FrameRate)

	if err := c.breaker.Allow(); err != nil {
		slog.Warn("GenAI GenerateContent rejected by circuit breaker", "requestID", reqID)
		return "", err
	}

	body, hasVideo, err := c.buildBody(ctx, req)
	if err != nil {
		// Payload construction failures never reach the network and do not
		// count against the breaker, but an admitted probe must not leave
		// the breaker stuck half-open.
		c.breaker.AbortProbe()
		return "", err
	}

	timeout := c.textTimeout
	if hasVideo {
		timeout = c.videoTimeout
	}

	text, err := c.doWithRetry(ctx, reqID, body, timeout)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Caller cancellation says nothing about endpoint health; it is
			// not a failure, but a canceled probe must release half-open.
			c.breaker.AbortProbe()
		} else {
			c.breaker.RecordFailure()
		}
		return "", err
	}
	c.breaker.RecordSuccess()

	return SanitizeModelOutput(text), nil
}

// buildBody assembles the JSON request body, choosing inline base64 or
// upload-then-reference per clip by encoded size.
func (c *Client) buildBody(ctx context.Context, req Request) ([]byte, bool, error) {
	parts := make([]part, 0, len(req.Clips)+1)
	hasVideo := false

	for i := range req.Clips {
		clip := &req.Clips[i]
		if clip.SizeBytes == 0 || clip.MimeType == "" {
			if err := media.Inspect(clip); err != nil {
				return nil, false, err
			}
		}
		if media.IsVideo(clip.MimeType) {
			hasVideo = true
		}

		var p part
		if media.UseInline(media.EncodedSize(clip.SizeBytes)) {
			encoded, _, err := media.EncodeFile(clip.Path)
			if err != nil {
				return nil, false, err
			}
			p.InlineData = &inlineData{MimeType: clip.MimeType, Data: encoded}
			slog.Debug("GenAI clip embedded inline", "path", clip.Path, "size", clip.SizeBytes)
		} else {
			uri, err := c.uploadFile(ctx, clip)
			if err != nil {
				return nil, false, err
			}
			p.FileData = &fileData{MimeType: clip.MimeType, FileURI: uri}
			slog.Debug("GenAI clip uploaded", "path", clip.Path, "size", clip.SizeBytes, "uri_set", uri != "")
		}
		if req.FrameRate > 0 && media.IsVideo(clip.MimeType) {
			p.VideoMetadata = &videoMetadata{FPS: req.FrameRate}
		}
		parts = append(parts, p)
	}

	parts = append(parts, part{Text: req.Prompt})

	body := generateRequest{
		Contents: []contentBlock{{Role: "user", Parts: parts}},
	}
	cfg := req.Config
	if cfg.Temperature != 0 || cfg.TopK != 0 || cfg.TopP != 0 || cfg.MaxOutputTokens != 0 ||
		cfg.ResponseMIME != "" || len(cfg.ResponseSchema) > 0 {
		body.GenerationConfig = &cfg
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal request body: %w", err)
	}
	return data, hasVideo, nil
}

// doWithRetry performs the HTTP call with the fixed retry policy: exactly one
// retry on timeout or 5xx after retryDelay; no retry for 4xx or decode errors.
func (c *Client) doWithRetry(ctx context.Context, reqID string, body []byte, timeout time.Duration) (string, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			slog.Info("GenAI retrying request", "requestID", reqID, "delay", c.retryDelay)
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				// A deadline firing mid-delay is still a timeout kind;
				// cancellation passes through untouched.
				return "", classifyTransportError(ctx, ctx.Err())
			}
		}

		text, err := c.doOnce(ctx, body, timeout)
		if err == nil {
			slog.Debug("GenAI request succeeded", "requestID", reqID, "attempt", attempt)
			return text, nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || !retryableKind(err) {
			slog.Debug("GenAI request failed without retry", "requestID", reqID, "error", err)
			return "", err
		}
		slog.Warn("GenAI request attempt failed", "requestID", reqID, "attempt", attempt, "error", err)
	}
	return "", lastErr
}

// doOnce performs a single HTTP attempt and classifies the outcome into the
// error taxonomy: timeout, connectivity, upstream, or parse failure.
func (c *Client) doOnce(ctx context.Context, body []byte, timeout time.Duration) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classifyTransportError(ctx, err)
	}

	if resp.StatusCode >= 400 {
		return "", &statusError{code: resp.StatusCode, body: truncate(string(data), 200)}
	}

	var parsed generateResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("%w: malformed response envelope: %v", models.ErrUpstream, err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: no candidates returned", models.ErrUpstream)
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}

// uploadFile transmits large media via the separate upload endpoint and
// returns the file URI for upload-then-reference requests.
func (c *Client) uploadFile(ctx context.Context, clip *models.MediaClip) (string, error) {
	f, err := os.Open(clip.Path)
	if err != nil {
		return "", fmt.Errorf("failed to open clip for upload: %w", err)
	}
	defer f.Close()

	url := fmt.Sprintf("%s?key=%s", c.uploadURL, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, f)
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", clip.MimeType)
	httpReq.Header.Set("X-Goog-Upload-Protocol", "raw")
	httpReq.ContentLength = clip.SizeBytes

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &statusError{code: resp.StatusCode, body: "file upload failed"}
	}

	var parsed uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: malformed upload response: %v", models.ErrUpstream, err)
	}
	if parsed.File.URI == "" {
		return "", fmt.Errorf("%w: upload response missing file URI", models.ErrUpstream)
	}
	slog.Debug("GenAI uploadFile succeeded", "name", parsed.File.Name)
	return parsed.File.URI, nil
}

// classifyTransportError maps a transport-level error to the taxonomy.
// Timeouts are a distinct kind from connectivity failures; caller
// cancellation passes through untouched.
func classifyTransportError(ctx context.Context, err error) error {
	if ctx.Err() == context.Canceled {
		return ctx.Err()
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", models.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", models.ErrConnectivity, err)
}

// statusError carries the HTTP status of an endpoint error. It unwraps to
// ErrUpstream so callers see a single upstream failure kind, while the
// retry policy can still distinguish 5xx from 4xx.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("upstream processing failure: endpoint returned %d", e.code)
	}
	return fmt.Sprintf("upstream processing failure: endpoint returned %d: %s", e.code, e.body)
}

func (e *statusError) Unwrap() error { return models.ErrUpstream }

// retryableKind reports whether the wrapper retries this error class:
// timeouts, connectivity failures, and 5xx responses. Client errors (4xx)
// and malformed responses are never retried.
func retryableKind(err error) bool {
	if errors.Is(err, models.ErrTimeout) || errors.Is(err, models.ErrConnectivity) {
		return true
	}
	var se *statusError
	return errors.As(err, &se) && se.code >= 500
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
