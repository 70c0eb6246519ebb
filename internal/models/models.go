// Package models defines the core data structures for ShotScope.
//
// It includes types for media clips, player profiles, generation config for
// the hosted AI endpoint, and the shared API response envelope.
package models

import (
	"encoding/json"
	"errors"
)

// Validation constants for input validation
const (
	// MaxPromptLength defines the maximum allowed length for a custom analysis prompt
	MaxPromptLength = 8192
	// MaxClipsPerRequest defines the maximum number of clips accepted in a single analysis
	MaxClipsPerRequest = 4
	// MinPlayerAge and MaxPlayerAge bound the accepted age range in a player profile
	MinPlayerAge = 4
	MaxPlayerAge = 99
)

// Error variables for better error handling and testability.
// These are the error kinds of the pipeline; wrap them with fmt.Errorf("...: %w", err).
var (
	// ErrConnectivity indicates a transport-level failure reaching the AI endpoint.
	ErrConnectivity = errors.New("connectivity failure")
	// ErrTimeout indicates the request exceeded its deadline. Distinct from ErrConnectivity.
	ErrTimeout = errors.New("request timed out")
	// ErrUpstream indicates the AI service returned an error or unusable output.
	ErrUpstream = errors.New("upstream processing failure")
	// ErrContentRejected indicates the media was judged not to match the expected
	// subject. Non-retryable: the user must supply new media.
	ErrContentRejected = errors.New("content rejected")
	// ErrValidationParse indicates the pre-flight validation response could not be decoded.
	ErrValidationParse = errors.New("validation response parse failure")
	// ErrAnalysisParse indicates the full analysis response could not be decoded.
	ErrAnalysisParse = errors.New("analysis response parse failure")

	ErrEmptyUserID     = errors.New("user_id cannot be empty")
	ErrInvalidFlowType = errors.New("invalid flow type")
	ErrNoClips         = errors.New("at least one media clip is required")
	ErrTooManyClips    = errors.New("too many media clips")
	ErrEmptyClipPath   = errors.New("clip path cannot be empty")
	ErrPromptTooLong   = errors.New("prompt exceeds maximum length")
	ErrInvalidAge      = errors.New("age out of accepted range")
)

// IsRetryable reports whether the error kind permits retrying with the same
// inputs. Content rejection requires new media and is never retryable.
func IsRetryable(err error) bool {
	switch {
	case errors.Is(err, ErrConnectivity), errors.Is(err, ErrTimeout), errors.Is(err, ErrUpstream):
		return true
	default:
		return false
	}
}

// CameraAngle identifies the capture angle of a clip in multi-angle flows.
type CameraAngle string

const (
	AngleFront CameraAngle = "front"
	AngleSide  CameraAngle = "side"
)

// MediaClip references a user-captured video or photo on local storage.
type MediaClip struct {
	Path            string      `json:"path"`
	MimeType        string      `json:"mime_type,omitempty"`
	SizeBytes       int64       `json:"size_bytes,omitempty"`
	Angle           CameraAngle `json:"angle,omitempty"`
	DurationSeconds float64     `json:"duration_seconds,omitempty"`
}

// Validate checks a MediaClip for required fields.
func (c *MediaClip) Validate() error {
	if c.Path == "" {
		return ErrEmptyClipPath
	}
	return nil
}

// PlayerProfile carries the user-entered profile fields that feed the analysis prompt.
type PlayerProfile struct {
	Name       string `json:"name,omitempty"`
	Age        int    `json:"age,omitempty"`
	Position   string `json:"position,omitempty"`
	SkillLevel string `json:"skill_level,omitempty"`
	Handedness string `json:"handedness,omitempty"`
}

// Validate checks profile fields that have hard bounds.
func (p *PlayerProfile) Validate() error {
	if p.Age != 0 && (p.Age < MinPlayerAge || p.Age > MaxPlayerAge) {
		return ErrInvalidAge
	}
	return nil
}

// GenerationConfig mirrors the hosted endpoint's generation parameters.
type GenerationConfig struct {
	Temperature     float64         `json:"temperature,omitempty"`
	TopK            int             `json:"topK,omitempty"`
	TopP            float64         `json:"topP,omitempty"`
	MaxOutputTokens int             `json:"maxOutputTokens,omitempty"`
	ResponseMIME    string          `json:"responseMimeType,omitempty"`
	ResponseSchema  json.RawMessage `json:"responseSchema,omitempty"`
}

// API Response types for consistent JSON responses

// APIStatus represents the status field of an API response.
type APIStatus string

const (
	APIStatusOK    APIStatus = "ok"
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}
