package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"mindsync-backend/internal/models"
)

const (
	RoleUser  = "user"
	RoleModel = "model"

	// Upper bound on a provider body; replies are capped at 1024 output tokens.
	maxProviderBodyBytes = 8 << 20
)

// Part is one text segment of a provider turn.
type Part struct {
	Text string `json:"text"`
}

// Content is one provider turn.
type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type SafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

// GenerateContentRequest is the generateContent request body.
type GenerateContentRequest struct {
	Contents         []Content        `json:"contents"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
	SafetySettings   []SafetySetting  `json:"safetySettings"`
}

var chatGenerationConfig = GenerationConfig{
	Temperature:     0.7,
	TopK:            40,
	TopP:            0.95,
	MaxOutputTokens: 1024,
}

const blockMediumAndAbove = "BLOCK_MEDIUM_AND_ABOVE"

var harmCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

func chatSafetySettings() []SafetySetting {
	settings := make([]SafetySetting, len(harmCategories))
	for i, category := range harmCategories {
		settings[i] = SafetySetting{Category: category, Threshold: blockMediumAndAbove}
	}
	return settings
}

// ProviderRole maps a client role onto the provider's vocabulary.
// Only "assistant" becomes "model"; every other value, known or not, is "user".
func ProviderRole(role string) string {
	if role == "assistant" {
		return RoleModel
	}
	return RoleUser
}

// BuildContents converts the history, in order, plus the new message into provider turns.
func BuildContents(message string, history []models.ChatMessage) []Content {
	contents := make([]Content, 0, len(history)+1)
	for _, msg := range history {
		contents = append(contents, Content{
			Role:  ProviderRole(msg.Role),
			Parts: []Part{{Text: msg.Content}},
		})
	}
	return append(contents, Content{
		Role:  RoleUser,
		Parts: []Part{{Text: message}},
	})
}

// NewGenerateContentRequest wraps turns with the fixed chat generation and safety config.
func NewGenerateContentRequest(contents []Content) *GenerateContentRequest {
	return &GenerateContentRequest{
		Contents:         contents,
		GenerationConfig: chatGenerationConfig,
		SafetySettings:   chatSafetySettings(),
	}
}

// Generator sends one generateContent call to the provider.
// Provider-side failures come back as a Result; only transport failures are errors.
type Generator interface {
	Generate(ctx context.Context, req *GenerateContentRequest) (Result, error)
}

// GeminiClient talks to the generateContent REST endpoint directly.
type GeminiClient struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	logger     *zap.Logger
}

// NewGeminiClient builds a REST client. A nil httpClient uses a fresh client;
// deadlines come from the caller's context.
func NewGeminiClient(endpoint, apiKey string, httpClient *http.Client, logger *zap.Logger) *GeminiClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &GeminiClient{
		httpClient: httpClient,
		endpoint:   endpoint,
		apiKey:     apiKey,
		logger:     logger,
	}
}

func (c *GeminiClient) Generate(ctx context.Context, req *GenerateContentRequest) (Result, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Result{}, &TransportError{Op: "encode provider request", Err: err}
	}

	target, err := url.Parse(c.endpoint)
	if err != nil {
		return Result{}, &TransportError{Op: "build provider URL", Err: err}
	}
	query := target.Query()
	query.Set("key", c.apiKey)
	target.RawQuery = query.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(payload))
	if err != nil {
		return Result{}, &TransportError{Op: "build provider request", Err: c.redact(err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, &TransportError{Op: "call provider", Err: c.redact(err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderBodyBytes))
	if err != nil {
		return Result{}, &TransportError{Op: "read provider response", Err: err}
	}

	c.logger.Debug("provider responded",
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(body)),
		zap.Int("turns", len(req.Contents)),
	)

	if !gjson.ValidBytes(body) {
		return Result{}, &TransportError{
			Op:  "decode provider response",
			Err: fmt.Errorf("body is not JSON (HTTP %d)", resp.StatusCode),
		}
	}

	parsed := gjson.ParseBytes(body)
	if reason := parsed.Get("candidates.0.finishReason").String(); reason != "" && reason != "STOP" {
		c.logger.Warn("provider stopped early", zap.String("finish_reason", reason))
	}
	if block := parsed.Get("promptFeedback.blockReason").String(); block != "" {
		c.logger.Warn("provider blocked prompt", zap.String("block_reason", block))
	}

	return ExtractResult(body), nil
}

// redact strips the query string, and with it the API key, from URL errors.
func (c *GeminiClient) redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		urlErr.URL = c.endpoint
	}
	return err
}

// ExtractResult classifies a provider JSON body. It never fails: shapes it
// does not recognize become ResultUnrecognized.
func ExtractResult(body []byte) Result {
	parsed := gjson.ParseBytes(body)
	// Some endpoints wrap the payload in a one-element array.
	if parsed.IsArray() {
		parsed = parsed.Get("0")
	}

	if text := parsed.Get("candidates.0.content.parts.0.text"); text.Exists() && text.String() != "" {
		return Result{Kind: ResultSuccess, Text: text.String()}
	}

	if providerErr := parsed.Get("error"); truthy(providerErr) {
		msg := providerErr.Get("message").String()
		if msg == "" {
			msg = UnknownProviderError
		}
		return Result{Kind: ResultProviderError, Text: msg}
	}

	return Result{Kind: ResultUnrecognized}
}

func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.Null, gjson.False:
		return false
	case gjson.String:
		return v.Str != ""
	case gjson.Number:
		return v.Num != 0
	default:
		return v.Exists()
	}
}
