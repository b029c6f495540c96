package gemini

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"
)

// ErrMissingAPIKey is returned by every call when no API key is configured.
var ErrMissingAPIKey = errors.New("GEMINI_API_KEY is missing")

// ErrUnsupportedAudio is returned for audio parts whose MIME type has no
// input_audio format.
var ErrUnsupportedAudio = errors.New("unsupported audio format")

// Role is the author of a conversation turn
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one prior message of a conversation
type Turn struct {
	Role Role
	Text string
}

// Part is one piece of the final user message. Parts with Data are sent
// inline, parts without are sent as text.
type Part struct {
	Text     string
	Data     []byte
	MIMEType string
}

// Request describes a single JSON-mode generation
type Request struct {
	// Operation labels logs and metrics, e.g. "analyze-symptoms".
	Operation   string
	System      string
	History     []Turn
	Parts       []Part
	Temperature *float64
	MaxTokens   int64
}

// Observer receives the outcome of every upstream call.
type Observer interface {
	ObserveUpstream(operation string, err error, duration time.Duration)
}

// Config holds client settings
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Client calls Gemini through its OpenAI-compatible chat completions API.
// Exactly one HTTP request is made per call; SDK retries are disabled.
type Client struct {
	client   *openai.Client
	model    string
	hasKey   bool
	logger   *zap.Logger
	observer Observer
}

// NewClient creates a new Gemini client. A missing API key is not an error
// here; it is reported by the first call.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.Model == "" || cfg.BaseURL == "" {
		return nil, fmt.Errorf("model and base URL are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(0),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	client := openai.NewClient(opts...)

	return &Client{
		client: &client,
		model:  cfg.Model,
		hasKey: strings.TrimSpace(cfg.APIKey) != "",
		logger: logger,
	}, nil
}

// WithObserver sets the observer notified after each upstream call.
func (c *Client) WithObserver(o Observer) *Client {
	c.observer = o
	return c
}

// GenerateJSON sends the request with JSON output enabled and returns the
// raw text of the first choice.
func (c *Client) GenerateJSON(ctx context.Context, req Request) (string, error) {
	if !c.hasKey {
		return "", ErrMissingAPIKey
	}

	start := time.Now()
	text, err := c.complete(ctx, req)
	duration := time.Since(start)

	if c.observer != nil {
		c.observer.ObserveUpstream(req.Operation, err, duration)
	}

	if err != nil {
		c.logger.Error("Gemini request failed",
			zap.String("operation", req.Operation),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return "", err
	}

	return text, nil
}

// complete performs a single chat completion request
func (c *Client) complete(ctx context.Context, req Request) (string, error) {
	messages, err := buildMessages(req)
	if err != nil {
		return "", err
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(req.MaxTokens)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from Gemini")
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", fmt.Errorf("empty content in response")
	}

	c.logger.Info("Gemini token usage",
		zap.String("operation", req.Operation),
		zap.String("model", c.model),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
		zap.Int64("total_tokens", resp.Usage.TotalTokens),
	)

	return content, nil
}

func buildMessages(req Request) ([]openai.ChatCompletionMessageParamUnion, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}

	for _, turn := range req.History {
		if turn.Role == RoleModel {
			messages = append(messages, openai.AssistantMessage(turn.Text))
		} else {
			messages = append(messages, openai.UserMessage(turn.Text))
		}
	}

	if len(req.Parts) == 1 && req.Parts[0].Data == nil {
		return append(messages, openai.UserMessage(req.Parts[0].Text)), nil
	}

	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(req.Parts))
	for _, p := range req.Parts {
		switch {
		case p.Data == nil:
			parts = append(parts, openai.TextContentPart(p.Text))
		case strings.HasPrefix(p.MIMEType, "audio/"):
			format, ok := AudioFormat(p.MIMEType)
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnsupportedAudio, p.MIMEType)
			}
			parts = append(parts, openai.InputAudioContentPart(openai.ChatCompletionContentPartInputAudioInputAudioParam{
				Data:   base64.StdEncoding.EncodeToString(p.Data),
				Format: format,
			}))
		default:
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: DataURL(p.MIMEType, p.Data),
			}))
		}
	}

	return append(messages, openai.UserMessage(parts)), nil
}

// DataURL encodes inline file data as a base64 data URL.
func DataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// AudioFormat maps an audio MIME type onto the input_audio format field.
// Parameters such as ";codecs=opus" are ignored. ok is false for types the
// endpoint cannot declare.
func AudioFormat(mimeType string) (format string, ok bool) {
	base, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(mimeType)), ";")
	format, ok = audioFormats[strings.TrimSpace(base)]
	return format, ok
}

var audioFormats = map[string]string{
	"audio/mpeg":     "mp3",
	"audio/mp3":      "mp3",
	"audio/wav":      "wav",
	"audio/wave":     "wav",
	"audio/x-wav":    "wav",
	"audio/vnd.wave": "wav",
	"audio/webm":     "webm",
	"audio/ogg":      "ogg",
	"audio/opus":     "ogg",
	"audio/flac":     "flac",
	"audio/x-flac":   "flac",
	"audio/aac":      "aac",
	"audio/aiff":     "aiff",
	"audio/x-aiff":   "aiff",
}
