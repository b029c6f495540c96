package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/docmate-health/docmate/internal/gemini"
	"github.com/docmate-health/docmate/pkg/model"
	"go.uber.org/zap"
)

// Generator produces JSON text from a single model call
type Generator interface {
	GenerateJSON(ctx context.Context, req gemini.Request) (string, error)
}

// Upload is an in-memory file received from a multipart form
type Upload struct {
	Filename string
	MIMEType string
	Data     []byte
}

const (
	// maxChatTurns is how many prior turns are forwarded with a chat message.
	maxChatTurns = 10

	chatTemperature = 0.7
	chatMaxTokens   = 1000

	defaultAudioMIMEType = "audio/wav"
)

var (
	symptomKeys = []string{"risk_level", "risk_score", "possible_conditions", "recommendation", "warning_signs"}
	reportKeys  = []string{"patient_info", "triage_status", "vital_signs", "ai_analysis"}
	remedyKeys  = []string{"disclaimer", "remedies"}
	chatKeys    = []string{"response", "language_code"}
	insightKeys = []string{"score", "riskLevel", "summary", "predictions", "actionPlan"}
)

// ErrUnsupportedAudio is returned by ChatAudio for recordings in a format
// the model endpoint cannot declare
var ErrUnsupportedAudio = gemini.ErrUnsupportedAudio

// GatewayService builds prompts, makes exactly one model call per operation
// and returns the model JSON unchanged once it has the expected keys.
type GatewayService struct {
	ai     Generator
	logger *zap.Logger
}

// NewGatewayService creates a new GatewayService
func NewGatewayService(ai Generator, logger *zap.Logger) *GatewayService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GatewayService{
		ai:     ai,
		logger: logger,
	}
}

// AnalyzeSymptoms triages free-text symptoms with optional vitals and profile
func (s *GatewayService) AnalyzeSymptoms(ctx context.Context, req model.SymptomsRequest) (json.RawMessage, error) {
	return s.generate(ctx, gemini.Request{
		Operation: "analyze-symptoms",
		Parts:     []gemini.Part{{Text: buildSymptomsPrompt(req)}},
	}, symptomKeys)
}

// AnalyzeReport runs OCR and triage over an uploaded report
func (s *GatewayService) AnalyzeReport(ctx context.Context, file Upload) (json.RawMessage, error) {
	return s.generate(ctx, gemini.Request{
		Operation: "analyze-report",
		Parts: []gemini.Part{
			{Text: reportPrompt},
			{Data: file.Data, MIMEType: file.MIMEType},
		},
	}, reportKeys)
}

// SuggestRemedies asks for supportive remedies for a diagnosis
func (s *GatewayService) SuggestRemedies(ctx context.Context, req model.RemediesRequest) (json.RawMessage, error) {
	return s.generate(ctx, gemini.Request{
		Operation: "suggest-remedies",
		Parts:     []gemini.Part{{Text: buildRemediesPrompt(req)}},
	}, remedyKeys)
}

// Chat answers a text message in the context of the recent conversation
func (s *GatewayService) Chat(ctx context.Context, req model.ChatRequest) (json.RawMessage, error) {
	temperature := chatTemperature
	return s.generate(ctx, gemini.Request{
		Operation:   "chat",
		System:      buildChatSystemPrompt(req.PreferredLanguage),
		History:     SanitizeHistory(req.History),
		Parts:       []gemini.Part{{Text: req.Message}},
		Temperature: &temperature,
		MaxTokens:   chatMaxTokens,
	}, chatKeys)
}

// ChatAudio answers a recorded voice message
func (s *GatewayService) ChatAudio(ctx context.Context, audio Upload, preferredLanguage string) (json.RawMessage, error) {
	mimeType := audio.MIMEType
	if mimeType == "" {
		mimeType = defaultAudioMIMEType
	}
	if _, ok := gemini.AudioFormat(mimeType); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAudio, mimeType)
	}
	return s.generate(ctx, gemini.Request{
		Operation: "chat-audio",
		System:    buildChatSystemPrompt(preferredLanguage),
		Parts: []gemini.Part{
			{Data: audio.Data, MIMEType: mimeType},
			{Text: audioInstruction},
		},
	}, chatKeys)
}

// GenerateInsights produces the predictive health overview
func (s *GatewayService) GenerateInsights(ctx context.Context, req model.InsightsRequest) (json.RawMessage, error) {
	return s.generate(ctx, gemini.Request{
		Operation: "generate-health-insights",
		Parts:     []gemini.Part{{Text: buildInsightsPrompt(req)}},
	}, insightKeys)
}

func (s *GatewayService) generate(ctx context.Context, req gemini.Request, required []string) (json.RawMessage, error) {
	text, err := s.ai.GenerateJSON(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("AI request failed: %w", err)
	}

	payload, err := parseModelJSON(text, required...)
	if err != nil {
		s.logger.Error("failed to parse AI response",
			zap.String("operation", req.Operation),
			zap.Error(err),
			zap.String("response", text),
		)
		return nil, err
	}

	s.logger.Info("AI request completed",
		zap.String("operation", req.Operation),
		zap.Int("response_bytes", len(payload)),
	)

	return payload, nil
}

// SanitizeHistory converts client chat turns into model turns. Only the last
// maxChatTurns turns are kept, then a single leading model turn is dropped.
func SanitizeHistory(history []model.ChatTurn) []gemini.Turn {
	if len(history) > maxChatTurns {
		history = history[len(history)-maxChatTurns:]
	}

	turns := make([]gemini.Turn, 0, len(history))
	for _, msg := range history {
		role := gemini.RoleModel
		if msg.Sender == "user" {
			role = gemini.RoleUser
		}
		turns = append(turns, gemini.Turn{Role: role, Text: msg.Text})
	}

	if len(turns) > 0 && turns[0].Role == gemini.RoleModel {
		turns = turns[1:]
	}

	return turns
}
