package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/docmate-health/docmate/internal/gemini"
	"github.com/docmate-health/docmate/pkg/model"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// MockGenerator is a mock implementation of Generator
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) GenerateJSON(ctx context.Context, req gemini.Request) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func operation(name string) interface{} {
	return mock.MatchedBy(func(req gemini.Request) bool { return req.Operation == name })
}

const symptomReply = `{"risk_level":"Moderate","risk_score":5,"possible_conditions":[{"name":"Migraine","probability":70}],"recommendation":"Rest in a dark room","warning_signs":["Vomiting"]}`

func TestGatewayService_AnalyzeSymptoms_Success(t *testing.T) {
	// Arrange
	ai := new(MockGenerator)
	svc := NewGatewayService(ai, zap.NewNop())
	ctx := context.Background()

	var sent gemini.Request
	ai.On("GenerateJSON", ctx, operation("analyze-symptoms")).
		Run(func(args mock.Arguments) { sent = args.Get(1).(gemini.Request) }).
		Return("```json\n"+symptomReply+"\n```", nil).Once()

	// Act
	raw, err := svc.AnalyzeSymptoms(ctx, model.SymptomsRequest{
		Symptoms: "severe headache and nausea",
		Vitals:   json.RawMessage(`{"temp":"98.6","hr":"72"}`),
	})

	// Assert
	require.NoError(t, err)
	assert.JSONEq(t, symptomReply, string(raw))
	require.Len(t, sent.Parts, 1)
	assert.Contains(t, sent.Parts[0].Text, "severe headache and nausea")
	assert.Contains(t, sent.Parts[0].Text, `{"temp":"98.6","hr":"72"}`)
	assert.Contains(t, sent.Parts[0].Text, "Profile: null")
	ai.AssertExpectations(t)
}

func TestGatewayService_ParseFailures(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{name: "not json", reply: "I think you have a cold."},
		{name: "array", reply: `[{"risk_level":"Low"}]`},
		{name: "null", reply: `null`},
		{name: "missing key", reply: `{"risk_level":"Low","risk_score":2,"possible_conditions":[],"recommendation":"rest"}`},
		{name: "null key", reply: `{"risk_level":null,"risk_score":2,"possible_conditions":[],"recommendation":"rest","warning_signs":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ai := new(MockGenerator)
			core, logs := observer.New(zapcore.ErrorLevel)
			svc := NewGatewayService(ai, zap.New(core))

			ai.On("GenerateJSON", mock.Anything, mock.Anything).Return(tt.reply, nil).Once()

			raw, err := svc.AnalyzeSymptoms(context.Background(), model.SymptomsRequest{Symptoms: "cough"})

			assert.Nil(t, raw)
			assert.ErrorIs(t, err, ErrMalformedResponse)
			assert.Equal(t, 1, logs.FilterMessage("failed to parse AI response").Len())
			ai.AssertNumberOfCalls(t, "GenerateJSON", 1)
		})
	}
}

func TestGatewayService_UpstreamErrorIsTerminal(t *testing.T) {
	ai := new(MockGenerator)
	svc := NewGatewayService(ai, zap.NewNop())

	ai.On("GenerateJSON", mock.Anything, mock.Anything).Return("", gemini.ErrMissingAPIKey).Once()

	_, err := svc.SuggestRemedies(context.Background(), model.RemediesRequest{Diagnosis: "flu"})

	assert.ErrorIs(t, err, gemini.ErrMissingAPIKey)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY is missing")
	ai.AssertNumberOfCalls(t, "GenerateJSON", 1)
}

func TestGatewayService_AnalyzeReport_SendsInlineFile(t *testing.T) {
	ai := new(MockGenerator)
	svc := NewGatewayService(ai, zap.NewNop())

	reply := `{"patient_info":{},"triage_status":{"level":"Low Risk"},"vital_signs":[],"ai_analysis":{}}`
	var sent gemini.Request
	ai.On("GenerateJSON", mock.Anything, operation("analyze-report")).
		Run(func(args mock.Arguments) { sent = args.Get(1).(gemini.Request) }).
		Return(reply, nil).Once()

	raw, err := svc.AnalyzeReport(context.Background(), Upload{Filename: "cbc.png", MIMEType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}})

	require.NoError(t, err)
	assert.JSONEq(t, reply, string(raw))
	require.Len(t, sent.Parts, 2)
	assert.Equal(t, "image/png", sent.Parts[1].MIMEType)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, sent.Parts[1].Data)
}

func TestGatewayService_Chat(t *testing.T) {
	ai := new(MockGenerator)
	svc := NewGatewayService(ai, zap.NewNop())

	var sent gemini.Request
	ai.On("GenerateJSON", mock.Anything, operation("chat")).
		Run(func(args mock.Arguments) { sent = args.Get(1).(gemini.Request) }).
		Return(`{"response":"నమస్తే","language_code":"te-IN"}`, nil).Once()

	_, err := svc.Chat(context.Background(), model.ChatRequest{
		Message: "hello",
		History: []model.ChatTurn{
			{Sender: "bot", Text: "Namaste, I am Viraj"},
			{Sender: "user", Text: "I have a fever"},
			{Sender: "bot", Text: "Since when?"},
		},
		PreferredLanguage: "te-IN",
	})

	require.NoError(t, err)
	assert.Contains(t, sent.System, "USER PREFERRED LANGUAGE: te-IN")
	require.Len(t, sent.History, 2)
	assert.Equal(t, gemini.RoleUser, sent.History[0].Role)
	assert.Equal(t, gemini.RoleModel, sent.History[1].Role)
	require.NotNil(t, sent.Temperature)
	assert.Equal(t, 0.7, *sent.Temperature)
	assert.Equal(t, int64(1000), sent.MaxTokens)
}

func TestGatewayService_Chat_MissingLanguageCode(t *testing.T) {
	ai := new(MockGenerator)
	svc := NewGatewayService(ai, zap.NewNop())
	ai.On("GenerateJSON", mock.Anything, mock.Anything).Return(`{"response":"hi"}`, nil).Once()

	_, err := svc.Chat(context.Background(), model.ChatRequest{Message: "hello"})
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestGatewayService_ChatAudio_DefaultsMIMEType(t *testing.T) {
	ai := new(MockGenerator)
	svc := NewGatewayService(ai, zap.NewNop())

	var sent gemini.Request
	ai.On("GenerateJSON", mock.Anything, operation("chat-audio")).
		Run(func(args mock.Arguments) { sent = args.Get(1).(gemini.Request) }).
		Return(`{"response":"ठीक है","language_code":"hi-IN"}`, nil).Once()

	_, err := svc.ChatAudio(context.Background(), Upload{Data: []byte("RIFF")}, "")

	require.NoError(t, err)
	assert.Equal(t, "audio/wav", sent.Parts[0].MIMEType)
	assert.NotContains(t, sent.System, "USER PREFERRED LANGUAGE")
}

func TestGatewayService_ChatAudio_RejectsUnsupportedFormat(t *testing.T) {
	ai := new(MockGenerator)
	svc := NewGatewayService(ai, zap.NewNop())

	_, err := svc.ChatAudio(context.Background(), Upload{Data: []byte("ftyp"), MIMEType: "audio/mp4"}, "")

	assert.ErrorIs(t, err, ErrUnsupportedAudio)
	ai.AssertNotCalled(t, "GenerateJSON", mock.Anything, mock.Anything)
}

func TestGatewayService_GenerateInsights(t *testing.T) {
	ai := new(MockGenerator)
	svc := NewGatewayService(ai, zap.NewNop())

	reply := `{"score":82,"riskLevel":"Low","summary":"Stable","predictions":[],"actionPlan":[{"id":"walk","task":"Walk 30 minutes","category":"Short-term","completed":false}]}`
	var sent gemini.Request
	ai.On("GenerateJSON", mock.Anything, operation("generate-health-insights")).
		Run(func(args mock.Arguments) { sent = args.Get(1).(gemini.Request) }).
		Return(reply, nil).Once()

	raw, err := svc.GenerateInsights(context.Background(), model.InsightsRequest{
		UserProfile: json.RawMessage(`{"fullName":"Asha"}`),
		Assessments: []json.RawMessage{json.RawMessage(`{"severity_score":3}`)},
	})

	require.NoError(t, err)
	assert.JSONEq(t, reply, string(raw))
	assert.Contains(t, sent.Parts[0].Text, `{"fullName":"Asha"}`)
	assert.Contains(t, sent.Parts[0].Text, `[{"severity_score":3}]`)
	assert.Contains(t, sent.Parts[0].Text, "Recent reports: []")
}

func TestBuildRemediesPrompt(t *testing.T) {
	prompt := buildRemediesPrompt(model.RemediesRequest{
		Diagnosis:  "Iron deficiency anemia",
		RiskLevel:  "Doctor Visit",
		VitalSigns: []model.VitalSign{{Label: "Hemoglobin", Value: "9 g/dL", Status: "Warning"}},
	})

	assert.Contains(t, prompt, "Diagnosis: Iron deficiency anemia")
	assert.Contains(t, prompt, "Risk level: Doctor Visit")
	assert.Contains(t, prompt, "- Hemoglobin: 9 g/dL (Warning)")
	assert.Contains(t, prompt, `"ayurvedic"`)
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("```\n{\"a\":1}```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence(`  {"a":1}  `))
}

func TestSanitizeHistory(t *testing.T) {
	assert.Empty(t, SanitizeHistory(nil))

	turns := SanitizeHistory([]model.ChatTurn{{Sender: "bot", Text: "welcome"}})
	assert.Empty(t, turns)

	turns = SanitizeHistory([]model.ChatTurn{{Sender: "user", Text: "a"}, {Sender: "assistant", Text: "b"}})
	require.Len(t, turns, 2)
	assert.Equal(t, gemini.RoleUser, turns[0].Role)
	assert.Equal(t, gemini.RoleModel, turns[1].Role)
}

// Property: the forwarded history is the last ten turns in order, minus one
// leading model turn.
func TestProperty_SanitizeHistory(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("history is trimmed to the last ten turns", prop.ForAll(
		func(senders []bool) bool {
			history := make([]model.ChatTurn, len(senders))
			for i, isUser := range senders {
				sender := "bot"
				if isUser {
					sender = "user"
				}
				history[i] = model.ChatTurn{Sender: sender, Text: fmt.Sprintf("msg-%d", i)}
			}

			turns := SanitizeHistory(history)
			if len(turns) > maxChatTurns {
				return false
			}

			window := history
			if len(window) > maxChatTurns {
				window = window[len(window)-maxChatTurns:]
			}
			if len(window) > 0 && window[0].Sender != "user" {
				window = window[1:]
			}
			if len(window) != len(turns) {
				return false
			}
			for i := range turns {
				if turns[i].Text != window[i].Text {
					return false
				}
				if (turns[i].Role == gemini.RoleUser) != (window[i].Sender == "user") {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}

func TestParseModelJSON_Compacts(t *testing.T) {
	raw, err := parseModelJSON("{\n  \"response\": \"hi\",\n  \"language_code\": \"en-IN\"\n}", chatKeys...)
	require.NoError(t, err)
	assert.Equal(t, `{"response":"hi","language_code":"en-IN"}`, string(raw))

	_, err = parseModelJSON(`{"response": "hi"}`, chatKeys...)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedResponse))
	assert.True(t, strings.Contains(err.Error(), "language_code"))
}
