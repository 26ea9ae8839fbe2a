package llm

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/realtime-ai/patientbot/pkg/scenario"
	"github.com/realtime-ai/patientbot/pkg/trace"
	"github.com/realtime-ai/patientbot/pkg/transcript"
)

// OpenAIConfig configures the chat completion responder.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string  // defaults to gpt-4o-mini
	MaxTokens   int     // defaults to 150
	Temperature float64 // defaults to 0.8
	Persona     Persona
}

// OpenAIResponder answers as the patient using the OpenAI Chat Completion API.
type OpenAIResponder struct {
	config OpenAIConfig
	client openai.Client
}

// NewOpenAIResponder creates a responder backed by OpenAI chat completions.
func NewOpenAIResponder(config OpenAIConfig) (*OpenAIResponder, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 150
	}
	if config.Temperature == 0 {
		config.Temperature = 0.8
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &OpenAIResponder{
		config: config,
		client: openai.NewClient(opts...),
	}, nil
}

// Reply asks the model for the patient's next utterance.
func (r *OpenAIResponder) Reply(ctx context.Context, sc scenario.Scenario, history []transcript.Turn, latest string) (string, error) {
	ctx, span := trace.InstrumentLLMRequest(ctx, "openai", r.config.Model)
	defer span.End()

	completion, err := r.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:    r.buildMessages(sc, history, latest),
		Model:       shared.ChatModel(r.config.Model),
		MaxTokens:   openai.Int(int64(r.config.MaxTokens)),
		Temperature: openai.Float(r.config.Temperature),
	})
	if err != nil {
		trace.RecordError(span, err)
		return "", fmt.Errorf("completion error: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no response from model")
	}

	return CleanReply(completion.Choices[0].Message.Content), nil
}

// buildMessages maps agent turns to the user role and patient turns to the
// assistant role, since the model plays the patient.
func (r *OpenAIResponder) buildMessages(sc scenario.Scenario, history []transcript.Turn, latest string) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	messages = append(messages, openai.SystemMessage(SystemPrompt(r.config.Persona, sc)))

	for _, turn := range history {
		if turn.Role == transcript.RoleAgent {
			messages = append(messages, openai.UserMessage(turn.Text))
		} else {
			messages = append(messages, openai.AssistantMessage(turn.Text))
		}
	}

	return append(messages, openai.UserMessage(LatestPrompt(latest)))
}
