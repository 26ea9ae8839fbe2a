package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/realtime-ai/patientbot/pkg/scenario"
	"github.com/realtime-ai/patientbot/pkg/trace"
	"github.com/realtime-ai/patientbot/pkg/transcript"
)

// GeminiConfig configures the Gemini responder.
type GeminiConfig struct {
	APIKey  string
	Model   string // defaults to gemini-2.0-flash
	Persona Persona
}

// GeminiResponder answers as the patient using the Gemini API.
type GeminiResponder struct {
	config GeminiConfig
	client *genai.Client
}

// NewGeminiResponder creates a responder backed by Gemini.
func NewGeminiResponder(ctx context.Context, config GeminiConfig) (*GeminiResponder, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if config.Model == "" {
		config.Model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: config.APIKey, Backend: genai.BackendGoogleAI})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiResponder{config: config, client: client}, nil
}

// Reply asks Gemini for the patient's next utterance.
func (r *GeminiResponder) Reply(ctx context.Context, sc scenario.Scenario, history []transcript.Turn, latest string) (string, error) {
	ctx, span := trace.InstrumentLLMRequest(ctx, "gemini", r.config.Model)
	defer span.End()

	resp, err := r.client.Models.GenerateContent(ctx, r.config.Model, geminiContents(history, latest), &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: SystemPrompt(r.config.Persona, sc)}},
		},
	})
	if err != nil {
		trace.RecordError(span, err)
		return "", fmt.Errorf("gemini error: %w", err)
	}

	text := collectGeminiText(resp)
	if text == "" {
		return "", fmt.Errorf("no response from Gemini")
	}
	return CleanReply(text), nil
}

// geminiContents maps agent turns to "user" and patient turns to "model".
func geminiContents(history []transcript.Turn, latest string) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, turn := range history {
		role := "model"
		if turn.Role == transcript.RoleAgent {
			role = "user"
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []*genai.Part{{Text: turn.Text}}})
	}
	return append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: LatestPrompt(latest)}}})
}

func collectGeminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var builder strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil || part.Text == "" {
				continue
			}
			builder.WriteString(part.Text)
		}
	}

	return builder.String()
}
