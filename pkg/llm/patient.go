// Package llm generates what the simulated patient says next.
//
// Responders are stateless: every call receives the scenario and the whole
// conversation so far, so one client can serve every concurrent call.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/realtime-ai/patientbot/pkg/scenario"
	"github.com/realtime-ai/patientbot/pkg/transcript"
)

// FallbackReply is spoken when the reply model cannot be reached.
const FallbackReply = "Sorry, I didn't catch that. Can you repeat?"

// Responder produces the patient's next utterance.
type Responder interface {
	Reply(ctx context.Context, sc scenario.Scenario, history []transcript.Turn, latest string) (string, error)
}

// Persona is the patient identity the model speaks as.
type Persona struct {
	Name string
	DOB  string
}

const systemTemplate = `You are %s, DOB %s. You are on a phone call with a medical office's AI agent. Speak as a real patient: short, natural phrases. One or two sentences per turn. Do not list options or be formal. No "I would like to..." unless natural. You can say "um", "yeah", "okay". Never break the fourth wall or mention you are an AI.

Scenario goal: %s
Additional instructions: %s

Respond with ONLY what the patient says out loud, nothing else. No quotes, no labels.`

// SystemPrompt renders the persona and scenario into the model's instructions.
func SystemPrompt(p Persona, sc scenario.Scenario) string {
	instructions := sc.Instructions
	if instructions == "" {
		instructions = "Respond naturally and briefly."
	}
	return fmt.Sprintf(systemTemplate, p.Name, p.DOB, sc.Goal, instructions)
}

// LatestPrompt is the final user message carrying the utterance to answer.
func LatestPrompt(latest string) string {
	return "Agent said: " + latest
}

// CleanReply trims model output and drops one pair of wrapping double quotes.
func CleanReply(text string) string {
	text = strings.TrimSpace(text)
	if len(text) >= 2 && strings.HasPrefix(text, `"`) && strings.HasSuffix(text, `"`) {
		text = text[1 : len(text)-1]
	}
	return text
}
