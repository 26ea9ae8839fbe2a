package trace

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys used throughout the application
const (
	// Call attributes
	AttrStreamSid  = "call.stream_sid"
	AttrScenarioID = "call.scenario_id"
	AttrTurnNumber = "call.turn"

	// Audio attributes
	AttrAudioDataSize = "audio.data_size"

	// AI/LLM attributes
	AttrLLMProvider = "llm.provider"
	AttrLLMModel    = "llm.model"

	// STT/TTS attributes
	AttrSTTProvider = "stt.provider"
	AttrTTSProvider = "tts.provider"
	AttrTTSVoice    = "tts.voice"
)

// CallAttrs creates attributes identifying a call
func CallAttrs(streamSid, scenarioID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrStreamSid, streamSid),
		attribute.String(AttrScenarioID, scenarioID),
	}
}

// LLMAttrs creates attributes for LLM operations
func LLMAttrs(provider, model string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrLLMProvider, provider),
		attribute.String(AttrLLMModel, model),
	}
}
