package trace

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentTurn creates the parent span for one agent/patient exchange
func InstrumentTurn(ctx context.Context, streamSid, scenarioID string, turn, bufferedBytes int) (context.Context, trace.Span) {
	attrs := CallAttrs(streamSid, scenarioID)
	attrs = append(attrs,
		attribute.Int(AttrTurnNumber, turn),
		attribute.Int(AttrAudioDataSize, bufferedBytes),
	)
	return StartSpan(ctx, "call.turn", trace.WithAttributes(attrs...))
}

// InstrumentLLMRequest creates a span for LLM requests
func InstrumentLLMRequest(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return StartSpan(ctx, "llm.request",
		trace.WithAttributes(
			LLMAttrs(provider, model)...,
		),
	)
}

// InstrumentSTTRequest creates a span for STT (Speech-to-Text) requests
func InstrumentSTTRequest(ctx context.Context, provider string, audioSize int) (context.Context, trace.Span) {
	return StartSpan(ctx, "stt.request",
		trace.WithAttributes(
			attribute.String(AttrSTTProvider, provider),
			attribute.Int("audio.size", audioSize),
		),
	)
}

// InstrumentTTSRequest creates a span for TTS (Text-to-Speech) requests
func InstrumentTTSRequest(ctx context.Context, provider, voice, text string) (context.Context, trace.Span) {
	return StartSpan(ctx, "tts.request",
		trace.WithAttributes(
			attribute.String(AttrTTSProvider, provider),
			attribute.String(AttrTTSVoice, voice),
			attribute.Int("text.length", len(text)),
		),
	)
}

// InstrumentAudioProcessing creates a span for audio processing operations
func InstrumentAudioProcessing(ctx context.Context, operation string, inputSize, outputSize int) (context.Context, trace.Span) {
	return StartSpan(ctx, fmt.Sprintf("audio.%s", operation),
		trace.WithAttributes(
			attribute.String("audio.operation", operation),
			attribute.Int("audio.input_size", inputSize),
			attribute.Int("audio.output_size", outputSize),
		),
	)
}
