package trace

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize_None(t *testing.T) {
	shutdown, err := Initialize(context.Background(), Config{Exporter: ExporterNone})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitialize_StdoutExportsTurnSpan(t *testing.T) {
	var out bytes.Buffer
	shutdown, err := Initialize(context.Background(), Config{Exporter: ExporterStdout, Writer: &out})
	require.NoError(t, err)

	ctx, span := InstrumentTurn(context.Background(), "MZ1", "schedule_new", 1, 12000)
	assert.NotEmpty(t, TraceID(ctx))
	assert.NotEmpty(t, SpanID(ctx))
	assert.Len(t, LogFields(ctx), 2)

	_, child := InstrumentLLMRequest(ctx, "openai", "gpt-4o-mini")
	RecordError(child, errors.New("boom"))
	child.End()
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, out.String(), "call.turn")
	assert.Contains(t, out.String(), "llm.request")
	assert.Contains(t, out.String(), "schedule_new")
}

func TestInitialize_UnsupportedExporter(t *testing.T) {
	_, err := Initialize(context.Background(), Config{Exporter: "carrier-pigeon"})
	assert.ErrorContains(t, err, "carrier-pigeon")
}

func TestLogFields_NoSpan(t *testing.T) {
	assert.Nil(t, LogFields(context.Background()))
}
