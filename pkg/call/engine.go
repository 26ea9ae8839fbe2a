// Package call runs the turn-taking loop of one simulated patient call.
//
// An Engine holds the shared, stateless collaborators (transcription, reply
// generation, synthesis, scenario lookup, transcript storage). Each media stream
// gets its own Session, driven by Engine.Run on a single goroutine: events are
// handled strictly in arrival order, and a dispatched turn runs to completion
// before the next event is looked at. Media that arrives meanwhile waits in the
// event channel and lands in the fresh buffer for the next turn.
package call

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/realtime-ai/patientbot/pkg/audio"
	"github.com/realtime-ai/patientbot/pkg/llm"
	"github.com/realtime-ai/patientbot/pkg/metrics"
	"github.com/realtime-ai/patientbot/pkg/scenario"
	"github.com/realtime-ai/patientbot/pkg/transcript"
)

// Thresholds decide when buffered inbound audio becomes a turn.
type Thresholds struct {
	// MediaBatchSize is the number of inbound media messages between dispatch checks.
	MediaBatchSize int
	// MinBufferBytes is the least buffered μ-law audio a batch check dispatches.
	MinBufferBytes int
	// MinFlushBytes is the least buffered audio flushed as a final turn on stop.
	MinFlushBytes int
}

// DefaultThresholds returns 100 messages (~2s), 12000 bytes (1.5s) and 800 bytes (100ms).
func DefaultThresholds() Thresholds {
	return Thresholds{
		MediaBatchSize: 100,
		MinBufferBytes: 12000,
		MinFlushBytes:  800,
	}
}

// Config tunes an Engine. Zero fields take defaults.
type Config struct {
	Thresholds    Thresholds
	CallTimeout   time.Duration // per external service call, default 20s
	FrameSize     int           // outbound frame size in bytes, default 320
	FallbackReply string        // spoken when reply generation fails
}

const defaultCallTimeout = 20 * time.Second

// TurnBudget bounds how long one dispatched turn can hold the session goroutine:
// three service calls plus up to one more CallTimeout of paced playback.
func (c Config) TurnBudget() time.Duration {
	return 4 * c.withDefaults().CallTimeout
}

func (c Config) withDefaults() Config {
	d := DefaultThresholds()
	if c.Thresholds.MediaBatchSize <= 0 {
		c.Thresholds.MediaBatchSize = d.MediaBatchSize
	}
	if c.Thresholds.MinBufferBytes <= 0 {
		c.Thresholds.MinBufferBytes = d.MinBufferBytes
	}
	if c.Thresholds.MinFlushBytes <= 0 {
		c.Thresholds.MinFlushBytes = d.MinFlushBytes
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = defaultCallTimeout
	}
	if c.FrameSize <= 0 {
		c.FrameSize = audio.WireFrameSize
	}
	if c.FallbackReply == "" {
		c.FallbackReply = llm.FallbackReply
	}
	return c
}

// Transcriber turns 8kHz μ-law audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, mulaw []byte) (string, error)
}

// Synthesizer turns text into 8kHz μ-law audio ready for framing.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// ScenarioLookup resolves a scenario ID.
type ScenarioLookup interface {
	Get(id string) (scenario.Scenario, bool)
}

// Recorder persists live and final transcripts.
type Recorder interface {
	LivePath(streamSid, scenarioID string) string
	SaveLive(path, scenarioID string, turns []transcript.Turn) error
	Finalize(livePath, callSid, scenarioID string, turns []transcript.Turn, completed time.Time) (string, error)
}

// Transport writes outbound messages to one media stream. Implementations must
// be safe to call while the stream's read side is still delivering events.
type Transport interface {
	SendMedia(ctx context.Context, payload string) error
	SendMark(ctx context.Context, name string) error
}

// Services are the collaborators shared by every session.
type Services struct {
	Transcriber Transcriber
	Responder   llm.Responder
	Synthesizer Synthesizer
	Scenarios   ScenarioLookup
	Recorder    Recorder
}

// Engine creates and drives sessions.
type Engine struct {
	cfg     Config
	svc     Services
	logger  *zap.Logger
	metrics *metrics.Collector

	now    func() time.Time
	markID func() string
}

// NewEngine returns an engine using svc. logger and m may be nil.
func NewEngine(cfg Config, svc Services, logger *zap.Logger, m *metrics.Collector) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:     cfg.withDefaults(),
		svc:     svc,
		logger:  logger.With(zap.String("component", "call")),
		metrics: m,
		now:     time.Now,
		markID:  func() string { return uuid.NewString()[:8] },
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// NewSession returns a session awaiting its start event.
func (e *Engine) NewSession(transport Transport) *Session {
	return &Session{
		engine:    e,
		transport: transport,
		logger:    e.logger,
		state:     StateAwaitingStart,
	}
}

// Run drives a new session from events until the stream stops, the channel
// closes or ctx is done. A stream that ends without a stop event keeps its live
// transcript on disk.
func (e *Engine) Run(ctx context.Context, transport Transport, events <-chan Event) *Session {
	s := e.NewSession(transport)
	for {
		select {
		case <-ctx.Done():
			s.abandon("context done")
			return s
		case ev, ok := <-events:
			if !ok {
				s.abandon("stream closed without stop")
				return s
			}
			s.Handle(ctx, ev)
			if s.State() == StateClosed {
				return s
			}
		}
	}
}
