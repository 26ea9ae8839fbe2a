package call

import (
	"context"
	"encoding/base64"
	"fmt"

	"go.uber.org/zap"

	"github.com/realtime-ai/patientbot/pkg/metrics"
	"github.com/realtime-ai/patientbot/pkg/scenario"
	"github.com/realtime-ai/patientbot/pkg/transcript"
)

// State is a session's position in its lifecycle.
type State int

const (
	StateAwaitingStart State = iota
	StateStreaming
	StateFinalizing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingStart:
		return "awaiting_start"
	case StateStreaming:
		return "streaming"
	case StateFinalizing:
		return "finalizing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// EventType is the Twilio Media Streams event name.
type EventType string

const (
	EventConnected EventType = "connected"
	EventStart     EventType = "start"
	EventMedia     EventType = "media"
	EventStop      EventType = "stop"
	EventMark      EventType = "mark"
)

// Event is one inbound stream message reduced to the fields a session uses.
type Event struct {
	Type       EventType
	StreamSid  string
	CallSid    string
	ScenarioID string
	Track      string // media only; empty means inbound
	Payload    string // media only; base64 μ-law
	Mark       string // mark only
}

// Session is the state of one media stream. It is owned by a single goroutine
// and is not safe for concurrent use.
type Session struct {
	engine    *Engine
	transport Transport
	logger    *zap.Logger

	state      State
	streamSid  string
	callSid    string
	scenario   scenario.Scenario
	history    []transcript.Turn
	buffer     []byte
	mediaCount int
	turns      int
	firstSent  bool
	livePath   string
	finalPath  string
}

func (s *Session) State() State { return s.state }

func (s *Session) StreamSid() string { return s.streamSid }

func (s *Session) Scenario() scenario.Scenario { return s.scenario }

// FinalPath is the permanent transcript written on stop, if any.
func (s *Session) FinalPath() string { return s.finalPath }

// Buffered returns the number of inbound μ-law bytes waiting for the next turn.
func (s *Session) Buffered() int { return len(s.buffer) }

// Conversation returns a copy of the turns so far.
func (s *Session) Conversation() []transcript.Turn {
	out := make([]transcript.Turn, len(s.history))
	copy(out, s.history)
	return out
}

// Handle applies one event.
func (s *Session) Handle(ctx context.Context, ev Event) {
	switch ev.Type {
	case EventConnected:
		s.logger.Info("stream connected")
	case EventStart:
		s.HandleStart(ctx, ev)
	case EventMedia:
		if err := s.HandleMedia(ctx, ev); err != nil {
			s.logger.Warn("dropped media payload", zap.Error(err))
		}
	case EventStop:
		s.HandleStop(ctx, ev)
	case EventMark:
		s.logger.Debug("mark played", zap.String("mark", ev.Mark))
	default:
		s.logger.Debug("ignoring event", zap.String("event", string(ev.Type)))
	}
}

// HandleStart opens the session and, if the scenario has one, speaks the
// patient's first utterance before any inbound audio.
func (s *Session) HandleStart(ctx context.Context, ev Event) {
	if s.state != StateAwaitingStart {
		s.logger.Warn("ignoring repeated start", zap.String("state", s.state.String()))
		return
	}

	scenarioID := ev.ScenarioID
	if scenarioID == "" {
		scenarioID = scenario.DefaultID
	}
	sc, ok := s.engine.svc.Scenarios.Get(scenarioID)
	label := sc.ID
	if !ok {
		s.logger.Warn("unknown scenario, using generic persona", zap.String("scenario_id", scenarioID))
		sc = scenario.Fallback(transcript.SafeName(scenarioID))
		label = metrics.UnknownScenario
	}

	s.state = StateStreaming
	s.streamSid = ev.StreamSid
	s.callSid = ev.CallSid
	s.scenario = sc
	s.history = nil
	s.buffer = nil
	s.mediaCount = 0
	if s.streamSid != "" {
		s.livePath = s.engine.svc.Recorder.LivePath(s.streamSid, sc.ID)
	}
	s.logger = s.engine.logger.With(
		zap.String("stream_sid", s.streamSid),
		zap.String("scenario_id", sc.ID),
	)
	s.engine.metrics.SessionStarted(label)
	s.logger.Info("stream started", zap.String("call_sid", s.callSid))

	if sc.FirstUtterance != "" && !s.firstSent {
		s.firstSent = true
		s.history = append(s.history, transcript.Turn{Role: transcript.RolePatient, Text: sc.FirstUtterance})
		s.saveLive()
		if err := s.speak(ctx, sc.FirstUtterance, "first"); err != nil {
			s.speakFailed(s.logger.With(zap.String("mark", "first")), err, "")
		}
	}
}

// HandleMedia buffers inbound audio and dispatches a turn when the batch and
// size thresholds are both met. Outbound media is the patient's own echo and is
// ignored.
func (s *Session) HandleMedia(ctx context.Context, ev Event) error {
	if s.state != StateStreaming {
		return nil
	}
	if ev.Track != "" && ev.Track != "inbound" {
		return nil
	}
	if ev.Payload == "" {
		return nil
	}

	s.mediaCount++
	chunk, err := base64.StdEncoding.DecodeString(ev.Payload)
	if err != nil {
		err = fmt.Errorf("decode media payload: %w", err)
	} else {
		s.buffer = append(s.buffer, chunk...)
	}

	th := s.engine.cfg.Thresholds
	if s.mediaCount >= th.MediaBatchSize {
		s.mediaCount = 0
		if len(s.buffer) >= th.MinBufferBytes {
			s.runTurn(ctx, s.takeBuffer())
		}
	}
	return err
}

// HandleStop flushes remaining speech, writes the final transcript and closes
// the session.
func (s *Session) HandleStop(ctx context.Context, ev Event) {
	if s.state == StateFinalizing || s.state == StateClosed {
		return
	}
	started := s.state == StateStreaming
	s.state = StateFinalizing

	if started && len(s.buffer) >= s.engine.cfg.Thresholds.MinFlushBytes {
		s.runTurn(ctx, s.takeBuffer())
	}
	s.buffer = nil
	s.saveLive()

	callSid := ev.CallSid
	if callSid == "" {
		callSid = s.callSid
	}
	scenarioID := s.scenario.ID
	if scenarioID == "" {
		scenarioID = scenario.DefaultID
	}

	path, err := s.engine.svc.Recorder.Finalize(s.livePath, callSid, scenarioID, s.Conversation(), s.engine.now())
	if err != nil {
		s.persistFailed(&PersistenceError{Path: "final transcript", Err: err})
	} else {
		s.logger.Info("saved final transcript", zap.String("path", path), zap.Int("turns", len(s.history)))
	}
	s.finalPath = path

	s.state = StateClosed
	if started {
		s.engine.metrics.SessionEnded()
	}
	s.logger.Info("stream stopped", zap.String("call_sid", callSid))
}

// abandon closes a session whose stream ended without a stop event.
func (s *Session) abandon(reason string) {
	if s.state == StateClosed {
		return
	}
	if s.state == StateStreaming {
		s.engine.metrics.SessionEnded()
		s.logger.Warn("session abandoned", zap.String("reason", reason), zap.String("live_transcript", s.livePath))
	}
	s.state = StateClosed
}

// takeBuffer hands the buffered audio to a turn and starts a fresh buffer.
func (s *Session) takeBuffer() []byte {
	snapshot := s.buffer
	s.buffer = nil
	return snapshot
}

func (s *Session) saveLive() {
	if err := s.engine.svc.Recorder.SaveLive(s.livePath, s.scenario.ID, s.history); err != nil {
		s.persistFailed(&PersistenceError{Path: s.livePath, Err: err})
	}
}

func (s *Session) persistFailed(err *PersistenceError) {
	s.engine.metrics.PersistenceFailed()
	s.logger.Warn("transcript not saved", zap.Error(err))
}
