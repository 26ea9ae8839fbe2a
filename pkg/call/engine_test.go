package call

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realtime-ai/patientbot/pkg/audio"
	"github.com/realtime-ai/patientbot/pkg/llm"
	"github.com/realtime-ai/patientbot/pkg/scenario"
	"github.com/realtime-ai/patientbot/pkg/transcript"
)

type harness struct {
	stt       *fakeTranscriber
	llm       *fakeResponder
	tts       *fakeSynthesizer
	rec       *fakeRecorder
	transport *fakeTransport
	engine    *Engine
	session   *Session
}

var plainCatalog = scenario.NewCatalog(scenario.Scenario{ID: "plain", Goal: "Chat."})

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		stt:       &fakeTranscriber{text: "What is your date of birth?"},
		llm:       &fakeResponder{reply: "July 14th, 2001."},
		tts:       &fakeSynthesizer{size: 700},
		rec:       &fakeRecorder{},
		transport: &fakeTransport{},
	}
	h.engine = NewEngine(cfg, Services{
		Transcriber: h.stt,
		Responder:   h.llm,
		Synthesizer: h.tts,
		Scenarios:   plainCatalog,
		Recorder:    h.rec,
	}, nil, nil)
	seq := 0
	h.engine.markID = func() string {
		seq++
		return fmt.Sprintf("id%d", seq)
	}
	h.session = h.engine.NewSession(h.transport)
	return h
}

func (h *harness) feed(t *testing.T, n, size int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, h.session.HandleMedia(context.Background(), mediaEvent(size)))
	}
}

func roles(turns []transcript.Turn) []transcript.Role {
	out := make([]transcript.Role, len(turns))
	for i, turn := range turns {
		out[i] = turn.Role
	}
	return out
}

func TestDispatchThreshold(t *testing.T) {
	h := newHarness(t, Config{})
	h.session.HandleStart(context.Background(), startEvent("plain"))
	assert.Equal(t, StateStreaming, h.session.State())

	h.feed(t, 99, 160)
	assert.Equal(t, 0, h.stt.calls())
	assert.Equal(t, 99*160, h.session.Buffered())

	h.feed(t, 1, 160)
	assert.Equal(t, 1, h.stt.calls())
	assert.Equal(t, []int{16000}, h.stt.lengths)
	assert.Equal(t, 0, h.session.Buffered())
}

func TestDispatchThreshold_BelowFloorKeepsBuffering(t *testing.T) {
	h := newHarness(t, Config{})
	h.session.HandleStart(context.Background(), startEvent("plain"))

	h.feed(t, 100, 100)
	assert.Equal(t, 0, h.stt.calls(), "10000 bytes is below the dispatch floor")
	assert.Equal(t, 10000, h.session.Buffered())

	// the batch counter restarted, so reaching 12000 bytes alone does not dispatch
	h.feed(t, 20, 100)
	assert.Equal(t, 0, h.stt.calls())

	h.feed(t, 80, 100)
	assert.Equal(t, 1, h.stt.calls())
	assert.Equal(t, []int{20000}, h.stt.lengths)
}

func TestConfigurableThresholds(t *testing.T) {
	h := newHarness(t, Config{Thresholds: Thresholds{MediaBatchSize: 5, MinBufferBytes: 500, MinFlushBytes: 100}})
	h.session.HandleStart(context.Background(), startEvent("plain"))

	h.feed(t, 5, 100)
	assert.Equal(t, 1, h.stt.calls())
}

func TestConversationOrdering(t *testing.T) {
	h := newHarness(t, Config{})
	h.session.HandleStart(context.Background(), startEvent("plain"))

	const turns = 3
	h.feed(t, 100*turns, 160)

	conv := h.session.Conversation()
	require.Len(t, conv, 2*turns)
	for i, turn := range conv {
		if i%2 == 0 {
			assert.Equal(t, transcript.RoleAgent, turn.Role)
		} else {
			assert.Equal(t, transcript.RolePatient, turn.Role)
		}
	}

	assert.Equal(t, []string{"turn-1-id1", "turn-2-id2", "turn-3-id3"}, h.transport.marks())

	// three 320-byte frames (700 bytes) precede every mark
	msgs := h.transport.sent()
	require.Len(t, msgs, 4*turns)
	for i, m := range msgs {
		if i%4 == 3 {
			assert.Equal(t, "mark", m.kind)
		} else {
			assert.Equal(t, "media", m.kind)
		}
	}
	last, err := base64.StdEncoding.DecodeString(msgs[2].value)
	require.NoError(t, err)
	assert.Len(t, last, 700-2*audio.WireFrameSize)

	// the responder sees the history including the new agent turn
	require.Len(t, h.llm.histories, turns)
	assert.Equal(t, []transcript.Role{transcript.RoleAgent}, roles(h.llm.histories[0]))
	assert.Equal(t, "What is your date of birth?", h.llm.latest[0])
}

func TestFirstUtterance(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.svc.Scenarios = scenario.Default()

	h.session.HandleStart(context.Background(), startEvent(scenario.DefaultID))

	conv := h.session.Conversation()
	require.Len(t, conv, 1)
	assert.Equal(t, transcript.RolePatient, conv[0].Role)
	assert.Equal(t, "Hi, I'd like to schedule an appointment please.", conv[0].Text)

	msgs := h.transport.sent()
	require.Len(t, msgs, 4)
	assert.Equal(t, sent{kind: "mark", value: "first"}, msgs[3])
	assert.Equal(t, 0, h.stt.calls())
	assert.Equal(t, 1, h.rec.saves)

	// a second start neither resets the session nor repeats the greeting
	h.session.HandleStart(context.Background(), startEvent(scenario.DefaultID))
	assert.Len(t, h.transport.sent(), 4)
	assert.Len(t, h.session.Conversation(), 1)

	h.feed(t, 100, 160)
	assert.Equal(t, []transcript.Role{transcript.RolePatient, transcript.RoleAgent, transcript.RolePatient}, roles(h.session.Conversation()))
}

func TestUnknownScenarioUsesFallbackPersona(t *testing.T) {
	h := newHarness(t, Config{})
	h.session.HandleStart(context.Background(), startEvent("does_not_exist"))

	assert.Equal(t, "does_not_exist", h.session.Scenario().ID)
	assert.NotEmpty(t, h.session.Scenario().Goal)
	assert.Empty(t, h.transport.sent())
}

func TestMissingScenarioIDUsesDefault(t *testing.T) {
	h := newHarness(t, Config{})
	h.engine.svc.Scenarios = scenario.Default()
	h.session.HandleStart(context.Background(), startEvent(""))
	assert.Equal(t, scenario.DefaultID, h.session.Scenario().ID)
}

func TestReplyFailureFallsBack(t *testing.T) {
	h := newHarness(t, Config{})
	h.llm.err = errors.New("model unavailable")
	h.session.HandleStart(context.Background(), startEvent("plain"))

	h.feed(t, 100, 160)

	conv := h.session.Conversation()
	require.Len(t, conv, 2)
	assert.Equal(t, transcript.Turn{Role: transcript.RoleAgent, Text: "What is your date of birth?"}, conv[0])
	assert.Equal(t, transcript.Turn{Role: transcript.RolePatient, Text: llm.FallbackReply}, conv[1])
	assert.Equal(t, []string{llm.FallbackReply}, h.tts.texts)
	assert.Len(t, h.transport.marks(), 1)
}

func TestReplyTimeoutFallsBack(t *testing.T) {
	h := newHarness(t, Config{CallTimeout: 20 * time.Millisecond})
	h.llm.block = true
	h.session.HandleStart(context.Background(), startEvent("plain"))

	h.feed(t, 100, 160)

	conv := h.session.Conversation()
	require.Len(t, conv, 2)
	assert.Equal(t, llm.FallbackReply, conv[1].Text)
}

func TestBlankReplyFallsBack(t *testing.T) {
	h := newHarness(t, Config{FallbackReply: "Say again?"})
	h.llm.reply = "   "
	h.session.HandleStart(context.Background(), startEvent("plain"))

	h.feed(t, 100, 160)
	assert.Equal(t, "Say again?", h.session.Conversation()[1].Text)
}

func TestTranscriptionFailureIsSilent(t *testing.T) {
	for name, stt := range map[string]*fakeTranscriber{
		"error":      {err: errors.New("whisper down")},
		"empty":      {text: ""},
		"whitespace": {text: "  \n "},
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, Config{})
			h.engine.svc.Transcriber = stt
			h.session.HandleStart(context.Background(), startEvent("plain"))

			h.feed(t, 100, 160)

			assert.Equal(t, 1, stt.calls())
			assert.Empty(t, h.session.Conversation())
			assert.Empty(t, h.llm.latest)
			assert.Empty(t, h.transport.sent())
			assert.Equal(t, StateStreaming, h.session.State())
		})
	}
}

func TestEmptySynthesisSendsNoMark(t *testing.T) {
	h := newHarness(t, Config{})
	h.tts.size = 0
	h.session.HandleStart(context.Background(), startEvent("plain"))

	h.feed(t, 100, 160)

	assert.Len(t, h.session.Conversation(), 2)
	assert.Empty(t, h.transport.sent())
}

func TestSynthesisFailureKeepsConversation(t *testing.T) {
	h := newHarness(t, Config{})
	h.tts.err = errors.New("tts down")
	h.session.HandleStart(context.Background(), startEvent("plain"))

	h.feed(t, 100, 160)

	assert.Len(t, h.session.Conversation(), 2)
	assert.Empty(t, h.transport.sent())
}

func TestTransportFailureAbortsTurn(t *testing.T) {
	h := newHarness(t, Config{})
	h.transport.failAt = 2
	h.session.HandleStart(context.Background(), startEvent("plain"))

	h.feed(t, 100, 160)

	msgs := h.transport.sent()
	require.Len(t, msgs, 1, "remaining frames and the mark are abandoned")
	assert.Equal(t, "media", msgs[0].kind)
	assert.Len(t, h.session.Conversation(), 2)
	assert.Equal(t, StateStreaming, h.session.State())

	// the session keeps serving later turns once the transport recovers
	h.transport.failAt = 0
	h.feed(t, 100, 160)
	assert.Equal(t, []string{"turn-2-id2"}, h.transport.marks())
	assert.Len(t, h.session.Conversation(), 4)
}

func TestOutboundTrackIgnored(t *testing.T) {
	h := newHarness(t, Config{})
	h.session.HandleStart(context.Background(), startEvent("plain"))

	for i := 0; i < 100; i++ {
		ev := mediaEvent(160)
		ev.Track = "outbound"
		require.NoError(t, h.session.HandleMedia(context.Background(), ev))
	}
	assert.Equal(t, 0, h.session.Buffered())
	assert.Equal(t, 0, h.stt.calls())

	// a missing track counts as inbound
	ev := mediaEvent(160)
	ev.Track = ""
	require.NoError(t, h.session.HandleMedia(context.Background(), ev))
	assert.Equal(t, 160, h.session.Buffered())
}

func TestMediaBeforeStartIgnored(t *testing.T) {
	h := newHarness(t, Config{})
	h.feed(t, 100, 160)
	assert.Equal(t, 0, h.session.Buffered())
	assert.Equal(t, StateAwaitingStart, h.session.State())
}

func TestMalformedPayload(t *testing.T) {
	h := newHarness(t, Config{})
	h.session.HandleStart(context.Background(), startEvent("plain"))

	err := h.session.HandleMedia(context.Background(), Event{Type: EventMedia, Track: "inbound", Payload: "not base64!"})
	assert.Error(t, err)
	assert.Equal(t, 0, h.session.Buffered())
	assert.Equal(t, StateStreaming, h.session.State())
}

func TestStopFlush(t *testing.T) {
	tests := []struct {
		name      string
		messages  int
		wantCalls int
	}{
		{"flushes at floor", 5, 1},
		{"below floor", 4, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{})
			h.session.HandleStart(context.Background(), startEvent("plain"))
			h.feed(t, tt.messages, 160)

			h.session.HandleStop(context.Background(), Event{Type: EventStop, CallSid: "CA42"})

			assert.Equal(t, tt.wantCalls, h.stt.calls())
			assert.Equal(t, StateClosed, h.session.State())
			assert.Equal(t, "final-CA42", h.session.FinalPath())
			assert.Len(t, h.rec.finalized, 2*tt.wantCalls)
			assert.Equal(t, 0, h.session.Buffered())
		})
	}
}

func TestStopCancelsFutureDispatch(t *testing.T) {
	h := newHarness(t, Config{})
	h.session.HandleStart(context.Background(), startEvent("plain"))
	h.session.HandleStop(context.Background(), Event{Type: EventStop, CallSid: "CA1"})

	h.feed(t, 100, 160)
	assert.Equal(t, 0, h.stt.calls())

	h.session.HandleStop(context.Background(), Event{Type: EventStop})
	assert.Equal(t, "final-CA1", h.session.FinalPath())
}

func TestStopWithoutStart(t *testing.T) {
	h := newHarness(t, Config{})
	h.session.HandleStop(context.Background(), Event{Type: EventStop})

	assert.Equal(t, StateClosed, h.session.State())
	assert.Equal(t, "final-", h.session.FinalPath())
	assert.Empty(t, h.rec.finalized)
}

func TestPersistenceFailureKeepsCallAlive(t *testing.T) {
	h := newHarness(t, Config{})
	h.rec.saveErr = errors.New("disk full")
	h.rec.finalizeErr = errors.New("disk full")
	h.engine.svc.Scenarios = scenario.Default()

	h.session.HandleStart(context.Background(), startEvent("refill"))
	h.feed(t, 100, 160)
	assert.Len(t, h.session.Conversation(), 3)
	assert.Len(t, h.transport.marks(), 2)

	h.session.HandleStop(context.Background(), Event{Type: EventStop, CallSid: "CA1"})
	assert.Equal(t, StateClosed, h.session.State())
	assert.Empty(t, h.session.FinalPath())
}

func TestTypedErrors(t *testing.T) {
	cause := errors.New("boom")

	var transient *TransientServiceError
	err := fmt.Errorf("turn: %w", &TransientServiceError{Service: ServiceReply, Err: cause})
	require.True(t, errors.As(err, &transient))
	assert.Equal(t, ServiceReply, transient.Service)
	assert.ErrorIs(t, err, cause)

	assert.ErrorIs(t, &TransportWriteError{Op: "media", Err: cause}, cause)
	assert.ErrorIs(t, &PersistenceError{Path: "x", Err: cause}, cause)
	assert.Contains(t, (&PersistenceError{Path: "x.json", Err: cause}).Error(), "x.json")
}

func TestRun_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	rec, err := transcript.NewRecorder(dir, nil)
	require.NoError(t, err)

	stt := &fakeTranscriber{text: "Sure, what day works for you?"}
	transport := &fakeTransport{}
	engine := NewEngine(Config{}, Services{
		Transcriber: stt,
		Responder:   &fakeResponder{reply: "Um, Tuesday morning?"},
		Synthesizer: &fakeSynthesizer{size: 640},
		Scenarios:   scenario.Default(),
		Recorder:    rec,
	}, nil, nil)
	engine.now = func() time.Time { return time.Unix(1700000000, 0) }

	events := make(chan Event, 256)
	events <- Event{Type: EventConnected}
	events <- Event{Type: EventStart, StreamSid: "MZe2e", CallSid: "CAe2e", ScenarioID: "schedule_new"}

	done := make(chan *Session)
	go func() { done <- engine.Run(context.Background(), transport, events) }()

	// the greeting goes out before any inbound audio
	require.Eventually(t, func() bool { return len(transport.marks()) == 1 }, time.Second, time.Millisecond)
	msgs := transport.sent()
	require.Len(t, msgs, 3)
	assert.Equal(t, sent{kind: "mark", value: "first"}, msgs[2])
	livePath := rec.LivePath("MZe2e", "schedule_new")
	assert.FileExists(t, livePath)

	for i := 0; i < 100; i++ {
		events <- mediaEvent(160)
	}
	for i := 0; i < 5; i++ {
		events <- mediaEvent(160)
	}
	events <- Event{Type: EventStop, CallSid: "CAe2e"}

	var s *Session
	select {
	case s = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
	}

	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, []int{16000, 800}, stt.lengths)
	assert.Len(t, transport.marks(), 3)

	final := rec.FinalPath("CAe2e", "schedule_new", time.Unix(1700000000, 0))
	assert.Equal(t, final, s.FinalPath())
	data, err := os.ReadFile(final)
	require.NoError(t, err)
	var doc transcript.Document
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "CAe2e", doc.CallSid)
	assert.Equal(t, "schedule_new", doc.ScenarioID)
	assert.Equal(t, []transcript.Role{
		transcript.RolePatient,
		transcript.RoleAgent, transcript.RolePatient,
		transcript.RoleAgent, transcript.RolePatient,
	}, roles(doc.Transcript))
	assert.Equal(t, "Um, Tuesday morning?", doc.Transcript[2].Text)

	assert.NoFileExists(t, livePath)
}

func TestRun_ClosedStreamKeepsLiveTranscript(t *testing.T) {
	dir := t.TempDir()
	rec, err := transcript.NewRecorder(dir, nil)
	require.NoError(t, err)

	engine := NewEngine(Config{}, Services{
		Transcriber: &fakeTranscriber{},
		Responder:   &fakeResponder{},
		Synthesizer: &fakeSynthesizer{size: 320},
		Scenarios:   scenario.Default(),
		Recorder:    rec,
	}, nil, nil)

	events := make(chan Event, 4)
	events <- startEvent("cancel")
	close(events)

	s := engine.Run(context.Background(), &fakeTransport{}, events)
	assert.Equal(t, StateClosed, s.State())
	assert.FileExists(t, rec.LivePath("MZ1", "cancel"))
	assert.Empty(t, s.FinalPath())
}

func TestRun_ContextCancelled(t *testing.T) {
	h := newHarness(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := h.engine.Run(ctx, h.transport, make(chan Event))
	assert.Equal(t, StateClosed, s.State())
}

func TestTurnBudget(t *testing.T) {
	assert.Equal(t, 80*time.Second, Config{}.TurnBudget())
	assert.Equal(t, 20*time.Second, Config{CallTimeout: 5 * time.Second}.TurnBudget())
}
