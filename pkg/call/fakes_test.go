package call

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/realtime-ai/patientbot/pkg/scenario"
	"github.com/realtime-ai/patientbot/pkg/transcript"
)

type fakeTranscriber struct {
	mu      sync.Mutex
	text    string
	err     error
	lengths []int
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, mulaw []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lengths = append(f.lengths, len(mulaw))
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func (f *fakeTranscriber) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.lengths)
}

type fakeResponder struct {
	reply     string
	err       error
	block     bool
	histories [][]transcript.Turn
	latest    []string
}

func (f *fakeResponder) Reply(ctx context.Context, sc scenario.Scenario, history []transcript.Turn, latest string) (string, error) {
	f.histories = append(f.histories, history)
	f.latest = append(f.latest, latest)
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type fakeSynthesizer struct {
	size  int
	err   error
	texts []string
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	f.texts = append(f.texts, text)
	if f.err != nil {
		return nil, f.err
	}
	return bytes.Repeat([]byte{0x7F}, f.size), nil
}

type sent struct {
	kind  string // "media" or "mark"
	value string
}

type fakeTransport struct {
	mu       sync.Mutex
	messages []sent
	failAt   int // writes from the failAt-th on fail (1-based); 0 never fails
	writes   int
}

var errSocketClosed = errors.New("socket closed")

func (f *fakeTransport) write(kind, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.failAt > 0 && f.writes >= f.failAt {
		return errSocketClosed
	}
	f.messages = append(f.messages, sent{kind: kind, value: value})
	return nil
}

func (f *fakeTransport) SendMedia(ctx context.Context, payload string) error {
	return f.write("media", payload)
}

func (f *fakeTransport) SendMark(ctx context.Context, name string) error {
	return f.write("mark", name)
}

func (f *fakeTransport) sent() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sent, len(f.messages))
	copy(out, f.messages)
	return out
}

func (f *fakeTransport) marks() []string {
	var names []string
	for _, m := range f.sent() {
		if m.kind == "mark" {
			names = append(names, m.value)
		}
	}
	return names
}

type fakeRecorder struct {
	saveErr     error
	finalizeErr error
	saves       int
	finalized   []transcript.Turn
}

func (f *fakeRecorder) LivePath(streamSid, scenarioID string) string {
	return "live-" + streamSid + "-" + scenarioID
}

func (f *fakeRecorder) SaveLive(path, scenarioID string, turns []transcript.Turn) error {
	f.saves++
	return f.saveErr
}

func (f *fakeRecorder) Finalize(livePath, callSid, scenarioID string, turns []transcript.Turn, completed time.Time) (string, error) {
	f.finalized = turns
	if f.finalizeErr != nil {
		return "", f.finalizeErr
	}
	return "final-" + callSid, nil
}

func mediaEvent(n int) Event {
	return Event{
		Type:    EventMedia,
		Track:   "inbound",
		Payload: base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0xFF}, n)),
	}
}

func startEvent(scenarioID string) Event {
	return Event{Type: EventStart, StreamSid: "MZ1", CallSid: "CA1", ScenarioID: scenarioID}
}
