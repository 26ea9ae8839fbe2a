// TwilioConnection carries one Twilio Media Streams WebSocket.
//
// A read pump decodes inbound JSON envelopes into call events on a buffered
// channel, so reading keeps up with the caller while a turn is being produced.
// Writes (media frames and marks) come from the session goroutine and are
// serialized on a mutex, as gorilla/websocket allows one concurrent writer.
//
// Audio Format:
//   - Twilio: μ-law, 8kHz, mono, base64 in JSON
//
// Reference: https://www.twilio.com/docs/voice/media-streams

package connection

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/realtime-ai/patientbot/pkg/audio"
	"github.com/realtime-ai/patientbot/pkg/call"
)

// Twilio Media Streams constants
const (
	TwilioSampleRate = audio.NarrowbandSampleRate
	TwilioChannels   = 1
	TwilioFrameTime  = 20 * time.Millisecond // one 320-byte frame

	defaultEventBuffer  = 1024 // ~20s of inbound media
	defaultWriteTimeout = 5 * time.Second
	paceBurst           = 10
)

// ErrConnectionClosed is returned for writes after Close.
var ErrConnectionClosed = errors.New("connection closed")

// TwilioOptions tunes a TwilioConnection.
type TwilioOptions struct {
	// EventBuffer is the inbound event channel capacity. When it fills, the
	// read pump stops reading and the socket applies backpressure.
	EventBuffer int
	// WriteTimeout bounds a single WebSocket write.
	WriteTimeout time.Duration
	// PaceOutbound limits media frames to real time (one per 20ms after a short burst).
	PaceOutbound bool
}

// TwilioConnection implements call.Transport for Twilio Media Streams.
type TwilioConnection struct {
	conn   *websocket.Conn
	logger *zap.Logger
	opts   TwilioOptions

	events  chan call.Event
	pacer   *rate.Limiter
	done    chan struct{}
	readWg  sync.WaitGroup
	closed  atomic.Bool
	closeMu sync.Mutex

	// Twilio stream metadata
	stateMu   sync.RWMutex
	state     ConnectionState
	streamSid string
	callSid   string

	// WebSocket write mutex (gorilla/websocket requires synchronized writes)
	writeMu sync.Mutex
}

// TwilioMediaMessage represents a Twilio Media Streams WebSocket message.
type TwilioMediaMessage struct {
	Event          string              `json:"event"`
	SequenceNumber string              `json:"sequenceNumber,omitempty"`
	StreamSid      string              `json:"streamSid,omitempty"`
	Protocol       string              `json:"protocol,omitempty"`
	Version        string              `json:"version,omitempty"`
	Start          *TwilioStartPayload `json:"start,omitempty"`
	Media          *TwilioMediaPayload `json:"media,omitempty"`
	Stop           *TwilioStopPayload  `json:"stop,omitempty"`
	Mark           *TwilioMarkPayload  `json:"mark,omitempty"`
}

// TwilioStartPayload contains stream initialization data.
type TwilioStartPayload struct {
	AccountSid       string            `json:"accountSid"`
	StreamSid        string            `json:"streamSid"`
	CallSid          string            `json:"callSid"`
	Tracks           []string          `json:"tracks"`
	MediaFormat      TwilioMediaFormat `json:"mediaFormat"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

// TwilioMediaFormat describes the audio format.
type TwilioMediaFormat struct {
	Encoding   string `json:"encoding"`   // "audio/x-mulaw"
	SampleRate int    `json:"sampleRate"` // 8000
	Channels   int    `json:"channels"`   // 1
}

// TwilioMediaPayload contains audio data.
type TwilioMediaPayload struct {
	Track     string `json:"track,omitempty"` // "inbound" or "outbound"
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"` // Base64 encoded μ-law audio
}

// TwilioStopPayload contains stream termination data.
type TwilioStopPayload struct {
	AccountSid string `json:"accountSid"`
	CallSid    string `json:"callSid"`
}

// TwilioMarkPayload contains mark event data.
type TwilioMarkPayload struct {
	Name string `json:"name"`
}

// ScenarioParam is the custom stream parameter naming the patient scenario.
const ScenarioParam = "scenario_id"

// EventBufferFor sizes the inbound event buffer to hold d of inbound media, one
// message per frame, so the read pump keeps draining the socket while a turn of
// at most d is produced.
func EventBufferFor(d time.Duration) int {
	n := int(d / TwilioFrameTime)
	if n < defaultEventBuffer {
		return defaultEventBuffer
	}
	return n
}

// NewTwilioConnection wraps an upgraded WebSocket. Call Start to begin reading.
func NewTwilioConnection(conn *websocket.Conn, opts TwilioOptions, logger *zap.Logger) *TwilioConnection {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}

	tc := &TwilioConnection{
		conn:   conn,
		logger: logger.With(zap.String("component", "twilio_conn"), zap.String("remote", conn.RemoteAddr().String())),
		opts:   opts,
		events: make(chan call.Event, opts.EventBuffer),
		done:   make(chan struct{}),
		state:  ConnectionStateNew,
	}
	if opts.PaceOutbound {
		tc.pacer = rate.NewLimiter(rate.Every(TwilioFrameTime), paceBurst)
	}
	return tc
}

// Events returns inbound stream events. The channel closes when the socket does.
func (tc *TwilioConnection) Events() <-chan call.Event {
	return tc.events
}

// StreamSid returns the Twilio stream SID.
func (tc *TwilioConnection) StreamSid() string {
	tc.stateMu.RLock()
	defer tc.stateMu.RUnlock()
	return tc.streamSid
}

// CallSid returns the Twilio call SID.
func (tc *TwilioConnection) CallSid() string {
	tc.stateMu.RLock()
	defer tc.stateMu.RUnlock()
	return tc.callSid
}

// State returns the current connection state.
func (tc *TwilioConnection) State() ConnectionState {
	tc.stateMu.RLock()
	defer tc.stateMu.RUnlock()
	return tc.state
}

func (tc *TwilioConnection) setState(state ConnectionState) {
	tc.stateMu.Lock()
	tc.state = state
	tc.stateMu.Unlock()
}

// Start begins processing the WebSocket connection.
func (tc *TwilioConnection) Start() {
	tc.setState(ConnectionStateConnecting)
	tc.readWg.Add(1)
	go tc.readPump()
}

// Close closes the socket and waits for the read pump to exit.
func (tc *TwilioConnection) Close() error {
	tc.closeMu.Lock()
	defer tc.closeMu.Unlock()

	if tc.closed.Load() {
		return nil
	}
	tc.closed.Store(true)

	tc.logger.Debug("closing connection", zap.String("stream_sid", tc.StreamSid()))

	close(tc.done)
	_ = tc.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	err := tc.conn.Close()

	tc.readWg.Wait()
	tc.setState(ConnectionStateClosed)
	return err
}

// readPump reads messages from Twilio WebSocket.
func (tc *TwilioConnection) readPump() {
	defer tc.readWg.Done()
	defer close(tc.events)

	for {
		_, message, err := tc.conn.ReadMessage()
		if err != nil {
			if tc.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			if tc.State() != ConnectionStateDisconnected {
				tc.setState(ConnectionStateFailed)
			}
			tc.logger.Warn("read error", zap.Error(err))
			return
		}

		var msg TwilioMediaMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			tc.logger.Warn("failed to parse message", zap.Error(err))
			continue
		}

		ev, ok := tc.toEvent(&msg)
		if !ok {
			continue
		}
		select {
		case tc.events <- ev:
		case <-tc.done:
			return
		}
	}
}

// toEvent reduces a Twilio envelope to a call event.
func (tc *TwilioConnection) toEvent(msg *TwilioMediaMessage) (call.Event, bool) {
	switch msg.Event {
	case "connected":
		tc.logger.Info("connected to Twilio Media Streams",
			zap.String("protocol", msg.Protocol), zap.String("version", msg.Version))
		return call.Event{Type: call.EventConnected}, true

	case "start":
		return tc.handleStart(msg)

	case "media":
		if msg.Media == nil {
			return call.Event{}, false
		}
		return call.Event{
			Type:      call.EventMedia,
			StreamSid: msg.StreamSid,
			Track:     msg.Media.Track,
			Payload:   msg.Media.Payload,
		}, true

	case "stop":
		ev := call.Event{Type: call.EventStop, StreamSid: msg.StreamSid}
		if msg.Stop != nil {
			ev.CallSid = msg.Stop.CallSid
		}
		tc.setState(ConnectionStateDisconnected)
		tc.logger.Info("stream stopped", zap.String("call_sid", ev.CallSid))
		return ev, true

	case "mark":
		if msg.Mark == nil {
			return call.Event{}, false
		}
		return call.Event{Type: call.EventMark, StreamSid: msg.StreamSid, Mark: msg.Mark.Name}, true

	default:
		tc.logger.Debug("unknown event", zap.String("event", msg.Event))
		return call.Event{}, false
	}
}

// handleStart records stream metadata before the start event is delivered, so
// writes issued in response to it carry the stream SID.
func (tc *TwilioConnection) handleStart(msg *TwilioMediaMessage) (call.Event, bool) {
	ev := call.Event{Type: call.EventStart, StreamSid: msg.StreamSid}
	if msg.Start != nil {
		if ev.StreamSid == "" {
			ev.StreamSid = msg.Start.StreamSid
		}
		ev.CallSid = msg.Start.CallSid
		ev.ScenarioID = msg.Start.CustomParameters[ScenarioParam]

		tc.logger.Info("stream started",
			zap.String("stream_sid", ev.StreamSid),
			zap.String("call_sid", ev.CallSid),
			zap.Strings("tracks", msg.Start.Tracks),
			zap.String("encoding", msg.Start.MediaFormat.Encoding),
			zap.Int("sample_rate", msg.Start.MediaFormat.SampleRate),
			zap.Any("custom_parameters", msg.Start.CustomParameters))
	}

	tc.stateMu.Lock()
	tc.streamSid = ev.StreamSid
	tc.callSid = ev.CallSid
	tc.state = ConnectionStateConnected
	tc.stateMu.Unlock()
	return ev, true
}

// SendMedia sends one base64 μ-law frame to Twilio.
func (tc *TwilioConnection) SendMedia(ctx context.Context, payload string) error {
	if tc.pacer != nil {
		if err := tc.pacer.Wait(ctx); err != nil {
			return err
		}
	}
	return tc.write(ctx, TwilioMediaMessage{
		Event:     "media",
		StreamSid: tc.StreamSid(),
		Media:     &TwilioMediaPayload{Payload: payload},
	})
}

// SendMark sends a mark message to Twilio; Twilio echoes it once the audio
// queued before it has played.
func (tc *TwilioConnection) SendMark(ctx context.Context, name string) error {
	return tc.write(ctx, TwilioMediaMessage{
		Event:     "mark",
		StreamSid: tc.StreamSid(),
		Mark:      &TwilioMarkPayload{Name: name},
	})
}

func (tc *TwilioConnection) write(ctx context.Context, msg TwilioMediaMessage) error {
	if tc.closed.Load() {
		return ErrConnectionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	deadline := time.Now().Add(tc.opts.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	tc.writeMu.Lock()
	defer tc.writeMu.Unlock()
	if err := tc.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return tc.conn.WriteJSON(msg)
}

var _ call.Transport = (*TwilioConnection)(nil)
