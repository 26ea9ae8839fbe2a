// Package server exposes the patient simulator over HTTP.
//
// TwilioMediaServer accepts Twilio Media Streams WebSockets and runs one call
// session per connection.
//
// Endpoints:
//   - /media   WebSocket for Twilio Media Streams
//   - /twiml   TwiML that connects an outbound call to /media with a scenario
//   - /health  liveness and active session count
//   - /metrics Prometheus metrics
//
// Usage:
//  1. Point the outbound call's TwiML URL at /twiml?scenario_id=<id>
//  2. Twilio opens /media and the session plays the patient for that scenario
//
// Reference: https://www.twilio.com/docs/voice/media-streams

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/realtime-ai/patientbot/pkg/call"
	"github.com/realtime-ai/patientbot/pkg/connection"
	"github.com/realtime-ai/patientbot/pkg/scenario"
)

// TwilioServerConfig holds configuration for TwilioMediaServer.
type TwilioServerConfig struct {
	// Address is the listen address (e.g., ":5050")
	Address string

	// WebSocketPath is the path for WebSocket connections (default: "/media")
	WebSocketPath string

	// TwiMLPath is the path for TwiML webhook (default: "/twiml")
	TwiMLPath string

	// PublicBaseURL is the externally reachable http(s) base URL. The stream
	// URL in TwiML is derived from it; when empty the request host is used.
	PublicBaseURL string

	// ReadBufferSize for WebSocket (default: 1024)
	ReadBufferSize int

	// WriteBufferSize for WebSocket (default: 1024)
	WriteBufferSize int

	// Connection tunes each media stream connection.
	Connection connection.TwilioOptions

	// ShutdownTimeout bounds graceful shutdown (default: 5s)
	ShutdownTimeout time.Duration
}

// TwilioMediaServer handles Twilio Media Streams WebSocket connections.
type TwilioMediaServer struct {
	config   TwilioServerConfig
	engine   *call.Engine
	gatherer prometheus.Gatherer
	logger   *zap.Logger

	upgrader websocket.Upgrader
	handler  http.Handler

	// Active sessions
	sessions   map[string]*TwilioSession
	sessionsMu sync.RWMutex

	wg sync.WaitGroup
}

// TwilioSession represents an active media stream.
type TwilioSession struct {
	ID         string
	Connection *connection.TwilioConnection
	StartTime  time.Time
}

// twimlTemplate renders the Connect/Stream response with XML-escaped fields.
var twimlTemplate = template.Must(template.New("twiml").Funcs(template.FuncMap{"xml": xmlEscape}).Parse(`<?xml version="1.0" encoding="UTF-8"?>
<Response>
  <Connect>
    <Stream url="{{xml .StreamURL}}">
      <Parameter name="{{xml .Param}}" value="{{xml .ScenarioID}}" />
    </Stream>
  </Connect>
</Response>`))

func xmlEscape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

// NewTwilioMediaServer creates a new Twilio Media Streams server. gatherer may
// be nil, in which case /metrics is not served.
func NewTwilioMediaServer(config TwilioServerConfig, engine *call.Engine, gatherer prometheus.Gatherer, logger *zap.Logger) *TwilioMediaServer {
	// Set defaults
	if config.WebSocketPath == "" {
		config.WebSocketPath = "/media"
	}
	if config.TwiMLPath == "" {
		config.TwiMLPath = "/twiml"
	}
	if config.ReadBufferSize == 0 {
		config.ReadBufferSize = 1024
	}
	if config.WriteBufferSize == 0 {
		config.WriteBufferSize = 1024
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &TwilioMediaServer{
		config:   config,
		engine:   engine,
		gatherer: gatherer,
		logger:   logger.With(zap.String("component", "twilio_server")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		sessions: make(map[string]*TwilioSession),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(config.WebSocketPath, s.handleWebSocket)
	mux.HandleFunc(config.TwiMLPath, s.handleTwiML)
	mux.HandleFunc("/health", s.handleHealth)
	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/", s.handleIndex)
	s.handler = mux

	return s
}

// Handler returns the server's HTTP handler.
func (s *TwilioMediaServer) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is done, then shuts down gracefully and closes every
// open media stream.
func (s *TwilioMediaServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Address,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.logger.Info("starting server",
		zap.String("address", s.config.Address),
		zap.String("websocket_path", s.config.WebSocketPath),
		zap.String("twiml_path", s.config.TwiMLPath))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("stopping server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)

	s.closeSessions()
	s.wg.Wait()
	s.logger.Info("server stopped")
	return err
}

// handleWebSocket runs one call session for the lifetime of the socket.
func (s *TwilioMediaServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err), zap.String("remote", r.RemoteAddr))
		return
	}

	conn := connection.NewTwilioConnection(wsConn, s.config.Connection, s.logger)
	session := &TwilioSession{ID: uuid.NewString(), Connection: conn, StartTime: time.Now()}
	s.addSession(session)

	s.wg.Add(1)
	defer s.wg.Done()
	defer s.removeSession(session.ID)
	defer conn.Close()

	conn.Start()
	cs := s.engine.Run(r.Context(), conn, conn.Events())
	s.logger.Info("media stream finished",
		zap.String("stream_sid", cs.StreamSid()),
		zap.String("state", cs.State().String()),
		zap.String("transcript", cs.FinalPath()),
		zap.Duration("duration", time.Since(session.StartTime)))
}

// handleTwiML serves TwiML that streams the call to this server.
func (s *TwilioMediaServer) handleTwiML(w http.ResponseWriter, r *http.Request) {
	scenarioID := r.URL.Query().Get(connection.ScenarioParam)
	if scenarioID == "" {
		scenarioID = scenario.DefaultID
	}

	if err := r.ParseForm(); err == nil && r.FormValue("CallSid") != "" {
		s.logger.Info("call webhook",
			zap.String("call_sid", r.FormValue("CallSid")),
			zap.String("from", r.FormValue("From")),
			zap.String("to", r.FormValue("To")))
	}
	s.logger.Info("serving TwiML", zap.String("scenario_id", scenarioID))

	data := struct {
		StreamURL  string
		Param      string
		ScenarioID string
	}{
		StreamURL:  s.streamURL(r),
		Param:      connection.ScenarioParam,
		ScenarioID: scenarioID,
	}

	w.Header().Set("Content-Type", "application/xml")
	if err := twimlTemplate.Execute(w, data); err != nil {
		s.logger.Error("failed to execute TwiML template", zap.Error(err))
	}
}

// streamURL derives the wss:// media URL from the public base URL or the request.
func (s *TwilioMediaServer) streamURL(r *http.Request) string {
	base := strings.TrimRight(s.config.PublicBaseURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	if !strings.HasPrefix(base, "http") {
		base = "https://" + base
	}
	base = strings.Replace(base, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	return base + s.config.WebSocketPath
}

// handleHealth handles health check requests.
func (s *TwilioMediaServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": s.ActiveSessions(),
	})
}

func (s *TwilioMediaServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Patient simulator is running. TwiML at %s\n", s.config.TwiMLPath)
}

func (s *TwilioMediaServer) addSession(session *TwilioSession) {
	s.sessionsMu.Lock()
	s.sessions[session.ID] = session
	s.sessionsMu.Unlock()
}

func (s *TwilioMediaServer) removeSession(id string) {
	s.sessionsMu.Lock()
	delete(s.sessions, id)
	s.sessionsMu.Unlock()
}

// ActiveSessions returns the number of open media streams.
func (s *TwilioMediaServer) ActiveSessions() int {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	return len(s.sessions)
}

func (s *TwilioMediaServer) closeSessions() {
	s.sessionsMu.RLock()
	conns := make([]*connection.TwilioConnection, 0, len(s.sessions))
	for _, session := range s.sessions {
		conns = append(conns, session.Connection)
	}
	s.sessionsMu.RUnlock()

	for _, c := range conns {
		_ = c.Close()
	}
}
