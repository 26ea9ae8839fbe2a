package call

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/realtime-ai/patientbot/pkg/audio"
	"github.com/realtime-ai/patientbot/pkg/metrics"
	"github.com/realtime-ai/patientbot/pkg/trace"
	"github.com/realtime-ai/patientbot/pkg/transcript"
)

var errNoAudio = errors.New("synthesis returned no audio")

// runTurn transcribes one buffered utterance, answers it as the patient and
// streams the answer back. Service failures degrade the turn and never end the
// session.
func (s *Session) runTurn(ctx context.Context, mulaw []byte) string {
	start := time.Now()
	s.turns++
	turn := s.turns

	ctx, span := trace.InstrumentTurn(ctx, s.streamSid, s.scenario.ID, turn, len(mulaw))
	defer span.End()

	outcome := s.turnOutcome(ctx, turn, mulaw)
	trace.AddEvent(span, "turn."+outcome)
	s.engine.metrics.TurnCompleted(outcome, time.Since(start))
	return outcome
}

func (s *Session) turnOutcome(ctx context.Context, turn int, mulaw []byte) string {
	log := s.logger.With(zap.Int("turn", turn))
	log = log.With(trace.LogFields(ctx)...)

	heard, err := s.transcribe(ctx, mulaw)
	if err != nil {
		s.engine.metrics.ServiceFailed(ServiceTranscription)
		log.Warn("transcription failed", zap.Error(err))
		return metrics.OutcomeSilent
	}
	if heard == "" {
		log.Debug("nothing heard", zap.Int("bytes", len(mulaw)))
		return metrics.OutcomeSilent
	}
	log.Info("agent said", zap.String("text", heard))
	s.history = append(s.history, transcript.Turn{Role: transcript.RoleAgent, Text: heard})

	outcome := metrics.OutcomeReplied
	reply, err := s.reply(ctx, heard)
	if err != nil {
		s.engine.metrics.ServiceFailed(ServiceReply)
		log.Warn("reply generation failed, using fallback", zap.Error(err))
		reply = s.engine.cfg.FallbackReply
		outcome = metrics.OutcomeFallback
	}
	log.Info("patient says", zap.String("text", reply))
	s.history = append(s.history, transcript.Turn{Role: transcript.RolePatient, Text: reply})

	if err := s.speak(ctx, reply, fmt.Sprintf("turn-%d-%s", turn, s.engine.markID())); err != nil {
		outcome = s.speakFailed(log, err, outcome)
	}

	s.saveLive()
	return outcome
}

func (s *Session) speakFailed(log *zap.Logger, err error, outcome string) string {
	var (
		transient *TransientServiceError
		transport *TransportWriteError
		malformed *audio.MalformedAudioError
	)
	switch {
	case errors.Is(err, errNoAudio):
		log.Warn("reply produced no audio, skipping mark")
		return metrics.OutcomeNoAudio
	case errors.As(err, &malformed):
		log.Warn("reply audio rejected", zap.Error(err))
		return metrics.OutcomeMalformed
	case errors.As(err, &transient):
		s.engine.metrics.ServiceFailed(transient.Service)
		log.Warn("reply not synthesized", zap.Error(err))
		return metrics.OutcomeNoAudio
	case errors.As(err, &transport):
		s.engine.metrics.TransportFailed(transport.Op)
		log.Warn("reply delivery aborted", zap.Error(err))
		return metrics.OutcomeAborted
	default:
		log.Warn("reply not delivered", zap.Error(err))
		return outcome
	}
}

// transcribe returns the trimmed transcript of mulaw.
func (s *Session) transcribe(ctx context.Context, mulaw []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.engine.cfg.CallTimeout)
	defer cancel()

	text, err := s.engine.svc.Transcriber.Transcribe(ctx, mulaw)
	if err != nil {
		return "", &TransientServiceError{Service: ServiceTranscription, Err: err}
	}
	return strings.TrimSpace(text), nil
}

// reply asks the responder for the patient's answer to heard. A blank answer
// counts as a failure so the patient always says something.
func (s *Session) reply(ctx context.Context, heard string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.engine.cfg.CallTimeout)
	defer cancel()

	text, err := s.engine.svc.Responder.Reply(ctx, s.scenario, s.Conversation(), heard)
	if err != nil {
		return "", &TransientServiceError{Service: ServiceReply, Err: err}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &TransientServiceError{Service: ServiceReply, Err: errors.New("empty reply")}
	}
	return text, nil
}

// speak synthesizes text, streams it as wire frames and ends with a mark. The
// first failed write abandons the rest of the turn.
func (s *Session) speak(ctx context.Context, text, mark string) error {
	synthCtx, cancel := context.WithTimeout(ctx, s.engine.cfg.CallTimeout)
	encoded, err := s.engine.svc.Synthesizer.Synthesize(synthCtx, text)
	cancel()
	if err != nil {
		var malformed *audio.MalformedAudioError
		if errors.As(err, &malformed) {
			return err
		}
		return &TransientServiceError{Service: ServiceSynthesis, Err: err}
	}
	if len(encoded) == 0 {
		return errNoAudio
	}

	_, span := trace.InstrumentAudioProcessing(ctx, "encode", len(encoded), len(encoded))
	frames := audio.ToWireFrames(encoded, s.engine.cfg.FrameSize)
	span.End()

	for i, frame := range frames {
		if err := s.transport.SendMedia(ctx, frame); err != nil {
			s.engine.metrics.FramesSent(i)
			return &TransportWriteError{Op: "media", Err: fmt.Errorf("frame %d of %d: %w", i+1, len(frames), err)}
		}
	}
	s.engine.metrics.FramesSent(len(frames))

	if err := s.transport.SendMark(ctx, mark); err != nil {
		return &TransportWriteError{Op: "mark", Err: err}
	}
	s.logger.Debug("reply sent", zap.String("mark", mark), zap.Int("frames", len(frames)))
	return nil
}
