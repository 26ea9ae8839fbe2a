// Command patientbot serves the simulated patient for Twilio Media Streams calls.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/realtime-ai/patientbot/pkg/asr"
	"github.com/realtime-ai/patientbot/pkg/call"
	"github.com/realtime-ai/patientbot/pkg/config"
	"github.com/realtime-ai/patientbot/pkg/connection"
	"github.com/realtime-ai/patientbot/pkg/llm"
	"github.com/realtime-ai/patientbot/pkg/logger"
	"github.com/realtime-ai/patientbot/pkg/metrics"
	"github.com/realtime-ai/patientbot/pkg/scenario"
	"github.com/realtime-ai/patientbot/pkg/server"
	"github.com/realtime-ai/patientbot/pkg/trace"
	"github.com/realtime-ai/patientbot/pkg/transcript"
	"github.com/realtime-ai/patientbot/pkg/tts"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "patientbot: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	defer func() { _ = log.Sync() }()
	zap.ReplaceGlobals(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := trace.Initialize(ctx, trace.Config{
		Exporter:     cfg.TraceExporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn("failed to shutdown tracing", zap.Error(err))
		}
	}()

	services, err := buildServices(ctx, cfg, log)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector("patientbot", reg)

	engine := call.NewEngine(call.Config{
		Thresholds:  cfg.Thresholds,
		CallTimeout: cfg.CallTimeout,
	}, services, log, collector)

	srv := server.NewTwilioMediaServer(server.TwilioServerConfig{
		Address:       cfg.Address(),
		PublicBaseURL: cfg.PublicBaseURL,
		Connection:    connection.TwilioOptions{
			EventBuffer:  connection.EventBufferFor(engine.Config().TurnBudget()),
			PaceOutbound: cfg.PaceOutbound,
		},
	}, engine, reg, log)

	log.Info("patientbot starting",
		zap.String("address", cfg.Address()),
		zap.String("reply_provider", cfg.ReplyProvider),
		zap.String("transcripts_dir", cfg.TranscriptsDir),
		zap.Any("thresholds", cfg.Thresholds))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	return g.Wait()
}

func buildServices(ctx context.Context, cfg *config.Config, log *zap.Logger) (call.Services, error) {
	catalog := scenario.Default()
	if cfg.ScenariosFile != "" {
		loaded, err := scenario.LoadFile(cfg.ScenariosFile, catalog)
		if err != nil {
			return call.Services{}, err
		}
		catalog = loaded
		log.Info("loaded scenarios", zap.String("file", cfg.ScenariosFile), zap.Strings("ids", catalog.IDs()))
	}

	recorder, err := transcript.NewRecorder(cfg.TranscriptsDir, log)
	if err != nil {
		return call.Services{}, err
	}

	whisper, err := asr.NewWhisperProvider(asr.WhisperConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.STTModel,
	}, log)
	if err != nil {
		return call.Services{}, fmt.Errorf("create transcription provider: %w", err)
	}

	speech := tts.NewOpenAITTSProvider(tts.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.TTSModel,
		Voice:   cfg.TTSVoice,
	})
	if err := speech.ValidateConfig(); err != nil {
		return call.Services{}, fmt.Errorf("speech provider: %w", err)
	}

	responder, err := buildResponder(ctx, cfg)
	if err != nil {
		return call.Services{}, fmt.Errorf("create reply provider: %w", err)
	}

	return call.Services{
		Transcriber: asr.NewNarrowbandTranscriber(whisper, asr.RecognitionConfig{Language: "en", Model: cfg.STTModel}),
		Responder:   responder,
		Synthesizer: tts.NewNarrowbandSynthesizer(speech),
		Scenarios:   catalog,
		Recorder:    recorder,
	}, nil
}

func buildResponder(ctx context.Context, cfg *config.Config) (llm.Responder, error) {
	persona := llm.Persona{Name: cfg.PatientName, DOB: cfg.PatientDOB}
	if cfg.ReplyProvider == config.ProviderGemini {
		return llm.NewGeminiResponder(ctx, llm.GeminiConfig{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.ReplyModel,
			Persona: persona,
		})
	}
	return llm.NewOpenAIResponder(llm.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.ReplyModel,
		Persona: persona,
	})
}
