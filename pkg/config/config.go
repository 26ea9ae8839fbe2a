// Package config loads patientbot settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/realtime-ai/patientbot/pkg/call"
)

// Reply providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config holds every setting the server needs.
type Config struct {
	Port          string
	PublicBaseURL string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	GeminiAPIKey  string

	ReplyProvider string
	ReplyModel    string
	STTModel      string
	TTSModel      string
	TTSVoice      string

	TranscriptsDir string
	ScenariosFile  string
	PatientName    string
	PatientDOB     string

	Thresholds   call.Thresholds
	CallTimeout  time.Duration
	PaceOutbound bool

	TraceExporter string
	OTLPEndpoint  string

	LogLevel  string
	LogFormat string
}

// Load reads .env files (if present) and then the environment. Variables
// already set in the environment win over .env entries.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables alone.
func FromEnv() (*Config, error) {
	d := call.DefaultThresholds()
	cfg := &Config{
		Port:           getEnv("PORT", "5050"),
		PublicBaseURL:  strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", ""),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		ReplyProvider:  strings.ToLower(getEnv("REPLY_PROVIDER", ProviderOpenAI)),
		ReplyModel:     getEnv("REPLY_MODEL", ""),
		STTModel:       getEnv("STT_MODEL", "whisper-1"),
		TTSModel:       getEnv("TTS_MODEL", "tts-1"),
		TTSVoice:       getEnv("TTS_VOICE", "nova"),
		TranscriptsDir: getEnv("TRANSCRIPTS_DIR", "transcripts"),
		ScenariosFile:  getEnv("SCENARIOS_FILE", ""),
		PatientName:    getEnv("PATIENT_NAME", "Minh Huynh"),
		PatientDOB:     getEnv("PATIENT_DOB", "July 14th, 2001"),
		TraceExporter:  strings.ToLower(getEnv("TRACE_EXPORTER", "none")),
		OTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
	}

	var err error
	if cfg.Thresholds.MediaBatchSize, err = getInt("MEDIA_BATCH_SIZE", d.MediaBatchSize); err != nil {
		return nil, err
	}
	if cfg.Thresholds.MinBufferBytes, err = getInt("MIN_BUFFER_BYTES", d.MinBufferBytes); err != nil {
		return nil, err
	}
	if cfg.Thresholds.MinFlushBytes, err = getInt("MIN_FLUSH_BYTES", d.MinFlushBytes); err != nil {
		return nil, err
	}
	if cfg.CallTimeout, err = getDuration("CALL_TIMEOUT", 20*time.Second); err != nil {
		return nil, err
	}
	if cfg.PaceOutbound, err = getBool("PACE_OUTBOUND", false); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports missing or inconsistent settings.
func (c *Config) Validate() error {
	var errs []error
	if c.OpenAIAPIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required for transcription and speech"))
	}
	switch c.ReplyProvider {
	case ProviderOpenAI:
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required when REPLY_PROVIDER=gemini"))
		}
	default:
		errs = append(errs, fmt.Errorf("REPLY_PROVIDER must be %q or %q, got %q", ProviderOpenAI, ProviderGemini, c.ReplyProvider))
	}
	if c.Thresholds.MediaBatchSize <= 0 || c.Thresholds.MinBufferBytes <= 0 || c.Thresholds.MinFlushBytes <= 0 {
		errs = append(errs, errors.New("MEDIA_BATCH_SIZE, MIN_BUFFER_BYTES and MIN_FLUSH_BYTES must be positive"))
	}
	switch c.TraceExporter {
	case "none", "stdout", "otlp":
	default:
		errs = append(errs, fmt.Errorf("TRACE_EXPORTER must be none, stdout or otlp, got %q", c.TraceExporter))
	}
	if c.CallTimeout <= 0 {
		errs = append(errs, errors.New("CALL_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

// Address is the listen address for Port.
func (c *Config) Address() string {
	if strings.Contains(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
