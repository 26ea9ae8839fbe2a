package tts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAITTSProvider_Name(t *testing.T) {
	provider := NewOpenAITTSProvider(OpenAIConfig{APIKey: "test-key"})
	assert.Equal(t, "openai", provider.Name())
}

func TestOpenAITTSProvider_GetDefaultVoice(t *testing.T) {
	assert.Equal(t, "nova", NewOpenAITTSProvider(OpenAIConfig{APIKey: "k"}).GetDefaultVoice())
	assert.Equal(t, "alloy", NewOpenAITTSProvider(OpenAIConfig{APIKey: "k", Voice: "alloy"}).GetDefaultVoice())
}

func TestOpenAITTSProvider_ValidateConfig(t *testing.T) {
	tests := []struct {
		name      string
		apiKey    string
		wantError bool
	}{
		{name: "Valid API key", apiKey: "sk-test-key", wantError: false},
		{name: "Empty API key", apiKey: "", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewOpenAITTSProvider(OpenAIConfig{APIKey: tt.apiKey}).ValidateConfig()
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOpenAITTSProvider_Synthesize(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/audio/speech"), r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "audio/pcm")
		w.Write(make([]byte, 4800))
	}))
	defer srv.Close()

	provider := NewOpenAITTSProvider(OpenAIConfig{APIKey: "k", BaseURL: srv.URL})
	resp, err := provider.Synthesize(context.Background(), &SynthesizeRequest{Text: "Hi, I'd like to book."})
	require.NoError(t, err)

	assert.Len(t, resp.AudioData, 4800)
	assert.Equal(t, 24000, resp.AudioFormat.SampleRate)
	assert.Equal(t, "pcm", got["response_format"])
	assert.Equal(t, "nova", got["voice"])
	assert.Equal(t, "tts-1", got["model"])
}

type fakeTTS struct {
	resp  *SynthesizeResponse
	err   error
	calls int
}

func (f *fakeTTS) Name() string            { return "fake" }
func (f *fakeTTS) GetDefaultVoice() string { return "fake" }
func (f *fakeTTS) ValidateConfig() error   { return nil }

func (f *fakeTTS) Synthesize(ctx context.Context, req *SynthesizeRequest) (*SynthesizeResponse, error) {
	f.calls++
	return f.resp, f.err
}

func TestNarrowbandSynthesizer(t *testing.T) {
	t.Run("converts 24k pcm to 8k mulaw", func(t *testing.T) {
		f := &fakeTTS{resp: &SynthesizeResponse{
			AudioData:   make([]byte, 24000*2),
			AudioFormat: AudioFormat{SampleRate: 24000, Encoding: "pcm_s16le"},
		}}
		out, err := NewNarrowbandSynthesizer(f).Synthesize(context.Background(), "hello")
		require.NoError(t, err)
		assert.Len(t, out, 8000)
	})

	t.Run("blank text skips provider", func(t *testing.T) {
		f := &fakeTTS{}
		out, err := NewNarrowbandSynthesizer(f).Synthesize(context.Background(), "  \n")
		require.NoError(t, err)
		assert.Nil(t, out)
		assert.Zero(t, f.calls)
	})

	t.Run("empty audio", func(t *testing.T) {
		f := &fakeTTS{resp: &SynthesizeResponse{}}
		out, err := NewNarrowbandSynthesizer(f).Synthesize(context.Background(), "hello")
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("provider error", func(t *testing.T) {
		f := &fakeTTS{err: errors.New("quota")}
		_, err := NewNarrowbandSynthesizer(f).Synthesize(context.Background(), "hello")
		assert.Error(t, err)
	})

	t.Run("odd pcm rejected", func(t *testing.T) {
		f := &fakeTTS{resp: &SynthesizeResponse{AudioData: make([]byte, 3)}}
		_, err := NewNarrowbandSynthesizer(f).Synthesize(context.Background(), "hello")
		assert.Error(t, err)
	})
}
