// Package stt wraps the speech-to-text models: streaming recognizers fed
// frame by frame for trigger detection, and the offline Whisper transcriber
// run once over a whole utterance.
package stt

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/irdan/vocalAI/internal/audio"
	"github.com/irdan/vocalAI/internal/logging"
	"github.com/irdan/vocalAI/internal/sherpa"
)

// VAD configuration for trimming silence before Whisper.
const (
	VADMinSpeechDuration = 0.1
	VADMaxSpeechDuration = 30.0
	// VADWindowSize is 32ms at 16kHz, the frame size Silero expects.
	VADWindowSize = 512
	VADBufferSize = 120.0
)

// WhisperConfig configures the offline transcriber.
type WhisperConfig struct {
	Encoder    string
	Decoder    string
	Tokens     string
	Language   string // "auto" for detection
	SampleRate int
	NumThreads int
	Provider   string // cpu, cuda, coreml

	// Optional Silero VAD used to drop silence around the utterance.
	VADModel           string
	VADThreshold       float32
	VADSilenceDuration float32
	VADThreads         int

	Debug bool
}

// Transcriber runs Whisper over a complete captured utterance. Models are
// loaded on the first call so start-up stays fast.
type Transcriber struct {
	cfg    WhisperConfig
	logger *logging.Logger

	mu         sync.Mutex
	recognizer *sherpa.OfflineRecognizer
	vad        *sherpa.VoiceActivityDetector
}

// NewTranscriber returns a transcriber; no model is loaded yet.
func NewTranscriber(cfg WhisperConfig, logger *logging.Logger) *Transcriber {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Transcriber{cfg: cfg, logger: logger.Named("whisper")}
}

func (t *Transcriber) initLocked() error {
	if t.recognizer != nil {
		return nil
	}

	start := time.Now()
	recognizerConfig := &sherpa.OfflineRecognizerConfig{}
	recognizerConfig.ModelConfig.Whisper.Encoder = t.cfg.Encoder
	recognizerConfig.ModelConfig.Whisper.Decoder = t.cfg.Decoder
	language := t.cfg.Language
	if strings.EqualFold(language, "auto") {
		language = ""
	}
	recognizerConfig.ModelConfig.Whisper.Language = language
	recognizerConfig.ModelConfig.Whisper.Task = "transcribe"
	recognizerConfig.ModelConfig.Whisper.TailPaddings = -1
	recognizerConfig.ModelConfig.Tokens = t.cfg.Tokens
	recognizerConfig.ModelConfig.NumThreads = t.cfg.NumThreads
	recognizerConfig.ModelConfig.Provider = t.cfg.Provider
	recognizerConfig.ModelConfig.Debug = debugFlag(t.cfg.Debug)
	recognizerConfig.DecodingMethod = "greedy_search"

	recognizer := sherpa.NewOfflineRecognizer(recognizerConfig)
	if recognizer == nil {
		return fmt.Errorf("failed to create offline recognizer from %s", t.cfg.Encoder)
	}

	if t.cfg.VADModel != "" {
		vadConfig := &sherpa.VadModelConfig{}
		vadConfig.SileroVad.Model = t.cfg.VADModel
		vadConfig.SileroVad.Threshold = t.cfg.VADThreshold
		vadConfig.SileroVad.MinSilenceDuration = t.cfg.VADSilenceDuration
		vadConfig.SileroVad.MinSpeechDuration = VADMinSpeechDuration
		vadConfig.SileroVad.MaxSpeechDuration = VADMaxSpeechDuration
		vadConfig.SileroVad.WindowSize = VADWindowSize
		vadConfig.SampleRate = t.cfg.SampleRate
		vadConfig.NumThreads = t.cfg.VADThreads
		vadConfig.Debug = debugFlag(t.cfg.Debug)

		t.vad = sherpa.NewVoiceActivityDetector(vadConfig, VADBufferSize)
		if t.vad == nil {
			sherpa.DeleteOfflineRecognizer(recognizer)
			return fmt.Errorf("failed to create VAD from %s", t.cfg.VADModel)
		}
	}

	t.recognizer = recognizer
	t.logger.Infof("✅ Whisper loaded in %v", time.Since(start).Round(time.Millisecond))
	return nil
}

// Transcribe decodes PCM16LE mono audio at the configured rate. Silence-only
// audio yields an empty string.
func (t *Transcriber) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.initLocked(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	samples := audio.PCM16ToFloat32(pcm)
	if t.vad != nil {
		samples = t.speechOnly(samples)
	}
	if len(samples) == 0 {
		return "", nil
	}

	start := time.Now()
	stream := sherpa.NewOfflineStream(t.recognizer)
	if stream == nil {
		return "", fmt.Errorf("failed to create offline stream")
	}
	defer sherpa.DeleteOfflineStream(stream)

	stream.AcceptWaveform(t.cfg.SampleRate, samples)
	t.recognizer.Decode(stream)
	text := strings.TrimSpace(stream.GetResult().Text)

	t.logger.Debugf("Decoded %.2fs of speech in %v", float64(len(samples))/float64(t.cfg.SampleRate), time.Since(start).Round(time.Millisecond))
	if text != "" {
		t.logger.Infof("🗣️ You: %s", text)
	}
	return text, nil
}

// speechOnly keeps the VAD speech segments. If the VAD finds nothing the
// whole buffer is returned, since Whisper is the better judge on quiet input.
func (t *Transcriber) speechOnly(samples []float32) []float32 {
	t.vad.Clear()
	for offset := 0; offset+VADWindowSize <= len(samples); offset += VADWindowSize {
		t.vad.AcceptWaveform(samples[offset : offset+VADWindowSize])
	}
	t.vad.Flush()

	var speech []float32
	for !t.vad.IsEmpty() {
		segment := t.vad.Front()
		speech = append(speech, segment.Samples...)
		t.vad.Pop()
	}
	if len(speech) == 0 {
		t.logger.Debug("VAD found no speech, decoding full buffer")
		return samples
	}
	t.logger.Debugf("VAD kept %d of %d samples", len(speech), len(samples))
	return speech
}

// Close releases the models.
func (t *Transcriber) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.vad != nil {
		sherpa.DeleteVoiceActivityDetector(t.vad)
		t.vad = nil
	}
	if t.recognizer != nil {
		sherpa.DeleteOfflineRecognizer(t.recognizer)
		t.recognizer = nil
	}
}

func debugFlag(on bool) int {
	if on {
		return 1
	}
	return 0
}
