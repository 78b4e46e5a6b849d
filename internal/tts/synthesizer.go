// Package tts turns reply text into speech with a Kokoro model.
package tts

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/irdan/vocalAI/internal/audio"
	"github.com/irdan/vocalAI/internal/logging"
	"github.com/irdan/vocalAI/internal/sherpa"
)

// ErrEmptyText is returned when there is nothing to say.
var ErrEmptyText = errors.New("empty text")

// kokoroSampleRate is what Kokoro generates when the model does not say otherwise.
const kokoroSampleRate = 24000

// sentenceGap is the silence inserted between synthesized sentences.
const sentenceGap = 120 * time.Millisecond

// Config holds the Kokoro model files and voice selection.
type Config struct {
	Model      string
	Voices     string
	Tokens     string
	DataDir    string // espeak-ng-data
	Lexicon    string
	Language   string // en-us, en-gb, ...
	SpeakerID  int
	Speed      float32
	Provider   string
	NumThreads int
	Debug      bool
}

// Synthesizer generates speech one sentence at a time and joins the result.
// The sherpa engine is not safe for concurrent use, hence the mutex.
type Synthesizer struct {
	speakerID int
	speed     float32
	logger    *logging.Logger

	mu  sync.Mutex
	tts *sherpa.OfflineTts
}

// NewSynthesizer loads the Kokoro model.
func NewSynthesizer(cfg Config, logger *logging.Logger) (*Synthesizer, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1.0
	}

	ttsConfig := &sherpa.OfflineTtsConfig{}
	ttsConfig.Model.Kokoro.Model = cfg.Model
	ttsConfig.Model.Kokoro.Voices = cfg.Voices
	ttsConfig.Model.Kokoro.Tokens = cfg.Tokens
	ttsConfig.Model.Kokoro.DataDir = cfg.DataDir
	ttsConfig.Model.Kokoro.Lexicon = cfg.Lexicon
	ttsConfig.Model.Kokoro.Lang = cfg.Language
	ttsConfig.Model.Kokoro.LengthScale = 1.0 / cfg.Speed
	ttsConfig.Model.NumThreads = cfg.NumThreads
	ttsConfig.Model.Provider = cfg.Provider
	ttsConfig.Model.Debug = 0
	if cfg.Debug {
		ttsConfig.Model.Debug = 1
	}
	ttsConfig.MaxNumSentences = 1

	engine := sherpa.NewOfflineTts(ttsConfig)
	if engine == nil {
		return nil, fmt.Errorf("failed to create TTS synthesizer from %s", cfg.Model)
	}

	return &Synthesizer{
		speakerID: cfg.SpeakerID,
		speed:     cfg.Speed,
		logger:    logger.Named("tts"),
		tts:       engine,
	}, nil
}

// Synthesize renders text as a single buffer. Sentences that fail to
// generate are skipped; it is an error only when none succeed.
func (s *Synthesizer) Synthesize(text string) (audio.AudioBuffer, error) {
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return audio.AudioBuffer{}, ErrEmptyText
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tts == nil {
		return audio.AudioBuffer{}, fmt.Errorf("synthesizer closed")
	}

	start := time.Now()
	out := audio.AudioBuffer{SampleRate: kokoroSampleRate}
	for _, sentence := range sentences {
		generated := s.tts.Generate(sentence, s.speakerID, s.speed)
		if generated == nil || len(generated.Samples) == 0 {
			s.logger.Warnf("⚠️  No audio generated for %q", sentence)
			continue
		}
		if generated.SampleRate > 0 {
			out.SampleRate = int(generated.SampleRate)
		}
		if len(out.Samples) > 0 {
			out.Samples = append(out.Samples, make([]float32, out.SampleRate*int(sentenceGap/time.Millisecond)/1000)...)
		}
		out.Samples = append(out.Samples, generated.Samples...)
	}

	if len(out.Samples) == 0 {
		return audio.AudioBuffer{}, fmt.Errorf("TTS generation failed for all %d sentences", len(sentences))
	}
	s.logger.Infof("🎵 Generated %v of speech in %v", out.Duration().Round(time.Millisecond), time.Since(start).Round(time.Millisecond))
	return out, nil
}

// SplitSentences breaks text at sentence punctuation and newlines, trimming
// each piece and dropping empty ones.
func SplitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	flush := func() {
		trimmed := strings.TrimSpace(current.String())
		current.Reset()
		switch {
		case trimmed == "":
		case strings.Trim(trimmed, ".!?") == "" && len(sentences) > 0:
			// Ellipses and "?!" stay with the sentence they end.
			sentences[len(sentences)-1] += trimmed
		default:
			sentences = append(sentences, trimmed)
		}
	}
	for _, c := range text {
		current.WriteRune(c)
		switch c {
		case '.', '!', '?', '\n':
			flush()
		}
	}
	flush()
	return sentences
}

// Close releases the model.
func (s *Synthesizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tts != nil {
		sherpa.DeleteOfflineTts(s.tts)
		s.tts = nil
	}
}
