// Package config loads the assistant configuration from defaults, a JSON
// file, the environment and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/irdan/vocalAI/internal/sherpa"
)

// EnvPrefix prefixes every environment override, e.g. VOCALAI_EOM_PHRASE.
const EnvPrefix = "VOCALAI"

// Streaming recognizer backends.
const (
	BackendSherpa = "sherpa"
	BackendVosk   = "vosk"
)

// Config enumerates every setting the assistant understands.
type Config struct {
	// Control phrases
	EOMPhrase        string `mapstructure:"eom_phrase"`
	StopPhrase       string `mapstructure:"stop_phrase"`
	EndSessionPhrase string `mapstructure:"end_session_phrase"`

	// Audio
	SampleRate      int           `mapstructure:"sample_rate"`
	FrameSize       int           `mapstructure:"frame_size"`
	AudioBufferMs   uint32        `mapstructure:"audio_buffer_ms"` // 20 wired, 100 Bluetooth
	StopWaitTimeout time.Duration `mapstructure:"stop_wait_timeout"`
	StopTimeout     time.Duration `mapstructure:"playback_stop_timeout"`

	// Models
	ModelDir         string `mapstructure:"model_dir"`
	StreamingBackend string `mapstructure:"streaming_backend"`
	VoskModelPath    string `mapstructure:"vosk_model_path"`
	OnlineEncoder    string `mapstructure:"online_encoder"`
	OnlineDecoder    string `mapstructure:"online_decoder"`
	OnlineJoiner     string `mapstructure:"online_joiner"`
	OnlineTokens     string `mapstructure:"online_tokens"`

	WhisperEncoder  string `mapstructure:"whisper_encoder"`
	WhisperDecoder  string `mapstructure:"whisper_decoder"`
	WhisperTokens   string `mapstructure:"whisper_tokens"`
	WhisperLanguage string `mapstructure:"whisper_language"`

	VADModel           string  `mapstructure:"vad_model"` // empty disables silence trimming
	VADThreshold       float32 `mapstructure:"vad_threshold"`
	VADSilenceDuration float32 `mapstructure:"vad_silence_duration"`

	TTSModel   string  `mapstructure:"tts_model"`
	TTSVoices  string  `mapstructure:"tts_voices"`
	TTSTokens  string  `mapstructure:"tts_tokens"`
	TTSData    string  `mapstructure:"tts_data"`
	TTSVoice   string  `mapstructure:"tts_voice"`
	TTSSpeed   float32 `mapstructure:"tts_speed"`
	TTSLexicon string  `mapstructure:"-"`
	TTSLang    string  `mapstructure:"-"`
	SpeakerID  int     `mapstructure:"-"`

	// LLM
	LLMProvider  string        `mapstructure:"llm_provider"`
	LLMURL       string        `mapstructure:"llm_url"`
	LLMModel     string        `mapstructure:"llm_model"`
	LLMAPIKey    string        `mapstructure:"llm_api_key"`
	Instructions string        `mapstructure:"instructions"`
	Temperature  float64       `mapstructure:"temperature"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	MaxHistory   int           `mapstructure:"max_history"`
	LLMTimeout   time.Duration `mapstructure:"llm_timeout"`

	// Hardware
	Provider   string `mapstructure:"provider"` // cpu, cuda, coreml; detected when empty
	NumThreads int    `mapstructure:"num_threads"`
	VADThreads int    `mapstructure:"vad_threads"`
	STTThreads int    `mapstructure:"stt_threads"`
	TTSThreads int    `mapstructure:"tts_threads"`

	Verbose bool `mapstructure:"verbose"`

	// Set from flags only.
	ListVoices bool   `mapstructure:"-"`
	VoiceInfo  string `mapstructure:"-"`
}

// defaults mirrors Config; every key must be listed so the environment can
// override it.
func defaults() map[string]any {
	homeDir, _ := os.UserHomeDir()
	return map[string]any{
		"eom_phrase":         "porcupine",
		"stop_phrase":        "stop",
		"end_session_phrase": "stop session",

		"sample_rate":           16000,
		"frame_size":            1024,
		"audio_buffer_ms":       100,
		"stop_wait_timeout":     "2s",
		"playback_stop_timeout": "1s",

		"model_dir":         filepath.Join(homeDir, ".vocalai", "models"),
		"streaming_backend": BackendSherpa,
		"vosk_model_path":   "",
		"online_encoder":    "",
		"online_decoder":    "",
		"online_joiner":     "",
		"online_tokens":     "",

		"whisper_encoder":  "",
		"whisper_decoder":  "",
		"whisper_tokens":   "",
		"whisper_language": "en",

		"vad_model":            "",
		"vad_threshold":        0.5,
		"vad_silence_duration": 0.5,

		"tts_model":  "",
		"tts_voices": "",
		"tts_tokens": "",
		"tts_data":   "",
		"tts_voice":  "af_bella",
		"tts_speed":  1.0,

		"llm_provider": "ollama",
		"llm_url":      "http://localhost:11434",
		"llm_model":    "gemma3:1b",
		"llm_api_key":  "",
		"instructions": "You are a helpful voice assistant. Answer in two or three short sentences of plain text. Your answer is read aloud, so never use markdown, lists, or special characters.",
		"temperature":  0.7,
		"max_tokens":   150,
		"max_history":  10,
		"llm_timeout":  "60s",

		"provider":    "",
		"num_threads": 0,
		"vad_threads": 0,
		"stt_threads": 0,
		"tts_threads": 0,

		"verbose": false,
	}
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"model-dir":          "model_dir",
	"backend":            "streaming_backend",
	"llm-provider":       "llm_provider",
	"llm-url":            "llm_url",
	"llm-model":          "llm_model",
	"tts-voice":          "tts_voice",
	"whisper-language":   "whisper_language",
	"provider":           "provider",
	"audio-buffer-ms":    "audio_buffer_ms",
	"verbose":            "verbose",
	"eom-phrase":         "eom_phrase",
	"stop-phrase":        "stop_phrase",
	"end-session-phrase": "end_session_phrase",
}

// Load builds the configuration from args (without the program name).
// Sources in increasing precedence: defaults, the JSON file named by
// -config, the environment (after loading -env-file if present), flags.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("vocalai", flag.ContinueOnError)
	configFile := fs.String("config", "config.json", "JSON configuration file")
	envFile := fs.String("env-file", ".env", "dotenv file with VOCALAI_* overrides")
	listVoices := fs.Bool("list-voices", false, "List the available TTS voices and exit")
	voiceInfo := fs.String("voice-info", "", "Show details about a TTS voice and exit")

	fs.String("model-dir", "", "Directory containing the model files")
	fs.String("backend", "", "Streaming recognizer: sherpa or vosk")
	fs.String("llm-provider", "", "LLM provider: ollama or openai")
	fs.String("llm-url", "", "LLM server URL")
	fs.String("llm-model", "", "LLM model name")
	fs.String("tts-voice", "", "Kokoro voice name (see -list-voices)")
	fs.String("whisper-language", "", "Whisper language code, or auto")
	fs.String("provider", "", "Hardware acceleration provider (cpu, cuda, coreml)")
	fs.Uint("audio-buffer-ms", 0, "Playback buffer in ms (20 wired, 100 Bluetooth)")
	fs.Bool("verbose", false, "Enable verbose logging")
	fs.String("eom-phrase", "", "Phrase that ends a message")
	fs.String("stop-phrase", "", "Phrase that interrupts the reply")
	fs.String("end-session-phrase", "", "Phrase that ends the session")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", *envFile, err)
	}

	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	v.SetConfigFile(*configFile)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		explicit := false
		fs.Visit(func(f *flag.Flag) { explicit = explicit || f.Name == "config" })
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config %s: %w", *configFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	fs.Visit(func(f *flag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			v.Set(key, f.Value.String())
		}
	})

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.ListVoices = *listVoices
	cfg.VoiceInfo = *voiceInfo

	if cfg.ListVoices || cfg.VoiceInfo != "" {
		return cfg, nil
	}

	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolve fills derived settings: model paths under ModelDir, voice data,
// the acceleration provider and thread counts.
func (c *Config) resolve() error {
	orDefault := func(path *string, parts ...string) {
		if *path == "" {
			*path = filepath.Join(append([]string{c.ModelDir}, parts...)...)
		}
	}

	orDefault(&c.VoskModelPath, "vosk")
	orDefault(&c.OnlineEncoder, "streaming", "encoder.int8.onnx")
	orDefault(&c.OnlineDecoder, "streaming", "decoder.onnx")
	orDefault(&c.OnlineJoiner, "streaming", "joiner.int8.onnx")
	orDefault(&c.OnlineTokens, "streaming", "tokens.txt")
	orDefault(&c.WhisperEncoder, "whisper", "whisper-small-encoder.int8.onnx")
	orDefault(&c.WhisperDecoder, "whisper", "whisper-small-decoder.int8.onnx")
	orDefault(&c.WhisperTokens, "whisper", "whisper-small-tokens.txt")

	ttsDir := filepath.Join(c.ModelDir, "tts", "kokoro-multi-lang-v1_0")
	orDefault(&c.TTSModel, "tts", "kokoro-multi-lang-v1_0", "model.onnx")
	orDefault(&c.TTSVoices, "tts", "kokoro-multi-lang-v1_0", "voices.bin")
	orDefault(&c.TTSTokens, "tts", "kokoro-multi-lang-v1_0", "tokens.txt")
	orDefault(&c.TTSData, "tts", "kokoro-multi-lang-v1_0", "espeak-ng-data")

	voice, ok := LookupVoice(c.TTSVoice)
	if !ok {
		return fmt.Errorf("unknown TTS voice %q, run with -list-voices", c.TTSVoice)
	}
	c.SpeakerID = voice.SpeakerID
	c.TTSLang = voice.Espeak
	c.TTSLexicon = voice.lexicon(ttsDir)

	c.StreamingBackend = strings.ToLower(c.StreamingBackend)
	c.LLMProvider = strings.ToLower(c.LLMProvider)
	c.Provider = strings.ToLower(c.Provider)
	if c.Provider == "" {
		c.Provider = sherpa.DefaultProvider()
	}
	c.normalizeThreadCounts()
	return nil
}

// normalizeThreadCounts derives per-model threads from the CPU count:
// one for the VAD, cores/3 for each heavy model.
func (c *Config) normalizeThreadCounts() {
	if c.NumThreads <= 0 {
		c.NumThreads = max(1, runtime.NumCPU()/3)
	}
	if c.VADThreads <= 0 {
		c.VADThreads = 1
	}
	if c.STTThreads <= 0 {
		c.STTThreads = c.NumThreads
	}
	if c.TTSThreads <= 0 {
		c.TTSThreads = c.NumThreads
	}
}

func (c *Config) validate() error {
	var problems []string

	for _, p := range []struct{ key, value string }{
		{"eom_phrase", c.EOMPhrase},
		{"stop_phrase", c.StopPhrase},
		{"end_session_phrase", c.EndSessionPhrase},
	} {
		if strings.TrimSpace(p.value) == "" {
			problems = append(problems, p.key+" must not be empty")
		}
	}
	if c.SampleRate <= 0 {
		problems = append(problems, fmt.Sprintf("sample_rate must be positive, got %d", c.SampleRate))
	}
	if c.FrameSize <= 0 {
		problems = append(problems, fmt.Sprintf("frame_size must be positive, got %d", c.FrameSize))
	}
	if c.TTSSpeed <= 0 {
		problems = append(problems, "tts_speed must be positive")
	}
	switch c.LLMProvider {
	case "ollama", "openai":
	default:
		problems = append(problems, fmt.Sprintf("unknown llm_provider %q", c.LLMProvider))
	}
	if !slices.Contains(sherpa.AvailableProviders(), c.Provider) {
		problems = append(problems, fmt.Sprintf("provider %q not available on this platform (%s)",
			c.Provider, strings.Join(sherpa.AvailableProviders(), ", ")))
	}
	if c.LLMModel == "" {
		problems = append(problems, "llm_model must not be empty")
	}

	required := []string{c.WhisperEncoder, c.WhisperDecoder, c.WhisperTokens, c.TTSModel, c.TTSVoices, c.TTSTokens}
	switch c.StreamingBackend {
	case BackendSherpa:
		required = append(required, c.OnlineEncoder, c.OnlineDecoder, c.OnlineJoiner, c.OnlineTokens)
	case BackendVosk:
		required = append(required, c.VoskModelPath)
	default:
		problems = append(problems, fmt.Sprintf("unknown streaming_backend %q", c.StreamingBackend))
	}
	if c.VADModel != "" {
		required = append(required, c.VADModel)
	}
	for _, path := range required {
		if _, err := os.Stat(path); err != nil {
			problems = append(problems, "required model file not found: "+path)
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}
