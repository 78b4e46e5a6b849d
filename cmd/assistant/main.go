// Command vocalai is a hands-free voice assistant driven by spoken control
// phrases.
//
// The microphone is decoded continuously by a streaming recognizer. Saying
// the end-of-message phrase ends the turn; the utterance is transcribed with
// Whisper, answered by the LLM and spoken with Kokoro. The stop phrase cuts a
// reply short, and the end-session phrase exits after the current turn.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/irdan/vocalAI/internal/assistant"
	"github.com/irdan/vocalAI/internal/audio"
	"github.com/irdan/vocalAI/internal/config"
	"github.com/irdan/vocalAI/internal/events"
	"github.com/irdan/vocalAI/internal/listener"
	"github.com/irdan/vocalAI/internal/llm"
	"github.com/irdan/vocalAI/internal/logging"
	"github.com/irdan/vocalAI/internal/stt"
	"github.com/irdan/vocalAI/internal/tts"
)

// streamingRecognizer is what the listener needs from either backend, plus
// model teardown.
type streamingRecognizer interface {
	listener.StreamingRecognizer
	Close()
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(2)
	}

	if cfg.ListVoices {
		config.PrintVoices(os.Stdout)
		return
	}
	if cfg.VoiceInfo != "" {
		if err := config.PrintVoiceInfo(os.Stdout, cfg.VoiceInfo); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	logger := logging.New(cfg.Verbose)
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Errorw("Assistant stopped with an error", "error", err)
		logger.Sync() //nolint:errcheck
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	logger.Infow("🎤 Voice assistant starting",
		"provider", cfg.Provider,
		"backend", cfg.StreamingBackend,
		"voice", cfg.TTSVoice,
		"speaker", cfg.SpeakerID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	responder, err := llm.New(llm.Config{
		Provider:     cfg.LLMProvider,
		URL:          cfg.LLMURL,
		Model:        cfg.LLMModel,
		APIKey:       cfg.LLMAPIKey,
		Instructions: cfg.Instructions,
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
		MaxHistory:   cfg.MaxHistory,
		Timeout:      cfg.LLMTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating LLM client: %w", err)
	}
	if ollama, ok := responder.(*llm.OllamaClient); ok {
		logger.Infow("🔗 Checking Ollama connection", "url", cfg.LLMURL)
		if err := ollama.HealthCheck(ctx); err != nil {
			return fmt.Errorf("ollama connection failed: %w", err)
		}
	}
	logger.Infow("✅ LLM ready", "provider", cfg.LLMProvider, "model", cfg.LLMModel)

	logger.Info("🧠 Loading speech recognition models...")
	recognizer, err := newStreamingRecognizer(cfg, logger)
	if err != nil {
		return err
	}
	defer recognizer.Close()

	transcriber := stt.NewTranscriber(stt.WhisperConfig{
		Encoder:            cfg.WhisperEncoder,
		Decoder:            cfg.WhisperDecoder,
		Tokens:             cfg.WhisperTokens,
		Language:           cfg.WhisperLanguage,
		SampleRate:         cfg.SampleRate,
		NumThreads:         cfg.STTThreads,
		Provider:           cfg.Provider,
		VADModel:           cfg.VADModel,
		VADThreshold:       cfg.VADThreshold,
		VADSilenceDuration: cfg.VADSilenceDuration,
		VADThreads:         cfg.VADThreads,
		Debug:              cfg.Verbose,
	}, logger)
	defer transcriber.Close()
	logger.Info("✅ Speech recognition ready")

	logger.Info("🔊 Loading text-to-speech model...")
	synth, err := tts.NewSynthesizer(tts.Config{
		Model:      cfg.TTSModel,
		Voices:     cfg.TTSVoices,
		Tokens:     cfg.TTSTokens,
		DataDir:    cfg.TTSData,
		Lexicon:    cfg.TTSLexicon,
		Language:   cfg.TTSLang,
		SpeakerID:  cfg.SpeakerID,
		Speed:      cfg.TTSSpeed,
		Provider:   cfg.Provider,
		NumThreads: cfg.TTSThreads,
		Debug:      cfg.Verbose,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating TTS synthesizer: %w", err)
	}
	defer synth.Close()
	logger.Info("✅ Text-to-speech ready")

	bus := events.NewBus(logger)

	speaker, err := audio.NewSpeaker(audio.SpeakerConfig{BufferMs: cfg.AudioBufferMs}, logger)
	if err != nil {
		return fmt.Errorf("opening playback device: %w", err)
	}
	defer speaker.Close()

	player := audio.NewPlayer(bus, speaker, cfg.StopTimeout, logger)
	defer player.Shutdown()

	mic, err := audio.NewMicrophone(audio.MicrophoneConfig{SampleRate: cfg.SampleRate}, logger)
	if err != nil {
		return fmt.Errorf("opening capture device: %w", err)
	}
	defer mic.Close()

	capture := listener.New(listener.Config{
		EOMPhrase:        cfg.EOMPhrase,
		StopPhrase:       cfg.StopPhrase,
		EndSessionPhrase: cfg.EndSessionPhrase,
		FrameSize:        cfg.FrameSize,
		StopWaitTimeout:  cfg.StopWaitTimeout,
	}, bus, mic, recognizer, transcriber, logger)
	defer capture.Close()

	if err := mic.Start(); err != nil {
		return fmt.Errorf("starting audio capture: %w", err)
	}

	// A blocked Read only returns once the stream is closed.
	go func() {
		<-ctx.Done()
		mic.Close()
	}()

	logger.Infow("🎙️ Listening",
		"eom_phrase", cfg.EOMPhrase,
		"stop_phrase", cfg.StopPhrase,
		"end_session_phrase", cfg.EndSessionPhrase)

	err = assistant.NewLoop(capture, responder, synth, player, logger).Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("🛑 Shutting down...")
		return nil
	}
	if err == nil {
		logger.Info("👋 Session ended")
	}
	return err
}

func newStreamingRecognizer(cfg *config.Config, logger *logging.Logger) (streamingRecognizer, error) {
	switch cfg.StreamingBackend {
	case config.BackendVosk:
		r, err := stt.NewVoskRecognizer(cfg.VoskModelPath, cfg.SampleRate, cfg.Verbose, logger)
		if err != nil {
			return nil, fmt.Errorf("loading vosk model: %w", err)
		}
		return r, nil
	default:
		r, err := stt.NewOnlineRecognizer(stt.OnlineConfig{
			Encoder:    cfg.OnlineEncoder,
			Decoder:    cfg.OnlineDecoder,
			Joiner:     cfg.OnlineJoiner,
			Tokens:     cfg.OnlineTokens,
			SampleRate: cfg.SampleRate,
			NumThreads: cfg.STTThreads,
			Provider:   cfg.Provider,
			Debug:      cfg.Verbose,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("loading streaming model: %w", err)
		}
		return r, nil
	}
}
