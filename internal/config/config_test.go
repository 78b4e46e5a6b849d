package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// modelDir creates empty stand-ins for every model file the default
// sherpa backend needs.
func modelDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := []string{
		"streaming/encoder.int8.onnx",
		"streaming/decoder.onnx",
		"streaming/joiner.int8.onnx",
		"streaming/tokens.txt",
		"whisper/whisper-small-encoder.int8.onnx",
		"whisper/whisper-small-decoder.int8.onnx",
		"whisper/whisper-small-tokens.txt",
		"tts/kokoro-multi-lang-v1_0/model.onnx",
		"tts/kokoro-multi-lang-v1_0/voices.bin",
		"tts/kokoro-multi-lang-v1_0/tokens.txt",
	}
	for _, f := range files {
		path := filepath.Join(dir, f)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	dir := modelDir(t)
	_, err := Load([]string{
		"-config", filepath.Join(t.TempDir(), "absent.json"),
		"-env-file", filepath.Join(t.TempDir(), "absent.env"),
		"-model-dir", dir,
	})
	if err == nil {
		t.Fatalf("an explicitly named config file that does not exist must be an error")
	}

	cfg, err := Load([]string{"-env-file", filepath.Join(t.TempDir(), "absent.env"), "-model-dir", dir})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.EOMPhrase != "porcupine" || cfg.StopPhrase != "stop" || cfg.EndSessionPhrase != "stop session" {
		t.Errorf("unexpected default phrases: %q %q %q", cfg.EOMPhrase, cfg.StopPhrase, cfg.EndSessionPhrase)
	}
	if cfg.SampleRate != 16000 || cfg.FrameSize != 1024 {
		t.Errorf("unexpected audio defaults: %d %d", cfg.SampleRate, cfg.FrameSize)
	}
	if cfg.StopWaitTimeout != 2*time.Second || cfg.StopTimeout != time.Second {
		t.Errorf("unexpected timeouts: %v %v", cfg.StopWaitTimeout, cfg.StopTimeout)
	}
	if cfg.SpeakerID != 2 || !strings.HasSuffix(cfg.TTSLexicon, "lexicon-us-en.txt") {
		t.Errorf("voice not resolved: id=%d lexicon=%s", cfg.SpeakerID, cfg.TTSLexicon)
	}
	if cfg.VADThreads != 1 || cfg.STTThreads < 1 || cfg.TTSThreads < 1 {
		t.Errorf("thread counts not normalized: %+v", cfg)
	}
	if cfg.Provider == "" {
		t.Errorf("provider must be detected")
	}
}

func TestLoad_Precedence(t *testing.T) {
	dir := modelDir(t)
	file := writeFile(t, "config.json", `{
		"eom_phrase": "over",
		"stop_phrase": "halt",
		"end_session_phrase": "goodbye",
		"llm_model": "from-file",
		"tts_voice": "bf_emma",
		"stop_wait_timeout": "500ms"
	}`)
	envFile := writeFile(t, ".env", "VOCALAI_LLM_URL=http://from-dotenv:11434\n")
	t.Setenv("VOCALAI_STOP_PHRASE", "quiet")
	t.Setenv("VOCALAI_LLM_MODEL", "from-env")
	t.Cleanup(func() { os.Unsetenv("VOCALAI_LLM_URL") })

	cfg, err := Load([]string{"-config", file, "-env-file", envFile, "-model-dir", dir, "-llm-model", "from-flag"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		name, got, want string
	}{
		{"file", cfg.EOMPhrase, "over"},
		{"env over file", cfg.StopPhrase, "quiet"},
		{"flag over env", cfg.LLMModel, "from-flag"},
		{"dotenv", cfg.LLMURL, "http://from-dotenv:11434"},
	}
	for _, tc := range tests {
		if tc.got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, tc.got, tc.want)
		}
	}
	if cfg.StopWaitTimeout != 500*time.Millisecond {
		t.Errorf("stop_wait_timeout = %v", cfg.StopWaitTimeout)
	}
	if cfg.SpeakerID != 21 || !strings.HasSuffix(cfg.TTSLexicon, "lexicon-gb-en.txt") {
		t.Errorf("voice bf_emma not resolved: id=%d lexicon=%s", cfg.SpeakerID, cfg.TTSLexicon)
	}
}

func TestLoad_Validation(t *testing.T) {
	dir := modelDir(t)
	envFile := filepath.Join(t.TempDir(), "absent.env")

	tests := []struct {
		name    string
		json    string
		args    []string
		wantErr string
	}{
		{"empty phrase", `{"eom_phrase": ""}`, nil, "eom_phrase must not be empty"},
		{"bad backend", `{"streaming_backend": "kaldi"}`, nil, `unknown streaming_backend "kaldi"`},
		{"bad provider", `{"llm_provider": "carrier-pigeon"}`, nil, `unknown llm_provider`},
		{"bad frame size", `{"frame_size": 0}`, nil, "frame_size must be positive"},
		{"unavailable provider", `{"provider": "tpu"}`, nil, `provider "tpu" not available`},
		{"unknown voice", `{"tts_voice": "zz_nobody"}`, nil, "unknown TTS voice"},
		{"missing vosk model", `{}`, []string{"-backend", "vosk"}, "required model file not found"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			file := writeFile(t, "config.json", tc.json)
			args := append([]string{"-config", file, "-env-file", envFile, "-model-dir", dir}, tc.args...)
			_, err := Load(args)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestLoad_VoiceCommandsSkipValidation(t *testing.T) {
	cfg, err := Load([]string{"-env-file", filepath.Join(t.TempDir(), "absent.env"), "-model-dir", t.TempDir(), "-list-voices"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.ListVoices {
		t.Fatalf("ListVoices not set")
	}
}

func TestVoices(t *testing.T) {
	v, ok := LookupVoice("BF_Emma")
	if !ok || v.SpeakerID != 21 {
		t.Fatalf("LookupVoice: %+v %v", v, ok)
	}
	for i, voice := range Voices {
		if voice.SpeakerID != i {
			t.Fatalf("voice %s has id %d at position %d", voice.Name, voice.SpeakerID, i)
		}
	}

	var out bytes.Buffer
	PrintVoices(&out)
	if !strings.Contains(out.String(), "British English") || !strings.Contains(out.String(), "am_onyx") {
		t.Fatalf("voice table incomplete:\n%s", out.String())
	}
	if err := PrintVoiceInfo(&out, "nobody"); err == nil {
		t.Fatalf("expected an error for an unknown voice")
	}
}
