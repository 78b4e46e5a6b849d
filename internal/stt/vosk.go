package stt

import (
	"fmt"
	"strings"
	"sync"

	vosk "github.com/alphacep/vosk-api/go"
	"github.com/tidwall/gjson"

	"github.com/irdan/vocalAI/internal/logging"
)

// VoskRecognizer is the Kaldi streaming backend. Vosk consumes PCM16LE
// directly and reports utterance boundaries from AcceptWaveform.
type VoskRecognizer struct {
	logger *logging.Logger

	mu    sync.Mutex
	model *vosk.VoskModel
	rec   *vosk.VoskRecognizer
}

// NewVoskRecognizer loads the model directory at modelPath.
func NewVoskRecognizer(modelPath string, sampleRate int, debug bool, logger *logging.Logger) (*VoskRecognizer, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	if !debug {
		vosk.SetLogLevel(-1)
	}

	model, err := vosk.NewModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load vosk model %s: %w", modelPath, err)
	}
	rec, err := vosk.NewRecognizer(model, float64(sampleRate))
	if err != nil {
		model.Free()
		return nil, fmt.Errorf("failed to create vosk recognizer: %w", err)
	}
	rec.SetWords(1)

	return &VoskRecognizer{
		logger: logger.Named("vosk"),
		model:  model,
		rec:    rec,
	}, nil
}

// Feed decodes one PCM16LE frame. See OnlineRecognizer.Feed.
func (v *VoskRecognizer) Feed(frame []byte) (string, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.rec == nil {
		return "", false, ErrRecognizerClosed
	}

	switch v.rec.AcceptWaveform(frame) {
	case 0:
		return "", false, nil
	case 1:
		text := resultText(v.rec.Result())
		v.logger.Debugf("Endpoint: %q", text)
		return text, true, nil
	default:
		return "", false, fmt.Errorf("vosk failed to decode %d bytes", len(frame))
	}
}

// resultText extracts the recognized text from a Vosk JSON result such as
// {"result": [...], "text": "hello world"}.
func resultText(result string) string {
	return strings.TrimSpace(gjson.Get(result, "text").String())
}

// Close releases the recognizer and the model.
func (v *VoskRecognizer) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.rec != nil {
		v.rec.Free()
		v.rec = nil
	}
	if v.model != nil {
		v.model.Free()
		v.model = nil
	}
}
