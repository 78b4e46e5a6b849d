package stt

import (
	"errors"
	"fmt"
	"sync"

	"github.com/irdan/vocalAI/internal/audio"
	"github.com/irdan/vocalAI/internal/logging"
	"github.com/irdan/vocalAI/internal/sherpa"
)

// ErrRecognizerClosed is returned by Feed after Close.
var ErrRecognizerClosed = errors.New("streaming recognizer closed")

// Endpoint rules: trailing silence after no speech, trailing silence after
// speech, and maximum utterance length (seconds).
const (
	endpointRule1Silence   = 2.4
	endpointRule2Silence   = 0.8
	endpointRule3Utterance = 20
)

// OnlineConfig configures the sherpa-onnx streaming transducer.
type OnlineConfig struct {
	Encoder    string
	Decoder    string
	Joiner     string
	Tokens     string
	SampleRate int
	NumThreads int
	Provider   string
	Debug      bool
}

// OnlineRecognizer is a streaming zipformer transducer with endpoint
// detection. Each endpoint yields one text fragment.
type OnlineRecognizer struct {
	sampleRate int
	logger     *logging.Logger

	mu         sync.Mutex
	recognizer *sherpa.OnlineRecognizer
	stream     *sherpa.OnlineStream
}

// NewOnlineRecognizer loads the transducer and opens its decoding stream.
func NewOnlineRecognizer(cfg OnlineConfig, logger *logging.Logger) (*OnlineRecognizer, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	config := &sherpa.OnlineRecognizerConfig{}
	config.FeatConfig.SampleRate = cfg.SampleRate
	config.FeatConfig.FeatureDim = 80
	config.ModelConfig.Transducer.Encoder = cfg.Encoder
	config.ModelConfig.Transducer.Decoder = cfg.Decoder
	config.ModelConfig.Transducer.Joiner = cfg.Joiner
	config.ModelConfig.Tokens = cfg.Tokens
	config.ModelConfig.NumThreads = cfg.NumThreads
	config.ModelConfig.Provider = cfg.Provider
	config.ModelConfig.Debug = debugFlag(cfg.Debug)
	config.DecodingMethod = "greedy_search"
	config.EnableEndpoint = 1
	config.Rule1MinTrailingSilence = endpointRule1Silence
	config.Rule2MinTrailingSilence = endpointRule2Silence
	config.Rule3MinUtteranceLength = endpointRule3Utterance

	recognizer := sherpa.NewOnlineRecognizer(config)
	if recognizer == nil {
		return nil, fmt.Errorf("failed to create online recognizer from %s", cfg.Encoder)
	}
	stream := sherpa.NewOnlineStream(recognizer)
	if stream == nil {
		sherpa.DeleteOnlineRecognizer(recognizer)
		return nil, fmt.Errorf("failed to create online stream")
	}

	return &OnlineRecognizer{
		sampleRate: cfg.SampleRate,
		logger:     logger.Named("online"),
		recognizer: recognizer,
		stream:     stream,
	}, nil
}

// Feed decodes one PCM16LE frame. boundary is true when the recognizer hit
// an endpoint; text is the fragment recognized since the previous one.
func (r *OnlineRecognizer) Feed(frame []byte) (text string, boundary bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recognizer == nil {
		return "", false, ErrRecognizerClosed
	}

	r.stream.AcceptWaveform(r.sampleRate, audio.PCM16ToFloat32(frame))
	for r.recognizer.IsReady(r.stream) {
		r.recognizer.Decode(r.stream)
	}

	if !r.recognizer.IsEndpoint(r.stream) {
		return "", false, nil
	}
	text = r.recognizer.GetResult(r.stream).Text
	r.recognizer.Reset(r.stream)
	r.logger.Debugf("Endpoint: %q", text)
	return text, true, nil
}

// Close releases the stream and the model.
func (r *OnlineRecognizer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stream != nil {
		sherpa.DeleteOnlineStream(r.stream)
		r.stream = nil
	}
	if r.recognizer != nil {
		sherpa.DeleteOnlineRecognizer(r.recognizer)
		r.recognizer = nil
	}
}
