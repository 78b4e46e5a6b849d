// Package listener implements the capture side of a turn: it reads the
// microphone frame by frame, feeds a streaming recognizer, and watches the
// running transcript for the control phrases.
//
// Three phrases are recognised. The end-of-message phrase ends the capture
// call and hands back every frame read. The end-session phrase raises a
// sticky flag the caller checks after each turn. The stop phrase interrupts
// the assistant's reply if one is playing: the listener publishes stop-audio
// and waits until the player has announced audio-stopped.
package listener

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"github.com/irdan/vocalAI/internal/events"
	"github.com/irdan/vocalAI/internal/logging"
)

// ErrCaptureFailed marks a fatal capture error: the input stream could not
// be read or the streaming recognizer could not decode a frame.
var ErrCaptureFailed = errors.New("capture failed")

const (
	// DefaultFrameSize is 1024 samples, 64ms at 16kHz.
	DefaultFrameSize = 1024
	// DefaultStopWaitTimeout bounds the wait for audio-stopped after a stop phrase.
	DefaultStopWaitTimeout = 2 * time.Second
)

// Capture session states.
const (
	stateListening = "listening"
	stateTriggered = "triggered"
	eventTrigger   = "trigger"
)

// InputStream is a blocking, fixed-format (PCM16LE mono) audio source.
type InputStream interface {
	Read(frameSize int) ([]byte, error)
}

// StreamingRecognizer decodes audio incrementally. boundary reports an
// utterance endpoint; text is only meaningful when boundary is true.
type StreamingRecognizer interface {
	Feed(frame []byte) (text string, boundary bool, err error)
}

// Transcriber decodes a complete utterance.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte) (string, error)
}

// Config holds the control phrases and capture parameters.
type Config struct {
	EOMPhrase        string
	StopPhrase       string
	EndSessionPhrase string
	FrameSize        int           // samples per read, DefaultFrameSize when 0
	StopWaitTimeout  time.Duration // DefaultStopWaitTimeout when 0
}

// Listener is the capture controller. It owns the input stream; the only
// link to playback is the event bus.
type Listener struct {
	cfg         Config
	bus         *events.Bus
	input       InputStream
	recognizer  StreamingRecognizer
	transcriber Transcriber
	logger      *logging.Logger
	stripper    *Stripper

	mu            sync.Mutex
	outputPlaying bool
	outputStopped chan struct{} // closed while nothing is playing

	sessionEnd atomic.Bool
	subs       []events.Subscription
}

// New builds a listener and subscribes it to the playback lifecycle topics.
func New(cfg Config, bus *events.Bus, input InputStream, recognizer StreamingRecognizer, transcriber Transcriber, logger *logging.Logger) *Listener {
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = DefaultFrameSize
	}
	if cfg.StopWaitTimeout <= 0 {
		cfg.StopWaitTimeout = DefaultStopWaitTimeout
	}

	stopped := make(chan struct{})
	close(stopped)

	l := &Listener{
		cfg:           cfg,
		bus:           bus,
		input:         input,
		recognizer:    recognizer,
		transcriber:   transcriber,
		logger:        logger.Named("listener"),
		stripper:      NewStripper(cfg.EOMPhrase, cfg.EndSessionPhrase),
		outputStopped: stopped,
	}
	l.subs = []events.Subscription{
		bus.Subscribe(events.TopicAudioStarted, l.onAudioStarted),
		bus.Subscribe(events.TopicAudioStopped, l.onAudioStopped),
	}
	return l
}

func (l *Listener) onAudioStarted(any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.outputPlaying {
		l.outputPlaying = true
		l.outputStopped = make(chan struct{})
	}
	return nil
}

func (l *Listener) onAudioStopped(any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.outputPlaying {
		l.outputPlaying = false
		close(l.outputStopped)
	}
	return nil
}

// IsOutputPlaying reports the playback state last announced on the bus.
func (l *Listener) IsOutputPlaying() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.outputPlaying
}

// SessionEndRequested reports whether the end-session phrase has been heard.
// Once set it stays set.
func (l *Listener) SessionEndRequested() bool {
	return l.sessionEnd.Load()
}

// ListenUntilTriggerPhrase captures audio until the end-of-message phrase
// shows up in the streaming transcript and returns every frame read, in
// order. Stop and end-session phrases are acted on as they appear, including
// on the final iteration. Read and decode failures wrap ErrCaptureFailed.
func (l *Listener) ListenUntilTriggerPhrase(ctx context.Context) ([]byte, error) {
	id := uuid.NewString()
	log := l.logger.With("capture", id)

	machine := fsm.NewFSM(
		stateListening,
		fsm.Events{
			{Name: eventTrigger, Src: []string{stateListening}, Dst: stateTriggered},
		},
		fsm.Callbacks{
			"enter_" + stateTriggered: func(_ context.Context, e *fsm.Event) {
				log.Debugf("Capture %s -> %s", e.Src, e.Dst)
			},
		},
	)

	var (
		buffer     []byte
		transcript strings.Builder
		frames     int
	)

	log.Info("🎤 Listening...")
	for machine.Current() == stateListening {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		frame, err := l.input.Read(l.cfg.FrameSize)
		if err != nil {
			return nil, fmt.Errorf("%w: reading input stream: %w", ErrCaptureFailed, err)
		}
		buffer = append(buffer, frame...)
		frames++

		text, boundary, err := l.recognizer.Feed(frame)
		if err != nil {
			return nil, fmt.Errorf("%w: streaming recognizer: %w", ErrCaptureFailed, err)
		}
		if boundary && text != "" {
			transcript.WriteString(" ")
			transcript.WriteString(text)
			log.Debugf("Heard: %q", text)
		}

		current := transcript.String()
		triggered := containsFold(current, l.cfg.EOMPhrase)

		if err := l.handleSpecialPhrases(ctx, current); err != nil {
			return nil, err
		}

		if triggered {
			if err := machine.Event(ctx, eventTrigger); err != nil {
				return nil, fmt.Errorf("capture state: %w", err)
			}
		}
	}

	log.Infow("✅ End of message", "frames", frames, "bytes", len(buffer))
	return buffer, nil
}

func (l *Listener) handleSpecialPhrases(ctx context.Context, transcript string) error {
	if containsFold(transcript, l.cfg.EndSessionPhrase) {
		if !l.sessionEnd.Swap(true) {
			l.logger.Info("👋 End of session requested")
		}
	}
	if containsFold(transcript, l.cfg.StopPhrase) {
		return l.reactToStopPhrase(ctx)
	}
	return nil
}

// reactToStopPhrase asks the player to stop and waits for audio-stopped.
// The bus delivers stop-audio synchronously, so with an in-process player
// the wait is normally already satisfied when Publish returns.
func (l *Listener) reactToStopPhrase(ctx context.Context) error {
	l.mu.Lock()
	playing := l.outputPlaying
	stopped := l.outputStopped
	l.mu.Unlock()

	if !playing {
		return nil
	}

	l.logger.Info("🛑 Stop phrase heard, interrupting playback")
	l.bus.Publish(events.TopicStopAudio, nil)

	timer := time.NewTimer(l.cfg.StopWaitTimeout)
	defer timer.Stop()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		l.logger.Warnw("⚠️  Playback still active after stop request", "timeout", l.cfg.StopWaitTimeout)
		return nil
	}
}

// Transcribe runs the offline transcriber over a captured buffer.
func (l *Listener) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	text, err := l.transcriber.Transcribe(ctx, pcm)
	if err != nil {
		return "", fmt.Errorf("failed to transcribe %d bytes: %w", len(pcm), err)
	}
	return text, nil
}

// StripControlPhrases removes the end-of-message and end-session phrases
// from text.
func (l *Listener) StripControlPhrases(text string) string {
	return l.stripper.Strip(text)
}

// Close detaches the listener from the bus.
func (l *Listener) Close() {
	for _, sub := range l.subs {
		l.bus.Unsubscribe(sub)
	}
	l.subs = nil
}
