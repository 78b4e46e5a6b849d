// Package assistant runs the conversation: capture an utterance, transcribe
// it, ask the language model, and speak the reply, turn after turn until the
// user ends the session.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/irdan/vocalAI/internal/audio"
	"github.com/irdan/vocalAI/internal/logging"
)

// DefaultApology is spoken when the language model cannot be reached.
const DefaultApology = "Sorry, I could not come up with an answer. Please try again."

// Capture is the listening side of a turn.
type Capture interface {
	ListenUntilTriggerPhrase(ctx context.Context) ([]byte, error)
	Transcribe(ctx context.Context, pcm []byte) (string, error)
	StripControlPhrases(text string) string
	SessionEndRequested() bool
}

// Responder produces the reply text.
type Responder interface {
	Chat(ctx context.Context, message string) (string, error)
}

// Synthesizer turns reply text into audio.
type Synthesizer interface {
	Synthesize(text string) (audio.AudioBuffer, error)
}

// Playback plays replies without blocking the next capture.
type Playback interface {
	Play(buf audio.AudioBuffer) error
	Wait(ctx context.Context) error
}

// Loop sequences the turns.
type Loop struct {
	capture   Capture
	responder Responder
	synth     Synthesizer
	playback  Playback
	logger    *logging.Logger

	Apology string
}

// NewLoop wires the collaborators together.
func NewLoop(capture Capture, responder Responder, synth Synthesizer, playback Playback, logger *logging.Logger) *Loop {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Loop{
		capture:   capture,
		responder: responder,
		synth:     synth,
		playback:  playback,
		logger:    logger.Named("assistant"),
		Apology:   DefaultApology,
	}
}

// Run executes turns until the end-session phrase is heard, the context is
// cancelled, or capture fails. Playback of a reply overlaps the next capture
// so the stop phrase can interrupt it. Once the session ends, Run waits for
// the last reply to finish before returning nil.
func (l *Loop) Run(ctx context.Context) error {
	for turn := 1; ; turn++ {
		if err := l.runTurn(ctx, turn); err != nil {
			return err
		}

		if l.capture.SessionEndRequested() {
			l.logger.Info("👋 Session ended, finishing reply")
			if err := l.playback.Wait(ctx); err != nil {
				return err
			}
			return nil
		}
	}
}

func (l *Loop) runTurn(ctx context.Context, turn int) error {
	log := l.logger.With("turn", turn)

	pcm, err := l.capture.ListenUntilTriggerPhrase(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("turn %d: %w", turn, err)
	}

	start := time.Now()
	text, err := l.capture.Transcribe(ctx, pcm)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Errorw("Transcription failed", "error", err)
		return nil
	}
	log.Debugf("Transcribed in %v: %q", time.Since(start).Round(time.Millisecond), text)

	prompt := strings.TrimSpace(l.capture.StripControlPhrases(text))
	if prompt == "" {
		log.Info("🤷 Nothing to answer")
		return nil
	}

	log.Infof("🧠 Thinking about: %s", prompt)
	reply, err := l.responder.Chat(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Errorw("LLM request failed", "error", err)
		reply = l.Apology
	}
	if reply = strings.TrimSpace(reply); reply == "" {
		log.Warn("⚠️  Empty reply from LLM")
		return nil
	}
	log.Infof("🤖 Assistant: %s", reply)

	l.speak(log, reply)
	return nil
}

func (l *Loop) speak(log *logging.Logger, text string) {
	buf, err := l.synth.Synthesize(text)
	if err != nil {
		log.Errorw("Speech synthesis failed", "error", err)
		return
	}
	if err := l.playback.Play(buf); err != nil && !errors.Is(err, audio.ErrEmptyAudio) {
		log.Errorw("Playback failed", "error", err)
	}
}
