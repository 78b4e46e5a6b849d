package assistant

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/irdan/vocalAI/internal/audio"
	"github.com/irdan/vocalAI/internal/events"
	"github.com/irdan/vocalAI/internal/listener"
)

type turn struct {
	text       string
	endSession bool
	err        error
}

type fakeCapture struct {
	turns      []turn
	current    int
	sessionEnd bool
}

func (c *fakeCapture) ListenUntilTriggerPhrase(context.Context) ([]byte, error) {
	if c.current >= len(c.turns) {
		return nil, errors.New("script exhausted")
	}
	t := c.turns[c.current]
	if t.err != nil {
		return nil, t.err
	}
	if t.endSession {
		c.sessionEnd = true
	}
	return []byte{byte(c.current)}, nil
}

func (c *fakeCapture) Transcribe(context.Context, []byte) (string, error) {
	t := c.turns[c.current]
	c.current++
	return t.text, nil
}

func (c *fakeCapture) StripControlPhrases(text string) string {
	return listener.NewStripper("over", "goodbye").Strip(text)
}

func (c *fakeCapture) SessionEndRequested() bool { return c.sessionEnd }

type fakeResponder struct {
	mu      sync.Mutex
	prompts []string
	err     error
}

func (r *fakeResponder) Chat(_ context.Context, msg string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts = append(r.prompts, msg)
	if r.err != nil {
		return "", r.err
	}
	return "answer to " + msg, nil
}

type fakeSynth struct {
	texts []string
}

func (s *fakeSynth) Synthesize(text string) (audio.AudioBuffer, error) {
	s.texts = append(s.texts, text)
	return audio.AudioBuffer{Samples: make([]float32, 160), SampleRate: 16000}, nil
}

type fakePlayback struct {
	plays int
	waits int
}

func (p *fakePlayback) Play(audio.AudioBuffer) error { p.plays++; return nil }

func (p *fakePlayback) Wait(context.Context) error { p.waits++; return nil }

func TestRun_TurnsUntilSessionEnd(t *testing.T) {
	capture := &fakeCapture{turns: []turn{
		{text: "What is the weather over"},
		{text: "Thanks. Goodbye over", endSession: true},
	}}
	responder := &fakeResponder{}
	synth := &fakeSynth{}
	playback := &fakePlayback{}

	if err := NewLoop(capture, responder, synth, playback, nil).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantPrompts := []string{"What is the weather", "Thanks."}
	if !slices.Equal(responder.prompts, wantPrompts) {
		t.Fatalf("prompts = %q, want %q", responder.prompts, wantPrompts)
	}
	if playback.plays != 2 || playback.waits != 1 {
		t.Fatalf("plays=%d waits=%d", playback.plays, playback.waits)
	}
}

func TestRun_SkipsEmptyPrompt(t *testing.T) {
	capture := &fakeCapture{turns: []turn{{text: " over ", endSession: true}}}
	responder := &fakeResponder{}
	playback := &fakePlayback{}

	if err := NewLoop(capture, responder, &fakeSynth{}, playback, nil).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(responder.prompts) != 0 || playback.plays != 0 {
		t.Fatalf("an empty prompt must not reach the LLM")
	}
}

func TestRun_SpeaksApologyOnLLMError(t *testing.T) {
	capture := &fakeCapture{turns: []turn{{text: "hello", endSession: true}}}
	synth := &fakeSynth{}
	loop := NewLoop(capture, &fakeResponder{err: errors.New("connection refused")}, synth, &fakePlayback{}, nil)

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !slices.Equal(synth.texts, []string{DefaultApology}) {
		t.Fatalf("expected the apology to be spoken, got %q", synth.texts)
	}
}

func TestRun_CaptureFailureEndsSession(t *testing.T) {
	cause := errors.New("device gone")
	capture := &fakeCapture{turns: []turn{{err: cause}}}

	err := NewLoop(capture, &fakeResponder{}, &fakeSynth{}, &fakePlayback{}, nil).Run(context.Background())
	if !errors.Is(err, cause) {
		t.Fatalf("expected capture error, got %v", err)
	}
}

// scriptStream hands out frames forever, each marked with its index.
type scriptStream struct{ n int }

func (s *scriptStream) Read(frameSize int) ([]byte, error) {
	s.n++
	return bytes.Repeat([]byte{byte(s.n)}, frameSize*2), nil
}

type scriptRecognizer struct {
	calls     int
	fragments map[int]string
}

func (r *scriptRecognizer) Feed([]byte) (string, bool, error) {
	text, ok := r.fragments[r.calls]
	r.calls++
	return text, ok, nil
}

type scriptTranscriber struct {
	texts []string
	calls int
}

func (s *scriptTranscriber) Transcribe(context.Context, []byte) (string, error) {
	text := s.texts[s.calls]
	s.calls++
	return text, nil
}

// untilCancelled plays until interrupted.
type untilCancelled struct {
	mu     sync.Mutex
	writes int
}

func (s *untilCancelled) Write(ctx context.Context, _ audio.AudioBuffer) error {
	s.mu.Lock()
	s.writes++
	s.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func TestRun_StopPhraseInterruptsReply(t *testing.T) {
	bus := events.NewBus(nil)
	var stopRequests int
	bus.Subscribe(events.TopicStopAudio, func(any) error { stopRequests++; return nil })

	sink := &untilCancelled{}
	player := audio.NewPlayer(bus, sink, time.Second, nil)
	defer player.Shutdown()

	capture := listener.New(listener.Config{
		EOMPhrase:        "porcupine",
		StopPhrase:       "stop",
		EndSessionPhrase: "stop session",
		FrameSize:        4,
	}, bus, &scriptStream{}, &scriptRecognizer{fragments: map[int]string{
		0: "what time is it",
		1: "porcupine",
		2: "stop session",
		3: "porcupine",
	}}, &scriptTranscriber{texts: []string{
		"What time is it? Porcupine.",
		"Stop session porcupine",
	}}, nil)
	defer capture.Close()

	responder := &fakeResponder{}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := NewLoop(capture, responder, &fakeSynth{}, player, nil).Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !slices.Equal(responder.prompts, []string{"What time is it? ."}) {
		t.Fatalf("prompts = %q", responder.prompts)
	}
	if stopRequests != 1 {
		t.Fatalf("expected the stop phrase to interrupt the reply once, got %d", stopRequests)
	}
	if player.IsPlaying() || capture.IsOutputPlaying() {
		t.Fatalf("nothing must be playing at the end of the session")
	}
	if !capture.SessionEndRequested() {
		t.Fatalf("session end must be requested")
	}
}
