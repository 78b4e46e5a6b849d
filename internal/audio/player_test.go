package audio

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/irdan/vocalAI/internal/events"
	"github.com/irdan/vocalAI/internal/logging"
)

type sinkMode int

const (
	sinkImmediate sinkMode = iota // returns right away
	sinkUntilCancel               // blocks until ctx is cancelled
	sinkStubborn                  // ignores ctx until released
	sinkFail
	sinkPanic
)

type fakeSink struct {
	mode    sinkMode
	release chan struct{}
	exited  chan struct{}

	mu     sync.Mutex
	writes int
}

func newFakeSink(mode sinkMode) *fakeSink {
	return &fakeSink{mode: mode, release: make(chan struct{}), exited: make(chan struct{}, 16)}
}

func (s *fakeSink) Write(ctx context.Context, _ AudioBuffer) error {
	s.mu.Lock()
	s.writes++
	s.mu.Unlock()
	defer func() { s.exited <- struct{}{} }()

	switch s.mode {
	case sinkUntilCancel:
		<-ctx.Done()
		return ctx.Err()
	case sinkStubborn:
		<-s.release
		return nil
	case sinkFail:
		return errors.New("device write failed")
	case sinkPanic:
		panic("codec exploded")
	}
	return nil
}

type recorder struct {
	mu     sync.Mutex
	topics []events.Topic
}

func record(bus *events.Bus) *recorder {
	r := &recorder{}
	for _, topic := range []events.Topic{events.TopicAudioStarted, events.TopicAudioStopped} {
		bus.Subscribe(topic, func(any) error {
			r.mu.Lock()
			r.topics = append(r.topics, topic)
			r.mu.Unlock()
			return nil
		})
	}
	return r
}

func (r *recorder) snapshot() []events.Topic {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.topics)
}

var tone = AudioBuffer{Samples: make([]float32, 2400), SampleRate: 24000}

func waitDone(t *testing.T, p *Player) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("playback did not finish: %v", err)
	}
}

func TestPlay_PublishesStartedThenStopped(t *testing.T) {
	bus := events.NewBus(nil)
	rec := record(bus)
	p := NewPlayer(bus, newFakeSink(sinkImmediate), 0, nil)

	if err := p.Play(tone); err != nil {
		t.Fatalf("Play: %v", err)
	}
	waitDone(t, p)

	want := []events.Topic{events.TopicAudioStarted, events.TopicAudioStopped}
	if got := rec.snapshot(); !slices.Equal(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	if p.IsPlaying() {
		t.Fatalf("IsPlaying must be false after completion")
	}
}

func TestPlay_StartedIsPublishedBeforeReturn(t *testing.T) {
	bus := events.NewBus(nil)
	rec := record(bus)
	p := NewPlayer(bus, newFakeSink(sinkUntilCancel), 0, nil)
	defer p.Shutdown()

	if err := p.Play(tone); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if got := rec.snapshot(); !slices.Equal(got, []events.Topic{events.TopicAudioStarted}) {
		t.Fatalf("events = %v", got)
	}
	if !p.IsPlaying() {
		t.Fatalf("IsPlaying must be true while the sink is emitting")
	}
}

func TestPlay_StopsPreviousStreamFirst(t *testing.T) {
	bus := events.NewBus(nil)
	rec := record(bus)
	sink := newFakeSink(sinkUntilCancel)
	p := NewPlayer(bus, sink, 0, nil)

	_ = p.Play(tone)
	_ = p.Play(tone)

	want := []events.Topic{events.TopicAudioStarted, events.TopicAudioStopped, events.TopicAudioStarted}
	if got := rec.snapshot(); !slices.Equal(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}

	p.Stop()
	if p.IsPlaying() {
		t.Fatalf("IsPlaying must be false after Stop")
	}
	if got := rec.snapshot(); len(got) != 4 || got[3] != events.TopicAudioStopped {
		t.Fatalf("events after Stop = %v", got)
	}
}

func TestPlay_ConcurrentCallsNeverInterleave(t *testing.T) {
	bus := events.NewBus(nil)
	rec := record(bus)
	p := NewPlayer(bus, newFakeSink(sinkUntilCancel), 0, nil)

	const n = 16
	var wg sync.WaitGroup
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Play(tone)
		}()
	}
	wg.Wait()
	p.Stop()

	got := rec.snapshot()
	if len(got) != 2*n {
		t.Fatalf("expected %d events, got %d: %v", 2*n, len(got), got)
	}
	for i, topic := range got {
		want := events.TopicAudioStarted
		if i%2 == 1 {
			want = events.TopicAudioStopped
		}
		if topic != want {
			t.Fatalf("event %d = %s, want %s (%v)", i, topic, want, got)
		}
	}
}

func TestStop_IdleIsIdempotent(t *testing.T) {
	bus := events.NewBus(nil)
	rec := record(bus)
	p := NewPlayer(bus, newFakeSink(sinkImmediate), 0, nil)

	p.Stop()
	p.Stop()

	if p.IsPlaying() {
		t.Fatalf("IsPlaying must be false")
	}
	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("idle Stop must not publish, got %v", got)
	}
}

func TestPlay_SinkFailureStillPublishesStopped(t *testing.T) {
	for _, tc := range []struct {
		name string
		mode sinkMode
	}{
		{"error", sinkFail},
		{"panic", sinkPanic},
	} {
		t.Run(tc.name, func(t *testing.T) {
			core, logs := observer.New(zap.ErrorLevel)
			bus := events.NewBus(nil)
			rec := record(bus)
			p := NewPlayer(bus, newFakeSink(tc.mode), 0, logging.Wrap(zap.New(core)))

			if err := p.Play(tone); err != nil {
				t.Fatalf("Play: %v", err)
			}
			waitDone(t, p)

			want := []events.Topic{events.TopicAudioStarted, events.TopicAudioStopped}
			if got := rec.snapshot(); !slices.Equal(got, want) {
				t.Fatalf("events = %v, want %v", got, want)
			}
			if logs.Len() != 1 {
				t.Fatalf("expected the failure to be logged once, got %d", logs.Len())
			}
		})
	}
}

func TestStop_BoundedWaitPublishesOnce(t *testing.T) {
	bus := events.NewBus(nil)
	rec := record(bus)
	sink := newFakeSink(sinkStubborn)
	p := NewPlayer(bus, sink, 50*time.Millisecond, nil)

	_ = p.Play(tone)

	start := time.Now()
	p.Stop()
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Stop must be bounded, took %v", elapsed)
	}
	if p.IsPlaying() {
		t.Fatalf("IsPlaying must be false after Stop")
	}

	close(sink.release)
	select {
	case <-sink.exited:
	case <-time.After(time.Second):
		t.Fatalf("sink never exited")
	}
	time.Sleep(20 * time.Millisecond)

	want := []events.Topic{events.TopicAudioStarted, events.TopicAudioStopped}
	if got := rec.snapshot(); !slices.Equal(got, want) {
		t.Fatalf("audio-stopped must be published exactly once, got %v", got)
	}
}

func TestStopAudioTopic_IsARendezvous(t *testing.T) {
	bus := events.NewBus(nil)
	rec := record(bus)
	p := NewPlayer(bus, newFakeSink(sinkUntilCancel), 0, nil)
	defer p.Shutdown()

	_ = p.Play(tone)
	bus.Publish(events.TopicStopAudio, nil)

	if p.IsPlaying() {
		t.Fatalf("playback must be stopped when Publish returns")
	}
	want := []events.Topic{events.TopicAudioStarted, events.TopicAudioStopped}
	if got := rec.snapshot(); !slices.Equal(got, want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
}

func TestPlay_RejectsEmptyBuffer(t *testing.T) {
	p := NewPlayer(events.NewBus(nil), newFakeSink(sinkImmediate), 0, nil)
	if err := p.Play(AudioBuffer{SampleRate: 16000}); !errors.Is(err, ErrEmptyAudio) {
		t.Fatalf("expected ErrEmptyAudio, got %v", err)
	}
}

func TestShutdown_Unsubscribes(t *testing.T) {
	bus := events.NewBus(nil)
	p := NewPlayer(bus, newFakeSink(sinkImmediate), 0, nil)
	if bus.ListenerCount(events.TopicStopAudio) != 1 {
		t.Fatalf("player must subscribe to stop-audio")
	}
	p.Shutdown()
	if bus.ListenerCount(events.TopicStopAudio) != 0 {
		t.Fatalf("Shutdown must unsubscribe")
	}
}
