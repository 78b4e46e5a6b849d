package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/irdan/vocalAI/internal/events"
	"github.com/irdan/vocalAI/internal/logging"
)

// ErrEmptyAudio is returned by Play for a buffer without samples.
var ErrEmptyAudio = errors.New("audio buffer is empty")

// DefaultStopTimeout bounds how long Stop waits for a playback goroutine to exit.
const DefaultStopTimeout = time.Second

// Sink is the output device a Player streams into. Write blocks until buf
// has been emitted; cancelling ctx must interrupt it promptly.
type Sink interface {
	Write(ctx context.Context, buf AudioBuffer) error
}

type playback struct {
	id       string
	cancel   context.CancelFunc
	done     chan struct{}
	finished sync.Once
}

// Player owns the single output stream. At most one playback is active; a
// new Play fully stops the previous one first. Every Play is bracketed by
// exactly one audio-started and one audio-stopped event on the bus, and the
// pairs never interleave.
type Player struct {
	bus         *events.Bus
	sink        Sink
	logger      *logging.Logger
	stopTimeout time.Duration

	mu     sync.Mutex // serialises Play/Stop
	active atomic.Pointer[playback]
	sub    events.Subscription
}

// NewPlayer creates a Player that streams into sink and answers stop-audio
// requests on bus. stopTimeout <= 0 selects DefaultStopTimeout.
func NewPlayer(bus *events.Bus, sink Sink, stopTimeout time.Duration, logger *logging.Logger) *Player {
	if logger == nil {
		logger = logging.Nop()
	}
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}
	p := &Player{
		bus:         bus,
		sink:        sink,
		logger:      logger.Named("player"),
		stopTimeout: stopTimeout,
	}
	p.sub = bus.Subscribe(events.TopicStopAudio, p.handleStopAudio)
	return p
}

// Play starts streaming buf and returns without waiting for it to finish.
// audio-started is published before Play returns.
func (p *Player) Play(buf AudioBuffer) error {
	if len(buf.Samples) == 0 {
		return ErrEmptyAudio
	}
	if buf.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", buf.SampleRate)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	pb := &playback{
		id:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	p.active.Store(pb)

	p.logger.Infow("🔊 Playing response", "playback", pb.id, "duration", buf.Duration().Round(time.Millisecond))
	p.bus.Publish(events.TopicAudioStarted, nil)

	go p.run(ctx, pb, buf)
	return nil
}

func (p *Player) run(ctx context.Context, pb *playback, buf AudioBuffer) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorw("Playback panicked", "playback", pb.id, "panic", r)
		}
		p.finish(pb)
		close(pb.done)
		p.active.CompareAndSwap(pb, nil)
		pb.cancel()
	}()

	err := p.sink.Write(ctx, buf)
	switch {
	case err == nil:
		p.logger.Debugw("Playback completed", "playback", pb.id)
	case errors.Is(err, context.Canceled):
		p.logger.Debugw("Playback interrupted", "playback", pb.id)
	default:
		p.logger.Errorw("Playback failed", "playback", pb.id, "error", err)
	}
}

// finish publishes audio-stopped once per playback, whichever side gets there first.
func (p *Player) finish(pb *playback) {
	pb.finished.Do(func() {
		p.bus.Publish(events.TopicAudioStopped, nil)
	})
}

// Stop interrupts the active playback, waits (bounded) for its goroutine to
// exit and makes sure audio-stopped has been published. Without an active
// playback it is a no-op.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Player) stopLocked() {
	pb := p.active.Load()
	if pb == nil {
		return
	}

	pb.cancel()
	select {
	case <-pb.done:
	case <-time.After(p.stopTimeout):
		p.logger.Warnw("⚠️  Playback did not stop in time", "playback", pb.id, "timeout", p.stopTimeout)
	}
	p.finish(pb)
	p.active.CompareAndSwap(pb, nil)
	p.logger.Debugw("Playback stopped", "playback", pb.id)
}

// IsPlaying reports whether a playback goroutine is still emitting audio.
func (p *Player) IsPlaying() bool {
	pb := p.active.Load()
	if pb == nil {
		return false
	}
	select {
	case <-pb.done:
		return false
	default:
		return true
	}
}

// Wait blocks until the current playback (if any) finishes or ctx is done.
func (p *Player) Wait(ctx context.Context) error {
	pb := p.active.Load()
	if pb == nil {
		return nil
	}
	select {
	case <-pb.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops playback and detaches the player from the bus.
func (p *Player) Shutdown() {
	p.Stop()
	p.bus.Unsubscribe(p.sub)
}

func (p *Player) handleStopAudio(any) error {
	p.logger.Info("🛑 Stop requested")
	p.Stop()
	return nil
}
