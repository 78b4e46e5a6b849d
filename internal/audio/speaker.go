package audio

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/smallnest/ringbuffer"

	"github.com/irdan/vocalAI/internal/logging"
)

const (
	// speakerRingBytes holds ~11s of float32 mono at 48kHz. Longer buffers
	// are fed in as the device drains the ring.
	speakerRingBytes = 524288 * 4

	speakerPollInterval = 50 * time.Millisecond
)

// AudioBuffer holds mono float samples and their rate.
type AudioBuffer struct {
	Samples    []float32
	SampleRate int
}

// Duration returns how long the buffer plays for.
func (b AudioBuffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(b.Samples)) * time.Second / time.Duration(b.SampleRate)
}

// SpeakerConfig configures the output device.
type SpeakerConfig struct {
	BufferMs uint32 // 20 for wired, 100 for Bluetooth, 0 for default (100)
}

// Speaker is the output device. It keeps one persistent malgo playback
// device open and streams whatever Write queues into it; the device emits
// silence while nothing is queued.
type Speaker struct {
	ctx              *malgo.AllocatedContext
	device           *malgo.Device
	deviceSampleRate uint32
	logger           *logging.Logger

	ring      *ringbuffer.RingBuffer // float32 LE frames at the device rate
	interrupt atomic.Bool
	drained   chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
	writeMu   sync.Mutex
}

// NewSpeaker opens and starts the default playback device.
func NewSpeaker(cfg SpeakerConfig, logger *logging.Logger) (*Speaker, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg.BufferMs == 0 {
		cfg.BufferMs = 100
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	s := &Speaker{
		ctx:              ctx,
		deviceSampleRate: nativePlaybackRate(),
		logger:           logger.Named("speaker"),
		ring:             ringbuffer.New(speakerRingBytes).SetBlocking(false),
		drained:          make(chan struct{}, 1),
		closed:           make(chan struct{}),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = s.deviceSampleRate
	deviceConfig.PeriodSizeInMilliseconds = cfg.BufferMs

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{Data: s.onFrames})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}
	s.device = device

	s.logger.Infof("🔊 Playback device started: %d Hz, buffer %d ms", s.deviceSampleRate, cfg.BufferMs)
	return s, nil
}

// nativePlaybackRate falls back to 48kHz when miniaudio leaves the rate to the backend.
func nativePlaybackRate() uint32 {
	if rate := malgo.DefaultDeviceConfig(malgo.Playback).SampleRate; rate > 0 {
		return rate
	}
	return 48000
}

func (s *Speaker) onFrames(output, _ []byte, _ uint32) {
	n := 0
	if !s.interrupt.Load() {
		n, _ = s.ring.Read(output)
	}
	clear(output[n:])

	if s.ring.IsEmpty() {
		select {
		case s.drained <- struct{}{}:
		default:
		}
	}
}

// Write plays buf and blocks until the device has consumed it. Cancelling
// ctx silences the device immediately and returns ctx.Err().
func (s *Speaker) Write(ctx context.Context, buf AudioBuffer) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	select {
	case <-s.closed:
		return ErrStreamClosed
	default:
	}

	samples := buf.Samples
	if buf.SampleRate != int(s.deviceSampleRate) {
		samples = Resample(samples, buf.SampleRate, int(s.deviceSampleRate))
		s.logger.Debugf("Resampled playback: %d Hz -> %d Hz (%d samples)", buf.SampleRate, s.deviceSampleRate, len(samples))
	}
	pending := float32ToBytes(samples)

	// Drop a drain signal left over from the previous stream.
	select {
	case <-s.drained:
	default:
	}
	s.interrupt.Store(false)

	deadline := time.NewTimer(buf.Duration() + 2*time.Second)
	defer deadline.Stop()
	ticker := time.NewTicker(speakerPollInterval)
	defer ticker.Stop()

	for {
		if len(pending) > 0 {
			// Whole float32 frames only.
			if room := min(len(pending), s.ring.Free()&^3); room > 0 {
				n, err := s.ring.Write(pending[:room])
				if err != nil && n == 0 {
					s.logger.Debugf("playback ring write: %v", err)
				}
				pending = pending[n:]
			}
		} else if s.ring.IsEmpty() {
			return nil
		}

		select {
		case <-ctx.Done():
			s.silence()
			return ctx.Err()
		case <-s.closed:
			return ErrStreamClosed
		case <-deadline.C:
			s.logger.Warn("⚠️  Playback timeout exceeded")
			s.silence()
			return nil
		case <-s.drained:
		case <-ticker.C:
		}
	}
}

func (s *Speaker) silence() {
	s.interrupt.Store(true)
	s.ring.Reset()
}

// SampleRate returns the device rate buffers are resampled to.
func (s *Speaker) SampleRate() int {
	return int(s.deviceSampleRate)
}

// Close silences and releases the device. Pending writes fail with ErrStreamClosed.
func (s *Speaker) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.silence()

		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		if s.device != nil {
			_ = s.device.Stop()
			s.device.Uninit()
			s.device = nil
		}
		_ = s.ctx.Uninit()
		s.ctx.Free()
	})
}
