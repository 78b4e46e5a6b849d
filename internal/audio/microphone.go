// Package audio owns the sound devices: the microphone input stream, the
// speaker sink, and the Player that guarantees a single active playback.
package audio

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/smallnest/ringbuffer"

	"github.com/irdan/vocalAI/internal/logging"
)

var (
	// ErrStreamClosed is returned by Read once the microphone has been closed.
	ErrStreamClosed = errors.New("audio input stream closed")
	// ErrDeviceStopped is returned by Read when the capture device stopped on its own.
	ErrDeviceStopped = errors.New("audio capture device stopped")
)

// captureBufferSeconds is how much PCM the microphone ring holds while the
// capture loop is busy (e.g. blocked on the stop-phrase rendezvous).
const captureBufferSeconds = 8

// MicrophoneConfig configures the capture device.
type MicrophoneConfig struct {
	SampleRate int    // Rate delivered to Read (16kHz for the recognizers)
	PeriodMs   uint32 // Device callback period, 0 for 32ms
}

// Microphone is a blocking, fixed-format (PCM16LE mono) input stream.
// The device callback converts and enqueues audio into a byte ring; Read
// drains it in frames. The callback never blocks: when the ring is full the
// incoming chunk is dropped and counted.
type Microphone struct {
	ctx              *malgo.AllocatedContext
	device           *malgo.Device
	sampleRate       uint32
	deviceSampleRate uint32
	periodMs         uint32
	resampler        Resampler
	logger           *logging.Logger

	ring      *ringbuffer.RingBuffer
	ready     chan struct{} // signalled after every enqueue
	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
	releaseMu sync.Mutex
	dropCount atomic.Uint64
}

// NewMicrophone prepares the audio context. Call Start to open the device.
func NewMicrophone(cfg MicrophoneConfig, logger *logging.Logger) (*Microphone, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("invalid capture sample rate: %d", cfg.SampleRate)
	}
	if cfg.PeriodMs == 0 {
		cfg.PeriodMs = 32
	}
	if logger == nil {
		logger = logging.Nop()
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}

	return &Microphone{
		ctx:        ctx,
		sampleRate: uint32(cfg.SampleRate),
		periodMs:   cfg.PeriodMs,
		logger:     logger.Named("microphone"),
		ring:       ringbuffer.New(cfg.SampleRate * BytesPerSample * captureBufferSeconds).SetBlocking(false),
		ready:      make(chan struct{}, 1),
		closed:     make(chan struct{}),
	}, nil
}

// Start opens the default capture device and begins buffering audio.
func (m *Microphone) Start() error {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = m.sampleRate
	deviceConfig.PeriodSizeInMilliseconds = m.periodMs

	// The device may not honour the requested rate; ask it first.
	probe, err := malgo.InitDevice(m.ctx.Context, deviceConfig, malgo.DeviceCallbacks{})
	if err != nil {
		return fmt.Errorf("failed to query capture device: %w", err)
	}
	m.deviceSampleRate = probe.SampleRate()
	probe.Uninit()

	if m.deviceSampleRate != m.sampleRate {
		m.resampler = NewResampler(int(m.deviceSampleRate), int(m.sampleRate))
		m.logger.Infof("🔄 Audio resampling: %d Hz -> %d Hz", m.deviceSampleRate, m.sampleRate)
	}

	callbacks := malgo.DeviceCallbacks{
		Data: m.onFrames,
		Stop: func() { m.closeWith(ErrDeviceStopped) },
	}
	device, err := malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}
	m.device = device

	if err := device.Start(); err != nil {
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	m.logger.Infof("🎙️ Capture device started (%d Hz)", m.deviceSampleRate)
	return nil
}

// onFrames runs on the audio thread and must stay fast and non-blocking.
func (m *Microphone) onFrames(_, input []byte, _ uint32) {
	select {
	case <-m.closed:
		return
	default:
	}

	samples := bytesToFloat32(input)
	if m.resampler != nil {
		samples = m.resampler.Resample(samples)
	}
	pcm := Float32ToPCM16(samples)
	if len(pcm) == 0 {
		return
	}

	if m.ring.Free() < len(pcm) {
		if count := m.dropCount.Add(1); count%100 == 1 {
			m.logger.Warnf("⚠️  Capture buffer full, dropped %d chunks", count)
		}
		return
	}
	if _, err := m.ring.Write(pcm); err != nil {
		m.logger.Debugf("capture ring write: %v", err)
		return
	}

	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// Read blocks until frameSize samples (2*frameSize bytes) are buffered and
// returns them. It fails with ErrStreamClosed after Close and with
// ErrDeviceStopped when the device went away.
func (m *Microphone) Read(frameSize int) ([]byte, error) {
	need := frameSize * BytesPerSample
	if need <= 0 || need > m.ring.Capacity() {
		return nil, fmt.Errorf("invalid frame size: %d samples", frameSize)
	}

	for {
		select {
		case <-m.closed:
			return nil, m.closeErr
		default:
		}

		if m.ring.Length() >= need {
			frame := make([]byte, need)
			if _, err := io.ReadFull(m.ring, frame); err != nil {
				return nil, fmt.Errorf("failed to read capture buffer: %w", err)
			}
			return frame, nil
		}

		select {
		case <-m.ready:
		case <-m.closed:
			return nil, m.closeErr
		}
	}
}

// SampleRate returns the rate of the PCM returned by Read.
func (m *Microphone) SampleRate() int {
	return int(m.sampleRate)
}

func (m *Microphone) closeWith(err error) {
	m.closeOnce.Do(func() {
		m.closeErr = err
		close(m.closed)
		if errors.Is(err, ErrDeviceStopped) {
			m.logger.Warn("⚠️  Capture device stopped unexpectedly")
		}
	})
}

// Close unblocks any pending Read and releases the device. Safe to call twice.
func (m *Microphone) Close() {
	m.closeWith(ErrStreamClosed)

	m.releaseMu.Lock()
	defer m.releaseMu.Unlock()

	if m.device != nil {
		_ = m.device.Stop()
		m.device.Uninit()
		m.device = nil
	}
	if m.ctx != nil {
		_ = m.ctx.Uninit()
		m.ctx.Free()
		m.ctx = nil
	}
	m.ring.Reset()
}
