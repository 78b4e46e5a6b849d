package audio

import "math"

// Resampler converts a stream of mono samples between two rates. Instances
// keep state across calls so chunk boundaries stay continuous.
type Resampler interface {
	Resample(input []float32) []float32
}

// NewResampler picks the converter for a rate pair: nil when the rates match,
// a polyphase low-pass filter when downsampling (microphone 48kHz -> 16kHz),
// and linear interpolation when upsampling (TTS 24kHz -> device rate).
func NewResampler(fromRate, toRate int) Resampler {
	switch {
	case fromRate == toRate || fromRate <= 0 || toRate <= 0:
		return nil
	case toRate < fromRate:
		return newPolyphase(fromRate, toRate)
	default:
		return newLinear(fromRate, toRate)
	}
}

// Resample is a one-shot conversion for complete buffers.
func Resample(input []float32, fromRate, toRate int) []float32 {
	r := NewResampler(fromRate, toRate)
	if r == nil {
		return input
	}
	return r.Resample(input)
}

// linear interpolates between neighbouring samples. Cheap and good enough
// for speech, where audiophile quality is not the goal.
type linear struct {
	ratio      float64 // toRate / fromRate
	lastSample float32 // carried over from the previous chunk
}

func newLinear(fromRate, toRate int) *linear {
	return &linear{ratio: float64(toRate) / float64(fromRate)}
}

func (r *linear) Resample(input []float32) []float32 {
	n := len(input)
	if n == 0 {
		return input
	}

	out := make([]float32, int(float64(n)*r.ratio))
	for i := range out {
		pos := float64(i) / r.ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))

		a := r.lastSample
		if idx < n {
			a = input[idx]
		}
		b := a
		if idx+1 < n {
			b = input[idx+1]
		} else if idx < n {
			b = input[n-1]
		}
		out[i] = a + (b-a)*frac
	}

	r.lastSample = input[n-1]
	return out
}

// polyphaseTaps is the FIR length of the anti-aliasing filter.
const polyphaseTaps = 64

// polyphase downsamples through a Hamming-windowed sinc low-pass filter with
// its cutoff at the output Nyquist frequency, so speech energy above it does
// not fold back into the band the recognizer listens to.
type polyphase struct {
	ratio   float64
	filter  []float32
	history []float32 // last polyphaseTaps input samples of the previous chunk
}

func newPolyphase(fromRate, toRate int) *polyphase {
	ratio := float64(toRate) / float64(fromRate)
	cutoff := ratio * 0.5

	filter := make([]float32, polyphaseTaps)
	var sum float32
	for i := range filter {
		n := float64(i) - float64(polyphaseTaps-1)/2.0
		if n == 0 {
			filter[i] = float32(2.0 * cutoff)
		} else {
			sinc := math.Sin(2.0*math.Pi*cutoff*n) / (math.Pi * n)
			window := 0.54 - 0.46*math.Cos(2.0*math.Pi*float64(i)/float64(polyphaseTaps-1))
			filter[i] = float32(sinc * window)
		}
		sum += filter[i]
	}
	// Unity gain at DC.
	for i := range filter {
		filter[i] /= sum
	}

	return &polyphase{
		ratio:   ratio,
		filter:  filter,
		history: make([]float32, polyphaseTaps),
	}
}

func (r *polyphase) Resample(input []float32) []float32 {
	n := len(input)
	if n == 0 {
		return input
	}

	combined := make([]float32, 0, len(r.history)+n)
	combined = append(combined, r.history...)
	combined = append(combined, input...)

	out := make([]float32, int(float64(n)*r.ratio))
	for i := range out {
		center := int(float64(i)/r.ratio) + len(r.history)
		var acc float32
		for j, coeff := range r.filter {
			idx := center - polyphaseTaps/2 + j
			if idx >= 0 && idx < len(combined) {
				acc += combined[idx] * coeff
			}
		}
		out[i] = acc
	}

	copy(r.history, combined[len(combined)-polyphaseTaps:])
	return out
}
