// Package waveform implements Component A (Waveform Normalizer): mono
// downmix and band-limited resampling to the canonical sample rate.
package waveform

import (
	"math"

	"musica/internal/config"
)

// Waveform is a finite sequence of mono float32 samples in [-1, 1]
// associated with a sample rate.
type Waveform struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the waveform's length in seconds.
func (w Waveform) Duration() float64 {
	if w.SampleRate == 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// Normalize downmixes multi-channel samples to mono (arithmetic mean
// across channels) and resamples to config.SampleRate if needed. It
// never changes gain. channels must be >= 1.
func Normalize(samples []float32, channels, sampleRateIn int) (Waveform, error) {
	mono := downmix(samples, channels)

	if sampleRateIn == config.SampleRate || len(mono) == 0 {
		return Waveform{Samples: mono, SampleRate: config.SampleRate}, nil
	}

	resampled := resample(mono, sampleRateIn, config.SampleRate)
	return Waveform{Samples: resampled, SampleRate: config.SampleRate}, nil
}

func downmix(samples []float32, channels int) []float32 {
	if channels <= 1 {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out
	}

	frames := len(samples) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += samples[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// resample performs band-limited resampling with a windowed-sinc
// kernel, so that content above the target Nyquist frequency is
// attenuated rather than aliased back into the passband.
func resample(in []float32, srIn, srOut int) []float32 {
	if srIn == srOut || len(in) == 0 {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}

	ratio := float64(srOut) / float64(srIn)
	outLen := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, outLen)

	// Cutoff is the lower of the two Nyquist frequencies (in
	// normalized input-sample units), so downsampling low-passes
	// before decimating and upsampling doesn't introduce spurious
	// highs.
	cutoff := 0.5
	if ratio < 1 {
		cutoff = ratio / 2
	}

	const halfTaps = 8 // kernel radius in input samples
	for i := 0; i < outLen; i++ {
		srcPos := float64(i) / ratio
		center := int(math.Floor(srcPos))

		var sum, weightSum float64
		for k := center - halfTaps; k <= center+halfTaps; k++ {
			if k < 0 || k >= len(in) {
				continue
			}
			x := srcPos - float64(k)
			w := sincLanczos(x, cutoff, halfTaps)
			sum += w * float64(in[k])
			weightSum += w
		}
		if weightSum != 0 {
			out[i] = float32(sum / weightSum)
		}
	}
	return out
}

// sincLanczos evaluates a Lanczos-windowed sinc kernel scaled to the
// given cutoff (normalized frequency, 0.5 == Nyquist) and radius.
func sincLanczos(x, cutoff float64, radius int) float64 {
	if x == 0 {
		return 2 * cutoff
	}
	a := float64(radius)
	if math.Abs(x) >= a {
		return 0
	}
	piX := math.Pi * x
	sinc := math.Sin(2*math.Pi*cutoff*x) / piX
	lanczos := math.Sin(piX/a) / (piX / a)
	return sinc * lanczos
}
