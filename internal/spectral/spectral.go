// Package spectral implements Component B (Spectral Analyzer): a
// Hann-windowed STFT converted to a dB-scaled magnitude spectrogram,
// referenced to the clip's own maximum.
package spectral

import (
	"math"
	"math/cmplx"

	"musica/internal/config"
)

// Spectrogram is a 2-D array indexed [timeFrame][freqBin] holding
// magnitudes in dB relative to the clip's maximum — so the loudest
// bin in the whole clip is 0 dB and everything else is negative.
type Spectrogram [][]float64

// NumFreqBins is FFTSize/2 + 1, the number of frequency bins the STFT
// produces per frame.
const NumFreqBins = config.FFTSize/2 + 1

var hannWindow = buildHannWindow(config.FFTSize)

func buildHannWindow(size int) []float64 {
	w := make([]float64, size)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(size-1))
	}
	return w
}

// STFT computes the short-time Fourier transform of samples using a
// Hann window of config.FFTSize and hop config.HopLength, returning a
// magnitude spectrogram scaled to dB relative to the clip maximum.
// The final (possibly partial) frame is zero-padded.
func STFT(samples []float32) Spectrogram {
	if len(samples) == 0 {
		return Spectrogram{}
	}

	n := len(samples)
	numFrames := (n-config.FFTSize)/config.HopLength + 1
	if numFrames < 1 {
		numFrames = 1
	}

	mags := make(Spectrogram, 0, numFrames)
	maxMag := 0.0

	frame := make([]float64, config.FFTSize)
	for start := 0; start < n; start += config.HopLength {
		for i := 0; i < config.FFTSize; i++ {
			idx := start + i
			var v float64
			if idx < n {
				v = float64(samples[idx])
			}
			frame[i] = v * hannWindow[i]
		}

		bins := FFT(frame)
		mag := make([]float64, NumFreqBins)
		for i := 0; i < NumFreqBins; i++ {
			m := cmplx.Abs(bins[i])
			mag[i] = m
			if m > maxMag {
				maxMag = m
			}
		}
		mags = append(mags, mag)

		if start+config.FFTSize >= n {
			break
		}
	}

	toDB(mags, maxMag)
	return mags
}

// toDB converts magnitudes in place to dB relative to ref. Bins whose
// magnitude is zero are floored to AmplitudeThreshold-1, well below
// the peak-detection threshold, rather than -Inf.
func toDB(mags Spectrogram, ref float64) {
	floor := config.AmplitudeThreshold - 1
	if ref == 0 {
		for _, frame := range mags {
			for i := range frame {
				frame[i] = floor
			}
		}
		return
	}
	for _, frame := range mags {
		for i, m := range frame {
			if m == 0 {
				frame[i] = floor
				continue
			}
			frame[i] = 20 * math.Log10(m/ref)
		}
	}
}
