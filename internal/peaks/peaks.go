// Package peaks implements Component C (Peak Detector): a rectangular
// local-maximum filter over the dB spectrogram.
package peaks

import (
	"sort"

	"musica/internal/config"
	"musica/internal/spectral"
)

// Peak marks a local maximum in the spectrogram's time-frequency
// plane.
type Peak struct {
	FreqBin   int
	TimeFrame int
}

// Extract returns every cell of spec whose magnitude equals the
// maximum of its PeakNeighborhood×PeakNeighborhood window (including
// itself) and exceeds AmplitudeThreshold dB. Plateau ties are all
// returned. The result is sorted by (TimeFrame, FreqBin), the order
// the hashing stage expects.
func Extract(spec spectral.Spectrogram) []Peak {
	numFrames := len(spec)
	if numFrames == 0 {
		return nil
	}
	numBins := len(spec[0])

	half := config.PeakNeighborhood / 2
	var out []Peak

	for t := 0; t < numFrames; t++ {
		for f := 0; f < numBins; f++ {
			v := spec[t][f]
			if v <= config.AmplitudeThreshold {
				continue
			}
			if isNeighborhoodMax(spec, t, f, half, numFrames, numBins) {
				out = append(out, Peak{FreqBin: f, TimeFrame: t})
			}
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].TimeFrame != out[j].TimeFrame {
			return out[i].TimeFrame < out[j].TimeFrame
		}
		return out[i].FreqBin < out[j].FreqBin
	})
	return out
}

func isNeighborhoodMax(spec spectral.Spectrogram, t, f, half, numFrames, numBins int) bool {
	v := spec[t][f]
	for dt := -half; dt < config.PeakNeighborhood-half; dt++ {
		tt := t + dt
		if tt < 0 || tt >= numFrames {
			continue
		}
		row := spec[tt]
		for df := -half; df < config.PeakNeighborhood-half; df++ {
			ff := f + df
			if ff < 0 || ff >= numBins {
				continue
			}
			if row[ff] > v {
				return false
			}
		}
	}
	return true
}
