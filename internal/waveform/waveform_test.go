package waveform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"musica/internal/config"
)

func TestNormalizeMonoDownmix(t *testing.T) {
	// Stereo: left=1.0, right=-1.0 → mono mean should be 0.
	samples := []float32{1.0, -1.0, 0.5, 0.5}
	w, err := Normalize(samples, 2, config.SampleRate)
	require.NoError(t, err)
	require.Len(t, w.Samples, 2)
	assert.InDelta(t, 0.0, w.Samples[0], 1e-6)
	assert.InDelta(t, 0.5, w.Samples[1], 1e-6)
	assert.Equal(t, config.SampleRate, w.SampleRate)
}

func TestNormalizeResamplesToCanonicalRate(t *testing.T) {
	samples := make([]float32, 44100) // 1 second at 44100 Hz
	w, err := Normalize(samples, 1, 44100)
	require.NoError(t, err)
	assert.Equal(t, config.SampleRate, w.SampleRate)
	// ~1 second of audio at the canonical rate.
	assert.InDelta(t, float64(config.SampleRate), float64(len(w.Samples)), float64(config.SampleRate)*0.02)
}

func TestDurationMatchesSampleCount(t *testing.T) {
	w := Waveform{Samples: make([]float32, config.SampleRate*2), SampleRate: config.SampleRate}
	assert.InDelta(t, 2.0, w.Duration(), 1e-9)
}
