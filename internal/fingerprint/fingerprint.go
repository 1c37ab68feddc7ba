// Package fingerprint implements Component D (Hash Generator):
// pairing each anchor peak with its following FanOut target peaks
// into shift-invariant landmark hashes.
package fingerprint

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"

	"musica/internal/config"
	"musica/internal/peaks"
)

// Fingerprint is a (hash, anchor_time) pair, where anchor_time is the
// STFT frame index of the pair's anchor peak.
type Fingerprint struct {
	Hash       string
	AnchorTime int
}

// Generate pairs each peak in pts (assumed sorted by TimeFrame, as
// peaks.Extract returns them) with its next FanOut peaks and emits a
// landmark hash for every pair whose Δt falls within
// [MinTimeDelta, MaxTimeDelta].
func Generate(pts []peaks.Peak) []Fingerprint {
	var out []Fingerprint
	n := len(pts)

	for i, anchor := range pts {
		maxJ := i + config.FanOut
		if maxJ >= n {
			maxJ = n - 1
		}
		for j := i + 1; j <= maxJ; j++ {
			target := pts[j]
			dt := target.TimeFrame - anchor.TimeFrame
			if dt < config.MinTimeDelta || dt > config.MaxTimeDelta {
				continue
			}
			out = append(out, Fingerprint{
				Hash:       Hash(anchor.FreqBin, target.FreqBin, dt),
				AnchorTime: anchor.TimeFrame,
			})
		}
	}
	return out
}

// Hash computes the 20-hex-character landmark hash for (fAnchor,
// fTarget, dt): the first 20 hex characters of SHA-1 of the ASCII
// bytes "fAnchor|fTarget|dt". This exact format is required for two
// implementations to produce byte-identical hashes.
func Hash(fAnchor, fTarget, dt int) string {
	raw := strconv.Itoa(fAnchor) + "|" + strconv.Itoa(fTarget) + "|" + strconv.Itoa(dt)
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])[:20]
}
