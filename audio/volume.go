package audio

import "math"

// clampVolume limits a gain to [0, MaxVolume].
func clampVolume(v float32) float32 {
	if v < 0 || math.IsNaN(float64(v)) {
		return 0
	}
	if v > MaxVolume {
		return MaxVolume
	}
	return v
}

// softClip scales x by volume and limits it with tanh, so loud input bends
// smoothly towards ±1 instead of clipping.
func softClip(x, volume float32) float32 {
	return float32(math.Tanh(float64(x * volume)))
}
