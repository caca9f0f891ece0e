package vad

import (
	"encoding/binary"
	"fmt"
	"math"
)

// energyThresholds maps aggressiveness 0-3 to a normalized RMS level. Higher
// aggressiveness raises the bar, so more frames land in the silence bucket.
var energyThresholds = [4]float64{0.005, 0.010, 0.020, 0.040}

// EnergyClassifier is a pure-Go speech/non-speech classifier based on RMS
// energy of a PCM16 frame.
type EnergyClassifier struct {
	threshold float64
}

// NewEnergyClassifier creates a classifier with the given aggressiveness
// level (0-3, higher = stricter about what counts as speech).
func NewEnergyClassifier(aggressiveness int) (*EnergyClassifier, error) {
	if aggressiveness < 0 || aggressiveness > 3 {
		return nil, fmt.Errorf("vad: aggressiveness must be between 0 and 3, got %d", aggressiveness)
	}
	return &EnergyClassifier{threshold: energyThresholds[aggressiveness]}, nil
}

// IsSpeech reports whether the frame's RMS energy clears the threshold.
func (c *EnergyClassifier) IsSpeech(frame []byte, sampleRate int) bool {
	samples := len(frame) / 2
	if samples == 0 {
		return false
	}
	var sum float64
	for i := 0; i < samples; i++ {
		s := int16(binary.LittleEndian.Uint16(frame[i*2:]))
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum/float64(samples)) >= c.threshold
}
