package vad

import (
	"fmt"
)

// Classifier makes the binary speech/non-speech call for a single frame of
// 16-bit linear PCM. Implementations wrap an external model; the trimmer only
// cares about the verdict.
type Classifier interface {
	IsSpeech(frame []byte, sampleRate int) bool
}

// Config holds the framing parameters for silence trimming.
type Config struct {
	SampleRate      int `json:"sample_rate" yaml:"sample_rate"`
	FrameDurationMs int `json:"frame_duration_ms" yaml:"frame_duration_ms"` // must be 10, 20, or 30
	// SilenceDurationMs is the trailing silence the capture path waits for
	// before auto-stopping a recording. The trimmer itself does not use it;
	// it only travels with the rest of the VAD configuration.
	SilenceDurationMs int `json:"silence_duration_ms" yaml:"silence_duration_ms"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		SampleRate:        16000,
		FrameDurationMs:   30,
		SilenceDurationMs: 1000,
	}
}

// Trimmer removes leading and trailing silence from completed PCM buffers at
// frame granularity. It is pure: one classifier call per frame, then a byte
// slice of the original buffer.
type Trimmer struct {
	classifier Classifier
	config     Config
	frameBytes int
}

// NewTrimmer creates a Trimmer for the given classifier and framing config.
func NewTrimmer(classifier Classifier, config Config) (*Trimmer, error) {
	switch config.FrameDurationMs {
	case 10, 20, 30:
	default:
		return nil, fmt.Errorf("vad: frame duration must be 10, 20 or 30 ms, got %d", config.FrameDurationMs)
	}
	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("vad: invalid sample rate %d", config.SampleRate)
	}
	return &Trimmer{
		classifier: classifier,
		config:     config,
		frameBytes: config.SampleRate * config.FrameDurationMs / 1000 * 2,
	}, nil
}

// Config returns the framing configuration the trimmer was built with.
func (t *Trimmer) Config() Config {
	return t.config
}

// FrameBytes returns the size of one classification frame in bytes.
func (t *Trimmer) FrameBytes() int {
	return t.frameBytes
}

// TrimSilence returns the subrange of pcm16 spanning the first through the
// last frame classified as speech. A buffer with no speech frames trims to
// empty; a buffer shorter than one frame is returned unmodified.
func (t *Trimmer) TrimSilence(pcm16 []byte) []byte {
	if len(pcm16) < t.frameBytes {
		return pcm16
	}

	firstIdx := -1
	lastIdx := -1
	frameCount := 0
	for off := 0; off < len(pcm16); off += t.frameBytes {
		end := off + t.frameBytes
		if end > len(pcm16) {
			end = len(pcm16)
		}
		if t.classifier.IsSpeech(pcm16[off:end], t.config.SampleRate) {
			if firstIdx < 0 {
				firstIdx = frameCount
			}
			lastIdx = frameCount
		}
		frameCount++
	}

	if firstIdx < 0 {
		return []byte{}
	}

	startByte := firstIdx * t.frameBytes
	endByte := (lastIdx + 1) * t.frameBytes
	if endByte > len(pcm16) {
		endByte = len(pcm16)
	}
	return pcm16[startByte:endByte]
}
