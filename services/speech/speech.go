package speech

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
	"github.com/zaf/g711"

	"github.com/yessika-commits/realish-time-llm-chat/core"
	"github.com/yessika-commits/realish-time-llm-chat/media"
	"github.com/yessika-commits/realish-time-llm-chat/vad"
)

// Config holds the configuration for the speech service.
type Config struct {
	// Host is the base URL of the transcription and synthesis backend.
	Host   string
	APIKey string
	// EnableVoiceOutput gates synthesis; transcription is always available.
	EnableVoiceOutput bool
	Voice             string
	// OutputVolume scales synthesized audio. 1.0 leaves it untouched.
	OutputVolume float64
	// InputDir and OutputDir are media-root-relative directories for prepared
	// captures and synthesized replies.
	InputDir  string
	OutputDir string
	// Timeout bounds one transcription or synthesis round trip.
	Timeout time.Duration
}

// DefaultTimeout bounds a transcription or synthesis request.
const DefaultTimeout = 60 * time.Second

// synthesisSampleRate is the PCM rate the synthesis backend emits.
const synthesisSampleRate = 24000

// Service transcribes stored captures and synthesizes spoken replies through
// an OpenAI-compatible audio backend. Captured buffers pass through silence
// trimming before they are stored.
type Service struct {
	config  Config
	openai  *openai.Client
	paths   media.Paths
	trimmer *vad.Trimmer
	logger  *core.Logger
}

// NewService creates a speech service. The trimmer is applied to every
// prepared capture and may be nil to store captures untrimmed.
func NewService(config Config, paths media.Paths, trimmer *vad.Trimmer, logger *core.Logger) *Service {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.OutputVolume <= 0 {
		config.OutputVolume = 1.0
	}
	if config.Voice == "" {
		config.Voice = "alloy"
	}
	if logger == nil {
		logger = core.GetLogger()
	}

	openaiConfig := openai.DefaultConfig(config.APIKey)
	if config.Host != "" {
		openaiConfig.BaseURL = strings.TrimRight(config.Host, "/") + "/v1"
	}

	return &Service{
		config:  config,
		openai:  openai.NewClientWithConfig(openaiConfig),
		paths:   paths,
		trimmer: trimmer,
		logger:  logger,
	}
}

// PrepareCapture decodes a finished capture buffer, trims surrounding
// silence, and stores it as a WAV file under the input directory. It returns
// the stored root-relative reference, or "" when the buffer contains no
// speech at all. It is the entry point for upload front ends that receive
// raw capture audio and need a stored reference to start a voice turn with;
// the turn channel itself only accepts already-stored references.
func (s *Service) PrepareCapture(ctx context.Context, chunk core.AudioChunk) (string, error) {
	pcm := chunk.Data
	if chunk.Format == core.ULAW {
		pcm = g711.DecodeUlaw(pcm)
	}
	if s.trimmer != nil {
		pcm = s.trimmer.TrimSilence(pcm)
	}
	if len(pcm) == 0 {
		return "", nil
	}

	sampleRate := chunk.SampleRate
	if sampleRate <= 0 {
		sampleRate = vad.DefaultConfig().SampleRate
	}
	channels := chunk.Channels
	if channels <= 0 {
		channels = 1
	}

	ref := path.Join(s.config.InputDir, fmt.Sprintf("capture_%s.wav", uuid.NewString()))
	if err := s.writeMediaFile(ref, EncodeWAV(pcm, sampleRate, channels)); err != nil {
		return "", fmt.Errorf("speech: store capture: %w", err)
	}
	return ref, nil
}

// Transcribe runs speech recognition on a stored capture and returns the
// recognized text, trimmed.
func (s *Service) Transcribe(ctx context.Context, audioPath string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	resp, err := s.openai.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: s.paths.Resolve(audioPath),
	})
	if err != nil {
		return "", fmt.Errorf("speech: transcribe %q: %w", audioPath, err)
	}
	return strings.TrimSpace(resp.Text), nil
}

var (
	asteriskPattern    = regexp.MustCompile(`\*+`)
	doubleSpacePattern = regexp.MustCompile(` {2,}`)
)

// prepareSpokenText strips the formatting residue that reads badly aloud.
func prepareSpokenText(text string) string {
	text = asteriskPattern.ReplaceAllString(text, "")
	text = doubleSpacePattern.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Synthesize converts reply text to a stored WAV file and returns its
// root-relative reference. Voice output disabled, empty text after cleanup,
// and backend failure all yield "" without an error; a missing spoken reply
// never fails the turn.
func (s *Service) Synthesize(ctx context.Context, text string) (string, error) {
	if !s.config.EnableVoiceOutput {
		return "", nil
	}
	spoken := prepareSpokenText(text)
	if spoken == "" {
		return "", nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	resp, err := s.openai.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          spoken,
		Voice:          openai.SpeechVoice(s.config.Voice),
		ResponseFormat: openai.SpeechResponseFormatPcm,
	})
	if err != nil {
		s.logger.With(map[string]any{"error": err}).Warn("speech synthesis failed, continuing without audio")
		return "", nil
	}
	defer resp.Close()

	pcm, err := io.ReadAll(resp)
	if err != nil {
		s.logger.With(map[string]any{"error": err}).Warn("speech synthesis read failed, continuing without audio")
		return "", nil
	}
	pcm = ScalePCM(pcm, s.config.OutputVolume)

	ref := path.Join(s.config.OutputDir, fmt.Sprintf("response_%s.wav", uuid.NewString()))
	if err := s.writeMediaFile(ref, EncodeWAV(pcm, synthesisSampleRate, 1)); err != nil {
		s.logger.With(map[string]any{"error": err}).Warn("storing synthesized audio failed, continuing without audio")
		return "", nil
	}
	return ref, nil
}

// writeMediaFile stores a blob under the media root, creating the directory
// on demand.
func (s *Service) writeMediaFile(ref string, data []byte) error {
	full := s.paths.Resolve(ref)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, data, 0o644)
}
