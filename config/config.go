package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/goccy/go-yaml"
)

// LLMSettings selects the generation backend endpoint and model.
type LLMSettings struct {
	// Host is the base URL of an OpenAI-compatible or ollama-style backend.
	Host string `yaml:"host"`
	// APIKey is optional; local backends usually ignore it.
	APIKey       string `yaml:"api_key"`
	Model        string `yaml:"model"`
	SystemPrompt string `yaml:"system_prompt"`
}

// AudioSettings holds capture, trimming and synthesis parameters.
type AudioSettings struct {
	EnableVoiceOutput bool    `yaml:"enable_voice_output"`
	Voice             string  `yaml:"voice"`
	OutputVolume      float64 `yaml:"output_volume"`
	SampleRate        int     `yaml:"sample_rate"`
	FrameDurationMs   int     `yaml:"frame_duration_ms"`
	Aggressiveness    int     `yaml:"aggressiveness"`
	VADSilenceMs      int     `yaml:"vad_silence_ms"`
	// InputDir and OutputDir are media-root-relative directories for captured
	// audio and synthesized responses.
	InputDir  string `yaml:"input_dir"`
	OutputDir string `yaml:"output_dir"`
}

// Settings is the top-level application configuration.
type Settings struct {
	ListenAddr string        `yaml:"listen_addr"`
	MediaRoot  string        `yaml:"media_root"`
	DBPath     string        `yaml:"db_path"`
	LLM        LLMSettings   `yaml:"llm"`
	Audio      AudioSettings `yaml:"audio"`
}

const defaultSystemPrompt = "You are an AI voice assistant. Your responses will be converted to speech, " +
	"so respond in natural sentences without markdown, lists, or special formatting. " +
	"Never output JSON, code fences, tool calls, or commentary tags, only plain conversational text. " +
	"Keep answers concise and to the point unless the user explicitly asks for detail. " +
	"Short answers are better than long answers."

// Default returns a Settings pre-filled with working local defaults.
func Default() Settings {
	return Settings{
		ListenAddr: ":8000",
		MediaRoot:  "./data/media",
		DBPath:     "./data/conversations",
		LLM: LLMSettings{
			Host:         "http://127.0.0.1:11434",
			Model:        "mistralai/magistral-small-2509",
			SystemPrompt: defaultSystemPrompt,
		},
		Audio: AudioSettings{
			EnableVoiceOutput: true,
			Voice:             "alloy",
			OutputVolume:      1.0,
			SampleRate:        16000,
			FrameDurationMs:   30,
			Aggressiveness:    3,
			VADSilenceMs:      1500,
			InputDir:          "audio/input",
			OutputDir:         "audio/responses",
		},
	}
}

// FromFile reads a Settings YAML file on top of the defaults.
func FromFile(path string) (Settings, error) {
	settings := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return settings, fmt.Errorf("config: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return Default(), fmt.Errorf("config: parse %q: %w", path, err)
	}
	return settings, nil
}

// envPrefix namespaces the environment overrides.
const envPrefix = "REALTIME_CHAT_"

// ApplyEnv overlays environment variable overrides onto the settings.
func ApplyEnv(settings Settings) Settings {
	setString := func(key string, dst *string) {
		if v := os.Getenv(envPrefix + key); v != "" {
			*dst = v
		}
	}
	setString("LISTEN_ADDR", &settings.ListenAddr)
	setString("MEDIA_ROOT", &settings.MediaRoot)
	setString("DB_PATH", &settings.DBPath)
	setString("LLM_HOST", &settings.LLM.Host)
	setString("LLM_API_KEY", &settings.LLM.APIKey)
	setString("LLM_MODEL", &settings.LLM.Model)
	setString("SYSTEM_PROMPT", &settings.LLM.SystemPrompt)
	setString("VOICE", &settings.Audio.Voice)

	if v := os.Getenv(envPrefix + "ENABLE_VOICE_OUTPUT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.Audio.EnableVoiceOutput = b
		}
	}
	if v := os.Getenv(envPrefix + "VAD_AGGRESSIVENESS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Audio.Aggressiveness = n
		}
	}
	return settings
}
