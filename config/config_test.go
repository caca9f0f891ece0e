package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/matryer/is"
)

func TestDefaultIsComplete(t *testing.T) {
	is := is.New(t)
	settings := Default()

	is.True(settings.LLM.Host != "")
	is.True(settings.LLM.Model != "")
	is.True(settings.LLM.SystemPrompt != "")
	is.Equal(settings.Audio.FrameDurationMs, 30)
	is.Equal(settings.Audio.Aggressiveness, 3)
	is.True(settings.Audio.EnableVoiceOutput)
}

func TestFromFileOverlaysDefaults(t *testing.T) {
	is := is.New(t)
	path := filepath.Join(t.TempDir(), "settings.yaml")
	is.NoErr(os.WriteFile(path, []byte("llm:\n  host: http://10.0.0.5:8080\naudio:\n  enable_voice_output: false\n"), 0o644))

	settings, err := FromFile(path)
	is.NoErr(err)
	is.Equal(settings.LLM.Host, "http://10.0.0.5:8080")
	is.True(!settings.Audio.EnableVoiceOutput)
	// Untouched keys keep their defaults.
	is.Equal(settings.Audio.SampleRate, 16000)
}

func TestFromFileMissingReturnsDefaults(t *testing.T) {
	is := is.New(t)
	settings, err := FromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	is.True(err != nil)
	is.Equal(settings.ListenAddr, Default().ListenAddr)
}

func TestApplyEnv(t *testing.T) {
	is := is.New(t)
	t.Setenv("REALTIME_CHAT_LLM_MODEL", "llama3.2")
	t.Setenv("REALTIME_CHAT_ENABLE_VOICE_OUTPUT", "false")
	t.Setenv("REALTIME_CHAT_VAD_AGGRESSIVENESS", "1")

	settings := ApplyEnv(Default())
	is.Equal(settings.LLM.Model, "llama3.2")
	is.True(!settings.Audio.EnableVoiceOutput)
	is.Equal(settings.Audio.Aggressiveness, 1)
}
