package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/yessika-commits/realish-time-llm-chat/config"
	"github.com/yessika-commits/realish-time-llm-chat/core"
	"github.com/yessika-commits/realish-time-llm-chat/media"
	"github.com/yessika-commits/realish-time-llm-chat/pipeline"
	"github.com/yessika-commits/realish-time-llm-chat/services/generate"
	"github.com/yessika-commits/realish-time-llm-chat/services/naming"
	"github.com/yessika-commits/realish-time-llm-chat/services/speech"
	"github.com/yessika-commits/realish-time-llm-chat/store"
	wstransport "github.com/yessika-commits/realish-time-llm-chat/transports/websocket"
	"github.com/yessika-commits/realish-time-llm-chat/vad"
)

func main() {
	var settingsPath string
	flag.StringVar(&settingsPath, "settings", "", "Path to the settings YAML file (default ./settings.yaml)")
	flag.Parse()

	logger := core.GetLogger()

	if err := godotenv.Load(".env.local"); err != nil {
		logger.With(map[string]any{"error": err}).Warn("No .env.local file found or failed to load")
	}

	if settingsPath == "" {
		settingsPath = getEnv("SETTINGS_PATH", "./settings.yaml")
	}
	settings, err := config.FromFile(settingsPath)
	if err != nil {
		logger.With(map[string]any{"path": settingsPath, "error": err}).Warn("failed to load settings, using defaults")
	}
	settings = config.ApplyEnv(settings)

	for _, dir := range []string{
		filepath.Join(settings.MediaRoot, filepath.FromSlash(settings.Audio.InputDir)),
		filepath.Join(settings.MediaRoot, filepath.FromSlash(settings.Audio.OutputDir)),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.With(map[string]any{"dir": dir, "error": err}).Fatal("failed to create media directory")
		}
	}

	db, err := store.Open(store.Options{Dir: settings.DBPath, Logger: logger})
	if err != nil {
		logger.With(map[string]any{"path": settings.DBPath, "error": err}).Fatal("failed to open conversation store")
	}
	defer db.Close()

	paths := media.NewPaths(settings.MediaRoot)

	classifier, err := vad.NewEnergyClassifier(settings.Audio.Aggressiveness)
	if err != nil {
		logger.With(map[string]any{"error": err}).Fatal("invalid VAD aggressiveness")
	}
	trimmer, err := vad.NewTrimmer(classifier, vad.Config{
		SampleRate:        settings.Audio.SampleRate,
		FrameDurationMs:   settings.Audio.FrameDurationMs,
		SilenceDurationMs: settings.Audio.VADSilenceMs,
	})
	if err != nil {
		logger.With(map[string]any{"error": err}).Fatal("invalid VAD configuration")
	}

	generator := generate.NewClient(generate.Config{
		Host:         settings.LLM.Host,
		APIKey:       settings.LLM.APIKey,
		Model:        settings.LLM.Model,
		SystemPrompt: settings.LLM.SystemPrompt,
	}, logger)

	namer := naming.NewNamer(naming.Config{
		Host:   settings.LLM.Host,
		APIKey: settings.LLM.APIKey,
		Model:  settings.LLM.Model,
	}, logger)

	speechService := speech.NewService(speech.Config{
		Host:              settings.LLM.Host,
		APIKey:            settings.LLM.APIKey,
		EnableVoiceOutput: settings.Audio.EnableVoiceOutput,
		Voice:             settings.Audio.Voice,
		OutputVolume:      settings.Audio.OutputVolume,
		InputDir:          settings.Audio.InputDir,
		OutputDir:         settings.Audio.OutputDir,
	}, paths, trimmer, logger)

	coordinator := pipeline.NewCoordinator(db, generator, namer, speechService, paths, logger)

	mux := http.NewServeMux()
	wstransport.NewServer(coordinator, logger).Register(mux)
	mux.Handle("/media/", http.StripPrefix("/media/", http.FileServer(http.Dir(settings.MediaRoot))))

	httpServer := &http.Server{
		Addr:    settings.ListenAddr,
		Handler: mux,
	}

	go func() {
		logger.With(map[string]any{"addr": settings.ListenAddr}).Info("listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.With(map[string]any{"error": err}).Fatal("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.With(map[string]any{"error": err}).Warn("server shutdown was not clean")
	}
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
