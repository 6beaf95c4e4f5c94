package cmd

import (
	"errors"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"glprovision/internal/config"
)

// setupLogging configures the global zerolog logger with a console writer.
func setupLogging(level string) {
	switch level {
	case "":
		level = "info"
	case "warning":
		level = "warn"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

// credentialFromEnv returns the GitLab credential, loading a local .env
// file first when present.
func credentialFromEnv() (string, error) {
	_ = godotenv.Load()
	if token := os.Getenv("GITLAB_ADMIN_TOKEN"); token != "" {
		return token, nil
	}
	if token := os.Getenv("GITLAB_BOT_PAT"); token != "" {
		return token, nil
	}
	return "", errors.New("GitLab token not found: set GITLAB_ADMIN_TOKEN or GITLAB_BOT_PAT")
}

// loadConfig reads the config file and applies CLI overrides.
func loadConfig(path, logLevel string, dryRun bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if dryRun {
		cfg.DryRun = true
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}
