// Package config provides configuration loading for the application.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ponpaku/ai-kakeibo-2/internal/common"
)

// Queue backend names.
const (
	QueueMemory = "memory"
	QueueRedis  = "redis"
)

// Config is the file- and environment-sourced configuration. Engine model
// settings live in the database instead; see the engine_settings row.
type Config struct {
	ListenAddr      string
	DatabasePath    string
	UploadDir       string
	QueueBackend    string
	RedisAddr       string
	Workers         int
	CodexBin        string
	OCRTimeout      time.Duration
	ClassifyTimeout time.Duration
	LogLevel        string
	LogFormat       string
	CORSOrigins     []string
}

func setDefaults() {
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.cors_origins", []string{"http://localhost:5173"})
	viper.SetDefault("database.path", "~/.local/share/kakeibo/kakeibo.db")
	viper.SetDefault("uploads.dir", "~/.local/share/kakeibo/uploads")
	viper.SetDefault("queue.backend", QueueMemory)
	viper.SetDefault("queue.redis_addr", "localhost:6379")
	viper.SetDefault("queue.workers", 2)
	viper.SetDefault("codex.bin", "codex")
	viper.SetDefault("codex.ocr_timeout", "180s")
	viper.SetDefault("codex.classify_timeout", "60s")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")
}

// Load reads the resolved viper state into a validated Config.
func Load() (*Config, error) {
	setDefaults()

	cfg := &Config{
		ListenAddr:      viper.GetString("server.addr"),
		DatabasePath:    ExpandPath(viper.GetString("database.path")),
		UploadDir:       ExpandPath(viper.GetString("uploads.dir")),
		QueueBackend:    viper.GetString("queue.backend"),
		RedisAddr:       viper.GetString("queue.redis_addr"),
		Workers:         viper.GetInt("queue.workers"),
		CodexBin:        viper.GetString("codex.bin"),
		OCRTimeout:      viper.GetDuration("codex.ocr_timeout"),
		ClassifyTimeout: viper.GetDuration("codex.classify_timeout"),
		LogLevel:        viper.GetString("logging.level"),
		LogFormat:       viper.GetString("logging.format"),
		CORSOrigins:     viper.GetStringSlice("server.cors_origins"),
	}

	if cfg.QueueBackend != QueueMemory && cfg.QueueBackend != QueueRedis {
		return nil, fmt.Errorf("%w: unknown queue backend %q", common.ErrInvalidConfig, cfg.QueueBackend)
	}
	if cfg.Workers <= 0 {
		return nil, fmt.Errorf("%w: queue.workers must be positive", common.ErrInvalidConfig)
	}
	if cfg.OCRTimeout <= 0 || cfg.ClassifyTimeout <= 0 {
		return nil, fmt.Errorf("%w: codex timeouts must be positive", common.ErrInvalidConfig)
	}
	return cfg, nil
}

// ExpandPath expands ~ and environment variables in a file path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	return os.ExpandEnv(path)
}
