// Package config loads meetcapd's runtime configuration from
// environment variables and an optional config file, layered through
// viper the way the rest of the retained example pack pairs it with
// cobra (github.com/spf13/viper, github.com/spf13/cobra).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds every setting meetcapd needs to run.
type Config struct {
	// MeetingsRoot is the directory holding meetings.db and every
	// session's <id>/ folder.
	MeetingsRoot string

	// HTTPAddr is the address the demo event bridge listens on.
	HTTPAddr string

	// LogLevel is one of debug/info/warn/error.
	LogLevel string

	// LogProduction switches the logger to JSON encoding.
	LogProduction bool

	// MicDevice optionally pins the microphone source to a specific
	// device id; empty selects the platform default.
	MicDevice string

	// SttURL is the base URL of the external speech-to-text service
	// the transcription bridge posts recorded samples to.
	SttURL string

	// OllamaURL is the base URL of the Ollama-compatible LLM server
	// used by the summary bridge.
	OllamaURL string

	// OllamaModel is the model name requested for summaries.
	OllamaModel string

	// SummaryMaxBytes bounds the transcript size the summary bridge
	// will send to the LLM.
	SummaryMaxBytes int64

	// FinalizeTimeout bounds how long sink.Finalize waits for an
	// in-flight producer before giving up.
	FinalizeTimeout time.Duration
}

const (
	defaultHTTPAddr        = "127.0.0.1:8420"
	defaultLogLevel        = "info"
	defaultSttURL          = "http://127.0.0.1:8765"
	defaultOllamaURL       = "http://127.0.0.1:11434"
	defaultOllamaModel     = "llama3.1"
	defaultSummaryMaxBytes = 1 << 20 // 1 MiB
	defaultFinalizeTimeout = 5 * time.Second
)

// Load reads configuration from (in increasing priority) defaults, an
// optional config file at configPath (skipped if empty or missing),
// and MEETCAP_-prefixed environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MEETCAP")
	v.AutomaticEnv()

	v.SetDefault("meetings_root", defaultMeetingsRoot())
	v.SetDefault("http_addr", defaultHTTPAddr)
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("log_production", false)
	v.SetDefault("mic_device", "")
	v.SetDefault("stt_url", defaultSttURL)
	v.SetDefault("ollama_url", defaultOllamaURL)
	v.SetDefault("ollama_model", defaultOllamaModel)
	v.SetDefault("summary_max_bytes", defaultSummaryMaxBytes)
	v.SetDefault("finalize_timeout_seconds", defaultFinalizeTimeout.Seconds())

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("config: read %s: %w", configPath, err)
			}
		}
	}

	cfg := &Config{
		MeetingsRoot:    v.GetString("meetings_root"),
		HTTPAddr:        v.GetString("http_addr"),
		LogLevel:        v.GetString("log_level"),
		LogProduction:   v.GetBool("log_production"),
		MicDevice:       v.GetString("mic_device"),
		SttURL:          v.GetString("stt_url"),
		OllamaURL:       v.GetString("ollama_url"),
		OllamaModel:     v.GetString("ollama_model"),
		SummaryMaxBytes: v.GetInt64("summary_max_bytes"),
		FinalizeTimeout: time.Duration(v.GetFloat64("finalize_timeout_seconds") * float64(time.Second)),
	}

	if cfg.MeetingsRoot == "" {
		return nil, fmt.Errorf("config: meetings_root must not be empty")
	}
	return cfg, nil
}

// DatabasePath returns the path to the session store's SQLite file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.MeetingsRoot, "meetings.db")
}

func defaultMeetingsRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "meetings"
	}
	return filepath.Join(home, ".meetcap", "meetings")
}
