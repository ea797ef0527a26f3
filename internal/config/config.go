// Package config provides configuration loading for terratale.
package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrConfiguration marks a fatal configuration problem. The process must
// not start serving when it is reported.
var ErrConfiguration = errors.New("invalid configuration")

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Gemini    GeminiConfig    `koanf:"gemini"`
	Deepgram  DeepgramConfig  `koanf:"deepgram"`
	Knowledge KnowledgeConfig `koanf:"knowledge"`
	Speech    SpeechConfig    `koanf:"speech"`
	Timeouts  TimeoutConfig   `koanf:"timeouts"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type GeminiConfig struct {
	APIKey          string `koanf:"api_key"`
	TextModel       string `koanf:"text_model"`
	ClassifierModel string `koanf:"classifier_model"`
	AudioModel      string `koanf:"audio_model"`
	EmbeddingModel  string `koanf:"embedding_model"`
}

type DeepgramConfig struct {
	APIKey string `koanf:"api_key"`
	Voice  string `koanf:"voice"`
}

type KnowledgeConfig struct {
	// VectorStorePath is the directory for the persistent vector store.
	// Empty disables the vector store; retrieval then serves the static
	// corpus and image search returns no hits.
	VectorStorePath string `koanf:"vector_store_path"`
	Compress        bool   `koanf:"compress"`

	// CorpusPath points at a JSON array of grounding passages. Empty uses
	// the built-in corpus.
	CorpusPath string `koanf:"corpus_path"`
	// ImageSetPath points at a JSON array of image documents to index.
	ImageSetPath string `koanf:"image_set_path"`

	PassageTopK int `koanf:"passage_top_k"`
	ImageTopK   int `koanf:"image_top_k"`
}

type SpeechConfig struct {
	// PronunciationPath points at a JSON object mapping terms to IPA
	// pronunciations. Empty disables phoneme annotation.
	PronunciationPath string `koanf:"pronunciation_path"`
}

type TimeoutConfig struct {
	// Call bounds classification, retrieval, text generation and speech
	// synthesis calls.
	Call time.Duration `koanf:"call"`
	// AudioStream bounds a full audio generation stream.
	AudioStream time.Duration `koanf:"audio_stream"`
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Timeouts.Call == 0 {
		cfg.Timeouts.Call = 60 * time.Second
	}
	if cfg.Timeouts.AudioStream == 0 {
		cfg.Timeouts.AudioStream = 120 * time.Second
	}
}

// Validate reports fatal configuration problems. Every returned error wraps
// [ErrConfiguration].
func (c *Config) Validate() error {
	if c.Gemini.APIKey == "" {
		return fmt.Errorf("%w: gemini api key is required", ErrConfiguration)
	}
	if c.Deepgram.APIKey == "" {
		return fmt.Errorf("%w: deepgram api key is required", ErrConfiguration)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d is out of range", ErrConfiguration, c.Server.Port)
	}
	if c.Timeouts.Call < 0 || c.Timeouts.AudioStream < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", ErrConfiguration)
	}
	return nil
}
