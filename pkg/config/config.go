// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads runtime configuration from defaults, an optional
// YAML file, and WEFT_-prefixed environment variables, in that order.
package config

import (
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Log       LogConfig       `koanf:"log"`
	LLM       LLMConfig       `koanf:"llm"`
	Runtime   RuntimeConfig   `koanf:"runtime"`
	Memory    MemoryConfig    `koanf:"memory"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type LLMConfig struct {
	Provider string `koanf:"provider"` // ollama, mock
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	APIKey   string `koanf:"api_key"`
}

// RuntimeConfig tunes the session loop and parser.
type RuntimeConfig struct {
	MaxIterations     int     `koanf:"max_iterations"`
	HistoryLimit      int     `koanf:"history_limit"`
	CoalesceThreshold int     `koanf:"coalesce_threshold"`
	Temperature       float64 `koanf:"temperature"`
	ProfilePath       string  `koanf:"profile_path"`
}

type MemoryConfig struct {
	Backend          string `koanf:"backend"` // inmemory, sqlite
	SQLitePath       string `koanf:"sqlite_path"`
	RecallEnabled    bool   `koanf:"recall_enabled"`
	QdrantAddr       string `koanf:"qdrant_addr"`
	QdrantCollection string `koanf:"qdrant_collection"`
	EmbedderBaseURL  string `koanf:"embedder_base_url"`
	EmbedderModel    string `koanf:"embedder_model"`
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // stdout, otlp, none
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

// Load builds the configuration. Later sources win: defaults, then the
// YAML file at path (if any), then WEFT_* environment variables
// (WEFT_LLM_PROVIDER -> llm.provider).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	k.Set("log.level", "info")
	k.Set("log.format", "text")

	k.Set("llm.provider", "ollama")
	k.Set("llm.model", "qwen2.5-coder:7b-instruct-q5_K_M")
	k.Set("llm.base_url", "http://localhost:11434")

	k.Set("runtime.max_iterations", 10)
	k.Set("runtime.history_limit", 50)
	k.Set("runtime.temperature", 0.2)

	k.Set("memory.backend", "inmemory")
	k.Set("memory.sqlite_path", "weft.db")
	k.Set("memory.recall_enabled", false)
	k.Set("memory.qdrant_addr", "localhost:6334")
	k.Set("memory.qdrant_collection", "weft_recall")
	k.Set("memory.embedder_base_url", "http://localhost:11434")
	k.Set("memory.embedder_model", "nomic-embed-text")

	k.Set("telemetry.exporter", "none")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	if err := k.Load(env.Provider("WEFT_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "WEFT_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
