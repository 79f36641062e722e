// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm holds the text generation backends used by the analysis agents.
//
// Every backend implements LLMClient. NewFromConfig picks one from
// configuration; API keys are sealed in a memguard Enclave until the client
// is constructed.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/awnumar/memguard"

	"github.com/AleutianAI/hedgemind/services/thesis/dag"
)

// Backend names accepted in Config.Backend.
const (
	BackendOpenAI = "openai"
	BackendGemini = "gemini"
	BackendOllama = "ollama"
)

var (
	// ErrEmptyResponse is returned when a backend answers without any text.
	ErrEmptyResponse = errors.New("llm returned no content")

	// ErrUnknownBackend is returned by NewFromConfig for an unsupported backend.
	ErrUnknownBackend = errors.New("unknown llm backend")

	// ErrMissingKey is returned when a hosted backend has no API key.
	ErrMissingKey = errors.New("llm api key not set")
)

type GenerationParams struct {
	// System is sent as a system message when non-empty.
	System      string   `json:"system,omitempty"`
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

// Config selects and configures a backend.
type Config struct {
	Backend string `yaml:"backend" validate:"required,oneof=openai gemini ollama"`
	Model   string `yaml:"model"`
	// BaseURL overrides the API endpoint. Required for ollama.
	BaseURL     string  `yaml:"base_url" validate:"omitempty,url"`
	Temperature float32 `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `yaml:"max_tokens" validate:"gte=0"`

	// Key is sealed by NewFromConfig and never serialized.
	Key *memguard.Enclave `yaml:"-"`
}

// DefaultConfig returns a Gemini configuration at temperature zero.
func DefaultConfig() Config {
	return Config{
		Backend: BackendGemini,
		Model:   DefaultGeminiModel,
	}
}

// SealKey moves key into an Enclave and wipes the source bytes.
func SealKey(key []byte) *memguard.Enclave {
	if len(key) == 0 {
		return nil
	}
	return memguard.NewEnclave(key)
}

// openKey returns the plaintext key held by e.
func openKey(e *memguard.Enclave) (string, error) {
	if e == nil {
		return "", ErrMissingKey
	}
	buf, err := e.Open()
	if err != nil {
		return "", fmt.Errorf("open key enclave: %w", err)
	}
	defer buf.Destroy()
	return strings.Clone(buf.String()), nil
}

// NewFromConfig constructs the backend named by cfg.Backend.
func NewFromConfig(ctx context.Context, cfg Config, logger *slog.Logger) (LLMClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := GenerationParams{}
	if cfg.MaxTokens > 0 {
		mt := cfg.MaxTokens
		defaults.MaxTokens = &mt
	}
	temp := cfg.Temperature
	defaults.Temperature = &temp

	var (
		client LLMClient
		err    error
	)
	switch strings.ToLower(cfg.Backend) {
	case BackendOpenAI:
		var key string
		if key, err = openKey(cfg.Key); err != nil {
			return nil, err
		}
		client, err = NewOpenAIClient(key, cfg.Model, cfg.BaseURL, logger)
	case BackendGemini:
		var key string
		if key, err = openKey(cfg.Key); err != nil {
			return nil, err
		}
		client, err = NewGeminiClient(ctx, key, cfg.Model, logger)
	case BackendOllama:
		client, err = NewOllamaClient(cfg.BaseURL, cfg.Model, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return WithDefaults(client, defaults), nil
}

// WithDefaults fills unset GenerationParams fields from defaults before each call.
func WithDefaults(c LLMClient, defaults GenerationParams) LLMClient {
	return &defaultsClient{next: c, defaults: defaults}
}

type defaultsClient struct {
	next     LLMClient
	defaults GenerationParams
}

func (d *defaultsClient) Generate(ctx context.Context, prompt string, p GenerationParams) (string, error) {
	if p.Temperature == nil {
		p.Temperature = d.defaults.Temperature
	}
	if p.MaxTokens == nil {
		p.MaxTokens = d.defaults.MaxTokens
	}
	if p.TopK == nil {
		p.TopK = d.defaults.TopK
	}
	if p.TopP == nil {
		p.TopP = d.defaults.TopP
	}
	if p.System == "" {
		p.System = d.defaults.System
	}
	if len(p.Stop) == 0 {
		p.Stop = d.defaults.Stop
	}
	return d.next.Generate(ctx, prompt, p)
}

// Error is returned by every backend for a failed call.
type Error struct {
	Backend string
	// Status is the HTTP status when the backend reported one.
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Backend, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Backend, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// FailureKind implements dag.KindError.
func (e *Error) FailureKind() dag.FailureKind {
	if e.Status == http.StatusTooManyRequests {
		return dag.FailureRateLimited
	}
	switch k := dag.Classify(e.Err); k {
	case dag.FailureTimeout, dag.FailureCancelled:
		return k
	}
	if errors.Is(e.Err, ErrEmptyResponse) {
		return dag.FailureParse
	}
	return dag.FailureExternalCall
}
