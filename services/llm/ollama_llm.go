// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

const DefaultOllamaModel = "gpt-oss"

type OllamaClient struct {
	model   llms.Model
	name    string
	baseURL string
	logger  *slog.Logger
}

func NewOllamaClient(baseURL, model string, logger *slog.Logger) (*OllamaClient, error) {
	if baseURL == "" {
		return nil, &Error{Backend: BackendOllama, Err: fmt.Errorf("base url not set")}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if model == "" {
		logger.Warn("Ollama model not set, defaulting", "model", DefaultOllamaModel)
		model = DefaultOllamaModel
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	o, err := ollama.New(
		ollama.WithServerURL(baseURL),
		ollama.WithModel(model),
		ollama.WithHTTPClient(&http.Client{Timeout: 5 * time.Minute}),
	)
	if err != nil {
		return nil, &Error{Backend: BackendOllama, Err: err}
	}
	logger.Info("Initializing Ollama client", "base_url", baseURL, "default_model", model)
	return &OllamaClient{model: o, name: model, baseURL: baseURL, logger: logger}, nil
}

// Generate implements the LLMClient interface
func (o *OllamaClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	o.logger.Debug("Generating text via Ollama", "model", o.name)
	out, err := generateContent(ctx, o.model, BackendOllama, o.name, prompt, params, nil)
	if err != nil && strings.Contains(err.Error(), "not found") && strings.Contains(err.Error(), "model") {
		o.logger.Warn("Ollama model not found", "model", o.name)
		return "", &Error{Backend: BackendOllama, Status: http.StatusNotFound,
			Err: fmt.Errorf("model '%s' not found. Please run: 'ollama pull %s': %w", o.name, o.name, err)}
	}
	return out, err
}
