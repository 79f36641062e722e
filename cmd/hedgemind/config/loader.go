// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads ~/.hedgemind/hedgemind.yaml.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/hedgemind/services/llm"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

var validate = validator.New()

// DefaultPath returns ~/.hedgemind/hedgemind.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".hedgemind", "hedgemind.yaml"), nil
}

// Load reads path, creating it with defaults when missing. Values absent
// from the file keep their defaults; environment variables are applied last.
func Load(path string) (*HedgemindConfig, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := createDefault(path); err != nil {
			return nil, err
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	ApplyEnv(cfg, os.LookupEnv)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes data over DefaultConfig.
func Parse(data []byte) (*HedgemindConfig, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse the config: %w", err)
	}
	return &cfg, nil
}

// Validate checks struct tags.
func Validate(cfg *HedgemindConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func createDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv fills secrets and endpoints from the environment. The LLM key is
// sealed and the source string dropped.
func ApplyEnv(cfg *HedgemindConfig, lookup LookupFunc) {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	switch strings.ToLower(cfg.LLM.Backend) {
	case llm.BackendOpenAI:
		if v, ok := get("OPENAI_API_KEY"); ok {
			cfg.LLM.Key = llm.SealKey([]byte(v))
		}
	case llm.BackendGemini:
		if v, ok := get("GOOGLE_API_KEY"); ok {
			cfg.LLM.Key = llm.SealKey([]byte(v))
		}
	case llm.BackendOllama:
		if v, ok := get("OLLAMA_BASE_URL"); ok {
			cfg.LLM.BaseURL = v
		}
	}

	if v, ok := get("FINNHUB_API_KEY"); ok {
		cfg.Market.FinnhubKey = v
	}
	if v, ok := get("REDDIT_CLIENT_ID"); ok {
		cfg.Market.RedditClientID = v
	}
	if v, ok := get("REDDIT_CLIENT_SECRET"); ok {
		cfg.Market.RedditClientSecret = v
	}

	influx := &cfg.Market.Influx
	for key, dst := range map[string]*string{
		"INFLUXDB_URL":    &influx.URL,
		"INFLUXDB_TOKEN":  &influx.Token,
		"INFLUXDB_ORG":    &influx.Org,
		"INFLUXDB_BUCKET": &influx.Bucket,
	} {
		if v, ok := get(key); ok {
			*dst = v
		}
	}

	if v, ok := get("SENTINELHUB_CLIENT_ID"); ok {
		cfg.Satellite.SentinelHub.ClientID = v
	}
	if v, ok := get("SENTINELHUB_CLIENT_SECRET"); ok {
		cfg.Satellite.SentinelHub.ClientSecret = v
	}

	if v, ok := get("HEDGEMIND_ENV"); ok {
		cfg.Telemetry.Environment = v
	}
}

// ExpandHome replaces a leading ~ with the home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
