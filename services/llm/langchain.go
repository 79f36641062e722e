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
	"strings"

	"github.com/tmc/langchaingo/llms"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("hedgemind.llm")

// callOptions maps GenerationParams onto langchaingo call options.
func callOptions(params GenerationParams) []llms.CallOption {
	var opts []llms.CallOption
	if params.Temperature != nil {
		opts = append(opts, llms.WithTemperature(float64(*params.Temperature)))
	}
	if params.MaxTokens != nil {
		opts = append(opts, llms.WithMaxTokens(*params.MaxTokens))
	}
	if params.TopP != nil {
		opts = append(opts, llms.WithTopP(float64(*params.TopP)))
	}
	if params.TopK != nil {
		opts = append(opts, llms.WithTopK(*params.TopK))
	}
	if len(params.Stop) > 0 {
		opts = append(opts, llms.WithStopWords(params.Stop))
	}
	return opts
}

// messages builds the system and human turns for one prompt.
func messages(prompt string, params GenerationParams) []llms.MessageContent {
	var msgs []llms.MessageContent
	if params.System != "" {
		msgs = append(msgs, llms.TextParts(llms.ChatMessageTypeSystem, params.System))
	}
	return append(msgs, llms.TextParts(llms.ChatMessageTypeHuman, prompt))
}

// generateContent runs one langchaingo call and joins the returned choices.
// statusOf extracts an HTTP status from backend errors and may be nil.
func generateContent(ctx context.Context, model llms.Model, backend, modelName, prompt string,
	params GenerationParams, statusOf func(error) int) (string, error) {

	ctx, span := tracer.Start(ctx, backend+".Generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.backend", backend),
		attribute.String("llm.model", modelName),
		attribute.Int("llm.prompt_chars", len(prompt)),
	)

	resp, err := model.GenerateContent(ctx, messages(prompt, params), callOptions(params)...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		status := 0
		if statusOf != nil {
			status = statusOf(err)
		}
		return "", &Error{Backend: backend, Status: status, Err: err}
	}

	var b strings.Builder
	for _, choice := range resp.Choices {
		if choice == nil {
			continue
		}
		b.WriteString(choice.Content)
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		err := fmt.Errorf("%w: %d choices", ErrEmptyResponse, len(resp.Choices))
		span.SetStatus(codes.Error, err.Error())
		return "", &Error{Backend: backend, Err: err}
	}
	span.SetAttributes(attribute.Int("llm.response_chars", len(text)))
	return text, nil
}
