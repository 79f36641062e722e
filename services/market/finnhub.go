// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package market

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Article is one company news item.
type Article struct {
	Title     string    `json:"title"`
	Summary   string    `json:"summary"`
	Source    string    `json:"source"`
	URL       string    `json:"url"`
	Published time.Time `json:"published"`
}

type finnhubNewsItem struct {
	Headline string `json:"headline"`
	Summary  string `json:"summary"`
	Source   string `json:"source"`
	URL      string `json:"url"`
	Datetime int64  `json:"datetime"`
}

// CompanyNews returns up to limit articles published between from and to.
// Items without a summary are skipped. An empty result is not an error.
func (c *Client) CompanyNews(ctx context.Context, symbol string, from, to time.Time, limit int) ([]Article, error) {
	if c.cfg.FinnhubKey == "" {
		return nil, &ProviderError{Provider: ProviderFinnhub, Op: "company-news", Err: ErrMissingCredentials}
	}

	base := fmt.Sprintf("%s/company-news?symbol=%s&from=%s&to=%s",
		strings.TrimRight(c.cfg.FinnhubURL, "/"),
		url.QueryEscape(symbol),
		from.UTC().Format(time.DateOnly),
		to.UTC().Format(time.DateOnly),
	)

	var items []finnhubNewsItem
	err := c.getJSON(ctx, request{
		provider: ProviderFinnhub,
		url:      base + "&token=" + url.QueryEscape(c.cfg.FinnhubKey),
		cacheKey: base,
	}, &items)
	if err != nil {
		return nil, err
	}

	var articles []Article
	for _, it := range items {
		if strings.TrimSpace(it.Summary) == "" {
			continue
		}
		articles = append(articles, Article{
			Title:     it.Headline,
			Summary:   it.Summary,
			Source:    it.Source,
			URL:       it.URL,
			Published: time.Unix(it.Datetime, 0).UTC(),
		})
		if limit > 0 && len(articles) >= limit {
			break
		}
	}
	return articles, nil
}
