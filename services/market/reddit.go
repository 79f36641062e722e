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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const redditPageSize = 100

// Post is one Reddit submission.
type Post struct {
	Subreddit string    `json:"subreddit"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Author    string    `json:"author"`
	Created   time.Time `json:"created"`
}

type redditListing struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Data struct {
				Title      string  `json:"title"`
				Selftext   string  `json:"selftext"`
				Author     string  `json:"author"`
				CreatedUTC float64 `json:"created_utc"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditToken struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// redditAuth returns a cached application-only OAuth token.
func (c *Client) redditAuth(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}
	if c.cfg.RedditClientID == "" || c.cfg.RedditClientSecret == "" {
		return "", &ProviderError{Provider: ProviderReddit, Op: "auth", Err: ErrMissingCredentials}
	}
	if err := c.wait(ctx, ProviderReddit); err != nil {
		return "", &ProviderError{Provider: ProviderReddit, Op: "rate limit", Err: err}
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RedditAuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &ProviderError{Provider: ProviderReddit, Op: "auth", Err: err}
	}
	req.SetBasicAuth(c.cfg.RedditClientID, c.cfg.RedditClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &ProviderError{Provider: ProviderReddit, Op: "auth", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &StatusError{Provider: ProviderReddit, Code: resp.StatusCode, Status: resp.Status}
	}

	var tok redditToken
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", &ParseError{Provider: ProviderReddit, Err: err}
	}
	if tok.AccessToken == "" {
		return "", &ParseError{Provider: ProviderReddit, Err: errors.New("empty access token")}
	}

	expires := time.Duration(tok.ExpiresIn) * time.Second
	if expires <= 0 {
		expires = time.Hour
	}
	c.token = tok.AccessToken
	// Refresh a minute early.
	c.tokenExpiry = time.Now().Add(expires - time.Minute)
	return c.token, nil
}

// SearchPosts returns recent posts mentioning ticker in each subreddit.
//
// Description:
//
//	Searches each subreddit newest first, reading at most limit posts per
//	subreddit and stopping once posts are older than daysBack. Removed and
//	deleted bodies are skipped. A subreddit that fails is logged and
//	skipped; the call only fails when every subreddit fails.
//
// Outputs:
//
//	[]Post - Posts in subreddit order, newest first within each.
//	error - The last subreddit error when nothing could be read.
func (c *Client) SearchPosts(ctx context.Context, subreddits []string, ticker string, daysBack, limit int) ([]Post, error) {
	token, err := c.redditAuth(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -daysBack)
	var (
		posts   []Post
		lastErr error
		okCount int
	)

	for _, sub := range subreddits {
		got, err := c.searchSubreddit(ctx, token, sub, ticker, cutoff, limit)
		if err != nil {
			c.logger.Warn("reddit search failed",
				slog.String("subreddit", sub),
				slog.String("error", err.Error()),
			)
			lastErr = err
			continue
		}
		okCount++
		posts = append(posts, got...)
	}

	if okCount == 0 && lastErr != nil {
		return nil, lastErr
	}
	return posts, nil
}

func (c *Client) searchSubreddit(ctx context.Context, token, sub, ticker string, cutoff time.Time, limit int) ([]Post, error) {
	var (
		out   []Post
		after string
		seen  int
	)
	header := http.Header{"Authorization": {"bearer " + token}}

	for limit <= 0 || seen < limit {
		page := redditPageSize
		if limit > 0 && limit-seen < page {
			page = limit - seen
		}
		u := fmt.Sprintf("%s/r/%s/search?q=%s&restrict_sr=1&sort=new&t=all&raw_json=1&limit=%d",
			strings.TrimRight(c.cfg.RedditURL, "/"), url.PathEscape(sub), url.QueryEscape(ticker), page)
		if after != "" {
			u += "&after=" + url.QueryEscape(after)
		}

		var listing redditListing
		if err := c.getJSON(ctx, request{provider: ProviderReddit, url: u, header: header}, &listing); err != nil {
			return out, err
		}

		children := listing.Data.Children
		if len(children) == 0 {
			break
		}
		reachedCutoff := false
		for _, ch := range children {
			seen++
			d := ch.Data
			created := time.Unix(int64(d.CreatedUTC), 0).UTC()
			if created.Before(cutoff) {
				reachedCutoff = true
				break
			}
			body := strings.ToLower(strings.TrimSpace(d.Selftext))
			if body == "[removed]" || body == "[deleted]" {
				continue
			}
			out = append(out, Post{
				Subreddit: sub,
				Title:     d.Title,
				Body:      d.Selftext,
				Author:    d.Author,
				Created:   created,
			})
		}

		if reachedCutoff || listing.Data.After == "" {
			break
		}
		after = listing.Data.After
	}
	return out, nil
}
