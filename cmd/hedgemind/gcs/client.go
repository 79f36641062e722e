// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gcs uploads finished reports to Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// ErrNoBucket is returned when no bucket is configured.
var ErrNoBucket = errors.New("no GCS bucket configured")

type Client struct {
	storageClient *storage.Client
	ProjectID     string
	BucketName    string
	Prefix        string
}

// NewClient builds a storage client. An empty saKeyPath uses application
// default credentials.
func NewClient(ctx context.Context, projectID, bucketName, prefix, saKeyPath string, opts ...option.ClientOption) (*Client, error) {
	if bucketName == "" {
		return nil, ErrNoBucket
	}
	if saKeyPath != "" {
		if _, err := os.Stat(saKeyPath); errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("service account key not found at path: %s", saKeyPath)
		}
		opts = append(opts, option.WithCredentialsFile(saKeyPath))
	}

	storageClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &Client{
		storageClient: storageClient,
		ProjectID:     projectID,
		BucketName:    bucketName,
		Prefix:        prefix,
	}, nil
}

// ObjectName is "<prefix>/<SYMBOL>/<YYYY-MM-DD>/<runID>.<ext>".
func ObjectName(prefix, symbol, runID, ext string, day time.Time) string {
	name := fmt.Sprintf("%s/%s/%s.%s", strings.ToUpper(symbol), day.Format(time.DateOnly), runID, ext)
	if prefix == "" {
		return name
	}
	return path.Join(strings.Trim(prefix, "/"), name)
}

// Upload copies r to object and returns its gs:// URI.
func (c *Client) Upload(ctx context.Context, object, contentType string, r io.Reader) (string, error) {
	writer := c.storageClient.Bucket(c.BucketName).Object(object).NewWriter(ctx)
	writer.ContentType = contentType
	writer.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := io.Copy(writer, r); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("failed to copy report to GCS object %s: %w", object, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer for %s: %w", object, err)
	}
	return fmt.Sprintf("gs://%s/%s", c.BucketName, object), nil
}

func (c *Client) Close() error {
	return c.storageClient.Close()
}
