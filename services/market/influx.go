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
	"log/slog"
	"time"

	"github.com/AleutianAI/hedgemind/pkg/validation"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// InfluxConfig locates a bucket of daily bars written by a price ingester.
type InfluxConfig struct {
	URL         string `yaml:"url"`
	Token       string `yaml:"-"`
	Org         string `yaml:"org"`
	Bucket      string `yaml:"bucket"`
	Measurement string `yaml:"measurement"`
}

// Enabled reports whether the configuration names a server.
func (c InfluxConfig) Enabled() bool {
	return c.URL != "" && c.Token != ""
}

// InfluxPrices serves History from InfluxDB.
//
// Rows are expected in the stock_prices layout: tag "ticker", fields
// open, high, low, close, adj_close and volume.
type InfluxPrices struct {
	client      influxdb2.Client
	query       api.QueryAPI
	bucket      string
	measurement string
	logger      *slog.Logger
}

// NewInfluxPrices connects to InfluxDB and checks its health.
func NewInfluxPrices(ctx context.Context, cfg InfluxConfig, logger *slog.Logger) (*InfluxPrices, error) {
	if !cfg.Enabled() {
		return nil, &ProviderError{Provider: "influxdb", Op: "connect", Err: ErrMissingCredentials}
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, &ProviderError{Provider: "influxdb", Op: "health", Err: err}
	}
	if health.Status != "pass" {
		client.Close()
		msg := string(health.Status)
		if health.Message != nil {
			msg = *health.Message
		}
		return nil, &ProviderError{Provider: "influxdb", Op: "health", Err: fmt.Errorf("not ready: %s", msg)}
	}

	p := newInfluxPricesWithAPI(client.QueryAPI(cfg.Org), cfg.Bucket, cfg.Measurement, logger)
	p.client = client
	return p, nil
}

func newInfluxPricesWithAPI(q api.QueryAPI, bucket, measurement string, logger *slog.Logger) *InfluxPrices {
	if bucket == "" {
		bucket = "financial-data"
	}
	if measurement == "" {
		measurement = "stock_prices"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InfluxPrices{query: q, bucket: bucket, measurement: measurement, logger: logger}
}

// History implements PriceSource.
func (p *InfluxPrices) History(ctx context.Context, symbol string, days int) (*PriceSeries, error) {
	// Flux has no parameter binding for these positions.
	if err := validation.ValidateTicker(symbol); err != nil {
		return nil, err
	}
	if days <= 0 {
		days = 365
	}

	flux := fmt.Sprintf(`
		from(bucket: %q)
		  |> range(start: -%dd)
		  |> filter(fn: (r) => r._measurement == %q)
		  |> filter(fn: (r) => r.ticker == %q)
		  |> pivot(rowKey:["_time"], columnKey: ["_field"], valueColumn: "_value")
		  |> sort(columns: ["_time"], desc: false)
	`, p.bucket, days, p.measurement, symbol)

	result, err := p.query.Query(ctx, flux)
	if err != nil {
		return nil, &ProviderError{Provider: "influxdb", Op: "query", Err: err}
	}
	if result == nil {
		return nil, fmt.Errorf("influx history for %s: %w", symbol, ErrNoData)
	}
	defer result.Close()

	series := &PriceSeries{Symbol: symbol, Currency: "USD"}
	for result.Next() {
		rec := result.Record()
		pt := PricePoint{Time: rec.Time().UTC()}
		if v, ok := rec.ValueByKey("open").(float64); ok {
			pt.Open = v
		}
		if v, ok := rec.ValueByKey("high").(float64); ok {
			pt.High = v
		}
		if v, ok := rec.ValueByKey("low").(float64); ok {
			pt.Low = v
		}
		if v, ok := rec.ValueByKey("close").(float64); ok {
			pt.Close = v
		}
		if v, ok := rec.ValueByKey("adj_close").(float64); ok {
			pt.AdjClose = v
		}
		if v, ok := rec.ValueByKey("volume").(int64); ok {
			pt.Volume = v
		}
		if pt.Close == 0 {
			continue
		}
		series.Points = append(series.Points, pt)
	}
	if err := result.Err(); err != nil {
		return nil, &ProviderError{Provider: "influxdb", Op: "read", Err: err}
	}
	if len(series.Points) == 0 {
		return nil, fmt.Errorf("influx history for %s: %w", symbol, ErrNoData)
	}

	p.logger.Debug("influx history",
		slog.String("symbol", symbol),
		slog.Int("points", len(series.Points)),
		slog.Time("last", series.Points[len(series.Points)-1].Time),
	)
	return series, nil
}

// Close releases the client.
func (p *InfluxPrices) Close() {
	if p.client != nil {
		p.client.Close()
	}
}

var _ PriceSource = (*InfluxPrices)(nil)

// FallbackPrices tries Primary and uses Secondary when Primary fails or is stale.
type FallbackPrices struct {
	Primary   PriceSource
	Secondary PriceSource
	Logger    *slog.Logger
}

// History implements PriceSource.
func (f *FallbackPrices) History(ctx context.Context, symbol string, days int) (*PriceSeries, error) {
	series, err := f.Primary.History(ctx, symbol, days)
	if err == nil && !Stale(series, time.Now()) {
		return series, nil
	}
	if f.Logger != nil {
		reason := "stale"
		if err != nil {
			reason = err.Error()
		}
		f.Logger.Info("price history fallback", slog.String("symbol", symbol), slog.String("reason", reason))
	}
	return f.Secondary.History(ctx, symbol, days)
}

// staleAfter is how old the newest bar may be before callers should fall back.
const staleAfter = 5 * 24 * time.Hour

// Stale reports whether series ends more than a few days ago.
func Stale(series *PriceSeries, now time.Time) bool {
	if series == nil || len(series.Points) == 0 {
		return true
	}
	return now.Sub(series.Points[len(series.Points)-1].Time) > staleAfter
}
