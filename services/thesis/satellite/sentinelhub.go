// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package satellite

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"golang.org/x/image/tiff"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

// Sentinel Hub endpoints.
const (
	SentinelHubTokenURL   = "https://services.sentinel-hub.com/oauth/token"
	SentinelHubProcessURL = "https://services.sentinel-hub.com/api/v1/process"
)

// MetricNDVIChange is the Sentinel-2 feature SentinelHubObserver computes.
const MetricNDVIChange = "NDVI_mean_30d_vs_prev30d"

const (
	ndviNote = "S2 NDVI over buffered bbox; simple 2-sample proxy for 30d windows"

	// Reflectance is returned as UINT16 scaled by this factor.
	reflectanceScale = 10000.0

	maxSceneBytes = 64 << 20
)

// ndviEvalscript returns red, near infrared and the data mask as UINT16
// bands so the TIFF decoder can read them.
const ndviEvalscript = `//VERSION=3
function setup() {
  return {
    input: ["B04", "B08", "dataMask"],
    output: { bands: 3, sampleType: "UINT16" }
  };
}
function evaluatePixel(s) {
  return [s.B04 * 10000, s.B08 * 10000, s.dataMask];
}
`

// ErrSentinelHubAuth indicates the token endpoint refused the client credentials.
var ErrSentinelHubAuth = errors.New("sentinel hub authentication failed")

// SentinelHubConfig configures SentinelHubObserver. The secret only comes
// from the environment.
type SentinelHubConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"-"`

	TokenURL   string `yaml:"token_url"`
	ProcessURL string `yaml:"process_url"`

	// Width is the output raster width in pixels.
	Width int `yaml:"width" validate:"gte=0"`

	MaxCloudCoverage int `yaml:"max_cloud_coverage" validate:"gte=0,lte=100"`

	// RequestsPerSecond limits process calls. Zero means unlimited.
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`

	Timeout time.Duration `yaml:"timeout"`
}

// DefaultSentinelHubConfig returns the public endpoints with conservative limits.
func DefaultSentinelHubConfig() SentinelHubConfig {
	return SentinelHubConfig{
		TokenURL:          SentinelHubTokenURL,
		ProcessURL:        SentinelHubProcessURL,
		Width:             768,
		MaxCloudCoverage:  40,
		RequestsPerSecond: 2,
		Timeout:           90 * time.Second,
	}
}

// Enabled reports whether both client credentials are set.
func (c SentinelHubConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// SentinelHubOption configures a SentinelHubObserver.
type SentinelHubOption func(*SentinelHubObserver)

// WithSentinelHubHTTPClient sets the base client used for tokens and scenes.
func WithSentinelHubHTTPClient(c *http.Client) SentinelHubOption {
	return func(o *SentinelHubObserver) {
		o.base = c
	}
}

// WithSentinelHubLogger sets the logger.
func WithSentinelHubLogger(l *slog.Logger) SentinelHubOption {
	return func(o *SentinelHubObserver) {
		o.logger = l
	}
}

// WithSentinelHubClock sets the time source for observation windows.
func WithSentinelHubClock(now func() time.Time) SentinelHubOption {
	return func(o *SentinelHubObserver) {
		o.now = now
	}
}

// SentinelHubObserver measures Sentinel-2 NDVI change through the Sentinel
// Hub Process API. Other features are reported as gaps.
//
// Thread Safety: safe for concurrent use.
type SentinelHubObserver struct {
	cfg     SentinelHubConfig
	base    *http.Client
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
	now     func() time.Time
}

// NewSentinelHubObserver creates an observer. Empty endpoint, width, cloud
// and timeout fields take DefaultSentinelHubConfig values.
func NewSentinelHubObserver(cfg SentinelHubConfig, opts ...SentinelHubOption) (*SentinelHubObserver, error) {
	if !cfg.Enabled() {
		return nil, errors.New("sentinel hub: client id and secret are required")
	}
	def := DefaultSentinelHubConfig()
	if cfg.TokenURL == "" {
		cfg.TokenURL = def.TokenURL
	}
	if cfg.ProcessURL == "" {
		cfg.ProcessURL = def.ProcessURL
	}
	if cfg.Width <= 0 {
		cfg.Width = def.Width
	}
	if cfg.MaxCloudCoverage <= 0 {
		cfg.MaxCloudCoverage = def.MaxCloudCoverage
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	o := &SentinelHubObserver{
		cfg:    cfg,
		base:   http.DefaultClient,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	o.limiter = rate.NewLimiter(limit, 1)

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	// The token source keeps this context for refreshes.
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, o.base)
	o.http = cc.Client(tokenCtx)
	o.http.Timeout = cfg.Timeout
	return o, nil
}

// Observe computes every S2 NDVI feature in plan.
func (o *SentinelHubObserver) Observe(ctx context.Context, plan ObservationPlan) (ObservationResult, error) {
	result := ObservationResult{Ticker: plan.Ticker}
	if !plan.UseSatellite || len(plan.Targets) == 0 {
		result.SummaryNotes = plan.Notes
		if result.SummaryNotes == "" {
			result.SummaryNotes = "Satellite not applicable"
		}
		return result, nil
	}

	for _, t := range plan.Targets {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if !t.HasGeometry() {
			result.Gaps = append(result.Gaps, fmt.Sprintf("%s: no geometry supplied", t.Name))
			continue
		}
		for _, s := range t.Sensors {
			for _, f := range s.Features {
				if s.Type != SensorS2 || f != MetricNDVIChange {
					result.Gaps = append(result.Gaps, fmt.Sprintf("%s: %s %s is not measured", t.Name, s.Type, f))
					continue
				}
				obs, err := o.ndviChange(ctx, t)
				if err != nil {
					if errors.Is(err, ErrSentinelHubAuth) || ctx.Err() != nil {
						return result, err
					}
					result.Gaps = append(result.Gaps, fmt.Sprintf("%s: %v", t.Name, err))
					continue
				}
				result.Observations = append(result.Observations, obs)
			}
		}
	}

	if len(result.Observations) == 0 {
		result.Gaps = append(result.Gaps, NoUsableScenes)
	}
	return result, nil
}

// ndviChange compares mean NDVI over the last 30 days with the 30 days before.
func (o *SentinelHubObserver) ndviChange(ctx context.Context, t Target) (Observation, error) {
	bbox, err := BBox(t)
	if err != nil {
		return Observation{}, err
	}
	now := o.now().UTC()

	curr, fetchedCurr, err := o.fetchStack(ctx, bbox, now)
	if err != nil {
		return Observation{}, err
	}
	prev, fetchedPrev, err := o.fetchStack(ctx, bbox, now.AddDate(0, 0, -30))
	if err != nil {
		return Observation{}, err
	}

	currMean, currValid := stackMean(curr)
	prevMean, _ := stackMean(prev)

	obs := Observation{
		Target:  t.Name,
		Sensor:  SensorS2,
		Metric:  MetricNDVIChange,
		Quality: QualityFromValidRatio(currValid, 0),
		AsOf:    now.Format(time.RFC3339),
		Provenance: map[string]any{
			"bbox":         bbox[:],
			"samples_curr": fetchedCurr,
			"samples_prev": fetchedPrev,
		},
		Note: ndviNote,
	}
	if !math.IsNaN(currMean) && !math.IsNaN(prevMean) {
		v := math.Round(PctChange(currMean, prevMean)*100) / 100
		obs.Value = &v
	}
	return obs, nil
}

// sceneStat is the NDVI summary of one decoded scene.
type sceneStat struct {
	mean  float64
	valid float64
}

// fetchStack samples two scenes ending at end and 15 days earlier. It
// returns the usable scene stats and how many scenes were downloaded.
func (o *SentinelHubObserver) fetchStack(ctx context.Context, bbox [4]float64, end time.Time) ([]sceneStat, int, error) {
	var stats []sceneStat
	fetched := 0
	for _, dt := range []time.Time{end, end.AddDate(0, 0, -15)} {
		img, ok, err := o.fetchScene(ctx, bbox, dt.AddDate(0, 0, -7), dt)
		if err != nil {
			return nil, 0, err
		}
		if !ok {
			continue
		}
		fetched++
		mean, valid := sceneNDVI(img)
		if !math.IsNaN(mean) {
			stats = append(stats, sceneStat{mean: mean, valid: valid})
		}
	}
	return stats, fetched, nil
}

// fetchScene downloads one scene. Refused or unreadable scenes return
// ok=false so the caller can carry on with fewer samples.
func (o *SentinelHubObserver) fetchScene(ctx context.Context, bbox [4]float64, from, to time.Time) (image.Image, bool, error) {
	payload := map[string]any{
		"input": map[string]any{
			"bounds": map[string]any{"bbox": bbox[:]},
			"data": []map[string]any{{
				"type": "S2L2A",
				"dataFilter": map[string]any{
					"timeRange": map[string]string{
						"from": from.UTC().Format(time.RFC3339),
						"to":   to.UTC().Format(time.RFC3339),
					},
					"maxCloudCoverage": o.cfg.MaxCloudCoverage,
				},
			}},
		},
		"output": map[string]any{
			"width": o.cfg.Width,
			"responses": []map[string]any{{
				"identifier": "default",
				"format":     map[string]string{"type": "image/tiff"},
			}},
		},
		"evalscript": ndviEvalscript,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, false, fmt.Errorf("encoding process request: %w", err)
	}

	if err := o.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, false, fmt.Errorf("sentinel hub rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.ProcessURL, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("building process request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/tiff")

	resp, err := o.http.Do(req)
	if err != nil {
		var retrieve *oauth2.RetrieveError
		if errors.As(err, &retrieve) {
			return nil, false, fmt.Errorf("%w: %v", ErrSentinelHubAuth, retrieve)
		}
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		o.logger.Warn("sentinel hub request failed", slog.String("error", err.Error()))
		return nil, false, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		o.logger.Debug("sentinel hub scene skipped",
			slog.Int("status", resp.StatusCode),
			slog.String("to", to.Format(time.DateOnly)))
		return nil, false, nil
	}

	img, err := tiff.Decode(io.LimitReader(resp.Body, maxSceneBytes))
	if err != nil {
		o.logger.Warn("sentinel hub scene unreadable", slog.String("error", err.Error()))
		return nil, false, nil
	}
	return img, true, nil
}

// sceneNDVI returns the mean NDVI over valid pixels and the valid pixel
// ratio of a scene rendered by ndviEvalscript.
func sceneNDVI(img image.Image) (float64, float64) {
	b := img.Bounds()
	n := b.Dx() * b.Dy()
	if n == 0 {
		return math.NaN(), 0
	}
	values := make([]float64, 0, n)
	mask := make([]bool, 0, n)
	valid := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.RGBA64Model.Convert(img.At(x, y)).(color.RGBA64)
			red := float64(c.R) / reflectanceScale
			nir := float64(c.G) / reflectanceScale
			ok := c.B > 0
			if ok {
				valid++
			}
			values = append(values, NDVI(nir, red))
			mask = append(mask, ok)
		}
	}
	return MeanOverMask(values, mask), float64(valid) / float64(n)
}

// stackMean averages scene means and valid ratios. An empty stack has a
// NaN mean.
func stackMean(stats []sceneStat) (float64, float64) {
	if len(stats) == 0 {
		return math.NaN(), 0
	}
	var mean, valid float64
	for _, s := range stats {
		mean += s.mean
		valid += s.valid
	}
	n := float64(len(stats))
	return mean / n, valid / n
}

// NDVI is (nir-red)/(nir+red) with a small term keeping dark pixels finite.
func NDVI(nir, red float64) float64 {
	return (nir - red) / (nir + red + 1e-6)
}

// MeanOverMask averages the non-NaN values whose mask entry is true. It
// returns NaN when nothing qualifies.
func MeanOverMask(values []float64, mask []bool) float64 {
	var sum float64
	n := 0
	for i, v := range values {
		if i >= len(mask) || !mask[i] || math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// QualityFromValidRatio weighs clear-pixel coverage and recency equally.
// Scenes 14 or more days old get no recency credit. The result is in [0, 1].
func QualityFromValidRatio(validRatio, sceneAgeDays float64) float64 {
	q := 0.5*validRatio + 0.5*math.Max(0, 1-sceneAgeDays/14)
	return math.Max(0, math.Min(1, q))
}

// BBox returns [minLon, minLat, maxLon, maxLat] for t. Polygons use their
// bounds and points are buffered by Radius kilometres.
func BBox(t Target) ([4]float64, error) {
	if len(t.PolygonGeoJSON) > 0 {
		return geoJSONBounds(t.PolygonGeoJSON)
	}
	if t.Lat == nil || t.Lon == nil {
		return [4]float64{}, errors.New("target requires lat/lon or polygon_geojson")
	}
	r := t.Radius()
	lat, lon := *t.Lat, *t.Lon
	dlat := r / 110.574
	dlon := r / (111.320 * math.Cos(lat*math.Pi/180))
	return [4]float64{lon - dlon, lat - dlat, lon + dlon, lat + dlat}, nil
}

// geoJSONBounds walks the coordinates of a geometry or feature.
func geoJSONBounds(g map[string]any) ([4]float64, error) {
	if geom, ok := g["geometry"].(map[string]any); ok {
		g = geom
	}
	b := [4]float64{math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)}
	points := 0

	var walk func(v any)
	walk = func(v any) {
		arr, ok := v.([]any)
		if !ok {
			return
		}
		if len(arr) >= 2 {
			x, xok := asFloat(arr[0])
			y, yok := asFloat(arr[1])
			if xok && yok {
				b[0], b[1] = math.Min(b[0], x), math.Min(b[1], y)
				b[2], b[3] = math.Max(b[2], x), math.Max(b[3], y)
				points++
				return
			}
		}
		for _, e := range arr {
			walk(e)
		}
	}
	walk(g["coordinates"])

	if points == 0 {
		return [4]float64{}, errors.New("polygon_geojson has no coordinates")
	}
	return b, nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
