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
	"math"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// --- Yahoo Finance wire types ---

type yahooChartResponse struct {
	Chart struct {
		Result []yahooChartResult `json:"result"`
		Error  *yahooError        `json:"error"`
	} `json:"chart"`
}

type yahooError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type yahooChartResult struct {
	Meta struct {
		Currency string `json:"currency"`
		Symbol   string `json:"symbol"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []float64 `json:"open"`
			High   []float64 `json:"high"`
			Low    []float64 `json:"low"`
			Close  []float64 `json:"close"`
			Volume []int64   `json:"volume"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

// yNum is Yahoo's {"raw": 1.0, "fmt": "1.00"} number wrapper.
type yNum struct {
	Raw *float64 `json:"raw"`
	Fmt string   `json:"fmt"`
}

type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []quoteSummaryResult `json:"result"`
		Error  *yahooError          `json:"error"`
	} `json:"quoteSummary"`
}

type quoteSummaryResult struct {
	Price struct {
		LongName  string `json:"longName"`
		ShortName string `json:"shortName"`
		MarketCap yNum   `json:"marketCap"`
	} `json:"price"`
	SummaryDetail struct {
		ForwardPE yNum `json:"forwardPE"`
	} `json:"summaryDetail"`
	DefaultKeyStatistics struct {
		ForwardPE yNum `json:"forwardPE"`
	} `json:"defaultKeyStatistics"`
	FinancialData struct {
		RevenueGrowth     yNum `json:"revenueGrowth"`
		ProfitMargins     yNum `json:"profitMargins"`
		OperatingCashflow yNum `json:"operatingCashflow"`
		FreeCashflow      yNum `json:"freeCashflow"`
		DebtToEquity      yNum `json:"debtToEquity"`
	} `json:"financialData"`
	SummaryProfile struct {
		Sector   string `json:"sector"`
		Industry string `json:"industry"`
	} `json:"summaryProfile"`
	IncomeStatementHistoryQuarterly struct {
		IncomeStatementHistory []struct {
			EndDate      yNum `json:"endDate"`
			TotalRevenue yNum `json:"totalRevenue"`
			NetIncome    yNum `json:"netIncome"`
		} `json:"incomeStatementHistory"`
	} `json:"incomeStatementHistoryQuarterly"`
	EarningsHistory struct {
		History []struct {
			Quarter   yNum `json:"quarter"`
			EPSActual yNum `json:"epsActual"`
		} `json:"history"`
	} `json:"earningsHistory"`
	InsiderTransactions struct {
		Transactions []struct {
			FilerName       string `json:"filerName"`
			FilerRelation   string `json:"filerRelation"`
			TransactionText string `json:"transactionText"`
			Ownership       string `json:"ownership"`
			StartDate       yNum   `json:"startDate"`
			Value           yNum   `json:"value"`
			Shares          yNum   `json:"shares"`
		} `json:"transactions"`
	} `json:"insiderTransactions"`
}

// --- Public types ---

// PricePoint is one OHLCV bar.
type PricePoint struct {
	Time     time.Time `json:"time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	AdjClose float64   `json:"adj_close"`
	Volume   int64     `json:"volume"`
}

// PriceSeries is an ascending list of bars for one symbol.
type PriceSeries struct {
	Symbol   string       `json:"symbol"`
	Currency string       `json:"currency"`
	Points   []PricePoint `json:"points"`
}

// PriceSource supplies daily price history.
type PriceSource interface {
	// History returns daily bars covering the last days calendar days.
	History(ctx context.Context, symbol string, days int) (*PriceSeries, error)
}

// PriceTrend summarizes the change over a series.
type PriceTrend struct {
	StartDate     string  `json:"start_date"`
	EndDate       string  `json:"end_date"`
	StartPrice    float64 `json:"start_price"`
	EndPrice      float64 `json:"end_price"`
	PercentChange float64 `json:"percent_change"`
}

// Fundamentals holds the headline valuation and quality metrics.
// Nil fields were not reported by the provider.
type Fundamentals struct {
	Symbol            string   `json:"symbol"`
	Name              string   `json:"name"`
	Sector            string   `json:"sector"`
	Industry          string   `json:"industry"`
	MarketCap         *float64 `json:"market_cap"`
	ForwardPE         *float64 `json:"forward_pe"`
	RevenueGrowth     *float64 `json:"revenue_growth"`
	ProfitMargins     *float64 `json:"profit_margins"`
	OperatingCashflow *float64 `json:"operating_cashflow"`
	FreeCashflow      *float64 `json:"free_cashflow"`
	DebtToEquity      *float64 `json:"debt_to_equity"`
}

// Growth is a period-over-period percent change.
type Growth struct {
	QoQ *float64 `json:"qoq"`
	YoY *float64 `json:"yoy"`
}

// Quarter is one fiscal quarter's results.
type Quarter struct {
	Period          string   `json:"period"`
	Revenue         *float64 `json:"revenue"`
	NetIncome       *float64 `json:"net_income"`
	EPSDiluted      *float64 `json:"eps_diluted"`
	RevenueGrowth   Growth   `json:"revenue_growth"`
	NetIncomeGrowth Growth   `json:"net_income_growth"`
}

// EarningsHistory lists quarters in ascending order.
type EarningsHistory struct {
	Symbol   string    `json:"symbol"`
	AsOf     string    `json:"as_of"`
	Quarters []Quarter `json:"quarters"`
}

// Insider transaction types.
const (
	InsiderSale     = "Sale"
	InsiderPurchase = "Purchase"
	InsiderGift     = "Gift"
	InsiderExercise = "Option Exercise"
	InsiderAward    = "Award"
	InsiderOther    = "Other"
)

// InsiderTransaction is one insider filing.
type InsiderTransaction struct {
	Date     time.Time `json:"date"`
	Filer    string    `json:"filer"`
	Relation string    `json:"relation"`
	Type     string    `json:"transaction"`
	Text     string    `json:"text"`
	Shares   float64   `json:"shares"`
	Value    float64   `json:"value"`
	Price    *float64  `json:"price"`
}

// InsiderSummary aggregates a set of transactions.
type InsiderSummary struct {
	TotalTransactions int            `json:"total_transactions"`
	NetShares         float64        `json:"net_shares"`
	TotalValueUSD     float64        `json:"total_value_usd"`
	ByType            map[string]int `json:"by_type_counts"`
}

// InsiderActivity is the recent insider record for a symbol.
type InsiderActivity struct {
	Symbol       string               `json:"symbol"`
	AsOf         string               `json:"as_of"`
	Transactions []InsiderTransaction `json:"transactions"`
	Summary      InsiderSummary       `json:"summary"`
}

// --- Chart API ---

// Chart fetches bars from the v8 chart API.
//
// Inputs:
//
//	symbol - Sanitized ticker.
//	rng - Yahoo range such as "1mo" or "1y".
//	interval - Bar size such as "1d".
//
// Outputs:
//
//	*PriceSeries - Bars with missing values dropped.
//	error - StatusError, ParseError, ProviderError or ErrNoData.
func (c *Client) Chart(ctx context.Context, symbol, rng, interval string) (*PriceSeries, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?range=%s&interval=%s&events=history",
		strings.TrimRight(c.cfg.YahooChartURL, "/"),
		url.PathEscape(symbol), url.QueryEscape(rng), url.QueryEscape(interval),
	)

	var resp yahooChartResponse
	if err := c.getJSON(ctx, request{provider: ProviderYahoo, url: u}, &resp); err != nil {
		return nil, err
	}
	if resp.Chart.Error != nil {
		return nil, &ProviderError{Provider: ProviderYahoo, Op: "chart", Err: fmt.Errorf("%s: %s", resp.Chart.Error.Code, resp.Chart.Error.Description)}
	}
	if len(resp.Chart.Result) == 0 {
		return nil, fmt.Errorf("chart for %s: %w", symbol, ErrNoData)
	}

	res := resp.Chart.Result[0]
	series := &PriceSeries{Symbol: res.Meta.Symbol, Currency: res.Meta.Currency}
	if series.Symbol == "" {
		series.Symbol = symbol
	}
	if len(res.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("chart for %s: incomplete indicators: %w", symbol, ErrNoData)
	}

	q := res.Indicators.Quote[0]
	var adj []float64
	if len(res.Indicators.AdjClose) > 0 {
		adj = res.Indicators.AdjClose[0].AdjClose
	}

	for i, ts := range res.Timestamp {
		if len(q.Close) <= i || len(q.Open) <= i || len(q.High) <= i || len(q.Low) <= i {
			continue
		}
		// Yahoo sends null for halted sessions, which decodes as zero.
		if q.Close[i] == 0 {
			continue
		}
		p := PricePoint{
			Time:     time.Unix(ts, 0).UTC(),
			Open:     q.Open[i],
			High:     q.High[i],
			Low:      q.Low[i],
			Close:    q.Close[i],
			AdjClose: q.Close[i],
		}
		if len(adj) > i && adj[i] != 0 {
			p.AdjClose = adj[i]
		}
		if len(q.Volume) > i {
			p.Volume = q.Volume[i]
		}
		series.Points = append(series.Points, p)
	}

	if len(series.Points) == 0 {
		return nil, fmt.Errorf("chart for %s: %w", symbol, ErrNoData)
	}
	return series, nil
}

// yahooPrices serves History from the chart API.
type yahooPrices struct {
	c *Client
}

func (y yahooPrices) History(ctx context.Context, symbol string, days int) (*PriceSeries, error) {
	series, err := y.c.Chart(ctx, symbol, rangeFor(days), "1d")
	if err != nil {
		return nil, err
	}
	return series.Since(time.Now().AddDate(0, 0, -days)), nil
}

// rangeFor picks the smallest Yahoo range covering days.
func rangeFor(days int) string {
	switch {
	case days <= 5:
		return "5d"
	case days <= 31:
		return "1mo"
	case days <= 93:
		return "3mo"
	case days <= 186:
		return "6mo"
	case days <= 366:
		return "1y"
	case days <= 731:
		return "2y"
	case days <= 1827:
		return "5y"
	}
	return "max"
}

// Since returns a copy of s holding only points at or after t.
// The original series is returned when nothing would be removed.
func (s *PriceSeries) Since(t time.Time) *PriceSeries {
	idx := sort.Search(len(s.Points), func(i int) bool { return !s.Points[i].Time.Before(t) })
	if idx == 0 {
		return s
	}
	out := *s
	out.Points = append([]PricePoint(nil), s.Points[idx:]...)
	return &out
}

// Trend computes the change between the first and last close.
func (s *PriceSeries) Trend() (PriceTrend, error) {
	if s == nil || len(s.Points) == 0 {
		return PriceTrend{}, ErrNoData
	}
	first, last := s.Points[0], s.Points[len(s.Points)-1]
	return PriceTrend{
		StartDate:     first.Time.Format(time.DateOnly),
		EndDate:       last.Time.Format(time.DateOnly),
		StartPrice:    round2(first.Close),
		EndPrice:      round2(last.Close),
		PercentChange: round2((last.Close - first.Close) / first.Close * 100),
	}, nil
}

// Rebased returns closes scaled so the first equals 100.
func (s *PriceSeries) Rebased() []float64 {
	if len(s.Points) == 0 || s.Points[0].Close == 0 {
		return nil
	}
	base := s.Points[0].Close
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = round2(p.Close / base * 100)
	}
	return out
}

// PriceTrend returns the one-year trend for symbol.
func (c *Client) PriceTrend(ctx context.Context, symbol string) (PriceTrend, error) {
	series, err := c.prices.History(ctx, symbol, 365)
	if err != nil {
		return PriceTrend{}, err
	}
	return series.Trend()
}

// --- quoteSummary API ---

// quoteSummary fetches the named modules for symbol.
func (c *Client) quoteSummary(ctx context.Context, symbol string, modules ...string) (*quoteSummaryResult, error) {
	base := fmt.Sprintf("%s/v10/finance/quoteSummary/%s?modules=%s",
		strings.TrimRight(c.cfg.YahooSummaryURL, "/"),
		url.PathEscape(symbol), url.QueryEscape(strings.Join(modules, ",")),
	)
	u := base
	if crumb := c.yahooCrumb(ctx); crumb != "" {
		u += "&crumb=" + url.QueryEscape(crumb)
	}

	var resp quoteSummaryResponse
	if err := c.getJSON(ctx, request{provider: ProviderYahoo, url: u, cacheKey: base}, &resp); err != nil {
		return nil, err
	}
	if resp.QuoteSummary.Error != nil {
		return nil, &ProviderError{Provider: ProviderYahoo, Op: "quoteSummary",
			Err: fmt.Errorf("%s: %s", resp.QuoteSummary.Error.Code, resp.QuoteSummary.Error.Description)}
	}
	if len(resp.QuoteSummary.Result) == 0 {
		return nil, fmt.Errorf("quoteSummary for %s: %w", symbol, ErrNoData)
	}
	return &resp.QuoteSummary.Result[0], nil
}

// Fundamentals returns valuation and quality metrics for symbol.
func (c *Client) Fundamentals(ctx context.Context, symbol string) (*Fundamentals, error) {
	r, err := c.quoteSummary(ctx, symbol, "price", "summaryDetail", "defaultKeyStatistics", "financialData", "summaryProfile")
	if err != nil {
		return nil, err
	}

	f := &Fundamentals{
		Symbol:            symbol,
		Name:              r.Price.LongName,
		Sector:            r.SummaryProfile.Sector,
		Industry:          r.SummaryProfile.Industry,
		MarketCap:         r.Price.MarketCap.Raw,
		ForwardPE:         r.SummaryDetail.ForwardPE.Raw,
		RevenueGrowth:     r.FinancialData.RevenueGrowth.Raw,
		ProfitMargins:     r.FinancialData.ProfitMargins.Raw,
		OperatingCashflow: r.FinancialData.OperatingCashflow.Raw,
		FreeCashflow:      r.FinancialData.FreeCashflow.Raw,
		DebtToEquity:      r.FinancialData.DebtToEquity.Raw,
	}
	if f.Name == "" {
		f.Name = r.Price.ShortName
	}
	if f.ForwardPE == nil {
		f.ForwardPE = r.DefaultKeyStatistics.ForwardPE.Raw
	}
	return f, nil
}

// QuarterlyEarnings returns up to maxQuarters quarters with QoQ and YoY growth.
func (c *Client) QuarterlyEarnings(ctx context.Context, symbol string, maxQuarters int) (*EarningsHistory, error) {
	r, err := c.quoteSummary(ctx, symbol, "incomeStatementHistoryQuarterly", "earningsHistory")
	if err != nil {
		return nil, err
	}

	eps := make(map[string]*float64)
	for _, h := range r.EarningsHistory.History {
		if h.Quarter.Fmt != "" {
			eps[h.Quarter.Fmt] = h.EPSActual.Raw
		}
	}

	var quarters []Quarter
	for _, s := range r.IncomeStatementHistoryQuarterly.IncomeStatementHistory {
		period := s.EndDate.Fmt
		if period == "" && s.EndDate.Raw != nil {
			period = time.Unix(int64(*s.EndDate.Raw), 0).UTC().Format(time.DateOnly)
		}
		if period == "" {
			continue
		}
		quarters = append(quarters, Quarter{
			Period:     period,
			Revenue:    s.TotalRevenue.Raw,
			NetIncome:  s.NetIncome.Raw,
			EPSDiluted: eps[period],
		})
	}

	return &EarningsHistory{
		Symbol:   symbol,
		AsOf:     time.Now().Format(time.DateOnly),
		Quarters: withGrowth(quarters, maxQuarters),
	}, nil
}

// withGrowth sorts quarters ascending, fills growth, and keeps the last limit.
func withGrowth(quarters []Quarter, limit int) []Quarter {
	sort.Slice(quarters, func(i, j int) bool { return quarters[i].Period < quarters[j].Period })
	for i := range quarters {
		if i >= 1 {
			quarters[i].RevenueGrowth.QoQ = pctChange(quarters[i].Revenue, quarters[i-1].Revenue)
			quarters[i].NetIncomeGrowth.QoQ = pctChange(quarters[i].NetIncome, quarters[i-1].NetIncome)
		}
		if i >= 4 {
			quarters[i].RevenueGrowth.YoY = pctChange(quarters[i].Revenue, quarters[i-4].Revenue)
			quarters[i].NetIncomeGrowth.YoY = pctChange(quarters[i].NetIncome, quarters[i-4].NetIncome)
		}
	}
	if limit > 0 && len(quarters) > limit {
		quarters = quarters[len(quarters)-limit:]
	}
	return quarters
}

var pricePattern = regexp.MustCompile(`(?i)price\s+\$?([\d,]+(?:\.\d+)?)`)

// InsiderTransactions returns the last lastN insider filings with a summary.
func (c *Client) InsiderTransactions(ctx context.Context, symbol string, lastN int) (*InsiderActivity, error) {
	r, err := c.quoteSummary(ctx, symbol, "insiderTransactions")
	if err != nil {
		return nil, err
	}

	var txs []InsiderTransaction
	for _, t := range r.InsiderTransactions.Transactions {
		if t.StartDate.Raw == nil {
			continue
		}
		tx := InsiderTransaction{
			Date:     time.Unix(int64(*t.StartDate.Raw), 0).UTC(),
			Filer:    t.FilerName,
			Relation: t.FilerRelation,
			Type:     classifyInsider(t.TransactionText),
			Text:     t.TransactionText,
		}
		if t.Shares.Raw != nil {
			tx.Shares = *t.Shares.Raw
		}
		if t.Value.Raw != nil {
			tx.Value = *t.Value.Raw
		}
		tx.Price = insiderPrice(t.TransactionText, tx.Shares, tx.Value)
		txs = append(txs, tx)
	}

	sort.SliceStable(txs, func(i, j int) bool { return txs[i].Date.Before(txs[j].Date) })
	if lastN > 0 && len(txs) > lastN {
		txs = txs[len(txs)-lastN:]
	}

	return &InsiderActivity{
		Symbol:       symbol,
		AsOf:         time.Now().Format(time.DateOnly),
		Transactions: txs,
		Summary:      SummarizeInsiders(txs),
	}, nil
}

// SummarizeInsiders totals txs. Purchases add to net shares and sales subtract.
func SummarizeInsiders(txs []InsiderTransaction) InsiderSummary {
	s := InsiderSummary{TotalTransactions: len(txs), ByType: make(map[string]int)}
	for _, t := range txs {
		s.ByType[t.Type]++
		s.TotalValueUSD += t.Value
		switch t.Type {
		case InsiderPurchase:
			s.NetShares += t.Shares
		case InsiderSale:
			s.NetShares -= t.Shares
		}
	}
	s.TotalValueUSD = round2(s.TotalValueUSD)
	return s
}

func classifyInsider(text string) string {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "sale"):
		return InsiderSale
	case strings.Contains(t, "purchase"), strings.Contains(t, "buy"):
		return InsiderPurchase
	case strings.Contains(t, "gift"):
		return InsiderGift
	case strings.Contains(t, "exercise"), strings.Contains(t, "conversion"):
		return InsiderExercise
	case strings.Contains(t, "award"), strings.Contains(t, "grant"):
		return InsiderAward
	}
	return InsiderOther
}

func insiderPrice(text string, shares, value float64) *float64 {
	if m := pricePattern.FindStringSubmatch(text); m != nil {
		if p, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64); err == nil {
			return &p
		}
	}
	if shares > 0 && value > 0 {
		p := round2(value / shares)
		return &p
	}
	return nil
}

func pctChange(cur, prev *float64) *float64 {
	if cur == nil || prev == nil || *prev == 0 {
		return nil
	}
	v := round2((*cur - *prev) / math.Abs(*prev) * 100)
	return &v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
