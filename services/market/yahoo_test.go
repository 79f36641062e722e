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
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func num(v float64) map[string]any { return map[string]any{"raw": v} }

func summaryBody(result map[string]any) map[string]any {
	return map[string]any{"quoteSummary": map[string]any{"result": []any{result}, "error": nil}}
}

func withCrumb(f *fakeProviders) {
	f.handle("/v1/test/getcrumb", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("crumb-123\n"))
	})
}

func TestClient_Fundamentals(t *testing.T) {
	f, srv := newFakeProviders(t)
	withCrumb(f)
	var gotCrumb atomic.Value
	f.handle("/v10/finance/quoteSummary/PLTR", func(w http.ResponseWriter, r *http.Request) {
		gotCrumb.Store(r.URL.Query().Get("crumb"))
		jsonHandler(summaryBody(map[string]any{
			"price":                map[string]any{"longName": "Palantir Technologies Inc.", "marketCap": num(4.2e11)},
			"summaryDetail":        map[string]any{},
			"defaultKeyStatistics": map[string]any{"forwardPE": num(180.5)},
			"financialData": map[string]any{
				"revenueGrowth": num(0.39),
				"profitMargins": num(0.18),
				"freeCashflow":  num(1.2e9),
				"debtToEquity":  map[string]any{},
			},
			"summaryProfile": map[string]any{"sector": "Technology", "industry": "Software - Infrastructure"},
		}))(w, r)
	})

	c := testClient(t, srv)
	fund, err := c.Fundamentals(context.Background(), "PLTR")
	require.NoError(t, err)

	assert.Equal(t, "crumb-123", gotCrumb.Load())
	assert.Equal(t, "Palantir Technologies Inc.", fund.Name)
	assert.Equal(t, "Software - Infrastructure", fund.Industry)
	require.NotNil(t, fund.ForwardPE)
	assert.Equal(t, 180.5, *fund.ForwardPE, "falls back to defaultKeyStatistics")
	assert.Nil(t, fund.DebtToEquity)
	assert.Nil(t, fund.OperatingCashflow)
}

func TestClient_QuoteSummaryError(t *testing.T) {
	f, srv := newFakeProviders(t)
	withCrumb(f)
	f.handle("/v10/finance/quoteSummary/NOPE", jsonHandler(map[string]any{
		"quoteSummary": map[string]any{
			"result": nil,
			"error":  map[string]any{"code": "Not Found", "description": "Quote not found for symbol: NOPE"},
		},
	}))

	c := testClient(t, srv)
	_, err := c.Fundamentals(context.Background(), "NOPE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Quote not found")
}

func TestClient_QuarterlyEarnings(t *testing.T) {
	f, srv := newFakeProviders(t)
	withCrumb(f)

	type q struct {
		end      string
		rev, net float64
		eps      float64
		hasEPS   bool
	}
	quarters := []q{
		{end: "2024-06-30", rev: 120, net: 12, eps: 0.1, hasEPS: true},
		{end: "2023-06-30", rev: 100, net: 10},
		{end: "2024-03-31", rev: 110, net: 11},
		{end: "2023-09-30", rev: 102, net: -5},
		{end: "2023-12-31", rev: 105, net: 9},
	}
	var stmts, hist []any
	for _, x := range quarters {
		stmts = append(stmts, map[string]any{
			"endDate":      map[string]any{"fmt": x.end},
			"totalRevenue": num(x.rev),
			"netIncome":    num(x.net),
		})
		if x.hasEPS {
			hist = append(hist, map[string]any{"quarter": map[string]any{"fmt": x.end}, "epsActual": num(x.eps)})
		}
	}
	f.handle("/v10/finance/quoteSummary/PLTR", jsonHandler(summaryBody(map[string]any{
		"incomeStatementHistoryQuarterly": map[string]any{"incomeStatementHistory": stmts},
		"earningsHistory":                 map[string]any{"history": hist},
	})))

	c := testClient(t, srv)
	eh, err := c.QuarterlyEarnings(context.Background(), "PLTR", 4)
	require.NoError(t, err)
	require.Len(t, eh.Quarters, 4)

	first, last := eh.Quarters[0], eh.Quarters[3]
	assert.Equal(t, "2023-09-30", first.Period, "oldest quarter trimmed, rest ascending")
	assert.Equal(t, "2024-06-30", last.Period)

	require.NotNil(t, last.RevenueGrowth.QoQ)
	assert.Equal(t, 9.09, *last.RevenueGrowth.QoQ)
	require.NotNil(t, last.RevenueGrowth.YoY, "YoY uses the trimmed 2023-06-30 quarter")
	assert.Equal(t, 20.0, *last.RevenueGrowth.YoY)
	require.NotNil(t, last.EPSDiluted)
	assert.Equal(t, 0.1, *last.EPSDiluted)

	// Growth off a negative base uses its magnitude.
	q4 := eh.Quarters[1]
	require.NotNil(t, q4.NetIncomeGrowth.QoQ)
	assert.Equal(t, 280.0, *q4.NetIncomeGrowth.QoQ)
	assert.Nil(t, first.RevenueGrowth.YoY)
}

func TestClient_InsiderTransactions(t *testing.T) {
	f, srv := newFakeProviders(t)
	withCrumb(f)

	day := func(d int) map[string]any {
		return num(float64(time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC).Unix()))
	}
	f.handle("/v10/finance/quoteSummary/PLTR", jsonHandler(summaryBody(map[string]any{
		"insiderTransactions": map[string]any{"transactions": []any{
			map[string]any{"filerName": "KARP ALEXANDER C", "transactionText": "Sale at price 80.50 per share.",
				"startDate": day(5), "shares": num(1000), "value": num(80500)},
			map[string]any{"filerName": "SANKAR SHYAM", "transactionText": "Purchase at price 70.00 per share.",
				"startDate": day(2), "shares": num(200), "value": num(14000)},
			map[string]any{"filerName": "COHEN STEPHEN", "transactionText": "",
				"startDate": day(3), "shares": num(50), "value": num(4000)},
			map[string]any{"filerName": "OLD FILING", "transactionText": "Stock Gift",
				"startDate": day(1), "shares": num(10)},
		}},
	})))

	c := testClient(t, srv)
	act, err := c.InsiderTransactions(context.Background(), "PLTR", 3)
	require.NoError(t, err)
	require.Len(t, act.Transactions, 3)

	assert.Equal(t, "SANKAR SHYAM", act.Transactions[0].Filer, "oldest filing trimmed")
	assert.Equal(t, InsiderSale, act.Transactions[2].Type)
	require.NotNil(t, act.Transactions[2].Price)
	assert.Equal(t, 80.5, *act.Transactions[2].Price)

	other := act.Transactions[1]
	assert.Equal(t, InsiderOther, other.Type)
	require.NotNil(t, other.Price)
	assert.Equal(t, 80.0, *other.Price, "derived from value/shares")

	s := act.Summary
	assert.Equal(t, 3, s.TotalTransactions)
	assert.Equal(t, -800.0, s.NetShares)
	assert.Equal(t, 98500.0, s.TotalValueUSD)
	assert.Equal(t, map[string]int{InsiderSale: 1, InsiderPurchase: 1, InsiderOther: 1}, s.ByType)
}

func TestClassifyInsider(t *testing.T) {
	tests := map[string]string{
		"Sale at price 10 per share.":          InsiderSale,
		"Purchase at price 10 per share.":      InsiderPurchase,
		"Stock Gift at price 0.00 per share.":  InsiderGift,
		"Conversion of Exercise of derivative": InsiderExercise,
		"Stock Award(Grant) at price 0.00":     InsiderAward,
		"":                                     InsiderOther,
	}
	for text, want := range tests {
		assert.Equal(t, want, classifyInsider(text), text)
	}
}

func TestClient_PriceTrend_UsesHistory(t *testing.T) {
	f, srv := newFakeProviders(t)
	start := time.Now().AddDate(0, 0, -10)
	f.handle("/v8/finance/chart/AAPL", jsonHandler(chartBody("AAPL", start, 50, 55, 60)))

	c := testClient(t, srv)
	trend, err := c.PriceTrend(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 50.0, trend.StartPrice)
	assert.Equal(t, 60.0, trend.EndPrice)
	assert.Equal(t, 20.0, trend.PercentChange)
}

func TestPriceSeries_Trend_Empty(t *testing.T) {
	_, err := (&PriceSeries{}).Trend()
	assert.True(t, errors.Is(err, ErrNoData))
}
