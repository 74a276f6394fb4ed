package mocks

import (
	"context"
	"fmt"

	"github.com/highfocus/sourcing-tool/pkg/sourcing"
)

type Analyzer struct {
	AnalyzeFunc      func(ctx context.Context, asin string, cost float64, fba bool) (sourcing.Analysis, error)
	AnalyzeBatchFunc func(ctx context.Context, rows []sourcing.Row, progress func(done, total int)) (sourcing.BatchReport, error)

	AnalyzeCalls      int
	AnalyzeBatchCalls int
	LastASIN          string
	LastCost          float64
	LastFBA           bool
	LastRows          []sourcing.Row
}

func (m *Analyzer) Analyze(ctx context.Context, asin string, cost float64, fba bool) (sourcing.Analysis, error) {
	m.AnalyzeCalls++
	m.LastASIN = asin
	m.LastCost = cost
	m.LastFBA = fba
	if m.AnalyzeFunc == nil {
		return sourcing.Analysis{}, fmt.Errorf("AnalyzeFunc is not set")
	}
	return m.AnalyzeFunc(ctx, asin, cost, fba)
}

func (m *Analyzer) AnalyzeBatch(ctx context.Context, rows []sourcing.Row, progress func(done, total int)) (sourcing.BatchReport, error) {
	m.AnalyzeBatchCalls++
	m.LastRows = rows
	if m.AnalyzeBatchFunc == nil {
		return sourcing.BatchReport{}, fmt.Errorf("AnalyzeBatchFunc is not set")
	}
	return m.AnalyzeBatchFunc(ctx, rows, progress)
}
