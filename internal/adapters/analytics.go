package adapters

import (
	"context"

	"github.com/Angleito/Seiron-sub010/internal/domain"
)

// AnalyticsBackend is the injectable external service behind the
// analytics adapter family: a small named-operation interface an
// orchestrator wires a concrete implementation into at startup.
type AnalyticsBackend interface {
	Search(ctx context.Context, query string) (interface{}, error)
	GetAnalytics(ctx context.Context, params map[string]interface{}) (interface{}, error)
	GetPortfolioAnalysis(ctx context.Context, wallet string) (interface{}, error)
	GetMarketInsights(ctx context.Context, params map[string]interface{}) (interface{}, error)
	GetCreditAnalysis(ctx context.Context, wallet string) (interface{}, error)
}

// Analytics wraps an AnalyticsBackend behind the uniform AdapterExecutor
// surface.
type Analytics struct {
	backend AnalyticsBackend
}

// NewAnalytics wires a concrete backend into the analytics adapter family.
func NewAnalytics(backend AnalyticsBackend) *Analytics {
	return &Analytics{backend: backend}
}

func (a *Analytics) Family() domain.AdapterFamily { return domain.FamilyAnalytics }

func (a *Analytics) Capabilities() []string {
	ops := make([]string, 0, len(Vocabularies[domain.FamilyAnalytics]))
	for op := range Vocabularies[domain.FamilyAnalytics] {
		ops = append(ops, op)
	}
	return ops
}

func (a *Analytics) Execute(ctx context.Context, operation string, params map[string]interface{}) (interface{}, error) {
	switch operation {
	case "search":
		query, err := paramString(params, "query")
		if err != nil {
			return nil, err
		}
		return a.backend.Search(ctx, query)
	case "get_analytics":
		return a.backend.GetAnalytics(ctx, params)
	case "get_portfolio_analysis":
		wallet, err := paramString(params, "wallet")
		if err != nil {
			return nil, err
		}
		return a.backend.GetPortfolioAnalysis(ctx, wallet)
	case "get_market_insights":
		return a.backend.GetMarketInsights(ctx, params)
	case "get_credit_analysis":
		wallet, err := paramString(params, "wallet")
		if err != nil {
			return nil, err
		}
		return a.backend.GetCreditAnalysis(ctx, wallet)
	default:
		return nil, domain.NewError(domain.KindUnsupported, domain.CodeUnsupportedIntent, "analytics does not support operation "+operation)
	}
}

// InMemoryAnalyticsBackend is a deterministic stub backend used when no
// real analytics service is configured (simulate command, tests).
type InMemoryAnalyticsBackend struct{}

func (InMemoryAnalyticsBackend) Search(_ context.Context, query string) (interface{}, error) {
	return map[string]interface{}{"query": query, "results": []string{}}, nil
}

func (InMemoryAnalyticsBackend) GetAnalytics(_ context.Context, params map[string]interface{}) (interface{}, error) {
	return map[string]interface{}{"params": params, "metrics": map[string]float64{}}, nil
}

func (InMemoryAnalyticsBackend) GetPortfolioAnalysis(_ context.Context, wallet string) (interface{}, error) {
	return map[string]interface{}{"wallet": wallet, "totalValueUsd": 0.0, "positions": []interface{}{}}, nil
}

func (InMemoryAnalyticsBackend) GetMarketInsights(_ context.Context, params map[string]interface{}) (interface{}, error) {
	return map[string]interface{}{"params": params, "insights": []string{}}, nil
}

func (InMemoryAnalyticsBackend) GetCreditAnalysis(_ context.Context, wallet string) (interface{}, error) {
	return map[string]interface{}{"wallet": wallet, "creditScore": 0}, nil
}
