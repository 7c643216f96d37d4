// Package adapters implements the Adapter Facade: a uniform
// (family, operation, params) -> result surface over the three external
// service families (actionKit, analytics, realtime). Each family is a
// small AdapterExecutor; the Facade validates the family/operation
// vocabulary and delegates dispatch to the router's adapter pool so
// concurrency gates and health checks apply uniformly.
package adapters

import (
	"context"
	"strings"

	"github.com/Angleito/Seiron-sub010/internal/domain"
)

// Vocabularies lists the operation names each adapter family declares.
var Vocabularies = map[domain.AdapterFamily]map[string]bool{
	domain.FamilyActionKit: set(
		"token_balance", "token_transfer", "token_approve",
		"lend", "withdraw", "borrow", "repay",
		"swap", "add_liquidity", "remove_liquidity", "stake",
	),
	domain.FamilyAnalytics: set(
		"search", "get_analytics", "get_portfolio_analysis",
		"get_market_insights", "get_credit_analysis",
	),
	domain.FamilyRealtime: set(
		"get_blockchain_state", "get_wallet_balance", "query_contract",
		"execute_contract", "send_transaction", "subscribe_events",
	),
}

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// IsKnownFamily reports whether family is one of the three declared families.
func IsKnownFamily(family domain.AdapterFamily) bool {
	_, ok := Vocabularies[family]
	return ok
}

// IsKnownOperation reports whether operation belongs to family's declared
// vocabulary. The comparison is case-insensitive to match the loose
// canonicalisation applied elsewhere.
func IsKnownOperation(family domain.AdapterFamily, operation string) bool {
	ops, ok := Vocabularies[family]
	if !ok {
		return false
	}
	return ops[strings.ToLower(strings.TrimSpace(operation))]
}

// AdapterRouter is the subset of the router's surface the facade needs.
// Declared here (rather than importing internal/router) to avoid an
// import cycle: the router registers adapters.AdapterExecutor
// implementations, so adapters cannot also import router.
type AdapterRouter interface {
	RouteAdapterOperation(ctx context.Context, family domain.AdapterFamily, operation string, params map[string]interface{}, priority domain.Priority) (interface{}, error)
}

// Facade is the orchestrator-facing entry point for adapter operations.
type Facade struct {
	router AdapterRouter
}

// NewFacade creates a Facade backed by router.
func NewFacade(router AdapterRouter) *Facade {
	return &Facade{router: router}
}

// Execute validates family/operation against the declared vocabulary and,
// if valid, delegates to the router's adapter pool. Errors are returned
// as a typed *domain.OrchestratorError already in the router's normal
// form; Execute itself only adds the two upfront vocabulary checks.
func (f *Facade) Execute(ctx context.Context, family domain.AdapterFamily, operation string, params map[string]interface{}, priority domain.Priority) (interface{}, error) {
	if !IsKnownFamily(family) {
		return nil, domain.NewError(domain.KindUnsupported, domain.CodeUnsupportedIntent,
			"unknown adapter family: "+string(family))
	}
	if !IsKnownOperation(family, operation) {
		return nil, domain.NewError(domain.KindUnsupported, domain.CodeUnsupportedIntent,
			"operation "+operation+" is not supported by family "+string(family))
	}
	return f.router.RouteAdapterOperation(ctx, family, operation, params, priority)
}
