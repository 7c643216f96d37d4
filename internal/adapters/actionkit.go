package adapters

import (
	"context"
	"fmt"
	"sync"

	"github.com/Angleito/Seiron-sub010/internal/domain"
)

// ActionKit simulates a blockchain action-kit adapter: token balances,
// transfers, approvals, lending-market positions, swaps, liquidity and
// staking. On-chain signing is out of scope here, so this keeps an
// in-memory ledger and returns deterministic synthetic receipts — enough
// to exercise the facade's concurrency, health and error-handling
// behavior without a live chain dependency.
type ActionKit struct {
	mu sync.Mutex
	// balances[wallet][token] = amount
	balances map[string]map[string]float64
	// positions[wallet][token] = supplied/borrowed principal, net
	supplied map[string]map[string]float64
	borrowed map[string]map[string]float64
	// allowances[wallet][spender] = amount
	allowances map[string]map[string]float64
	receiptSeq int
}

// NewActionKit creates an empty simulated ledger.
func NewActionKit() *ActionKit {
	return &ActionKit{
		balances:   make(map[string]map[string]float64),
		supplied:   make(map[string]map[string]float64),
		borrowed:   make(map[string]map[string]float64),
		allowances: make(map[string]map[string]float64),
	}
}

func (a *ActionKit) Family() domain.AdapterFamily { return domain.FamilyActionKit }

func (a *ActionKit) Capabilities() []string {
	ops := make([]string, 0, len(Vocabularies[domain.FamilyActionKit]))
	for op := range Vocabularies[domain.FamilyActionKit] {
		ops = append(ops, op)
	}
	return ops
}

// Seed credits wallet with an initial token balance, for test and
// simulate-command setup.
func (a *ActionKit) Seed(wallet, token string, amount float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ledger(a.balances, wallet)[token] += amount
}

func (a *ActionKit) ledger(m map[string]map[string]float64, wallet string) map[string]float64 {
	sub, ok := m[wallet]
	if !ok {
		sub = make(map[string]float64)
		m[wallet] = sub
	}
	return sub
}

func paramString(params map[string]interface{}, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", domain.NewError(domain.KindValidation, domain.CodeValidationError, "missing required parameter: "+key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", domain.NewError(domain.KindValidation, domain.CodeValidationError, "parameter "+key+" must be a non-empty string")
	}
	return s, nil
}

func paramFloat(params map[string]interface{}, key string) (float64, error) {
	v, ok := params[key]
	if !ok {
		return 0, domain.NewError(domain.KindValidation, domain.CodeValidationError, "missing required parameter: "+key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, domain.NewError(domain.KindValidation, domain.CodeValidationError, "parameter "+key+" must be numeric")
	}
}

// Execute performs one actionKit operation against the simulated ledger.
func (a *ActionKit) Execute(ctx context.Context, operation string, params map[string]interface{}) (interface{}, error) {
	select {
	case <-ctx.Done():
		return nil, domain.NewError(domain.KindTimeout, domain.CodeTimeout, "actionKit operation cancelled")
	default:
	}

	wallet, err := paramString(params, "wallet")
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	switch operation {
	case "token_balance":
		token, err := paramString(params, "token")
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"wallet": wallet, "token": token, "balance": a.ledger(a.balances, wallet)[token]}, nil

	case "token_transfer":
		token, err := paramString(params, "token")
		if err != nil {
			return nil, err
		}
		to, err := paramString(params, "to")
		if err != nil {
			return nil, err
		}
		amount, err := paramFloat(params, "amount")
		if err != nil {
			return nil, err
		}
		from := a.ledger(a.balances, wallet)
		if from[token] < amount {
			return nil, domain.NewError(domain.KindFatal, domain.CodeExecutionFailed, "insufficient balance")
		}
		from[token] -= amount
		a.ledger(a.balances, to)[token] += amount
		return a.receipt("token_transfer", wallet), nil

	case "token_approve":
		spender, err := paramString(params, "spender")
		if err != nil {
			return nil, err
		}
		amount, err := paramFloat(params, "amount")
		if err != nil {
			return nil, err
		}
		a.ledger(a.allowances, wallet)[spender] = amount
		return a.receipt("token_approve", wallet), nil

	case "lend":
		token, err := paramString(params, "token")
		if err != nil {
			return nil, err
		}
		amount, err := paramFloat(params, "amount")
		if err != nil {
			return nil, err
		}
		bal := a.ledger(a.balances, wallet)
		if bal[token] < amount {
			return nil, domain.NewError(domain.KindFatal, domain.CodeExecutionFailed, "insufficient balance to lend")
		}
		bal[token] -= amount
		a.ledger(a.supplied, wallet)[token] += amount
		return a.receipt("lend", wallet), nil

	case "withdraw":
		token, err := paramString(params, "token")
		if err != nil {
			return nil, err
		}
		amount, err := paramFloat(params, "amount")
		if err != nil {
			return nil, err
		}
		sup := a.ledger(a.supplied, wallet)
		if sup[token] < amount {
			return nil, domain.NewError(domain.KindFatal, domain.CodeExecutionFailed, "insufficient supplied balance")
		}
		sup[token] -= amount
		a.ledger(a.balances, wallet)[token] += amount
		return a.receipt("withdraw", wallet), nil

	case "borrow":
		token, err := paramString(params, "token")
		if err != nil {
			return nil, err
		}
		amount, err := paramFloat(params, "amount")
		if err != nil {
			return nil, err
		}
		a.ledger(a.borrowed, wallet)[token] += amount
		a.ledger(a.balances, wallet)[token] += amount
		return a.receipt("borrow", wallet), nil

	case "repay":
		token, err := paramString(params, "token")
		if err != nil {
			return nil, err
		}
		amount, err := paramFloat(params, "amount")
		if err != nil {
			return nil, err
		}
		bal := a.ledger(a.balances, wallet)
		if bal[token] < amount {
			return nil, domain.NewError(domain.KindFatal, domain.CodeExecutionFailed, "insufficient balance to repay")
		}
		bal[token] -= amount
		debt := a.ledger(a.borrowed, wallet)
		if debt[token] < amount {
			debt[token] = 0
		} else {
			debt[token] -= amount
		}
		return a.receipt("repay", wallet), nil

	case "swap":
		fromToken, err := paramString(params, "fromToken")
		if err != nil {
			return nil, err
		}
		toToken, err := paramString(params, "toToken")
		if err != nil {
			return nil, err
		}
		amount, err := paramFloat(params, "amount")
		if err != nil {
			return nil, err
		}
		bal := a.ledger(a.balances, wallet)
		if bal[fromToken] < amount {
			return nil, domain.NewError(domain.KindFatal, domain.CodeExecutionFailed, "insufficient balance to swap")
		}
		bal[fromToken] -= amount
		bal[toToken] += amount // 1:1 simulated rate
		return a.receipt("swap", wallet), nil

	case "add_liquidity":
		return a.receipt("add_liquidity", wallet), nil

	case "remove_liquidity":
		return a.receipt("remove_liquidity", wallet), nil

	case "stake":
		return a.receipt("stake", wallet), nil

	default:
		return nil, domain.NewError(domain.KindUnsupported, domain.CodeUnsupportedIntent, "actionKit does not support operation "+operation)
	}
}

func (a *ActionKit) receipt(operation, wallet string) map[string]interface{} {
	a.receiptSeq++
	return map[string]interface{}{
		"operation": operation,
		"wallet":    wallet,
		"receiptId": fmt.Sprintf("actionkit-receipt-%d", a.receiptSeq),
		"status":    "confirmed",
	}
}
