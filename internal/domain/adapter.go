package domain

import "context"

// AdapterExecutor is the uniform entry point every adapter family
// implements. The router's adapter pool holds one executor per
// registered instance and invokes it under a concurrency gate and
// timeout; callers never call Execute directly.
type AdapterExecutor interface {
	// Family reports which adapter family this executor belongs to.
	Family() AdapterFamily

	// Capabilities lists the operation names this executor supports.
	Capabilities() []string

	// Execute performs operation with params and returns a
	// family-specific result value, or an error classified via
	// OrchestratorError.
	Execute(ctx context.Context, operation string, params map[string]interface{}) (interface{}, error)
}
