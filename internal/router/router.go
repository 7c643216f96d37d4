// Package router implements the Message Router: validation, handler
// dispatch, retry/backoff, timeouts, concurrency gates, priority
// queueing, and adapter-operation routing over the pooled adapter
// instances tracked by the registry.
package router

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Angleito/Seiron-sub010/internal/domain"
	"github.com/Angleito/Seiron-sub010/internal/observability"
	"github.com/Angleito/Seiron-sub010/internal/ratelimit"
	"github.com/Angleito/Seiron-sub010/internal/registry"
	"github.com/Angleito/Seiron-sub010/internal/retry"
)

// MessageHandler processes one dispatched message and returns its result.
type MessageHandler func(ctx context.Context, msg domain.Message) (interface{}, error)

// AgentHandler executes a task against a specific agent, used by
// SendTaskRequest. Distinct from MessageHandler because task dispatch
// is keyed by agent ID, not message type.
type AgentHandler func(ctx context.Context, task domain.Task) (interface{}, error)

// RoutingRule matches messages of MessageType whose Condition holds,
// scanned in descending Priority order. The (MessageType, Priority)
// tuple must be unique across registered rules.
type RoutingRule struct {
	MessageType domain.MessageType
	Priority    int
	Condition   func(domain.Message) bool
	Handler     MessageHandler
}

// Config configures the router's concurrency, timeout and retry policy.
type Config struct {
	MaxConcurrentMessages int           `yaml:"max_concurrent_messages"`
	MessageTimeoutMs      int           `yaml:"message_timeout_ms"`
	RetryAttempts         int           `yaml:"retry_attempts"`
	BackoffMultiplier     float64       `yaml:"backoff_multiplier"`
	BaseDelayMs           int           `yaml:"base_delay_ms"`
	MaxBackoffMs          int           `yaml:"max_backoff_ms"`
	EnableParallelExecution bool        `yaml:"enable_parallel_execution"`
	AdapterRouting        AdapterRoutingConfig `yaml:"adapter_routing"`
}

// AdapterRoutingConfig configures adapter-operation dispatch.
type AdapterRoutingConfig struct {
	EnableAdapterMessages    bool `yaml:"enable_adapter_messages"`
	AdapterTimeoutMs         int  `yaml:"adapter_timeout_ms"`
	MaxConcurrentAdapterCalls int `yaml:"max_concurrent_adapter_calls"`
	PrioritizeAdaptersByType bool `yaml:"prioritize_adapters_by_type"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentMessages:   50,
		MessageTimeoutMs:        5000,
		RetryAttempts:           3,
		BackoffMultiplier:       2.0,
		BaseDelayMs:             100,
		MaxBackoffMs:            10000,
		EnableParallelExecution: true,
		AdapterRouting: AdapterRoutingConfig{
			EnableAdapterMessages:     true,
			AdapterTimeoutMs:          10000,
			MaxConcurrentAdapterCalls: 20,
			PrioritizeAdaptersByType:  true,
		},
	}
}

func (c Config) retryConfig() retry.Config {
	return retry.Config{
		MaxAttempts:  c.RetryAttempts + 1,
		InitialDelay: time.Duration(c.BaseDelayMs) * time.Millisecond,
		MaxDelay:     time.Duration(c.MaxBackoffMs) * time.Millisecond,
		Factor:       c.BackoffMultiplier,
		Jitter:       true,
	}
}

// Router dispatches messages and adapter operations under concurrency
// gates, retries transient failures with backoff, and enforces
// per-call timeouts.
type Router struct {
	cfg      Config
	registry *registry.Registry
	logger   *observability.Logger
	metrics  *observability.Metrics

	messageGate  *ratelimit.Gate
	adapterGate  *ratelimit.Gate

	handlersMu      sync.RWMutex
	defaultHandlers map[domain.MessageType]MessageHandler
	rules           []RoutingRule

	agentHandlersMu sync.RWMutex
	agentHandlers   map[string]AgentHandler

	executorsMu sync.RWMutex
	executors   map[string]domain.AdapterExecutor

	pendingMu sync.Mutex
	pending   map[string]time.Time

	adapterQueueMu sync.Mutex
	adapterQueue   adapterOpQueue
	adapterSeq     int
}

// New creates a Router bound to reg for adapter/agent selection and
// health state.
func New(cfg Config, reg *registry.Registry, logger *observability.Logger, metrics *observability.Metrics) *Router {
	return &Router{
		cfg:             cfg,
		registry:        reg,
		logger:          logger,
		metrics:         metrics,
		messageGate:     ratelimit.NewGate(cfg.MaxConcurrentMessages),
		adapterGate:     ratelimit.NewGate(cfg.AdapterRouting.MaxConcurrentAdapterCalls),
		defaultHandlers: make(map[domain.MessageType]MessageHandler),
		agentHandlers:   make(map[string]AgentHandler),
		executors:       make(map[string]domain.AdapterExecutor),
		pending:         make(map[string]time.Time),
	}
}

// RegisterHandler sets the default handler invoked for messageType when
// no routing rule matches.
func (r *Router) RegisterHandler(messageType domain.MessageType, handler MessageHandler) {
	r.handlersMu.Lock()
	defer r.handlersMu.Unlock()
	r.defaultHandlers[messageType] = handler
}

// RegisterAgentHandler wires the handler invoked for task requests
// targeting agentID.
func (r *Router) RegisterAgentHandler(agentID string, handler AgentHandler) {
	r.agentHandlersMu.Lock()
	defer r.agentHandlersMu.Unlock()
	r.agentHandlers[agentID] = handler
}

// AddRoutingRule registers a rule. Fails if another rule already
// occupies the same (MessageType, Priority) tuple.
func (r *Router) AddRoutingRule(rule RoutingRule) error {
	r.handlersMu.Lock()
	defer r.handlersMu.Unlock()
	for _, existing := range r.rules {
		if existing.MessageType == rule.MessageType && existing.Priority == rule.Priority {
			return domain.NewError(domain.KindValidation, domain.CodeValidationError,
				fmt.Sprintf("a routing rule already exists for (%s, %d)", rule.MessageType, rule.Priority))
		}
	}
	r.rules = append(r.rules, rule)
	return nil
}

// RegisterAdapter wires an executor for a pooled adapter instance,
// separate from the registry's metadata registration — this map is
// what RouteAdapterOperation actually invokes.
func (r *Router) RegisterAdapter(id string, executor domain.AdapterExecutor) error {
	r.executorsMu.Lock()
	defer r.executorsMu.Unlock()
	if _, exists := r.executors[id]; exists {
		return domain.NewError(domain.KindValidation, domain.CodeDuplicateID,
			fmt.Sprintf("executor for adapter instance %s is already registered", id))
	}
	r.executors[id] = executor
	return nil
}

// UnregisterAdapter removes an executor registration, e.g. during
// adapter teardown.
func (r *Router) UnregisterAdapter(id string) {
	r.executorsMu.Lock()
	defer r.executorsMu.Unlock()
	delete(r.executors, id)
}

// UpdateAdapterHealth is a thin forward into the registry — the Router
// never maintains its own adapter health state; the Registry is the
// sole health authority.
func (r *Router) UpdateAdapterHealth(id string, healthy bool) {
	r.registry.UpdateAdapterHealth(id, healthy)
}

func validateMessage(msg domain.Message) error {
	if msg.ID == "" || msg.SenderID == "" || msg.ReceiverID == "" || msg.Type == "" {
		return domain.NewError(domain.KindValidation, domain.CodeValidationError,
			"message must carry a non-empty id, senderId, receiverId and type")
	}
	return nil
}

func (r *Router) selectHandler(msg domain.Message) (MessageHandler, error) {
	r.handlersMu.RLock()
	rules := append([]RoutingRule(nil), r.rules...)
	defaultHandler, hasDefault := r.defaultHandlers[msg.Type]
	r.handlersMu.RUnlock()

	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority > rules[j].Priority })
	for _, rule := range rules {
		if rule.MessageType != msg.Type {
			continue
		}
		if rule.Condition != nil && !rule.Condition(msg) {
			continue
		}
		return rule.Handler, nil
	}
	if hasDefault {
		return defaultHandler, nil
	}
	return nil, domain.NewError(domain.KindUnsupported, domain.CodeNoHandler,
		fmt.Sprintf("no handler registered for message type %s", msg.Type))
}

// Route dispatches a single message through the matching handler under
// the message concurrency gate, with timeout and retry.
func (r *Router) Route(ctx context.Context, msg domain.Message) domain.Result[interface{}] {
	if err := validateMessage(msg); err != nil {
		return domain.Err[interface{}](err)
	}
	handler, err := r.selectHandler(msg)
	if err != nil {
		return domain.Err[interface{}](err)
	}

	if err := r.messageGate.Acquire(ctx); err != nil {
		return domain.Err[interface{}](domain.NewError(domain.KindConcurrency, domain.CodeTimeout, "message gate acquisition cancelled"))
	}
	defer r.messageGate.Release()

	r.pendingMu.Lock()
	r.pending[msg.ID] = time.Now()
	r.pendingMu.Unlock()
	defer func() {
		r.pendingMu.Lock()
		delete(r.pending, msg.ID)
		r.pendingMu.Unlock()
	}()

	if r.metrics != nil {
		r.metrics.SetConcurrentMessages(r.messageGate.InFlight())
	}

	timeout := time.Duration(r.cfg.MessageTimeoutMs) * time.Millisecond
	value, retryResult := retry.DoWithValue(ctx, r.cfg.retryConfig(), func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		result, err := handler(callCtx, msg)
		if err != nil && callCtx.Err() != nil {
			return nil, domain.NewError(domain.KindTimeout, domain.CodeTimeout, "message handler timed out")
		}
		return result, err
	})

	if r.metrics != nil {
		status := "success"
		if retryResult.Err != nil {
			status = "failed"
		}
		r.metrics.RecordMessage(string(msg.Type), status)
		if retryResult.Attempts > 1 {
			r.metrics.RecordRetry("router")
		}
	}

	if retryResult.Err != nil {
		return domain.Err[interface{}](retryResult.Err)
	}
	return domain.Ok(value)
}

// RouteMany dispatches every message concurrently and returns results
// in the same order as ms: result i always corresponds to input i.
func (r *Router) RouteMany(ctx context.Context, ms []domain.Message) []domain.Result[interface{}] {
	results := make([]domain.Result[interface{}], len(ms))
	var wg sync.WaitGroup
	for i, msg := range ms {
		wg.Add(1)
		go func(i int, msg domain.Message) {
			defer wg.Done()
			results[i] = r.Route(ctx, msg)
		}(i, msg)
	}
	wg.Wait()
	return results
}

// Broadcast expands template into one message per recipient (new ID,
// ReceiverID set to each entry of recipientIDs) and dispatches them in
// parallel, returning results in recipient input order.
func (r *Router) Broadcast(ctx context.Context, template domain.Message, recipientIDs []string) []domain.Result[interface{}] {
	msgs := make([]domain.Message, len(recipientIDs))
	for i, id := range recipientIDs {
		m := template
		m.ID = domain.NewID()
		m.ReceiverID = id
		msgs[i] = m
	}
	return r.RouteMany(ctx, msgs)
}

// SendTaskRequest dispatches task to the handler registered for
// task.AgentID under the message concurrency gate, producing a
// TaskResult. Unlike Route, the agent handler is selected by agent ID,
// not message type, since every task request shares the same
// MessageType.
func (r *Router) SendTaskRequest(ctx context.Context, task domain.Task, agent domain.Agent) domain.TaskResult {
	r.agentHandlersMu.RLock()
	handler, ok := r.agentHandlers[task.AgentID]
	r.agentHandlersMu.RUnlock()
	if !ok {
		return domain.TaskResult{
			TaskID: task.ID,
			Status: domain.TaskFailed,
			Error: &domain.TaskResultError{
				Code:        domain.CodeNoHandler,
				Message:     fmt.Sprintf("no handler registered for agent %s", task.AgentID),
				Recoverable: false,
			},
		}
	}

	if err := r.messageGate.Acquire(ctx); err != nil {
		return domain.TaskResult{
			TaskID: task.ID,
			Status: domain.TaskFailed,
			Error: &domain.TaskResultError{
				Code:        domain.CodeTimeout,
				Message:     "message gate acquisition cancelled",
				Recoverable: true,
			},
		}
	}
	defer r.messageGate.Release()

	timeout := time.Duration(r.cfg.MessageTimeoutMs) * time.Millisecond
	start := time.Now()
	value, retryResult := retry.DoWithValue(ctx, r.cfg.retryConfig(), func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		result, err := handler(callCtx, task)
		if err != nil && callCtx.Err() != nil {
			return nil, domain.NewError(domain.KindTimeout, domain.CodeTimeout, "task handler timed out")
		}
		return result, err
	})
	elapsed := time.Since(start).Milliseconds()

	if r.metrics != nil {
		status := "success"
		if retryResult.Err != nil {
			status = "failed"
		}
		r.metrics.RecordMessage(string(domain.MessageTaskRequest), status)
		if retryResult.Attempts > 1 {
			r.metrics.RecordRetry("router")
		}
	}

	if retryResult.Err != nil {
		oe := domain.AsOrchestratorError(retryResult.Err)
		return domain.TaskResult{
			TaskID:          task.ID,
			Status:          domain.TaskFailed,
			ExecutionTimeMs: elapsed,
			Error: &domain.TaskResultError{
				Code:        oe.Code,
				Message:     oe.Message,
				Recoverable: oe.Recoverable(),
			},
			RetryCount: retryResult.Attempts - 1,
		}
	}
	return domain.TaskResult{
		TaskID:          task.ID,
		Status:          domain.TaskCompleted,
		Result:          value,
		ExecutionTimeMs: elapsed,
		RetryCount:      retryResult.Attempts - 1,
	}
}

// RouteAdapterOperation reserves the least-loaded healthy instance of
// family carrying operation (selection and the activeOperations
// increment happen atomically, so concurrent callers never pile onto
// the same instance), invokes it under the adapter concurrency gate
// (queued by priority when saturated), and guarantees activeOperations
// is decremented on every exit path.
func (r *Router) RouteAdapterOperation(ctx context.Context, family domain.AdapterFamily, operation string, params map[string]interface{}, priority domain.Priority) (interface{}, error) {
	if !r.cfg.AdapterRouting.EnableAdapterMessages {
		return nil, domain.NewError(domain.KindNoAvailable, domain.CodeNoAvailableAgents, "adapter not available")
	}

	instance, err := r.registry.ReserveBestAdapter(operation, family)
	if err != nil {
		return nil, err
	}

	r.executorsMu.RLock()
	executor, ok := r.executors[instance.ID]
	r.executorsMu.RUnlock()
	if !ok {
		return nil, domain.NewError(domain.KindFatal, domain.CodeExecutionFailed,
			fmt.Sprintf("adapter instance %s has no registered executor", instance.ID))
	}

	resultCh := make(chan domain.Result[interface{}], 1)
	op := &adapterOp{
		priority:  priority.Weight(),
		timestamp: time.Now(),
		run: func() {
			resultCh <- r.runAdapterOperation(ctx, instance.ID, executor, operation, params)
		},
	}

	r.adapterQueueMu.Lock()
	r.adapterSeq++
	op.seq = r.adapterSeq
	heapPush(&r.adapterQueue, op)
	r.adapterQueueMu.Unlock()

	go r.ProcessQueue()

	select {
	case <-ctx.Done():
		return nil, domain.NewError(domain.KindTimeout, domain.CodeTimeout, "adapter operation cancelled waiting for a concurrency slot")
	case result := <-resultCh:
		return result.Value, result.Err
	}
}

// runAdapterOperation executes against an instance already reserved by
// ReserveBestAdapter (its activeOperations slot was incremented at
// selection time); this only ever decrements, on every exit path.
func (r *Router) runAdapterOperation(ctx context.Context, instanceID string, executor domain.AdapterExecutor, operation string, params map[string]interface{}) domain.Result[interface{}] {
	success := false
	defer func() {
		r.registry.DecrementActiveOperations(instanceID, success)
		if r.metrics != nil {
			r.metrics.SetConcurrentAdapterCalls(r.adapterGate.InFlight())
		}
	}()

	timeout := time.Duration(r.cfg.AdapterRouting.AdapterTimeoutMs) * time.Millisecond
	start := time.Now()

	value, retryResult := retry.DoWithValue(ctx, r.cfg.retryConfig(), func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		result, err := safeExecute(callCtx, executor, operation, params)
		if err != nil && callCtx.Err() != nil {
			return nil, domain.NewError(domain.KindTimeout, domain.CodeTimeout, "adapter operation timed out")
		}
		return result, err
	})

	if r.metrics != nil {
		status := "success"
		if retryResult.Err != nil {
			status = "failed"
		}
		r.metrics.RecordAdapterOperation(string(executor.Family()), operation, status, time.Since(start).Seconds())
		if retryResult.Attempts > 1 {
			r.metrics.RecordRetry("adapter")
		}
	}

	success = retryResult.Err == nil
	if retryResult.Err != nil {
		return domain.Err[interface{}](retryResult.Err)
	}
	return domain.Ok(value)
}

// safeExecute recovers from a panicking executor so a single
// misbehaving adapter can never corrupt activeOperations bookkeeping.
func safeExecute(ctx context.Context, executor domain.AdapterExecutor, operation string, params map[string]interface{}) (result interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = domain.NewError(domain.KindFatal, domain.CodeExecutionFailed, fmt.Sprintf("adapter panicked: %v", p))
		}
	}()
	return executor.Execute(ctx, operation, params)
}

// AdapterOpRequest is one operation submitted to
// RouteAdapterOperationsParallel.
type AdapterOpRequest struct {
	Family    domain.AdapterFamily
	Operation string
	Params    map[string]interface{}
	Priority  domain.Priority
}

// RouteAdapterOperationsParallel dispatches every request concurrently,
// writing each outcome to its own pre-sized slot so result order always
// matches input order regardless of completion order.
func (r *Router) RouteAdapterOperationsParallel(ctx context.Context, reqs []AdapterOpRequest) []domain.Result[interface{}] {
	results := make([]domain.Result[interface{}], len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req AdapterOpRequest) {
			defer wg.Done()
			value, err := r.RouteAdapterOperation(ctx, req.Family, req.Operation, req.Params, req.Priority)
			if err != nil {
				results[i] = domain.Err[interface{}](err)
				return
			}
			results[i] = domain.Ok(value)
		}(i, req)
	}
	wg.Wait()
	return results
}

// ProcessQueue drains the adapter-operation priority queue, launching
// the highest-priority pending operation whenever the adapter gate has
// a free slot. It re-invokes itself (in a fresh goroutine, not on its
// own call stack) after every completion so draining continues as
// slots free up; it is always safe to call concurrently or redundantly.
func (r *Router) ProcessQueue() {
	r.adapterQueueMu.Lock()
	if r.adapterQueue.Len() == 0 {
		r.adapterQueueMu.Unlock()
		return
	}
	if !r.adapterGate.TryAcquire() {
		r.adapterQueueMu.Unlock()
		return
	}
	op := heapPop(&r.adapterQueue)
	r.adapterQueueMu.Unlock()

	if r.metrics != nil {
		r.adapterQueueMu.Lock()
		r.metrics.SetAdapterQueueDepth(r.adapterQueue.Len())
		r.adapterQueueMu.Unlock()
	}

	go func() {
		defer r.adapterGate.Release()
		op.run()
		r.ProcessQueue()
	}()
}

// InFlightMessages reports the current message gate occupancy, used by
// tests asserting the concurrency-cap invariant.
func (r *Router) InFlightMessages() int { return r.messageGate.InFlight() }

// InFlightAdapterCalls reports the current adapter gate occupancy.
func (r *Router) InFlightAdapterCalls() int { return r.adapterGate.InFlight() }
