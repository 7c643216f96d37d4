// Package orchestrator implements the Orchestrator Core: intent
// analysis, agent selection, task creation and execution, adapter
// lifecycle management, and the public event bus tying the registry
// and router together into a single processIntent pipeline.
package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Angleito/Seiron-sub010/internal/adapters"
	"github.com/Angleito/Seiron-sub010/internal/domain"
	"github.com/Angleito/Seiron-sub010/internal/observability"
	"github.com/Angleito/Seiron-sub010/internal/ratelimit"
	"github.com/Angleito/Seiron-sub010/internal/registry"
	"github.com/Angleito/Seiron-sub010/internal/router"
)

// intentActionSets is the closed per-intent-type action vocabulary
// analyseIntent matches against.
var intentActionSets = map[domain.IntentType][]string{
	domain.IntentLending:   {"supply", "borrow", "withdraw", "repay"},
	domain.IntentLiquidity: {"add_liquidity", "remove_liquidity", "stake", "unstake"},
	domain.IntentPortfolio: {"show_positions", "rebalance", "analyze"},
	domain.IntentTrading:   {"swap", "limit_order", "market_order"},
	domain.IntentAnalysis:  {"get_analytics", "get_market_insights", "compare_assets"},
	domain.IntentInfo:      {"get_blockchain_state", "get_wallet_balance", "show_help"},
	domain.IntentRisk:      {"assess_risk", "liquidation_risk", "get_credit_analysis"},
}

// intentAgentType maps each intent type to the agent type eligible to
// serve it. Trading and info intents have no dedicated agent type in
// the data model, so they fall to the closest existing specialist
// (liquidity for trading, portfolio for general info queries).
var intentAgentType = map[domain.IntentType]domain.AgentType{
	domain.IntentLending:   domain.AgentLending,
	domain.IntentLiquidity: domain.AgentLiquidity,
	domain.IntentPortfolio: domain.AgentPortfolio,
	domain.IntentTrading:   domain.AgentLiquidity,
	domain.IntentAnalysis:  domain.AgentAnalysis,
	domain.IntentInfo:      domain.AgentPortfolio,
	domain.IntentRisk:      domain.AgentRisk,
}

const highValueThreshold = 10000.0

// adapterRegistration tracks one adapter family's wiring so Stop can
// tear it down in reverse order of registration.
type adapterRegistration struct {
	family     domain.AdapterFamily
	instanceID string
	executor   domain.AdapterExecutor
	teardown   func() error
}

// Orchestrator ties the registry, router and adapter facade together
// into the processIntent pipeline and owns the task table.
type Orchestrator struct {
	cfg            Config
	registry       *registry.Registry
	router         *router.Router
	facade         *adapters.Facade
	logger         *observability.Logger
	metrics        *observability.Metrics
	bus            *eventBus
	sessionLimiter *ratelimit.Limiter

	tasksMu sync.RWMutex
	tasks   map[string]domain.Task

	lifecycleMu  sync.Mutex
	started      bool
	adapterRegs  []adapterRegistration
	healthCancel context.CancelFunc
}

// New creates an Orchestrator wired to fresh Registry and Router
// instances built from cfg. It does not start adapters or health
// monitoring; call Start for that.
func New(cfg Config, logger *observability.Logger, metrics *observability.Metrics) *Orchestrator {
	reg := registry.New(cfg.Registry, nil, logger)
	rt := router.New(cfg.Router, reg, logger, metrics)
	return &Orchestrator{
		cfg:            cfg,
		registry:       reg,
		router:         rt,
		facade:         adapters.NewFacade(rt),
		logger:         logger,
		metrics:        metrics,
		bus:            newEventBus(),
		tasks:          make(map[string]domain.Task),
		sessionLimiter: ratelimit.NewLimiter(cfg.SessionRateLimit),
	}
}

// Registry exposes the underlying agent/adapter registry, e.g. for
// callers that need SetCapabilityWeight or direct health queries.
func (o *Orchestrator) Registry() *registry.Registry { return o.registry }

// Router exposes the underlying message router.
func (o *Orchestrator) Router() *router.Router { return o.router }

// SessionRateLimitStatus reports the current intent-rate-limit status for
// a session or wallet key, e.g. for a diagnostics endpoint to show a
// caller how close it is to being throttled. key should be built with
// ratelimit.CompositeKey the same way ProcessIntent builds it internally.
func (o *Orchestrator) SessionRateLimitStatus(key string) ratelimit.Status {
	return o.sessionLimiter.GetStatus(key)
}

// AddEventListener registers handler for eventType's topic.
func (o *Orchestrator) AddEventListener(eventType EventType, handler EventHandler) {
	o.bus.on(eventType, handler)
}

// RegisterAgent adds agent's metadata to the registry. Agents are
// opaque external workers: dispatching a task to one also requires a
// handler wired via RegisterAgentHandler, since the orchestrator never
// inspects how an agent fulfils work.
func (o *Orchestrator) RegisterAgent(agent domain.Agent) error {
	return o.registry.Register(agent)
}

// RegisterAgentHandler wires the in-process callback invoked when a
// task targets agentID.
func (o *Orchestrator) RegisterAgentHandler(agentID string, handler router.AgentHandler) {
	o.router.RegisterAgentHandler(agentID, handler)
}

// UpdateAgentStatus changes an agent's status and emits
// agent_status_changed.
func (o *Orchestrator) UpdateAgentStatus(agentID string, status domain.AgentStatus) error {
	prev, ok := o.registry.Get(agentID)
	if !ok {
		return domain.NewError(domain.KindNoAvailable, domain.CodeNoAvailableAgents, "unknown agent: "+agentID)
	}
	if err := o.registry.UpdateStatus(agentID, status); err != nil {
		return err
	}
	o.bus.emit(Event{
		Type:      EventAgentStatusChanged,
		Timestamp: time.Now(),
		AgentID:   agentID,
		FromState: string(prev.Status),
		ToState:   string(status),
	})
	return nil
}

func canonicalMatchAction(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// AnalyseIntent validates intent and maps its action onto the closed
// action set for its type, enriching with adapter-family operations
// the intent resembles.
func (o *Orchestrator) AnalyseIntent(intent domain.Intent) (domain.AnalyzedIntent, error) {
	if intent.Type == "" || intent.Action == "" {
		return domain.AnalyzedIntent{}, domain.NewError(domain.KindValidation, domain.CodeValidationError,
			"intent must carry a non-empty type and action")
	}

	actionSet, known := intentActionSets[intent.Type]
	if !known {
		return domain.AnalyzedIntent{}, domain.NewError(domain.KindUnsupported, domain.CodeUnsupportedIntent,
			fmt.Sprintf("unknown intent type: %s", intent.Type))
	}

	var matched string
	for _, candidate := range actionSet {
		if canonicalMatchAction(intent.Action, candidate) {
			matched = candidate
			break
		}
	}
	if matched == "" {
		return domain.AnalyzedIntent{}, domain.NewError(domain.KindUnsupported, domain.CodeUnsupportedIntent,
			fmt.Sprintf("action %q is not supported for intent type %s", intent.Action, intent.Type)).
			WithSuggestions(actionSet).
			WithDetails(map[string]interface{}{"supportedActions": actionSet})
	}

	requiredActions := []string{matched}
	requiredActions = append(requiredActions, enrichedAdapterActions(intent, matched)...)

	confidence := 0.7
	if strings.EqualFold(intent.Action, matched) {
		confidence = 0.9
	}

	complexity := domain.ComplexityLow
	switch {
	case len(requiredActions) > 3:
		complexity = domain.ComplexityHigh
	case len(requiredActions) > 1:
		complexity = domain.ComplexityMedium
	}

	var risks []string
	if canonicalMatchAction(matched, "borrow") {
		risks = append(risks, "liquidation_risk")
	}
	if canonicalMatchAction(matched, "swap") || canonicalMatchAction(matched, "add_liquidity") {
		risks = append(risks, "slippage_risk")
	}
	if isHighValue(intent.Parameters) {
		risks = append(risks, "high_value_transaction")
	}

	return domain.AnalyzedIntent{
		Intent:              intent,
		Confidence:          confidence,
		RequiredActions:     requiredActions,
		EstimatedComplexity: complexity,
		Risks:               risks,
	}, nil
}

// enrichedAdapterActions appends vocabulary entries from the three
// adapter families whose operations the matched action resembles.
func enrichedAdapterActions(intent domain.Intent, matched string) []string {
	var extra []string
	probe := strings.ToLower(matched + " " + intent.Action)

	if looksLikeBlockchainAction(probe) {
		extra = append(extra, matchingVocabulary(domain.FamilyActionKit, matched)...)
	}
	if looksLikeAnalyticsAction(probe) {
		extra = append(extra, matchingVocabulary(domain.FamilyAnalytics, matched)...)
	}
	if looksLikeRealtimeAction(probe) {
		extra = append(extra, matchingVocabulary(domain.FamilyRealtime, matched)...)
	}
	return extra
}

func looksLikeBlockchainAction(probe string) bool {
	for _, kw := range []string{"supply", "borrow", "withdraw", "repay", "swap", "liquidity", "stake", "transfer", "approve"} {
		if strings.Contains(probe, kw) {
			return true
		}
	}
	return false
}

func looksLikeAnalyticsAction(probe string) bool {
	for _, kw := range []string{"analy", "portfolio", "market", "credit", "show_positions", "rebalance"} {
		if strings.Contains(probe, kw) {
			return true
		}
	}
	return false
}

func looksLikeRealtimeAction(probe string) bool {
	for _, kw := range []string{"current", "live", "monitor", "subscribe", "stream", "blockchain_state", "wallet_balance"} {
		if strings.Contains(probe, kw) {
			return true
		}
	}
	return false
}

// matchingVocabulary returns the operations of family whose name
// canonically matches matched, so enrichment never drags in the
// family's entire unrelated vocabulary.
func matchingVocabulary(family domain.AdapterFamily, matched string) []string {
	var ops []string
	for op := range adapters.Vocabularies[family] {
		if canonicalMatchAction(op, matched) {
			ops = append(ops, op)
		}
	}
	return ops
}

func isHighValue(params map[string]interface{}) bool {
	raw, ok := params["amount"]
	if !ok {
		return false
	}
	switch v := raw.(type) {
	case float64:
		return v >= highValueThreshold
	case int:
		return float64(v) >= highValueThreshold
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return err == nil && f >= highValueThreshold
	default:
		return false
	}
}

// SelectAgent maps the analyzed intent's type to an agent type and
// delegates to the registry's weighted selection.
func (o *Orchestrator) SelectAgent(ai domain.AnalyzedIntent) (domain.SelectedAgent, error) {
	agentType, ok := intentAgentType[ai.Intent.Type]
	if !ok {
		return domain.SelectedAgent{}, domain.NewError(domain.KindUnsupported, domain.CodeUnsupportedIntent,
			fmt.Sprintf("no agent type mapped for intent type %s", ai.Intent.Type))
	}
	primaryAction := ai.RequiredActions[0]

	agent, err := o.registry.FindBest(agentType, primaryAction, ai.Intent.Parameters)
	if err != nil {
		return domain.SelectedAgent{}, err
	}

	matched := 0
	var available []string
	estimatedMs := 0
	for _, capability := range agent.Capabilities {
		available = append(available, capability.Action)
		for _, req := range ai.RequiredActions {
			if canonicalMatchAction(capability.Action, req) {
				matched++
				estimatedMs += capability.EstimatedExecutionTimeMs
				break
			}
		}
	}

	matchScore := 0.0
	if len(ai.RequiredActions) > 0 {
		matchScore = float64(matched) / float64(len(ai.RequiredActions))
	}
	if estimatedMs == 0 {
		estimatedMs = 1000
	}

	return domain.SelectedAgent{
		Agent:                    agent,
		MatchScore:               matchScore,
		AvailableCapabilities:    available,
		EstimatedExecutionTimeMs: estimatedMs,
	}, nil
}

// CreateTask builds a pending Task from an analyzed intent and its
// selected agent.
func (o *Orchestrator) CreateTask(ai domain.AnalyzedIntent, sa domain.SelectedAgent) domain.Task {
	task := domain.Task{
		ID:         domain.NewID(),
		IntentID:   ai.Intent.ID,
		AgentID:    sa.Agent.ID,
		Action:     ai.RequiredActions[0],
		Parameters: ai.Intent.Parameters,
		Status:     domain.TaskPending,
		Priority:   ai.Intent.Priority.Weight(),
		CreatedAt:  time.Now(),
	}
	o.tasksMu.Lock()
	o.tasks[task.ID] = task
	o.tasksMu.Unlock()
	return task
}

// ExecuteTask dispatches task to agent through the router, tracking
// status transitions and emitting task_started/task_completed
// (or error_occurred on failure).
func (o *Orchestrator) ExecuteTask(ctx context.Context, task domain.Task, agent domain.Agent) domain.TaskResult {
	task.Status = domain.TaskRunning
	o.setTask(task)
	o.bus.emit(Event{Type: EventTaskStarted, Timestamp: time.Now(), Task: &task, Agent: &agent})

	start := time.Now()
	result := o.router.SendTaskRequest(ctx, task, agent)
	elapsed := time.Since(start)
	success := result.Status == domain.TaskCompleted
	// A single call here both records the outcome (error rate, latency
	// EMA) and leaves activeTasks net unchanged; a paired +1/-1 around
	// SendTaskRequest would double-count totalCalls and corrupt the
	// latency average across the two calls.
	o.registry.UpdateLoadMetrics(agent.ID, 0, success, float64(elapsed.Milliseconds()))

	if result.Metadata == nil {
		result.Metadata = map[string]interface{}{}
	}
	result.Metadata["agentId"] = agent.ID

	task.Status = result.Status
	o.setTask(task)

	if success {
		o.bus.emit(Event{Type: EventTaskCompleted, Timestamp: time.Now(), Task: &task, Result: &result})
	} else {
		o.bus.emit(Event{
			Type:      EventErrorOccurred,
			Timestamp: time.Now(),
			Task:      &task,
			Result:    &result,
			Context:   map[string]interface{}{"agentId": agent.ID, "taskId": task.ID},
		})
	}
	return result
}

func (o *Orchestrator) setTask(task domain.Task) {
	o.tasksMu.Lock()
	o.tasks[task.ID] = task
	o.tasksMu.Unlock()
}

// GetTask returns a task by ID, for observability/testing.
func (o *Orchestrator) GetTask(id string) (domain.Task, bool) {
	o.tasksMu.RLock()
	defer o.tasksMu.RUnlock()
	t, ok := o.tasks[id]
	return t, ok
}

// ProcessIntent runs the full analyse -> select -> createTask ->
// executeTask pipeline for a single intent. Before any of that it
// checks the session (or, if the intent carries one, wallet-scoped)
// rate limit, so a single caller flooding intents can't starve every
// other session of agent and adapter capacity.
func (o *Orchestrator) ProcessIntent(ctx context.Context, intent domain.Intent, sessionID string) domain.TaskResult {
	rateKey := ratelimit.CompositeKey("session", sessionID)
	if intent.Context.WalletAddress != "" {
		rateKey = ratelimit.CompositeKey("wallet", intent.Context.WalletAddress)
	}
	if !o.sessionLimiter.Allow(rateKey) {
		return o.failResult(domain.NewError(domain.KindConcurrency, domain.CodeRateLimited,
			"rate limit exceeded for "+rateKey), map[string]interface{}{"sessionId": sessionID})
	}

	o.bus.emit(Event{Type: EventIntentReceived, Timestamp: time.Now(), Intent: &intent})

	ai, err := o.AnalyseIntent(intent)
	if err != nil {
		return o.failResult(err, map[string]interface{}{"sessionId": sessionID})
	}

	sa, err := o.SelectAgent(ai)
	if err != nil {
		return o.failResult(err, map[string]interface{}{"sessionId": sessionID})
	}

	task := o.CreateTask(ai, sa)
	return o.ExecuteTask(ctx, task, sa.Agent)
}

func (o *Orchestrator) failResult(err error, ctx map[string]interface{}) domain.TaskResult {
	oe := domain.AsOrchestratorError(err)
	o.bus.emit(Event{Type: EventErrorOccurred, Timestamp: time.Now(), Err: err, Context: ctx})
	return domain.TaskResult{
		Status: domain.TaskFailed,
		Error: &domain.TaskResultError{
			Code:        oe.Code,
			Message:     oe.Message,
			Recoverable: oe.Recoverable(),
		},
		Metadata: ctx,
	}
}

// ProcessIntentsParallel fans out over intents with bounded
// concurrency equal to cfg.MaxConcurrentTasks, writing each result to
// its pre-sized index so the returned slice always matches input order
// regardless of completion order.
func (o *Orchestrator) ProcessIntentsParallel(ctx context.Context, intents []domain.Intent, sessionID string) []domain.TaskResult {
	results := make([]domain.TaskResult, len(intents))
	sem := make(chan struct{}, o.cfg.MaxConcurrentTasks)
	var wg sync.WaitGroup
	for i, intent := range intents {
		wg.Add(1)
		go func(i int, intent domain.Intent) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[i] = o.ProcessIntent(ctx, intent, sessionID)
		}(i, intent)
	}
	wg.Wait()
	return results
}

// GetAdapterCapabilities reports each started adapter family's
// advertised operation set.
func (o *Orchestrator) GetAdapterCapabilities() map[domain.AdapterFamily][]string {
	o.lifecycleMu.Lock()
	defer o.lifecycleMu.Unlock()
	out := make(map[domain.AdapterFamily][]string, len(o.adapterRegs))
	for _, reg := range o.adapterRegs {
		out[reg.family] = reg.executor.Capabilities()
	}
	return out
}

// ExecuteAdapterOperation runs operation against family through the
// adapter facade, emitting adapter_error on failure.
func (o *Orchestrator) ExecuteAdapterOperation(ctx context.Context, family domain.AdapterFamily, operation string, params map[string]interface{}) (interface{}, error) {
	o.lifecycleMu.Lock()
	familyStarted := false
	for _, reg := range o.adapterRegs {
		if reg.family == family {
			familyStarted = true
			break
		}
	}
	o.lifecycleMu.Unlock()
	if !familyStarted {
		err := domain.NewError(domain.KindNoAvailable, domain.CodeNoAvailableAgents, "adapter not available")
		o.bus.emit(Event{Type: EventErrorOccurred, Timestamp: time.Now(), Err: err, Family: family})
		return nil, err
	}

	result, err := o.facade.Execute(ctx, family, operation, params, domain.PriorityMedium)
	if err != nil {
		o.bus.emit(Event{Type: EventAdapterError, Timestamp: time.Now(), Family: family, Err: err})
	}
	return result, err
}

// Start instantiates every enabled adapter family in a fixed order
// (actionKit, analytics, realtime), registers each with the registry
// and router, and starts health monitoring. On any failure, every
// adapter already started is torn down in reverse order before the
// error is returned.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.lifecycleMu.Lock()
	defer o.lifecycleMu.Unlock()
	if o.started {
		return nil
	}

	var families []string
	if o.cfg.Adapters.ActionKit.Enabled {
		if err := o.startAdapterLocked(domain.FamilyActionKit, adapters.NewActionKit(), nil); err != nil {
			o.teardownLocked()
			return err
		}
		families = append(families, string(domain.FamilyActionKit))
	}
	if o.cfg.Adapters.Analytics.Enabled {
		if err := o.startAdapterLocked(domain.FamilyAnalytics, adapters.NewAnalytics(adapters.InMemoryAnalyticsBackend{}), nil); err != nil {
			o.teardownLocked()
			return err
		}
		families = append(families, string(domain.FamilyAnalytics))
	}
	if o.cfg.Adapters.Realtime.Enabled {
		rtCfg := adapters.DefaultRealtimeConfig()
		if url, ok := o.cfg.Adapters.Realtime.Config["url"].(string); ok && url != "" {
			rtCfg.URL = url
		}
		rt := adapters.NewRealtime(rtCfg)
		if err := rt.Connect(ctx); err != nil {
			o.teardownLocked()
			return domain.NewError(domain.KindFatal, domain.CodeExecutionFailed, fmt.Sprintf("realtime adapter connect failed: %v", err))
		}
		if err := o.startAdapterLocked(domain.FamilyRealtime, rt, rt.Close); err != nil {
			o.teardownLocked()
			return err
		}
		families = append(families, string(domain.FamilyRealtime))
	}

	healthCtx, cancel := context.WithCancel(ctx)
	if err := o.registry.StartHealthMonitoring(healthCtx); err != nil {
		cancel()
		o.teardownLocked()
		return err
	}
	o.healthCancel = cancel

	o.started = true
	o.bus.emit(Event{Type: EventAdaptersInitialized, Timestamp: time.Now(), Context: map[string]interface{}{"families": families}})
	return nil
}

func (o *Orchestrator) startAdapterLocked(family domain.AdapterFamily, executor domain.AdapterExecutor, teardown func() error) error {
	instanceID := string(family) + "-1"
	if err := o.registry.RegisterAdapter(instanceID, family, executor.Capabilities(), 1, nil); err != nil {
		return err
	}
	if err := o.router.RegisterAdapter(instanceID, executor); err != nil {
		return err
	}
	o.adapterRegs = append(o.adapterRegs, adapterRegistration{
		family:     family,
		instanceID: instanceID,
		executor:   executor,
		teardown:   teardown,
	})
	return nil
}

// Stop tears down every adapter in reverse registration order and
// stops health monitoring.
func (o *Orchestrator) Stop() error {
	o.lifecycleMu.Lock()
	defer o.lifecycleMu.Unlock()
	if !o.started {
		return nil
	}
	if o.healthCancel != nil {
		o.healthCancel()
	}
	o.registry.StopHealthMonitoring()
	o.teardownLocked()
	o.started = false
	return nil
}

func (o *Orchestrator) teardownLocked() {
	for i := len(o.adapterRegs) - 1; i >= 0; i-- {
		reg := o.adapterRegs[i]
		o.router.UnregisterAdapter(reg.instanceID)
		if reg.teardown != nil {
			if err := reg.teardown(); err != nil {
				o.bus.emit(Event{Type: EventAdapterError, Timestamp: time.Now(), Family: reg.family, Err: err})
			}
		}
	}
	o.adapterRegs = nil
}
