// Package registry implements the Agent Registry: the component that
// tracks agents and adapter instances, their health and load, and
// answers selection queries for both. It is the sole owner of Agent and
// AdapterInstance records and the authority on health state — the
// router only ever reads health through it.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Angleito/Seiron-sub010/internal/domain"
	"github.com/Angleito/Seiron-sub010/internal/observability"
)

// Config configures the registry's health monitoring and scoring.
type Config struct {
	HealthCheckIntervalMs  int                `yaml:"health_check_interval_ms"`
	MaxConsecutiveFailures int                `yaml:"max_consecutive_failures"`
	ResponseTimeoutMs      int                `yaml:"response_timeout_ms"`
	LoadBalancingWeights   map[string]float64 `yaml:"load_balancing_weights"`
	AdapterConfig          AdapterConfig      `yaml:"adapter_config"`

	// WeightActiveTasks/WeightErrorRate/WeightLatency tune the selection
	// score: score = activeTasks*Wa + errorRate*We + latencyFactor -
	// capabilityWeight[agentId].
	WeightActiveTasks float64 `yaml:"weight_active_tasks"`
	WeightErrorRate   float64 `yaml:"weight_error_rate"`
	WeightLatency     float64 `yaml:"weight_latency"`
}

// AdapterConfig configures adapter-pool behavior.
type AdapterConfig struct {
	EnableLoadBalancing bool `yaml:"enable_load_balancing"`
	MaxAdaptersPerType  int  `yaml:"max_adapters_per_type"`
	HealthCheckTimeoutMs int `yaml:"health_check_timeout_ms"`
	FailoverEnabled     bool `yaml:"failover_enabled"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() Config {
	return Config{
		HealthCheckIntervalMs:  30000,
		MaxConsecutiveFailures: 3,
		ResponseTimeoutMs:      5000,
		LoadBalancingWeights:   map[string]float64{},
		WeightActiveTasks:      1.0,
		WeightErrorRate:        10.0,
		WeightLatency:          0.001,
		AdapterConfig: AdapterConfig{
			EnableLoadBalancing: true,
			MaxAdaptersPerType:  5,
			HealthCheckTimeoutMs: 3000,
			FailoverEnabled:     true,
		},
	}
}

// agentRecord is the registry's internal per-agent bookkeeping, beyond
// the public domain.Agent snapshot.
type agentRecord struct {
	agent               domain.Agent
	activeTasks         int
	errorCount          int
	totalCalls          int
	avgLatencyMs        float64
	consecutiveFailures int
}

func (r *agentRecord) errorRate() float64 {
	if r.totalCalls == 0 {
		return 0
	}
	return float64(r.errorCount) / float64(r.totalCalls)
}

// adapterRecord is the registry's internal per-adapter bookkeeping.
type adapterRecord struct {
	instance            domain.AdapterInstance
	consecutiveFailures int
	schema              *jsonschema.Schema // compiled Capability.Schema, if any
}

// HealthProber pings an agent or adapter instance and reports whether it
// is alive, within the configured response timeout.
type HealthProber interface {
	ProbeAgent(ctx context.Context, agentID string) error
	ProbeAdapter(ctx context.Context, instanceID string, family domain.AdapterFamily) error
}

// Registry tracks agents and adapter instances.
type Registry struct {
	cfg    Config
	logger *observability.Logger

	agentsMu sync.RWMutex
	agents   map[string]*agentRecord

	adaptersMu sync.RWMutex
	adapters   map[string]*adapterRecord

	prober HealthProber
	cron   *cron.Cron
	entryID cron.EntryID
	monitoring bool
}

// New creates a Registry. prober may be nil, in which case health
// monitoring probes are skipped (useful in tests and the simulate CLI
// command where no live agents/adapters exist).
func New(cfg Config, prober HealthProber, logger *observability.Logger) *Registry {
	return &Registry{
		cfg:      cfg,
		logger:   logger,
		agents:   make(map[string]*agentRecord),
		adapters: make(map[string]*adapterRecord),
		prober:   prober,
		cron:     cron.New(),
	}
}

// Register adds a new agent. Re-registration of an existing ID fails
// with CodeDuplicateID.
func (r *Registry) Register(agent domain.Agent) error {
	r.agentsMu.Lock()
	defer r.agentsMu.Unlock()

	if _, exists := r.agents[agent.ID]; exists {
		return domain.NewError(domain.KindValidation, domain.CodeDuplicateID,
			fmt.Sprintf("agent %s is already registered", agent.ID))
	}
	r.agents[agent.ID] = &agentRecord{agent: agent.Clone()}
	return nil
}

// Unregister removes an agent by ID. A no-op if the ID is unknown.
func (r *Registry) Unregister(id string) {
	r.agentsMu.Lock()
	defer r.agentsMu.Unlock()
	delete(r.agents, id)
}

// Get returns a snapshot of the agent with the given ID.
func (r *Registry) Get(id string) (domain.Agent, bool) {
	r.agentsMu.RLock()
	defer r.agentsMu.RUnlock()
	rec, ok := r.agents[id]
	if !ok {
		return domain.Agent{}, false
	}
	return rec.agent.Clone(), true
}

// AllByType returns snapshots of every agent of the given type.
func (r *Registry) AllByType(agentType domain.AgentType) []domain.Agent {
	r.agentsMu.RLock()
	defer r.agentsMu.RUnlock()

	var out []domain.Agent
	for _, rec := range r.agents {
		if rec.agent.Type == agentType {
			out = append(out, rec.agent.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Healthy returns snapshots of every agent not in offline/error status.
func (r *Registry) Healthy() []domain.Agent {
	r.agentsMu.RLock()
	defer r.agentsMu.RUnlock()

	var out []domain.Agent
	for _, rec := range r.agents {
		if rec.agent.Status != domain.AgentOffline && rec.agent.Status != domain.AgentError {
			out = append(out, rec.agent.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ByCapability returns snapshots of every agent declaring action.
func (r *Registry) ByCapability(action string) []domain.Agent {
	r.agentsMu.RLock()
	defer r.agentsMu.RUnlock()

	var out []domain.Agent
	for _, rec := range r.agents {
		if rec.agent.HasCapability(action) {
			out = append(out, rec.agent.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UpdateStatus sets an agent's status. The registry is the only
// component permitted to mutate Agent.Status.
func (r *Registry) UpdateStatus(id string, status domain.AgentStatus) error {
	r.agentsMu.Lock()
	defer r.agentsMu.Unlock()
	rec, ok := r.agents[id]
	if !ok {
		return domain.NewError(domain.KindNoAvailable, domain.CodeNoAvailableAgents, "unknown agent: "+id)
	}
	rec.agent.Status = status
	return nil
}

// LoadMetrics reports an agent's current active-task count and error rate.
func (r *Registry) LoadMetrics(id string) (activeTasks int, errorRate float64, ok bool) {
	r.agentsMu.RLock()
	defer r.agentsMu.RUnlock()
	rec, found := r.agents[id]
	if !found {
		return 0, 0, false
	}
	return rec.activeTasks, rec.errorRate(), true
}

// UpdateLoadMetrics adjusts an agent's active-task counter by delta and
// records a call outcome for the error-rate score.
func (r *Registry) UpdateLoadMetrics(id string, delta int, success bool, latencyMs float64) {
	r.agentsMu.Lock()
	defer r.agentsMu.Unlock()
	rec, ok := r.agents[id]
	if !ok {
		return
	}
	rec.activeTasks += delta
	if rec.activeTasks < 0 {
		rec.activeTasks = 0
	}
	rec.totalCalls++
	if !success {
		rec.errorCount++
	}
	if rec.avgLatencyMs == 0 {
		rec.avgLatencyMs = latencyMs
	} else {
		rec.avgLatencyMs = rec.avgLatencyMs*0.9 + latencyMs*0.1
	}
}

// SetCapabilityWeight sets the configurable selection bias for an agent.
func (r *Registry) SetCapabilityWeight(agentID string, weight float64) {
	r.agentsMu.Lock()
	defer r.agentsMu.Unlock()
	if r.cfg.LoadBalancingWeights == nil {
		r.cfg.LoadBalancingWeights = map[string]float64{}
	}
	r.cfg.LoadBalancingWeights[agentID] = weight
}

// paramsCompatible checks that params carries every declared required
// parameter and that present values are type-compatible, per a small
// internal schema checker.
func paramsCompatible(capParams []domain.CapabilityParameter, params map[string]interface{}) bool {
	for _, p := range capParams {
		v, present := params[p.Name]
		if !present {
			if p.Required {
				return false
			}
			continue
		}
		if !typeCompatible(p.Type, v) {
			return false
		}
	}
	return true
}

func typeCompatible(declared string, v interface{}) bool {
	switch strings.ToLower(declared) {
	case "", "any":
		return true
	case "string":
		_, ok := v.(string)
		return ok
	case "number", "float", "float64", "int", "integer":
		switch v.(type) {
		case float64, int, int64:
			return true
		default:
			return false
		}
	case "bool", "boolean":
		_, ok := v.(bool)
		return ok
	case "object", "map":
		_, ok := v.(map[string]interface{})
		return ok
	case "array", "list":
		switch v.(type) {
		case []interface{}, []string:
			return true
		default:
			return false
		}
	default:
		return true
	}
}

// FindBest implements agent selection: restrict to agents of the
// given type declaring action, filter by
// parameter-schema compatibility and health, then minimise a weighted
// load score, breaking ties by activeTasks then lexicographic ID.
func (r *Registry) FindBest(agentType domain.AgentType, action string, params map[string]interface{}) (domain.Agent, error) {
	r.agentsMu.RLock()
	var candidates []*agentRecord
	for _, rec := range r.agents {
		if rec.agent.Type != agentType {
			continue
		}
		if rec.agent.Status == domain.AgentOffline || rec.agent.Status == domain.AgentError {
			continue
		}
		var cap *domain.Capability
		for i := range rec.agent.Capabilities {
			c := &rec.agent.Capabilities[i]
			if canonicalMatch(c.Action, action) {
				cap = c
				break
			}
		}
		if cap == nil {
			continue
		}
		if !paramsCompatible(cap.Parameters, params) {
			continue
		}
		candidates = append(candidates, rec)
	}
	r.agentsMu.RUnlock()

	if len(candidates) == 0 {
		return domain.Agent{}, r.noAvailableError(agentType)
	}

	r.agentsMu.RLock()
	defer r.agentsMu.RUnlock()

	best := candidates[0]
	bestScore := r.score(best)
	for _, rec := range candidates[1:] {
		score := r.score(rec)
		if score < bestScore ||
			(score == bestScore && rec.activeTasks < best.activeTasks) ||
			(score == bestScore && rec.activeTasks == best.activeTasks && rec.agent.ID < best.agent.ID) {
			best = rec
			bestScore = score
		}
	}
	return best.agent.Clone(), nil
}

// canonicalMatch is a case-folded, whitespace-trimmed, bidirectional
// substring match.
func canonicalMatch(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func (r *Registry) score(rec *agentRecord) float64 {
	weight := r.cfg.LoadBalancingWeights[rec.agent.ID] + rec.agent.LoadBalancingWeight
	return float64(rec.activeTasks)*r.cfg.WeightActiveTasks +
		rec.errorRate()*r.cfg.WeightErrorRate +
		rec.avgLatencyMs*r.cfg.WeightLatency -
		weight
}

func (r *Registry) noAvailableError(agentType domain.AgentType) error {
	suggestions := r.suggestedAlternatives(agentType)
	return domain.NewError(domain.KindNoAvailable, domain.CodeNoAvailableAgents,
		fmt.Sprintf("no available agent of type %s satisfies the request", agentType)).
		WithSuggestions(suggestions)
}

// suggestedAlternatives lists up to 3 other agents of the same type.
func (r *Registry) suggestedAlternatives(agentType domain.AgentType) []string {
	var ids []string
	for _, rec := range r.agents {
		if rec.agent.Type == agentType {
			ids = append(ids, rec.agent.ID)
		}
	}
	sort.Strings(ids)
	if len(ids) > 3 {
		ids = ids[:3]
	}
	return ids
}

// RegisterAdapter adds a new adapter instance to the family's pool. An
// optional schema (full JSON Schema document) is compiled eagerly so
// later parameter validation never pays compile cost on the hot path.
func (r *Registry) RegisterAdapter(id string, family domain.AdapterFamily, capabilities []string, priority int, schema []byte) error {
	r.adaptersMu.Lock()
	defer r.adaptersMu.Unlock()

	if _, exists := r.adapters[id]; exists {
		return domain.NewError(domain.KindValidation, domain.CodeDuplicateID,
			fmt.Sprintf("adapter instance %s is already registered", id))
	}

	rec := &adapterRecord{
		instance: domain.AdapterInstance{
			ID:           id,
			Family:       family,
			Priority:     priority,
			Capabilities: capabilities,
			Status:       domain.AdapterActive,
			IsHealthy:    true,
			LastUsed:     time.Now(),
		},
	}
	if len(schema) > 0 {
		compiled, err := jsonschema.CompileString(id+"-schema", string(schema))
		if err != nil {
			return domain.NewError(domain.KindValidation, domain.CodeValidationError, "invalid capability schema: "+err.Error())
		}
		rec.schema = compiled
	}
	r.adapters[id] = rec
	return nil
}

// ValidateAgainstSchema validates params against the instance's compiled
// JSON Schema, if one was supplied at registration; a no-op otherwise.
func (r *Registry) ValidateAgainstSchema(instanceID string, params map[string]interface{}) error {
	r.adaptersMu.RLock()
	rec, ok := r.adapters[instanceID]
	r.adaptersMu.RUnlock()
	if !ok || rec.schema == nil {
		return nil
	}
	if err := rec.schema.Validate(params); err != nil {
		return domain.NewError(domain.KindValidation, domain.CodeValidationError, "schema validation failed: "+err.Error())
	}
	return nil
}

// FindBestAdapter filters by family (if preferred) and capability,
// picking the healthy candidate with
// fewest activeOperations, ties broken by least-recently-used. It does
// not reserve the candidate it returns — two concurrent callers can be
// handed the same instance. Callers that go on to dispatch work should
// use ReserveBestAdapter instead; this method exists for read-only
// introspection (and is exercised directly by tests).
func (r *Registry) FindBestAdapter(capability string, preferredFamily domain.AdapterFamily) (domain.AdapterInstance, error) {
	r.adaptersMu.RLock()
	defer r.adaptersMu.RUnlock()
	best, err := r.bestAdapterLocked(capability, preferredFamily)
	if err != nil {
		return domain.AdapterInstance{}, err
	}
	return best.instance, nil
}

// ReserveBestAdapter selects the least-loaded healthy candidate exactly
// as FindBestAdapter does, but increments its activeOperations counter
// before releasing the lock, so the selection and the load-counter
// update are atomic: no second caller can observe the pre-increment
// counter and pick the same instance. Callers must eventually call
// DecrementActiveOperations(id, ...) for every successful reservation.
func (r *Registry) ReserveBestAdapter(capability string, preferredFamily domain.AdapterFamily) (domain.AdapterInstance, error) {
	r.adaptersMu.Lock()
	defer r.adaptersMu.Unlock()
	best, err := r.bestAdapterLocked(capability, preferredFamily)
	if err != nil {
		return domain.AdapterInstance{}, err
	}
	best.instance.ActiveOperations++
	return best.instance, nil
}

// bestAdapterLocked implements the selection rule shared by
// FindBestAdapter and ReserveBestAdapter; callers must hold adaptersMu
// (read or write).
func (r *Registry) bestAdapterLocked(capability string, preferredFamily domain.AdapterFamily) (*adapterRecord, error) {
	var candidates []*adapterRecord
	for _, rec := range r.adapters {
		if preferredFamily != "" && rec.instance.Family != preferredFamily {
			continue
		}
		if !rec.instance.IsHealthy || rec.instance.Status != domain.AdapterActive {
			continue
		}
		if !rec.instance.HasCapability(capability) {
			continue
		}
		candidates = append(candidates, rec)
	}

	if len(candidates) == 0 {
		return nil, domain.NewError(domain.KindNoAvailable, domain.CodeNoAvailableAgents,
			"no healthy adapter carries capability "+capability)
	}

	best := candidates[0]
	for _, rec := range candidates[1:] {
		if rec.instance.ActiveOperations < best.instance.ActiveOperations ||
			(rec.instance.ActiveOperations == best.instance.ActiveOperations && rec.instance.LastUsed.Before(best.instance.LastUsed)) {
			best = rec
		}
	}
	return best, nil
}

// IncrementActiveOperations atomically increments an adapter's
// activeOperations counter; returns false if the instance is unknown.
func (r *Registry) IncrementActiveOperations(id string) bool {
	r.adaptersMu.Lock()
	defer r.adaptersMu.Unlock()
	rec, ok := r.adapters[id]
	if !ok {
		return false
	}
	rec.instance.ActiveOperations++
	return true
}

// DecrementActiveOperations atomically decrements an adapter's
// activeOperations counter and refreshes lastUsed. Never goes negative.
func (r *Registry) DecrementActiveOperations(id string, success bool) {
	r.adaptersMu.Lock()
	defer r.adaptersMu.Unlock()
	rec, ok := r.adapters[id]
	if !ok {
		return
	}
	if rec.instance.ActiveOperations > 0 {
		rec.instance.ActiveOperations--
	}
	if success {
		rec.instance.LastUsed = time.Now()
	}
}

// UpdateAdapterHealth sets an adapter instance's health flag. Idempotent:
// applying the same value twice leaves state unchanged. This is the
// single authoritative health write path; Router forwards into this
// method rather than maintaining its own health state.
func (r *Registry) UpdateAdapterHealth(id string, healthy bool) {
	r.adaptersMu.Lock()
	defer r.adaptersMu.Unlock()
	rec, ok := r.adapters[id]
	if !ok {
		return
	}
	if healthy {
		rec.consecutiveFailures = 0
		rec.instance.IsHealthy = true
		rec.instance.Status = domain.AdapterActive
		return
	}
	rec.consecutiveFailures++
	if rec.consecutiveFailures >= r.cfg.MaxConsecutiveFailures {
		rec.instance.IsHealthy = false
		rec.instance.Status = domain.AdapterError
	}
}

// AdaptersByFamily returns snapshots of every adapter instance in family.
func (r *Registry) AdaptersByFamily(family domain.AdapterFamily) []domain.AdapterInstance {
	r.adaptersMu.RLock()
	defer r.adaptersMu.RUnlock()

	var out []domain.AdapterInstance
	for _, rec := range r.adapters {
		if rec.instance.Family == family {
			out = append(out, rec.instance)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// StartHealthMonitoring schedules periodic health probes via a
// robfig/cron "@every" spec derived from cfg.HealthCheckIntervalMs.
func (r *Registry) StartHealthMonitoring(ctx context.Context) error {
	if r.monitoring {
		return nil
	}
	interval := time.Duration(r.cfg.HealthCheckIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = 30 * time.Second
	}
	entryID, err := r.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		r.performHealthChecks(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule health monitoring: %w", err)
	}
	r.entryID = entryID
	r.cron.Start()
	r.monitoring = true
	return nil
}

// StopHealthMonitoring stops the periodic health probe schedule.
func (r *Registry) StopHealthMonitoring() {
	if !r.monitoring {
		return
	}
	r.cron.Remove(r.entryID)
	stopCtx := r.cron.Stop()
	<-stopCtx.Done()
	r.monitoring = false
}

func (r *Registry) performHealthChecks(ctx context.Context) {
	r.probeAgents(ctx)
	r.performAdapterHealthChecks(ctx)
}

func (r *Registry) probeAgents(ctx context.Context) {
	if r.prober == nil {
		return
	}
	r.agentsMu.RLock()
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	r.agentsMu.RUnlock()

	timeout := time.Duration(r.cfg.ResponseTimeoutMs) * time.Millisecond
	for _, id := range ids {
		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		err := r.prober.ProbeAgent(probeCtx, id)
		cancel()

		r.agentsMu.Lock()
		rec, ok := r.agents[id]
		if ok {
			if err == nil {
				rec.consecutiveFailures = 0
				if rec.agent.Status == domain.AgentError {
					rec.agent.Status = domain.AgentIdle
				}
			} else {
				rec.consecutiveFailures++
				if rec.consecutiveFailures >= r.cfg.MaxConsecutiveFailures {
					rec.agent.Status = domain.AgentError
				}
			}
		}
		r.agentsMu.Unlock()
	}
}

// PerformAdapterHealthChecks probes every registered adapter instance's
// family-specific liveness and updates health via UpdateAdapterHealth.
func (r *Registry) performAdapterHealthChecks(ctx context.Context) {
	r.PerformAdapterHealthChecks(ctx)
}

// PerformAdapterHealthChecks is the exported, directly callable form.
func (r *Registry) PerformAdapterHealthChecks(ctx context.Context) {
	if r.prober == nil {
		return
	}
	r.adaptersMu.RLock()
	type target struct {
		id     string
		family domain.AdapterFamily
	}
	targets := make([]target, 0, len(r.adapters))
	for id, rec := range r.adapters {
		targets = append(targets, target{id: id, family: rec.instance.Family})
	}
	r.adaptersMu.RUnlock()

	timeout := time.Duration(r.cfg.AdapterConfig.HealthCheckTimeoutMs) * time.Millisecond
	for _, t := range targets {
		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		err := r.prober.ProbeAdapter(probeCtx, t.id, t.family)
		cancel()
		r.UpdateAdapterHealth(t.id, err == nil)
	}
}
