package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Angleito/Seiron-sub010/internal/domain"
)

func testAgent(id string, agentType domain.AgentType, action string) domain.Agent {
	return domain.Agent{
		ID:   id,
		Type: agentType,
		Name: id,
		Capabilities: []domain.Capability{
			{Action: action, Parameters: []domain.CapabilityParameter{
				{Name: "wallet", Type: "string", Required: true},
			}},
		},
		Status: domain.AgentIdle,
	}
}

func TestRegisterDuplicateID(t *testing.T) {
	r := New(DefaultConfig(), nil, nil)
	if err := r.Register(testAgent("a1", domain.AgentLending, "lend")); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := r.Register(testAgent("a1", domain.AgentLending, "lend"))
	if err == nil {
		t.Fatal("expected duplicate ID error")
	}
	oe := domain.AsOrchestratorError(err)
	if oe.Code != domain.CodeDuplicateID {
		t.Errorf("code = %s, want %s", oe.Code, domain.CodeDuplicateID)
	}
}

func TestUnregisterAndGet(t *testing.T) {
	r := New(DefaultConfig(), nil, nil)
	_ = r.Register(testAgent("a1", domain.AgentLending, "lend"))
	r.Unregister("a1")
	if _, ok := r.Get("a1"); ok {
		t.Fatal("expected agent to be gone after unregister")
	}
	r.Unregister("does-not-exist") // no panic
}

func TestAllByTypeAndHealthy(t *testing.T) {
	r := New(DefaultConfig(), nil, nil)
	_ = r.Register(testAgent("a1", domain.AgentLending, "lend"))
	_ = r.Register(testAgent("a2", domain.AgentLending, "lend"))
	_ = r.Register(testAgent("a3", domain.AgentPortfolio, "get_portfolio"))
	_ = r.UpdateStatus("a2", domain.AgentOffline)

	lending := r.AllByType(domain.AgentLending)
	if len(lending) != 2 {
		t.Fatalf("AllByType = %d, want 2", len(lending))
	}

	healthy := r.Healthy()
	if len(healthy) != 2 {
		t.Fatalf("Healthy = %d, want 2 (a1, a3)", len(healthy))
	}
	for _, a := range healthy {
		if a.ID == "a2" {
			t.Error("offline agent a2 should not be healthy")
		}
	}
}

func TestByCapability(t *testing.T) {
	r := New(DefaultConfig(), nil, nil)
	_ = r.Register(testAgent("a1", domain.AgentLending, "lend"))
	_ = r.Register(testAgent("a2", domain.AgentLiquidity, "add_liquidity"))

	got := r.ByCapability("lend")
	if len(got) != 1 || got[0].ID != "a1" {
		t.Fatalf("ByCapability(lend) = %v", got)
	}
}

func TestUpdateStatusUnknownAgent(t *testing.T) {
	r := New(DefaultConfig(), nil, nil)
	err := r.UpdateStatus("ghost", domain.AgentBusy)
	if err == nil {
		t.Fatal("expected error for unknown agent")
	}
}

func TestLoadMetricsRoundTrip(t *testing.T) {
	r := New(DefaultConfig(), nil, nil)
	_ = r.Register(testAgent("a1", domain.AgentLending, "lend"))

	r.UpdateLoadMetrics("a1", 1, true, 50)
	r.UpdateLoadMetrics("a1", 1, false, 100)

	active, errRate, ok := r.LoadMetrics("a1")
	if !ok {
		t.Fatal("expected metrics for a1")
	}
	if active != 2 {
		t.Errorf("activeTasks = %d, want 2", active)
	}
	if errRate != 0.5 {
		t.Errorf("errorRate = %v, want 0.5", errRate)
	}

	r.UpdateLoadMetrics("a1", -5, true, 10) // never negative
	active, _, _ = r.LoadMetrics("a1")
	if active != 0 {
		t.Errorf("activeTasks after overshoot decrement = %d, want 0", active)
	}
}

func TestFindBestPrefersLowerLoad(t *testing.T) {
	r := New(DefaultConfig(), nil, nil)
	_ = r.Register(testAgent("busy", domain.AgentLending, "lend"))
	_ = r.Register(testAgent("idle", domain.AgentLending, "lend"))
	r.UpdateLoadMetrics("busy", 5, true, 10)

	best, err := r.FindBest(domain.AgentLending, "lend", map[string]interface{}{"wallet": "0xabc"})
	if err != nil {
		t.Fatalf("FindBest: %v", err)
	}
	if best.ID != "idle" {
		t.Errorf("FindBest = %s, want idle", best.ID)
	}
}

func TestFindBestCaseFoldedSubstringMatch(t *testing.T) {
	r := New(DefaultConfig(), nil, nil)
	_ = r.Register(testAgent("a1", domain.AgentLending, "Lend Tokens"))

	best, err := r.FindBest(domain.AgentLending, "lend", map[string]interface{}{"wallet": "0xabc"})
	if err != nil {
		t.Fatalf("FindBest: %v", err)
	}
	if best.ID != "a1" {
		t.Errorf("FindBest = %s, want a1", best.ID)
	}
}

func TestFindBestRejectsIncompatibleParams(t *testing.T) {
	r := New(DefaultConfig(), nil, nil)
	_ = r.Register(testAgent("a1", domain.AgentLending, "lend"))

	_, err := r.FindBest(domain.AgentLending, "lend", map[string]interface{}{})
	if err == nil {
		t.Fatal("expected error for missing required wallet param")
	}
	oe := domain.AsOrchestratorError(err)
	if oe.Code != domain.CodeNoAvailableAgents {
		t.Errorf("code = %s, want %s", oe.Code, domain.CodeNoAvailableAgents)
	}
}

func TestFindBestNoAvailableSuggestionsCappedAtThree(t *testing.T) {
	r := New(DefaultConfig(), nil, nil)
	for _, id := range []string{"a1", "a2", "a3", "a4"} {
		_ = r.Register(domain.Agent{ID: id, Type: domain.AgentLending, Status: domain.AgentOffline})
	}
	_, err := r.FindBest(domain.AgentLending, "lend", nil)
	if err == nil {
		t.Fatal("expected no-available error")
	}
	oe := domain.AsOrchestratorError(err)
	if len(oe.Suggestions) > 3 {
		t.Errorf("suggestions = %d, want <= 3", len(oe.Suggestions))
	}
}

func TestRegisterAdapterDuplicateID(t *testing.T) {
	r := New(DefaultConfig(), nil, nil)
	if err := r.RegisterAdapter("i1", domain.FamilyActionKit, []string{"lend"}, 0, nil); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := r.RegisterAdapter("i1", domain.FamilyActionKit, []string{"lend"}, 0, nil)
	if err == nil {
		t.Fatal("expected duplicate adapter ID error")
	}
}

func TestFindBestAdapterLeastActiveOps(t *testing.T) {
	r := New(DefaultConfig(), nil, nil)
	_ = r.RegisterAdapter("i1", domain.FamilyActionKit, []string{"lend"}, 0, nil)
	_ = r.RegisterAdapter("i2", domain.FamilyActionKit, []string{"lend"}, 0, nil)
	r.IncrementActiveOperations("i1")

	best, err := r.FindBestAdapter("lend", domain.FamilyActionKit)
	if err != nil {
		t.Fatalf("FindBestAdapter: %v", err)
	}
	if best.ID != "i2" {
		t.Errorf("FindBestAdapter = %s, want i2", best.ID)
	}
}

func TestReserveBestAdapterSplitsLoadUnderConcurrency(t *testing.T) {
	r := New(DefaultConfig(), nil, nil)
	_ = r.RegisterAdapter("i1", domain.FamilyActionKit, []string{"lend"}, 0, nil)
	_ = r.RegisterAdapter("i2", domain.FamilyActionKit, []string{"lend"}, 0, nil)

	const callers = 20
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.ReserveBestAdapter("lend", domain.FamilyActionKit); err != nil {
				t.Errorf("ReserveBestAdapter: %v", err)
			}
		}()
	}
	wg.Wait()

	insts := r.AdaptersByFamily(domain.FamilyActionKit)
	total := 0
	for _, inst := range insts {
		total += inst.ActiveOperations
		if inst.ActiveOperations != callers/2 {
			t.Errorf("adapter %s ActiveOperations = %d, want %d (selection should split evenly since every reservation is atomic with its counter update)", inst.ID, inst.ActiveOperations, callers/2)
		}
	}
	if total != callers {
		t.Errorf("total ActiveOperations = %d, want %d", total, callers)
	}
}

func TestActiveOperationsNeverNegative(t *testing.T) {
	r := New(DefaultConfig(), nil, nil)
	_ = r.RegisterAdapter("i1", domain.FamilyActionKit, []string{"lend"}, 0, nil)
	r.DecrementActiveOperations("i1", true)
	r.DecrementActiveOperations("i1", true)
	insts := r.AdaptersByFamily(domain.FamilyActionKit)
	if insts[0].ActiveOperations != 0 {
		t.Errorf("ActiveOperations = %d, want 0", insts[0].ActiveOperations)
	}
}

func TestUpdateAdapterHealthIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConsecutiveFailures = 2
	r := New(cfg, nil, nil)
	_ = r.RegisterAdapter("i1", domain.FamilyActionKit, []string{"lend"}, 0, nil)

	r.UpdateAdapterHealth("i1", true)
	r.UpdateAdapterHealth("i1", true)
	insts := r.AdaptersByFamily(domain.FamilyActionKit)
	if !insts[0].IsHealthy {
		t.Fatal("expected healthy after two true updates")
	}

	r.UpdateAdapterHealth("i1", false)
	r.UpdateAdapterHealth("i1", false)
	insts = r.AdaptersByFamily(domain.FamilyActionKit)
	if insts[0].IsHealthy {
		t.Fatal("expected unhealthy after reaching max consecutive failures")
	}
}

func TestFindBestAdapterFiltersUnhealthy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConsecutiveFailures = 1
	r := New(cfg, nil, nil)
	_ = r.RegisterAdapter("i1", domain.FamilyActionKit, []string{"lend"}, 0, nil)
	r.UpdateAdapterHealth("i1", false)

	_, err := r.FindBestAdapter("lend", domain.FamilyActionKit)
	if err == nil {
		t.Fatal("expected no-available error, adapter is unhealthy")
	}
}

func TestRegisterAdapterWithSchemaValidation(t *testing.T) {
	r := New(DefaultConfig(), nil, nil)
	schema := []byte(`{"type":"object","required":["amount"],"properties":{"amount":{"type":"number"}}}`)
	if err := r.RegisterAdapter("i1", domain.FamilyActionKit, []string{"lend"}, 0, schema); err != nil {
		t.Fatalf("RegisterAdapter: %v", err)
	}

	if err := r.ValidateAgainstSchema("i1", map[string]interface{}{"amount": 10.0}); err != nil {
		t.Errorf("expected valid params to pass, got %v", err)
	}
	if err := r.ValidateAgainstSchema("i1", map[string]interface{}{}); err == nil {
		t.Error("expected missing required field to fail validation")
	}
}

func TestRegisterAdapterInvalidSchemaRejected(t *testing.T) {
	r := New(DefaultConfig(), nil, nil)
	err := r.RegisterAdapter("i1", domain.FamilyActionKit, []string{"lend"}, 0, []byte(`not json`))
	if err == nil {
		t.Fatal("expected invalid schema to be rejected at registration")
	}
}

type fakeProber struct {
	mu          sync.Mutex
	agentErrs   map[string]error
	adapterErrs map[string]error
}

func (f *fakeProber) ProbeAgent(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.agentErrs[id]
}

func (f *fakeProber) ProbeAdapter(_ context.Context, id string, _ domain.AdapterFamily) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.adapterErrs[id]
}

func TestPerformAdapterHealthChecksUpdatesRegistry(t *testing.T) {
	prober := &fakeProber{adapterErrs: map[string]error{"i1": errors.New("down")}}
	cfg := DefaultConfig()
	cfg.MaxConsecutiveFailures = 1
	r := New(cfg, prober, nil)
	_ = r.RegisterAdapter("i1", domain.FamilyActionKit, []string{"lend"}, 0, nil)
	_ = r.RegisterAdapter("i2", domain.FamilyActionKit, []string{"lend"}, 0, nil)

	r.PerformAdapterHealthChecks(context.Background())

	insts := r.AdaptersByFamily(domain.FamilyActionKit)
	for _, inst := range insts {
		switch inst.ID {
		case "i1":
			if inst.IsHealthy {
				t.Error("i1 should be unhealthy after failed probe")
			}
		case "i2":
			if !inst.IsHealthy {
				t.Error("i2 should remain healthy")
			}
		}
	}
}

func TestStartStopHealthMonitoring(t *testing.T) {
	prober := &fakeProber{agentErrs: map[string]error{}, adapterErrs: map[string]error{}}
	cfg := DefaultConfig()
	cfg.HealthCheckIntervalMs = 50
	r := New(cfg, prober, nil)
	_ = r.Register(testAgent("a1", domain.AgentLending, "lend"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.StartHealthMonitoring(ctx); err != nil {
		t.Fatalf("StartHealthMonitoring: %v", err)
	}
	if err := r.StartHealthMonitoring(ctx); err != nil {
		t.Fatalf("second StartHealthMonitoring should be a no-op, got %v", err)
	}
	time.Sleep(120 * time.Millisecond)
	r.StopHealthMonitoring()
	r.StopHealthMonitoring() // idempotent
}

func TestSetCapabilityWeightInfluencesSelection(t *testing.T) {
	r := New(DefaultConfig(), nil, nil)
	_ = r.Register(testAgent("a1", domain.AgentLending, "lend"))
	_ = r.Register(testAgent("a2", domain.AgentLending, "lend"))
	r.UpdateLoadMetrics("a1", 1, true, 0)
	r.SetCapabilityWeight("a1", 100) // outweighs the extra load

	best, err := r.FindBest(domain.AgentLending, "lend", map[string]interface{}{"wallet": "0xabc"})
	if err != nil {
		t.Fatalf("FindBest: %v", err)
	}
	if best.ID != "a1" {
		t.Errorf("FindBest = %s, want a1 (boosted by capability weight)", best.ID)
	}
}
