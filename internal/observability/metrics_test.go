package observability

import (
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// newTestMetrics builds a Metrics struct wired to an isolated registry so
// tests never touch the process-wide default registry.
func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()

	m := &Metrics{
		TaskCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "test_tasks_total",
			Help: "test",
		}, []string{"agent_type", "status"}),
		TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "test_task_duration_seconds",
			Help:    "test",
			Buckets: []float64{0.01, 0.1, 1, 10},
		}, []string{"agent_type"}),
		MessageCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "test_messages_total",
			Help: "test",
		}, []string{"message_type", "status"}),
		AdapterOperationCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "test_adapter_operations_total",
			Help: "test",
		}, []string{"family", "operation", "status"}),
		AdapterOperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "test_adapter_operation_duration_seconds",
			Help:    "test",
			Buckets: []float64{0.01, 0.1, 1, 10},
		}, []string{"family", "operation"}),
		RetryCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "test_retries_total",
			Help: "test",
		}, []string{"component"}),
		AgentLoad: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "test_agent_load",
			Help: "test",
		}, []string{"agent_id"}),
		AgentHealthy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "test_agent_healthy",
			Help: "test",
		}, []string{"agent_id"}),
		AdapterActiveOperations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "test_adapter_active_operations",
			Help: "test",
		}, []string{"family", "instance_id"}),
		AdapterHealthy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "test_adapter_healthy",
			Help: "test",
		}, []string{"family", "instance_id"}),
		MessageQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "test_message_queue_depth",
			Help: "test",
		}),
		AdapterQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "test_adapter_queue_depth",
			Help: "test",
		}),
		ConcurrentMessages: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "test_concurrent_messages",
			Help: "test",
		}),
		ConcurrentAdapterCalls: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "test_concurrent_adapter_calls",
			Help: "test",
		}),
	}

	reg.MustRegister(
		m.TaskCounter, m.TaskDuration, m.MessageCounter,
		m.AdapterOperationCounter, m.AdapterOperationDuration, m.RetryCounter,
		m.AgentLoad, m.AgentHealthy, m.AdapterActiveOperations, m.AdapterHealthy,
		m.MessageQueueDepth, m.AdapterQueueDepth, m.ConcurrentMessages, m.ConcurrentAdapterCalls,
	)
	return m, reg
}

func TestNewMetrics(t *testing.T) {
	// NewMetrics registers with the default registry; only verify it
	// doesn't panic and returns a fully populated struct.
	m := NewMetrics()
	if m.TaskCounter == nil || m.AgentLoad == nil || m.MessageQueueDepth == nil {
		t.Fatal("NewMetrics returned a struct with nil fields")
	}
}

func TestRecordTask(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordTask("lending_agent", "completed", 0.25)
	m.RecordTask("lending_agent", "completed", 0.75)
	m.RecordTask("risk_agent", "failed", 1.5)

	if count := testutil.CollectAndCount(m.TaskCounter); count != 2 {
		t.Errorf("expected 2 label combinations, got %d", count)
	}

	expected := `
		# HELP test_tasks_total test
		# TYPE test_tasks_total counter
		test_tasks_total{agent_type="lending_agent",status="completed"} 2
		test_tasks_total{agent_type="risk_agent",status="failed"} 1
	`
	if err := testutil.CollectAndCompare(m.TaskCounter, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected counter value: %v", err)
	}

	if testutil.CollectAndCount(m.TaskDuration) < 1 {
		t.Error("expected task duration observations")
	}
}

func TestRecordMessage(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordMessage("task_request", "dispatched")
	m.RecordMessage("task_request", "dispatched")
	m.RecordMessage("health_check", "no_handler")

	expected := `
		# HELP test_messages_total test
		# TYPE test_messages_total counter
		test_messages_total{message_type="health_check",status="no_handler"} 1
		test_messages_total{message_type="task_request",status="dispatched"} 2
	`
	if err := testutil.CollectAndCompare(m.MessageCounter, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected counter value: %v", err)
	}
}

func TestRecordAdapterOperation(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordAdapterOperation("actionKit", "swap", "success", 0.05)
	m.RecordAdapterOperation("analytics", "query", "error", 0.2)

	if count := testutil.CollectAndCount(m.AdapterOperationCounter); count != 2 {
		t.Errorf("expected 2 label combinations, got %d", count)
	}
	if testutil.CollectAndCount(m.AdapterOperationDuration) < 1 {
		t.Error("expected adapter operation duration observations")
	}
}

func TestRecordRetry(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordRetry("router")
	m.RecordRetry("router")
	m.RecordRetry("adapter")

	expected := `
		# HELP test_retries_total test
		# TYPE test_retries_total counter
		test_retries_total{component="adapter"} 1
		test_retries_total{component="router"} 2
	`
	if err := testutil.CollectAndCompare(m.RetryCounter, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected counter value: %v", err)
	}
}

func TestAgentLoadAndHealthGauges(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.SetAgentLoad("agent-1", 3)
	m.SetAgentHealthy("agent-1", true)
	m.SetAgentHealthy("agent-2", false)

	if v := testutil.ToFloat64(m.AgentLoad.WithLabelValues("agent-1")); v != 3 {
		t.Errorf("AgentLoad = %v, want 3", v)
	}
	if v := testutil.ToFloat64(m.AgentHealthy.WithLabelValues("agent-1")); v != 1 {
		t.Errorf("AgentHealthy(agent-1) = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.AgentHealthy.WithLabelValues("agent-2")); v != 0 {
		t.Errorf("AgentHealthy(agent-2) = %v, want 0", v)
	}
}

func TestAdapterGauges(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.SetAdapterActiveOperations("actionKit", "inst-1", 4)
	m.SetAdapterHealthy("actionKit", "inst-1", true)

	if v := testutil.ToFloat64(m.AdapterActiveOperations.WithLabelValues("actionKit", "inst-1")); v != 4 {
		t.Errorf("AdapterActiveOperations = %v, want 4", v)
	}
	if v := testutil.ToFloat64(m.AdapterHealthy.WithLabelValues("actionKit", "inst-1")); v != 1 {
		t.Errorf("AdapterHealthy = %v, want 1", v)
	}
}

func TestQueueDepthAndConcurrencyGauges(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.SetMessageQueueDepth(7)
	m.SetAdapterQueueDepth(3)
	m.SetConcurrentMessages(2)
	m.SetConcurrentAdapterCalls(5)

	if v := testutil.ToFloat64(m.MessageQueueDepth); v != 7 {
		t.Errorf("MessageQueueDepth = %v, want 7", v)
	}
	if v := testutil.ToFloat64(m.AdapterQueueDepth); v != 3 {
		t.Errorf("AdapterQueueDepth = %v, want 3", v)
	}
	if v := testutil.ToFloat64(m.ConcurrentMessages); v != 2 {
		t.Errorf("ConcurrentMessages = %v, want 2", v)
	}
	if v := testutil.ToFloat64(m.ConcurrentAdapterCalls); v != 5 {
		t.Errorf("ConcurrentAdapterCalls = %v, want 5", v)
	}
}

func TestTimeTask(t *testing.T) {
	m, _ := newTestMetrics(t)

	done := m.TimeTask("portfolio_agent")
	done("completed")

	if testutil.CollectAndCount(m.TaskDuration) < 1 {
		t.Error("expected TimeTask to record a duration observation")
	}
	expected := `
		# HELP test_tasks_total test
		# TYPE test_tasks_total counter
		test_tasks_total{agent_type="portfolio_agent",status="completed"} 1
	`
	if err := testutil.CollectAndCompare(m.TaskCounter, strings.NewReader(expected)); err != nil {
		t.Errorf("unexpected counter value: %v", err)
	}
}

func TestConcurrentMetricRecording(t *testing.T) {
	m, _ := newTestMetrics(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordTask("lending_agent", "completed", 0.1)
			m.RecordRetry("router")
		}()
	}
	wg.Wait()

	if v := testutil.ToFloat64(m.TaskCounter.WithLabelValues("lending_agent", "completed")); v != 50 {
		t.Errorf("expected 50 recorded tasks, got %v", v)
	}
	if v := testutil.ToFloat64(m.RetryCounter.WithLabelValues("router")); v != 50 {
		t.Errorf("expected 50 recorded retries, got %v", v)
	}
}
