package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting orchestrator
// metrics: task throughput/latency, agent/adapter load and health,
// retry counts, and queue depth.
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	start := time.Now()
//	// ... dispatch task ...
//	metrics.RecordTask("lending_agent", "completed", time.Since(start).Seconds())
type Metrics struct {
	// TaskCounter counts tasks dispatched by agent type and outcome.
	// Labels: agent_type, status (completed|failed|cancelled)
	TaskCounter *prometheus.CounterVec

	// TaskDuration measures task execution time in seconds.
	// Labels: agent_type
	TaskDuration *prometheus.HistogramVec

	// MessageCounter counts messages routed by type and outcome.
	// Labels: message_type, status (dispatched|no_handler|failed)
	MessageCounter *prometheus.CounterVec

	// AdapterOperationCounter counts adapter operations by family and outcome.
	// Labels: family, operation, status (success|error|timeout)
	AdapterOperationCounter *prometheus.CounterVec

	// AdapterOperationDuration measures adapter operation latency in seconds.
	// Labels: family, operation
	AdapterOperationDuration *prometheus.HistogramVec

	// RetryCounter counts retry attempts by component.
	// Labels: component (router|adapter)
	RetryCounter *prometheus.CounterVec

	// AgentLoad is a gauge tracking each agent's active task count.
	// Labels: agent_id
	AgentLoad *prometheus.GaugeVec

	// AgentHealthy is a gauge (1 healthy, 0 unhealthy) per agent.
	// Labels: agent_id
	AgentHealthy *prometheus.GaugeVec

	// AdapterActiveOperations tracks each adapter instance's in-flight
	// operation count.
	// Labels: family, instance_id
	AdapterActiveOperations *prometheus.GaugeVec

	// AdapterHealthy is a gauge (1 healthy, 0 unhealthy) per adapter instance.
	// Labels: family, instance_id
	AdapterHealthy *prometheus.GaugeVec

	// MessageQueueDepth tracks the pending-message queue length.
	MessageQueueDepth prometheus.Gauge

	// AdapterQueueDepth tracks the adapter-operation priority queue length.
	AdapterQueueDepth prometheus.Gauge

	// ConcurrentMessages tracks in-flight message dispatches.
	ConcurrentMessages prometheus.Gauge

	// ConcurrentAdapterCalls tracks in-flight adapter calls.
	ConcurrentAdapterCalls prometheus.Gauge
}

// NewMetrics creates and registers all orchestrator metrics with the
// default Prometheus registry.
func NewMetrics() *Metrics {
	return &Metrics{
		TaskCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "seiron_orchestrator_tasks_total",
			Help: "Total tasks dispatched, labeled by agent type and outcome.",
		}, []string{"agent_type", "status"}),

		TaskDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "seiron_orchestrator_task_duration_seconds",
			Help:    "Task execution duration in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"agent_type"}),

		MessageCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "seiron_orchestrator_messages_total",
			Help: "Total messages routed, labeled by type and outcome.",
		}, []string{"message_type", "status"}),

		AdapterOperationCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "seiron_orchestrator_adapter_operations_total",
			Help: "Total adapter operations, labeled by family, operation and outcome.",
		}, []string{"family", "operation", "status"}),

		AdapterOperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "seiron_orchestrator_adapter_operation_duration_seconds",
			Help:    "Adapter operation duration in seconds.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"family", "operation"}),

		RetryCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "seiron_orchestrator_retries_total",
			Help: "Total retry attempts, labeled by component.",
		}, []string{"component"}),

		AgentLoad: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "seiron_orchestrator_agent_load",
			Help: "Active task count per agent.",
		}, []string{"agent_id"}),

		AgentHealthy: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "seiron_orchestrator_agent_healthy",
			Help: "1 if the agent is healthy, 0 otherwise.",
		}, []string{"agent_id"}),

		AdapterActiveOperations: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "seiron_orchestrator_adapter_active_operations",
			Help: "In-flight operation count per adapter instance.",
		}, []string{"family", "instance_id"}),

		AdapterHealthy: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "seiron_orchestrator_adapter_healthy",
			Help: "1 if the adapter instance is healthy, 0 otherwise.",
		}, []string{"family", "instance_id"}),

		MessageQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "seiron_orchestrator_message_queue_depth",
			Help: "Current length of the pending-message queue.",
		}),

		AdapterQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "seiron_orchestrator_adapter_queue_depth",
			Help: "Current length of the adapter-operation priority queue.",
		}),

		ConcurrentMessages: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "seiron_orchestrator_concurrent_messages",
			Help: "Current number of in-flight message dispatches.",
		}),

		ConcurrentAdapterCalls: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "seiron_orchestrator_concurrent_adapter_calls",
			Help: "Current number of in-flight adapter calls.",
		}),
	}
}

// RecordTask records a completed task dispatch.
func (m *Metrics) RecordTask(agentType, status string, durationSeconds float64) {
	m.TaskCounter.WithLabelValues(agentType, status).Inc()
	m.TaskDuration.WithLabelValues(agentType).Observe(durationSeconds)
}

// RecordMessage records a routed message's outcome.
func (m *Metrics) RecordMessage(messageType, status string) {
	m.MessageCounter.WithLabelValues(messageType, status).Inc()
}

// RecordAdapterOperation records a completed adapter operation.
func (m *Metrics) RecordAdapterOperation(family, operation, status string, durationSeconds float64) {
	m.AdapterOperationCounter.WithLabelValues(family, operation, status).Inc()
	m.AdapterOperationDuration.WithLabelValues(family, operation).Observe(durationSeconds)
}

// RecordRetry records one retry attempt by a component.
func (m *Metrics) RecordRetry(component string) {
	m.RetryCounter.WithLabelValues(component).Inc()
}

// SetAgentLoad sets an agent's current active task count.
func (m *Metrics) SetAgentLoad(agentID string, load int) {
	m.AgentLoad.WithLabelValues(agentID).Set(float64(load))
}

// SetAgentHealthy sets an agent's health gauge.
func (m *Metrics) SetAgentHealthy(agentID string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	m.AgentHealthy.WithLabelValues(agentID).Set(v)
}

// SetAdapterActiveOperations sets an adapter instance's in-flight count.
func (m *Metrics) SetAdapterActiveOperations(family, instanceID string, count int) {
	m.AdapterActiveOperations.WithLabelValues(family, instanceID).Set(float64(count))
}

// SetAdapterHealthy sets an adapter instance's health gauge.
func (m *Metrics) SetAdapterHealthy(family, instanceID string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	m.AdapterHealthy.WithLabelValues(family, instanceID).Set(v)
}

// SetMessageQueueDepth sets the pending-message queue length gauge.
func (m *Metrics) SetMessageQueueDepth(depth int) {
	m.MessageQueueDepth.Set(float64(depth))
}

// SetAdapterQueueDepth sets the adapter-operation queue length gauge.
func (m *Metrics) SetAdapterQueueDepth(depth int) {
	m.AdapterQueueDepth.Set(float64(depth))
}

// SetConcurrentMessages sets the in-flight message dispatch gauge.
func (m *Metrics) SetConcurrentMessages(n int) {
	m.ConcurrentMessages.Set(float64(n))
}

// SetConcurrentAdapterCalls sets the in-flight adapter call gauge.
func (m *Metrics) SetConcurrentAdapterCalls(n int) {
	m.ConcurrentAdapterCalls.Set(float64(n))
}

// TimeTask is a convenience helper: call the returned func when the
// task finishes to record its duration and outcome in one call.
func (m *Metrics) TimeTask(agentType string) func(status string) {
	start := time.Now()
	return func(status string) {
		m.RecordTask(agentType, status, time.Since(start).Seconds())
	}
}
