// Package observability provides monitoring for the orchestrator through
// Prometheus metrics and structured logging.
//
// # Overview
//
// The package covers two pillars:
//
//  1. Metrics - Quantitative measurements using Prometheus
//  2. Logging - Structured logs with sensitive data redaction
//
// # Architecture
//
// The package is designed to be:
//   - Low-overhead: Minimal performance impact on production systems
//   - Type-safe: Strongly-typed APIs reduce configuration errors
//   - Production-ready: Built-in security (redaction) and reliability features
//   - Standards-based: Uses Prometheus and slog
//
// # Metrics
//
// Metrics are implemented using Prometheus client libraries and track:
//   - Task throughput and latency by agent type
//   - Message routing outcomes by message type
//   - Adapter operation throughput and latency by family
//   - Retry counts by component
//   - Agent and adapter load/health gauges
//   - Message and adapter queue depth
//
// Example usage:
//
//	metrics := observability.NewMetrics()
//
//	// Track a task
//	done := metrics.TimeTask("lending_agent")
//	// ... execute task ...
//	done("completed")
//
//	// Track an adapter operation
//	metrics.RecordAdapterOperation("actionKit", "swap", "success", elapsedSeconds)
//
// # Logging
//
// Logging is built on Go's slog package with enhancements for:
//   - Automatic request ID correlation from context
//   - Sensitive data redaction (API keys, passwords, tokens)
//   - JSON output for production, text for development
//   - Configurable log levels
//
// Example usage:
//
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    AddSource: true,
//	})
//
//	// Add context IDs for correlation
//	ctx := observability.AddRequestID(ctx, requestID)
//	ctx = observability.AddSessionID(ctx, sessionID)
//	ctx = observability.AddAgentID(ctx, agentID)
//	ctx = observability.AddTaskID(ctx, taskID)
//
//	// Structured logging with automatic context correlation
//	logger.Info(ctx, "dispatching task",
//	    "action", task.Action,
//	    "priority", task.Priority,
//	)
//
//	// Error logging with automatic redaction
//	logger.Error(ctx, "adapter call failed",
//	    "error", err,
//	    "family", "actionKit",
//	    "api_key", apiKey, // Automatically redacted
//	)
//
// # Context Propagation
//
//	ctx = observability.AddRequestID(ctx, "req-123")
//	ctx = observability.AddSessionID(ctx, "sess-456")
//	ctx = observability.AddAgentID(ctx, "agent-789")
//	ctx = observability.AddTaskID(ctx, "task-abc")
//
//	// IDs automatically appear in logs
//	logger.Info(ctx, "processing") // Includes request_id, session_id, agent_id, task_id
//
// # Security Considerations
//
// The logging component automatically redacts:
//   - API keys (generic, provider-specific)
//   - Passwords and secrets
//   - JWT tokens
//   - Bearer tokens
//   - Custom patterns via configuration
//
// Sensitive fields in maps are also redacted:
//   - password, passwd, pwd
//   - secret, api_key, apikey
//   - token, auth, authorization
//   - private_key, privatekey
//
// # Performance
//
//   - Metrics use lock-free counters where possible
//   - Logging with slog is highly efficient
//   - Context propagation is zero-allocation in most cases
//
// # Configuration
//
//	// Metrics - no configuration needed, auto-registered
//	metrics := observability.NewMetrics()
//
//	// Logging - configurable output, level, format
//	logger := observability.NewLogger(observability.LogConfig{
//	    Level:          os.Getenv("LOG_LEVEL"),
//	    Format:         "json",
//	    AddSource:      true,
//	    RedactPatterns: []string{`custom-secret-\d+`},
//	})
//
// # Testing
//
// Both components provide testable interfaces:
//   - Metrics can be verified using prometheus/testutil against an
//     isolated registry
//   - Logging can write to a bytes.Buffer for assertions
//
// # Monitoring Dashboard
//
// The metrics exposed can be used to build dashboards:
//
//	# Task throughput
//	rate(seiron_orchestrator_tasks_total[5m])
//
//	# Task latency (95th percentile)
//	histogram_quantile(0.95, rate(seiron_orchestrator_task_duration_seconds_bucket[5m]))
//
//	# Adapter error rate
//	rate(seiron_orchestrator_adapter_operations_total{status="error"}[5m])
//
//	# Queue depth
//	seiron_orchestrator_message_queue_depth
//
// # Alerting
//
// Recommended alerts based on metrics:
//   - High task failure rate: rate(seiron_orchestrator_tasks_total{status="failed"}[5m])
//   - Queue growth: seiron_orchestrator_message_queue_depth growing unbounded
//   - Agent unhealthy: seiron_orchestrator_agent_healthy == 0
//   - Adapter unhealthy: seiron_orchestrator_adapter_healthy == 0
//
// # Further Reading
//
//   - Prometheus best practices: https://prometheus.io/docs/practices/naming/
//   - slog documentation: https://pkg.go.dev/log/slog
package observability
