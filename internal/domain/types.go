// Package domain holds the orchestrator's core value types: intents,
// agents, adapter instances, tasks, messages and results. Nothing in
// this package talks to a registry, router or adapter — it only
// describes the shapes those components pass around.
package domain

import "time"

// IntentType is the closed set of intent categories the orchestrator
// understands. Front-end and NLP layers are responsible for producing
// one of these; the orchestrator never infers it from free text.
type IntentType string

const (
	IntentLending   IntentType = "lending"
	IntentLiquidity IntentType = "liquidity"
	IntentPortfolio IntentType = "portfolio"
	IntentTrading   IntentType = "trading"
	IntentAnalysis  IntentType = "analysis"
	IntentInfo      IntentType = "info"
	IntentRisk      IntentType = "risk"
)

// Priority orders both intents and the messages/tasks derived from
// them. Higher priority is serviced first wherever ordering applies.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Weight returns a numeric ordering for Priority, higher first. Used by
// the router's adapter-operation priority queue.
func (p Priority) Weight() int {
	switch p {
	case PriorityUrgent:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// IntentContext carries the session the intent belongs to and a trail
// of prior intent IDs for that session, so agents can reason about
// conversational history without the orchestrator owning it.
type IntentContext struct {
	SessionID       string   `json:"sessionId"`
	WalletAddress   string   `json:"walletAddress,omitempty"`
	PreviousIntents []string `json:"previousIntents,omitempty"`
}

// Intent is immutable once created: callers build one, hand it to
// Orchestrator.ProcessIntent, and never mutate it afterwards.
type Intent struct {
	ID         string                 `json:"id"`
	Type       IntentType             `json:"type"`
	Action     string                 `json:"action"`
	Parameters map[string]interface{} `json:"parameters"`
	Context    IntentContext          `json:"context"`
	Priority   Priority               `json:"priority"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Complexity buckets an AnalyzedIntent by how many required actions it
// implies, used only as an observability hint.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// AnalyzedIntent is the output of analyseIntent: never mutated after
// construction, consumed once by selectAgent.
type AnalyzedIntent struct {
	Intent              Intent     `json:"intent"`
	Confidence          float64    `json:"confidence"`
	RequiredActions     []string   `json:"requiredActions"`
	EstimatedComplexity Complexity `json:"estimatedComplexity"`
	Risks               []string   `json:"risks"`
}

// CapabilityParameter describes one named, typed parameter a
// Capability accepts.
type CapabilityParameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

// Capability is a named action an agent or adapter can perform, along
// with the parameter schema the registry checks before dispatch.
type Capability struct {
	Action                   string                `json:"action"`
	Description              string                `json:"description,omitempty"`
	Parameters               []CapabilityParameter `json:"parameters,omitempty"`
	RequiredPermissions      []string              `json:"requiredPermissions,omitempty"`
	EstimatedExecutionTimeMs int                   `json:"estimatedExecutionTimeMs,omitempty"`
	Tags                     []string              `json:"tags,omitempty"`
	// Schema is an optional full JSON Schema document (as raw JSON)
	// validated via jsonschema/v5 when present; Parameters above is
	// always checked regardless of Schema.
	Schema []byte `json:"-"`
}

// AgentType maps an Intent.Type to the kind of agent eligible to serve
// it (see orchestrator's fixed intent-type -> agent-type table).
type AgentType string

const (
	AgentLending   AgentType = "lending_agent"
	AgentLiquidity AgentType = "liquidity_agent"
	AgentPortfolio AgentType = "portfolio_agent"
	AgentRisk      AgentType = "risk_agent"
	AgentAnalysis  AgentType = "analysis_agent"
)

// AgentStatus is mutated only by the registry; every other component
// sees it through a read snapshot.
type AgentStatus string

const (
	AgentIdle        AgentStatus = "idle"
	AgentBusy        AgentStatus = "busy"
	AgentMaintenance AgentStatus = "maintenance"
	AgentOffline     AgentStatus = "offline"
	AgentError       AgentStatus = "error"
)

// Agent is an external worker with declared capabilities. The
// orchestrator treats it as an opaque handler invoked by message; it
// never inspects how the agent fulfils a task.
type Agent struct {
	ID                  string                 `json:"id"`
	Type                AgentType              `json:"type"`
	Name                string                 `json:"name"`
	Version             string                 `json:"version"`
	Capabilities        []Capability           `json:"capabilities"`
	Status              AgentStatus            `json:"status"`
	Metadata            map[string]interface{} `json:"metadata,omitempty"`
	LoadBalancingWeight float64                `json:"loadBalancingWeight,omitempty"`
}

// HasCapability reports whether the agent declares the named action.
func (a Agent) HasCapability(action string) bool {
	for _, c := range a.Capabilities {
		if c.Action == action {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can mutate a returned snapshot
// without corrupting registry-owned state.
func (a Agent) Clone() Agent {
	out := a
	if a.Capabilities != nil {
		out.Capabilities = make([]Capability, len(a.Capabilities))
		for i, c := range a.Capabilities {
			cc := c
			if c.Parameters != nil {
				cc.Parameters = append([]CapabilityParameter(nil), c.Parameters...)
			}
			if c.RequiredPermissions != nil {
				cc.RequiredPermissions = append([]string(nil), c.RequiredPermissions...)
			}
			if c.Tags != nil {
				cc.Tags = append([]string(nil), c.Tags...)
			}
			out.Capabilities[i] = cc
		}
	}
	if a.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(a.Metadata))
		for k, v := range a.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// AdapterFamily is one of the three external service families the
// facade multiplexes over.
type AdapterFamily string

const (
	FamilyActionKit AdapterFamily = "actionKit"
	FamilyAnalytics AdapterFamily = "analytics"
	FamilyRealtime  AdapterFamily = "realtime"
)

// AdapterStatus tracks an adapter instance's own lifecycle, distinct
// from IsHealthy which reflects recent probe outcomes.
type AdapterStatus string

const (
	AdapterActive   AdapterStatus = "active"
	AdapterInactive AdapterStatus = "inactive"
	AdapterError    AdapterStatus = "error"
)

// AdapterInstance is one pooled connection to an external service
// family. ActiveOperations is the load counter: incremented on
// dispatch, decremented on completion, never negative.
type AdapterInstance struct {
	ID               string        `json:"id"`
	Family           AdapterFamily `json:"family"`
	Priority         int           `json:"priority"`
	Capabilities     []string      `json:"capabilities"`
	Status           AdapterStatus `json:"status"`
	IsHealthy        bool          `json:"isHealthy"`
	LastUsed         time.Time     `json:"lastUsed"`
	ActiveOperations int           `json:"activeOperations"`
}

// HasCapability reports whether the instance advertises an operation.
func (a AdapterInstance) HasCapability(op string) bool {
	for _, c := range a.Capabilities {
		if c == op {
			return true
		}
	}
	return false
}

// TaskStatus transitions forward only, except pending->cancelled.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// CanTransition reports whether moving from s to next is a legal Task
// state transition.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	switch s {
	case TaskPending:
		return next == TaskRunning || next == TaskCancelled
	case TaskRunning:
		return next == TaskCompleted || next == TaskFailed
	default:
		return false
	}
}

// Task is an orchestrator-created unit of work targeting one agent.
// The orchestrator exclusively owns the task table.
type Task struct {
	ID           string                 `json:"id"`
	IntentID     string                 `json:"intentId"`
	AgentID      string                 `json:"agentId"`
	Action       string                 `json:"action"`
	Parameters   map[string]interface{} `json:"parameters"`
	Status       TaskStatus             `json:"status"`
	Priority     int                    `json:"priority"`
	CreatedAt    time.Time              `json:"createdAt"`
	Dependencies []string               `json:"dependencies,omitempty"`
}

// MessageType enumerates the in-process envelopes the router carries
// between the orchestrator, agents and adapters.
type MessageType string

const (
	MessageTaskRequest     MessageType = "task_request"
	MessageTaskResponse    MessageType = "task_response"
	MessageHealthCheck     MessageType = "health_check"
	MessageStatusUpdate    MessageType = "status_update"
	MessageErrorReport     MessageType = "error_report"
	MessageCapabilityUpdate MessageType = "capability_update"
)

// Message is the router's universal envelope. IDs are globally unique
// for the lifetime of the process (see domain.NewID).
type Message struct {
	ID            string                 `json:"id"`
	Type          MessageType            `json:"type"`
	SenderID      string                 `json:"senderId"`
	ReceiverID    string                 `json:"receiverId"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlationId,omitempty"`
}

// TaskResultError is the recoverable-tagged error payload a failed
// TaskResult carries.
type TaskResultError struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
}

// TaskResult is the typed outcome of dispatching a Task through the
// router, returned to the orchestrator's caller.
type TaskResult struct {
	TaskID          string                 `json:"taskId"`
	Status          TaskStatus             `json:"status"`
	Result          interface{}            `json:"result,omitempty"`
	Error           *TaskResultError       `json:"error,omitempty"`
	ExecutionTimeMs int64                  `json:"executionTimeMs"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	// RetryCount is the number of router-level attempts consumed before
	// this result, surfaced for observability and testing. Never exceeds
	// the router's configured retry attempts.
	RetryCount int `json:"retryCount,omitempty"`
}

// SelectedAgent is the registry's answer to a selection query: the
// chosen Agent plus the scoring detail the orchestrator surfaces in
// observability and in SelectedAgent.MatchScore-driven decisions.
type SelectedAgent struct {
	Agent                    Agent   `json:"agent"`
	MatchScore               float64 `json:"matchScore"`
	AvailableCapabilities    []string `json:"availableCapabilities"`
	EstimatedExecutionTimeMs int     `json:"estimatedExecutionTimeMs"`
}

// Result is an Either-as-return-type: exactly one of Value or Err is
// set. Zero value is an empty success.
type Result[T any] struct {
	Value T
	Err   error
}

// Ok constructs a successful Result.
func Ok[T any](v T) Result[T] { return Result[T]{Value: v} }

// Err constructs a failed Result.
func Err[T any](err error) Result[T] { return Result[T]{Err: err} }

// IsOk reports whether the result carries no error.
func (r Result[T]) IsOk() bool { return r.Err == nil }
