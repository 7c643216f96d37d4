package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Angleito/Seiron-sub010/internal/domain"
	"github.com/Angleito/Seiron-sub010/internal/retry"
)

// realtimeFrame is the wire envelope the realtime adapter speaks over
// its persistent WebSocket connection.
type realtimeFrame struct {
	ID        string          `json:"id,omitempty"`
	Type      string          `json:"type"` // request | response | event | notification
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *realtimeError  `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type realtimeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RealtimeConfig configures the realtime adapter's WebSocket connection.
type RealtimeConfig struct {
	URL               string        `yaml:"url"`
	MaxReconnectTries int           `yaml:"max_reconnect_tries"`
	LivenessInterval  time.Duration `yaml:"liveness_interval"`
	DialTimeout       time.Duration `yaml:"dial_timeout"`
}

// DefaultRealtimeConfig returns sane defaults.
func DefaultRealtimeConfig() RealtimeConfig {
	return RealtimeConfig{
		MaxReconnectTries: 5,
		LivenessInterval:  30 * time.Second,
		DialTimeout:       10 * time.Second,
	}
}

// Realtime speaks the blockchain-state/contract/event wire protocol over
// a persistent full-duplex WebSocket connection, with bounded-attempt
// reconnection and periodic liveness frames.
type Realtime struct {
	cfg    RealtimeConfig
	dialer *websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan realtimeFrame

	closeOnce sync.Once
	closeCh   chan struct{}
}

// NewRealtime creates a realtime adapter. Connect must be called before
// Execute will succeed.
func NewRealtime(cfg RealtimeConfig) *Realtime {
	return &Realtime{
		cfg:     cfg,
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.DialTimeout},
		pending: make(map[string]chan realtimeFrame),
		closeCh: make(chan struct{}),
	}
}

func (r *Realtime) Family() domain.AdapterFamily { return domain.FamilyRealtime }

func (r *Realtime) Capabilities() []string {
	ops := make([]string, 0, len(Vocabularies[domain.FamilyRealtime]))
	for op := range Vocabularies[domain.FamilyRealtime] {
		ops = append(ops, op)
	}
	return ops
}

// Connect dials the configured URL with a bounded number of attempts and
// exponential backoff (reusing internal/retry's jittered backoff), then
// starts the read loop and the periodic liveness frame sender. Reconnection
// does not stop once Connect returns: readLoop re-dials with the same
// bounded retries and backoff every time the connection drops for the rest
// of the adapter's lifetime, so a mid-session disconnect doesn't wedge it.
func (r *Realtime) Connect(ctx context.Context) error {
	conn, err := r.dial(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
	go r.readLoop(ctx)
	go r.livenessLoop(ctx)
	return nil
}

// dial performs one bounded-retry, exponential-backoff attempt to
// establish the WebSocket connection. It is used both by Connect's
// initial dial and by readLoop's reconnect-on-drop path.
func (r *Realtime) dial(ctx context.Context) (*websocket.Conn, error) {
	var lastErr error
	for attempt := 0; attempt < r.cfg.MaxReconnectTries; attempt++ {
		conn, _, err := r.dialer.DialContext(ctx, r.cfg.URL, nil)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-r.closeCh:
			return nil, fmt.Errorf("realtime adapter: closed during dial")
		case <-time.After(retry.BackoffWithJitter(attempt, 200*time.Millisecond, 5*time.Second, 2.0)):
		}
	}
	return nil, fmt.Errorf("realtime adapter: dial %s failed after %d attempts: %w", r.cfg.URL, r.cfg.MaxReconnectTries, lastErr)
}

// Close shuts down the connection and liveness loop.
func (r *Realtime) Close() error {
	r.closeOnce.Do(func() { close(r.closeCh) })
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

func (r *Realtime) livenessLoop(ctx context.Context) {
	interval := r.cfg.LivenessInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.closeCh:
			return
		case <-ticker.C:
			_ = r.send(realtimeFrame{Type: "notification", Method: "liveness", Timestamp: time.Now()})
		}
	}
}

func (r *Realtime) readLoop(ctx context.Context) {
	for {
		r.mu.Lock()
		conn := r.conn
		r.mu.Unlock()
		if conn == nil {
			return
		}
		var frame realtimeFrame
		if err := conn.ReadJSON(&frame); err != nil {
			r.reconnect(ctx)
			return
		}
		if frame.ID == "" {
			continue // event/notification frames have no awaiting caller
		}
		r.mu.Lock()
		ch, ok := r.pending[frame.ID]
		if ok {
			delete(r.pending, frame.ID)
		}
		r.mu.Unlock()
		if ok {
			ch <- frame
		}
	}
}

// reconnect owns the connection for the rest of the adapter's lifetime:
// it clears the dead connection, fails every in-flight Execute call
// waiting on it, and re-dials with the same bounded retries and backoff
// Connect uses. On success it restarts readLoop so the next drop is
// handled the same way; on exhausted retries (or Close/ctx cancellation)
// the adapter is left disconnected until Connect is called again.
func (r *Realtime) reconnect(ctx context.Context) {
	r.mu.Lock()
	r.conn = nil
	for id, ch := range r.pending {
		select {
		case ch <- realtimeFrame{ID: id, Type: "response", Error: &realtimeError{Code: "DISCONNECTED", Message: "realtime connection dropped"}}:
		default:
		}
		delete(r.pending, id)
	}
	r.mu.Unlock()

	select {
	case <-r.closeCh:
		return
	case <-ctx.Done():
		return
	default:
	}

	conn, err := r.dial(ctx)
	if err != nil {
		return
	}
	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
	go r.readLoop(ctx)
}

func (r *Realtime) send(frame realtimeFrame) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return domain.NewError(domain.KindTransient, domain.CodeExecutionFailed, "realtime adapter not connected")
	}
	return conn.WriteJSON(frame)
}

// Execute sends a request frame for operation and waits for the matching
// response frame or ctx cancellation.
func (r *Realtime) Execute(ctx context.Context, operation string, params map[string]interface{}) (interface{}, error) {
	r.mu.Lock()
	if r.conn == nil {
		r.mu.Unlock()
		return nil, domain.NewError(domain.KindTransient, domain.CodeExecutionFailed, "realtime adapter not connected")
	}
	id := domain.NewID()
	respCh := make(chan realtimeFrame, 1)
	r.pending[id] = respCh
	r.mu.Unlock()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, domain.NewError(domain.KindValidation, domain.CodeValidationError, "invalid params: "+err.Error())
	}

	if err := r.send(realtimeFrame{ID: id, Type: "request", Method: operation, Params: paramsJSON, Timestamp: time.Now()}); err != nil {
		r.mu.Lock()
		delete(r.pending, id)
		r.mu.Unlock()
		return nil, domain.NewError(domain.KindTransient, domain.CodeExecutionFailed, "realtime send failed: "+err.Error())
	}

	select {
	case <-ctx.Done():
		r.mu.Lock()
		delete(r.pending, id)
		r.mu.Unlock()
		return nil, domain.NewError(domain.KindTimeout, domain.CodeTimeout, "realtime operation timed out")
	case frame := <-respCh:
		if frame.Error != nil {
			return nil, domain.NewError(domain.KindTransient, domain.CodeExecutionFailed, frame.Error.Message)
		}
		var result interface{}
		if len(frame.Result) > 0 {
			if err := json.Unmarshal(frame.Result, &result); err != nil {
				return nil, domain.NewError(domain.KindFatal, domain.CodeExecutionFailed, "invalid realtime response: "+err.Error())
			}
		}
		return result, nil
	}
}
