package audit

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// EventType represents the type of audit event.
type EventType string

const (
	// EventTypeGenerate represents a pattern generation operation.
	EventTypeGenerate EventType = "generate"
	// EventTypeVerify represents a pattern verification operation.
	EventTypeVerify EventType = "verify"
	// EventTypeKeyRotation represents a signing key rotation.
	EventTypeKeyRotation EventType = "key_rotation"
	// EventTypeAccess represents a general API access.
	EventTypeAccess EventType = "access"
)

// AuditEvent represents a single audit log event.
type AuditEvent struct {
	Timestamp   time.Time              `json:"timestamp"`
	EventType   EventType              `json:"event_type"`
	Operation   string                 `json:"operation"`
	BatchCode   string                 `json:"batch_code,omitempty"`
	PatternUUID string                 `json:"pattern_uuid,omitempty"`
	Algorithm   string                 `json:"algorithm,omitempty"`
	ClientIP    string                 `json:"client_ip,omitempty"`
	UserAgent   string                 `json:"user_agent,omitempty"`
	RequestID   string                 `json:"request_id,omitempty"`
	Success     bool                   `json:"success"`
	Error       string                 `json:"error,omitempty"`
	Duration    time.Duration          `json:"duration_ms"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Logger is the interface for audit logging.
type Logger interface {
	// Log logs an audit event.
	Log(event *AuditEvent) error

	// LogGenerate logs a pattern generation operation.
	LogGenerate(batchCode, patternUUID, algorithm string, success bool, err error, duration time.Duration, metadata map[string]interface{})

	// LogVerify logs a pattern verification. verified is the predicate
	// outcome; a false verification is still a successful operation.
	LogVerify(batchCode, algorithm string, verified bool, duration time.Duration, metadata map[string]interface{})

	// LogKeyRotation logs a signing key rotation.
	LogKeyRotation(success bool, err error)

	// LogAccess logs a general access operation.
	LogAccess(eventType, batchCode, patternUUID, clientIP, userAgent, requestID string, success bool, err error, duration time.Duration)

	// GetEvents returns a snapshot of the retained events, oldest first.
	GetEvents() []*AuditEvent
}

// auditLogger implements the Logger interface.
type auditLogger struct {
	mu        sync.Mutex
	events    []*AuditEvent
	maxEvents int
	writer    EventWriter
}

// EventWriter is an interface for writing audit events.
type EventWriter interface {
	WriteEvent(event *AuditEvent) error
}

// NewLogger creates a new audit logger.
func NewLogger(maxEvents int, writer EventWriter) Logger {
	if writer == nil {
		writer = &defaultWriter{}
	}

	return &auditLogger{
		events:    make([]*AuditEvent, 0, maxEvents),
		maxEvents: maxEvents,
		writer:    writer,
	}
}

// Log logs an audit event.
func (l *auditLogger) Log(event *AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// The in-memory ring is the source of truth; a failing writer must not
	// block the operation being audited.
	if l.writer != nil {
		_ = l.writer.WriteEvent(event)
	}

	l.events = append(l.events, event)

	// Maintain max events limit
	if len(l.events) > l.maxEvents {
		l.events = l.events[len(l.events)-l.maxEvents:]
	}

	return nil
}

// LogGenerate logs a pattern generation operation.
func (l *auditLogger) LogGenerate(batchCode, patternUUID, algorithm string, success bool, err error, duration time.Duration, metadata map[string]interface{}) {
	event := &AuditEvent{
		Timestamp:   time.Now(),
		EventType:   EventTypeGenerate,
		Operation:   "generate",
		BatchCode:   batchCode,
		PatternUUID: patternUUID,
		Algorithm:   algorithm,
		Success:     success,
		Duration:    duration,
		Metadata:    metadata,
	}

	if err != nil {
		event.Error = err.Error()
	}

	l.Log(event)
}

// LogVerify logs a pattern verification operation.
func (l *auditLogger) LogVerify(batchCode, algorithm string, verified bool, duration time.Duration, metadata map[string]interface{}) {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadata["verified"] = verified

	l.Log(&AuditEvent{
		Timestamp: time.Now(),
		EventType: EventTypeVerify,
		Operation: "verify",
		BatchCode: batchCode,
		Algorithm: algorithm,
		Success:   true,
		Duration:  duration,
		Metadata:  metadata,
	})
}

// LogKeyRotation logs a signing key rotation.
func (l *auditLogger) LogKeyRotation(success bool, err error) {
	event := &AuditEvent{
		Timestamp: time.Now(),
		EventType: EventTypeKeyRotation,
		Operation: "key_rotation",
		Success:   success,
	}

	if err != nil {
		event.Error = err.Error()
	}

	l.Log(event)
}

// LogAccess logs a general access operation.
func (l *auditLogger) LogAccess(eventType, batchCode, patternUUID, clientIP, userAgent, requestID string, success bool, err error, duration time.Duration) {
	event := &AuditEvent{
		Timestamp:   time.Now(),
		EventType:   EventType(eventType),
		Operation:   eventType,
		BatchCode:   batchCode,
		PatternUUID: patternUUID,
		ClientIP:    clientIP,
		UserAgent:   userAgent,
		RequestID:   requestID,
		Success:     success,
		Duration:    duration,
	}

	if err != nil {
		event.Error = err.Error()
	}

	l.Log(event)
}

// GetEvents returns all audit events (for testing/querying).
func (l *auditLogger) GetEvents() []*AuditEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Return a copy to prevent external modifications
	events := make([]*AuditEvent, len(l.events))
	copy(events, l.events)
	return events
}

// defaultWriter writes audit events to stdout as JSON lines.
type defaultWriter struct{}

func (w *defaultWriter) WriteEvent(event *AuditEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	fmt.Printf("%s\n", string(data))
	return nil
}
