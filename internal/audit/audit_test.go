package audit

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

type captureWriter struct {
	events []*AuditEvent
}

func (w *captureWriter) WriteEvent(event *AuditEvent) error {
	w.events = append(w.events, event)
	return nil
}

type failingWriter struct{}

func (failingWriter) WriteEvent(*AuditEvent) error {
	return errors.New("sink unavailable")
}

func TestLogGenerate(t *testing.T) {
	w := &captureWriter{}
	l := NewLogger(10, w)

	l.LogGenerate("BATCH-2024-001", "uuid-1", "hybrid-chaotic", true, nil, 5*time.Millisecond, nil)

	if len(w.events) != 1 {
		t.Fatalf("writer received %d events, want 1", len(w.events))
	}
	ev := w.events[0]
	if ev.EventType != EventTypeGenerate || ev.BatchCode != "BATCH-2024-001" ||
		ev.PatternUUID != "uuid-1" || ev.Algorithm != "hybrid-chaotic" || !ev.Success {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestLogGenerateFailure(t *testing.T) {
	w := &captureWriter{}
	l := NewLogger(10, w)

	l.LogGenerate("BATCH-2024-001", "", "hybrid-chaotic", false, errors.New("grid size 99 outside [3, 32]"), 0, nil)

	ev := w.events[0]
	if ev.Success {
		t.Error("failed operation logged as success")
	}
	if ev.Error == "" {
		t.Error("error detail missing from event")
	}
}

func TestLogVerifyRecordsOutcome(t *testing.T) {
	w := &captureWriter{}
	l := NewLogger(10, w)

	l.LogVerify("BATCH-2024-001", "tent-map", false, time.Millisecond, nil)

	ev := w.events[0]
	if !ev.Success {
		t.Error("a negative verification is still a successful operation")
	}
	if verified, ok := ev.Metadata["verified"].(bool); !ok || verified {
		t.Errorf("metadata verified = %v, want false", ev.Metadata["verified"])
	}
}

func TestLogKeyRotation(t *testing.T) {
	w := &captureWriter{}
	l := NewLogger(10, w)

	l.LogKeyRotation(true, nil)
	l.LogKeyRotation(false, errors.New("key file unreadable"))

	if len(w.events) != 2 {
		t.Fatalf("writer received %d events, want 2", len(w.events))
	}
	if w.events[0].EventType != EventTypeKeyRotation || !w.events[0].Success {
		t.Errorf("unexpected first event: %+v", w.events[0])
	}
	if w.events[1].Success || w.events[1].Error == "" {
		t.Errorf("unexpected second event: %+v", w.events[1])
	}
}

func TestRingBufferBounded(t *testing.T) {
	l := NewLogger(5, &captureWriter{}).(*auditLogger)

	for i := 0; i < 12; i++ {
		l.LogGenerate(fmt.Sprintf("BATCH-%03d", i), "uuid", "logistic-map", true, nil, 0, nil)
	}

	events := l.GetEvents()
	if len(events) != 5 {
		t.Fatalf("ring holds %d events, want 5", len(events))
	}
	if events[0].BatchCode != "BATCH-007" || events[4].BatchCode != "BATCH-011" {
		t.Errorf("ring holds wrong window: first %s, last %s", events[0].BatchCode, events[4].BatchCode)
	}
}

func TestFailingWriterDoesNotBlockLogging(t *testing.T) {
	l := NewLogger(10, failingWriter{}).(*auditLogger)

	l.LogGenerate("BATCH-2024-001", "uuid-1", "hybrid-chaotic", true, nil, 0, nil)

	if len(l.GetEvents()) != 1 {
		t.Error("event lost when writer failed")
	}
}
