package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestWithComponent_SingleComponentKey(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Component: ComponentApp,
		Handler:   slog.NewTextHandler(&buf, nil),
	})

	logger.WithComponent(ComponentLedger).Info("year created", FieldYear, 1)

	line := buf.String()
	if got := strings.Count(line, FieldComponent+"="); got != 1 {
		t.Errorf("component key appears %d times in %q, want 1", got, line)
	}
	if !strings.Contains(line, FieldComponent+"="+ComponentLedger) {
		t.Errorf("log line %q missing component=%s", line, ComponentLedger)
	}
}

func TestWithComponent_ReplacesPreviousComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Component: ComponentApp,
		Handler:   slog.NewTextHandler(&buf, nil),
	})

	worker := logger.WithComponent(ComponentLedger).WithComponent(ComponentWorker)
	worker.Info("event persisted")

	line := buf.String()
	if strings.Contains(line, ComponentLedger) {
		t.Errorf("log line %q still carries the previous component", line)
	}
	if worker.Component() != ComponentWorker {
		t.Errorf("Component() = %q, want %q", worker.Component(), ComponentWorker)
	}
}
