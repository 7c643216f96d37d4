package domain

import "testing"

func TestErrorKindRetryable(t *testing.T) {
	retryable := []ErrorKind{KindTimeout, KindTransient}
	for _, k := range retryable {
		if !k.Retryable() {
			t.Errorf("expected %s to be retryable", k)
		}
	}

	notRetryable := []ErrorKind{KindValidation, KindUnsupported, KindNoAvailable, KindCapabilityMismatch, KindFatal, KindConcurrency}
	for _, k := range notRetryable {
		if k.Retryable() {
			t.Errorf("expected %s to not be retryable", k)
		}
	}
}

func TestOrchestratorErrorRetryableAndRecoverable(t *testing.T) {
	timeoutErr := NewError(KindTimeout, CodeTimeout, "deadline exceeded")
	if !timeoutErr.Retryable() {
		t.Fatal("timeout error should be retryable")
	}
	if !timeoutErr.Recoverable() {
		t.Fatal("timeout error should be recoverable")
	}

	fatalErr := NewError(KindFatal, CodeExecutionFailed, "boom")
	if fatalErr.Retryable() {
		t.Fatal("fatal error should not be retryable")
	}
	if fatalErr.Recoverable() {
		t.Fatal("fatal error should not be recoverable")
	}
}

func TestOrchestratorErrorWithSuggestionsAndDetails(t *testing.T) {
	err := NewError(KindNoAvailable, CodeNoAvailableAgents, "no agent found").
		WithSuggestions([]string{"agent-2", "agent-3"}).
		WithDetails(map[string]interface{}{"supportedActions": []string{"supply", "borrow"}})

	if len(err.Suggestions) != 2 {
		t.Fatalf("expected 2 suggestions, got %d", len(err.Suggestions))
	}
	if err.Details["supportedActions"] == nil {
		t.Fatal("expected supportedActions detail")
	}
}

func TestAsOrchestratorErrorWrapsPlainError(t *testing.T) {
	plain := NewError(KindFatal, CodeExecutionFailed, "boom")
	wrapped := AsOrchestratorError(plain)
	if wrapped != plain {
		t.Fatal("expected same pointer to be returned unchanged")
	}

	if AsOrchestratorError(nil) != nil {
		t.Fatal("expected nil passthrough")
	}
}
