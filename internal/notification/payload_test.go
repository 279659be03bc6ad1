package notification

import "testing"

func TestRenderBackupEvents(t *testing.T) {
	jobName := "nightly-postgres"

	success := render(Event{Type: EventBackupSuccess, JobName: jobName, Message: "ok"})
	if !success.Success || success.Badge != "SUCCESS" {
		t.Fatalf("expected success payload, got %+v", success)
	}
	if success.Color != colorSuccess {
		t.Fatalf("expected success color, got %q", success.Color)
	}

	failure := render(Event{Type: EventBackupFailure, JobName: jobName, Message: "connection refused"})
	if failure.Success || failure.Badge != "FAILED" {
		t.Fatalf("expected failure payload, got %+v", failure)
	}
	if failure.Message != "connection refused" {
		t.Fatalf("expected message to carry error detail, got %q", failure.Message)
	}
}

func TestRenderUnknownEventFallsBackToGeneric(t *testing.T) {
	p := render(Event{Type: EventType("something_new"), Message: "detail"})
	if p.Title != "something_new" {
		t.Fatalf("expected title to fall back to raw event type, got %q", p.Title)
	}
}
