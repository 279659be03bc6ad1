package api

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
)

func TestOkWritesDataEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	Ok(w, map[string]string{"foo": "bar"})

	if w.Code != 200 {
		t.Fatalf("got status %d, want 200", w.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected a data object, got %+v", body)
	}
	if data["foo"] != "bar" {
		t.Fatalf("got %+v, want foo=bar", data)
	}
}

func TestAcceptedWritesStatus202(t *testing.T) {
	w := httptest.NewRecorder()
	Accepted(w, triggerResponse{ExecutionID: "abc"})

	if w.Code != 202 {
		t.Fatalf("got status %d, want 202", w.Code)
	}
}

func TestErrNotFoundWritesErrorEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	ErrNotFound(w)

	if w.Code != 404 {
		t.Fatalf("got status %d, want 404", w.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	errObj, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected an error object, got %+v", body)
	}
	if errObj["code"] != "not_found" {
		t.Fatalf("got code %v, want not_found", errObj["code"])
	}
}

func TestErrTooManyRequestsWritesStatus429(t *testing.T) {
	w := httptest.NewRecorder()
	ErrTooManyRequests(w)

	if w.Code != 429 {
		t.Fatalf("got status %d, want 429", w.Code)
	}
}
