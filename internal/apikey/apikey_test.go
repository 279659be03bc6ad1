package apikey

import "testing"

func TestHasCapability(t *testing.T) {
	stored := "jobs:execute, jobs:read"

	if !hasCapability(stored, CapJobsExecute) {
		t.Fatal("expected jobs:execute to be present")
	}
	if !hasCapability(stored, CapJobsRead) {
		t.Fatal("expected jobs:read to be present")
	}
	if hasCapability(stored, Capability("jobs:delete")) {
		t.Fatal("expected jobs:delete to be absent")
	}
}

func TestGenerateRawKeyHasPrefixAndIsUnique(t *testing.T) {
	a, err := generateRawKey()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := generateRawKey()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if a == b {
		t.Fatal("expected two generated keys to differ")
	}
	if len(a) <= len(keyPrefix) || a[:len(keyPrefix)] != keyPrefix {
		t.Fatalf("expected key to start with %q, got %q", keyPrefix, a)
	}
}

func TestHashKeyIsDeterministic(t *testing.T) {
	if hashKey("same-input") != hashKey("same-input") {
		t.Fatal("expected hashKey to be deterministic")
	}
	if hashKey("a") == hashKey("b") {
		return
	}
	t.Fatal("expected different inputs to hash differently")
}
