package secret

import "testing"

func testKey() []byte {
	return []byte("01234567890123456789012345678901")
}

func TestSealOpenRoundTrip(t *testing.T) {
	s, err := New(testKey())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sealed, err := s.Seal("hunter2")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if sealed == "hunter2" {
		t.Fatal("Seal returned plaintext unchanged")
	}

	got, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got != "hunter2" {
		t.Fatalf("Open = %q, want %q", got, "hunter2")
	}
}

func TestSealEmptyString(t *testing.T) {
	s, _ := New(testKey())
	sealed, err := s.Seal("")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if sealed != "" {
		t.Fatalf("Seal(\"\") = %q, want empty", sealed)
	}
}

func TestNewRejectsWrongKeyLength(t *testing.T) {
	if _, err := New([]byte("too-short")); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestDataKeyWrapUnwrapRoundTrip(t *testing.T) {
	s, _ := New(testKey())

	hexKey, err := s.GenerateDataKey()
	if err != nil {
		t.Fatalf("GenerateDataKey: %v", err)
	}

	wrapped, err := s.WrapDataKey(hexKey)
	if err != nil {
		t.Fatalf("WrapDataKey: %v", err)
	}

	raw, err := s.UnwrapDataKey(wrapped)
	if err != nil {
		t.Fatalf("UnwrapDataKey: %v", err)
	}
	if len(raw) != 32 {
		t.Fatalf("unwrapped key length = %d, want 32", len(raw))
	}
}

func TestImportDataKeyRejectsBadHex(t *testing.T) {
	s, _ := New(testKey())
	if _, err := s.ImportDataKey("not-hex"); err == nil {
		t.Fatal("expected error for non-hex input")
	}
	if _, err := s.ImportDataKey("aabb"); err == nil {
		t.Fatal("expected error for wrong-length key")
	}
}
