package database

import (
	"io"
	"strings"
	"testing"
)

func TestRewritingReaderFiltersAndRenamesDatabases(t *testing.T) {
	dump := strings.Join([]string{
		"CREATE DATABASE `shop`;",
		"USE `shop`;",
		"INSERT INTO orders VALUES (1);",
		"CREATE DATABASE `analytics`;",
		"USE `analytics`;",
		"INSERT INTO events VALUES (1);",
	}, "\n") + "\n"

	mapping := map[string]RestoreTarget{
		"shop":       {TargetName: "shop_restored", Selected: true},
		"analytics":  {TargetName: "analytics", Selected: false},
	}

	r := newRewritingReader(strings.NewReader(dump), mapping, "")
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}

	got := string(out)
	if !strings.Contains(got, "shop_restored") {
		t.Fatalf("expected renamed target database in output, got: %s", got)
	}
	if strings.Contains(got, "orders") == false {
		t.Fatalf("expected selected database's statements kept, got: %s", got)
	}
	if strings.Contains(got, "events") {
		t.Fatalf("expected non-selected database's statements dropped, got: %s", got)
	}
}

func TestRewritingReaderSingleTargetStripsSwitching(t *testing.T) {
	dump := "CREATE DATABASE `shop`;\nUSE `shop`;\nINSERT INTO orders VALUES (1);\n"

	r := newRewritingReader(strings.NewReader(dump), nil, "shop_restored")
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}

	got := string(out)
	if strings.Contains(got, "CREATE DATABASE") || strings.Contains(got, "USE ") {
		t.Fatalf("expected switching statements stripped, got: %s", got)
	}
	if !strings.Contains(got, "orders") {
		t.Fatalf("expected data statement preserved, got: %s", got)
	}
}

func TestMajorVersionParsing(t *testing.T) {
	cases := map[string]int{
		"14.9":     14,
		"16.1":     16,
		"17beta1":  17,
		"garbage":  16,
		"":         16,
	}
	for input, want := range cases {
		if got := majorVersion(input); got != want {
			t.Errorf("majorVersion(%q) = %d, want %d", input, got, want)
		}
	}
}
