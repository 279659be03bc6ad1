package runner

import (
	"testing"
	"time"
)

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"nightly backup":    "nightly_backup",
		"prod/db:01":        "prod_db_01",
		"___leading":        "leading",
		"":                  "job",
		"!!!":                "job",
		"already_fine-name": "already_fine-name",
	}
	for in, want := range cases {
		if got := sanitizeName(in); got != want {
			t.Errorf("sanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsoTimestampIsUTCAndSortable(t *testing.T) {
	t1 := time.Date(2026, 7, 29, 10, 0, 0, 0, time.FixedZone("EST", -5*3600))
	t2 := time.Date(2026, 7, 29, 16, 0, 1, 0, time.UTC)

	s1 := isoTimestamp(t1)
	s2 := isoTimestamp(t2)
	if s1 >= s2 {
		t.Fatalf("expected %q to sort before %q", s1, s2)
	}
}
