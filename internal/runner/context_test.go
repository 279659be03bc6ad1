package runner

import "testing"

func TestReportProgressWeighting(t *testing.T) {
	var got []float64
	rc := &runContext{progress: func(percent float64, stage Stage) { got = append(got, percent) }}

	rc.reportProgress(StageResolve, 1)
	rc.reportProgress(StageDump, 0.5)
	rc.reportProgress(StageDump, 1)
	rc.reportProgress(StageUpload, 1)
	rc.reportProgress(StageRetention, 1)
	rc.reportProgress(StageFinalize, 1)

	want := []float64{0, 25, 50, 90, 95, 100}
	if len(got) != len(want) {
		t.Fatalf("got %d progress reports, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("report %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestLogAppendsInOrder(t *testing.T) {
	rc := &runContext{}
	rc.log(LevelInfo, "first")
	rc.log(LevelError, "second")

	if len(rc.logs) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(rc.logs))
	}
	if rc.logs[0].Message != "first" || rc.logs[1].Level != LevelError {
		t.Fatalf("unexpected log entries: %+v", rc.logs)
	}
}
