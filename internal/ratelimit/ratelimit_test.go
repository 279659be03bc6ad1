package ratelimit

import (
	"testing"
	"time"
)

func TestAllowRespectsBurstThenBlocks(t *testing.T) {
	l := New(map[Class]Limits{ClassAuth: {Requests: 2, Window: time.Minute}})

	if !l.Allow(ClassAuth, "1.2.3.4") {
		t.Fatal("expected first request to be allowed")
	}
	if !l.Allow(ClassAuth, "1.2.3.4") {
		t.Fatal("expected second request within burst to be allowed")
	}
	if l.Allow(ClassAuth, "1.2.3.4") {
		t.Fatal("expected third request to exceed the burst and be denied")
	}
}

func TestAllowTracksClientsIndependently(t *testing.T) {
	l := New(map[Class]Limits{ClassAPIRead: {Requests: 1, Window: time.Minute}})

	if !l.Allow(ClassAPIRead, "10.0.0.1") {
		t.Fatal("expected first client's request to be allowed")
	}
	if !l.Allow(ClassAPIRead, "10.0.0.2") {
		t.Fatal("expected a different client's request to be allowed independently")
	}
	if l.Allow(ClassAPIRead, "10.0.0.1") {
		t.Fatal("expected first client's second request to be denied")
	}
}

func TestSetLimitsResetsInFlightCounters(t *testing.T) {
	l := New(map[Class]Limits{ClassAPIMutate: {Requests: 1, Window: time.Minute}})
	l.Allow(ClassAPIMutate, "1.1.1.1")
	if l.Allow(ClassAPIMutate, "1.1.1.1") {
		t.Fatal("expected bucket to be exhausted before reset")
	}

	l.SetLimits(ClassAPIMutate, Limits{Requests: 1, Window: time.Minute})
	if !l.Allow(ClassAPIMutate, "1.1.1.1") {
		t.Fatal("expected SetLimits to reset the bucket for the affected class")
	}
}
