package scheduler

import (
	"testing"

	"github.com/google/uuid"
)

func TestJobLockSetPreventsDoubleAcquire(t *testing.T) {
	locks := newJobLockSet()
	id := uuid.Must(uuid.NewV7())

	if !locks.tryLock(id) {
		t.Fatal("expected first tryLock to succeed")
	}
	if locks.tryLock(id) {
		t.Fatal("expected second tryLock on the same id to fail while held")
	}

	locks.unlock(id)
	if !locks.tryLock(id) {
		t.Fatal("expected tryLock to succeed again after unlock")
	}
}

func TestJobLockSetIsPerID(t *testing.T) {
	locks := newJobLockSet()
	a := uuid.Must(uuid.NewV7())
	b := uuid.Must(uuid.NewV7())

	if !locks.tryLock(a) {
		t.Fatal("expected lock on a to succeed")
	}
	if !locks.tryLock(b) {
		t.Fatal("expected independent lock on b to succeed while a is held")
	}
}
