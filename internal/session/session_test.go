package session

import (
	"sync"
	"testing"
)

func TestLockerSerializesSameSession(t *testing.T) {
	l := NewLocker()
	const n = 16
	var inCritical, maxInCritical int
	var stateMu sync.Mutex
	var order []int

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			unlock := l.Lock("s1")
			defer unlock()
			stateMu.Lock()
			inCritical++
			if inCritical > maxInCritical {
				maxInCritical = inCritical
			}
			order = append(order, i)
			stateMu.Unlock()

			stateMu.Lock()
			inCritical--
			stateMu.Unlock()
		}(i)
	}
	wg.Wait()

	if maxInCritical != 1 {
		t.Fatalf("critical section overlapped: max %d holders", maxInCritical)
	}
	if len(order) != n {
		t.Fatalf("expected %d entries, got %d", n, len(order))
	}
}

func TestLockerIndependentSessionsDoNotBlock(t *testing.T) {
	l := NewLocker()
	unlockA := l.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := l.Lock("b")
		unlockB()
		close(done)
	}()
	<-done // locking b must not wait on a's holder
	unlockA()
}

func TestLockerEvictsReleasedEntries(t *testing.T) {
	l := NewLocker()
	const churn = 100
	for i := 0; i < churn; i++ {
		unlock := l.Lock("s1")
		unlock()
	}
	for i := 0; i < churn; i++ {
		unlock := l.Lock(string(rune('a' + i%26)))
		unlock()
	}
	l.mu.Lock()
	n := len(l.locks)
	l.mu.Unlock()
	if n != 0 {
		t.Fatalf("lock table must be empty after release, holds %d entries", n)
	}
}

func TestLockerKeepsEntryWhileContended(t *testing.T) {
	l := NewLocker()
	unlock := l.Lock("s1")

	acquired := make(chan struct{})
	go func() {
		u := l.Lock("s1")
		close(acquired)
		u()
	}()

	// The entry must survive the first unlock while a waiter holds a ref.
	unlock()
	<-acquired

	l.mu.Lock()
	n := len(l.locks)
	l.mu.Unlock()
	if n != 0 {
		t.Fatalf("entry leaked after both holders released: %d", n)
	}
}
