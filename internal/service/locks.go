package service

import "sync"

// TransactionLocks serializes mutations scoped to one transaction. Capacity
// re-checks and passenger read-modify-writes run under the per-transaction
// lock; no global lock exists since no operation crosses transactions. One
// registry is shared by the submission and decision paths so direct adds and
// approval applications on the same transaction exclude each other.
type TransactionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTransactionLocks creates an empty lock registry.
func NewTransactionLocks() *TransactionLocks {
	return &TransactionLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for the given transaction id and returns its
// unlock function.
func (t *TransactionLocks) Lock(transactionID string) func() {
	t.mu.Lock()
	lock, ok := t.locks[transactionID]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[transactionID] = lock
	}
	t.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
