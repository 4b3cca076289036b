package db

import (
	"context"
	"slices"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Operation represents a deferred operation to be executed inside the transaction.
// It receives the transactional gorm.DB and should return an error to rollback the transaction.
type Operation func(tx *gorm.DB) error

// UnitOfWork collects changes and applies them in a single transaction on Commit.
// Entities queued with Add/Update/RegisterDelete are written without their
// associations; anything else goes through Do.
type UnitOfWork struct {
	root  *gorm.DB
	locks *KeyLocks

	ops      []Operation
	toCreate []any
	toUpdate []any
	toDelete []any
	keys     []string

	// afterCommit contains callbacks to run after a successful commit (outside tx)
	afterCommit []func()
	// afterRollback contains callbacks to run after a rollback (outside tx)
	afterRollback []func(error)

	mu sync.Mutex
}

// New creates a new UnitOfWork on root. locks may be nil when the caller
// never serializes on keys.
func New(root *gorm.DB, locks *KeyLocks) *UnitOfWork {
	return &UnitOfWork{root: root, locks: locks}
}

// Root returns the underlying root *gorm.DB.
func (u *UnitOfWork) Root() *gorm.DB { return u.root }

// Do queues a custom operation to be executed inside the transaction at commit time.
func (u *UnitOfWork) Do(op Operation) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.ops = append(u.ops, op)
}

// Add tracks an entity to be created on commit.
func (u *UnitOfWork) Add(entity any) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.toCreate = append(u.toCreate, entity)
}

// Update tracks an entity to be saved on commit.
func (u *UnitOfWork) Update(entity any) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.toUpdate = append(u.toUpdate, entity)
}

// RegisterDelete tracks an entity to be deleted on commit.
func (u *UnitOfWork) RegisterDelete(entity any) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.toDelete = append(u.toDelete, entity)
}

// Serialize makes Commit hold the lock for key for the whole transaction.
// Commits sharing a key run one at a time within this process.
func (u *UnitOfWork) Serialize(key string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.keys = append(u.keys, key)
}

// AfterCommit registers a callback to be executed after a successful commit (outside transaction).
func (u *UnitOfWork) AfterCommit(cb func()) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.afterCommit = append(u.afterCommit, cb)
}

// AfterRollback registers a callback to be executed after a rollback (outside transaction).
func (u *UnitOfWork) AfterRollback(cb func(err error)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.afterRollback = append(u.afterRollback, cb)
}

// Commit begins a transaction and applies all pending operations: creates,
// updates, deletes, then custom operations, in queue order.
// On error, the transaction is rolled back and the pending operations remain queued
// so the caller can inspect or retry if desired. Use Clear() to discard them.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	u.mu.Lock()
	deferredOps := append([]Operation(nil), u.ops...)
	creates := append([]any(nil), u.toCreate...)
	updates := append([]any(nil), u.toUpdate...)
	deletes := append([]any(nil), u.toDelete...)
	keys := append([]string(nil), u.keys...)
	afterCommit := append([]func(){}, u.afterCommit...)
	afterRollback := append([]func(error){}, u.afterRollback...)
	u.mu.Unlock()

	if u.locks != nil && len(keys) > 0 {
		unlock := u.locks.LockAll(keys...)
		defer unlock()
	}

	txErr := u.root.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, e := range creates {
			if err := tx.Omit(clause.Associations).Create(e).Error; err != nil {
				return err
			}
		}
		for _, e := range updates {
			if err := tx.Omit(clause.Associations).Save(e).Error; err != nil {
				return err
			}
		}
		for _, e := range deletes {
			if err := tx.Delete(e).Error; err != nil {
				return err
			}
		}
		for _, op := range deferredOps {
			if err := op(tx); err != nil {
				return err
			}
		}
		return nil
	})

	if txErr != nil {
		for _, cb := range afterRollback {
			// best-effort, do not shadow txErr if callback fails
			func() { defer func() { _ = recover() }(); cb(txErr) }()
		}
		return txErr
	}

	u.Clear()
	for _, cb := range afterCommit {
		func() { defer func() { _ = recover() }(); cb() }()
	}
	return nil
}

// Clear discards all pending operations and tracked entities.
func (u *UnitOfWork) Clear() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.ops = nil
	u.toCreate = nil
	u.toUpdate = nil
	u.toDelete = nil
	u.keys = nil
	u.afterCommit = nil
	u.afterRollback = nil
}

// HasPending returns true if there are any queued operations or tracked changes.
func (u *UnitOfWork) HasPending() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.ops) > 0 || len(u.toCreate) > 0 || len(u.toUpdate) > 0 || len(u.toDelete) > 0
}

// KeyLocks is a set of mutexes addressed by string key.
type KeyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyLocks returns an empty lock set.
func NewKeyLocks() *KeyLocks {
	return &KeyLocks{locks: make(map[string]*keyLock)}
}

// Lock acquires the mutex for key and returns its release func.
func (k *KeyLocks) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// LockAll acquires every distinct key in sorted order so that two callers
// locking overlapping sets cannot deadlock.
func (k *KeyLocks) LockAll(keys ...string) func() {
	sorted := slices.Clone(keys)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	unlocks := make([]func(), 0, len(sorted))
	for _, key := range sorted {
		unlocks = append(unlocks, k.Lock(key))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}
