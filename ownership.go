package canvaslease

import (
	"context"
	"sort"
	"sync"
	"time"
)

// OwnershipManager owns the client-local side of the lease protocol: it
// claims objects by writing the lock fields through the store, tracks a
// lease with an auto-expire timer per claimed object, and releases leases on
// demand or when their timer elapses.
//
// No lease survives longer than the lease TTL without an explicit Extend.
// This is what prevents a crashed or inattentive client from permanently
// blocking others.
type OwnershipManager struct {
	mu      sync.Mutex
	store   ObjectStore
	actor   Actor
	options options
	leases  map[string]*ownedLease
	gens    int
	closed  bool
}

// ownedLease extends the persisted lock with the local expiry machinery.
// The generation counter invalidates a timer that fires concurrently with an
// Extend that already replaced it.
type ownedLease struct {
	lease
	gen       int
	expiresAt time.Time
}

// newOwnershipManager creates a manager holding no leases.
func newOwnershipManager(store ObjectStore, actor Actor, opts options) *OwnershipManager {
	return &OwnershipManager{
		store:   store,
		actor:   actor,
		options: opts,
		leases:  make(map[string]*ownedLease),
	}
}

// claimable reports whether the record can be claimed by this actor: it is
// unlocked, already locked by this actor, or its lock has gone stale.
func (m *OwnershipManager) claimable(obj *CanvasObject, now time.Time) bool {
	if obj.LockedBy == "" || obj.LockedBy == m.actor.ID {
		return true
	}
	return now.Sub(obj.LockedAt) > m.options.staleAfter
}

// Claim attempts to acquire a lease on the object. It returns false without
// acquiring anything when the object is missing, locked by another user with
// a non-stale lock, or the remote write fails (fail closed). Claiming an
// object already owned by this client succeeds and resets its timer.
func (m *OwnershipManager) Claim(ctx context.Context, objectID string) bool {
	if m.actor.ID == "" {
		m.options.logger.Warn("claim attempted without authenticated user", "object_id", objectID)
		return false
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	if _, held := m.leases[objectID]; held {
		m.mu.Unlock()
		m.Extend(objectID)
		return true
	}
	m.mu.Unlock()

	var obj, err = m.store.Get(ctx, objectID)
	if err != nil {
		m.options.logger.Warn("claim read failed", "object_id", objectID, "error", err)
		return false
	}
	if obj == nil {
		m.options.logger.Warn("claim on missing object", "object_id", objectID)
		return false
	}

	var now = time.Now()
	if !m.claimable(obj, now) {
		m.options.logger.Debug("object locked by another user",
			"object_id", objectID,
			"locked_by", obj.LockedBy)
		return false
	}

	if err := m.store.Write(ctx, objectID, lockFields(m.actor.ID, now)); err != nil {
		m.options.logger.Warn("claim write failed", "object_id", objectID, "error", err)
		return false
	}

	m.mu.Lock()
	if m.closed {
		// Teardown happened while the claim was in flight. Undo the lock
		// we just wrote instead of leaving a dangling lease.
		m.mu.Unlock()
		m.clearRemoteLocks(context.Background(), []string{objectID})
		return false
	}
	m.startLease(objectID, now)
	m.mu.Unlock()

	return true
}

// ClaimBatch acquires leases on as many of the given objects as possible
// with a single remote write. Objects that are missing or locked by another
// user are silently excluded rather than failing the whole batch. The
// acquired object ids are returned; on a remote write failure nothing is
// acquired.
func (m *OwnershipManager) ClaimBatch(ctx context.Context, objectIDs []string) []string {
	if m.actor.ID == "" {
		m.options.logger.Warn("batch claim attempted without authenticated user")
		return nil
	}
	if len(objectIDs) == 0 {
		return nil
	}

	// A batch of one degrades to the single-object path.
	if len(objectIDs) == 1 {
		if m.Claim(ctx, objectIDs[0]) {
			return []string{objectIDs[0]}
		}
		return nil
	}

	var objects, err = m.store.List(ctx)
	if err != nil {
		m.options.logger.Warn("batch claim read failed", "error", err)
		return nil
	}

	var byID = make(map[string]*CanvasObject, len(objects))
	for _, obj := range objects {
		byID[obj.ID] = obj
	}

	var (
		now       = time.Now()
		claimable = make([]string, 0, len(objectIDs))
	)
	for _, id := range objectIDs {
		var obj, exists = byID[id]
		if !exists {
			continue
		}
		if m.claimable(obj, now) {
			claimable = append(claimable, id)
		}
	}

	if len(claimable) == 0 {
		return nil
	}

	if err := m.store.BatchWrite(ctx, claimable, lockFields(m.actor.ID, now)); err != nil {
		m.options.logger.Warn("batch claim write failed", "error", err)
		return nil
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.clearRemoteLocks(context.Background(), claimable)
		return nil
	}
	for _, id := range claimable {
		m.startLease(id, now)
	}
	m.mu.Unlock()

	return claimable
}

// Extend restarts the auto-expire timer for a held lease. The acquisition
// time is unchanged; only the local clock resets. No remote write happens,
// since the lock's server-side authority rests on the staleness window.
// A no-op with a warning when the object is not owned by this client.
func (m *OwnershipManager) Extend(objectID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var l, held = m.leases[objectID]
	if !held {
		m.options.logger.Warn("extend for object not owned by this client", "object_id", objectID)
		return
	}

	l.timer.Stop()
	m.gens++
	l.gen = m.gens
	l.expiresAt = time.Now().Add(m.options.leaseTTL)
	var gen = l.gen
	l.timer = time.AfterFunc(m.options.leaseTTL, func() {
		m.expire(objectID, gen)
	})
}

// LeaseExpiry returns when the local lease on the object auto-expires
// absent a further Extend, and whether such a lease is held.
func (m *OwnershipManager) LeaseExpiry(objectID string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var l, held = m.leases[objectID]
	if !held {
		return time.Time{}, false
	}
	return l.expiresAt, true
}

// Release gives up the lease on one object. Local state and the timer are
// torn down regardless of the remote outcome (fail open); remote failures
// are logged, since the staleness window bounds the damage of a lock left
// behind. Releasing an unowned object is a no-op success.
func (m *OwnershipManager) Release(ctx context.Context, objectID string) bool {
	m.mu.Lock()
	var l, held = m.leases[objectID]
	if held {
		l.timer.Stop()
		delete(m.leases, objectID)
	}
	m.mu.Unlock()

	if !held {
		return true
	}

	m.clearRemoteLocks(ctx, []string{objectID})
	return true
}

// ReleaseBatch gives up the leases on the given objects with a single
// remote write. Objects not owned by this client are skipped.
func (m *OwnershipManager) ReleaseBatch(ctx context.Context, objectIDs []string) {
	m.mu.Lock()
	var held = make([]string, 0, len(objectIDs))
	for _, id := range objectIDs {
		var l, ok = m.leases[id]
		if !ok {
			continue
		}
		l.timer.Stop()
		delete(m.leases, id)
		held = append(held, id)
	}
	m.mu.Unlock()

	if len(held) == 0 {
		return
	}

	m.clearRemoteLocks(ctx, held)
}

// ReleaseAll tears down every held lease. Timers are canceled and local
// state cleared synchronously; the remote unlock is attempted once, and the
// ids whose unlock failed are returned so the caller can retry best-effort.
func (m *OwnershipManager) ReleaseAll(ctx context.Context) []string {
	m.mu.Lock()
	var held = make([]string, 0, len(m.leases))
	for id, l := range m.leases {
		l.timer.Stop()
		held = append(held, id)
	}
	m.leases = make(map[string]*ownedLease)
	m.mu.Unlock()

	if len(held) == 0 {
		return nil
	}
	sort.Strings(held)

	if !m.clearRemoteLocks(ctx, held) {
		return held
	}
	return nil
}

// IsOwnedByMe reports whether this client currently holds a lease on the
// object.
func (m *OwnershipManager) IsOwnedByMe(objectID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	var _, held = m.leases[objectID]
	return held
}

// Owned returns the ids of every held lease, sorted.
func (m *OwnershipManager) Owned() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ids = make([]string, 0, len(m.leases))
	for id := range m.leases {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// close marks the manager closed so that claims resolving after teardown
// release themselves instead of creating leases.
func (m *OwnershipManager) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

// startLease records a lease and arms its auto-expire timer.
// Must be called with the lock held.
func (m *OwnershipManager) startLease(objectID string, acquiredAt time.Time) {
	if old, held := m.leases[objectID]; held {
		old.timer.Stop()
	}

	m.gens++
	var l = &ownedLease{
		lease: lease{
			objectID:   objectID,
			acquiredAt: acquiredAt,
		},
		gen:       m.gens,
		expiresAt: time.Now().Add(m.options.leaseTTL),
	}
	var gen = l.gen
	l.timer = time.AfterFunc(m.options.leaseTTL, func() {
		m.expire(objectID, gen)
	})
	m.leases[objectID] = l
}

// expire is the auto-expire path: when a lease's timer elapses without an
// Extend, the manager autonomously releases the object. The generation
// check discards a stale timer that lost the race against an Extend.
func (m *OwnershipManager) expire(objectID string, gen int) {
	m.mu.Lock()
	var l, held = m.leases[objectID]
	if !held || l.gen != gen {
		m.mu.Unlock()
		return
	}
	delete(m.leases, objectID)
	m.mu.Unlock()

	m.options.logger.Info("lease auto-expired",
		"object_id", objectID,
		"held_for", time.Since(l.acquiredAt).Round(time.Millisecond))

	m.clearRemoteLocks(context.Background(), []string{objectID})
}

// clearRemoteLocks clears the lock fields on the given objects, reporting
// success. Failures are logged; local state is never rolled back on a
// failed unlock.
func (m *OwnershipManager) clearRemoteLocks(ctx context.Context, objectIDs []string) bool {
	var err error
	if len(objectIDs) == 1 {
		err = m.store.Write(ctx, objectIDs[0], unlockFields())
	} else {
		err = m.store.BatchWrite(ctx, objectIDs, unlockFields())
	}
	if err != nil {
		m.options.logger.Warn("failed to clear remote lock",
			"object_ids", objectIDs,
			"error", err)
		return false
	}
	return true
}
