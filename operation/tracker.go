package operation

import (
	"sort"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds how long an operation stays pending when the server
// never answers.
const DefaultTimeout = 15 * time.Second

// TimeoutHandler is invoked when an operation expires without a result. It
// runs on the cache janitor goroutine, or on the caller of Add when Add finds
// an expired entry the janitor has not collected yet.
type TimeoutHandler func(op UserOperation)

type entry struct {
	op        UserOperation
	completed atomic.Bool
}

// Tracker holds the set of pending operations. It is safe for concurrent use.
type Tracker struct {
	cache     *gocache.Cache
	onTimeout atomic.Value // TimeoutHandler
}

// NewTracker creates a tracker whose entries expire after timeout.
// A non-positive timeout selects DefaultTimeout.
func NewTracker(timeout time.Duration) *Tracker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	cleanup := timeout / 4
	if cleanup < 10*time.Millisecond {
		cleanup = 10 * time.Millisecond
	}

	return newTracker(timeout, cleanup)
}

func newTracker(timeout, cleanup time.Duration) *Tracker {
	t := &Tracker{
		cache: gocache.New(timeout, cleanup),
	}
	t.cache.OnEvicted(t.evicted)
	return t
}

// OnTimeout registers the handler called for expired operations.
func (t *Tracker) OnTimeout(handler TimeoutHandler) {
	t.onTimeout.Store(handler)
}

// Add marks op as pending. It returns false if op is already pending.
func (t *Tracker) Add(op UserOperation) bool {
	// go-cache overwrites expired keys on Add without evicting them, which
	// would lose the timeout of the old entry.
	t.cache.DeleteExpired()

	e := &entry{op: op}
	if err := t.cache.Add(op.key(), e, gocache.DefaultExpiration); err != nil {
		return false
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Tracker.Add",
		"operation": op.String(),
	}).Debug("Operation pending")
	return true
}

// Remove marks op as completed. It reports whether op was pending.
func (t *Tracker) Remove(op UserOperation) bool {
	v, ok := t.cache.Get(op.key())
	if !ok {
		return false
	}
	v.(*entry).completed.Store(true)
	t.cache.Delete(op.key())
	return true
}

// RemoveType completes every pending operation of the given type and returns them.
func (t *Tracker) RemoveType(opType Type) []UserOperation {
	var removed []UserOperation
	for _, op := range t.Pending() {
		if op.Type == opType && t.Remove(op) {
			removed = append(removed, op)
		}
	}
	return removed
}

// Contains reports whether op is pending.
func (t *Tracker) Contains(op UserOperation) bool {
	_, ok := t.cache.Get(op.key())
	return ok
}

// ContainsType reports whether any operation of the given type is pending.
func (t *Tracker) ContainsType(opType Type) bool {
	for _, op := range t.Pending() {
		if op.Type == opType {
			return true
		}
	}
	return false
}

// Pending returns the pending operations ordered by type, then nickname.
func (t *Tracker) Pending() []UserOperation {
	items := t.cache.Items()
	ops := make([]UserOperation, 0, len(items))
	for _, item := range items {
		ops = append(ops, item.Object.(*entry).op)
	}

	sort.Slice(ops, func(i, j int) bool {
		if ops[i].Type != ops[j].Type {
			return ops[i].Type < ops[j].Type
		}
		return ops[i].Nickname < ops[j].Nickname
	})
	return ops
}

// Clear forgets every pending operation without firing timeouts.
func (t *Tracker) Clear() {
	for _, item := range t.cache.Items() {
		item.Object.(*entry).completed.Store(true)
	}
	t.cache.Flush()
}

// ClearExcept forgets every pending operation but keep, without firing
// timeouts.
func (t *Tracker) ClearExcept(keep UserOperation) {
	for _, op := range t.Pending() {
		if op != keep {
			t.Remove(op)
		}
	}
}

func (t *Tracker) evicted(_ string, v interface{}) {
	e, ok := v.(*entry)
	if !ok || e.completed.Load() {
		return
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Tracker.evicted",
		"operation": e.op.String(),
	}).Warn("Operation timed out without a result")

	if handler, ok := t.onTimeout.Load().(TimeoutHandler); ok && handler != nil {
		handler(e.op)
	}
}
