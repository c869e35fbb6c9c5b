// Package typing implements the debounced "user is typing" state machine.
//
// Each (user, room) key is either Idle or Typing. A key is Typing while it
// has a live entry in the coordinator's table; the entry owns the only
// expiry timer for that key. Every transition cancels the previous timer
// before anything else happens, and each scheduled timer carries a
// generation number so a fire that raced with a cancel is recognised as
// stale and ignored.
//
// The coordinator is not safe for concurrent use. Timer callbacks never
// touch it: they hand an Expiry to the notify function, which is expected to
// enqueue it on the owner's event loop, and the loop then calls Expire.
package typing

import (
	"sort"
	"time"
)

// DefaultTimeout is the silence interval after which a typing indicator
// clears on its own.
const DefaultTimeout = 2500 * time.Millisecond

// Key identifies one typing indicator.
type Key struct {
	User string
	Room string
}

// Expiry is delivered to the notify function when a timer fires.
type Expiry struct {
	Key   Key
	Owner string
	Gen   uint64
}

// Timer is a cancelable scheduled callback.
type Timer interface {
	Stop() bool
}

// Scheduler creates timers. RealScheduler is backed by time.AfterFunc.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// RealScheduler schedules callbacks on the runtime timer heap.
type RealScheduler struct{}

// AfterFunc calls f in its own goroutine after d.
func (RealScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type entry struct {
	gen   uint64
	owner string
	timer Timer
}

// Coordinator owns the typing state table.
type Coordinator struct {
	timeout time.Duration
	sched   Scheduler
	notify  func(Expiry)
	entries map[Key]*entry
	owned   map[string]map[Key]struct{} // owner connection id -> keys
	nextGen uint64
}

// New creates a coordinator. A non-positive timeout uses DefaultTimeout and
// a nil scheduler uses RealScheduler.
func New(timeout time.Duration, sched Scheduler, notify func(Expiry)) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if sched == nil {
		sched = RealScheduler{}
	}
	if notify == nil {
		notify = func(Expiry) {}
	}
	return &Coordinator{
		timeout: timeout,
		sched:   sched,
		notify:  notify,
		entries: make(map[Key]*entry),
		owned:   make(map[string]map[Key]struct{}),
	}
}

// Timeout returns the debounce interval.
func (c *Coordinator) Timeout() time.Duration {
	return c.timeout
}

// Start records a typing signal from owner. It returns true when the key
// moved from Idle to Typing; a key that was already Typing only has its
// timer restarted.
func (c *Coordinator) Start(owner string, k Key) bool {
	prev, wasTyping := c.entries[k]
	if wasTyping {
		prev.timer.Stop()
		c.disown(prev.owner, k)
	}

	c.nextGen++
	gen := c.nextGen
	c.entries[k] = &entry{
		gen:   gen,
		owner: owner,
		timer: c.sched.AfterFunc(c.timeout, func() {
			c.notify(Expiry{Key: k, Owner: owner, Gen: gen})
		}),
	}
	c.own(owner, k)

	return !wasTyping
}

// Stop cancels the timer for k and moves it to Idle. It returns whether the
// key was Typing.
func (c *Coordinator) Stop(k Key) bool {
	e, ok := c.entries[k]
	if !ok {
		return false
	}
	c.drop(k, e)
	return true
}

// Expire handles a fired timer. It returns true when the expiry belongs to
// the live entry for its key, in which case the key is now Idle.
func (c *Coordinator) Expire(x Expiry) bool {
	e, ok := c.entries[x.Key]
	if !ok || e.gen != x.Gen {
		return false
	}
	c.drop(x.Key, e)
	return true
}

// DropOwner forces every key owned by owner to Idle and returns the keys
// that were Typing, sorted by room then user.
func (c *Coordinator) DropOwner(owner string) []Key {
	return c.dropOwned(owner, func(Key) bool { return true })
}

// DropOwnerInRoom is DropOwner restricted to a single room.
func (c *Coordinator) DropOwnerInRoom(owner, room string) []Key {
	return c.dropOwned(owner, func(k Key) bool { return k.Room == room })
}

// IsTyping reports whether k is in the Typing state.
func (c *Coordinator) IsTyping(k Key) bool {
	_, ok := c.entries[k]
	return ok
}

// Active returns the number of keys currently Typing.
func (c *Coordinator) Active() int {
	return len(c.entries)
}

func (c *Coordinator) dropOwned(owner string, match func(Key) bool) []Key {
	var dropped []Key
	for k := range c.owned[owner] {
		if !match(k) {
			continue
		}
		if e, ok := c.entries[k]; ok {
			c.drop(k, e)
			dropped = append(dropped, k)
		}
	}
	sort.Slice(dropped, func(i, j int) bool {
		if dropped[i].Room != dropped[j].Room {
			return dropped[i].Room < dropped[j].Room
		}
		return dropped[i].User < dropped[j].User
	})
	return dropped
}

func (c *Coordinator) drop(k Key, e *entry) {
	e.timer.Stop()
	delete(c.entries, k)
	c.disown(e.owner, k)
}

func (c *Coordinator) own(owner string, k Key) {
	keys, ok := c.owned[owner]
	if !ok {
		keys = make(map[Key]struct{})
		c.owned[owner] = keys
	}
	keys[k] = struct{}{}
}

func (c *Coordinator) disown(owner string, k Key) {
	keys, ok := c.owned[owner]
	if !ok {
		return
	}
	delete(keys, k)
	if len(keys) == 0 {
		delete(c.owned, owner)
	}
}
