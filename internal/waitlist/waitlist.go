// Package waitlist implements the slot-keyed waiter registry backing the pool
// core. Slots keep their key for the lifetime of a waiter; a notification only
// consumes the slot's wake handle, so a notified waiter can refresh its handle
// under the same key when it re-parks.
package waitlist

// List stores waiter slots in registration order. Keys are allocated once per
// waiter and stay stable across handle updates. The zero value is ready to use.
//
// List is not safe for concurrent use; the pool core guards it with its own
// mutex.
type List struct {
	slots   []slot
	nextKey uint64
}

type slot struct {
	key    uint64
	handle chan struct{} // nil once consumed by NotifyOne
}

// Insert registers a new waiter holding the provided wake handle and returns
// its stable key.
func (l *List) Insert(handle chan struct{}) uint64 {
	l.nextKey++
	l.slots = append(l.slots, slot{key: l.nextKey, handle: handle})
	return l.nextKey
}

// Handle returns the wake handle currently stored under key. The second return
// reports whether the slot exists; a nil handle on an existing slot means a
// notification already consumed it.
func (l *List) Handle(key uint64) (chan struct{}, bool) {
	for i := range l.slots {
		if l.slots[i].key == key {
			return l.slots[i].handle, true
		}
	}
	return nil, false
}

// SetHandle replaces the wake handle stored under key, reporting whether the
// slot exists.
func (l *List) SetHandle(key uint64, handle chan struct{}) bool {
	for i := range l.slots {
		if l.slots[i].key == key {
			l.slots[i].handle = handle
			return true
		}
	}
	return false
}

// Remove deletes the slot under key and returns whatever handle it still held.
// A (nil, true) result tells the caller its wakeup was already claimed by a
// notifier, which drives the cancellation re-propagation protocol.
func (l *List) Remove(key uint64) (chan struct{}, bool) {
	for i := range l.slots {
		if l.slots[i].key == key {
			handle := l.slots[i].handle
			l.slots = append(l.slots[:i], l.slots[i+1:]...)
			return handle, true
		}
	}
	return nil, false
}

// NotifyOne consumes and returns the oldest still-populated slot's wake
// handle, or nil when no slot holds one. The slot itself stays registered so
// the notified waiter keeps its key.
func (l *List) NotifyOne() chan struct{} {
	for i := range l.slots {
		if l.slots[i].handle != nil {
			handle := l.slots[i].handle
			l.slots[i].handle = nil
			return handle
		}
	}
	return nil
}

// Len reports the number of registered slots, populated or not.
func (l *List) Len() int { return len(l.slots) }
