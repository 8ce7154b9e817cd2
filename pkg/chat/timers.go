package chat

import "time"

// timerRegistry keeps at most one live expiry timer per key. Scheduling
// under an existing key restarts it rather than stacking a second timer.
// Expiry callbacks are marshalled onto the coordinator's owner loop via
// post, and a per-schedule generation guards against a timer that fired
// just before it was restarted or cancelled: the stale callback finds a
// newer generation and is dropped.
type timerRegistry struct {
	post    func(func()) bool
	expired func(key string)

	timers map[string]*timerEntry
	gen    uint64
}

type timerEntry struct {
	t   *time.Timer
	gen uint64
}

func newTimerRegistry(post func(func()) bool, expired func(key string)) *timerRegistry {
	return &timerRegistry{
		post:    post,
		expired: expired,
		timers:  map[string]*timerEntry{},
	}
}

// schedule installs (or restarts) the timer for key. Owner loop only.
func (r *timerRegistry) schedule(key string, delay time.Duration) {
	if prev, ok := r.timers[key]; ok {
		prev.t.Stop()
	}
	r.gen++
	entry := &timerEntry{gen: r.gen}
	entry.t = time.AfterFunc(delay, func() {
		r.post(func() { r.fire(key, entry.gen) })
	})
	r.timers[key] = entry
}

// cancel stops and forgets the timer for key, if any. Owner loop only.
func (r *timerRegistry) cancel(key string) {
	if entry, ok := r.timers[key]; ok {
		entry.t.Stop()
		delete(r.timers, key)
	}
}

// cancelAll invalidates every outstanding timer without firing callbacks.
func (r *timerRegistry) cancelAll() {
	for key, entry := range r.timers {
		entry.t.Stop()
		delete(r.timers, key)
	}
}

// fire runs on the owner loop. The entry is consumed before the callback
// so a restart from inside the callback installs a fresh timer.
func (r *timerRegistry) fire(key string, gen uint64) {
	entry, ok := r.timers[key]
	if !ok || entry.gen != gen {
		return
	}
	delete(r.timers, key)
	r.expired(key)
}
