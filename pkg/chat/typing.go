package chat

import (
	"time"

	"github.com/deskstream/chatkit/pkg/model"
)

// DefaultTypingTimeout is how long a participant stays "typing" without a
// refresh before the indicator is cleared.
const DefaultTypingTimeout = 15 * time.Second

// typingTracker maintains the ordered set of currently-typing
// participants, paired 1:1 with expiry timers keyed by participant
// identity. All methods run on the coordinator's owner loop.
type typingTracker struct {
	participants []model.Participant
	timers       *timerRegistry
	timeout      time.Duration
	animate      bool
}

func newTypingTracker(timers *timerRegistry, timeout time.Duration) *typingTracker {
	if timeout <= 0 {
		timeout = DefaultTypingTimeout
	}
	return &typingTracker{timers: timers, timeout: timeout}
}

// onStart appends the participant if absent and (re)schedules its expiry
// timer. Repeated starts only refresh the timer.
func (tr *typingTracker) onStart(p model.Participant) {
	if tr.indexOf(p.ID, p.Kind) < 0 {
		tr.participants = append(tr.participants, p)
	}
	tr.timers.schedule(p.Key(), tr.timeout)
}

// onStop removes the participant and its timer. Unknown participants are
// silently ignored. Reports whether anything changed.
func (tr *typingTracker) onStop(id string, kind model.ParticipantKind) bool {
	i := tr.indexOf(id, kind)
	if i < 0 {
		return false
	}
	p := tr.participants[i]
	tr.participants = append(tr.participants[:i], tr.participants[i+1:]...)
	tr.timers.cancel(p.Key())
	return true
}

// onExpire removes the participant whose timer fired. The timer entry is
// already consumed by the registry.
func (tr *typingTracker) onExpire(key string) bool {
	for i, p := range tr.participants {
		if p.Key() == key {
			tr.participants = append(tr.participants[:i], tr.participants[i+1:]...)
			return true
		}
	}
	return false
}

// reset cancels every timer and clears the set.
func (tr *typingTracker) reset() {
	tr.timers.cancelAll()
	tr.participants = nil
}

// snapshot returns a copy of the current ordered presence list.
func (tr *typingTracker) snapshot() []model.Participant {
	return append([]model.Participant(nil), tr.participants...)
}

func (tr *typingTracker) indexOf(id string, kind model.ParticipantKind) int {
	for i, p := range tr.participants {
		if p.SameIdentity(id, kind) {
			return i
		}
	}
	return -1
}
