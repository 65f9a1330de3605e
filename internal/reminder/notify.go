package reminder

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Notifier is the notification facility reminders are registered with. The
// handle returned by ScheduleAt is required to cancel a pending
// notification later.
type Notifier interface {
	// ScheduleAt registers a notification to fire at an absolute local time
	ScheduleAt(content Content, at time.Time) (string, error)

	// Cancel removes a pending notification by handle
	Cancel(handle string) error

	// CancelAll removes every pending notification
	CancelAll() error
}

// TimerNotifier implements Notifier with in-process timers, delivering fired
// notifications through a callback. It stands in for the mobile OS
// notification facility when running as a standalone service.
type TimerNotifier struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	deliver func(Content)
}

// NewTimerNotifier creates a TimerNotifier. A nil deliver callback logs
// fired notifications.
func NewTimerNotifier(deliver func(Content)) *TimerNotifier {
	if deliver == nil {
		deliver = func(c Content) {
			slog.Info("Reminder fired", "title", c.Title, "body", c.Body)
		}
	}
	return &TimerNotifier{
		timers:  make(map[string]*time.Timer),
		deliver: deliver,
	}
}

// ScheduleAt registers a notification to fire at an absolute local time
func (n *TimerNotifier) ScheduleAt(content Content, at time.Time) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	handle := uuid.NewString()
	n.timers[handle] = time.AfterFunc(time.Until(at), func() {
		n.mu.Lock()
		delete(n.timers, handle)
		n.mu.Unlock()
		n.deliver(content)
	})
	return handle, nil
}

// Cancel removes a pending notification. Cancelling a handle that already
// fired is a no-op, matching the OS facility's behavior.
func (n *TimerNotifier) Cancel(handle string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if timer, ok := n.timers[handle]; ok {
		timer.Stop()
		delete(n.timers, handle)
	}
	return nil
}

// CancelAll removes every pending notification
func (n *TimerNotifier) CancelAll() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	for handle, timer := range n.timers {
		timer.Stop()
		delete(n.timers, handle)
	}
	return nil
}

// Pending returns the number of notifications that have not fired yet
func (n *TimerNotifier) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.timers)
}
