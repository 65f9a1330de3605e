package reminder

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/bkoseoglu/faturalog/internal/bill"
)

// Scheduler computes reminder instants for bills with future due dates and
// reconciles them against the notification facility. Reconciliation is
// cancel-everything-then-reschedule: reminder counts are small and the full
// teardown keeps the persisted set trivially in sync with the live
// notifications.
type Scheduler struct {
	store      bill.Store
	facade     *Facade
	notifier   Notifier
	timeSource bill.TimeSource
	language   string // notification language: "tr" or "en"
}

type realTimeSource struct{}

func (realTimeSource) Now() time.Time { return time.Now() }

// NewScheduler creates a Scheduler using the wall clock
func NewScheduler(store bill.Store, facade *Facade, notifier Notifier, language string) *Scheduler {
	return NewSchedulerWithDeps(store, facade, notifier, language, realTimeSource{})
}

// NewSchedulerWithDeps creates a Scheduler with an injected time source for
// testing
func NewSchedulerWithDeps(store bill.Store, facade *Facade, notifier Notifier, language string, timeSource bill.TimeSource) *Scheduler {
	if language != "en" {
		language = "tr"
	}
	return &Scheduler{
		store:      store,
		facade:     facade,
		notifier:   notifier,
		timeSource: timeSource,
		language:   language,
	}
}

// leadTimes returns the configured reminder days plus the due date itself
// (day 0), deduplicated and ascending.
func leadTimes(settings Settings) []int {
	seen := map[int]bool{0: true}
	days := []int{0}
	for _, d := range settings.ReminderDays {
		if d < 0 || seen[d] {
			continue
		}
		seen[d] = true
		days = append(days, d)
	}
	sort.Ints(days)
	return days
}

// reminderInstant computes the firing time for a lead time: the due date
// minus daysBefore days, at the configured wall-clock time with seconds
// zeroed.
func reminderInstant(dueDate time.Time, daysBefore int, at ClockTime) time.Time {
	d := dueDate.AddDate(0, 0, -daysBefore)
	return time.Date(d.Year(), d.Month(), d.Day(), at.Hour, at.Minute, 0, 0, d.Location())
}

// ScheduleForBill schedules reminder notifications for one bill, returning
// the notification handles it registered. Lead times whose firing instant is
// not strictly in the future are silently skipped; a per-item scheduling
// failure is logged and never aborts the remaining lead times.
func (s *Scheduler) ScheduleForBill(b *bill.Bill) ([]string, error) {
	settings := s.facade.GetSettings()
	if !settings.Enabled {
		return nil, nil
	}
	if b.DueDate == nil {
		return nil, nil
	}

	now := s.timeSource.Now()
	dueDate := *b.DueDate

	scheduled := s.facade.GetScheduled()
	var handles []string

	for _, daysBefore := range leadTimes(settings) {
		fireAt := reminderInstant(dueDate, daysBefore, settings.ReminderTime)
		if !fireAt.After(now) {
			// Past reminders are dropped, never fired retroactively
			continue
		}

		content := generateContent(b.Type, b.Cost, daysBefore, b.Merchant, s.language)

		handle, err := s.notifier.ScheduleAt(content, fireAt)
		if err != nil {
			slog.Error("Error scheduling notification", "bill_id", b.ID, "days_before", daysBefore, "error", err)
			continue
		}

		handles = append(handles, handle)
		scheduled = append(scheduled, ScheduledReminder{
			CompositeID:        fmt.Sprintf("%s_%d", b.ID, daysBefore),
			NotificationHandle: handle,
			BillID:             b.ID,
			BillType:           b.Type,
			DueDate:            dueDate,
			Amount:             b.Cost,
			Merchant:           b.Merchant,
			FiresAt:            fireAt,
		})

		slog.Debug("Scheduled bill reminder", "bill_id", b.ID, "type", b.Type, "days_before", daysBefore, "fires_at", fireAt)
	}

	if err := s.facade.saveScheduled(scheduled); err != nil {
		return handles, err
	}
	return handles, nil
}

// CancelForBill cancels and forgets only the reminders belonging to one
// bill; reminders for other bills are untouched.
func (s *Scheduler) CancelForBill(billID string) error {
	scheduled := s.facade.GetScheduled()
	prefix := billID + "_"

	remaining := scheduled[:0:0]
	for _, r := range scheduled {
		if !strings.HasPrefix(r.CompositeID, prefix) {
			remaining = append(remaining, r)
			continue
		}
		if err := s.notifier.Cancel(r.NotificationHandle); err != nil {
			slog.Error("Error canceling notification", "id", r.CompositeID, "error", err)
		}
	}

	return s.facade.saveScheduled(remaining)
}

// CancelAll cancels every scheduled reminder and persists the empty set.
// The notifier's bulk cancellation also sweeps up notifications whose
// persisted record was lost.
func (s *Scheduler) CancelAll() error {
	if err := s.notifier.CancelAll(); err != nil {
		slog.Error("Error canceling notifications", "error", err)
	}
	return s.facade.saveScheduled(nil)
}

// farFuture bounds the open-ended "due at or after now" queries
const farFuture = 100 * 365 * 24 * time.Hour

// RefreshAll tears down and rebuilds the entire reminder schedule for a
// user. Invoked on settings change and app start. Cancellation fully
// completes and persists before any rescheduling starts; otherwise the
// persisted set could hold stale handles.
func (s *Scheduler) RefreshAll(userID string) error {
	settings := s.facade.GetSettings()

	if !settings.Enabled {
		return s.CancelAll()
	}

	if err := s.CancelAll(); err != nil {
		return err
	}

	now := s.timeSource.Now()

	for _, collection := range bill.Collections() {
		bills, err := s.store.DueBetween(collection, userID, now, now.Add(farFuture))
		if err != nil {
			// One collection failing must not stop the others
			slog.Error("Error refreshing reminders for collection", "collection", collection, "error", err)
			continue
		}

		for _, b := range bills {
			if b.DueDate == nil || !b.DueDate.After(now) {
				continue
			}
			if _, err := s.ScheduleForBill(b); err != nil {
				slog.Error("Error scheduling reminders for bill", "bill_id", b.ID, "error", err)
			}
		}
	}

	return nil
}

// CountUpcoming returns the number of bills due within the next windowDays
// days. Used for a UI badge; per-collection failures count as zero.
func (s *Scheduler) CountUpcoming(userID string, windowDays int) int {
	now := s.timeSource.Now()
	until := now.AddDate(0, 0, windowDays)

	count := 0
	for _, collection := range bill.Collections() {
		n, err := s.store.CountDueBetween(collection, userID, now, until)
		if err != nil {
			slog.Error("Error counting bills in collection", "collection", collection, "error", err)
			continue
		}
		count += n
	}
	return count
}

// UpcomingBill is one entry in the upcoming-bills listing
type UpcomingBill struct {
	BillID       string    `json:"bill_id"`
	Type         bill.Type `json:"type"`
	Cost         float64   `json:"cost"`
	DueDate      time.Time `json:"due_date"`
	Merchant     string    `json:"merchant,omitempty"`
	DaysUntilDue int       `json:"days_until_due"`
}

// ListUpcoming returns the bills due within the next windowDays days,
// sorted ascending by due date. DaysUntilDue rounds up: less than one full
// day remaining still reports 1, and 0 only exactly at the due instant.
func (s *Scheduler) ListUpcoming(userID string, windowDays int) []UpcomingBill {
	now := s.timeSource.Now()
	until := now.AddDate(0, 0, windowDays)

	upcoming := make([]UpcomingBill, 0)
	for _, collection := range bill.Collections() {
		bills, err := s.store.DueBetween(collection, userID, now, until)
		if err != nil {
			slog.Error("Error listing bills in collection", "collection", collection, "error", err)
			continue
		}

		for _, b := range bills {
			if b.DueDate == nil {
				continue
			}
			upcoming = append(upcoming, UpcomingBill{
				BillID:       b.ID,
				Type:         b.Type,
				Cost:         b.Cost,
				DueDate:      *b.DueDate,
				Merchant:     b.Merchant,
				DaysUntilDue: daysUntil(now, *b.DueDate),
			})
		}
	}

	sort.Slice(upcoming, func(i, j int) bool {
		return upcoming[i].DueDate.Before(upcoming[j].DueDate)
	})
	return upcoming
}

// daysUntil is the ceiling of (due - now) in days
func daysUntil(now, due time.Time) int {
	diff := due.Sub(now)
	if diff <= 0 {
		return 0
	}
	return int(math.Ceil(diff.Hours() / 24))
}
