// Package reminder derives and maintains the local notification schedule
// for upcoming bill due dates.
package reminder

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/bkoseoglu/faturalog/internal/bill"
	"github.com/bkoseoglu/faturalog/internal/kv"
)

// Storage keys, one record each
const (
	settingsKey  = "bill_reminder_settings"
	scheduledKey = "scheduled_bill_reminders"
)

// ClockTime is a local wall-clock time of day
type ClockTime struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// Settings holds the per-installation reminder configuration
type Settings struct {
	Enabled      bool      `json:"enabled"`
	ReminderDays []int     `json:"reminder_days"` // days before due date to remind
	ReminderTime ClockTime `json:"reminder_time"` // time of day to fire
}

// DefaultSettings returns the hard-coded defaults: enabled, reminders 1, 3
// and 7 days ahead, firing at 09:00.
func DefaultSettings() Settings {
	return Settings{
		Enabled:      true,
		ReminderDays: []int{1, 3, 7},
		ReminderTime: ClockTime{Hour: 9, Minute: 0},
	}
}

// normalize deduplicates and sorts the reminder days ascending and drops
// out-of-range values. Order never affects computation; sorting keeps the
// persisted form stable for display.
func (s Settings) normalize() Settings {
	seen := make(map[int]bool)
	days := make([]int, 0, len(s.ReminderDays))
	for _, d := range s.ReminderDays {
		if d < 0 || seen[d] {
			continue
		}
		seen[d] = true
		days = append(days, d)
	}
	sort.Ints(days)
	s.ReminderDays = days

	if s.ReminderTime.Hour < 0 || s.ReminderTime.Hour > 23 || s.ReminderTime.Minute < 0 || s.ReminderTime.Minute > 59 {
		s.ReminderTime = DefaultSettings().ReminderTime
	}
	return s
}

// ScheduledReminder is one pending notification for a (bill, lead-time)
// pair. The bill fields are a snapshot taken at scheduling time and are not
// re-validated against live bill state.
type ScheduledReminder struct {
	CompositeID        string    `json:"id"` // billId_daysBeforeDue
	NotificationHandle string    `json:"notification_id"`
	BillID             string    `json:"bill_id"`
	BillType           bill.Type `json:"bill_type"`
	DueDate            time.Time `json:"due_date"`
	Amount             float64   `json:"amount"`
	Merchant           string    `json:"merchant,omitempty"`
	FiresAt            time.Time `json:"scheduled_for"`
}

// Facade loads and saves the reminder configuration and the scheduled
// reminder list in durable local key-value storage. It never triggers
// scheduling itself; callers run RefreshAll after a settings change when
// rescheduling is desired.
type Facade struct {
	kv kv.Store
}

// NewFacade creates a settings facade over a key-value store
func NewFacade(store kv.Store) *Facade {
	return &Facade{kv: store}
}

// GetSettings returns the persisted settings, falling back to the defaults
// when nothing is stored or the stored record fails to parse. It never
// returns an error; the defaults are a reasonable continuation.
func (f *Facade) GetSettings() Settings {
	stored, found, err := f.kv.Get(settingsKey)
	if err != nil {
		slog.Error("Error reading reminder settings", "error", err)
		return DefaultSettings()
	}
	if !found {
		return DefaultSettings()
	}

	var settings Settings
	if err := json.Unmarshal([]byte(stored), &settings); err != nil {
		slog.Warn("Corrupt reminder settings, using defaults", "error", err)
		return DefaultSettings()
	}
	return settings.normalize()
}

// SaveSettings overwrites the stored settings record. A storage failure is
// the caller's problem and propagates unchanged.
func (f *Facade) SaveSettings(settings Settings) error {
	data, err := json.Marshal(settings.normalize())
	if err != nil {
		return fmt.Errorf("marshaling reminder settings: %w", err)
	}
	if err := f.kv.Set(settingsKey, string(data)); err != nil {
		return fmt.Errorf("saving reminder settings: %w", err)
	}
	return nil
}

// GetScheduled returns the persisted scheduled reminder list. Date fields
// are revived from their serialized form; a corrupt record yields an empty
// list rather than an error.
func (f *Facade) GetScheduled() []ScheduledReminder {
	stored, found, err := f.kv.Get(scheduledKey)
	if err != nil {
		slog.Error("Error reading scheduled reminders", "error", err)
		return nil
	}
	if !found {
		return nil
	}

	var reminders []ScheduledReminder
	if err := json.Unmarshal([]byte(stored), &reminders); err != nil {
		slog.Warn("Corrupt scheduled reminders, treating as empty", "error", err)
		return nil
	}
	return reminders
}

// saveScheduled overwrites the persisted scheduled reminder list
func (f *Facade) saveScheduled(reminders []ScheduledReminder) error {
	if reminders == nil {
		reminders = []ScheduledReminder{}
	}
	data, err := json.Marshal(reminders)
	if err != nil {
		return fmt.Errorf("marshaling scheduled reminders: %w", err)
	}
	if err := f.kv.Set(scheduledKey, string(data)); err != nil {
		return fmt.Errorf("saving scheduled reminders: %w", err)
	}
	return nil
}
