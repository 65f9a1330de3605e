package reminder

import (
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/bkoseoglu/faturalog/internal/bill"
)

// fakeBillStore is an in-memory bill.Store with injectable per-collection
// failures
type fakeBillStore struct {
	bills    []*bill.Bill
	failures map[string]error
}

func newFakeBillStore() *fakeBillStore {
	return &fakeBillStore{failures: make(map[string]error)}
}

func (f *fakeBillStore) SaveBill(b *bill.Bill) error {
	f.bills = append(f.bills, b)
	return nil
}

func (f *fakeBillStore) GetBill(id string) (*bill.Bill, error) {
	for _, b := range f.bills {
		if b.ID == id {
			return b, nil
		}
	}
	return nil, errors.New("bill not found")
}

func (f *fakeBillStore) DeleteBill(id string) error {
	for i, b := range f.bills {
		if b.ID == id {
			f.bills = append(f.bills[:i], f.bills[i+1:]...)
			return nil
		}
	}
	return errors.New("bill not found")
}

func (f *fakeBillStore) ListBills(userID string) ([]*bill.Bill, error) {
	var out []*bill.Bill
	for _, b := range f.bills {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeBillStore) DueBetween(collection, userID string, from, to time.Time) ([]*bill.Bill, error) {
	if err := f.failures[collection]; err != nil {
		return nil, err
	}
	var out []*bill.Bill
	for _, b := range f.bills {
		if string(b.Type)+"_bills" != collection || b.UserID != userID || b.DueDate == nil {
			continue
		}
		if b.DueDate.Before(from) || b.DueDate.After(to) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeBillStore) CountDueBetween(collection, userID string, from, to time.Time) (int, error) {
	bills, err := f.DueBetween(collection, userID, from, to)
	if err != nil {
		return 0, err
	}
	return len(bills), nil
}

func (f *fakeBillStore) Close() error { return nil }

// recordingNotifier records scheduled and cancelled notifications
type recordingNotifier struct {
	nextHandle int
	calls      int
	failOnCall int
	scheduled  map[string]time.Time
	contents   map[string]Content
	cancelled  []string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		scheduled: make(map[string]time.Time),
		contents:  make(map[string]Content),
	}
}

func (n *recordingNotifier) ScheduleAt(content Content, at time.Time) (string, error) {
	n.calls++
	if n.failOnCall != 0 && n.calls == n.failOnCall {
		return "", errors.New("notification facility unavailable")
	}
	n.nextHandle++
	handle := fmt.Sprintf("handle-%d", n.nextHandle)
	n.scheduled[handle] = at
	n.contents[handle] = content
	return handle, nil
}

func (n *recordingNotifier) Cancel(handle string) error {
	n.cancelled = append(n.cancelled, handle)
	delete(n.scheduled, handle)
	return nil
}

func (n *recordingNotifier) CancelAll() error {
	for handle := range n.scheduled {
		n.cancelled = append(n.cancelled, handle)
		delete(n.scheduled, handle)
	}
	return nil
}

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

var _ = Describe("Scheduler", func() {
	var (
		store     *fakeBillStore
		kvStore   *fakeKV
		facade    *Facade
		notifier  *recordingNotifier
		clock     *fakeClock
		scheduler *Scheduler
	)

	BeforeEach(func() {
		store = newFakeBillStore()
		kvStore = newFakeKV()
		facade = NewFacade(kvStore)
		notifier = newRecordingNotifier()
		clock = &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
		scheduler = NewSchedulerWithDeps(store, facade, notifier, "tr", clock)
	})

	newBill := func(id string, billType bill.Type, dueInDays int) *bill.Bill {
		due := clock.now.AddDate(0, 0, dueInDays)
		due = time.Date(due.Year(), due.Month(), due.Day(), 10, 0, 0, 0, time.UTC)
		return &bill.Bill{
			ID:      id,
			UserID:  "user1",
			Type:    billType,
			Cost:    700.0,
			DueDate: &due,
		}
	}

	Describe("ScheduleForBill", func() {
		var (
			b       *bill.Bill
			handles []string
			err     error
		)

		BeforeEach(func() {
			b = newBill("bill-1", bill.TypeElectricity, 5)
		})

		JustBeforeEach(func() {
			handles, err = scheduler.ScheduleForBill(b)
		})

		When("the due date is five days out with default settings", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should schedule the due-day reminder plus the lead times that fit", func() {
				// 7 days before is already past; 3, 1 and 0 remain
				Expect(handles).To(HaveLen(3))
			})

			It("should fire at the configured wall-clock time", func() {
				for _, at := range notifier.scheduled {
					Expect(at.Hour()).To(Equal(9))
					Expect(at.Minute()).To(Equal(0))
					Expect(at.Second()).To(Equal(0))
				}
			})

			It("should persist one record per scheduled reminder", func() {
				scheduled := facade.GetScheduled()
				Expect(scheduled).To(HaveLen(3))

				var ids []string
				for _, r := range scheduled {
					ids = append(ids, r.CompositeID)
				}
				Expect(ids).To(ConsistOf("bill-1_0", "bill-1_1", "bill-1_3"))
			})

			It("should snapshot the bill fields into the records", func() {
				for _, r := range facade.GetScheduled() {
					Expect(r.BillID).To(Equal("bill-1"))
					Expect(r.BillType).To(Equal(bill.TypeElectricity))
					Expect(r.Amount).To(Equal(700.0))
				}
			})
		})

		When("the due date is two days out", func() {
			BeforeEach(func() {
				b = newBill("bill-1", bill.TypeElectricity, 2)
			})

			It("should schedule exactly the tomorrow and due-day reminders", func() {
				Expect(handles).To(HaveLen(2))

				var ids []string
				for _, r := range facade.GetScheduled() {
					ids = append(ids, r.CompositeID)
				}
				Expect(ids).To(ConsistOf("bill-1_0", "bill-1_1"))
			})
		})

		When("reminders are disabled", func() {
			BeforeEach(func() {
				settings := DefaultSettings()
				settings.Enabled = false
				Expect(facade.SaveSettings(settings)).To(Succeed())
			})

			It("should schedule nothing", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(handles).To(BeEmpty())
				Expect(notifier.calls).To(BeZero())
			})
		})

		When("the bill has no due date", func() {
			BeforeEach(func() {
				b.DueDate = nil
			})

			It("should schedule nothing", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(handles).To(BeEmpty())
			})
		})

		When("the due date is in the past", func() {
			BeforeEach(func() {
				b = newBill("bill-1", bill.TypeElectricity, -3)
			})

			It("should never fire reminders retroactively", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(handles).To(BeEmpty())
				Expect(facade.GetScheduled()).To(BeEmpty())
			})
		})

		When("duplicate lead days are configured", func() {
			BeforeEach(func() {
				Expect(facade.SaveSettings(Settings{
					Enabled:      true,
					ReminderDays: []int{1, 1, 3},
					ReminderTime: ClockTime{Hour: 9, Minute: 0},
				})).To(Succeed())
			})

			It("should schedule each lead time once", func() {
				Expect(handles).To(HaveLen(3))
			})
		})

		When("one notification registration fails", func() {
			BeforeEach(func() {
				notifier.failOnCall = 1
			})

			It("should continue with the remaining lead times", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(handles).To(HaveLen(2))
				Expect(facade.GetScheduled()).To(HaveLen(2))
			})
		})
	})

	Describe("CancelForBill", func() {
		BeforeEach(func() {
			_, err := scheduler.ScheduleForBill(newBill("bill-1", bill.TypeElectricity, 5))
			Expect(err).NotTo(HaveOccurred())
			_, err = scheduler.ScheduleForBill(newBill("bill-2", bill.TypeWater, 4))
			Expect(err).NotTo(HaveOccurred())
		})

		It("should cancel only the bill's reminders", func() {
			Expect(scheduler.CancelForBill("bill-1")).To(Succeed())

			for _, r := range facade.GetScheduled() {
				Expect(r.BillID).To(Equal("bill-2"))
			}
			Expect(notifier.cancelled).To(HaveLen(3))
		})

		It("should be a no-op for a bill without reminders", func() {
			before := len(facade.GetScheduled())
			Expect(scheduler.CancelForBill("no-such-bill")).To(Succeed())
			Expect(facade.GetScheduled()).To(HaveLen(before))
			Expect(notifier.cancelled).To(BeEmpty())
		})
	})

	Describe("CancelAll", func() {
		BeforeEach(func() {
			_, err := scheduler.ScheduleForBill(newBill("bill-1", bill.TypeElectricity, 5))
			Expect(err).NotTo(HaveOccurred())
		})

		It("should cancel every reminder and persist the empty set", func() {
			Expect(scheduler.CancelAll()).To(Succeed())
			Expect(facade.GetScheduled()).To(BeEmpty())
			Expect(notifier.scheduled).To(BeEmpty())
		})
	})

	Describe("RefreshAll", func() {
		BeforeEach(func() {
			Expect(store.SaveBill(newBill("bill-1", bill.TypeElectricity, 5))).To(Succeed())
			Expect(store.SaveBill(newBill("bill-2", bill.TypeWater, 2))).To(Succeed())
			Expect(store.SaveBill(newBill("bill-3", bill.TypeInternet, -2))).To(Succeed())
		})

		It("should rebuild the schedule from the stored bills", func() {
			Expect(scheduler.RefreshAll("user1")).To(Succeed())

			bills := make(map[string]int)
			for _, r := range facade.GetScheduled() {
				bills[r.BillID]++
			}
			// bill-1: lead times 0, 1, 3; bill-2: 0, 1; bill-3 is overdue
			Expect(bills).To(Equal(map[string]int{"bill-1": 3, "bill-2": 2}))
		})

		It("should produce the same schedule when run twice", func() {
			Expect(scheduler.RefreshAll("user1")).To(Succeed())
			first := facade.GetScheduled()

			Expect(scheduler.RefreshAll("user1")).To(Succeed())
			second := facade.GetScheduled()

			firstSet := make(map[string]time.Time)
			for _, r := range first {
				firstSet[r.CompositeID] = r.FiresAt
			}
			secondSet := make(map[string]time.Time)
			for _, r := range second {
				secondSet[r.CompositeID] = r.FiresAt
			}
			Expect(secondSet).To(Equal(firstSet))
		})

		It("should cancel the previous schedule before rebuilding", func() {
			Expect(scheduler.RefreshAll("user1")).To(Succeed())
			Expect(scheduler.RefreshAll("user1")).To(Succeed())

			Expect(notifier.cancelled).To(HaveLen(5))
			Expect(notifier.scheduled).To(HaveLen(5))
		})

		When("reminders are disabled", func() {
			BeforeEach(func() {
				Expect(scheduler.RefreshAll("user1")).To(Succeed())

				settings := DefaultSettings()
				settings.Enabled = false
				Expect(facade.SaveSettings(settings)).To(Succeed())
			})

			It("should tear down the schedule and stop", func() {
				Expect(scheduler.RefreshAll("user1")).To(Succeed())
				Expect(facade.GetScheduled()).To(BeEmpty())
				Expect(notifier.scheduled).To(BeEmpty())
			})
		})

		When("one collection fails", func() {
			BeforeEach(func() {
				store.failures["electricity_bills"] = errors.New("bucket corrupt")
			})

			It("should still schedule the other collections", func() {
				Expect(scheduler.RefreshAll("user1")).To(Succeed())

				for _, r := range facade.GetScheduled() {
					Expect(r.BillID).To(Equal("bill-2"))
				}
				Expect(facade.GetScheduled()).NotTo(BeEmpty())
			})
		})
	})

	Describe("CountUpcoming", func() {
		BeforeEach(func() {
			Expect(store.SaveBill(newBill("bill-1", bill.TypeElectricity, 5))).To(Succeed())
			Expect(store.SaveBill(newBill("bill-2", bill.TypeWater, 2))).To(Succeed())
			Expect(store.SaveBill(newBill("bill-3", bill.TypeInternet, 20))).To(Succeed())
		})

		It("should count the bills due inside the window", func() {
			Expect(scheduler.CountUpcoming("user1", 7)).To(Equal(2))
		})

		It("should absorb per-collection failures", func() {
			store.failures["water_bills"] = errors.New("bucket corrupt")
			Expect(scheduler.CountUpcoming("user1", 7)).To(Equal(1))
		})
	})

	Describe("ListUpcoming", func() {
		BeforeEach(func() {
			Expect(store.SaveBill(newBill("bill-later", bill.TypeElectricity, 6))).To(Succeed())
			Expect(store.SaveBill(newBill("bill-sooner", bill.TypeWater, 2))).To(Succeed())
		})

		It("should sort by due date ascending", func() {
			upcoming := scheduler.ListUpcoming("user1", 30)
			Expect(upcoming).To(HaveLen(2))
			Expect(upcoming[0].BillID).To(Equal("bill-sooner"))
			Expect(upcoming[1].BillID).To(Equal("bill-later"))
		})

		It("should round partial days up", func() {
			// Due in 23 hours still counts as 1 day away
			due := clock.now.Add(23 * time.Hour)
			Expect(store.SaveBill(&bill.Bill{ID: "bill-soon", UserID: "user1", Type: bill.TypeOther, DueDate: &due})).To(Succeed())

			upcoming := scheduler.ListUpcoming("user1", 30)
			Expect(upcoming[0].BillID).To(Equal("bill-soon"))
			Expect(upcoming[0].DaysUntilDue).To(Equal(1))
		})

		It("should return an empty slice when nothing is due", func() {
			Expect(scheduler.ListUpcoming("nobody", 30)).To(BeEmpty())
		})
	})
})
