package bill

import (
	"context"
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/bkoseoglu/faturalog/internal/extraction"
)

type mockStore struct {
	bills   map[string]*Bill
	saveErr error
	nextID  int
}

func newMockStore() *mockStore {
	return &mockStore{bills: make(map[string]*Bill)}
}

func (m *mockStore) SaveBill(b *Bill) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	if b.ID == "" {
		m.nextID++
		b.ID = fmt.Sprintf("bill-%d", m.nextID)
	}
	b.Type = NormalizeType(string(b.Type))
	copied := *b
	m.bills[b.ID] = &copied
	return nil
}

func (m *mockStore) GetBill(id string) (*Bill, error) {
	b, ok := m.bills[id]
	if !ok {
		return nil, errors.New("bill not found")
	}
	copied := *b
	return &copied, nil
}

func (m *mockStore) DeleteBill(id string) error {
	if _, ok := m.bills[id]; !ok {
		return errors.New("bill not found")
	}
	delete(m.bills, id)
	return nil
}

func (m *mockStore) ListBills(userID string) ([]*Bill, error) {
	var out []*Bill
	for _, b := range m.bills {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *mockStore) DueBetween(collection, userID string, from, to time.Time) ([]*Bill, error) {
	return nil, nil
}

func (m *mockStore) CountDueBetween(collection, userID string, from, to time.Time) (int, error) {
	return 0, nil
}

func (m *mockStore) Close() error { return nil }

type mockStorage struct {
	saved       map[string][]byte
	saveErr     error
	deleteErr   error
	deletedKeys []string
}

func newMockStorage() *mockStorage {
	return &mockStorage{saved: make(map[string][]byte)}
}

func (m *mockStorage) Save(filename string, data []byte) (string, error) {
	if m.saveErr != nil {
		return "", m.saveErr
	}
	m.saved[filename] = data
	return filename, nil
}

func (m *mockStorage) Get(path string) ([]byte, error) {
	data, ok := m.saved[path]
	if !ok {
		return nil, errors.New("file not found")
	}
	return data, nil
}

func (m *mockStorage) Delete(path string) error {
	m.deletedKeys = append(m.deletedKeys, path)
	delete(m.saved, path)
	return m.deleteErr
}

type stubExtractor struct {
	result *extraction.Result
	err    error
}

func (s *stubExtractor) Extract(ctx context.Context, imageData []byte, contentType string) (*extraction.Result, error) {
	return s.result, s.err
}

type mockReminders struct {
	scheduled   []string
	cancelled   []string
	scheduleErr error
	cancelErr   error
}

func (m *mockReminders) ScheduleForBill(b *Bill) ([]string, error) {
	if m.scheduleErr != nil {
		return nil, m.scheduleErr
	}
	m.scheduled = append(m.scheduled, b.ID)
	return []string{b.ID + "_7"}, nil
}

func (m *mockReminders) CancelForBill(billID string) error {
	m.cancelled = append(m.cancelled, billID)
	return m.cancelErr
}

type fixedTimeSource struct {
	now time.Time
}

func (f *fixedTimeSource) Now() time.Time { return f.now }

var _ = Describe("Service", func() {
	var (
		store     *mockStore
		storage   *mockStorage
		extractor *stubExtractor
		reminders *mockReminders
		clock     *fixedTimeSource
		service   *Service
	)

	BeforeEach(func() {
		store = newMockStore()
		storage = newMockStorage()
		extractor = &stubExtractor{}
		reminders = &mockReminders{}
		clock = &fixedTimeSource{now: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
		service = NewServiceWithDeps(store, extractor, storage, reminders, clock)
	})

	Describe("ProcessBillImage", func() {
		var (
			result *Bill
			err    error
		)

		JustBeforeEach(func() {
			result, err = service.ProcessBillImage(context.Background(), "user1", "fatura.jpg", []byte("image-bytes"), "image/jpeg")
		})

		When("extraction succeeds with a full bill", func() {
			var dueDate time.Time

			BeforeEach(func() {
				dueDate = clock.now.AddDate(0, 0, 10)
				usage := 8.33
				cost := 700.0
				extractor.result = &extraction.Result{
					RawText:    "ENERJISA fatura",
					Confidence: 0.9,
					Fields: extraction.CandidateFields{
						Merchant: "ENERJISA",
						Date:     &dueDate,
						Amount:   &cost,
					},
					Bill: extraction.BillFields{
						Type:        "electricity",
						Usage:       &usage,
						Cost:        &cost,
						Items:       "Haziran dönemi",
						Description: "Elektrik Faturası",
					},
				}
			})

			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should map the extraction result onto the bill", func() {
				Expect(result.UserID).To(Equal("user1"))
				Expect(result.Type).To(Equal(TypeElectricity))
				Expect(result.Usage).To(HaveValue(Equal(8.33)))
				Expect(result.Cost).To(Equal(700.0))
				Expect(result.DueDate).To(HaveValue(Equal(dueDate)))
				Expect(result.Merchant).To(Equal("ENERJISA"))
				Expect(result.Description).To(Equal("Elektrik Faturası"))
			})

			It("should stamp timestamps from the time source", func() {
				Expect(result.CreatedAt).To(Equal(clock.now))
				Expect(result.UpdatedAt).To(Equal(clock.now))
			})

			It("should persist the bill", func() {
				Expect(store.bills).To(HaveKey(result.ID))
			})

			It("should store the image and record its path", func() {
				Expect(result.ImageSource).NotTo(BeEmpty())
				Expect(storage.saved).To(HaveKey(result.ImageSource))
			})

			It("should schedule reminders for the bill", func() {
				Expect(reminders.scheduled).To(ConsistOf(result.ID))
			})
		})

		When("extraction degrades to an empty result", func() {
			BeforeEach(func() {
				extractor.result = &extraction.Result{RawText: "unreadable scan"}
			})

			It("should still create a record for manual completion", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(result.Type).To(Equal(TypeOther))
				Expect(result.Cost).To(BeZero())
				Expect(result.RawText).To(Equal("unreadable scan"))
			})

			It("should not schedule reminders without a due date", func() {
				Expect(reminders.scheduled).To(BeEmpty())
			})
		})

		When("the image bytes are unreadable", func() {
			BeforeEach(func() {
				extractor.err = errors.New("preparing image: unsupported format")
			})

			It("should return the error", func() {
				Expect(err).To(HaveOccurred())
				Expect(result).To(BeNil())
			})

			It("should clean up the stored image", func() {
				Expect(storage.saved).To(BeEmpty())
				Expect(storage.deletedKeys).To(HaveLen(1))
			})

			When("the image cleanup also fails", func() {
				BeforeEach(func() {
					storage.deleteErr = errors.New("permission denied")
				})

				It("should still report the extraction error", func() {
					Expect(err).To(MatchError(ContainSubstring("extracting bill data")))
				})
			})
		})

		When("persisting the bill fails", func() {
			BeforeEach(func() {
				extractor.result = &extraction.Result{RawText: "text"}
				store.saveErr = errors.New("disk full")
			})

			It("should return the error and clean up the image", func() {
				Expect(err).To(HaveOccurred())
				Expect(storage.saved).To(BeEmpty())
			})
		})

		When("reminder scheduling fails", func() {
			BeforeEach(func() {
				dueDate := clock.now.AddDate(0, 0, 5)
				extractor.result = &extraction.Result{
					Fields: extraction.CandidateFields{Date: &dueDate},
					Bill:   extraction.BillFields{Type: "water"},
				}
				reminders.scheduleErr = errors.New("notifier down")
			})

			It("should still return the bill", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(result).NotTo(BeNil())
			})
		})
	})

	Describe("UpdateBill", func() {
		var existing *Bill

		BeforeEach(func() {
			existing = &Bill{
				UserID:    "user1",
				Type:      TypeElectricity,
				Cost:      700.0,
				CreatedAt: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
			}
			Expect(store.SaveBill(existing)).To(Succeed())
		})

		It("should preserve the owner and creation time", func() {
			update := &Bill{ID: existing.ID, Type: TypeElectricity, Cost: 750.0}
			Expect(service.UpdateBill(update)).To(Succeed())
			Expect(update.UserID).To(Equal("user1"))
			Expect(update.CreatedAt).To(Equal(existing.CreatedAt))
			Expect(update.UpdatedAt).To(Equal(clock.now))
		})

		It("should persist a type change", func() {
			update := &Bill{ID: existing.ID, Type: TypeWater, Cost: 700.0}
			Expect(service.UpdateBill(update)).To(Succeed())
			Expect(store.bills[existing.ID].Type).To(Equal(TypeWater))
		})

		It("should keep the original record when saving a type change fails", func() {
			store.saveErr = errors.New("disk full")
			update := &Bill{ID: existing.ID, Type: TypeWater, Cost: 700.0}
			Expect(service.UpdateBill(update)).To(HaveOccurred())

			kept, err := store.GetBill(existing.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(kept.Type).To(Equal(TypeElectricity))
		})

		It("should cancel and reschedule the bill's reminders", func() {
			due := clock.now.AddDate(0, 0, 4)
			update := &Bill{ID: existing.ID, Type: TypeElectricity, Cost: 700.0, DueDate: &due}
			Expect(service.UpdateBill(update)).To(Succeed())
			Expect(reminders.cancelled).To(ConsistOf(existing.ID))
			Expect(reminders.scheduled).To(ConsistOf(existing.ID))
		})

		It("should normalize the legacy gas type", func() {
			update := &Bill{ID: existing.ID, Type: "gas", Cost: 700.0}
			Expect(service.UpdateBill(update)).To(Succeed())
			Expect(update.Type).To(Equal(TypeNaturalGas))
		})

		It("should fail for an unknown bill", func() {
			Expect(service.UpdateBill(&Bill{ID: "no-such-bill"})).To(HaveOccurred())
		})
	})

	Describe("DeleteBill", func() {
		var existing *Bill

		BeforeEach(func() {
			existing = &Bill{UserID: "user1", Type: TypeWater, Cost: 100.0, ImageSource: "img.jpg"}
			storage.saved["img.jpg"] = []byte("bytes")
			Expect(store.SaveBill(existing)).To(Succeed())
		})

		It("should delete the bill, its image and its reminders", func() {
			Expect(service.DeleteBill(existing.ID)).To(Succeed())
			Expect(store.bills).NotTo(HaveKey(existing.ID))
			Expect(storage.saved).NotTo(HaveKey("img.jpg"))
			Expect(reminders.cancelled).To(ConsistOf(existing.ID))
		})

		It("should still delete the bill when the image removal fails", func() {
			storage.deleteErr = errors.New("permission denied")
			Expect(service.DeleteBill(existing.ID)).To(Succeed())
			Expect(store.bills).NotTo(HaveKey(existing.ID))
		})

		It("should fail for an unknown bill", func() {
			Expect(service.DeleteBill("no-such-bill")).To(HaveOccurred())
		})
	})

	Describe("GetBillImage", func() {
		BeforeEach(func() {
			b := &Bill{UserID: "user1", Type: TypeOther, ImageSource: "receipt.png"}
			storage.saved["receipt.png"] = []byte("png-bytes")
			Expect(store.SaveBill(b)).To(Succeed())
		})

		It("should return the stored image", func() {
			bills, err := store.ListBills("user1")
			Expect(err).NotTo(HaveOccurred())
			data, err := service.GetBillImage(bills[0].ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("png-bytes")))
		})
	})
})
