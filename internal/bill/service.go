package bill

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/bkoseoglu/faturalog/internal/extraction"
)

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Extractor is the slice of the extraction engine the service consumes
type Extractor interface {
	Extract(ctx context.Context, imageData []byte, contentType string) (*extraction.Result, error)
}

// ReminderManager is implemented by the reminder scheduler. The service
// drives it on bill creation, edits and deletion so the scheduled set tracks
// the stored bills.
type ReminderManager interface {
	ScheduleForBill(bill *Bill) ([]string, error)
	CancelForBill(billID string) error
}

// Service handles bill operations
type Service struct {
	store      Store
	extractor  Extractor
	storage    Storage
	reminders  ReminderManager
	timeSource TimeSource
}

// NewService creates a new Service with the default time source
func NewService(store Store, extractor Extractor, storage Storage, reminders ReminderManager) *Service {
	return NewServiceWithDeps(store, extractor, storage, reminders, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with a custom time source for
// testing
func NewServiceWithDeps(store Store, extractor Extractor, storage Storage, reminders ReminderManager, timeSource TimeSource) *Service {
	return &Service{
		store:      store,
		extractor:  extractor,
		storage:    storage,
		reminders:  reminders,
		timeSource: timeSource,
	}
}

// sanitizeFilename cleans up a filename by removing special characters and
// truncating length. Phone cameras generate long unwieldy names.
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	reg := regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	base = reg.ReplaceAllString(base, "")

	reg = regexp.MustCompile(`\s+`)
	base = reg.ReplaceAllString(base, " ")

	base = strings.TrimSpace(base)

	maxLen := 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}

	if base == "" {
		base = "bill"
	}

	return base + ext
}

// ProcessBillImage saves a bill image, runs extraction and persists the
// resulting record. Extraction degrades rather than fails: a record with
// empty structured fields comes back for the user to complete manually.
func (s *Service) ProcessBillImage(ctx context.Context, userID, filename string, data []byte, contentType string) (*Bill, error) {
	now := s.timeSource.Now()

	cleanFilename := sanitizeFilename(filename)
	fileKey := fmt.Sprintf("%d_%s", now.UnixNano(), cleanFilename)

	savedPath, err := s.storage.Save(fileKey, data)
	if err != nil {
		return nil, fmt.Errorf("saving image: %w", err)
	}

	result, err := s.extractor.Extract(ctx, data, contentType)
	if err != nil {
		// Unreadable image bytes; nothing to build a record from
		if derr := s.storage.Delete(savedPath); derr != nil {
			slog.Warn("Failed to delete image after extraction failure", "path", savedPath, "error", derr)
		}
		return nil, fmt.Errorf("extracting bill data: %w", err)
	}

	bill := &Bill{
		UserID:      userID,
		Type:        NormalizeType(result.Bill.Type),
		Usage:       result.Bill.Usage,
		DueDate:     result.Fields.Date,
		Merchant:    result.Fields.Merchant,
		Description: result.Bill.Description,
		Items:       result.Bill.Items,
		ImageSource: savedPath,
		RawText:     result.RawText,
		Confidence:  result.Confidence,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if result.Bill.Cost != nil {
		bill.Cost = *result.Bill.Cost
	}

	if err := s.store.SaveBill(bill); err != nil {
		if derr := s.storage.Delete(savedPath); derr != nil {
			slog.Warn("Failed to delete image after save failure", "path", savedPath, "error", derr)
		}
		return nil, fmt.Errorf("saving bill: %w", err)
	}

	s.scheduleReminders(bill)

	return bill, nil
}

// scheduleReminders runs reminder scheduling for a bill in the background
// path: failures are logged, never surfaced.
func (s *Service) scheduleReminders(bill *Bill) {
	if bill.DueDate == nil {
		return
	}
	if _, err := s.reminders.ScheduleForBill(bill); err != nil {
		slog.Error("Failed to schedule reminders", "bill_id", bill.ID, "error", err)
	}
}

// GetBill retrieves a bill by ID
func (s *Service) GetBill(id string) (*Bill, error) {
	bill, err := s.store.GetBill(id)
	if err != nil {
		return nil, fmt.Errorf("getting bill: %w", err)
	}
	return bill, nil
}

// ListBills returns all bills for a user
func (s *Service) ListBills(userID string) ([]*Bill, error) {
	bills, err := s.store.ListBills(userID)
	if err != nil {
		return nil, fmt.Errorf("listing bills: %w", err)
	}
	return bills, nil
}

// UpdateBill applies user corrections to a bill and refreshes its reminders
func (s *Service) UpdateBill(bill *Bill) error {
	existing, err := s.store.GetBill(bill.ID)
	if err != nil {
		return fmt.Errorf("getting bill for update: %w", err)
	}

	bill.UserID = existing.UserID
	bill.CreatedAt = existing.CreatedAt
	bill.UpdatedAt = s.timeSource.Now()
	bill.Type = NormalizeType(string(bill.Type))

	// A type change moves the document between collections; the store does
	// the move atomically, so a failed save never loses the original record
	if err := s.store.SaveBill(bill); err != nil {
		return fmt.Errorf("saving bill: %w", err)
	}

	if err := s.reminders.CancelForBill(bill.ID); err != nil {
		slog.Warn("Failed to cancel reminders before reschedule", "bill_id", bill.ID, "error", err)
	}
	s.scheduleReminders(bill)

	return nil
}

// DeleteBill removes a bill, its image and its scheduled reminders
func (s *Service) DeleteBill(id string) error {
	bill, err := s.store.GetBill(id)
	if err != nil {
		return fmt.Errorf("getting bill for deletion: %w", err)
	}

	if bill.ImageSource != "" {
		if err := s.storage.Delete(bill.ImageSource); err != nil {
			slog.Warn("Failed to delete image", "path", bill.ImageSource, "error", err)
		}
	}

	if err := s.store.DeleteBill(id); err != nil {
		return fmt.Errorf("deleting bill: %w", err)
	}

	if err := s.reminders.CancelForBill(id); err != nil {
		slog.Warn("Failed to cancel reminders for deleted bill", "bill_id", id, "error", err)
	}

	return nil
}

// GetBillImage retrieves the stored image for a bill
func (s *Service) GetBillImage(id string) ([]byte, error) {
	bill, err := s.store.GetBill(id)
	if err != nil {
		return nil, fmt.Errorf("getting bill: %w", err)
	}

	data, err := s.storage.Get(bill.ImageSource)
	if err != nil {
		return nil, fmt.Errorf("getting bill image: %w", err)
	}

	return data, nil
}
