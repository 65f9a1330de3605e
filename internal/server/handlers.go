package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bkoseoglu/faturalog/internal/bill"
	"github.com/bkoseoglu/faturalog/internal/reminder"
)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// writeJSON writes a JSON response body
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// jsonError writes a JSON error body
func jsonError(w http.ResponseWriter, code int, message string) {
	setCORSHeaders(w)
	writeJSON(w, code, map[string]string{"error": message})
}

// handleUploadBill accepts a bill/receipt image and returns the extracted
// record
func (s *Server) handleUploadBill(w http.ResponseWriter, r *http.Request) {
	// 50MB cap to handle high-resolution phone photos
	maxFormSize := int64(50 << 20)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		msg := "Error parsing form"
		if err.Error() == "http: request body too large" {
			msg = "File is too large. Maximum size is 50MB."
		}
		jsonError(w, http.StatusBadRequest, msg)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		jsonError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer f.Close()

	if header.Size > maxFormSize {
		jsonError(w, http.StatusBadRequest, "File is too large. Maximum size is 50MB.")
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, http.StatusInternalServerError, "Error reading file")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = contentTypeFromExt(header.Filename)
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))

	b, err := s.bills.ProcessBillImage(r.Context(), s.userID, header.Filename, data, contentType)
	if err != nil {
		slog.Error("Error processing bill image", "filename", header.Filename, "error", err)
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, b)
}

// contentTypeFromExt guesses a MIME type from the filename extension
func contentTypeFromExt(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// handleListBills returns all bills for the configured user
func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request) {
	bills, err := s.bills.ListBills(s.userID)
	if err != nil {
		slog.Error("Error listing bills", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if bills == nil {
		bills = []*bill.Bill{}
	}
	writeJSON(w, http.StatusOK, bills)
}

// handleGetBill returns a single bill
func (s *Server) handleGetBill(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Bill ID required", http.StatusBadRequest)
		return
	}
	b, err := s.bills.GetBill(id)
	if err != nil {
		corsError(w, "Bill not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// billUpdateRequest carries the user-editable bill fields
type billUpdateRequest struct {
	Type        string     `json:"type" validate:"required,oneof=electricity water gas naturalGas internet other"`
	Usage       *float64   `json:"usage,omitempty" validate:"omitempty,gte=0"`
	Cost        float64    `json:"cost" validate:"gte=0"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Merchant    string     `json:"merchant,omitempty"`
	Description string     `json:"description,omitempty"`
	Items       string     `json:"items,omitempty"`
}

// handleUpdateBill applies user corrections to a bill
func (s *Server) handleUpdateBill(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Bill ID required", http.StatusBadRequest)
		return
	}

	var req billUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	existing, err := s.bills.GetBill(id)
	if err != nil {
		corsError(w, "Bill not found", http.StatusNotFound)
		return
	}

	existing.Type = bill.NormalizeType(req.Type)
	existing.Usage = req.Usage
	existing.Cost = req.Cost
	existing.DueDate = req.DueDate
	existing.Merchant = req.Merchant
	existing.Description = req.Description
	existing.Items = req.Items

	if err := s.bills.UpdateBill(existing); err != nil {
		slog.Error("Error updating bill", "bill_id", id, "error", err)
		jsonError(w, http.StatusInternalServerError, "Error updating bill")
		return
	}

	writeJSON(w, http.StatusOK, existing)
}

// handleDeleteBill deletes a bill, its image and its reminders
func (s *Server) handleDeleteBill(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Bill ID required", http.StatusBadRequest)
		return
	}
	if err := s.bills.DeleteBill(id); err != nil {
		corsError(w, "Error deleting bill", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetBillImage returns the stored source image for a bill
func (s *Server) handleGetBillImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		corsError(w, "Bill ID required", http.StatusBadRequest)
		return
	}
	data, err := s.bills.GetBillImage(id)
	if err != nil {
		corsError(w, "Image not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Write(data)
}

// handleGetSettings returns the reminder settings
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.GetSettings())
}

// settingsRequest carries a reminder settings update
type settingsRequest struct {
	Enabled      bool  `json:"enabled"`
	ReminderDays []int `json:"reminder_days" validate:"dive,gte=0,lte=60"`
	ReminderTime struct {
		Hour   int `json:"hour" validate:"gte=0,lte=23"`
		Minute int `json:"minute" validate:"gte=0,lte=59"`
	} `json:"reminder_time"`
}

// handleSaveSettings persists new reminder settings and rebuilds the
// schedule
func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	settings := reminder.Settings{
		Enabled:      req.Enabled,
		ReminderDays: req.ReminderDays,
		ReminderTime: reminder.ClockTime{Hour: req.ReminderTime.Hour, Minute: req.ReminderTime.Minute},
	}
	if err := s.settings.SaveSettings(settings); err != nil {
		slog.Error("Error saving reminder settings", "error", err)
		jsonError(w, http.StatusInternalServerError, "Error saving settings")
		return
	}

	if err := s.scheduler.RefreshAll(s.userID); err != nil {
		slog.Error("Error refreshing reminders after settings change", "error", err)
	}

	writeJSON(w, http.StatusOK, s.settings.GetSettings())
}

// handleRefresh rebuilds the reminder schedule
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.scheduler.RefreshAll(s.userID); err != nil {
		slog.Error("Error refreshing reminders", "error", err)
		jsonError(w, http.StatusInternalServerError, "Error refreshing reminders")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// windowDays parses the "days" query parameter with a default
func windowDays(r *http.Request, def int) int {
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

// handleListUpcoming lists bills due within the window, soonest first
func (s *Server) handleListUpcoming(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scheduler.ListUpcoming(s.userID, windowDays(r, 30)))
}

// handleCountUpcoming reports the upcoming-bills badge count
func (s *Server) handleCountUpcoming(w http.ResponseWriter, r *http.Request) {
	count := s.scheduler.CountUpcoming(s.userID, windowDays(r, 7))
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}
