// Package api exposes HTTP handlers for the pet care service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"example.com/petcare/internal/domain"
	"example.com/petcare/internal/events"
	"example.com/petcare/internal/observability"
)

const maxBodyBytes = 1 << 20

// Handler coordinates HTTP requests with the domain service and chat responder.
type Handler struct {
	service   *domain.Service
	responder *domain.Responder
	logger    *log.Logger
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, responder *domain.Responder, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{service: service, responder: responder, logger: logger}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/activities", h.activities)
	mux.HandleFunc("/api/summary/today", h.todaySummary)
	mux.HandleFunc("/api/chat", h.chat)
	mux.HandleFunc("/api/health", healthz)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports liveness.
func healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) activities(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createActivity(w, r)
	case http.MethodGet:
		h.listActivities(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) createActivity(w http.ResponseWriter, r *http.Request) {
	var req CreateActivityRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	activity, err := h.service.LogActivity(r.Context(), req.Submission())
	if err != nil {
		if domain.IsValidation(err) {
			observability.RecordRejected(err, "http")
		}
		h.writeDomainError(w, err)
		return
	}

	observability.RecordActivityLogged(string(activity.Type), "http")
	writeJSON(w, http.StatusCreated, toActivityView(*activity))
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	var day *time.Time
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := h.service.Calendar().ParseDate(raw)
		if err != nil {
			h.writeDomainError(w, domain.InvalidField("date"))
			return
		}
		day = &parsed
	}

	items, err := h.service.ListActivities(r.Context(), day)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityViews(items))
}

func (h *Handler) todaySummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	summary, err := h.service.Today(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SummaryResponse{
		Date:         summary.Date,
		Totals:       toTotalsView(summary.Totals),
		Activities:   toActivityViews(summary.Activities),
		WalkReminder: summary.WalkReminder,
		Progress:     toTotalsView(summary.Progress),
	})
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	reply, err := h.responder.Reply(r.Context(), req.Message)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	observability.RecordChatReply(reply.Rule)
	writeJSON(w, http.StatusOK, ChatResponse{
		Reply: reply.Reply,
		Memory: ChatMemory{
			Today:        toTotalsView(reply.Today),
			LastMessages: reply.LastMessages,
		},
	})
}

// writeDomainError maps the error taxonomy onto HTTP statuses. Internal
// faults are logged and reported without detail.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrFutureTimestamp):
		writeError(w, http.StatusBadRequest, "future_timestamp", err.Error())
	case errors.Is(err, domain.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "empty_message", err.Error())
	default:
		h.logger.Error("internal fault", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "Unexpected error")
	}
}

// CreateActivityRequest is the payload for POST /api/activities. Amount may
// be a JSON number or a numeric string.
type CreateActivityRequest struct {
	PetName string          `json:"petName"`
	Type    string          `json:"type"`
	Amount  json.RawMessage `json:"amount"`
	IsoDate string          `json:"isoDate"`
}

// Submission converts the request to a domain submission.
func (r CreateActivityRequest) Submission() domain.Submission {
	return domain.Submission{
		PetName:   r.PetName,
		Type:      r.Type,
		Amount:    events.RawAmount(r.Amount),
		Timestamp: r.IsoDate,
	}
}

// ActivityView exposes a stored activity.
type ActivityView struct {
	ID         string    `json:"id"`
	PetName    string    `json:"petName"`
	Type       string    `json:"type"`
	Amount     float64   `json:"amount"`
	IsoDate    string    `json:"isoDate"`
	RecordedAt time.Time `json:"recordedAt"`
}

// TotalsView is the wire form of domain.DailyTotals.
type TotalsView struct {
	WalkMinutes float64 `json:"walkMinutes"`
	Meals       float64 `json:"meals"`
	Meds        float64 `json:"meds"`
}

// SummaryResponse is the body of GET /api/summary/today.
type SummaryResponse struct {
	Date         string         `json:"date"`
	Totals       TotalsView     `json:"totals"`
	Activities   []ActivityView `json:"activities"`
	WalkReminder bool           `json:"walkReminder"`
	Progress     TotalsView     `json:"progress"`
}

// ChatRequest is the payload for POST /api/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatMemory is the context the reply was computed from.
type ChatMemory struct {
	Today        TotalsView `json:"today"`
	LastMessages string     `json:"lastMessages"`
}

// ChatResponse is the body of a successful POST /api/chat.
type ChatResponse struct {
	Reply  string     `json:"reply"`
	Memory ChatMemory `json:"memory"`
}

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

func toActivityView(a domain.Activity) ActivityView {
	return ActivityView{
		ID:         a.ID,
		PetName:    a.PetName,
		Type:       string(a.Type),
		Amount:     a.Amount,
		IsoDate:    a.Timestamp.UTC().Format(isoMillis),
		RecordedAt: a.RecordedAt,
	}
}

func toActivityViews(items []domain.Activity) []ActivityView {
	out := make([]ActivityView, 0, len(items))
	for _, a := range items {
		out = append(out, toActivityView(a))
	}
	return out
}

func toTotalsView(t domain.DailyTotals) TotalsView {
	return TotalsView{WalkMinutes: t.WalkMinutes, Meals: t.Meals, Meds: t.Meds}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":  code,
		"error": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
