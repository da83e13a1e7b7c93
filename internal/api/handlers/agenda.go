package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/denapp-control/backend/internal/agenda"
	"github.com/denapp-control/backend/internal/api/middleware"
	"github.com/denapp-control/backend/internal/storage/models"
)

// AgendaResponse wraps every list of agenda entries.
type AgendaResponse struct {
	Items        []*models.AgendaEntry `json:"items"`
	TotalCount   int                   `json:"total_count"`
	LastSyncTime *time.Time            `json:"last_sync_time,omitempty"`
	SyncStatus   string                `json:"sync_status"`
	Message      string                `json:"message"`
}

// SyncResponse answers a manual sync request.
type SyncResponse struct {
	Status  string             `json:"status"`
	Message string             `json:"message"`
	Result  *models.SyncResult `json:"result,omitempty"`
}

// ExportResponse is the JSON export document.
type ExportResponse struct {
	Format     string                `json:"format"`
	TotalItems int                   `json:"total_items"`
	ExportDate time.Time             `json:"export_date"`
	Data       []*models.AgendaEntry `json:"data"`
}

func listResponse(svc *agenda.Service, items []*models.AgendaEntry, message string) AgendaResponse {
	status := models.SyncStatusSuccess
	stats := svc.Statistics()
	if stats.LastError != nil {
		status = models.SyncStatusError
	}
	if !svc.Configured() {
		status = models.SyncStateUnconfigured
	}
	return AgendaResponse{
		Items:        items,
		TotalCount:   len(items),
		LastSyncTime: stats.LastSyncAt,
		SyncStatus:   status,
		Message:      message,
	}
}

// ListAgenda returns every cached entry, or one day's entries with ?date=.
func ListAgenda(svc *agenda.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("date")
		if raw == "" {
			items := svc.Entries()
			writeJSON(w, http.StatusOK, listResponse(svc, items, fmt.Sprintf("Retrieved %d agenda items", len(items))))
			return
		}

		day, ok := agenda.ParseDate(raw)
		if !ok {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, fmt.Sprintf("Invalid date %q, expected YYYY-MM-DD", raw))
			return
		}
		items := svc.EntriesByDate(day)
		writeJSON(w, http.StatusOK, listResponse(svc, items, fmt.Sprintf("Retrieved %d agenda items for %s", len(items), day)))
	}
}

// AgendaByPatient returns the cached entries of one patient.
func AgendaByPatient(svc *agenda.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patient := mux.Vars(r)["patientNumber"]
		items := svc.EntriesByPatient(patient)
		writeJSON(w, http.StatusOK, listResponse(svc, items,
			fmt.Sprintf("Retrieved %d agenda items for patient %s", len(items), patient)))
	}
}

// CreateAgendaEntry appends a new appointment to the sheet.
func CreateAgendaEntry(svc *agenda.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var fields models.EntryFields
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		entry, err := svc.AddEntry(r.Context(), fields)
		if err != nil {
			writeAgendaError(w, "Failed to create agenda item", err)
			return
		}
		writeJSON(w, http.StatusCreated, entry)
	}
}

// UpdateAgendaEntry changes an appointment by internal id or registro.
func UpdateAgendaEntry(svc *agenda.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		var fields models.EntryFields
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		entry, err := svc.UpdateEntry(r.Context(), id, fields)
		if err != nil {
			writeAgendaError(w, "Failed to update agenda item", err)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	}
}

// TriggerAgendaSync runs a full sync and reports its outcome. When a cycle
// is already running the request is accepted without starting another.
func TriggerAgendaSync(scheduler *agenda.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := scheduler.TriggerSync(r.Context())
		switch {
		case errors.Is(err, agenda.ErrSyncInProgress):
			writeJSON(w, http.StatusAccepted, SyncResponse{
				Status:  models.SyncStateSyncing,
				Message: "Synchronization already in progress",
			})
		case err != nil && result == nil:
			writeAgendaError(w, "Failed to synchronize agenda", err)
		case err != nil:
			middleware.WriteErrorWithDetails(w, http.StatusBadGateway, middleware.ErrUpstream,
				"Synchronization failed: "+err.Error(), result)
		default:
			writeJSON(w, http.StatusOK, SyncResponse{
				Status:  result.Status,
				Message: fmt.Sprintf("Synchronized %d agenda items", result.EntriesCached),
				Result:  result,
			})
		}
	}
}

// AgendaSyncStatus reports the sync engine state.
func AgendaSyncStatus(svc *agenda.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	}
}

// AgendaSyncHistory lists recent sync cycles, newest first.
func AgendaSyncHistory(svc *agenda.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}

		runs, err := svc.History(r.Context(), limit)
		if err != nil {
			log.Printf("Failed to list agenda sync history: %v", err)
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to list sync history")
			return
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

// TestSheetConnection checks that the agenda sheet is reachable.
func TestSheetConnection(svc *agenda.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := svc.TestConnection(r.Context())
		if err != nil {
			writeAgendaError(w, "Failed to connect to agenda sheet", err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

// AgendaStats summarizes the cached agenda.
func AgendaStats(svc *agenda.Service, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Stats(agenda.Today(loc)))
	}
}

// SearchAgenda matches q against names, phone, treatment, notes and
// practitioner.
func SearchAgenda(svc *agenda.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		if q == "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Query parameter q is required")
			return
		}
		items := svc.Search(q)
		writeJSON(w, http.StatusOK, listResponse(svc, items,
			fmt.Sprintf("Found %d agenda items matching '%s'", len(items), q)))
	}
}

// ExportAgenda returns the cached agenda as a JSON document, optionally
// limited to an inclusive date range.
func ExportAgenda(svc *agenda.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		format := strings.ToLower(query.Get("format"))
		if format == "" {
			format = "json"
		}
		if format != "json" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, fmt.Sprintf("Unsupported export format: %s", format))
			return
		}

		var bounds [2]*models.Date
		for i, name := range []string{"date_from", "date_to"} {
			raw := query.Get(name)
			if raw == "" {
				continue
			}
			d, ok := agenda.ParseDate(raw)
			if !ok {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, fmt.Sprintf("Invalid %s %q, expected YYYY-MM-DD", name, raw))
				return
			}
			bounds[i] = &d
		}

		items := svc.Export(bounds[0], bounds[1])
		writeJSON(w, http.StatusOK, ExportResponse{
			Format:     format,
			TotalItems: len(items),
			ExportDate: time.Now().UTC(),
			Data:       items,
		})
	}
}

// writeAgendaError maps agenda errors onto HTTP statuses.
func writeAgendaError(w http.ResponseWriter, message string, err error) {
	var (
		validation *agenda.ValidationError
		notFound   *agenda.NotFoundError
		transport  *agenda.TransportError
	)
	switch {
	case errors.As(err, &validation):
		middleware.WriteErrorWithDetails(w, http.StatusBadRequest, middleware.ErrValidation, message+": "+err.Error(), validation.Issues)
	case errors.As(err, &notFound):
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, notFound.Error())
	case errors.Is(err, agenda.ErrUnconfigured):
		middleware.WriteError(w, http.StatusServiceUnavailable, middleware.ErrUnconfigured, "Agenda sheet is not configured")
	case errors.As(err, &transport), agenda.IsPermanent(err):
		log.Printf("%s: %v", message, err)
		middleware.WriteError(w, http.StatusBadGateway, middleware.ErrUpstream, message+": "+err.Error())
	default:
		log.Printf("%s: %v", message, err)
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, message)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
