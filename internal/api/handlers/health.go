// Package handlers implements the HTTP endpoints.
package handlers

import (
	"net/http"
	"time"

	"github.com/denapp-control/backend/internal/agenda"
	"github.com/denapp-control/backend/internal/storage"
	"github.com/denapp-control/backend/internal/storage/models"
	"github.com/denapp-control/backend/internal/websocket"
)

// HealthResponse is the body of /api/health.
type HealthResponse struct {
	Status          string `json:"status"`
	DBConnected     bool   `json:"db_connected"`
	SheetConfigured bool   `json:"sheet_configured"`
	SyncState       string `json:"sync_state"`
}

// HealthCheck reports whether the server can serve the agenda. An
// unconfigured sheet is degraded, not down: cached reads still work.
func HealthCheck(db *storage.DB, svc *agenda.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbConnected := db.PingContext(r.Context()) == nil
		status := svc.Status()

		resp := HealthResponse{
			Status:          "healthy",
			DBConnected:     dbConnected,
			SheetConfigured: status.Configured,
			SyncState:       status.State,
		}
		code := http.StatusOK
		switch {
		case !dbConnected:
			resp.Status = "unhealthy"
			code = http.StatusServiceUnavailable
		case !status.Configured || status.LastError != nil:
			resp.Status = "degraded"
		}
		writeJSON(w, code, resp)
	}
}

// StatusResponse is the body of /api/status.
type StatusResponse struct {
	Sync             models.SyncStatus `json:"sync"`
	NextDailySyncAt  *time.Time        `json:"next_daily_sync_at,omitempty"`
	WebSocketClients int               `json:"websocket_clients"`
	ServerTime       time.Time         `json:"server_time"`
}

// Status reports the sync engine, scheduler and connected clients.
func Status(svc *agenda.Service, scheduler *agenda.Scheduler, hub *websocket.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, StatusResponse{
			Sync:             svc.Status(),
			NextDailySyncAt:  scheduler.NextDailyRun(),
			WebSocketClients: hub.ClientCount(),
			ServerTime:       time.Now().UTC(),
		})
	}
}
