// Package api wires the HTTP routes.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/denapp-control/backend/internal/agenda"
	"github.com/denapp-control/backend/internal/api/handlers"
	"github.com/denapp-control/backend/internal/api/middleware"
	"github.com/denapp-control/backend/internal/storage"
	"github.com/denapp-control/backend/internal/websocket"
)

// Deps are the services the routes are built on.
type Deps struct {
	DB        *storage.DB
	Hub       *websocket.Hub
	Service   *agenda.Service
	Scheduler *agenda.Scheduler
	Location  *time.Location
	StaticDir string
}

// NewRouter builds the HTTP router.
func NewRouter(d Deps) *mux.Router {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}

	r := mux.NewRouter()
	r.Use(middleware.Logging)
	r.Use(middleware.ErrorRecovery)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", handlers.HealthCheck(d.DB, d.Service)).Methods("GET")
	api.HandleFunc("/status", handlers.Status(d.Service, d.Scheduler, d.Hub)).Methods("GET")
	api.HandleFunc("/ws", handlers.WebSocketUpgrade(d.Hub)).Methods("GET")

	ag := api.PathPrefix("/agenda").Subrouter()
	ag.HandleFunc("", handlers.ListAgenda(d.Service)).Methods("GET")
	ag.HandleFunc("/", handlers.ListAgenda(d.Service)).Methods("GET")
	ag.HandleFunc("", handlers.CreateAgendaEntry(d.Service)).Methods("POST")
	ag.HandleFunc("/", handlers.CreateAgendaEntry(d.Service)).Methods("POST")
	ag.HandleFunc("/patient/{patientNumber}", handlers.AgendaByPatient(d.Service)).Methods("GET")
	ag.HandleFunc("/sync", handlers.TriggerAgendaSync(d.Scheduler)).Methods("POST")
	ag.HandleFunc("/sync/status", handlers.AgendaSyncStatus(d.Service)).Methods("GET")
	ag.HandleFunc("/sync/history", handlers.AgendaSyncHistory(d.Service)).Methods("GET")
	ag.HandleFunc("/test-connection", handlers.TestSheetConnection(d.Service)).Methods("GET")
	ag.HandleFunc("/stats", handlers.AgendaStats(d.Service, loc)).Methods("GET")
	ag.HandleFunc("/search", handlers.SearchAgenda(d.Service)).Methods("GET")
	ag.HandleFunc("/export", handlers.ExportAgenda(d.Service)).Methods("GET")
	ag.HandleFunc("/{id}", handlers.UpdateAgendaEntry(d.Service)).Methods("PUT")

	if d.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(d.StaticDir)))
	}

	return r
}
