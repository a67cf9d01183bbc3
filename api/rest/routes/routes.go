package routes

import (
	"github.com/gorilla/mux"

	"swap-orchestrator/api/rest/handlers"
	"swap-orchestrator/core/models"
	"swap-orchestrator/core/pipeline"
	"swap-orchestrator/core/registry"
	"swap-orchestrator/storage"
)

// SetupRoutes configures all API routes
func SetupRoutes(
	r *mux.Router,
	reg *registry.Registry,
	artifacts storage.ArtifactStore,
	orchestrator *pipeline.Orchestrator,
	defaultPrompts models.Prompts,
) {
	sessionHandler := handlers.NewSessionHandler(reg, artifacts, orchestrator, defaultPrompts)

	api := r.PathPrefix("/v1").Subrouter()

	// Session endpoints
	api.HandleFunc("/sessions", sessionHandler.CreateSession).Methods("POST")
	api.HandleFunc("/sessions/{id}", sessionHandler.GetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}", sessionHandler.DeleteSession).Methods("DELETE")
	api.HandleFunc("/sessions/{id}/cancel", sessionHandler.CancelSession).Methods("POST")
	api.HandleFunc("/sessions/{id}/events", sessionHandler.GetSessionEvents).Methods("GET")
	api.HandleFunc("/sessions/{id}/artifacts/{kind}", sessionHandler.DownloadArtifact).Methods("GET")

	r.HandleFunc("/health", handlers.Health).Methods("GET")
}
