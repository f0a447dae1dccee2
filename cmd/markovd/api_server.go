package main

import (
	"log/slog"
	"net/http"

	"github.com/CTAG07/markovchain/internal/config"
)

const actionShutdown = "shutdown"

// ServerAPI serves process level endpoints.
type ServerAPI struct {
	config     config.Config
	actionChan chan<- string
	chainAPI   *ChainAPI
	logger     *slog.Logger
}

// VersionInfo defines the structure for build/version information.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

func NewServerAPI(cfg config.Config, actionChan chan<- string, chainAPI *ChainAPI, logger *slog.Logger) *ServerAPI {
	return &ServerAPI{
		config:     cfg,
		actionChan: actionChan,
		chainAPI:   chainAPI,
		logger:     logger,
	}
}

func (a *ServerAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/server/config", func(w http.ResponseWriter, r *http.Request) {
		serveMethods(w, r, methodRoute{http.MethodGet, []string{scopeServer}, a.handleConfig})
	})
	mux.HandleFunc("/api/server/version", func(w http.ResponseWriter, r *http.Request) {
		serveMethods(w, r, methodRoute{http.MethodGet, nil, a.handleVersion})
	})
	mux.HandleFunc("/api/server/shutdown", func(w http.ResponseWriter, r *http.Request) {
		serveMethods(w, r, methodRoute{http.MethodPost, []string{scopeServer}, a.handleShutdown})
	})
}

// handleHealthCheck is mounted outside authentication.
func (a *ServerAPI) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	serveMethods(w, r, methodRoute{http.MethodGet, nil, a.health})
}

func (a *ServerAPI) health(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"chains": a.chainAPI.chains.Len(),
	})
}

// handleConfig returns the configuration the server was started with.
func (a *ServerAPI) handleConfig(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, a.config)
}

func (a *ServerAPI) handleVersion(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, VersionInfo{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
	})
}

// handleShutdown asks the serve loop for a graceful shutdown.
func (a *ServerAPI) handleShutdown(w http.ResponseWriter, _ *http.Request) {
	a.logger.Warn("Shutdown initiated via API")
	respondWithJSON(w, http.StatusAccepted, map[string]string{"message": "Server is shutting down..."})

	go func() {
		a.actionChan <- actionShutdown
	}()
}
