package main

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/CTAG07/markovchain/pkg/markov"
	"github.com/CTAG07/markovchain/pkg/store"
)

// StoreAPI exposes the named models kept in the SQL store.
type StoreAPI struct {
	store    *store.Store
	chainAPI *ChainAPI
	logger   *slog.Logger
}

func NewStoreAPI(s *store.Store, logger *slog.Logger) *StoreAPI {
	return &StoreAPI{store: s, logger: logger}
}

func (a *StoreAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/store", a.handleStats)
	mux.HandleFunc("/api/store/", a.handleModelByName)
}

type StoreChainRequest struct {
	Name  string `json:"name"`
	Merge bool   `json:"merge"`
}

func (a *StoreAPI) handleStats(w http.ResponseWriter, r *http.Request) {
	serveMethods(w, r, methodRoute{http.MethodGet, []string{scopeStore}, a.stats})
}

func (a *StoreAPI) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.store.Stats(r.Context())
	if err != nil {
		a.logger.Error("Failed to get store stats", "error", err)
		respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

// handleModelByName routes /api/store/{name}[/{action}].
func (a *StoreAPI) handleModelByName(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/store/"), "/")
	name, action, _ := strings.Cut(path, "/")
	if name == "" {
		respondWithError(w, http.StatusBadRequest, "Model name not specified")
		return
	}

	withName := func(fn func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) { fn(w, r, name) }
	}
	switch action {
	case "":
		serveMethods(w, r,
			methodRoute{http.MethodGet, []string{scopeStore}, withName(a.getModel)},
			methodRoute{http.MethodDelete, []string{scopeStore}, withName(a.removeModel)},
		)
	case "load":
		serveMethods(w, r, methodRoute{http.MethodPost, []string{scopeStore, scopeChainsWrite}, withName(a.loadModel)})
	case "prune":
		serveMethods(w, r, methodRoute{http.MethodPost, []string{scopeStore}, withName(a.pruneModel)})
	default:
		respondWithError(w, http.StatusNotFound, "Unknown store action")
	}
}

func (a *StoreAPI) getModel(w http.ResponseWriter, r *http.Request, name string) {
	model, err := a.store.Model(r.Context(), name)
	if err != nil {
		respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, model)
}

func (a *StoreAPI) removeModel(w http.ResponseWriter, r *http.Request, name string) {
	if err := a.store.Remove(r.Context(), name); err != nil {
		respondWithErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// loadModel copies a stored model into a new in-memory chain.
func (a *StoreAPI) loadModel(w http.ResponseWriter, r *http.Request, name string) {
	chain, err := a.store.Load(r.Context(), name)
	if err != nil {
		a.logger.Warn("Failed to load stored model", "model_name", name, "error", err)
		respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, a.chainAPI.insert(markov.NewGeneratorFrom(chain)))
}

func (a *StoreAPI) pruneModel(w http.ResponseWriter, r *http.Request, name string) {
	var req PruneRequest
	if err := decodeJSON(r, &req, false); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	removed, err := a.store.Prune(r.Context(), name, req.MinFreq)
	if err != nil {
		respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

// saveChain writes a snapshot of g to the store, so the database work runs
// without holding the chain's lock.
func (a *StoreAPI) saveChain(w http.ResponseWriter, r *http.Request, g *markov.Generator) {
	var req StoreChainRequest
	if err := decodeJSON(r, &req, false); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	if req.Name == "" {
		respondWithError(w, http.StatusBadRequest, "Model name is required")
		return
	}

	snapshot := g.Snapshot()
	var err error
	if req.Merge {
		err = a.store.Merge(r.Context(), req.Name, snapshot)
	} else {
		err = a.store.Save(r.Context(), req.Name, snapshot)
	}
	if err != nil {
		a.logger.Error("Failed to store chain", "model_name", req.Name, "error", err)
		respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Chain stored"})
}
