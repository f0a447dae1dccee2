package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/CTAG07/markovchain/internal/config"
	"github.com/CTAG07/markovchain/internal/handles"
	"github.com/CTAG07/markovchain/pkg/markov"
	"github.com/CTAG07/markovchain/pkg/store"
)

// Server owns the live chains and the HTTP API in front of them.
type Server struct {
	config    config.Config
	db        *sql.DB
	logger    *slog.Logger
	chains    *handles.Table[*markov.Generator]
	store     *store.Store
	authAPI   *AuthAPI
	chainAPI  *ChainAPI
	storeAPI  *StoreAPI
	serverAPI *ServerAPI
	apiMux    *http.ServeMux
}

// NewServer sets up the schemas in db and registers every route. db must stay
// open for the lifetime of the Server.
func NewServer(cfg config.Config, logger *slog.Logger, db *sql.DB, actionChan chan<- string) (*Server, error) {
	if err := store.SetupSchema(db); err != nil {
		return nil, fmt.Errorf("failed to set up store schema: %w", err)
	}
	if err := setupAuthSchema(db); err != nil {
		return nil, fmt.Errorf("failed to set up auth schema: %w", err)
	}
	st, err := store.New(db)
	if err != nil {
		return nil, fmt.Errorf("error creating model store: %w", err)
	}
	st.SetLogger(logger)

	chains := &handles.Table[*markov.Generator]{}

	authAPI := NewAuthAPI(db, logger)
	storeAPI := NewStoreAPI(st, logger)
	chainAPI := NewChainAPI(chains, cfg, storeAPI, logger)
	storeAPI.chainAPI = chainAPI
	serverAPI := NewServerAPI(cfg, actionChan, chainAPI, logger)

	server := &Server{
		config:    cfg,
		db:        db,
		logger:    logger,
		chains:    chains,
		store:     st,
		authAPI:   authAPI,
		chainAPI:  chainAPI,
		storeAPI:  storeAPI,
		serverAPI: serverAPI,
		apiMux:    http.NewServeMux(),
	}

	apiMux := http.NewServeMux()
	authAPI.RegisterRoutes(apiMux)
	chainAPI.RegisterRoutes(apiMux)
	storeAPI.RegisterRoutes(apiMux)
	serverAPI.RegisterRoutes(apiMux)

	// Everything under /api/ passes through authentication, except the health
	// check so container probes need no key.
	server.apiMux.HandleFunc("/api/health", serverAPI.handleHealthCheck)
	server.apiMux.Handle("/api/", authAPI.Authenticate(apiMux))

	return server, nil
}

// Handler returns the root handler: request ids, access logging and the
// request body limit around the API mux.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.apiMux
	if limit := s.config.Server.MaxBodyBytes; limit > 0 {
		mux := s.apiMux
		h = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			mux.ServeHTTP(w, r)
		})
	}
	return withRequestID(logRequests(s.logger, h))
}

// Close releases the store's prepared statements. Live chains are dropped.
func (s *Server) Close() {
	s.store.Close()
}
