package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"

	"github.com/CTAG07/markovchain/internal/config"
	"github.com/CTAG07/markovchain/internal/handles"
	"github.com/CTAG07/markovchain/pkg/markov"
)

// ChainAPI exposes the in-memory chains held in the handle table.
type ChainAPI struct {
	chains   *handles.Table[*markov.Generator]
	defaults config.ChainConfig
	fileRoot string
	storeAPI *StoreAPI
	logger   *slog.Logger
}

func NewChainAPI(chains *handles.Table[*markov.Generator], cfg config.Config, storeAPI *StoreAPI, logger *slog.Logger) *ChainAPI {
	return &ChainAPI{
		chains:   chains,
		defaults: cfg.Chain,
		fileRoot: cfg.Server.FileRoot,
		storeAPI: storeAPI,
		logger:   logger,
	}
}

func (c *ChainAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/chains", c.handleListAndCreate)
	mux.HandleFunc("/api/chains/load", c.handleLoad)
	mux.HandleFunc("/api/chains/", c.handleChainByHandle)
}

// ChainInfo describes one live chain.
type ChainInfo struct {
	Handle string `json:"handle"`
	Order  int    `json:"order"`
	Empty  bool   `json:"empty"`
}

type CreateChainRequest struct {
	Order *int `json:"order"`
}

type FeedRequest struct {
	Tokens []string `json:"tokens"`
}

type FeedStrRequest struct {
	Text string `json:"text"`
}

type PathRequest struct {
	Path string `json:"path"`
}

type PruneRequest struct {
	MinFreq int `json:"min_freq"`
}

// GenerateRequest carries per-call overrides of the configured generation
// defaults. RandSeed makes a walk reproducible.
type GenerateRequest struct {
	Seed        *string  `json:"seed"`
	MaxLength   *int     `json:"max_length"`
	Temperature *float64 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	RandSeed    *uint64  `json:"rand_seed"`
}

func (req GenerateRequest) options(defaults config.ChainConfig) []markov.GenerateOption {
	if req.MaxLength != nil {
		defaults.MaxLength = *req.MaxLength
	}
	if req.Temperature != nil {
		defaults.Temperature = *req.Temperature
	}
	if req.TopK != nil {
		defaults.TopK = *req.TopK
	}
	opts := generateOptions(defaults)
	if req.RandSeed != nil {
		opts = append(opts, markov.WithRand(rand.New(rand.NewPCG(*req.RandSeed, *req.RandSeed))))
	}
	return opts
}

// decodeJSON decodes the request body into v. An empty body leaves v as it is
// when optional is set.
func decodeJSON(r *http.Request, v any, optional bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if optional && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (c *ChainAPI) handleListAndCreate(w http.ResponseWriter, r *http.Request) {
	serveMethods(w, r,
		methodRoute{http.MethodGet, []string{scopeChainsRead}, c.listChains},
		methodRoute{http.MethodPost, []string{scopeChainsWrite}, c.createChain},
	)
}

func (c *ChainAPI) listChains(w http.ResponseWriter, _ *http.Request) {
	infos := make([]ChainInfo, 0, c.chains.Len())
	c.chains.Range(func(h handles.Handle, g *markov.Generator) bool {
		infos = append(infos, ChainInfo{Handle: h.String(), Order: g.Order(), Empty: g.IsEmpty()})
		return true
	})
	respondWithJSON(w, http.StatusOK, infos)
}

func (c *ChainAPI) createChain(w http.ResponseWriter, r *http.Request) {
	var req CreateChainRequest
	if err := decodeJSON(r, &req, true); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	order := c.defaults.Order
	if req.Order != nil {
		order = *req.Order
	}
	if order < 0 {
		respondWithError(w, http.StatusBadRequest, "Order must not be negative")
		return
	}
	respondWithJSON(w, http.StatusCreated, c.insert(markov.NewGeneratorOfOrder(order)))
}

// insert publishes g under a fresh handle.
func (c *ChainAPI) insert(g *markov.Generator) ChainInfo {
	g.SetLogger(c.logger)
	h := c.chains.Insert(g)
	c.logger.Debug("Chain created", "handle", h.String(), "order", g.Order())
	return ChainInfo{Handle: h.String(), Order: g.Order(), Empty: g.IsEmpty()}
}

func (c *ChainAPI) handleLoad(w http.ResponseWriter, r *http.Request) {
	serveMethods(w, r, methodRoute{http.MethodPost, []string{scopeChainsWrite, scopeFiles}, c.loadChain})
}

func (c *ChainAPI) loadChain(w http.ResponseWriter, r *http.Request) {
	var req PathRequest
	if err := decodeJSON(r, &req, false); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	path, err := resolvePath(c.fileRoot, req.Path)
	if err != nil {
		respondWithErr(w, err)
		return
	}
	g, err := markov.LoadGenerator(path)
	if err != nil {
		c.logger.Warn("Failed to load chain", "path", path, "error", err)
		respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, c.insert(g))
}

// handleChainByHandle routes /api/chains/{handle}[/{action}].
func (c *ChainAPI) handleChainByHandle(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/chains/"), "/")
	handleStr, action, _ := strings.Cut(path, "/")

	h, err := handles.ParseHandle(handleStr)
	if err != nil {
		respondWithErr(w, err)
		return
	}

	if action == "" {
		c.handleChain(w, r, h)
		return
	}

	g, err := c.chains.Get(h)
	if err != nil {
		respondWithErr(w, err)
		return
	}

	type route struct {
		method  string
		scopes  []string
		handler func(http.ResponseWriter, *http.Request, *markov.Generator)
	}
	routes := map[string]route{
		"empty":               {http.MethodGet, []string{scopeChainsRead}, c.isEmpty},
		"feed":                {http.MethodPost, []string{scopeChainsWrite}, c.feed},
		"feed_str":            {http.MethodPost, []string{scopeChainsWrite}, c.feedStr},
		"feed_file":           {http.MethodPost, []string{scopeChainsWrite, scopeFiles}, c.feedFile},
		"generate":            {http.MethodPost, []string{scopeChainsRead}, c.generate},
		"generate_str":        {http.MethodPost, []string{scopeChainsRead}, c.generateStr},
		"generate_from_token": {http.MethodPost, []string{scopeChainsRead}, c.generateFromToken},
		"stream":              {http.MethodPost, []string{scopeChainsRead}, c.stream},
		"save":                {http.MethodPost, []string{scopeChainsRead, scopeFiles}, c.save},
		"stats":               {http.MethodGet, []string{scopeChainsRead}, c.stats},
		"prune":               {http.MethodPost, []string{scopeChainsWrite}, c.prune},
		"export":              {http.MethodGet, []string{scopeChainsRead}, c.export},
		"import":              {http.MethodPost, []string{scopeChainsWrite}, c.importModel},
		"store":               {http.MethodPost, []string{scopeChainsRead, scopeStore}, c.storeAPI.saveChain},
	}

	rt, ok := routes[action]
	if !ok {
		respondWithError(w, http.StatusNotFound, "Unknown chain action")
		return
	}
	serveMethods(w, r, methodRoute{rt.method, rt.scopes, func(w http.ResponseWriter, r *http.Request) {
		rt.handler(w, r, g)
	}})
}

// handleChain serves GET (describe) and DELETE (release) on a handle.
func (c *ChainAPI) handleChain(w http.ResponseWriter, r *http.Request, h handles.Handle) {
	serveMethods(w, r,
		methodRoute{http.MethodGet, []string{scopeChainsRead}, func(w http.ResponseWriter, _ *http.Request) {
			g, err := c.chains.Get(h)
			if err != nil {
				respondWithErr(w, err)
				return
			}
			respondWithJSON(w, http.StatusOK, ChainInfo{Handle: h.String(), Order: g.Order(), Empty: g.IsEmpty()})
		}},
		methodRoute{http.MethodDelete, []string{scopeChainsWrite}, func(w http.ResponseWriter, _ *http.Request) {
			if _, err := c.chains.Remove(h); err != nil {
				respondWithErr(w, err)
				return
			}
			c.logger.Debug("Chain released", "handle", h.String())
			w.WriteHeader(http.StatusNoContent)
		}},
	)
}

func (c *ChainAPI) isEmpty(w http.ResponseWriter, _ *http.Request, g *markov.Generator) {
	respondWithJSON(w, http.StatusOK, map[string]bool{"empty": g.IsEmpty()})
}

func (c *ChainAPI) feed(w http.ResponseWriter, r *http.Request, g *markov.Generator) {
	var req FeedRequest
	if err := decodeJSON(r, &req, false); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	g.Feed(req.Tokens)
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Sequence fed"})
}

func (c *ChainAPI) feedStr(w http.ResponseWriter, r *http.Request, g *markov.Generator) {
	var req FeedStrRequest
	if err := decodeJSON(r, &req, false); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	g.FeedStr(req.Text)
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Text fed"})
}

func (c *ChainAPI) feedFile(w http.ResponseWriter, r *http.Request, g *markov.Generator) {
	var req PathRequest
	if err := decodeJSON(r, &req, false); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	path, err := resolvePath(c.fileRoot, req.Path)
	if err != nil {
		respondWithErr(w, err)
		return
	}
	if err = g.FeedFile(path); err != nil {
		respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "File fed"})
}

func (c *ChainAPI) generate(w http.ResponseWriter, r *http.Request, g *markov.Generator) {
	var req GenerateRequest
	if err := decodeJSON(r, &req, true); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	tokens, ok := g.Generate(req.options(c.defaults)...)
	if !ok {
		respondWithJSON(w, http.StatusOK, map[string]any{"tokens": nil})
		return
	}
	if tokens == nil {
		tokens = []string{}
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"tokens": tokens})
}

func (c *ChainAPI) generateStr(w http.ResponseWriter, r *http.Request, g *markov.Generator) {
	var req GenerateRequest
	if err := decodeJSON(r, &req, true); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	text, ok := g.GenerateStr(req.options(c.defaults)...)
	if !ok {
		respondWithJSON(w, http.StatusOK, map[string]any{"text": nil})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"text": text})
}

func (c *ChainAPI) generateFromToken(w http.ResponseWriter, r *http.Request, g *markov.Generator) {
	var req GenerateRequest
	if err := decodeJSON(r, &req, false); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	if req.Seed == nil {
		respondWithError(w, http.StatusBadRequest, "A seed token is required")
		return
	}
	tokens := g.GenerateFromToken(*req.Seed, req.options(c.defaults)...)
	if tokens == nil {
		tokens = []string{}
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"tokens": tokens})
}

// stream writes one token per line, flushing after each, until the walk ends
// or the client goes away.
func (c *ChainAPI) stream(w http.ResponseWriter, r *http.Request, g *markov.Generator) {
	var req GenerateRequest
	if err := decodeJSON(r, &req, true); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}

	var tokens <-chan string
	if req.Seed != nil {
		tokens = g.GenerateStreamFromToken(r.Context(), *req.Seed, req.options(c.defaults)...)
	} else {
		tokens = g.GenerateStream(r.Context(), req.options(c.defaults)...)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	for tok := range tokens {
		if _, err := io.WriteString(w, tok+"\n"); err != nil {
			c.logger.Debug("Stream client went away", "error", err)
			// Drain so the walk goroutine can see the cancelled context and exit.
			for range tokens {
			}
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (c *ChainAPI) save(w http.ResponseWriter, r *http.Request, g *markov.Generator) {
	var req PathRequest
	if err := decodeJSON(r, &req, false); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	path, err := resolvePath(c.fileRoot, req.Path)
	if err != nil {
		respondWithErr(w, err)
		return
	}
	if err = g.Save(path); err != nil {
		respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Chain saved"})
}

func (c *ChainAPI) stats(w http.ResponseWriter, _ *http.Request, g *markov.Generator) {
	respondWithJSON(w, http.StatusOK, g.Stats())
}

func (c *ChainAPI) prune(w http.ResponseWriter, r *http.Request, g *markov.Generator) {
	var req PruneRequest
	if err := decodeJSON(r, &req, false); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int{"removed": g.Prune(req.MinFreq)})
}

// export is buffered so a failure can still be reported with a status.
func (c *ChainAPI) export(w http.ResponseWriter, _ *http.Request, g *markov.Generator) {
	var buf bytes.Buffer
	if err := g.Export(&buf); err != nil {
		c.logger.Error("Failed to export chain", "error", err)
		respondWithErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (c *ChainAPI) importModel(w http.ResponseWriter, r *http.Request, g *markov.Generator) {
	if err := g.Import(r.Body); err != nil {
		respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Model imported"})
}
