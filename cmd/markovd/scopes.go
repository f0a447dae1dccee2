package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
)

const (
	scopeChainsRead  = "chains:read"
	scopeChainsWrite = "chains:write"
	scopeFiles       = "files"
	scopeStore       = "store"
	scopeAuthManage  = "auth:manage"
	scopeServer      = "server:control"
	scopeMaster      = "*"
)

var knownScopes = []string{
	scopeChainsRead, scopeChainsWrite, scopeFiles, scopeStore, scopeAuthManage, scopeServer, scopeMaster,
}

var (
	errNoScopes     = errors.New("at least one scope is required")
	errUnknownScope = errors.New("unknown scope")
)

// scopeSet is what one API key may do. It is persisted as a space-separated
// list in api_keys.scopes.
type scopeSet map[string]struct{}

// parseScopes reads the persisted form. It does not validate, so a key
// written by an older build keeps whatever it was granted.
func parseScopes(text string) scopeSet {
	set := make(scopeSet)
	for _, s := range strings.Fields(text) {
		set[s] = struct{}{}
	}
	return set
}

// newScopeSet validates scopes requested for a new key.
func newScopeSet(scopes []string) (scopeSet, error) {
	set := make(scopeSet, len(scopes))
	for _, s := range scopes {
		if !slices.Contains(knownScopes, s) {
			return nil, fmt.Errorf("%w %q", errUnknownScope, s)
		}
		set[s] = struct{}{}
	}
	if len(set) == 0 {
		return nil, errNoScopes
	}
	return set, nil
}

func (s scopeSet) grants(scope string) bool {
	if _, master := s[scopeMaster]; master {
		return true
	}
	_, ok := s[scope]
	return ok
}

// missing returns the first of required that s does not grant.
func (s scopeSet) missing(required []string) (string, bool) {
	for _, scope := range required {
		if !s.grants(scope) {
			return scope, true
		}
	}
	return "", false
}

func (s scopeSet) list() []string {
	out := make([]string, 0, len(s))
	for scope := range s {
		out = append(out, scope)
	}
	slices.Sort(out)
	return out
}

func (s scopeSet) String() string {
	return strings.Join(s.list(), " ")
}

type contextKey string

const contextKeyScopes = contextKey("scopes")

func withScopes(ctx context.Context, s scopeSet) context.Context {
	return context.WithValue(ctx, contextKeyScopes, s)
}

// scopesFrom returns the scopes Authenticate attached to r, or nil.
func scopesFrom(r *http.Request) scopeSet {
	s, _ := r.Context().Value(contextKeyScopes).(scopeSet)
	return s
}

// requireScope answers 403 and returns false unless every scope is granted.
func requireScope(w http.ResponseWriter, r *http.Request, scopes ...string) bool {
	if scope, ok := scopesFrom(r).missing(scopes); ok {
		respondWithError(w, http.StatusForbidden, fmt.Sprintf("Forbidden: requires '%s' scope", scope))
		return false
	}
	return true
}

// methodRoute binds one HTTP method of a resource to its handler and the
// scopes a key needs to call it.
type methodRoute struct {
	method  string
	scopes  []string
	handler http.HandlerFunc
}

// serveMethods dispatches r to the route for its method. An unrouted method
// gets 405 with an Allow header; a key lacking a scope gets 403.
func serveMethods(w http.ResponseWriter, r *http.Request, routes ...methodRoute) {
	for _, rt := range routes {
		if rt.method != r.Method {
			continue
		}
		if requireScope(w, r, rt.scopes...) {
			rt.handler(w, r)
		}
		return
	}
	allowed := make([]string, len(routes))
	for i, rt := range routes {
		allowed[i] = rt.method
	}
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
}
