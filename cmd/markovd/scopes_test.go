package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestScopeSet(t *testing.T) {
	reader := parseScopes("chains:read  files")
	if !reader.grants(scopeChainsRead) || !reader.grants(scopeFiles) {
		t.Errorf("reader should grant its own scopes: %v", reader.list())
	}
	if reader.grants(scopeChainsWrite) {
		t.Error("reader must not grant chains:write")
	}
	if scope, ok := reader.missing([]string{scopeFiles, scopeStore, scopeServer}); !ok || scope != scopeStore {
		t.Errorf("missing() = %q, %v; want store", scope, ok)
	}
	if got := reader.String(); got != "chains:read files" {
		t.Errorf("String() = %q", got)
	}

	master := parseScopes(scopeMaster)
	if _, ok := master.missing(knownScopes); ok {
		t.Error("master should grant every scope")
	}

	var none scopeSet
	if none.grants(scopeChainsRead) {
		t.Error("a nil set grants nothing")
	}
	if _, ok := none.missing(nil); ok {
		t.Error("nothing is missing when nothing is required")
	}
}

func TestNewScopeSet(t *testing.T) {
	testCases := []struct {
		name   string
		scopes []string
		want   []string
		err    error
	}{
		{name: "valid", scopes: []string{scopeStore, scopeChainsRead, scopeStore}, want: []string{scopeChainsRead, scopeStore}},
		{name: "empty", scopes: nil, err: errNoScopes},
		{name: "unknown", scopes: []string{scopeChainsRead, "chains:admin"}, err: errUnknownScope},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := newScopeSet(tc.scopes)
			if tc.err != nil {
				if !errors.Is(err, tc.err) {
					t.Fatalf("expected %v, got %v", tc.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("newScopeSet() failed: %v", err)
			}
			if !reflect.DeepEqual(got.list(), tc.want) {
				t.Errorf("list() = %v, want %v", got.list(), tc.want)
			}
		})
	}
}

func TestServeMethods(t *testing.T) {
	ok := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) }
	routes := []methodRoute{
		{http.MethodGet, []string{scopeChainsRead}, ok},
		{http.MethodDelete, []string{scopeChainsWrite}, ok},
	}

	testCases := []struct {
		name   string
		method string
		scopes string
		code   int
	}{
		{"granted", http.MethodGet, "chains:read", http.StatusTeapot},
		{"master", http.MethodDelete, "*", http.StatusTeapot},
		{"missing scope", http.MethodDelete, "chains:read", http.StatusForbidden},
		{"no scopes attached", http.MethodGet, "", http.StatusForbidden},
		{"unrouted method", http.MethodPost, "*", http.StatusMethodNotAllowed},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(tc.method, "/x", nil)
			if tc.scopes != "" {
				r = r.WithContext(withScopes(r.Context(), parseScopes(tc.scopes)))
			}
			rec := httptest.NewRecorder()
			serveMethods(rec, r, routes...)
			if rec.Code != tc.code {
				t.Errorf("status = %d, want %d", rec.Code, tc.code)
			}
			if tc.code == http.StatusMethodNotAllowed {
				if allow := rec.Header().Get("Allow"); allow != "GET, DELETE" {
					t.Errorf("Allow = %q, want \"GET, DELETE\"", allow)
				}
			}
		})
	}
}
