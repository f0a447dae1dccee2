package main

import (
	"net/http"
	"testing"
)

func TestRequestID(t *testing.T) {
	_, h := setupTestServer(t, nil)

	rec := doRequest(t, h, http.MethodGet, "/api/health", nil, requestIDHeader, "trace-123")
	if got := rec.Header().Get(requestIDHeader); got != "trace-123" {
		t.Errorf("request id = %q, want the client's id", got)
	}

	for _, bad := range []string{"", "has spaces", "semi;colon"} {
		rec = doRequest(t, h, http.MethodGet, "/api/health", nil, requestIDHeader, bad)
		got := rec.Header().Get(requestIDHeader)
		if got == "" || got == bad || len(got) != 36 {
			t.Errorf("client id %q: got %q, want a generated uuid", bad, got)
		}
	}
}

func TestStatusRecorderFlushes(t *testing.T) {
	_, h := setupTestServer(t, nil)
	handle := createFishChain(t, h)

	// The stream handler needs a Flusher behind the access log wrapper.
	rec := doRequest(t, h, http.MethodPost, "/api/chains/"+handle+"/stream", map[string]int{"max_length": 1})
	expectStatus(t, rec, http.StatusOK)
	if !rec.Flushed {
		t.Error("expected the stream to be flushed through the recorder")
	}
}
