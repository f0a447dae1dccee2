package main

import (
	"errors"
	"net/http"

	"github.com/CTAG07/markovchain/internal/handles"
	"github.com/CTAG07/markovchain/pkg/markov"
	"github.com/CTAG07/markovchain/pkg/store"
)

// errorResponse is the body of every failed API call. Kind carries the I/O
// error atom (enoent, eacces, epipe, eexist, other) when there is one.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// statusFor maps an error from the engine, the store or the handle table onto
// an HTTP status and, for I/O failures, the error atom reported to clients.
func statusFor(err error) (int, string) {
	var ioErr *markov.IOError
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge, ""
	case errors.As(err, &ioErr):
		switch ioErr.Kind {
		case markov.IONotFound:
			return http.StatusNotFound, ioErr.Kind.String()
		case markov.IOPermissionDenied:
			return http.StatusForbidden, ioErr.Kind.String()
		case markov.IOAlreadyExists:
			return http.StatusConflict, ioErr.Kind.String()
		default:
			return http.StatusInternalServerError, ioErr.Kind.String()
		}
	case errors.Is(err, handles.ErrStaleHandle), errors.Is(err, handles.ErrMalformedHandle):
		return http.StatusNotFound, ""
	case errors.Is(err, store.ErrModelNotFound):
		return http.StatusNotFound, ""
	case errors.Is(err, errPathRequired):
		return http.StatusBadRequest, ""
	case errors.Is(err, errOutsideFileRoot):
		return http.StatusForbidden, ""
	case errors.Is(err, markov.ErrCorrupt):
		return http.StatusUnprocessableEntity, ""
	case errors.Is(err, markov.ErrOrderMismatch):
		return http.StatusConflict, ""
	default:
		return http.StatusInternalServerError, ""
	}
}

// respondWithErr writes err using the status statusFor picks for it.
func respondWithErr(w http.ResponseWriter, err error) {
	code, kind := statusFor(err)
	respondWithJSON(w, code, errorResponse{Error: err.Error(), Kind: kind})
}
