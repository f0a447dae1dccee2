package markov

import (
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

// ErrCorrupt is returned when persisted chain data was read successfully but
// does not match the expected encoding.
var ErrCorrupt = errors.New("malformed chain data")

// ErrOrderMismatch is returned when merging data of a different order into a chain.
var ErrOrderMismatch = errors.New("chain order mismatch")

// IOErrorKind classifies the file-system failures a caller may want to act on.
type IOErrorKind int

const (
	IOOther IOErrorKind = iota
	IONotFound
	IOPermissionDenied
	IOBrokenPipe
	IOAlreadyExists
)

// String returns the POSIX-style name of the kind ("enoent", "eacces", ...).
func (k IOErrorKind) String() string {
	switch k {
	case IONotFound:
		return "enoent"
	case IOPermissionDenied:
		return "eacces"
	case IOBrokenPipe:
		return "epipe"
	case IOAlreadyExists:
		return "eexist"
	default:
		return "other"
	}
}

// IOError reports a failed read or write of a chain source or destination.
type IOError struct {
	Op   string
	Path string
	Kind IOErrorKind
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// classifyIOError maps an error onto an IOErrorKind.
func classifyIOError(err error) IOErrorKind {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return IONotFound
	case errors.Is(err, fs.ErrPermission):
		return IOPermissionDenied
	case errors.Is(err, syscall.EPIPE):
		return IOBrokenPipe
	case errors.Is(err, fs.ErrExist):
		return IOAlreadyExists
	default:
		return IOOther
	}
}

// newIOError wraps err in an *IOError. Errors that already are *IOError, or
// that report corrupt data, are returned unchanged.
func newIOError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var ioErr *IOError
	if errors.As(err, &ioErr) || errors.Is(err, ErrCorrupt) {
		return err
	}
	return &IOError{Op: op, Path: path, Kind: classifyIOError(err), Err: err}
}

// IOKind returns the kind of the *IOError in err's chain. ok is false when err
// is not an I/O error.
func IOKind(err error) (kind IOErrorKind, ok bool) {
	var ioErr *IOError
	if errors.As(err, &ioErr) {
		return ioErr.Kind, true
	}
	return IOOther, false
}
