package markov

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/natefinch/atomic"
)

// The binary layout, all integers big-endian uint64:
//
//	order
//	key count
//	per key:
//	    order symbols
//	    link count
//	    per link: symbol, count
//
// A symbol is one kind byte (0 START, 1 END, 2 token) followed, for tokens
// only, by a length-prefixed encoding of the token.

const (
	// maxTokenBytes bounds a single encoded token when decoding.
	maxTokenBytes = 1 << 24
	// maxPrealloc bounds slices sized from counts read off the wire.
	maxPrealloc = 1024
)

// TokenCodec converts tokens of type T to and from bytes for Encode and Decode.
type TokenCodec[T comparable] interface {
	AppendToken(dst []byte, t T) []byte
	ParseToken(b []byte) (T, error)
}

// StringCodec stores string tokens as their UTF-8 bytes.
type StringCodec struct{}

func (StringCodec) AppendToken(dst []byte, t string) []byte { return append(dst, t...) }

func (StringCodec) ParseToken(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", errors.New("token is not valid UTF-8")
	}
	return string(b), nil
}

type encoder[T comparable] struct {
	w     *bufio.Writer
	codec TokenCodec[T]
	buf   []byte
}

func (e *encoder[T]) uint(v uint64) error {
	e.buf = binary.BigEndian.AppendUint64(e.buf[:0], v)
	_, err := e.w.Write(e.buf)
	return err
}

func (e *encoder[T]) symbol(s Symbol[T]) error {
	if err := e.w.WriteByte(byte(s.Kind)); err != nil {
		return err
	}
	if s.Kind != KindToken {
		return nil
	}
	e.buf = e.codec.AppendToken(e.buf[:0], s.Token)
	token := e.buf
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(token)))
	if _, err := e.w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := e.w.Write(token)
	return err
}

// Encode writes the chain to w in the binary format read by Decode. Keys are
// written in the order of Transitions, so equal chains fed the same way
// produce identical bytes.
func (c *Chain[T]) Encode(w io.Writer, codec TokenCodec[T]) error {
	e := &encoder[T]{w: bufio.NewWriter(w), codec: codec}
	if err := c.encode(e); err != nil {
		return newIOError("write", "", err)
	}
	if err := e.w.Flush(); err != nil {
		return newIOError("write", "", err)
	}
	return nil
}

func (c *Chain[T]) encode(e *encoder[T]) error {
	if err := e.uint(uint64(c.order)); err != nil {
		return err
	}
	prefixes := c.sortedPrefixes()
	if err := e.uint(uint64(len(prefixes))); err != nil {
		return err
	}
	for _, p := range prefixes {
		for _, id := range p.ids {
			if err := e.symbol(c.symbol(id)); err != nil {
				return err
			}
		}
		if err := e.uint(uint64(len(p.links))); err != nil {
			return err
		}
		for _, link := range p.links {
			if err := e.symbol(c.symbol(link.Id)); err != nil {
				return err
			}
			if err := e.uint(uint64(link.Freq)); err != nil {
				return err
			}
		}
	}
	return nil
}

type decoder[T comparable] struct {
	r     *bufio.Reader
	codec TokenCodec[T]
	buf   [8]byte
}

// readErr turns a short read into corruption; anything else stays an I/O failure.
func readErr(err error, what string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: truncated while reading %s", ErrCorrupt, what)
	}
	return err
}

func (d *decoder[T]) uint(what string) (uint64, error) {
	if _, err := io.ReadFull(d.r, d.buf[:]); err != nil {
		return 0, readErr(err, what)
	}
	return binary.BigEndian.Uint64(d.buf[:]), nil
}

func (d *decoder[T]) symbol() (Symbol[T], error) {
	kind, err := d.r.ReadByte()
	if err != nil {
		return Symbol[T]{}, readErr(err, "symbol kind")
	}
	switch SymbolKind(kind) {
	case KindStart:
		return Start[T](), nil
	case KindEnd:
		return End[T](), nil
	case KindToken:
	default:
		return Symbol[T]{}, fmt.Errorf("%w: unknown symbol kind %d", ErrCorrupt, kind)
	}
	n, err := d.uint("token length")
	if err != nil {
		return Symbol[T]{}, err
	}
	if n > maxTokenBytes {
		return Symbol[T]{}, fmt.Errorf("%w: token length %d exceeds limit", ErrCorrupt, n)
	}
	raw := make([]byte, n)
	if _, err = io.ReadFull(d.r, raw); err != nil {
		return Symbol[T]{}, readErr(err, "token")
	}
	t, err := d.codec.ParseToken(raw)
	if err != nil {
		return Symbol[T]{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return Tok(t), nil
}

// Decode reads a chain written by Encode. Malformed input is reported with
// an error wrapping ErrCorrupt; failures of r itself come back as *IOError.
func Decode[T comparable](r io.Reader, codec TokenCodec[T]) (*Chain[T], error) {
	d := &decoder[T]{r: bufio.NewReader(r), codec: codec}
	c, err := d.chain()
	if err != nil {
		return nil, newIOError("read", "", err)
	}
	return c, nil
}

func (d *decoder[T]) chain() (*Chain[T], error) {
	order, err := d.uint("order")
	if err != nil {
		return nil, err
	}
	if order > maxPrealloc {
		return nil, fmt.Errorf("%w: implausible order %d", ErrCorrupt, order)
	}
	c := New[T](int(order))

	keys, err := d.uint("key count")
	if err != nil {
		return nil, err
	}
	context := make([]Symbol[T], order)
	for k := uint64(0); k < keys; k++ {
		for i := range context {
			if context[i], err = d.symbol(); err != nil {
				return nil, err
			}
		}
		links, err := d.uint("link count")
		if err != nil {
			return nil, err
		}
		if links == 0 {
			return nil, fmt.Errorf("%w: context without followers", ErrCorrupt)
		}
		for l := uint64(0); l < links; l++ {
			next, err := d.symbol()
			if err != nil {
				return nil, err
			}
			count, err := d.uint("count")
			if err != nil {
				return nil, err
			}
			if count == 0 || count > uint64(maxInt) {
				return nil, fmt.Errorf("%w: invalid count %d", ErrCorrupt, count)
			}
			if err = c.Add(context, next, int(count)); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
			}
		}
	}
	if _, err = d.r.ReadByte(); err == nil {
		return nil, fmt.Errorf("%w: trailing data after chain", ErrCorrupt)
	} else if !errors.Is(err, io.EOF) {
		return nil, err
	}
	return c, nil
}

const maxInt = int(^uint(0) >> 1)

// SaveFile writes a text chain to path. The file is replaced atomically, so
// a failed save leaves any previous file intact.
func SaveFile(c *Chain[string], path string) error {
	var buf bytes.Buffer
	if err := c.Encode(&buf, StringCodec{}); err != nil {
		return err
	}
	if err := atomic.WriteFile(path, &buf); err != nil {
		return newIOError("save", path, err)
	}
	return nil
}

// LoadFile reads a text chain written by SaveFile.
func LoadFile(path string) (*Chain[string], error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, newIOError("open", path, err)
	}
	defer func(file *os.File) {
		_ = file.Close()
	}(file)

	c, err := Decode[string](file, StringCodec{})
	if err != nil {
		var ioErr *IOError
		if errors.As(err, &ioErr) {
			ioErr.Op, ioErr.Path = "load", path
		}
		return nil, err
	}
	return c, nil
}
