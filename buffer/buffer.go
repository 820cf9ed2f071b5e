// Package buffer implements the output byte container the protocol core
// writes records and handshake messages into. A buffer starts out borrowing
// a caller-owned region and switches to an owned heap region once that
// capacity is exceeded. The switch is one-way.
package buffer

import (
	"tlscore/internal/secret"

	"github.com/pkg/errors"
)

var (
	ErrNoMemory       = errors.New("buffer capacity limit exceeded")
	ErrNilRegion      = errors.New("nil initial region")
	ErrNotInitialized = errors.New("buffer is not initialized")
)

type Buffer struct {
	data  []byte
	off   int
	owned bool

	// limit caps total capacity. Zero means unlimited.
	limit int

	initialized bool
}

// New returns an initialized buffer borrowing region.
func New(region []byte) (*Buffer, error) {
	b := new(Buffer)
	if err := b.Init(region); err != nil {
		return nil, err
	}
	return b, nil
}

// Init binds the buffer to a caller-owned fixed region. The region may be
// zero-length but not nil.
func (b *Buffer) Init(region []byte) error {
	if region == nil {
		return errors.WithStack(ErrNilRegion)
	}

	b.data = region
	b.off = 0
	b.owned = false
	b.initialized = true
	return nil
}

// SetLimit caps the buffer's total capacity. Growth past the limit fails
// with ErrNoMemory.
func (b *Buffer) SetLimit(n int) { b.limit = n }

// Reserve guarantees at least delta writable bytes past the current offset.
// On failure the buffer is left untouched.
func (b *Buffer) Reserve(delta int) error {
	if !b.initialized {
		return errors.WithStack(ErrNotInitialized)
	}

	need := b.off + delta
	if need <= len(b.data) {
		return nil
	}

	newCap := len(b.data) * 2
	if newCap < 64 {
		newCap = 64
	}
	for newCap < need {
		newCap *= 2
	}

	if b.limit > 0 && need > b.limit {
		return errors.WithStack(ErrNoMemory)
	}
	if b.limit > 0 && newCap > b.limit {
		newCap = b.limit
	}

	grown := make([]byte, newCap)
	copy(grown, b.data[:b.off])

	if b.owned {
		secret.Wipe(b.data)
	}

	b.data = grown
	b.owned = true
	return nil
}

func (b *Buffer) Write(p []byte) (int, error) {
	if err := b.Reserve(len(p)); err != nil {
		return 0, err
	}

	copy(b.data[b.off:], p)
	b.off += len(p)
	return len(p), nil
}

func (b *Buffer) WriteByte(c byte) error {
	if err := b.Reserve(1); err != nil {
		return err
	}

	b.data[b.off] = c
	b.off++
	return nil
}

// Bytes returns the written region. The view is invalidated by the next
// write that grows the buffer.
func (b *Buffer) Bytes() []byte { return b.data[:b.off] }

func (b *Buffer) Len() int { return b.off }

func (b *Buffer) Cap() int { return len(b.data) }

// Reset discards written content, keeping the backing region.
func (b *Buffer) Reset() { b.off = 0 }

// Dispose wipes everything written so far, releases an owned region, and
// returns the buffer to an uninitialized state. Safe to call repeatedly.
func (b *Buffer) Dispose() {
	if b.data != nil {
		secret.Wipe(b.data[:b.off])
	}

	b.data = nil
	b.off = 0
	b.owned = false
	b.initialized = false
}
