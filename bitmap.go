package portfs

import (
	"sync"

	diskbitmap "github.com/diskfs/go-diskfs/util/bitmap"
)

// Bitmap is the block allocation bitmap (§4.2): one bit per block, set
// meaning "in use". It wraps diskfs/go-diskfs's byte-backed Bitmap, adding
// the range operations and linear clear-bit scan the allocator needs, and
// a dirty flag so sync knows whether it's worth rewriting.
type Bitmap struct {
	mu    sync.Mutex // guards bits/dirty; caller also holds the mount's coarse lock
	bits  *diskbitmap.Bitmap
	dirty bool
}

// NewBitmap creates a zeroed bitmap covering totalBlocks bits.
func NewBitmap(totalBlocks uint32) *Bitmap {
	return &Bitmap{bits: diskbitmap.NewBits(int(totalBlocks))}
}

// LoadBitmap wraps an already-populated byte slice read from the backing
// file's bitmap region.
func LoadBitmap(data []byte) *Bitmap {
	return &Bitmap{bits: diskbitmap.FromBytes(data)}
}

// Bytes returns the raw bitmap bytes, ready to be written to the backing
// file's bitmap region.
func (b *Bitmap) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bits.ToBytes()
}

// Dirty reports whether the bitmap has been modified since the last call
// to ClearDirty.
func (b *Bitmap) Dirty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dirty
}

// ClearDirty resets the dirty flag; called after a successful sync.
func (b *Bitmap) ClearDirty() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dirty = false
}

// IsSet reports whether block i is allocated.
func (b *Bitmap) IsSet(i uint32) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, err := b.bits.IsSet(int(i))
	return err == nil && set
}

// Set marks block i allocated.
func (b *Bitmap) Set(i uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.bits.Set(int(i)); err != nil {
		return wrapErr("bitmap.Set", EInvalid, err)
	}
	b.dirty = true
	return nil
}

// Clear marks block i free.
func (b *Bitmap) Clear(i uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.bits.Clear(int(i)); err != nil {
		return wrapErr("bitmap.Clear", EInvalid, err)
	}
	b.dirty = true
	return nil
}

// SetRange marks the n blocks starting at i allocated.
func (b *Bitmap) SetRange(i, n uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k := uint32(0); k < n; k++ {
		if err := b.bits.Set(int(i + k)); err != nil {
			return wrapErr("bitmap.SetRange", EInvalid, err)
		}
	}
	b.dirty = true
	return nil
}

// ClearRange marks the n blocks starting at i free.
func (b *Bitmap) ClearRange(i, n uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k := uint32(0); k < n; k++ {
		if err := b.bits.Clear(int(i + k)); err != nil {
			return wrapErr("bitmap.ClearRange", EInvalid, err)
		}
	}
	b.dirty = true
	return nil
}

// FindFirstClear returns the index of the first clear bit in [from, to), or
// -1 if none is clear in that range.
func (b *Bitmap) FindFirstClear(from, to uint32) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := from; i < to; i++ {
		set, err := b.bits.IsSet(int(i))
		if err != nil {
			return -1
		}
		if !set {
			return int(i)
		}
	}
	return -1
}
