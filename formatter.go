package portfs

import (
	"fmt"
	"os"
)

const bytesPerMiB = 1 << 20

// Format creates a fresh, empty PortFS image at path: an imageSize-byte
// file laid out per §3 with a zeroed filetable and a bitmap that already
// marks every metadata block allocated (§6 "Formatter", §4.2, §7). The
// reference formatter omits that last step; this one does not.
func Format(path string, imageSize uint64, blockSize uint32) error {
	if blockSize == 0 {
		return newErr("Format", EInvalid)
	}

	totalBlocks := uint32(imageSize / uint64(blockSize))
	if totalBlocks < 8 {
		return fmt.Errorf("portfs: Format: image too small for block size %d", blockSize)
	}

	maxFileCount := uint32(imageSize / bytesPerMiB)
	if maxFileCount == 0 {
		maxFileCount = 1
	}

	filetableStart := uint32(1) // block 0 holds the superblock
	filetableBytes := uint64(maxFileCount) * uint64(FiletableEntrySize)
	filetableSize := uint32(ceilDiv(filetableBytes, uint64(blockSize)))

	bitmapStart := filetableStart + filetableSize
	bitmapBytes := ceilDiv(uint64(totalBlocks), 8)
	bitmapSize := uint32(ceilDiv(bitmapBytes, uint64(blockSize)))

	dataStart := bitmapStart + bitmapSize
	if dataStart >= totalBlocks {
		return fmt.Errorf("portfs: Format: image too small to hold metadata regions (need >%d blocks, have %d)", dataStart, totalBlocks)
	}

	f, err := os.Create(path)
	if err != nil {
		return wrapErr("Format", EIO, err)
	}
	defer f.Close()

	if err := f.Truncate(int64(imageSize)); err != nil {
		return wrapErr("Format", EIO, err)
	}

	sb := &Superblock{
		Magic:            Magic,
		BlockSize:        blockSize,
		TotalBlocks:      totalBlocks,
		FiletableStart:   filetableStart,
		FiletableSize:    filetableSize,
		BlockBitmapStart: bitmapStart,
		BlockBitmapSize:  bitmapSize,
		DataStart:        dataStart,
		MaxFileCount:     maxFileCount,
	}
	if err := sb.Validate(); err != nil {
		return fmt.Errorf("portfs: Format: computed layout is invalid: %w", err)
	}

	if err := WriteSuperblock(f, sb); err != nil {
		return err
	}

	zero := make([]byte, uint64(filetableSize)*uint64(blockSize))
	if _, err := f.WriteAt(zero, int64(filetableStart)*int64(blockSize)); err != nil {
		return wrapErr("Format", EIO, err)
	}

	bm := NewBitmap(totalBlocks)
	if err := bm.SetRange(0, dataStart); err != nil {
		return err
	}
	padded := make([]byte, uint64(bitmapSize)*uint64(blockSize))
	copy(padded, bm.Bytes())
	if _, err := f.WriteAt(padded, int64(bitmapStart)*int64(blockSize)); err != nil {
		return wrapErr("Format", EIO, err)
	}

	if err := f.Sync(); err != nil {
		return wrapErr("Format", EIO, err)
	}
	return nil
}

func ceilDiv(a, b uint64) uint64 {
	return (a + b - 1) / b
}
