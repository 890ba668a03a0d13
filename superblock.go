package portfs

import (
	"time"

	"github.com/diskfs/go-diskfs/util/timestamp"
)

// Magic is the big-endian signature stamped at byte 0 of every PortFS image.
const Magic uint32 = 0x506F5254

// DefaultBlockSize is the block size a freshly formatted image uses unless
// told otherwise.
const DefaultBlockSize = 4096

// DirectExtents is the number of extents stored inline in a filetable entry
// before a file spills into its indirect extent page.
const DirectExtents = 4

// MaxExtentLength caps a single free extent handed out by the allocator, in
// blocks; a longer contiguous free run is split into several extents of at
// most this length (§4.3).
const MaxExtentLength = 1024

// MaxNameLength is the longest name (not counting a NUL terminator) a
// directory entry can hold.
const MaxNameLength = 64

// SuperblockSize is the on-disk byte size of the superblock record.
// magic(4) + block_size(4) + total_blocks(4) + filetable_start(4) +
// filetable_size(4) + block_bitmap_start(4) + block_bitmap_size(4) +
// data_start(4) + max_file_count(4) + checksum(4) + last_mount_time(8) +
// last_write_time(8) + flags(4) = 60 bytes.
const SuperblockSize = 60

// ExtentSize is the on-disk byte size of one extent record.
const ExtentSize = 8

// FiletableEntrySize is the on-disk byte size of one filetable entry:
// ino(4) + mode(2) + size_in_bytes(8) + max(file variant, dir variant).
// The file variant (extent_count(2) + extents_block(4) +
// DirectExtents*ExtentSize) is the larger of the two at 38 bytes, so the
// whole record is 14 + 38 = 52 bytes.
const FiletableEntrySize = 14 + 2 + 4 + DirectExtents*ExtentSize

// DirEntrySize is the on-disk byte size of one directory slot: a
// MaxNameLength-byte NUL-padded name plus a 32-bit inode number.
const DirEntrySize = MaxNameLength + 4

// Superblock is the in-memory form of the image's region layout (§3).
type Superblock struct {
	Magic            uint32
	BlockSize        uint32
	TotalBlocks      uint32
	FiletableStart   uint32
	FiletableSize    uint32
	BlockBitmapStart uint32
	BlockBitmapSize  uint32
	DataStart        uint32
	MaxFileCount     uint32
	Checksum         uint32
	LastMountTime    uint64
	LastWriteTime    uint64
	Flags            uint32
}

// Validate checks the region-layout invariants of §3. It does not touch
// the backing file.
func (sb *Superblock) Validate() error {
	if sb.Magic != Magic {
		return newErr("superblock.Validate", EInvalid)
	}
	if sb.BlockSize == 0 {
		return newErr("superblock.Validate", EInvalid)
	}
	if !(sb.FiletableStart < sb.BlockBitmapStart &&
		sb.BlockBitmapStart < sb.DataStart &&
		sb.DataStart <= sb.TotalBlocks) {
		return newErr("superblock.Validate", EInvalid)
	}
	if uint64(sb.MaxFileCount)*uint64(FiletableEntrySize) > uint64(sb.FiletableSize)*uint64(sb.BlockSize) {
		return newErr("superblock.Validate", EInvalid)
	}
	if uint64(sb.BlockBitmapSize)*uint64(sb.BlockSize)*8 < uint64(sb.TotalBlocks) {
		return newErr("superblock.Validate", EInvalid)
	}
	return nil
}

// MaxExtentsPerFile is the total extent capacity of a single file: the
// direct extents plus whatever fits in one indirect extent page.
func (sb *Superblock) MaxExtentsPerFile() int {
	return DirectExtents + int(sb.BlockSize)/ExtentSize
}

// MaxDirEntries is the number of fixed-size directory slots that fit in one
// directory block.
func (sb *Superblock) MaxDirEntries() int {
	return int(sb.BlockSize) / DirEntrySize
}

// now returns the current time honoring SOURCE_DATE_EPOCH, so formatting
// and mounting an image in a reproducible-build environment stamps
// deterministic timestamps.
func now() time.Time {
	return timestamp.GetTime()
}
