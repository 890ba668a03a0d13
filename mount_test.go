package portfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// mustFormatCustom formats a test image with an explicit file-table
// capacity, bypassing Format's imageSize/1MiB convention so small test
// images can still hold several files.
func mustFormatCustom(t *testing.T, path string, blockSize, totalBlocks, maxFileCount uint32) {
	t.Helper()

	filetableStart := uint32(1)
	filetableBytes := uint64(maxFileCount) * uint64(FiletableEntrySize)
	filetableSize := uint32(ceilDiv(filetableBytes, uint64(blockSize)))
	bitmapStart := filetableStart + filetableSize
	bitmapBytes := ceilDiv(uint64(totalBlocks), 8)
	bitmapSize := uint32(ceilDiv(bitmapBytes, uint64(blockSize)))
	dataStart := bitmapStart + bitmapSize
	require.Less(t, dataStart, totalBlocks)

	imageSize := uint64(totalBlocks) * uint64(blockSize)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, f.Truncate(int64(imageSize)))

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
	require.NoError(t, sb.Validate())
	require.NoError(t, WriteSuperblock(f, sb))

	bm := NewBitmap(totalBlocks)
	require.NoError(t, bm.SetRange(0, dataStart))
	padded := make([]byte, uint64(bitmapSize)*uint64(blockSize))
	copy(padded, bm.Bytes())
	_, err = f.WriteAt(padded, int64(bitmapStart)*int64(blockSize))
	require.NoError(t, err)
}

func TestFormatMountEmptyListing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image")
	require.NoError(t, Format(path, 4<<20, DefaultBlockSize))

	m, err := Mount(path)
	require.NoError(t, err)
	defer m.Unmount()

	entries, err := m.IterateDir(m.Root().entry, 1, 1)
	require.NoError(t, err)
	require.Len(t, entries, 2) // "." and ".." only
	require.Equal(t, ".", entries[0].Name)
	require.Equal(t, "..", entries[1].Name)
}

func TestCreateWriteReadRemount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image")
	require.NoError(t, Format(path, 4<<20, DefaultBlockSize))

	m, err := Mount(path)
	require.NoError(t, err)

	file, err := m.Create(m.Root(), "a.txt", 0644)
	require.NoError(t, err)

	payload := []byte("hello, portfs")
	n, err := m.WriteFile(file.entry, payload, 0, false)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	require.NoError(t, m.Unmount())

	m2, err := Mount(path)
	require.NoError(t, err)
	defer m2.Unmount()

	found, err := m2.Lookup(m2.Root(), "a.txt")
	require.NoError(t, err)
	require.Equal(t, uint64(len(payload)), found.Size())

	got := make([]byte, len(payload))
	n, err = m2.ReadFile(found.entry, got, 0)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, got)
}

func TestSetattrShrinkThenExtend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image")
	require.NoError(t, Format(path, 4<<20, DefaultBlockSize))

	m, err := Mount(path)
	require.NoError(t, err)
	defer m.Unmount()

	f, err := m.Create(m.Root(), "big.bin", 0644)
	require.NoError(t, err)

	payload := make([]byte, DefaultBlockSize*6)
	for i := range payload {
		payload[i] = byte(i)
	}
	_, err = m.WriteFile(f.entry, payload, 0, false)
	require.NoError(t, err)
	allocatedBefore := allocatedSize(f.entry, DefaultBlockSize)

	require.NoError(t, m.Setattr(f, 10))
	require.Equal(t, uint64(10), f.Size())

	got := make([]byte, 10)
	n, err := m.ReadFile(f.entry, got, 0)
	require.NoError(t, err)
	require.Equal(t, 10, n)
	require.Equal(t, payload[:10], got)

	allocatedAfter := allocatedSize(f.entry, DefaultBlockSize)
	require.Less(t, allocatedAfter, allocatedBefore)

	require.NoError(t, m.Setattr(f, uint64(DefaultBlockSize)*3))
	require.Equal(t, uint64(DefaultBlockSize)*3, f.Size())

	got = make([]byte, 10)
	n, err = m.ReadFile(f.entry, got, 0)
	require.NoError(t, err)
	require.Equal(t, 10, n)
	require.Equal(t, payload[:10], got)
}

func TestUnlinkReclaimsSpace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image")
	require.NoError(t, Format(path, 4<<20, DefaultBlockSize))

	m, err := Mount(path)
	require.NoError(t, err)
	defer m.Unmount()

	before := BuildFreeExtentIndex(m.bitmap, m.sb.DataStart, m.sb.TotalBlocks)
	freeBefore := 0
	before.Ascend(func(start, length uint32) bool { freeBefore += int(length); return true })
	before.Destroy()

	f, err := m.Create(m.Root(), "tmp.bin", 0644)
	require.NoError(t, err)
	_, err = m.WriteFile(f.entry, make([]byte, DefaultBlockSize*3), 0, false)
	require.NoError(t, err)

	require.NoError(t, m.Unlink(m.Root(), "tmp.bin"))

	after := BuildFreeExtentIndex(m.bitmap, m.sb.DataStart, m.sb.TotalBlocks)
	freeAfter := 0
	after.Ascend(func(start, length uint32) bool { freeAfter += int(length); return true })
	after.Destroy()

	require.Equal(t, freeBefore, freeAfter)

	_, err = m.Lookup(m.Root(), "tmp.bin")
	require.Error(t, err)
	require.Equal(t, ENotFound, KindOf(err))
}

func TestMkdirRmdirLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image")
	require.NoError(t, Format(path, 4<<20, DefaultBlockSize))

	m, err := Mount(path)
	require.NoError(t, err)
	defer m.Unmount()

	sub, err := m.Mkdir(m.Root(), "sub", 0755)
	require.NoError(t, err)
	require.True(t, sub.IsDir())

	found, err := m.Lookup(m.Root(), "sub")
	require.NoError(t, err)
	require.Equal(t, sub.Ino, found.Ino)

	_, err = m.Create(sub, "child.txt", 0644)
	require.NoError(t, err)

	err = m.Rmdir(m.Root(), "sub")
	require.Error(t, err)
	require.Equal(t, ENotEmpty, KindOf(err))

	require.NoError(t, m.Unlink(sub, "child.txt"))
	require.NoError(t, m.Rmdir(m.Root(), "sub"))

	_, err = m.Lookup(m.Root(), "sub")
	require.Error(t, err)
	require.Equal(t, ENotFound, KindOf(err))
}

func TestCreateDuplicateNameFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image")
	require.NoError(t, Format(path, 4<<20, DefaultBlockSize))

	m, err := Mount(path)
	require.NoError(t, err)
	defer m.Unmount()

	_, err = m.Create(m.Root(), "dup.txt", 0644)
	require.NoError(t, err)

	_, err = m.Create(m.Root(), "dup.txt", 0644)
	require.Error(t, err)
	require.Equal(t, EExist, KindOf(err))
}

func TestNameTooLongRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image")
	require.NoError(t, Format(path, 4<<20, DefaultBlockSize))

	m, err := Mount(path)
	require.NoError(t, err)
	defer m.Unmount()

	name := make([]byte, MaxNameLength+1)
	for i := range name {
		name[i] = 'x'
	}
	_, err = m.Create(m.Root(), string(name), 0644)
	require.Error(t, err)
	require.Equal(t, ENameTooLong, KindOf(err))
}
